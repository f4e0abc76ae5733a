package cache

import (
	"github.com/fxamacker/cbor/v2"
	json "github.com/goccy/go-json"
)

// Codec converts typed cache values to and from their stored byte form.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec is the default codec.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// CBORCodec trades readability for smaller payloads.
type CBORCodec struct{}

func (CBORCodec) Name() string { return "cbor" }

func (CBORCodec) Marshal(v any) ([]byte, error) { return cbor.Marshal(v) }

func (CBORCodec) Unmarshal(data []byte, v any) error { return cbor.Unmarshal(data, v) }

// CodecByName resolves a configured codec name, defaulting to JSON.
func CodecByName(name string) Codec {
	switch name {
	case "cbor":
		return CBORCodec{}
	default:
		return JSONCodec{}
	}
}
