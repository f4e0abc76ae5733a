package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIncludesInternal(t *testing.T) {
	err := Wrap(stdErrors.New("boom"), "failed")
	require.Equal(t, "failed: boom", err.Error())
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", http.StatusBadRequest)
	with := base.WithInternal(stdErrors.New("oops"))

	require.NotSame(t, base, with)
	require.Nil(t, base.Internal)
	require.NotNil(t, with.Internal)
}

func TestFromError(t *testing.T) {
	require.Same(t, ErrNotFound, FromError(ErrNotFound))

	raw := stdErrors.New("raw")
	out := FromError(raw)
	require.Equal(t, ErrInternalServer.Code, out.Code)
	require.ErrorIs(t, out, raw)
	require.Nil(t, FromError(nil))
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("invalid payload")
	require.Equal(t, ErrBadRequest.Code, err.Code)
	require.Equal(t, "invalid payload", err.Message)
	require.Equal(t, ErrBadRequest.StatusCode, err.StatusCode)
	require.Equal(t, "Invalid request", ErrBadRequest.Message)
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("business")
	require.Equal(t, http.StatusNotFound, err.StatusCode)
	require.Equal(t, "business not found", err.Message)
}
