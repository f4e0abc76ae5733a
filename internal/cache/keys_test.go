package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGenerateKeyLayout(t *testing.T) {
	gen := NewKeyGenerator(nil)

	cases := []struct {
		name       string
		prefix     string
		identifier string
		opts       KeyOptions
		want       string
	}{
		{"shared business", "business", "abc123", KeyOptions{Shared: true}, "v2:business:abc123"},
		{"business scoped service", "service", "svc1", KeyOptions{BusinessID: "biz1"}, "v2:service:biz:biz1:svc1"},
		{"user and business", "appointments", "list", KeyOptions{UserID: "u1", BusinessID: "b1"}, "v2:appointments:user:u1:biz:b1:list"},
		{"shared drops user", "services", "list", KeyOptions{UserID: "u1", Shared: true}, "v2:services:list"},
		{"query hash last", "services", "list", KeyOptions{BusinessID: "b1", QueryHash: "00ff"}, "v2:services:biz:b1:list:00ff"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, gen.Generate(tc.prefix, tc.identifier, tc.opts))
		})
	}
}

func TestGenerateKeyDeterministic(t *testing.T) {
	gen := NewKeyGenerator(nil)
	opts := KeyOptions{UserID: "user 42", BusinessID: "biz-9", QueryHash: HashQuery(map[string]any{"page": 2})}

	first := gen.Generate("appointments", "upcoming", opts)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, gen.Generate("appointments", "upcoming", opts))
	}
}

func TestGenerateKeyRejectsSuspiciousComponents(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	gen := NewKeyGenerator(zap.New(core))

	inputs := []string{
		"../../etc/passwd",
		"__proto__",
		"constructor.prototype",
		"<script>alert(1)</script>",
		"javascript:alert(1)",
		"${jndi:ldap}",
		"%2e%2e%2f",
		"   ",
		"***",
	}
	for _, input := range inputs {
		key := gen.Generate("business", input, KeyOptions{Shared: true})
		require.Equal(t, "v2:business:invalid", key, "input %q", input)
	}
	require.Equal(t, len(inputs), logs.Len())
}

func TestGenerateKeyStripsSeparators(t *testing.T) {
	gen := NewKeyGenerator(nil)

	key := gen.Generate("business", "a:b", KeyOptions{BusinessID: "x:y", Shared: true})
	require.Equal(t, "v2:business:biz:xy:ab", key)
}

func TestGenerateKeyRejectsGlobsAndPrototypeNames(t *testing.T) {
	gen := NewKeyGenerator(nil)

	for _, input := range []string{"a*", "b?c", "d[e]", "prototype", "Constructor", "%2E%2E"} {
		key, ok := gen.Build("business", input, KeyOptions{Shared: true})
		require.False(t, ok, "input %q", input)
		require.Equal(t, "v2:business:invalid", key)
	}

	key, ok := gen.Build("business", "b1", KeyOptions{BusinessID: "biz1", Shared: true})
	require.True(t, ok)
	require.Equal(t, "v2:business:biz:biz1:b1", key)
}

func TestGenerateKeyNormalisesWhitespaceAndControl(t *testing.T) {
	gen := NewKeyGenerator(nil)

	key := gen.Generate("profile", "jane  doe\t\x00x", KeyOptions{Shared: true})
	require.Equal(t, "v2:profile:jane_doe_x", key)
}

func TestSanitizeComponentTruncates(t *testing.T) {
	clean, ok := SanitizeComponent(strings.Repeat("a", 300), maxComponentLength)
	require.True(t, ok)
	require.Len(t, clean, maxComponentLength)

	gen := NewKeyGenerator(nil)
	key := gen.Generate(strings.Repeat("p", 100), "id", KeyOptions{Shared: true})
	require.Equal(t, "v2:"+strings.Repeat("p", maxPrefixLength)+":id", key)
}

func TestHashQueryIgnoresMapOrder(t *testing.T) {
	a := HashQuery(map[string]any{"page": 1, "status": "confirmed", "limit": 20})
	b := HashQuery(map[string]any{"limit": 20, "page": 1, "status": "confirmed"})
	require.Equal(t, a, b)
	require.Len(t, a, 16)

	require.NotEqual(t, a, HashQuery(map[string]any{"page": 2, "status": "confirmed", "limit": 20}))
	require.Empty(t, HashQuery(nil))
}

func TestKeyPrefix(t *testing.T) {
	require.Equal(t, "service", keyPrefix("v2:service:biz:b1:s1"))
	require.Equal(t, "unknown", keyPrefix("v1:service:x"))
	require.Equal(t, "unknown", keyPrefix("garbage"))
}
