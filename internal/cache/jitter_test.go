package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAddJitterStaysWithinHalfBand(t *testing.T) {
	for _, ttl := range []time.Duration{time.Minute, 5 * time.Minute, time.Hour, 24 * time.Hour} {
		lower := ttl.Seconds() * 0.95
		upper := ttl.Seconds() * 1.05
		for i := 0; i < 500; i++ {
			got := AddJitter(ttl, 10)
			require.Zero(t, got%time.Second, "jittered ttl must be whole seconds")
			require.GreaterOrEqual(t, got.Seconds(), lower)
			require.LessOrEqual(t, got.Seconds(), upper)
		}
	}
}

func TestAddJitterExtremes(t *testing.T) {
	ttl := 100 * time.Second

	require.Equal(t, 95*time.Second, addJitter(ttl, 10, func() float64 { return 0 }))
	require.Equal(t, 104*time.Second, addJitter(ttl, 10, func() float64 { return 0.9999999 }))
	require.Equal(t, 105*time.Second, addJitter(ttl, 10, func() float64 { return 1 }))
	require.Equal(t, 100*time.Second, addJitter(ttl, 10, func() float64 { return 0.5 }))
}

func TestAddJitterFloorDoesNotEscapeBand(t *testing.T) {
	// 10s ±0.5s: flooring 9.6 would give 9s, which is outside the band.
	got := addJitter(10*time.Second, 10, func() float64 { return 0.1 })
	require.Equal(t, 10*time.Second, got)
}

func TestAddJitterPassThrough(t *testing.T) {
	require.Equal(t, 250*time.Millisecond, AddJitter(250*time.Millisecond, 10))
	require.Equal(t, time.Minute, AddJitter(time.Minute, 0))
	require.Equal(t, time.Duration(0), AddJitter(0, 10))
}

func TestAddJitterDesynchronisesExpiry(t *testing.T) {
	seen := make(map[time.Duration]struct{})
	for i := 0; i < 200; i++ {
		seen[AddJitter(time.Hour, 10)] = struct{}{}
	}
	require.Greater(t, len(seen), 10)
}

func TestTTLTier(t *testing.T) {
	ttl, ok := TTLTier("static")
	require.True(t, ok)
	require.Equal(t, time.Hour, ttl)

	ttl, ok = TTLTier("dynamic")
	require.True(t, ok)
	require.Equal(t, DefaultTTL, ttl)

	_, ok = TTLTier("forever")
	require.False(t, ok)
}
