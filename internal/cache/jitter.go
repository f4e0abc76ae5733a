package cache

import (
	"math"
	"math/rand/v2"
	"time"
)

// DefaultJitterPercent is the jitter band applied to every write unless configured otherwise.
const DefaultJitterPercent = 10.0

// AddJitter perturbs ttl by up to ±(jitterPercent/2)% and floors the result to whole seconds.
// TTLs below one second are returned unchanged.
func AddJitter(ttl time.Duration, jitterPercent float64) time.Duration {
	return addJitter(ttl, jitterPercent, rand.Float64)
}

func addJitter(ttl time.Duration, jitterPercent float64, random func() float64) time.Duration {
	if ttl < time.Second || jitterPercent <= 0 {
		return ttl
	}
	if jitterPercent > 100 {
		jitterPercent = 100
	}

	seconds := ttl.Seconds()
	half := seconds * jitterPercent / 200
	lower, upper := seconds-half, seconds+half

	jittered := math.Floor(seconds + (random()*2-1)*half)
	if jittered < lower {
		jittered = math.Ceil(lower)
	}
	if jittered > upper || jittered < 1 {
		// No whole second inside the band; keep the nominal TTL.
		jittered = math.Floor(seconds)
	}
	return time.Duration(jittered) * time.Second
}
