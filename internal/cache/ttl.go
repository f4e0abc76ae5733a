package cache

import "time"

// TTL tiers, chosen by how quickly the underlying data changes.
const (
	// TTLStatic suits profiles and catalog data edited a few times a day.
	TTLStatic = time.Hour
	// TTLDynamic is the default for listings that change with bookings.
	TTLDynamic = DefaultTTL
	// TTLRealtime suits dashboards that must track the live queue.
	TTLRealtime = 30 * time.Second
)

// TTLTier resolves a configured tier name, returning ok=false for unknown names.
func TTLTier(name string) (time.Duration, bool) {
	switch name {
	case "static":
		return TTLStatic, true
	case "dynamic":
		return TTLDynamic, true
	case "realtime":
		return TTLRealtime, true
	default:
		return 0, false
	}
}
