package jellyfin

import "math"

// The server measures positions in ticks of 100 nanoseconds. The playback
// core works in seconds everywhere; these two functions are the only place
// the unit crosses the boundary.
const ticksPerSecond = 10_000_000

// TicksFromSeconds converts seconds to server ticks, truncating toward zero.
func TicksFromSeconds(seconds float64) int64 {
	if seconds <= 0 || math.IsNaN(seconds) {
		return 0
	}
	return int64(math.Floor(seconds * ticksPerSecond))
}

// SecondsFromTicks converts server ticks to seconds.
func SecondsFromTicks(ticks int64) float64 {
	if ticks <= 0 {
		return 0
	}
	return float64(ticks) / ticksPerSecond
}
