package playback

import (
	"math"

	"github.com/kvasir-media/fincast/internal/jellyfin"
)

// Pure time/position helpers for scrubbing, chapter jumps and seeks. None of
// these hold state; the controller applies their results.

// Fraction maps a time to a scrub-bar fraction in [0, 1]. Unknown or invalid
// durations map to 0 rather than NaN or Inf.
func Fraction(time, duration float64) float64 {
	if duration <= 0 || math.IsNaN(duration) || math.IsNaN(time) {
		return 0
	}
	return math.Min(math.Max(time/duration, 0), 1)
}

// TimeAtFraction maps a scrub-bar fraction back to a time in seconds.
func TimeAtFraction(fraction, duration float64) float64 {
	if duration <= 0 || math.IsNaN(duration) || math.IsNaN(fraction) {
		return 0
	}
	return ClampSeek(fraction*duration, duration)
}

// ClampSeek bounds a seek target into [0, duration]. Seeks must never be
// emitted with an out-of-range target.
func ClampSeek(target, duration float64) float64 {
	if math.IsNaN(target) || target < 0 {
		return 0
	}
	if duration > 0 && target > duration {
		return duration
	}
	return target
}

// ChapterAt returns the index of the chapter whose [start, nextStart)
// interval contains the given time, treating the final chapter's end as the
// duration. It returns -1 when the item has no chapters.
func ChapterAt(chapters []jellyfin.Chapter, time, duration float64) int {
	if len(chapters) == 0 {
		return -1
	}
	time = ClampSeek(time, duration)
	idx := 0
	for i, ch := range chapters {
		if jellyfin.SecondsFromTicks(ch.StartPositionTicks) > time {
			break
		}
		idx = i
	}
	return idx
}

// ChapterStart returns the start time in seconds of the chapter at index i,
// clamped into the valid seek range.
func ChapterStart(chapters []jellyfin.Chapter, i int, duration float64) float64 {
	if i < 0 || i >= len(chapters) {
		return 0
	}
	return ClampSeek(jellyfin.SecondsFromTicks(chapters[i].StartPositionTicks), duration)
}

// resumeThreshold is the watched fraction past which a saved position is
// treated as finished: the item restarts from zero instead of resuming, so
// an already-watched item does not immediately re-trigger end-of-file and
// autoplay logic.
const resumeThreshold = 0.95

// ResumeStart converts a saved server position into the start time for a new
// load, applying the finished-item rule.
func ResumeStart(savedTicks, runtimeTicks int64) float64 {
	if savedTicks <= 0 || runtimeTicks <= 0 {
		return 0
	}
	saved := jellyfin.SecondsFromTicks(savedTicks)
	duration := jellyfin.SecondsFromTicks(runtimeTicks)
	if saved/duration >= resumeThreshold {
		return 0
	}
	return saved
}
