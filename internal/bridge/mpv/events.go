package mpv

import (
	"strconv"

	"github.com/samber/lo"

	"github.com/kvasir-media/fincast/internal/bridge"
)

// snapshot is one observation of the mpv properties we mirror. Events are
// synthesized by diffing consecutive snapshots, so the poll loop stays a dumb
// reader and all the edge detection lives in diff.
type snapshot struct {
	loaded    bool
	timePos   float64
	duration  float64
	cacheTime float64
	paused    bool
	muted     bool
	eof       bool
	volume    int
	speed     float64
}

// diff returns the events implied by moving from prev to cur, in the order
// consumers rely on: a file-loaded edge comes first, the end-of-file edge
// last, and time updates after state updates so a position always lands in an
// already-correct pause state.
func diff(prev, cur snapshot) []bridge.Event {
	var events []bridge.Event

	if cur.loaded && !prev.loaded {
		events = append(events, bridge.FileLoaded{
			Duration:    cur.duration,
			CurrentTime: cur.timePos,
		})
	}

	if !cur.loaded {
		return events
	}

	if cur.paused != prev.paused || (cur.loaded && !prev.loaded) {
		events = append(events, bridge.PlaybackStateChanged{Paused: cur.paused})
	}
	if cur.speed != prev.speed {
		events = append(events, bridge.SpeedChanged{Speed: cur.speed})
	}
	if cur.volume != prev.volume {
		events = append(events, bridge.VolumeChanged{Percentage: cur.volume})
	}
	if cur.muted != prev.muted {
		events = append(events, bridge.MuteChanged{Muted: cur.muted})
	}
	if cur.cacheTime != prev.cacheTime {
		events = append(events, bridge.CacheTimeChanged{Time: cur.cacheTime})
	}
	if cur.timePos != prev.timePos {
		events = append(events, bridge.PlaybackTimeChanged{Position: cur.timePos})
	}
	if cur.eof && !prev.eof {
		events = append(events, bridge.EndOfFile{Reason: bridge.EOFNatural})
	}

	return events
}

// parseTracks converts mpv's track-list property value into audio and
// subtitle track lists. Entries that are not maps, and video tracks, are
// skipped.
func parseTracks(raw any) (audio, subs []bridge.Track) {
	entries, ok := raw.([]any)
	if !ok {
		return nil, nil
	}

	maps := lo.FilterMap(entries, func(e any, _ int) (map[string]any, bool) {
		m, ok := e.(map[string]any)
		return m, ok
	})

	toTrack := func(m map[string]any, kind bridge.TrackType) bridge.Track {
		t := bridge.Track{Type: kind}
		if id, ok := m["id"].(float64); ok {
			t.ID = int(id)
		}
		if title, ok := m["title"].(string); ok {
			t.Title = title
		}
		if lang, ok := m["lang"].(string); ok {
			t.Lang = lang
		}
		if t.Title == "" {
			t.Title = "Track " + strconv.Itoa(t.ID)
		}
		return t
	}

	audio = lo.FilterMap(maps, func(m map[string]any, _ int) (bridge.Track, bool) {
		if m["type"] != "audio" {
			return bridge.Track{}, false
		}
		return toTrack(m, bridge.TrackAudio), true
	})
	subs = lo.FilterMap(maps, func(m map[string]any, _ int) (bridge.Track, bool) {
		if m["type"] != "sub" {
			return bridge.Track{}, false
		}
		return toTrack(m, bridge.TrackSubtitle), true
	})
	return audio, subs
}
