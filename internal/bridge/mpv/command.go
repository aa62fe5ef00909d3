package mpv

import (
	"fmt"
	"strconv"

	"github.com/kvasir-media/fincast/internal/bridge"
)

// requests translates one bridge command into the mpv IPC requests that
// realize it. Most commands map to a single request; the pip toggle needs
// two. The slices are ready to be passed to gopv's Request as-is.
func requests(cmd bridge.Command) ([][]any, error) {
	switch c := cmd.(type) {
	case bridge.LoadFile:
		if c.StartTime > 0 {
			return [][]any{{"loadfile", c.URL, "replace", fmt.Sprintf("start=%.3f", c.StartTime)}}, nil
		}
		return [][]any{{"loadfile", c.URL, "replace"}}, nil

	case bridge.Play:
		return [][]any{{"set_property", "pause", false}}, nil

	case bridge.Pause:
		return [][]any{{"set_property", "pause", true}}, nil

	case bridge.Clear:
		return [][]any{{"stop"}}, nil

	case bridge.Seek:
		mode := "relative"
		if c.Absolute {
			mode = "absolute"
		}
		return [][]any{{"seek", c.Position, mode}}, nil

	case bridge.SetVolume:
		return [][]any{{"set_property", "volume", float64(c.Percentage)}}, nil

	case bridge.SetMuted:
		return [][]any{{"set_property", "mute", c.Muted}}, nil

	case bridge.SetSpeed:
		return [][]any{{"set_property", "speed", c.Multiplier}}, nil

	case bridge.ChangeAudioTrack:
		id, err := trackSelector(c.TrackID)
		if err != nil {
			return nil, fmt.Errorf("audio track: %w", err)
		}
		return [][]any{{"set_property", "aid", id}}, nil

	case bridge.ChangeSubtitleTrack:
		id, err := trackSelector(c.TrackID)
		if err != nil {
			return nil, fmt.Errorf("subtitle track: %w", err)
		}
		return [][]any{{"set_property", "sid", id}}, nil

	case bridge.TogglePipWindow:
		// Pip mode is an always-on-top borderless window; leaving it
		// restores the normal window chrome.
		return [][]any{
			{"set_property", "ontop", c.Show},
			{"set_property", "border", !c.Show},
		}, nil

	case bridge.ToggleFullscreen:
		return [][]any{{"cycle", "fullscreen"}}, nil

	case bridge.ToggleTitlebarHidden:
		return [][]any{{"set_property", "border", !c.Hidden}}, nil

	default:
		return nil, fmt.Errorf("unsupported command %q", cmd.Command())
	}
}

// trackSelector converts a track id into the value mpv expects for aid/sid.
// An empty id disables the track.
func trackSelector(id string) (any, error) {
	if id == "" {
		return "no", nil
	}
	n, err := strconv.Atoi(id)
	if err != nil {
		return nil, fmt.Errorf("invalid track id %q", id)
	}
	return int64(n), nil
}
