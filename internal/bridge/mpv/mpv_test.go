package mpv

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvasir-media/fincast/internal/bridge"
)

func TestNewIPCConfig(t *testing.T) {
	cfg, err := NewIPCConfig(PlatformLinux)
	require.NoError(t, err)
	assert.Equal(t, IPCUnixSocket, cfg.Type)
	assert.True(t, cfg.IsSocket)
	assert.Contains(t, cfg.Address, "fincast-mpv-")
	assert.Contains(t, cfg.Address, ".sock")
	assert.Contains(t, cfg.Address, os.TempDir())

	// Endpoints must be unique per process.
	other, err := NewIPCConfig(PlatformLinux)
	require.NoError(t, err)
	assert.NotEqual(t, cfg.Address, other.Address)

	// WSL uses the Linux mpv, so it gets a socket too.
	wsl, err := NewIPCConfig(PlatformWSL)
	require.NoError(t, err)
	assert.Equal(t, IPCUnixSocket, wsl.Type)

	win, err := NewIPCConfig(PlatformWindows)
	require.NoError(t, err)
	assert.Equal(t, IPCNamedPipe, win.Type)
	assert.False(t, win.IsSocket)
	assert.Contains(t, win.Address, `\\.\pipe\fincast-mpv-`)
}

func TestExecutable(t *testing.T) {
	assert.Equal(t, "mpv", Executable(PlatformLinux))
	assert.Equal(t, "mpv", Executable(PlatformWSL))
	assert.Equal(t, "mpv", Executable(PlatformMac))
	assert.Equal(t, "mpv.exe", Executable(PlatformWindows))
}

func TestRequests(t *testing.T) {
	tests := []struct {
		name string
		cmd  bridge.Command
		want [][]any
	}{
		{
			name: "load file from start",
			cmd:  bridge.LoadFile{URL: "http://jf/stream.mkv"},
			want: [][]any{{"loadfile", "http://jf/stream.mkv", "replace"}},
		},
		{
			name: "load file resumed",
			cmd:  bridge.LoadFile{URL: "http://jf/stream.mkv", StartTime: 421.5},
			want: [][]any{{"loadfile", "http://jf/stream.mkv", "replace", "start=421.500"}},
		},
		{
			name: "play",
			cmd:  bridge.Play{},
			want: [][]any{{"set_property", "pause", false}},
		},
		{
			name: "pause",
			cmd:  bridge.Pause{},
			want: [][]any{{"set_property", "pause", true}},
		},
		{
			name: "clear",
			cmd:  bridge.Clear{},
			want: [][]any{{"stop"}},
		},
		{
			name: "absolute seek",
			cmd:  bridge.Seek{Position: 120.0, Absolute: true},
			want: [][]any{{"seek", 120.0, "absolute"}},
		},
		{
			name: "relative seek",
			cmd:  bridge.Seek{Position: -10.0},
			want: [][]any{{"seek", -10.0, "relative"}},
		},
		{
			name: "volume",
			cmd:  bridge.SetVolume{Percentage: 85},
			want: [][]any{{"set_property", "volume", 85.0}},
		},
		{
			name: "mute",
			cmd:  bridge.SetMuted{Muted: true},
			want: [][]any{{"set_property", "mute", true}},
		},
		{
			name: "speed",
			cmd:  bridge.SetSpeed{Multiplier: 1.5},
			want: [][]any{{"set_property", "speed", 1.5}},
		},
		{
			name: "audio track",
			cmd:  bridge.ChangeAudioTrack{TrackID: "2"},
			want: [][]any{{"set_property", "aid", int64(2)}},
		},
		{
			name: "subtitles off",
			cmd:  bridge.ChangeSubtitleTrack{TrackID: ""},
			want: [][]any{{"set_property", "sid", "no"}},
		},
		{
			name: "pip on",
			cmd:  bridge.TogglePipWindow{Show: true},
			want: [][]any{
				{"set_property", "ontop", true},
				{"set_property", "border", false},
			},
		},
		{
			name: "fullscreen",
			cmd:  bridge.ToggleFullscreen{},
			want: [][]any{{"cycle", "fullscreen"}},
		},
		{
			name: "titlebar hidden",
			cmd:  bridge.ToggleTitlebarHidden{Hidden: true},
			want: [][]any{{"set_property", "border", false}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := requests(tt.cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestsRejectsBadTrackID(t *testing.T) {
	_, err := requests(bridge.ChangeAudioTrack{TrackID: "not-a-number"})
	assert.Error(t, err)
}

func TestDiffFileLoadedComesFirst(t *testing.T) {
	prev := snapshot{volume: 100, speed: 1.0}
	cur := snapshot{
		loaded:   true,
		timePos:  12.0,
		duration: 2400.0,
		volume:   100,
		speed:    1.0,
	}

	events := diff(prev, cur)
	require.NotEmpty(t, events)

	loaded, ok := events[0].(bridge.FileLoaded)
	require.True(t, ok)
	assert.Equal(t, 2400.0, loaded.Duration)
	assert.Equal(t, 12.0, loaded.CurrentTime)
}

func TestDiffNothingWhileIdle(t *testing.T) {
	prev := snapshot{volume: 100, speed: 1.0}
	cur := snapshot{volume: 80, speed: 2.0}

	assert.Empty(t, diff(prev, cur))
}

func TestDiffStateBeforeTime(t *testing.T) {
	prev := snapshot{loaded: true, timePos: 10, duration: 100, volume: 100, speed: 1.0}
	cur := prev
	cur.paused = true
	cur.timePos = 11

	events := diff(prev, cur)
	require.Len(t, events, 2)
	assert.Equal(t, bridge.PlaybackStateChanged{Paused: true}, events[0])
	assert.Equal(t, bridge.PlaybackTimeChanged{Position: 11}, events[1])
}

func TestDiffEndOfFileIsLastAndEdgeTriggered(t *testing.T) {
	prev := snapshot{loaded: true, timePos: 99, duration: 100, volume: 100, speed: 1.0}
	cur := prev
	cur.timePos = 100
	cur.eof = true

	events := diff(prev, cur)
	require.NotEmpty(t, events)
	assert.Equal(t, bridge.EndOfFile{Reason: bridge.EOFNatural}, events[len(events)-1])

	// Steady-state eof does not fire again.
	assert.Empty(t, diff(cur, cur))
}

func TestParseTracks(t *testing.T) {
	raw := []any{
		map[string]any{"id": 1.0, "type": "video"},
		map[string]any{"id": 1.0, "type": "audio", "title": "Surround", "lang": "eng"},
		map[string]any{"id": 2.0, "type": "audio", "lang": "jpn"},
		map[string]any{"id": 1.0, "type": "sub", "title": "English", "lang": "eng"},
		"garbage",
	}

	audio, subs := parseTracks(raw)

	require.Len(t, audio, 2)
	assert.Equal(t, bridge.Track{ID: 1, Title: "Surround", Lang: "eng", Type: bridge.TrackAudio}, audio[0])
	assert.Equal(t, "Track 2", audio[1].Title)

	require.Len(t, subs, 1)
	assert.Equal(t, bridge.Track{ID: 1, Title: "English", Lang: "eng", Type: bridge.TrackSubtitle}, subs[0])
}

func TestParseTracksNonList(t *testing.T) {
	audio, subs := parseTracks("nope")
	assert.Nil(t, audio)
	assert.Nil(t, subs)
}
