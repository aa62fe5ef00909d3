// Package bridge defines the typed command/event surface between the playback
// core and the native video process. Commands are fire-and-forget; a dropped
// command is not retried by the bridge (the user re-interacting is the retry).
package bridge

import "context"

// CommandName identifies a native playback command.
type CommandName string

const (
	CmdLoadFile             CommandName = "loadFile"
	CmdPlay                 CommandName = "play"
	CmdPause                CommandName = "pause"
	CmdClear                CommandName = "clear"
	CmdSeek                 CommandName = "seek"
	CmdSetVolume            CommandName = "setVolume"
	CmdSetMuted             CommandName = "setMuted"
	CmdSetSpeed             CommandName = "setSpeed"
	CmdChangeAudioTrack     CommandName = "changeAudioTrack"
	CmdChangeSubtitleTrack  CommandName = "changeSubtitleTrack"
	CmdTogglePipWindow      CommandName = "togglePipWindow"
	CmdToggleFullscreen     CommandName = "toggleFullscreen"
	CmdToggleTitlebarHidden CommandName = "toggleTitlebarHidden"
)

// Command is a native playback command payload.
type Command interface {
	Command() CommandName
}

// LoadFile instructs the native process to load and decode a stream.
// StartTime is in seconds.
type LoadFile struct {
	URL       string
	StartTime float64
}

// Play resumes playback.
type Play struct{}

// Pause suspends playback.
type Pause struct{}

// Clear unloads the current file.
type Clear struct{}

// Seek moves the playback position. Position is in seconds; when Absolute is
// false it is a delta relative to the current position.
type Seek struct {
	Position float64
	Absolute bool
}

// SetVolume sets the output volume, 0-200 percent.
type SetVolume struct {
	Percentage int
}

// SetMuted mutes or unmutes audio output.
type SetMuted struct {
	Muted bool
}

// SetSpeed sets the playback speed multiplier.
type SetSpeed struct {
	Multiplier float64
}

// ChangeAudioTrack selects an audio track by native track id.
type ChangeAudioTrack struct {
	TrackID string
}

// ChangeSubtitleTrack selects a subtitle track by native track id. An empty
// id disables subtitles.
type ChangeSubtitleTrack struct {
	TrackID string
}

// TogglePipWindow shows or hides the picture-in-picture window.
type TogglePipWindow struct {
	Show bool
}

// ToggleFullscreen toggles fullscreen mode.
type ToggleFullscreen struct{}

// ToggleTitlebarHidden hides or shows the window titlebar.
type ToggleTitlebarHidden struct {
	Hidden bool
}

func (LoadFile) Command() CommandName             { return CmdLoadFile }
func (Play) Command() CommandName                 { return CmdPlay }
func (Pause) Command() CommandName                { return CmdPause }
func (Clear) Command() CommandName                { return CmdClear }
func (Seek) Command() CommandName                 { return CmdSeek }
func (SetVolume) Command() CommandName            { return CmdSetVolume }
func (SetMuted) Command() CommandName             { return CmdSetMuted }
func (SetSpeed) Command() CommandName             { return CmdSetSpeed }
func (ChangeAudioTrack) Command() CommandName     { return CmdChangeAudioTrack }
func (ChangeSubtitleTrack) Command() CommandName  { return CmdChangeSubtitleTrack }
func (TogglePipWindow) Command() CommandName      { return CmdTogglePipWindow }
func (ToggleFullscreen) Command() CommandName     { return CmdToggleFullscreen }
func (ToggleTitlebarHidden) Command() CommandName { return CmdToggleTitlebarHidden }

// EventName identifies a native playback event.
type EventName string

const (
	EventFileLoaded            EventName = "fileLoaded"
	EventPlaybackStateChanged  EventName = "playbackStateChanged"
	EventPlaybackTimeChanged   EventName = "playbackTimeChanged"
	EventSpeedChanged          EventName = "speedChanged"
	EventVolumeChanged         EventName = "volumeChanged"
	EventMuteChanged           EventName = "muteChanged"
	EventAudioTracksChanged    EventName = "audioTracksChanged"
	EventSubtitleTracksChanged EventName = "subtitleTracksChanged"
	EventCacheTimeChanged      EventName = "cacheTimeChanged"
	EventEndOfFile             EventName = "endOfFile"
)

// Event is a native playback event payload.
type Event interface {
	Event() EventName
}

// TrackType distinguishes audio from subtitle tracks.
type TrackType string

const (
	TrackAudio    TrackType = "audio"
	TrackSubtitle TrackType = "subtitle"
)

// Track describes one audio or subtitle track announced by the native process.
type Track struct {
	ID    int
	Title string
	Lang  string
	Type  TrackType
}

// FileLoaded is emitted once the native process has opened the file and knows
// its duration. Times are in seconds.
type FileLoaded struct {
	Duration    float64
	CurrentTime float64
}

// PlaybackStateChanged carries the authoritative pause flag.
type PlaybackStateChanged struct {
	Paused bool
}

// PlaybackTimeChanged carries the authoritative playback position in seconds.
type PlaybackTimeChanged struct {
	Position float64
}

// SpeedChanged carries the authoritative speed multiplier.
type SpeedChanged struct {
	Speed float64
}

// VolumeChanged carries the authoritative volume percentage.
type VolumeChanged struct {
	Percentage int
}

// MuteChanged carries the authoritative mute flag.
type MuteChanged struct {
	Muted bool
}

// AudioTracksChanged replaces the audio track list wholesale.
type AudioTracksChanged struct {
	Tracks []Track
}

// SubtitleTracksChanged replaces the subtitle track list wholesale.
type SubtitleTracksChanged struct {
	Tracks []Track
}

// CacheTimeChanged carries the buffered-ahead position in seconds.
type CacheTimeChanged struct {
	Time float64
}

// EndOfFile reasons. Zero means the file played to its natural end; anything
// else is a user-initiated stop or an error and must not trigger autoplay.
const (
	EOFNatural = 0
	EOFStopped = 1
	EOFError   = 2
)

// EndOfFile is emitted when the native process stops decoding the file.
type EndOfFile struct {
	Reason int
}

func (FileLoaded) Event() EventName            { return EventFileLoaded }
func (PlaybackStateChanged) Event() EventName  { return EventPlaybackStateChanged }
func (PlaybackTimeChanged) Event() EventName   { return EventPlaybackTimeChanged }
func (SpeedChanged) Event() EventName          { return EventSpeedChanged }
func (VolumeChanged) Event() EventName         { return EventVolumeChanged }
func (MuteChanged) Event() EventName           { return EventMuteChanged }
func (AudioTracksChanged) Event() EventName    { return EventAudioTracksChanged }
func (SubtitleTracksChanged) Event() EventName { return EventSubtitleTracksChanged }
func (CacheTimeChanged) Event() EventName      { return EventCacheTimeChanged }
func (EndOfFile) Event() EventName             { return EventEndOfFile }

// Handler receives one event occurrence. Handlers for the same event name are
// invoked in registration order; events are never delivered out of emission
// order.
type Handler func(Event)

// Bridge is the bidirectional channel to the native playback process.
type Bridge interface {
	// Emit sends a fire-and-forget command. It returns an error when the
	// channel is not established; it never retries.
	Emit(ctx context.Context, cmd Command) error

	// Listen registers a handler for an event name. The returned subscription
	// must be cancelled when the caller goes away.
	Listen(name EventName, fn Handler) *Subscription

	// Close tears the channel down and stops event delivery.
	Close() error
}
