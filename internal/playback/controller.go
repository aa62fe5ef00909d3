package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kvasir-media/fincast/internal/bridge"
	"github.com/kvasir-media/fincast/internal/jellyfin"
)

// Phase is the controller's lifecycle state. The seeking flag is orthogonal
// and may be set during playing or paused.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhasePlaying Phase = "playing"
	PhasePaused  Phase = "paused"
	PhaseEnded   Phase = "ended"
)

// ErrLoadTimeout is reported when the native process never confirms a load.
var ErrLoadTimeout = errors.New("timed out waiting for file to load")

// Catalog resolves an item id to a playable stream URL.
type Catalog interface {
	StreamURL(itemID string) string
}

// Reporter informs the media server about session lifecycle. Implementations
// must swallow transport failures; local state stays authoritative for the
// UI regardless of reporting success.
type Reporter interface {
	Start(ctx context.Context, session *Session, volume int)
	Progress(ctx context.Context, session *Session, seconds float64)
	Stop(ctx context.Context, session *Session, seconds float64)
}

// PipWindow is the controller's view of the picture-in-picture window: just
// enough to hide it during teardown.
type PipWindow interface {
	IsShowing() bool
	Hide(ctx context.Context) error
}

// ControllerConfig wires a controller's collaborators.
type ControllerConfig struct {
	Bridge   bridge.Bridge
	Store    *Store
	Reporter Reporter
	Catalog  Catalog
	Pip      PipWindow
	Logger   *slog.Logger

	// LoadTimeout bounds how long a load may sit without a fileLoaded event
	// before it is failed. Zero selects the default.
	LoadTimeout time.Duration

	// OnError receives asynchronous failures (load watchdog, dropped
	// commands). Never invoked with the controller lock held.
	OnError func(error)

	// OnEnded receives the native end-of-file reason after the final stop
	// report for the session has been issued.
	OnEnded func(reason int)
}

const defaultLoadTimeout = 30 * time.Second

// Controller owns the load → play → teardown lifecycle for the currently
// active item. It is the only writer of the Store and the only holder of the
// play session.
type Controller struct {
	mu sync.Mutex

	bridge   bridge.Bridge
	store    *Store
	reporter Reporter
	catalog  Catalog
	pip      PipWindow
	logger   *slog.Logger

	loadTimeout time.Duration
	onError     func(error)
	onEnded     func(reason int)

	phase      Phase
	seeking    bool
	fullscreen bool
	item       *jellyfin.Item
	session    *Session
	subs       []*bridge.Subscription
	watchdog   *time.Timer
}

// NewController creates an idle controller.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.LoadTimeout == 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	return &Controller{
		bridge:      cfg.Bridge,
		store:       cfg.Store,
		reporter:    cfg.Reporter,
		catalog:     cfg.Catalog,
		pip:         cfg.Pip,
		logger:      cfg.Logger,
		loadTimeout: cfg.LoadTimeout,
		onError:     cfg.OnError,
		onEnded:     cfg.OnEnded,
		phase:       PhaseIdle,
	}
}

// Phase returns the current lifecycle state.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Item returns the currently loaded item, or nil when idle.
func (c *Controller) Item() *jellyfin.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.item
}

// Session returns the active play session, or nil when idle.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Load tears down any active session, then starts loading the given item.
// Teardown for the previous item fully completes, including its final stop
// report, before the new session is created, so session ids never cross
// between items.
func (c *Controller) Load(ctx context.Context, item *jellyfin.Item) error {
	if item == nil || item.ID == "" {
		return fmt.Errorf("load: item is empty")
	}

	c.mu.Lock()
	c.unloadLocked(ctx)

	session := NewSession(item.ID)
	c.item = item
	c.session = session
	c.phase = PhaseLoading
	c.seeking = false
	c.attachListenersLocked()

	startTime := 0.0
	if item.UserData != nil {
		startTime = ResumeStart(item.UserData.PlaybackPositionTicks, item.RunTimeTicks)
	}
	url := c.catalog.StreamURL(item.ID)

	c.watchdog = time.AfterFunc(c.loadTimeout, func() {
		c.loadTimedOut(session.ID)
	})
	c.mu.Unlock()

	c.logger.Info("loading item",
		"item", item.ID,
		"session", session.ID,
		"start_time", startTime,
	)

	if err := c.bridge.Emit(ctx, bridge.LoadFile{URL: url, StartTime: startTime}); err != nil {
		c.mu.Lock()
		c.unloadLocked(ctx)
		c.mu.Unlock()
		return fmt.Errorf("load %s: %w", item.ID, err)
	}
	return nil
}

// Unload runs the full teardown sequence for the active item: capture the
// final position, reset the store, flush the stop report, send compensating
// pause/clear commands, leave fullscreen and hide the PiP window. Safe to
// call when idle.
func (c *Controller) Unload(ctx context.Context) {
	c.mu.Lock()
	c.unloadLocked(ctx)
	c.mu.Unlock()
}

// unloadLocked must run with c.mu held. The order matters: the position is
// captured before the store reset, and the stop report is flushed before any
// new session can be created.
func (c *Controller) unloadLocked(ctx context.Context) {
	c.stopWatchdogLocked()
	for _, sub := range c.subs {
		sub.Cancel()
	}
	c.subs = nil

	if c.session == nil {
		c.phase = PhaseIdle
		return
	}

	finalTime := c.store.Get().CurrentTime
	c.store.Reset()
	c.reporter.Stop(ctx, c.session, finalTime)

	c.emit(ctx, bridge.Pause{})
	c.emit(ctx, bridge.Clear{})
	if c.fullscreen {
		c.emit(ctx, bridge.ToggleFullscreen{})
		c.fullscreen = false
	}
	if c.pip != nil && c.pip.IsShowing() {
		if err := c.pip.Hide(ctx); err != nil {
			c.logger.Warn("failed to hide pip window", "error", err)
		}
	}

	c.logger.Info("session ended",
		"item", c.session.ItemID,
		"session", c.session.ID,
		"position", finalTime,
	)

	c.item = nil
	c.session = nil
	c.phase = PhaseIdle
	c.seeking = false
}

func (c *Controller) attachListenersLocked() {
	listen := func(name bridge.EventName, fn bridge.Handler) {
		c.subs = append(c.subs, c.bridge.Listen(name, fn))
	}
	listen(bridge.EventFileLoaded, c.handleFileLoaded)
	listen(bridge.EventPlaybackStateChanged, c.handleStateChanged)
	listen(bridge.EventPlaybackTimeChanged, c.handleTimeChanged)
	listen(bridge.EventSpeedChanged, c.handleSpeedChanged)
	listen(bridge.EventVolumeChanged, c.handleVolumeChanged)
	listen(bridge.EventMuteChanged, c.handleMuteChanged)
	listen(bridge.EventAudioTracksChanged, c.handleAudioTracks)
	listen(bridge.EventSubtitleTracksChanged, c.handleSubtitleTracks)
	listen(bridge.EventCacheTimeChanged, c.handleCacheTime)
	listen(bridge.EventEndOfFile, c.handleEndOfFile)
}

// handleFileLoaded receives the authoritative duration and initial position.
// A loaded file always starts playing; any earlier pause intent has to be
// re-applied explicitly afterwards.
func (c *Controller) handleFileLoaded(ev bridge.Event) {
	loaded := ev.(bridge.FileLoaded)

	c.mu.Lock()
	if c.phase != PhaseLoading {
		c.mu.Unlock()
		return
	}
	c.stopWatchdogLocked()
	c.phase = PhasePlaying
	session := c.session
	c.mu.Unlock()

	c.store.Update(func(s *State) {
		s.Duration = loaded.Duration
		s.CurrentTime = loaded.CurrentTime
		s.Paused = false
	})

	ctx := context.Background()
	c.emit(ctx, bridge.Play{})

	// An unload may have slipped in since the phase change. Its stop report
	// skips sessions that never started, so a start now would create a
	// session no stop ever follows. Start only while the session is still
	// current, under the same lock unloadLocked reports stop under.
	volume := c.store.Get().Volume
	c.mu.Lock()
	if c.session == session {
		c.reporter.Start(ctx, session, volume)
	}
	c.mu.Unlock()
}

// handleStateChanged applies the native pause flag. Native state always wins
// over an earlier optimistic local write.
func (c *Controller) handleStateChanged(ev bridge.Event) {
	changed := ev.(bridge.PlaybackStateChanged)

	c.mu.Lock()
	if c.phase != PhasePlaying && c.phase != PhasePaused {
		c.mu.Unlock()
		return
	}
	if changed.Paused {
		c.phase = PhasePaused
	} else {
		c.phase = PhasePlaying
	}
	c.mu.Unlock()

	c.store.Update(func(s *State) {
		s.Paused = changed.Paused
	})
}

func (c *Controller) handleTimeChanged(ev bridge.Event) {
	tc := ev.(bridge.PlaybackTimeChanged)

	c.mu.Lock()
	if c.phase != PhasePlaying && c.phase != PhasePaused {
		c.mu.Unlock()
		return
	}
	c.seeking = false
	session := c.session
	c.mu.Unlock()

	c.store.Update(func(s *State) {
		s.CurrentTime = tc.Position
	})
	c.reporter.Progress(context.Background(), session, tc.Position)
}

func (c *Controller) handleSpeedChanged(ev bridge.Event) {
	sc := ev.(bridge.SpeedChanged)
	c.store.Update(func(s *State) {
		s.Speed = sc.Speed
	})
}

func (c *Controller) handleVolumeChanged(ev bridge.Event) {
	vc := ev.(bridge.VolumeChanged)
	c.store.Update(func(s *State) {
		s.Volume = vc.Percentage
	})
}

func (c *Controller) handleMuteChanged(ev bridge.Event) {
	mc := ev.(bridge.MuteChanged)
	c.store.Update(func(s *State) {
		s.Muted = mc.Muted
	})
}

func (c *Controller) handleAudioTracks(ev bridge.Event) {
	at := ev.(bridge.AudioTracksChanged)
	c.store.Update(func(s *State) {
		s.AudioTracks = at.Tracks
	})
}

func (c *Controller) handleSubtitleTracks(ev bridge.Event) {
	st := ev.(bridge.SubtitleTracksChanged)
	c.store.Update(func(s *State) {
		s.SubtitleTracks = st.Tracks
	})
}

func (c *Controller) handleCacheTime(ev bridge.Event) {
	ct := ev.(bridge.CacheTimeChanged)
	c.store.Update(func(s *State) {
		s.CachedTime = ct.Time
	})
}

// handleEndOfFile flushes the final stop report and parks the controller in
// the ended phase. What happens next is the autoplay coordinator's call.
func (c *Controller) handleEndOfFile(ev bridge.Event) {
	eof := ev.(bridge.EndOfFile)

	c.mu.Lock()
	if c.phase == PhaseIdle || c.phase == PhaseEnded || c.session == nil {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseEnded
	session := c.session
	c.mu.Unlock()

	finalTime := c.store.Get().CurrentTime
	c.reporter.Stop(context.Background(), session, finalTime)

	c.logger.Info("end of file",
		"item", session.ItemID,
		"reason", eof.Reason,
		"position", finalTime,
	)

	if c.onEnded != nil {
		c.onEnded(eof.Reason)
	}
}

// TogglePause flips the pause flag optimistically, then asks the native
// process to follow. The eventual playbackStateChanged event overwrites the
// optimistic value either way.
func (c *Controller) TogglePause(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhasePlaying && c.phase != PhasePaused {
		c.mu.Unlock()
		return nil
	}
	paused := !c.store.Get().Paused
	if paused {
		c.phase = PhasePaused
	} else {
		c.phase = PhasePlaying
	}
	c.mu.Unlock()

	c.store.Update(func(s *State) {
		s.Paused = paused
	})
	if paused {
		return c.bridge.Emit(ctx, bridge.Pause{})
	}
	return c.bridge.Emit(ctx, bridge.Play{})
}

// Pause pauses playback regardless of the current flag. Used for one-shot
// pauses (the autoplay prompt) that must not fight a later manual resume.
func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhasePlaying {
		c.mu.Unlock()
		return nil
	}
	c.phase = PhasePaused
	c.mu.Unlock()

	c.store.Update(func(s *State) {
		s.Paused = true
	})
	return c.bridge.Emit(ctx, bridge.Pause{})
}

// Resume resumes playback when paused. A no-op in every other phase.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhasePaused {
		c.mu.Unlock()
		return nil
	}
	c.phase = PhasePlaying
	c.mu.Unlock()

	c.store.Update(func(s *State) {
		s.Paused = false
	})
	return c.bridge.Emit(ctx, bridge.Play{})
}

// SeekTo seeks to an absolute position in seconds. The target is clamped
// into [0, duration] before emission. The store position is updated
// optimistically only while paused; while playing, the next native
// time-update corrects it, avoiding a visible jump from a value that
// disagrees with the native clock.
func (c *Controller) SeekTo(ctx context.Context, seconds float64) error {
	state := c.store.Get()
	target := ClampSeek(seconds, state.Duration)

	c.mu.Lock()
	if c.phase != PhasePlaying && c.phase != PhasePaused {
		c.mu.Unlock()
		return nil
	}
	c.seeking = true
	c.mu.Unlock()

	if state.Paused {
		c.store.Update(func(s *State) {
			s.CurrentTime = target
		})
	}
	return c.bridge.Emit(ctx, bridge.Seek{Position: target, Absolute: true})
}

// SeekBy seeks relative to the current position. The delta is trimmed so the
// resulting target stays inside [0, duration].
func (c *Controller) SeekBy(ctx context.Context, delta float64) error {
	state := c.store.Get()
	target := ClampSeek(state.CurrentTime+delta, state.Duration)
	trimmed := target - state.CurrentTime

	c.mu.Lock()
	if c.phase != PhasePlaying && c.phase != PhasePaused {
		c.mu.Unlock()
		return nil
	}
	c.seeking = true
	c.mu.Unlock()

	if state.Paused {
		c.store.Update(func(s *State) {
			s.CurrentTime = target
		})
	}
	return c.bridge.Emit(ctx, bridge.Seek{Position: trimmed, Absolute: false})
}

// SeekToChapter jumps to the start of the chapter at the given index.
func (c *Controller) SeekToChapter(ctx context.Context, index int) error {
	c.mu.Lock()
	item := c.item
	c.mu.Unlock()
	if item == nil || index < 0 || index >= len(item.Chapters) {
		return nil
	}
	return c.SeekTo(ctx, ChapterStart(item.Chapters, index, c.store.Get().Duration))
}

// SetVolume clamps into 0-200, applies optimistically and emits.
func (c *Controller) SetVolume(ctx context.Context, percentage int) error {
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 200 {
		percentage = 200
	}
	c.store.Update(func(s *State) {
		s.Volume = percentage
	})
	return c.bridge.Emit(ctx, bridge.SetVolume{Percentage: percentage})
}

// AdjustVolume steps the volume by a delta.
func (c *Controller) AdjustVolume(ctx context.Context, delta int) error {
	return c.SetVolume(ctx, c.store.Get().Volume+delta)
}

// ToggleMute flips the mute flag optimistically and emits.
func (c *Controller) ToggleMute(ctx context.Context) error {
	muted := !c.store.Get().Muted
	c.store.Update(func(s *State) {
		s.Muted = muted
	})
	return c.bridge.Emit(ctx, bridge.SetMuted{Muted: muted})
}

// SetSpeed applies a playback speed multiplier.
func (c *Controller) SetSpeed(ctx context.Context, multiplier float64) error {
	if multiplier <= 0 {
		return fmt.Errorf("set speed: multiplier must be positive")
	}
	c.store.Update(func(s *State) {
		s.Speed = multiplier
	})
	return c.bridge.Emit(ctx, bridge.SetSpeed{Multiplier: multiplier})
}

// SetAudioTrack selects an audio track by native id.
func (c *Controller) SetAudioTrack(ctx context.Context, trackID string) error {
	return c.bridge.Emit(ctx, bridge.ChangeAudioTrack{TrackID: trackID})
}

// SetSubtitleTrack selects a subtitle track by native id; empty disables.
func (c *Controller) SetSubtitleTrack(ctx context.Context, trackID string) error {
	return c.bridge.Emit(ctx, bridge.ChangeSubtitleTrack{TrackID: trackID})
}

// ToggleFullscreen toggles fullscreen and tracks the flag so teardown can
// leave fullscreen before the window goes away.
func (c *Controller) ToggleFullscreen(ctx context.Context) error {
	c.mu.Lock()
	c.fullscreen = !c.fullscreen
	c.mu.Unlock()
	return c.bridge.Emit(ctx, bridge.ToggleFullscreen{})
}

// Seeking reports whether a seek is in flight (no native time update has
// arrived since the last seek command).
func (c *Controller) Seeking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seeking
}

func (c *Controller) stopWatchdogLocked() {
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
}

// loadTimedOut fires when no fileLoaded event arrived in time. The session
// check keeps a stale timer from a previous load from tearing down the
// current one.
func (c *Controller) loadTimedOut(sessionID string) {
	c.mu.Lock()
	if c.phase != PhaseLoading || c.session == nil || c.session.ID != sessionID {
		c.mu.Unlock()
		return
	}
	itemID := c.session.ItemID
	c.unloadLocked(context.Background())
	c.mu.Unlock()

	c.logger.Error("load watchdog fired", "item", itemID)
	if c.onError != nil {
		c.onError(fmt.Errorf("item %s: %w", itemID, ErrLoadTimeout))
	}
}

// emit sends a command and logs failures without propagating them; teardown
// and event handlers must not abort halfway because one command dropped.
func (c *Controller) emit(ctx context.Context, cmd bridge.Command) {
	if err := c.bridge.Emit(ctx, cmd); err != nil {
		c.logger.Warn("command dropped", "command", string(cmd.Command()), "error", err)
	}
}
