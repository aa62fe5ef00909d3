// Package report throttles and delivers playback start/progress/stop reports
// to the media server. Reporting is best effort: a failed report is logged
// and dropped, never retried, and never interrupts playback.
package report

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kvasir-media/fincast/internal/jellyfin"
	"github.com/kvasir-media/fincast/internal/playback"
)

// API is the server-side reporting surface.
type API interface {
	ReportPlaybackStart(ctx context.Context, itemID, sessionID, playMethod string, volume int) error
	ReportPlaybackProgress(ctx context.Context, itemID, sessionID string, positionTicks int64) error
	ReportPlaybackStopped(ctx context.Context, itemID, sessionID string, positionTicks int64) error
}

// progressInterval is the wall-clock floor between two progress reports.
// Native time events can burst many times per second; the gate is time
// based, never count based.
const progressInterval = 3 * time.Second

// Reporter tracks per-session reporting state: start goes out once, progress
// is throttled, and stop goes out exactly once per started session.
type Reporter struct {
	api    API
	logger *slog.Logger

	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionState
}

type sessionState struct {
	started      bool
	stopped      bool
	lastProgress time.Time
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithInterval overrides the progress throttle window.
func WithInterval(d time.Duration) Option {
	return func(r *Reporter) { r.interval = d }
}

// withNow overrides the clock, for tests.
func withNow(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// NewReporter creates a reporter over the given server API.
func NewReporter(api API, logger *slog.Logger, opts ...Option) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reporter{
		api:      api,
		logger:   logger,
		interval: progressInterval,
		now:      time.Now,
		sessions: make(map[string]*sessionState),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start reports that a session began playing. It fires at most once per
// session; repeat calls are ignored.
func (r *Reporter) Start(ctx context.Context, session *playback.Session, volume int) {
	if session == nil {
		return
	}

	r.mu.Lock()
	st := r.sessions[session.ID]
	if st == nil {
		st = &sessionState{}
		r.sessions[session.ID] = st
	}
	if st.started {
		r.mu.Unlock()
		return
	}
	st.started = true
	r.mu.Unlock()

	err := r.api.ReportPlaybackStart(ctx, session.ItemID, session.ID, jellyfin.PlayMethodDirectPlay, volume)
	if err != nil {
		r.logger.Warn("playback start report failed",
			"item", session.ItemID, "session", session.ID, "error", err)
	}
}

// Progress reports the current position, at most once per throttle window.
// A skipped or failed tick is corrected by the next one.
func (r *Reporter) Progress(ctx context.Context, session *playback.Session, seconds float64) {
	if session == nil {
		return
	}

	r.mu.Lock()
	st := r.sessions[session.ID]
	if st == nil || !st.started || st.stopped {
		r.mu.Unlock()
		return
	}
	now := r.now()
	if !st.lastProgress.IsZero() && now.Sub(st.lastProgress) < r.interval {
		r.mu.Unlock()
		return
	}
	st.lastProgress = now
	r.mu.Unlock()

	err := r.api.ReportPlaybackProgress(ctx, session.ItemID, session.ID, jellyfin.TicksFromSeconds(seconds))
	if err != nil {
		r.logger.Warn("playback progress report failed",
			"item", session.ItemID, "session", session.ID, "error", err)
	}
}

// Stop reports the final position for a session. It fires exactly once per
// started session; a session that never confirmed loading produces no stop
// report, since the server never saw it start. Without the stop, the server's
// "currently watching" state for the item stays stuck.
func (r *Reporter) Stop(ctx context.Context, session *playback.Session, seconds float64) {
	if session == nil {
		return
	}

	r.mu.Lock()
	st := r.sessions[session.ID]
	if st == nil || !st.started || st.stopped {
		r.mu.Unlock()
		return
	}
	st.stopped = true
	delete(r.sessions, session.ID)
	r.mu.Unlock()

	err := r.api.ReportPlaybackStopped(ctx, session.ItemID, session.ID, jellyfin.TicksFromSeconds(seconds))
	if err != nil {
		r.logger.Warn("playback stop report failed",
			"item", session.ItemID, "session", session.ID, "error", err)
	}
}
