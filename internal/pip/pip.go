// Package pip coordinates the picture-in-picture window: visibility of the
// always-on-top window itself and the auto-fading control overlay inside it.
// It never owns playback state; it mirrors the paused flag read-only and
// routes its play/pause button through the same controller toggle every
// other surface uses.
package pip

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kvasir-media/fincast/internal/bridge"
	"github.com/kvasir-media/fincast/internal/playback"
)

// controlsHideDelay is how long the control overlay stays up after the last
// pointer activity.
const controlsHideDelay = 3 * time.Second

// Controls is the slice of the playback controller the PiP window drives.
type Controls interface {
	TogglePause(ctx context.Context) error
}

// Coordinator manages the secondary window.
type Coordinator struct {
	mu     sync.Mutex
	bridge bridge.Bridge
	ctrl   Controls
	logger *slog.Logger

	showing bool
	paused  bool

	controlsVisible bool
	pointerOver     bool
	hideDelay       time.Duration
	hideTimer       *time.Timer

	storeSub *bridge.Subscription
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithHideDelay overrides the control-overlay fade delay.
func WithHideDelay(d time.Duration) Option {
	return func(c *Coordinator) { c.hideDelay = d }
}

// NewCoordinator creates a coordinator emitting window commands through the
// given bridge and routing playback toggles through ctrl.
func NewCoordinator(b bridge.Bridge, ctrl Controls, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		bridge:    b,
		ctrl:      ctrl,
		logger:    logger,
		hideDelay: controlsHideDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach mirrors the paused flag from the store. Only the flag is read;
// everything else in the state is none of the PiP window's business.
func (c *Coordinator) Attach(store *playback.Store) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storeSub.Cancel()
	c.storeSub = store.Subscribe(func(s playback.State) {
		c.mu.Lock()
		c.paused = s.Paused
		c.mu.Unlock()
	})
}

// Show opens (or focuses) the secondary window.
func (c *Coordinator) Show(ctx context.Context) error {
	c.mu.Lock()
	c.showing = true
	c.mu.Unlock()
	return c.bridge.Emit(ctx, bridge.TogglePipWindow{Show: true})
}

// Hide closes the secondary window and stops the overlay timer.
func (c *Coordinator) Hide(ctx context.Context) error {
	c.mu.Lock()
	c.showing = false
	c.controlsVisible = false
	c.stopTimerLocked()
	c.mu.Unlock()
	return c.bridge.Emit(ctx, bridge.TogglePipWindow{Show: false})
}

// IsShowing reports whether the secondary window is up.
func (c *Coordinator) IsShowing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.showing
}

// Paused returns the mirrored pause flag for rendering the toggle button.
func (c *Coordinator) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// TogglePause forwards the window's play/pause button press to the playback
// controller. The PiP window never writes playback state itself.
func (c *Coordinator) TogglePause(ctx context.Context) error {
	return c.ctrl.TogglePause(ctx)
}

// PointerActivity shows the control overlay and (re)arms the fade timer.
func (c *Coordinator) PointerActivity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.showing {
		return
	}
	c.controlsVisible = true
	c.armTimerLocked()
}

// PointerEnterControls pins the overlay while the pointer is over it.
func (c *Coordinator) PointerEnterControls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pointerOver = true
	c.stopTimerLocked()
}

// PointerLeaveControls unpins the overlay and restarts the fade timer.
func (c *Coordinator) PointerLeaveControls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pointerOver = false
	if c.controlsVisible {
		c.armTimerLocked()
	}
}

// ControlsVisible reports whether the overlay is currently shown.
func (c *Coordinator) ControlsVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controlsVisible
}

// Close detaches the store mirror and cancels timers.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
	c.storeSub.Cancel()
	c.storeSub = nil
}

func (c *Coordinator) armTimerLocked() {
	c.stopTimerLocked()
	c.hideTimer = time.AfterFunc(c.hideDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.pointerOver {
			c.controlsVisible = false
		}
	})
}

func (c *Coordinator) stopTimerLocked() {
	if c.hideTimer != nil {
		c.hideTimer.Stop()
		c.hideTimer = nil
	}
}
