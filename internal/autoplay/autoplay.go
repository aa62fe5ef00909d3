// Package autoplay decides when the next-episode prompt appears and when
// playback auto-advances. It holds a read-only view of playback state and
// never mutates it.
package autoplay

import (
	"log/slog"
	"sync"

	"github.com/kvasir-media/fincast/internal/bridge"
	"github.com/kvasir-media/fincast/internal/jellyfin"
	"github.com/kvasir-media/fincast/internal/playback"
)

// Watched fractions at which the prompt appears and auto-advance fires.
const (
	promptThreshold  = 0.80
	advanceThreshold = 0.95
)

// Decision is the coordinator's current output, recomputed on every observed
// state change.
type Decision struct {
	Visible    bool
	Collapsed  bool
	Cancelled  bool
	NextItemID string
}

// Coordinator watches playback progress against the fetched next-episode
// record. Cancellation is sticky for the lifetime of the current item and
// resets only when the item changes.
type Coordinator struct {
	mu     sync.Mutex
	logger *slog.Logger

	itemID  string
	episode bool

	next     *jellyfin.Item
	resolved bool

	visible   bool
	collapsed bool
	cancelled bool
	advanced  bool

	// promptReached latches the 80% threshold so a natural end-of-file can
	// advance even if the very last time event never crossed 95%.
	promptReached bool

	onAdvance func(next *jellyfin.Item)
}

// NewCoordinator creates a coordinator. onAdvance is invoked, without the
// coordinator lock held, when playback should move to the next episode.
func NewCoordinator(logger *slog.Logger, onAdvance func(next *jellyfin.Item)) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		logger:    logger,
		onAdvance: onAdvance,
	}
}

// SetItem switches the coordinator to a new active item, clearing all
// per-item state including the sticky cancellation.
func (c *Coordinator) SetItem(item *jellyfin.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.itemID = ""
	c.episode = false
	if item != nil {
		c.itemID = item.ID
		c.episode = item.IsEpisode()
	}
	c.next = nil
	c.resolved = false
	c.visible = false
	c.collapsed = false
	c.cancelled = false
	c.advanced = false
	c.promptReached = false
}

// SetNextUp records the resolved next-episode query. A nil item means the
// series has no next episode; no prompt is ever shown for this item then.
func (c *Coordinator) SetNextUp(itemID string, next *jellyfin.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if itemID != c.itemID {
		// Stale resolution from a previous item.
		return
	}
	c.next = next
	c.resolved = true
	c.reevaluateLocked(0, false)
}

// Observe feeds a playback state snapshot into the decision. Call it from a
// store subscription.
func (c *Coordinator) Observe(s playback.State) {
	c.mu.Lock()
	progress := s.Progress()
	advance := c.reevaluateLocked(progress, false)
	c.mu.Unlock()

	if advance != nil {
		c.fire(advance)
	}
}

// HandleEndOfFile reacts to the native end-of-file event. Only a natural end
// advances, and only when the prompt threshold had already been reached.
func (c *Coordinator) HandleEndOfFile(reason int) {
	if reason != bridge.EOFNatural {
		return
	}

	c.mu.Lock()
	advance := c.reevaluateLocked(0, true)
	c.mu.Unlock()

	if advance != nil {
		c.fire(advance)
	}
}

// Cancel dismisses the prompt for the rest of the current item.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
	c.visible = false
	c.collapsed = false
}

// Collapse minimizes the prompt without dismissing it.
func (c *Coordinator) Collapse() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.visible {
		c.collapsed = true
	}
}

// Expand restores a collapsed prompt.
func (c *Coordinator) Expand() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collapsed = false
}

// Decision returns the current prompt state.
func (c *Coordinator) Decision() Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := Decision{
		Visible:   c.visible,
		Collapsed: c.collapsed,
		Cancelled: c.cancelled,
	}
	if c.next != nil {
		d.NextItemID = c.next.ID
	}
	return d
}

// reevaluateLocked recomputes visibility and decides whether to auto-advance.
// It returns the item to advance to, or nil. Must be called with c.mu held.
func (c *Coordinator) reevaluateLocked(progress float64, endOfFile bool) *jellyfin.Item {
	if progress >= promptThreshold {
		c.promptReached = true
	}

	// The prompt requires: an episode, a resolved and present next-up
	// record, the threshold crossed, and no sticky cancellation. While the
	// next-up query is still pending the prompt waits instead of flashing
	// an empty state.
	eligible := c.episode && c.resolved && c.next != nil && !c.cancelled && !c.advanced
	c.visible = eligible && c.promptReached
	if !c.visible {
		c.collapsed = false
	}

	if !eligible {
		return nil
	}
	if progress >= advanceThreshold || (endOfFile && c.promptReached) {
		c.advanced = true
		c.visible = false
		c.collapsed = false
		return c.next
	}
	return nil
}

func (c *Coordinator) fire(next *jellyfin.Item) {
	c.logger.Info("advancing to next episode", "next", next.ID)
	if c.onAdvance != nil {
		c.onAdvance(next)
	}
}
