package pip

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvasir-media/fincast/internal/bridge"
	"github.com/kvasir-media/fincast/internal/playback"
)

type recordingBridge struct {
	mu       sync.Mutex
	commands []bridge.Command
}

func (r *recordingBridge) Emit(_ context.Context, cmd bridge.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
	return nil
}

func (r *recordingBridge) Listen(bridge.EventName, bridge.Handler) *bridge.Subscription {
	return bridge.NewSubscription(func() {})
}

func (r *recordingBridge) Close() error { return nil }

func (r *recordingBridge) sent() []bridge.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bridge.Command(nil), r.commands...)
}

type toggleRecorder struct {
	mu      sync.Mutex
	toggles int
}

func (tr *toggleRecorder) TogglePause(context.Context) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.toggles++
	return nil
}

func TestShowHideEmitWindowCommands(t *testing.T) {
	rb := &recordingBridge{}
	c := NewCoordinator(rb, &toggleRecorder{}, nil)
	ctx := context.Background()

	require.NoError(t, c.Show(ctx))
	assert.True(t, c.IsShowing())

	require.NoError(t, c.Hide(ctx))
	assert.False(t, c.IsShowing())

	cmds := rb.sent()
	require.Len(t, cmds, 2)
	assert.True(t, cmds[0].(bridge.TogglePipWindow).Show)
	assert.False(t, cmds[1].(bridge.TogglePipWindow).Show)
}

func TestMirrorsPausedFlagOnly(t *testing.T) {
	rb := &recordingBridge{}
	store := playback.NewStore()
	c := NewCoordinator(rb, &toggleRecorder{}, nil)
	c.Attach(store)
	defer c.Close()

	store.Update(func(s *playback.State) { s.Paused = true })
	assert.True(t, c.Paused())

	store.Update(func(s *playback.State) { s.Paused = false })
	assert.False(t, c.Paused())
}

func TestTogglePauseGoesThroughController(t *testing.T) {
	rb := &recordingBridge{}
	tr := &toggleRecorder{}
	c := NewCoordinator(rb, tr, nil)

	require.NoError(t, c.TogglePause(context.Background()))
	assert.Equal(t, 1, tr.toggles)
	// No playback command goes out through the bridge directly.
	assert.Empty(t, rb.sent())
}

func TestControlsFadeAfterInactivity(t *testing.T) {
	rb := &recordingBridge{}
	c := NewCoordinator(rb, &toggleRecorder{}, nil, WithHideDelay(40*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, c.Show(ctx))
	c.PointerActivity()
	assert.True(t, c.ControlsVisible())

	assert.Eventually(t, func() bool { return !c.ControlsVisible() },
		time.Second, 10*time.Millisecond)
}

func TestControlsStayWhilePointerOver(t *testing.T) {
	rb := &recordingBridge{}
	c := NewCoordinator(rb, &toggleRecorder{}, nil, WithHideDelay(40*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, c.Show(ctx))
	c.PointerActivity()
	c.PointerEnterControls()

	time.Sleep(120 * time.Millisecond)
	assert.True(t, c.ControlsVisible(), "overlay must not fade under the pointer")

	c.PointerLeaveControls()
	assert.Eventually(t, func() bool { return !c.ControlsVisible() },
		time.Second, 10*time.Millisecond)
}

func TestPointerActivityIgnoredWhenHidden(t *testing.T) {
	rb := &recordingBridge{}
	c := NewCoordinator(rb, &toggleRecorder{}, nil)

	c.PointerActivity()
	assert.False(t, c.ControlsVisible())
}
