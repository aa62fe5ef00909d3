package report

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvasir-media/fincast/internal/playback"
)

type fakeAPI struct {
	mu        sync.Mutex
	starts    []string
	progress  []int64
	stops     []string
	stopTicks []int64
	err       error
}

func (f *fakeAPI) ReportPlaybackStart(_ context.Context, itemID, sessionID, _ string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, sessionID)
	return f.err
}

func (f *fakeAPI) ReportPlaybackProgress(_ context.Context, _, _ string, ticks int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, ticks)
	return f.err
}

func (f *fakeAPI) ReportPlaybackStopped(_ context.Context, _, sessionID string, ticks int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, sessionID)
	f.stopTicks = append(f.stopTicks, ticks)
	return f.err
}

func TestProgressThrottledByWallClock(t *testing.T) {
	api := &fakeAPI{}
	clock := time.Unix(1000, 0)
	r := NewReporter(api, nil, withNow(func() time.Time { return clock }))

	ctx := context.Background()
	session := playback.NewSession("item-1")
	r.Start(ctx, session, 100)

	// 50 bursting time events inside one second: only the first goes out.
	for i := 0; i < 50; i++ {
		r.Progress(ctx, session, float64(i)*0.02)
		clock = clock.Add(20 * time.Millisecond)
	}
	assert.Len(t, api.progress, 1)

	// Steady events across seven seconds clear the window at least twice.
	for i := 0; i < 7; i++ {
		clock = clock.Add(time.Second)
		r.Progress(ctx, session, float64(i))
	}
	assert.GreaterOrEqual(t, len(api.progress), 3)
}

func TestStartReportedOncePerSession(t *testing.T) {
	api := &fakeAPI{}
	r := NewReporter(api, nil)

	ctx := context.Background()
	session := playback.NewSession("item-1")
	r.Start(ctx, session, 100)
	r.Start(ctx, session, 100)
	r.Start(ctx, session, 100)

	assert.Equal(t, []string{session.ID}, api.starts)
}

func TestStopExactlyOncePerStartedSession(t *testing.T) {
	api := &fakeAPI{}
	r := NewReporter(api, nil)

	ctx := context.Background()
	session := playback.NewSession("item-1")
	r.Start(ctx, session, 100)

	// Natural end followed by teardown double stop: one report.
	r.Stop(ctx, session, 42.5)
	r.Stop(ctx, session, 0)

	require.Len(t, api.stops, 1)
	assert.Equal(t, session.ID, api.stops[0])
	assert.Equal(t, int64(425_000_000), api.stopTicks[0])
}

func TestStopWithoutStartIsSkipped(t *testing.T) {
	api := &fakeAPI{}
	r := NewReporter(api, nil)

	session := playback.NewSession("item-1")
	r.Stop(context.Background(), session, 12)

	assert.Empty(t, api.stops)
}

func TestProgressBeforeStartIsSkipped(t *testing.T) {
	api := &fakeAPI{}
	r := NewReporter(api, nil)

	session := playback.NewSession("item-1")
	r.Progress(context.Background(), session, 5)

	assert.Empty(t, api.progress)
}

func TestReportFailuresAreSwallowed(t *testing.T) {
	api := &fakeAPI{err: errors.New("network down")}
	r := NewReporter(api, nil)

	ctx := context.Background()
	session := playback.NewSession("item-1")
	assert.NotPanics(t, func() {
		r.Start(ctx, session, 100)
		r.Progress(ctx, session, 1)
		r.Stop(ctx, session, 2)
	})
	assert.Len(t, api.starts, 1)
	assert.Len(t, api.stops, 1)
}

func TestNilSessionIsIgnored(t *testing.T) {
	api := &fakeAPI{}
	r := NewReporter(api, nil)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		r.Start(ctx, nil, 0)
		r.Progress(ctx, nil, 0)
		r.Stop(ctx, nil, 0)
	})
	assert.Empty(t, api.starts)
}
