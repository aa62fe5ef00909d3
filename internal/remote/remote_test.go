package remote

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvasir-media/fincast/internal/jellyfin"
)

type fakeControls struct {
	mu    sync.Mutex
	calls []string
	seek  float64
	vol   int
}

func (f *fakeControls) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeControls) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeControls) TogglePause(context.Context) error { f.record("toggle"); return nil }
func (f *fakeControls) Pause(context.Context) error       { f.record("pause"); return nil }
func (f *fakeControls) Resume(context.Context) error      { f.record("resume"); return nil }
func (f *fakeControls) ToggleMute(context.Context) error  { f.record("mute"); return nil }
func (f *fakeControls) Unload(context.Context)            { f.record("unload") }

func (f *fakeControls) SeekTo(_ context.Context, seconds float64) error {
	f.mu.Lock()
	f.seek = seconds
	f.mu.Unlock()
	f.record("seek")
	return nil
}

func (f *fakeControls) SetVolume(_ context.Context, percentage int) error {
	f.mu.Lock()
	f.vol = percentage
	f.mu.Unlock()
	f.record("volume")
	return nil
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// startServer runs a websocket endpoint that pushes the given frames and then
// keeps the connection open, forwarding anything the client writes to sent.
func startServer(t *testing.T, frames []message, sent chan<- message) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for _, frame := range frames {
			require.NoError(t, conn.WriteJSON(frame))
		}
		for {
			var msg message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if sent != nil {
				sent <- msg
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newSession(t *testing.T, srv *httptest.Server, controls Controls) *Session {
	t.Helper()
	client := jellyfin.NewClient(jellyfin.ClientConfig{
		BaseURL:  srv.URL,
		Token:    "tok",
		UserID:   "user",
		DeviceID: "device",
	}, slog.New(slog.DiscardHandler))
	return New(client, controls, slog.New(slog.DiscardHandler))
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestPlaystateCommands(t *testing.T) {
	controls := &fakeControls{}
	frames := []message{
		{MessageType: "Playstate", Data: raw(t, playstateData{Command: "Pause"})},
		{MessageType: "Playstate", Data: raw(t, playstateData{Command: "Unpause"})},
		{MessageType: "Playstate", Data: raw(t, playstateData{Command: "PlayPause"})},
		{MessageType: "Playstate", Data: raw(t, playstateData{Command: "Seek", SeekPositionTicks: 300_000_000})},
		{MessageType: "Playstate", Data: raw(t, playstateData{Command: "Stop"})},
	}
	srv := startServer(t, frames, nil)
	s := newSession(t, srv, controls)
	defer s.Close()

	go func() { _ = s.Run(context.Background()) }()

	assert.Eventually(t, func() bool {
		return len(controls.recorded()) == 5
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"pause", "resume", "toggle", "seek", "unload"}, controls.recorded())
	assert.Equal(t, 30.0, controls.seek)
}

func TestGeneralCommands(t *testing.T) {
	controls := &fakeControls{}
	frames := []message{
		{MessageType: "GeneralCommand", Data: raw(t, generalCommandData{
			Name:      "SetVolume",
			Arguments: map[string]string{"Volume": "55"},
		})},
		{MessageType: "GeneralCommand", Data: raw(t, generalCommandData{Name: "ToggleMute"})},
	}
	srv := startServer(t, frames, nil)
	s := newSession(t, srv, controls)
	defer s.Close()

	go func() { _ = s.Run(context.Background()) }()

	assert.Eventually(t, func() bool {
		return len(controls.recorded()) == 2
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"volume", "mute"}, controls.recorded())
	assert.Equal(t, 55, controls.vol)
}

func TestForceKeepAliveIsAnswered(t *testing.T) {
	sent := make(chan message, 8)
	frames := []message{
		{MessageType: "ForceKeepAlive", Data: raw(t, 60)},
	}
	srv := startServer(t, frames, sent)
	s := newSession(t, srv, &fakeControls{})
	defer s.Close()

	go func() { _ = s.Run(context.Background()) }()

	select {
	case msg := <-sent:
		assert.Equal(t, "KeepAlive", msg.MessageType)
	case <-time.After(time.Second):
		t.Fatal("no keepalive reply")
	}
}

func TestUnknownMessagesIgnored(t *testing.T) {
	controls := &fakeControls{}
	frames := []message{
		{MessageType: "UserDataChanged"},
		{MessageType: "Playstate", Data: raw(t, playstateData{Command: "NextTrack"})},
		{MessageType: "Playstate", Data: raw(t, playstateData{Command: "Pause"})},
	}
	srv := startServer(t, frames, nil)
	s := newSession(t, srv, controls)
	defer s.Close()

	go func() { _ = s.Run(context.Background()) }()

	assert.Eventually(t, func() bool {
		return len(controls.recorded()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"pause"}, controls.recorded())
}

func TestConcurrentSendsAreSerialized(t *testing.T) {
	sent := make(chan message, 256)
	srv := startServer(t, nil, sent)
	s := newSession(t, srv, &fakeControls{})
	defer s.Close()

	go func() { _ = s.Run(context.Background()) }()

	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.conn != nil
	}, time.Second, 10*time.Millisecond)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				s.send(message{MessageType: "KeepAlive"})
			}
		}()
	}
	wg.Wait()

	received := 0
	deadline := time.After(time.Second)
	for received < 160 {
		select {
		case <-sent:
			received++
		case <-deadline:
			t.Fatalf("received %d of 160 frames", received)
		}
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	srv := startServer(t, nil, nil)
	s := newSession(t, srv, &fakeControls{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
