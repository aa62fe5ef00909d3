// Package remote keeps a websocket session with the Jellyfin server so other
// Jellyfin clients (the web UI, phone apps) can remote-control this player.
// The server pushes Playstate and GeneralCommand messages; we translate them
// into controller calls and answer the server's keepalive protocol.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kvasir-media/fincast/internal/jellyfin"
)

// Controls is the subset of playback control the server may drive.
type Controls interface {
	TogglePause(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	SeekTo(ctx context.Context, seconds float64) error
	SetVolume(ctx context.Context, percentage int) error
	ToggleMute(ctx context.Context) error
	Unload(ctx context.Context)
}

// message is the envelope every Jellyfin websocket frame uses.
type message struct {
	MessageType string          `json:"MessageType"`
	Data        json.RawMessage `json:"Data,omitempty"`
}

type playstateData struct {
	Command           string `json:"Command"`
	SeekPositionTicks int64  `json:"SeekPositionTicks"`
}

type generalCommandData struct {
	Name      string            `json:"Name"`
	Arguments map[string]string `json:"Arguments"`
}

const defaultKeepAlive = 30 * time.Second

// Session is one remote-control websocket connection.
type Session struct {
	url      string
	controls Controls
	log      *slog.Logger

	mu        sync.Mutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	keepalive *time.Ticker
	closed    bool
	done      chan struct{}
}

// New prepares a session against the client's socket endpoint.
func New(client *jellyfin.Client, controls Controls, log *slog.Logger) *Session {
	return &Session{
		url:      client.SocketURL(),
		controls: controls,
		log:      log,
		done:     make(chan struct{}),
	}
}

// Run dials the server and processes messages until the context is cancelled
// or the connection drops. The caller decides whether to redial.
func (s *Session) Run(ctx context.Context) error {
	header := http.Header{}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("remote: dial %s: %w (status %d)", s.url, err, resp.StatusCode)
		}
		return fmt.Errorf("remote: dial %s: %w", s.url, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return nil
	}
	s.conn = conn
	s.mu.Unlock()

	s.log.Info("remote control connected", "url", s.url)
	s.startKeepAlive(defaultKeepAlive / 2)
	defer s.stopKeepAlive()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("remote: read: %w", err)
		}
		s.handle(ctx, msg)
	}
}

func (s *Session) handle(ctx context.Context, msg message) {
	switch msg.MessageType {
	case "ForceKeepAlive":
		// Data is the server's timeout in seconds; answer at half that.
		var seconds float64
		if err := json.Unmarshal(msg.Data, &seconds); err == nil && seconds > 0 {
			s.startKeepAlive(time.Duration(seconds/2) * time.Second)
		}
		s.send(message{MessageType: "KeepAlive"})

	case "KeepAlive":
		// Server acknowledged ours.

	case "Playstate":
		var data playstateData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			s.log.Warn("remote: bad playstate payload", "error", err)
			return
		}
		s.handlePlaystate(ctx, data)

	case "GeneralCommand":
		var data generalCommandData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			s.log.Warn("remote: bad general command payload", "error", err)
			return
		}
		s.handleGeneralCommand(ctx, data)

	default:
		s.log.Debug("remote: ignoring message", "type", msg.MessageType)
	}
}

func (s *Session) handlePlaystate(ctx context.Context, data playstateData) {
	var err error
	switch data.Command {
	case "PlayPause":
		err = s.controls.TogglePause(ctx)
	case "Pause":
		err = s.controls.Pause(ctx)
	case "Unpause":
		err = s.controls.Resume(ctx)
	case "Stop":
		s.controls.Unload(ctx)
	case "Seek":
		err = s.controls.SeekTo(ctx, jellyfin.SecondsFromTicks(data.SeekPositionTicks))
	default:
		s.log.Debug("remote: ignoring playstate command", "command", data.Command)
		return
	}
	if err != nil {
		s.log.Warn("remote: playstate command failed", "command", data.Command, "error", err)
	}
}

func (s *Session) handleGeneralCommand(ctx context.Context, data generalCommandData) {
	var err error
	switch data.Name {
	case "SetVolume":
		volume, convErr := strconv.Atoi(data.Arguments["Volume"])
		if convErr != nil {
			s.log.Warn("remote: bad volume argument", "value", data.Arguments["Volume"])
			return
		}
		err = s.controls.SetVolume(ctx, volume)
	case "Mute", "Unmute", "ToggleMute":
		err = s.controls.ToggleMute(ctx)
	default:
		s.log.Debug("remote: ignoring general command", "name", data.Name)
		return
	}
	if err != nil {
		s.log.Warn("remote: general command failed", "name", data.Name, "error", err)
	}
}

func (s *Session) startKeepAlive(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keepalive != nil {
		s.keepalive.Stop()
	}
	if interval <= 0 {
		interval = defaultKeepAlive / 2
	}
	s.keepalive = time.NewTicker(interval)
	ticker := s.keepalive
	go func() {
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.send(message{MessageType: "KeepAlive"})
			}
		}
	}()
}

func (s *Session) stopKeepAlive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keepalive != nil {
		s.keepalive.Stop()
		s.keepalive = nil
	}
}

// send serializes all outbound frames. The keepalive ticker and the read
// loop both write; the websocket allows only one writer at a time.
func (s *Session) send(msg message) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		s.log.Warn("remote: write failed", "type", msg.MessageType, "error", err)
	}
}

// Close tears the connection down. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	close(s.done)
	s.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
}
