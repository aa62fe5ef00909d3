// Package mpv runs an mpv process and exposes it as a playback bridge. mpv
// owns the video window; we talk to it over its JSON IPC endpoint and
// synthesize bridge events by polling the properties we mirror.
package mpv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/diniamo/gopv"

	"github.com/kvasir-media/fincast/internal/bridge"
)

// ErrNotConnected is returned by Emit before Start has established the IPC
// channel, or after the process died.
var ErrNotConnected = errors.New("mpv: not connected")

const defaultPollInterval = 200 * time.Millisecond

// Options configures the spawned mpv process.
type Options struct {
	// LoadUserConfig lets mpv read the user's own mpv.conf. Off by default
	// because user keybindings and scripts fight the remote control surface.
	LoadUserConfig bool

	// Fullscreen starts the window in fullscreen mode.
	Fullscreen bool

	// Debug keeps mpv's log output at its default verbosity.
	Debug bool

	// ExtraArgs are appended verbatim to the mpv command line.
	ExtraArgs []string

	// PollInterval overrides how often properties are sampled.
	PollInterval time.Duration
}

// Player drives one mpv process. It satisfies bridge.Bridge.
type Player struct {
	mu sync.Mutex

	hub      *bridge.Hub
	client   *gopv.Client
	cmd      *exec.Cmd
	ipc      *IPCConfig
	platform Platform
	opts     Options
	log      *slog.Logger

	prev    snapshot
	closing bool

	cancel context.CancelFunc
}

// New verifies mpv is installed and prepares a player. The process is not
// started until Start.
func New(opts Options, log *slog.Logger) (*Player, error) {
	platform := DetectPlatform()
	if _, err := FindExecutable(platform); err != nil {
		return nil, err
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Player{
		hub:      bridge.NewHub(),
		platform: platform,
		opts:     opts,
		log:      log,
	}, nil
}

// Start spawns mpv in idle mode, waits for its IPC endpoint, connects and
// begins event synthesis. Files are loaded later through Emit.
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return errors.New("mpv: already started")
	}

	ipc, err := NewIPCConfig(p.platform)
	if err != nil {
		return fmt.Errorf("mpv: ipc config: %w", err)
	}
	p.ipc = ipc

	exe, err := FindExecutable(p.platform)
	if err != nil {
		return err
	}

	cmd := exec.Command(exe, p.buildArgs()...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	detachProcess(cmd)

	if err := cmd.Start(); err != nil {
		p.cleanupIPC()
		return fmt.Errorf("mpv: start process: %w", err)
	}
	p.cmd = cmd

	waitCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := p.waitForIPC(waitCtx); err != nil {
		_ = cmd.Process.Kill()
		p.cleanupIPC()
		p.cmd = nil
		return fmt.Errorf("mpv: waiting for ipc at %s: %w", ipc.Address, err)
	}

	client, err := gopv.Connect(ipc.ConnectionString(), func(err error) {
		p.log.Warn("mpv ipc error", "error", err)
	})
	if err != nil {
		_ = cmd.Process.Kill()
		p.cleanupIPC()
		p.cmd = nil
		return fmt.Errorf("mpv: connect ipc at %s: %w", ipc.Address, err)
	}
	p.client = client
	p.prev = snapshot{volume: 100, speed: 1.0}

	pollCtx, pollCancel := context.WithCancel(context.Background())
	p.cancel = pollCancel
	go p.poll(pollCtx)
	go p.monitorProcess(cmd)

	p.log.Info("mpv started", "pid", cmd.Process.Pid, "ipc", ipc.Address)
	return nil
}

func (p *Player) buildArgs() []string {
	args := []string{
		p.ipc.IPCArgument(),
		"--idle=yes",
		"--keep-open=yes",
		"--force-window=yes",
		"--no-terminal",
	}
	if !p.opts.LoadUserConfig {
		args = append(args, "--no-config")
	}
	if !p.opts.Debug {
		args = append(args, "--msg-level=all=warn")
	}
	if p.opts.Fullscreen {
		args = append(args, "--fullscreen")
	}
	return append(args, p.opts.ExtraArgs...)
}

// waitForIPC polls until the endpoint accepts connections. Unix sockets are
// checked through the filesystem, named pipes by dialing them.
func (p *Player) waitForIPC(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	// Give mpv a moment before the first probe.
	time.Sleep(300 * time.Millisecond)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if p.ipc.IsSocket {
				if _, err := os.Stat(p.ipc.Address); err == nil {
					time.Sleep(200 * time.Millisecond)
					return nil
				}
			} else if pipeReady(p.ipc.Address) {
				return nil
			}
		}
	}
}

// Emit translates the command and sends it over IPC. Fire-and-forget: the
// command's effect arrives back as synthesized events, never as a reply.
func (p *Player) Emit(ctx context.Context, cmd bridge.Command) error {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	if client == nil {
		return ErrNotConnected
	}

	reqs, err := requests(cmd)
	if err != nil {
		return err
	}
	for _, req := range reqs {
		if _, err := client.Request(req...); err != nil {
			return fmt.Errorf("mpv: %s: %w", cmd.Command(), err)
		}
	}
	return nil
}

// Listen registers an event handler on the hub.
func (p *Player) Listen(name bridge.EventName, fn bridge.Handler) *bridge.Subscription {
	return p.hub.Listen(name, fn)
}

// poll samples the mirrored properties and publishes the diff as events.
func (p *Player) poll(ctx context.Context) {
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			client := p.client
			prev := p.prev
			p.mu.Unlock()
			if client == nil {
				return
			}

			cur, ok := p.observe(client)
			if !ok {
				continue
			}

			events := diff(prev, cur)
			p.mu.Lock()
			p.prev = cur
			p.mu.Unlock()

			for _, ev := range events {
				p.hub.Publish(ev)
				if _, isLoad := ev.(bridge.FileLoaded); isLoad {
					p.publishTracks(client)
				}
			}
		}
	}
}

// observe reads one snapshot. A missing time-pos or duration means no file
// is loaded; too many request failures means the connection is dead.
func (p *Player) observe(client *gopv.Client) (snapshot, bool) {
	var cur snapshot
	var failures int

	timePos, ok := requestFloat(client, "time-pos", &failures)
	duration, ok2 := requestFloat(client, "duration", &failures)
	cur.loaded = ok && ok2 && duration > 0
	cur.timePos = timePos
	cur.duration = duration

	if paused, ok := requestBool(client, "pause", &failures); ok {
		cur.paused = paused
	}
	if eof, ok := requestBool(client, "eof-reached", &failures); ok {
		cur.eof = eof
	}
	if muted, ok := requestBool(client, "mute", &failures); ok {
		cur.muted = muted
	}
	if volume, ok := requestFloat(client, "volume", &failures); ok {
		cur.volume = int(volume)
	} else {
		cur.volume = 100
	}
	if speed, ok := requestFloat(client, "speed", &failures); ok {
		cur.speed = speed
	} else {
		cur.speed = 1.0
	}
	if cache, ok := requestFloat(client, "demuxer-cache-time", &failures); ok {
		cur.cacheTime = cache
	}

	if failures >= 5 {
		p.log.Warn("mpv ipc looks dead", "failed_properties", failures)
		return snapshot{}, false
	}
	return cur, true
}

func (p *Player) publishTracks(client *gopv.Client) {
	raw, err := client.Request("get_property", "track-list")
	if err != nil {
		p.log.Warn("mpv track-list request failed", "error", err)
		return
	}
	audio, subs := parseTracks(raw)
	p.hub.Publish(bridge.AudioTracksChanged{Tracks: audio})
	p.hub.Publish(bridge.SubtitleTracksChanged{Tracks: subs})
}

// monitorProcess waits for mpv to exit. An exit while a file is loaded comes
// from outside (the user closed the window, or mpv crashed) and is surfaced
// as an end-of-file so playback cleanup still runs.
func (p *Player) monitorProcess(cmd *exec.Cmd) {
	err := cmd.Wait()

	p.mu.Lock()
	closing := p.closing
	wasLoaded := p.prev.loaded
	p.client = nil
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.cleanupIPC()
	p.mu.Unlock()

	if closing {
		return
	}

	reason := bridge.EOFStopped
	if err != nil {
		reason = bridge.EOFError
		p.log.Warn("mpv exited unexpectedly", "error", err)
	} else {
		p.log.Info("mpv exited")
	}
	if wasLoaded {
		p.hub.Publish(bridge.EndOfFile{Reason: reason})
	}
}

// Close asks mpv to quit, kills it if it does not, and shuts down the hub.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return nil
	}
	p.closing = true
	client := p.client
	cmd := p.cmd
	p.client = nil
	p.cmd = nil
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()

	if client != nil {
		// Let mpv exit on its own; gopv closes the connection when the
		// process side goes away, so we never Close the client ourselves.
		done := make(chan struct{})
		go func() {
			_, _ = client.Request("quit")
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(500 * time.Millisecond):
		}
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}

	p.mu.Lock()
	p.cleanupIPC()
	p.mu.Unlock()

	p.hub.Close()
	return nil
}

func (p *Player) cleanupIPC() {
	if p.ipc != nil && p.ipc.IsSocket {
		_ = os.Remove(p.ipc.Address)
	}
	p.ipc = nil
}

func requestFloat(client *gopv.Client, property string, failures *int) (float64, bool) {
	result, err := client.Request("get_property", property)
	if err != nil {
		*failures++
		return 0, false
	}
	val, ok := result.(float64)
	return val, ok
}

func requestBool(client *gopv.Client, property string, failures *int) (bool, bool) {
	result, err := client.Request("get_property", property)
	if err != nil {
		*failures++
		return false, false
	}
	val, ok := result.(bool)
	return val, ok
}
