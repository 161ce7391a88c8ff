package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const timePosObserver = 1

// quitTimeout bounds how long Close waits for mpv to answer quit and then
// to exit before the process is killed.
const quitTimeout = 500 * time.Millisecond

// LaunchOptions configures an mpv process.
type LaunchOptions struct {
	// Path of the mpv binary; "mpv" is resolved on PATH when empty.
	Path string
	// SocketDir holds the IPC socket; os.TempDir() when empty.
	SocketDir string
	// URL is the media to open, typically the document stream endpoint.
	URL string
	// Token is sent as a bearer Authorization header with every HTTP request.
	Token string
	// Video keeps the video output; audio documents run headless.
	Video bool
	// StartupTimeout bounds the wait for the IPC socket.
	StartupTimeout time.Duration
	Logger         *zap.Logger
}

// MPV is a playback element backed by an mpv process. It keeps two IPC
// connections: one for commands and one for position events.
type MPV struct {
	proc   *exec.Cmd
	exited chan struct{}
	socket string
	ctl    *Conn
	events *Conn
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// Args returns the mpv command line for opts, without the binary.
func Args(opts LaunchOptions, socket string) []string {
	args := []string{
		"--input-ipc-server=" + socket,
		"--no-terminal",
		"--pause",
		"--keep-open=yes",
		"--idle=no",
	}
	if !opts.Video {
		args = append(args, "--no-video", "--force-window=no")
	}
	if opts.Token != "" {
		args = append(args, "--http-header-fields=Authorization: Bearer "+opts.Token)
	}
	return append(args, "--", opts.URL)
}

// Launch starts mpv paused on opts.URL and connects to it.
func Launch(ctx context.Context, opts LaunchOptions) (*MPV, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bin := opts.Path
	if bin == "" {
		bin = "mpv"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("find mpv: %w", err)
	}
	dir := opts.SocketDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	socket := filepath.Join(dir, "docqa-mpv-"+uuid.NewString()+".sock")

	proc := exec.Command(path, Args(opts, socket)...)
	if err := proc.Start(); err != nil {
		return nil, fmt.Errorf("start mpv: %w", err)
	}
	logger.Info("mpv started", zap.Int("pid", proc.Process.Pid), zap.String("socket", socket))

	exited := make(chan struct{})
	go func() {
		_ = proc.Wait()
		close(exited)
	}()

	timeout := opts.StartupTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if err := waitForSocket(ctx, socket, exited, timeout); err != nil {
		_ = proc.Process.Kill()
		<-exited
		_ = os.Remove(socket)
		return nil, err
	}

	m, err := Connect(socket, logger)
	if err != nil {
		_ = proc.Process.Kill()
		<-exited
		_ = os.Remove(socket)
		return nil, err
	}
	m.proc = proc
	m.exited = exited
	return m, nil
}

// Connect attaches to an mpv already listening on socket and subscribes
// to position changes.
func Connect(socket string, logger *zap.Logger) (*MPV, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctl, err := Dial(socket)
	if err != nil {
		return nil, err
	}
	events, err := Dial(socket)
	if err != nil {
		ctl.Close()
		return nil, err
	}
	if _, err := events.SendCommand("observe_property", timePosObserver, "time-pos"); err != nil {
		ctl.Close()
		events.Close()
		return nil, fmt.Errorf("observe time-pos: %w", err)
	}
	return &MPV{socket: socket, ctl: ctl, events: events, logger: logger}, nil
}

func waitForSocket(ctx context.Context, socket string, exited <-chan struct{}, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()

	for {
		if _, err := os.Stat(socket); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-exited:
			return errors.New("mpv exited before opening its IPC socket")
		case <-deadline.C:
			return fmt.Errorf("mpv IPC socket not ready after %s", timeout)
		case <-poll.C:
		}
	}
}

// Seek moves playback to seconds.
func (m *MPV) Seek(seconds float64) error {
	_, err := m.ctl.SendCommand("set_property", "time-pos", seconds)
	return err
}

// Play resumes playback.
func (m *MPV) Play() error {
	_, err := m.ctl.SendCommand("set_property", "pause", false)
	return err
}

// Pause pauses playback.
func (m *MPV) Pause() error {
	_, err := m.ctl.SendCommand("set_property", "pause", true)
	return err
}

// NextTick blocks until mpv reports a new playback position. It returns
// io.EOF once mpv shuts down.
func (m *MPV) NextTick() (float64, error) {
	for {
		ev, err := m.events.ReadEvent()
		if err != nil {
			if errors.Is(err, ErrConnClosed) {
				return 0, io.EOF
			}
			return 0, err
		}
		switch ev.Event {
		case "shutdown":
			return 0, io.EOF
		case "property-change":
			if ev.ID != timePosObserver || len(ev.Data) == 0 {
				continue
			}
			var pos *float64
			if err := json.Unmarshal(ev.Data, &pos); err != nil || pos == nil {
				continue
			}
			return *pos, nil
		}
	}
}

// Close quits mpv and releases the socket. An unresponsive mpv is killed,
// so Close returns within a bounded time. It is safe to call more than once.
func (m *MPV) Close() error {
	m.closeOnce.Do(func() {
		// Also releases a command stuck waiting for its response.
		_ = m.ctl.SetDeadline(time.Now().Add(quitTimeout))
		if _, err := m.ctl.SendCommand("quit"); err != nil {
			m.logger.Debug("mpv quit", zap.Error(err))
		}
		m.ctl.Close()
		m.events.Close()

		if m.proc != nil {
			select {
			case <-m.exited:
			case <-time.After(quitTimeout):
				m.logger.Warn("mpv did not quit, killing", zap.Int("pid", m.proc.Process.Pid))
				m.closeErr = m.proc.Process.Kill()
				<-m.exited
			}
			_ = os.Remove(m.socket)
		}
	})
	return m.closeErr
}
