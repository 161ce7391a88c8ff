// Package player bridges a media playback element into the bubbletea
// update loop.
//
// The Adapter subscribes to the element's position ticks when attached
// and drops the subscription on Detach. Position updates from a previous
// attachment are discarded by generation.
package player

import (
	"errors"
	"io"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// Element is a playback element such as an mpv process.
type Element interface {
	Seek(seconds float64) error
	Play() error
	Pause() error
	// NextTick blocks until the next position update.
	NextTick() (float64, error)
	Close() error
}

// PositionMsg reports a playback position.
type PositionMsg struct {
	id      int64
	gen     int
	Seconds float64
}

// DetachedMsg reports that the element went away on its own.
type DetachedMsg struct {
	id  int64
	gen int
	Err error
}

// SeekDoneMsg reports the outcome of a seek.
type SeekDoneMsg struct {
	id      int64
	gen     int
	Seconds float64
	Err     error
}

// PlayStateMsg reports the outcome of a pause or resume.
type PlayStateMsg struct {
	id      int64
	gen     int
	Playing bool
	Err     error
}

var lastID atomic.Int64

// Adapter owns at most one attached element.
type Adapter struct {
	id       int64
	gen      int
	elem     Element
	position float64
	playing  bool
	logger   *zap.Logger
}

// NewAdapter returns a detached adapter.
func NewAdapter(logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{id: lastID.Add(1), logger: logger}
}

// Attach subscribes to e, replacing any previous element, and returns the
// command that waits for the first tick.
func (a *Adapter) Attach(e Element) tea.Cmd {
	closeOld := a.Detach()
	a.gen++
	a.elem = e
	a.position = 0
	a.playing = false
	if closeOld == nil {
		return a.listen()
	}
	return tea.Batch(closeOld, a.listen())
}

// Detach unsubscribes immediately and returns the command that closes the
// element; closing may block on the element, so it never runs in Update.
// Returns nil when already detached.
func (a *Adapter) Detach() tea.Cmd {
	if a.elem == nil {
		return nil
	}
	e, logger := a.elem, a.logger
	a.elem = nil
	a.gen++
	a.playing = false
	return func() tea.Msg {
		if err := e.Close(); err != nil {
			logger.Debug("close player", zap.Error(err))
		}
		return nil
	}
}

// Attached reports whether an element is attached.
func (a *Adapter) Attached() bool { return a.elem != nil }

// Position returns the last reported or sought position.
func (a *Adapter) Position() float64 { return a.position }

// Playing reports whether playback is running, as last set by Seek or
// TogglePlay.
func (a *Adapter) Playing() bool { return a.playing }

// Seek sets the position and resumes playback. The element is driven by the
// returned command; the adapter state changes immediately.
func (a *Adapter) Seek(seconds float64) tea.Cmd {
	if a.elem == nil {
		return nil
	}
	a.position = seconds
	a.playing = true
	id, gen, e := a.id, a.gen, a.elem
	return func() tea.Msg {
		err := e.Seek(seconds)
		if err == nil {
			err = e.Play()
		}
		return SeekDoneMsg{id: id, gen: gen, Seconds: seconds, Err: err}
	}
}

// TogglePlay pauses a playing element and resumes a paused one. The
// state flips immediately and reverts if the element refuses.
func (a *Adapter) TogglePlay() tea.Cmd {
	if a.elem == nil {
		return nil
	}
	a.playing = !a.playing
	id, gen, e, playing := a.id, a.gen, a.elem, a.playing
	return func() tea.Msg {
		var err error
		if playing {
			err = e.Play()
		} else {
			err = e.Pause()
		}
		return PlayStateMsg{id: id, gen: gen, Playing: playing, Err: err}
	}
}

// Update applies the adapter's own messages and re-arms the subscription.
func (a *Adapter) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case PositionMsg:
		if msg.id != a.id || msg.gen != a.gen || a.elem == nil {
			return nil
		}
		a.position = msg.Seconds
		return a.listen()

	case DetachedMsg:
		if msg.id != a.id || msg.gen != a.gen || a.elem == nil {
			return nil
		}
		if msg.Err != nil && !errors.Is(msg.Err, io.EOF) {
			a.logger.Warn("player detached", zap.Error(msg.Err))
		}
		return a.Detach()

	case SeekDoneMsg:
		if msg.id != a.id || msg.gen != a.gen {
			return nil
		}
		if msg.Err != nil {
			a.playing = false
			a.logger.Warn("seek failed", zap.Float64("seconds", msg.Seconds), zap.Error(msg.Err))
		}

	case PlayStateMsg:
		if msg.id != a.id || msg.gen != a.gen || a.elem == nil {
			return nil
		}
		if msg.Err != nil {
			a.playing = !msg.Playing
			a.logger.Warn("toggle playback failed", zap.Bool("playing", msg.Playing), zap.Error(msg.Err))
		}
	}
	return nil
}

func (a *Adapter) listen() tea.Cmd {
	id, gen, e := a.id, a.gen, a.elem
	return func() tea.Msg {
		pos, err := e.NextTick()
		if err != nil {
			return DetachedMsg{id: id, gen: gen, Err: err}
		}
		return PositionMsg{id: id, gen: gen, Seconds: pos}
	}
}
