// Package poller refreshes the document collection on a fixed interval.
//
// A Poller is driven by the bubbletea update loop: Start and Update return
// commands, and the results come back as messages. At most one list request
// is outstanding at a time; a tick that finds one in flight is skipped.
package poller

import (
	"context"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jwulff/docqa/internal/api"
)

// DefaultInterval is the refresh period used when Start is given zero.
const DefaultInterval = 5 * time.Second

// FetchFunc returns the full document collection.
type FetchFunc func(ctx context.Context) ([]api.Document, error)

var lastID atomic.Int64

// TickMsg fires once per interval.
type TickMsg struct {
	id  int64
	gen int
}

// ResultMsg carries the outcome of one list request.
type ResultMsg struct {
	id   int64
	gen  int
	Docs []api.Document
	Err  error
}

// Poller owns the dashboard's copy of the document collection.
type Poller struct {
	id       int64
	gen      int
	interval time.Duration
	fetch    FetchFunc
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	running  bool
	inFlight bool
	docs     []api.Document
	loaded   bool
	lastErr  error

	requests int
	skipped  int
}

// New creates a stopped poller.
func New(fetch FetchFunc, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		id:     lastID.Add(1),
		fetch:  fetch,
		logger: logger,
	}
}

// Start begins polling: one fetch immediately, then one per interval.
// Starting a running poller restarts it.
func (p *Poller) Start(interval time.Duration) tea.Cmd {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p.Stop()
	p.interval = interval
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return tea.Batch(p.request(), p.tick())
}

// Stop cancels future ticks and discards any outstanding response.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.gen++
	p.running = false
	p.inFlight = false
}

// Running reports whether the poller is started.
func (p *Poller) Running() bool { return p.running }

// Refresh issues a fetch now unless one is already outstanding.
func (p *Poller) Refresh() tea.Cmd {
	if !p.running || p.inFlight {
		return nil
	}
	return p.request()
}

// Update handles the poller's own messages and ignores everything else,
// including messages from a previous generation.
func (p *Poller) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case TickMsg:
		if !p.current(msg.id, msg.gen) || !p.running {
			return nil
		}
		if p.inFlight {
			p.skipped++
			p.logger.Debug("poll skipped, request outstanding", zap.Int("skipped", p.skipped))
			return p.tick()
		}
		return tea.Batch(p.request(), p.tick())

	case ResultMsg:
		if !p.current(msg.id, msg.gen) {
			return nil
		}
		p.inFlight = false
		if msg.Err != nil {
			p.lastErr = msg.Err
			p.logger.Warn("list documents failed", zap.Error(msg.Err))
			return nil
		}
		p.lastErr = nil
		p.docs = msg.Docs
		p.loaded = true
	}
	return nil
}

// Documents returns the latest collection. The slice must not be modified.
func (p *Poller) Documents() []api.Document { return p.docs }

// Loaded reports whether at least one fetch has succeeded.
func (p *Poller) Loaded() bool { return p.loaded }

// Err returns the error of the latest fetch, or nil.
func (p *Poller) Err() error { return p.lastErr }

// InFlight reports whether a list request is outstanding.
func (p *Poller) InFlight() bool { return p.inFlight }

// Requests returns the number of list requests issued.
func (p *Poller) Requests() int { return p.requests }

// Skipped returns the number of ticks skipped while a request was in flight.
func (p *Poller) Skipped() int { return p.skipped }

// Converged reports whether no document is still pending or processing.
func (p *Poller) Converged() bool {
	for _, d := range p.docs {
		if !d.Status.Terminal() {
			return false
		}
	}
	return true
}

// Remove drops a document locally after a successful delete.
func (p *Poller) Remove(id int64) {
	out := p.docs[:0:0]
	for _, d := range p.docs {
		if d.ID != id {
			out = append(out, d)
		}
	}
	p.docs = out
}

func (p *Poller) current(id int64, gen int) bool {
	return id == p.id && gen == p.gen
}

func (p *Poller) tick() tea.Cmd {
	id, gen := p.id, p.gen
	return tea.Tick(p.interval, func(time.Time) tea.Msg {
		return TickMsg{id: id, gen: gen}
	})
}

func (p *Poller) request() tea.Cmd {
	p.inFlight = true
	p.requests++
	id, gen, ctx, fetch := p.id, p.gen, p.ctx, p.fetch
	return func() tea.Msg {
		docs, err := fetch(ctx)
		return ResultMsg{id: id, gen: gen, Docs: docs, Err: err}
	}
}
