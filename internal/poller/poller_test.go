package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jwulff/docqa/internal/api"
)

// run executes cmd and flattens batches into the resulting messages.
func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, run(c)...)
		}
		return out
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}

func split(msgs []tea.Msg) (ticks []TickMsg, results []ResultMsg) {
	for _, m := range msgs {
		switch m := m.(type) {
		case TickMsg:
			ticks = append(ticks, m)
		case ResultMsg:
			results = append(results, m)
		}
	}
	return ticks, results
}

func docs(statuses ...api.Status) []api.Document {
	out := make([]api.Document, len(statuses))
	for i, s := range statuses {
		out[i] = api.Document{ID: int64(i + 1), Status: s}
	}
	return out
}

func TestStartFetchesImmediately(t *testing.T) {
	calls := 0
	p := New(func(context.Context) ([]api.Document, error) {
		calls++
		return docs(api.StatusCompleted), nil
	}, nil)

	ticks, results := split(run(p.Start(time.Millisecond)))
	if len(results) != 1 || len(ticks) != 1 {
		t.Fatalf("start produced %d results, %d ticks; want 1, 1", len(results), len(ticks))
	}
	if !p.InFlight() {
		t.Error("request should be in flight until its result is delivered")
	}

	p.Update(results[0])
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(p.Documents()) != 1 || !p.Loaded() {
		t.Errorf("documents = %v", p.Documents())
	}
	if p.InFlight() {
		t.Error("in-flight flag should clear on result")
	}
}

func TestTickSkippedWhileInFlight(t *testing.T) {
	p := New(func(context.Context) ([]api.Document, error) { return nil, nil }, nil)
	start := p.Start(time.Millisecond)
	if start == nil {
		t.Fatal("start returned nil")
	}

	// The first request has been issued but its result not yet delivered.
	cmd := p.Update(TickMsg{id: p.id, gen: p.gen})
	if p.Requests() != 1 {
		t.Errorf("requests = %d, want 1", p.Requests())
	}
	if p.Skipped() != 1 {
		t.Errorf("skipped = %d, want 1", p.Skipped())
	}
	ticks, results := split(run(cmd))
	if len(results) != 0 {
		t.Error("skipped tick must not issue a request")
	}
	if len(ticks) != 1 {
		t.Error("skipped tick must re-arm the timer")
	}

	p.Update(ResultMsg{id: p.id, gen: p.gen})
	p.Update(ticks[0])
	if p.Requests() != 2 {
		t.Errorf("requests = %d, want 2 after result delivered", p.Requests())
	}
}

func TestStopIgnoresLateMessages(t *testing.T) {
	p := New(func(context.Context) ([]api.Document, error) {
		return docs(api.StatusPending), nil
	}, nil)
	ticks, results := split(run(p.Start(time.Millisecond)))

	p.Stop()
	if p.Running() {
		t.Error("poller should not be running after Stop")
	}

	p.Update(results[0])
	if len(p.Documents()) != 0 {
		t.Error("late result after Stop must be ignored")
	}
	if cmd := p.Update(ticks[0]); cmd != nil {
		t.Error("late tick after Stop must not schedule anything")
	}
	if p.Refresh() != nil {
		t.Error("refresh on a stopped poller should be a no-op")
	}
}

func TestRestartIgnoresPreviousGeneration(t *testing.T) {
	p := New(func(context.Context) ([]api.Document, error) {
		return docs(api.StatusCompleted), nil
	}, nil)
	_, old := split(run(p.Start(time.Millisecond)))
	_, fresh := split(run(p.Start(time.Millisecond)))

	p.Update(old[0])
	if !p.InFlight() {
		t.Error("old-generation result must not clear the new request")
	}
	p.Update(fresh[0])
	if p.InFlight() || len(p.Documents()) != 1 {
		t.Error("current result should be applied")
	}
}

func TestForeignPollerMessagesIgnored(t *testing.T) {
	a := New(func(context.Context) ([]api.Document, error) { return docs(api.StatusPending), nil }, nil)
	b := New(func(context.Context) ([]api.Document, error) { return nil, nil }, nil)
	_, results := split(run(a.Start(time.Millisecond)))
	b.Start(time.Millisecond)

	b.Update(results[0])
	if len(b.Documents()) != 0 {
		t.Error("poller applied another poller's result")
	}
}

func TestFetchErrorKeepsPolling(t *testing.T) {
	fail := errors.New("connection refused")
	n := 0
	p := New(func(context.Context) ([]api.Document, error) {
		n++
		if n == 1 {
			return nil, fail
		}
		return docs(api.StatusCompleted), nil
	}, nil)

	ticks, results := split(run(p.Start(time.Millisecond)))
	p.Update(results[0])
	if !errors.Is(p.Err(), fail) {
		t.Errorf("err = %v, want %v", p.Err(), fail)
	}
	if !p.Running() {
		t.Fatal("poller must keep running after a failed fetch")
	}

	_, results = split(run(p.Update(ticks[0])))
	p.Update(results[0])
	if p.Err() != nil {
		t.Errorf("err = %v after successful fetch", p.Err())
	}
	if len(p.Documents()) != 1 {
		t.Errorf("documents = %d, want 1", len(p.Documents()))
	}
}

// An uploaded document is observed moving through its lifecycle while
// list requests never overlap.
func TestUploadLifecycleConverges(t *testing.T) {
	script := [][]api.Document{
		docs(api.StatusPending),
		docs(api.StatusProcessing),
		docs(api.StatusProcessing),
		docs(api.StatusCompleted),
	}
	var outstanding, maxOutstanding, calls int
	p := New(func(context.Context) ([]api.Document, error) {
		outstanding++
		if outstanding > maxOutstanding {
			maxOutstanding = outstanding
		}
		i := min(calls, len(script)-1)
		calls++
		return script[i], nil
	}, nil)

	var seen []api.Status
	deliver := func(r ResultMsg) {
		outstanding--
		p.Update(r)
		if d := p.Documents(); len(d) == 1 {
			if len(seen) == 0 || seen[len(seen)-1] != d[0].Status {
				seen = append(seen, d[0].Status)
			}
		}
	}

	ticks, results := split(run(p.Start(time.Millisecond)))
	for step := 0; step < 20 && !(p.Loaded() && p.Converged()); step++ {
		// Deliver a tick before the result on every other step so the
		// skip path is exercised.
		if step%2 == 1 && len(ticks) > 0 {
			more, extra := split(run(p.Update(ticks[0])))
			if len(extra) != 0 {
				t.Fatal("tick issued a request while one was outstanding")
			}
			ticks = more
		}
		for _, r := range results {
			deliver(r)
		}
		if len(ticks) == 0 {
			t.Fatal("poller stopped ticking")
		}
		ticks, results = split(run(p.Update(ticks[0])))
	}

	want := []api.Status{api.StatusPending, api.StatusProcessing, api.StatusCompleted}
	if len(seen) != len(want) {
		t.Fatalf("observed %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("observed[%d] = %s, want %s", i, seen[i], want[i])
		}
	}
	if maxOutstanding > 1 {
		t.Errorf("max outstanding requests = %d, want 1", maxOutstanding)
	}
	if !p.Running() {
		t.Error("poller keeps running after convergence")
	}
	if p.Skipped() == 0 {
		t.Error("expected at least one skipped tick")
	}
}

func TestRemoveAndConverged(t *testing.T) {
	p := New(nil, nil)
	p.docs = docs(api.StatusCompleted, api.StatusProcessing)
	if p.Converged() {
		t.Error("processing document should prevent convergence")
	}
	p.Remove(2)
	if len(p.docs) != 1 || p.docs[0].ID != 1 {
		t.Errorf("docs after remove = %v", p.docs)
	}
	if !p.Converged() {
		t.Error("should converge once only terminal documents remain")
	}
}
