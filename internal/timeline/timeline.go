// Package timeline correlates a playback position with the topic spans of
// an audio or video document.
package timeline

import (
	"errors"
	"fmt"
	"math"
	"sort"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jwulff/docqa/internal/api"
)

// ErrNoPlayer is returned by Seek when no player is attached.
var ErrNoPlayer = errors.New("timeline: no player attached")

// Seeker moves playback to a position and resumes it.
type Seeker interface {
	Seek(seconds float64) tea.Cmd
}

// Correlator tracks the playback position and the entry it falls in.
// Entries are half-open [start, end) spans.
type Correlator struct {
	entries  []api.TimestampEntry
	position float64
	selected int
	seeker   Seeker
}

// New returns a correlator over a copy of entries ordered by start time.
func New(entries []api.TimestampEntry) *Correlator {
	sorted := make([]api.TimestampEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime < sorted[j].StartTime
	})
	return &Correlator{entries: sorted}
}

// Entries returns the ordered entries. The slice must not be modified.
func (c *Correlator) Entries() []api.TimestampEntry { return c.entries }

// Position returns the last known playback position in seconds.
func (c *Correlator) Position() float64 { return c.position }

// SetPosition records a position reported by the player.
func (c *Correlator) SetPosition(seconds float64) { c.position = seconds }

// ActiveIndex returns the index of the entry containing the position, or -1
// when none does. Among overlapping entries the latest-starting one wins.
func (c *Correlator) ActiveIndex() int {
	pos := c.position
	i := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].StartTime > pos
	})
	// Every entry before i starts at or before pos.
	for j := i - 1; j >= 0; j-- {
		if pos < c.entries[j].EndTime {
			return j
		}
	}
	return -1
}

// Active returns the entry containing the position.
func (c *Correlator) Active() (api.TimestampEntry, bool) {
	i := c.ActiveIndex()
	if i < 0 {
		return api.TimestampEntry{}, false
	}
	return c.entries[i], true
}

// Attach sets the player that Seek drives.
func (c *Correlator) Attach(s Seeker) { c.seeker = s }

// Detach forgets the player.
func (c *Correlator) Detach() { c.seeker = nil }

// Seek moves playback to seconds and resumes it.
func (c *Correlator) Seek(seconds float64) (tea.Cmd, error) {
	if c.seeker == nil {
		return nil, ErrNoPlayer
	}
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	c.position = seconds
	return c.seeker.Seek(seconds), nil
}

// Selected returns the cursor index in the entry list.
func (c *Correlator) Selected() int { return c.selected }

// Select moves the cursor to i, clamped to the entry list.
func (c *Correlator) Select(i int) {
	c.selected = max(0, min(i, len(c.entries)-1))
}

// MoveSelection moves the cursor by delta.
func (c *Correlator) MoveSelection(delta int) { c.Select(c.selected + delta) }

// SeekSelected seeks to the start of the entry under the cursor.
func (c *Correlator) SeekSelected() (tea.Cmd, error) {
	if len(c.entries) == 0 {
		return nil, nil
	}
	return c.Seek(c.entries[c.selected].StartTime)
}

// FormatTime renders seconds as mm:ss. Minutes are not wrapped into hours.
func FormatTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	mins := int(seconds / 60)
	secs := int(math.Mod(seconds, 60))
	return fmt.Sprintf("%02d:%02d", mins, secs)
}
