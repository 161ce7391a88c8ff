package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/jwulff/docqa/internal/api"
	"github.com/jwulff/docqa/internal/chat"
	"github.com/jwulff/docqa/internal/player"
	"github.com/jwulff/docqa/internal/timeline"
	"github.com/jwulff/docqa/internal/ui"
)

type docFocus int

const (
	focusInput docFocus = iota
	focusTimeline
	focusReferences
)

// documentView is the state of one open document. It is discarded on
// teardown; late messages carrying its id are ignored.
type documentView struct {
	id  int64
	doc api.Document

	summary        string
	summaryLoaded  bool
	summaryErr     string
	timelineErr    string
	timelineLoaded bool

	chat     *chat.Coordinator
	timeline *timeline.Correlator
	adapter  *player.Adapter

	launching bool
	playerErr string

	input    textinput.Model
	focus    docFocus
	refIndex int
}

// references returns every timestamp reference in assistant answers, in
// transcript order.
func (d *documentView) references() []api.TimestampReference {
	var refs []api.TimestampReference
	for _, msg := range d.chat.Messages() {
		refs = append(refs, msg.Timestamps...)
	}
	return refs
}

func (d *documentView) focusOrder() []docFocus {
	order := []docFocus{focusInput}
	if len(d.timeline.Entries()) > 0 {
		order = append(order, focusTimeline)
	}
	if len(d.references()) > 0 {
		order = append(order, focusReferences)
	}
	return order
}

func (d *documentView) cycleFocus(delta int) tea.Cmd {
	order := d.focusOrder()
	pos := 0
	for i, f := range order {
		if f == d.focus {
			pos = i
		}
	}
	d.focus = order[(pos+delta+len(order))%len(order)]
	if d.focus == focusReferences {
		d.refIndex = max(0, min(d.refIndex, len(d.references())-1))
	}
	if d.focus == focusInput {
		return d.input.Focus()
	}
	d.input.Blur()
	return nil
}

// enterDocument opens a document view. The dashboard poller stops while the
// view is active.
func (m *Model) enterDocument(doc api.Document) tea.Cmd {
	m.dash.poller.Stop()
	closePrev := m.teardownDocument()
	m.nextViewID++

	in := textinput.New()
	in.Placeholder = "Ask a question about this document"
	in.CharLimit = 2000

	dv := &documentView{
		id:       m.nextViewID,
		doc:      doc,
		chat:     chat.New(doc.ID, m.backend, m.logger),
		timeline: timeline.New(nil),
		input:    in,
	}
	m.doc = dv
	m.screen = ScreenDocument
	m.statusText = ""

	cmds := []tea.Cmd{
		closePrev,
		dv.input.Focus(),
		loadDocumentCmd(m.backend, dv.id, doc.ID),
		loadSummaryCmd(m.backend, dv.id, doc.ID),
	}
	if doc.IsMedia() {
		dv.adapter = player.NewAdapter(m.logger)
		cmds = append(cmds, loadTimestampsCmd(m.backend, dv.id, doc.ID))
		if m.launch != nil {
			dv.launching = true
			cmds = append(cmds, launchPlayerCmd(m.launch, dv.id, doc, m.backend.StreamURL(doc.ID), m.tokens.Token()))
		}
	}
	return tea.Batch(cmds...)
}

// teardownDocument closes the chat, detaches the player and forgets the
// view. The returned command closes the player element.
func (m *Model) teardownDocument() tea.Cmd {
	d := m.doc
	if d == nil {
		return nil
	}
	m.doc = nil
	d.chat.Close()
	d.timeline.Detach()
	if d.adapter != nil {
		return d.adapter.Detach()
	}
	return nil
}

func loadDocumentCmd(b Backend, viewID, docID int64) tea.Cmd {
	return func() tea.Msg {
		doc, err := b.Get(context.Background(), docID)
		return DocumentLoadedMsg{ViewID: viewID, Doc: doc, Err: err}
	}
}

func loadSummaryCmd(b Backend, viewID, docID int64) tea.Cmd {
	return func() tea.Msg {
		resp, err := b.Summary(context.Background(), docID)
		return SummaryLoadedMsg{ViewID: viewID, Summary: resp.Summary, Err: err}
	}
}

func loadTimestampsCmd(b Backend, viewID, docID int64) tea.Cmd {
	return func() tea.Msg {
		resp, err := b.Timestamps(context.Background(), docID)
		return TimestampsLoadedMsg{ViewID: viewID, Entries: resp.Timestamps, Err: err}
	}
}

func launchPlayerCmd(launch Launcher, viewID int64, doc api.Document, url, token string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		e, err := launch(ctx, doc, url, token)
		return PlayerReadyMsg{ViewID: viewID, Element: e, Err: err}
	}
}

func (m Model) current(viewID int64) bool {
	return m.doc != nil && m.doc.id == viewID
}

func (m Model) handleDocumentLoaded(msg DocumentLoadedMsg) (tea.Model, tea.Cmd) {
	if !m.current(msg.ViewID) {
		return m, nil
	}
	if msg.Err != nil {
		m.logger.Warn("load document", zap.Int64("document_id", m.doc.doc.ID), zap.Error(msg.Err))
		if errors.Is(msg.Err, api.ErrUnauthorized) {
			return m, m.logoutCmd()
		}
		return m, nil
	}
	if msg.Doc.ID == m.doc.doc.ID {
		m.doc.doc = msg.Doc
	}
	return m, nil
}

func (m Model) handleSummaryLoaded(msg SummaryLoadedMsg) (tea.Model, tea.Cmd) {
	if !m.current(msg.ViewID) {
		return m, nil
	}
	if msg.Err != nil {
		m.logger.Warn("load summary", zap.Int64("document_id", m.doc.doc.ID), zap.Error(msg.Err))
		m.doc.summaryErr = msg.Err.Error()
		if errors.Is(msg.Err, api.ErrUnauthorized) {
			return m, m.logoutCmd()
		}
		return m, nil
	}
	m.doc.summary = msg.Summary
	m.doc.summaryLoaded = true
	return m, nil
}

func (m Model) handleTimestampsLoaded(msg TimestampsLoadedMsg) (tea.Model, tea.Cmd) {
	if !m.current(msg.ViewID) {
		return m, nil
	}
	d := m.doc
	if msg.Err != nil {
		m.logger.Warn("load timestamps", zap.Int64("document_id", d.doc.ID), zap.Error(msg.Err))
		d.timelineErr = msg.Err.Error()
		return m, nil
	}
	tl := timeline.New(msg.Entries)
	if d.adapter != nil {
		tl.SetPosition(d.adapter.Position())
		if d.adapter.Attached() {
			tl.Attach(d.adapter)
		}
	}
	d.timeline = tl
	d.timelineLoaded = true
	return m, nil
}

func (m Model) handlePlayerReady(msg PlayerReadyMsg) (tea.Model, tea.Cmd) {
	if !m.current(msg.ViewID) || m.doc.adapter == nil {
		if msg.Element != nil {
			return m, closeElementCmd(msg.Element, m.logger)
		}
		return m, nil
	}
	d := m.doc
	d.launching = false
	if msg.Err != nil {
		m.logger.Warn("start player", zap.Error(msg.Err))
		d.playerErr = msg.Err.Error()
		return m, nil
	}
	cmd := d.adapter.Attach(msg.Element)
	d.timeline.Attach(d.adapter)
	return m, cmd
}

func (m Model) handlePlayerMsg(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.doc == nil || m.doc.adapter == nil {
		return m, nil
	}
	d := m.doc
	cmd := d.adapter.Update(msg)
	d.timeline.SetPosition(d.adapter.Position())
	if !d.adapter.Attached() {
		d.timeline.Detach()
	}
	if done, ok := msg.(player.SeekDoneMsg); ok && done.Err != nil && d.adapter.Attached() {
		return m, m.setError("Seek failed: "+done.Err.Error(), true)
	}
	return m, cmd
}

func (m Model) handleDocumentKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	d := m.doc
	if d == nil {
		return m, nil
	}

	switch msg.String() {
	case KeyEsc:
		return m, m.enterDashboard()
	case KeyTogglePlay:
		if d.adapter == nil || !d.adapter.Attached() {
			return m, nil
		}
		return m, d.adapter.TogglePlay()
	case KeyTab:
		return m, d.cycleFocus(1)
	case KeyShiftTab:
		return m, d.cycleFocus(-1)
	}

	switch d.focus {
	case focusInput:
		if msg.String() == KeyEnter {
			return m.sendChat()
		}
		var cmd tea.Cmd
		d.input, cmd = d.input.Update(msg)
		return m, cmd

	case focusTimeline:
		switch msg.String() {
		case KeyQuit:
			return m.quit()
		case KeyJ, KeyDown:
			d.timeline.MoveSelection(1)
		case KeyK, KeyUp:
			d.timeline.MoveSelection(-1)
		case KeyEnter:
			cmd, err := d.timeline.SeekSelected()
			return m, m.seekResult(cmd, err)
		}

	case focusReferences:
		refs := d.references()
		switch msg.String() {
		case KeyQuit:
			return m.quit()
		case KeyJ, KeyDown:
			d.refIndex = min(d.refIndex+1, len(refs)-1)
		case KeyK, KeyUp:
			d.refIndex = max(d.refIndex-1, 0)
		case KeyEnter:
			if d.refIndex < len(refs) {
				cmd, err := d.timeline.Seek(refs[d.refIndex].StartTime)
				return m, m.seekResult(cmd, err)
			}
		}
	}
	return m, nil
}

func (m *Model) seekResult(cmd tea.Cmd, err error) tea.Cmd {
	if errors.Is(err, timeline.ErrNoPlayer) {
		if m.doc.doc.IsMedia() {
			return m.setError("Player is not running", true)
		}
		return m.setError("This document has no playback", true)
	}
	return cmd
}

func (m Model) sendChat() (tea.Model, tea.Cmd) {
	d := m.doc
	cmd, err := d.chat.Send(d.input.Value())
	switch {
	case errors.Is(err, chat.ErrBusy):
		m.statusText = "Waiting for the previous answer..."
		return m, nil
	case err != nil:
		return m, nil
	}
	d.input.Reset()
	// Follow the newest references once the answer arrives.
	d.refIndex = len(d.references())
	return m, cmd
}

func (m Model) renderDocument(width, height int) string {
	d := m.doc
	if d == nil {
		return ""
	}
	leftW := max(24, width*40/100)
	rightW := max(30, width-leftW-1)
	bodyH := max(3, height-1)

	left := m.renderDocumentPanel(leftW, bodyH)
	right := m.renderChatPanel(rightW, bodyH)

	var prompt string
	if d.focus == focusInput {
		prompt = ui.FooterKeyStyle.Render("> ")
	} else {
		prompt = ui.DimStyle.Render("> ")
	}
	return joinColumns(left, right, leftW, bodyH) + "\n" + prompt + d.input.View()
}

func (m Model) renderDocumentPanel(width, height int) string {
	d := m.doc
	var lines []string

	lines = append(lines, ui.PanelTitleActiveStyle.Render(truncateToWidth(d.doc.DisplayName(), width)))
	lines = append(lines, ui.DimStyle.Render(fmt.Sprintf("%s · %s", d.doc.Type, humanize.Bytes(uint64(max(d.doc.FileSize, 0))))))
	lines = append(lines, "")

	lines = append(lines, ui.PanelTitleStyle.Render("SUMMARY"))
	switch {
	case d.summaryErr != "":
		lines = append(lines, ui.ErrorTextStyle.Render("Could not load summary"))
	case !d.summaryLoaded:
		lines = append(lines, ui.DimStyle.Render("Loading..."))
	case d.summary == "":
		lines = append(lines, ui.DimStyle.Render("No summary available"))
	default:
		lines = append(lines, wrapText(d.summary, width)...)
	}

	if d.doc.IsMedia() {
		lines = append(lines, "", m.renderPlayerStatus())
		title := "TIMELINE"
		if d.focus == focusTimeline {
			lines = append(lines, ui.PanelTitleActiveStyle.Render(title))
		} else {
			lines = append(lines, ui.PanelTitleStyle.Render(title))
		}
		lines = append(lines, m.renderTimeline(width)...)
	}

	// Keep the timeline visible when the summary is long.
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	for i, l := range lines {
		lines[i] = padRight(truncateToWidth(l, width), width)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderPlayerStatus() string {
	d := m.doc
	switch {
	case d.adapter.Attached():
		pos := timeline.FormatTime(d.adapter.Position())
		if d.adapter.Playing() {
			return ui.PlayingStyle.Render("▶ " + pos)
		}
		return ui.DimStyle.Render("❚❚ " + pos)
	case d.launching:
		return ui.SpinnerStyle.Render("⟳ starting player")
	case d.playerErr != "":
		return ui.ErrorTextStyle.Render("player unavailable")
	case m.launch == nil:
		return ui.DimStyle.Render("playback disabled")
	}
	return ui.DimStyle.Render("player closed")
}

func (m Model) renderTimeline(width int) []string {
	d := m.doc
	switch {
	case d.timelineErr != "":
		return []string{ui.ErrorTextStyle.Render("Could not load timeline")}
	case !d.timelineLoaded:
		return []string{ui.DimStyle.Render("Loading...")}
	case len(d.timeline.Entries()) == 0:
		return []string{ui.DimStyle.Render("No timestamps")}
	}

	active := d.timeline.ActiveIndex()
	var lines []string
	for i, e := range d.timeline.Entries() {
		marker := "  "
		if i == active {
			marker = ui.ActiveEntryStyle.Render("▶ ")
		}
		label := ui.TimestampStyle.Render(e.FormattedStartTime) + " " + truncateToWidth(e.Topic, max(5, width-9))
		if d.focus == focusTimeline && i == d.timeline.Selected() {
			label = ui.SelectedStyle.Render(e.FormattedStartTime + " " + truncateToWidth(e.Topic, max(5, width-9)))
		} else if i == active {
			label = ui.ActiveEntryStyle.Render(e.FormattedStartTime + " " + truncateToWidth(e.Topic, max(5, width-9)))
		}
		lines = append(lines, marker+label)
	}
	return lines
}

func (m Model) renderChatPanel(width, height int) string {
	d := m.doc
	header := ui.PanelTitleStyle.Render("CHAT")
	if d.focus == focusInput || d.focus == focusReferences {
		header = ui.PanelTitleActiveStyle.Render("CHAT")
	}

	var body []string
	refIdx := 0
	textW := max(10, width-2)
	for _, msg := range d.chat.Messages() {
		if msg.Role == chat.RoleUser {
			body = append(body, ui.UserLabelStyle.Render("You"))
		} else {
			body = append(body, ui.AssistantLabelStyle.Render("Assistant"))
		}
		for _, l := range wrapText(msg.Content, textW) {
			body = append(body, "  "+l)
		}
		for _, ref := range msg.Timestamps {
			text := "[" + refTime(ref) + "] " + ref.Content
			text = truncateToWidth(text, textW)
			if d.focus == focusReferences && refIdx == d.refIndex {
				body = append(body, ui.SelectedStyle.Render("> "+text))
			} else {
				body = append(body, "  "+ui.ReferenceStyle.Render(text))
			}
			refIdx++
		}
		body = append(body, "")
	}
	if d.chat.Loading() {
		body = append(body, ui.SpinnerStyle.Render("⟳ thinking..."))
	}
	if len(body) == 0 {
		body = append(body, ui.DimStyle.Render("Ask anything about this document."))
	}

	visible := height - 1
	if len(body) > visible {
		body = body[len(body)-visible:]
	}
	lines := append([]string{header}, body...)
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func refTime(ref api.TimestampReference) string {
	if ref.FormattedTime != "" {
		return ref.FormattedTime
	}
	return timeline.FormatTime(ref.StartTime)
}
