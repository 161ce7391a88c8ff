package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/jwulff/docqa/internal/api"
	"github.com/jwulff/docqa/internal/poller"
	"github.com/jwulff/docqa/internal/ui"
)

type promptKind int

const (
	promptNone promptKind = iota
	promptUpload
	promptDelete
)

var filterCycle = []api.MediaKind{"", api.KindPDF, api.KindAudio, api.KindVideo}

type dashboardState struct {
	poller    *poller.Poller
	selected  int
	filter    api.MediaKind
	prompt    promptKind
	input     textinput.Model
	uploading bool
	deleteID  int64
}

func newDashboardState(b Backend, logger *zap.Logger) dashboardState {
	in := textinput.New()
	in.Placeholder = "path to a PDF, audio or video file"
	in.CharLimit = 4096
	return dashboardState{
		poller: poller.New(b.List, logger),
		input:  in,
	}
}

// visibleDocs returns the polled documents matching the type filter.
func (m Model) visibleDocs() []api.Document {
	docs := m.dash.poller.Documents()
	if m.dash.filter == "" {
		return docs
	}
	var out []api.Document
	for _, d := range docs {
		if d.Type == m.dash.filter {
			out = append(out, d)
		}
	}
	return out
}

func (m *Model) clampSelection() {
	n := len(m.visibleDocs())
	if m.dash.selected >= n {
		m.dash.selected = max(0, n-1)
	}
}

func (m Model) selectedDoc() (api.Document, bool) {
	docs := m.visibleDocs()
	if m.dash.selected < 0 || m.dash.selected >= len(docs) {
		return api.Document{}, false
	}
	return docs[m.dash.selected], true
}

func (m Model) handleDashboardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.dash.prompt {
	case promptUpload:
		return m.handleUploadPromptKey(msg)
	case promptDelete:
		m.dash.prompt = promptNone
		if msg.String() == KeyConfirm {
			id := m.dash.deleteID
			m.statusText = "Deleting..."
			return m, deleteCmd(m.backend, id)
		}
		return m, nil
	}

	switch msg.String() {
	case KeyQuit:
		return m.quit()

	case KeyJ, KeyDown:
		if m.dash.selected < len(m.visibleDocs())-1 {
			m.dash.selected++
		}
		return m, nil

	case KeyK, KeyUp:
		if m.dash.selected > 0 {
			m.dash.selected--
		}
		return m, nil

	case KeyEnter:
		doc, ok := m.selectedDoc()
		if !ok {
			return m, nil
		}
		switch doc.Status {
		case api.StatusCompleted:
			return m, m.enterDocument(doc)
		case api.StatusFailed:
			return m, m.setError("Processing failed for "+doc.DisplayName(), true)
		default:
			return m, m.setError(doc.DisplayName()+" is still processing", true)
		}

	case KeyUpload:
		if m.dash.uploading {
			return m, nil
		}
		m.dash.prompt = promptUpload
		m.dash.input.Reset()
		return m, m.dash.input.Focus()

	case KeyDelete:
		doc, ok := m.selectedDoc()
		if !ok {
			return m, nil
		}
		m.dash.prompt = promptDelete
		m.dash.deleteID = doc.ID
		return m, nil

	case KeyRefresh:
		return m, m.dash.poller.Refresh()

	case KeyFilter:
		for i, k := range filterCycle {
			if k == m.dash.filter {
				m.dash.filter = filterCycle[(i+1)%len(filterCycle)]
				break
			}
		}
		m.dash.selected = 0
		return m, nil

	case KeyLogout:
		m.statusText = "Signing out..."
		return m, m.logoutCmd()
	}
	return m, nil
}

func (m Model) handleUploadPromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyEsc:
		m.dash.prompt = promptNone
		m.dash.input.Blur()
		return m, nil
	case KeyEnter:
		path := strings.TrimSpace(m.dash.input.Value())
		m.dash.prompt = promptNone
		m.dash.input.Blur()
		if path == "" {
			return m, nil
		}
		m.dash.uploading = true
		m.statusText = "Uploading " + filepath.Base(path) + "..."
		return m, uploadCmd(m.backend, path)
	}
	var cmd tea.Cmd
	m.dash.input, cmd = m.dash.input.Update(msg)
	return m, cmd
}

// uploadCmd detects the file's content type, rejects unsupported kinds
// before any request, and uploads the file.
func uploadCmd(b Backend, path string) tea.Cmd {
	return func() tea.Msg {
		path = expandHome(path)
		ct, err := api.DetectContentType(path)
		if err != nil {
			return UploadResultMsg{Err: err}
		}
		if err := api.ValidateContentType(ct); err != nil {
			return UploadResultMsg{Err: err}
		}
		f, err := os.Open(path)
		if err != nil {
			return UploadResultMsg{Err: fmt.Errorf("open upload: %w", err)}
		}
		defer f.Close()

		doc, err := b.Upload(context.Background(), filepath.Base(path), ct, f)
		return UploadResultMsg{Doc: doc, Err: err}
	}
}

func deleteCmd(b Backend, id int64) tea.Cmd {
	return func() tea.Msg {
		return DeleteResultMsg{ID: id, Err: b.Delete(context.Background(), id)}
	}
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func (m Model) handleUploadResult(msg UploadResultMsg) (tea.Model, tea.Cmd) {
	m.dash.uploading = false
	if msg.Err != nil {
		m.statusText = ""
		if errors.Is(msg.Err, api.ErrUnauthorized) {
			return m, m.logoutCmd()
		}
		if errors.Is(msg.Err, api.ErrUnsupportedType) {
			return m, m.setError("Only PDF, audio and video files can be uploaded", true)
		}
		return m, m.setError("Upload failed: "+msg.Err.Error(), true)
	}
	m.statusText = "Uploaded " + msg.Doc.DisplayName()
	return m, m.dash.poller.Refresh()
}

func (m Model) handleDeleteResult(msg DeleteResultMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.statusText = ""
		if errors.Is(msg.Err, api.ErrUnauthorized) {
			return m, m.logoutCmd()
		}
		return m, m.setError("Delete failed: "+msg.Err.Error(), true)
	}
	m.dash.poller.Remove(msg.ID)
	m.clampSelection()
	m.statusText = "Deleted"
	return m, nil
}

func (m Model) renderDashboard(width, height int) string {
	docs := m.visibleDocs()
	p := m.dash.poller

	filter := "all"
	if m.dash.filter != "" {
		filter = strings.ToLower(string(m.dash.filter))
	}
	header := ui.PanelTitleActiveStyle.Render(fmt.Sprintf("DOCUMENTS (%d)", len(docs))) +
		ui.DimStyle.Render("  ["+filter+"]")
	if !p.Converged() {
		header += "  " + ui.SpinnerStyle.Render("⟳ processing")
	}

	lines := []string{header}
	listHeight := height - 2 // header + prompt line

	switch {
	case !p.Loaded() && p.Err() != nil:
		lines = append(lines, "", ui.ErrorTextStyle.Render("  Could not load documents: "+p.Err().Error()))
	case !p.Loaded():
		lines = append(lines, ui.DimStyle.Render("  Loading..."))
	case len(docs) == 0:
		lines = append(lines, "", ui.DimStyle.Render("  No documents yet. Press u to upload one."))
	default:
		start := 0
		if m.dash.selected >= listHeight {
			start = m.dash.selected - listHeight + 1
		}
		end := min(len(docs), start+listHeight)
		for i := start; i < end; i++ {
			lines = append(lines, m.renderDocRow(docs[i], i == m.dash.selected, width))
		}
	}

	for len(lines) < height-1 {
		lines = append(lines, "")
	}
	if len(lines) > height-1 {
		lines = lines[:height-1]
	}
	lines = append(lines, m.renderPrompt())
	return strings.Join(lines, "\n")
}

func (m Model) renderDocRow(d api.Document, selected bool, width int) string {
	status := padRight(ui.StatusBadge(d.Status), 11)
	kind := padRight(string(d.Type), 6)
	size := padRight(humanize.Bytes(uint64(max(d.FileSize, 0))), 9)
	when := ""
	if !d.UploadedAt.IsZero() {
		when = humanize.Time(d.UploadedAt.Time)
	}

	nameWidth := max(10, width-11-6-9-16-8)
	name := truncateToWidth(d.DisplayName(), nameWidth)

	if selected {
		return ui.SelectedStyle.Render("> ") + status + " " + kind + " " +
			ui.SelectedStyle.Render(padRight(name, nameWidth)) + " " + size + " " + ui.DimStyle.Render(when)
	}
	return "  " + status + " " + kind + " " + padRight(name, nameWidth) + " " + size + " " + ui.DimStyle.Render(when)
}

func (m Model) renderPrompt() string {
	switch m.dash.prompt {
	case promptUpload:
		return ui.FooterKeyStyle.Render("Upload: ") + m.dash.input.View()
	case promptDelete:
		name := "document"
		for _, d := range m.dash.poller.Documents() {
			if d.ID == m.dash.deleteID {
				name = d.DisplayName()
			}
		}
		return ui.ErrorStyle.Render("Delete "+name+"?") + ui.DimStyle.Render(" y/N")
	}
	if m.dash.uploading {
		return ui.SpinnerStyle.Render("⟳ " + m.statusText)
	}
	return ""
}
