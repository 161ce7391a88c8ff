package app

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jwulff/docqa/internal/ui"
)

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	bodyH := m.bodyHeight()
	switch m.screen {
	case ScreenLogin:
		sections = append(sections, m.renderLogin(m.width, bodyH))
	case ScreenDashboard:
		sections = append(sections, m.renderDashboard(m.width, bodyH))
	case ScreenDocument:
		sections = append(sections, m.renderDocument(m.width, bodyH))
	}

	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	}

	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) bodyHeight() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(1) + divider(1) + divider(1) + error(1) + footer(1)
	reserved := 5
	return max(5, m.height-reserved)
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("DOCQA")
	var server string
	if m.server != "" {
		server = ui.DimStyle.Render("  " + m.server)
	}
	var status string
	if m.statusText != "" && !m.login.busy && !m.dash.uploading {
		status = ui.StatusStyle.Render("  " + m.statusText)
	}
	return title + server + status
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func footerKey(key, desc string) string {
	return ui.FooterKeyStyle.Render(key) + ui.FooterDescStyle.Render(" "+desc)
}

func (m Model) renderFooter() string {
	var parts []string

	switch m.screen {
	case ScreenLogin:
		parts = append(parts, footerKey("Tab", "Next"), footerKey("Enter", "Submit"), footerKey("Ctrl+R", "Register/Login"))
	case ScreenDashboard:
		if m.dash.prompt == promptUpload {
			parts = append(parts, footerKey("Enter", "Upload"), footerKey("Esc", "Cancel"))
			break
		}
		parts = append(parts,
			footerKey("j/k", "Nav"),
			footerKey("Enter", "Open"),
			footerKey("u", "Upload"),
			footerKey("d", "Delete"),
			footerKey("t", "Filter"),
			footerKey("r", "Refresh"),
			footerKey("l", "Logout"),
			footerKey("q", "Quit"),
		)
	case ScreenDocument:
		parts = append(parts, footerKey("Tab", "Focus"))
		if m.doc != nil && m.doc.focus == focusInput {
			parts = append(parts, footerKey("Enter", "Send"))
		} else {
			parts = append(parts, footerKey("j/k", "Nav"), footerKey("Enter", "Seek"))
		}
		if m.doc != nil && m.doc.adapter != nil && m.doc.adapter.Attached() {
			parts = append(parts, footerKey("Ctrl+P", "Play/Pause"))
		}
		parts = append(parts, footerKey("Esc", "Back"))
	}

	parts = append(parts, footerKey("Ctrl+C", "Quit"))
	return strings.Join(parts, "  ")
}

// joinColumns places two rendered panels side by side with a divider.
func joinColumns(left, right string, leftW, height int) string {
	divider := ui.DividerStyle.Render("│")

	leftLines := strings.Split(left, "\n")
	rightLines := strings.Split(right, "\n")

	for len(leftLines) < height {
		leftLines = append(leftLines, strings.Repeat(" ", leftW))
	}

	rows := make([]string, 0, height)
	for i := 0; i < height; i++ {
		r := ""
		if i < len(rightLines) {
			r = rightLines[i]
		}
		rows = append(rows, padRight(leftLines[i], leftW)+divider+" "+r)
	}
	return strings.Join(rows, "\n")
}

// Helpers

func padRight(s string, width int) string {
	// Get visible length (ignoring ANSI codes)
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncateToWidth(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible <= width {
		return s
	}
	// Simple truncation for non-styled strings
	runes := []rune(s)
	if width > 1 && len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		} else {
			lines = append(lines, "")
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
