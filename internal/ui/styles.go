package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jwulff/docqa/internal/api"
)

// Colors used throughout the TUI.
var (
	ColorRed     = lipgloss.Color("#FF0000")
	ColorGreen   = lipgloss.Color("#00FF00")
	ColorYellow  = lipgloss.Color("#FFFF00")
	ColorCyan    = lipgloss.Color("#00FFFF")
	ColorGray    = lipgloss.Color("#666666")
	ColorDimGray = lipgloss.Color("#444444")
	ColorWhite   = lipgloss.Color("#FFFFFF")
	ColorMagenta = lipgloss.Color("#FF00FF")
)

// Base styles reused by UI components.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan)

	StatusStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	ErrorTextStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	TimestampStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	PanelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite)

	PanelTitleActiveStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorCyan)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(ColorCyan).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	FooterKeyStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	FooterDescStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	DividerStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)

	UserLabelStyle = lipgloss.NewStyle().
			Foreground(ColorCyan).
			Bold(true)

	AssistantLabelStyle = lipgloss.NewStyle().
				Foreground(ColorMagenta).
				Bold(true)

	ReferenceStyle = lipgloss.NewStyle().
			Foreground(ColorYellow)

	ActiveEntryStyle = lipgloss.NewStyle().
				Foreground(ColorGreen).
				Bold(true)

	PlayingStyle = lipgloss.NewStyle().
			Foreground(ColorGreen).
			Bold(true)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta)
)

var statusStyles = map[api.Status]lipgloss.Style{
	api.StatusPending:    lipgloss.NewStyle().Foreground(ColorGray),
	api.StatusProcessing: lipgloss.NewStyle().Foreground(ColorYellow),
	api.StatusCompleted:  lipgloss.NewStyle().Foreground(ColorGreen),
	api.StatusFailed:     lipgloss.NewStyle().Foreground(ColorRed).Bold(true),
}

// StatusBadge renders a document status in its color.
func StatusBadge(s api.Status) string {
	st, ok := statusStyles[s]
	if !ok {
		st = DimStyle
	}
	return st.Render(string(s))
}
