// Package render prints responses, traces and verdicts for the terminal.
package render

import (
	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	colorPrimary = lipgloss.Color("86")  // Cyan
	colorSuccess = lipgloss.Color("42")  // Green
	colorError   = lipgloss.Color("196") // Red
	colorWarning = lipgloss.Color("214") // Orange
	colorInfo    = lipgloss.Color("75")  // Blue
	colorMuted   = lipgloss.Color("240") // Gray
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	successStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	infoStyle = lipgloss.NewStyle().
			Foreground(colorInfo)

	sqlBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)

	assumptionBoxStyle = lipgloss.NewStyle().
				Foreground(colorInfo).
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorInfo).
				Padding(0, 1)

	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(colorPrimary).
				Bold(true).
				Padding(0, 1)

	tableCellStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

const (
	iconSuccess    = "✓"
	iconError      = "✗"
	iconWarning    = "⚠"
	iconInfo       = "💡"
	iconDatabase   = "📦"
	iconBranch     = "├── "
	iconLastBranch = "└── "
	iconPipe       = "│   "
	iconIndent     = "    "
)

func renderHeader(text string) string {
	return headerStyle.Render(iconDatabase + " " + text)
}

func renderSuccess(text string) string {
	return successStyle.Render(iconSuccess + " " + text)
}

func renderError(text string) string {
	return errorStyle.Render(iconError + " " + text)
}

func renderWarning(text string) string {
	return warningStyle.Render(iconWarning + " " + text)
}

func renderLabel(text string) string {
	return labelStyle.Render(text)
}
