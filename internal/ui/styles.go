// Package ui renders the review board for the terminal.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7D79F6"}
	ColorAttn    = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#FF6B6B"}
	ColorOK      = lipgloss.AdaptiveColor{Light: "#1B9E4B", Dark: "#51CF66"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#6C6F85", Dark: "#9CA0B0"}

	TitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	HeaderStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	DimStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	AttnStyle   = lipgloss.NewStyle().Foreground(ColorAttn).Bold(true)
	OKStyle     = lipgloss.NewStyle().Foreground(ColorOK)

	ColumnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted).
			Padding(0, 1).
			Width(38)
)
