package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	ColorBorder    = lipgloss.Color("#2a2a2a")
	ColorAccent    = lipgloss.Color("#e91e63")
	ColorSuccess   = lipgloss.Color("#30d158")
	ColorWarning   = lipgloss.Color("#ffd60a")
	ColorError     = lipgloss.Color("#ff453a")
	ColorTextMuted = lipgloss.Color("#808080")
	ColorText      = lipgloss.Color("#ffffff")
)

// Theme contains all styled components
type Theme struct {
	Header        lipgloss.Style
	Logo          lipgloss.Style
	Card          lipgloss.Style
	CardSelected  lipgloss.Style
	CardAlerting  lipgloss.Style
	Title         lipgloss.Style
	Muted         lipgloss.Style
	StatusSuccess lipgloss.Style
	StatusWarning lipgloss.Style
	StatusError   lipgloss.Style
	Footer        lipgloss.Style
	Spinner       lipgloss.Style
}

// DefaultTheme is the only theme
var DefaultTheme = &Theme{
	Header: lipgloss.NewStyle().Padding(0, 1).BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).BorderForeground(ColorBorder),
	Logo: lipgloss.NewStyle().Bold(true).Foreground(ColorAccent),
	Card: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).Padding(0, 1),
	CardSelected: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorAccent).Padding(0, 1),
	CardAlerting: lipgloss.NewStyle().Border(lipgloss.ThickBorder()).
		BorderForeground(ColorError).Padding(0, 1),
	Title:         lipgloss.NewStyle().Bold(true).Foreground(ColorText),
	Muted:         lipgloss.NewStyle().Foreground(ColorTextMuted),
	StatusSuccess: lipgloss.NewStyle().Foreground(ColorSuccess),
	StatusWarning: lipgloss.NewStyle().Foreground(ColorWarning),
	StatusError:   lipgloss.NewStyle().Foreground(ColorError).Bold(true),
	Footer:        lipgloss.NewStyle().Foreground(ColorTextMuted).Padding(0, 1),
	Spinner:       lipgloss.NewStyle().Foreground(ColorAccent),
}
