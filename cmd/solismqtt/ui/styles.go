package ui

import "github.com/charmbracelet/lipgloss"

// Styles holds the dashboard's lipgloss styles.
type Styles struct {
	Title    lipgloss.Style
	Card     lipgloss.Style
	Label    lipgloss.Style
	Value    lipgloss.Style
	Good     lipgloss.Style
	Bad      lipgloss.Style
	Dim      lipgloss.Style
	ErrorBox lipgloss.Style
}

// DefaultStyles returns the default dashboard styles.
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("130")).
			Padding(0, 1),
		Card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 2).
			MarginRight(2),
		Label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(18),
		Value: lipgloss.NewStyle().
			Bold(true),
		Good: lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")),
		Bad: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		Dim: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		ErrorBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("196")).
			Foreground(lipgloss.Color("196")).
			Padding(0, 2),
	}
}
