package tui

import "github.com/charmbracelet/lipgloss"

var (
	// HeaderStyle styles the column header row.
	HeaderStyle = lipgloss.NewStyle().Bold(true)

	// TitleStyle styles the line above the table.
	TitleStyle = lipgloss.NewStyle().Bold(true).Underline(true)

	statusStyles = map[string]lipgloss.Style{
		"passed": lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"cached": lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Faint(true),

		"preprocessing": lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		"mocking":       lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		"generating":    lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		"compiling":     lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		"linking":       lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		"running":       lipgloss.NewStyle().Foreground(lipgloss.Color("6")),

		"skipped": lipgloss.NewStyle().Foreground(lipgloss.Color("3")),

		"failed": lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		"error":  lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),

		"pending": lipgloss.NewStyle().Faint(true),
	}

	// finalStatuses are the row states that count towards progress.
	finalStatuses = map[string]bool{
		"passed":  true,
		"cached":  true,
		"skipped": true,
		"failed":  true,
		"error":   true,
	}
)

// StatusStyle returns the lipgloss style for the given status string.
func StatusStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return lipgloss.NewStyle()
}
