package log

import "github.com/charmbracelet/lipgloss"

var (
	infoStyle    = lipgloss.NewStyle()
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B7941E", Dark: "#DBA937"})
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#AC0B07", Dark: "#D93A35"})
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#63C174"})

	// DimmedItalic is used for secondary hints such as usage pointers.
	DimmedItalic = lipgloss.NewStyle().Faint(true).Italic(true)
)
