package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/screencheck/screencheck/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected bool
	Retrying  bool
	Seq       uint64
	Gaps      int
	Width     int
}

// New creates a status bar model.
func New() Model {
	return Model{}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	switch {
	case m.Connected:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	case m.Retrying:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("◌ Retrying...")
	default:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	seqStr := fmt.Sprintf("seq %d", m.Seq)
	if m.Gaps > 0 {
		seqStr += lipgloss.NewStyle().Foreground(theme.ColorWarning).
			Render(fmt.Sprintf("  %d gaps", m.Gaps))
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + seqStr

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
