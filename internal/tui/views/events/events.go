// Package events provides a scrollable log of state transitions and
// connection events.
package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/screencheck/screencheck/internal/screenshare"
	"github.com/screencheck/screencheck/internal/tui/theme"
)

const maxEntries = 200

// Entry kinds.
const (
	KindState = "st"
	KindWS    = "ws"
	KindError = "err"
	KindCmd   = "cmd"
)

// Entry is a single event log line.
type Entry struct {
	Time    time.Time
	Kind    string
	Status  string // share status name for KindState entries
	Message string
}

// Model holds the event log state.
type Model struct {
	Entries []Entry
	Offset  int // scroll offset (from bottom)
}

// New creates an empty event log.
func New() Model {
	return Model{}
}

// Add appends a log entry and caps the buffer.
func (m *Model) Add(kind, message string) {
	m.append(Entry{Time: time.Now(), Kind: kind, Message: message})
}

// AddTransition logs a state transition.
func (m *Model) AddTransition(s screenshare.Snapshot) {
	msg := s.Status.Label()
	if s.EndedBy != "" {
		msg += " (" + string(s.EndedBy) + ")"
	}
	if s.ErrorMessage != nil {
		msg += ": " + *s.ErrorMessage
	}
	m.append(Entry{Time: time.Now(), Kind: KindState, Status: s.Status.String(), Message: msg})
}

func (m *Model) append(e Entry) {
	m.Entries = append(m.Entries, e)
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	m.Offset = 0
}

// ScrollUp moves the viewport up.
func (m *Model) ScrollUp(n int) {
	m.Offset = min(m.Offset+n, max(len(m.Entries)-1, 0))
}

// ScrollDown moves the viewport down.
func (m *Model) ScrollDown(n int) {
	m.Offset = max(m.Offset-n, 0)
}

func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)
}

// View renders the log as an overlay panel.
func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	visibleLines := max(height-6, 3)

	title := theme.StyleHeader.Render(" EVENTS ")
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:scroll  esc:close  %d entries", len(m.Entries)))

	if len(m.Entries) == 0 {
		body := theme.StyleDimmed.Render("  No events recorded yet.")
		return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help))
	}

	end := max(len(m.Entries)-m.Offset, 0)
	start := max(end-visibleLines, 0)

	var lines []string
	for _, e := range m.Entries[start:end] {
		ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05.000"))
		kind := lipgloss.NewStyle().Foreground(kindColor(e)).Width(4).Render(e.Kind)
		msg := e.Message
		if innerW > 23 && len(msg) > innerW-20 {
			msg = msg[:innerW-23] + "..."
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", ts, kind, msg))
	}

	scroll := ""
	if m.Offset > 0 {
		scroll = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more", m.Offset))
	}

	return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"), scroll, help))
}

func kindColor(e Entry) lipgloss.Color {
	switch e.Kind {
	case KindState:
		return theme.StatusColor(e.Status)
	case KindWS:
		return theme.ColorRequesting
	case KindError:
		return theme.ColorErrored
	case KindCmd:
		return theme.ColorWarning
	default:
		return theme.ColorDimmed
	}
}
