// Package share renders the screen-share panel: status badge, error
// message, stream metadata and environment hints.
package share

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/screencheck/screencheck/internal/screenshare"
	"github.com/screencheck/screencheck/internal/tui/client"
	"github.com/screencheck/screencheck/internal/tui/theme"
)

// Model holds the share panel state.
type Model struct {
	State       client.Snapshot
	Preview     *client.PreviewInfo
	Environment *client.Environment
	Busy        bool // a start or stop call is in flight
	Width       int

	spinner spinner.Model
}

// New creates a share panel in the idle state.
func New() Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorRequesting)
	return Model{
		State:   client.Snapshot{Status: screenshare.Idle, IsSupported: true},
		spinner: s,
	}
}

// Tick starts the spinner animation.
func (m Model) Tick() tea.Cmd {
	return m.spinner.Tick
}

// Update advances the spinner.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

// View renders the panel.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	status := m.State.Status
	badge := theme.Badge(status.String(), status.Label())
	if status == screenshare.Requesting {
		badge = m.spinner.View() + " " + badge
	}

	lines := []string{theme.StyleHeader.Render("Screen Share Test"), "", badge}

	if m.State.ErrorMessage != nil && *m.State.ErrorMessage != "" {
		lines = append(lines, "", theme.StyleError.Render(*m.State.ErrorMessage))
	}

	if status == screenshare.Active {
		lines = append(lines, "", renderMetadata(m.State.Metadata))
		if m.Preview != nil && m.Preview.Attached {
			lines = append(lines, theme.StyleDimmed.Render("Preview attached to stream "+m.Preview.StreamID))
		}
	}

	if status == screenshare.Unsupported {
		lines = append(lines, "", theme.StyleDimmed.Render("Screen capture is not available on this system."))
		lines = append(lines, Hints(m.Environment)...)
	}

	lines = append(lines, "", theme.StyleDimmed.Render(actionHint(status, m.Busy)))

	return theme.StyleBorder.
		Width(width-2).
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderMetadata(md client.Metadata) string {
	rows := [][2]string{
		{"Display Type", DisplayType(md)},
		{"Resolution", Resolution(md)},
		{"Frame Rate", FrameRate(md)},
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, theme.StyleLabel.Render(r[0])+r[1])
	}
	return strings.Join(out, "\n")
}

// DisplayType formats the surface type, "Unknown" when absent.
func DisplayType(md client.Metadata) string {
	if md.DisplaySurface == nil {
		return "Unknown"
	}
	return *md.DisplaySurface
}

// Resolution formats "W × H", "—" unless both sides are known.
func Resolution(md client.Metadata) string {
	if md.Width == nil || md.Height == nil || *md.Width == 0 || *md.Height == 0 {
		return "—"
	}
	return fmt.Sprintf("%d × %d", *md.Width, *md.Height)
}

// FrameRate formats the rounded frame rate, "—" when absent.
func FrameRate(md client.Metadata) string {
	if md.FrameRate == nil || *md.FrameRate == 0 {
		return "—"
	}
	return fmt.Sprintf("%d fps", int(math.Round(*md.FrameRate)))
}

// Hints lists what the environment report says is missing for capture.
func Hints(env *client.Environment) []string {
	if env == nil {
		return []string{theme.StyleDimmed.Render("Press e to inspect the environment.")}
	}
	var hints []string
	if !env.SessionBus {
		hints = append(hints, "No D-Bus session bus (DBUS_SESSION_BUS_ADDRESS unset).")
	}
	if !env.PortalRunning() {
		hints = append(hints, "xdg-desktop-portal or its desktop backend is not running.")
	}
	if !env.Services["pipewire"] {
		hints = append(hints, "PipeWire is not running.")
	}
	if !env.Wayland && !env.X11 {
		hints = append(hints, "No graphical session detected.")
	}
	out := make([]string, 0, len(hints))
	for _, h := range hints {
		out = append(out, lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("• "+h))
	}
	return out
}

func actionHint(status screenshare.Status, busy bool) string {
	switch {
	case busy:
		return "working..."
	case status == screenshare.Active:
		return "x: stop sharing"
	case status == screenshare.Requesting:
		return "waiting for the system picker..."
	case status == screenshare.Idle:
		return "s: start screen share"
	default:
		return "s: try again"
	}
}
