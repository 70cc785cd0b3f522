// Package theme provides the Lip Gloss color palette and reusable styles
// for the screencheck TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Share status colors.
var (
	ColorIdle        = lipgloss.Color("#9ca3af")
	ColorRequesting  = lipgloss.Color("#2563eb")
	ColorActive      = lipgloss.Color("#16a34a")
	ColorCancelled   = lipgloss.Color("#d97706")
	ColorDenied      = lipgloss.Color("#dc2626")
	ColorErrored     = lipgloss.Color("#b91c1c")
	ColorStopped     = lipgloss.Color("#7c3aed")
	ColorUnsupported = lipgloss.Color("#374151")
	ColorDefault     = lipgloss.Color("#9ca3af")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StatusColor returns the color for a share status name.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "idle":
		return ColorIdle
	case "requesting":
		return ColorRequesting
	case "active":
		return ColorActive
	case "cancelled":
		return ColorCancelled
	case "denied":
		return ColorDenied
	case "error":
		return ColorErrored
	case "stopped":
		return ColorStopped
	case "unsupported":
		return ColorUnsupported
	default:
		return ColorDefault
	}
}

// StatusGlyph returns a Unicode glyph for a share status name.
func StatusGlyph(status string) string {
	switch status {
	case "idle":
		return "○"
	case "requesting":
		return "◎"
	case "active":
		return "●"
	case "cancelled":
		return "◌"
	case "denied", "error":
		return "✗"
	case "stopped":
		return "■"
	case "unsupported":
		return "?"
	default:
		return "·"
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorDanger)

	StyleLabel = lipgloss.NewStyle().
			Foreground(ColorDimmed).
			Width(14)
)

// Badge renders a status label as a colored pill.
func Badge(status, label string) string {
	return lipgloss.NewStyle().
		Bold(true).
		Padding(0, 1).
		Foreground(ColorBg).
		Background(StatusColor(status)).
		Render(StatusGlyph(status) + " " + label)
}
