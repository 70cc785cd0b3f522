package share

import (
	"sort"

	"github.com/charmbracelet/lipgloss"

	"github.com/screencheck/screencheck/internal/tui/client"
	"github.com/screencheck/screencheck/internal/tui/theme"
)

// EnvironmentView renders the environment report as an overlay panel.
func EnvironmentView(env *client.Environment, err error, width int) string {
	innerW := max(width-4, 20)
	title := theme.StyleHeader.Render(" ENVIRONMENT ")
	help := theme.StyleDimmed.Render("e:refresh  esc:close")

	var body []string
	switch {
	case err != nil:
		body = append(body, theme.StyleError.Render("Failed to load environment: "+err.Error()))
	case env == nil:
		body = append(body, theme.StyleDimmed.Render("Loading..."))
	default:
		body = append(body,
			row("OS", orDash(env.OS+" "+env.Arch)),
			row("Platform", orDash(env.Platform+" "+env.PlatformVersion)),
			row("Kernel", orDash(env.Kernel)),
			row("Session", orDash(env.SessionType)),
			row("Desktop", orDash(env.Desktop)),
			row("Wayland", yesNo(env.Wayland)),
			row("X11", yesNo(env.X11)),
			row("Session bus", yesNo(env.SessionBus)),
			row("Capture", yesNo(env.IsSupported)),
			"",
		)
		names := make([]string, 0, len(env.Services))
		for name := range env.Services {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			body = append(body, serviceLine(name, env.Services[name]))
		}
		for _, e := range env.Errors {
			body = append(body, theme.StyleError.Render(e))
		}
		if hints := Hints(env); len(hints) > 0 {
			body = append(body, "")
			body = append(body, hints...)
		}
	}

	content := append([]string{title, ""}, body...)
	content = append(content, "", help)
	return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, content...))
}

func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)
}

func row(label, value string) string {
	return theme.StyleLabel.Render(label) + value
}

func serviceLine(name string, up bool) string {
	if up {
		return lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● " + name)
	}
	return theme.StyleDimmed.Render("○ " + name)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if len(s) == 0 || s == " " {
		return "—"
	}
	return s
}
