// Package envinfo reports the parts of the desktop environment that decide
// whether screen capture can work: the session type, the display servers
// and whether the portal and PipeWire services are running.
package envinfo

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"
)

// Services whose presence is reported. The portal frontend and at least
// one backend must run for ScreenCast to be offered.
var services = []string{
	"xdg-desktop-portal",
	"xdg-desktop-portal-gnome",
	"xdg-desktop-portal-kde",
	"xdg-desktop-portal-wlr",
	"xdg-desktop-portal-hyprland",
	"pipewire",
}

type Report struct {
	OS              string          `json:"os"`
	Platform        string          `json:"platform,omitempty"`
	PlatformVersion string          `json:"platformVersion,omitempty"`
	Kernel          string          `json:"kernel,omitempty"`
	Arch            string          `json:"arch,omitempty"`
	SessionType     string          `json:"sessionType,omitempty"`
	Desktop         string          `json:"desktop,omitempty"`
	Wayland         bool            `json:"wayland"`
	X11             bool            `json:"x11"`
	SessionBus      bool            `json:"sessionBus"`
	Services        map[string]bool `json:"services"`
	IsSupported     bool            `json:"isSupported"`
	Errors          []string        `json:"errors,omitempty"`
}

// PortalRunning reports whether the portal frontend and a backend are up.
func (r Report) PortalRunning() bool {
	if !r.Services["xdg-desktop-portal"] {
		return false
	}
	for name, up := range r.Services {
		if up && strings.HasPrefix(name, "xdg-desktop-portal-") {
			return true
		}
	}
	return false
}

type Collector struct {
	getenv       func(string) string
	hostInfo     func(context.Context) (*host.InfoStat, error)
	processNames func(context.Context) ([]string, error)
}

func NewCollector() *Collector {
	return &Collector{
		getenv:       os.Getenv,
		hostInfo:     host.InfoWithContext,
		processNames: runningProcessNames,
	}
}

// Collect builds a report. Failures to read host or process data are
// recorded in Report.Errors rather than returned.
func (c *Collector) Collect(ctx context.Context, supported bool) Report {
	r := Report{
		SessionType: c.getenv("XDG_SESSION_TYPE"),
		Desktop:     c.getenv("XDG_CURRENT_DESKTOP"),
		Wayland:     c.getenv("WAYLAND_DISPLAY") != "",
		X11:         c.getenv("DISPLAY") != "",
		SessionBus:  c.getenv("DBUS_SESSION_BUS_ADDRESS") != "",
		Services:    make(map[string]bool, len(services)),
		IsSupported: supported,
	}

	if info, err := c.hostInfo(ctx); err != nil {
		r.Errors = append(r.Errors, "host: "+err.Error())
	} else {
		r.OS = info.OS
		r.Platform = info.Platform
		r.PlatformVersion = info.PlatformVersion
		r.Kernel = info.KernelVersion
		r.Arch = info.KernelArch
	}

	for _, s := range services {
		r.Services[s] = false
	}
	names, err := c.processNames(ctx)
	if err != nil {
		r.Errors = append(r.Errors, "processes: "+err.Error())
		return r
	}
	for _, n := range names {
		if svc := matchService(n); svc != "" {
			r.Services[svc] = true
		}
	}
	return r
}

// matchService maps a process name onto one of the reported services.
func matchService(name string) string {
	name = filepath.Base(name)
	for _, s := range services {
		if name == s {
			return s
		}
	}
	return ""
}

func runningProcessNames(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
