package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/screencheck/screencheck/internal/screenshare"
	"github.com/screencheck/screencheck/internal/tui/client"
	"github.com/screencheck/screencheck/internal/tui/theme"
	"github.com/screencheck/screencheck/internal/tui/views/events"
	"github.com/screencheck/screencheck/internal/tui/views/share"
	"github.com/screencheck/screencheck/internal/tui/views/status"
)

const reconnectDelay = time.Second

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayEvents
	OverlayEnvironment
)

// Results of HTTP commands.
type (
	startResultMsg struct {
		snap *client.Snapshot
		err  error
	}
	stopResultMsg struct {
		snap *client.Snapshot
		err  error
	}
	envResultMsg struct {
		env *client.Environment
		err error
	}
)

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	http   *client.HTTPClient
	ctx    context.Context
	cancel context.CancelFunc

	keys    KeyMap
	width   int
	height  int
	overlay Overlay

	// Sub-views.
	statusBar status.Model
	share     share.Model
	events    events.Model

	env    *client.Environment
	envErr error

	// Connection state.
	connected bool
}

// New creates the root model.
func New(ws *client.WSClient, http *client.HTTPClient) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		ws:        ws,
		http:      http,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		statusBar: status.New(),
		share:     share.New(),
		events:    events.New(),
	}
}

// Init starts the WebSocket connection.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.ws.Listen(m.ctx, 0), m.share.Tick())
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.share.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.share, cmd = m.share.Update(msg)
		return m, cmd

	case client.WSConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		m.statusBar.Retrying = false
		m.events.Add(events.KindWS, "connected")
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSRetryMsg:
		m.statusBar.Retrying = true
		return m, m.ws.Listen(m.ctx, msg.Delay)

	case client.WSDisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		if msg.Err != nil {
			m.events.Add(events.KindWS, "disconnected: "+msg.Err.Error())
		}
		return m, m.ws.Listen(m.ctx, reconnectDelay)

	case client.WSSnapshotMsg:
		m.setState(msg.Payload.State)
		m.share.Preview = msg.Payload.Preview
		m.syncSeq()
		return m, tea.Batch(m.ws.ReadLoop(m.ctx), m.maybeFetchEnv())

	case client.WSStateMsg:
		for _, s := range msg.Payload.Transitions {
			m.events.AddTransition(s)
		}
		m.setState(msg.Payload.Transitions[len(msg.Payload.Transitions)-1])
		m.syncSeq()
		return m, tea.Batch(m.ws.ReadLoop(m.ctx), m.maybeFetchEnv())

	case client.WSErrorMsg:
		m.events.Add(events.KindError, msg.Payload.Message)
		m.syncSeq()
		return m, m.ws.ReadLoop(m.ctx)

	case startResultMsg:
		m.share.Busy = false
		return m.applyResult("start", msg.snap, msg.err), nil

	case stopResultMsg:
		m.share.Busy = false
		return m.applyResult("stop", msg.snap, msg.err), nil

	case envResultMsg:
		m.env, m.envErr = msg.env, msg.err
		m.share.Environment = msg.env
		if msg.err != nil {
			m.events.Add(events.KindError, "environment: "+msg.err.Error())
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) setState(s client.Snapshot) {
	m.share.State = s
}

func (m *Model) syncSeq() {
	if m.ws == nil {
		return
	}
	m.statusBar.Seq = m.ws.Seq()
	m.statusBar.Gaps = m.ws.Gaps()
}

// applyResult logs a command outcome. The HTTP answer only replaces the
// displayed state while the stream is down; otherwise the stream is newer.
func (m Model) applyResult(name string, snap *client.Snapshot, err error) Model {
	if err != nil {
		m.events.Add(events.KindError, name+": "+err.Error())
		return m
	}
	if snap != nil && !m.connected {
		m.setState(*snap)
	}
	return m
}

// maybeFetchEnv loads the environment report the first time capture is
// reported unsupported.
func (m Model) maybeFetchEnv() tea.Cmd {
	if m.share.State.Status != screenshare.Unsupported || m.env != nil || m.envErr != nil {
		return nil
	}
	return m.fetchEnv()
}

func (m Model) fetchEnv() tea.Cmd {
	hc, ctx := m.http, m.ctx
	return func() tea.Msg {
		env, err := hc.Environment(ctx)
		return envResultMsg{env: env, err: err}
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.cancel()
		return m, tea.Quit
	}

	if m.overlay != OverlayNone {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.overlay = OverlayNone
		case m.overlay == OverlayEvents && key.Matches(msg, m.keys.Up):
			m.events.ScrollUp(1)
		case m.overlay == OverlayEvents && key.Matches(msg, m.keys.Down):
			m.events.ScrollDown(1)
		case m.overlay == OverlayEnvironment && key.Matches(msg, m.keys.Environment):
			m.env, m.envErr = nil, nil
			return m, m.fetchEnv()
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Start):
		if m.share.Busy || m.share.State.Status == screenshare.Requesting {
			return m, nil
		}
		m.share.Busy = true
		m.events.Add(events.KindCmd, "start")
		hc, ctx := m.http, m.ctx
		return m, func() tea.Msg {
			snap, err := hc.Start(ctx)
			return startResultMsg{snap: snap, err: err}
		}

	case key.Matches(msg, m.keys.Stop):
		if m.share.Busy || m.share.State.Status != screenshare.Active {
			return m, nil
		}
		m.share.Busy = true
		m.events.Add(events.KindCmd, "stop")
		hc, ctx := m.http, m.ctx
		return m, func() tea.Msg {
			snap, err := hc.Stop(ctx)
			return stopResultMsg{snap: snap, err: err}
		}

	case key.Matches(msg, m.keys.Environment):
		m.overlay = OverlayEnvironment
		if m.env == nil {
			m.envErr = nil
			return m, m.fetchEnv()
		}
		return m, nil

	case key.Matches(msg, m.keys.Events):
		m.overlay = OverlayEvents
		return m, nil
	}

	return m, nil
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var body string
	switch {
	case m.overlay == OverlayEvents:
		body = m.events.View(m.width, m.height-4)
	case m.overlay == OverlayEnvironment:
		body = share.EnvironmentView(m.env, m.envErr, m.width)
	case !m.connected:
		body = m.renderDisconnected()
	default:
		body = m.share.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusBar.View(),
		body,
		theme.StyleDimmed.Render("  s:start  x:stop  e:environment  d:events  q:quit"),
	)
}

func (m Model) renderDisconnected() string {
	box := lipgloss.NewStyle().
		Padding(1, 4).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorDanger).
		Render(lipgloss.JoinVertical(lipgloss.Center,
			theme.StyleError.Bold(true).Render("DISCONNECTED"),
			"",
			theme.StyleDimmed.Render(fmt.Sprintf("Reconnecting to the screencheck server... (last seq %d)", m.statusBar.Seq)),
		))
	return lipgloss.Place(max(m.width, 40), max(m.height-4, 7), lipgloss.Center, lipgloss.Center, box)
}
