// Package portal implements capture.Platform on top of the
// xdg-desktop-portal ScreenCast interface, which is how sandboxed and
// Wayland desktops hand out screen capture on Linux.
//
// Every portal method answers asynchronously: the call returns a request
// handle and the result arrives later as a Request.Response signal on that
// handle. The portal shows its own picker between SelectSources and Start.
package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/screencheck/screencheck/internal/capture"
)

const (
	busName         = "org.freedesktop.portal.Desktop"
	objectPath      = dbus.ObjectPath("/org/freedesktop/portal/desktop")
	screenCastIface = "org.freedesktop.portal.ScreenCast"
	requestIface    = "org.freedesktop.portal.Request"
	sessionIface    = "org.freedesktop.portal.Session"

	requestPathPrefix = "/org/freedesktop/portal/desktop/request/"
)

// Source type bits as defined by the ScreenCast interface.
const (
	sourceMonitor uint32 = 1
	sourceWindow  uint32 = 2
	sourceVirtual uint32 = 4
)

// Response codes of Request.Response.
const (
	responseSuccess   uint32 = 0
	responseCancelled uint32 = 1
)

// Portal is a capture.Platform backed by the session bus. The zero value is
// not usable; call New.
type Portal struct {
	logger *zap.SugaredLogger
	dial   func() (*dbus.Conn, error)

	mu       sync.Mutex
	conn     *dbus.Conn
	watchers map[dbus.ObjectPath]func(*dbus.Signal)
	signals  chan *dbus.Signal

	tokens atomic.Uint64
}

// New returns a portal client that connects to the session bus lazily.
func New(logger *zap.SugaredLogger) *Portal {
	return &Portal{
		logger:   logger.Named("portal"),
		dial:     func() (*dbus.Conn, error) { return dbus.ConnectSessionBus() },
		watchers: make(map[dbus.ObjectPath]func(*dbus.Signal)),
	}
}

// Supported reports whether the portal is reachable and offers monitor or
// window capture. The property is read on every call.
func (p *Portal) Supported() bool {
	conn, err := p.bus()
	if err != nil {
		p.logger.Debugw("Session bus unavailable", "error", err)
		return false
	}
	v, err := conn.Object(busName, objectPath).GetProperty(screenCastIface + ".AvailableSourceTypes")
	if err != nil {
		p.logger.Debugw("ScreenCast interface unavailable", "error", err)
		return false
	}
	types, ok := v.Value().(uint32)
	return ok && types&(sourceMonitor|sourceWindow) != 0
}

// GetDisplayMedia runs the CreateSession, SelectSources, Start sequence.
// Audio is never requested; the portal cannot capture it anyway.
func (p *Portal) GetDisplayMedia(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	conn, err := p.bus()
	if err != nil {
		return nil, capture.WrapError(capture.ErrNotSupported, err)
	}

	res, err := p.request(ctx, conn, "CreateSession", nil, map[string]dbus.Variant{
		"session_handle_token": dbus.MakeVariant(p.token("session")),
	})
	if err != nil {
		return nil, err
	}
	session, err := sessionHandle(res)
	if err != nil {
		return nil, err
	}

	// Watch for the portal closing the session from here on, so a user
	// revoking the share right after Start is not missed.
	s := &Stream{portal: p, conn: conn, session: session}
	if err := p.watch(conn, session, sessionIface, "Closed", func(*dbus.Signal) { go s.ended() }); err != nil {
		p.closeSession(conn, session)
		return nil, fmt.Errorf("watch session: %w", err)
	}

	_, err = p.request(ctx, conn, "SelectSources", []interface{}{session}, map[string]dbus.Variant{
		"types":    dbus.MakeVariant(sourceMonitor | sourceWindow),
		"multiple": dbus.MakeVariant(false),
	})
	if err != nil {
		s.release()
		return nil, err
	}

	res, err = p.request(ctx, conn, "Start", []interface{}{session, ""}, map[string]dbus.Variant{})
	if err != nil {
		s.release()
		return nil, err
	}

	infos, err := parseStreams(res["streams"])
	if err != nil {
		s.release()
		return nil, err
	}
	if len(infos) == 0 {
		s.release()
		return nil, capture.NewError(capture.ErrNotFound, "The portal returned no streams")
	}

	if !s.init(infos) {
		s.release()
		return nil, capture.NewError(capture.ErrNotReadable, "The portal closed the session during setup")
	}
	p.logger.Infow("Portal session started",
		"session", session,
		"node", s.NodeID(),
		"streams", len(infos),
		"requestedFrameRate", c.Video.IdealFrameRate)
	return s, nil
}

// Close drops the bus connection. Streams obtained earlier are not stopped.
func (p *Portal) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

func (p *Portal) bus() (*dbus.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil && p.conn.Connected() {
		return p.conn, nil
	}
	conn, err := p.dial()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	p.conn = conn
	p.signals = make(chan *dbus.Signal, 16)
	conn.Signal(p.signals)
	go p.dispatch(p.signals)
	return conn, nil
}

func (p *Portal) dispatch(ch <-chan *dbus.Signal) {
	for sig := range ch {
		p.mu.Lock()
		fn := p.watchers[sig.Path]
		p.mu.Unlock()
		if fn != nil {
			fn(sig)
		}
	}
}

// watch routes signals iface.member on path to fn until unwatch.
func (p *Portal) watch(conn *dbus.Conn, path dbus.ObjectPath, iface, member string, fn func(*dbus.Signal)) error {
	p.mu.Lock()
	p.watchers[path] = func(sig *dbus.Signal) {
		if sig.Name == iface+"."+member {
			fn(sig)
		}
	}
	p.mu.Unlock()

	err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(iface),
		dbus.WithMatchMember(member),
	)
	if err != nil {
		p.unwatch(conn, path, iface, member)
	}
	return err
}

func (p *Portal) unwatch(conn *dbus.Conn, path dbus.ObjectPath, iface, member string) {
	p.mu.Lock()
	delete(p.watchers, path)
	p.mu.Unlock()

	_ = conn.RemoveMatchSignal(
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(iface),
		dbus.WithMatchMember(member),
	)
}

func (p *Portal) token(kind string) string {
	return fmt.Sprintf("screencheck_%s_%d", kind, p.tokens.Add(1))
}

// request calls a ScreenCast method and waits for its Response signal.
// args precede the options dictionary, which gets a handle_token added.
func (p *Portal) request(ctx context.Context, conn *dbus.Conn, method string, args []interface{}, opts map[string]dbus.Variant) (map[string]dbus.Variant, error) {
	token := p.token("req")
	path := requestPath(senderName(conn), token)
	opts["handle_token"] = dbus.MakeVariant(token)

	type response struct {
		code    uint32
		results map[string]dbus.Variant
		err     error
	}
	done := make(chan response, 1)
	onResponse := func(sig *dbus.Signal) {
		code, results, err := parseResponse(sig.Body)
		select {
		case done <- response{code, results, err}:
		default:
		}
	}

	if err := p.watch(conn, path, requestIface, "Response", onResponse); err != nil {
		return nil, fmt.Errorf("portal %s: watch response: %w", method, err)
	}
	defer p.unwatch(conn, path, requestIface, "Response")

	var handle dbus.ObjectPath
	call := conn.Object(busName, objectPath).CallWithContext(ctx, screenCastIface+"."+method, 0, append(args, opts)...)
	if err := call.Store(&handle); err != nil {
		if ctx.Err() != nil {
			return nil, capture.WrapError(capture.ErrAbort, ctx.Err())
		}
		return nil, callError(method, err)
	}
	if handle != path {
		// Portals older than version 0.9 pick their own handle path.
		p.logger.Debugw("Portal returned unexpected request handle", "want", path, "got", handle)
		if err := p.watch(conn, handle, requestIface, "Response", onResponse); err != nil {
			return nil, fmt.Errorf("portal %s: watch response: %w", method, err)
		}
		defer p.unwatch(conn, handle, requestIface, "Response")
	}

	select {
	case r := <-done:
		if r.err != nil {
			return nil, capture.WrapError(capture.ErrNotReadable, r.err)
		}
		if err := responseError(r.code); err != nil {
			p.logger.Debugw("Portal request rejected", "method", method, "code", r.code)
			return nil, err
		}
		return r.results, nil
	case <-ctx.Done():
		_ = conn.Object(busName, handle).Call(requestIface+".Close", 0).Err
		return nil, capture.WrapError(capture.ErrAbort, ctx.Err())
	}
}

func (p *Portal) closeSession(conn *dbus.Conn, session dbus.ObjectPath) {
	if err := conn.Object(busName, session).Call(sessionIface+".Close", 0).Err; err != nil {
		p.logger.Debugw("Failed to close portal session", "session", session, "error", err)
	}
}

// senderName turns the connection's unique name (":1.42") into the form
// used in request paths ("1_42").
func senderName(conn *dbus.Conn) string {
	names := conn.Names()
	if len(names) == 0 {
		return ""
	}
	return escapeSender(names[0])
}

func escapeSender(unique string) string {
	return strings.ReplaceAll(strings.TrimPrefix(unique, ":"), ".", "_")
}

func requestPath(sender, token string) dbus.ObjectPath {
	return dbus.ObjectPath(requestPathPrefix + sender + "/" + token)
}

func responseError(code uint32) error {
	switch code {
	case responseSuccess:
		return nil
	case responseCancelled:
		return capture.NewError(capture.ErrNotAllowed, "The request was dismissed")
	default:
		return capture.NewError(capture.ErrAbort, "The request was ended by the portal")
	}
}

// callError maps a failed method call onto the capture error vocabulary.
func callError(method string, err error) error {
	switch dbusErrorName(err) {
	case "org.freedesktop.DBus.Error.AccessDenied", "org.freedesktop.portal.Error.NotAllowed":
		return &capture.Error{Name: capture.ErrNotAllowed, Message: "Permission denied", Err: err}
	case "org.freedesktop.DBus.Error.ServiceUnknown",
		"org.freedesktop.DBus.Error.UnknownMethod",
		"org.freedesktop.DBus.Error.UnknownInterface":
		return &capture.Error{Name: capture.ErrNotSupported, Message: "The screen cast portal is not available", Err: err}
	}
	return fmt.Errorf("portal %s: %w", method, err)
}

func dbusErrorName(err error) string {
	var v dbus.Error
	if errors.As(err, &v) {
		return v.Name
	}
	var p *dbus.Error
	if errors.As(err, &p) && p != nil {
		return p.Name
	}
	return ""
}

func parseResponse(body []interface{}) (uint32, map[string]dbus.Variant, error) {
	if len(body) != 2 {
		return 0, nil, fmt.Errorf("response has %d fields, want 2", len(body))
	}
	code, ok := body[0].(uint32)
	if !ok {
		return 0, nil, fmt.Errorf("response code is %T", body[0])
	}
	results, ok := body[1].(map[string]dbus.Variant)
	if !ok {
		return 0, nil, fmt.Errorf("response results are %T", body[1])
	}
	return code, results, nil
}

func sessionHandle(res map[string]dbus.Variant) (dbus.ObjectPath, error) {
	v, ok := res["session_handle"]
	if !ok {
		return "", capture.NewError(capture.ErrInvalidState, "The portal did not return a session")
	}
	switch h := v.Value().(type) {
	case string:
		return dbus.ObjectPath(h), nil
	case dbus.ObjectPath:
		return h, nil
	}
	return "", capture.NewError(capture.ErrInvalidState, fmt.Sprintf("unexpected session handle %v", v))
}
