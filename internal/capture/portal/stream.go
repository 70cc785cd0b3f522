package portal

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/screencheck/screencheck/internal/capture"
)

// streamInfo is one entry of the Start response's "streams" array.
type streamInfo struct {
	node       uint32
	width      *int
	height     *int
	sourceType *uint32
}

// parseStreams decodes the a(ua{sv}) "streams" result.
func parseStreams(v dbus.Variant) ([]streamInfo, error) {
	if v.Value() == nil {
		return nil, nil
	}

	var entries [][]interface{}
	switch raw := v.Value().(type) {
	case [][]interface{}:
		entries = raw
	case []interface{}:
		for _, e := range raw {
			fields, ok := e.([]interface{})
			if !ok {
				return nil, unreadable("stream entry is %T", e)
			}
			entries = append(entries, fields)
		}
	default:
		return nil, unreadable("streams result is %T", raw)
	}

	infos := make([]streamInfo, 0, len(entries))
	for _, fields := range entries {
		if len(fields) != 2 {
			return nil, unreadable("stream entry has %d fields, want 2", len(fields))
		}
		node, ok := fields[0].(uint32)
		if !ok {
			return nil, unreadable("stream node is %T", fields[0])
		}
		props, ok := fields[1].(map[string]dbus.Variant)
		if !ok {
			return nil, unreadable("stream properties are %T", fields[1])
		}

		info := streamInfo{node: node}
		if size, ok := props["size"]; ok {
			w, h, err := parseSize(size)
			if err != nil {
				return nil, err
			}
			info.width, info.height = &w, &h
		}
		if st, ok := props["source_type"]; ok {
			if t, ok := st.Value().(uint32); ok {
				info.sourceType = &t
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func parseSize(v dbus.Variant) (int, int, error) {
	fields, ok := v.Value().([]interface{})
	if !ok || len(fields) != 2 {
		return 0, 0, unreadable("stream size is %v", v.Value())
	}
	w, ok1 := fields[0].(int32)
	h, ok2 := fields[1].(int32)
	if !ok1 || !ok2 {
		return 0, 0, unreadable("stream size is %v", v.Value())
	}
	return int(w), int(h), nil
}

func unreadable(format string, args ...interface{}) error {
	return capture.NewError(capture.ErrNotReadable, fmt.Sprintf(format, args...))
}

// displaySurface maps a ScreenCast source type onto the display surface
// vocabulary ("monitor", "window").
func displaySurface(sourceType *uint32) *string {
	if sourceType == nil {
		return nil
	}
	var s string
	switch *sourceType {
	case sourceMonitor:
		s = "monitor"
	case sourceWindow:
		s = "window"
	case sourceVirtual:
		s = "virtual"
	default:
		return nil
	}
	return &s
}

// Stream is a portal screen-cast session. Each PipeWire node the portal
// returned becomes one video track.
type Stream struct {
	portal  *Portal
	conn    *dbus.Conn
	session dbus.ObjectPath

	id     string
	tracks []*Track

	mu          sync.Mutex
	closed      bool
	releaseOnce sync.Once
}

// init builds the tracks. It reports false when the portal already closed
// the session.
func (s *Stream) init(infos []streamInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.id = uuid.NewString()
	for _, info := range infos {
		s.tracks = append(s.tracks, &Track{
			stream: s,
			id:     uuid.NewString(),
			node:   info.node,
			settings: capture.Settings{
				DisplaySurface: displaySurface(info.sourceType),
				Width:          info.width,
				Height:         info.height,
			},
			handlers: make(map[int]func()),
		})
	}
	return true
}

func (s *Stream) ID() string { return s.id }

// NodeID returns the PipeWire node of the first track, which a local
// player can connect to for preview.
func (s *Stream) NodeID() uint32 {
	if len(s.tracks) == 0 {
		return 0
	}
	return s.tracks[0].node
}

func (s *Stream) Tracks() []capture.Track {
	out := make([]capture.Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *Stream) VideoTracks() []capture.Track {
	return s.Tracks()
}

// release closes the portal session once and stops routing its signals.
func (s *Stream) release() {
	s.releaseOnce.Do(func() {
		s.portal.unwatch(s.conn, s.session, sessionIface, "Closed")
		s.portal.closeSession(s.conn, s.session)
	})
}

// ended handles the portal closing the session on its own.
func (s *Stream) ended() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	tracks := s.tracks
	s.mu.Unlock()

	s.portal.logger.Infow("Portal session closed", "session", s.session)
	s.portal.unwatch(s.conn, s.session, sessionIface, "Closed")
	for _, t := range tracks {
		t.end()
	}
}

func (s *Stream) trackStopped() {
	for _, t := range s.tracks {
		if !t.isStopped() {
			return
		}
	}
	s.release()
}

type Track struct {
	stream   *Stream
	id       string
	node     uint32
	settings capture.Settings

	mu       sync.Mutex
	stopped  bool
	ended    bool
	nextID   int
	handlers map[int]func()
}

func (t *Track) ID() string                 { return t.id }
func (t *Track) Kind() capture.Kind         { return capture.KindVideo }
func (t *Track) Settings() capture.Settings { return t.settings }

// Stop marks the track stopped; once every track of the stream is stopped
// the portal session is closed. No ended callbacks fire after Stop.
func (t *Track) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.handlers = make(map[int]func())
	t.mu.Unlock()

	t.stream.trackStopped()
}

func (t *Track) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// OnEnded registers fn. If the session already ended, fn runs on a new
// goroutine so callers holding locks are not re-entered.
func (t *Track) OnEnded(fn func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended && !t.stopped {
		go fn()
		return func() {}
	}
	id := t.nextID
	t.nextID++
	t.handlers[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.handlers, id)
	}
}

func (t *Track) end() {
	t.mu.Lock()
	if t.stopped || t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	handlers := make([]func(), 0, len(t.handlers))
	for _, fn := range t.handlers {
		handlers = append(handlers, fn)
	}
	t.handlers = make(map[int]func())
	t.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}
