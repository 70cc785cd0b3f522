package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/screencheck/screencheck/internal/preview"
	"github.com/screencheck/screencheck/internal/screenshare"
)

// ErrTooManyConnections is returned by AddClient when the connection limit
// is reached.
var ErrTooManyConnections = errors.New("too many websocket connections")

const sendBuffer = 64

// StateSource provides the current controller state.
type StateSource interface {
	Snapshot() screenshare.Snapshot
}

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func newClient(conn *websocket.Conn, b *Broadcaster) *client {
	c := &client{
		conn: conn,
		b:    b,
		send: make(chan []byte, sendBuffer),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans controller state out to WebSocket clients. It is a
// screenshare.Observer: transitions are queued and flushed as one state
// message per throttle window, and a full snapshot goes out every
// snapshot interval.
type Broadcaster struct {
	logger   *zap.SugaredLogger
	source   StateSource
	surface  *preview.Surface
	throttle time.Duration
	maxConns int

	mu      sync.RWMutex
	clients map[*client]bool

	// sendMu keeps sequence numbers in send order.
	sendMu sync.Mutex
	seq    atomic.Uint64

	// flushMu orders state and snapshot messages: both are sent while it
	// is held, and pending transitions always go out before a snapshot.
	// Lock order: flushMu, sendMu, mu.
	flushMu    sync.Mutex
	pending    []screenshare.Snapshot
	latest     *screenshare.Snapshot
	flushTimer *time.Timer

	snapshotTicker *time.Ticker
	done           chan struct{}
	stopOnce       sync.Once
}

// NewBroadcaster starts the periodic snapshot loop. surface may be nil.
// maxConns of zero means unlimited.
func NewBroadcaster(source StateSource, surface *preview.Surface, logger *zap.SugaredLogger, throttle, snapshotInterval time.Duration, maxConns int) *Broadcaster {
	b := &Broadcaster{
		logger:   logger.Named("ws"),
		source:   source,
		surface:  surface,
		throttle: throttle,
		maxConns: maxConns,
		clients:  make(map[*client]bool),
		done:     make(chan struct{}),
	}

	b.snapshotTicker = time.NewTicker(snapshotInterval)
	go b.snapshotLoop()

	return b
}

// AddClient registers conn and queues the current snapshot for it.
// Transitions still pending go to the existing clients first.
func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	current := b.source.Snapshot()

	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.flushLocked()

	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	c := newClient(conn, b)
	b.clients[c] = true
	b.mu.Unlock()

	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	data, err := b.encode(MsgSnapshot, b.snapshotPayloadLocked(current))
	if err != nil {
		return c, nil
	}
	b.mu.RLock()
	if b.clients[c] {
		select {
		case c.send <- data:
		default:
			// Client too slow, drop the snapshot
		}
	}
	b.mu.RUnlock()

	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// StateChanged queues s for the next state message.
func (b *Broadcaster) StateChanged(s screenshare.Snapshot) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.pending = append(b.pending, s)
	latest := s.Clone()
	b.latest = &latest

	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

// BroadcastError sends an error message to every client.
func (b *Broadcaster) BroadcastError(msg string) {
	b.broadcast(MsgError, ErrorPayload{Message: msg})
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	b.flushLocked()
}

// flushLocked sends the pending transitions. Caller must hold b.flushMu.
func (b *Broadcaster) flushLocked() {
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
	pending := b.pending
	b.pending = nil
	if len(pending) == 0 {
		return
	}
	b.broadcast(MsgState, StatePayload{Transitions: pending})
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.done:
			return
		case <-b.snapshotTicker.C:
			b.sendSnapshot()
		}
	}
}

// sendSnapshot flushes pending transitions, then sends a full snapshot.
func (b *Broadcaster) sendSnapshot() {
	// Read outside flushMu: the source may be delivering a transition to
	// StateChanged and waiting on it.
	current := b.source.Snapshot()

	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	b.flushLocked()
	b.broadcast(MsgSnapshot, b.snapshotPayloadLocked(current))
}

// snapshotPayloadLocked builds a snapshot payload from the last observed
// transition, so it is never older than a state message already sent.
// current supplies the state before any transition was observed and the
// fresh capability flag. Caller must hold b.flushMu.
func (b *Broadcaster) snapshotPayloadLocked(current screenshare.Snapshot) SnapshotPayload {
	state := current
	if b.latest != nil {
		state = b.latest.Clone()
		state.IsSupported = current.IsSupported
	}
	p := SnapshotPayload{State: state}
	if b.surface != nil {
		info := b.surface.Info()
		p.Preview = &info
	}
	return p
}

func (b *Broadcaster) encode(t MessageType, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(WSMessage{Type: t, Seq: b.seq.Add(1), Payload: payload})
	if err != nil {
		b.logger.Errorw("Failed to marshal message", "type", t, "error", err)
	}
	return data, err
}

func (b *Broadcaster) broadcast(t MessageType, payload interface{}) {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	data, err := b.encode(t, payload)
	if err != nil {
		return
	}

	// Sends happen under the read lock so RemoveClient cannot close a
	// channel mid-send.
	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		// Client can't keep up, disconnect it
		b.logger.Warnw("WebSocket client too slow, disconnecting", "remote", c.conn.RemoteAddr())
		b.RemoveClient(c)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Stop ends the snapshot loop, flushes pending transitions and disconnects
// every client.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		b.snapshotTicker.Stop()
		close(b.done)

		b.flush()

		b.mu.Lock()
		for c := range b.clients {
			delete(b.clients, c)
			c.close()
		}
		b.mu.Unlock()
	})
}
