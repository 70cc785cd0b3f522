package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/screencheck/screencheck/internal/screenshare"
)

type staticSource struct {
	mu   sync.Mutex
	snap screenshare.Snapshot
}

func (s *staticSource) Snapshot() screenshare.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func newTestBroadcaster() *Broadcaster {
	return &Broadcaster{
		logger:  zap.NewNop().Sugar(),
		source:  &staticSource{},
		clients: make(map[*client]bool),
	}
}

// dialTestWS creates a test HTTP server that upgrades to WebSocket and returns
// the server-side connection. The caller must close both the server and the
// returned connection.
func dialTestWS(t *testing.T) (*httptest.Server, *websocket.Conn, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}

	select {
	case serverConn := <-connCh:
		return srv, serverConn, clientConn
	case <-time.After(2 * time.Second):
		srv.Close()
		t.Fatal("timed out waiting for server-side WebSocket connection")
		return nil, nil, nil
	}
}

func TestAddClient_MaxConnections(t *testing.T) {
	const maxConns = 2
	b := NewBroadcaster(&staticSource{}, nil, zap.NewNop().Sugar(), 100*time.Millisecond, time.Hour, maxConns)
	defer b.Stop()

	var clients []*client
	var servers []*httptest.Server
	defer func() {
		for _, srv := range servers {
			srv.Close()
		}
	}()

	for i := 0; i < maxConns; i++ {
		srv, conn, peer := dialTestWS(t)
		defer peer.Close()
		servers = append(servers, srv)

		c, err := b.AddClient(conn)
		if err != nil {
			t.Fatalf("AddClient[%d]: unexpected error: %v", i, err)
		}
		clients = append(clients, c)
	}

	if got := b.ClientCount(); got != maxConns {
		t.Fatalf("expected %d clients, got %d", maxConns, got)
	}

	srv, conn, peer := dialTestWS(t)
	defer peer.Close()
	defer conn.Close()
	servers = append(servers, srv)

	if _, err := b.AddClient(conn); !errors.Is(err, ErrTooManyConnections) {
		t.Fatalf("expected ErrTooManyConnections, got %v", err)
	}

	b.RemoveClient(clients[0])

	srv2, conn2, peer2 := dialTestWS(t)
	defer peer2.Close()
	servers = append(servers, srv2)

	if _, err := b.AddClient(conn2); err != nil {
		t.Fatalf("AddClient after removal: unexpected error: %v", err)
	}
	if got := b.ClientCount(); got != maxConns {
		t.Fatalf("expected %d clients after re-add, got %d", maxConns, got)
	}
}

func TestWritePump_RemovesClientOnWriteError(t *testing.T) {
	srv, serverConn, peer := dialTestWS(t)
	defer srv.Close()
	defer peer.Close()

	b := newTestBroadcaster()

	// Build a client directly so we control when writePump starts.
	c := &client{
		conn: serverConn,
		b:    b,
		send: make(chan []byte, sendBuffer),
	}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	serverConn.Close()
	c.send <- []byte(`{"type":"test"}`)
	go c.writePump()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.ClientCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client not removed after write error; ClientCount = %d", b.ClientCount())
}

func TestBroadcast_DropsSlowClient(t *testing.T) {
	srv, serverConn, peer := dialTestWS(t)
	defer srv.Close()
	defer peer.Close()
	defer serverConn.Close()

	b := newTestBroadcaster()

	// No writePump: the buffer fills and the next message overflows it.
	c := &client{conn: serverConn, b: b, send: make(chan []byte, 1)}
	b.clients[c] = true

	b.broadcast(MsgSnapshot, SnapshotPayload{})
	if b.ClientCount() != 1 {
		t.Fatal("client with room in its buffer should stay")
	}

	b.broadcast(MsgSnapshot, SnapshotPayload{})
	if b.ClientCount() != 0 {
		t.Error("client with a full buffer should be dropped")
	}
}

func TestStateChanged_CoalescesWithinThrottle(t *testing.T) {
	srv, conn, peer := dialTestWS(t)
	defer srv.Close()
	defer peer.Close()

	b := NewBroadcaster(&staticSource{}, nil, zap.NewNop().Sugar(), 30*time.Millisecond, time.Hour, 0)
	defer b.Stop()
	if _, err := b.AddClient(conn); err != nil {
		t.Fatal(err)
	}

	b.StateChanged(screenshare.Snapshot{Status: screenshare.Requesting})
	b.StateChanged(screenshare.Snapshot{Status: screenshare.Active})
	b.StateChanged(screenshare.Snapshot{Status: screenshare.Stopped})

	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first, second struct {
		Type    MessageType     `json:"type"`
		Seq     uint64          `json:"seq"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := peer.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.Type != MsgSnapshot || first.Seq != 1 {
		t.Fatalf("first = %s #%d, want snapshot #1", first.Type, first.Seq)
	}
	if err := peer.ReadJSON(&second); err != nil {
		t.Fatal(err)
	}
	if second.Type != MsgState || second.Seq != 2 {
		t.Fatalf("second = %s #%d, want state #2", second.Type, second.Seq)
	}

	var sp StatePayload
	if err := json.Unmarshal(second.Payload, &sp); err != nil {
		t.Fatal(err)
	}
	want := []screenshare.Status{screenshare.Requesting, screenshare.Active, screenshare.Stopped}
	if len(sp.Transitions) != len(want) {
		t.Fatalf("transitions = %d, want %d", len(sp.Transitions), len(want))
	}
	for i, s := range sp.Transitions {
		if s.Status != want[i] {
			t.Errorf("transition %d = %s, want %s", i, s.Status, want[i])
		}
	}
}

func TestBroadcaster_SequenceNumberIncrement(t *testing.T) {
	b := newTestBroadcaster()

	if b.seq.Load() != 0 {
		t.Errorf("expected initial seq to be 0, got %d", b.seq.Load())
	}

	for i := 1; i <= 5; i++ {
		data, err := b.encode(MsgError, ErrorPayload{Message: "x"})
		if err != nil {
			t.Fatal(err)
		}
		var msg struct {
			Seq uint64 `json:"seq"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Seq != uint64(i) {
			t.Errorf("seq = %d, want %d", msg.Seq, i)
		}
	}
}

func TestBroadcaster_SequenceNumberWrapAround(t *testing.T) {
	b := newTestBroadcaster()

	maxUint64 := ^uint64(0)
	b.seq.Store(maxUint64 - 3)

	var seqs []uint64
	for i := 0; i < 5; i++ {
		seqs = append(seqs, b.seq.Add(1))
	}

	expected := []uint64{maxUint64 - 2, maxUint64 - 1, maxUint64, 0, 1}
	for i := range expected {
		if seqs[i] != expected[i] {
			t.Errorf("seq[%d]: expected %d, got %d", i, expected[i], seqs[i])
		}
	}
}

func TestStop_DisconnectsClients(t *testing.T) {
	srv, conn, peer := dialTestWS(t)
	defer srv.Close()
	defer peer.Close()

	b := NewBroadcaster(&staticSource{}, nil, zap.NewNop().Sugar(), time.Hour, time.Hour, 0)
	if _, err := b.AddClient(conn); err != nil {
		t.Fatal(err)
	}
	b.Stop()
	b.Stop()

	if b.ClientCount() != 0 {
		t.Errorf("ClientCount = %d after Stop", b.ClientCount())
	}
}

type rawMessage struct {
	Type    MessageType     `json:"type"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

func TestSnapshot_FollowsPendingTransitions(t *testing.T) {
	srv, conn, peer := dialTestWS(t)
	defer srv.Close()
	defer peer.Close()

	// The source already reports a newer state than the queued transitions.
	source := &staticSource{snap: screenshare.Snapshot{Status: screenshare.Stopped, IsSupported: true}}
	b := NewBroadcaster(source, nil, zap.NewNop().Sugar(), time.Hour, time.Hour, 0)
	defer b.Stop()
	if _, err := b.AddClient(conn); err != nil {
		t.Fatal(err)
	}

	b.StateChanged(screenshare.Snapshot{Status: screenshare.Requesting})
	b.StateChanged(screenshare.Snapshot{Status: screenshare.Active})
	b.sendSnapshot()

	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msgs []rawMessage
	for i := 0; i < 3; i++ {
		var m rawMessage
		if err := peer.ReadJSON(&m); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		msgs = append(msgs, m)
	}

	if msgs[1].Type != MsgState || msgs[2].Type != MsgSnapshot {
		t.Fatalf("messages = %s, %s, want state then snapshot", msgs[1].Type, msgs[2].Type)
	}

	var sp StatePayload
	if err := json.Unmarshal(msgs[1].Payload, &sp); err != nil {
		t.Fatal(err)
	}
	if len(sp.Transitions) != 2 || sp.Transitions[1].Status != screenshare.Active {
		t.Errorf("transitions = %+v", sp.Transitions)
	}

	var snap SnapshotPayload
	if err := json.Unmarshal(msgs[2].Payload, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.State.Status != screenshare.Active {
		t.Errorf("snapshot status = %s, want the last sent transition (active)", snap.State.Status)
	}
	if !snap.State.IsSupported {
		t.Error("snapshot should carry the source's capability flag")
	}
}

func TestAddClient_PendingTransitionsGoToExistingClients(t *testing.T) {
	srv1, conn1, peer1 := dialTestWS(t)
	defer srv1.Close()
	defer peer1.Close()
	srv2, conn2, peer2 := dialTestWS(t)
	defer srv2.Close()
	defer peer2.Close()

	b := NewBroadcaster(&staticSource{}, nil, zap.NewNop().Sugar(), time.Hour, time.Hour, 0)
	defer b.Stop()
	if _, err := b.AddClient(conn1); err != nil {
		t.Fatal(err)
	}
	b.StateChanged(screenshare.Snapshot{Status: screenshare.Requesting})
	if _, err := b.AddClient(conn2); err != nil {
		t.Fatal(err)
	}

	read := func(peer *websocket.Conn) rawMessage {
		t.Helper()
		peer.SetReadDeadline(time.Now().Add(2 * time.Second))
		var m rawMessage
		if err := peer.ReadJSON(&m); err != nil {
			t.Fatal(err)
		}
		return m
	}

	if m := read(peer1); m.Type != MsgSnapshot {
		t.Fatalf("first client message 1 = %s, want snapshot", m.Type)
	}
	if m := read(peer1); m.Type != MsgState {
		t.Fatalf("first client message 2 = %s, want state", m.Type)
	}

	m := read(peer2)
	if m.Type != MsgSnapshot {
		t.Fatalf("second client message = %s, want snapshot", m.Type)
	}
	var snap SnapshotPayload
	if err := json.Unmarshal(m.Payload, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.State.Status != screenshare.Requesting {
		t.Errorf("second client snapshot = %s, want requesting", snap.State.Status)
	}
}
