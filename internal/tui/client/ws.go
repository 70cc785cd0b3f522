package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

// WSClient manages the WebSocket connection to the screencheck server.
type WSClient struct {
	url string

	mu      sync.Mutex
	writeMu sync.Mutex // serialises conn writes
	conn    *websocket.Conn
	seq     uint64
	gaps    int
	pingCtx context.CancelFunc // cancels the active ping goroutine
}

// NewWSClient creates a client for the given WebSocket URL. A non-empty
// token is sent as the token query parameter.
func NewWSClient(rawURL, token string) *WSClient {
	if token != "" {
		if u, err := url.Parse(rawURL); err == nil {
			q := u.Query()
			q.Set("token", token)
			u.RawQuery = q.Encode()
			rawURL = u.String()
		}
	}
	return &WSClient{url: rawURL}
}

// --- Bubble Tea messages ---

// WSConnectedMsg is sent when the WebSocket connects.
type WSConnectedMsg struct{}

// WSDisconnectedMsg is sent when the connection drops.
type WSDisconnectedMsg struct{ Err error }

// WSRetryMsg reports a failed dial; Listen keeps retrying.
type WSRetryMsg struct {
	Err   error
	Delay time.Duration
}

// WSSnapshotMsg delivers the full current state.
type WSSnapshotMsg struct{ Payload SnapshotPayload }

// WSStateMsg delivers the transitions since the previous message.
type WSStateMsg struct{ Payload StatePayload }

// WSErrorMsg wraps a server-side error.
type WSErrorMsg struct{ Payload ErrorPayload }

// Listen returns a Bubble Tea command that dials once, waiting delay
// first. On failure it returns WSRetryMsg carrying the next delay.
func (c *WSClient) Listen(ctx context.Context, delay time.Duration) tea.Cmd {
	return func() tea.Msg {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			next := reconnectBaseDelay
			if delay > 0 {
				next = min(delay*2, reconnectMaxDelay)
			}
			return WSRetryMsg{Err: err, Delay: next}
		}

		// Cancel any previous ping goroutine.
		c.mu.Lock()
		if c.pingCtx != nil {
			c.pingCtx()
		}
		pingCtx, pingCancel := context.WithCancel(ctx)
		c.conn = conn
		c.seq = 0
		c.pingCtx = pingCancel
		c.mu.Unlock()

		go c.pingLoop(pingCtx, conn)

		return WSConnectedMsg{}
	}
}

// ReadLoop returns a Bubble Tea command that reads until the next message
// the UI cares about. It should be started after WSConnectedMsg and
// re-issued after each message it returns.
func (c *WSClient) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return WSDisconnectedMsg{Err: fmt.Errorf("no connection")}
		}

		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongTimeout))
			return nil
		})
		conn.SetReadDeadline(time.Now().Add(pongTimeout))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.mu.Lock()
				if c.conn == conn {
					c.conn = nil
				}
				c.mu.Unlock()
				conn.Close()
				return WSDisconnectedMsg{Err: err}
			}

			var msg WSMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			c.trackSeq(msg.Seq)

			if teaMsg := decode(msg); teaMsg != nil {
				return teaMsg
			}
		}
	}
}

// trackSeq records the sequence number and counts gaps, which mean the
// server dropped messages for this client.
func (c *WSClient) trackSeq(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq != 0 && seq != c.seq+1 {
		c.gaps++
	}
	c.seq = seq
}

// pingLoop sends periodic pings on the given connection. It exits when the
// context is cancelled or the connection changes.
func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			cc := c.conn
			c.mu.Unlock()
			if cc != conn {
				return
			}
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Seq returns the last seen sequence number.
func (c *WSClient) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Gaps returns how many sequence gaps were seen.
func (c *WSClient) Gaps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gaps
}

// Close drops the connection.
func (c *WSClient) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if c.pingCtx != nil {
		c.pingCtx()
	}
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func decode(msg WSMessage) tea.Msg {
	switch msg.Type {
	case MsgSnapshot:
		var p SnapshotPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			return WSSnapshotMsg{Payload: p}
		}
	case MsgState:
		var p StatePayload
		if json.Unmarshal(msg.Payload, &p) == nil && len(p.Transitions) > 0 {
			return WSStateMsg{Payload: p}
		}
	case MsgError:
		var p ErrorPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			return WSErrorMsg{Payload: p}
		}
	}
	return nil
}
