package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	// readTimeout must exceed the server's ping period.
	readTimeout = 60 * time.Second
)

// StreamClient follows one session's log stream.
type StreamClient struct {
	url string

	mu      sync.Mutex
	writeMu sync.Mutex // serialises control frame writes (pong, close)
	conn    *websocket.Conn
}

// NewStreamClient builds a client for the log stream of sessionID on the
// server at baseURL (http or https).
func NewStreamClient(baseURL, sessionID string) (*StreamClient, error) {
	u, err := StreamURL(baseURL, sessionID)
	if err != nil {
		return nil, err
	}
	return &StreamClient{url: u}, nil
}

// StreamURL converts http://host:port into ws://host:port/ws/issue-logs/{id}.
func StreamURL(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws/issue-logs/" + url.PathEscape(sessionID)
	return u.String(), nil
}

// URL returns the WebSocket URL the client dials.
func (c *StreamClient) URL() string { return c.url }

// Backoff returns the delay before reconnect attempt n (starting at 1).
func Backoff(n int) time.Duration {
	delay := reconnectBaseDelay
	for i := 1; i < n && delay < reconnectMaxDelay; i++ {
		delay *= 2
	}
	return min(delay, reconnectMaxDelay)
}

// Connect returns a Bubble Tea command that dials the stream.
func (c *StreamClient) Connect(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			return StreamClosedMsg{Err: err}
		}

		conn.SetPingHandler(func(data string) error {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			c.writeMu.Lock()
			defer c.writeMu.Unlock()
			err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		})
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.conn = conn
		c.mu.Unlock()
		return StreamOpenedMsg{}
	}
}

// Next returns a Bubble Tea command that reads one frame. It should be
// reissued after every LineMsg.
func (c *StreamClient) Next() tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return StreamClosedMsg{Err: errors.New("no connection")}
		}

		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				c.drop(conn)
				// 1006 means the peer vanished without a close frame.
				var ce *websocket.CloseError
				if errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
					return StreamClosedMsg{Code: ce.Code, Reason: ce.Text}
				}
				return StreamClosedMsg{Err: err}
			}
			if kind != websocket.TextMessage {
				continue
			}
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			return LineMsg{Line: ParseFrame(string(data))}
		}
	}
}

// Close sends a normal close frame and drops the connection.
func (c *StreamClient) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *StreamClient) drop(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}
