package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.chrisrx.dev/x/run"
)

const (
	handshakeTimeout = 10 * time.Second
	dialTimeout      = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: handshakeTimeout,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// Conn is a websocket Transport. Every frame is one text message.
type Conn struct {
	ws *websocket.Conn

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func NewConn(ctx context.Context, addr string, header http.Header) (*Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	ws, resp, err := dialer.DialContext(ctx, addr, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (status %s)", err, resp.Status)
		}
		return nil, err
	}
	defer resp.Body.Close()
	return &Conn{ws: ws}, nil
}

// Upgrade accepts a websocket connection on an inbound HTTP request.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Conn{ws: ws}, nil
}

func (c *Conn) ReadFrame() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *Conn) WriteFrame(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// KeepAlive pings the peer every interval until ctx is done. Reads fail when
// no pong arrives for three intervals. Call it before the first ReadFrame.
func (c *Conn) KeepAlive(ctx context.Context, interval time.Duration) {
	wait := 3 * interval
	_ = c.ws.SetReadDeadline(time.Now().Add(wait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(wait))
	})
	go run.Every(ctx, func() error {
		return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(interval))
	}, interval)
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		m := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, m, time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}
