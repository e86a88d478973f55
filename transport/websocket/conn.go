package websocket

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/sprint-planning-client/transport"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// DefaultHandshakeTimeout bounds the opening handshake.
	DefaultHandshakeTimeout = 10 * time.Second
)

// Options configure a direct connection.
type Options struct {
	HandshakeTimeout time.Duration
	Header           http.Header
}

// Conn is a direct WebSocket transport handle.
type Conn struct {
	transport.Emitter

	url  string
	opts Options

	mu      sync.Mutex
	ws      *websocket.Conn
	cancel  context.CancelFunc
	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

var _ transport.Transport = (*Conn)(nil)

// New creates a handle for url in the connecting state. Nothing is dialed
// until Start is called.
func New(url string, opts Options) *Conn {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return &Conn{
		url:  url,
		opts: opts,
		done: make(chan struct{}),
	}
}

// URL returns the endpoint the handle dials.
func (c *Conn) URL() string {
	return c.url
}

// Degraded is always false for a direct connection.
func (c *Conn) Degraded() bool {
	return false
}

// Start dials in the background. A failed dial is reported as a close event.
func (c *Conn) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(ctx)
}

func (c *Conn) run(ctx context.Context) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.opts.HandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, c.url, c.opts.Header)
	if err != nil {
		log.Printf("WebSocket dial %s failed: %v", c.url, err)
		c.EmitClose(fmt.Errorf("dial %s: %w", c.url, err))
		return
	}

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		ws.Close()
		return
	default:
	}
	c.ws = ws
	c.mu.Unlock()

	if !c.EmitOpen() {
		ws.Close()
		return
	}

	go c.pingPump(ws)
	c.readPump(ws)
}

// Send writes one text frame. Writes are synchronous so a frame sent right
// before Close is on the wire before the close frame.
func (c *Conn) Send(data []byte) error {
	if c.State() != transport.StateOpen {
		return transport.ErrNotOpen
	}
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return transport.ErrNotOpen
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Close sends a normal close frame, releases the connection and fires the
// close handler unless it was disabled.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		ws := c.ws
		cancel := c.cancel
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if ws != nil {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			err = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			if errors.Is(err, websocket.ErrCloseSent) {
				err = nil
			}
			ws.Close()
		}
	})
	c.EmitClose(nil)
	return err
}

// readPump pumps frames from the connection to the message handler.
func (c *Conn) readPump(ws *websocket.Conn) {
	defer ws.Close()

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Closed locally.
				c.EmitClose(nil)
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.EmitClose(nil)
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			c.EmitClose(err)
			return
		}
		c.EmitMessage(data)
	}
}

// pingPump keeps the connection alive until it is closed.
func (c *Conn) pingPump(ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// IsHandshakeRejected reports whether err comes from a server or intermediary
// that answered the opening handshake without upgrading the connection.
func IsHandshakeRejected(err error) bool {
	return errors.Is(err, websocket.ErrBadHandshake)
}
