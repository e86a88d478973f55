// Package graceful opens a planning session channel that degrades on its own.
//
// A graceful handle tries a direct WebSocket first. When the opening
// handshake is answered without an upgrade, which is what proxies and other
// intermediaries that do not support WebSockets do, the handle substitutes the
// polling emulation in place and reports Degraded from then on. Callers see one
// handle and one set of events either way.
//
// ForceFallback skips the WebSocket attempt entirely. Sessions set it when a
// previous page load concluded the direct channel is blocked.
//
// Any other dial failure (refused, unreachable, timed out) is reported as a
// close event so the caller's reconnect strategy can decide what to do next.
package graceful

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/wricardo/sprint-planning-client/transport"
	"github.com/wricardo/sprint-planning-client/transport/polling"
	"github.com/wricardo/sprint-planning-client/transport/websocket"
)

// Options configure a graceful handle.
type Options struct {
	ForceFallback bool
	WebSocket     websocket.Options
	Polling       polling.Options
}

// Conn is a graceful transport handle. It forwards to whichever inner
// transport is active.
type Conn struct {
	url  string
	opts Options

	mu       sync.Mutex
	handlers transport.Handlers
	inner    transport.Transport
	degraded bool
	ctx      context.Context
	closed   bool
}

var _ transport.Transport = (*Conn)(nil)

// New creates a graceful handle for a ws:// or wss:// channel URL.
func New(url string, opts Options) *Conn {
	return &Conn{url: url, opts: opts}
}

// Start connects in the background.
func (c *Conn) Start(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	if c.opts.ForceFallback {
		log.Printf("Fallback requested, polling %s", c.url)
		c.startPolling(nil)
		return
	}

	ws := websocket.New(c.url, c.opts.WebSocket)
	c.mu.Lock()
	c.inner = ws
	c.mu.Unlock()

	ws.SetHandlers(transport.Handlers{
		OnOpen:    c.onOpen,
		OnMessage: c.onMessage,
		OnClose: func(err error) {
			if websocket.IsHandshakeRejected(err) && !c.isClosed() {
				log.Printf("WebSocket upgrade rejected for %s, falling back to polling", c.url)
				c.startPolling(err)
				return
			}
			c.onClose(err)
		},
	})
	ws.Start(ctx)
}

// startPolling swaps in the polling emulation. cause is the error that made
// the direct attempt fail, if any.
func (c *Conn) startPolling(cause error) {
	p, err := polling.New(c.url, c.opts.Polling)
	if err != nil {
		if cause != nil {
			err = fmt.Errorf("%w (after %v)", err, cause)
		}
		c.onClose(err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.inner = p
	c.degraded = true
	ctx := c.ctx
	c.mu.Unlock()

	p.SetHandlers(transport.Handlers{
		OnOpen:    c.onOpen,
		OnMessage: c.onMessage,
		OnClose:   c.onClose,
	})
	p.Start(ctx)
}

func (c *Conn) onOpen() {
	c.mu.Lock()
	fn := c.handlers.OnOpen
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Conn) onMessage(data []byte) {
	c.mu.Lock()
	fn := c.handlers.OnMessage
	c.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

func (c *Conn) onClose(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	fn := c.handlers.OnClose
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) current() transport.Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner
}

// Send writes one frame on the active transport.
func (c *Conn) Send(data []byte) error {
	inner := c.current()
	if inner == nil {
		return transport.ErrNotOpen
	}
	return inner.Send(data)
}

// Close closes the active transport.
func (c *Conn) Close() error {
	inner := c.current()
	if inner == nil {
		c.onClose(nil)
		return nil
	}
	return inner.Close()
}

// State returns the state of the active transport.
func (c *Conn) State() transport.State {
	c.mu.Lock()
	inner, closed := c.inner, c.closed
	c.mu.Unlock()

	switch {
	case closed:
		return transport.StateClosed
	case inner == nil:
		return transport.StateConnecting
	}
	if st := inner.State(); st != transport.StateClosed {
		return st
	}
	// The direct attempt failed and polling is taking over.
	return transport.StateConnecting
}

// Degraded reports whether the handle runs over the polling emulation.
func (c *Conn) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// SetHandlers replaces the handlers.
func (c *Conn) SetHandlers(h transport.Handlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

// DisableOnClose drops the close handler.
func (c *Conn) DisableOnClose() {
	c.mu.Lock()
	c.handlers.OnClose = nil
	c.mu.Unlock()
}
