// Package transport defines the event contract shared by every connection
// a planning session can run over.
//
// A Transport behaves like a browser WebSocket: it is created in the
// Connecting state, fires an open event at most once, delivers text frames
// through a message event and ends with exactly one close event. Failures are
// never reported separately, they show up as a close event carrying the error.
//
// Implementations live in sub-packages:
//   - websocket: a direct gorilla/websocket connection
//   - polling: an HTTP polling emulation of a socket
//   - graceful: direct first, polling when the upgrade is blocked
package transport

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrNotOpen = errors.New("transport not open")
	ErrClosed  = errors.New("transport closed")
)

// State is the lifecycle position of a transport handle.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

// String returns a human-readable state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handlers are the callbacks a transport invokes. Any of them may be nil.
type Handlers struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnClose   func(err error)
}

// Transport is one connection handle. Handles are never reused: once closed a
// new handle has to be created.
type Transport interface {
	// Start begins connecting in the background and returns immediately.
	Start(ctx context.Context)
	// Send writes one text frame.
	Send(data []byte) error
	// Close ends the connection and fires the close handler unless it was disabled.
	Close() error
	State() State
	// Degraded reports whether the handle runs over the polling emulation.
	Degraded() bool
	SetHandlers(h Handlers)
	// DisableOnClose drops the close handler so an intentional Close does not
	// reach it.
	DisableOnClose()
}

// Emitter implements the state machine and handler bookkeeping shared by the
// transports. The zero value is ready to use and starts in StateConnecting.
type Emitter struct {
	mu       sync.Mutex
	state    State
	handlers Handlers
}

// SetHandlers replaces the handlers.
func (e *Emitter) SetHandlers(h Handlers) {
	e.mu.Lock()
	e.handlers = h
	e.mu.Unlock()
}

// DisableOnClose drops the close handler.
func (e *Emitter) DisableOnClose() {
	e.mu.Lock()
	e.handlers.OnClose = nil
	e.mu.Unlock()
}

// State returns the current state.
func (e *Emitter) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// EmitOpen moves Connecting to Open and fires OnOpen. It reports false if the
// handle was not connecting.
func (e *Emitter) EmitOpen() bool {
	e.mu.Lock()
	if e.state != StateConnecting {
		e.mu.Unlock()
		return false
	}
	e.state = StateOpen
	fn := e.handlers.OnOpen
	e.mu.Unlock()

	if fn != nil {
		fn()
	}
	return true
}

// EmitMessage fires OnMessage while the handle is open.
func (e *Emitter) EmitMessage(data []byte) {
	e.mu.Lock()
	if e.state != StateOpen {
		e.mu.Unlock()
		return
	}
	fn := e.handlers.OnMessage
	e.mu.Unlock()

	if fn != nil {
		fn(data)
	}
}

// EmitClose moves the handle to Closed and fires OnClose once. It reports
// false if the handle was already closed.
func (e *Emitter) EmitClose(err error) bool {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return false
	}
	e.state = StateClosed
	fn := e.handlers.OnClose
	e.mu.Unlock()

	if fn != nil {
		fn(err)
	}
	return true
}
