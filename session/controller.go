package session

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wricardo/sprint-planning-client/identity"
	"github.com/wricardo/sprint-planning-client/protocol"
	"github.com/wricardo/sprint-planning-client/transport"
)

var tracer = otel.Tracer("github.com/wricardo/sprint-planning-client/session")

// Reason tells why a page load ended.
type Reason int

const (
	// ReasonReload means the transport closed and a reload was requested.
	ReasonReload Reason = iota
	// ReasonUnload means the page was torn down by the caller.
	ReasonUnload
	// ReasonServerClosed means the server sent a close message.
	ReasonServerClosed
)

func (r Reason) String() string {
	switch r {
	case ReasonReload:
		return "reload"
	case ReasonUnload:
		return "unload"
	case ReasonServerClosed:
		return "server-closed"
	default:
		return "unknown"
	}
}

// Result summarizes one page load.
type Result struct {
	LoadID   string
	Reason   Reason
	Opened   bool
	Degraded bool
	// Reload is the URL handed to the navigator, set for ReasonReload.
	Reload *url.URL
}

// Options configure a Controller.
type Options struct {
	Version protocol.Version
	// Policy decides the fallback flag on close. Defaults to OpenedPolicy.
	Policy    Policy
	Presenter protocol.Presenter
	Navigator Navigator
	Selector  SelectorOptions
	// Dial overrides transport selection.
	Dial func(ep identity.Endpoint, id identity.Identity) transport.Transport
}

// Status is a point-in-time view of a controller.
type Status struct {
	LoadID   string
	Identity identity.Identity
	Endpoint identity.Endpoint
	State    transport.State
	Opened   bool
	Degraded bool
}

type eventKind int

const (
	eventOpen eventKind = iota
	eventMessage
	eventClose
)

type event struct {
	kind eventKind
	data []byte
	err  error
}

// Controller owns the single transport of one page load. It is built once,
// run once and discarded; a reload creates a new Controller.
type Controller struct {
	page   *url.URL
	id     identity.Identity
	ep     identity.Endpoint
	opts   Options
	loadID string

	mu sync.Mutex
	t  transport.Transport

	// opened is set on the first open event and never reset.
	opened atomic.Bool

	teardown   func()
	terminated bool

	qmu     sync.Mutex
	queue   []event
	stopped bool
	notify  chan struct{}
}

// NewController prepares the page load for an identity.
func NewController(page *url.URL, id identity.Identity, ep identity.Endpoint, opts Options) *Controller {
	if opts.Policy == nil {
		opts.Policy = OpenedPolicy{}
	}
	if opts.Dial == nil {
		selector := opts.Selector
		opts.Dial = func(ep identity.Endpoint, id identity.Identity) transport.Transport {
			return Select(ep, id, selector)
		}
	}
	return &Controller{
		page:   page,
		id:     id,
		ep:     ep,
		opts:   opts,
		loadID: uuid.NewString(),
		notify: make(chan struct{}, 1),
	}
}

// LoadID identifies this page load in logs and traces.
func (c *Controller) LoadID() string {
	return c.loadID
}

// Status reports the controller state. It is safe to call from any goroutine.
func (c *Controller) Status() Status {
	st := Status{
		LoadID:   c.loadID,
		Identity: c.id,
		Endpoint: c.ep,
		State:    transport.StateConnecting,
		Opened:   c.opened.Load(),
	}
	c.mu.Lock()
	t := c.t
	c.mu.Unlock()
	if t != nil {
		st.State = t.State()
		st.Degraded = t.Degraded()
	}
	return st
}

// post queues a transport callback for the event loop without blocking, so
// a transport may call back from inside Send. Callbacks arriving after Run
// returned are dropped.
func (c *Controller) post(ev event) {
	c.qmu.Lock()
	if c.stopped {
		c.qmu.Unlock()
		return
	}
	c.queue = append(c.queue, ev)
	c.qmu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Controller) next() (event, bool) {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	if len(c.queue) == 0 {
		return event{}, false
	}
	ev := c.queue[0]
	c.queue = c.queue[1:]
	return ev, true
}

func (c *Controller) stop() {
	c.qmu.Lock()
	c.stopped = true
	c.queue = nil
	c.qmu.Unlock()
}

// Run opens the transport and processes its events one at a time until the
// page load ends: the transport closes (a reload is requested), the server
// sends close, or ctx is cancelled, which tears the page down.
func (c *Controller) Run(ctx context.Context) Result {
	ctx, span := tracer.Start(ctx, "page.load", trace.WithAttributes(
		attribute.String("load.id", c.loadID),
		attribute.String("room.id", c.id.RoomID),
		attribute.String("player.id", c.id.PlayerID),
		attribute.Bool("fallback.hint", c.id.FallbackHint),
		attribute.String("endpoint", c.ep.URL),
	))
	defer span.End()

	// The transport outlives ctx long enough for the logout to be sent.
	tctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	defer c.stop()

	t := c.opts.Dial(c.ep, c.id)
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()

	t.SetHandlers(transport.Handlers{
		OnOpen:    func() { c.post(event{kind: eventOpen}) },
		OnMessage: func(data []byte) { c.post(event{kind: eventMessage, data: data}) },
		OnClose:   func(err error) { c.post(event{kind: eventClose, err: err}) },
	})
	log.Printf("Connecting to %s (load %s, fallback hint %v)", c.ep.URL, c.loadID, c.id.FallbackHint)
	t.Start(tctx)

	res := c.loop(ctx)
	span.SetAttributes(
		attribute.String("end.reason", res.Reason.String()),
		attribute.Bool("opened", res.Opened),
		attribute.Bool("degraded", res.Degraded),
	)
	return res
}

func (c *Controller) loop(ctx context.Context) Result {
	for {
		select {
		case <-c.notify:
			for {
				ev, ok := c.next()
				if !ok {
					break
				}
				if res, done := c.handle(ctx, ev); done {
					return res
				}
			}
		case <-ctx.Done():
			c.unload()
			return c.result(ReasonUnload)
		}
	}
}

// handle processes one event and reports whether the page load ended.
func (c *Controller) handle(ctx context.Context, ev event) (Result, bool) {
	switch ev.kind {
	case eventOpen:
		c.onOpen()
	case eventMessage:
		c.onMessage(ctx, ev.data)
		if c.terminated {
			return c.result(ReasonServerClosed), true
		}
	case eventClose:
		return c.onClose(ev.err), true
	}
	return Result{}, false
}

func (c *Controller) result(reason Reason) Result {
	return Result{
		LoadID:   c.loadID,
		Reason:   reason,
		Opened:   c.opened.Load(),
		Degraded: c.t.Degraded(),
	}
}

func (c *Controller) onOpen() {
	if c.opened.Swap(true) {
		return
	}
	log.Printf("Web Socket opened (load %s, degraded %v)", c.loadID, c.t.Degraded())
	if c.t.Degraded() {
		// The polling server cannot associate polls with this player until told.
		log.Println("sending handshake")
		c.send([]byte(protocol.Handshake))
	}

	c.teardown = c.logout
}

// logout is the page teardown hook registered on open.
func (c *Controller) logout() {
	msg, err := protocol.PlayerExit(c.id.PlayerID)
	if err != nil {
		log.Printf("Failed to encode logout for player %s: %v", c.id.PlayerID, err)
	} else {
		c.send(msg)
	}

	// The polling emulation has no socket to close; the logout is final.
	if !c.t.Degraded() {
		c.t.DisableOnClose()
		c.t.Close()
	}
}

func (c *Controller) unload() {
	if c.teardown != nil {
		teardown := c.teardown
		c.teardown = nil
		teardown()
		return
	}
	// Never opened: nothing to log out of, just release the handle.
	c.t.DisableOnClose()
	c.t.Close()
}

func (c *Controller) send(data []byte) {
	log.Printf("out> %s", data)
	if err := c.t.Send(data); err != nil {
		log.Printf("send failed: %v", err)
	}
}

func (c *Controller) onMessage(ctx context.Context, data []byte) {
	_, span := tracer.Start(ctx, "frame.dispatch", trace.WithAttributes(
		attribute.String("load.id", c.loadID),
		attribute.Int("frame.bytes", len(data)),
	))
	defer span.End()

	msgs, err := protocol.Decode(data, c.opts.Version)
	if err != nil {
		log.Printf("Ignoring frame from server: %v: %s", err, data)
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed frame")
		return
	}
	span.SetAttributes(attribute.Int("frame.messages", len(msgs)))
	for _, raw := range frameElements(data) {
		log.Printf("in>  %s", raw)
	}

	protocol.Dispatch(msgs, handler{c})
}

// frameElements splits an already validated frame into the messages it
// carries, one per array element.
func frameElements(data []byte) []json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err == nil {
			return elems
		}
	}
	return []json.RawMessage{trimmed}
}

func (c *Controller) onClose(err error) Result {
	fallback := c.opts.Policy.Fallback(Observation{
		Opened:   c.opened.Load(),
		Degraded: c.t.Degraded(),
		Err:      err,
	})
	if !c.opened.Load() {
		log.Printf("Web Socket closed with no open so falling back: %v", err)
	}
	next := identity.ReloadURL(c.page, c.id, fallback)
	log.Printf("Web Socket closed reopening window with fallback:%v", fallback)

	if c.opts.Navigator != nil {
		c.opts.Navigator.Assign(next)
	}
	res := c.result(ReasonReload)
	res.Reload = next
	return res
}

// terminate handles a close message from the server.
func (c *Controller) terminate() {
	if c.opts.Version == protocol.V1 && c.t.Degraded() {
		// Legacy servers expect polling clients to keep polling.
		return
	}
	c.t.DisableOnClose()
	c.t.Close()
	c.terminated = true
}

// handler routes dispatched messages to the presenter and the controller.
type handler struct {
	c *Controller
}

func (h handler) RoomSize(size int) {
	if p := h.c.opts.Presenter; p != nil {
		p.RoomSize(size)
	}
}

func (h handler) DrawnSize(size int) {
	if p := h.c.opts.Presenter; p != nil {
		p.DrawnSize(size)
	}
}

func (h handler) CardSet(cards []json.RawMessage) {
	if p := h.c.opts.Presenter; p != nil {
		p.CardSet(cards)
	}
}

func (h handler) Reset() {
	if p := h.c.opts.Presenter; p != nil {
		p.Reset()
	}
}

func (h handler) Heartbeat() {}

func (h handler) Close() {
	h.c.terminate()
}

func (h handler) Unknown(msg protocol.UnknownMessage) {
	if msg.Err != nil {
		log.Printf("unknown from server: %s (%v)", msg.Raw, msg.Err)
		return
	}
	log.Printf("unknown from server: %s", msg.Raw)
}
