// Package polling emulates a socket over plain HTTP requests.
//
// It is the degraded transport a session falls back to when a WebSocket
// cannot be established or is blocked by a proxy. The emulation exposes the
// same open/message/close events as a direct connection:
//
//   - open is simulated shortly after Start, no request is needed for it
//   - the channel URL is polled with GET; any non-empty body is a message
//   - Send POSTs the frame to the same URL; a non-empty reply is a message too
//   - too many consecutive failed polls close the handle
//
// Every request carries previousRequest and currentRequest timestamps (unix
// milliseconds) so the server can tell polls of the same client apart.
//
// The server has no persistent connection to associate with the player, so
// sessions announce themselves with a handshake frame after open.
package polling

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wricardo/sprint-planning-client/transport"
)

// Defaults for Options.
const (
	DefaultOpenDelay    = 100 * time.Millisecond
	DefaultPollInterval = 3 * time.Second
	DefaultMaxFailures  = 3
	DefaultTimeout      = 10 * time.Second
)

const (
	paramPreviousRequest = "previousRequest"
	paramCurrentRequest  = "currentRequest"

	sendContentType = "application/x-www-form-urlencoded; charset=utf-8"

	maxBodySize = 1 << 20
)

// Options configure the polling emulation.
type Options struct {
	OpenDelay    time.Duration
	PollInterval time.Duration
	MaxFailures  int
	HTTPClient   *http.Client
}

func (o Options) withDefaults() Options {
	if o.OpenDelay <= 0 {
		o.OpenDelay = DefaultOpenDelay
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxFailures <= 0 {
		o.MaxFailures = DefaultMaxFailures
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	return o
}

// Conn is a polling transport handle.
type Conn struct {
	transport.Emitter

	url  string
	opts Options

	mu              sync.Mutex
	previousRequest int64
	currentRequest  int64
	cancel          context.CancelFunc

	done      chan struct{}
	closeOnce sync.Once
}

var _ transport.Transport = (*Conn)(nil)

// New creates a polling handle for a ws:// or wss:// channel URL; the scheme
// is mapped to http or https.
func New(channelURL string, opts Options) (*Conn, error) {
	httpURL, err := HTTPURL(channelURL)
	if err != nil {
		return nil, err
	}
	return &Conn{
		url:  httpURL,
		opts: opts.withDefaults(),
		done: make(chan struct{}),
	}, nil
}

// HTTPURL maps a WebSocket URL to the URL the emulation polls.
func HTTPURL(channelURL string) (string, error) {
	u, err := url.Parse(channelURL)
	if err != nil {
		return "", fmt.Errorf("parse channel url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported channel scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// URL returns the polled URL.
func (c *Conn) URL() string {
	return c.url
}

// Degraded is always true for the polling emulation.
func (c *Conn) Degraded() bool {
	return true
}

// Start simulates the open event after OpenDelay and begins polling.
func (c *Conn) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(ctx)
}

func (c *Conn) run(ctx context.Context) {
	select {
	case <-time.After(c.opts.OpenDelay):
	case <-c.done:
		return
	case <-ctx.Done():
		c.EmitClose(ctx.Err())
		return
	}
	if !c.EmitOpen() {
		return
	}

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		if err := c.poll(ctx); err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			failures++
			log.Printf("Polling %s failed (%d/%d): %v", c.url, failures, c.opts.MaxFailures, err)
			if failures >= c.opts.MaxFailures {
				c.shutdown()
				c.EmitClose(fmt.Errorf("polling %s: %w", c.url, err))
				return
			}
		} else {
			failures = 0
		}

		select {
		case <-ticker.C:
		case <-c.done:
			return
		case <-ctx.Done():
			c.shutdown()
			c.EmitClose(ctx.Err())
			return
		}
	}
}

// poll issues one GET and delivers a non-empty body as a message.
func (c *Conn) poll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(), nil)
	if err != nil {
		return err
	}
	return c.do(req)
}

// Send POSTs one frame. The request completes before Send returns.
func (c *Conn) Send(data []byte) error {
	if c.State() != transport.StateOpen {
		return transport.ErrNotOpen
	}
	req, err := http.NewRequest(http.MethodPost, c.requestURL(), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", sendContentType)
	if err := c.do(req); err != nil {
		return fmt.Errorf("polling send: %w", err)
	}
	return nil
}

func (c *Conn) do(req *http.Request) error {
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) > 0 {
		c.EmitMessage(body)
	}
	return nil
}

// requestURL stamps the polled URL with the request timestamps.
func (c *Conn) requestURL() string {
	c.mu.Lock()
	c.previousRequest = c.currentRequest
	c.currentRequest = time.Now().UnixMilli()
	prev, cur := c.previousRequest, c.currentRequest
	c.mu.Unlock()

	u, err := url.Parse(c.url)
	if err != nil {
		return c.url
	}
	q := u.Query()
	if prev != 0 {
		q.Set(paramPreviousRequest, strconv.FormatInt(prev, 10))
	}
	q.Set(paramCurrentRequest, strconv.FormatInt(cur, 10))
	u.RawQuery = q.Encode()
	return u.String()
}

// Close stops polling and fires the close handler unless it was disabled.
func (c *Conn) Close() error {
	c.shutdown()
	c.EmitClose(nil)
	return nil
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		cancel := c.cancel
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
}
