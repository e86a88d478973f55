package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/wricardo/sprint-planning-client/identity"
)

var (
	// ErrMaxLoads is returned by Tab.Run when MaxLoads page loads have run.
	ErrMaxLoads = errors.New("maximum page loads reached")
	// ErrServerClosed is returned by Tab.Run when the server sent a close message.
	ErrServerClosed = errors.New("session closed by server")
)

// DefaultReloadDelay paces consecutive page loads so a dead server is not
// hammered with reconnects.
const DefaultReloadDelay = time.Second

// LoadInfo describes a page load that is about to run.
type LoadInfo struct {
	Load     int
	LoadID   string
	Page     *url.URL
	Identity identity.Identity
	Endpoint identity.Endpoint
}

// Tab runs page loads back to back, the way a browser tab follows
// location.assign. Every load resolves its identity from the current URL and
// gets a fresh Controller.
type Tab struct {
	Embedded identity.Embedded
	Options  Options

	ReloadDelay time.Duration
	// MaxLoads bounds the number of page loads, 0 means unlimited.
	MaxLoads int

	// OnLoad runs before each page load starts.
	OnLoad func(LoadInfo)

	mu      sync.Mutex
	current *Controller
	loads   int
}

// Run loads page and keeps reloading until ctx is cancelled, the server
// closes the session or MaxLoads is exceeded. Cancelling ctx tears the
// current page down and returns nil.
func (t *Tab) Run(ctx context.Context, page *url.URL) error {
	delay := t.ReloadDelay
	if delay <= 0 {
		delay = DefaultReloadDelay
	}

	for {
		if t.MaxLoads > 0 && t.Loads() >= t.MaxLoads {
			return fmt.Errorf("%w (%d)", ErrMaxLoads, t.MaxLoads)
		}

		id, ep, err := identity.Resolve(page, t.Embedded)
		if err != nil {
			return fmt.Errorf("resolve identity from %s: %w", page, err)
		}

		var next *url.URL
		opts := t.Options
		outer := opts.Navigator
		opts.Navigator = NavigatorFunc(func(u *url.URL) {
			next = u
			if outer != nil {
				outer.Assign(u)
			}
		})

		c := NewController(page, id, ep, opts)
		t.mu.Lock()
		t.current = c
		t.loads++
		load := t.loads
		t.mu.Unlock()

		if t.OnLoad != nil {
			t.OnLoad(LoadInfo{Load: load, LoadID: c.LoadID(), Page: page, Identity: id, Endpoint: ep})
		}

		res := c.Run(ctx)
		switch res.Reason {
		case ReasonUnload:
			return nil
		case ReasonServerClosed:
			return ErrServerClosed
		}

		log.Printf("Reloading %s in %s", next, delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		page = next
	}
}

// Current returns the controller of the running page load, nil before the
// first load.
func (t *Tab) Current() *Controller {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Loads returns how many page loads were started.
func (t *Tab) Loads() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loads
}
