package session

import (
	"github.com/wricardo/sprint-planning-client/identity"
	"github.com/wricardo/sprint-planning-client/transport"
	"github.com/wricardo/sprint-planning-client/transport/graceful"
	"github.com/wricardo/sprint-planning-client/transport/polling"
	"github.com/wricardo/sprint-planning-client/transport/websocket"
)

// SelectorOptions tune the transports the selector can create.
type SelectorOptions struct {
	WebSocket websocket.Options
	Polling   polling.Options
}

// Select creates the one transport of a page load. Local pages always dial
// the fixed test server directly; served pages get a graceful handle that
// starts on polling when the identity carries the fallback hint.
func Select(ep identity.Endpoint, id identity.Identity, opts SelectorOptions) transport.Transport {
	if ep.Local {
		return websocket.New(ep.URL, opts.WebSocket)
	}
	return graceful.New(ep.URL, graceful.Options{
		ForceFallback: id.FallbackHint,
		WebSocket:     opts.WebSocket,
		Polling:       opts.Polling,
	})
}
