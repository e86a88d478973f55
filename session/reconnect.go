package session

import (
	"net/url"

	"github.com/wricardo/sprint-planning-client/protocol"
)

// Observation is what a reconnect policy knows when the transport closes.
type Observation struct {
	// Opened is true once an open event was observed on this page load.
	Opened   bool
	Degraded bool
	Err      error
}

// Policy decides whether the next page load should force the polling transport.
type Policy interface {
	Fallback(obs Observation) bool
}

// OpenedPolicy falls back when the transport closed without ever opening,
// which means the channel is firewalled or a proxy does not support it. A
// close after a successful open is a dropped connection or a server restart,
// so the next load tries the direct channel again.
type OpenedPolicy struct{}

// Fallback reports true when no open event was observed.
func (OpenedPolicy) Fallback(obs Observation) bool {
	return !obs.Opened
}

// PortPolicy is the legacy heuristic. When the WebSocket port differs from the
// port the page was served from, a close is taken as evidence the WebSocket
// port is blocked. When they are equal the page could only have loaded if the
// port was reachable, so the close must be a server restart.
type PortPolicy struct {
	WebSocketPort int
	FallbackPort  int
}

// Fallback reports true when the two ports differ, whatever happened on the wire.
func (p PortPolicy) Fallback(Observation) bool {
	return p.WebSocketPort != p.FallbackPort
}

// PolicyFor returns the policy a protocol generation shipped with.
func PolicyFor(v protocol.Version, webSocketPort, fallbackPort int) Policy {
	if v == protocol.V1 {
		return PortPolicy{WebSocketPort: webSocketPort, FallbackPort: fallbackPort}
	}
	return OpenedPolicy{}
}

// Navigator performs the full page reload that is the only recovery path.
type Navigator interface {
	Assign(u *url.URL)
}

// NavigatorFunc adapts a function to a Navigator.
type NavigatorFunc func(u *url.URL)

func (f NavigatorFunc) Assign(u *url.URL) { f(u) }
