// Package session drives the connection of one player to a planning room.
//
// A Controller is one page load: it picks a transport for the resolved
// identity, sends the polling handshake when the transport is degraded,
// dispatches every inbound frame to a presenter and, when the page is torn
// down, logs the player out. When the transport closes on its own the
// controller asks a Policy whether the next load should force the polling
// fallback and hands the reload URL to a Navigator.
//
// A Tab chains page loads: it follows each reload URL with a fresh
// Controller, so no state outlives a page load except what the URL carries.
//
//	tab := &session.Tab{
//		Embedded: identity.Embedded{Port: 8080},
//		Options:  session.Options{Presenter: board},
//	}
//	err := tab.Run(ctx, page)
package session
