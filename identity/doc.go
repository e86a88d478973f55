// Package identity resolves who and where a planning session connects to.
//
// The identity package implements:
//   - Room and player resolution from the page URL or embedded values
//   - Server endpoint derivation from the page host and configured port
//   - A fixed local server address for pages opened from disk
//   - Reload URL construction carrying identity and the fallback flag
//
// Page Context:
//
// The client is driven by a "page" URL, the same URL a browser would have
// loaded. When that URL names a network host the endpoint is built from that
// host plus the configured WebSocket port:
//
//	http://poker.example.com/poker.html?room=1234&player=9887
//	  -> ws://poker.example.com:8080/websocket/1234/9887
//
// When the page has no host (a file:// URL used while testing a skin locally)
// the endpoint points at LocalServerAddress and is marked Local, which tells the
// transport selector to dial directly without any fallback machinery.
//
// Reloads:
//
// Recovery is always a fresh page load. ReloadURL rebuilds the page URL with
// the room, player and fallback query parameters so the next load resolves the
// same identity with an updated transport preference.
package identity
