// Package websocket provides the direct WebSocket transport of a planning session.
//
// The websocket package implements:
//   - Dialing the room/player channel with a bounded handshake
//   - Text frame delivery through the transport message handler
//   - Keepalive pings with pong-driven read deadlines
//   - Clean close frames on intentional shutdown
//
// Connection Lifecycle:
//
// 1. New creates a handle in the connecting state
// 2. Start dials in the background
// 3. A successful dial fires the open handler, a failed one the close handler
// 4. Frames are read until the peer goes away or Close is called
// 5. The close handler fires once, unless DisableOnClose was called first
//
// Concurrency:
//
// Reads happen on a dedicated goroutine, pings on another. Send writes
// synchronously under a lock so a frame sent before Close reaches the peer
// before the close frame does.
//
// Usage:
//
//	conn := websocket.New("ws://host:8080/websocket/1234/9887", websocket.Options{})
//	conn.SetHandlers(transport.Handlers{OnMessage: handle})
//	conn.Start(ctx)
package websocket
