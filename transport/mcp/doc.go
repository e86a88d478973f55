// Package mcp exposes a running planning session to AI agents over the Model
// Context Protocol.
//
// MCP Tools:
//   - room_state: what the player currently sees of the room
//   - session_info: identity, page load and transport of the session
//   - leave_room: tears the page down, which logs the player out
//
// Transport Modes:
//
// The server is normally served over stdio next to the session it observes.
// Handler serves the same tools as single JSON-RPC messages over HTTP POST.
//
// Usage:
//
//	srv := mcp.NewServer(board, tab, cancel)
//	server.ServeStdio(srv.MCPServer())
package mcp
