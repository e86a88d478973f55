package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/sprint-planning-client/room"
	"github.com/wricardo/sprint-planning-client/session"
	"github.com/wricardo/sprint-planning-client/transport"
)

// Name and version reported to MCP clients.
const (
	ServerName    = "Sprint Planning Client"
	ServerVersion = "1.0.0"
)

// BoardSource provides the room as the player sees it.
type BoardSource interface {
	Snapshot() room.Snapshot
}

// SessionSource provides the running page load.
type SessionSource interface {
	Current() *session.Controller
	Loads() int
}

// Server serves the session tools.
type Server struct {
	board    BoardSource
	sessions SessionSource

	leaveOnce sync.Once
	leave     func()

	mcpServer *server.MCPServer
}

// NewServer creates the MCP server. leave is called at most once, when an
// agent asks to leave the room.
func NewServer(board BoardSource, sessions SessionSource, leave func()) *Server {
	s := &Server{
		board:    board,
		sessions: sessions,
		leave:    leave,
	}
	s.mcpServer = server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(true),
		server.WithInstructions(`Sprint Planning Client - MCP Interface

You are connected to a planning poker room as one player.

AVAILABLE TOOLS:
- room_state: players in the room, cards drawn and the revealed card set
- session_info: room, player, page load and whether the connection is direct or polling
- leave_room: log the player out and end the session

The room only changes when the server pushes an update; call room_state again to see it.`),
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server for serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "room_state",
		Description: "Get the current state of the planning room",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"format": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"text", "json"},
					"description": "Output format (default text)",
				},
			},
		},
	}, s.handleRoomState)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "session_info",
		Description: "Get the identity and connection of the current session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleSessionInfo)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "leave_room",
		Description: "Log the player out of the room and end the session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleLeaveRoom)
}

func (s *Server) handleRoomState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	format, _ := args["format"].(string)

	snap := s.board.Snapshot()
	switch format {
	case "", "text":
		return mcp.NewToolResultText(snap.String()), nil
	case "json":
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown format %q, use text or json", format)), nil
	}
}

func (s *Server) handleSessionInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c := s.sessions.Current()
	if c == nil {
		return mcp.NewToolResultText("No page loaded yet\n"), nil
	}
	return mcp.NewToolResultText(formatStatus(c.Status(), s.sessions.Loads())), nil
}

func (s *Server) handleLeaveRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	left := false
	s.leaveOnce.Do(func() {
		left = true
		if s.leave != nil {
			s.leave()
		}
	})
	if !left {
		return mcp.NewToolResultText("Already leaving the room\n"), nil
	}

	result := "Leaving the room\n"
	if c := s.sessions.Current(); c != nil {
		st := c.Status()
		result = fmt.Sprintf("Player %s leaving room %s\n", st.Identity.PlayerID, st.Identity.RoomID)
	}
	log.Print(strings.TrimSpace(result))
	return mcp.NewToolResultText(result), nil
}

func formatStatus(st session.Status, loads int) string {
	mode := "direct"
	if st.Degraded {
		mode = "polling"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Room: %s\n", st.Identity.RoomID)
	fmt.Fprintf(&sb, "Player: %s\n", st.Identity.PlayerID)
	fmt.Fprintf(&sb, "Endpoint: %s\n", st.Endpoint.URL)
	fmt.Fprintf(&sb, "Transport: %s (%s)\n", mode, st.State)
	fmt.Fprintf(&sb, "Opened: %v\n", st.Opened)
	fmt.Fprintf(&sb, "Fallback requested: %v\n", st.Identity.FallbackHint)
	fmt.Fprintf(&sb, "Page load: %d (%s)\n", loads, st.LoadID)
	if st.State == transport.StateClosed {
		sb.WriteString("The connection is closed, a reload is pending\n")
	}
	return sb.String()
}

// Handler serves MCP JSON-RPC messages over HTTP POST.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := s.mcpServer.HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})
}
