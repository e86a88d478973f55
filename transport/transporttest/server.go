// Package transporttest provides a fake planning session server for tests.
//
// The server speaks both ends of the wire the client can use on the same
// route, /websocket/{room}/{player}: WebSocket upgrade requests are served as a
// direct connection and plain GET/POST requests as the polling emulation.
// Every frame the client sends is recorded, and tests can push frames to
// connected clients.
package transporttest

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Transport names recorded on frames.
const (
	TransportWebSocket = "websocket"
	TransportPolling   = "polling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Frame is one frame received from a client.
type Frame struct {
	Room      string
	Player    string
	Transport string
	Data      string
}

// Option configures a Server.
type Option func(*Server)

// WithRejectUpgrade makes the server answer WebSocket upgrades like a proxy
// that does not support them, while still serving polling requests.
func WithRejectUpgrade() Option {
	return func(s *Server) { s.rejectUpgrade = true }
}

// WithGreeting sends frames to every WebSocket client right after upgrade and
// queues them for the first polls.
func WithGreeting(frames ...string) Option {
	return func(s *Server) { s.greeting = append(s.greeting, frames...) }
}

// Server is a fake planning session server.
type Server struct {
	*httptest.Server

	rejectUpgrade bool
	greeting      []string

	mu       sync.Mutex
	received []Frame
	conns    map[*websocket.Conn]*sync.Mutex
	queue    []string
	upgrades int
	polls    int
	rejected int
}

// NewServer starts a fake server. Callers must Close it.
func NewServer(opts ...Option) *Server {
	s := &Server{
		conns: make(map[*websocket.Conn]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queue = append(s.queue, s.greeting...)

	router := mux.NewRouter()
	router.HandleFunc("/websocket/{room}/{player}", s.handleChannel)
	s.Server = httptest.NewServer(router)
	return s
}

// Host returns host:port of the server.
func (s *Server) Host() string {
	return strings.TrimPrefix(s.URL, "http://")
}

// WebSocketURL returns the channel URL for a room and player.
func (s *Server) WebSocketURL(room, player string) string {
	return "ws://" + s.Host() + "/websocket/" + room + "/" + player
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	room, player := vars["room"], vars["player"]

	if websocket.IsWebSocketUpgrade(r) {
		if s.rejectUpgrade {
			s.mu.Lock()
			s.rejected++
			s.mu.Unlock()
			http.Error(w, "upgrade not supported", http.StatusForbidden)
			return
		}
		s.serveWebSocket(w, r, room, player)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		s.polls++
		var frame string
		if len(s.queue) > 0 {
			frame = s.queue[0]
			s.queue = s.queue[1:]
		}
		s.mu.Unlock()
		w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
		io.WriteString(w, frame)
	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.record(Frame{Room: room, Player: player, Transport: TransportPolling, Data: string(body)})
		w.WriteHeader(http.StatusOK)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request, room, player string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("transporttest: upgrade failed: %v", err)
		return
	}

	writeMu := &sync.Mutex{}
	s.mu.Lock()
	s.upgrades++
	s.conns[conn] = writeMu
	greeting := append([]string(nil), s.greeting...)
	s.mu.Unlock()

	writeMu.Lock()
	for _, frame := range greeting {
		conn.WriteMessage(websocket.TextMessage, []byte(frame))
	}
	writeMu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.record(Frame{Room: room, Player: player, Transport: TransportWebSocket, Data: string(data)})
	}
}

func (s *Server) record(f Frame) {
	s.mu.Lock()
	s.received = append(s.received, f)
	s.mu.Unlock()
}

// Push sends a frame to every connected WebSocket client and queues it for
// the next poll.
func (s *Server) Push(frame string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, writeMu := range s.conns {
		writeMu.Lock()
		conn.WriteMessage(websocket.TextMessage, []byte(frame))
		writeMu.Unlock()
	}
	s.queue = append(s.queue, frame)
}

// DropConnections closes every WebSocket connection without a close frame,
// the way a restarting server or a broken network would.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.UnderlyingConn().Close()
	}
}

// Received returns a copy of every frame received so far.
func (s *Server) Received() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.received...)
}

// Upgrades returns how many WebSocket connections were accepted.
func (s *Server) Upgrades() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upgrades
}

// Rejected returns how many WebSocket upgrades were refused.
func (s *Server) Rejected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejected
}

// Polls returns how many polling GET requests were served.
func (s *Server) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

// Connected returns the number of live WebSocket connections.
func (s *Server) Connected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Eventually polls cond until it holds or the timeout expires.
func Eventually(t testing.TB, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", timeout, msg)
}
