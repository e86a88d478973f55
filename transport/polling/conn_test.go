package polling

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wricardo/sprint-planning-client/transport"
	"github.com/wricardo/sprint-planning-client/transport/transporttest"
)

type events struct {
	mu       sync.Mutex
	opened   int
	messages []string
	closed   int
	closeErr error
}

func (e *events) handlers() transport.Handlers {
	return transport.Handlers{
		OnOpen:    func() { e.mu.Lock(); e.opened++; e.mu.Unlock() },
		OnMessage: func(d []byte) { e.mu.Lock(); e.messages = append(e.messages, string(d)); e.mu.Unlock() },
		OnClose:   func(err error) { e.mu.Lock(); e.closed++; e.closeErr = err; e.mu.Unlock() },
	}
}

func (e *events) counts() (int, int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opened, len(e.messages), e.closed
}

func fastOptions() Options {
	return Options{OpenDelay: time.Millisecond, PollInterval: 10 * time.Millisecond, MaxFailures: 2}
}

func TestHTTPURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "ws://h:8080/websocket/1/2", want: "http://h:8080/websocket/1/2"},
		{in: "wss://h/websocket/1/2", want: "https://h/websocket/1/2"},
		{in: "http://h/websocket/1/2", want: "http://h/websocket/1/2"},
		{in: "ftp://h/x", wantErr: true},
		{in: "://bad", wantErr: true},
	}
	for _, tc := range tests {
		got, err := HTTPURL(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("HTTPURL(%q): expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("HTTPURL(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("HTTPURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPollingOpenAndReceive(t *testing.T) {
	server := transporttest.NewServer(transporttest.WithGreeting(`{"mType":"RoomSize","size":2}`))
	defer server.Close()

	conn, err := New(server.WebSocketURL("1", "2"), fastOptions())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !conn.Degraded() {
		t.Error("polling handle must report degraded")
	}

	ev := &events{}
	conn.SetHandlers(ev.handlers())
	conn.Start(context.Background())
	defer conn.Close()

	transporttest.Eventually(t, 2*time.Second, func() bool {
		_, n, _ := ev.counts()
		return n == 1
	}, "greeting delivered by poll")

	server.Push(`[{"mType":"ts"}]`)
	transporttest.Eventually(t, 2*time.Second, func() bool {
		_, n, _ := ev.counts()
		return n == 2
	}, "pushed frame delivered by poll")

	opened, _, closed := ev.counts()
	if opened != 1 {
		t.Errorf("Expected 1 open, got %d", opened)
	}
	if closed != 0 {
		t.Errorf("Expected no close, got %d", closed)
	}
	if server.Polls() < 2 {
		t.Errorf("Expected at least 2 polls, got %d", server.Polls())
	}
	if server.Upgrades() != 0 {
		t.Errorf("Polling must not attempt an upgrade, got %d", server.Upgrades())
	}
}

func TestPollingSend(t *testing.T) {
	server := transporttest.NewServer()
	defer server.Close()

	conn, _ := New(server.WebSocketURL("7", "8"), fastOptions())
	if err := conn.Send([]byte("early")); !errors.Is(err, transport.ErrNotOpen) {
		t.Errorf("Expected ErrNotOpen before open, got %v", err)
	}

	ev := &events{}
	conn.SetHandlers(ev.handlers())
	conn.Start(context.Background())
	defer conn.Close()

	transporttest.Eventually(t, time.Second, func() bool {
		return conn.State() == transport.StateOpen
	}, "open")

	if err := conn.Send([]byte("handshake")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	frames := server.Received()
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(frames))
	}
	if frames[0].Data != "handshake" || frames[0].Transport != transporttest.TransportPolling {
		t.Errorf("Unexpected frame %+v", frames[0])
	}
	if frames[0].Room != "7" || frames[0].Player != "8" {
		t.Errorf("Unexpected identity on frame %+v", frames[0])
	}
}

func TestPollingRequestTimestamps(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.RawQuery)
		mu.Unlock()
	}))
	defer server.Close()

	conn, _ := New(server.URL+"/websocket/1/2", fastOptions())
	conn.Start(context.Background())
	defer conn.Close()

	transporttest.Eventually(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(queries) >= 2
	}, "two polls")

	mu.Lock()
	defer mu.Unlock()
	first, _ := http.NewRequest(http.MethodGet, "/?"+queries[0], nil)
	second, _ := http.NewRequest(http.MethodGet, "/?"+queries[1], nil)
	if first.URL.Query().Get(paramCurrentRequest) == "" {
		t.Error("first poll must carry currentRequest")
	}
	if first.URL.Query().Get(paramPreviousRequest) != "" {
		t.Error("first poll must not carry previousRequest")
	}
	if second.URL.Query().Get(paramPreviousRequest) != first.URL.Query().Get(paramCurrentRequest) {
		t.Errorf("previousRequest of poll 2 should equal currentRequest of poll 1: %q vs %q",
			second.URL.Query().Get(paramPreviousRequest), first.URL.Query().Get(paramCurrentRequest))
	}
}

func TestPollingClosesAfterFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	conn, _ := New(server.URL+"/websocket/1/2", fastOptions())
	ev := &events{}
	conn.SetHandlers(ev.handlers())
	conn.Start(context.Background())

	transporttest.Eventually(t, 2*time.Second, func() bool {
		_, _, closed := ev.counts()
		return closed == 1
	}, "close after repeated failures")

	ev.mu.Lock()
	closeErr := ev.closeErr
	ev.mu.Unlock()
	if closeErr == nil {
		t.Error("Expected the last poll error on close")
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("Expected exactly MaxFailures=2 polls, got %d", got)
	}
	if conn.State() != transport.StateClosed {
		t.Errorf("Expected closed state, got %s", conn.State())
	}
}

func TestPollingCloseStopsPolling(t *testing.T) {
	server := transporttest.NewServer()
	defer server.Close()

	conn, _ := New(server.WebSocketURL("1", "2"), fastOptions())
	ev := &events{}
	conn.SetHandlers(ev.handlers())
	conn.Start(context.Background())

	transporttest.Eventually(t, time.Second, func() bool {
		return server.Polls() >= 1
	}, "first poll")

	conn.DisableOnClose()
	conn.Close()
	time.Sleep(30 * time.Millisecond)
	polls := server.Polls()
	time.Sleep(50 * time.Millisecond)

	if server.Polls() != polls {
		t.Errorf("polling continued after Close: %d -> %d", polls, server.Polls())
	}
	if _, _, closed := ev.counts(); closed != 0 {
		t.Errorf("Expected disabled close handler, got %d calls", closed)
	}
}
