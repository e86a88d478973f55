package session

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/wricardo/sprint-planning-client/identity"
	"github.com/wricardo/sprint-planning-client/protocol"
	"github.com/wricardo/sprint-planning-client/transport/graceful"
	"github.com/wricardo/sprint-planning-client/transport/polling"
	"github.com/wricardo/sprint-planning-client/transport/transporttest"
	"github.com/wricardo/sprint-planning-client/transport/websocket"
)

func serverPort(t *testing.T, s *transporttest.Server) int {
	t.Helper()
	_, port, err := net.SplitHostPort(s.Host())
	if err != nil {
		t.Fatalf("split host: %v", err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return p
}

type loadLog struct {
	mu    sync.Mutex
	loads []LoadInfo
}

func (l *loadLog) add(info LoadInfo) {
	l.mu.Lock()
	l.loads = append(l.loads, info)
	l.mu.Unlock()
}

func (l *loadLog) all() []LoadInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LoadInfo(nil), l.loads...)
}

var fastSelector = SelectorOptions{
	WebSocket: websocket.Options{HandshakeTimeout: time.Second},
	Polling:   polling.Options{OpenDelay: time.Millisecond, PollInterval: 10 * time.Millisecond},
}

func TestTabReloadsAfterDrop(t *testing.T) {
	server := transporttest.NewServer()
	defer server.Close()

	loads := &loadLog{}
	tab := &Tab{
		Embedded:    identity.Embedded{Port: serverPort(t, server)},
		Options:     Options{Selector: fastSelector},
		ReloadDelay: time.Millisecond,
		OnLoad:      loads.add,
	}

	page, _ := url.Parse("http://127.0.0.1/sprint-planning.html?room=42&player=9887")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tab.Run(ctx, page) }()

	transporttest.Eventually(t, 2*time.Second, func() bool {
		return server.Connected() == 1
	}, "first load connected")
	server.DropConnections()

	transporttest.Eventually(t, 3*time.Second, func() bool {
		return tab.Loads() == 2 && server.Upgrades() == 2
	}, "second load connected")

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Expected nil on teardown, got %v", err)
	}

	got := loads.all()
	if got[1].Identity.FallbackHint {
		t.Error("A drop after open must retry the direct channel")
	}
	if got[0].LoadID == got[1].LoadID {
		t.Error("Expected a fresh load ID per page load")
	}
	if q := got[1].Page.Query(); q.Get("room") != "42" || q.Get("player") != "9887" {
		t.Errorf("Expected identity carried in the reload URL, got %s", got[1].Page)
	}
}

func TestTabFallsBackThenStops(t *testing.T) {
	server := transporttest.NewServer()
	port := serverPort(t, server)
	server.Close()

	loads := &loadLog{}
	tab := &Tab{
		Embedded:    identity.Embedded{Room: "42", Player: "9887", Port: port},
		Options:     Options{Selector: fastSelector},
		ReloadDelay: time.Millisecond,
		MaxLoads:    2,
		OnLoad:      loads.add,
	}

	page, _ := url.Parse("http://127.0.0.1/sprint-planning.html")
	err := tab.Run(context.Background(), page)
	if !errors.Is(err, ErrMaxLoads) {
		t.Fatalf("Expected ErrMaxLoads, got %v", err)
	}

	got := loads.all()
	if len(got) != 2 {
		t.Fatalf("Expected 2 loads, got %d", len(got))
	}
	if got[0].Identity.FallbackHint {
		t.Error("The first load must try the direct channel")
	}
	if !got[1].Identity.FallbackHint {
		t.Error("A close without open must force the fallback on the next load")
	}
}

func TestTabServerClose(t *testing.T) {
	server := transporttest.NewServer(transporttest.WithGreeting(`{"mType":"close"}`))
	defer server.Close()

	tab := &Tab{
		Embedded: identity.Embedded{Port: serverPort(t, server)},
		Options:  Options{Version: protocol.V2, Selector: fastSelector},
	}
	page, _ := url.Parse("http://127.0.0.1/sprint-planning.html?room=1&player=2")
	if err := tab.Run(context.Background(), page); !errors.Is(err, ErrServerClosed) {
		t.Errorf("Expected ErrServerClosed, got %v", err)
	}
	if tab.Loads() != 1 {
		t.Errorf("Expected 1 load, got %d", tab.Loads())
	}
}

func TestTabRejectsMissingIdentity(t *testing.T) {
	tab := &Tab{}
	page, _ := url.Parse("http://127.0.0.1/sprint-planning.html?room=1")
	if err := tab.Run(context.Background(), page); !errors.Is(err, identity.ErrMissingPlayer) {
		t.Errorf("Expected ErrMissingPlayer, got %v", err)
	}
}

func TestPolicies(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		obs    Observation
		want   bool
	}{
		{"opened policy never opened", OpenedPolicy{}, Observation{}, true},
		{"opened policy after open", OpenedPolicy{}, Observation{Opened: true}, false},
		{"port policy same port", PortPolicy{WebSocketPort: 8080, FallbackPort: 8080}, Observation{}, false},
		{"port policy different port", PortPolicy{WebSocketPort: 8080, FallbackPort: 80}, Observation{Opened: true}, true},
		{"current version", PolicyFor(protocol.V2, 8080, 80), Observation{Opened: true}, false},
		{"legacy version", PolicyFor(protocol.V1, 8080, 80), Observation{Opened: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Fallback(tt.obs); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSelect(t *testing.T) {
	local := Select(identity.Endpoint{URL: "ws://localhost:8080/websocket/1/2", Local: true}, identity.Identity{FallbackHint: true}, SelectorOptions{})
	if _, ok := local.(*websocket.Conn); !ok {
		t.Errorf("Expected a direct websocket for local pages, got %T", local)
	}

	served := Select(identity.Endpoint{URL: "ws://poker.example:8080/websocket/1/2"}, identity.Identity{}, SelectorOptions{})
	if _, ok := served.(*graceful.Conn); !ok {
		t.Errorf("Expected a graceful handle for served pages, got %T", served)
	}
}
