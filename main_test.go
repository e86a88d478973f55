package main

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/wricardo/sprint-planning-client/config"
	"github.com/wricardo/sprint-planning-client/protocol"
	"github.com/wricardo/sprint-planning-client/room"
	"github.com/wricardo/sprint-planning-client/session"
	"github.com/wricardo/sprint-planning-client/transport/transporttest"
)

func TestConstants(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if AppName == "" {
		t.Error("AppName should not be empty")
	}

	expectedAppName := "Sprint Planning Client"
	if AppName != expectedAppName {
		t.Errorf("Expected app name %s, got %s", expectedAppName, AppName)
	}
}

func TestParsePage(t *testing.T) {
	page, err := parsePage("")
	if err != nil || page != nil {
		t.Errorf("Expected no page for an empty URL, got %v, %v", page, err)
	}

	page, err = parsePage("http://poker.example/sprint-planning.html?room=1&player=2")
	if err != nil {
		t.Fatalf("parsePage failed: %v", err)
	}
	if page.Query().Get("room") != "1" {
		t.Errorf("Expected room 1, got %s", page.Query().Get("room"))
	}

	if _, err := parsePage("http://[::1"); err == nil {
		t.Error("Expected error for an invalid URL")
	}
}

func TestNewTab(t *testing.T) {
	cfg := config.Config{
		OpenDelay:        time.Millisecond,
		PollInterval:     time.Second,
		MaxPollFailures:  4,
		HandshakeTimeout: 2 * time.Second,
		ReloadDelay:      time.Second,
		MaxLoads:         7,
	}
	s := settings{Room: "42", Player: "9887", Port: 8080, FallbackPort: 80, Protocol: "planning-poker"}

	board := room.NewBoard()
	tab, err := newTab(cfg, s, board, board)
	if err != nil {
		t.Fatalf("newTab failed: %v", err)
	}

	if tab.Options.Version != protocol.V1 {
		t.Errorf("Expected legacy protocol, got %s", tab.Options.Version)
	}
	if _, ok := tab.Options.Policy.(session.PortPolicy); !ok {
		t.Errorf("Expected the port policy for the legacy protocol, got %T", tab.Options.Policy)
	}
	if tab.Options.Selector.Polling.MaxFailures != 4 {
		t.Errorf("Expected 4 poll failures, got %d", tab.Options.Selector.Polling.MaxFailures)
	}
	if tab.Options.Selector.WebSocket.HandshakeTimeout != 2*time.Second {
		t.Errorf("Expected handshake timeout 2s, got %s", tab.Options.Selector.WebSocket.HandshakeTimeout)
	}
	if tab.MaxLoads != 7 {
		t.Errorf("Expected 7 loads, got %d", tab.MaxLoads)
	}
	if tab.Embedded.Room != "42" || tab.Embedded.Port != 8080 {
		t.Errorf("Unexpected embedded identity %+v", tab.Embedded)
	}
}

func TestNewTabUnknownProtocol(t *testing.T) {
	board := room.NewBoard()
	if _, err := newTab(config.Config{}, settings{Protocol: "carrier-pigeon"}, board, board); err == nil {
		t.Error("Expected error for an unknown protocol")
	}
}

func TestJoinUntilServerCloses(t *testing.T) {
	server := transporttest.NewServer(transporttest.WithGreeting(
		`{"mType":"RoomSize","size":5}`,
		`{"mType":"close"}`,
	))
	defer server.Close()

	_, port, err := net.SplitHostPort(server.Host())
	if err != nil {
		t.Fatalf("split host: %v", err)
	}
	t.Setenv("POKER_RELOAD_DELAY", "1ms")
	t.Setenv("POKER_MAX_LOADS", "3")

	args := []string{
		"sprint-planning", "join",
		"--url", "http://127.0.0.1/sprint-planning.html?room=42&player=9887",
		"--port", port,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := newCommand().Run(ctx, args); err != nil {
		t.Fatalf("Expected a clean end when the server closes, got %v", err)
	}

	if server.Upgrades() != 1 {
		t.Errorf("Expected one connection, got %d", server.Upgrades())
	}
	for _, f := range server.Received() {
		if strings.Contains(f.Data, "PlayerExit") {
			t.Errorf("A server close must not log the player out, got %s", f.Data)
		}
	}
}
