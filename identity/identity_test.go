package identity

import (
	"errors"
	"net/url"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name         string
		page         string
		embedded     Embedded
		wantRoom     string
		wantPlayer   string
		wantFallback bool
		wantURL      string
		wantLocal    bool
	}{
		{
			name:       "served page uses host and port",
			page:       "http://poker.example.com/poker.html?room=1234&player=9887",
			embedded:   Embedded{Port: 8080},
			wantRoom:   "1234",
			wantPlayer: "9887",
			wantURL:    "ws://poker.example.com:8080/websocket/1234/9887",
		},
		{
			name:       "https page maps to wss",
			page:       "https://poker.example.com/poker.html?room=1&player=2",
			embedded:   Embedded{Port: 443},
			wantRoom:   "1",
			wantPlayer: "2",
			wantURL:    "wss://poker.example.com:443/websocket/1/2",
		},
		{
			name:         "fallback hint from query",
			page:         "http://poker.example.com/poker.html?room=1&player=2&fallback=true",
			embedded:     Embedded{Port: 8080},
			wantRoom:     "1",
			wantPlayer:   "2",
			wantFallback: true,
			wantURL:      "ws://poker.example.com:8080/websocket/1/2",
		},
		{
			name:       "unparseable fallback is false",
			page:       "http://poker.example.com/?room=1&player=2&fallback=maybe",
			embedded:   Embedded{Port: 8080},
			wantRoom:   "1",
			wantPlayer: "2",
			wantURL:    "ws://poker.example.com:8080/websocket/1/2",
		},
		{
			name:       "embedded values fill missing query",
			page:       "http://poker.example.com:9000/poker.html",
			embedded:   Embedded{Room: "r", Player: "p", Port: 8081},
			wantRoom:   "r",
			wantPlayer: "p",
			wantURL:    "ws://poker.example.com:8081/websocket/r/p",
		},
		{
			name:       "port query overrides embedded port",
			page:       "http://poker.example.com/?room=1&player=2&port=9999",
			embedded:   Embedded{Port: 8080},
			wantRoom:   "1",
			wantPlayer: "2",
			wantURL:    "ws://poker.example.com:9999/websocket/1/2",
		},
		{
			name:       "local file uses fixed address",
			page:       "file:///home/me/project/poker.html?room=1234&player=9887",
			wantRoom:   "1234",
			wantPlayer: "9887",
			wantURL:    "ws://localhost:8080/websocket/1234/9887",
			wantLocal:  true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id, ep, err := Resolve(mustParse(t, tc.page), tc.embedded)
			if err != nil {
				t.Fatalf("Resolve returned error: %v", err)
			}
			if id.RoomID != tc.wantRoom {
				t.Errorf("Expected room %q, got %q", tc.wantRoom, id.RoomID)
			}
			if id.PlayerID != tc.wantPlayer {
				t.Errorf("Expected player %q, got %q", tc.wantPlayer, id.PlayerID)
			}
			if id.FallbackHint != tc.wantFallback {
				t.Errorf("Expected fallback hint %v, got %v", tc.wantFallback, id.FallbackHint)
			}
			if ep.URL != tc.wantURL {
				t.Errorf("Expected endpoint %q, got %q", tc.wantURL, ep.URL)
			}
			if ep.Local != tc.wantLocal {
				t.Errorf("Expected local %v, got %v", tc.wantLocal, ep.Local)
			}
		})
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name     string
		page     string
		embedded Embedded
		want     error
	}{
		{"missing room", "http://h/?player=1", Embedded{Port: 80}, ErrMissingRoom},
		{"missing player", "http://h/?room=1", Embedded{Port: 80}, ErrMissingPlayer},
		{"bad port query", "http://h/?room=1&player=2&port=abc", Embedded{Port: 80}, ErrInvalidPort},
		{"zero port", "http://h/?room=1&player=2", Embedded{}, ErrInvalidPort},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Resolve(mustParse(t, tc.page), tc.embedded)
			if !errors.Is(err, tc.want) {
				t.Errorf("Expected error %v, got %v", tc.want, err)
			}
		})
	}
}

func TestResolveNilPageIsLocal(t *testing.T) {
	_, ep, err := Resolve(nil, Embedded{Room: "1", Player: "2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ep.Local {
		t.Error("Expected nil page to resolve to the local endpoint")
	}
}

func TestReloadURL(t *testing.T) {
	page := mustParse(t, "http://poker.example.com/game/poker.html?room=1&player=2&fallback=true&extra=x#top")
	id := Identity{RoomID: "1", PlayerID: "2"}

	got := ReloadURL(page, id, false).String()
	want := "http://poker.example.com/game/poker.html?room=1&player=2&fallback=false"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	got = ReloadURL(page, id, true).String()
	want = "http://poker.example.com/game/poker.html?room=1&player=2&fallback=true"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	if page.RawQuery != "room=1&player=2&fallback=true&extra=x" {
		t.Errorf("ReloadURL must not modify the page URL, got query %q", page.RawQuery)
	}
}

func TestReloadURLRoundTrip(t *testing.T) {
	page := mustParse(t, "http://poker.example.com/poker.html")
	id := Identity{RoomID: "room 7", PlayerID: "p&1"}

	next := ReloadURL(page, id, true)
	got, _, err := Resolve(next, Embedded{Port: 8080})
	if err != nil {
		t.Fatalf("Resolve(reload) error: %v", err)
	}
	if got.RoomID != id.RoomID || got.PlayerID != id.PlayerID || !got.FallbackHint {
		t.Errorf("Expected %+v with fallback, got %+v", id, got)
	}
}
