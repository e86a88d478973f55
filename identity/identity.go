package identity

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// LocalServerAddress is the server used when the page has no network host.
// It is safe to point this at any server while testing a skin from a local file.
const LocalServerAddress = "ws://localhost:8080"

// EndpointPath is the path prefix of the room/player channel on the server.
const EndpointPath = "/websocket"

// Query parameters carried by the page URL.
const (
	ParamRoom     = "room"
	ParamPlayer   = "player"
	ParamFallback = "fallback"
	ParamPort     = "port"
)

var (
	ErrMissingRoom   = errors.New("room id not provided")
	ErrMissingPlayer = errors.New("player id not provided")
	ErrInvalidPort   = errors.New("invalid websocket port")
)

// Identity is the room/player pair of one page load plus the transport hint
// carried over from the previous load.
type Identity struct {
	RoomID       string
	PlayerID     string
	FallbackHint bool
}

// Embedded holds the values a served page carries in its script variables.
// Query parameters on the page URL take precedence over Room, Player and Port.
type Embedded struct {
	Room         string
	Player       string
	Port         int
	FallbackPort int
}

// Endpoint is the resolved server channel for an identity.
type Endpoint struct {
	URL   string
	Local bool
}

// Resolve derives the identity and server endpoint from the page URL.
func Resolve(page *url.URL, embedded Embedded) (Identity, Endpoint, error) {
	if page == nil {
		page = &url.URL{Scheme: "file"}
	}
	q := page.Query()

	id := Identity{
		RoomID:   firstNonEmpty(q.Get(ParamRoom), embedded.Room),
		PlayerID: firstNonEmpty(q.Get(ParamPlayer), embedded.Player),
	}
	if id.RoomID == "" {
		return Identity{}, Endpoint{}, ErrMissingRoom
	}
	if id.PlayerID == "" {
		return Identity{}, Endpoint{}, ErrMissingPlayer
	}
	if v := q.Get(ParamFallback); v != "" {
		id.FallbackHint, _ = strconv.ParseBool(v)
	}

	channel := EndpointPath + "/" + id.RoomID + "/" + id.PlayerID

	host := page.Hostname()
	if host == "" {
		local, err := url.Parse(LocalServerAddress)
		if err != nil {
			return Identity{}, Endpoint{}, fmt.Errorf("parse local server address: %w", err)
		}
		local.Path = channel
		return id, Endpoint{URL: local.String(), Local: true}, nil
	}

	port := embedded.Port
	if v := q.Get(ParamPort); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return Identity{}, Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidPort, v)
		}
		port = p
	}
	if port <= 0 || port > 65535 {
		return Identity{}, Endpoint{}, fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}

	scheme := "ws"
	if strings.EqualFold(page.Scheme, "https") {
		scheme = "wss"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   host + ":" + strconv.Itoa(port),
		Path:   channel,
	}
	return id, Endpoint{URL: u.String()}, nil
}

// ReloadURL returns the URL of the next page load for the given identity.
// The page path is kept and the query replaced by room, player and fallback.
func ReloadURL(page *url.URL, id Identity, fallback bool) *url.URL {
	next := &url.URL{Scheme: "file"}
	if page != nil {
		copied := *page
		next = &copied
	}
	next.RawQuery = ParamRoom + "=" + url.QueryEscape(id.RoomID) +
		"&" + ParamPlayer + "=" + url.QueryEscape(id.PlayerID) +
		"&" + ParamFallback + "=" + strconv.FormatBool(fallback)
	next.Fragment = ""
	return next
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
