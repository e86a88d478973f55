package room

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wricardo/sprint-planning-client/identity"
	"github.com/wricardo/sprint-planning-client/protocol"
)

// Snapshot is a copy of the board at one point in time.
type Snapshot struct {
	Identity  identity.Identity `json:"identity"`
	LoadID    string            `json:"load_id,omitempty"`
	RoomSize  int               `json:"room_size"`
	DrawnSize int               `json:"drawn_size"`
	Cards     []string          `json:"cards"`
	Resets    int               `json:"resets"`
	Updates   int               `json:"updates"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Board tracks the room state reported by the server.
type Board struct {
	mu    sync.RWMutex
	state Snapshot
	now   func() time.Time
}

var _ protocol.Presenter = (*Board)(nil)

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{now: time.Now}
}

// Begin clears the board for a new page load. Nothing a previous load
// displayed survives a reload.
func (b *Board) Begin(id identity.Identity, loadID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Snapshot{Identity: id, LoadID: loadID}
}

func (b *Board) RoomSize(size int) {
	b.update(func(s *Snapshot) { s.RoomSize = size })
}

func (b *Board) DrawnSize(size int) {
	b.update(func(s *Snapshot) { s.DrawnSize = size })
}

// CardSet replaces the revealed cards. String cards are unquoted, anything
// else is kept as its JSON text.
func (b *Board) CardSet(cards []json.RawMessage) {
	values := make([]string, len(cards))
	for i, raw := range cards {
		values[i] = cardText(raw)
	}
	b.update(func(s *Snapshot) { s.Cards = values })
}

// Reset starts a new round.
func (b *Board) Reset() {
	b.update(func(s *Snapshot) {
		s.DrawnSize = 0
		s.Cards = nil
		s.Resets++
	})
}

func (b *Board) update(fn func(s *Snapshot)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.state)
	b.state.Updates++
	b.state.UpdatedAt = b.now()
}

// Snapshot returns a copy of the current state.
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.state
	s.Cards = append([]string(nil), b.state.Cards...)
	return s
}

// String renders the snapshot for humans.
func (s Snapshot) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Room %s, player %s\n", s.Identity.RoomID, s.Identity.PlayerID)
	fmt.Fprintf(&sb, "Players: %d\n", s.RoomSize)
	fmt.Fprintf(&sb, "Cards drawn: %d\n", s.DrawnSize)
	if len(s.Cards) > 0 {
		fmt.Fprintf(&sb, "Card set: %s\n", strings.Join(s.Cards, ", "))
	} else {
		sb.WriteString("Card set: (hidden)\n")
	}
	fmt.Fprintf(&sb, "Rounds reset: %d\n", s.Resets)
	if !s.UpdatedAt.IsZero() {
		fmt.Fprintf(&sb, "Last update: %s\n", s.UpdatedAt.Format(time.RFC3339))
	}
	return sb.String()
}

func cardText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
