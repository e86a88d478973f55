package room

import (
	"encoding/json"

	"github.com/wricardo/sprint-planning-client/protocol"
)

// Fanout forwards every update to each presenter in order.
type Fanout []protocol.Presenter

func (f Fanout) RoomSize(size int) {
	for _, p := range f {
		p.RoomSize(size)
	}
}

func (f Fanout) DrawnSize(size int) {
	for _, p := range f {
		p.DrawnSize(size)
	}
}

func (f Fanout) CardSet(cards []json.RawMessage) {
	for _, p := range f {
		p.CardSet(cards)
	}
}

func (f Fanout) Reset() {
	for _, p := range f {
		p.Reset()
	}
}
