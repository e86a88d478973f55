package protocol

import "encoding/json"

// Presenter receives the display updates of a room. Implementations are
// expected to be synchronous and must not panic.
type Presenter interface {
	RoomSize(size int)
	DrawnSize(size int)
	CardSet(cards []json.RawMessage)
	Reset()
}

// Handler has one method per message kind plus Unknown for everything else.
type Handler interface {
	Presenter
	Heartbeat()
	Close()
	Unknown(msg UnknownMessage)
}

// Dispatch invokes exactly one Handler method per message, in order.
func Dispatch(msgs []Message, h Handler) {
	for _, msg := range msgs {
		switch m := msg.(type) {
		case RoomSizeMessage:
			h.RoomSize(m.Size)
		case DrawnSizeMessage:
			h.DrawnSize(m.Size)
		case CardSetMessage:
			h.CardSet(m.Cards)
		case ResetMessage:
			h.Reset()
		case HeartbeatMessage:
			h.Heartbeat()
		case CloseMessage:
			h.Close()
		case UnknownMessage:
			h.Unknown(m)
		}
	}
}
