// Package protocol defines the planning session wire messages and their dispatch.
//
// Inbound frames are JSON text carrying either a single message object or an
// array of message objects. Every message has an "mType" discriminant:
//
//	{"mType":"RoomSize","size":5}
//	[{"mType":"ts"},{"mType":"CardSet","cards":[1,2,3]}]
//
// Decode normalizes both shapes into an ordered []Message before anything is
// dispatched, so callers never deal with the object-or-array ambiguity.
//
// Message Kinds:
//
//   - RoomSize: number of players in the room
//   - DrawnSize: number of players that have drawn a card
//   - CardSet: the revealed cards
//   - Reset: a new round started (V2 only)
//   - ts: heartbeat, no action
//   - close: the server asks the client to hang up
//
// Anything else decodes to UnknownMessage and is never fatal.
//
// Dispatch:
//
// Dispatch routes each message to exactly one method of a Handler, in frame
// order, synchronously. Presentation hooks (room size, drawn size, card set,
// reset) are modelled separately by Presenter so the display layer does not
// need to know about heartbeats or connection control.
//
// Outbound:
//
// The client only ever sends two frames: the literal Handshake, used on the
// polling transport to announce the player, and the PlayerExit logout.
package protocol
