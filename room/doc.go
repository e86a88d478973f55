// Package room keeps what a player sees of a planning room.
//
// The room package implements the presentation side of a session:
//   - Board, a thread-safe snapshot of the room other components can query
//   - Console, a presenter that prints room updates as text
//   - Fanout, which feeds one stream of updates to several presenters
//
// Every type here implements protocol.Presenter and is plugged into a
// session through session.Options.
//
// Usage:
//
//	board := room.NewBoard()
//	presenter := room.Fanout{board, room.NewConsole(os.Stdout)}
//	tab := &session.Tab{Options: session.Options{Presenter: presenter}}
package room
