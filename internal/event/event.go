// Package event defines the in-process publish/subscribe bus and the
// closed set of events the turn protocol is built from. The bus is plain
// plumbing: it routes by concrete event type and never interprets payloads.
package event

import "github.com/gridline/gridline/internal/game"

// Event is any value published on the bus. Routing is by concrete type.
type Event any

// StateUpdated carries a full board snapshot after an authoritative
// mutation. Renderers react to this and nothing else.
type StateUpdated struct {
	Board         game.Board
	CurrentPlayer game.Symbol
	Winner        game.Symbol
	Over          bool
}

// StartTurn announces that the named player may move.
type StartTurn struct {
	Board         game.Board
	CurrentPlayer game.Symbol
}

// MoveRequested asks the engine to place a mark. Anyone may publish it;
// only the engine reacts.
type MoveRequested struct {
	Player game.Symbol
	Row    int
	Col    int
}

// InvalidMove reports a recoverable rule violation back to the offending
// player, who is re-prompted via a fresh StartTurn.
type InvalidMove struct {
	Player game.Symbol
	Row    int
	Col    int
	Reason string
}

// EnableInput tells local front ends to accept input for the given symbol.
type EnableInput struct {
	Player game.Symbol
}
