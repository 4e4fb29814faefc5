// Package player holds the participant policies that sit on top of the
// bus: a local human input hook and two AI move selectors. Policies only
// publish and subscribe; they never touch engine or transport internals.
package player

import (
	"github.com/gridline/gridline/internal/event"
	"github.com/gridline/gridline/internal/game"
)

// Local adapts human input to the bus. When its turn starts it asks
// front ends to enable input; a front end then calls SubmitMove.
type Local struct {
	bus    *event.Bus
	symbol game.Symbol
	sub    event.Subscription
}

// NewLocal registers a local input policy for the given symbol.
func NewLocal(bus *event.Bus, symbol game.Symbol) *Local {
	p := &Local{bus: bus, symbol: symbol}
	p.sub = event.Subscribe(bus, p.onStartTurn)
	return p
}

// SubmitMove publishes the move request. The returned error is whatever
// the move's consumers surface synchronously: a network fault when the
// path to the authoritative peer failed, or a protocol-level rejection.
// Rule violations do not arrive here; they come back as InvalidMove
// events followed by a fresh EnableInput.
func (p *Local) SubmitMove(row, col int) error {
	return p.bus.Publish(event.MoveRequested{Player: p.symbol, Row: row, Col: col})
}

// Symbol returns the symbol this policy plays.
func (p *Local) Symbol() game.Symbol { return p.symbol }

// Stop detaches the policy from the bus.
func (p *Local) Stop() {
	p.bus.Unsubscribe(p.sub)
}

func (p *Local) onStartTurn(ev event.StartTurn) error {
	if ev.CurrentPlayer != p.symbol {
		return nil
	}
	return p.bus.Publish(event.EnableInput{Player: p.symbol})
}
