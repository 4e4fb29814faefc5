package engine

import (
	"sync"

	"github.com/gridline/gridline/internal/event"
	"github.com/gridline/gridline/internal/game"
)

// Replica tracks board state from relayed StateUpdated events without
// validating anything. The joining peer runs one so both sides own a
// queryable local engine while the authoritative peer remains the only
// mutator.
type Replica struct {
	mu    sync.Mutex
	state State

	bus *event.Bus
	sub event.Subscription
}

// NewReplica subscribes a fresh replica to StateUpdated on the bus.
func NewReplica(bus *event.Bus) *Replica {
	r := &Replica{bus: bus, state: State{CurrentPlayer: game.X}}
	r.sub = event.Subscribe(bus, r.onStateUpdated)
	return r
}

// Stop detaches the replica from the bus.
func (r *Replica) Stop() {
	r.bus.Unsubscribe(r.sub)
}

// State returns the last relayed snapshot.
func (r *Replica) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Replica) onStateUpdated(ev event.StateUpdated) error {
	r.mu.Lock()
	r.state = State{Board: ev.Board, CurrentPlayer: ev.CurrentPlayer, Winner: ev.Winner, Over: ev.Over}
	r.mu.Unlock()
	return nil
}
