// Package engine owns the authoritative game state for one peer. All
// mutation flows through MoveRequested events on the bus; everything else
// only observes the snapshots the engine publishes back.
package engine

import (
	"fmt"
	"sync"

	"github.com/gridline/gridline/core/logx"
	"github.com/gridline/gridline/internal/event"
	"github.com/gridline/gridline/internal/game"
	"github.com/gridline/gridline/internal/metrics"
)

// State is a point-in-time snapshot of one peer's view of the game.
type State struct {
	Board         game.Board  `json:"board"`
	CurrentPlayer game.Symbol `json:"current_player"`
	Winner        game.Symbol `json:"winner"`
	Over          bool        `json:"over"`
}

// Engine validates and applies moves, advancing the turn strictly via
// bus events. Exactly one engine per session mutates state; peers that
// joined over the network run a Replica instead.
type Engine struct {
	bus *event.Bus

	mu      sync.Mutex
	board   game.Board
	current game.Symbol
	winner  game.Symbol
	over    bool

	sub event.Subscription
}

// New creates an engine starting with X to move and subscribes it to
// MoveRequested.
func New(bus *event.Bus) *Engine {
	e := &Engine{bus: bus, current: game.X}
	e.sub = event.Subscribe(bus, e.onMoveRequested)
	return e
}

// Start publishes the initial snapshot and opens the first turn.
func (e *Engine) Start() error {
	if err := e.bus.Publish(e.stateUpdated()); err != nil {
		return err
	}
	return e.publishStartTurn()
}

// Stop detaches the engine from the bus.
func (e *Engine) Stop() {
	e.bus.Unsubscribe(e.sub)
}

// State returns the current snapshot.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{Board: e.board, CurrentPlayer: e.current, Winner: e.winner, Over: e.over}
}

// onMoveRequested validates the request in rule order: turn ownership,
// bounds, occupancy, game over. Recoverable violations produce an
// InvalidMove plus a fresh StartTurn for the same player. An out-of-
// bounds request indicates a protocol bug and is returned as an error to
// whoever published it; it is never retried.
func (e *Engine) onMoveRequested(ev event.MoveRequested) error {
	e.mu.Lock()
	var err error
	if ev.Player != e.current {
		err = game.ErrNotYourTurn
	} else {
		err = e.board.Apply(game.Move{Player: ev.Player, Row: ev.Row, Col: ev.Col})
	}
	if err == game.ErrOutOfBounds {
		e.mu.Unlock()
		metrics.MovesRejected.WithLabelValues("out_of_bounds").Inc()
		return fmt.Errorf("move (%d,%d) by %s: %w", ev.Row, ev.Col, ev.Player, err)
	}
	if err != nil {
		e.mu.Unlock()
		metrics.MovesRejected.WithLabelValues(rejectionLabel(err)).Inc()
		logx.Log.Debug().Str("player", string(ev.Player)).Int("row", ev.Row).Int("col", ev.Col).
			Err(err).Msg("move rejected")
		if pubErr := e.bus.Publish(event.InvalidMove{
			Player: ev.Player, Row: ev.Row, Col: ev.Col, Reason: err.Error(),
		}); pubErr != nil {
			return pubErr
		}
		// Same player retries, unless the game already ended.
		return e.publishStartTurn()
	}

	e.winner = e.board.Winner()
	e.over = e.winner != game.Empty || e.board.Full()
	e.current = e.current.Opponent()
	over := e.over
	e.mu.Unlock()

	metrics.MovesApplied.Inc()
	logx.Log.Info().Str("player", string(ev.Player)).Int("row", ev.Row).Int("col", ev.Col).Msg("move applied")
	if over {
		metrics.GamesFinished.WithLabelValues(outcomeLabel(e.winner)).Inc()
	}

	if err := e.bus.Publish(e.stateUpdated()); err != nil {
		return err
	}
	if over {
		return nil
	}
	return e.publishStartTurn()
}

func (e *Engine) stateUpdated() event.StateUpdated {
	e.mu.Lock()
	defer e.mu.Unlock()
	return event.StateUpdated{Board: e.board, CurrentPlayer: e.current, Winner: e.winner, Over: e.over}
}

// publishStartTurn opens the next turn unless the game has ended.
func (e *Engine) publishStartTurn() error {
	e.mu.Lock()
	ev := event.StartTurn{Board: e.board, CurrentPlayer: e.current}
	over := e.over
	e.mu.Unlock()
	if over {
		return nil
	}
	return e.bus.Publish(ev)
}

func rejectionLabel(err error) string {
	switch err {
	case game.ErrNotYourTurn:
		return "not_your_turn"
	case game.ErrCellOccupied:
		return "cell_occupied"
	case game.ErrGameOver:
		return "game_over"
	default:
		return "other"
	}
}

func outcomeLabel(winner game.Symbol) string {
	switch winner {
	case game.X:
		return "win_x"
	case game.O:
		return "win_o"
	default:
		return "draw"
	}
}
