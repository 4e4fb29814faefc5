package engine

import (
	"errors"
	"testing"

	"github.com/gridline/gridline/internal/event"
	"github.com/gridline/gridline/internal/game"
)

// recorder captures every protocol event published during a test.
type recorder struct {
	states   []event.StateUpdated
	turns    []event.StartTurn
	invalids []event.InvalidMove
}

func record(bus *event.Bus) *recorder {
	r := &recorder{}
	event.Subscribe(bus, func(ev event.StateUpdated) error { r.states = append(r.states, ev); return nil })
	event.Subscribe(bus, func(ev event.StartTurn) error { r.turns = append(r.turns, ev); return nil })
	event.Subscribe(bus, func(ev event.InvalidMove) error { r.invalids = append(r.invalids, ev); return nil })
	return r
}

func move(t *testing.T, bus *event.Bus, p game.Symbol, row, col int) {
	t.Helper()
	if err := bus.Publish(event.MoveRequested{Player: p, Row: row, Col: col}); err != nil {
		t.Fatalf("move %s (%d,%d): %v", p, row, col, err)
	}
}

func TestStartPublishesInitialSnapshotAndFirstTurn(t *testing.T) {
	bus := event.New()
	eng := New(bus)
	rec := record(bus)
	if err := eng.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(rec.states) != 1 || len(rec.turns) != 1 {
		t.Fatalf("expected 1 state and 1 turn, got %d and %d", len(rec.states), len(rec.turns))
	}
	if rec.turns[0].CurrentPlayer != game.X {
		t.Fatalf("game must start with X, got %s", rec.turns[0].CurrentPlayer)
	}
}

func TestTurnAlternatesStrictly(t *testing.T) {
	bus := event.New()
	eng := New(bus)
	moves := [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {2, 2}, {1, 2}}
	current := game.X
	for i, m := range moves {
		if got := eng.State().CurrentPlayer; got != current {
			t.Fatalf("before move %d: expected %s to play, engine says %s", i, current, got)
		}
		move(t, bus, current, m[0], m[1])
		current = current.Opponent()
	}
}

func TestWrongTurnRejectedWithoutStateChange(t *testing.T) {
	bus := event.New()
	eng := New(bus)
	rec := record(bus)
	move(t, bus, game.O, 0, 0) // X is to play
	if len(rec.invalids) != 1 {
		t.Fatalf("expected 1 InvalidMove, got %d", len(rec.invalids))
	}
	if len(rec.states) != 0 {
		t.Fatalf("rejected move published a state update")
	}
	st := eng.State()
	if st.Board != (game.Board{}) || st.CurrentPlayer != game.X {
		t.Fatalf("rejected move mutated engine state: %#v", st)
	}
	// The same player is re-prompted.
	if len(rec.turns) != 1 || rec.turns[0].CurrentPlayer != game.X {
		t.Fatalf("expected StartTurn for X after rejection, got %#v", rec.turns)
	}
}

func TestOccupiedCellRejectedSameErrorKindEveryTime(t *testing.T) {
	bus := event.New()
	eng := New(bus)
	rec := record(bus)
	move(t, bus, game.X, 1, 1)
	for i := 0; i < 3; i++ {
		move(t, bus, game.O, 1, 1)
	}
	if len(rec.invalids) != 3 {
		t.Fatalf("expected 3 InvalidMove events, got %d", len(rec.invalids))
	}
	for _, inv := range rec.invalids {
		if inv.Reason != game.ErrCellOccupied.Error() {
			t.Fatalf("expected %q, got %q", game.ErrCellOccupied.Error(), inv.Reason)
		}
	}
	if eng.State().CurrentPlayer != game.O {
		t.Fatalf("current player changed by rejected moves")
	}
}

func TestOutOfBoundsPropagatesAsError(t *testing.T) {
	bus := event.New()
	eng := New(bus)
	rec := record(bus)
	err := bus.Publish(event.MoveRequested{Player: game.X, Row: 3, Col: 0})
	if !errors.Is(err, game.ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds to reach the publisher, got %v", err)
	}
	if len(rec.invalids) != 0 {
		t.Fatalf("out of bounds must not be reported as a retryable InvalidMove")
	}
	if len(rec.turns) != 0 {
		t.Fatalf("out of bounds must not re-prompt")
	}
	if st := eng.State(); st.Board != (game.Board{}) {
		t.Fatalf("out of bounds mutated the board")
	}
}

// The scripted diagonal scenario: (0,0)=X (1,0)=O (1,1)=X (0,1)=O
// (2,2)=X must produce winner X via the main diagonal, exactly five
// StateUpdated events and no InvalidMove events.
func TestMainDiagonalScenario(t *testing.T) {
	bus := event.New()
	eng := New(bus)
	rec := record(bus)
	script := []struct {
		p        game.Symbol
		row, col int
	}{
		{game.X, 0, 0},
		{game.O, 1, 0},
		{game.X, 1, 1},
		{game.O, 0, 1},
		{game.X, 2, 2},
	}
	for _, s := range script {
		move(t, bus, s.p, s.row, s.col)
	}
	if len(rec.invalids) != 0 {
		t.Fatalf("unexpected InvalidMove events: %#v", rec.invalids)
	}
	if len(rec.states) != 5 {
		t.Fatalf("expected 5 StateUpdated events, got %d", len(rec.states))
	}
	final := rec.states[4]
	if final.Winner != game.X || !final.Over {
		t.Fatalf("expected X to win, got %#v", final)
	}
	st := eng.State()
	if st.Board[0][0] != game.X || st.Board[1][1] != game.X || st.Board[2][2] != game.X {
		t.Fatalf("main diagonal not held by X: %#v", st.Board)
	}
}

func TestNoStartTurnAfterGameEnds(t *testing.T) {
	bus := event.New()
	eng := New(bus)
	rec := record(bus)
	script := []struct {
		p        game.Symbol
		row, col int
	}{
		{game.X, 0, 0}, {game.O, 1, 0}, {game.X, 0, 1}, {game.O, 1, 1}, {game.X, 0, 2},
	}
	for _, s := range script {
		move(t, bus, s.p, s.row, s.col)
	}
	if !eng.State().Over {
		t.Fatalf("game should be over")
	}
	// Four turn openings for the four non-terminal moves.
	if len(rec.turns) != 4 {
		t.Fatalf("expected 4 StartTurn events, got %d", len(rec.turns))
	}
	// Any further move is rejected as game over.
	move(t, bus, game.O, 2, 2)
	if n := len(rec.invalids); n != 1 {
		t.Fatalf("expected 1 InvalidMove after game end, got %d", n)
	}
	if rec.invalids[0].Reason != game.ErrGameOver.Error() {
		t.Fatalf("expected game over rejection, got %q", rec.invalids[0].Reason)
	}
	// No re-prompt once the game is over.
	if len(rec.turns) != 4 {
		t.Fatalf("StartTurn published after game end")
	}
}

func TestDrawGame(t *testing.T) {
	bus := event.New()
	eng := New(bus)
	rec := record(bus)
	// X O X / X O O / O X X ends with no winner.
	script := []struct {
		p        game.Symbol
		row, col int
	}{
		{game.X, 0, 0}, {game.O, 0, 1}, {game.X, 0, 2},
		{game.O, 1, 1}, {game.X, 1, 0}, {game.O, 1, 2},
		{game.X, 2, 1}, {game.O, 2, 0}, {game.X, 2, 2},
	}
	for _, s := range script {
		move(t, bus, s.p, s.row, s.col)
	}
	st := eng.State()
	if !st.Over || st.Winner != game.Empty {
		t.Fatalf("expected a draw, got %#v", st)
	}
	if len(rec.states) != 9 {
		t.Fatalf("expected 9 StateUpdated events, got %d", len(rec.states))
	}
}

func TestReplicaTracksRelayedState(t *testing.T) {
	bus := event.New()
	rep := NewReplica(bus)
	defer rep.Stop()
	board := game.Board{{game.X}}
	if err := bus.Publish(event.StateUpdated{Board: board, CurrentPlayer: game.O}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	st := rep.State()
	if st.Board != board || st.CurrentPlayer != game.O {
		t.Fatalf("replica out of sync: %#v", st)
	}
	if err := bus.Publish(event.StateUpdated{Board: board, CurrentPlayer: game.X, Winner: game.X, Over: true}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if st := rep.State(); !st.Over || st.Winner != game.X {
		t.Fatalf("replica missed terminal state: %#v", st)
	}
}
