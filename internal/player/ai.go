package player

import (
	"math/rand"

	"github.com/gridline/gridline/core/logx"
	"github.com/gridline/gridline/internal/event"
	"github.com/gridline/gridline/internal/game"
)

// pickFunc selects a move for the given symbol on the given board. It is
// only called when at least one cell is free.
type pickFunc func(board game.Board, symbol game.Symbol) (row, col int)

// AI reacts to its turn by picking a move. Selection runs on a dedicated
// bus worker so the publishing goroutine never waits on the computation.
type AI struct {
	bus    *event.Bus
	symbol game.Symbol
	pick   pickFunc

	deferred *event.Bus
	worker   *event.Worker
	sub      event.Subscription
}

// NewRandomAI plays uniformly random legal moves.
func NewRandomAI(bus *event.Bus, symbol game.Symbol) *AI {
	return newAI(bus, symbol, randomMove)
}

// NewMinimaxAI plays perfectly; two of them always draw.
func NewMinimaxAI(bus *event.Bus, symbol game.Symbol) *AI {
	return newAI(bus, symbol, minimaxMove)
}

func newAI(bus *event.Bus, symbol game.Symbol, pick pickFunc) *AI {
	p := &AI{bus: bus, symbol: symbol, pick: pick, deferred: event.New()}
	event.Subscribe(p.deferred, p.takeTurn)
	p.worker = p.deferred.NewWorker()
	p.sub = event.Subscribe(bus, p.onStartTurn)
	return p
}

// Symbol returns the symbol this policy plays.
func (p *AI) Symbol() game.Symbol { return p.symbol }

// Stop detaches the policy and stops its worker.
func (p *AI) Stop() {
	p.bus.Unsubscribe(p.sub)
	p.worker.Close()
}

// onStartTurn runs on the publisher's goroutine and only defers the
// heavy work onto the worker.
func (p *AI) onStartTurn(ev event.StartTurn) error {
	if ev.CurrentPlayer == p.symbol {
		p.worker.Publish(ev)
	}
	return nil
}

// takeTurn runs on the worker goroutine.
func (p *AI) takeTurn(ev event.StartTurn) error {
	board := ev.Board
	if len(board.Available()) == 0 {
		logx.Log.Error().Str("symbol", string(p.symbol)).Msg("turn started with no moves available")
		return nil
	}
	row, col := p.pick(board, p.symbol)
	return p.bus.Publish(event.MoveRequested{Player: p.symbol, Row: row, Col: col})
}

func randomMove(board game.Board, _ game.Symbol) (int, int) {
	cells := board.Available()
	cell := cells[rand.Intn(len(cells))]
	return cell[0], cell[1]
}

// minimaxMove picks the move with the best exhaustive-search score.
// 3x3 is small enough that no pruning or memoization is worth having.
func minimaxMove(board game.Board, symbol game.Symbol) (int, int) {
	bestScore := -1 << 30
	var bestRow, bestCol int
	for _, cell := range board.Available() {
		next := board
		next[cell[0]][cell[1]] = symbol
		score := -search(next, symbol.Opponent())
		if score > bestScore {
			bestScore = score
			bestRow, bestCol = cell[0], cell[1]
		}
	}
	return bestRow, bestCol
}

// search scores the position from the perspective of the player to move.
// Wins closer to the root score higher so the AI finishes games instead
// of meandering.
func search(board game.Board, toMove game.Symbol) int {
	if w := board.Winner(); w != game.Empty {
		// The previous mover just won; the player to move has lost.
		return -(1 + len(board.Available()))
	}
	if board.Full() {
		return 0
	}
	best := -1 << 30
	for _, cell := range board.Available() {
		next := board
		next[cell[0]][cell[1]] = toMove
		if score := -search(next, toMove.Opponent()); score > best {
			best = score
		}
	}
	return best
}
