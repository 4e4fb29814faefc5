package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/gridline/gridline/internal/bridge"
	"github.com/gridline/gridline/internal/event"
	"github.com/gridline/gridline/internal/game"
	"github.com/gridline/gridline/internal/player"
)

// terminal is a deliberately thin front end: it renders StateUpdated,
// surfaces InvalidMove, and feeds stdin moves to local human policies
// when their input is enabled. It talks to the rest of the system only
// through bus hooks.
type terminal struct {
	bus *event.Bus

	mu      sync.Mutex
	locals  map[game.Symbol]*player.Local
	enabled game.Symbol
}

func newTerminal(bus *event.Bus) *terminal {
	t := &terminal{bus: bus, locals: make(map[game.Symbol]*player.Local)}
	event.Subscribe(bus, t.onStateUpdated)
	event.Subscribe(bus, t.onEnableInput)
	event.Subscribe(bus, t.onInvalidMove)
	return t
}

// attach registers a human policy whose input this terminal drives.
func (t *terminal) attach(p *player.Local) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.locals[p.Symbol()] = p
}

// start launches the stdin reader when at least one human plays here.
func (t *terminal) start(ctx context.Context) {
	t.mu.Lock()
	n := len(t.locals)
	t.mu.Unlock()
	if n == 0 {
		return
	}
	go t.inputLoop(ctx)
}

func (t *terminal) inputLoop(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		var row, col int
		if _, err := fmt.Sscanf(strings.TrimSpace(scanner.Text()), "%d %d", &row, &col); err != nil {
			fmt.Println("enter a move as: row col (e.g. 0 2)")
			continue
		}
		t.mu.Lock()
		p := t.locals[t.enabled]
		t.enabled = game.Empty
		t.mu.Unlock()
		if p == nil {
			fmt.Println("not your turn")
			continue
		}
		if err := p.SubmitMove(row, col); err != nil {
			var nerr *bridge.NetworkError
			if errors.As(err, &nerr) {
				fmt.Printf("move not delivered: %v\n", nerr)
				return
			}
			fmt.Printf("move failed: %v\n", err)
		}
	}
}

func (t *terminal) onStateUpdated(ev event.StateUpdated) error {
	var b strings.Builder
	b.WriteString("\n")
	for r := 0; r < game.Size; r++ {
		for c := 0; c < game.Size; c++ {
			cell := ev.Board[r][c]
			if cell == game.Empty {
				cell = "."
			}
			b.WriteString(string(cell))
			if c < game.Size-1 {
				b.WriteString(" ")
			}
		}
		b.WriteString("\n")
	}
	fmt.Print(b.String())
	if ev.Over {
		if ev.Winner != game.Empty {
			fmt.Printf("%s wins\n", ev.Winner)
		} else {
			fmt.Println("draw")
		}
	}
	return nil
}

func (t *terminal) onEnableInput(ev event.EnableInput) error {
	t.mu.Lock()
	_, local := t.locals[ev.Player]
	if local {
		t.enabled = ev.Player
	}
	t.mu.Unlock()
	if local {
		fmt.Printf("%s to move> ", ev.Player)
	}
	return nil
}

func (t *terminal) onInvalidMove(ev event.InvalidMove) error {
	t.mu.Lock()
	_, local := t.locals[ev.Player]
	t.mu.Unlock()
	if local {
		fmt.Printf("invalid move: %s\n", ev.Reason)
	}
	return nil
}
