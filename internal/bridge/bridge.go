// Package bridge mirrors turn-engine events across a channel so that one
// physical game looks, from each peer's local bus, like a normal local
// game. The peer constructed with a symbol is authoritative: its engine
// is the only mutator. The peer constructed without one only relays.
package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gridline/gridline/core/logx"
	"github.com/gridline/gridline/internal/channel"
	"github.com/gridline/gridline/internal/event"
	"github.com/gridline/gridline/internal/game"
	"github.com/gridline/gridline/internal/wire"
)

// DefaultHandshakeTimeout bounds the role-assignment wait when the
// caller's context carries no deadline of its own.
const DefaultHandshakeTimeout = 5 * time.Second

// NetworkError marks a failure of the path to the peer, as opposed to a
// game-rule rejection. Callers use errors.As to re-enable input and
// notify the user instead of waiting forever.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network: %s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

func netErr(op string, err error) error {
	return &NetworkError{Op: op, Err: err}
}

func handshakeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, DefaultHandshakeTimeout)
}

// Authoritative is the bridge role on the peer whose engine owns the
// game. It assigns the remote peer its symbol, forwards engine events
// over the wire and injects the peer's move requests into the local bus.
type Authoritative struct {
	bus     *event.Bus
	ch      *channel.Channel
	remote  game.Symbol
	session string

	subs    []event.Subscription
	removes []func()
}

// NewAuthoritative performs the host side of the handshake: it sends the
// role assignment naming the remote peer's symbol and blocks until the
// acknowledgement arrives, then wires up steady-state relaying. The wait
// is bounded; expiry is fatal to the session.
func NewAuthoritative(ctx context.Context, bus *event.Bus, ch *channel.Channel, remote game.Symbol) (*Authoritative, error) {
	a := &Authoritative{bus: bus, ch: ch, remote: remote, session: uuid.NewString()}

	if err := ch.Send(wire.AssignRole{Role: remote, SessionID: a.session}); err != nil {
		return nil, netErr("assign role", err)
	}
	hctx, cancel := handshakeCtx(ctx)
	defer cancel()
	msg, err := ch.Recv(hctx)
	if err != nil {
		ch.Close()
		return nil, netErr("await role ack", err)
	}
	ack, ok := msg.(wire.AssignRoleAck)
	if !ok {
		ch.Close()
		return nil, fmt.Errorf("handshake: expected %s, got %s", wire.TypeAssignRoleAck, msg.Type())
	}
	if ack.SessionID != a.session {
		ch.Close()
		return nil, fmt.Errorf("handshake: session mismatch")
	}
	logx.Log.Info().Str("session", a.session).Str("remote_symbol", string(remote)).
		Msg("peer acknowledged role")

	a.subs = append(a.subs,
		event.Subscribe(bus, a.onStartTurn),
		event.Subscribe(bus, a.onStateUpdated),
		event.Subscribe(bus, a.onInvalidMove),
	)
	a.removes = append(a.removes, ch.Handle(wire.TypeMoveRequest, a.onMoveRequest))
	return a, nil
}

// Session returns the session identifier minted for this game.
func (a *Authoritative) Session() string { return a.session }

// Done is closed when the underlying channel shuts down.
func (a *Authoritative) Done() <-chan struct{} { return a.ch.Done() }

// Close tears down the bridge and the channel it owns.
func (a *Authoritative) Close() {
	for _, s := range a.subs {
		a.bus.Unsubscribe(s)
	}
	for _, rm := range a.removes {
		rm()
	}
	a.ch.Close()
}

func (a *Authoritative) onStartTurn(ev event.StartTurn) error {
	if ev.CurrentPlayer != a.remote {
		return nil
	}
	if err := a.ch.Send(wire.StartTurn{Board: ev.Board, CurrentPlayer: ev.CurrentPlayer}); err != nil {
		return netErr("forward start turn", err)
	}
	return nil
}

func (a *Authoritative) onStateUpdated(ev event.StateUpdated) error {
	if err := a.ch.Send(wire.StateUpdate{
		Board: ev.Board, CurrentPlayer: ev.CurrentPlayer, Winner: ev.Winner, Over: ev.Over,
	}); err != nil {
		return netErr("forward state", err)
	}
	return nil
}

func (a *Authoritative) onInvalidMove(ev event.InvalidMove) error {
	if ev.Player != a.remote {
		return nil
	}
	if err := a.ch.Send(wire.InvalidMove{
		Player: ev.Player, Row: ev.Row, Col: ev.Col, Reason: ev.Reason,
	}); err != nil {
		return netErr("forward invalid move", err)
	}
	return nil
}

// onMoveRequest injects a relayed move into the local engine as if it
// were local input. A bus error here means a protocol-level bug (e.g.
// an out-of-bounds move from the peer) and ends the session.
func (a *Authoritative) onMoveRequest(msg wire.Message) {
	m := msg.(wire.MoveRequest)
	if err := a.bus.Publish(event.MoveRequested{Player: m.Player, Row: m.Row, Col: m.Col}); err != nil {
		logx.Log.Error().Str("session", a.session).Err(err).Msg("relayed move rejected as protocol error")
		a.ch.Close()
	}
}

// Relay is the bridge role on the joining peer. It adopts whatever
// symbol the authoritative peer assigns, republishes relayed events on
// the local bus and forwards locally originated moves for its symbol.
type Relay struct {
	bus     *event.Bus
	ch      *channel.Channel
	symbol  game.Symbol
	session string

	subs    []event.Subscription
	removes []func()
}

// NewRelay performs the joining side of the handshake: it blocks until
// the role assignment arrives (bounded wait, fatal on expiry), adopts
// the symbol, acknowledges, and only then registers gameplay handlers.
func NewRelay(ctx context.Context, bus *event.Bus, ch *channel.Channel) (*Relay, error) {
	hctx, cancel := handshakeCtx(ctx)
	defer cancel()
	msg, err := ch.Recv(hctx)
	if err != nil {
		ch.Close()
		return nil, netErr("await role assignment", err)
	}
	assign, ok := msg.(wire.AssignRole)
	if !ok {
		ch.Close()
		return nil, fmt.Errorf("handshake: expected %s, got %s", wire.TypeAssignRole, msg.Type())
	}
	if assign.Role != game.X && assign.Role != game.O {
		ch.Close()
		return nil, fmt.Errorf("handshake: invalid role %q", assign.Role)
	}
	r := &Relay{bus: bus, ch: ch, symbol: assign.Role, session: assign.SessionID}
	if err := ch.Send(wire.AssignRoleAck{SessionID: assign.SessionID}); err != nil {
		return nil, netErr("acknowledge role", err)
	}
	logx.Log.Info().Str("session", r.session).Str("symbol", string(r.symbol)).Msg("adopted role")

	r.removes = append(r.removes,
		ch.Handle(wire.TypeStartTurn, r.onWireStartTurn),
		ch.Handle(wire.TypeStateUpdate, r.onWireStateUpdate),
		ch.Handle(wire.TypeInvalidMove, r.onWireInvalidMove),
	)
	r.subs = append(r.subs, event.Subscribe(bus, r.onMoveRequested))
	return r, nil
}

// Symbol returns the symbol this peer was assigned.
func (r *Relay) Symbol() game.Symbol { return r.symbol }

// Session returns the session identifier assigned by the host.
func (r *Relay) Session() string { return r.session }

// Done is closed when the underlying channel shuts down.
func (r *Relay) Done() <-chan struct{} { return r.ch.Done() }

// Close tears down the bridge and the channel it owns.
func (r *Relay) Close() {
	for _, s := range r.subs {
		r.bus.Unsubscribe(s)
	}
	for _, rm := range r.removes {
		rm()
	}
	r.ch.Close()
}

// onMoveRequested forwards a locally originated move to the
// authoritative peer. The move is not applied locally; board state only
// changes when the resulting StateUpdate comes back, so a rejected move
// can never be observed locally after the fact.
func (r *Relay) onMoveRequested(ev event.MoveRequested) error {
	if ev.Player != r.symbol {
		return nil
	}
	if err := r.ch.Send(wire.MoveRequest{Player: ev.Player, Row: ev.Row, Col: ev.Col}); err != nil {
		return netErr("send move", err)
	}
	return nil
}

func (r *Relay) onWireStartTurn(msg wire.Message) {
	m := msg.(wire.StartTurn)
	r.republish(event.StartTurn{Board: m.Board, CurrentPlayer: m.CurrentPlayer})
}

func (r *Relay) onWireStateUpdate(msg wire.Message) {
	m := msg.(wire.StateUpdate)
	r.republish(event.StateUpdated{Board: m.Board, CurrentPlayer: m.CurrentPlayer, Winner: m.Winner, Over: m.Over})
}

func (r *Relay) onWireInvalidMove(msg wire.Message) {
	m := msg.(wire.InvalidMove)
	r.republish(event.InvalidMove{Player: m.Player, Row: m.Row, Col: m.Col, Reason: m.Reason})
}

// republish surfaces relayed events on the local bus. Handler errors on
// the reader path cannot reach a caller, so they end the session.
func (r *Relay) republish(ev event.Event) {
	if err := r.bus.Publish(ev); err != nil {
		logx.Log.Error().Str("session", r.session).Err(err).Msg("local handler failed on relayed event")
		r.ch.Close()
	}
}
