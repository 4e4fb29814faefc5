package channel

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/gridline/gridline/internal/game"
	"github.com/gridline/gridline/internal/wire"
)

func pipePair(t *testing.T) (*Channel, *Channel) {
	t.Helper()
	a, b := net.Pipe()
	ca := New(a)
	cb := New(b)
	t.Cleanup(func() {
		ca.Close()
		cb.Close()
	})
	return ca, cb
}

func recvOne(t *testing.T, c *Channel) wire.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := c.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	return msg
}

func TestSendRecv(t *testing.T) {
	a, b := pipePair(t)
	if err := a.Send(wire.MoveRequest{Player: game.X, Row: 0, Col: 2}); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := recvOne(t, b)
	m, ok := msg.(wire.MoveRequest)
	if !ok {
		t.Fatalf("expected MoveRequest, got %T", msg)
	}
	if m.Player != game.X || m.Row != 0 || m.Col != 2 {
		t.Fatalf("payload mismatch: %#v", m)
	}
}

func TestFramesArriveInSendOrder(t *testing.T) {
	a, b := pipePair(t)
	for i := 0; i < 20; i++ {
		if err := a.Send(wire.MoveRequest{Player: game.X, Row: i, Col: 0}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	for i := 0; i < 20; i++ {
		m := recvOne(t, b).(wire.MoveRequest)
		if m.Row != i {
			t.Fatalf("frame %d arrived out of order: got row %d", i, m.Row)
		}
	}
}

func TestHandlerClaimsFramesInboxGetsTheRest(t *testing.T) {
	a, b := pipePair(t)
	handled := make(chan wire.Message, 1)
	remove := b.Handle(wire.TypeStartTurn, func(m wire.Message) { handled <- m })
	defer remove()

	if err := a.Send(wire.StartTurn{CurrentPlayer: game.X}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := a.Send(wire.AssignRoleAck{SessionID: "s"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case m := <-handled:
		if m.Type() != wire.TypeStartTurn {
			t.Fatalf("handler got %s", m.Type())
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("handler never invoked")
	}
	// The unclaimed frame went to the inbox, not the handler.
	if m := recvOne(t, b); m.Type() != wire.TypeAssignRoleAck {
		t.Fatalf("inbox got %s", m.Type())
	}
}

func TestHandleReplaysQueuedFrames(t *testing.T) {
	a, b := pipePair(t)
	if err := a.Send(wire.StartTurn{CurrentPlayer: game.O}); err != nil {
		t.Fatalf("send: %v", err)
	}
	// Wait for the frame to land in the inbox before registering.
	deadline := time.Now().Add(2 * time.Second)
	for {
		b.mu.Lock()
		n := len(b.inbox)
		b.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("frame never queued")
		}
		time.Sleep(time.Millisecond)
	}
	got := make(chan wire.Message, 1)
	remove := b.Handle(wire.TypeStartTurn, func(m wire.Message) { got <- m })
	defer remove()
	select {
	case m := <-got:
		if m.(wire.StartTurn).CurrentPlayer != game.O {
			t.Fatalf("replayed frame mismatch: %#v", m)
		}
	case <-time.After(time.Second):
		t.Fatalf("queued frame not replayed to late handler")
	}
}

func TestUnregisteredHandlerStopsReceiving(t *testing.T) {
	a, b := pipePair(t)
	got := make(chan wire.Message, 2)
	remove := b.Handle(wire.TypeStartTurn, func(m wire.Message) { got <- m })
	if err := a.Send(wire.StartTurn{CurrentPlayer: game.X}); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler never invoked")
	}
	remove()
	if err := a.Send(wire.StartTurn{CurrentPlayer: game.O}); err != nil {
		t.Fatalf("send: %v", err)
	}
	// With no handler the frame must fall through to the inbox.
	if m := recvOne(t, b); m.(wire.StartTurn).CurrentPlayer != game.O {
		t.Fatalf("expected inbox delivery after unregister")
	}
	select {
	case m := <-got:
		t.Fatalf("removed handler still invoked: %#v", m)
	default:
	}
}

func TestRecvTimesOutViaContext(t *testing.T) {
	_, b := pipePair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := b.Recv(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestCloseReleasesBlockedReceiver(t *testing.T) {
	_, b := pipePair(t)
	errCh := make(chan error, 1)
	go func() {
		_, err := b.Recv(context.Background())
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	b.Close()
	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("receiver still blocked after close")
	}
}

func TestSendAfterCloseReturnsErrClosed(t *testing.T) {
	a, _ := pipePair(t)
	a.Close()
	if err := a.Send(wire.StartTurn{CurrentPlayer: game.X}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	a, _ := pipePair(t)
	a.Close()
	a.Close()
	select {
	case <-a.Done():
	default:
		t.Fatalf("Done not closed")
	}
}

func TestPeerCloseFrameShutsDownChannel(t *testing.T) {
	a, b := pipePair(t)
	a.Close()
	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("peer close not observed")
	}
	if err := b.Send(wire.StartTurn{CurrentPlayer: game.X}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after peer close, got %v", err)
	}
}

func TestStreamEOFShutsDownChannel(t *testing.T) {
	a, raw := net.Pipe()
	ca := New(a)
	defer ca.Close()
	_ = raw.Close()
	select {
	case <-ca.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("EOF not treated as close")
	}
}

func TestMalformedFrameIsFatal(t *testing.T) {
	a, raw := net.Pipe()
	ca := New(a)
	defer ca.Close()
	defer func() { _ = raw.Close() }()
	go func() { _, _ = raw.Write([]byte("{\"type\":\"move_request\",\"bogus\":1}\n")) }()
	select {
	case <-ca.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("malformed frame did not close channel")
	}
}

func TestPartialFramesAreBuffered(t *testing.T) {
	a, raw := net.Pipe()
	ca := New(a)
	defer ca.Close()
	defer func() { _ = raw.Close() }()
	payload := []byte("{\"type\":\"assign_role_ack\",\"session_id\":\"s-7\"}\n")
	go func() {
		for _, chunk := range [][]byte{payload[:10], payload[10:20], payload[20:]} {
			_, _ = raw.Write(chunk)
			time.Sleep(5 * time.Millisecond)
		}
	}()
	msg := recvOne(t, ca)
	if ack, ok := msg.(wire.AssignRoleAck); !ok || ack.SessionID != "s-7" {
		t.Fatalf("expected reassembled ack, got %#v", msg)
	}
}

func TestConcurrentSendsDoNotCorruptFraming(t *testing.T) {
	a, b := pipePair(t)
	const senders, per = 5, 20
	for s := 0; s < senders; s++ {
		s := s
		go func() {
			for i := 0; i < per; i++ {
				_ = a.Send(wire.MoveRequest{Player: game.X, Row: s, Col: i})
			}
		}()
	}
	seen := 0
	for seen < senders*per {
		msg := recvOne(t, b)
		if _, ok := msg.(wire.MoveRequest); !ok {
			t.Fatalf("corrupt frame decoded as %T", msg)
		}
		seen++
	}
}

func TestListenDialEstablishChannel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	hostCh := make(chan *Channel, 1)
	errCh := make(chan error, 1)
	go func() {
		c, err := Listen(ctx, addr)
		if err != nil {
			errCh <- err
			return
		}
		hostCh <- c
	}()

	var client *Channel
	deadline := time.Now().Add(3 * time.Second)
	for {
		client, err = Dial(ctx, addr)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	defer client.Close()

	var host *Channel
	select {
	case host = <-hostCh:
	case err := <-errCh:
		t.Fatalf("listen: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatalf("accept timed out")
	}
	defer host.Close()

	if err := client.Send(wire.AssignRoleAck{SessionID: "tcp"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if m := recvOne(t, host); m.(wire.AssignRoleAck).SessionID != "tcp" {
		t.Fatalf("unexpected frame: %#v", m)
	}
}

func TestListenAcceptTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := Listen(ctx, "127.0.0.1:0")
	if err == nil {
		t.Fatalf("expected accept timeout")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestWebSocketTransport(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	hostCh := make(chan *Channel, 1)
	errCh := make(chan error, 1)
	go func() {
		c, err := ListenWS(ctx, addr)
		if err != nil {
			errCh <- err
			return
		}
		hostCh <- c
	}()

	var client *Channel
	deadline := time.Now().Add(3 * time.Second)
	for {
		client, err = DialWS(ctx, "ws://"+addr)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial ws: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	defer client.Close()

	var host *Channel
	select {
	case host = <-hostCh:
	case err := <-errCh:
		t.Fatalf("listen ws: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatalf("ws accept timed out")
	}
	defer host.Close()

	if err := host.Send(wire.StartTurn{CurrentPlayer: game.X}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if m := recvOne(t, client); m.(wire.StartTurn).CurrentPlayer != game.X {
		t.Fatalf("unexpected frame: %#v", m)
	}
}
