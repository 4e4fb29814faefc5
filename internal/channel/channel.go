// Package channel turns a duplex byte stream into a sequence of typed
// wire messages. A Channel owns its stream: it runs one background
// reader, dispatches frames to registered handlers, queues unclaimed
// frames for Recv, and guarantees exactly-once teardown no matter which
// side or goroutine triggers it.
package channel

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/gridline/gridline/core/logx"
	"github.com/gridline/gridline/internal/metrics"
	"github.com/gridline/gridline/internal/wire"
)

// ErrClosed is returned by Send and Recv once the channel is shut down.
var ErrClosed = errors.New("channel closed")

// Handler consumes frames of one registered type on the reader goroutine.
// Handlers must be fast; anything expensive belongs on a bus worker.
type Handler func(wire.Message)

type registration struct {
	fn Handler
}

// Channel is a live framed connection plus its handler registry and inbox.
type Channel struct {
	id   string
	conn net.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	cond     *sync.Cond
	handlers map[string][]*registration
	inbox    []wire.Message

	closeOnce sync.Once
	closed    chan struct{}
}

// New wraps an established stream and starts the background reader.
func New(conn net.Conn) *Channel {
	c := &Channel{
		id:       uuid.NewString()[:8],
		conn:     conn,
		handlers: make(map[string][]*registration),
		closed:   make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	metrics.ChannelsOpen.Inc()
	go c.readLoop()
	return c
}

// ID identifies the channel in logs.
func (c *Channel) ID() string { return c.id }

// Done is closed when the channel has shut down.
func (c *Channel) Done() <-chan struct{} { return c.closed }

// Send encodes msg and writes one frame. Writes are serialized so
// concurrent senders cannot interleave bytes. After close it returns
// ErrClosed without touching the stream; a write failure is fatal and
// tears the channel down before returning.
func (c *Channel) Send(msg wire.Message) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	data, err := wire.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	_, err = c.conn.Write(data)
	c.writeMu.Unlock()
	if err != nil {
		logx.Log.Debug().Str("channel", c.id).Err(err).Msg("send failed; closing channel")
		c.Close()
		return fmt.Errorf("send %s: %w", msg.Type(), err)
	}
	metrics.FramesSent.WithLabelValues(msg.Type()).Inc()
	return nil
}

// Recv returns the next frame not claimed by a registered handler. It
// blocks until a frame arrives, the channel closes (ErrClosed), or ctx
// ends (its error).
func (c *Channel) Recv(ctx context.Context) (wire.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()
	for {
		if len(c.inbox) > 0 {
			msg := c.inbox[0]
			c.inbox = c.inbox[1:]
			return msg, nil
		}
		select {
		case <-c.closed:
			return nil, ErrClosed
		default:
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.cond.Wait()
	}
}

// Handle registers fn for frames of the given type and returns its
// unregister function. Frames of that type already sitting in the inbox
// are replayed through fn so a late registration cannot miss traffic.
func (c *Channel) Handle(msgType string, fn Handler) (remove func()) {
	reg := &registration{fn: fn}
	c.mu.Lock()
	c.handlers[msgType] = append(c.handlers[msgType], reg)
	var replay []wire.Message
	var rest []wire.Message
	for _, m := range c.inbox {
		if m.Type() == msgType {
			replay = append(replay, m)
		} else {
			rest = append(rest, m)
		}
	}
	c.inbox = rest
	c.mu.Unlock()
	for _, m := range replay {
		fn(m)
	}
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		regs := c.handlers[msgType]
		for i, r := range regs {
			if r == reg {
				c.handlers[msgType] = append(regs[:i:i], regs[i+1:]...)
				break
			}
		}
		if len(c.handlers[msgType]) == 0 {
			delete(c.handlers, msgType)
		}
	}
}

// Close shuts the channel down. It is idempotent and safe to call from
// any goroutine, including handlers and the reader itself. Cleanup order:
// refuse new sends, best-effort close frame to the peer, shut the write
// half, close the stream (which releases the reader), clear handler
// registrations, release blocked receivers.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		if data, err := wire.Marshal(wire.Close{}); err == nil {
			_, _ = c.conn.Write(data)
		}
		if cw, ok := c.conn.(interface{ CloseWrite() error }); ok {
			_ = cw.CloseWrite()
		}
		c.writeMu.Unlock()
		_ = c.conn.Close()
		c.mu.Lock()
		c.handlers = make(map[string][]*registration)
		c.cond.Broadcast()
		c.mu.Unlock()
		metrics.ChannelsOpen.Dec()
		logx.Log.Debug().Str("channel", c.id).Msg("channel closed")
	})
}

// readLoop pulls bytes off the stream and extracts delimited frames until
// EOF, a stream error, a malformed frame, or the peer's close request.
// Every exit path tears the channel down.
func (c *Channel) readLoop() {
	defer c.Close()
	r := bufio.NewReader(c.conn)
	for {
		line, err := r.ReadBytes(wire.Delimiter)
		if err != nil {
			select {
			case <-c.closed:
			default:
				logx.Log.Debug().Str("channel", c.id).Err(err).Msg("read loop ended")
			}
			return
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			continue
		}
		msg, err := wire.Unmarshal(line)
		if err != nil {
			logx.Log.Error().Str("channel", c.id).Err(err).Msg("fatal decode error")
			return
		}
		if msg.Type() == wire.TypeClose {
			logx.Log.Debug().Str("channel", c.id).Msg("peer requested close")
			return
		}
		metrics.FramesReceived.WithLabelValues(msg.Type()).Inc()
		c.dispatch(msg)
	}
}

// dispatch routes one frame to its handlers, or to the inbox when none
// are registered. A frame is never both handled and queued.
func (c *Channel) dispatch(msg wire.Message) {
	c.mu.Lock()
	regs := c.handlers[msg.Type()]
	snapshot := make([]*registration, len(regs))
	copy(snapshot, regs)
	if len(snapshot) == 0 {
		c.inbox = append(c.inbox, msg)
		c.cond.Broadcast()
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	for _, reg := range snapshot {
		reg.fn(msg)
	}
}
