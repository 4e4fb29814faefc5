package event

import (
	"reflect"
	"sync"

	"github.com/gridline/gridline/core/logx"
)

// Bus routes events to subscribers of their concrete type. Delivery is
// synchronous, in registration order, on the publishing goroutine.
type Bus struct {
	mu       sync.Mutex
	nextID   int
	handlers map[reflect.Type][]subscriber
}

type subscriber struct {
	id int
	fn func(Event) error
}

// Subscription identifies one registered handler for Unsubscribe.
type Subscription struct {
	typ reflect.Type
	id  int
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[reflect.Type][]subscriber)}
}

// Subscribe registers fn for events of type E and returns a handle that
// can be passed to Unsubscribe.
func Subscribe[E Event](b *Bus, fn func(E) error) Subscription {
	t := reflect.TypeOf((*E)(nil)).Elem()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[t] = append(b.handlers[t], subscriber{
		id: b.nextID,
		fn: func(ev Event) error { return fn(ev.(E)) },
	})
	return Subscription{typ: t, id: b.nextID}
}

// Unsubscribe removes a previously registered handler. Removing a handler
// twice is a no-op.
func (b *Bus) Unsubscribe(s Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[s.typ]
	for i, sub := range subs {
		if sub.id == s.id {
			b.handlers[s.typ] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.handlers[s.typ]) == 0 {
		delete(b.handlers, s.typ)
	}
}

// Publish delivers ev to every handler subscribed to its concrete type.
// Handlers run on the calling goroutine against a snapshot of the handler
// list, so a handler may subscribe or unsubscribe without corrupting the
// iteration. The first handler error aborts delivery and is returned to
// the publisher; the bus never swallows errors.
func (b *Bus) Publish(ev Event) error {
	t := reflect.TypeOf(ev)
	b.mu.Lock()
	subs := make([]subscriber, len(b.handlers[t]))
	copy(subs, b.handlers[t])
	b.mu.Unlock()
	for _, sub := range subs {
		if err := sub.fn(ev); err != nil {
			return err
		}
	}
	return nil
}

// Clear drops every registration. Used when tearing down a session.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[reflect.Type][]subscriber)
}

// Worker delivers events on a single dedicated goroutine in FIFO order.
// It exists for deliberately deferred work (an AI computing its move)
// so the publishing goroutine is never blocked by an expensive handler.
type Worker struct {
	bus    *Bus
	mu     sync.Mutex
	queue  []Event
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

// NewWorker starts the worker goroutine for this bus.
func (b *Bus) NewWorker() *Worker {
	w := &Worker{
		bus:  b,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

// Publish enqueues ev for delivery on the worker goroutine. It never
// blocks; the queue is unbounded. Handler errors are logged rather than
// returned since the publisher has already moved on.
func (w *Worker) Publish(ev Event) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.queue = append(w.queue, ev)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Close stops the worker goroutine. Events still queued are dropped.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()
	close(w.done)
}

func (w *Worker) run() {
	for {
		w.mu.Lock()
		var ev Event
		var ok bool
		if len(w.queue) > 0 {
			ev, ok = w.queue[0], true
			w.queue = w.queue[1:]
		}
		w.mu.Unlock()
		if !ok {
			select {
			case <-w.wake:
				continue
			case <-w.done:
				return
			}
		}
		select {
		case <-w.done:
			return
		default:
		}
		if err := w.bus.Publish(ev); err != nil {
			logx.Log.Error().Err(err).Type("event", ev).Msg("async event handler failed")
		}
	}
}
