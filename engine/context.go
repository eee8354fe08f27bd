package engine

import (
	"errors"
	"sync"
)

// ErrShutdown is returned by NextStep (and anything built on it) once
// the engine has shut down. Actors must exit their loop on this
// error; it is the only suspension-point failure mode.
var ErrShutdown = errors.New("engine: shut down")

// tickWatch is the single-publisher, multi-subscriber broadcast used
// to wake every actor once per tick. Go has no tokio::sync::watch
// equivalent, so this follows the standard "close a channel to
// broadcast, then replace it" idiom.
type tickWatch struct {
	mu      sync.Mutex
	current Tick
	changed chan struct{}
	done    chan struct{}
	closed  bool
}

func newTickWatch() *tickWatch {
	return &tickWatch{changed: make(chan struct{}), done: make(chan struct{})}
}

func (w *tickWatch) publish(tick Tick) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.current = tick
	close(w.changed)
	w.changed = make(chan struct{})
}

func (w *tickWatch) shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.done)
	close(w.changed)
}

func (w *tickWatch) closedSignal() <-chan struct{} {
	return w.done
}

// next returns the channel that the next publish (or shutdown) closes.
func (w *tickWatch) next() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.changed
}

// wait blocks until ch (obtained from next) is closed and returns the
// new tick, or ok=false if the engine has shut down.
func (w *tickWatch) wait(ch <-chan struct{}) (Tick, bool) {
	<-ch

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, false
	}
	return w.current, true
}

// Context is the only surface through which an actor interacts with
// the engine: a per-agent handle over a send channel into the engine,
// a receive channel from the engine, and a tick-watch subscription.
// A Context is single-owner: exactly one goroutine (the protocol
// actor) may call its methods.
type Context[T any] struct {
	id      AgentID
	send    chan<- Data[T]
	recv    <-chan Envelope[T]
	barrier chan<- struct{}
	watch   *tickWatch
	current Tick
}

// Send is a non-blocking enqueue into the engine's ingress channel for
// this agent. It never fails observably to the actor: if the engine's
// buffer is saturated (it never is in ordinary use; the buffer is
// sized generously) or the engine has shut down, the message is
// silently dropped.
func (c *Context[T]) Send(data Data[T]) {
	select {
	case c.send <- data:
	default:
	}
}

// TryRead is a non-blocking dequeue from this agent's receive queue.
func (c *Context[T]) TryRead() (Envelope[T], bool) {
	select {
	case env := <-c.recv:
		return env, true
	default:
		return Envelope[T]{}, false
	}
}

// NextStep signals the per-tick barrier that this actor is done with
// the current tick, suspends until the engine advances the tick
// watch, and returns the new tick. This is the only suspension point
// in the Context API; every other method is non-blocking.
func (c *Context[T]) NextStep() (Tick, error) {
	// Subscribe before signaling the barrier, so the publish that the
	// barrier signal allows cannot happen before we wait for it.
	next := c.watch.next()
	select {
	case c.barrier <- struct{}{}:
	case <-c.watch.closedSignal():
		return 0, ErrShutdown
	}
	tick, ok := c.watch.wait(next)
	if !ok {
		return 0, ErrShutdown
	}
	c.current = tick
	return tick, nil
}

func (c *Context[T]) readOne() (Envelope[T], bool, error) {
	if env, ok := c.TryRead(); ok {
		return env, true, nil
	}
	if _, err := c.NextStep(); err != nil {
		return Envelope[T]{}, false, err
	}
	return Envelope[T]{}, false, nil
}

// Read loops TryRead/NextStep until a message arrives, and returns it.
func (c *Context[T]) Read() (Envelope[T], error) {
	for {
		env, ok, err := c.readOne()
		if err != nil {
			return Envelope[T]{}, err
		}
		if ok {
			return env, nil
		}
	}
}

// ReadFor is the canonical "do periodic work" idiom: it loops like
// Read but suspends at most n times, returning ok=false if n ticks
// elapse with an empty queue.
func (c *Context[T]) ReadFor(n int) (env Envelope[T], ok bool, err error) {
	for i := 0; i < n; i++ {
		env, ok, err = c.readOne()
		if err != nil {
			return Envelope[T]{}, false, err
		}
		if ok {
			return env, true, nil
		}
	}
	return Envelope[T]{}, false, nil
}

// Sleep calls NextStep n times, ignoring the receive queue; the actor
// is deliberately idle for n ticks.
func (c *Context[T]) Sleep(n int) error {
	for i := 0; i < n; i++ {
		if _, err := c.NextStep(); err != nil {
			return err
		}
	}
	return nil
}

// CurrentStep returns the last tick observed by this Context, updated
// by every suspension point.
func (c *Context[T]) CurrentStep() Tick {
	return c.current
}

// ID returns the agent id this Context belongs to.
func (c *Context[T]) ID() AgentID {
	return c.id
}
