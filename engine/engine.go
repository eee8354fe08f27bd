package engine

import (
	"log"
	"math/rand"
	"sync"
	"time"
)

// recvBufferSize bounds each agent's receive queue and send-into-engine
// channel. The original source used unbounded mpsc channels; Go has no
// unbounded channel, so a generously sized buffer approximates one.
// Neither side blocks on overflow: Context.Send drops silently and
// Release drops with a warning, preserving the "never fails
// observably" contract of spec.md §4.D.
const recvBufferSize = 4096

// EventEmitter lets an Engine report tick/delivery/drop events without
// coupling to any particular sink; observer.Bus implements it. A nil
// Emitter (the default) is a silent no-op — the engine's correctness
// never depends on anything observing it.
type EventEmitter interface {
	Emit(kind string, data map[string]interface{})
}

// Engine owns every piece of cross-cutting simulation state — the
// link map, delivery buffer, stats, and per-agent channels — and
// drives logical time forward one tick per Step call. It is the Go
// realization of spec.md §4.E ("Engine (Model)").
type Engine[T any] struct {
	size int

	mu   sync.Mutex // guards step, nextID, rng (all touched outside Step too)
	step Tick

	ingress []<-chan Data[T]
	toAgent []chan<- Envelope[T]
	barrier chan struct{}
	watch   *tickWatch

	Conn  *LinkMap
	Stats *Stats
	Rng   *rand.Rand

	buffer  *DeliveryBuffer[T]
	nextID  uint32
	emitter EventEmitter
}

// SetEmitter attaches an observer for tick/delivery/drop events. Call
// it once, before the first Step, from the scenario driver.
func (e *Engine[T]) SetEmitter(emitter EventEmitter) {
	e.emitter = emitter
}

func (e *Engine[T]) emit(kind string, data map[string]interface{}) {
	if e.emitter != nil {
		e.emitter.Emit(kind, data)
	}
}

// New creates an Engine for size agents and the per-agent Contexts the
// scenario driver hands to spawned actors — the Go equivalent of
// Model::new in the original source: one factory call produces both
// halves of every channel pair.
func New[T any](size int) (*Engine[T], []*Context[T]) {
	return newEngine[T](size, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewSeeded is the deterministic variant used by tests and by
// scenario drivers that honor the SEED environment variable
// (spec.md §6).
func NewSeeded[T any](size int, seed int64) (*Engine[T], []*Context[T]) {
	return newEngine[T](size, rand.New(rand.NewSource(seed)))
}

func newEngine[T any](size int, rng *rand.Rand) (*Engine[T], []*Context[T]) {
	if size <= 0 {
		panic("engine: size must be positive")
	}

	ingress := make([]<-chan Data[T], size)
	toAgent := make([]chan<- Envelope[T], size)
	barrier := make(chan struct{}, size)
	watch := newTickWatch()

	contexts := make([]*Context[T], size)
	for id := 0; id < size; id++ {
		in := make(chan Data[T], recvBufferSize)
		out := make(chan Envelope[T], recvBufferSize)
		ingress[id] = in
		toAgent[id] = out
		contexts[id] = &Context[T]{
			id:      id,
			send:    in,
			recv:    out,
			barrier: barrier,
			watch:   watch,
		}
	}

	eng := &Engine[T]{
		size:    size,
		ingress: ingress,
		toAgent: toAgent,
		barrier: barrier,
		watch:   watch,
		Conn:    NewLinkMap(),
		Stats:   NewStats(),
		Rng:     rng,
		buffer:  NewDeliveryBuffer[T](),
	}
	return eng, contexts
}

// Size returns the fixed agent population.
func (e *Engine[T]) Size() int { return e.size }

// CurrentStep returns the engine's current tick.
func (e *Engine[T]) CurrentStep() Tick {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step
}

// Step advances logical time by exactly one tick, realizing the
// five-phase protocol of spec.md §4.E:
//
//  1. barrier — await exactly size "done" signals.
//  2. advance — step++.
//  3. drain ingress — process every pending emission in per-agent
//     program order; Request emissions are final-delivery reports,
//     Comm emissions are broadcast through the link sampler.
//  4. release — hand off everything scheduled for the new tick, in
//     shuffled order.
//  5. publish — wake every actor suspended in NextStep.
func (e *Engine[T]) Step() {
	for i := 0; i < e.size; i++ {
		<-e.barrier
	}

	e.mu.Lock()
	e.step++
	now := e.step
	e.mu.Unlock()

	log.Printf("engine: step %d", now)
	e.emit("step", map[string]interface{}{"tick": now})

	type pending struct {
		from int
		data Data[T]
	}
	var drained []pending
	for from, ch := range e.ingress {
	drainAgent:
		for {
			select {
			case d := <-ch:
				drained = append(drained, pending{from, d})
			default:
				break drainAgent
			}
		}
	}

	for _, p := range drained {
		if p.data.IsRequest() {
			e.finalizeRequest(p.from, p.data.Request(), now)
		} else {
			e.broadcast(p.from, p.data.Payload(), now)
		}
	}

	e.mu.Lock()
	envs := e.buffer.Drain(now, e.Rng)
	e.mu.Unlock()
	for _, env := range envs {
		e.Stats.OnMessage()
		e.deliver(env)
	}

	e.watch.publish(now)
}

func (e *Engine[T]) finalizeRequest(sender int, r RequestMessage, now Tick) {
	if r.To != sender {
		log.Printf("engine: warning: agent %d reported final delivery for a request addressed to %d, discarding", sender, r.To)
		e.emit("dropped", map[string]interface{}{"id": r.ID, "reason": "wrong_destination", "agent": sender})
		return
	}
	steps := now - r.Start
	if e.Stats.Delivered(r.ID, steps) {
		log.Printf("engine: message %d delivered to %d in %d steps", r.ID, r.To, steps)
		e.emit("delivered", map[string]interface{}{"id": r.ID, "to": r.To, "steps": steps})
	} else {
		log.Printf("engine: message %d delivered again to %d (duplicate)", r.ID, r.To)
		e.emit("duplicate", map[string]interface{}{"id": r.ID, "to": r.To})
	}
}

func (e *Engine[T]) broadcast(from int, payload T, now Tick) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for to := 0; to < e.size; to++ {
		delay, ok := e.Conn.Sample(from, to, e.Rng)
		if !ok {
			continue
		}
		e.buffer.Schedule(now+delay, Envelope[T]{From: from, To: to, Data: Comm[T](payload)})
	}
}

// deliver hands env to its recipient's receive queue (env.To), used by
// the release phase where the link layer has already decided who
// receives it.
func (e *Engine[T]) deliver(env Envelope[T]) {
	e.deliverTo(env.To, env)
}

func (e *Engine[T]) deliverTo(agent AgentID, env Envelope[T]) {
	select {
	case e.toAgent[agent] <- env:
	default:
		log.Printf("engine: warning: agent %d receive queue full, dropping envelope", agent)
		e.emit("dropped", map[string]interface{}{"reason": "queue_full", "agent": agent})
	}
}

// RequestMessage registers a new message id, records it in Stats, and
// injects a synthetic Request envelope directly into from's receive
// queue — it bypasses the link layer entirely, since it originates at
// the local actor, exactly as spec.md §4.E specifies.
func (e *Engine[T]) RequestMessage(from, to AgentID) uint32 {
	if from < 0 || from >= e.size || to < 0 || to >= e.size {
		panic("engine: request_message: agent id out of range")
	}
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	now := e.step
	e.mu.Unlock()

	e.Stats.Requested(id)
	r := RequestMessage{ID: id, From: from, To: to, Start: now}
	e.deliverTo(from, Envelope[T]{From: from, To: to, Data: Req[T](r)})
	return id
}

// RequestRandom picks two distinct agents uniformly and calls
// RequestMessage.
func (e *Engine[T]) RequestRandom() uint32 {
	e.mu.Lock()
	from := e.Rng.Intn(e.size)
	to := e.Rng.Intn(e.size - 1)
	if to >= from {
		to++
	}
	e.mu.Unlock()
	return e.RequestMessage(from, to)
}

// Shutdown closes the tick watch; every Context observes this on its
// next suspension point and returns ErrShutdown, matching spec.md §3's
// "dropping the engine closes its channels" lifecycle rule.
func (e *Engine[T]) Shutdown() {
	e.watch.shutdown()
}
