// Package cbr implements connectivity-based routing (spec.md
// §4.F.3): agents periodically beacon their presence, each neighbor
// remembers how long ago it last heard a given agent directly, and a
// routed message floods only through agents whose hint about the
// destination is at least as fresh as the one the previous forwarder
// attached (an agent with no hint at all always forwards) — so it
// converges toward whichever agent has most recently been in contact
// with the destination.
package cbr

import (
	"log"
	"math"

	"github.com/leviska/radio-message/engine"
)

const (
	beaconPeriod engine.Tick = 100
	retryPeriod  engine.Tick = 5000
	dropTimeout  engine.Tick = 1000
	readForTicks             = 10
)

// noHint marks "I have never heard from this agent."
const noHint = engine.Tick(math.MaxUint64)

// PayloadKind tags what a routed message ultimately carries.
type PayloadKind int

const (
	PayloadRequest PayloadKind = iota
	PayloadAck
)

// Routable is the thing being flooded toward a destination.
type Routable struct {
	Kind    PayloadKind
	Request engine.RequestMessage
	AckID   uint32
}

// MessageKind tags the two wire messages CBR exchanges.
type MessageKind int

const (
	MessageBeacon MessageKind = iota
	MessageRouted
)

// Message is the CBR protocol's Comm payload.
type Message struct {
	Kind MessageKind

	// Beacon fields.
	From engine.AgentID

	// Routed fields. MinHint is the staleness of the sending agent's
	// own hint for Destination when it sent this message (noHint if it
	// had none); a receiver that has a hint rebroadcasts only if its
	// own staleness is no greater than MinHint.
	Payload     Routable
	Destination engine.AgentID
	MinHint     engine.Tick
	OriginTime  engine.Tick
}

type retrySlot struct {
	msg      engine.RequestMessage
	lastSent int64
}

type pendingEntry struct {
	payload    Routable
	dest       engine.AgentID
	minHint    engine.Tick
	originTime engine.Tick
}

type worker struct {
	ctx           *engine.Context[Message]
	my            engine.AgentID
	hints         map[engine.AgentID]engine.Tick
	retries       map[uint32]*retrySlot
	pending       []pendingEntry
	lastForwarded map[uint32]engine.Tick
	lastBeaconAt  engine.Tick
}

// Run is the CBR actor entry point, spawned once per agent.
func Run(ctx *engine.Context[Message]) {
	w := &worker{
		ctx:           ctx,
		my:            ctx.ID(),
		hints:         map[engine.AgentID]engine.Tick{ctx.ID(): ctx.CurrentStep()},
		retries:       make(map[uint32]*retrySlot),
		lastForwarded: make(map[uint32]engine.Tick),
	}
	log.Printf("cbr[%d]: started", w.my)
	w.sendBeacon()
	w.lastBeaconAt = ctx.CurrentStep()

	for {
		env, ok, err := ctx.ReadFor(readForTicks)
		if err != nil {
			log.Printf("cbr[%d]: stopped", w.my)
			return
		}
		if ok {
			w.handle(env)
		}
		w.retryStale()
		w.flushPending()
		w.maybeBeacon()
	}
}

func (w *worker) handle(env engine.Envelope[Message]) {
	if env.Data.IsRequest() {
		r := env.Data.Request()
		now := w.ctx.CurrentStep()
		w.retries[r.ID] = &retrySlot{msg: r, lastSent: -int64(retryPeriod)}
		w.pending = append(w.pending, pendingEntry{
			payload:    Routable{Kind: PayloadRequest, Request: r},
			dest:       r.To,
			minHint:    w.staleness(r.To),
			originTime: now,
		})
		return
	}

	m := env.Data.Payload()
	switch m.Kind {
	case MessageBeacon:
		w.hints[m.From] = w.ctx.CurrentStep()
	case MessageRouted:
		w.handleRouted(m)
	}
}

func (w *worker) handleRouted(m Message) {
	now := w.ctx.CurrentStep()
	if m.Destination == w.my {
		w.deliverLocally(m.Payload, now)
		return
	}
	if now-m.OriginTime > dropTimeout {
		return
	}

	id := routableID(m.Payload)
	if last, ok := w.lastForwarded[id]; ok && last == now {
		return
	}

	// Forward unless we have a hint for the destination and it is
	// staler than the best hint already seen along this message's
	// path; an agent with no hint at all always forwards.
	hint, haveHint := w.hints[m.Destination]
	if haveHint && now-hint > m.MinHint {
		return
	}
	w.lastForwarded[id] = now
	w.pending = append(w.pending, pendingEntry{
		payload:    m.Payload,
		dest:       m.Destination,
		minHint:    w.staleness(m.Destination),
		originTime: m.OriginTime,
	})
}

func (w *worker) deliverLocally(p Routable, now engine.Tick) {
	switch p.Kind {
	case PayloadRequest:
		r := p.Request
		w.ctx.Send(engine.Req[Message](r))
		w.pending = append(w.pending, pendingEntry{
			payload:    Routable{Kind: PayloadAck, AckID: r.ID},
			dest:       r.From,
			minHint:    w.staleness(r.From),
			originTime: now,
		})
	case PayloadAck:
		delete(w.retries, p.AckID)
	}
}

func (w *worker) send(dest engine.AgentID, payload Routable, minHint engine.Tick, originTime engine.Tick) {
	w.ctx.Send(engine.Comm[Message](Message{
		Kind:        MessageRouted,
		Payload:     payload,
		Destination: dest,
		MinHint:     minHint,
		OriginTime:  originTime,
	}))
}

func (w *worker) staleness(dest engine.AgentID) engine.Tick {
	hint, ok := w.hints[dest]
	if !ok {
		return noHint
	}
	return w.ctx.CurrentStep() - hint
}

func (w *worker) retryStale() {
	now := int64(w.ctx.CurrentStep())
	for _, slot := range w.retries {
		if now-slot.lastSent >= int64(retryPeriod) {
			slot.lastSent = now
			dest := slot.msg.To
			w.pending = append(w.pending, pendingEntry{
				payload:    Routable{Kind: PayloadRequest, Request: slot.msg},
				dest:       dest,
				minHint:    w.staleness(dest),
				originTime: w.ctx.CurrentStep(),
			})
		}
	}
}

// flushPending dedups everything handle/retryStale enqueued this tick
// and sends one message per (kind, id, dest), the same shape as
// dsdv.flushPending.
func (w *worker) flushPending() {
	if len(w.pending) == 0 {
		return
	}
	for _, p := range dedupePending(w.pending) {
		w.send(p.dest, p.payload, p.minHint, p.originTime)
	}
	w.pending = nil
}

// dedupePending collapses repeated (kind, id, dest) entries accrued
// across a tick's handling and retry pass, keeping one copy of each.
func dedupePending(entries []pendingEntry) []pendingEntry {
	type key struct {
		kind PayloadKind
		id   uint32
		dest engine.AgentID
	}
	seen := make(map[key]bool, len(entries))
	out := entries[:0:0]
	for _, e := range entries {
		k := key{kind: e.payload.Kind, id: routableID(e.payload), dest: e.dest}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}

func (w *worker) maybeBeacon() {
	if w.ctx.CurrentStep()-w.lastBeaconAt < beaconPeriod {
		return
	}
	w.hints[w.my] = w.ctx.CurrentStep()
	w.sendBeacon()
	w.lastBeaconAt = w.ctx.CurrentStep()
}

func (w *worker) sendBeacon() {
	w.ctx.Send(engine.Comm[Message](Message{Kind: MessageBeacon, From: w.my}))
}

func routableID(p Routable) uint32 {
	if p.Kind == PayloadRequest {
		return p.Request.ID
	}
	return p.AckID
}
