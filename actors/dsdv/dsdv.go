// Package dsdv implements the distance-vector heartbeat routing
// protocol of spec.md §4.F.2: every agent maintains a routing table
// learned from periodic heartbeats and routes requests hop by hop
// toward their destination, each hop picking the next hop from its own
// table.
package dsdv

import (
	"log"

	"github.com/leviska/radio-message/engine"
)

const (
	heartbeatPeriod engine.Tick = 100
	retryPeriod     engine.Tick = 1000
	readForTicks                = 10
)

// RoutingEntry is one row of a node's routing table: the freshest
// sequence number seen for a destination, the next hop to reach it,
// and the hop-count metric.
type RoutingEntry struct {
	Seq     engine.Tick
	NextHop engine.AgentID
	Metric  uint64
}

// RoutingTable maps destination agent to the best known route.
type RoutingTable map[engine.AgentID]RoutingEntry

func cloneTable(t RoutingTable) RoutingTable {
	out := make(RoutingTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// PayloadKind tags what a routed message ultimately carries.
type PayloadKind int

const (
	PayloadRequest PayloadKind = iota
	PayloadAck
)

// Routable is the thing being routed hop by hop.
type Routable struct {
	Kind    PayloadKind
	Request engine.RequestMessage
	AckID   uint32
}

func (r Routable) id() uint32 {
	if r.Kind == PayloadRequest {
		return r.Request.ID
	}
	return r.AckID
}

// MessageKind tags the two wire messages DSDV exchanges.
type MessageKind int

const (
	MessageHeartbeat MessageKind = iota
	MessageRouted
)

// Message is the DSDV protocol's Comm payload.
type Message struct {
	Kind MessageKind

	// Heartbeat fields.
	Table RoutingTable
	From  engine.AgentID

	// Routed fields: ReroutingAgent is the next hop this hop-by-hop
	// message is addressed to; Destination is its final destination.
	Payload        Routable
	ReroutingAgent engine.AgentID
	Destination    engine.AgentID
}

type retrySlot struct {
	msg      engine.RequestMessage
	lastSent int64 // signed so the initial value can be "long overdue"
}

type pendingEntry struct {
	payload Routable
	dest    engine.AgentID
}

type worker struct {
	ctx             *engine.Context[Message]
	my              engine.AgentID
	table           RoutingTable
	retries         map[uint32]*retrySlot
	pending         []pendingEntry
	lastHeartbeatAt engine.Tick
}

// Run is the DSDV actor entry point, spawned once per agent.
func Run(ctx *engine.Context[Message]) {
	w := &worker{
		ctx:     ctx,
		my:      ctx.ID(),
		table:   RoutingTable{ctx.ID(): {Seq: ctx.CurrentStep(), NextHop: ctx.ID(), Metric: 0}},
		retries: make(map[uint32]*retrySlot),
	}
	log.Printf("dsdv[%d]: started", w.my)
	w.sendHeartbeat()
	w.lastHeartbeatAt = ctx.CurrentStep()

	for {
		env, ok, err := ctx.ReadFor(readForTicks)
		if err != nil {
			log.Printf("dsdv[%d]: stopped", w.my)
			return
		}
		if ok {
			w.handle(env)
		}
		w.retryStale()
		w.flushPending()
		w.maybeHeartbeat()
	}
}

func (w *worker) handle(env engine.Envelope[Message]) {
	if env.Data.IsRequest() {
		r := env.Data.Request()
		w.retries[r.ID] = &retrySlot{msg: r, lastSent: -int64(retryPeriod)}
		return
	}

	m := env.Data.Payload()
	switch m.Kind {
	case MessageHeartbeat:
		for dst, entry := range m.Table {
			cur, exists := w.table[dst]
			if !exists || cur.Seq < entry.Seq {
				w.table[dst] = RoutingEntry{Seq: entry.Seq, NextHop: m.From, Metric: entry.Metric + 1}
			}
		}
	case MessageRouted:
		if m.ReroutingAgent != w.my {
			return
		}
		if m.Destination == w.my {
			w.deliverLocally(m.Payload)
			return
		}
		w.pending = append(w.pending, pendingEntry{payload: m.Payload, dest: m.Destination})
	}
}

func (w *worker) deliverLocally(p Routable) {
	switch p.Kind {
	case PayloadRequest:
		r := p.Request
		w.ctx.Send(engine.Req[Message](r))
		w.pending = append(w.pending, pendingEntry{payload: Routable{Kind: PayloadAck, AckID: r.ID}, dest: r.From})
	case PayloadAck:
		delete(w.retries, p.AckID)
	}
}

func (w *worker) retryStale() {
	now := int64(w.ctx.CurrentStep())
	for _, slot := range w.retries {
		if now-slot.lastSent >= int64(retryPeriod) {
			w.pending = append(w.pending, pendingEntry{
				payload: Routable{Kind: PayloadRequest, Request: slot.msg},
				dest:    slot.msg.To,
			})
		}
	}
}

func (w *worker) flushPending() {
	if len(w.pending) == 0 {
		return
	}
	pending := dedupePending(w.pending)
	var unsent []pendingEntry
	for _, p := range pending {
		entry, ok := w.table[p.dest]
		if !ok {
			unsent = append(unsent, p)
			continue
		}
		w.ctx.Send(engine.Comm[Message](Message{
			Kind:           MessageRouted,
			Payload:        p.payload,
			ReroutingAgent: entry.NextHop,
			Destination:    p.dest,
		}))
		if p.payload.Kind == PayloadRequest {
			if slot, ok := w.retries[p.payload.Request.ID]; ok {
				slot.lastSent = int64(w.ctx.CurrentStep())
			}
		}
	}
	w.pending = unsent
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
		k := key{kind: e.payload.Kind, id: e.payload.id(), dest: e.dest}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}

func (w *worker) maybeHeartbeat() {
	if w.ctx.CurrentStep()-w.lastHeartbeatAt < heartbeatPeriod {
		return
	}
	now := w.ctx.CurrentStep()
	for dst, entry := range w.table {
		entry.Seq = now
		w.table[dst] = entry
	}
	w.sendHeartbeat()
	w.lastHeartbeatAt = now
}

func (w *worker) sendHeartbeat() {
	w.ctx.Send(engine.Comm[Message](Message{
		Kind:  MessageHeartbeat,
		Table: cloneTable(w.table),
		From:  w.my,
	}))
}
