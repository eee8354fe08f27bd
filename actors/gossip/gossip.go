// Package gossip implements the flood/gossip routing protocol of
// spec.md §4.F.1: the originating agent re-emits its request every
// rebroadcastPeriod ticks until it hears an acknowledgement; other
// agents do not relay requests, but re-emit an acknowledgement the
// first time they hear it and answer a repeated request for an
// acknowledged id with its ack, deduplicating via a per-agent history.
package gossip

import (
	"log"

	"github.com/leviska/radio-message/engine"
)

// rebroadcastPeriod is how long (in ticks) an unacknowledged request
// sits before an agent re-emits it. spec.md §4.F.1 fixes this at 100.
const rebroadcastPeriod = 100

// readForTicks is the outer-loop idle window shared by all three
// protocols (spec.md §4.F: "while read_for(10) is Ok").
const readForTicks = 10

// Kind tags the two payloads gossip exchanges.
type Kind int

const (
	KindRequest Kind = iota
	KindAck
)

// Message is the gossip protocol's Comm payload.
type Message struct {
	Kind    Kind
	Request engine.RequestMessage
	AckID   uint32
}

// RequestOf wraps a RequestMessage as a gossip Message.
func RequestOf(r engine.RequestMessage) Message {
	return Message{Kind: KindRequest, Request: r}
}

// AckOf wraps an id as a gossip acknowledgement.
func AckOf(id uint32) Message {
	return Message{Kind: KindAck, AckID: id}
}

type historyEntry struct {
	msg  Message
	last engine.Tick
}

// Run is the gossip actor: it owns ctx until the engine shuts down.
// It is the function a scenario driver spawns, one per agent, in a
// goroutine.
func Run(ctx *engine.Context[Message]) {
	my := ctx.ID()
	log.Printf("gossip[%d]: started", my)
	history := make(map[uint32]*historyEntry)

	for {
		env, ok, err := ctx.ReadFor(readForTicks)
		if err != nil {
			log.Printf("gossip[%d]: stopped", my)
			return
		}
		if ok {
			handle(ctx, history, env)
		}
		rebroadcastStale(ctx, history)
	}
}

func handle(ctx *engine.Context[Message], history map[uint32]*historyEntry, env engine.Envelope[Message]) {
	my := ctx.ID()

	if env.Data.IsRequest() {
		r := env.Data.Request()
		if _, exists := history[r.ID]; !exists {
			history[r.ID] = &historyEntry{msg: RequestOf(r)}
		}
		return
	}

	m := env.Data.Payload()
	switch m.Kind {
	case KindRequest:
		r := m.Request
		if r.To == my {
			ctx.Send(engine.Req[Message](r))
			if _, exists := history[r.ID]; !exists {
				history[r.ID] = &historyEntry{msg: AckOf(r.ID)}
			}
		}
		if e, ok := history[r.ID]; ok && e.msg.Kind == KindAck && e.last != ctx.CurrentStep() {
			e.last = ctx.CurrentStep()
			ctx.Send(engine.Comm[Message](AckOf(r.ID)))
		}
	case KindAck:
		id := m.AckID
		if e, ok := history[id]; !ok || e.msg.Kind != KindAck {
			history[id] = &historyEntry{msg: AckOf(id), last: ctx.CurrentStep()}
			ctx.Send(engine.Comm[Message](AckOf(id)))
		}
	}
}

func rebroadcastStale(ctx *engine.Context[Message], history map[uint32]*historyEntry) {
	now := ctx.CurrentStep()
	for _, e := range history {
		if e.msg.Kind == KindRequest && now-e.last > rebroadcastPeriod {
			ctx.Send(engine.Comm[Message](e.msg))
			e.last = now
		}
	}
}
