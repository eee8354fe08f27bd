// Package fault injects node crashes and network partitions on top of
// an engine.LinkMap, adapted from the teacher's realtime
// packages/failure/injector and packages/core/node onto the engine's
// tick-based clock: a crash or partition is simply forcing the
// affected links' delivery probability to zero, with the previous
// parameters remembered so recovery restores them exactly.
package fault

import (
	"log"
	"sync"

	"github.com/leviska/radio-message/engine"
)

// NodeState mirrors packages/core/node.State, trimmed to the states
// this simulator can actually produce (spec.md has no Byzantine
// behavior, so that state is dropped).
type NodeState int

const (
	StateRunning NodeState = iota
	StateCrashed
)

func (s NodeState) String() string {
	if s == StateCrashed {
		return "crashed"
	}
	return "running"
}

// EventEmitter lets an Injector report what it does without coupling
// to any particular sink; observer.Bus implements it.
type EventEmitter interface {
	Emit(kind string, data map[string]interface{})
}

type linkPair struct {
	a, b engine.AgentID
}

type savedLink struct {
	ab, ba engine.LinkParams
}

type scheduledEvent struct {
	at     engine.Tick
	action func(*Injector)
}

// Injector manages crashes and partitions against a shared LinkMap.
// It is driven by the scenario loop calling Tick once per Step, the
// same way the engine itself advances.
type Injector struct {
	mu       sync.Mutex
	conn     *engine.LinkMap
	size     int
	emitter  EventEmitter
	states   []NodeState
	saved    map[engine.AgentID]map[engine.AgentID]engine.LinkParams
	parted   map[linkPair]savedLink
	schedule []scheduledEvent
}

// NewInjector creates an Injector over conn for size agents, all
// initially running.
func NewInjector(conn *engine.LinkMap, size int, emitter EventEmitter) *Injector {
	return &Injector{
		conn:    conn,
		size:    size,
		emitter: emitter,
		states:  make([]NodeState, size),
		saved:   make(map[engine.AgentID]map[engine.AgentID]engine.LinkParams),
		parted:  make(map[linkPair]savedLink),
	}
}

func (inj *Injector) emit(kind string, data map[string]interface{}) {
	if inj.emitter != nil {
		inj.emitter.Emit(kind, data)
	}
}

// State returns the current state of agent id.
func (inj *Injector) State(id engine.AgentID) NodeState {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	return inj.states[id]
}

// CrashNode isolates id from every other agent, remembering the link
// parameters it overwrites so RecoverNode can restore them.
func (inj *Injector) CrashNode(id engine.AgentID) {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	if inj.states[id] == StateCrashed {
		return
	}
	inj.states[id] = StateCrashed

	saved := make(map[engine.AgentID]engine.LinkParams, inj.size*2)
	for other := 0; other < inj.size; other++ {
		if other == id {
			continue
		}
		saved[pairKey(id, other)] = inj.conn.Get(id, other)
		saved[pairKey(other, id)] = inj.conn.Get(other, id)
		inj.conn.Update(id, other, 0, 0)
		inj.conn.Update(other, id, 0, 0)
	}
	inj.saved[id] = saved

	log.Printf("fault: agent %d crashed", id)
	inj.emit("node_crashed", map[string]interface{}{"agent": id})
}

// RecoverNode restores every link CrashNode zeroed for id.
func (inj *Injector) RecoverNode(id engine.AgentID) {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	if inj.states[id] != StateCrashed {
		return
	}
	inj.states[id] = StateRunning

	for other := 0; other < inj.size; other++ {
		if other == id {
			continue
		}
		if p, ok := inj.saved[id][pairKey(id, other)]; ok {
			inj.conn.Update(id, other, p.P, p.DelayOffset)
		}
		if p, ok := inj.saved[id][pairKey(other, id)]; ok {
			inj.conn.Update(other, id, p.P, p.DelayOffset)
		}
	}
	delete(inj.saved, id)

	log.Printf("fault: agent %d recovered", id)
	inj.emit("node_recovered", map[string]interface{}{"agent": id})
}

// Partition cuts both directions of the link between a and b.
func (inj *Injector) Partition(a, b engine.AgentID) {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	key := normalizedPair(a, b)
	if _, ok := inj.parted[key]; ok {
		return
	}
	inj.parted[key] = savedLink{ab: inj.conn.Get(a, b), ba: inj.conn.Get(b, a)}
	inj.conn.Update(a, b, 0, 0)
	inj.conn.Update(b, a, 0, 0)

	log.Printf("fault: partitioned %d <-> %d", a, b)
	inj.emit("partition_created", map[string]interface{}{"a": a, "b": b})
}

// Heal restores the link between a and b to its pre-Partition state.
func (inj *Injector) Heal(a, b engine.AgentID) {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	key := normalizedPair(a, b)
	saved, ok := inj.parted[key]
	if !ok {
		return
	}
	delete(inj.parted, key)
	inj.conn.Update(a, b, saved.ab.P, saved.ab.DelayOffset)
	inj.conn.Update(b, a, saved.ba.P, saved.ba.DelayOffset)

	log.Printf("fault: healed %d <-> %d", a, b)
	inj.emit("partition_healed", map[string]interface{}{"a": a, "b": b})
}

// ScheduleCrash crashes id at tick at, and recovers it at at+duration
// if duration is non-zero.
func (inj *Injector) ScheduleCrash(id engine.AgentID, at, duration engine.Tick) {
	inj.mu.Lock()
	inj.schedule = append(inj.schedule, scheduledEvent{at: at, action: func(i *Injector) { i.CrashNode(id) }})
	if duration > 0 {
		inj.schedule = append(inj.schedule, scheduledEvent{at: at + duration, action: func(i *Injector) { i.RecoverNode(id) }})
	}
	inj.mu.Unlock()
}

// SchedulePartition partitions a and b at tick at, healing at
// at+duration if duration is non-zero.
func (inj *Injector) SchedulePartition(a, b engine.AgentID, at, duration engine.Tick) {
	inj.mu.Lock()
	inj.schedule = append(inj.schedule, scheduledEvent{at: at, action: func(i *Injector) { i.Partition(a, b) }})
	if duration > 0 {
		inj.schedule = append(inj.schedule, scheduledEvent{at: at + duration, action: func(i *Injector) { i.Heal(a, b) }})
	}
	inj.mu.Unlock()
}

// Tick runs every scheduled event due at or before now. The scenario
// driver calls this once per engine.Step.
func (inj *Injector) Tick(now engine.Tick) {
	inj.mu.Lock()
	var due []scheduledEvent
	var remaining []scheduledEvent
	for _, ev := range inj.schedule {
		if ev.at <= now {
			due = append(due, ev)
		} else {
			remaining = append(remaining, ev)
		}
	}
	inj.schedule = remaining
	inj.mu.Unlock()

	for _, ev := range due {
		ev.action(inj)
	}
}

func pairKey(a, b engine.AgentID) engine.AgentID {
	return a*1_000_000 + b
}

func normalizedPair(a, b engine.AgentID) linkPair {
	if a > b {
		a, b = b, a
	}
	return linkPair{a: a, b: b}
}
