package engine

import "sync"

// MessageStat is the per-message delivery state tracked by Stats.
type MessageStat struct {
	Delivered bool
	Steps     uint64
}

// Stats is a direct port of the richest revision of the original
// source's stats.rs: total envelopes released to recipients, unique
// successful request deliveries, and per-id delivery state.
//
// The engine is the sole mutator (spec.md §3 invariant); reads are
// safe from any goroutine, e.g. a scenario driver polling
// AllDelivered.
type Stats struct {
	mu        sync.RWMutex
	total     uint64
	delivered uint64
	messages  map[uint32]MessageStat
}

// NewStats creates an empty Stats.
func NewStats() *Stats {
	return &Stats{messages: make(map[uint32]MessageStat)}
}

// Requested registers id with a default (undelivered) MessageStat. It
// is idempotent: registering the same id twice leaves it unchanged if
// already present.
func (s *Stats) Requested(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		s.messages[id] = MessageStat{}
	}
}

// Delivered marks id as delivered with the given step count, if it is
// not already delivered. Returns true on the first successful
// delivery, false on any subsequent (duplicate) delivery report — the
// engine uses this to distinguish duplicates without double-counting.
func (s *Stats) Delivered(id uint32, steps uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	stat := s.messages[id]
	if stat.Delivered {
		return false
	}
	stat.Delivered = true
	stat.Steps = steps
	s.messages[id] = stat
	s.delivered++
	return true
}

// OnMessage bumps the total envelope counter. Called once per envelope
// handed to a recipient at release time.
func (s *Stats) OnMessage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
}

// AllDelivered reports whether every registered id has been
// delivered.
func (s *Stats) AllDelivered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.delivered == uint64(len(s.messages))
}

// AvgDeliveryTime returns the mean steps-to-delivery over delivered
// entries. The second return value is false if no message has been
// delivered yet (undefined average).
func (s *Stats) AvgDeliveryTime() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum float64
	var count float64
	for _, stat := range s.messages {
		if stat.Delivered {
			sum += float64(stat.Steps)
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / count, true
}

// Total returns the number of envelopes released to recipients so
// far.
func (s *Stats) Total() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// DeliveredCount returns the number of unique successfully delivered
// messages.
func (s *Stats) DeliveredCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.delivered
}

// MessageCount returns the number of registered ids.
func (s *Stats) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Message returns a snapshot of the stat for id, and whether id is
// registered.
func (s *Stats) Message(id uint32) (MessageStat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stat, ok := s.messages[id]
	return stat, ok
}
