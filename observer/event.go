// Package observer is the live-inspection surface spec.md places out
// of scope for the hard core ("the statistics-reporting surface") but
// which the expansion carries as ambient tooling: an event bus fed by
// the scenario driver, and a websocket hub that rebroadcasts every
// event to whatever dashboard is watching. Adapted from the teacher's
// packages/visualization/events and apps/api/internal/handlers.
package observer

import (
	"encoding/json"
	"time"
)

// Kind categorizes an Event. Unlike the teacher's events package
// (which spans every project in its monorepo — leader election,
// transactions, CRDT merges...), this simulator only ever emits the
// handful below, plus the periodic "stats" snapshot from RunSnapshots.
type Kind string

const (
	KindStep            Kind = "step"
	KindDelivered       Kind = "delivered"
	KindDuplicate       Kind = "duplicate"
	KindDropped         Kind = "dropped"
	KindNodeCrashed     Kind = "node_crashed"
	KindNodeRecovered   Kind = "node_recovered"
	KindPartitionMade   Kind = "partition_created"
	KindPartitionHealed Kind = "partition_healed"
)

// Event is one reportable occurrence in a running simulation.
type Event struct {
	Kind Kind                   `json:"type"`
	At   time.Time              `json:"timestamp"`
	Data map[string]interface{} `json:"data"`
}

// ToJSON marshals the event for broadcast over the websocket hub.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// newEvent stamps the current wall-clock time onto a new Event. It is
// the package-internal constructor the bus uses for Emit.
func newEvent(kind Kind, data map[string]interface{}) Event {
	return Event{Kind: kind, At: time.Now(), Data: data}
}
