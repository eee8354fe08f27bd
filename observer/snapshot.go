package observer

import (
	"time"

	channerics "github.com/niceyeti/channerics/channels"
)

// StatsSource is the read-only slice of engine.Stats the periodic
// snapshot needs. Defined here instead of importing engine directly
// so observer stays a leaf package; engine.Stats satisfies it as-is.
type StatsSource interface {
	Total() uint64
	DeliveredCount() uint64
	MessageCount() int
	AvgDeliveryTime() (float64, bool)
}

// RunSnapshots emits a "stats" event every interval until done is
// closed, using channerics.NewTicker the way the teacher's tabular
// server periodically samples training progress
// (tabular/main.go's print_values_async). This is the periodic
// "sampling" half of the observer surface; event-driven Emit calls
// from the engine/fault layer are the push half.
func RunSnapshots(bus *Bus, stats StatsSource, interval time.Duration, done <-chan struct{}) {
	for range channerics.NewTicker(done, interval) {
		avg, ok := stats.AvgDeliveryTime()
		bus.Emit("stats", map[string]interface{}{
			"total":                stats.Total(),
			"delivered":            stats.DeliveredCount(),
			"messages":             stats.MessageCount(),
			"avg_delivery_time":    avg,
			"avg_delivery_time_ok": ok,
		})
	}
}
