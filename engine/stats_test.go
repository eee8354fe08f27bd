package engine

import "testing"

func TestStatsRequestedThenDeliveredOnce(t *testing.T) {
	s := NewStats()
	s.Requested(1)

	if s.AllDelivered() {
		t.Fatalf("AllDelivered should be false before any delivery")
	}
	if !s.Delivered(1, 42) {
		t.Fatalf("first Delivered call should return true")
	}
	if s.Delivered(1, 99) {
		t.Fatalf("second Delivered call for the same id should return false")
	}
	stat, ok := s.Message(1)
	if !ok || !stat.Delivered || stat.Steps != 42 {
		t.Fatalf("Message(1) = %+v, ok=%v; want Delivered=true Steps=42", stat, ok)
	}
	if !s.AllDelivered() {
		t.Fatalf("AllDelivered should be true once every registered id is delivered")
	}
	if got := s.DeliveredCount(); got != 1 {
		t.Fatalf("DeliveredCount() = %d, want 1", got)
	}
}

func TestStatsAllDeliveredRequiresEveryID(t *testing.T) {
	s := NewStats()
	s.Requested(1)
	s.Requested(2)
	s.Delivered(1, 10)
	if s.AllDelivered() {
		t.Fatalf("AllDelivered should be false while id 2 is outstanding")
	}
	s.Delivered(2, 20)
	if !s.AllDelivered() {
		t.Fatalf("AllDelivered should be true once both ids are delivered")
	}
}

func TestStatsAvgDeliveryTime(t *testing.T) {
	s := NewStats()
	if _, ok := s.AvgDeliveryTime(); ok {
		t.Fatalf("AvgDeliveryTime should be undefined with no deliveries")
	}
	s.Requested(1)
	s.Requested(2)
	s.Delivered(1, 10)
	s.Delivered(2, 30)
	avg, ok := s.AvgDeliveryTime()
	if !ok {
		t.Fatalf("AvgDeliveryTime should be defined after deliveries")
	}
	if avg != 20 {
		t.Fatalf("AvgDeliveryTime() = %v, want 20", avg)
	}
}

func TestStatsOnMessageCountsEveryRelease(t *testing.T) {
	s := NewStats()
	for i := 0; i < 5; i++ {
		s.OnMessage()
	}
	if got := s.Total(); got != 5 {
		t.Fatalf("Total() = %d, want 5", got)
	}
}

func TestStatsRequestedIsIdempotent(t *testing.T) {
	s := NewStats()
	s.Requested(1)
	s.Delivered(1, 5)
	s.Requested(1) // must not reset the already-delivered entry
	stat, _ := s.Message(1)
	if !stat.Delivered || stat.Steps != 5 {
		t.Fatalf("re-registering a delivered id reset it: %+v", stat)
	}
}
