package engine

import (
	"math/rand"
	"testing"
)

func TestLinkMapAbsentIsUnreachable(t *testing.T) {
	m := NewLinkMap()
	rng := rand.New(rand.NewSource(1))
	if _, ok := m.Sample(0, 1, rng); ok {
		t.Fatalf("expected no sample on an absent link")
	}
}

func TestLinkMapUpdateAndGet(t *testing.T) {
	m := NewLinkMap()
	m.Update(0, 1, 0.5, 7)
	got := m.Get(0, 1)
	if got.P != 0.5 || got.DelayOffset != 7 {
		t.Fatalf("Get(0,1) = %+v, want {P:0.5 DelayOffset:7}", got)
	}
	if got := m.Get(1, 0); got.P != 0 {
		t.Fatalf("reverse direction should be unaffected, got %+v", got)
	}
}

func TestLinkMapUpdateZeroRemoves(t *testing.T) {
	m := NewLinkMap()
	m.Update(0, 1, 1.0, 0)
	m.Update(0, 1, 0, 0)
	if got := m.Get(0, 1); got.P != 0 {
		t.Fatalf("p=0 update should remove the entry, got %+v", got)
	}
}

func TestLinkMapUpdateBothIsSymmetric(t *testing.T) {
	m := NewLinkMap()
	m.UpdateBoth(2, 5, 0.9, 3)
	if m.Get(2, 5) != m.Get(5, 2) {
		t.Fatalf("UpdateBoth should set both directions identically: %+v vs %+v", m.Get(2, 5), m.Get(5, 2))
	}
}

func TestLinkMapSampleAlwaysDeliversAtP1(t *testing.T) {
	m := NewLinkMap()
	m.Update(0, 1, 1.0, 0)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		if _, ok := m.Sample(0, 1, rng); !ok {
			t.Fatalf("p=1.0 link dropped a sample")
		}
	}
}

func TestLinkMapSampleNeverDeliversAtP0(t *testing.T) {
	m := NewLinkMap()
	m.Update(0, 1, 1.0, 0)
	m.Update(0, 1, 0, 0) // removes it
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		if _, ok := m.Sample(0, 1, rng); ok {
			t.Fatalf("p=0 (absent) link delivered a sample")
		}
	}
}

func TestLinkMapSampleDelayIsAlwaysAtLeastMinDelay(t *testing.T) {
	m := NewLinkMap()
	// A large negative delay offset pushes the Normal distribution's mean
	// well below minDelay, exercising the clamp on every draw.
	m.Update(0, 1, 1.0, -1000)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		delay, ok := m.Sample(0, 1, rng)
		if !ok {
			t.Fatalf("p=1.0 link dropped a sample")
		}
		if delay < minDelay {
			t.Fatalf("sampled delay %d below minDelay %d", delay, minDelay)
		}
	}
}
