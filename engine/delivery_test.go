package engine

import (
	"math/rand"
	"testing"
)

func TestDeliveryBufferDrainRemovesBucket(t *testing.T) {
	b := NewDeliveryBuffer[int]()
	rng := rand.New(rand.NewSource(1))

	b.Schedule(5, Envelope[int]{From: 0, To: 1, Data: Comm[int](7)})
	b.Schedule(5, Envelope[int]{From: 0, To: 2, Data: Comm[int](9)})

	envs := b.Drain(5, rng)
	if len(envs) != 2 {
		t.Fatalf("Drain(5) returned %d envelopes, want 2", len(envs))
	}
	if again := b.Drain(5, rng); len(again) != 0 {
		t.Fatalf("draining the same tick twice returned %d envelopes, want 0", len(again))
	}
}

func TestDeliveryBufferDrainOnlyReturnsExactTick(t *testing.T) {
	b := NewDeliveryBuffer[int]()
	rng := rand.New(rand.NewSource(1))

	b.Schedule(5, Envelope[int]{From: 0, To: 1, Data: Comm[int](1)})
	b.Schedule(6, Envelope[int]{From: 0, To: 1, Data: Comm[int](2)})

	envs := b.Drain(5, rng)
	if len(envs) != 1 || envs[0].Data.Payload() != 1 {
		t.Fatalf("Drain(5) = %+v, want exactly the tick-5 envelope", envs)
	}
	envs = b.Drain(6, rng)
	if len(envs) != 1 || envs[0].Data.Payload() != 2 {
		t.Fatalf("Drain(6) = %+v, want exactly the tick-6 envelope", envs)
	}
}

func TestDeliveryBufferDrainContainsAllScheduledEnvelopes(t *testing.T) {
	b := NewDeliveryBuffer[int]()
	rng := rand.New(rand.NewSource(3))

	const n = 50
	for i := 0; i < n; i++ {
		b.Schedule(100, Envelope[int]{From: 0, To: i, Data: Comm[int](i)})
	}
	envs := b.Drain(100, rng)
	if len(envs) != n {
		t.Fatalf("Drain(100) returned %d envelopes, want %d", len(envs), n)
	}
	seen := make(map[int]bool, n)
	for _, e := range envs {
		seen[e.Data.Payload()] = true
	}
	if len(seen) != n {
		t.Fatalf("shuffle lost or duplicated envelopes: got %d unique payloads, want %d", len(seen), n)
	}
}
