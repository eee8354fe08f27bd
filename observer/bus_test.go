package observer

import (
	"testing"
	"time"
)

func TestBusDeliversToFunctionListener(t *testing.T) {
	bus := NewBus()
	received := make(chan Event, 1)
	bus.Subscribe(func(e Event) { received <- e })

	bus.Emit("step", map[string]interface{}{"tick": 3})

	select {
	case e := <-received:
		if e.Kind != KindStep {
			t.Fatalf("got kind %q, want %q", e.Kind, KindStep)
		}
		if e.Data["tick"] != 3 {
			t.Fatalf("got data %+v, want tick=3", e.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("listener never received the event")
	}
}

func TestBusDeliversToChannelSubscriber(t *testing.T) {
	bus := NewBus()
	ch := bus.SubscribeChannel(1)

	bus.Emit("delivered", map[string]interface{}{"id": uint32(1)})

	select {
	case e := <-ch:
		if e.Kind != KindDelivered {
			t.Fatalf("got kind %q, want %q", e.Kind, KindDelivered)
		}
	case <-time.After(time.Second):
		t.Fatal("channel subscriber never received the event")
	}
}

func TestBusClosedStopsEmitting(t *testing.T) {
	bus := NewBus()
	ch := bus.SubscribeChannel(1)
	bus.Close()
	bus.Emit("step", nil)

	select {
	case e := <-ch:
		t.Fatalf("closed bus delivered an event: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusChannelSubscriberNeverBlocksEmit(t *testing.T) {
	bus := NewBus()
	bus.SubscribeChannel(1) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Emit("step", map[string]interface{}{"tick": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full subscriber channel")
	}
}
