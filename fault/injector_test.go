package fault

import (
	"testing"

	"github.com/leviska/radio-message/engine"
)

func TestCrashNodeIsolatesThenRecoverRestores(t *testing.T) {
	conn := engine.NewLinkMap()
	conn.UpdateBoth(0, 1, 0.8, 5)
	conn.UpdateBoth(1, 2, 0.6, 2)

	inj := NewInjector(conn, 3, nil)
	inj.CrashNode(1)

	if conn.Get(0, 1).P != 0 || conn.Get(1, 0).P != 0 {
		t.Fatalf("crashing agent 1 should zero its links to agent 0")
	}
	if conn.Get(1, 2).P != 0 || conn.Get(2, 1).P != 0 {
		t.Fatalf("crashing agent 1 should zero its links to agent 2")
	}
	if inj.State(1) != StateCrashed {
		t.Fatalf("State(1) = %v, want StateCrashed", inj.State(1))
	}

	inj.RecoverNode(1)
	if got := conn.Get(0, 1); got.P != 0.8 || got.DelayOffset != 5 {
		t.Fatalf("RecoverNode did not restore (0,1): %+v", got)
	}
	if got := conn.Get(1, 2); got.P != 0.6 || got.DelayOffset != 2 {
		t.Fatalf("RecoverNode did not restore (1,2): %+v", got)
	}
	if inj.State(1) != StateRunning {
		t.Fatalf("State(1) = %v, want StateRunning", inj.State(1))
	}
}

func TestPartitionAndHealRoundTrip(t *testing.T) {
	conn := engine.NewLinkMap()
	conn.UpdateBoth(0, 1, 1.0, 0)
	inj := NewInjector(conn, 2, nil)

	inj.Partition(0, 1)
	if conn.Get(0, 1).P != 0 || conn.Get(1, 0).P != 0 {
		t.Fatalf("Partition should zero both directions")
	}

	inj.Heal(0, 1)
	if conn.Get(0, 1).P != 1.0 || conn.Get(1, 0).P != 1.0 {
		t.Fatalf("Heal should restore the pre-partition parameters")
	}
}

func TestScheduleCrashFiresAtTick(t *testing.T) {
	conn := engine.NewLinkMap()
	conn.UpdateBoth(0, 1, 1.0, 0)
	inj := NewInjector(conn, 2, nil)

	inj.ScheduleCrash(0, 10, 5)
	for tick := engine.Tick(0); tick < 10; tick++ {
		inj.Tick(tick)
	}
	if inj.State(0) != StateRunning {
		t.Fatalf("agent crashed before its scheduled tick")
	}
	inj.Tick(10)
	if inj.State(0) != StateCrashed {
		t.Fatalf("agent did not crash at its scheduled tick")
	}
	inj.Tick(15)
	if inj.State(0) != StateRunning {
		t.Fatalf("agent did not recover after its scheduled duration")
	}
}

type recordingEmitter struct{ events []string }

func (r *recordingEmitter) Emit(kind string, _ map[string]interface{}) {
	r.events = append(r.events, kind)
}

func TestInjectorEmitsEvents(t *testing.T) {
	conn := engine.NewLinkMap()
	emitter := &recordingEmitter{}
	inj := NewInjector(conn, 2, emitter)

	inj.CrashNode(0)
	inj.RecoverNode(0)
	inj.Partition(0, 1)
	inj.Heal(0, 1)

	want := []string{"node_crashed", "node_recovered", "partition_created", "partition_healed"}
	if len(emitter.events) != len(want) {
		t.Fatalf("events = %v, want %v", emitter.events, want)
	}
	for i, kind := range want {
		if emitter.events[i] != kind {
			t.Fatalf("events[%d] = %q, want %q", i, emitter.events[i], kind)
		}
	}
}
