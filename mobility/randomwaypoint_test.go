package mobility

import (
	"math/rand"
	"testing"

	"github.com/leviska/radio-message/engine"
)

func TestRandomWaypointProducesSymmetricLinks(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	rw := NewRandomWaypoint(5, 1000, 1, 10, 0, rng)
	conn := engine.NewLinkMap()

	for tick := 0; tick < 20; tick++ {
		rw.Update(conn)
	}

	for i := 0; i < 5; i++ {
		for j := i + 1; j < 5; j++ {
			if conn.Get(i, j) != conn.Get(j, i) {
				t.Fatalf("link (%d,%d) not symmetric: %+v vs %+v", i, j, conn.Get(i, j), conn.Get(j, i))
			}
		}
	}
}

func TestRandomWaypointRespectsMaxConnectionRange(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	// A tiny max range on a large field should zero out most links.
	rw := NewRandomWaypoint(10, 1000, 1, 10, 1, rng)
	conn := engine.NewLinkMap()
	rw.Update(conn)

	zeroed := 0
	total := 0
	for i := 0; i < 10; i++ {
		for j := 0; j < 10; j++ {
			if i == j {
				continue
			}
			total++
			if conn.Get(i, j).P == 0 {
				zeroed++
			}
		}
	}
	if zeroed*2 <= total {
		t.Fatalf("expected a 1-unit max range on a 1000-unit field to zero out most links, got %d of %d", zeroed, total)
	}
}

func TestRandomWaypointAgentsStayWithinField(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	const field = 10.0
	rw := NewRandomWaypoint(4, field, 5, 5, 0, rng)
	conn := engine.NewLinkMap()
	for i := 0; i < 200; i++ {
		rw.Update(conn)
		for _, a := range rw.agents {
			if a.pos.x < 0 || a.pos.x > field || a.pos.y < 0 || a.pos.y > field {
				t.Fatalf("agent left the field: %+v", a.pos)
			}
		}
	}
}
