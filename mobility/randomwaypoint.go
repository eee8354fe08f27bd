// Package mobility provides pluggable producers of per-tick link
// parameters for engine.LinkMap, the "external collaborator" spec.md
// treats the physical/mobility layer as.
package mobility

import (
	"math"
	"math/rand"

	"github.com/leviska/radio-message/engine"
)

// baseDelay is the delay-offset scale, in ticks, applied at maximum
// normalized distance (original_source/src/scenarios/moving.rs).
const baseDelay = 100

// LinkUpdater is anything that can refresh a LinkMap for the tick it
// is called at. A scenario driver calls Update once per Step.
type LinkUpdater interface {
	Update(conn *engine.LinkMap)
}

type point struct {
	x, y float64
}

type agent struct {
	pos      point
	dest     point
	velocity float64
}

// RandomWaypoint is the default LinkUpdater: every agent wanders a
// square field, picking a new destination and speed uniformly at
// random whenever it arrives, and link quality between any pair is
// derived from their normalized separation — the mobility model
// original_source/src/scenarios/moving.rs implements and spec.md §6
// names but leaves unspecified.
type RandomWaypoint struct {
	fieldSize float64
	minVel    float64
	maxVel    float64
	maxRange  float64 // <=0 means unbounded
	distMax   float64
	rng       *rand.Rand
	agents    []agent
}

// NewRandomWaypoint places size agents at uniformly random positions
// in a fieldSize x fieldSize square, each with a random destination
// and a speed sampled from [minVelocity, maxVelocity]. maxRange <= 0
// disables the connection-range cutoff.
func NewRandomWaypoint(size int, fieldSize, minVelocity, maxVelocity, maxRange float64, rng *rand.Rand) *RandomWaypoint {
	rw := &RandomWaypoint{
		fieldSize: fieldSize,
		minVel:    minVelocity,
		maxVel:    maxVelocity,
		maxRange:  maxRange,
		distMax:   math.Sqrt2 * fieldSize,
		rng:       rng,
		agents:    make([]agent, size),
	}
	for i := range rw.agents {
		rw.agents[i] = agent{
			pos:      rw.randomPoint(),
			dest:     rw.randomPoint(),
			velocity: rw.randomVelocity(),
		}
	}
	return rw
}

func (rw *RandomWaypoint) randomPoint() point {
	return point{x: rw.rng.Float64() * rw.fieldSize, y: rw.rng.Float64() * rw.fieldSize}
}

func (rw *RandomWaypoint) randomVelocity() float64 {
	return rw.minVel + rw.rng.Float64()*(rw.maxVel-rw.minVel)
}

// Update advances every agent one tick toward its destination,
// reassigning destination and velocity on arrival, then refreshes
// every pair's link parameters in conn.
func (rw *RandomWaypoint) Update(conn *engine.LinkMap) {
	for i := range rw.agents {
		rw.step(&rw.agents[i])
	}
	for i := 0; i < len(rw.agents); i++ {
		for j := i + 1; j < len(rw.agents); j++ {
			p, delayOffset := rw.linkParams(rw.agents[i].pos, rw.agents[j].pos)
			conn.UpdateBoth(i, j, p, delayOffset)
		}
	}
}

func (rw *RandomWaypoint) step(a *agent) {
	dx := a.dest.x - a.pos.x
	dy := a.dest.y - a.pos.y
	dist := math.Hypot(dx, dy)
	if dist <= a.velocity {
		a.pos = a.dest
		a.dest = rw.randomPoint()
		a.velocity = rw.randomVelocity()
		return
	}
	a.pos.x += dx / dist * a.velocity
	a.pos.y += dy / dist * a.velocity
}

// linkParams derives (p, delayOffset) from the normalized distance
// between two positions: p = 1 - dist/distMax, delayOffset =
// ceil(distFrac * baseDelay). Beyond maxRange (when set), p clamps to
// 0 — the two agents cannot hear each other at all.
func (rw *RandomWaypoint) linkParams(a, b point) (float64, int) {
	dist := math.Hypot(a.x-b.x, a.y-b.y)
	if rw.maxRange > 0 && dist > rw.maxRange {
		return 0, 0
	}
	distFrac := dist / rw.distMax
	p := 1 - distFrac
	if p < 0 {
		p = 0
	}
	delayOffset := int(math.Ceil(distFrac * baseDelay))
	return p, delayOffset
}
