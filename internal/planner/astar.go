// Package planner implements the 4D trajectory planner: time-parameterised
// A* over a discretised lat/lon/alt lattice with geofence cost multipliers.
package planner

import (
	"container/heap"
	"errors"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/skyward/utm/internal/config"
	"github.com/skyward/utm/internal/geo"
	"github.com/skyward/utm/internal/geofence"
	"github.com/skyward/utm/internal/observability"
	"github.com/skyward/utm/internal/uas"
)

// ErrNoPath is returned when the search exhausts its iteration budget or the
// open set before reaching the goal.
var ErrNoPath = errors.New("no path to goal")

// Planner plans single trajectories subject to the geofence cost model.
type Planner struct {
	cfg   *config.Config
	fence *geofence.Engine
	log   *logrus.Entry
}

// New creates a planner.
func New(cfg *config.Config, fence *geofence.Engine, log *logrus.Entry) *Planner {
	return &Planner{cfg: cfg, fence: fence, log: log}
}

// gridKey is the coarse node identity: the continuous plane collapsed to a
// ~11 m lattice (1e-4 degrees) and altitude to 1 m. Time is deliberately not
// part of the identity; revisiting a cell later is the same cell.
type gridKey struct {
	lat int32
	lon int32
	alt int16
}

func keyFor(lat, lon, alt float64) gridKey {
	return gridKey{
		lat: int32(math.Round(lat * 1e4)),
		lon: int32(math.Round(lon * 1e4)),
		alt: int16(math.Round(alt)),
	}
}

// node is a search node. Nodes live in an arena; parent is an arena index,
// -1 for the start node.
type node struct {
	lat, lon, alt float64
	time          float64
	parent        int32
	g, h, f       float64
}

// openHeap is a min-heap of arena indices ordered by f.
type openHeap struct {
	arena *[]node
	items []int32
}

func (h *openHeap) Len() int { return len(h.items) }

func (h *openHeap) Less(i, j int) bool {
	a := *h.arena
	return a[h.items[i]].f < a[h.items[j]].f
}

func (h *openHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *openHeap) Push(x any) { h.items = append(h.items, x.(int32)) }

func (h *openHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// Plan computes a trajectory from start to goal departing at startTime.
// The start altitude is preseeded onto the altitude lane for the overall
// bearing to the goal.
func (p *Planner) Plan(start, goal uas.Position, startTime float64) (*uas.Trajectory, error) {
	initialHeading := geo.Bearing(start.Latitude, start.Longitude, goal.Latitude, goal.Longitude)
	startAltitude := p.fence.AltitudeLane(initialHeading, start.Altitude)

	arena := make([]node, 0, 4096)
	arena = append(arena, node{
		lat:    start.Latitude,
		lon:    start.Longitude,
		alt:    startAltitude,
		time:   startTime,
		parent: -1,
	})
	arena[0].h = p.heuristic(&arena[0], goal)
	arena[0].f = arena[0].h

	open := &openHeap{arena: &arena}
	heap.Init(open)
	heap.Push(open, int32(0))

	closed := make(map[gridKey]struct{})
	goalRadius := 1.5 * p.cfg.GridResolution

	p.log.WithFields(logrus.Fields{
		"start": start,
		"goal":  goal,
	}).Debug("planning trajectory")

	iterations := 0
	for open.Len() > 0 && iterations < p.cfg.MaxIterations {
		iterations++
		idx := heap.Pop(open).(int32)
		current := arena[idx]

		goalDistance := geo.Distance3D(current.lat, current.lon, current.alt,
			goal.Latitude, goal.Longitude, goal.Altitude)
		if goalDistance < goalRadius {
			observability.Get().PlannerIterations.Observe(float64(iterations))
			path := reconstructPath(arena, idx)
			if len(path) == 1 {
				// Start already within the goal radius: emit a short hold so
				// the trajectory still has two waypoints.
				hold := path[0]
				hold.time += p.cfg.TimeResolution
				path = append(path, hold)
			}
			return p.nodesToTrajectory(path), nil
		}

		key := keyFor(current.lat, current.lon, current.alt)
		if _, seen := closed[key]; seen {
			continue
		}
		closed[key] = struct{}{}

		for _, nb := range p.neighbors(&current, goal.Latitude, goal.Longitude) {
			if _, seen := closed[keyFor(nb.lat, nb.lon, nb.alt)]; seen {
				continue
			}

			moveCost := geo.Distance3D(current.lat, current.lon, current.alt, nb.lat, nb.lon, nb.alt)

			multiplier := p.fence.CostMultiplier(uas.Position{
				Latitude:  nb.lat,
				Longitude: nb.lon,
				Altitude:  nb.alt,
			})
			if math.IsInf(multiplier, 1) {
				continue // prohibited
			}
			moveCost *= multiplier

			nb.parent = idx
			nb.g = current.g + moveCost
			nb.h = p.heuristicAt(nb.lat, nb.lon, nb.alt, goal)
			nb.f = nb.g + nb.h

			arena = append(arena, nb)
			heap.Push(open, int32(len(arena)-1))
		}
	}

	observability.Get().PlannerIterations.Observe(float64(iterations))
	p.log.WithField("iterations", iterations).Warn("search exhausted without reaching goal")
	return nil, ErrNoPath
}

// neighbors enumerates the 8 horizontal steps of one grid cell, each at the
// candidate altitudes for the current heading-to-goal lane.
func (p *Planner) neighbors(n *node, goalLat, goalLon float64) []node {
	heading := geo.Bearing(n.lat, n.lon, goalLat, goalLon)
	laneAltitude := p.fence.AltitudeLane(heading, n.alt)

	latStep := p.cfg.GridResolution / geo.MetersPerDegreeLat
	lonStep := p.cfg.GridResolution / (geo.MetersPerDegreeLat * math.Cos(n.lat*math.Pi/180))

	directions := [8][2]float64{
		{latStep, 0},        // North
		{latStep, lonStep},  // Northeast
		{0, lonStep},        // East
		{-latStep, lonStep}, // Southeast
		{-latStep, 0},       // South
		{-latStep, -lonStep}, // Southwest
		{0, -lonStep},        // West
		{latStep, -lonStep},  // Northwest
	}

	altitudes := []float64{n.alt}
	if math.Abs(laneAltitude-n.alt) > 10 {
		altitudes = append(altitudes, laneAltitude, (n.alt+laneAltitude)/2)
	}

	out := make([]node, 0, len(directions)*len(altitudes))
	for _, d := range directions {
		for _, alt := range altitudes {
			newLat := n.lat + d[0]
			newLon := n.lon + d[1]

			if !p.fence.WithinOperationalArea(uas.Position{Latitude: newLat, Longitude: newLon, Altitude: alt}) {
				continue
			}

			dist := geo.Distance3D(n.lat, n.lon, n.alt, newLat, newLon, alt)

			// Climbing and descending cost airspeed.
			speed := p.cfg.CruiseSpeed
			if math.Abs(alt-n.alt) > 5 {
				speed *= 0.8
			}

			out = append(out, node{
				lat:  newLat,
				lon:  newLon,
				alt:  alt,
				time: n.time + dist/speed,
			})
		}
	}
	return out
}

// heuristic estimates time to goal at maximum speed. Edge costs are weighted
// distance, so the estimate is not strictly admissible when sensitive areas
// sit between node and goal; the search stays complete within the iteration
// bound.
func (p *Planner) heuristic(n *node, goal uas.Position) float64 {
	return p.heuristicAt(n.lat, n.lon, n.alt, goal)
}

func (p *Planner) heuristicAt(lat, lon, alt float64, goal uas.Position) float64 {
	dist := geo.Distance3D(lat, lon, alt, goal.Latitude, goal.Longitude, goal.Altitude)
	return dist / p.cfg.MaxSpeed
}

// reconstructPath walks parent handles from the goal-reaching node back to
// the start and reverses.
func reconstructPath(arena []node, idx int32) []node {
	var path []node
	for i := idx; i >= 0; i = arena[i].parent {
		path = append(path, arena[i])
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
