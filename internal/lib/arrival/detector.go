package arrival

import (
	"github.com/dpup/turnbyturn/internal/lib/geo"
	"github.com/dpup/turnbyturn/internal/lib/routing"
)

// Config holds arrival thresholds.
type Config struct {
	WaypointArrivalDistanceMeters float64
	EndArrivalDistanceMeters      float64
	// EndArrivalIndexWindow is how many vertices before the last one count as the
	// destination tail.
	EndArrivalIndexWindow int
	// EndArrivalTailMeters is the along-route distance before the end that counts as
	// the destination tail.
	EndArrivalTailMeters float64
}

// Result reports what was reached by one fix.
type Result struct {
	// Waypoints holds positions in the route's waypoint list reached by this fix.
	Waypoints []int
	Arrived   bool
}

// Detector tracks waypoint and destination arrival for one route. Each waypoint is
// reported at most once and destination arrival is terminal.
type Detector struct {
	config  Config
	route   *routing.Route
	reached []bool
	arrived bool
}

// New creates a Detector for route.
func New(cfg Config, route *routing.Route) *Detector {
	return &Detector{
		config:  cfg,
		route:   route,
		reached: make([]bool, len(route.Waypoints)),
	}
}

// Check evaluates a matched fix. position is the filtered fix in the mapped frame.
func (d *Detector) Check(match routing.MatchResult, position geo.Point) Result {
	var res Result
	if d.arrived || !match.Started {
		return res
	}

	for i, wp := range d.route.Waypoints {
		if d.reached[i] || match.MatchedIndex < wp.RouteIndex {
			continue
		}
		if geo.Distance(position, wp.Point) <= d.config.WaypointArrivalDistanceMeters {
			d.reached[i] = true
			res.Waypoints = append(res.Waypoints, i)
		}
	}

	last := d.route.LastIndex()
	if match.MatchedIndex >= last-d.config.EndArrivalIndexWindow &&
		match.Progress >= d.route.Length()-d.config.EndArrivalTailMeters &&
		geo.Distance(position, d.route.Destination()) <= d.config.EndArrivalDistanceMeters {
		d.arrived = true
		res.Arrived = true
	}
	return res
}

// Pending returns the waypoints not yet reached, in route order.
func (d *Detector) Pending() []routing.Waypoint {
	var out []routing.Waypoint
	for i, wp := range d.route.Waypoints {
		if !d.reached[i] {
			out = append(out, wp)
		}
	}
	return out
}

// Reached reports whether waypoint i has been reached.
func (d *Detector) Reached(i int) bool { return d.reached[i] }

// Arrived reports whether the destination has been reached.
func (d *Detector) Arrived() bool { return d.arrived }
