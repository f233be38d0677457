package maneuver

import (
	"math"

	"github.com/dpup/turnbyturn/internal/lib/geo"
	"github.com/dpup/turnbyturn/internal/lib/routing"
)

// Detector derives maneuvers from route geometry.
type Detector struct {
	config Config
}

// NewDetector creates a Detector
func NewDetector(cfg Config) *Detector {
	return &Detector{config: cfg}
}

// cluster is a run of shape vertices, stored as positions in the shape index list.
type cluster struct {
	first, last int
}

// Detect returns the maneuvers between route vertices from and to, ordered along the
// route.
func (d *Detector) Detect(route *routing.Route, from, to int) []Maneuver {
	if from < 0 {
		from = 0
	}
	if to > route.LastIndex() {
		to = route.LastIndex()
	}
	if to-from < 2 {
		return nil
	}

	shape := simplify(route, from, to, d.config.ShapeToleranceMeters)
	if len(shape) < 3 {
		return nil
	}
	return d.merge(d.candidates(route, shape, 1, len(shape)-2))
}

// Shape returns the indices of the route vertices that carry shape over the whole
// route, endpoints included.
func (d *Detector) Shape(route *routing.Route) []int {
	return simplify(route, 0, route.LastIndex(), d.config.ShapeToleranceMeters)
}

// splits reports whether interior shape position k starts a new cluster.
func (d *Detector) splits(route *routing.Route, shape []int, k int) bool {
	return route.DistanceAt(shape[k])-route.DistanceAt(shape[k-1]) >= d.config.TurnClusterMinMeters
}

// candidates clusters the interior shape positions lo..hi and classifies each
// cluster, before merging. lo must start a cluster and hi must end one.
func (d *Detector) candidates(route *routing.Route, shape []int, lo, hi int) []Maneuver {
	var clusters []cluster
	for k := lo; k <= hi; k++ {
		if n := len(clusters); n > 0 && !d.splits(route, shape, k) {
			clusters[n-1].last = k
			continue
		}
		clusters = append(clusters, cluster{first: k, last: k})
	}

	var found []Maneuver
	for _, c := range clusters {
		// Neighbouring shape vertices bound the straight legs into and out of the
		// cluster, whichever cluster they belong to.
		prevAnchor := shape[c.first-1]
		nextAnchor := shape[c.last+1]
		first := shape[c.first]
		last := shape[c.last]

		inLen := route.DistanceAt(first) - route.DistanceAt(prevAnchor)
		outLen := route.DistanceAt(nextAnchor) - route.DistanceAt(last)
		if inLen < d.config.MinSegmentLengthMeters || outLen < d.config.MinSegmentLengthMeters {
			continue
		}

		in := geo.PlanarBearing(route.XY(prevAnchor), route.XY(first))
		out := geo.PlanarBearing(route.XY(last), route.XY(nextAnchor))
		angle := geo.AngleDelta(in, out)

		kind := d.Classify(angle)
		if kind == Straight {
			continue
		}

		apex := d.apex(route, shape, c)
		found = append(found, Maneuver{
			PositionIndex:     apex,
			AngleDegrees:      angle,
			Kind:              kind,
			DistanceFromStart: route.DistanceAt(apex),
		})
	}
	return found
}

// Classify maps a signed turn angle onto a maneuver kind.
func (d *Detector) Classify(angle float64) Kind {
	return Classify(angle, d.config.TurnAngleThresholdDegrees, d.config.UturnAngleThresholdDegrees)
}

// Classify maps a signed angle onto a kind given the turn and u-turn thresholds.
func Classify(angle, turnThreshold, uturnThreshold float64) Kind {
	abs := math.Abs(angle)
	switch {
	case abs < turnThreshold:
		return Straight
	case abs >= uturnThreshold:
		return UTurn
	case angle < 0:
		return Left
	default:
		return Right
	}
}

// apex picks the vertex of a cluster with the sharpest local direction change.
func (d *Detector) apex(route *routing.Route, shape []int, c cluster) int {
	if c.first == c.last {
		return shape[c.first]
	}
	best, bestAngle := shape[c.first], -1.0
	for k := c.first; k <= c.last; k++ {
		in := geo.PlanarBearing(route.XY(shape[k-1]), route.XY(shape[k]))
		out := geo.PlanarBearing(route.XY(shape[k]), route.XY(shape[k+1]))
		if a := math.Abs(geo.AngleDelta(in, out)); a > bestAngle {
			best, bestAngle = shape[k], a
		}
	}
	return best
}

// merge collapses maneuvers closer than the merge gap, keeping the larger angle and
// the later maneuver on ties.
func (d *Detector) merge(found []Maneuver) []Maneuver {
	if len(found) < 2 {
		return found
	}
	merged := []Maneuver{found[0]}
	for _, m := range found[1:] {
		prev := &merged[len(merged)-1]
		if m.DistanceFromStart-prev.DistanceFromStart < d.config.TurnMergeMinGapMeters {
			if math.Abs(m.AngleDegrees) >= math.Abs(prev.AngleDegrees) {
				*prev = m
			}
			continue
		}
		merged = append(merged, m)
	}
	return merged
}

// simplify runs Ramer-Douglas-Peucker over the planar route between from and to and
// returns the indices of the vertices that carry shape, endpoints included.
func simplify(route *routing.Route, from, to int, tolerance float64) []int {
	keep := make([]bool, to-from+1)
	keep[0], keep[to-from] = true, true

	type span struct{ start, end int }
	stack := []span{{from, to}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		maxDist, maxIdx := 0.0, -1
		for i := s.start + 1; i < s.end; i++ {
			_, _, dist := geo.ProjectOntoSegment(route.XY(i), route.XY(s.start), route.XY(s.end))
			if dist > maxDist {
				maxDist, maxIdx = dist, i
			}
		}
		if maxIdx >= 0 && maxDist > tolerance {
			keep[maxIdx-from] = true
			stack = append(stack, span{s.start, maxIdx}, span{maxIdx, s.end})
		}
	}

	indices := make([]int, 0, 8)
	for i, k := range keep {
		if k {
			indices = append(indices, from+i)
		}
	}
	return indices
}
