package maneuver

import (
	"sort"

	"github.com/dpup/turnbyturn/internal/lib/routing"
)

// Precomputed serves maneuvers detected once over the whole route.
type Precomputed struct {
	maneuvers []Maneuver
}

// NewPrecomputed runs the detector over the entire route.
func NewPrecomputed(route *routing.Route, detector *Detector) *Precomputed {
	return &Precomputed{maneuvers: detector.Detect(route, 0, route.LastIndex())}
}

// NewPrecomputedFrom wraps an already detected list, such as one held in a cache.
func NewPrecomputedFrom(maneuvers []Maneuver) *Precomputed {
	return &Precomputed{maneuvers: maneuvers}
}

// All returns every maneuver on the route.
func (p *Precomputed) All() []Maneuver {
	out := make([]Maneuver, len(p.maneuvers))
	copy(out, p.maneuvers)
	return out
}

func (p *Precomputed) Next(after int) (Maneuver, bool) {
	i := sort.Search(len(p.maneuvers), func(i int) bool {
		return p.maneuvers[i].PositionIndex > after
	})
	if i == len(p.maneuvers) {
		return Maneuver{}, false
	}
	return p.maneuvers[i], true
}

// PathBased detects maneuvers lazily over a stretch of route ahead of the vehicle.
// The shape of the whole route is found once; clustering and classification run only
// inside the window, which is widened to whole clusters and to whole runs of
// mergeable maneuvers so the result matches Precomputed exactly. When the window holds
// no maneuver it is pushed forward another lookahead until one is found or the route
// ends. The last answer is memoised so repeated queries from the same segment are
// free.
type PathBased struct {
	route     *routing.Route
	detector  *Detector
	lookahead float64

	shape []int

	memoAfter int
	memo      Maneuver
	memoFound bool
	memoValid bool
}

// NewPathBased creates a PathBased source.
func NewPathBased(route *routing.Route, detector *Detector, lookaheadMeters float64) *PathBased {
	return &PathBased{
		route:     route,
		detector:  detector,
		lookahead: lookaheadMeters,
	}
}

func (p *PathBased) Next(after int) (Maneuver, bool) {
	if after < 0 {
		after = 0
	}
	if after >= p.route.LastIndex() {
		return Maneuver{}, false
	}
	if !p.memoValid || p.memoAfter != after {
		p.memo, p.memoFound = p.next(after)
		p.memoAfter = after
		p.memoValid = true
	}
	return p.memo, p.memoFound
}

func (p *PathBased) next(after int) (Maneuver, bool) {
	if p.shape == nil {
		p.shape = p.detector.Shape(p.route)
	}
	shape := p.shape
	lastInterior := len(shape) - 2
	if lastInterior < 1 {
		return Maneuver{}, false
	}

	// The first cluster holding a shape vertex beyond after.
	lo := sort.Search(len(shape), func(k int) bool { return shape[k] > after })
	if lo < 1 {
		lo = 1
	}
	if lo > lastInterior {
		return Maneuver{}, false
	}
	lo = p.clusterStart(lo)

	horizon := p.route.DistanceAt(after) + p.lookahead
	hi := p.reach(lo, horizon)

	for {
		found := p.detector.candidates(p.route, shape, lo, hi)

		// A maneuver just before the window could absorb the first one in it.
		if lo > 1 && len(found) > 0 &&
			found[0].DistanceFromStart-p.route.DistanceAt(shape[lo-1]) < p.detector.config.TurnMergeMinGapMeters {
			lo = p.clusterStart(lo - 1)
			continue
		}
		// Likewise a maneuver just past it could absorb the last one.
		if hi < lastInterior && len(found) > 0 &&
			p.route.DistanceAt(shape[hi+1])-found[len(found)-1].DistanceFromStart < p.detector.config.TurnMergeMinGapMeters {
			hi = p.clusterEnd(hi + 1)
			continue
		}

		for _, m := range p.detector.merge(found) {
			if m.PositionIndex > after {
				return m, true
			}
		}
		if hi >= lastInterior {
			return Maneuver{}, false
		}
		horizon += p.lookahead
		hi = p.reach(hi+1, horizon)
	}
}

// clusterStart walks back from interior shape position k to the start of its cluster.
func (p *PathBased) clusterStart(k int) int {
	for k > 1 && !p.detector.splits(p.route, p.shape, k) {
		k--
	}
	return k
}

// clusterEnd walks forward from interior shape position k to the end of its cluster.
func (p *PathBased) clusterEnd(k int) int {
	for k < len(p.shape)-2 && !p.detector.splits(p.route, p.shape, k+1) {
		k++
	}
	return k
}

// reach returns the end of the cluster holding the last interior shape vertex within
// horizon, and never less than the end of the cluster holding k.
func (p *PathBased) reach(k int, horizon float64) int {
	hi := k
	for hi+1 <= len(p.shape)-2 && p.route.DistanceAt(p.shape[hi+1]) <= horizon {
		hi++
	}
	return p.clusterEnd(hi)
}
