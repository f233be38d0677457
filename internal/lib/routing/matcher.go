package routing

import (
	"math"

	"github.com/dpup/turnbyturn/internal/lib/geo"
)

// tieToleranceMeters lets an earlier local minimum win over a marginally closer later
// one, so overlapping out-and-back legs keep the match on the leg being driven.
const tieToleranceMeters = 0.5

// Matcher projects fixes onto a route while keeping progress monotonic. Each
// navigation session owns one Matcher; it is not safe for concurrent use.
type Matcher struct {
	route  *Route
	config MatcherConfig

	segment  int
	progress float64
	started  bool
	matched  bool
	offRoute bool
}

// NewMatcher creates a Matcher for route
func NewMatcher(route *Route, cfg MatcherConfig) *Matcher {
	return &Matcher{
		route:   route,
		config:  cfg,
		started: !cfg.RequireStartAtOrigin,
	}
}

// Route returns the route being matched against.
func (m *Matcher) Route() *Route { return m.route }

// Started reports whether the vehicle has reached the route origin.
func (m *Matcher) Started() bool { return m.started }

// Last returns the most recent committed match without consuming a fix.
func (m *Matcher) Last() MatchResult {
	return MatchResult{
		SegmentIndex: m.segment,
		MatchedIndex: m.matchedIndex(),
		Progress:     m.progress,
		Projected:    m.pointAtProgress(),
		OnRoute:      m.matched && !m.offRoute,
		Started:      m.started,
	}
}

// Match projects p onto the route. Fixes farther than the snap distance are reported
// off route and do not advance progress.
func (m *Matcher) Match(p geo.Point) MatchResult {
	xy := m.route.Project(p)
	toOrigin := geo.PlanarDistance(xy, m.route.XY(0))

	if !m.started {
		if toOrigin > m.config.StartRebaseDistanceMeters {
			return MatchResult{
				LateralOffset: toOrigin,
				Projected:     m.route.Points[0],
			}
		}
		m.started = true
		m.rebase()
	}

	rebased := false
	if m.matched && toOrigin <= m.config.StartRebaseDistanceMeters &&
		m.progress <= 2*m.config.StartRebaseDistanceMeters {
		m.rebase()
		rebased = true
	}

	seg, t, lateral := m.search(xy)
	segLen := m.route.DistanceAt(seg+1) - m.route.DistanceAt(seg)
	candidate := m.route.DistanceAt(seg) + t*segLen

	if lateral > m.config.SnapToRouteDistanceMeters {
		m.offRoute = true
		res := m.Last()
		res.OnRoute = false
		res.LateralOffset = lateral
		res.Projected = m.route.PointAt(seg, t)
		return res
	}

	if rebased || !m.matched || candidate >= m.progress {
		m.segment = seg
		m.progress = candidate
	}
	m.matched = true
	m.offRoute = false

	res := m.Last()
	res.LateralOffset = lateral
	return res
}

func (m *Matcher) rebase() {
	m.segment = 0
	m.progress = 0
}

// search returns the best segment in the window with the projection fraction and
// lateral distance.
func (m *Matcher) search(xy geo.XY) (int, float64, float64) {
	last := m.route.LastIndex() - 1
	end := last
	if m.matched && !m.offRoute {
		limit := m.progress + m.config.LookaheadMeters
		end = m.segment
		for end < last && m.route.DistanceAt(end+1) <= limit {
			end++
		}
	}

	type candidate struct {
		t, dist float64
	}
	candidates := make([]candidate, 0, end-m.segment+1)
	best := math.Inf(1)
	for i := m.segment; i <= end; i++ {
		_, t, d := geo.ProjectOntoSegment(xy, m.route.XY(i), m.route.XY(i+1))
		candidates = append(candidates, candidate{t: t, dist: d})
		best = math.Min(best, d)
	}

	// Earliest local minimum close to the best distance.
	for i, c := range candidates {
		if c.dist > best+tieToleranceMeters {
			continue
		}
		if i > 0 && c.dist > candidates[i-1].dist {
			continue
		}
		if i < len(candidates)-1 && c.dist > candidates[i+1].dist {
			continue
		}
		return m.segment + i, c.t, c.dist
	}
	// Unreachable: candidates always holds at least the current segment.
	return m.segment, 0, best
}

func (m *Matcher) matchedIndex() int {
	start := m.route.DistanceAt(m.segment)
	end := m.route.DistanceAt(m.segment + 1)
	if m.progress-start > (end-start)/2 {
		return m.segment + 1
	}
	return m.segment
}

func (m *Matcher) pointAtProgress() geo.Point {
	start := m.route.DistanceAt(m.segment)
	length := m.route.DistanceAt(m.segment+1) - start
	if length == 0 {
		return m.route.Points[m.segment]
	}
	return m.route.PointAt(m.segment, (m.progress-start)/length)
}
