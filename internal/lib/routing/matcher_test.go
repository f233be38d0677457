package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/turnbyturn/internal/lib/geo"
)

var origin = geo.Point{Latitude: 31.2304, Longitude: 121.4737}

// lRoute is 100 m east then 100 m north with a vertex every meter; the corner is
// vertex 100.
func lRoute(t *testing.T) *Route {
	t.Helper()
	var pts []geo.Point
	for i := 0; i <= 100; i++ {
		pts = append(pts, geo.Offset(origin, float64(i), 0))
	}
	for i := 1; i <= 100; i++ {
		pts = append(pts, geo.Offset(origin, 100, float64(i)))
	}
	route, err := NewRoute("l-route", pts, nil)
	require.NoError(t, err)
	return route
}

// alongL returns a point s meters along the L route, shifted lateral meters to the
// left of the direction of travel.
func alongL(s, lateral float64) geo.Point {
	if s <= 100 {
		return geo.Offset(origin, s, lateral)
	}
	return geo.Offset(origin, 100-lateral, s-100)
}

func defaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		StartRebaseDistanceMeters: 12,
		SnapToRouteDistanceMeters: 12,
		LookaheadMeters:           150,
	}
}

func TestNewRoute_Validation(t *testing.T) {
	_, err := NewRoute("empty", nil, nil)
	assert.Equal(t, ErrInvalidRoute, err)

	_, err = NewRoute("single", []geo.Point{origin}, nil)
	assert.Equal(t, ErrInvalidRoute, err)

	_, err = NewRoute("stationary", []geo.Point{origin, origin, origin}, nil)
	assert.Equal(t, ErrInvalidRoute, err)

	pts := []geo.Point{origin, geo.Offset(origin, 100, 0)}
	_, err = NewRoute("bad-waypoint", pts, []Waypoint{{Point: origin, RouteIndex: 5}})
	assert.Equal(t, ErrInvalidWaypoint, err)
}

func TestNewRoute_Geometry(t *testing.T) {
	route := lRoute(t)

	assert.Equal(t, 201, route.Len())
	assert.Equal(t, 200, route.LastIndex())
	assert.InDelta(t, 200, route.Length(), 0.1)
	assert.InDelta(t, 100, route.DistanceAt(100), 0.05)
	assert.Equal(t, 100, route.IndexAtDistance(100.5))
	assert.Equal(t, 0, route.IndexAtDistance(-1))
}

func TestRoute_Bounds(t *testing.T) {
	route := lRoute(t)

	sw, ne := route.Bounds()
	assert.InDelta(t, origin.Latitude, sw.Latitude, 1e-9)
	assert.InDelta(t, origin.Longitude, sw.Longitude, 1e-9)
	corner := geo.Offset(origin, 100, 100)
	assert.InDelta(t, corner.Latitude, ne.Latitude, 1e-9)
	assert.InDelta(t, corner.Longitude, ne.Longitude, 1e-9)
}

func TestNewRoute_SortsWaypoints(t *testing.T) {
	pts := []geo.Point{origin, geo.Offset(origin, 50, 0), geo.Offset(origin, 100, 0)}
	route, err := NewRoute("wp", pts, []Waypoint{
		{Point: pts[2], RouteIndex: 2},
		{Point: pts[1], RouteIndex: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, route.Waypoints[0].RouteIndex)
	assert.Equal(t, 2, route.Waypoints[1].RouteIndex)
}

func TestNewRouteFromPolyline(t *testing.T) {
	pts := []geo.Point{origin, geo.Offset(origin, 500, 0), geo.Offset(origin, 500, 500)}

	route, err := NewRouteFromPolyline("encoded", geo.EncodePolyline(pts), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, route.Len())
	assert.InDelta(t, 1000, route.Length(), 2)

	_, err = NewRouteFromPolyline("empty", "", nil)
	assert.Equal(t, ErrInvalidRoute, err)
}

func TestRoute_Fingerprint(t *testing.T) {
	a := lRoute(t)
	b := lRoute(t)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	c, err := NewRoute("other", a.Points[:150], nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestMatcher_ProjectsOntoRoute(t *testing.T) {
	matcher := NewMatcher(lRoute(t), defaultMatcherConfig())

	res := matcher.Match(alongL(40, 6))
	assert.True(t, res.Started)
	assert.True(t, res.OnRoute)
	assert.InDelta(t, 40, res.Progress, 0.1)
	assert.InDelta(t, 6, res.LateralOffset, 0.1)
	assert.Equal(t, 40, res.MatchedIndex)
	assert.InDelta(t, 0, geo.Distance(res.Projected, alongL(40, 0)), 0.1)

	res = matcher.Match(alongL(150.7, -3))
	assert.True(t, res.OnRoute)
	assert.InDelta(t, 150.7, res.Progress, 0.1)
	assert.Equal(t, 150, res.SegmentIndex)
	assert.Equal(t, 151, res.MatchedIndex)
}

func TestMatcher_MatchedIndexNonDecreasing(t *testing.T) {
	matcher := NewMatcher(lRoute(t), defaultMatcherConfig())

	lastIndex := -1
	lastProgress := -1.0
	for i, s := 0, 0.0; s <= 200; i, s = i+1, s+4 {
		lateral := 3.0
		if i%2 == 1 {
			lateral = -3.0
		}
		res := matcher.Match(alongL(s, lateral))
		require.True(t, res.OnRoute)
		assert.GreaterOrEqual(t, res.MatchedIndex, lastIndex, "matched index went backwards at %v m", s)
		assert.GreaterOrEqual(t, res.Progress, lastProgress, "progress went backwards at %v m", s)
		lastIndex = res.MatchedIndex
		lastProgress = res.Progress
	}
	assert.Equal(t, 200, lastIndex)
}

func TestMatcher_JitterBackwardsKeepsProgress(t *testing.T) {
	matcher := NewMatcher(lRoute(t), defaultMatcherConfig())

	res := matcher.Match(alongL(50, 0))
	require.InDelta(t, 50, res.Progress, 0.1)

	res = matcher.Match(alongL(47, 1))
	assert.True(t, res.OnRoute)
	assert.InDelta(t, 50, res.Progress, 0.1, "progress must not decrease")
}

func TestMatcher_OffRoute(t *testing.T) {
	matcher := NewMatcher(lRoute(t), defaultMatcherConfig())

	res := matcher.Match(alongL(30, 0))
	require.True(t, res.OnRoute)

	res = matcher.Match(alongL(40, 60))
	assert.False(t, res.OnRoute)
	assert.InDelta(t, 60, res.LateralOffset, 0.5)
	assert.InDelta(t, 30, res.Progress, 0.1, "off-route fix must not advance progress")

	res = matcher.Match(alongL(50, 5))
	assert.True(t, res.OnRoute)
	assert.InDelta(t, 50, res.Progress, 0.1)
}

func TestMatcher_RejoinBeyondLookahead(t *testing.T) {
	cfg := defaultMatcherConfig()
	cfg.LookaheadMeters = 20
	matcher := NewMatcher(lRoute(t), cfg)

	require.True(t, matcher.Match(alongL(10, 0)).OnRoute)
	require.False(t, matcher.Match(alongL(60, 40)).OnRoute)

	// While off route the whole remaining route is searched.
	res := matcher.Match(alongL(160, 2))
	assert.True(t, res.OnRoute)
	assert.InDelta(t, 160, res.Progress, 0.1)
}

func TestMatcher_RequireStartAtOrigin(t *testing.T) {
	cfg := defaultMatcherConfig()
	cfg.RequireStartAtOrigin = true
	matcher := NewMatcher(lRoute(t), cfg)

	res := matcher.Match(geo.Offset(origin, -30, 0))
	assert.False(t, res.Started)
	assert.False(t, res.OnRoute)

	res = matcher.Match(alongL(60, 0))
	assert.False(t, res.Started, "must not start mid-route")

	res = matcher.Match(geo.Offset(origin, -8, 0))
	assert.True(t, res.Started)
	assert.True(t, res.OnRoute)
	assert.Equal(t, 0.0, res.Progress)
}

func TestMatcher_RebaseNearStart(t *testing.T) {
	matcher := NewMatcher(lRoute(t), defaultMatcherConfig())

	res := matcher.Match(alongL(9, 0))
	require.InDelta(t, 9, res.Progress, 0.1)

	res = matcher.Match(alongL(2, 0))
	assert.InDelta(t, 2, res.Progress, 0.1, "progress rebases near the route start")

	matcher.Match(alongL(80, 0))
	res = matcher.Match(alongL(2, 0))
	assert.InDelta(t, 80, res.Progress, 0.1, "no rebase once well underway")
}

func TestMatcher_OutAndBackStaysOnCurrentLeg(t *testing.T) {
	var pts []geo.Point
	for i := 0; i <= 100; i++ {
		pts = append(pts, geo.Offset(origin, float64(i), 0))
	}
	for i := 99; i >= 0; i-- {
		pts = append(pts, geo.Offset(origin, float64(i), 0))
	}
	route, err := NewRoute("out-and-back", pts, nil)
	require.NoError(t, err)
	matcher := NewMatcher(route, defaultMatcherConfig())

	for x := 20.0; x <= 100; x += 5 {
		res := matcher.Match(geo.Offset(origin, x, 1))
		require.True(t, res.OnRoute)
		assert.InDelta(t, x, res.Progress, 0.1, "outbound leg at %v m", x)
	}

	for x := 95.0; x >= 50; x -= 5 {
		res := matcher.Match(geo.Offset(origin, x, -1))
		require.True(t, res.OnRoute)
		assert.InDelta(t, 200-x, res.Progress, 0.1, "return leg at %v m", x)
	}
}
