package prompt

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/turnbyturn/internal/lib/geo"
	"github.com/dpup/turnbyturn/internal/lib/maneuver"
	"github.com/dpup/turnbyturn/internal/lib/routing"
)

var (
	origin = geo.Point{Latitude: 31.2304, Longitude: 121.4737}
	t0     = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
)

type leg struct {
	bearing float64
	meters  int
}

// walk lays out a path from origin as a sequence of straight legs.
type walk struct {
	legs []leg
}

func (w walk) at(s float64) geo.Point {
	east, north := 0.0, 0.0
	for _, l := range w.legs {
		rad := l.bearing * math.Pi / 180
		step := math.Min(s, float64(l.meters))
		east += step * math.Sin(rad)
		north += step * math.Cos(rad)
		s -= step
		if s <= 0 {
			break
		}
	}
	return geo.Offset(origin, east, north)
}

func (w walk) route(t *testing.T) *routing.Route {
	t.Helper()
	total := 0
	for _, l := range w.legs {
		total += l.meters
	}
	pts := make([]geo.Point, 0, total+1)
	for i := 0; i <= total; i++ {
		pts = append(pts, w.at(float64(i)))
	}
	route, err := routing.NewRoute("test", pts, nil)
	require.NoError(t, err)
	return route
}

func testConfig() Config {
	return Config{
		Mode:                            ModePath,
		TurnPromptDistanceMeters:        40,
		UturnPromptDistanceMeters:       20,
		WaypointUturnTriggerMeters:      18,
		PostTurnNextPromptMinTime:       1500 * time.Millisecond,
		StraightPromptMinDistanceMeters: 150,
		TurnAngleThresholdDegrees:       28,
		UturnAngleThresholdDegrees:      150,
	}
}

type harness struct {
	walk      walk
	route     *routing.Route
	matcher   *routing.Matcher
	scheduler *Scheduler
	events    []Event
}

func newHarness(t *testing.T, cfg Config, legs ...leg) *harness {
	t.Helper()
	w := walk{legs: legs}
	route := w.route(t)
	detector := maneuver.NewDetector(maneuver.Config{
		ShapeToleranceMeters:       1,
		TurnClusterMinMeters:       5,
		MinSegmentLengthMeters:     1.5,
		TurnAngleThresholdDegrees:  28,
		UturnAngleThresholdDegrees: 150,
		TurnMergeMinGapMeters:      3,
	})
	return &harness{
		walk:  w,
		route: route,
		matcher: routing.NewMatcher(route, routing.MatcherConfig{
			StartRebaseDistanceMeters: 12,
			SnapToRouteDistanceMeters: 12,
			LookaheadMeters:           150,
		}),
		scheduler: NewScheduler(cfg, route, maneuver.NewPrecomputed(route, detector)),
	}
}

func (h *harness) fixAt(p geo.Point, at time.Time, heading float64) (Event, bool) {
	res := h.matcher.Match(p)
	ev, ok := h.scheduler.Step(context.Background(), Input{
		Match:        res,
		Position:     p,
		Time:         at,
		Heading:      heading,
		HeadingValid: true,
	})
	if ok {
		h.events = append(h.events, ev)
	}
	return ev, ok
}

func (h *harness) drive(s float64, at time.Time) (Event, bool) {
	return h.fixAt(h.walk.at(s), at, 0)
}

func (h *harness) kinds(kind EventKind) []Event {
	var out []Event
	for _, ev := range h.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestScheduler_TurnFiresOnceAtTriggerDistance(t *testing.T) {
	h := newHarness(t, testConfig(), leg{90, 100}, leg{0, 100})

	var firedAt float64
	for i, s := 0, 50.5; s < 200; i, s = i+1, s+1 {
		if ev, ok := h.drive(s, t0.Add(time.Duration(i)*100*time.Millisecond)); ok && ev.Kind == KindTurnLeft {
			firedAt = s
		}
	}

	turns := h.kinds(KindTurnLeft)
	require.Len(t, turns, 1)
	assert.Equal(t, 60.5, firedAt, "first fix within 40 m of the turn")
	assert.InDelta(t, 39.5, turns[0].DistanceRemainingMeters, 0.1)
	assert.Equal(t, 100, turns[0].ManeuverIndex)
	assert.Equal(t, -1, turns[0].WaypointIndex)
	assert.IsType(t, Idle{}, h.scheduler.State())
}

func TestScheduler_IdleRequiresPassingTheManeuver(t *testing.T) {
	h := newHarness(t, testConfig(), leg{90, 100}, leg{0, 100})

	_, ok := h.drive(60.5, t0)
	require.True(t, ok)
	require.IsType(t, Announced{}, h.scheduler.State())

	h.drive(99.5, t0.Add(5*time.Second))
	assert.IsType(t, Announced{}, h.scheduler.State(), "turn vertex not yet passed")

	h.drive(100.5, t0.Add(5100*time.Millisecond))
	assert.IsType(t, Idle{}, h.scheduler.State())
}

func TestScheduler_IdleRequiresCooldown(t *testing.T) {
	h := newHarness(t, testConfig(), leg{90, 100}, leg{0, 100})

	_, ok := h.drive(60.5, t0)
	require.True(t, ok)

	h.drive(100.5, t0.Add(1000*time.Millisecond))
	assert.IsType(t, Announced{}, h.scheduler.State())

	h.drive(101.5, t0.Add(1400*time.Millisecond))
	assert.IsType(t, Announced{}, h.scheduler.State())

	h.drive(102.5, t0.Add(1500*time.Millisecond))
	assert.IsType(t, Idle{}, h.scheduler.State())
}

func TestScheduler_SuppressedWhileOffRoute(t *testing.T) {
	h := newHarness(t, testConfig(), leg{90, 100}, leg{0, 100})

	h.drive(50.5, t0)
	for i, s := range []float64{60.5, 70.5, 80.5} {
		_, ok := h.fixAt(geo.Offset(origin, s, 60), t0.Add(time.Duration(i+1)*time.Second), 0)
		assert.False(t, ok, "no prompt while off route")
	}

	ev, ok := h.drive(85.5, t0.Add(5*time.Second))
	require.True(t, ok)
	assert.Equal(t, KindTurnLeft, ev.Kind)
	assert.InDelta(t, 14.5, ev.DistanceRemainingMeters, 0.1)
}

func TestScheduler_ManeuverPassedWhileApproachingIsSkipped(t *testing.T) {
	h := newHarness(t, testConfig(), leg{90, 100}, leg{0, 30}, leg{90, 100})

	_, ok := h.drive(60.5, t0)
	require.True(t, ok)
	h.drive(100.5, t0.Add(1*time.Second))

	// Off route once the cooldown has elapsed: the right turn at 130 m is approaching
	// but cannot be announced.
	_, ok = h.fixAt(geo.Offset(origin, 40, 60), t0.Add(2*time.Second), 0)
	assert.False(t, ok)
	require.IsType(t, Approaching{}, h.scheduler.State())

	_, ok = h.drive(140.5, t0.Add(3*time.Second))
	assert.False(t, ok, "passed maneuver is not announced late")
	assert.IsType(t, Idle{}, h.scheduler.State())

	for i, s := 0, 145.5; s < 230; i, s = i+1, s+5 {
		h.drive(s, t0.Add(4*time.Second+time.Duration(i)*time.Second))
	}
	assert.Empty(t, h.kinds(KindTurnRight))
	assert.Len(t, h.kinds(KindTurnLeft), 1)
}

func TestScheduler_EachManeuverAnnouncedAtMostOnce(t *testing.T) {
	h := newHarness(t, testConfig(), leg{90, 100}, leg{0, 100}, leg{90, 100}, leg{180, 100})

	// Slow crawl with backwards jitter; fixes every 200 ms.
	at := t0
	for s := 0.5; s < 400; s += 0.7 {
		h.drive(s, at)
		h.drive(math.Max(0.5, s-2), at.Add(100*time.Millisecond))
		at = at.Add(200 * time.Millisecond)
	}

	seen := map[int]int{}
	for _, ev := range h.events {
		if ev.ManeuverIndex >= 0 {
			seen[ev.ManeuverIndex]++
		}
	}
	assert.Equal(t, map[int]int{100: 1, 200: 1, 300: 1}, seen)
}

func TestScheduler_UTurnTriggerDistances(t *testing.T) {
	route := walk{legs: []leg{{90, 100}, {270, 100}}}.route(t)
	source := maneuver.NewPrecomputedFrom([]maneuver.Maneuver{{
		PositionIndex:     100,
		AngleDegrees:      180,
		Kind:              maneuver.UTurn,
		DistanceFromStart: route.DistanceAt(100),
	}})
	step := func(s *Scheduler, progress float64, pending []routing.Waypoint) bool {
		_, ok := s.Step(context.Background(), Input{
			Match: routing.MatchResult{
				SegmentIndex: int(progress),
				Progress:     progress,
				OnRoute:      true,
				Started:      true,
			},
			Time:             t0,
			PendingWaypoints: pending,
		})
		return ok
	}

	s := NewScheduler(testConfig(), route, source)
	assert.False(t, step(s, 79.5, nil))
	assert.True(t, step(s, 80.5, nil), "u-turns trigger at 20 m")

	pending := []routing.Waypoint{{Point: route.Points[100], RouteIndex: 100}}
	s = NewScheduler(testConfig(), route, source)
	assert.False(t, step(s, 81.5, pending))
	assert.True(t, step(s, 82.5, pending), "u-turns toward an unreached waypoint trigger at 18 m")
}

func TestScheduler_StraightPrompt(t *testing.T) {
	t.Run("long leg at start", func(t *testing.T) {
		h := newHarness(t, testConfig(), leg{90, 400}, leg{0, 50})

		ev, ok := h.drive(0.5, t0)
		require.True(t, ok)
		assert.Equal(t, KindStraight, ev.Kind)
		assert.InDelta(t, 399.5, ev.DistanceRemainingMeters, 0.2)

		_, ok = h.drive(1.5, t0.Add(time.Second))
		assert.False(t, ok, "straight prompt is emitted once per idle period")
	})

	t.Run("after a turn", func(t *testing.T) {
		h := newHarness(t, testConfig(), leg{90, 200}, leg{0, 400})

		h.drive(150.5, t0)
		ev, ok := h.drive(160.5, t0.Add(time.Second))
		require.True(t, ok)
		require.Equal(t, KindTurnLeft, ev.Kind)

		ev, ok = h.drive(201.5, t0.Add(3*time.Second))
		require.True(t, ok)
		assert.Equal(t, KindStraight, ev.Kind)
		assert.InDelta(t, 398.5, ev.DistanceRemainingMeters, 0.5)
	})

	t.Run("short remaining distance", func(t *testing.T) {
		h := newHarness(t, testConfig(), leg{90, 100}, leg{0, 100})

		_, ok := h.drive(50.5, t0)
		assert.False(t, ok)
	})
}

func TestScheduler_NotStarted(t *testing.T) {
	route := walk{legs: []leg{{90, 100}, {0, 100}}}.route(t)
	s := NewScheduler(testConfig(), route, maneuver.NewPrecomputedFrom(nil))

	_, ok := s.Step(context.Background(), Input{Match: routing.MatchResult{OnRoute: true}, Time: t0})
	assert.False(t, ok)
}

func TestScheduler_ArrivedIsTerminal(t *testing.T) {
	h := newHarness(t, testConfig(), leg{90, 100}, leg{0, 100})

	h.scheduler.Arrive()
	_, ok := h.drive(60.5, t0)
	assert.False(t, ok)
	assert.IsType(t, Arrived{}, h.scheduler.State())
}

func TestScheduler_HeadingMode(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = ModeHeading
	h := newHarness(t, cfg, leg{90, 100}, leg{0, 100})

	east, north := 90.0, 0.0
	_, ok := h.fixAt(h.walk.at(50.5), t0, east)
	assert.False(t, ok, "corner is still 49.5 m away")

	_, ok = h.fixAt(h.walk.at(59.5), t0.Add(4*time.Second), east)
	assert.False(t, ok, "corner is still 40.5 m away")

	ev, ok := h.fixAt(h.walk.at(60.5), t0.Add(5*time.Second), east)
	require.True(t, ok)
	assert.Equal(t, KindTurnLeft, ev.Kind)
	assert.Equal(t, 100, ev.ManeuverIndex)
	assert.InDelta(t, 39.5, ev.DistanceRemainingMeters, 0.1)
	assert.IsType(t, Announced{}, h.scheduler.State())

	for s := 62.5; s < 100; s += 2 {
		_, ok = h.fixAt(h.walk.at(s), t0.Add(time.Duration(s)*time.Second/2), east)
		assert.False(t, ok, "announced once at %.1f", s)
	}

	// The driver turns with the route; nothing more to say.
	for s := 100.5; s <= 180; s += 2 {
		_, ok = h.fixAt(h.walk.at(s), t0.Add(time.Duration(s)*time.Second), north)
		assert.False(t, ok, "no prompt at %.1f", s)
	}
	assert.Len(t, h.events, 1)
	assert.IsType(t, Idle{}, h.scheduler.State())
}

func TestScheduler_HeadingModeLateTurnIsNotRepeated(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = ModeHeading
	h := newHarness(t, cfg, leg{90, 100}, leg{0, 100})

	east := 90.0
	_, ok := h.fixAt(h.walk.at(60.5), t0, east)
	require.True(t, ok)

	// Still heading east past the corner: the north leg was already announced.
	_, ok = h.fixAt(h.walk.at(100.5), t0.Add(2*time.Second), east)
	assert.False(t, ok)
	assert.IsType(t, Idle{}, h.scheduler.State())
	_, ok = h.fixAt(h.walk.at(101.5), t0.Add(3*time.Second), east)
	assert.False(t, ok)
	assert.Len(t, h.events, 1)
}

func TestScheduler_HeadingModeUTurnUsesShorterTrigger(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = ModeHeading
	h := newHarness(t, cfg, leg{90, 100}, leg{270, 60})

	east := 90.0
	_, ok := h.fixAt(h.walk.at(70.5), t0, east)
	assert.False(t, ok, "u-turn is 29.5 m away, beyond the 20 m trigger")

	ev, ok := h.fixAt(h.walk.at(80.5), t0.Add(5*time.Second), east)
	require.True(t, ok)
	assert.Equal(t, KindUTurn, ev.Kind)
	assert.Equal(t, 100, ev.ManeuverIndex)
	assert.InDelta(t, 19.5, ev.DistanceRemainingMeters, 0.1)
}

func TestScheduler_HeadingModeNeedsHeading(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = ModeHeading
	h := newHarness(t, cfg, leg{90, 100}, leg{0, 100})

	res := h.matcher.Match(h.walk.at(60.5))
	_, ok := h.scheduler.Step(context.Background(), Input{Match: res, Position: h.walk.at(60.5), Time: t0})
	assert.False(t, ok)
}

func TestKindFor(t *testing.T) {
	assert.Equal(t, KindTurnLeft, KindFor(maneuver.Left))
	assert.Equal(t, KindTurnRight, KindFor(maneuver.Right))
	assert.Equal(t, KindUTurn, KindFor(maneuver.UTurn))
	assert.Equal(t, KindStraight, KindFor(maneuver.Straight))
}
