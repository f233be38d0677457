package prompt

import (
	"context"
	"math"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/turnbyturn/internal/lib/geo"
	"github.com/dpup/turnbyturn/internal/lib/maneuver"
	"github.com/dpup/turnbyturn/internal/lib/routing"
)

// Scheduler decides when maneuver prompts are emitted. It holds exactly one State at
// a time and announces each maneuver at most once. Not safe for concurrent use.
type Scheduler struct {
	config Config
	route  *routing.Route
	source maneuver.Source

	state State
	// handled is the position index of the last maneuver announced or skipped.
	handled int
	// straightPending is set on entering Idle and cleared by the first idle step.
	straightPending bool
	// headingTarget is the last route vertex announced in heading mode and
	// headingBearing the direction of the segment leaving it.
	headingTarget    int
	headingBearing   float64
	headingAnnounced bool
}

// NewScheduler creates a Scheduler in the Idle state.
func NewScheduler(cfg Config, route *routing.Route, source maneuver.Source) *Scheduler {
	if cfg.Mode == "" {
		cfg.Mode = ModePath
	}
	return &Scheduler{
		config:          cfg,
		route:           route,
		source:          source,
		state:           Idle{},
		handled:         -1,
		straightPending: true,
		headingTarget:   -1,
	}
}

// State returns the current state.
func (s *Scheduler) State() State { return s.state }

// Arrive moves the scheduler into its terminal state.
func (s *Scheduler) Arrive() { s.state = Arrived{} }

// Step advances the state machine with one processed fix and returns the prompt to
// emit, if any.
func (s *Scheduler) Step(ctx context.Context, in Input) (Event, bool) {
	if _, done := s.state.(Arrived); done {
		return Event{}, false
	}
	if !in.Match.Started {
		return Event{}, false
	}

	if a, ok := s.state.(Announced); ok {
		if in.Match.SegmentIndex < a.Maneuver.PositionIndex ||
			in.Time.Sub(a.At) < s.config.PostTurnNextPromptMinTime {
			return Event{}, false
		}
		s.state = Idle{}
		s.straightPending = true
	}

	if s.config.Mode == ModeHeading {
		return s.stepHeading(in)
	}
	return s.stepPath(ctx, in)
}

func (s *Scheduler) stepPath(ctx context.Context, in Input) (Event, bool) {
	suppressed := !in.Match.OnRoute

	if _, ok := s.state.(Idle); ok {
		m, found := s.next(in.Match.SegmentIndex)
		if found && m.DistanceFromStart-in.Match.Progress <= s.triggerDistance(m, in.PendingWaypoints) {
			s.state = Approaching{Maneuver: m}
		} else if !suppressed && s.straightPending {
			s.straightPending = false
			remaining := s.route.Length() - in.Match.Progress
			if found {
				remaining = m.DistanceFromStart - in.Match.Progress
			}
			if remaining >= s.config.StraightPromptMinDistanceMeters {
				return Event{
					Kind:                    KindStraight,
					DistanceRemainingMeters: remaining,
					Timestamp:               in.Time,
					ManeuverIndex:           -1,
					WaypointIndex:           -1,
				}, true
			}
		}
	}

	ap, ok := s.state.(Approaching)
	if !ok {
		return Event{}, false
	}
	m := ap.Maneuver
	if in.Match.SegmentIndex >= m.PositionIndex {
		logging.Debugw(logging.EnsureLogger(ctx), "prompt: maneuver passed before it could be announced",
			"maneuver.index", m.PositionIndex, "maneuver.kind", string(m.Kind))
		s.handled = m.PositionIndex
		s.state = Idle{}
		return Event{}, false
	}
	if suppressed {
		return Event{}, false
	}

	s.handled = m.PositionIndex
	s.state = Announced{Maneuver: m, At: in.Time}
	return Event{
		Kind:                    KindFor(m.Kind),
		DistanceRemainingMeters: math.Max(0, m.DistanceFromStart-in.Match.Progress),
		Timestamp:               in.Time,
		ManeuverIndex:           m.PositionIndex,
		WaypointIndex:           -1,
	}, true
}

// stepHeading finds the first route vertex ahead whose outgoing segment leaves the
// smoothed heading by at least the turn threshold and announces it once that vertex
// is within the trigger distance in a straight line. A direction that was
// announced is not announced again until the heading has realigned with it.
func (s *Scheduler) stepHeading(in Input) (Event, bool) {
	if _, ok := s.state.(Idle); !ok || !in.HeadingValid {
		return Event{}, false
	}

	if s.headingAnnounced && math.Abs(geo.AngleDelta(in.Heading, s.headingBearing)) < s.config.TurnAngleThresholdDegrees {
		s.headingAnnounced = false
	}

	// Hairpins bring vertices within reach in a straight line before they are within
	// reach along the route.
	reach := 2 * math.Max(s.config.TurnPromptDistanceMeters,
		math.Max(s.config.UturnPromptDistanceMeters, s.config.WaypointUturnTriggerMeters))

	for v := in.Match.SegmentIndex + 1; v < s.route.LastIndex(); v++ {
		if s.route.DistanceAt(v)-in.Match.Progress > reach {
			break
		}
		if v <= s.headingTarget {
			continue
		}

		outgoing := geo.Bearing(s.route.Points[v], s.route.Points[v+1])
		if s.headingAnnounced && math.Abs(geo.AngleDelta(s.headingBearing, outgoing)) < s.config.TurnAngleThresholdDegrees {
			continue
		}
		deviation := geo.AngleDelta(in.Heading, outgoing)
		kind := maneuver.Classify(deviation, s.config.TurnAngleThresholdDegrees, s.config.UturnAngleThresholdDegrees)
		if kind == maneuver.Straight {
			continue
		}

		m := maneuver.Maneuver{
			PositionIndex:     v,
			AngleDegrees:      deviation,
			Kind:              kind,
			DistanceFromStart: s.route.DistanceAt(v),
		}
		remaining := geo.Distance(in.Position, s.route.Points[v])
		if remaining > s.triggerDistance(m, in.PendingWaypoints) {
			// Only the nearest change of direction is a candidate.
			return Event{}, false
		}

		s.headingTarget = v
		s.headingBearing = outgoing
		s.headingAnnounced = true
		s.state = Announced{Maneuver: m, At: in.Time}
		return Event{
			Kind:                    KindFor(kind),
			DistanceRemainingMeters: remaining,
			Timestamp:               in.Time,
			ManeuverIndex:           v,
			WaypointIndex:           -1,
		}, true
	}
	return Event{}, false
}

// next returns the first maneuver beyond both the matched segment and the last
// handled maneuver.
func (s *Scheduler) next(segment int) (maneuver.Maneuver, bool) {
	after := segment
	if s.handled > after {
		after = s.handled
	}
	return s.source.Next(after)
}

// triggerDistance returns how close a maneuver must be before it is announced.
func (s *Scheduler) triggerDistance(m maneuver.Maneuver, pending []routing.Waypoint) float64 {
	if m.Kind != maneuver.UTurn {
		return s.config.TurnPromptDistanceMeters
	}
	for _, wp := range pending {
		gap := math.Abs(s.route.DistanceAt(wp.RouteIndex) - m.DistanceFromStart)
		if gap <= s.config.UturnPromptDistanceMeters {
			return s.config.WaypointUturnTriggerMeters
		}
	}
	return s.config.UturnPromptDistanceMeters
}
