package navigation

import (
	"context"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/google/uuid"

	"github.com/dpup/turnbyturn/internal/config"
	"github.com/dpup/turnbyturn/internal/lib/arrival"
	"github.com/dpup/turnbyturn/internal/lib/geo"
	"github.com/dpup/turnbyturn/internal/lib/gpsfilter"
	"github.com/dpup/turnbyturn/internal/lib/heading"
	"github.com/dpup/turnbyturn/internal/lib/maneuver"
	"github.com/dpup/turnbyturn/internal/lib/prompt"
	"github.com/dpup/turnbyturn/internal/lib/routing"
)

// Session holds the guidance state for one accepted route. A session is fed one
// fix at a time by its Navigator and is discarded when the route is replaced or
// guidance ends.
type Session struct {
	ID string

	config    config.Navigation
	route     *routing.Route
	filter    *gpsfilter.Filter
	matcher   *routing.Matcher
	source    maneuver.Source
	scheduler *prompt.Scheduler
	arrival   *arrival.Detector
	heading   *heading.Smoother
	metrics   *metrics

	offRoute  bool
	lastEvent *prompt.Event
}

func newSession(cfg config.Navigation, route *routing.Route, source maneuver.Source, m *metrics) *Session {
	return &Session{
		ID:     uuid.NewString(),
		config: cfg,
		route:  route,
		filter: gpsfilter.New(gpsfilter.Config{
			Enabled:               cfg.GPSFilterEnabled,
			HistorySize:           cfg.GPSHistorySize,
			MaxJumpMeters:         cfg.GPSMaxJumpMeters,
			MaxConsecutiveRejects: cfg.GPSMaxConsecutiveRejects,
		}),
		matcher: routing.NewMatcher(route, routing.MatcherConfig{
			RequireStartAtOrigin:      cfg.RequireStartAtOrigin,
			StartRebaseDistanceMeters: cfg.StartRebaseDistanceMeters,
			SnapToRouteDistanceMeters: cfg.SnapToRouteDistanceMeters,
			LookaheadMeters:           cfg.MatchLookaheadMeters,
		}),
		source: source,
		scheduler: prompt.NewScheduler(prompt.Config{
			Mode:                            prompt.Mode(cfg.PromptMode),
			TurnPromptDistanceMeters:        cfg.TurnPromptDistanceMeters,
			UturnPromptDistanceMeters:       cfg.UturnPromptDistanceMeters,
			WaypointUturnTriggerMeters:      cfg.WaypointUturnTriggerMeters,
			PostTurnNextPromptMinTime:       cfg.PostTurnNextPromptMinTime,
			StraightPromptMinDistanceMeters: cfg.StraightPromptMinDistanceMeters,
			TurnAngleThresholdDegrees:       cfg.TurnAngleThresholdDegrees,
			UturnAngleThresholdDegrees:      cfg.UturnAngleThresholdDegrees,
		}, route, source),
		arrival: arrival.New(arrival.Config{
			WaypointArrivalDistanceMeters: cfg.WaypointArrivalDistanceMeters,
			EndArrivalDistanceMeters:      cfg.EndArrivalDistanceMeters,
			EndArrivalIndexWindow:         cfg.EndArrivalIndexWindow,
			EndArrivalTailMeters:          cfg.EndArrivalTailMeters,
		}, route),
		heading: heading.NewSmoother(heading.Config{
			HeadingUpMode:     cfg.HeadingUpMode,
			UpdateInterval:    cfg.MapRotationUpdateInterval,
			AnimationDuration: cfg.MapRotationDuration,
		}),
		metrics: m,
	}
}

// Route returns the route being followed.
func (s *Session) Route() *routing.Route { return s.route }

// LastEvent returns the most recent emitted prompt.
func (s *Session) LastEvent() (prompt.Event, bool) {
	if s.lastEvent == nil {
		return prompt.Event{}, false
	}
	return *s.lastEvent, true
}

// State returns the prompt scheduler state.
func (s *Session) State() prompt.State { return s.scheduler.State() }

// RotationAt returns the map rotation at t.
func (s *Session) RotationAt(t time.Time) float64 { return s.heading.RotationAt(t) }

func (s *Session) processFix(ctx context.Context, fix Fix) Update {
	position := geo.ToMapped(fix.Point)
	update := Update{SessionID: s.ID, Position: position}

	if reason := s.screen(position, fix); reason != "" {
		logging.Debugw(ctx, "navigation: fix rejected", "session.id", s.ID, "reason", reason,
			"lat", position.Latitude, "lng", position.Longitude)
		update.Status = StatusRejected
		update.Reason = ErrInputRejected
		update.Match = s.matcher.Last()
		s.metrics.fix(ctx, update.Status)
		return update
	}

	match := s.matcher.Match(position)
	update.Match = match

	switch {
	case !match.Started:
		update.Status = StatusNotStarted
	case !match.OnRoute:
		update.Status = StatusOffRoute
		update.Reason = ErrOffRoute
		if !s.offRoute {
			logging.Warnw(ctx, "navigation: off route", "session.id", s.ID,
				"lateral_offset_meters", match.LateralOffset, "progress_meters", match.Progress)
		}
		s.offRoute = true
	default:
		update.Status = StatusOnRoute
		if s.offRoute {
			logging.Infow(ctx, "navigation: back on route", "session.id", s.ID,
				"progress_meters", match.Progress)
		}
		s.offRoute = false
	}

	reached := s.arrival.Check(match, position)
	for _, i := range reached.Waypoints {
		wp := s.route.Waypoints[i]
		update.Events = append(update.Events, prompt.Event{
			Kind:                    prompt.KindWaypointReached,
			DistanceRemainingMeters: geo.Distance(position, wp.Point),
			Timestamp:               fix.Time,
			ManeuverIndex:           -1,
			WaypointIndex:           i,
		})
	}

	if reached.Arrived {
		s.scheduler.Arrive()
		update.Events = append(update.Events, prompt.Event{
			Kind:                    prompt.KindArrived,
			DistanceRemainingMeters: geo.Distance(position, s.route.Destination()),
			Timestamp:               fix.Time,
			ManeuverIndex:           -1,
			WaypointIndex:           -1,
		})
	} else {
		in := prompt.Input{
			Match:            match,
			Position:         position,
			Time:             fix.Time,
			PendingWaypoints: s.arrival.Pending(),
		}
		in.Heading, in.HeadingValid = s.heading.Heading()
		if ev, ok := s.scheduler.Step(ctx, in); ok {
			update.Events = append(update.Events, ev)
		}
	}

	if s.arrival.Arrived() {
		update.Status = StatusArrived
	}

	for i := range update.Events {
		ev := update.Events[i]
		logging.Infow(ctx, "navigation: prompt", "session.id", s.ID, "kind", string(ev.Kind),
			"distance_remaining_meters", ev.DistanceRemainingMeters,
			"maneuver.index", ev.ManeuverIndex, "waypoint.index", ev.WaypointIndex)
		s.metrics.prompt(ctx, ev.Kind)
		s.lastEvent = &ev
	}
	s.metrics.fix(ctx, update.Status)
	return update
}

// screen returns why a fix is rejected before matching, or "" to accept it.
func (s *Session) screen(position geo.Point, fix Fix) string {
	if !geo.IsValid(position) {
		return "invalid-coordinates"
	}
	if s.config.GPSMaxAccuracyMeters > 0 && fix.Accuracy != nil && *fix.Accuracy > s.config.GPSMaxAccuracyMeters {
		return "poor-accuracy"
	}
	if result := s.filter.Check(position); result == gpsfilter.RejectedOutlier {
		return result.String()
	}
	return ""
}

func (s *Session) processHeading(sample HeadingSample) (heading.Rotation, bool) {
	return s.heading.Update(heading.Sample{
		Degrees: sample.Degrees,
		Valid:   sample.Valid,
		Time:    sample.Time,
	})
}
