package navigation

import (
	"context"
	"sync"
	"time"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/turnbyturn/internal/cache"
	"github.com/dpup/turnbyturn/internal/config"
	"github.com/dpup/turnbyturn/internal/lib/heading"
	"github.com/dpup/turnbyturn/internal/lib/maneuver"
	"github.com/dpup/turnbyturn/internal/lib/prompt"
	"github.com/dpup/turnbyturn/internal/lib/routing"
)

// Navigator owns the active navigation session. Accepting a route builds a complete
// session before swapping it in, so every fix is processed against a single route
// snapshot. Navigator is safe for concurrent use.
type Navigator struct {
	config   config.Navigation
	detector *maneuver.Detector
	cache    *cache.ManeuverCache
	metrics  *metrics

	mu      sync.Mutex
	session *Session
}

// Option configures a Navigator
type Option func(*Navigator)

// WithManeuverCache serves precomputed maneuvers from c.
func WithManeuverCache(c *cache.ManeuverCache) Option {
	return func(n *Navigator) { n.cache = c }
}

// New validates cfg and creates a Navigator with no route loaded.
func New(cfg config.Navigation, opts ...Option) (*Navigator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m, err := newMetrics()
	if err != nil {
		return nil, err
	}

	n := &Navigator{
		config: cfg,
		detector: maneuver.NewDetector(maneuver.Config{
			ShapeToleranceMeters:       cfg.ShapeToleranceMeters,
			TurnClusterMinMeters:       cfg.TurnClusterMinMeters,
			MinSegmentLengthMeters:     cfg.MinSegmentLengthMeters,
			TurnAngleThresholdDegrees:  cfg.TurnAngleThresholdDegrees,
			UturnAngleThresholdDegrees: cfg.UturnAngleThresholdDegrees,
			TurnMergeMinGapMeters:      cfg.TurnMergeMinGapMeters,
			PathLookaheadMeters:        cfg.PathLookaheadMeters,
		}),
		metrics: m,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// AcceptRoute validates plan and replaces the current session with a new one,
// returning the new session id. On error the current session is left untouched.
func (n *Navigator) AcceptRoute(ctx context.Context, plan RoutePlan) (string, error) {
	ctx = logging.EnsureLogger(ctx)
	route, err := n.buildRoute(plan)
	if err != nil {
		logging.Warnw(ctx, "navigation: route rejected", "route.id", plan.ID, "error", err)
		return "", err
	}

	session := newSession(n.config, route, n.maneuverSource(ctx, route), n.metrics)

	n.mu.Lock()
	previous := n.session
	n.session = session
	n.mu.Unlock()

	if previous != nil {
		logging.Infow(ctx, "navigation: session replaced", "session.id", previous.ID, "replacement", session.ID)
	}
	logging.Infow(ctx, "navigation: route accepted", "session.id", session.ID, "route.id", route.ID,
		"points", route.Len(), "waypoints", len(route.Waypoints), "length_meters", route.Length())
	return session.ID, nil
}

func (n *Navigator) buildRoute(plan RoutePlan) (*routing.Route, error) {
	if len(plan.Points) == 0 && plan.EncodedPolyline != "" {
		return routing.NewRouteFromPolyline(plan.ID, plan.EncodedPolyline, plan.Waypoints)
	}
	return routing.NewRoute(plan.ID, plan.Points, plan.Waypoints)
}

// maneuverSource picks the maneuver strategy for a new session. Path-based detection
// wins when both are enabled.
func (n *Navigator) maneuverSource(ctx context.Context, route *routing.Route) maneuver.Source {
	switch {
	case n.config.UsePathBasedPrompts:
		return maneuver.NewPathBased(route, n.detector, n.config.PathLookaheadMeters)
	case n.cache != nil:
		return n.cache.Precomputed(ctx, route, n.detector)
	default:
		return maneuver.NewPrecomputed(route, n.detector)
	}
}

// ProcessFix runs one raw fix through the active session. Without a route the fix is
// a no-op reported as StatusNoRoute.
func (n *Navigator) ProcessFix(ctx context.Context, fix Fix) Update {
	ctx = logging.EnsureLogger(ctx)
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.session == nil {
		n.metrics.fix(ctx, StatusNoRoute)
		return Update{Status: StatusNoRoute, Reason: ErrNoRouteLoaded}
	}
	return n.session.processFix(ctx, fix)
}

// ProcessHeading feeds a heading sample to the active session's smoother and returns
// the new map rotation when one starts.
func (n *Navigator) ProcessHeading(ctx context.Context, sample HeadingSample) (heading.Rotation, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.session == nil {
		return heading.Rotation{}, false
	}
	return n.session.processHeading(sample)
}

// SessionID returns the id of the active session, if any.
func (n *Navigator) SessionID() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.session == nil {
		return "", false
	}
	return n.session.ID, true
}

// Route returns the active route, if any.
func (n *Navigator) Route() (*routing.Route, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.session == nil {
		return nil, false
	}
	return n.session.Route(), true
}

// State returns the prompt state of the active session, if any.
func (n *Navigator) State() (prompt.State, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.session == nil {
		return nil, false
	}
	return n.session.State(), true
}

// LastEvent returns the most recent prompt of the active session.
func (n *Navigator) LastEvent() (prompt.Event, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.session == nil {
		return prompt.Event{}, false
	}
	return n.session.LastEvent()
}

// RotationAt returns the map rotation at t; north up without a session.
func (n *Navigator) RotationAt(t time.Time) float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.session == nil {
		return 0
	}
	return n.session.RotationAt(t)
}

// Maneuvers returns every maneuver detected on the active route.
func (n *Navigator) Maneuvers() []maneuver.Maneuver {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.session == nil {
		return nil
	}
	return n.detector.Detect(n.session.route, 0, n.session.route.LastIndex())
}

// End discards the active session. Later fixes are no-ops until a new route is
// accepted.
func (n *Navigator) End(ctx context.Context) {
	ctx = logging.EnsureLogger(ctx)
	n.mu.Lock()
	session := n.session
	n.session = nil
	n.mu.Unlock()

	if session != nil {
		logging.Infow(ctx, "navigation: session ended", "session.id", session.ID)
	}
}
