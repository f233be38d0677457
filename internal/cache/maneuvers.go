package cache

import (
	"context"
	"time"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/turnbyturn/internal/lib/maneuver"
	"github.com/dpup/turnbyturn/internal/lib/routing"
)

const maneuverSource = "maneuver_detector"

// ManeuverCache keeps precomputed maneuver lists keyed by route geometry, so accepting
// the same route again skips detection. A cache must only be shared between sessions
// using the same detector thresholds.
type ManeuverCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewManeuverCache creates a ManeuverCache whose entries live for ttl.
func NewManeuverCache(c *Cache, ttl time.Duration) *ManeuverCache {
	return &ManeuverCache{cache: c, ttl: ttl}
}

func maneuverKey(route *routing.Route) string {
	return "maneuvers:" + route.Fingerprint()
}

// Get returns the cached maneuvers for route, if fresh.
func (m *ManeuverCache) Get(route *routing.Route) ([]maneuver.Maneuver, bool, error) {
	var maneuvers []maneuver.Maneuver
	found, err := m.cache.Get(maneuverKey(route), &maneuvers)
	if err != nil || !found {
		return nil, false, err
	}
	return maneuvers, true, nil
}

// Set stores the maneuvers detected for route.
func (m *ManeuverCache) Set(route *routing.Route, maneuvers []maneuver.Maneuver) error {
	return m.cache.Set(maneuverKey(route), maneuvers, m.ttl, maneuverSource)
}

// Precomputed returns a precomputed source for route, detecting and caching the
// maneuvers on a miss. Cache failures fall back to detection.
func (m *ManeuverCache) Precomputed(ctx context.Context, route *routing.Route, detector *maneuver.Detector) *maneuver.Precomputed {
	ctx = logging.EnsureLogger(ctx)
	cached, found, err := m.Get(route)
	if err != nil {
		logging.Warnw(ctx, "Maneuver cache: read failed", "route.id", route.ID, "error", err)
	}
	if found {
		logging.Debugw(ctx, "Maneuver cache: hit", "route.id", route.ID, "maneuvers", len(cached))
		return maneuver.NewPrecomputedFrom(cached)
	}

	src := maneuver.NewPrecomputed(route, detector)
	if err := m.Set(route, src.All()); err != nil {
		logging.Warnw(ctx, "Maneuver cache: write failed", "route.id", route.ID, "error", err)
	}
	return src
}
