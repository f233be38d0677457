package routing

import (
	"github.com/dpup/prefab/errors"
	"google.golang.org/grpc/codes"

	"github.com/dpup/turnbyturn/internal/lib/geo"
)

var (
	// ErrInvalidRoute is returned when a polyline cannot be used for guidance.
	ErrInvalidRoute = errors.NewC("route must have at least 2 points", codes.InvalidArgument)

	// ErrInvalidWaypoint is returned when a waypoint does not reference a route vertex.
	ErrInvalidWaypoint = errors.NewC("waypoint route index outside of polyline", codes.InvalidArgument)
)

// Waypoint is an intermediate stop the route passes through
type Waypoint struct {
	Point      geo.Point `json:"point" yaml:"point"`
	RouteIndex int       `json:"route_index" yaml:"route_index"`
}

// MatcherConfig controls how fixes are projected onto a route
type MatcherConfig struct {
	// RequireStartAtOrigin keeps the matcher inactive until a fix comes within
	// StartRebaseDistanceMeters of the first route vertex.
	RequireStartAtOrigin      bool
	StartRebaseDistanceMeters float64
	// SnapToRouteDistanceMeters is the largest lateral offset still considered on route.
	SnapToRouteDistanceMeters float64
	// LookaheadMeters bounds how far past current progress the search window reaches
	// while on route.
	LookaheadMeters float64
}

// MatchResult is the projection of a single fix onto the route
type MatchResult struct {
	// SegmentIndex is the index of the first vertex of the matched segment.
	SegmentIndex int `json:"segment_index"`
	// MatchedIndex is the vertex nearest the projection point.
	MatchedIndex int `json:"matched_index"`
	// Progress is the distance in meters from the route start to the projection.
	Progress float64 `json:"progress_meters"`
	// LateralOffset is the distance in meters between the fix and the route.
	LateralOffset float64   `json:"lateral_offset_meters"`
	Projected     geo.Point `json:"projected"`
	OnRoute       bool      `json:"on_route"`
	// Started is false while the matcher waits for the vehicle to reach the origin.
	Started bool `json:"started"`
}
