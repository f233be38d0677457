package navigation

import (
	"time"

	"github.com/dpup/prefab/errors"
	"google.golang.org/grpc/codes"

	"github.com/dpup/turnbyturn/internal/lib/geo"
	"github.com/dpup/turnbyturn/internal/lib/prompt"
	"github.com/dpup/turnbyturn/internal/lib/routing"
)

// Recoverable conditions reported through Update.Reason. None of them end a session.
var (
	ErrInputRejected = errors.NewC("gps fix rejected", codes.OutOfRange)
	ErrOffRoute      = errors.NewC("vehicle is off route", codes.FailedPrecondition)
	ErrNoRouteLoaded = errors.NewC("no route loaded", codes.FailedPrecondition)
)

// Fix is a raw GPS sample in the satellite frame.
type Fix struct {
	Point geo.RawPoint `json:"point" yaml:"point"`
	Time  time.Time    `json:"time" yaml:"time"`
	// Accuracy is the reported horizontal accuracy in meters, when known.
	Accuracy *float64 `json:"accuracy,omitempty" yaml:"accuracy,omitempty"`
}

// HeadingSample is a raw device heading.
type HeadingSample struct {
	Degrees float64   `json:"degrees" yaml:"degrees"`
	Valid   bool      `json:"valid" yaml:"valid"`
	Time    time.Time `json:"time" yaml:"time"`
}

// RoutePlan is a planned route in the mapped frame. Either Points or EncodedPolyline
// must be set.
type RoutePlan struct {
	ID              string             `json:"id" yaml:"id"`
	Points          []geo.Point        `json:"points,omitempty" yaml:"points,omitempty"`
	EncodedPolyline string             `json:"encoded_polyline,omitempty" yaml:"encoded_polyline,omitempty"`
	Waypoints       []routing.Waypoint `json:"waypoints,omitempty" yaml:"waypoints,omitempty"`
}

// Status summarizes how a fix was handled
type Status string

const (
	StatusOnRoute    Status = "on-route"
	StatusOffRoute   Status = "off-route"
	StatusNotStarted Status = "not-started"
	StatusRejected   Status = "rejected"
	StatusNoRoute    Status = "no-route"
	StatusArrived    Status = "arrived"
)

// Update is the outcome of processing one fix.
type Update struct {
	SessionID string `json:"session_id,omitempty"`
	Status    Status `json:"status"`
	// Reason explains a degraded status; nil when on route.
	Reason   error               `json:"-"`
	Match    routing.MatchResult `json:"match"`
	Position geo.Point           `json:"position"`
	Events   []prompt.Event      `json:"events,omitempty"`
}
