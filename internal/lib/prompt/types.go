package prompt

import (
	"time"

	"github.com/dpup/turnbyturn/internal/lib/geo"
	"github.com/dpup/turnbyturn/internal/lib/maneuver"
	"github.com/dpup/turnbyturn/internal/lib/routing"
)

// EventKind is the kind of a prompt event
type EventKind string

const (
	KindTurnLeft        EventKind = "turn-left"
	KindTurnRight       EventKind = "turn-right"
	KindUTurn           EventKind = "uturn"
	KindStraight        EventKind = "straight"
	KindWaypointReached EventKind = "waypoint-reached"
	KindArrived         EventKind = "arrived"
)

// KindFor maps a maneuver kind onto the prompt announcing it.
func KindFor(k maneuver.Kind) EventKind {
	switch k {
	case maneuver.Left:
		return KindTurnLeft
	case maneuver.Right:
		return KindTurnRight
	case maneuver.UTurn:
		return KindUTurn
	default:
		return KindStraight
	}
}

// Event is a prompt emitted to the driver.
type Event struct {
	Kind                    EventKind `json:"kind"`
	DistanceRemainingMeters float64   `json:"distance_remaining_meters"`
	Timestamp               time.Time `json:"timestamp"`
	// ManeuverIndex is the route vertex of the announced maneuver, or -1.
	ManeuverIndex int `json:"maneuver_index"`
	// WaypointIndex is the position of the reached waypoint in the route's waypoint
	// list, or -1.
	WaypointIndex int `json:"waypoint_index"`
}

// Mode selects how maneuver prompts are triggered
type Mode string

const (
	// ModePath triggers prompts from matched progress along the route.
	ModePath Mode = "path"
	// ModeHeading triggers prompts from the smoothed heading against the bearing of the
	// route segment leaving each upcoming vertex.
	ModeHeading Mode = "heading"
)

// Config holds scheduler thresholds.
type Config struct {
	Mode                            Mode
	TurnPromptDistanceMeters        float64
	UturnPromptDistanceMeters       float64
	WaypointUturnTriggerMeters      float64
	PostTurnNextPromptMinTime       time.Duration
	StraightPromptMinDistanceMeters float64

	// Heading mode classification thresholds.
	TurnAngleThresholdDegrees  float64
	UturnAngleThresholdDegrees float64
}

// State is the scheduler state. The concrete types are Idle, Approaching, Announced
// and Arrived.
type State interface {
	isState()
}

type Idle struct{}

type Approaching struct {
	Maneuver maneuver.Maneuver
}

type Announced struct {
	Maneuver maneuver.Maneuver
	At       time.Time
}

// Arrived is the terminal state entered at the destination.
type Arrived struct{}

func (Idle) isState()        {}
func (Approaching) isState() {}
func (Announced) isState()   {}
func (Arrived) isState()     {}

// Input is everything the scheduler needs from one processed fix.
type Input struct {
	Match routing.MatchResult
	// Position is the filtered fix in the mapped frame.
	Position geo.Point
	Time     time.Time

	// Heading is the smoothed heading, used in heading mode.
	Heading      float64
	HeadingValid bool

	// PendingWaypoints are the waypoints not yet reached.
	PendingWaypoints []routing.Waypoint
}
