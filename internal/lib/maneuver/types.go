package maneuver

// Kind classifies a direction change
type Kind string

const (
	Left     Kind = "left"
	Right    Kind = "right"
	UTurn    Kind = "uturn"
	Straight Kind = "straight"
)

// Maneuver is a classified direction change at a route vertex
type Maneuver struct {
	// PositionIndex is the route vertex where the turn happens.
	PositionIndex int `json:"position_index"`
	// AngleDegrees is the signed turn angle; positive turns right.
	AngleDegrees      float64 `json:"angle_degrees"`
	Kind              Kind    `json:"kind"`
	DistanceFromStart float64 `json:"distance_from_start_meters"`
}

// Config holds the geometric thresholds used to find and classify maneuvers
type Config struct {
	// ShapeToleranceMeters is the simplification tolerance used to find the vertices
	// that carry shape.
	ShapeToleranceMeters float64
	// TurnClusterMinMeters merges shape vertices closer than this into one turn.
	TurnClusterMinMeters float64
	// MinSegmentLengthMeters discards turns whose incoming or outgoing leg is shorter.
	MinSegmentLengthMeters     float64
	TurnAngleThresholdDegrees  float64
	UturnAngleThresholdDegrees float64
	// TurnMergeMinGapMeters merges maneuvers closer than this along the route.
	TurnMergeMinGapMeters float64
	// PathLookaheadMeters bounds the tail examined by the path-based source.
	PathLookaheadMeters float64
}

// Source supplies upcoming maneuvers to the prompt scheduler.
type Source interface {
	// Next returns the first maneuver whose position index is greater than after.
	Next(after int) (Maneuver, bool)
}
