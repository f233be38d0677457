package heading

import (
	"math"
	"time"

	"github.com/dpup/turnbyturn/internal/lib/geo"
)

// Config controls map rotation smoothing.
type Config struct {
	// HeadingUpMode rotates the map with the heading. When off the map stays north
	// up, but headings are still tracked.
	HeadingUpMode bool
	// UpdateInterval is the minimum time between accepted samples.
	UpdateInterval time.Duration
	// AnimationDuration is how long a rotation takes to reach its target.
	AnimationDuration time.Duration
}

// Sample is a raw heading reading.
type Sample struct {
	Degrees float64
	// Valid is false when no bearing could be computed, for example while stationary.
	Valid bool
	Time  time.Time
}

// Rotation animates the map from one angle to another. Angles are unwrapped so that
// To-From is always the shortest turn.
type Rotation struct {
	From     float64       `json:"from_degrees"`
	To       float64       `json:"to_degrees"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
}

// At returns the rotation angle at t, normalized to [0, 360).
func (r Rotation) At(t time.Time) float64 {
	return geo.NormalizeDegrees(r.unwrappedAt(t))
}

func (r Rotation) unwrappedAt(t time.Time) float64 {
	if r.Duration <= 0 {
		return r.To
	}
	f := math.Max(0, math.Min(1, float64(t.Sub(r.Start))/float64(r.Duration)))
	return r.From + f*(r.To-r.From)
}

// Smoother rate limits heading samples and animates toward each accepted one.
type Smoother struct {
	config Config

	rotation     Rotation
	heading      float64
	lastAccepted time.Time
	hasHeading   bool
}

// NewSmoother creates a Smoother with the map north up.
func NewSmoother(cfg Config) *Smoother {
	return &Smoother{config: cfg}
}

// Update offers a sample. It returns the new rotation when the sample is accepted and
// heading-up mode is on.
func (s *Smoother) Update(sample Sample) (Rotation, bool) {
	if !sample.Valid || math.IsNaN(sample.Degrees) || math.IsInf(sample.Degrees, 0) {
		return Rotation{}, false
	}
	if s.hasHeading && sample.Time.Sub(s.lastAccepted) < s.config.UpdateInterval {
		return Rotation{}, false
	}

	target := geo.NormalizeDegrees(sample.Degrees)
	s.heading = target
	s.lastAccepted = sample.Time
	s.hasHeading = true

	if !s.config.HeadingUpMode {
		return Rotation{}, false
	}

	current := s.rotation.unwrappedAt(sample.Time)
	s.rotation = Rotation{
		From:     current,
		To:       current + geo.AngleDelta(geo.NormalizeDegrees(current), target),
		Start:    sample.Time,
		Duration: s.config.AnimationDuration,
	}
	return s.rotation, true
}

// RotationAt returns the map rotation at t. It is always zero with heading-up mode
// off.
func (s *Smoother) RotationAt(t time.Time) float64 {
	if !s.config.HeadingUpMode {
		return 0
	}
	return s.rotation.At(t)
}

// Heading returns the last accepted heading.
func (s *Smoother) Heading() (float64, bool) {
	return s.heading, s.hasHeading
}
