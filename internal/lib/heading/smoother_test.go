package heading

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func ms(n int) time.Time { return t0.Add(time.Duration(n) * time.Millisecond) }

func testConfig() Config {
	return Config{
		HeadingUpMode:     true,
		UpdateInterval:    500 * time.Millisecond,
		AnimationDuration: 300 * time.Millisecond,
	}
}

func TestSmoother_ShortestPathAcrossNorth(t *testing.T) {
	s := NewSmoother(testConfig())

	rot, ok := s.Update(Sample{Degrees: 350, Valid: true, Time: t0})
	require.True(t, ok)
	assert.InDelta(t, -10, rot.To-rot.From, 1e-9)
	assert.InDelta(t, 355, s.RotationAt(ms(150)), 1e-9)
	assert.InDelta(t, 350, s.RotationAt(ms(300)), 1e-9)
	assert.InDelta(t, 350, s.RotationAt(ms(400)), 1e-9)

	rot, ok = s.Update(Sample{Degrees: 10, Valid: true, Time: ms(500)})
	require.True(t, ok)
	assert.InDelta(t, 20, rot.To-rot.From, 1e-9, "turns through north, not around")
	assert.InDelta(t, 0, s.RotationAt(ms(650)), 1e-9)
	assert.InDelta(t, 10, s.RotationAt(ms(800)), 1e-9)
}

func TestSmoother_RateLimited(t *testing.T) {
	s := NewSmoother(testConfig())

	_, ok := s.Update(Sample{Degrees: 90, Valid: true, Time: t0})
	require.True(t, ok)

	_, ok = s.Update(Sample{Degrees: 180, Valid: true, Time: ms(200)})
	assert.False(t, ok, "inside the update interval")
	assert.InDelta(t, 90, s.RotationAt(ms(499)), 1e-9)

	h, _ := s.Heading()
	assert.Equal(t, 90.0, h)

	_, ok = s.Update(Sample{Degrees: 180, Valid: true, Time: ms(500)})
	assert.True(t, ok)
}

func TestSmoother_RetargetsMidAnimation(t *testing.T) {
	cfg := testConfig()
	cfg.AnimationDuration = time.Second
	s := NewSmoother(cfg)

	_, ok := s.Update(Sample{Degrees: 90, Valid: true, Time: t0})
	require.True(t, ok)

	rot, ok := s.Update(Sample{Degrees: 180, Valid: true, Time: ms(500)})
	require.True(t, ok)
	assert.InDelta(t, 45, rot.From, 1e-9, "starts from the current animated angle")
	assert.InDelta(t, 180, rot.To, 1e-9)
}

func TestSmoother_IgnoresInvalidSamples(t *testing.T) {
	s := NewSmoother(testConfig())

	_, ok := s.Update(Sample{Degrees: 90, Valid: true, Time: t0})
	require.True(t, ok)

	_, ok = s.Update(Sample{Degrees: 270, Valid: false, Time: ms(1000)})
	assert.False(t, ok)
	_, ok = s.Update(Sample{Degrees: math.NaN(), Valid: true, Time: ms(1000)})
	assert.False(t, ok)
	_, ok = s.Update(Sample{Degrees: math.Inf(1), Valid: true, Time: ms(1000)})
	assert.False(t, ok)

	assert.InDelta(t, 90, s.RotationAt(ms(2000)), 1e-9, "last rotation unchanged")

	_, ok = s.Update(Sample{Degrees: 100, Valid: true, Time: ms(1000)})
	assert.True(t, ok, "invalid samples do not consume the update interval")
}

func TestSmoother_NorthUpStillTracksHeading(t *testing.T) {
	cfg := testConfig()
	cfg.HeadingUpMode = false
	s := NewSmoother(cfg)

	_, ok := s.Heading()
	assert.False(t, ok)

	_, ok = s.Update(Sample{Degrees: -45, Valid: true, Time: t0})
	assert.False(t, ok, "no rotation in north-up mode")
	assert.Equal(t, 0.0, s.RotationAt(ms(1000)))

	h, ok := s.Heading()
	require.True(t, ok)
	assert.InDelta(t, 315, h, 1e-9)
}

func TestRotation_At(t *testing.T) {
	r := Rotation{From: 350, To: 370, Start: t0, Duration: 200 * time.Millisecond}

	assert.InDelta(t, 350, r.At(ms(-100)), 1e-9)
	assert.InDelta(t, 0, r.At(ms(100)), 1e-9)
	assert.InDelta(t, 10, r.At(ms(500)), 1e-9)

	instant := Rotation{From: 0, To: 45}
	assert.InDelta(t, 45, instant.At(t0), 1e-9)
}
