package gpsfilter

import (
	"github.com/dpup/turnbyturn/internal/lib/geo"
)

const (
	defaultHistorySize  = 5
	defaultMaxJumpMeter = 50.0
)

// Config controls outlier rejection.
type Config struct {
	Enabled bool
	// HistorySize is the number of accepted fixes kept for jump comparison.
	HistorySize int
	// MaxJumpMeters is the largest distance allowed between a fix and the newest
	// accepted fix.
	MaxJumpMeters float64
	// MaxConsecutiveRejects clears the history after that many rejections in a row so a
	// genuine relocation re-bootstraps the filter. Zero disables the reset.
	MaxConsecutiveRejects int
}

// Result describes the outcome of Accept.
type Result int

const (
	Accepted Result = iota
	Bootstrapped
	RejectedOutlier
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Bootstrapped:
		return "bootstrapped"
	case RejectedOutlier:
		return "rejected-outlier"
	}
	return "unknown"
}

// Filter rejects fixes that jump implausibly far from the recent accepted history.
// It is not safe for concurrent use; a navigation session feeds it one fix at a time.
type Filter struct {
	config  Config
	history []geo.Point
	rejects int
}

// New creates a Filter, falling back to defaults for unset sizes.
func New(cfg Config) *Filter {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if cfg.MaxJumpMeters <= 0 {
		cfg.MaxJumpMeters = defaultMaxJumpMeter
	}
	return &Filter{
		config:  cfg,
		history: make([]geo.Point, 0, cfg.HistorySize),
	}
}

// Accept reports whether p should be fed to route matching.
func (f *Filter) Accept(p geo.Point) bool {
	return f.Check(p) != RejectedOutlier
}

// Check runs the filter and reports why a fix was accepted or rejected.
func (f *Filter) Check(p geo.Point) Result {
	if !f.config.Enabled {
		f.record(p)
		return Accepted
	}

	if len(f.history) == 0 {
		f.record(p)
		return Bootstrapped
	}

	last := f.history[len(f.history)-1]
	if geo.Distance(last, p) > f.config.MaxJumpMeters {
		f.rejects++
		if f.config.MaxConsecutiveRejects > 0 && f.rejects >= f.config.MaxConsecutiveRejects {
			// Next fix starts a fresh history.
			f.Reset()
		}
		return RejectedOutlier
	}

	f.record(p)
	return Accepted
}

func (f *Filter) record(p geo.Point) {
	f.rejects = 0
	if len(f.history) == f.config.HistorySize {
		copy(f.history, f.history[1:])
		f.history = f.history[:len(f.history)-1]
	}
	f.history = append(f.history, p)
}

// History returns a copy of the accepted fixes, oldest first.
func (f *Filter) History() []geo.Point {
	out := make([]geo.Point, len(f.history))
	copy(out, f.history)
	return out
}

// Last returns the newest accepted fix.
func (f *Filter) Last() (geo.Point, bool) {
	if len(f.history) == 0 {
		return geo.Point{}, false
	}
	return f.history[len(f.history)-1], true
}

// Reset drops the history.
func (f *Filter) Reset() {
	f.history = f.history[:0]
	f.rejects = 0
}
