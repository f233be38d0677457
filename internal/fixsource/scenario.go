package fixsource

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dpup/turnbyturn/internal/lib/geo"
	"github.com/dpup/turnbyturn/internal/navigation"
	"github.com/dpup/turnbyturn/internal/services"
)

// DefaultStart anchors scenario offsets when a script has no start time.
var DefaultStart = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// ScenarioScript is a recorded or hand-written drive.
//
// Times are offsets from Start, written as Go duration strings. Fixes are raw
// satellite-frame coordinates, exactly as a receiver reports them.
//
//	version: 1
//	start: 2024-05-01T09:00:00Z
//	route:
//	  id: murphys-loop
//	  points:
//	    - {lat: 38.1327, lng: -120.4606}
//	    - {lat: 38.1327, lng: -120.4595}
//	    - {lat: 38.1336, lng: -120.4595}
//	  waypoints:
//	    - point: {lat: 38.1327, lng: -120.4595}
//	      route_index: 1
//	fixes:
//	  - {t: 0s, lat: 38.1327, lng: -120.4606, accuracy: 5}
//	headings:
//	  - {t: 0s, degrees: 90}
type ScenarioScript struct {
	Version  int                  `yaml:"version"`
	Start    time.Time            `yaml:"start,omitempty"`
	Route    navigation.RoutePlan `yaml:"route"`
	Fixes    []FixFrame           `yaml:"fixes,omitempty"`
	Headings []HeadingFrame       `yaml:"headings,omitempty"`
}

// FixFrame is one GPS sample.
type FixFrame struct {
	T        time.Duration `yaml:"t"`
	Lat      float64       `yaml:"lat"`
	Lng      float64       `yaml:"lng"`
	Accuracy *float64      `yaml:"accuracy,omitempty"`
}

// HeadingFrame is one compass sample. Samples are valid unless marked otherwise.
type HeadingFrame struct {
	T       time.Duration `yaml:"t"`
	Degrees float64       `yaml:"degrees"`
	Invalid bool          `yaml:"invalid,omitempty"`
}

// Scenario is a validated script.
type Scenario struct {
	script ScenarioScript
}

// LoadScenario reads and validates a YAML scenario from path.
func LoadScenario(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(b)
}

// ParseScenario parses and validates a YAML scenario.
func ParseScenario(b []byte) (*Scenario, error) {
	var s ScenarioScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return NewScenario(s)
}

// NewScenario validates script.
func NewScenario(script ScenarioScript) (*Scenario, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported scenario version %d", script.Version)
	}
	if len(script.Route.Points) == 0 && script.Route.EncodedPolyline == "" {
		return nil, fmt.Errorf("route.points or route.encoded_polyline is required")
	}
	if script.Start.IsZero() {
		script.Start = DefaultStart
	}
	for i := 1; i < len(script.Fixes); i++ {
		if script.Fixes[i].T < script.Fixes[i-1].T {
			return nil, fmt.Errorf("fixes[%d].t goes backwards (%v < %v)", i, script.Fixes[i].T, script.Fixes[i-1].T)
		}
	}
	for i := 1; i < len(script.Headings); i++ {
		if script.Headings[i].T < script.Headings[i-1].T {
			return nil, fmt.Errorf("headings[%d].t goes backwards (%v < %v)", i, script.Headings[i].T, script.Headings[i-1].T)
		}
	}
	return &Scenario{script: script}, nil
}

// Plan returns the route to accept before replaying.
func (s *Scenario) Plan() navigation.RoutePlan { return s.script.Route }

// Start returns the wall-clock time of offset zero.
func (s *Scenario) Start() time.Time { return s.script.Start }

// Fixes returns the scripted fixes with absolute timestamps.
func (s *Scenario) Fixes() []navigation.Fix {
	out := make([]navigation.Fix, 0, len(s.script.Fixes))
	for _, f := range s.script.Fixes {
		out = append(out, navigation.Fix{
			Point:    geo.RawPoint{Latitude: f.Lat, Longitude: f.Lng},
			Time:     s.script.Start.Add(f.T),
			Accuracy: f.Accuracy,
		})
	}
	return out
}

// Headings returns the scripted heading samples with absolute timestamps.
func (s *Scenario) Headings() []navigation.HeadingSample {
	out := make([]navigation.HeadingSample, 0, len(s.script.Headings))
	for _, h := range s.script.Headings {
		out = append(out, navigation.HeadingSample{
			Degrees: h.Degrees,
			Valid:   !h.Invalid,
			Time:    s.script.Start.Add(h.T),
		})
	}
	return out
}

// Inputs interleaves fixes and headings in time order.
func (s *Scenario) Inputs() []services.Input {
	return Merge(s.Fixes(), s.Headings())
}

// Merge interleaves fixes and headings by timestamp. A heading sample sorts before a
// fix with the same timestamp so the fix sees the newest heading.
func Merge(fixes []navigation.Fix, headings []navigation.HeadingSample) []services.Input {
	out := make([]services.Input, 0, len(fixes)+len(headings))
	for i := range headings {
		out = append(out, services.Input{Heading: &headings[i]})
	}
	for i := range fixes {
		out = append(out, services.Input{Fix: &fixes[i]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return inputTime(out[i]).Before(inputTime(out[j]))
	})
	return out
}

func inputTime(in services.Input) time.Time {
	if in.Fix != nil {
		return in.Fix.Time
	}
	return in.Heading.Time
}
