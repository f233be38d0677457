package config

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
)

// EnvPrefix prefixes environment overrides. Nested keys are separated by a double
// underscore, e.g. NAV__NAVIGATION__TURN_PROMPT_DISTANCE_METERS.
const EnvPrefix = "NAV__"

// Config represents the complete engine configuration
type Config struct {
	Navigation Navigation `yaml:"navigation"`
	Replay     Replay     `yaml:"replay"`
	Planner    Planner    `yaml:"planner"`
}

// Navigation holds every tunable threshold of a navigation session
type Navigation struct {
	// Route matching
	RequireStartAtOrigin      bool    `yaml:"require_start_at_origin"`
	StartRebaseDistanceMeters float64 `yaml:"start_rebase_distance_meters"`
	SnapToRouteDistanceMeters float64 `yaml:"snap_to_route_distance_meters"`
	MatchLookaheadMeters      float64 `yaml:"match_lookahead_meters"`

	// GPS filtering
	GPSFilterEnabled         bool    `yaml:"gps_filter_enabled"`
	GPSHistorySize           int     `yaml:"gps_history_size"`
	GPSMaxJumpMeters         float64 `yaml:"gps_max_jump_meters"`
	GPSMaxConsecutiveRejects int     `yaml:"gps_max_consecutive_rejects"`
	GPSMaxAccuracyMeters     float64 `yaml:"gps_max_accuracy_meters"`

	// Maneuver detection
	UsePrecomputedManeuvers    bool          `yaml:"use_precomputed_maneuvers"`
	UsePathBasedPrompts        bool          `yaml:"use_path_based_prompts"`
	ShapeToleranceMeters       float64       `yaml:"shape_tolerance_meters"`
	TurnClusterMinMeters       float64       `yaml:"turn_cluster_min_meters"`
	MinSegmentLengthMeters     float64       `yaml:"min_segment_length_meters"`
	TurnAngleThresholdDegrees  float64       `yaml:"turn_angle_threshold_degrees"`
	UturnAngleThresholdDegrees float64       `yaml:"uturn_angle_threshold_degrees"`
	TurnMergeMinGapMeters      float64       `yaml:"turn_merge_min_gap_meters"`
	PathLookaheadMeters        float64       `yaml:"path_lookahead_meters"`
	ManeuverCacheTTL           time.Duration `yaml:"maneuver_cache_ttl"`

	// Prompts
	PromptMode                      string        `yaml:"prompt_mode"`
	TurnPromptDistanceMeters        float64       `yaml:"turn_prompt_distance_meters"`
	UturnPromptDistanceMeters       float64       `yaml:"uturn_prompt_distance_meters"`
	WaypointUturnTriggerMeters      float64       `yaml:"waypoint_uturn_trigger_meters"`
	PostTurnNextPromptMinTime       time.Duration `yaml:"post_turn_next_prompt_min_time"`
	StraightPromptMinDistanceMeters float64       `yaml:"straight_prompt_min_distance_meters"`

	// Arrival
	WaypointArrivalDistanceMeters float64 `yaml:"waypoint_arrival_distance_meters"`
	EndArrivalDistanceMeters      float64 `yaml:"end_arrival_distance_meters"`
	EndArrivalIndexWindow         int     `yaml:"end_arrival_index_window"`
	EndArrivalTailMeters          float64 `yaml:"end_arrival_tail_meters"`

	// Map rotation
	HeadingUpMode             bool          `yaml:"heading_up_mode"`
	MapRotationUpdateInterval time.Duration `yaml:"map_rotation_update_interval"`
	MapRotationDuration       time.Duration `yaml:"map_rotation_duration"`
}

// Replay holds settings for the guidance loop used by the replay tool
type Replay struct {
	QueueSize            int           `yaml:"queue_size"`
	CacheCleanupInterval time.Duration `yaml:"cache_cleanup_interval"`
	// OutputFormat is "text" or "json".
	OutputFormat string `yaml:"output_format"`
}

// Planner configures the external route planner client
type Planner struct {
	// GoogleAPIKey authenticates against the Google Routes API. Usually supplied as
	// NAV__PLANNER__GOOGLE_API_KEY rather than written to a file.
	GoogleAPIKey string        `yaml:"google_api_key"`
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Navigation: DefaultNavigation(),
		Replay: Replay{
			QueueSize:            64,
			CacheCleanupInterval: 10 * time.Minute,
			OutputFormat:         "text",
		},
		Planner: Planner{
			BaseURL: "https://routes.googleapis.com",
			Timeout: 30 * time.Second,
		},
	}
}

// DefaultNavigation returns the default navigation thresholds
func DefaultNavigation() Navigation {
	return Navigation{
		StartRebaseDistanceMeters: 12,
		SnapToRouteDistanceMeters: 12,
		MatchLookaheadMeters:      150,

		GPSFilterEnabled:         true,
		GPSHistorySize:           5,
		GPSMaxJumpMeters:         50,
		GPSMaxConsecutiveRejects: 5,

		UsePrecomputedManeuvers:    true,
		ShapeToleranceMeters:       1,
		TurnClusterMinMeters:       5,
		MinSegmentLengthMeters:     1.5,
		TurnAngleThresholdDegrees:  28,
		UturnAngleThresholdDegrees: 150,
		TurnMergeMinGapMeters:      3,
		PathLookaheadMeters:        300,
		ManeuverCacheTTL:           time.Hour,

		PromptMode:                      "path",
		TurnPromptDistanceMeters:        40,
		UturnPromptDistanceMeters:       20,
		WaypointUturnTriggerMeters:      18,
		PostTurnNextPromptMinTime:       1500 * time.Millisecond,
		StraightPromptMinDistanceMeters: 150,

		WaypointArrivalDistanceMeters: 8,
		EndArrivalDistanceMeters:      3,
		EndArrivalIndexWindow:         5,
		EndArrivalTailMeters:          50,

		MapRotationUpdateInterval: 500 * time.Millisecond,
		MapRotationDuration:       300 * time.Millisecond,
	}
}

// Load layers a YAML file (optional, skipped when path is empty) and NAV__ prefixed
// environment variables over the defaults, then validates the result.
func Load(path string) (*Config, error) {
	return LoadWithOverrides(path, nil)
}

// LoadWithOverrides is Load with a final layer of dotted keys, e.g.
// "navigation.prompt_mode", that win over the file and the environment.
func LoadWithOverrides(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("loading overrides: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	errs := c.Navigation.problems()
	if c.Replay.QueueSize < 0 {
		errs = multierr.Append(errs, fmt.Errorf("replay.queue_size must not be negative, got %d", c.Replay.QueueSize))
	}
	switch c.Replay.OutputFormat {
	case "", "text", "json":
	default:
		errs = multierr.Append(errs, fmt.Errorf("replay.output_format must be text or json, got %q", c.Replay.OutputFormat))
	}
	if c.Planner.Timeout < 0 {
		errs = multierr.Append(errs, fmt.Errorf("planner.timeout must not be negative, got %v", c.Planner.Timeout))
	}
	return invalid(errs)
}

// Validate reports every out-of-range threshold at once. The returned error carries
// codes.InvalidArgument.
func (n Navigation) Validate() error {
	return invalid(n.problems())
}

func (n Navigation) problems() error {
	var errs error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf(format, args...))
		}
	}

	positive := map[string]float64{
		"start_rebase_distance_meters":     n.StartRebaseDistanceMeters,
		"snap_to_route_distance_meters":    n.SnapToRouteDistanceMeters,
		"match_lookahead_meters":           n.MatchLookaheadMeters,
		"turn_angle_threshold_degrees":     n.TurnAngleThresholdDegrees,
		"turn_prompt_distance_meters":      n.TurnPromptDistanceMeters,
		"uturn_prompt_distance_meters":     n.UturnPromptDistanceMeters,
		"waypoint_arrival_distance_meters": n.WaypointArrivalDistanceMeters,
		"end_arrival_distance_meters":      n.EndArrivalDistanceMeters,
		"path_lookahead_meters":            n.PathLookaheadMeters,
	}
	nonNegative := map[string]float64{
		"gps_max_accuracy_meters":             n.GPSMaxAccuracyMeters,
		"shape_tolerance_meters":              n.ShapeToleranceMeters,
		"turn_cluster_min_meters":             n.TurnClusterMinMeters,
		"min_segment_length_meters":           n.MinSegmentLengthMeters,
		"turn_merge_min_gap_meters":           n.TurnMergeMinGapMeters,
		"waypoint_uturn_trigger_meters":       n.WaypointUturnTriggerMeters,
		"straight_prompt_min_distance_meters": n.StraightPromptMinDistanceMeters,
		"end_arrival_tail_meters":             n.EndArrivalTailMeters,
	}
	for _, key := range slices.Sorted(maps.Keys(positive)) {
		check(positive[key] > 0, "%s must be positive, got %v", key, positive[key])
	}
	for _, key := range slices.Sorted(maps.Keys(nonNegative)) {
		check(nonNegative[key] >= 0, "%s must not be negative, got %v", key, nonNegative[key])
	}

	if n.GPSFilterEnabled {
		check(n.GPSHistorySize > 0, "gps_history_size must be positive, got %d", n.GPSHistorySize)
		check(n.GPSMaxJumpMeters > 0, "gps_max_jump_meters must be positive, got %v", n.GPSMaxJumpMeters)
	}
	check(n.GPSMaxConsecutiveRejects >= 0, "gps_max_consecutive_rejects must not be negative, got %d", n.GPSMaxConsecutiveRejects)
	check(n.EndArrivalIndexWindow >= 0, "end_arrival_index_window must not be negative, got %d", n.EndArrivalIndexWindow)
	check(n.UturnAngleThresholdDegrees > n.TurnAngleThresholdDegrees && n.UturnAngleThresholdDegrees <= 180,
		"uturn_angle_threshold_degrees must lie between turn_angle_threshold_degrees and 180, got %v", n.UturnAngleThresholdDegrees)
	check(n.PromptMode == "path" || n.PromptMode == "heading",
		"prompt_mode must be path or heading, got %q", n.PromptMode)
	check(n.PromptMode == "heading" || n.UsePrecomputedManeuvers || n.UsePathBasedPrompts,
		"path prompts need use_precomputed_maneuvers or use_path_based_prompts")
	check(n.PostTurnNextPromptMinTime >= 0, "post_turn_next_prompt_min_time must not be negative")
	check(n.MapRotationUpdateInterval >= 0, "map_rotation_update_interval must not be negative")
	check(n.MapRotationDuration >= 0, "map_rotation_duration must not be negative")
	check(n.ManeuverCacheTTL >= 0, "maneuver_cache_ttl must not be negative")

	return errs
}

func invalid(errs error) error {
	if errs == nil {
		return nil
	}
	return errors.NewC(errs, codes.InvalidArgument)
}
