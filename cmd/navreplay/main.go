package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/dpup/prefab/logging"
	"gopkg.in/yaml.v3"

	"github.com/dpup/turnbyturn/internal/cache"
	"github.com/dpup/turnbyturn/internal/clients/google"
	"github.com/dpup/turnbyturn/internal/config"
	"github.com/dpup/turnbyturn/internal/export"
	"github.com/dpup/turnbyturn/internal/fixsource"
	"github.com/dpup/turnbyturn/internal/lib/geo"
	"github.com/dpup/turnbyturn/internal/lib/heading"
	"github.com/dpup/turnbyturn/internal/navigation"
	"github.com/dpup/turnbyturn/internal/services"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "replay":
		handleReplay(os.Args[2:])
	case "maneuvers":
		handleManeuvers(os.Args[2:])
	case "plan":
		handlePlan(os.Args[2:])
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

// rootContext carries the development logger every command logs through.
func rootContext() context.Context {
	return logging.With(context.Background(), logging.NewDevLogger())
}

func handleReplay(args []string) {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file (defaults apply when empty)")
	scenarioPath := fs.String("scenario", "", "YAML scenario with the route and, optionally, fixes")
	nmeaPath := fs.String("nmea", "", "NMEA log to replay instead of the scenario fixes")
	kmlPath := fs.String("kml", "", "write the route, maneuvers and prompts to this KML file")
	format := fs.String("format", "", "output format: text or json (overrides config)")
	var sets overrides
	fs.Var(&sets, "set", "config override as key=value, e.g. navigation.prompt_mode=heading (repeatable)")
	_ = fs.Parse(args)

	if *scenarioPath == "" {
		log.Fatal("-scenario is required")
	}

	ctx, stop := signal.NotifyContext(rootContext(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *format != "" {
		sets.add("replay.output_format", *format)
	}
	cfg, err := config.LoadWithOverrides(*configPath, sets)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	scenario, err := fixsource.LoadScenario(*scenarioPath)
	if err != nil {
		log.Fatalf("Failed to load scenario: %v", err)
	}

	inputs := scenario.Inputs()
	if *nmeaPath != "" {
		nmeaLog, err := fixsource.LoadNMEA(ctx, *nmeaPath)
		if err != nil {
			log.Fatalf("Failed to read NMEA log: %v", err)
		}
		if nmeaLog.Skipped > 0 {
			log.Printf("Skipped %d unparseable NMEA lines", nmeaLog.Skipped)
		}
		inputs = fixsource.Merge(nmeaLog.Fixes, nmeaLog.Headings)
	}

	cacheInstance := cache.NewCache()
	maneuverCache := cache.NewManeuverCache(cacheInstance, cfg.Navigation.ManeuverCacheTTL)
	navigator, err := navigation.New(cfg.Navigation, navigation.WithManeuverCache(maneuverCache))
	if err != nil {
		log.Fatalf("Invalid navigation config: %v", err)
	}
	if _, err := navigator.AcceptRoute(ctx, scenario.Plan()); err != nil {
		log.Fatalf("Route rejected: %v", err)
	}

	printer := newPrinter(os.Stdout, cfg.Replay.OutputFormat)
	guidance := services.NewGuidanceService(navigator, printer, cacheInstance, cfg.Replay)
	if err := guidance.Start(ctx); err != nil {
		log.Fatalf("Failed to start guidance: %v", err)
	}
	for _, in := range inputs {
		if err := guidance.Submit(ctx, in); err != nil {
			log.Printf("Replay interrupted: %v", err)
			break
		}
	}
	guidance.Drain()

	if *kmlPath != "" {
		route, _ := navigator.Route()
		if err := writeKML(*kmlPath, export.Trace{
			Route:     route,
			Maneuvers: navigator.Maneuvers(),
			Prompts:   printer.marks,
		}); err != nil {
			log.Fatalf("Failed to write KML: %v", err)
		}
	}

	if cfg.Replay.OutputFormat == "text" {
		fmt.Printf("\n%d fixes, %d prompts, final status %s\n", printer.fixes, len(printer.marks), printer.status)
		stats := cacheInstance.Stats()
		fmt.Printf("Maneuver cache: %d entries (%d fresh, %d stale)\n", stats.TotalEntries, stats.FreshEntries, stats.StaleEntries)
	}
}

func handleManeuvers(args []string) {
	fs := flag.NewFlagSet("maneuvers", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file (defaults apply when empty)")
	scenarioPath := fs.String("scenario", "", "YAML scenario with the route")
	_ = fs.Parse(args)

	if *scenarioPath == "" {
		log.Fatal("-scenario is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	scenario, err := fixsource.LoadScenario(*scenarioPath)
	if err != nil {
		log.Fatalf("Failed to load scenario: %v", err)
	}
	navigator, err := navigation.New(cfg.Navigation)
	if err != nil {
		log.Fatalf("Invalid navigation config: %v", err)
	}
	if _, err := navigator.AcceptRoute(rootContext(), scenario.Plan()); err != nil {
		log.Fatalf("Route rejected: %v", err)
	}

	route, _ := navigator.Route()
	fmt.Printf("Route %s: %d points, %.0f m\n", route.ID, route.Len(), route.Length())
	for _, m := range navigator.Maneuvers() {
		fmt.Printf("  %-8s at index %-5d %7.1f m  %6.1f°\n", m.Kind, m.PositionIndex, m.DistanceFromStart, m.AngleDegrees)
	}
}

func handlePlan(args []string) {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file (defaults apply when empty)")
	id := fs.String("id", "planned", "route id")
	from := fs.String("from", "", "origin as lat,lng")
	to := fs.String("to", "", "destination as lat,lng")
	var via pointList
	fs.Var(&via, "via", "intermediate stop as lat,lng (repeatable)")
	_ = fs.Parse(args)

	origin, err := parsePoint(*from)
	if err != nil {
		log.Fatalf("Invalid -from: %v", err)
	}
	destination, err := parsePoint(*to)
	if err != nil {
		log.Fatalf("Invalid -to: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Planner.GoogleAPIKey == "" {
		log.Fatal("Google Routes API key is required (NAV__PLANNER__GOOGLE_API_KEY)")
	}

	client := google.NewClient(cfg.Planner.GoogleAPIKey, cfg.Planner.BaseURL, cfg.Planner.Timeout)
	dir, err := client.ComputeDirections(rootContext(), *id, origin, destination, via...)
	if err != nil {
		log.Fatalf("Failed to plan route: %v", err)
	}
	log.Printf("Planned %s: %d m, %v, %d stops", *id, dir.DistanceMeters, dir.Duration, len(dir.Plan.Waypoints))

	out, err := yaml.Marshal(fixsource.ScenarioScript{Version: 1, Route: dir.Plan})
	if err != nil {
		log.Fatalf("Failed to encode scenario: %v", err)
	}
	if _, err := os.Stdout.Write(out); err != nil {
		log.Fatalf("Failed to write scenario: %v", err)
	}
}

// overrides collects repeated key=value config flags.
type overrides map[string]any

func (o *overrides) String() string { return fmt.Sprint(map[string]any(*o)) }

func (o *overrides) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	o.add(key, value)
	return nil
}

func (o *overrides) add(key string, value any) {
	if *o == nil {
		*o = overrides{}
	}
	(*o)[key] = value
}

// pointList collects repeated lat,lng flags.
type pointList []geo.Point

func (l *pointList) String() string { return fmt.Sprint(*l) }

func (l *pointList) Set(s string) error {
	p, err := parsePoint(s)
	if err != nil {
		return err
	}
	*l = append(*l, p)
	return nil
}

func parsePoint(s string) (geo.Point, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return geo.Point{}, fmt.Errorf("expected lat,lng, got %q", s)
	}
	latitude, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return geo.Point{}, err
	}
	longitude, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil {
		return geo.Point{}, err
	}
	return geo.NewPoint(latitude, longitude)
}

func writeKML(path string, tr export.Trace) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteKML(f, tr); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// printer is the replay Sink. It prints events as they happen and remembers where
// each prompt fired.
type printer struct {
	w      io.Writer
	json   *json.Encoder
	marks  []export.PromptMark
	fixes  int
	status navigation.Status
}

func newPrinter(w io.Writer, format string) *printer {
	p := &printer{w: w}
	if format == "json" {
		p.json = json.NewEncoder(w)
	}
	return p
}

func (p *printer) Update(_ context.Context, u navigation.Update) error {
	p.fixes++
	changed := u.Status != p.status
	p.status = u.Status
	for _, ev := range u.Events {
		p.marks = append(p.marks, export.PromptMark{Event: ev, Position: u.Position})
	}

	if p.json != nil {
		if !changed && len(u.Events) == 0 {
			return nil
		}
		return p.json.Encode(u)
	}

	if changed {
		reason := ""
		if u.Reason != nil {
			reason = " (" + u.Reason.Error() + ")"
		}
		if _, err := fmt.Fprintf(p.w, "status  %s%s\n", u.Status, reason); err != nil {
			return err
		}
	}
	for _, ev := range u.Events {
		if _, err := fmt.Fprintf(p.w, "%s  %-16s %6.1f m  maneuver=%d waypoint=%d\n",
			ev.Timestamp.UTC().Format("15:04:05.000"), ev.Kind, ev.DistanceRemainingMeters,
			ev.ManeuverIndex, ev.WaypointIndex); err != nil {
			return err
		}
	}
	return nil
}

func (p *printer) Rotation(_ context.Context, r heading.Rotation) error {
	if p.json != nil {
		return p.json.Encode(r)
	}
	_, err := fmt.Fprintf(p.w, "%s  rotate %.1f° -> %.1f°\n", r.Start.UTC().Format("15:04:05.000"), r.From, r.To)
	return err
}

func printUsage() {
	fmt.Println(`navreplay replays recorded drives through the guidance engine.

Usage:
  navreplay replay -scenario trip.yaml [-config nav.yaml] [-nmea drive.nmea] [-kml out.kml]
                   [-format text|json] [-set key=value]...
  navreplay maneuvers -scenario trip.yaml [-config nav.yaml]
  navreplay plan -from lat,lng -to lat,lng [-via lat,lng]... [-id name] > trip.yaml
  navreplay help

Environment variables prefixed NAV__ override config values, e.g.
  NAV__NAVIGATION__TURN_PROMPT_DISTANCE_METERS=60`)
}
