// Package export renders a guidance run for inspection in map tools.
package export

import (
	"fmt"
	"image/color"
	"io"

	"github.com/twpayne/go-kml/v2"

	"github.com/dpup/turnbyturn/internal/lib/geo"
	"github.com/dpup/turnbyturn/internal/lib/maneuver"
	"github.com/dpup/turnbyturn/internal/lib/prompt"
	"github.com/dpup/turnbyturn/internal/lib/routing"
)

// PromptMark is an emitted prompt and the matched position it fired at.
type PromptMark struct {
	Event    prompt.Event
	Position geo.Point
}

// Trace is everything drawn for one run.
type Trace struct {
	Route     *routing.Route
	Maneuvers []maneuver.Maneuver
	Prompts   []PromptMark
}

var (
	routeColor   = color.RGBA{R: 0x1a, G: 0x73, B: 0xe8, A: 0xff}
	promptColor  = color.RGBA{R: 0xea, G: 0x43, B: 0x35, A: 0xff}
	waypointIcon = color.RGBA{R: 0x34, G: 0xa8, B: 0x53, A: 0xff}
)

// WriteKML writes tr as a KML document with one folder each for the route, its
// maneuvers and the emitted prompts.
func WriteKML(w io.Writer, tr Trace) error {
	if tr.Route == nil {
		return fmt.Errorf("export: trace has no route")
	}

	doc := kml.Document(
		kml.Name(tr.Route.ID),
		kml.SharedStyle("route", kml.LineStyle(kml.Color(routeColor), kml.Width(4))),
		kml.SharedStyle("prompt", kml.IconStyle(kml.Color(promptColor))),
		kml.SharedStyle("waypoint", kml.IconStyle(kml.Color(waypointIcon))),
		region(tr.Route),
		routeFolder(tr.Route),
		maneuverFolder(tr.Maneuvers, tr.Route),
		promptFolder(tr.Prompts),
	)
	return kml.KML(doc).WriteIndent(w, "", "  ")
}

// region frames the document on the route's bounding box.
func region(route *routing.Route) kml.Element {
	sw, ne := route.Bounds()
	return kml.Region(kml.LatLonAltBox(
		kml.North(ne.Latitude),
		kml.South(sw.Latitude),
		kml.East(ne.Longitude),
		kml.West(sw.Longitude),
	))
}

func routeFolder(route *routing.Route) kml.Element {
	coords := make([]kml.Coordinate, 0, route.Len())
	for _, p := range route.Points {
		coords = append(coords, coordinate(p))
	}

	children := []kml.Element{
		kml.Name("Route"),
		kml.Placemark(
			kml.Name(route.ID),
			kml.Description(fmt.Sprintf("%.0f m, %d points", route.Length(), route.Len())),
			kml.StyleURL("#route"),
			kml.LineString(kml.Coordinates(coords...)),
		),
	}
	for i, wp := range route.Waypoints {
		children = append(children, kml.Placemark(
			kml.Name(fmt.Sprintf("Waypoint %d", i+1)),
			kml.StyleURL("#waypoint"),
			kml.Point(kml.Coordinates(coordinate(wp.Point))),
		))
	}
	return kml.Folder(children...)
}

func maneuverFolder(maneuvers []maneuver.Maneuver, route *routing.Route) kml.Element {
	children := []kml.Element{kml.Name("Maneuvers")}
	for _, m := range maneuvers {
		children = append(children, kml.Placemark(
			kml.Name(fmt.Sprintf("%s @ %d", m.Kind, m.PositionIndex)),
			kml.Description(fmt.Sprintf("%.1f° at %.0f m", m.AngleDegrees, m.DistanceFromStart)),
			kml.Point(kml.Coordinates(coordinate(route.Points[m.PositionIndex]))),
		))
	}
	return kml.Folder(children...)
}

func promptFolder(prompts []PromptMark) kml.Element {
	children := []kml.Element{kml.Name("Prompts")}
	for _, p := range prompts {
		children = append(children, kml.Placemark(
			kml.Name(string(p.Event.Kind)),
			kml.Description(fmt.Sprintf("%s, %.0f m remaining",
				p.Event.Timestamp.UTC().Format("15:04:05.000"), p.Event.DistanceRemainingMeters)),
			kml.StyleURL("#prompt"),
			kml.Point(kml.Coordinates(coordinate(p.Position))),
		))
	}
	return kml.Folder(children...)
}

func coordinate(p geo.Point) kml.Coordinate {
	return kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
}
