package routing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/dpup/turnbyturn/internal/lib/geo"
)

// Route is an accepted route polyline in the mapped frame. It is immutable once
// created and may be shared between readers.
type Route struct {
	ID        string
	Points    []geo.Point
	Waypoints []Waypoint

	projector  *geo.Projector
	xy         []geo.XY
	cumulative []float64
	bounds     geom.Envelope
}

// NewRoute validates a polyline and precomputes its planar geometry.
func NewRoute(id string, points []geo.Point, waypoints []Waypoint) (*Route, error) {
	if len(points) < 2 {
		return nil, ErrInvalidRoute
	}
	for _, p := range points {
		if !geo.IsValid(p) {
			return nil, ErrInvalidRoute
		}
	}

	wps := make([]Waypoint, len(waypoints))
	copy(wps, waypoints)
	for _, wp := range wps {
		if wp.RouteIndex < 0 || wp.RouteIndex >= len(points) {
			return nil, ErrInvalidWaypoint
		}
	}
	sort.SliceStable(wps, func(i, j int) bool {
		return wps[i].RouteIndex < wps[j].RouteIndex
	})

	pts := make([]geo.Point, len(points))
	copy(pts, points)

	r := &Route{
		ID:         id,
		Points:     pts,
		Waypoints:  wps,
		projector:  geo.NewProjector(pts[0]),
		xy:         make([]geo.XY, len(pts)),
		cumulative: make([]float64, len(pts)),
	}

	flat := make([]float64, 0, len(pts)*2)
	for i, p := range pts {
		r.xy[i] = r.projector.Project(p)
		flat = append(flat, p.Longitude, p.Latitude)
		if i > 0 {
			r.cumulative[i] = r.cumulative[i-1] + geo.PlanarDistance(r.xy[i-1], r.xy[i])
		}
	}

	// A polyline whose vertices all coincide has no direction to guide along.
	line, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	if err != nil {
		return nil, ErrInvalidRoute
	}
	r.bounds = line.Envelope()

	return r, nil
}

// NewRouteFromPolyline decodes an encoded polyline and builds a Route from it.
func NewRouteFromPolyline(id, encoded string, waypoints []Waypoint) (*Route, error) {
	points, err := geo.DecodePolyline(encoded)
	if err != nil {
		return nil, ErrInvalidRoute
	}
	return NewRoute(id, points, waypoints)
}

// Len returns the number of vertices.
func (r *Route) Len() int { return len(r.Points) }

// LastIndex returns the index of the final vertex.
func (r *Route) LastIndex() int { return len(r.Points) - 1 }

// Length returns the total route length in meters.
func (r *Route) Length() float64 { return r.cumulative[len(r.cumulative)-1] }

// DistanceAt returns the distance in meters from the route start to vertex i.
func (r *Route) DistanceAt(i int) float64 { return r.cumulative[i] }

// XY returns the planar position of vertex i.
func (r *Route) XY(i int) geo.XY { return r.xy[i] }

// Project returns the planar position of p in this route's frame.
func (r *Route) Project(p geo.Point) geo.XY { return r.projector.Project(p) }

// Destination returns the final vertex.
func (r *Route) Destination() geo.Point { return r.Points[len(r.Points)-1] }

// Bounds returns the south-west and north-east corners of the route's bounding box.
func (r *Route) Bounds() (sw, ne geo.Point) {
	lo, hi, _ := r.bounds.MinMaxXYs()
	return geo.Point{Latitude: lo.Y, Longitude: lo.X}, geo.Point{Latitude: hi.Y, Longitude: hi.X}
}

// IndexAtDistance returns the last vertex whose distance from start is at most d.
func (r *Route) IndexAtDistance(d float64) int {
	i := sort.Search(len(r.cumulative), func(i int) bool { return r.cumulative[i] > d })
	if i == 0 {
		return 0
	}
	return i - 1
}

// PointAt interpolates along segment i by fraction t.
func (r *Route) PointAt(i int, t float64) geo.Point {
	if i >= r.LastIndex() {
		return r.Destination()
	}
	start, end := r.Points[i], r.Points[i+1]
	return geo.Point{
		Latitude:  start.Latitude + t*(end.Latitude-start.Latitude),
		Longitude: start.Longitude + t*(end.Longitude-start.Longitude),
	}
}

// Fingerprint identifies the route geometry and waypoints independent of its id.
func (r *Route) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(geo.EncodePolyline(r.Points)))
	for _, wp := range r.Waypoints {
		fmt.Fprintf(h, "|%d:%.6f,%.6f", wp.RouteIndex, wp.Point.Latitude, wp.Point.Longitude)
	}
	return hex.EncodeToString(h.Sum(nil))
}
