package geo

import (
	"math"

	"github.com/wroge/wgs84"
)

const wgs84SemiMajorAxis = 6378137.0

// Projector maps Points onto a local plane in ground meters. Web Mercator (EPSG:3857)
// coordinates are scaled by the cosine of the origin latitude and by the ratio of the
// haversine radius to the WGS84 semi-major axis, so planar distances agree with
// Distance near the origin. Routes span a few kilometers so the residual error stays
// small.
type Projector struct {
	transform func(a, b, c float64) (float64, float64, float64)
	scale     float64
	originX   float64
	originY   float64
}

// NewProjector creates a Projector centred on origin.
func NewProjector(origin Point) *Projector {
	p := &Projector{
		transform: wgs84.EPSG().Transform(4326, 3857),
		scale:     math.Cos(toRadians(origin.Latitude)) * EarthRadius / wgs84SemiMajorAxis,
	}
	x, y, _ := p.transform(origin.Longitude, origin.Latitude, 0)
	p.originX, p.originY = x, y
	return p
}

// Project returns the planar position of pt relative to the origin.
func (p *Projector) Project(pt Point) XY {
	x, y, _ := p.transform(pt.Longitude, pt.Latitude, 0)
	return XY{
		X: (x - p.originX) * p.scale,
		Y: (y - p.originY) * p.scale,
	}
}

// PlanarDistance is the euclidean distance between two projected positions.
func PlanarDistance(a, b XY) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// PlanarBearing is the bearing from a to b in degrees clockwise from north (+Y).
func PlanarBearing(a, b XY) float64 {
	return NormalizeDegrees(toDegrees(math.Atan2(b.X-a.X, b.Y-a.Y)))
}

// ProjectOntoSegment returns the closest point to p on segment ab, the fraction t in
// [0, 1] along the segment and the distance from p to that point.
func ProjectOntoSegment(p, a, b XY) (XY, float64, float64) {
	dx, dy := b.X-a.X, b.Y-a.Y
	lengthSq := dx*dx + dy*dy
	if lengthSq == 0 {
		return a, 0, PlanarDistance(p, a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lengthSq
	t = math.Max(0, math.Min(1, t))
	closest := XY{X: a.X + t*dx, Y: a.Y + t*dy}
	return closest, t, PlanarDistance(p, closest)
}
