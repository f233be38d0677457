package geo

// Point is a coordinate in the map-native (mapped) frame. All distance, bearing and
// matching math downstream of the converter works on Points.
type Point struct {
	Latitude  float64 `json:"lat" yaml:"lat"`
	Longitude float64 `json:"lng" yaml:"lng"`
}

// RawPoint is a coordinate in the global satellite frame, as reported by a GPS
// receiver. The only way to turn a RawPoint into a Point is ToMapped.
type RawPoint struct {
	Longitude float64 `json:"lng" yaml:"lng"`
	Latitude  float64 `json:"lat" yaml:"lat"`
}

// XY is a planar position in meters relative to a Projector's frame.
type XY struct {
	X float64
	Y float64
}
