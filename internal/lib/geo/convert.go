package geo

import "math"

// Correction model constants: Krasovsky 1940 ellipsoid.
const (
	semiMajorAxis = 6378245.0
	eccentricity2 = 0.00669342162296594323

	minCorrectedLongitude = 72.004
	maxCorrectedLongitude = 137.8347
	minCorrectedLatitude  = 0.8293
	maxCorrectedLatitude  = 55.8271
)

// ToMapped converts a satellite-frame fix into the map-native frame.
func ToMapped(p RawPoint) Point {
	lng, lat := Convert(p.Longitude, p.Latitude)
	return Point{Latitude: lat, Longitude: lng}
}

// Convert applies the empirical offset model to a satellite-frame coordinate. Points
// outside the region the model is defined for are returned unchanged.
func Convert(lng, lat float64) (float64, float64) {
	if outOfRegion(lng, lat) {
		return lng, lat
	}

	dLat := offsetLatitude(lng-105.0, lat-35.0)
	dLng := offsetLongitude(lng-105.0, lat-35.0)

	radLat := lat / 180.0 * math.Pi
	magic := math.Sin(radLat)
	magic = 1 - eccentricity2*magic*magic
	sqrtMagic := math.Sqrt(magic)

	dLat = (dLat * 180.0) / ((semiMajorAxis * (1 - eccentricity2)) / (magic * sqrtMagic) * math.Pi)
	dLng = (dLng * 180.0) / (semiMajorAxis / sqrtMagic * math.Cos(radLat) * math.Pi)

	return lng + dLng, lat + dLat
}

func outOfRegion(lng, lat float64) bool {
	return lng < minCorrectedLongitude || lng > maxCorrectedLongitude ||
		lat < minCorrectedLatitude || lat > maxCorrectedLatitude
}

func offsetLatitude(x, y float64) float64 {
	ret := -100.0 + 2.0*x + 3.0*y + 0.2*y*y + 0.1*x*y + 0.2*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(y*math.Pi) + 40.0*math.Sin(y/3.0*math.Pi)) * 2.0 / 3.0
	ret += (160.0*math.Sin(y/12.0*math.Pi) + 320*math.Sin(y*math.Pi/30.0)) * 2.0 / 3.0
	return ret
}

func offsetLongitude(x, y float64) float64 {
	ret := 300.0 + x + 2.0*y + 0.1*x*x + 0.1*x*y + 0.1*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(x*math.Pi) + 40.0*math.Sin(x/3.0*math.Pi)) * 2.0 / 3.0
	ret += (150.0*math.Sin(x/12.0*math.Pi) + 300.0*math.Sin(x/30.0*math.Pi)) * 2.0 / 3.0
	return ret
}
