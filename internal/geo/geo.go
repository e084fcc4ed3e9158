package geo

import "math"

const earthRadiusM = 6371000

// Distance returns the great-circle distance in meters between two
// coordinates, using the haversine formula.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// WalkMinutes converts a distance to whole minutes on foot at the given
// pace in meters per minute.
func WalkMinutes(meters, paceMetersPerMin float64) int {
	if paceMetersPerMin <= 0 {
		return 0
	}
	return int(math.Ceil(meters / paceMetersPerMin))
}

// ValidCoordinates reports whether lat/lng form a real WGS84 position.
func ValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
