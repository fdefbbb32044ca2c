package geo

import kgeo "github.com/kellydunn/golang-geo"

// DistanceKM returns the great-circle distance in kilometers between two
// lat/lon points.
func DistanceKM(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := kgeo.NewPoint(lat1, lon1)
	p2 := kgeo.NewPoint(lat2, lon2)
	return p1.GreatCircleDistance(p2)
}
