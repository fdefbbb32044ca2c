// Package geo provides the coordinate and meteorological math shared by
// the APRS decoder and station database (§4.13): Maidenhead grid square
// conversion, dew point, and great-circle distance.
package geo

import (
	"fmt"
	"strings"
)

// ToMaidenhead converts a latitude/longitude pair to a 6-character
// Maidenhead grid square.
func ToMaidenhead(lat, lon float64) string {
	lonAdj := lon + 180
	latAdj := lat + 90

	fieldLon := int(lonAdj / 20)
	fieldLat := int(latAdj / 10)

	squareLon := int(mod(lonAdj, 20) / 2)
	squareLat := int(mod(latAdj, 10) / 1)

	subLon := int((mod(lonAdj, 2) * 60) / 5)
	subLat := int((mod(latAdj, 1) * 60) / 2.5)

	return fmt.Sprintf("%c%c%d%d%c%c",
		'A'+fieldLon, 'A'+fieldLat,
		squareLon, squareLat,
		'a'+subLon, 'a'+subLat,
	)
}

func mod(v, m float64) float64 {
	r := v - float64(int(v/m))*m
	if r < 0 {
		r += m
	}
	return r
}

// FromMaidenhead converts a 2-, 4-, 6-, 8-, or 10-character grid square
// to the latitude/longitude of its center.
func FromMaidenhead(grid string) (lat, lon float64, err error) {
	grid = strings.ToUpper(grid)
	n := len(grid)
	if n < 2 || n > 10 || n%2 != 0 {
		return 0, 0, fmt.Errorf("geo: grid square must be 2-10 chars, got %d", n)
	}
	if grid[0] < 'A' || grid[0] > 'R' || grid[1] < 'A' || grid[1] > 'R' {
		return 0, 0, fmt.Errorf("geo: invalid field in %q", grid)
	}
	lon = float64(grid[0]-'A')*20 - 180
	lat = float64(grid[1]-'A')*10 - 90

	if n >= 4 {
		if grid[2] < '0' || grid[2] > '9' || grid[3] < '0' || grid[3] > '9' {
			return 0, 0, fmt.Errorf("geo: invalid square in %q", grid)
		}
		lon += float64(grid[2]-'0') * 2
		lat += float64(grid[3]-'0') * 1
	}
	if n >= 6 {
		lower := strings.ToLower(grid[4:6])
		if lower[0] < 'a' || lower[0] > 'x' || lower[1] < 'a' || lower[1] > 'x' {
			return 0, 0, fmt.Errorf("geo: invalid subsquare in %q", grid)
		}
		lon += float64(lower[0]-'a') * (2.0 / 24)
		lat += float64(lower[1]-'a') * (1.0 / 24)
	}
	if n >= 8 {
		if grid[6] < '0' || grid[6] > '9' || grid[7] < '0' || grid[7] > '9' {
			return 0, 0, fmt.Errorf("geo: invalid extended square in %q", grid)
		}
		lon += float64(grid[6]-'0') * (2.0 / 24 / 10)
		lat += float64(grid[7]-'0') * (1.0 / 24 / 10)
	}
	if n >= 10 {
		lower := strings.ToLower(grid[8:10])
		if lower[0] < 'a' || lower[0] > 'x' || lower[1] < 'a' || lower[1] > 'x' {
			return 0, 0, fmt.Errorf("geo: invalid super-extended subsquare in %q", grid)
		}
		lon += float64(lower[0]-'a') * (2.0 / 24 / 10 / 24)
		lat += float64(lower[1]-'a') * (1.0 / 24 / 10 / 24)
	}

	// Center the result within the smallest resolved cell.
	var cellLon, cellLat float64
	switch {
	case n >= 10:
		cellLon, cellLat = 2.0/24/10/24, 1.0/24/10/24
	case n >= 8:
		cellLon, cellLat = 2.0/24/10, 1.0/24/10
	case n >= 6:
		cellLon, cellLat = 2.0/24, 1.0/24
	case n >= 4:
		cellLon, cellLat = 2, 1
	default:
		cellLon, cellLat = 20, 10
	}
	return lat + cellLat/2, lon + cellLon/2, nil
}
