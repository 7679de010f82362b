package mesh

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Centroid averages the defining-vertex coordinates of an entity.
func (s *Store) Centroid(h EntityHandle) (x, y, z float64) {
	conn := s.Connectivity(h)
	for _, v := range conn {
		vx, vy, vz := s.Coords(v)
		x += vx
		y += vy
		z += vz
	}
	n := float64(len(conn))
	return x / n, y / n, z / n
}

// SphericalCentroid projects an entity's centroid onto the unit sphere and
// returns its longitude in [0, 2pi) and latitude in [-pi/2, pi/2]. A cell
// centered at the origin maps to (0, 0).
func (s *Store) SphericalCentroid(h EntityHandle) (lon, lat float64) {
	x, y, z := s.Centroid(h)
	c := []float64{x, y, z}
	norm := floats.Norm(c, 2)
	if norm == 0 {
		return 0, 0
	}
	floats.Scale(1/norm, c)
	lon = math.Atan2(c[1], c[0])
	if lon < 0 {
		lon += 2 * math.Pi
	}
	lat = math.Asin(c[2])
	return lon, lat
}
