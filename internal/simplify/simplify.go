// Package simplify implements polyline dedup and Ramer-Douglas-Peucker
// simplification.
package simplify

import (
	"math"

	"github.com/hgtcontour/hgtcontour/internal/osm"
)

// Dedup removes consecutive identical points, in place semantics but
// returning a new slice (the input is never mutated).
func Dedup(points []osm.Point) []osm.Point {
	if len(points) == 0 {
		return points
	}
	out := make([]osm.Point, 0, len(points))
	out = append(out, points[0])
	for _, p := range points[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}

// RDP applies Ramer-Douglas-Peucker simplification with the given epsilon,
// interpreted in the polyline's own coordinate units (degrees for
// EPSG:4326).
//
// epsilon == nil means "no simplification": the input (after Dedup) is
// returned unchanged. epsilon == 0 removes only exactly-collinear interior
// points (classical RDP degenerates to this at epsilon 0, since any
// perpendicular distance > 0 survives).
func RDP(points []osm.Point, epsilon *float64) []osm.Point {
	deduped := Dedup(points)
	if epsilon == nil {
		return deduped
	}
	if len(deduped) < 3 {
		return deduped
	}
	keep := make([]bool, len(deduped))
	keep[0] = true
	keep[len(deduped)-1] = true
	rdpRecurse(deduped, 0, len(deduped)-1, *epsilon, keep)

	out := make([]osm.Point, 0, len(deduped))
	for i, k := range keep {
		if k {
			out = append(out, deduped[i])
		}
	}
	return out
}

// rdpRecurse marks points between lo and hi (inclusive) that must be kept
// because they lie farther than epsilon from the chord lo-hi.
func rdpRecurse(pts []osm.Point, lo, hi int, epsilon float64, keep []bool) {
	if hi-lo < 2 {
		return
	}

	maxDist := -1.0
	maxIdx := -1
	for i := lo + 1; i < hi; i++ {
		d := perpendicularDistance(pts[i], pts[lo], pts[hi])
		if d > maxDist {
			maxDist = d
			maxIdx = i
		}
	}

	if maxIdx == -1 {
		return
	}

	if maxDist > epsilon {
		keep[maxIdx] = true
		rdpRecurse(pts, lo, maxIdx, epsilon, keep)
		rdpRecurse(pts, maxIdx, hi, epsilon, keep)
	}
}

// perpendicularDistance returns the distance from p to the infinite line
// through a and b (or to the point a, if a == b).
func perpendicularDistance(p, a, b osm.Point) float64 {
	dx := b.Lon - a.Lon
	dy := b.Lat - a.Lat
	if dx == 0 && dy == 0 {
		return math.Hypot(p.Lon-a.Lon, p.Lat-a.Lat)
	}
	num := math.Abs(dy*p.Lon - dx*p.Lat + b.Lon*a.Lat - b.Lat*a.Lon)
	den := math.Hypot(dx, dy)
	return num / den
}
