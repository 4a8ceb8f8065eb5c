// Package polygon parses the `--polygon` clipping-file format and computes
// the per-grid-cell "masked out" boolean array a sub-tile is traced
// against.
package polygon

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// epsilon is the bbox expansion applied before clipping so points exactly
// on a polygon edge fall safely inside the clip window, so they count
// as inside.
const epsilon = 0.1

// Set is a parsed clipping polygon file: one ring per numbered section, all
// in EPSG:4326.
type Set struct {
	Rings []orb.Ring
	BBox  orb.Bound
}

// Parse reads the osmosis-style polygon file format: lines of whitespace
// separated "lon lat" grouped by numeric section headers ("1", "2", ...)
// each terminated by "END"; a final "END" terminates the file.
func Parse(r io.Reader) (*Set, error) {
	scanner := bufio.NewScanner(r)
	set := &Set{}
	var current orb.Ring
	inSection := false
	haveBBox := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "END" {
			if inSection {
				set.Rings = append(set.Rings, current)
				current = nil
				inSection = false
				continue
			}
			// Trailing final END with no open section: file is complete.
			break
		}
		if !inSection {
			// A bare numeric section header opens a new ring.
			if _, err := strconv.Atoi(line); err == nil {
				inSection = true
				current = orb.Ring{}
				continue
			}
			return nil, fmt.Errorf("polygon: unexpected line outside section: %q", line)
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("polygon: malformed vertex line: %q", line)
		}
		lon, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("polygon: bad longitude %q: %w", fields[0], err)
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("polygon: bad latitude %q: %w", fields[1], err)
		}
		p := orb.Point{lon, lat}
		current = append(current, p)
		if !haveBBox {
			set.BBox = orb.Bound{Min: p, Max: p}
			haveBBox = true
		} else {
			set.BBox = set.BBox.Extend(p)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("polygon: %w", err)
	}
	if len(set.Rings) == 0 {
		return nil, fmt.Errorf("polygon: no rings parsed")
	}
	return set, nil
}

// ParseFile opens and parses a polygon file by path.
func ParseFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("polygon: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Mask implements raster.Polygons: it returns an R x C boolean array where
// true means "masked out" (outside every clipped polygon ring).
func (s *Set) Mask(lonAxis, latAxis []float64) [][]bool {
	rows, cols := len(latAxis), len(lonAxis)
	if rows == 0 || cols == 0 {
		return nil
	}

	tileBound := tileBoundFromAxes(lonAxis, latAxis)
	clipped := clipRings(s.Rings, tileBound)
	if len(clipped) == 0 {
		return [][]bool{{true}}
	}

	mask := make([][]bool, rows)
	for r := 0; r < rows; r++ {
		row := make([]bool, cols)
		for c := 0; c < cols; c++ {
			pt := orb.Point{lonAxis[c], latAxis[r]}
			inside := false
			for _, poly := range clipped {
				if planar.PolygonContains(poly, pt) {
					inside = true
					break
				}
			}
			row[c] = !inside
		}
		mask[r] = row
	}
	return mask
}

func tileBoundFromAxes(lonAxis, latAxis []float64) orb.Bound {
	minLon, maxLon := lonAxis[0], lonAxis[0]
	for _, v := range lonAxis {
		minLon = math.Min(minLon, v)
		maxLon = math.Max(maxLon, v)
	}
	minLat, maxLat := latAxis[0], latAxis[0]
	for _, v := range latAxis {
		minLat = math.Min(minLat, v)
		maxLat = math.Max(maxLat, v)
	}
	return orb.Bound{
		Min: orb.Point{minLon - epsilon, minLat - epsilon},
		Max: orb.Point{maxLon + epsilon, maxLat + epsilon},
	}
}

// clipRings clips each ring against bound using Sutherland-Hodgman (exact
// for an axis-aligned convex clip window) and returns the surviving,
// non-degenerate polygons.
func clipRings(rings []orb.Ring, bound orb.Bound) []orb.Polygon {
	var out []orb.Polygon
	for _, ring := range rings {
		clipped := sutherlandHodgman(ring, bound)
		if len(clipped) >= 3 {
			out = append(out, orb.Polygon{clipped})
		}
	}
	return out
}

// sutherlandHodgman clips a polygon ring against an axis-aligned
// rectangle, one edge of the rectangle at a time.
func sutherlandHodgman(subject orb.Ring, b orb.Bound) orb.Ring {
	poly := subject
	poly = clipEdge(poly, func(p orb.Point) bool { return p[0] >= b.Min[0] }, func(a, c orb.Point) orb.Point {
		return intersectVertical(a, c, b.Min[0])
	})
	poly = clipEdge(poly, func(p orb.Point) bool { return p[0] <= b.Max[0] }, func(a, c orb.Point) orb.Point {
		return intersectVertical(a, c, b.Max[0])
	})
	poly = clipEdge(poly, func(p orb.Point) bool { return p[1] >= b.Min[1] }, func(a, c orb.Point) orb.Point {
		return intersectHorizontal(a, c, b.Min[1])
	})
	poly = clipEdge(poly, func(p orb.Point) bool { return p[1] <= b.Max[1] }, func(a, c orb.Point) orb.Point {
		return intersectHorizontal(a, c, b.Max[1])
	})
	return poly
}

func clipEdge(poly orb.Ring, inside func(orb.Point) bool, intersect func(a, b orb.Point) orb.Point) orb.Ring {
	if len(poly) == 0 {
		return nil
	}
	var out orb.Ring
	prev := poly[len(poly)-1]
	prevIn := inside(prev)
	for _, cur := range poly {
		curIn := inside(cur)
		switch {
		case curIn && prevIn:
			out = append(out, cur)
		case curIn && !prevIn:
			out = append(out, intersect(prev, cur), cur)
		case !curIn && prevIn:
			out = append(out, intersect(prev, cur))
		}
		prev, prevIn = cur, curIn
	}
	return out
}

func intersectVertical(a, b orb.Point, x float64) orb.Point {
	if b[0] == a[0] {
		return orb.Point{x, a[1]}
	}
	t := (x - a[0]) / (b[0] - a[0])
	return orb.Point{x, a[1] + t*(b[1]-a[1])}
}

func intersectHorizontal(a, b orb.Point, y float64) orb.Point {
	if b[1] == a[1] {
		return orb.Point{a[0], y}
	}
	t := (y - a[1]) / (b[1] - a[1])
	return orb.Point{a[0] + t*(b[0]-a[0]), y}
}
