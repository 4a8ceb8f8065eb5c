// Package contour traces iso-elevation polylines from a masked elevation
// grid using a marching-squares variant: corner masking excludes whole
// cells, and disjoint edge-crossing segments are stitched into chains to
// form the output polylines.
package contour

import (
	"errors"
	"fmt"

	"github.com/hgtcontour/hgtcontour/internal/osm"
)

// ErrUniformGrid is returned when every non-void cell in the grid shares
// the same elevation: there is nothing to contour.
var ErrUniformGrid = errors.New("contour: uniform grid")

// Grid is the input to the tracer: an R×C elevation array plus an
// optional exclusion mask (true = excluded) of the same shape, and the
// 1-D coordinate axes:
//
//	xData[c] = minLon + c*lonInc
//	yData[r] = maxLat - r*latInc
type Grid struct {
	Elevation [][]float64
	Mask      [][]bool // nil means "nothing masked"
	XData     []float64
	YData     []float64
}

func (g *Grid) masked(r, c int) bool {
	return g.Mask != nil && g.Mask[r][c]
}

// Range computes the elevations to trace: multiples of step in [L, H],
// optionally dropping 0.
func Range(step int, minCont, maxCont *int, minEle, maxEle float64, noZero bool) []int {
	if step <= 0 {
		return nil
	}
	var low int
	if minCont != nil {
		low = *minCont
	} else {
		low = ceilMultiple(minEle, step)
	}
	var high int
	if maxCont != nil {
		high = *maxCont
	} else {
		high = ceilMultiple(maxEle, step)
	}

	var levels []int
	for e := low; e <= high; e += step {
		if noZero && e == 0 {
			continue
		}
		levels = append(levels, e)
	}
	return levels
}

func ceilMultiple(v float64, step int) int {
	s := float64(step)
	n := v / s
	i := int(n)
	if float64(i) < n {
		i++
	}
	return i * step
}

// TraceAll traces every level in levels and reports ErrUniformGrid if the
// whole grid (ignoring masked/void cells) is a single flat elevation.
func TraceAll(g *Grid, levels []int) (*osm.TileContours, error) {
	if isUniform(g) {
		return nil, fmt.Errorf("%w", ErrUniformGrid)
	}
	tc := osm.NewTileContours()
	for _, level := range levels {
		contours := Trace(g, level)
		if len(contours) > 0 {
			tc.ByElevation[level] = contours
		}
	}
	return tc, nil
}

func isUniform(g *Grid) bool {
	first := 0.0
	seen := false
	for r := range g.Elevation {
		for c := range g.Elevation[r] {
			if g.masked(r, c) {
				continue
			}
			if !seen {
				first = g.Elevation[r][c]
				seen = true
				continue
			}
			if g.Elevation[r][c] != first {
				return false
			}
		}
	}
	return seen
}

// point is a grid-space coordinate (not yet projected). It participates as
// a map key, so equality must be exact: every edge crossing is computed
// exactly once and shared by both adjacent cells.
type point struct{ x, y float64 }

type segment struct{ a, b point }

// Trace produces the polylines for a single iso-elevation level.
func Trace(g *Grid, level int) []osm.Contour {
	rows := len(g.Elevation)
	if rows < 2 {
		return nil
	}
	cols := len(g.Elevation[0])
	if cols < 2 {
		return nil
	}
	L := float64(level)

	hEdge := make([][]*point, rows)
	for r := range hEdge {
		hEdge[r] = make([]*point, cols-1)
	}
	vEdge := make([][]*point, rows-1)
	for r := range vEdge {
		vEdge[r] = make([]*point, cols)
	}

	getH := func(r, c int) *point {
		if hEdge[r][c] == nil {
			va, vb := g.Elevation[r][c], g.Elevation[r][c+1]
			if !crosses(va, vb, L) {
				return nil
			}
			p := interp(g.XData[c], g.YData[r], g.XData[c+1], g.YData[r], va, vb, L)
			hEdge[r][c] = &p
		}
		return hEdge[r][c]
	}
	getV := func(r, c int) *point {
		if vEdge[r][c] == nil {
			va, vb := g.Elevation[r][c], g.Elevation[r+1][c]
			if !crosses(va, vb, L) {
				return nil
			}
			p := interp(g.XData[c], g.YData[r], g.XData[c], g.YData[r+1], va, vb, L)
			vEdge[r][c] = &p
		}
		return vEdge[r][c]
	}

	var segs []segment
	for r := 0; r < rows-1; r++ {
		for c := 0; c < cols-1; c++ {
			if g.masked(r, c) || g.masked(r, c+1) || g.masked(r+1, c) || g.masked(r+1, c+1) {
				continue
			}
			segs = append(segs, cellSegments(g, r, c, L, getH, getV)...)
		}
	}

	return stitch(segs, level)
}

func crosses(va, vb, level float64) bool {
	return (va >= level) != (vb >= level)
}

func interp(x0, y0, x1, y1, v0, v1, level float64) point {
	if v0 == v1 {
		return point{(x0 + x1) / 2, (y0 + y1) / 2}
	}
	t := (level - v0) / (v1 - v0)
	return point{x0 + t*(x1-x0), y0 + t*(y1-y0)}
}

// cellSegments implements the 16-case marching-squares lookup for one
// cell, with the two ambiguous (saddle) cases resolved by comparing the
// average of the four corners with the level.
func cellSegments(g *Grid, r, c int, level float64, getH, getV func(r, c int) *point) []segment {
	tl := g.Elevation[r][c]
	tr := g.Elevation[r][c+1]
	br := g.Elevation[r+1][c+1]
	bl := g.Elevation[r+1][c]

	bit := func(v float64) int {
		if v >= level {
			return 1
		}
		return 0
	}
	cs := bit(tl)<<3 | bit(tr)<<2 | bit(br)<<1 | bit(bl)

	top := func() *point { return getH(r, c) }
	bottom := func() *point { return getH(r+1, c) }
	left := func() *point { return getV(r, c) }
	right := func() *point { return getV(r, c+1) }

	mk := func(a, b *point) []segment {
		if a == nil || b == nil {
			return nil
		}
		return []segment{{*a, *b}}
	}

	switch cs {
	case 0, 15:
		return nil
	case 1, 14:
		return mk(left(), bottom())
	case 2, 13:
		return mk(bottom(), right())
	case 3, 12:
		return mk(left(), right())
	case 4, 11:
		return mk(top(), right())
	case 6, 9:
		return mk(top(), bottom())
	case 7, 8:
		return mk(left(), top())
	case 5:
		avg := (tl + tr + br + bl) / 4
		if avg >= level {
			return append(mk(top(), left()), mk(bottom(), right())...)
		}
		return append(mk(top(), right()), mk(bottom(), left())...)
	case 10:
		avg := (tl + tr + br + bl) / 4
		if avg >= level {
			return append(mk(top(), right()), mk(bottom(), left())...)
		}
		return append(mk(top(), left()), mk(bottom(), right())...)
	}
	return nil
}

// stitch joins disjoint segments into polylines by following shared
// endpoints, extending each chain forward and backward until no unused
// segment touches either end.
func stitch(segs []segment, level int) []osm.Contour {
	if len(segs) == 0 {
		return nil
	}

	adj := make(map[point][]int, len(segs)*2)
	for i, s := range segs {
		adj[s.a] = append(adj[s.a], i)
		adj[s.b] = append(adj[s.b], i)
	}

	used := make([]bool, len(segs))
	var contours []osm.Contour

	popNeighbor := func(p point, exclude int) (int, bool) {
		for _, idx := range adj[p] {
			if idx != exclude && !used[idx] {
				return idx, true
			}
		}
		return 0, false
	}

	other := func(s segment, p point) point {
		if s.a == p {
			return s.b
		}
		return s.a
	}

	for start := range segs {
		if used[start] {
			continue
		}
		used[start] = true
		chain := []point{segs[start].a, segs[start].b}

		// Extend forward from the tail.
		for {
			tail := chain[len(chain)-1]
			idx, ok := popNeighbor(tail, -1)
			if !ok {
				break
			}
			used[idx] = true
			chain = append(chain, other(segs[idx], tail))
		}
		// Extend backward from the head.
		for {
			head := chain[0]
			idx, ok := popNeighbor(head, -1)
			if !ok {
				break
			}
			used[idx] = true
			chain = append([]point{other(segs[idx], head)}, chain...)
		}

		pts := make([]osm.Point, len(chain))
		for i, p := range chain {
			pts[i] = osm.Point{Lon: p.x, Lat: p.y}
		}
		contours = append(contours, osm.Contour{Elevation: level, Points: pts})
	}
	return contours
}
