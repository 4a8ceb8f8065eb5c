// Package chop recursively halves a raster grid until each resulting
// sub-tile fits a node-count budget. Uses an explicit work stack rather
// than recursion so pathological inputs cannot blow the Go call stack.
package chop

import "github.com/hgtcontour/hgtcontour/internal/coord"

// BBox is a bounding box in the owning grid's coordinate units: degrees
// for EPSG:4326 grids, source-CRS units otherwise.
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// SubTile is a contiguous rectangular row-slice of a parent raster, with
// its own bbox. BBox is grid-aligned and in the grid's own CRS; GeoBBox
// is the EPSG:4326 equivalent used for output naming and encoder bounds.
// Transform is nil when the grid is already EPSG:4326 (then GeoBBox may
// be left zero and BBox is used directly). RowOffset is the slice's first
// row index in the parent grid, used only for diagnostics.
type SubTile struct {
	Elevation [][]float64
	Mask      [][]bool // nil if nothing is masked
	BBox      BBox
	GeoBBox   BBox
	Transform coord.Projection
	RowOffset int
}

// Geo returns the sub-tile's EPSG:4326 bbox.
func (s *SubTile) Geo() BBox {
	if s.Transform == nil && s.GeoBBox == (BBox{}) {
		return s.BBox
	}
	return s.GeoBBox
}

func (s *SubTile) rows() int { return len(s.Elevation) }
func (s *SubTile) cols() int {
	if len(s.Elevation) == 0 {
		return 0
	}
	return len(s.Elevation[0])
}

// allVoid reports whether every cell is masked out, so the sub-tile can be
// discarded before estimation.
func (s *SubTile) allVoid() bool {
	if s.Mask == nil {
		return false
	}
	for _, row := range s.Mask {
		for _, m := range row {
			if !m {
				return false
			}
		}
	}
	return true
}

// estimate computes a heuristic node-count estimate: the sum of absolute
// first differences over filled (non-void) neighbors, divided by step.
// Voids contribute 0.
func (s *SubTile) estimate(step int) float64 {
	if step <= 0 {
		step = 1
	}
	total := 0.0
	rows, cols := s.rows(), s.cols()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if s.Mask != nil && s.Mask[r][c] {
				continue
			}
			if c+1 < cols && !(s.Mask != nil && s.Mask[r][c+1]) {
				total += absFloat(s.Elevation[r][c+1] - s.Elevation[r][c])
			}
			if r+1 < rows && !(s.Mask != nil && s.Mask[r+1][c]) {
				total += absFloat(s.Elevation[r+1][c] - s.Elevation[r][c])
			}
		}
	}
	return total / float64(step)
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Options bounds the chopper's behavior.
type Options struct {
	Budget int // node-count budget; 0 means "never chop"
	Step   int // elevation step, used by the estimate heuristic
}

// Chop recursively halves root until every emitted piece either satisfies
// estimate <= Budget or cannot shrink further. Splitting duplicates the
// shared middle row, so a 2-row tile's "upper half" would be the whole
// tile again; tiles of 2 rows or fewer are emitted as-is, which keeps
// every split a strict row-count reduction and the loop finite.
func Chop(root *SubTile, opts Options) []*SubTile {
	var out []*SubTile
	stack := []*SubTile{root}

	for len(stack) > 0 {
		n := len(stack) - 1
		t := stack[n]
		stack = stack[:n]

		if t.allVoid() {
			continue
		}
		if opts.Budget <= 0 || t.estimate(opts.Step) <= float64(opts.Budget) || t.rows() <= 2 {
			out = append(out, t)
			continue
		}

		upper, lower := split(t)
		stack = append(stack, upper, lower)
	}
	return out
}

// split halves t horizontally at row floor(R/2), duplicating the shared
// row in both halves so contours never gap at the cut. This inflates the
// node-count estimate of each half by up to one row's worth; that
// overlap is intentional, not a bug. t must have at least 3 rows, or the
// duplicated row makes one half as tall as t itself.
func split(t *SubTile) (upper, lower *SubTile) {
	rows := t.rows()
	mid := rows / 2

	upperElev := t.Elevation[:mid+1]
	lowerElev := t.Elevation[mid:]

	var upperMask, lowerMask [][]bool
	if t.Mask != nil {
		upperMask = t.Mask[:mid+1]
		lowerMask = t.Mask[mid:]
	}

	latInc := (t.BBox.MaxLat - t.BBox.MinLat) / float64(rows-1)
	cutLat := t.BBox.MaxLat - float64(mid)*latInc

	geo := t.Geo()
	cutLatGeo := cutLat
	if t.Transform != nil {
		_, cutLatGeo = t.Transform.ToWGS84(t.BBox.MinLon, cutLat)
	}

	upper = &SubTile{
		Elevation: upperElev,
		Mask:      upperMask,
		BBox:      BBox{MinLon: t.BBox.MinLon, MinLat: cutLat, MaxLon: t.BBox.MaxLon, MaxLat: t.BBox.MaxLat},
		GeoBBox:   BBox{MinLon: geo.MinLon, MinLat: cutLatGeo, MaxLon: geo.MaxLon, MaxLat: geo.MaxLat},
		Transform: t.Transform,
		RowOffset: t.RowOffset,
	}
	lower = &SubTile{
		Elevation: lowerElev,
		Mask:      lowerMask,
		BBox:      BBox{MinLon: t.BBox.MinLon, MinLat: t.BBox.MinLat, MaxLon: t.BBox.MaxLon, MaxLat: cutLat},
		GeoBBox:   BBox{MinLon: geo.MinLon, MinLat: geo.MinLat, MaxLon: geo.MaxLon, MaxLat: cutLatGeo},
		Transform: t.Transform,
		RowOffset: t.RowOffset + mid,
	}
	return upper, lower
}
