package raster

import "math"

// supersample resizes elev by ratio using a separable cubic (order-3,
// Catmull-Rom) convolution, rounded to the nearest integer, and resizes
// mask with nearest-neighbor. Supersampled elevations
// adjacent to a void are clamped back through the void threshold so a
// spline overshoot cannot manufacture a bogus non-void value next to a
// void cell.
func supersample(elev [][]float64, mask [][]bool, ratio float64, voidThreshold float64) (outElev [][]float64, outMask [][]bool, rows, cols int) {
	srcRows := len(elev)
	srcCols := len(elev[0])
	rows = int(math.Round(float64(srcRows) * ratio))
	cols = int(math.Round(float64(srcCols) * ratio))
	if rows < 2 {
		rows = 2
	}
	if cols < 2 {
		cols = 2
	}

	outElev = make([][]float64, rows)
	outMask = make([][]bool, rows)
	for r := 0; r < rows; r++ {
		srcY := float64(r) * float64(srcRows-1) / float64(rows-1)
		outElev[r] = make([]float64, cols)
		outMask[r] = make([]bool, cols)
		ny := clampInt(int(math.Round(srcY)), 0, srcRows-1)
		for c := 0; c < cols; c++ {
			srcX := float64(c) * float64(srcCols-1) / float64(cols-1)
			nx := clampInt(int(math.Round(srcX)), 0, srcCols-1)
			outMask[r][c] = mask[ny][nx]

			v := cubicSample(elev, srcX, srcY, srcRows, srcCols)
			v = math.Round(v)
			if outMask[r][c] && v > voidThreshold {
				v = elev[ny][nx]
			}
			outElev[r][c] = v
		}
	}
	return
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// cubicSample performs separable bicubic (Catmull-Rom) interpolation of
// elev at fractional grid coordinates (x, y).
func cubicSample(elev [][]float64, x, y float64, rows, cols int) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	var colSamples [4]float64
	for i := -1; i <= 2; i++ {
		yy := clampInt(y0+i, 0, rows-1)
		var rowSamples [4]float64
		for j := -1; j <= 2; j++ {
			xx := clampInt(x0+j, 0, cols-1)
			rowSamples[j+1] = elev[yy][xx]
		}
		colSamples[i+1] = catmullRom(rowSamples[0], rowSamples[1], rowSamples[2], rowSamples[3], fx)
	}
	return catmullRom(colSamples[0], colSamples[1], colSamples[2], colSamples[3], fy)
}

func catmullRom(p0, p1, p2, p3, t float64) float64 {
	return p1 + 0.5*t*(p2-p0+t*(2*p0-5*p1+4*p2-p3+t*(3*(p1-p2)+p3-p0)))
}
