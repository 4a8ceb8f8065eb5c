// Package raster loads HGT and GeoTIFF elevation tiles into the in-memory
// grid shape the rest of the pipeline (chop, contour) consumes, applying
// void masking, optional supersampling, and the feet unit conversion.
package raster

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/hgtcontour/hgtcontour/internal/chop"
	"github.com/hgtcontour/hgtcontour/internal/cog"
	"github.com/hgtcontour/hgtcontour/internal/coord"
)

// Sentinel error kinds for the loader's failure modes.
var (
	ErrBadFilename         = errors.New("raster: bad HGT filename")
	ErrUnsupportedExtension = errors.New("raster: unsupported file extension")
	ErrUnsupportedProjection = errors.New("raster: unsupported projection")
	ErrNonAxisAlignedTile  = errors.New("raster: transformed tile is not axis-aligned")
	ErrRead                = errors.New("raster: read error")
)

// DefaultVoidThreshold is the sentinel below or at which a sample is void,
// per the GLOSSARY ("sentinel <= -0x8000 by default").
const DefaultVoidThreshold = -0x8000

// feetPerMeter is the inverse of the feet-to-meters conversion 0.3048.
const feetPerMeter = 1 / 0.3048

// Options controls how a Tile is loaded and corrected.
type Options struct {
	CorrX, CorrY float64 // longitude/latitude correction, applied in EPSG:4326
	// VoidThreshold is the minimum plausible height: elevations at or
	// below it are void. nil means DefaultVoidThreshold. Raising it masks
	// implausible low values (ocean fill, damaged samples) that would
	// otherwise flood the node-count estimate and force endless chopping.
	VoidThreshold *float64
	Feet         bool
	Supersample  float64 // ratio S >= 1; 0 or 1 means no supersampling
	Polygons     Polygons
}

// Polygons is the opaque clipping polygon set handed to the masker; see
// internal/polygon for its concrete representation. It is declared here as
// an interface so internal/raster does not import internal/polygon.
type Polygons interface {
	// Mask returns an R x C boolean mask (true = excluded) for the grid
	// spanned by the given axes.
	Mask(lonAxis, latAxis []float64) [][]bool
}

// Tile is a fully loaded, corrected RasterTile ready for chopping. BBox
// is always EPSG:4326 (it names output files and feeds encoder bounds);
// SrcBBox is the grid-aligned bbox in the file's own CRS and equals BBox
// when Forward is nil. LonInc/LatInc are the EPSG:4326 increments.
type Tile struct {
	Elevation [][]float64
	VoidMask  [][]bool
	BBox      chop.BBox
	SrcBBox   chop.BBox
	LonInc, LatInc float64
	Forward   coord.Projection // nil when already EPSG:4326
}

func (o Options) voidThreshold() float64 {
	if o.VoidThreshold != nil {
		return *o.VoidThreshold
	}
	return DefaultVoidThreshold
}

// Load opens path (.hgt, .tif, .tiff, .vrt) and returns a corrected Tile.
func Load(path string, opts Options) (*Tile, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".hgt":
		return loadHGT(path, opts)
	case ".tif", ".tiff", ".vrt":
		return loadGeoTIFF(path, opts)
	default:
		return nil, fmt.Errorf("%s: %w %q", path, ErrUnsupportedExtension, ext)
	}
}

var hgtNameRE = regexp.MustCompile(`^([NS])(\d{2})([EW])(\d{3})\.hgt$`)

// ParseHGTName extracts the lower-left corner (lon, lat) from an HGT
// filename of the form [NS]YY[EW]XXX.hgt.
func ParseHGTName(name string) (lon, lat float64, err error) {
	m := hgtNameRE.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, 0, fmt.Errorf("%q: %w", name, ErrBadFilename)
	}
	latAbs, _ := strconv.Atoi(m[2])
	lonAbs, _ := strconv.Atoi(m[4])
	lat = float64(latAbs)
	if m[1] == "S" {
		lat = -lat
	}
	lon = float64(lonAbs)
	if m[3] == "W" {
		lon = -lon
	}
	return lon, lat, nil
}

func loadHGT(path string, opts Options) (*Tile, error) {
	minLon, minLat, err := ParseHGTName(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrRead, err)
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%s: %w: odd byte length %d", path, ErrRead, len(data))
	}
	samples := len(data) / 2
	n := int(math.Round(math.Sqrt(float64(samples))))
	if n*n != samples {
		return nil, fmt.Errorf("%s: %w: %d samples is not a square grid", path, ErrRead, samples)
	}

	elev := make([][]float64, n)
	for r := 0; r < n; r++ {
		row := make([]float64, n)
		for c := 0; c < n; c++ {
			off := 2 * (r*n + c)
			v := int16(uint16(data[off])<<8 | uint16(data[off+1]))
			row[c] = float64(v)
		}
		elev[r] = row
	}

	maxLon := minLon + 1
	maxLat := minLat + 1
	inc := 1.0 / float64(n-1)

	bbox := chop.BBox{MinLon: minLon, MinLat: minLat, MaxLon: maxLon, MaxLat: maxLat}
	t := &Tile{
		Elevation: elev,
		BBox:      bbox,
		SrcBBox:   bbox,
		LonInc:    inc,
		LatInc:    inc,
	}
	return finish(t, opts)
}

func loadGeoTIFF(path string, opts Options) (*Tile, error) {
	srcPath := path
	if strings.ToLower(filepath.Ext(path)) == ".vrt" {
		resolved, err := resolveVRTSource(path)
		if err != nil {
			return nil, err
		}
		srcPath = resolved
	}

	r, err := cog.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrRead, err)
	}
	defer r.Close()

	geo := r.GeoInfo()
	if geo.PixelSizeX <= 0 || geo.PixelSizeY <= 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedProjection)
	}

	width, height := r.Width(), r.Height()
	elev, err := readFullBand(r, width, height)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrRead, err)
	}

	// The file's declared nodata sentinel can sit above the void threshold
	// (large positive fill values, NaN); fold those cells into the void
	// range so the threshold mask catches them.
	nodata, hasNodata := r.NoDataValue()
	vt := opts.voidThreshold()
	for _, row := range elev {
		for c, v := range row {
			if math.IsNaN(v) || (hasNodata && v == nodata) {
				row[c] = vt
			}
		}
	}

	minX := geo.OriginX
	maxY := geo.OriginY
	maxX := minX + float64(width)*geo.PixelSizeX
	minY := maxY - float64(height)*geo.PixelSizeY

	var fwd coord.Projection
	epsg := r.EPSG()
	if epsg != 0 && epsg != 4326 {
		fwd = coord.ForEPSG(epsg)
		if fwd == nil {
			return nil, fmt.Errorf("%s: %w: EPSG:%d has no registered transform", path, ErrUnsupportedProjection, epsg)
		}
	}

	srcBBox := chop.BBox{MinLon: minX, MinLat: minY, MaxLon: maxX, MaxLat: maxY}
	bbox := srcBBox
	if fwd != nil {
		bbox, err = axisAlignedBBoxWGS84(fwd, minX, minY, maxX, maxY)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	t := &Tile{
		Elevation: elev,
		BBox:      bbox,
		SrcBBox:   srcBBox,
		LonInc:    (bbox.MaxLon - bbox.MinLon) / float64(width-1),
		LatInc:    (bbox.MaxLat - bbox.MinLat) / float64(height-1),
		Forward:   fwd,
	}
	return finish(t, opts)
}

// axisAlignedBBoxWGS84 projects the four CRS-space corners to WGS84 and
// verifies the result is axis-aligned; the geo-transform has no rotation
// terms but the projection itself can still skew a rectangle, which the
// row/column axis model downstream cannot represent.
func axisAlignedBBoxWGS84(fwd coord.Projection, minX, minY, maxX, maxY float64) (chop.BBox, error) {
	lon1, lat1 := fwd.ToWGS84(minX, minY)
	lon2, lat2 := fwd.ToWGS84(minX, maxY)
	lon3, lat3 := fwd.ToWGS84(maxX, minY)
	lon4, lat4 := fwd.ToWGS84(maxX, maxY)

	const eps = 1e-7
	if math.Abs(lon1-lon2) > eps || math.Abs(lon3-lon4) > eps ||
		math.Abs(lat1-lat3) > eps || math.Abs(lat2-lat4) > eps {
		return chop.BBox{}, ErrNonAxisAlignedTile
	}

	lons := []float64{lon1, lon2, lon3, lon4}
	lats := []float64{lat1, lat2, lat3, lat4}
	bbox := chop.BBox{MinLon: lons[0], MaxLon: lons[0], MinLat: lats[0], MaxLat: lats[0]}
	for i := 1; i < 4; i++ {
		bbox.MinLon = math.Min(bbox.MinLon, lons[i])
		bbox.MaxLon = math.Max(bbox.MaxLon, lons[i])
		bbox.MinLat = math.Min(bbox.MinLat, lats[i])
		bbox.MaxLat = math.Max(bbox.MaxLat, lats[i])
	}
	return bbox, nil
}

// readFullBand stitches the overview-0 tile grid of r into one R x C
// float64 elevation array (band 1 only).
func readFullBand(r *cog.Reader, width, height int) ([][]float64, error) {
	ts := r.IFDTileSize(0)
	tw, th := ts[0], ts[1]
	if tw == 0 || th == 0 {
		tw, th = width, height
	}
	tilesAcross := (width + tw - 1) / tw
	tilesDown := (height + th - 1) / th

	out := make([][]float64, height)
	for i := range out {
		out[i] = make([]float64, width)
	}

	for ty := 0; ty < tilesDown; ty++ {
		for tx := 0; tx < tilesAcross; tx++ {
			data, w, h, err := r.ReadElevationTile(0, tx, ty)
			if err != nil {
				return nil, err
			}
			if data == nil {
				continue // empty tile, treated as zero elsewhere
			}
			baseX, baseY := tx*tw, ty*th
			for ry := 0; ry < h; ry++ {
				gy := baseY + ry
				if gy >= height {
					break
				}
				for rx := 0; rx < w; rx++ {
					gx := baseX + rx
					if gx >= width {
						break
					}
					out[gy][gx] = float64(data[ry*w+rx])
				}
			}
		}
	}
	return out, nil
}

// resolveVRTSource extracts the first <SourceFilename> from a GDAL VRT
// XML document and resolves it relative to the VRT's own directory. Only
// the single-source, zero-rotation case the spec requires is supported;
// VRTs with band math or multiple sources are out of scope.
func resolveVRTSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", path, ErrRead, err)
	}
	re := regexp.MustCompile(`<SourceFilename[^>]*>([^<]+)</SourceFilename>`)
	m := re.FindSubmatch(data)
	if m == nil {
		return "", fmt.Errorf("%s: %w: no SourceFilename in VRT", path, ErrRead)
	}
	src := string(m[1])
	if filepath.IsAbs(src) {
		return src, nil
	}
	return filepath.Join(filepath.Dir(path), src), nil
}

// finish applies void masking, supersampling, feet conversion, and the
// corrx/corry bbox correction shared by both loaders.
func finish(t *Tile, opts Options) (*Tile, error) {
	voidMask := computeVoidMask(t.Elevation, opts.voidThreshold())

	if opts.Supersample > 1 {
		elev, mask, newRows, newCols := supersample(t.Elevation, voidMask, opts.Supersample, opts.voidThreshold())
		t.Elevation = elev
		voidMask = mask
		t.LonInc = (t.BBox.MaxLon - t.BBox.MinLon) / float64(newCols-1)
		t.LatInc = (t.BBox.MaxLat - t.BBox.MinLat) / float64(newRows-1)
	}

	if opts.Feet {
		for r := range t.Elevation {
			for c := range t.Elevation[r] {
				if voidMask[r][c] {
					continue
				}
				t.Elevation[r][c] *= feetPerMeter
			}
		}
	}

	// Corrections are applied in EPSG:4326; for a transformed tile the
	// corrected bbox is round-tripped back into the source CRS.
	t.BBox.MinLon += opts.CorrX
	t.BBox.MaxLon += opts.CorrX
	t.BBox.MinLat += opts.CorrY
	t.BBox.MaxLat += opts.CorrY
	if t.Forward == nil {
		t.SrcBBox = t.BBox
	} else {
		minX, minY := t.Forward.FromWGS84(t.BBox.MinLon, t.BBox.MinLat)
		maxX, maxY := t.Forward.FromWGS84(t.BBox.MaxLon, t.BBox.MaxLat)
		t.SrcBBox = chop.BBox{MinLon: minX, MinLat: minY, MaxLon: maxX, MaxLat: maxY}
	}

	t.VoidMask = voidMask

	if opts.Polygons != nil {
		clipMask := opts.Polygons.Mask(t.geoAxes())
		t.VoidMask = orMasks(t.VoidMask, clipMask)
	}

	return t, nil
}

// geoAxes returns the EPSG:4326 longitude/latitude of every grid column
// and row center. For a transformed tile each axis goes through the
// projection; the axis-aligned check in the loader guarantees longitude
// depends only on column and latitude only on row.
func (t *Tile) geoAxes() (lonAxis, latAxis []float64) {
	rows, cols := len(t.Elevation), len(t.Elevation[0])
	lonAxis = make([]float64, cols)
	latAxis = make([]float64, rows)
	if t.Forward == nil {
		for c := range lonAxis {
			lonAxis[c] = t.BBox.MinLon + float64(c)*t.LonInc
		}
		for r := range latAxis {
			latAxis[r] = t.BBox.MaxLat - float64(r)*t.LatInc
		}
		return lonAxis, latAxis
	}
	srcXInc := (t.SrcBBox.MaxLon - t.SrcBBox.MinLon) / float64(cols-1)
	srcYInc := (t.SrcBBox.MaxLat - t.SrcBBox.MinLat) / float64(rows-1)
	for c := range lonAxis {
		lonAxis[c], _ = t.Forward.ToWGS84(t.SrcBBox.MinLon+float64(c)*srcXInc, t.SrcBBox.MinLat)
	}
	for r := range latAxis {
		_, latAxis[r] = t.Forward.ToWGS84(t.SrcBBox.MinLon, t.SrcBBox.MaxLat-float64(r)*srcYInc)
	}
	return lonAxis, latAxis
}

func computeVoidMask(elev [][]float64, threshold float64) [][]bool {
	mask := make([][]bool, len(elev))
	for r, row := range elev {
		m := make([]bool, len(row))
		for c, v := range row {
			m[c] = v <= threshold
		}
		mask[r] = m
	}
	return mask
}

func orMasks(a, b [][]bool) [][]bool {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	out := make([][]bool, len(a))
	for r := range a {
		row := make([]bool, len(a[r]))
		for c := range row {
			row[c] = a[r][c] || (r < len(b) && c < len(b[r]) && b[r][c])
		}
		out[r] = row
	}
	return out
}
