// Package coord provides forward and reverse transforms between a
// raster's source CRS and EPSG:4326, the coordinate system every emitted
// node lives in.
package coord

// Projection converts between a source CRS and WGS84. Implementations
// must be usable concurrently; all of this package's are stateless.
type Projection interface {
	// ToWGS84 converts source CRS coordinates to WGS84 lon/lat degrees.
	ToWGS84(x, y float64) (lon, lat float64)

	// FromWGS84 converts WGS84 lon/lat degrees to source CRS coordinates.
	FromWGS84(lon, lat float64) (x, y float64)

	// EPSG returns the EPSG code this projection implements.
	EPSG() int
}

// ForEPSG returns the Projection registered for an EPSG code, or nil when
// the code has no transform here (the raster loader surfaces that as an
// unsupported-projection error).
func ForEPSG(epsg int) Projection {
	switch epsg {
	case 2056:
		return &SwissLV95{}
	case 4326:
		return &WGS84Identity{}
	case 3857:
		return &WebMercatorProj{}
	default:
		return nil
	}
}

// WGS84Identity is the no-op projection for data already in EPSG:4326.
type WGS84Identity struct{}

func (w *WGS84Identity) ToWGS84(x, y float64) (lon, lat float64)   { return x, y }
func (w *WGS84Identity) FromWGS84(lon, lat float64) (x, y float64) { return lon, lat }
func (w *WGS84Identity) EPSG() int                                 { return 4326 }
