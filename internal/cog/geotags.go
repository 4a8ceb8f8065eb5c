package cog

// GeoTIFF GeoKey IDs.
const (
	gkModelTypeGeoKey         = 1024
	gkRasterTypeGeoKey        = 1025
	gkGeographicTypeGeoKey    = 2048
	gkProjectedCSTypeGeoKey   = 3072
)

// GeoInfo is the georeferencing a DEM needs: where the grid's upper-left
// corner sits in the source CRS, how big a sample is, and which CRS it
// is. A zero-rotation affine is assumed throughout; rotated rasters are
// rejected upstream.
type GeoInfo struct {
	EPSG       int
	OriginX    float64 // CRS x of the upper-left corner
	OriginY    float64 // CRS y of the upper-left corner
	PixelSizeX float64 // sample width in CRS units (positive)
	PixelSizeY float64 // sample height in CRS units (positive)
}

// parseGeoInfo derives GeoInfo from an IFD's GeoTIFF tags. The
// ModelTiepoint tag maps pixel (I,J) to world (X,Y); combined with
// ModelPixelScale that pins the grid origin.
func parseGeoInfo(ifd *IFD) GeoInfo {
	info := GeoInfo{}

	if len(ifd.ModelPixelScale) >= 2 {
		info.PixelSizeX = ifd.ModelPixelScale[0]
		info.PixelSizeY = ifd.ModelPixelScale[1]
	}
	if len(ifd.ModelTiepoint) >= 6 {
		info.OriginX = ifd.ModelTiepoint[3] - ifd.ModelTiepoint[0]*info.PixelSizeX
		info.OriginY = ifd.ModelTiepoint[4] + ifd.ModelTiepoint[1]*info.PixelSizeY
	}
	info.EPSG = parseEPSG(ifd.GeoKeys)
	return info
}

// parseEPSG walks the GeoKey directory for a projected or geographic CRS
// code. The directory header is four shorts (version, revision, minor,
// key count) followed by one 4-short entry per key; for the CRS keys the
// EPSG code sits inline in the value-offset slot.
func parseEPSG(geoKeys []uint16) int {
	if len(geoKeys) < 4 {
		return 0
	}
	numKeys := int(geoKeys[3])

	for i := 0; i < numKeys; i++ {
		base := 4 + i*4
		if base+3 >= len(geoKeys) {
			break
		}
		keyID := geoKeys[base]
		value := geoKeys[base+3]

		switch keyID {
		case gkProjectedCSTypeGeoKey, gkGeographicTypeGeoKey:
			if value > 0 {
				return int(value)
			}
		}
	}
	return 0
}
