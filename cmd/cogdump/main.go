// Command cogdump prints the GeoTIFF/COG header fields and a sample
// float-tile read for one elevation source file, for diagnosing a
// raster.Load failure without running the full pipeline.
package main

import (
	"fmt"
	"math"
	"os"

	"github.com/hgtcontour/hgtcontour/internal/cog"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: cogdump <file.tif|.tiff>\n")
		os.Exit(1)
	}
	path := os.Args[1]

	r, err := cog.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening %s: %v\n", path, err)
		os.Exit(1)
	}
	defer r.Close()

	fmt.Printf("File: %s\n", path)
	fmt.Printf("IsFloat: %v\n", r.IsFloat())
	fmt.Printf("EPSG: %d\n", r.EPSG())
	fmt.Printf("NoData: %q\n", r.NoData())
	fmt.Printf("Width x Height: %d x %d\n", r.Width(), r.Height())
	fmt.Printf("PixelSize (CRS units): %f\n", r.PixelSize())

	minX, minY, maxX, maxY := r.BoundsInCRS()
	fmt.Printf("BoundsInCRS: X=[%f, %f] Y=[%f, %f]\n", minX, maxX, minY, maxY)

	geo := r.GeoInfo()
	fmt.Printf("Origin: X=%f, Y=%f, PixelSizeX=%f, PixelSizeY=%f\n", geo.OriginX, geo.OriginY, geo.PixelSizeX, geo.PixelSizeY)

	fmt.Printf("IFDCount: %d\n", r.IFDCount())
	for i := 0; i < r.IFDCount(); i++ {
		ts := r.IFDTileSize(i)
		fmt.Printf("  IFD %d: %dx%d, tile %dx%d, pixelSize=%f\n", i, r.IFDWidth(i), r.IFDHeight(i), ts[0], ts[1], r.IFDPixelSize(i))
	}

	fmt.Println("\n--- band 1, tile (0,0) ---")
	data, w, h, err := r.ReadElevationTile(0, 0, 0)
	if err != nil {
		fmt.Printf("ReadElevationTile: %v\n", err)
		os.Exit(1)
	}
	if data == nil {
		fmt.Println("tile is empty (fully nodata)")
		return
	}

	minVal, maxVal := math.Inf(1), math.Inf(-1)
	nan := 0
	for _, v := range data {
		fv := float64(v)
		if math.IsNaN(fv) {
			nan++
			continue
		}
		if fv < minVal {
			minVal = fv
		}
		if fv > maxVal {
			maxVal = fv
		}
	}
	fmt.Printf("%dx%d values, %d NaN, elevation range [%.2f, %.2f]\n", w, h, nan, minVal, maxVal)
}
