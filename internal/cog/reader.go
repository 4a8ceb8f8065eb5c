// Package cog reads elevation bands out of GeoTIFF/COG files. The file is
// memory-mapped and parsed lazily: Open walks the IFD chain and the geo
// tags, ReadElevationTile decompresses and decodes one tile of band 1 on
// demand. Imagery-oriented TIFF features (JPEG tiles, multi-band color)
// are out of scope; a DEM is a single band of float or integer samples.
package cog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// TIFF compression tags this reader accepts for elevation data.
const (
	compressionNone    = 1
	compressionLZW     = 5
	compressionDeflate = 8
	compressionOldZlib = 32946
)

// Reader provides tile-level access to one GeoTIFF elevation file. The
// underlying mapping is read-only, so concurrent reads need no locking.
type Reader struct {
	data  []byte // memory-mapped file contents
	bo    binary.ByteOrder
	ifds  []IFD
	geo   GeoInfo
	path  string
	strip *stripLayout // non-nil for strip-based TIFFs promoted to virtual tiles
}

// stripLayout keeps the original strip table of a strip-based TIFF so
// virtual tiles can be stitched from consecutive strips at read time.
type stripLayout struct {
	offsets       []uint64
	byteCounts    []uint64
	rowsPerStrip  uint32
	stripsPerTile int
}

// Open memory-maps path and parses its TIFF structure. Georeferencing
// comes from embedded GeoTIFF tags, or a TFW sidecar when those are
// absent. Strip-based TIFFs are handled by promoting the strip layout to
// a virtual tile grid.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("%s: empty file", path)
	}

	data, err := mmapFile(f.Fd(), int(fi.Size()))
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	ifds, bo, err := parseTIFF(bytes.NewReader(data))
	if err != nil {
		munmapFile(data)
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(ifds) == 0 {
		munmapFile(data)
		return nil, fmt.Errorf("%s: no IFDs found", path)
	}

	first := &ifds[0]

	var sl *stripLayout
	if first.TileWidth == 0 || first.TileHeight == 0 {
		if len(first.StripOffsets) > 0 {
			sl = promoteStripsToTiles(first)
		} else {
			munmapFile(data)
			return nil, fmt.Errorf("%s: no tile or strip layout found", path)
		}
	}

	switch first.Compression {
	case compressionNone, compressionLZW, compressionDeflate, compressionOldZlib:
	default:
		munmapFile(data)
		return nil, fmt.Errorf("%s: compression type %d is not supported for elevation bands", path, first.Compression)
	}

	geo := parseGeoInfo(first)
	if geo.PixelSizeX == 0 && geo.PixelSizeY == 0 {
		if tfwPath := findTFW(path); tfwPath != "" {
			tfw, err := parseTFW(tfwPath)
			if err != nil {
				munmapFile(data)
				return nil, err
			}
			geo = tfw.toGeoInfo()
		}
	}
	if geo.EPSG == 0 && geo.PixelSizeX > 0 {
		geo.EPSG = inferEPSG(geo, first.Width, first.Height)
	}

	return &Reader{
		data:  data,
		bo:    bo,
		ifds:  ifds,
		geo:   geo,
		path:  path,
		strip: sl,
	}, nil
}

// promoteStripsToTiles rewrites a strip-based IFD as full-width virtual
// tiles of at least 256 rows, so downstream tile iteration sees one
// layout regardless of how the file was written.
func promoteStripsToTiles(ifd *IFD) *stripLayout {
	rps := ifd.RowsPerStrip
	if rps == 0 {
		rps = ifd.Height
	}

	const minTileHeight = 256
	stripsPerTile := 1
	if rps < minTileHeight {
		stripsPerTile = int((minTileHeight + rps - 1) / rps)
	}

	totalStrips := len(ifd.StripOffsets)
	numVirtual := (totalStrips + stripsPerTile - 1) / stripsPerTile

	offsets := make([]uint64, numVirtual)
	byteCounts := make([]uint64, numVirtual)
	for i := 0; i < numVirtual; i++ {
		start := i * stripsPerTile
		offsets[i] = ifd.StripOffsets[start]
		end := start + stripsPerTile
		if end > totalStrips {
			end = totalStrips
		}
		var total uint64
		for s := start; s < end; s++ {
			total += ifd.StripByteCounts[s]
		}
		byteCounts[i] = total
	}

	sl := &stripLayout{
		offsets:       ifd.StripOffsets,
		byteCounts:    ifd.StripByteCounts,
		rowsPerStrip:  rps,
		stripsPerTile: stripsPerTile,
	}

	ifd.TileWidth = ifd.Width
	ifd.TileHeight = rps * uint32(stripsPerTile)
	ifd.TileOffsets = offsets
	ifd.TileByteCounts = byteCounts

	return sl
}

// Close unmaps the file.
func (r *Reader) Close() error {
	if r.data != nil {
		err := munmapFile(r.data)
		r.data = nil
		return err
	}
	return nil
}

// Path returns the file path this reader was opened from.
func (r *Reader) Path() string { return r.path }

// GeoInfo returns the parsed georeferencing metadata.
func (r *Reader) GeoInfo() GeoInfo { return r.geo }

// Width returns the full-resolution raster width in samples.
func (r *Reader) Width() int { return int(r.ifds[0].Width) }

// Height returns the full-resolution raster height in samples.
func (r *Reader) Height() int { return int(r.ifds[0].Height) }

// PixelSize returns the sample spacing in CRS units.
func (r *Reader) PixelSize() float64 { return r.geo.PixelSizeX }

// IFDCount returns the number of IFDs (full resolution plus overviews).
func (r *Reader) IFDCount() int { return len(r.ifds) }

// BoundsInCRS returns the raster's bounding box in its own CRS.
func (r *Reader) BoundsInCRS() (minX, minY, maxX, maxY float64) {
	ifd := &r.ifds[0]
	minX = r.geo.OriginX
	maxY = r.geo.OriginY
	maxX = minX + float64(ifd.Width)*r.geo.PixelSizeX
	minY = maxY - float64(ifd.Height)*r.geo.PixelSizeY
	return
}

// EPSG returns the detected EPSG code, or 0 if unknown.
func (r *Reader) EPSG() int { return r.geo.EPSG }

// IsFloat reports whether band 1 stores IEEE floating-point samples.
func (r *Reader) IsFloat() bool {
	ifd := &r.ifds[0]
	return len(ifd.SampleFormat) > 0 && ifd.SampleFormat[0] == 3
}

// NoData returns the GDAL nodata string, or "" if not set.
func (r *Reader) NoData() string { return r.ifds[0].NoData }

// NoDataValue parses the GDAL nodata tag into the elevation sentinel it
// stands for. ok is false when the file declares no nodata value.
func (r *Reader) NoDataValue() (v float64, ok bool) {
	nd := strings.TrimSpace(r.ifds[0].NoData)
	if nd == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(nd, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// IFDWidth returns the raster width of the given IFD level.
func (r *Reader) IFDWidth(level int) int { return int(r.ifds[level].Width) }

// IFDHeight returns the raster height of the given IFD level.
func (r *Reader) IFDHeight(level int) int { return int(r.ifds[level].Height) }

// IFDPixelSize returns the sample spacing of the given IFD level in CRS units.
func (r *Reader) IFDPixelSize(level int) float64 {
	return r.geo.PixelSizeX * float64(r.ifds[0].Width) / float64(r.ifds[level].Width)
}

// IFDTileSize returns [tileWidth, tileHeight] for the given IFD level.
func (r *Reader) IFDTileSize(level int) [2]int {
	return [2]int{int(r.ifds[level].TileWidth), int(r.ifds[level].TileHeight)}
}

// readTileRaw returns the decompressed bytes of one tile, with the TIFF
// horizontal-differencing predictor undone. nil bytes mean an empty
// (sparse) tile.
func (r *Reader) readTileRaw(level, col, row int) ([]byte, *IFD, error) {
	if level < 0 || level >= len(r.ifds) {
		return nil, nil, fmt.Errorf("invalid IFD level %d (have %d)", level, len(r.ifds))
	}

	ifd := &r.ifds[level]
	tilesAcross := ifd.TilesAcross()
	tilesDown := ifd.TilesDown()
	if col < 0 || col >= tilesAcross || row < 0 || row >= tilesDown {
		return nil, nil, fmt.Errorf("tile (%d,%d) out of range (%dx%d)", col, row, tilesAcross, tilesDown)
	}

	if r.strip != nil && level == 0 {
		return r.readStripTileRaw(ifd, row)
	}

	tileIdx := row*tilesAcross + col
	if tileIdx >= len(ifd.TileOffsets) || tileIdx >= len(ifd.TileByteCounts) {
		return nil, nil, fmt.Errorf("tile index %d out of range", tileIdx)
	}

	offset := ifd.TileOffsets[tileIdx]
	size := ifd.TileByteCounts[tileIdx]
	if size == 0 {
		return nil, ifd, nil
	}
	end := offset + size
	if end > uint64(len(r.data)) {
		return nil, nil, fmt.Errorf("tile data [%d:%d] exceeds file size %d", offset, end, len(r.data))
	}

	decompressed, err := decompress(ifd.Compression, r.data[offset:end])
	if err != nil {
		return nil, nil, err
	}
	if ifd.Predictor == 2 {
		if ifd.Compression == compressionNone {
			buf := make([]byte, len(decompressed))
			copy(buf, decompressed)
			decompressed = buf
		}
		undoHorizontalDifferencing(decompressed, int(ifd.TileWidth), sampleStride(ifd))
	}
	return decompressed, ifd, nil
}

// readStripTileRaw stitches the strips composing one virtual tile row.
func (r *Reader) readStripTileRaw(ifd *IFD, tileRow int) ([]byte, *IFD, error) {
	sl := r.strip
	start := tileRow * sl.stripsPerTile
	end := start + sl.stripsPerTile
	if end > len(sl.offsets) {
		end = len(sl.offsets)
	}

	var combined []byte
	for s := start; s < end; s++ {
		offset := sl.offsets[s]
		size := sl.byteCounts[s]
		if size == 0 {
			continue
		}
		e := offset + size
		if e > uint64(len(r.data)) {
			return nil, nil, fmt.Errorf("strip %d data [%d:%d] exceeds file size %d", s, offset, e, len(r.data))
		}
		dec, err := decompress(ifd.Compression, r.data[offset:e])
		if err != nil {
			return nil, nil, fmt.Errorf("strip %d: %w", s, err)
		}
		combined = append(combined, dec...)
	}

	if len(combined) == 0 {
		return nil, ifd, nil
	}
	if ifd.Predictor == 2 {
		undoHorizontalDifferencing(combined, int(ifd.Width), sampleStride(ifd))
	}
	return combined, ifd, nil
}

func decompress(compression uint16, data []byte) ([]byte, error) {
	switch compression {
	case compressionNone:
		return data, nil
	case compressionDeflate, compressionOldZlib:
		return decompressDeflate(data)
	case compressionLZW:
		return decompressTIFFLZW(data)
	default:
		return nil, fmt.Errorf("unsupported compression: %d", compression)
	}
}

// decompressDeflate handles TIFF compression 8/32946. The standard wraps
// deflate in a zlib header, but some writers emit raw deflate streams.
func decompressDeflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err == nil {
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err == nil {
			return out, nil
		}
	}
	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	return io.ReadAll(fr)
}

// sampleStride returns the predictor stride in bytes: one pixel's worth
// of samples.
func sampleStride(ifd *IFD) int {
	bps := 8
	if len(ifd.BitsPerSample) > 0 {
		bps = int(ifd.BitsPerSample[0])
	}
	return int(ifd.SamplesPerPixel) * bps / 8
}

// undoHorizontalDifferencing reverses TIFF predictor=2: each byte is
// stored as the delta from the corresponding byte one pixel to the left.
func undoHorizontalDifferencing(data []byte, width, stride int) {
	rowBytes := width * stride
	for off := 0; off+rowBytes <= len(data); off += rowBytes {
		row := data[off : off+rowBytes]
		for x := stride; x < rowBytes; x++ {
			row[x] += row[x-stride]
		}
	}
}

// ReadElevationTile reads one tile of band 1 as float32 elevations.
// Integer bands (the common int16 DEM layout) are widened; multi-band
// files contribute only their first band. Empty (sparse) tiles return
// nil data with the tile dimensions.
func (r *Reader) ReadElevationTile(level, col, row int) ([]float32, int, int, error) {
	data, ifd, err := r.readTileRaw(level, col, row)
	if err != nil {
		return nil, 0, 0, err
	}

	w := int(ifd.TileWidth)
	h := int(ifd.TileHeight)
	if data == nil {
		return nil, w, h, nil
	}

	spp := int(ifd.SamplesPerPixel)
	if spp == 0 {
		spp = 1
	}
	bps := 32
	if len(ifd.BitsPerSample) > 0 {
		bps = int(ifd.BitsPerSample[0])
	}
	bytesPerSample := bps / 8
	pixelCount := w * h
	if need := pixelCount * spp * bytesPerSample; len(data) < need {
		return nil, 0, 0, fmt.Errorf("elevation tile data too short: got %d, need %d", len(data), need)
	}

	isFloat := len(ifd.SampleFormat) > 0 && ifd.SampleFormat[0] == 3
	signed := len(ifd.SampleFormat) > 0 && ifd.SampleFormat[0] == 2

	out := make([]float32, pixelCount)
	for i := 0; i < pixelCount; i++ {
		off := i * spp * bytesPerSample
		switch {
		case isFloat && bps == 32:
			out[i] = math.Float32frombits(r.bo.Uint32(data[off : off+4]))
		case isFloat && bps == 64:
			out[i] = float32(math.Float64frombits(r.bo.Uint64(data[off : off+8])))
		case bps == 16 && signed:
			out[i] = float32(int16(r.bo.Uint16(data[off : off+2])))
		case bps == 16:
			out[i] = float32(r.bo.Uint16(data[off : off+2]))
		case bps == 32 && signed:
			out[i] = float32(int32(r.bo.Uint32(data[off : off+4])))
		case bps == 32:
			out[i] = float32(r.bo.Uint32(data[off : off+4]))
		case bps == 8 && signed:
			out[i] = float32(int8(data[off]))
		case bps == 8:
			out[i] = float32(data[off])
		default:
			return nil, 0, 0, fmt.Errorf("unsupported elevation sample layout: %d bits, format %v", bps, ifd.SampleFormat)
		}
	}
	return out, w, h, nil
}
