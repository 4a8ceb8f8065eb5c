package encode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/hgtcontour/hgtcontour/internal/osm"
	"github.com/klauspost/compress/zlib"
	"google.golang.org/protobuf/encoding/protowire"
)

// PBF field numbers, from fileformat.proto / osmformat.proto. There is no
// generated .pb.go for these messages (see DESIGN.md); every message is
// hand-assembled with protowire's low-level Append* helpers, the same
// technique real OSM PBF writers use.
const (
	fnBlobHeaderType     = 1
	fnBlobHeaderDataSize = 3

	fnBlobRaw     = 1
	fnBlobRawSize = 2
	fnBlobZlib    = 3

	fnHeaderBBox           = 1
	fnHeaderRequiredFeats  = 4
	fnHeaderWritingProgram = 16

	fnBBoxLeft, fnBBoxRight, fnBBoxTop, fnBBoxBottom = 1, 2, 3, 4

	fnBlockStringTable     = 1
	fnBlockPrimitiveGroup  = 2
	fnBlockGranularity     = 17
	fnBlockLatOffset       = 19
	fnBlockLonOffset       = 20

	fnStringTableS = 1

	fnGroupDense = 2
	fnGroupWays  = 3

	fnDenseID  = 1
	fnDenseLat = 8
	fnDenseLon = 9

	fnWayID   = 1
	fnWayKeys = 2
	fnWayVals = 3
	fnWayRefs = 8
)

// pbfGranularity is the coordinate unit: 100 nanodegrees, i.e. 1e-7
// degrees, the same precision the O5M and XML encoders carry.
const pbfGranularity = 100

// PBFEncoder writes the OSM PBF container format.
type PBFEncoder struct {
	w       io.Writer
	bounds  Bounds
	strings map[string]int32 // value -> index into the string table, index 0 reserved
	table   []string
	nodes   []osm.Node
	ways    []osm.Way
	done    bool
}

// NewPBFEncoder opens a PBF encoder writing to w. The header blob (bbox +
// generator string) is written immediately; node/way data is buffered and
// flushed as a single data blob during Done, so the shared string table
// can be built once across every sub-tile's output.
func NewPBFEncoder(w io.Writer, bounds Bounds) (*PBFEncoder, error) {
	e := &PBFEncoder{w: w, bounds: bounds, strings: make(map[string]int32)}
	e.table = append(e.table, "") // index 0 is always the empty string
	if err := e.writeHeaderBlob(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *PBFEncoder) writeHeaderBlob() error {
	var hb []byte
	var bbox []byte
	bbox = protowire.AppendTag(bbox, fnBBoxLeft, protowire.VarintType)
	bbox = protowire.AppendVarint(bbox, protowire.EncodeZigZag(nanodeg(e.bounds.MinLon)))
	bbox = protowire.AppendTag(bbox, fnBBoxRight, protowire.VarintType)
	bbox = protowire.AppendVarint(bbox, protowire.EncodeZigZag(nanodeg(e.bounds.MaxLon)))
	bbox = protowire.AppendTag(bbox, fnBBoxTop, protowire.VarintType)
	bbox = protowire.AppendVarint(bbox, protowire.EncodeZigZag(nanodeg(e.bounds.MaxLat)))
	bbox = protowire.AppendTag(bbox, fnBBoxBottom, protowire.VarintType)
	bbox = protowire.AppendVarint(bbox, protowire.EncodeZigZag(nanodeg(e.bounds.MinLat)))

	hb = protowire.AppendTag(hb, fnHeaderBBox, protowire.BytesType)
	hb = protowire.AppendBytes(hb, bbox)
	hb = protowire.AppendTag(hb, fnHeaderRequiredFeats, protowire.BytesType)
	hb = protowire.AppendBytes(hb, []byte("OsmSchema-V0.6"))
	hb = protowire.AppendTag(hb, fnHeaderRequiredFeats, protowire.BytesType)
	hb = protowire.AppendBytes(hb, []byte("DenseNodes"))
	hb = protowire.AppendTag(hb, fnHeaderWritingProgram, protowire.BytesType)
	hb = protowire.AppendBytes(hb, []byte(generator))

	return e.writeBlob("OSMHeader", hb)
}

// nanodeg converts a WGS84 degree value to the header bbox's fixed
// nanodegree (1e-9) unit, which is independent of the per-block
// granularity used for node/way coordinates.
func nanodeg(v float64) int64 { return int64(math.Round(v * 1e9)) }

func (e *PBFEncoder) writeBlob(blobType string, payload []byte) error {
	raw := payload
	compressed := zlibCompress(payload)

	var blob []byte
	blob = protowire.AppendTag(blob, fnBlobRawSize, protowire.VarintType)
	blob = protowire.AppendVarint(blob, uint64(len(payload)))
	if compressed != nil && len(compressed) < len(raw) {
		blob = protowire.AppendTag(blob, fnBlobZlib, protowire.BytesType)
		blob = protowire.AppendBytes(blob, compressed)
	} else {
		blob = protowire.AppendTag(blob, fnBlobRaw, protowire.BytesType)
		blob = protowire.AppendBytes(blob, raw)
	}

	var header []byte
	header = protowire.AppendTag(header, fnBlobHeaderType, protowire.BytesType)
	header = protowire.AppendBytes(header, []byte(blobType))
	header = protowire.AppendTag(header, fnBlobHeaderDataSize, protowire.VarintType)
	header = protowire.AppendVarint(header, uint64(len(blob)))

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(header)))
	if _, err := e.w.Write(lenPrefix[:]); err != nil {
		return err
	}
	if _, err := e.w.Write(header); err != nil {
		return err
	}
	_, err := e.w.Write(blob)
	return err
}

func zlibCompress(data []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil
	}
	if err := zw.Close(); err != nil {
		return nil
	}
	return buf.Bytes()
}

// WriteNodes buffers nodes for the dense-nodes encoding in Done.
func (e *PBFEncoder) WriteNodes(nodes []osm.Node) error {
	e.nodes = append(e.nodes, nodes...)
	return nil
}

// WriteWays buffers ways for Done.
func (e *PBFEncoder) WriteWays(ways []osm.Way) error {
	e.ways = append(e.ways, ways...)
	return nil
}

func (e *PBFEncoder) internString(s string) int32 {
	if idx, ok := e.strings[s]; ok {
		return idx
	}
	idx := int32(len(e.table))
	e.table = append(e.table, s)
	e.strings[s] = idx
	return idx
}

// Done assembles and writes the single OSMData blob containing every
// buffered node (as DenseNodes) and way.
func (e *PBFEncoder) Done() error {
	if e.done {
		return nil
	}
	e.done = true
	if len(e.nodes) == 0 && len(e.ways) == 0 {
		return nil
	}

	// Pre-register tag strings so the table is stable before way encoding.
	for _, w := range e.ways {
		e.internString("ele")
		e.internString(fmt.Sprintf("%d", w.Elevation))
		e.internString("contour")
		e.internString("elevation")
		e.internString("contour_ext")
		e.internString(w.ContourExt)
	}

	var dense []byte
	var ids, lats, lons []byte
	var lastID int64
	var lastLat, lastLon int64
	for _, n := range e.nodes {
		ids = protowire.AppendVarint(ids, protowire.EncodeZigZag(n.ID-lastID))
		lastID = n.ID

		lat := coordUnits(n.Lat)
		lon := coordUnits(n.Lon)
		lats = protowire.AppendVarint(lats, protowire.EncodeZigZag(lat-lastLat))
		lons = protowire.AppendVarint(lons, protowire.EncodeZigZag(lon-lastLon))
		lastLat, lastLon = lat, lon
	}
	if len(e.nodes) > 0 {
		dense = protowire.AppendTag(dense, fnDenseID, protowire.BytesType)
		dense = protowire.AppendBytes(dense, ids)
		dense = protowire.AppendTag(dense, fnDenseLat, protowire.BytesType)
		dense = protowire.AppendBytes(dense, lats)
		dense = protowire.AppendTag(dense, fnDenseLon, protowire.BytesType)
		dense = protowire.AppendBytes(dense, lons)
	}

	var nodeGroup []byte
	if len(dense) > 0 {
		nodeGroup = protowire.AppendTag(nodeGroup, fnGroupDense, protowire.BytesType)
		nodeGroup = protowire.AppendBytes(nodeGroup, dense)
	}

	var wayGroup []byte
	for _, w := range e.ways {
		var wbuf []byte
		wbuf = protowire.AppendTag(wbuf, fnWayID, protowire.VarintType)
		wbuf = protowire.AppendVarint(wbuf, uint64(w.ID))

		var refs []byte
		var lastRef int64
		for _, ref := range w.NodeIDs {
			refs = protowire.AppendVarint(refs, protowire.EncodeZigZag(ref-lastRef))
			lastRef = ref
		}
		wbuf = protowire.AppendTag(wbuf, fnWayRefs, protowire.BytesType)
		wbuf = protowire.AppendBytes(wbuf, refs)

		keys := []uint32{uint32(e.internString("ele")), uint32(e.internString("contour")), uint32(e.internString("contour_ext"))}
		vals := []uint32{
			uint32(e.internString(fmt.Sprintf("%d", w.Elevation))),
			uint32(e.internString("elevation")),
			uint32(e.internString(w.ContourExt)),
		}
		var keyBuf, valBuf []byte
		for _, k := range keys {
			keyBuf = protowire.AppendVarint(keyBuf, uint64(k))
		}
		for _, v := range vals {
			valBuf = protowire.AppendVarint(valBuf, uint64(v))
		}
		wbuf = protowire.AppendTag(wbuf, fnWayKeys, protowire.BytesType)
		wbuf = protowire.AppendBytes(wbuf, keyBuf)
		wbuf = protowire.AppendTag(wbuf, fnWayVals, protowire.BytesType)
		wbuf = protowire.AppendBytes(wbuf, valBuf)

		wayGroup = protowire.AppendTag(wayGroup, fnGroupWays, protowire.BytesType)
		wayGroup = protowire.AppendBytes(wayGroup, wbuf)
	}

	var stringTable []byte
	for _, s := range e.table {
		stringTable = protowire.AppendTag(stringTable, fnStringTableS, protowire.BytesType)
		stringTable = protowire.AppendBytes(stringTable, []byte(s))
	}

	var block []byte
	block = protowire.AppendTag(block, fnBlockStringTable, protowire.BytesType)
	block = protowire.AppendBytes(block, stringTable)
	if len(nodeGroup) > 0 {
		block = protowire.AppendTag(block, fnBlockPrimitiveGroup, protowire.BytesType)
		block = protowire.AppendBytes(block, nodeGroup)
	}
	if len(wayGroup) > 0 {
		block = protowire.AppendTag(block, fnBlockPrimitiveGroup, protowire.BytesType)
		block = protowire.AppendBytes(block, wayGroup)
	}
	block = protowire.AppendTag(block, fnBlockGranularity, protowire.VarintType)
	block = protowire.AppendVarint(block, pbfGranularity)
	block = protowire.AppendTag(block, fnBlockLatOffset, protowire.VarintType)
	block = protowire.AppendVarint(block, 0)
	block = protowire.AppendTag(block, fnBlockLonOffset, protowire.VarintType)
	block = protowire.AppendVarint(block, 0)

	return e.writeBlob("OSMData", block)
}

// coordUnits converts a WGS84 degree value to the per-block granularity
// unit: with granularity 100 and offset 0, this is exactly value*1e7,
// i.e. 100-nanodegree precision.
func coordUnits(v float64) int64 { return int64(math.Round(v * 1e9 / pbfGranularity)) }
