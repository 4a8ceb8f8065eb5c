package encode

import (
	"io"
	"math"
	"strconv"

	"github.com/hgtcontour/hgtcontour/internal/osm"
)

// O5M dataset type bytes.
const (
	o5mReset     = 0xFF
	o5mFormat    = 0xE0
	o5mTimestamp = 0xDC
	o5mBBox      = 0xDB
	o5mNode      = 0x10
	o5mWay       = 0x11
	o5mEOF       = 0xFE
)

// O5MEncoder writes the O5M binary format.
type O5MEncoder struct {
	w io.Writer

	nodeTable stringTable
	wayTable  stringTable

	lastNodeID  int64
	lastLon     int64
	lastLat     int64
	lastNodeTS  int64
	lastWayID   int64
	lastWayRef  int64
	lastWayTS   int64

	writeTimestamp bool
	runTimestamp   int64 // seconds since epoch, shared by header + version chunks

	ways []osm.Way
	done bool
}

// NewO5MEncoder opens an O5M encoder writing to w. If writeTimestamp is
// true, runTimestamp (unix seconds) is recorded in the header timestamp
// dataset and used as every node/way's version-chunk timestamp.
func NewO5MEncoder(w io.Writer, bounds Bounds, writeTimestamp bool, runTimestamp int64) (*O5MEncoder, error) {
	e := &O5MEncoder{w: w, writeTimestamp: writeTimestamp, runTimestamp: runTimestamp}
	if err := e.writeByte(o5mReset); err != nil {
		return nil, err
	}
	if err := e.writeDataset(o5mFormat, []byte("o5m2")); err != nil {
		return nil, err
	}
	if writeTimestamp {
		if err := e.writeDataset(o5mTimestamp, AppendSint(nil, runTimestamp)); err != nil {
			return nil, err
		}
	}
	bbox := AppendSint(nil, round1e7(bounds.MinLon))
	bbox = AppendSint(bbox, round1e7(bounds.MinLat))
	bbox = AppendSint(bbox, round1e7(bounds.MaxLon))
	bbox = AppendSint(bbox, round1e7(bounds.MaxLat))
	if err := e.writeDataset(o5mBBox, bbox); err != nil {
		return nil, err
	}
	if err := e.writeByte(o5mReset); err != nil {
		return nil, err
	}
	e.nodeTable.reset()
	return e, nil
}

func round1e7(v float64) int64 { return int64(math.Round(v * 1e7)) }

func (e *O5MEncoder) writeByte(b byte) error {
	_, err := e.w.Write([]byte{b})
	return err
}

func (e *O5MEncoder) writeDataset(kind byte, payload []byte) error {
	header := []byte{kind}
	header = AppendUint(header, uint64(len(payload)))
	if _, err := e.w.Write(header); err != nil {
		return err
	}
	_, err := e.w.Write(payload)
	return err
}

// versionChunk renders the O5M author/version sub-record: version 0 (no
// metadata) when timestamps are disabled, or version 1 plus a delta-coded
// timestamp, a zero changeset delta, and an anonymous (uid 0) author
// otherwise. This is the simplest self-consistent author layout real
// o5m readers tolerate.
func (e *O5MEncoder) versionChunk(lastTS *int64, table *stringTable) []byte {
	if !e.writeTimestamp {
		return AppendUint(nil, 0)
	}
	buf := AppendUint(nil, 1)
	buf = AppendSint(buf, e.runTimestamp-*lastTS)
	*lastTS = e.runTimestamp
	buf = AppendSint(buf, 0) // changeset delta
	buf = AppendUint(buf, 0) // uid
	buf = table.encode(buf, "", "")
	return buf
}

// WriteNodes emits 0x10 node records immediately, in call order.
func (e *O5MEncoder) WriteNodes(nodes []osm.Node) error {
	for _, n := range nodes {
		lon, lat := round1e7(n.Lon), round1e7(n.Lat)
		body := AppendSint(nil, n.ID-e.lastNodeID)
		body = append(body, e.versionChunk(&e.lastNodeTS, &e.nodeTable)...)
		body = AppendSint(body, lon-e.lastLon)
		body = AppendSint(body, lat-e.lastLat)
		if err := e.writeDataset(o5mNode, body); err != nil {
			return err
		}
		e.lastNodeID, e.lastLon, e.lastLat = n.ID, lon, lat
	}
	return nil
}

// WriteWays buffers ways; they are emitted during Done once the node
// stream (and its delta-coding context) is known to be complete.
func (e *O5MEncoder) WriteWays(ways []osm.Way) error {
	e.ways = append(e.ways, ways...)
	return nil
}

func (e *O5MEncoder) emitWays() error {
	if len(e.ways) == 0 {
		return nil
	}
	if err := e.writeByte(o5mReset); err != nil {
		return err
	}
	e.wayTable.reset()
	e.lastWayID = 0
	e.lastWayRef = 0
	e.lastWayTS = 0

	for _, way := range e.ways {
		body := AppendSint(nil, way.ID-e.lastWayID)
		body = append(body, e.versionChunk(&e.lastWayTS, &e.wayTable)...)

		refsec := AppendSint(nil, way.NodeIDs[0]-e.lastWayRef)
		for i := 1; i < len(way.NodeIDs); i++ {
			refsec = AppendSint(refsec, way.NodeIDs[i]-way.NodeIDs[i-1])
		}
		e.lastWayRef = way.NodeIDs[len(way.NodeIDs)-1]

		body = AppendUint(body, uint64(len(refsec)))
		body = append(body, refsec...)

		body = e.wayTable.encode(body, "ele", strconv.Itoa(way.Elevation))
		body = e.wayTable.encode(body, "contour", "elevation")
		body = e.wayTable.encode(body, "contour_ext", way.ContourExt)

		if err := e.writeDataset(o5mWay, body); err != nil {
			return err
		}
		e.lastWayID = way.ID
	}
	return nil
}

// Done emits the buffered way dataset and the trailing EOF byte.
func (e *O5MEncoder) Done() error {
	if e.done {
		return nil
	}
	e.done = true
	if err := e.emitWays(); err != nil {
		return err
	}
	return e.writeByte(o5mEOF)
}
