package encode

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/hgtcontour/hgtcontour/internal/osm"
)

// TestPBFWorkedExampleSize checks delta coding keeps the output small:
// a 4-node, 1-way file must come in at 500 bytes or fewer.
func TestPBFWorkedExampleSize(t *testing.T) {
	var buf bytes.Buffer
	bounds := Bounds{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}
	enc, err := NewPBFEncoder(&buf, bounds)
	if err != nil {
		t.Fatalf("NewPBFEncoder: %v", err)
	}

	nodes := []osm.Node{
		{ID: 1000, Lon: 0.5, Lat: 0},
		{ID: 1001, Lon: 1, Lat: 0.5},
		{ID: 1002, Lon: 0.5, Lat: 1},
		{ID: 1003, Lon: 0, Lat: 0.5},
	}
	if err := enc.WriteNodes(nodes); err != nil {
		t.Fatalf("WriteNodes: %v", err)
	}
	way := osm.Way{ID: 2000, NodeIDs: []int64{1000, 1001, 1002, 1003, 1000}, Closed: true, Elevation: 50, ContourExt: "elevation_medium"}
	if err := enc.WriteWays([]osm.Way{way}); err != nil {
		t.Fatalf("WriteWays: %v", err)
	}
	if err := enc.Done(); err != nil {
		t.Fatalf("Done: %v", err)
	}

	if buf.Len() > 500 {
		t.Fatalf("PBF output is %d bytes, want <= 500", buf.Len())
	}
	if buf.Len() == 0 {
		t.Fatal("expected non-empty output")
	}
}

// TestPBFBlobFraming checks that the file starts with a well-formed
// length-prefixed BlobHeader/Blob pair (the framing libosmium relies on),
// without needing a full protobuf decoder.
func TestPBFBlobFraming(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewPBFEncoder(&buf, Bounds{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}); err != nil {
		t.Fatalf("NewPBFEncoder: %v", err)
	}

	data := buf.Bytes()
	if len(data) < 4 {
		t.Fatalf("output too short: %d bytes", len(data))
	}
	headerLen := binary.BigEndian.Uint32(data[:4])
	if int(headerLen) > len(data)-4 {
		t.Fatalf("blob header length %d exceeds remaining buffer %d", headerLen, len(data)-4)
	}
	if headerLen == 0 {
		t.Fatal("expected non-zero BlobHeader length")
	}
}
