package encode

import (
	"bytes"
	"testing"

	"github.com/hgtcontour/hgtcontour/internal/osm"
)

// TestO5MBytePrefix checks the byte-exact header prefix: a run with
// bbox (1,2,3,4) and a timestamp
// starts with the reset byte, the file-format dataset, the timestamp
// dataset, the bbox dataset, then another reset byte before the node
// stream.
func TestO5MBytePrefix(t *testing.T) {
	var buf bytes.Buffer
	bounds := Bounds{MinLon: 1, MinLat: 2, MaxLon: 3, MaxLat: 4}
	const ts = int64(1700000000)

	if _, err := NewO5MEncoder(&buf, bounds, true, ts); err != nil {
		t.Fatalf("NewO5MEncoder: %v", err)
	}

	var want []byte
	want = append(want, o5mReset)
	want = append(want, o5mFormat, 4)
	want = append(want, "o5m2"...)

	tsPayload := AppendSint(nil, ts)
	want = append(want, o5mTimestamp, byte(len(tsPayload)))
	want = append(want, tsPayload...)

	bboxPayload := AppendSint(nil, 10_000_000)
	bboxPayload = AppendSint(bboxPayload, 20_000_000)
	bboxPayload = AppendSint(bboxPayload, 30_000_000)
	bboxPayload = AppendSint(bboxPayload, 40_000_000)
	want = append(want, o5mBBox, byte(len(bboxPayload)))
	want = append(want, bboxPayload...)

	want = append(want, o5mReset)

	got := buf.Bytes()
	if !bytes.Equal(got, want) {
		t.Fatalf("prefix mismatch:\ngot:  % x\nwant: % x", got, want)
	}
}

func TestO5MNodeThenWay(t *testing.T) {
	var buf bytes.Buffer
	bounds := Bounds{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}
	enc, err := NewO5MEncoder(&buf, bounds, false, 0)
	if err != nil {
		t.Fatalf("NewO5MEncoder: %v", err)
	}

	nodes := []osm.Node{
		{ID: 1000, Lon: 0, Lat: 0},
		{ID: 1001, Lon: 0.5, Lat: 0},
		{ID: 1002, Lon: 0.5, Lat: 0.5},
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

	got := buf.Bytes()
	if len(got) == 0 {
		t.Fatal("expected non-empty output")
	}
	if got[len(got)-1] != o5mEOF {
		t.Fatalf("expected trailing EOF byte 0x%x, got 0x%x", o5mEOF, got[len(got)-1])
	}
	// There must be exactly one more reset byte after the initial two
	// (start + pre-node), marking the transition to the way stream. Resets
	// are counted at dataset boundaries only, since a varint inside a
	// dataset's payload can itself contain the byte 0xff.
	resets := 0
	for i := 0; i < len(got); {
		switch got[i] {
		case o5mReset:
			resets++
			i++
		case o5mEOF:
			i++
		default:
			size, n := DecodeUint(got[i+1:])
			if n <= 0 {
				t.Fatalf("malformed dataset length at offset %d", i)
			}
			i += 1 + n + int(size)
		}
	}
	if resets != 3 {
		t.Fatalf("expected 3 reset bytes (start, pre-node, pre-way), got %d", resets)
	}
}
