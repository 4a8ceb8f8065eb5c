package process

import (
	"bytes"
	"io"
	"regexp"
	"strconv"
	"sync"
	"testing"

	"github.com/hgtcontour/hgtcontour/internal/chop"
	"github.com/hgtcontour/hgtcontour/internal/coord"
	"github.com/hgtcontour/hgtcontour/internal/encode"
	"github.com/hgtcontour/hgtcontour/internal/ids"
	"github.com/hgtcontour/hgtcontour/internal/worker"
)

var nodeIDRE = regexp.MustCompile(`<node id="(\d+)"`)

// nodeIDRange returns the min/max node id found in an XML encoder's
// output, so a test can check id disjointness without reaching into the
// allocator's internal counters (which would race against the very
// concurrency it's trying to observe).
func nodeIDRange(xml string) (min, max int64, ok bool) {
	matches := nodeIDRE.FindAllStringSubmatch(xml, -1)
	if len(matches) == 0 {
		return 0, 0, false
	}
	for i, m := range matches {
		v, _ := strconv.ParseInt(m[1], 10, 64)
		if i == 0 {
			min, max = v, v
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max, true
}

type testLogger struct{ lines []string }

func (l *testLogger) Printf(format string, v ...interface{}) {
	l.lines = append(l.lines, format)
}

// TestProcessSubTileClosedContour traces a 3x3 grid with
// one closed contour at elevation 50 should produce 4 nodes ids 1000..1003
// and one closed way id 2000.
func TestProcessSubTileClosedContour(t *testing.T) {
	sub := &chop.SubTile{
		Elevation: [][]float64{
			{0, 50, 0},
			{50, 100, 50},
			{0, 50, 0},
		},
		BBox: chop.BBox{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1},
	}

	allocator := ids.New(1000, 2000)
	opts := Options{
		Step:             50,
		ClassifierMajor:  100,
		ClassifierMedium: 50,
		MaxNodesPerWay:   0,
		OSMVersion:       "0.6",
		Format:           "xml",
	}

	var buf bytes.Buffer
	enc, err := encode.NewXMLEncoder(&buf, encode.Bounds{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}, "0.6", "", 0)
	if err != nil {
		t.Fatalf("NewXMLEncoder: %v", err)
	}
	getEncoder := func() (encode.Encoder, io.Closer, error) { return enc, nil, nil }

	logger := &testLogger{}
	if err := ProcessSubTile(sub, opts, allocator, getEncoder, logger); err != nil {
		t.Fatalf("ProcessSubTile: %v", err)
	}
	if err := enc.Done(); err != nil {
		t.Fatalf("Done: %v", err)
	}

	out := buf.String()
	for _, id := range []string{"1000", "1001", "1002", "1003"} {
		if !bytes.Contains([]byte(out), []byte(`id="`+id+`"`)) {
			t.Errorf("missing node id %s in output:\n%s", id, out)
		}
	}
	if !bytes.Contains([]byte(out), []byte(`<way id="2000"`)) {
		t.Errorf("missing way id 2000 in output:\n%s", out)
	}
	if !bytes.Contains([]byte(out), []byte(`contour_ext" v="elevation_medium"`)) {
		t.Errorf("expected elevation_medium contour_ext:\n%s", out)
	}
}

// TestProcessSubTileSkipsUniformGrid checks the uniform-grid skip path: no
// encoder call is made and no error is returned.
func TestProcessSubTileSkipsUniformGrid(t *testing.T) {
	sub := &chop.SubTile{
		Elevation: [][]float64{
			{10, 10, 10},
			{10, 10, 10},
			{10, 10, 10},
		},
		BBox: chop.BBox{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1},
	}
	allocator := ids.New(1, 1)
	opts := Options{Step: 10, ClassifierMajor: 100, ClassifierMedium: 50, Format: "xml", OSMVersion: "0.6"}

	called := false
	getEncoder := func() (encode.Encoder, io.Closer, error) {
		called = true
		return nil, nil, nil
	}
	logger := &testLogger{}
	if err := ProcessSubTile(sub, opts, allocator, getEncoder, logger); err != nil {
		t.Fatalf("ProcessSubTile: %v", err)
	}
	if called {
		t.Fatal("encoder factory must not be called for a skipped uniform-grid sub-tile")
	}
	if len(logger.lines) == 0 {
		t.Fatal("expected a log line for the skipped sub-tile")
	}
}

// TestProcessSubTileAppliesTransform traces a sub-tile whose grid is in
// web-mercator meters and checks every emitted node coordinate was
// projected to EPSG:4326 degrees.
func TestProcessSubTileAppliesTransform(t *testing.T) {
	proj := coord.ForEPSG(3857)
	// A 1-degree square at the equator, expressed in mercator meters.
	maxX, _ := proj.FromWGS84(1, 0)
	_, maxY := proj.FromWGS84(0, 1)

	sub := &chop.SubTile{
		Elevation: [][]float64{
			{0, 50, 0},
			{50, 100, 50},
			{0, 50, 0},
		},
		BBox:      chop.BBox{MinLon: 0, MinLat: 0, MaxLon: maxX, MaxLat: maxY},
		GeoBBox:   chop.BBox{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1},
		Transform: proj,
	}

	allocator := ids.New(1, 1)
	opts := Options{Step: 50, ClassifierMajor: 100, ClassifierMedium: 50, Format: "xml", OSMVersion: "0.6"}

	var buf bytes.Buffer
	enc, err := encode.NewXMLEncoder(&buf, encode.Bounds{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}, "0.6", "", 0)
	if err != nil {
		t.Fatalf("NewXMLEncoder: %v", err)
	}
	getEncoder := func() (encode.Encoder, io.Closer, error) { return enc, nil, nil }

	if err := ProcessSubTile(sub, opts, allocator, getEncoder, &testLogger{}); err != nil {
		t.Fatalf("ProcessSubTile: %v", err)
	}
	if err := enc.Done(); err != nil {
		t.Fatalf("Done: %v", err)
	}

	coordRE := regexp.MustCompile(`lat="([-0-9.]+)" lon="([-0-9.]+)"`)
	matches := coordRE.FindAllStringSubmatch(buf.String(), -1)
	if len(matches) == 0 {
		t.Fatalf("no nodes emitted:\n%s", buf.String())
	}
	for _, m := range matches {
		lat, _ := strconv.ParseFloat(m[1], 64)
		lon, _ := strconv.ParseFloat(m[2], 64)
		if lon < -0.01 || lon > 1.01 || lat < -0.01 || lat > 1.01 {
			t.Fatalf("node (%v, %v) was not projected to the 0..1 degree square", lon, lat)
		}
	}
}

// TestIDDisjointnessUnderParallelism checks that
// several concurrently processed sub-tiles must reserve disjoint node/way
// id ranges from a shared allocator.
func TestIDDisjointnessUnderParallelism(t *testing.T) {
	allocator := ids.New(1000, 1000)
	opts := Options{Step: 25, ClassifierMajor: 100, ClassifierMedium: 50, Format: "xml", OSMVersion: "0.6"}
	logger := &testLogger{}

	type result struct {
		minID, maxID int64
	}
	var mu sync.Mutex
	var results []result
	pool := worker.New(8)

	for i := 0; i < 16; i++ {
		i := i
		pool.Go(func() error {
			base := float64(i)
			sub := &chop.SubTile{
				Elevation: [][]float64{
					{0, 50, 0},
					{50, 100, 50},
					{0, 50, 0},
				},
				BBox: chop.BBox{MinLon: base, MinLat: 0, MaxLon: base + 1, MaxLat: 1},
			}
			var buf bytes.Buffer
			enc, err := encode.NewXMLEncoder(&buf, encode.Bounds{MinLon: base, MinLat: 0, MaxLon: base + 1, MaxLat: 1}, "0.6", "", 0)
			if err != nil {
				return err
			}
			getEncoder := func() (encode.Encoder, io.Closer, error) { return enc, nil, nil }

			if err := ProcessSubTile(sub, opts, allocator, getEncoder, logger); err != nil {
				return err
			}
			if err := enc.Done(); err != nil {
				return err
			}
			if min, max, ok := nodeIDRange(buf.String()); ok {
				mu.Lock()
				results = append(results, result{minID: min, maxID: max})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		t.Fatalf("pool.Wait: %v", err)
	}

	if len(results) != 16 {
		t.Fatalf("expected 16 node ranges, got %d", len(results))
	}
	for a := 0; a < len(results); a++ {
		for b := a + 1; b < len(results); b++ {
			ra, rb := results[a], results[b]
			if ra.minID <= rb.maxID && rb.minID <= ra.maxID {
				t.Fatalf("overlapping node ranges: [%d,%d] and [%d,%d]", ra.minID, ra.maxID, rb.minID, rb.maxID)
			}
		}
	}
}

