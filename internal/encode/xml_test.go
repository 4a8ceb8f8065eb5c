package encode

import (
	"bytes"
	"strings"
	"testing"

	"github.com/hgtcontour/hgtcontour/internal/osm"
)

// TestXMLClosedWay writes one closed contour of 4 nodes, ids 1000..1003,
// and one closed way id 2000, then checks the element grammar.
func TestXMLClosedWay(t *testing.T) {
	var buf bytes.Buffer
	bounds := Bounds{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}
	enc, err := NewXMLEncoder(&buf, bounds, "0.6", "", 0)
	if err != nil {
		t.Fatalf("NewXMLEncoder: %v", err)
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

	out := buf.String()
	if !strings.HasPrefix(out, "<?xml version=\"1.0\" encoding=\"utf-8\"?>\n") {
		t.Fatalf("missing XML preamble: %s", out)
	}
	if !strings.Contains(out, `<osm version="0.6" generator="hgtcontour">`) {
		t.Errorf("missing osm root element: %s", out)
	}
	if !strings.Contains(out, `<bounds minlat="0.0000000" minlon="0.0000000" maxlat="1.0000000" maxlon="1.0000000"/>`) {
		t.Errorf("missing/incorrect bounds: %s", out)
	}
	if !strings.Contains(out, `<node id="1000" lat="0.0000000" lon="0.5000000" version="1"/>`) {
		t.Errorf("missing node 1000: %s", out)
	}
	if !strings.Contains(out, `<way id="2000" version="1">`) {
		t.Errorf("missing way 2000: %s", out)
	}
	for _, ref := range []string{"1000", "1001", "1002", "1003", "1000"} {
		if !strings.Contains(out, `<nd ref="`+ref+`"/>`) {
			t.Errorf("missing nd ref=%s: %s", ref, out)
		}
	}
	if !strings.Contains(out, `<tag k="ele" v="50"/>`) {
		t.Errorf("missing ele tag: %s", out)
	}
	if !strings.Contains(out, `<tag k="contour" v="elevation"/>`) {
		t.Errorf("missing contour tag: %s", out)
	}
	if !strings.Contains(out, `<tag k="contour_ext" v="elevation_medium"/>`) {
		t.Errorf("missing contour_ext tag: %s", out)
	}
	if !strings.HasSuffix(out, "</osm>\n") {
		t.Errorf("missing closing root element: %s", out)
	}
}

func TestXMLGzip(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewXMLEncoder(&buf, Bounds{}, "0.6", "", 6)
	if err != nil {
		t.Fatalf("NewXMLEncoder: %v", err)
	}
	if err := enc.Done(); err != nil {
		t.Fatalf("Done: %v", err)
	}
	if buf.Len() < 2 || buf.Bytes()[0] != 0x1f || buf.Bytes()[1] != 0x8b {
		t.Fatalf("expected gzip magic header, got % x", buf.Bytes()[:2])
	}
}
