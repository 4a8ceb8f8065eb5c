package waysplit

import (
	"testing"

	"github.com/hgtcontour/hgtcontour/internal/osm"
)

func linePoints(n int) []osm.Point {
	pts := make([]osm.Point, n)
	for i := range pts {
		pts[i] = osm.Point{Lon: float64(i), Lat: 0}
	}
	return pts
}

// TestSplitSharedEndpoints checks chunk boundaries and shared-endpoint accounting.
func TestSplitSharedEndpoints(t *testing.T) {
	chunks := Split(linePoints(5), 3)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if len(chunks[0].Points) != 3 || len(chunks[1].Points) != 3 {
		t.Fatalf("chunk sizes = %d, %d; want 3, 3", len(chunks[0].Points), len(chunks[1].Points))
	}
	nodes, ways := Totals(chunks)
	if nodes != 5 {
		t.Fatalf("total nodes = %d, want 5", nodes)
	}
	if ways != 2 {
		t.Fatalf("total ways = %d, want 2", ways)
	}
}

func TestSplitNoSplitNeeded(t *testing.T) {
	chunks := Split(linePoints(4), 10)
	if len(chunks) != 1 || len(chunks[0].Points) != 4 {
		t.Fatalf("expected single unsplit chunk, got %+v", chunks)
	}
}

func TestSplitZeroDisables(t *testing.T) {
	chunks := Split(linePoints(9999), 0)
	if len(chunks) != 1 {
		t.Fatalf("maxNodesPerWay=0 should disable splitting, got %d chunks", len(chunks))
	}
}

func TestSplitTooShort(t *testing.T) {
	if chunks := Split(linePoints(1), 3); chunks != nil {
		t.Fatalf("single point should emit nothing, got %+v", chunks)
	}
	if chunks := Split(nil, 3); chunks != nil {
		t.Fatalf("empty input should emit nothing, got %+v", chunks)
	}
}

func TestSplitClosedAccounting(t *testing.T) {
	pts := []osm.Point{{Lon: 0, Lat: 0}, {Lon: 1, Lat: 0}, {Lon: 1, Lat: 1}, {Lon: 0, Lat: 0}}
	chunks := Split(pts, 0)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if !chunks[0].Closed {
		t.Fatal("expected closed chunk")
	}
	if n := chunks[0].NodeCount(); n != 3 {
		t.Fatalf("closed chunk node count = %d, want 3", n)
	}
}

func TestSplitEveryChunkHasAtLeastTwoPoints(t *testing.T) {
	for n := 2; n <= 23; n++ {
		for m := 2; m <= 7; m++ {
			chunks := Split(linePoints(n), m)
			for i, c := range chunks {
				if len(c.Points) < 2 {
					t.Fatalf("n=%d m=%d chunk %d has %d points", n, m, i, len(c.Points))
				}
			}
		}
	}
}
