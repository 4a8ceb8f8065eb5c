package simplify

import (
	"testing"

	"github.com/hgtcontour/hgtcontour/internal/osm"
)

func pts(coords ...float64) []osm.Point {
	out := make([]osm.Point, 0, len(coords)/2)
	for i := 0; i < len(coords); i += 2 {
		out = append(out, osm.Point{Lon: coords[i], Lat: coords[i+1]})
	}
	return out
}

func TestDedup(t *testing.T) {
	in := pts(0, 0, 0, 0, 1, 1, 1, 1, 2, 2)
	got := Dedup(in)
	want := pts(0, 0, 1, 1, 2, 2)
	if !equal(got, want) {
		t.Fatalf("Dedup = %v, want %v", got, want)
	}
}

// TestRDP checks a zigzag spike is collapsed to its endpoints plus apex.
func TestRDP(t *testing.T) {
	in := pts(0, 0, 0.5, 0.5, 1, 1, 1.09, 0.2, 1, 0)
	eps := 0.1
	got := RDP(in, &eps)
	want := pts(0, 0, 1, 1, 1, 0)
	if !equal(got, want) {
		t.Fatalf("RDP = %v, want %v", got, want)
	}
}

func TestRDPNilEpsilonIsNoop(t *testing.T) {
	in := pts(0, 0, 0.5, 0.5, 1, 1)
	got := RDP(in, nil)
	if !equal(got, in) {
		t.Fatalf("RDP(nil) = %v, want unchanged %v", got, in)
	}
}

func TestRDPIdempotent(t *testing.T) {
	in := pts(0, 0, 0.5, 0.01, 1, 0, 1.5, 1, 2, 0, 2.5, -0.02, 3, 0)
	eps := 0.05
	once := RDP(in, &eps)
	twice := RDP(once, &eps)
	if !equal(once, twice) {
		t.Fatalf("RDP not idempotent: once=%v twice=%v", once, twice)
	}
}

func TestRDPZeroRemovesCollinear(t *testing.T) {
	in := pts(0, 0, 1, 1, 2, 2, 3, 1, 4, 0)
	eps := 0.0
	got := RDP(in, &eps)
	want := pts(0, 0, 2, 2, 4, 0)
	if !equal(got, want) {
		t.Fatalf("RDP(eps=0) = %v, want %v", got, want)
	}
}

func equal(a, b []osm.Point) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
