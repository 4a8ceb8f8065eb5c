// Package osm holds the emission-form OSM data model shared by every
// encoder: nodes, ways, and the per-elevation contour map that feeds them.
package osm

import "time"

// Point is a (lon, lat) pair in EPSG:4326 degrees.
type Point struct {
	Lon, Lat float64
}

// Contour is an ordered sequence of points at a single integer elevation,
// as produced by the tracer and (optionally) simplified. A contour is
// closed iff its first and last points are equal.
type Contour struct {
	Elevation int
	Points    []Point
}

// Closed reports whether the contour's endpoints coincide.
func (c Contour) Closed() bool {
	if len(c.Points) < 2 {
		return false
	}
	first, last := c.Points[0], c.Points[len(c.Points)-1]
	return first == last
}

// TileContours maps an integer elevation to its traced contours for one
// sub-tile, plus the running totals used to pre-budget id allocation.
type TileContours struct {
	ByElevation map[int][]Contour
	NodeCount   int
	WayCount    int
}

// NewTileContours returns an empty TileContours.
func NewTileContours() *TileContours {
	return &TileContours{ByElevation: make(map[int][]Contour)}
}

// Node is the emission form of a single point: a stable id plus coordinates.
type Node struct {
	ID       int64
	Lon, Lat float64
}

// Way is the emission form of a (possibly way-split) contour chunk.
// NodeIDs holds the full reference list: length N for an open way
// (N distinct ids, N >= 2) or N+1 for a closed way (N distinct ids plus a
// trailing repeat of the first, N >= 3).
type Way struct {
	ID         int64
	NodeIDs    []int64
	Closed     bool
	Elevation  int
	ContourExt string
}

// Timestamp renders t as UTC RFC3339 with a trailing "Z", at second
// precision; the XML encoder uses it. O5M writes seconds-since-epoch of
// the same instant via its own sint varint and does not call this
// function. The PBF encoder writes no timestamps.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
