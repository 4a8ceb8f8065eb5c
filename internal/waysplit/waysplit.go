// Package waysplit splits long simplified polylines into ways no longer
// than a configured node budget.
package waysplit

import "github.com/hgtcontour/hgtcontour/internal/osm"

// Chunk is one emitted way's worth of points, before id assignment.
type Chunk struct {
	Points []osm.Point
	Closed bool
}

// NodeCount returns how many distinct node ids this chunk consumes:
// len(Points) for an open chunk, len(Points)-1 for a closed one since the
// closing point repeats the first.
func (c Chunk) NodeCount() int {
	if c.Closed {
		return len(c.Points) - 1
	}
	return len(c.Points)
}

// Split breaks points into chunks of at most maxNodesPerWay points each.
// maxNodesPerWay == 0 disables splitting.
func Split(points []osm.Point, maxNodesPerWay int) []Chunk {
	n := len(points)
	if n < 2 {
		return nil
	}
	if maxNodesPerWay == 0 || n <= maxNodesPerWay {
		return []Chunk{newChunk(points)}
	}

	// Each chunk holds m points (m-1 segments); consecutive chunks share one
	// endpoint so the rendered contour stays continuous: "[0..M-1], [M-1..2M-2],
	// ...", i.e. a step of m-1 points per chunk.
	step := maxNodesPerWay - 1
	if step < 1 {
		step = 1
	}
	var chunks []Chunk
	start := 0
	for start < n-1 {
		end := start + step
		if end > n-1 {
			end = n - 1
		}
		chunks = append(chunks, newChunk(points[start:end+1]))
		if end >= n-1 {
			break
		}
		start = end // consecutive chunks share one endpoint
	}
	return chunks
}

func newChunk(points []osm.Point) Chunk {
	// Coinciding endpoints mean a closed ring. Split never builds a chunk
	// shorter than 2 points, and dedup upstream rules out [A, A].
	closed := points[0] == points[len(points)-1]
	return Chunk{Points: points, Closed: closed}
}

// Totals sums NodeCount and way count across chunks, feeding id
// pre-allocation.
func Totals(chunks []Chunk) (nodes, ways int) {
	for _, c := range chunks {
		nodes += c.NodeCount()
		ways++
	}
	return
}
