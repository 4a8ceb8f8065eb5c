// Package ids hands out globally unique, non-overlapping id ranges for
// OSM nodes and ways across concurrent sub-tile producers.
package ids

import "sync/atomic"

// Allocator owns the two process-wide id counters for nodes and ways.
// The zero value is not usable; construct with New.
type Allocator struct {
	nextNode atomic.Int64
	nextWay  atomic.Int64
}

// New creates an Allocator starting at the given node/way ids.
func New(startNodeID, startWayID int64) *Allocator {
	a := &Allocator{}
	a.nextNode.Store(startNodeID)
	a.nextWay.Store(startWayID)
	return a
}

// ReserveNodes atomically reserves n consecutive node ids and returns the
// first one. The returned range is [first, first+n).
func (a *Allocator) ReserveNodes(n int64) int64 {
	return reserve(&a.nextNode, n)
}

// ReserveWays atomically reserves n consecutive way ids and returns the
// first one. The returned range is [first, first+n).
func (a *Allocator) ReserveWays(n int64) int64 {
	return reserve(&a.nextWay, n)
}

// reserve performs a single fetch-and-add: one atomic op, no separate
// mutex needed since both counters are independent int64s.
func reserve(counter *atomic.Int64, n int64) int64 {
	if n <= 0 {
		return counter.Load()
	}
	return counter.Add(n) - n
}

// PeekNodes returns the next node id that would be handed out, without
// reserving it. Useful for diagnostics only.
func (a *Allocator) PeekNodes() int64 { return a.nextNode.Load() }

// PeekWays returns the next way id that would be handed out, without
// reserving it. Useful for diagnostics only.
func (a *Allocator) PeekWays() int64 { return a.nextWay.Load() }
