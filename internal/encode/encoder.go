// Package encode serializes the osm package's Node/Way data model to one
// of three OSM container formats: XML (optionally gzipped), PBF, or O5M.
// All three honor the same contract: nodes are always
// written before the ways that reference them, and a closed contour of N
// distinct points is emitted as N node elements plus a way whose
// reference list repeats the first id at the end.
package encode

import (
	"github.com/hgtcontour/hgtcontour/internal/osm"
)

// generator is the writing-program string shared by the XML root element
// and the PBF header blob.
const generator = "hgtcontour"

// Bounds is the output file's bbox header, in EPSG:4326 degrees.
type Bounds struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// Encoder is the shared contract every container format implements.
// WriteNodes and WriteWays may be called multiple times (once per
// sub-tile) before a final Done call finalizes the container; callers
// must present WriteWays node references that were already written by a
// prior WriteNodes call; the tile processor's id pre-reservation
// guarantees this ordering.
type Encoder interface {
	// WriteNodes writes (XML, O5M) or buffers (PBF) node elements for
	// nodes, in order.
	WriteNodes(nodes []osm.Node) error
	// WriteWays buffers way elements; every encoder emits them during Done.
	WriteWays(ways []osm.Way) error
	// Done finalizes the container: flushes any buffered ways, closes the
	// root element/container, and (O5M) appends the trailing EOF byte.
	Done() error
}
