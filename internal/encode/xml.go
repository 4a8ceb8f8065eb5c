package encode

import (
	"bufio"
	"fmt"
	"io"

	"github.com/hgtcontour/hgtcontour/internal/osm"
	"github.com/klauspost/compress/gzip"
)

// XMLEncoder writes the OSM XML text format.
type XMLEncoder struct {
	w         *bufio.Writer
	closer    io.Closer // non-nil when wrapping a gzip.Writer
	version   string
	timestamp string // empty means "--write-timestamp not set"
	ways      []osm.Way
	done      bool
}

// NewXMLEncoder opens an XML encoder writing to w. gzipLevel in [1,9]
// wraps the stream in a gzip writer at that compression level; 0 disables
// compression.
func NewXMLEncoder(w io.Writer, bounds Bounds, osmVersion string, timestamp string, gzipLevel int) (*XMLEncoder, error) {
	e := &XMLEncoder{version: osmVersion, timestamp: timestamp}

	var out io.Writer = w
	if gzipLevel > 0 {
		gz, err := gzip.NewWriterLevel(w, gzipLevel)
		if err != nil {
			return nil, fmt.Errorf("encode: gzip level %d: %w", gzipLevel, err)
		}
		out = gz
		e.closer = gz
	}
	e.w = bufio.NewWriter(out)

	fmt.Fprintf(e.w, "<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	fmt.Fprintf(e.w, "<osm version=\"%s\" generator=\"%s\">\n", osmVersion, generator)
	fmt.Fprintf(e.w, "<bounds minlat=\"%.7f\" minlon=\"%.7f\" maxlat=\"%.7f\" maxlon=\"%.7f\"/>\n",
		bounds.MinLat, bounds.MinLon, bounds.MaxLat, bounds.MaxLon)

	return e, nil
}

func (e *XMLEncoder) attrs() string {
	if e.timestamp == "" {
		return ` version="1"`
	}
	return fmt.Sprintf(` version="1" timestamp="%s"`, e.timestamp)
}

// WriteNodes writes one <node/> element per node, immediately.
func (e *XMLEncoder) WriteNodes(nodes []osm.Node) error {
	attrs := e.attrs()
	for _, n := range nodes {
		if _, err := fmt.Fprintf(e.w, "<node id=\"%d\" lat=\"%.7f\" lon=\"%.7f\"%s/>\n", n.ID, n.Lat, n.Lon, attrs); err != nil {
			return err
		}
	}
	return nil
}

// WriteWays buffers ways for emission during Done, since the final file
// groups all nodes before any way.
func (e *XMLEncoder) WriteWays(ways []osm.Way) error {
	e.ways = append(e.ways, ways...)
	return nil
}

// Done flushes buffered ways, closes the root element, and (if
// compressing) closes the gzip writer.
func (e *XMLEncoder) Done() error {
	if e.done {
		return nil
	}
	e.done = true

	attrs := e.attrs()
	for _, way := range e.ways {
		fmt.Fprintf(e.w, "<way id=\"%d\"%s>\n", way.ID, attrs)
		for _, ref := range way.NodeIDs {
			fmt.Fprintf(e.w, "<nd ref=\"%d\"/>\n", ref)
		}
		fmt.Fprintf(e.w, "<tag k=\"ele\" v=\"%d\"/>\n", way.Elevation)
		fmt.Fprintf(e.w, "<tag k=\"contour\" v=\"elevation\"/>\n")
		fmt.Fprintf(e.w, "<tag k=\"contour_ext\" v=\"%s\"/>\n", way.ContourExt)
		fmt.Fprintf(e.w, "</way>\n")
	}

	if _, err := fmt.Fprintf(e.w, "</osm>\n"); err != nil {
		return err
	}
	if err := e.w.Flush(); err != nil {
		return err
	}
	if e.closer != nil {
		return e.closer.Close()
	}
	return nil
}
