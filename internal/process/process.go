// Package process orchestrates the per-sub-tile pipeline: load a raster
// tile, chop it, and for each piece trace, simplify, split, allocate ids,
// and hand the result to an encoder: either one shared encoder for the
// whole run or one file per sub-tile.
package process

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hgtcontour/hgtcontour/internal/chop"
	"github.com/hgtcontour/hgtcontour/internal/classify"
	"github.com/hgtcontour/hgtcontour/internal/contour"
	"github.com/hgtcontour/hgtcontour/internal/encode"
	"github.com/hgtcontour/hgtcontour/internal/ids"
	"github.com/hgtcontour/hgtcontour/internal/osm"
	"github.com/hgtcontour/hgtcontour/internal/raster"
	"github.com/hgtcontour/hgtcontour/internal/simplify"
	"github.com/hgtcontour/hgtcontour/internal/waysplit"
	"github.com/hgtcontour/hgtcontour/internal/worker"
)

// Logger is the indirection point for per-sub-tile skip/error messages;
// *log.Logger satisfies it and tests substitute a capturing fake.
type Logger interface {
	Printf(format string, v ...interface{})
}

// Options bundles every option the tile processor needs beyond the raw
// file paths, mirroring the CLI surface.
type Options struct {
	Step             int
	MinCont, MaxCont *int
	NoZeroContour    bool

	ClassifierMajor  int
	ClassifierMedium int

	RDPEpsilon *float64

	MaxNodesPerWay  int
	MaxNodesPerTile int // also doubles as the chopper's node-count budget

	OSMVersion     string
	WriteTimestamp bool
	RunTimestamp   time.Time

	Format    string // "xml", "pbf", or "o5m"
	GzipLevel int

	Jobs int

	OutputPrefix string
	SourceTag    string

	StartNodeID int64
	StartWayID  int64
}

// DeriveSourceTag builds the filename source tag: a
// comma-joined, order-preserving, deduplicated list of source directory
// tags, or "local-source" when none were given.
func DeriveSourceTag(sources []string) string {
	seen := make(map[string]bool, len(sources))
	var tags []string
	for _, s := range sources {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		tags = append(tags, s)
	}
	if len(tags) == 0 {
		return "local-source"
	}
	return strings.Join(tags, ",")
}

// Run loads every path, chops each into sub-tiles, and processes them
// through the shared worker pool. In single-output mode
// (opts.MaxNodesPerTile == 0) one encoder is shared for the whole run;
// otherwise each sub-tile gets its own output file.
func Run(paths []string, loadOpts raster.Options, opts Options, logger Logger) error {
	allocator := ids.New(opts.StartNodeID, opts.StartWayID)

	var mu sync.Mutex
	var tiles []loadedTile

	loadPool := worker.New(opts.Jobs)
	for _, p := range paths {
		p := p
		loadPool.Go(func() error {
			t, err := raster.Load(p, loadOpts)
			if err != nil {
				logger.Printf("skipping %s: %v", p, err)
				return nil
			}
			mu.Lock()
			tiles = append(tiles, loadedTile{tile: t, path: p})
			mu.Unlock()
			return nil
		})
	}
	if err := loadPool.Wait(); err != nil {
		logger.Printf("file loading: %v", err)
	}
	if len(tiles) == 0 {
		return nil
	}

	var shared encode.Encoder
	var sharedFile *os.File
	if opts.MaxNodesPerTile == 0 {
		bounds := unionBounds(tiles)
		name := outputFilename(opts, chop.BBox{MinLon: bounds.MinLon, MinLat: bounds.MinLat, MaxLon: bounds.MaxLon, MaxLat: bounds.MaxLat})
		f, err := os.Create(name)
		if err != nil {
			return fmt.Errorf("process: creating %s: %w", name, err)
		}
		enc, err := newEncoder(opts, bounds, f)
		if err != nil {
			f.Close()
			return err
		}
		// The one encoder shared by every worker serializes WriteNodes and
		// WriteWays so node references stay self-consistent.
		shared, sharedFile = &syncEncoder{enc: enc}, f
		logger.Printf("writing %s", name)
	}

	procPool := worker.New(opts.Jobs)
	for _, lt := range tiles {
		lt := lt
		root := &chop.SubTile{
			Elevation: lt.tile.Elevation,
			Mask:      lt.tile.VoidMask,
			BBox:      lt.tile.SrcBBox,
			GeoBBox:   lt.tile.BBox,
			Transform: lt.tile.Forward,
		}
		subtiles := chop.Chop(root, chop.Options{Budget: opts.MaxNodesPerTile, Step: opts.Step})
		for _, sub := range subtiles {
			sub := sub
			procPool.Go(func() error {
				getEncoder := perSubTileFactory(opts, sub, shared)
				return ProcessSubTile(sub, opts, allocator, getEncoder, logger)
			})
		}
	}
	procErr := procPool.Wait()

	if shared != nil {
		if err := shared.Done(); err != nil && procErr == nil {
			procErr = err
		}
		if err := sharedFile.Close(); err != nil && procErr == nil {
			procErr = err
		}
	}
	return procErr
}

// EncoderFactory lazily opens the encoder (and, for multi-output mode,
// the backing file) that a sub-tile's nodes/ways should be written to. It
// is called only once the sub-tile is known to contribute at least one
// node, so an empty sub-tile never creates a file. closer is nil when the
// encoder is shared across the whole run and must not be finalized here.
type EncoderFactory func() (enc encode.Encoder, closer io.Closer, err error)

// syncEncoder serializes concurrent access to the run-wide shared encoder.
type syncEncoder struct {
	mu  sync.Mutex
	enc encode.Encoder
}

func (s *syncEncoder) WriteNodes(nodes []osm.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.WriteNodes(nodes)
}

func (s *syncEncoder) WriteWays(ways []osm.Way) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.WriteWays(ways)
}

func (s *syncEncoder) Done() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Done()
}

func perSubTileFactory(opts Options, sub *chop.SubTile, shared encode.Encoder) EncoderFactory {
	if shared != nil {
		return func() (encode.Encoder, io.Closer, error) { return shared, nil, nil }
	}
	return func() (encode.Encoder, io.Closer, error) {
		geo := sub.Geo()
		bounds := encode.Bounds{MinLon: geo.MinLon, MinLat: geo.MinLat, MaxLon: geo.MaxLon, MaxLat: geo.MaxLat}
		name := outputFilename(opts, geo)
		f, err := os.Create(name)
		if err != nil {
			return nil, nil, fmt.Errorf("process: creating %s: %w", name, err)
		}
		enc, err := newEncoder(opts, bounds, f)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return enc, f, nil
	}
}

// ProcessSubTile traces, simplifies and splits one sub-tile, reserves
// its id ranges, and hands the nodes and ways to an encoder. A uniform
// grid or a sub-tile with zero resulting nodes is logged and skipped
// without calling getEncoder, so an empty sub-tile never creates an
// output file.
func ProcessSubTile(sub *chop.SubTile, opts Options, allocator *ids.Allocator, getEncoder EncoderFactory, logger Logger) error {
	rows, cols := len(sub.Elevation), 0
	if rows > 0 {
		cols = len(sub.Elevation[0])
	}
	if rows < 2 || cols < 2 {
		return nil
	}

	minEle, maxEle, ok := minMaxElevation(sub.Elevation, sub.Mask)
	if !ok {
		return nil
	}

	xData, yData := buildAxes(sub.BBox, rows, cols)
	grid := &contour.Grid{Elevation: sub.Elevation, Mask: sub.Mask, XData: xData, YData: yData}
	levels := contour.Range(opts.Step, opts.MinCont, opts.MaxCont, minEle, maxEle, opts.NoZeroContour)

	geo := sub.Geo()
	tc, err := contour.TraceAll(grid, levels)
	if errors.Is(err, contour.ErrUniformGrid) {
		logger.Printf("skipping uniform-elevation sub-tile at lon %.2f-%.2f lat %.2f-%.2f",
			geo.MinLon, geo.MaxLon, geo.MinLat, geo.MaxLat)
		return nil
	}
	if err != nil {
		return err
	}

	// Traced coordinates are in the grid's own CRS; project them to
	// EPSG:4326 before simplification (the RDP epsilon is in degrees).
	if sub.Transform != nil {
		for _, contours := range tc.ByElevation {
			for i := range contours {
				pts := contours[i].Points
				for j, p := range pts {
					lon, lat := sub.Transform.ToWGS84(p.Lon, p.Lat)
					pts[j] = osm.Point{Lon: lon, Lat: lat}
				}
			}
		}
	}

	classifier := classify.New(opts.ClassifierMajor, opts.ClassifierMedium)

	type elevChunk struct {
		chunk     waysplit.Chunk
		elevation int
	}
	var chunks []elevChunk
	for elevation, contours := range tc.ByElevation {
		for _, c := range contours {
			simplified := simplify.RDP(c.Points, opts.RDPEpsilon)
			for _, ch := range waysplit.Split(simplified, opts.MaxNodesPerWay) {
				chunks = append(chunks, elevChunk{chunk: ch, elevation: elevation})
			}
		}
	}

	nbNodes, nbWays := 0, 0
	for _, ec := range chunks {
		nbNodes += ec.chunk.NodeCount()
		nbWays++
	}
	if nbNodes == 0 {
		logger.Printf("skipping empty sub-tile at lon %.2f-%.2f lat %.2f-%.2f",
			geo.MinLon, geo.MaxLon, geo.MinLat, geo.MaxLat)
		return nil
	}

	nodeStart := allocator.ReserveNodes(int64(nbNodes))
	wayStart := allocator.ReserveWays(int64(nbWays))

	nodes := make([]osm.Node, 0, nbNodes)
	ways := make([]osm.Way, 0, nbWays)
	nodeID, wayID := nodeStart, wayStart
	for _, ec := range chunks {
		ch := ec.chunk
		n := len(ch.Points)
		distinct := n
		if ch.Closed {
			distinct = n - 1
		}
		first := nodeID
		for i := 0; i < distinct; i++ {
			p := ch.Points[i]
			nodes = append(nodes, osm.Node{ID: nodeID, Lon: p.Lon, Lat: p.Lat})
			nodeID++
		}
		refs := make([]int64, n)
		for i := 0; i < distinct; i++ {
			refs[i] = first + int64(i)
		}
		if ch.Closed {
			refs[n-1] = first
		}
		ways = append(ways, osm.Way{
			ID:         wayID,
			NodeIDs:    refs,
			Closed:     ch.Closed,
			Elevation:  ec.elevation,
			ContourExt: string(classifier.Classify(ec.elevation)),
		})
		wayID++
	}

	enc, closer, err := getEncoder()
	if err != nil {
		return err
	}
	if err := enc.WriteNodes(nodes); err != nil {
		return err
	}
	if err := enc.WriteWays(ways); err != nil {
		return err
	}
	if closer == nil {
		return nil
	}
	if err := enc.Done(); err != nil {
		closer.Close()
		return err
	}
	return closer.Close()
}

func newEncoder(opts Options, bounds encode.Bounds, w io.Writer) (encode.Encoder, error) {
	switch opts.Format {
	case "pbf":
		return encode.NewPBFEncoder(w, bounds)
	case "o5m":
		var ts int64
		if opts.WriteTimestamp {
			ts = opts.RunTimestamp.UTC().Unix()
		}
		return encode.NewO5MEncoder(w, bounds, opts.WriteTimestamp, ts)
	default:
		var timestamp string
		if opts.WriteTimestamp {
			timestamp = osm.Timestamp(opts.RunTimestamp)
		}
		return encode.NewXMLEncoder(w, bounds, opts.OSMVersion, timestamp, opts.GzipLevel)
	}
}

func outputFilename(opts Options, bbox chop.BBox) string {
	ext := ".osm"
	switch opts.Format {
	case "pbf":
		ext = ".pbf"
	case "o5m":
		ext = ".o5m"
	default:
		if opts.GzipLevel > 0 {
			ext = ".osm.gz"
		}
	}
	tag := ""
	if opts.SourceTag != "" {
		tag = "_" + opts.SourceTag
	}
	return fmt.Sprintf("%slon%.2f_%.2flat%.2f_%.2f%s%s",
		opts.OutputPrefix, bbox.MinLon, bbox.MaxLon, bbox.MinLat, bbox.MaxLat, tag, ext)
}

func buildAxes(bbox chop.BBox, rows, cols int) (xData, yData []float64) {
	xData = make([]float64, cols)
	yData = make([]float64, rows)
	lonInc := (bbox.MaxLon - bbox.MinLon) / float64(cols-1)
	latInc := (bbox.MaxLat - bbox.MinLat) / float64(rows-1)
	for c := 0; c < cols; c++ {
		xData[c] = bbox.MinLon + float64(c)*lonInc
	}
	for r := 0; r < rows; r++ {
		yData[r] = bbox.MaxLat - float64(r)*latInc
	}
	return xData, yData
}

func minMaxElevation(elev [][]float64, mask [][]bool) (min, max float64, ok bool) {
	for r := range elev {
		for c := range elev[r] {
			if mask != nil && mask[r][c] {
				continue
			}
			v := elev[r][c]
			if !ok {
				min, max, ok = v, v, true
				continue
			}
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
	}
	return min, max, ok
}

// loadedTile pairs a successfully loaded raster tile with the path it
// came from.
type loadedTile struct {
	tile *raster.Tile
	path string
}

func unionBounds(tiles []loadedTile) encode.Bounds {
	b := encode.Bounds{MinLon: math.Inf(1), MinLat: math.Inf(1), MaxLon: math.Inf(-1), MaxLat: math.Inf(-1)}
	for _, lt := range tiles {
		tb := lt.tile.BBox
		b.MinLon = math.Min(b.MinLon, tb.MinLon)
		b.MinLat = math.Min(b.MinLat, tb.MinLat)
		b.MaxLon = math.Max(b.MaxLon, tb.MaxLon)
		b.MaxLat = math.Max(b.MaxLat, tb.MaxLat)
	}
	return b
}
