// Command hgtcontour converts HGT/GeoTIFF elevation tiles into vector
// contour-line datasets in OSM XML, PBF, or O5M format.
package main

import (
	"log"
	"os"
	"time"

	"github.com/hgtcontour/hgtcontour/internal/config"
	"github.com/hgtcontour/hgtcontour/internal/polygon"
	"github.com/hgtcontour/hgtcontour/internal/process"
	"github.com/hgtcontour/hgtcontour/internal/raster"
	"github.com/paulmach/orb"
)

func main() {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		logger.Printf("%v", err)
		os.Exit(1)
	}

	if cfg.DownloadOnly {
		logger.Printf("download-only: tile downloading is handled outside this tool; nothing to do")
		os.Exit(0)
	}

	polySet, err := resolvePolygons(cfg)
	if err != nil {
		logger.Printf("%v", err)
		os.Exit(1)
	}

	voidMax := float64(cfg.VoidMax)
	loadOpts := raster.Options{
		CorrX:         cfg.CorrX,
		CorrY:         cfg.CorrY,
		VoidThreshold: &voidMax,
		Feet:          cfg.Feet,
		Supersample:   cfg.Smooth,
	}
	if polySet != nil {
		loadOpts.Polygons = polySet
	}

	procOpts := process.Options{
		Step:             cfg.Step,
		NoZeroContour:    cfg.NoZeroContour,
		ClassifierMajor:  cfg.LineCatMajor,
		ClassifierMedium: cfg.LineCatMedium,
		RDPEpsilon:       cfg.RDPEpsilon,
		MaxNodesPerWay:   cfg.MaxNodesPerWay,
		MaxNodesPerTile:  cfg.MaxNodesPerTile,
		OSMVersion:       cfg.OSMVersion,
		WriteTimestamp:   cfg.WriteTimestamp,
		RunTimestamp:     time.Now(),
		Format:           cfg.Encoding(),
		GzipLevel:        cfg.GzipLevel,
		Jobs:             cfg.Jobs,
		OutputPrefix:     cfg.OutputPrefix,
		SourceTag:        process.DeriveSourceTag(cfg.Source),
		StartNodeID:      cfg.StartNodeID,
		StartWayID:       cfg.StartWayID,
	}

	if err := process.Run(cfg.Files, loadOpts, procOpts, logger); err != nil {
		logger.Printf("%v", err)
		os.Exit(1)
	}
}

// resolvePolygons builds the masker used for the whole run: --polygon
// takes a file on disk; --area (when --polygon is absent) is treated as a
// single rectangular clip polygon so both flags share the same masking
// code path.
func resolvePolygons(cfg *config.Config) (*polygon.Set, error) {
	if cfg.PolygonFile != "" {
		return polygon.ParseFile(cfg.PolygonFile)
	}
	if cfg.Area == nil {
		return nil, nil
	}
	a := cfg.Area
	ring := orb.Ring{
		{a.Left, a.Bottom},
		{a.Right, a.Bottom},
		{a.Right, a.Top},
		{a.Left, a.Top},
		{a.Left, a.Bottom},
	}
	return &polygon.Set{
		Rings: []orb.Ring{ring},
		BBox:  orb.Bound{Min: orb.Point{a.Left, a.Bottom}, Max: orb.Point{a.Right, a.Top}},
	}, nil
}
