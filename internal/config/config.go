// Package config parses the command-line surface into a single Config
// value, with a handful of options overridable via environment variables.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// ErrInvalidOptions is returned for any CLI validation failure: bad area
// syntax, conflicting encoding flags, or missing required files.
var ErrInvalidOptions = errors.New("config: invalid options")

// Area is a geographic bounding box filter, LEFT:BOTTOM:RIGHT:TOP.
type Area struct {
	Left, Bottom, Right, Top float64
}

// Config is the fully resolved, validated set of options for one run. It
// has no behavior of its own beyond the small derived helpers below; every
// decision it drives lives in internal/process and internal/raster.
type Config struct {
	Area        *Area
	PolygonFile string
	DownloadOnly bool

	Step            int
	Feet            bool
	NoZeroContour   bool
	OutputPrefix    string
	LineCatMajor    int
	LineCatMedium   int
	Jobs            int
	OSMVersion      string
	WriteTimestamp  bool
	StartNodeID     int64
	StartWayID      int64
	MaxNodesPerTile int
	MaxNodesPerWay  int
	RDPEpsilon      *float64
	DisableRDP      bool
	Smooth          float64

	// Encoding group: exactly one of these is selected. GzipLevel == 0 and
	// PBF == O5M == false means plain, ungzipped XML.
	GzipLevel int
	PBF       bool
	O5M       bool

	SRTM            int
	SRTMVersion     string
	ViewfinderMask  int
	Source          []string
	CorrX, CorrY    float64
	HGTDir          string
	RewriteIndices  bool
	VoidMax         int

	Files []string
}

// Parse parses args (excluding the program name, i.e. os.Args[1:]) into a
// validated Config. Environment variable overrides (HGTCONTOUR_STEP,
// HGTCONTOUR_JOBS, HGTCONTOUR_MAX_NODES_PER_TILE,
// HGTCONTOUR_MAX_NODES_PER_WAY, HGTCONTOUR_HGTDIR) are applied to any flag
// not given on the command line, so an explicit flag always wins.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("hgtcontour", flag.ContinueOnError)

	var (
		areaStr         string
		polygonFile     string
		downloadOnly    bool
		step            int
		feet            bool
		noZero          bool
		outputPrefix    string
		lineCat         string
		jobs            int
		osmVersion      string
		writeTimestamp  bool
		startNodeID     int64
		startWayID      int64
		maxNodesPerTile int
		maxNodesPerWay  int
		rdpEpsilon      float64
		disableRDP      bool
		smooth          float64
		gzipLevel       int
		pbf             bool
		o5m             bool
		srtm            int
		srtmVersion     string
		viewfinderMask  int
		source          string
		corrX, corrY    float64
		hgtDir          string
		rewriteIndices  bool
		voidMax         int
	)

	fs.StringVar(&areaStr, "area", "", "geographic bbox filter LEFT:BOTTOM:RIGHT:TOP")
	fs.StringVar(&polygonFile, "polygon", "", "clip to this polygon file, replaces --area")
	fs.BoolVar(&downloadOnly, "download-only", false, "fetch tiles and exit")
	fs.IntVar(&step, "s", 20, "contour step, meters or feet")
	fs.IntVar(&step, "step", 20, "contour step, meters or feet")
	fs.BoolVar(&feet, "f", false, "emit feet-based elevations and steps")
	fs.BoolVar(&feet, "feet", false, "emit feet-based elevations and steps")
	fs.BoolVar(&noZero, "0", false, "drop elevation 0")
	fs.BoolVar(&noZero, "no-zero-contour", false, "drop elevation 0")
	fs.StringVar(&outputPrefix, "o", "", "filename prefix")
	fs.StringVar(&outputPrefix, "output-prefix", "", "filename prefix")
	fs.StringVar(&lineCat, "c", "200,100", "classifier thresholds MAJOR,MEDIUM")
	fs.StringVar(&lineCat, "line-cat", "200,100", "classifier thresholds MAJOR,MEDIUM")
	fs.IntVar(&jobs, "j", 1, "worker count")
	fs.IntVar(&jobs, "jobs", 1, "worker count")
	fs.StringVar(&osmVersion, "osm-version", "0.6", "OSM version attribute")
	fs.BoolVar(&writeTimestamp, "write-timestamp", false, "include timestamps and (O5M) changeset/user tags")
	fs.Int64Var(&startNodeID, "start-node-id", 1, "initial node id counter")
	fs.Int64Var(&startWayID, "start-way-id", 1, "initial way id counter")
	fs.IntVar(&maxNodesPerTile, "max-nodes-per-tile", 0, "node budget per output file (0 = single output)")
	fs.IntVar(&maxNodesPerWay, "max-nodes-per-way", 2000, "way split budget (0 = no split)")
	fs.Float64Var(&rdpEpsilon, "simplifyContoursEpsilon", 0.0, "RDP epsilon")
	fs.BoolVar(&disableRDP, "disableRDP", false, "disable simplification entirely")
	fs.Float64Var(&smooth, "smooth", 1, "supersample ratio")
	fs.IntVar(&gzipLevel, "gzip", 0, "gzip level 1-9 for XML output")
	fs.BoolVar(&pbf, "pbf", false, "write OSM PBF instead of XML")
	fs.BoolVar(&o5m, "o5m", false, "write O5M instead of XML")
	fs.IntVar(&srtm, "srtm", 3, "SRTM resolution, 1 or 3")
	fs.StringVar(&srtmVersion, "srtm-version", "3", "SRTM dataset version, 2.1 or 3")
	fs.IntVar(&viewfinderMask, "viewfinder-mask", 0, "viewfinder void-fill mask, 0, 1 or 3")
	fs.StringVar(&source, "source", "", "comma-separated source directory list")
	fs.Float64Var(&corrX, "corrx", 0, "longitude correction, degrees")
	fs.Float64Var(&corrY, "corry", 0, "latitude correction, degrees")
	fs.StringVar(&hgtDir, "hgtdir", "", "HGT tile cache directory")
	fs.BoolVar(&rewriteIndices, "rewrite-indices", false, "rewrite cached tile indices")
	fs.IntVar(&voidMax, "void-range-max", -0x8000, "minimum plausible height; elevations at or below are treated as void")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: hgtcontour [flags] <file.hgt|file.tif|file.tiff|file.vrt ...>\n\n")
		fmt.Fprintf(os.Stderr, "Convert HGT/GeoTIFF elevation tiles to OSM-format contour lines.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	applyEnvOverrides(fs, &step, &jobs, &maxNodesPerTile, &maxNodesPerWay, &hgtDir)

	cfg := &Config{
		PolygonFile:     polygonFile,
		DownloadOnly:    downloadOnly,
		Step:            step,
		Feet:            feet,
		NoZeroContour:   noZero,
		OutputPrefix:    outputPrefix,
		Jobs:            jobs,
		OSMVersion:      osmVersion,
		WriteTimestamp:  writeTimestamp,
		StartNodeID:     startNodeID,
		StartWayID:      startWayID,
		MaxNodesPerTile: maxNodesPerTile,
		MaxNodesPerWay:  maxNodesPerWay,
		DisableRDP:      disableRDP,
		Smooth:          smooth,
		GzipLevel:       gzipLevel,
		PBF:             pbf,
		O5M:             o5m,
		SRTM:            srtm,
		SRTMVersion:     srtmVersion,
		ViewfinderMask:  viewfinderMask,
		CorrX:           corrX,
		CorrY:           corrY,
		HGTDir:          hgtDir,
		RewriteIndices:  rewriteIndices,
		VoidMax:         voidMax,
		Files:           fs.Args(),
	}
	if !disableRDP {
		cfg.RDPEpsilon = &rdpEpsilon
	}
	if source != "" {
		cfg.Source = strings.Split(source, ",")
	}

	major, medium, err := parseLineCat(lineCat)
	if err != nil {
		return nil, err
	}
	cfg.LineCatMajor, cfg.LineCatMedium = major, medium

	if areaStr != "" {
		a, err := parseArea(areaStr)
		if err != nil {
			return nil, err
		}
		cfg.Area = a
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides binds a handful of deployment-level options to
// HGTCONTOUR_-prefixed environment variables via viper, applying them only
// where the flag was left at its default (unset) value.
func applyEnvOverrides(fs *flag.FlagSet, step, jobs, maxNodesPerTile, maxNodesPerWay *int, hgtDir *string) {
	v := viper.New()
	v.SetEnvPrefix("HGTCONTOUR")
	v.AutomaticEnv()

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["step"] && !set["s"] {
		if iv, ok := toInt(v.Get("step")); ok {
			*step = iv
		}
	}
	if !set["jobs"] && !set["j"] {
		if iv, ok := toInt(v.Get("jobs")); ok {
			*jobs = iv
		}
	}
	if !set["max-nodes-per-tile"] {
		if iv, ok := toInt(v.Get("max_nodes_per_tile")); ok {
			*maxNodesPerTile = iv
		}
	}
	if !set["max-nodes-per-way"] {
		if iv, ok := toInt(v.Get("max_nodes_per_way")); ok {
			*maxNodesPerWay = iv
		}
	}
	if !set["hgtdir"] {
		if s, ok := v.Get("hgtdir").(string); ok && s != "" {
			*hgtDir = s
		}
	}
}

func toInt(v interface{}) (int, bool) {
	switch t := v.(type) {
	case string:
		n, err := strconv.Atoi(t)
		return n, err == nil
	case int:
		return t, true
	default:
		return 0, false
	}
}

func parseLineCat(s string) (major, medium int, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: --line-cat wants MAJOR,MEDIUM, got %q", ErrInvalidOptions, s)
	}
	major, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	medium, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("%w: --line-cat values must be integers, got %q", ErrInvalidOptions, s)
	}
	return major, medium, nil
}

func parseArea(s string) (*Area, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: --area wants LEFT:BOTTOM:RIGHT:TOP, got %q", ErrInvalidOptions, s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: --area value %q is not a number", ErrInvalidOptions, p)
		}
		vals[i] = v
	}
	return &Area{Left: vals[0], Bottom: vals[1], Right: vals[2], Top: vals[3]}, nil
}

func validate(cfg *Config) error {
	encodings := 0
	if cfg.GzipLevel != 0 {
		encodings++
	}
	if cfg.PBF {
		encodings++
	}
	if cfg.O5M {
		encodings++
	}
	if encodings > 1 {
		return fmt.Errorf("%w: --gzip, --pbf and --o5m are mutually exclusive", ErrInvalidOptions)
	}
	if cfg.GzipLevel < 0 || cfg.GzipLevel > 9 {
		return fmt.Errorf("%w: --gzip level must be 1-9, got %d", ErrInvalidOptions, cfg.GzipLevel)
	}
	if cfg.PolygonFile != "" {
		if _, err := os.Stat(cfg.PolygonFile); err != nil {
			return fmt.Errorf("%w: --polygon file %q: %v", ErrInvalidOptions, cfg.PolygonFile, err)
		}
	}
	if !cfg.DownloadOnly && cfg.Area == nil && cfg.PolygonFile == "" && len(cfg.Files) == 0 {
		return fmt.Errorf("%w: no --area, --polygon, or input files given", ErrInvalidOptions)
	}
	if cfg.Step <= 0 {
		return fmt.Errorf("%w: --step must be positive, got %d", ErrInvalidOptions, cfg.Step)
	}
	if cfg.Smooth < 1 {
		return fmt.Errorf("%w: --smooth must be >= 1, got %v", ErrInvalidOptions, cfg.Smooth)
	}
	if cfg.SRTM != 1 && cfg.SRTM != 3 {
		return fmt.Errorf("%w: --srtm must be 1 or 3, got %d", ErrInvalidOptions, cfg.SRTM)
	}
	if cfg.ViewfinderMask != 0 && cfg.ViewfinderMask != 1 && cfg.ViewfinderMask != 3 {
		return fmt.Errorf("%w: --viewfinder-mask must be 0, 1 or 3, got %d", ErrInvalidOptions, cfg.ViewfinderMask)
	}
	return nil
}

// Encoding names the selected output container: "xml", "pbf", or "o5m".
func (c *Config) Encoding() string {
	switch {
	case c.PBF:
		return "pbf"
	case c.O5M:
		return "o5m"
	default:
		return "xml"
	}
}
