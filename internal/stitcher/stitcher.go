package stitcher

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"time"

	"github.com/kiesman99/mapwizard/internal/metrics"
	"github.com/kiesman99/mapwizard/pkg/tile"
)

// Options contains all stitching parameters
type Options struct {
	Box  tile.BoundingBox
	Zoom int

	MaxTileEdge    int
	VerticalMargin int
	Scale          int

	// Plan size limits, zero selects the tile package defaults
	MaxCells  int
	MaxPixels int

	// Style is the already encoded style fragment appended to every request
	Style string

	GenerateWorldFile bool

	// Observer receives per-cell progress for this run only
	Observer tile.Observer
}

// Result contains the stitching result
type Result struct {
	ImageData     []byte
	WorldFileData []byte
	Width         int
	Height        int
	MinX, MaxY    float64 // For world file
	PixelSize     float64
	Plan          *tile.GridPlan
}

// LimiterFactory returns the rate limiter for one run. Stateful limiters
// such as tile.RandomDelay need a fresh value per run.
type LimiterFactory func() tile.RateLimiter

// Stitcher plans and composites static maps
type Stitcher struct {
	source   tile.Source
	limiters LimiterFactory
	proj     *tile.Projection
	logger   *slog.Logger
}

// Option configures a Stitcher
type Option func(*Stitcher)

// WithLimiter sets the per-run rate limiter
func WithLimiter(f LimiterFactory) Option {
	return func(s *Stitcher) { s.limiters = f }
}

// WithProjection overrides the Google datum projection
func WithProjection(p *tile.Projection) Option {
	return func(s *Stitcher) { s.proj = p }
}

// WithLogger sets the logger used for run summaries
func WithLogger(l *slog.Logger) Option {
	return func(s *Stitcher) { s.logger = l }
}

// New creates a new stitcher fetching from source
func New(source tile.Source, opts ...Option) *Stitcher {
	s := &Stitcher{
		source:   metrics.InstrumentSource(source),
		limiters: func() tile.RateLimiter { return tile.NoDelay{} },
		proj:     tile.NewProjection(tile.GoogleDatum),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Plan lays out the grid for opts without fetching anything
func (s *Stitcher) Plan(opts *Options) (*tile.GridPlan, error) {
	edge := opts.MaxTileEdge
	if edge == 0 {
		edge = tile.DefaultMaxTileEdge
	}
	return tile.Plan(s.proj, tile.PlanRequest{
		Box:            opts.Box,
		Zoom:           opts.Zoom,
		MaxTileEdge:    edge,
		VerticalMargin: opts.VerticalMargin,
		MaxCells:       opts.MaxCells,
		MaxPixels:      opts.MaxPixels,
	})
}

// Stitch performs the tile stitching operation
func (s *Stitcher) Stitch(ctx context.Context, opts *Options) (*Result, error) {
	start := time.Now()

	plan, err := s.Plan(opts)
	if err != nil {
		metrics.RecordRun(0, err)
		return nil, err
	}

	s.logger.Info("stitching",
		"zoom", plan.Zoom,
		"columns", plan.Columns,
		"rows", plan.Rows,
		"tile", fmt.Sprintf("%dx%d", plan.TileWidth, plan.TileHeight),
		"raster", fmt.Sprintf("%dx%d", plan.Width, plan.Height))

	comp := &tile.Compositor{
		Source:   s.source,
		Limiter:  s.limiters(),
		Observer: opts.Observer,
		Style:    opts.Style,
		Scale:    opts.Scale,
	}
	canvas, err := comp.Composite(ctx, plan)
	metrics.RecordRun(len(plan.Cells), err)
	if err != nil {
		s.logger.Warn("stitch failed", "error", err, "duration", time.Since(start))
		return nil, err
	}

	var output bytes.Buffer
	if err := png.Encode(&output, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode output image: %w", err)
	}

	minX, maxY, px := plan.Bounds()
	result := &Result{
		ImageData: output.Bytes(),
		Width:     plan.Width,
		Height:    plan.Height,
		MinX:      minX,
		MaxY:      maxY,
		PixelSize: px,
		Plan:      plan,
	}

	if opts.GenerateWorldFile {
		result.WorldFileData = WorldFile(px, px, minX, maxY)
	}

	s.logger.Info("stitched",
		"cells", len(plan.Cells),
		"bytes", len(result.ImageData),
		"duration", time.Since(start))

	return result, nil
}

// WorldFile renders an ESRI world file for a north-up raster whose upper
// left pixel corner is at (minx, maxy)
func WorldFile(px, py, minx, maxy float64) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%24.10f\n", px)
	fmt.Fprintf(&buf, "%24.10f\n", 0.0)
	fmt.Fprintf(&buf, "%24.10f\n", 0.0)
	fmt.Fprintf(&buf, "%24.10f\n", -py)
	fmt.Fprintf(&buf, "%24.10f\n", minx)
	fmt.Fprintf(&buf, "%24.10f\n", maxy)
	return buf.Bytes()
}
