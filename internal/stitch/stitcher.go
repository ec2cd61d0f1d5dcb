package stitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kiesman99/mapwizard/internal/stitcher"
	"github.com/kiesman99/mapwizard/pkg/tile"
)

// StdoutName selects standard output as the output target
const StdoutName = "-"

// Options controls where and how a CLI run writes its result
type Options struct {
	Output     string
	WorldFile  bool
	PlanOnly   bool
	NoProgress bool

	// Stdout and Stderr default to the process streams
	Stdout io.Writer
	Stderr io.Writer
	Now    func() time.Time
}

// Stitcher handles the command line stitching logic around the engine
type Stitcher struct {
	engine  *stitcher.Stitcher
	options *Options
	logger  *slog.Logger
}

// NewStitcher creates a new stitcher instance
func NewStitcher(engine *stitcher.Stitcher, opts *Options, logger *slog.Logger) *Stitcher {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stitcher{engine: engine, options: opts, logger: logger}
}

// Run plans the map, then either prints the plan or fetches, stitches and
// writes the image. Nothing is written when any tile fails.
func (s *Stitcher) Run(ctx context.Context, run *stitcher.Options) error {
	plan, err := s.engine.Plan(run)
	if err != nil {
		return err
	}
	s.printSummary(plan)

	if s.options.PlanOnly {
		return s.writePlan(plan)
	}

	target, err := s.outputPath()
	if err != nil {
		return err
	}

	if s.options.NoProgress {
		run.Observer = LogObserver{Logger: s.logger}
	} else {
		run.Observer = NewBarObserver(s.options.Stderr, len(plan.Cells))
	}
	run.GenerateWorldFile = s.options.WorldFile && target != StdoutName

	result, err := s.engine.Stitch(ctx, run)
	if err != nil {
		return err
	}

	if target == StdoutName {
		_, err := s.options.Stdout.Write(result.ImageData)
		return err
	}

	if err := writeAtomic(target, result.ImageData); err != nil {
		return fmt.Errorf("failed to write PNG: %w", err)
	}
	s.logger.Info("map saved", "path", target, "width", result.Width, "height", result.Height)

	if result.WorldFileData != nil {
		wf := WorldFilePath(target)
		if err := writeAtomic(wf, result.WorldFileData); err != nil {
			return fmt.Errorf("failed to write world file: %w", err)
		}
		s.logger.Info("world file saved", "path", wf)
	}

	return nil
}

func (s *Stitcher) printSummary(plan *tile.GridPlan) {
	minX, maxY, px := plan.Bounds()
	w := s.options.Stderr

	fmt.Fprintf(w, "==Geodetic Bounds  (EPSG:4326): %s to %s\n", plan.Box.UpperLeft, plan.Box.LowerRight)
	fmt.Fprintf(w, "==Projected Origin (EPSG:3857): %.17g,%.17g\n", minX, maxY)
	fmt.Fprintf(w, "==Zoom Level: %d\n", plan.Zoom)
	fmt.Fprintf(w, "==Grid: %d columns x %d rows\n", plan.Columns, plan.Rows)
	fmt.Fprintf(w, "==Tile Size: %dx%d (+%d margin)\n", plan.TileWidth, plan.TileHeight, plan.VerticalMargin)
	fmt.Fprintf(w, "==Raster Size: %dx%d\n", plan.Width, plan.Height)
	fmt.Fprintf(w, "==Pixel Size: %.17g\n", px)
}

func (s *Stitcher) writePlan(plan *tile.GridPlan) error {
	data, err := plan.FeatureCollection().MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}

	if s.options.Output == "" || s.options.Output == StdoutName {
		_, err := s.options.Stdout.Write(append(data, '\n'))
		return err
	}
	return writeAtomic(s.options.Output, data)
}

// outputPath resolves the target before any tile is fetched
func (s *Stitcher) outputPath() (string, error) {
	switch s.options.Output {
	case StdoutName:
		if isTerminal(s.options.Stdout) {
			return "", errors.New("standard output is a terminal, specify an output file")
		}
		if s.options.WorldFile {
			s.logger.Warn("world file skipped when writing to standard output")
		}
		return StdoutName, nil
	case "":
		return DefaultFilename(s.options.Now()), nil
	}

	dir := filepath.Dir(s.options.Output)
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("output directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("output directory %s is not a directory", dir)
	}
	return s.options.Output, nil
}

// DefaultFilename names an output after the time of the run
func DefaultFilename(t time.Time) string {
	return t.Format("map 2006-01-02 15 04 05") + ".png"
}

// WorldFilePath returns the .pgw companion of an image path
func WorldFilePath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".pgw"
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// writeFile is replaced in tests to simulate a full disk
var writeFile = os.WriteFile

// writeAtomic writes path.part and renames it to path
func writeAtomic(path string, data []byte) error {
	tmp := path + ".part"
	if err := writeFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
