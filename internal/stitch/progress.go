package stitch

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/kiesman99/mapwizard/pkg/tile"
)

// BarObserver draws a terminal progress bar. The bar holds one slot more
// than there are cells so it only fills once the image is complete.
type BarObserver struct {
	bar *progressbar.ProgressBar
}

func NewBarObserver(w io.Writer, cells int) *BarObserver {
	theme := progressbar.Theme{
		Saucer:        "=",
		SaucerHead:    ">",
		SaucerPadding: " ",
		BarStart:      "[",
		BarEnd:        "]",
	}
	bar := progressbar.NewOptions(cells+1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetTheme(theme),
		progressbar.OptionSetDescription("stitching"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
	return &BarObserver{bar: bar}
}

func (b *BarObserver) Progress(p tile.Progress) {
	b.bar.Describe(fmt.Sprintf("col %d row %d", p.Cell.Col, p.Cell.Row))
	_ = b.bar.Set(p.Index + 1)
}

func (b *BarObserver) Done() { _ = b.bar.Finish() }

// LogObserver reports every pasted cell as a log line
type LogObserver struct {
	Logger *slog.Logger
}

func (l LogObserver) Progress(p tile.Progress) {
	l.Logger.Info(fmt.Sprintf("%.1f%% -> Column: %d Row: %d Position: %s",
		p.Fraction*100, p.Cell.Col, p.Cell.Row, p.Cell.Center))
}

func (l LogObserver) Done() { l.Logger.Info("100.0% -> done") }
