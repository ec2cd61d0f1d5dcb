package tile

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Source resolves a tile request into a decoded image of exactly
// req.Width x req.Height pixels
type Source interface {
	Fetch(ctx context.Context, req TileRequest) (image.Image, error)
}

// SourceFunc adapts a function to the Source interface
type SourceFunc func(ctx context.Context, req TileRequest) (image.Image, error)

func (f SourceFunc) Fetch(ctx context.Context, req TileRequest) (image.Image, error) {
	return f(ctx, req)
}

// Progress describes one pasted cell
type Progress struct {
	Cell     GridCell
	Index    int
	Total    int
	Fraction float64
}

// Observer receives progress after every paste and a final completion signal
type Observer interface {
	Progress(p Progress)
	Done()
}

// ObserverFunc adapts a progress function to Observer with a no-op Done
type ObserverFunc func(p Progress)

func (f ObserverFunc) Progress(p Progress) { f(p) }
func (f ObserverFunc) Done()               {}

// Compositor fetches every cell of a plan and pastes it onto one canvas
type Compositor struct {
	Source   Source
	Limiter  RateLimiter
	Observer Observer
	Style    string
	Scale    int
}

// Composite runs the plan sequentially. Any failure aborts the run and no
// canvas is returned.
func (c *Compositor) Composite(ctx context.Context, plan *GridPlan) (*image.RGBA, error) {
	if c.Source == nil {
		return nil, fmt.Errorf("compositor has no tile source")
	}
	limiter := c.Limiter
	if limiter == nil {
		limiter = NoDelay{}
	}
	scale := c.Scale
	if scale < 1 {
		scale = DefaultScale
	}

	canvas := image.NewRGBA(image.Rect(0, 0, plan.Width, plan.Height))
	total := len(plan.Cells)

	for i, cell := range plan.Cells {
		if err := ctx.Err(); err != nil {
			return nil, c.cellError(plan, cell, err)
		}
		if err := limiter.BeforeFetch(ctx); err != nil {
			return nil, c.cellError(plan, cell, err)
		}

		img, err := c.Source.Fetch(ctx, plan.Request(cell, scale, c.Style))
		if err != nil {
			return nil, c.cellError(plan, cell, err)
		}
		if img == nil {
			return nil, c.cellError(plan, cell, ErrNoImage)
		}

		b := img.Bounds()
		if b.Dx() != cell.FetchWidth || b.Dy() != cell.FetchHeight {
			return nil, c.cellError(plan, cell, fmt.Errorf("%w: got %dx%d, want %dx%d",
				ErrDimensionMismatch, b.Dx(), b.Dy(), cell.FetchWidth, cell.FetchHeight))
		}

		paste(canvas, img, cell.Offset, plan.TileWidth, plan.TileHeight)

		if c.Observer != nil {
			c.Observer.Progress(Progress{
				Cell:     cell,
				Index:    i,
				Total:    total,
				Fraction: float64(i+1) / float64(total+1),
			})
		}
	}

	if c.Observer != nil {
		c.Observer.Done()
	}
	return canvas, nil
}

func (c *Compositor) cellError(plan *GridPlan, cell GridCell, err error) error {
	return &TileError{Col: cell.Col, Row: cell.Row, Center: cell.Center, Zoom: plan.Zoom, Err: err}
}

// paste overwrites the canvas with the top w x h pixels of src at off.
// Rows below h are the provider's decoration strip and are dropped;
// anything past the canvas edge is clipped.
func paste(dst *image.RGBA, src image.Image, off image.Point, w, h int) {
	r := image.Rect(off.X, off.Y, off.X+w, off.Y+h)
	draw.Draw(dst, r, src, src.Bounds().Min, draw.Src)
}
