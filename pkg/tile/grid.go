package tile

import (
	"fmt"
	"image"
	"math"
)

// PlanRequest contains the tiling parameters for one run
type PlanRequest struct {
	Box            BoundingBox
	Zoom           int
	MaxTileEdge    int
	VerticalMargin int

	// Zero selects DefaultMaxCells and DefaultMaxPixels
	MaxCells  int
	MaxPixels int
}

// GridCell is one provider request and its place on the canvas
type GridCell struct {
	Index       int
	Col         int
	Row         int
	Center      GeoPoint
	FetchWidth  int
	FetchHeight int
	Offset      image.Point
}

// GridPlan partitions a bounding box into uniformly sized provider tiles.
// Cells are ordered column-major: all rows of column 0, then column 1, ...
type GridPlan struct {
	Box            BoundingBox
	Zoom           int
	VerticalMargin int

	UpperLeft  PixelPoint
	LowerRight PixelPoint
	DX, DY     float64

	// Canvas size, floor(DX) x floor(DY)
	Width, Height int

	Columns    int
	Rows       int
	TileWidth  int
	TileHeight int

	Cells []GridCell

	proj *Projection
}

// Plan projects the bounding box and lays a grid of tiles over it
func Plan(proj *Projection, req PlanRequest) (*GridPlan, error) {
	if req.MaxTileEdge <= 0 {
		return nil, fmt.Errorf("%w: max tile edge %d must be positive", ErrInvalidPlan, req.MaxTileEdge)
	}
	if req.MaxTileEdge > MaxFetchEdge {
		return nil, fmt.Errorf("%w: max tile edge %d exceeds %d", ErrInvalidPlan, req.MaxTileEdge, MaxFetchEdge)
	}
	if req.VerticalMargin < 0 {
		return nil, fmt.Errorf("%w: vertical margin %d must not be negative", ErrInvalidPlan, req.VerticalMargin)
	}
	if req.VerticalMargin > MaxFetchEdge {
		return nil, fmt.Errorf("%w: vertical margin %d exceeds %d", ErrInvalidPlan, req.VerticalMargin, MaxFetchEdge)
	}

	ul, err := proj.ToPixel(req.Box.UpperLeft, req.Zoom)
	if err != nil {
		return nil, fmt.Errorf("upper left corner: %w", err)
	}
	lr, err := proj.ToPixel(req.Box.LowerRight, req.Zoom)
	if err != nil {
		return nil, fmt.Errorf("lower right corner: %w", err)
	}

	// pixel y grows northward here, so the north-west corner has the larger y
	dx := lr.X - ul.X
	dy := ul.Y - lr.Y
	if dx <= 0 || dy <= 0 {
		return nil, fmt.Errorf("%w: upper left %s and lower right %s span %.3fx%.3f px",
			ErrDegenerateBoundingBox, req.Box.UpperLeft, req.Box.LowerRight, dx, dy)
	}

	width, height := int(math.Floor(dx)), int(math.Floor(dy))
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("%w: %.3fx%.3f px at zoom %d is smaller than one pixel",
			ErrDegenerateBoundingBox, dx, dy, req.Zoom)
	}

	if err := checkSize(req, dx, dy); err != nil {
		return nil, err
	}

	cols := int(math.Ceil(dx / float64(req.MaxTileEdge)))
	rows := int(math.Ceil(dy / float64(req.MaxTileEdge)))
	tw := int(math.Ceil(dx / float64(cols)))
	th := int(math.Ceil(dy / float64(rows)))

	plan := &GridPlan{
		Box:            req.Box,
		Zoom:           req.Zoom,
		VerticalMargin: req.VerticalMargin,
		UpperLeft:      ul,
		LowerRight:     lr,
		DX:             dx,
		DY:             dy,
		Width:          width,
		Height:         height,
		Columns:        cols,
		Rows:           rows,
		TileWidth:      tw,
		TileHeight:     th,
		Cells:          make([]GridCell, 0, cols*rows),
		proj:           proj,
	}

	margin := float64(req.VerticalMargin)
	for col := 0; col < cols; col++ {
		for row := 0; row < rows; row++ {
			// shift the request center south by half the margin so that the
			// strip the provider draws at the bottom falls outside the cell
			center := PixelPoint{
				X: ul.X + float64(tw)*(float64(col)+0.5),
				Y: ul.Y - float64(th)*(float64(row)+0.5) - margin/2,
			}
			plan.Cells = append(plan.Cells, GridCell{
				Index:       len(plan.Cells),
				Col:         col,
				Row:         row,
				Center:      proj.ToGeo(center, req.Zoom),
				FetchWidth:  tw,
				FetchHeight: th + req.VerticalMargin,
				Offset:      image.Pt(col*tw, row*th),
			})
		}
	}

	return plan, nil
}

// checkSize refuses grids over the cell or pixel limit, counting in float64
func checkSize(req PlanRequest, dx, dy float64) error {
	maxCells, maxPixels := req.MaxCells, req.MaxPixels
	if maxCells <= 0 {
		maxCells = DefaultMaxCells
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	edge := float64(req.MaxTileEdge)
	cells := math.Ceil(dx/edge) * math.Ceil(dy/edge)
	if cells > float64(maxCells) {
		return fmt.Errorf("%w: %.0f tiles at zoom %d exceeds the limit of %d",
			ErrPlanTooLarge, cells, req.Zoom, maxCells)
	}
	if pixels := math.Floor(dx) * math.Floor(dy); pixels > float64(maxPixels) {
		return fmt.Errorf("%w: %.0fx%.0f px at zoom %d exceeds the limit of %d pixels",
			ErrPlanTooLarge, math.Floor(dx), math.Floor(dy), req.Zoom, maxPixels)
	}
	return nil
}

// Request builds the Source request for a cell of this plan
func (p *GridPlan) Request(cell GridCell, scale int, style string) TileRequest {
	return TileRequest{
		Center: cell.Center,
		Zoom:   p.Zoom,
		Width:  cell.FetchWidth,
		Height: cell.FetchHeight,
		Scale:  scale,
		Style:  style,
	}
}

// Visible returns the canvas rectangle a cell paints, clipped to the canvas
func (p *GridPlan) Visible(cell GridCell) image.Rectangle {
	r := image.Rect(0, 0, p.TileWidth, p.TileHeight).Add(cell.Offset)
	return r.Intersect(image.Rect(0, 0, p.Width, p.Height))
}

// Footprint returns the north-west and south-east corners of what a cell
// contributes to the composite
func (p *GridPlan) Footprint(cell GridCell) (GeoPoint, GeoPoint) {
	r := p.Visible(cell)
	nw := PixelPoint{X: p.UpperLeft.X + float64(r.Min.X), Y: p.UpperLeft.Y - float64(r.Min.Y)}
	se := PixelPoint{X: p.UpperLeft.X + float64(r.Max.X), Y: p.UpperLeft.Y - float64(r.Max.Y)}
	return p.proj.ToGeo(nw, p.Zoom), p.proj.ToGeo(se, p.Zoom)
}

// Bounds returns the EPSG:3857 extent of the canvas and the size of one pixel
// in meters, as needed for a world file
func (p *GridPlan) Bounds() (minX, maxY, pixelSize float64) {
	minX, maxY = p.proj.PixelToMeters(p.UpperLeft, p.Zoom)
	return minX, maxY, p.proj.Resolution(p.Zoom)
}
