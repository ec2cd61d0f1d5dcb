package tile

import (
	"errors"
	"fmt"
)

var (
	// ErrDegenerateBoundingBox means the corners are not a north-west/south-east pair
	ErrDegenerateBoundingBox = errors.New("degenerate bounding box")
	// ErrProjectionDomain means a latitude the Mercator projection cannot represent
	ErrProjectionDomain = errors.New("latitude outside projection domain")
	// ErrInvalidZoom means a zoom level the provider does not serve
	ErrInvalidZoom = errors.New("invalid zoom level")
	// ErrInvalidPlan means tiling parameters that cannot produce a grid
	ErrInvalidPlan = errors.New("invalid plan parameters")
	// ErrPlanTooLarge means a grid with more cells or pixels than allowed
	ErrPlanTooLarge = errors.New("plan too large")
	// ErrNoImage means the source reported success without an image
	ErrNoImage = errors.New("source returned no image")
	// ErrDimensionMismatch means the source returned an image of the wrong size
	ErrDimensionMismatch = errors.New("tile dimension mismatch")
)

// TileError represents a failure to fetch or place one grid cell.
// It aborts the whole composite.
type TileError struct {
	Col    int
	Row    int
	Center GeoPoint
	Zoom   int
	Err    error
}

func (e *TileError) Error() string {
	return fmt.Sprintf("tile col=%d row=%d center=%s zoom=%d: %v", e.Col, e.Row, e.Center, e.Zoom, e.Err)
}

func (e *TileError) Unwrap() error {
	return e.Err
}
