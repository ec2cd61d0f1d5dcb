package tile

import (
	"errors"
	"math"
	"testing"
)

var nycBox = BoundingBox{
	UpperLeft:  GeoPoint{Lat: 40.7128, Lon: -74.0060},
	LowerRight: GeoPoint{Lat: 40.7000, Lon: -73.9900},
}

func planFor(t *testing.T, box BoundingBox, zoom int) *GridPlan {
	t.Helper()
	plan, err := Plan(NewProjection(GoogleDatum), PlanRequest{
		Box:            box,
		Zoom:           zoom,
		MaxTileEdge:    DefaultMaxTileEdge,
		VerticalMargin: DefaultVerticalMargin,
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	return plan
}

func TestPlanSingleTile(t *testing.T) {
	plan := planFor(t, nycBox, 15)

	if plan.Columns != 1 || plan.Rows != 1 {
		t.Fatalf("Expected 1x1 grid, got %dx%d", plan.Columns, plan.Rows)
	}
	if plan.TileWidth != 373 || plan.TileHeight != 394 {
		t.Errorf("Expected tile 373x394, got %dx%d", plan.TileWidth, plan.TileHeight)
	}
	if plan.Width != 372 || plan.Height != 393 {
		t.Errorf("Expected canvas 372x393, got %dx%d", plan.Width, plan.Height)
	}

	cell := plan.Cells[0]
	if cell.FetchWidth != 373 || cell.FetchHeight != 394+DefaultVerticalMargin {
		t.Errorf("Expected fetch size 373x514, got %dx%d", cell.FetchWidth, cell.FetchHeight)
	}

	// the request center sits half a margin south of the visible center
	proj := NewProjection(GoogleDatum)
	px, err := proj.ToPixel(cell.Center, plan.Zoom)
	if err != nil {
		t.Fatalf("ToPixel: %v", err)
	}
	visible := proj.ToGeo(PixelPoint{X: px.X, Y: px.Y + DefaultVerticalMargin/2}, plan.Zoom)

	mid := nycBox.Center()
	if math.Abs(visible.Lat-mid.Lat) > 0.0005 || math.Abs(visible.Lon-mid.Lon) > 0.0005 {
		t.Errorf("Expected visible center near %v, got %v", mid, visible)
	}
	if cell.Center.Lat >= visible.Lat {
		t.Errorf("Expected request center south of visible center, got %v vs %v", cell.Center, visible)
	}
}

func TestPlanMultipleTiles(t *testing.T) {
	plan := planFor(t, nycBox, 18)

	if plan.Columns != 5 || plan.Rows != 6 {
		t.Fatalf("Expected 5x6 grid, got %dx%d", plan.Columns, plan.Rows)
	}
	if plan.TileWidth != 597 || plan.TileHeight != 525 {
		t.Errorf("Expected tile 597x525, got %dx%d", plan.TileWidth, plan.TileHeight)
	}
	if plan.Width != 2982 || plan.Height != 3147 {
		t.Errorf("Expected canvas 2982x3147, got %dx%d", plan.Width, plan.Height)
	}
	if len(plan.Cells) != 30 {
		t.Fatalf("Expected 30 cells, got %d", len(plan.Cells))
	}

	// column-major outer, row inner
	i := 0
	for col := 0; col < plan.Columns; col++ {
		for row := 0; row < plan.Rows; row++ {
			c := plan.Cells[i]
			if c.Col != col || c.Row != row || c.Index != i {
				t.Fatalf("cell %d: expected (%d,%d), got (%d,%d) index %d", i, col, row, c.Col, c.Row, c.Index)
			}
			if c.Offset.X != col*plan.TileWidth || c.Offset.Y != row*plan.TileHeight {
				t.Errorf("cell %d: unexpected offset %v", i, c.Offset)
			}
			i++
		}
	}

	// neighbouring centers are exactly one tile apart in pixel space
	proj := NewProjection(GoogleDatum)
	a, _ := proj.ToPixel(plan.Cells[0].Center, plan.Zoom)
	below, _ := proj.ToPixel(plan.Cells[1].Center, plan.Zoom)
	right, _ := proj.ToPixel(plan.Cells[plan.Rows].Center, plan.Zoom)
	if math.Abs((a.Y-below.Y)-float64(plan.TileHeight)) > 1e-3 {
		t.Errorf("Expected row spacing %d, got %v", plan.TileHeight, a.Y-below.Y)
	}
	if math.Abs((right.X-a.X)-float64(plan.TileWidth)) > 1e-3 {
		t.Errorf("Expected column spacing %d, got %v", plan.TileWidth, right.X-a.X)
	}
}

func TestPlanCoverage(t *testing.T) {
	boxes := []BoundingBox{
		nycBox,
		{UpperLeft: GeoPoint{Lat: 47.5, Lon: 7.5}, LowerRight: GeoPoint{Lat: 47.3, Lon: 8.9}},
		{UpperLeft: GeoPoint{Lat: -33.8, Lon: 151.1}, LowerRight: GeoPoint{Lat: -33.95, Lon: 151.3}},
		{UpperLeft: GeoPoint{Lat: 1, Lon: -1}, LowerRight: GeoPoint{Lat: -1, Lon: 1}},
	}

	for _, box := range boxes {
		for zoom := 8; zoom <= 17; zoom++ {
			plan, err := Plan(NewProjection(GoogleDatum), PlanRequest{
				Box: box, Zoom: zoom, MaxTileEdge: 600, VerticalMargin: 120,
				MaxCells: 1 << 20, MaxPixels: math.MaxInt,
			})
			if err != nil {
				t.Fatalf("%v zoom %d: %v", box, zoom, err)
			}
			if float64(plan.Columns*plan.TileWidth) < plan.DX {
				t.Errorf("%v zoom %d: columns do not cover dx", box, zoom)
			}
			if float64(plan.Rows*plan.TileHeight) < plan.DY {
				t.Errorf("%v zoom %d: rows do not cover dy", box, zoom)
			}
			if plan.TileWidth > 600 || plan.TileHeight > 600 {
				t.Errorf("%v zoom %d: tile %dx%d exceeds max edge", box, zoom, plan.TileWidth, plan.TileHeight)
			}
			if len(plan.Cells) != plan.Columns*plan.Rows {
				t.Errorf("%v zoom %d: expected %d cells, got %d", box, zoom, plan.Columns*plan.Rows, len(plan.Cells))
			}
			if plan.Width != int(math.Floor(plan.DX)) || plan.Height != int(math.Floor(plan.DY)) {
				t.Errorf("%v zoom %d: canvas %dx%d does not match floor(%v,%v)", box, zoom, plan.Width, plan.Height, plan.DX, plan.DY)
			}
		}
	}
}

func TestPlanErrors(t *testing.T) {
	proj := NewProjection(GoogleDatum)

	testCases := []struct {
		name    string
		req     PlanRequest
		wantErr error
	}{
		{
			name: "Corners swapped north/south",
			req: PlanRequest{
				Box:  BoundingBox{UpperLeft: nycBox.LowerRight, LowerRight: nycBox.UpperLeft},
				Zoom: 15, MaxTileEdge: 600,
			},
			wantErr: ErrDegenerateBoundingBox,
		},
		{
			name: "Same latitude",
			req: PlanRequest{
				Box:  BoundingBox{UpperLeft: GeoPoint{Lat: 40, Lon: -74}, LowerRight: GeoPoint{Lat: 40, Lon: -73}},
				Zoom: 15, MaxTileEdge: 600,
			},
			wantErr: ErrDegenerateBoundingBox,
		},
		{
			name: "West east swapped",
			req: PlanRequest{
				Box:  BoundingBox{UpperLeft: GeoPoint{Lat: 41, Lon: -73}, LowerRight: GeoPoint{Lat: 40, Lon: -74}},
				Zoom: 15, MaxTileEdge: 600,
			},
			wantErr: ErrDegenerateBoundingBox,
		},
		{
			name: "Sub-pixel box",
			req: PlanRequest{
				Box:  BoundingBox{UpperLeft: GeoPoint{Lat: 40.0001, Lon: -74}, LowerRight: GeoPoint{Lat: 40, Lon: -73.9999}},
				Zoom: 1, MaxTileEdge: 600,
			},
			wantErr: ErrDegenerateBoundingBox,
		},
		{
			name: "Pole corner",
			req: PlanRequest{
				Box:  BoundingBox{UpperLeft: GeoPoint{Lat: 90, Lon: -74}, LowerRight: GeoPoint{Lat: 40, Lon: -73}},
				Zoom: 15, MaxTileEdge: 600,
			},
			wantErr: ErrProjectionDomain,
		},
		{
			name:    "Zero max tile edge",
			req:     PlanRequest{Box: nycBox, Zoom: 15},
			wantErr: ErrInvalidPlan,
		},
		{
			name:    "Negative margin",
			req:     PlanRequest{Box: nycBox, Zoom: 15, MaxTileEdge: 600, VerticalMargin: -1},
			wantErr: ErrInvalidPlan,
		},
		{
			name:    "Tile edge above provider limit",
			req:     PlanRequest{Box: nycBox, Zoom: 15, MaxTileEdge: MaxFetchEdge + 1},
			wantErr: ErrInvalidPlan,
		},
		{
			name:    "Margin above provider limit",
			req:     PlanRequest{Box: nycBox, Zoom: 15, MaxTileEdge: 600, VerticalMargin: MaxFetchEdge + 1},
			wantErr: ErrInvalidPlan,
		},
		{
			name:    "One pixel tiles at zoom 21",
			req:     PlanRequest{Box: nycBox, Zoom: 21, MaxTileEdge: 1},
			wantErr: ErrPlanTooLarge,
		},
		{
			name:    "Default edge at zoom 21",
			req:     PlanRequest{Box: nycBox, Zoom: 21, MaxTileEdge: 600},
			wantErr: ErrPlanTooLarge,
		},
		{
			name:    "Cell limit",
			req:     PlanRequest{Box: nycBox, Zoom: 18, MaxTileEdge: 600, MaxCells: 29},
			wantErr: ErrPlanTooLarge,
		},
		{
			name:    "Pixel limit",
			req:     PlanRequest{Box: nycBox, Zoom: 15, MaxTileEdge: 600, MaxPixels: 372*393 - 1},
			wantErr: ErrPlanTooLarge,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Plan(proj, tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestPlanAtLimits(t *testing.T) {
	plan, err := Plan(NewProjection(GoogleDatum), PlanRequest{
		Box: nycBox, Zoom: 18, MaxTileEdge: 600, VerticalMargin: 120,
		MaxCells: 30, MaxPixels: 2982 * 3147,
	})
	if err != nil {
		t.Fatalf("Expected a plan exactly at the limits, got %v", err)
	}
	if len(plan.Cells) != 30 {
		t.Errorf("Expected 30 cells, got %d", len(plan.Cells))
	}
}

func TestPlanVisibleClipsLastColumn(t *testing.T) {
	plan := planFor(t, nycBox, 18)

	last := plan.Cells[len(plan.Cells)-1]
	r := plan.Visible(last)
	if r.Max.X != plan.Width || r.Max.Y != plan.Height {
		t.Errorf("Expected last cell clipped to %dx%d, got %v", plan.Width, plan.Height, r)
	}
	if r.Dx() >= plan.TileWidth {
		t.Errorf("Expected last column narrower than %d, got %d", plan.TileWidth, r.Dx())
	}
}

func TestPlanBounds(t *testing.T) {
	plan := planFor(t, nycBox, 15)
	proj := NewProjection(GoogleDatum)

	minX, maxY, px := plan.Bounds()
	wantX, wantY, _ := proj.ToMeters(nycBox.UpperLeft)
	if math.Abs(minX-wantX) > 1e-6 || math.Abs(maxY-wantY) > 1e-6 {
		t.Errorf("Expected origin (%v,%v), got (%v,%v)", wantX, wantY, minX, maxY)
	}
	if px != proj.Resolution(15) {
		t.Errorf("Expected pixel size %v, got %v", proj.Resolution(15), px)
	}
}

func TestFeatureCollection(t *testing.T) {
	plan := planFor(t, nycBox, 18)

	fc := plan.FeatureCollection()
	if len(fc.Features) != len(plan.Cells)+1 {
		t.Fatalf("Expected %d features, got %d", len(plan.Cells)+1, len(fc.Features))
	}
	if fc.Features[0].Properties["kind"] != "bounding_box" {
		t.Errorf("Expected first feature to be the bounding box, got %v", fc.Features[0].Properties["kind"])
	}

	first := fc.Features[1].Geometry.Bound()
	if math.Abs(first.Min[0]-nycBox.UpperLeft.Lon) > 1e-7 || math.Abs(first.Max[1]-nycBox.UpperLeft.Lat) > 1e-7 {
		t.Errorf("Expected first cell anchored at upper left %v, got %v", nycBox.UpperLeft, first)
	}
}
