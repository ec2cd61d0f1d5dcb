package tile

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Point returns the point in orb's lon/lat order
func (p GeoPoint) Point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// Bound returns the box as an orb bound
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.UpperLeft.Lon, b.LowerRight.Lat},
		Max: orb.Point{b.LowerRight.Lon, b.UpperLeft.Lat},
	}
}

// FeatureCollection describes the plan as GeoJSON: the requested box, then
// one polygon per cell covering what that cell contributes to the canvas.
func (p *GridPlan) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	box := geojson.NewFeature(p.Box.Bound().ToPolygon())
	box.Properties["kind"] = "bounding_box"
	box.Properties["zoom"] = p.Zoom
	box.Properties["columns"] = p.Columns
	box.Properties["rows"] = p.Rows
	box.Properties["tile_width"] = p.TileWidth
	box.Properties["tile_height"] = p.TileHeight
	box.Properties["width"] = p.Width
	box.Properties["height"] = p.Height
	fc.Append(box)

	for _, cell := range p.Cells {
		nw, se := p.Footprint(cell)
		b := orb.Bound{
			Min: orb.Point{nw.Lon, se.Lat},
			Max: orb.Point{se.Lon, nw.Lat},
		}

		f := geojson.NewFeature(b.ToPolygon())
		f.Properties["kind"] = "cell"
		f.Properties["index"] = cell.Index
		f.Properties["col"] = cell.Col
		f.Properties["row"] = cell.Row
		f.Properties["center"] = []float64{cell.Center.Lat, cell.Center.Lon}
		f.Properties["fetch_width"] = cell.FetchWidth
		f.Properties["fetch_height"] = cell.FetchHeight
		f.Properties["offset_x"] = cell.Offset.X
		f.Properties["offset_y"] = cell.Offset.Y
		fc.Append(f)
	}

	return fc
}
