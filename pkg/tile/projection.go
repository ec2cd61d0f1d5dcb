package tile

import (
	"fmt"
	"math"
)

// Datum holds the constants of the provider's spherical Mercator convention
type Datum struct {
	EarthRadius       float64
	Circumference     float64
	InitialResolution float64
	OriginShift       float64
}

// NewDatum derives the projection constants for a sphere of the given radius
// and a base tile edge of tileSize pixels
func NewDatum(earthRadius float64, tileSize int) Datum {
	circumference := 2 * math.Pi * earthRadius
	return Datum{
		EarthRadius:       earthRadius,
		Circumference:     circumference,
		InitialResolution: circumference / float64(tileSize),
		OriginShift:       circumference / 2,
	}
}

// GoogleDatum is the WGS84 sphere with 256px base tiles used by Google Maps
var GoogleDatum = NewDatum(6378137, 256)

// Projection converts between geographic and global pixel coordinates
type Projection struct {
	datum Datum
}

// NewProjection creates a projection over the given datum
func NewProjection(d Datum) *Projection {
	return &Projection{datum: d}
}

// Datum returns the constants this projection was built with
func (p *Projection) Datum() Datum {
	return p.datum
}

// Resolution returns meters per pixel at the equator for the zoom level
func (p *Projection) Resolution(zoom int) float64 {
	return p.datum.InitialResolution / math.Exp2(float64(zoom))
}

// ToMeters converts lat/lon in WGS84 to XY in Spherical Mercator (EPSG:3857)
func (p *Projection) ToMeters(pt GeoPoint) (float64, float64, error) {
	if math.IsNaN(pt.Lat) || math.Abs(pt.Lat) >= 90 {
		return 0, 0, fmt.Errorf("%w: latitude %v", ErrProjectionDomain, pt.Lat)
	}

	x := pt.Lon * p.datum.OriginShift / 180.0
	y := math.Log(math.Tan((90+pt.Lat)*math.Pi/360.0)) / (math.Pi / 180.0)
	y = y * p.datum.OriginShift / 180.0

	return x, y, nil
}

// ToPixel projects a point into pixel space at the given zoom.
// Pixel y grows northward, so a north-west corner has the larger y.
func (p *Projection) ToPixel(pt GeoPoint, zoom int) (PixelPoint, error) {
	if err := checkZoom(zoom); err != nil {
		return PixelPoint{}, err
	}

	mx, my, err := p.ToMeters(pt)
	if err != nil {
		return PixelPoint{}, err
	}

	res := p.Resolution(zoom)
	return PixelPoint{
		X: (mx + p.datum.OriginShift) / res,
		Y: (my + p.datum.OriginShift) / res,
	}, nil
}

// ToGeo is the inverse of ToPixel
func (p *Projection) ToGeo(px PixelPoint, zoom int) GeoPoint {
	res := p.Resolution(zoom)
	mx := px.X*res - p.datum.OriginShift
	my := px.Y*res - p.datum.OriginShift

	lat := (my / p.datum.OriginShift) * 180.0
	lat = 180 / math.Pi * (2*math.Atan(math.Exp(lat*math.Pi/180.0)) - math.Pi/2.0)
	lon := (mx / p.datum.OriginShift) * 180.0

	return GeoPoint{Lat: lat, Lon: lon}
}

// PixelToMeters converts a pixel position to EPSG:3857 meters
func (p *Projection) PixelToMeters(px PixelPoint, zoom int) (float64, float64) {
	res := p.Resolution(zoom)
	return px.X*res - p.datum.OriginShift, px.Y*res - p.datum.OriginShift
}

func checkZoom(zoom int) error {
	if zoom < MinZoom || zoom > MaxZoom {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrInvalidZoom, zoom, MinZoom, MaxZoom)
	}
	return nil
}
