package tile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Zoom bounds imposed by the static map provider
const (
	MinZoom = 0
	MaxZoom = 21
)

// Provider defaults
const (
	DefaultMaxTileEdge    = 600
	DefaultVerticalMargin = 120
	DefaultScale          = 1
)

// Plan size limits. A plan is refused before anything is allocated for it
// when it exceeds them.
const (
	// MaxFetchEdge is the largest width or height the provider serves
	MaxFetchEdge = 640

	DefaultMaxCells  = 10000
	DefaultMaxPixels = 1 << 28
)

// GeoPoint is a WGS84 latitude/longitude pair in degrees
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// String formats the point the way the provider expects a center parameter
func (p GeoPoint) String() string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lon, 'f', -1, 64)
}

// PixelPoint is a position in global pixel space at a single zoom level
type PixelPoint struct {
	X, Y float64
}

// BoundingBox represents geographic bounds by their north-west and south-east corners
type BoundingBox struct {
	UpperLeft  GeoPoint `json:"upper_left"`
	LowerRight GeoPoint `json:"lower_right"`
}

// Center returns the arithmetic midpoint of the two corners
func (b BoundingBox) Center() GeoPoint {
	return GeoPoint{
		Lat: (b.UpperLeft.Lat + b.LowerRight.Lat) / 2,
		Lon: (b.UpperLeft.Lon + b.LowerRight.Lon) / 2,
	}
}

var coordPattern = regexp.MustCompile(`^[-+]?([1-8]?\d(\.\d+)?|90(\.0+)?),\s*[-+]?(180(\.0+)?|((1[0-7]\d)|([1-9]?\d))(\.\d+)?)$`)

// ParseGeoPoint parses "lat,lon" input such as "40.7128,-74.0060"
func ParseGeoPoint(s string) (GeoPoint, error) {
	s = strings.TrimSpace(s)
	if !coordPattern.MatchString(s) {
		return GeoPoint{}, fmt.Errorf("invalid coordinates %q: want 'lat,lon' with lat in [-90,90] and lon in [-180,180]", s)
	}

	parts := strings.SplitN(s, ",", 2)
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return GeoPoint{}, fmt.Errorf("invalid latitude in %q: %w", s, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return GeoPoint{}, fmt.Errorf("invalid longitude in %q: %w", s, err)
	}

	return GeoPoint{Lat: lat, Lon: lon}, nil
}

// TileRequest is everything a Source needs to render one grid cell
type TileRequest struct {
	Center GeoPoint
	Zoom   int
	Width  int
	Height int
	Scale  int
	Style  string
}
