package tile

import (
	"errors"
	"math"
	"testing"
)

func TestDatumConstants(t *testing.T) {
	d := GoogleDatum

	if d.EarthRadius != 6378137 {
		t.Errorf("Expected earth radius 6378137, got %v", d.EarthRadius)
	}
	if math.Abs(d.OriginShift-20037508.342789244) > 1e-6 {
		t.Errorf("Expected origin shift 20037508.342789244, got %v", d.OriginShift)
	}
	if math.Abs(d.InitialResolution-156543.03392804062) > 1e-6 {
		t.Errorf("Expected initial resolution 156543.03392804062, got %v", d.InitialResolution)
	}
}

func TestToPixelOrigin(t *testing.T) {
	proj := NewProjection(GoogleDatum)

	testCases := []struct {
		zoom int
		want float64
	}{
		{0, 128},
		{1, 256},
		{10, 128 * 1024},
	}

	for _, tc := range testCases {
		px, err := proj.ToPixel(GeoPoint{}, tc.zoom)
		if err != nil {
			t.Fatalf("zoom %d: unexpected error: %v", tc.zoom, err)
		}
		if math.Abs(px.X-tc.want) > 1e-6 || math.Abs(px.Y-tc.want) > 1e-6 {
			t.Errorf("zoom %d: expected (%v,%v), got (%v,%v)", tc.zoom, tc.want, tc.want, px.X, px.Y)
		}
	}
}

func TestToPixelNorthIsLarger(t *testing.T) {
	proj := NewProjection(GoogleDatum)

	north, _ := proj.ToPixel(GeoPoint{Lat: 50, Lon: 10}, 5)
	south, _ := proj.ToPixel(GeoPoint{Lat: 40, Lon: 10}, 5)
	if north.Y <= south.Y {
		t.Errorf("Expected northern point to have larger y, got %v <= %v", north.Y, south.Y)
	}
}

func TestProjectionRoundTrip(t *testing.T) {
	proj := NewProjection(GoogleDatum)

	for zoom := 1; zoom <= MaxZoom; zoom++ {
		for lat := -84.9; lat < 85; lat += 7.3 {
			for lon := -179.5; lon <= 180; lon += 11.9 {
				p := GeoPoint{Lat: lat, Lon: lon}
				px, err := proj.ToPixel(p, zoom)
				if err != nil {
					t.Fatalf("ToPixel(%v, %d): %v", p, zoom, err)
				}
				got := proj.ToGeo(px, zoom)
				if math.Abs(got.Lat-lat) > 1e-6 || math.Abs(got.Lon-lon) > 1e-6 {
					t.Fatalf("zoom %d: round trip of %v gave %v", zoom, p, got)
				}
			}
		}
	}
}

func TestToPixelDomainErrors(t *testing.T) {
	proj := NewProjection(GoogleDatum)

	testCases := []struct {
		name    string
		point   GeoPoint
		zoom    int
		wantErr error
	}{
		{"North pole", GeoPoint{Lat: 90, Lon: 0}, 5, ErrProjectionDomain},
		{"South pole", GeoPoint{Lat: -90, Lon: 0}, 5, ErrProjectionDomain},
		{"NaN latitude", GeoPoint{Lat: math.NaN(), Lon: 0}, 5, ErrProjectionDomain},
		{"Zoom too high", GeoPoint{Lat: 10, Lon: 10}, 22, ErrInvalidZoom},
		{"Negative zoom", GeoPoint{Lat: 10, Lon: 10}, -1, ErrInvalidZoom},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := proj.ToPixel(tc.point, tc.zoom)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestResolutionHalvesPerZoom(t *testing.T) {
	proj := NewProjection(GoogleDatum)

	for zoom := 0; zoom < MaxZoom; zoom++ {
		ratio := proj.Resolution(zoom) / proj.Resolution(zoom+1)
		if math.Abs(ratio-2) > 1e-12 {
			t.Errorf("zoom %d: expected ratio 2, got %v", zoom, ratio)
		}
	}
}
