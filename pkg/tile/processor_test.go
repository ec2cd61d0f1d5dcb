package tile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// staticMapServer answers like the static maps API: an image of size x scale
func staticMapServer(t *testing.T, failures int32) (*httptest.Server, *atomic.Int32, chan *url.URL) {
	t.Helper()
	var hits atomic.Int32
	seen := make(chan *url.URL, 16)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		select {
		case seen <- r.URL:
		default:
		}
		if n <= failures {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}

		var width, height, scale int
		if _, err := fmt.Sscanf(r.URL.Query().Get("size"), "%dx%d", &width, &height); err != nil {
			http.Error(w, "bad size", http.StatusBadRequest)
			return
		}
		fmt.Sscanf(r.URL.Query().Get("scale"), "%d", &scale)
		if scale < 1 {
			scale = 1
		}

		var buf bytes.Buffer
		png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width*scale, height*scale)))
		w.Header().Set("Content-Type", "image/png")
		w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)
	return srv, &hits, seen
}

func TestProcessorBuildURL(t *testing.T) {
	p := NewProcessor(ProcessorOptions{APIKey: "secret"})

	u := p.BuildURL(TileRequest{
		Center: GeoPoint{Lat: 40.7, Lon: -74},
		Zoom:   15,
		Width:  373,
		Height: 514,
		Scale:  1,
		Style:  "&style=feature:water%7Ccolor:0x000000",
	})

	if !strings.HasPrefix(u, DefaultStaticMapURL+"?") {
		t.Fatalf("Expected static map endpoint, got %s", u)
	}
	if !strings.Contains(u, "&style=feature:water%7Ccolor:0x000000&key=secret") {
		t.Errorf("Expected style fragment followed by key, got %s", u)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("Invalid URL: %v", err)
	}
	q := parsed.Query()
	want := map[string]string{
		"center":  "40.7,-74",
		"zoom":    "15",
		"format":  "png",
		"maptype": "roadmap",
		"size":    "373x514",
		"scale":   "1",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("%s: expected %q, got %q", k, v, q.Get(k))
		}
	}
}

func TestProcessorFetch(t *testing.T) {
	srv, hits, seen := staticMapServer(t, 0)
	p := NewProcessor(ProcessorOptions{BaseURL: srv.URL, APIKey: "k", MapType: "terrain"})

	img, err := p.Fetch(context.Background(), TileRequest{Center: GeoPoint{Lat: 1, Lon: 2}, Zoom: 3, Width: 40, Height: 60})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 60 {
		t.Errorf("Expected 40x60, got %v", img.Bounds())
	}
	if hits.Load() != 1 {
		t.Errorf("Expected 1 request, got %d", hits.Load())
	}

	u := <-seen
	if u.Query().Get("maptype") != "terrain" || u.Query().Get("key") != "k" {
		t.Errorf("Unexpected query %s", u.RawQuery)
	}
}

func TestProcessorFetchScaled(t *testing.T) {
	srv, _, _ := staticMapServer(t, 0)
	p := NewProcessor(ProcessorOptions{BaseURL: srv.URL})

	img, err := p.Fetch(context.Background(), TileRequest{Zoom: 3, Width: 40, Height: 60, Scale: 2})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 60 {
		t.Errorf("Expected scale 2 answer resampled to 40x60, got %v", img.Bounds())
	}
}

func TestProcessorRetries(t *testing.T) {
	srv, hits, _ := staticMapServer(t, 2)
	p := NewProcessor(ProcessorOptions{BaseURL: srv.URL, MaxRetries: 3, RetryDelay: time.Millisecond})

	if _, err := p.Fetch(context.Background(), TileRequest{Zoom: 3, Width: 10, Height: 10}); err != nil {
		t.Fatalf("Expected success on third attempt, got %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("Expected 3 requests, got %d", hits.Load())
	}
}

func TestProcessorHTTPError(t *testing.T) {
	srv, hits, _ := staticMapServer(t, 100)
	p := NewProcessor(ProcessorOptions{BaseURL: srv.URL, MaxRetries: 2, RetryDelay: time.Millisecond})

	_, err := p.Fetch(context.Background(), TileRequest{Zoom: 3, Width: 10, Height: 10})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Expected *HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", httpErr.StatusCode)
	}
	if hits.Load() != 2 {
		t.Errorf("Expected 2 attempts, got %d", hits.Load())
	}
}

func TestProcessorRetryPolicy(t *testing.T) {
	testCases := []struct {
		status   int
		attempts int32
	}{
		{http.StatusBadRequest, 1},
		{http.StatusForbidden, 1},
		{http.StatusNotFound, 1},
		{http.StatusTooManyRequests, 3},
		{http.StatusInternalServerError, 3},
		{http.StatusBadGateway, 3},
	}

	for _, tc := range testCases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				http.Error(w, "denied", tc.status)
			}))
			defer srv.Close()

			p := NewProcessor(ProcessorOptions{BaseURL: srv.URL, MaxRetries: 3, RetryDelay: time.Millisecond})
			_, err := p.Fetch(context.Background(), TileRequest{Zoom: 3, Width: 10, Height: 10})

			var httpErr *HTTPError
			if !errors.As(err, &httpErr) || httpErr.StatusCode != tc.status {
				t.Fatalf("Expected HTTP %d error, got %v", tc.status, err)
			}
			if hits.Load() != tc.attempts {
				t.Errorf("Expected %d attempts, got %d", tc.attempts, hits.Load())
			}
		})
	}
}

func TestProcessorDecodeImage(t *testing.T) {
	p := NewProcessor(ProcessorOptions{})

	if _, err := p.DecodeImage([]byte("<html>quota exceeded</html>")); err == nil {
		t.Error("Expected error for non-image payload")
	}

	var buf bytes.Buffer
	png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 2)))
	img, err := p.DecodeImage(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeImage: %v", err)
	}
	if img.Bounds().Dx() != 3 || img.Bounds().Dy() != 2 {
		t.Errorf("Expected 3x2, got %v", img.Bounds())
	}
}
