package tile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/image/draw"
)

// DefaultStaticMapURL is the Google Static Maps endpoint
const DefaultStaticMapURL = "https://maps.googleapis.com/maps/api/staticmap"

// ProcessorOptions configures the static map source
type ProcessorOptions struct {
	BaseURL     string
	APIKey      string
	MapType     string
	ImageFormat string
	UserAgent   string
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
}

// Processor downloads and decodes static map images. It implements Source.
type Processor struct {
	client *http.Client
	opts   ProcessorOptions
}

// NewProcessor creates a new static map processor
func NewProcessor(opts ProcessorOptions) *Processor {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultStaticMapURL
	}
	if opts.MapType == "" {
		opts.MapType = "roadmap"
	}
	if opts.ImageFormat == "" {
		opts.ImageFormat = "png"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "mapwizard/1.0.0"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}

	return &Processor{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
	}
}

// Fetch implements Source
func (p *Processor) Fetch(ctx context.Context, req TileRequest) (image.Image, error) {
	data, err := p.DownloadTile(ctx, p.BuildURL(req))
	if err != nil {
		return nil, err
	}

	img, err := p.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("decode error: %w", err)
	}

	return fitScale(img, req), nil
}

// BuildURL renders the request as a static map URL. The style fragment is
// already query-encoded and is appended verbatim.
func (p *Processor) BuildURL(req TileRequest) string {
	scale := req.Scale
	if scale < 1 {
		scale = DefaultScale
	}

	params := url.Values{}
	params.Set("center", req.Center.String())
	params.Set("zoom", strconv.Itoa(req.Zoom))
	params.Set("format", p.opts.ImageFormat)
	params.Set("maptype", p.opts.MapType)
	params.Set("size", fmt.Sprintf("%dx%d", req.Width, req.Height))
	params.Set("scale", strconv.Itoa(scale))

	u := p.opts.BaseURL + "?" + params.Encode() + req.Style
	if p.opts.APIKey != "" {
		u += "&key=" + url.QueryEscape(p.opts.APIKey)
	}
	return u
}

// DownloadTile downloads a tile from the given URL. Transport errors, 429
// and 5xx answers are retried; any other status fails at once.
func (p *Processor) DownloadTile(ctx context.Context, u string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < p.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(time.Duration(attempt) * p.opts.RetryDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}

		data, err := p.download(ctx, u)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func retryable(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return true
	}
	return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
}

func (p *Processor) download(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.opts.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(b))}
	}

	return io.ReadAll(resp.Body)
}

// DecodeImage detects image format and decodes
func (p *Processor) DecodeImage(data []byte) (image.Image, error) {
	switch {
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return png.Decode(bytes.NewReader(data))
	case len(data) >= 2 && bytes.Equal(data[:2], []byte{0xFF, 0xD8}):
		return jpeg.Decode(bytes.NewReader(data))
	case len(data) >= 3 && string(data[:3]) == "GIF":
		return gif.Decode(bytes.NewReader(data))
	}
	return nil, fmt.Errorf("unrecognized image format")
}

// HTTPError is a non-200 answer from the provider
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// fitScale brings a high density (scale > 1) answer back to the requested
// pixel size. Images of any other size are returned untouched so the
// compositor can report the mismatch.
func fitScale(img image.Image, req TileRequest) image.Image {
	if req.Scale <= 1 {
		return img
	}
	b := img.Bounds()
	if b.Dx() != req.Width*req.Scale || b.Dy() != req.Height*req.Scale {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, req.Width, req.Height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
