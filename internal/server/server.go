package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/kiesman99/mapwizard/internal/api"
	"github.com/kiesman99/mapwizard/internal/stitcher"
	"github.com/kiesman99/mapwizard/pkg/style"
	"github.com/kiesman99/mapwizard/pkg/tile"
)

// Defaults fill the optional fields of API requests
type Defaults struct {
	MaxTileEdge    int
	VerticalMargin int
	Scale          int
	MaxCells       int
	MaxPixels      int

	// Style is an encoded style fragment used when a request names none
	Style    string
	StyleDir string

	Timeout time.Duration
}

// Server implements the ServerInterface of the API
type Server struct {
	startTime time.Time
	version   string
	engine    *stitcher.Stitcher
	defaults  Defaults
	logger    *slog.Logger
}

// NewServer creates a new server instance
func NewServer(version string, engine *stitcher.Stitcher, defaults Defaults, logger *slog.Logger) *Server {
	if defaults.MaxTileEdge == 0 {
		defaults.MaxTileEdge = tile.DefaultMaxTileEdge
	}
	if defaults.Scale == 0 {
		defaults.Scale = tile.DefaultScale
	}
	if defaults.MaxCells == 0 {
		defaults.MaxCells = tile.DefaultMaxCells
	}
	if defaults.MaxPixels == 0 {
		defaults.MaxPixels = tile.DefaultMaxPixels
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		startTime: time.Now(),
		version:   version,
		engine:    engine,
		defaults:  defaults,
		logger:    logger,
	}
}

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(s.startTime).Seconds())

	response := api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.version,
	}

	s.writeJSON(w, http.StatusOK, "application/json", response)
}

// GetPlan returns the grid a stitch request would fetch, as GeoJSON
func (s *Server) GetPlan(w http.ResponseWriter, r *http.Request, params api.GetPlanParams) {
	requestID := requestIDFrom(r)

	var fields []api.ValidationError
	ul, err := tile.ParseGeoPoint(params.UpperLeft)
	if err != nil {
		fields = append(fields, api.ValidationError{Field: "upper_left", Message: err.Error()})
	}
	lr, err := tile.ParseGeoPoint(params.LowerRight)
	if err != nil {
		fields = append(fields, api.ValidationError{Field: "lower_right", Message: err.Error()})
	}
	fields = append(fields, validateZoom(params.Zoom)...)
	fields = append(fields, validateTiling(params.MaxTileEdge, params.VerticalMargin)...)
	if len(fields) > 0 {
		s.writeValidationErrorResponse(w, fields, &requestID)
		return
	}

	opts := &stitcher.Options{
		Box:            tile.BoundingBox{UpperLeft: ul, LowerRight: lr},
		Zoom:           params.Zoom,
		MaxTileEdge:    valueOr(params.MaxTileEdge, s.defaults.MaxTileEdge),
		VerticalMargin: valueOr(params.VerticalMargin, s.defaults.VerticalMargin),
		MaxCells:       s.defaults.MaxCells,
		MaxPixels:      s.defaults.MaxPixels,
	}

	plan, err := s.engine.Plan(opts)
	if err != nil {
		s.handleStitchingError(w, err, &requestID)
		return
	}

	w.Header().Set("X-Request-ID", requestID)
	s.writeJSON(w, http.StatusOK, "application/geo+json", plan.FeatureCollection())
}

// CreateStitchedImage implements the main stitching endpoint
func (s *Server) CreateStitchedImage(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req api.StitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON",
			"Invalid JSON in request body", &requestID, nil)
		return
	}

	if fields := s.validateStitchRequest(&req); len(fields) > 0 {
		s.writeValidationErrorResponse(w, fields, &requestID)
		return
	}

	opts, err := s.convertToStitcherOptions(&req)
	if err != nil {
		s.writeValidationErrorResponse(w, []api.ValidationError{{Field: "style", Message: err.Error()}}, &requestID)
		return
	}

	result, err := s.engine.Stitch(r.Context(), opts)
	if err != nil {
		s.handleStitchingError(w, err, &requestID)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("X-Grid-Size", fmt.Sprintf("%dx%d", result.Plan.Columns, result.Plan.Rows))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.ImageData)))

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.ImageData); err != nil {
		s.logger.Error("writing response", "request_id", requestID, "error", err)
	}
}

// validateStitchRequest validates the incoming stitch request
func (s *Server) validateStitchRequest(req *api.StitchRequest) []api.ValidationError {
	var fields []api.ValidationError

	fields = append(fields, validatePoint("upper_left", req.UpperLeft)...)
	fields = append(fields, validatePoint("lower_right", req.LowerRight)...)
	fields = append(fields, validateZoom(req.Zoom)...)
	fields = append(fields, validateTiling(req.MaxTileEdge, req.VerticalMargin)...)

	if req.Scale != nil && (*req.Scale < 1 || *req.Scale > 4) {
		fields = append(fields, api.ValidationError{Field: "scale", Message: "scale must be between 1 and 4"})
	}
	if req.Style != nil && req.StyleRules != nil {
		fields = append(fields, api.ValidationError{Field: "style", Message: "style and style_rules are mutually exclusive"})
	}

	return fields
}

func validatePoint(field string, p api.GeoPoint) []api.ValidationError {
	var fields []api.ValidationError
	if !(p.Lat > -90 && p.Lat < 90) {
		fields = append(fields, api.ValidationError{Field: field + ".lat", Message: "lat must be between -90 and 90 exclusive"})
	}
	if !(p.Lon >= -180 && p.Lon <= 180) {
		fields = append(fields, api.ValidationError{Field: field + ".lon", Message: "lon must be between -180 and 180"})
	}
	return fields
}

func validateZoom(zoom int) []api.ValidationError {
	if zoom < 1 || zoom > tile.MaxZoom {
		return []api.ValidationError{{Field: "zoom", Message: fmt.Sprintf("zoom must be between 1 and %d", tile.MaxZoom)}}
	}
	return nil
}

func validateTiling(maxTileEdge, verticalMargin *int) []api.ValidationError {
	var fields []api.ValidationError
	if maxTileEdge != nil && (*maxTileEdge <= 0 || *maxTileEdge > tile.MaxFetchEdge) {
		fields = append(fields, api.ValidationError{Field: "max_tile_edge",
			Message: fmt.Sprintf("max_tile_edge must be between 1 and %d", tile.MaxFetchEdge)})
	}
	if verticalMargin != nil && (*verticalMargin < 0 || *verticalMargin > tile.MaxFetchEdge) {
		fields = append(fields, api.ValidationError{Field: "vertical_margin",
			Message: fmt.Sprintf("vertical_margin must be between 0 and %d", tile.MaxFetchEdge)})
	}
	return fields
}

// convertToStitcherOptions converts API request to internal stitcher options
func (s *Server) convertToStitcherOptions(req *api.StitchRequest) (*stitcher.Options, error) {
	opts := &stitcher.Options{
		Box: tile.BoundingBox{
			UpperLeft:  tile.GeoPoint{Lat: req.UpperLeft.Lat, Lon: req.UpperLeft.Lon},
			LowerRight: tile.GeoPoint{Lat: req.LowerRight.Lat, Lon: req.LowerRight.Lon},
		},
		Zoom:           req.Zoom,
		MaxTileEdge:    valueOr(req.MaxTileEdge, s.defaults.MaxTileEdge),
		VerticalMargin: valueOr(req.VerticalMargin, s.defaults.VerticalMargin),
		Scale:          valueOr(req.Scale, s.defaults.Scale),
		MaxCells:       s.defaults.MaxCells,
		MaxPixels:      s.defaults.MaxPixels,
		Style:          s.defaults.Style,
	}

	switch {
	case req.StyleRules != nil:
		rules, err := style.Parse(*req.StyleRules, "json")
		if err != nil {
			return nil, err
		}
		opts.Style = style.Encode(rules)
	case req.Style != nil:
		encoded, err := s.namedStyle(*req.Style)
		if err != nil {
			return nil, err
		}
		opts.Style = encoded
	}

	return opts, nil
}

// namedStyle looks a style file up by its base name in the style directory
func (s *Server) namedStyle(name string) (string, error) {
	if name != style.Name(name) {
		return "", fmt.Errorf("invalid style name %q", name)
	}
	return style.Lookup(s.defaults.StyleDir, name)
}

// handleStitchingError handles errors from the stitching process
func (s *Server) handleStitchingError(w http.ResponseWriter, err error, requestID *string) {
	s.logger.Warn("stitch request failed", "request_id", *requestID, "error", err)

	switch {
	case errors.Is(err, tile.ErrDegenerateBoundingBox):
		s.writeErrorResponse(w, http.StatusUnprocessableEntity, "DEGENERATE_BOUNDING_BOX",
			err.Error(), requestID, nil)
		return
	case errors.Is(err, tile.ErrPlanTooLarge):
		s.writeErrorResponse(w, http.StatusUnprocessableEntity, "PLAN_TOO_LARGE",
			err.Error(), requestID, map[string]interface{}{
				"max_cells":  s.defaults.MaxCells,
				"max_pixels": s.defaults.MaxPixels,
			})
		return
	case errors.Is(err, tile.ErrProjectionDomain), errors.Is(err, tile.ErrInvalidZoom), errors.Is(err, tile.ErrInvalidPlan):
		s.writeValidationErrorResponse(w, []api.ValidationError{{Field: "request", Message: err.Error()}}, requestID)
		return
	case errors.Is(err, context.DeadlineExceeded):
		s.writeErrorResponse(w, http.StatusGatewayTimeout, "TILE_SERVER_TIMEOUT",
			"Tile server requests timed out", requestID, map[string]interface{}{
				"timeout_seconds": int(s.defaults.Timeout.Seconds()),
			})
		return
	}

	var tileErr *tile.TileError
	if errors.As(err, &tileErr) {
		failed := api.FailedTile{
			Col:    tileErr.Col,
			Row:    tileErr.Row,
			Center: api.GeoPoint{Lat: tileErr.Center.Lat, Lon: tileErr.Center.Lon},
			Zoom:   tileErr.Zoom,
		}
		var httpErr *tile.HTTPError
		if errors.As(err, &httpErr) {
			failed.StatusCode = &httpErr.StatusCode
		}

		response := api.TileErrorResponse{
			Error:     "TILE_SERVER_ERROR",
			Message:   tileErr.Error(),
			Tile:      failed,
			RequestId: requestID,
		}
		s.writeJSON(w, http.StatusBadGateway, "application/json", response)
		return
	}

	s.writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR",
		"Internal server error", requestID, nil)
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string, requestID *string, details map[string]interface{}) {
	response := api.ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestId: requestID,
	}

	if details != nil {
		response.Details = &details
	}

	s.writeJSON(w, statusCode, "application/json", response)
}

// writeValidationErrorResponse writes a validation error response
func (s *Server) writeValidationErrorResponse(w http.ResponseWriter, fields []api.ValidationError, requestID *string) {
	messages := make([]string, len(fields))
	for i, f := range fields {
		messages[i] = f.Message
	}

	response := api.ValidationErrorResponse{
		Error:            api.VALIDATIONERROR,
		Message:          strings.Join(messages, "; "),
		RequestId:        requestID,
		ValidationErrors: fields,
	}

	s.writeJSON(w, http.StatusBadRequest, "application/json", response)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

// requestIDFrom prefers the id set by the RequestID middleware
func requestIDFrom(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return generateRequestID()
}

// generateRequestID generates a unique request ID
func generateRequestID() string {
	return fmt.Sprintf("req_%d", time.Now().UnixNano())
}

func valueOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
