// Package api holds the HTTP contract of the mapwizard server: request and
// response bodies, the handler interface, and chi routing with parameter
// binding.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// Defines values for HealthResponseStatus.
const (
	Healthy   HealthResponseStatus = "healthy"
	Unhealthy HealthResponseStatus = "unhealthy"
)

// Defines values for ValidationErrorResponseError.
const (
	VALIDATIONERROR ValidationErrorResponseError = "VALIDATION_ERROR"
)

// GeoPoint WGS84 coordinate in degrees
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// HealthResponse defines model for HealthResponse.
type HealthResponse struct {
	Status    HealthResponseStatus `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
	Uptime    *int                 `json:"uptime,omitempty"`
	Version   *string              `json:"version,omitempty"`
}

// HealthResponseStatus defines model for HealthResponse.Status.
type HealthResponseStatus string

// StitchRequest defines model for StitchRequest.
type StitchRequest struct {
	UpperLeft  GeoPoint `json:"upper_left"`
	LowerRight GeoPoint `json:"lower_right"`
	Zoom       int      `json:"zoom"`

	// Style name resolved against the server's style directory
	Style *string `json:"style,omitempty"`

	// StyleRules inline style rules, same shape as a JSON style file
	StyleRules *json.RawMessage `json:"style_rules,omitempty"`

	MaxTileEdge    *int `json:"max_tile_edge,omitempty"`
	VerticalMargin *int `json:"vertical_margin,omitempty"`
	Scale          *int `json:"scale,omitempty"`
}

// ErrorResponse defines model for ErrorResponse.
type ErrorResponse struct {
	Details   *map[string]interface{} `json:"details,omitempty"`
	Error     string                  `json:"error"`
	Message   string                  `json:"message"`
	RequestId *string                 `json:"request_id,omitempty"`
}

// ValidationError defines model for ValidationError.
type ValidationError struct {
	Code    *string `json:"code,omitempty"`
	Field   string  `json:"field"`
	Message string  `json:"message"`
}

// ValidationErrorResponse defines model for ValidationErrorResponse.
type ValidationErrorResponse struct {
	Error            ValidationErrorResponseError `json:"error"`
	Message          string                       `json:"message"`
	RequestId        *string                      `json:"request_id,omitempty"`
	ValidationErrors []ValidationError            `json:"validation_errors"`
}

// ValidationErrorResponseError defines model for ValidationErrorResponse.Error.
type ValidationErrorResponseError string

// FailedTile identifies the grid cell whose fetch aborted a run
type FailedTile struct {
	Col        int      `json:"col"`
	Row        int      `json:"row"`
	Center     GeoPoint `json:"center"`
	Zoom       int      `json:"zoom"`
	StatusCode *int     `json:"status_code,omitempty"`
}

// TileErrorResponse defines model for TileErrorResponse.
type TileErrorResponse struct {
	Error     string     `json:"error"`
	Message   string     `json:"message"`
	Tile      FailedTile `json:"tile"`
	RequestId *string    `json:"request_id,omitempty"`
}

// GetPlanParams defines parameters for GetPlan.
type GetPlanParams struct {
	// UpperLeft north-west corner as "lat,lon"
	UpperLeft string `form:"upper_left" json:"upper_left"`

	// LowerRight south-east corner as "lat,lon"
	LowerRight string `form:"lower_right" json:"lower_right"`

	Zoom           int  `form:"zoom" json:"zoom"`
	MaxTileEdge    *int `form:"max_tile_edge,omitempty" json:"max_tile_edge,omitempty"`
	VerticalMargin *int `form:"vertical_margin,omitempty" json:"vertical_margin,omitempty"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Health check
	// (GET /health)
	GetHealth(w http.ResponseWriter, r *http.Request)
	// Grid plan as GeoJSON
	// (GET /plan)
	GetPlan(w http.ResponseWriter, r *http.Request, params GetPlanParams)
	// Stitch a static map
	// (POST /stitch)
	CreateStitchedImage(w http.ResponseWriter, r *http.Request)
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

type MiddlewareFunc func(http.Handler) http.Handler

// GetHealth operation middleware
func (siw *ServerInterfaceWrapper) GetHealth(w http.ResponseWriter, r *http.Request) {
	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetHealth(w, r)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// GetPlan operation middleware
func (siw *ServerInterfaceWrapper) GetPlan(w http.ResponseWriter, r *http.Request) {
	var err error

	// Parameter object where we will unmarshal all parameters from the context
	var params GetPlanParams

	// ------------- Required query parameter "upper_left" -------------

	if paramValue := r.URL.Query().Get("upper_left"); paramValue == "" {
		siw.ErrorHandlerFunc(w, r, &RequiredParamError{ParamName: "upper_left"})
		return
	}

	err = runtime.BindQueryParameter("form", true, true, "upper_left", r.URL.Query(), &params.UpperLeft)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "upper_left", Err: err})
		return
	}

	// ------------- Required query parameter "lower_right" -------------

	if paramValue := r.URL.Query().Get("lower_right"); paramValue == "" {
		siw.ErrorHandlerFunc(w, r, &RequiredParamError{ParamName: "lower_right"})
		return
	}

	err = runtime.BindQueryParameter("form", true, true, "lower_right", r.URL.Query(), &params.LowerRight)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "lower_right", Err: err})
		return
	}

	// ------------- Required query parameter "zoom" -------------

	if paramValue := r.URL.Query().Get("zoom"); paramValue == "" {
		siw.ErrorHandlerFunc(w, r, &RequiredParamError{ParamName: "zoom"})
		return
	}

	err = runtime.BindQueryParameter("form", true, true, "zoom", r.URL.Query(), &params.Zoom)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "zoom", Err: err})
		return
	}

	// ------------- Optional query parameter "max_tile_edge" -------------

	err = runtime.BindQueryParameter("form", true, false, "max_tile_edge", r.URL.Query(), &params.MaxTileEdge)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "max_tile_edge", Err: err})
		return
	}

	// ------------- Optional query parameter "vertical_margin" -------------

	err = runtime.BindQueryParameter("form", true, false, "vertical_margin", r.URL.Query(), &params.VerticalMargin)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "vertical_margin", Err: err})
		return
	}

	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetPlan(w, r, params)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// CreateStitchedImage operation middleware
func (siw *ServerInterfaceWrapper) CreateStitchedImage(w http.ResponseWriter, r *http.Request) {
	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.CreateStitchedImage(w, r)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

type RequiredParamError struct {
	ParamName string
}

func (e *RequiredParamError) Error() string {
	return fmt.Sprintf("Query argument %s is required, but not found", e.ParamName)
}

type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// Handler creates http.Handler with routing matching the API.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{})
}

type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerWithOptions creates http.Handler with additional options
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter

	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/health", wrapper.GetHealth)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/plan", wrapper.GetPlan)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/stitch", wrapper.CreateStitchedImage)
	})

	return r
}
