package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kiesman99/mapwizard/pkg/tile"
)

// EnvPrefix is prepended to every environment variable: MAPWIZARD_API_KEY → api-key
const EnvPrefix = "MAPWIZARD"

// Config holds all application configuration.
type Config struct {
	UpperLeft  string `mapstructure:"upper-left"`
	LowerRight string `mapstructure:"lower-right"`
	Zoom       int    `mapstructure:"zoom"`

	Style    string `mapstructure:"style"`
	StyleDir string `mapstructure:"style-dir"`

	APIKey      string        `mapstructure:"api-key"`
	BaseURL     string        `mapstructure:"base-url"`
	MapType     string        `mapstructure:"maptype"`
	ImageFormat string        `mapstructure:"image-format"`
	UserAgent   string        `mapstructure:"user-agent"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Retries     int           `mapstructure:"retries"`

	MaxTileEdge    int `mapstructure:"max-tile-edge"`
	VerticalMargin int `mapstructure:"vertical-margin"`
	Scale          int `mapstructure:"scale"`
	MaxCells       int `mapstructure:"max-cells"`
	MaxPixels      int `mapstructure:"max-pixels"`

	DelayMin time.Duration `mapstructure:"delay-min"`
	DelayMax time.Duration `mapstructure:"delay-max"`
	RPS      float64       `mapstructure:"rps"`

	Output     string `mapstructure:"output"`
	WorldFile  bool   `mapstructure:"worldfile"`
	PlanOnly   bool   `mapstructure:"plan-only"`
	NoProgress bool   `mapstructure:"no-progress"`

	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`

	Server ServerConfig `mapstructure:"server"`
}

type ServerConfig struct {
	Bind    string        `mapstructure:"bind"`
	Port    int           `mapstructure:"port"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SetDefaults registers the defaults every command shares
func SetDefaults(v *viper.Viper) {
	v.SetDefault("upper-left", "")
	v.SetDefault("lower-right", "")
	v.SetDefault("zoom", 0)
	v.SetDefault("style", "")
	v.SetDefault("style-dir", ".")
	v.SetDefault("api-key", "")
	v.SetDefault("output", "")
	v.SetDefault("worldfile", false)
	v.SetDefault("plan-only", false)
	v.SetDefault("no-progress", false)
	v.SetDefault("rps", 0.0)
	v.SetDefault("base-url", tile.DefaultStaticMapURL)
	v.SetDefault("maptype", "roadmap")
	v.SetDefault("image-format", "png")
	v.SetDefault("user-agent", "mapwizard/1.0.0")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("retries", 1)
	v.SetDefault("max-tile-edge", tile.DefaultMaxTileEdge)
	v.SetDefault("vertical-margin", tile.DefaultVerticalMargin)
	v.SetDefault("scale", tile.DefaultScale)
	v.SetDefault("max-cells", tile.DefaultMaxCells)
	v.SetDefault("max-pixels", tile.DefaultMaxPixels)
	v.SetDefault("delay-min", time.Second)
	v.SetDefault("delay-max", 5*time.Second)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
	v.SetDefault("server.bind", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout", 2*time.Minute)
}

// BindEnv makes every key readable from MAPWIZARD_* variables
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// Load unmarshals and validates the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings shared by the CLI and the server
func (c *Config) Validate() error {
	var errs []string

	if c.MaxTileEdge <= 0 || c.MaxTileEdge > tile.MaxFetchEdge {
		errs = append(errs, fmt.Sprintf("max-tile-edge must be 1-%d, got %d", tile.MaxFetchEdge, c.MaxTileEdge))
	}
	if c.VerticalMargin < 0 || c.VerticalMargin > tile.MaxFetchEdge {
		errs = append(errs, fmt.Sprintf("vertical-margin must be 0-%d, got %d", tile.MaxFetchEdge, c.VerticalMargin))
	}
	if c.MaxCells <= 0 {
		errs = append(errs, fmt.Sprintf("max-cells must be positive, got %d", c.MaxCells))
	}
	if c.MaxPixels <= 0 {
		errs = append(errs, fmt.Sprintf("max-pixels must be positive, got %d", c.MaxPixels))
	}
	if c.Scale < 1 || c.Scale > 4 {
		errs = append(errs, fmt.Sprintf("scale must be 1-4, got %d", c.Scale))
	}
	if c.DelayMin < 0 || c.DelayMax < 0 {
		errs = append(errs, "delay-min and delay-max must not be negative")
	}
	if c.DelayMin > c.DelayMax {
		errs = append(errs, fmt.Sprintf("delay-min %v is greater than delay-max %v", c.DelayMin, c.DelayMax))
	}
	if c.RPS < 0 {
		errs = append(errs, fmt.Sprintf("rps must not be negative, got %v", c.RPS))
	}
	if c.Retries < 1 {
		errs = append(errs, fmt.Sprintf("retries must be at least 1, got %d", c.Retries))
	}
	if c.Timeout <= 0 {
		errs = append(errs, "timeout must be positive")
	}
	if c.BaseURL == "" {
		errs = append(errs, "base-url is required")
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log-format must be text or json, got %q", c.LogFormat))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 0-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// BoundingBox parses and checks the corner and zoom settings of a stitch run
func (c *Config) BoundingBox() (tile.BoundingBox, error) {
	var errs []string

	if c.UpperLeft == "" {
		errs = append(errs, "upper-left is required")
	}
	if c.LowerRight == "" {
		errs = append(errs, "lower-right is required")
	}
	if c.Zoom < 1 || c.Zoom > tile.MaxZoom {
		errs = append(errs, fmt.Sprintf("zoom must be 1-%d, got %d", tile.MaxZoom, c.Zoom))
	}
	if len(errs) > 0 {
		return tile.BoundingBox{}, fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	ul, err := tile.ParseGeoPoint(c.UpperLeft)
	if err != nil {
		return tile.BoundingBox{}, fmt.Errorf("upper-left: %w", err)
	}
	lr, err := tile.ParseGeoPoint(c.LowerRight)
	if err != nil {
		return tile.BoundingBox{}, fmt.Errorf("lower-right: %w", err)
	}

	return tile.BoundingBox{UpperLeft: ul, LowerRight: lr}, nil
}

// RateLimiter picks the fetch pacing: a token bucket when rps is set,
// otherwise a random pause between delay-min and delay-max
func (c *Config) RateLimiter() tile.RateLimiter {
	if c.RPS > 0 {
		return tile.NewTokenBucket(c.RPS, 1)
	}
	if c.DelayMax == 0 {
		return tile.NoDelay{}
	}
	return tile.NewRandomDelay(c.DelayMin, c.DelayMax)
}

// Limiters returns a limiter factory for per-run limiters. A token bucket
// is shared by every run so concurrent runs split one budget.
func (c *Config) Limiters() func() tile.RateLimiter {
	if c.RPS > 0 {
		shared := c.RateLimiter()
		return func() tile.RateLimiter { return shared }
	}
	return c.RateLimiter
}

// ProcessorOptions returns the static map client settings
func (c *Config) ProcessorOptions() tile.ProcessorOptions {
	return tile.ProcessorOptions{
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		MapType:     c.MapType,
		ImageFormat: c.ImageFormat,
		UserAgent:   c.UserAgent,
		Timeout:     c.Timeout,
		MaxRetries:  c.Retries,
	}
}
