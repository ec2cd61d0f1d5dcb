package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/mapwizard/internal/config"
	"github.com/kiesman99/mapwizard/internal/logging"
	"github.com/kiesman99/mapwizard/internal/stitch"
	"github.com/kiesman99/mapwizard/internal/stitcher"
	"github.com/kiesman99/mapwizard/pkg/style"
	"github.com/kiesman99/mapwizard/pkg/tile"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mapwizard",
	Short: "Stitch static map images into one large map for any bounding box",
	Long: `mapwizard covers a bounding box with a grid of static map requests and
stitches the answers into a single PNG. The strip the provider draws at the
bottom of every image is requested outside the visible cell and cropped away.

Examples:
  # Lower Manhattan at zoom 18 with a night style
  mapwizard --upper-left 40.7128,-74.0060 --lower-right 40.7000,-73.9900 --zoom 18 --style night -o manhattan.png

  # Print the grid as GeoJSON without fetching anything
  mapwizard --upper-left 40.7128,-74.0060 --lower-right 40.7000,-73.9900 --zoom 18 --plan-only

  # Write to stdout, limited to 2 requests per second
  mapwizard --upper-left 47.5,7.5 --lower-right 47.3,8.9 --zoom 12 --rps 2 -o - > basel.png

  # Start HTTP server
  mapwizard serve --port 8080`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no corners were given, show help
		if viper.GetString("upper-left") == "" && viper.GetString("lower-right") == "" {
			return cmd.Help()
		}
		return runStitch(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mapwizard.yaml)")
	pf.String("log-level", "info", "log level (debug|info|warn|error)")
	pf.String("log-format", "text", "log format (text|json)")

	// Provider options
	pf.String("api-key", "", "static maps API key")
	pf.String("base-url", tile.DefaultStaticMapURL, "static maps endpoint")
	pf.String("maptype", "roadmap", "map type (roadmap|satellite|terrain|hybrid)")
	pf.String("image-format", "png", "image format requested from the provider")
	pf.String("user-agent", "mapwizard/1.0.0", "HTTP User-Agent header")
	pf.Duration("timeout", 30*time.Second, "timeout of a single provider request")
	pf.Int("retries", 1, "attempts per tile")
	pf.Int("scale", tile.DefaultScale, "provider pixel density (1-4), resampled to the requested size")
	pf.String("style", "", "style file or style name in --style-dir")
	pf.String("style-dir", ".", "directory holding .json/.yaml style files")

	// Tiling options
	pf.Int("max-tile-edge", tile.DefaultMaxTileEdge, "largest edge of a visible tile in pixels")
	pf.Int("vertical-margin", tile.DefaultVerticalMargin, "height of the cropped provider strip in pixels")
	pf.Int("max-cells", tile.DefaultMaxCells, "refuse grids with more tiles than this")
	pf.Int("max-pixels", tile.DefaultMaxPixels, "refuse canvases with more pixels than this")

	// Pacing options
	pf.Duration("delay-min", time.Second, "minimum pause between requests")
	pf.Duration("delay-max", 5*time.Second, "maximum pause between requests (0 disables)")
	pf.Float64("rps", 0, "requests per second; replaces the random pause when set")

	// Stitch options
	f := rootCmd.Flags()
	f.String("upper-left", "", "north-west corner as 'lat,lon'")
	f.String("lower-right", "", "south-east corner as 'lat,lon'")
	f.IntP("zoom", "z", 0, "zoom level 1-21 (required)")
	f.StringP("output", "o", "", "output file, '-' for stdout (default: 'map YYYY-MM-DD HH MM SS.png')")
	f.BoolP("worldfile", "w", false, "write a .pgw world file next to the image")
	f.Bool("plan-only", false, "print the grid as GeoJSON and exit")
	f.Bool("no-progress", false, "log progress lines instead of drawing a bar")

	// Bind flags to viper
	cobra.CheckErr(viper.BindPFlags(pf))
	cobra.CheckErr(viper.BindPFlags(f))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".mapwizard" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mapwizard")
	}

	config.BindEnv(viper.GetViper())

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig validates the merged configuration and sets up logging
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	logger := logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	return cfg, logger, nil
}

// newEngine wires the static map source, pacing and logging
func newEngine(cfg *config.Config, logger *slog.Logger) *stitcher.Stitcher {
	source := tile.NewProcessor(cfg.ProcessorOptions())
	return stitcher.New(source,
		stitcher.WithLimiter(cfg.Limiters()),
		stitcher.WithLogger(logger))
}

func runStitch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	box, err := cfg.BoundingBox()
	if err != nil {
		return err
	}

	encoded, err := style.Resolve(cfg.StyleDir, cfg.Style)
	if err != nil {
		return fmt.Errorf("style: %w", err)
	}
	if cfg.Style != "" {
		logger.Info("using style", "style", cfg.Style)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := stitch.NewStitcher(newEngine(cfg, logger), &stitch.Options{
		Output:     cfg.Output,
		WorldFile:  cfg.WorldFile,
		PlanOnly:   cfg.PlanOnly,
		NoProgress: cfg.NoProgress,
		Stdout:     cmd.OutOrStdout(),
		Stderr:     cmd.ErrOrStderr(),
	}, logger)

	return st.Run(ctx, &stitcher.Options{
		Box:            box,
		Zoom:           cfg.Zoom,
		MaxTileEdge:    cfg.MaxTileEdge,
		VerticalMargin: cfg.VerticalMargin,
		Scale:          cfg.Scale,
		MaxCells:       cfg.MaxCells,
		MaxPixels:      cfg.MaxPixels,
		Style:          encoded,
	})
}
