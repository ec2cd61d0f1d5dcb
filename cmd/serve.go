package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/kiesman99/mapwizard/internal/server"
	"github.com/kiesman99/mapwizard/pkg/style"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the map stitching API",
	Long: `Start an HTTP server that provides a REST API for map stitching.

Endpoints live under /api/v1: /health, /plan (GeoJSON grid) and /stitch (PNG).
Prometheus metrics are served on /metrics.

Examples:
  # Start server on default port 8080
  mapwizard serve

  # Start server on custom port
  mapwizard serve --port 3000

  # Start server with custom bind address and styles
  mapwizard serve --bind 0.0.0.0 --port 8080 --style-dir ./styles`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server configuration
	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("request-timeout", 2*time.Minute, "request timeout")

	// Bind flags to viper
	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.timeout", serveCmd.Flags().Lookup("request-timeout"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	defaultStyle, err := style.Resolve(cfg.StyleDir, cfg.Style)
	if err != nil {
		return fmt.Errorf("style: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Bind, cfg.Server.Port)
	timeout := cfg.Server.Timeout

	apiServer := server.NewServer(Version, newEngine(cfg, logger), server.Defaults{
		MaxTileEdge:    cfg.MaxTileEdge,
		VerticalMargin: cfg.VerticalMargin,
		Scale:          cfg.Scale,
		MaxCells:       cfg.MaxCells,
		MaxPixels:      cfg.MaxPixels,
		Style:          defaultStyle,
		StyleDir:       cfg.StyleDir,
		Timeout:        timeout,
	}, logger)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.NewRouter(apiServer, timeout),
		ReadTimeout:  timeout,
		WriteTimeout: timeout + 5*time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting mapwizard server", "addr", addr, "version", Version)
		logger.Info("endpoints",
			"health", fmt.Sprintf("http://%s/api/v1/health", addr),
			"stitch", fmt.Sprintf("http://%s/api/v1/stitch", addr),
			"metrics", fmt.Sprintf("http://%s/metrics", addr))

		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-ctx.Done()
		logger.Warn("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
