package metrics

import (
	"context"
	"image"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kiesman99/mapwizard/pkg/tile"
)

var (
	TilesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapwizard",
		Name:      "tiles_fetched_total",
		Help:      "Total static map tiles requested, by result",
	}, []string{"result"})

	TileFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mapwizard",
		Subsystem: "tile",
		Name:      "fetch_duration_seconds",
		Help:      "Latency of single static map requests",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	StitchRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapwizard",
		Subsystem: "stitch",
		Name:      "runs_total",
		Help:      "Total stitch runs, by result",
	}, []string{"result"})

	StitchCells = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mapwizard",
		Subsystem: "stitch",
		Name:      "cells",
		Help:      "Number of grid cells per stitch run",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 7),
	})
)

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRun counts a finished stitch run
func RecordRun(cells int, err error) {
	StitchRuns.WithLabelValues(result(err)).Inc()
	if cells > 0 {
		StitchCells.Observe(float64(cells))
	}
}

// InstrumentSource wraps a tile source with fetch counters and latency
func InstrumentSource(src tile.Source) tile.Source {
	return tile.SourceFunc(func(ctx context.Context, req tile.TileRequest) (image.Image, error) {
		start := time.Now()
		img, err := src.Fetch(ctx, req)
		TileFetchDuration.Observe(time.Since(start).Seconds())
		TilesFetched.WithLabelValues(result(err)).Inc()
		return img, err
	})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
