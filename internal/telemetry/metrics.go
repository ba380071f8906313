package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "optiattack",
		Name:      "evaluations_total",
		Help:      "Fitness evaluations by search phase.",
	}, []string{"phase"})

	Admissions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "optiattack",
		Name:      "archive_admissions_total",
		Help:      "Candidates admitted into the archive.",
	})

	BestFitness = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "optiattack",
		Name:      "best_fitness",
		Help:      "Best fitness value admitted by the most recently updated archive.",
	})

	PruningDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "optiattack",
		Name:      "pruning_decisions_total",
		Help:      "Pruner decisions per action.",
	}, []string{"decision"})

	OracleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "optiattack",
		Name:      "oracle_request_duration_seconds",
		Help:      "Latency of requests to the network under test.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"endpoint"})

	OracleErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "optiattack",
		Name:      "oracle_errors_total",
		Help:      "Failed requests to the network under test by kind.",
	}, []string{"endpoint", "kind"})

	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "optiattack",
		Name:      "runs_total",
		Help:      "Finished attack runs by algorithm and outcome.",
	}, []string{"algorithm", "outcome"})
)

// ServeMetrics exposes the default registry on addr until ctx is done.
func ServeMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("metrics endpoint listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
