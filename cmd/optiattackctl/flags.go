package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"optiattack/internal/config"
	"optiattack/internal/logging"
	"optiattack/internal/telemetry"
)

// runFlags are the config overrides shared by attack and benchmark. Only
// flags set on the command line replace values from --config.
type runFlags struct {
	configPath     string
	logFile        string
	seed           int64
	algorithm      string
	criterion      string
	maxEvaluations float64
	target         string
	image          string
	width          int
	height         int
	nutHost        string
	nutPort        int
	nutBasePath    string
	enablePruning  bool
	showProgress   bool
	saveImages     bool
	outputDir      string
	label          string
	store          string
	dbPath         string
	logLevel       string
	logFormat      string
	metricsAddr    string
	tracing        bool
}

func (f *runFlags) bind(cmd *cobra.Command) {
	def := config.Default()
	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "config file (.yaml, .yml or .json)")
	fs.StringVar(&f.logFile, "log-file", "", "also write JSON logs to this file")
	fs.Int64Var(&f.seed, "seed", def.Seed, "random seed; negative uses the clock")
	fs.StringVar(&f.algorithm, "algorithm", string(def.Algorithm), "search algorithm: mio|random|genetic|abc|de")
	fs.StringVar(&f.criterion, "stopping-criterion", string(def.StoppingCriterion), "individual_evaluations|time")
	fs.Float64Var(&f.maxEvaluations, "max-evaluations", def.MaxEvaluations, "evaluation budget, or seconds for the time criterion")
	fs.StringVar(&f.target, "target", "", "target label; empty runs an untargeted attack")
	fs.StringVar(&f.image, "image", def.InputImage, "input image (PNG or JPEG); empty uses a blank gray image")
	fs.IntVar(&f.width, "width", def.ImageWidth, "image width the network expects")
	fs.IntVar(&f.height, "height", def.ImageHeight, "image height the network expects")
	fs.StringVar(&f.nutHost, "nut-host", def.NUTHost, "network under test host")
	fs.IntVar(&f.nutPort, "nut-port", def.NUTPort, "network under test port")
	fs.StringVar(&f.nutBasePath, "nut-base-path", def.NUTBasePath, "network under test API base path")
	fs.BoolVar(&f.enablePruning, "enable-pruning", def.EnablePruning, "minimize a successful solution")
	fs.BoolVar(&f.showProgress, "show-progress", def.ShowProgress, "print search status while running")
	fs.BoolVar(&f.saveImages, "save-images", def.SaveImages, "write the final image and the overlay")
	fs.StringVar(&f.outputDir, "output-dir", def.OutputDir, "artifact and run index directory")
	fs.StringVar(&f.label, "experiment-label", def.ExperimentLabel, "label stored with every run")
	fs.StringVar(&f.store, "store", def.Store, "run store: memory|sqlite|badger")
	fs.StringVar(&f.dbPath, "db-path", def.DBPath, "sqlite file or badger directory")
	fs.StringVar(&f.logLevel, "log-level", def.LogLevel, "debug|info|warn|error")
	fs.StringVar(&f.logFormat, "log-format", def.LogFormat, "text|json")
	fs.StringVar(&f.metricsAddr, "metrics-addr", def.MetricsAddr, "serve Prometheus metrics on this address")
	fs.BoolVar(&f.tracing, "tracing", def.Tracing, "write OpenTelemetry spans to stderr")
}

func (f *runFlags) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	fs := cmd.Flags()
	if fs.Changed("seed") {
		cfg.Seed = f.seed
	}
	if fs.Changed("algorithm") {
		alg, err := config.ParseAlgorithm(f.algorithm)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Algorithm = alg
	}
	if fs.Changed("stopping-criterion") {
		crit, err := config.ParseStoppingCriterion(f.criterion)
		if err != nil {
			return config.Config{}, err
		}
		cfg.StoppingCriterion = crit
	}
	if fs.Changed("max-evaluations") {
		cfg.MaxEvaluations = f.maxEvaluations
	}
	if fs.Changed("target") {
		cfg.Target = config.WithTarget(f.target)
	}
	if fs.Changed("image") {
		cfg.InputImage = f.image
	}
	if fs.Changed("width") {
		cfg.ImageWidth = f.width
	}
	if fs.Changed("height") {
		cfg.ImageHeight = f.height
	}
	if fs.Changed("nut-host") {
		cfg.NUTHost = f.nutHost
	}
	if fs.Changed("nut-port") {
		cfg.NUTPort = f.nutPort
	}
	if fs.Changed("nut-base-path") {
		cfg.NUTBasePath = f.nutBasePath
	}
	if fs.Changed("enable-pruning") {
		cfg.EnablePruning = f.enablePruning
	}
	if fs.Changed("show-progress") {
		cfg.ShowProgress = f.showProgress
	}
	if fs.Changed("save-images") {
		cfg.SaveImages = f.saveImages
	}
	if fs.Changed("output-dir") {
		cfg.OutputDir = f.outputDir
	}
	if fs.Changed("experiment-label") {
		cfg.ExperimentLabel = f.label
	}
	if fs.Changed("store") {
		cfg.Store = f.store
	}
	if fs.Changed("db-path") {
		cfg.DBPath = f.dbPath
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if fs.Changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if fs.Changed("tracing") {
		cfg.Tracing = f.tracing
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// setupRuntime builds the logger and starts the optional metrics endpoint
// and trace exporter. The returned cleanup stops them in reverse order.
func setupRuntime(ctx context.Context, cfg config.Config, logFile string, stderr io.Writer) (*slog.Logger, func(), error) {
	logger, closeLog, err := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   logFile,
		Output: stderr,
	})
	if err != nil {
		return nil, nil, err
	}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	cleanups = append(cleanups, func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(stderr, "close log file: %v\n", err)
		}
	})

	if cfg.Tracing {
		shutdown, err := telemetry.SetupTracing(stderr, "optiattack")
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("setup tracing: %w", err)
		}
		cleanups = append(cleanups, func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("tracing shutdown failed", "err", err)
			}
		})
	}

	if cfg.MetricsAddr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := telemetry.ServeMetrics(metricsCtx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics endpoint failed", "addr", cfg.MetricsAddr, "err", err)
			}
		}()
		cleanups = append(cleanups, func() {
			cancel()
			wg.Wait()
		})
	}
	return logger, cleanup, nil
}

func usageError(msg string) error {
	return errors.New(msg + "\nrun 'optiattackctl --help' for usage")
}
