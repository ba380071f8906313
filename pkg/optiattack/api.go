package optiattack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"optiattack/internal/config"
	"optiattack/internal/imaging"
	"optiattack/internal/logging"
	"optiattack/internal/model"
	"optiattack/internal/oracle"
	"optiattack/internal/platform"
	"optiattack/internal/stats"
	"optiattack/internal/storage"
)

const (
	defaultOutputDir  = "output"
	defaultExportsDir = "exports"
	defaultDBPath     = "optiattack.db"
)

// baseGray fills the image when no input image is configured.
var baseGray = model.Color{R: 128, G: 128, B: 128}

type Options struct {
	StoreKind  string
	DBPath     string
	OutputDir  string
	ExportsDir string
	Logger     *slog.Logger
	// Progress receives the console status of attacks run with show_progress.
	Progress io.Writer
	// Oracle overrides the HTTP client built from each request's config.
	Oracle platform.Oracle
	Retry  platform.RetryPolicy
}

type Client struct {
	store    storage.Store
	logger   *slog.Logger
	progress io.Writer
	oracle   platform.Oracle
	retry    platform.RetryPolicy

	outputDir  string
	exportsDir string

	initMu      sync.Mutex
	initialized bool
}

type AttackRequest struct {
	Config config.Config
	// Image is attacked as is; nil loads Config.InputImage, or a blank
	// gray image when that is empty too.
	Image *imaging.Image
}

type AttackSummary struct {
	RunID              string
	ArtifactsDir       string
	Success            bool
	OriginalLabel      string
	FinalLabel         string
	Evaluations        int
	PruningEvaluations int
	ActionCount        int
	FinalFitness       float64
}

type BenchmarkRequest struct {
	Config  config.Config
	Image   *imaging.Image
	Seeds   []int64
	Workers int
}

type BenchmarkResult struct {
	Summary     stats.BenchmarkSummary
	SummaryPath string
	Runs        []AttackSummary
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID           string
	CreatedAtUTC    string
	ExperimentLabel string
	Algorithm       string
	AttackType      string
	Target          string
	Seed            int64
	Success         bool
	Evaluations     int
	ActionCount     int
	FinalFitness    *float64
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type FitnessHistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = "memory"
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = defaultOutputDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := logging.OrDiscard(opts.Logger)

	store, err := storage.NewStore(storeKind, dbPath, logger)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		logger:     logger,
		progress:   opts.Progress,
		oracle:     opts.Oracle,
		retry:      opts.Retry,
		outputDir:  outputDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	c.initialized = true
	return nil
}

// Attack runs one session and persists its result.
func (c *Client) Attack(ctx context.Context, req AttackRequest) (AttackSummary, error) {
	if err := c.Init(ctx); err != nil {
		return AttackSummary{}, err
	}
	cfg := req.Config
	img, err := resolveImage(cfg, req.Image)
	if err != nil {
		return AttackSummary{}, err
	}
	session, err := platform.NewSession(cfg, img, c.deps(cfg))
	if err != nil {
		return AttackSummary{}, err
	}
	res, err := session.Run(ctx)
	if err != nil {
		return AttackSummary{}, err
	}
	return c.persist(ctx, res)
}

// Benchmark attacks the same image once per seed and persists every run
// plus the aggregated summary.
func (c *Client) Benchmark(ctx context.Context, req BenchmarkRequest) (BenchmarkResult, error) {
	if err := c.Init(ctx); err != nil {
		return BenchmarkResult{}, err
	}
	img, err := resolveImage(req.Config, req.Image)
	if err != nil {
		return BenchmarkResult{}, err
	}
	report, err := platform.Benchmark(ctx, req.Config, img, c.deps(req.Config), platform.BenchmarkOptions{
		Seeds:   req.Seeds,
		Workers: req.Workers,
	})
	if err != nil {
		return BenchmarkResult{}, err
	}

	out := BenchmarkResult{Summary: report.Summary, Runs: make([]AttackSummary, 0, len(report.Results))}
	for _, res := range report.Results {
		summary, err := c.persist(ctx, res)
		if err != nil {
			return BenchmarkResult{}, err
		}
		out.Runs = append(out.Runs, summary)
	}
	path, err := stats.WriteBenchmarkSummary(c.outputDir, report.Summary)
	if err != nil {
		return BenchmarkResult{}, err
	}
	out.SummaryPath = filepath.Clean(path)
	return out, nil
}

func (c *Client) Benchmarks(_ context.Context) ([]stats.BenchmarkSummary, error) {
	return stats.ListBenchmarkSummaries(c.outputDir)
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.outputDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:           e.RunID,
			CreatedAtUTC:    e.CreatedAtUTC,
			ExperimentLabel: e.ExperimentLabel,
			Algorithm:       e.Algorithm,
			AttackType:      e.AttackType,
			Target:          e.Target,
			Seed:            e.Seed,
			Success:         e.Success,
			Evaluations:     e.Evaluations,
			ActionCount:     e.ActionCount,
			FinalFitness:    e.FinalFitness,
		})
	}
	return out, nil
}

// Run loads a persisted run record from the store.
func (c *Client) Run(ctx context.Context, runID string) (model.RunRecord, error) {
	if err := c.Init(ctx); err != nil {
		return model.RunRecord{}, err
	}
	rec, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if !ok {
		return model.RunRecord{}, fmt.Errorf("run not found: %s", runID)
	}
	return rec, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "export")
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.outputDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) FitnessHistory(ctx context.Context, req FitnessHistoryRequest) ([]model.FitnessPoint, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "fitness history")
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return history, nil
}

func (c *Client) resolveRunID(runID string, latest bool, op string) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", fmt.Errorf("%s requires run id or latest", op)
	}
	entries, err := stats.ListRunIndex(c.outputDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func (c *Client) deps(cfg config.Config) platform.Deps {
	o := c.oracle
	if o == nil {
		o = oracle.NewClient(oracle.Config{
			Host:      cfg.NUTHost,
			Port:      cfg.NUTPort,
			BasePath:  cfg.NUTBasePath,
			Timeout:   time.Duration(cfg.OracleTimeoutMS) * time.Millisecond,
			RateLimit: cfg.OracleRateLimit,
		}, c.logger)
	}
	return platform.Deps{
		Oracle:   o,
		Logger:   c.logger,
		Progress: c.progress,
		Retry:    c.retry,
	}
}

func (c *Client) persist(ctx context.Context, res platform.Result) (AttackSummary, error) {
	runDir, err := stats.WriteRunArtifacts(c.outputDir, res.Artifacts())
	if err != nil {
		return AttackSummary{}, fmt.Errorf("write artifacts: %w", err)
	}
	if err := c.store.SaveRun(ctx, res.Record()); err != nil {
		return AttackSummary{}, fmt.Errorf("save run: %w", err)
	}
	if err := c.store.SaveFitnessHistory(ctx, res.RunID, res.FitnessHistory); err != nil {
		return AttackSummary{}, fmt.Errorf("save fitness history: %w", err)
	}
	if err := stats.AppendRunIndex(c.outputDir, res.IndexEntry()); err != nil {
		return AttackSummary{}, err
	}

	final := res.FinalSolution()
	summary := AttackSummary{
		RunID:              res.RunID,
		ArtifactsDir:       filepath.Clean(runDir),
		Success:            res.Success(),
		Evaluations:        res.Evaluations,
		PruningEvaluations: res.PruningEvaluations,
		ActionCount:        final.Size(),
		FinalFitness:       final.Fitness.Value,
	}
	if top, ok := res.Original.Top(); ok {
		summary.OriginalLabel = top.Label
	}
	if top, ok := final.Fitness.Predictions.Top(); ok {
		summary.FinalLabel = top.Label
	}
	return summary, nil
}

func resolveImage(cfg config.Config, img *imaging.Image) (*imaging.Image, error) {
	switch {
	case img != nil:
		return img, nil
	case cfg.InputImage != "":
		loaded, err := imaging.Load(cfg.InputImage, cfg.ImageWidth, cfg.ImageHeight)
		if err != nil {
			return nil, fmt.Errorf("load input image: %w", err)
		}
		return loaded, nil
	default:
		return imaging.Blank(cfg.ImageWidth, cfg.ImageHeight, baseGray), nil
	}
}
