package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"optiattack/internal/algorithm"
	"optiattack/internal/config"
	"optiattack/internal/evo"
	"optiattack/internal/fitness"
	"optiattack/internal/imaging"
	"optiattack/internal/logging"
	"optiattack/internal/model"
	"optiattack/internal/monitor"
	"optiattack/internal/oracle"
	"optiattack/internal/pruning"
	"optiattack/internal/search"
	"optiattack/internal/stats"
	"optiattack/internal/telemetry"
)

var tracer = otel.Tracer("optiattack.platform")

// Oracle is the network under test as seen by a session: one baseline call
// on the clean image, then one call per candidate.
type Oracle interface {
	Run(ctx context.Context, img *imaging.Image) (oracle.PredictionResponse, error)
	Evaluate(ctx context.Context, img *imaging.Image) (model.Predictions, error)
}

type Deps struct {
	Oracle Oracle
	Logger *slog.Logger
	// Progress receives the console status when cfg.ShowProgress is set.
	Progress io.Writer
	Retry    RetryPolicy
	Now      func() time.Time
}

func (d Deps) logger() *slog.Logger {
	return logging.OrDiscard(d.Logger)
}

// Session is one attack against one image. It is not reusable.
type Session struct {
	cfg    config.Config
	image  *imaging.Image
	deps   Deps
	logger *slog.Logger
}

func NewSession(cfg config.Config, image *imaging.Image, deps Deps) (*Session, error) {
	if deps.Oracle == nil {
		return nil, errors.New("session oracle is required")
	}
	if image == nil {
		return nil, errors.New("session image is required")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if image.Width != cfg.ImageWidth || image.Height != cfg.ImageHeight {
		return nil, fmt.Errorf("%w: image is %dx%d, config wants %dx%d",
			imaging.ErrDimensions, image.Width, image.Height, cfg.ImageWidth, cfg.ImageHeight)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Session{
		cfg:    cfg,
		image:  image.Clone(),
		deps:   deps,
		logger: deps.logger(),
	}, nil
}

// Result is everything a finished session hands to the reporting layer.
type Result struct {
	RunID              string
	CreatedAtUTC       string
	Config             config.Config
	Seed               int64
	Original           model.Predictions
	Solution           model.Solution
	Pruned             *model.Solution
	Evaluations        int
	PruningEvaluations int
	Elapsed            time.Duration
	Data               monitor.Data
	Snapshots          []monitor.Snapshot
	FitnessHistory     []model.FitnessPoint
	FinalImage         *imaging.Image
	Overlay            *imaging.Image
}

// FinalSolution is the pruned solution when pruning ran.
func (r Result) FinalSolution() model.Solution {
	if r.Pruned != nil {
		return *r.Pruned
	}
	return r.Solution
}

func (r Result) Success() bool {
	return r.FinalSolution().Fitness.Succeeded()
}

func (r Result) Record() model.RunRecord {
	target, _ := r.Config.TargetLabel()
	return model.RunRecord{
		ID:                 r.RunID,
		ExperimentLabel:    r.Config.ExperimentLabel,
		Algorithm:          string(r.Config.Algorithm),
		AttackType:         string(r.Config.AttackType()),
		Target:             target,
		Seed:               r.Seed,
		CreatedAtUTC:       r.CreatedAtUTC,
		Evaluations:        r.Evaluations,
		PruningEvaluations: r.PruningEvaluations,
		ElapsedMS:          r.Elapsed.Milliseconds(),
		Success:            r.Success(),
		Original:           r.Original,
		Solution:           r.Solution,
		Pruned:             r.Pruned,
	}
}

func (r Result) Artifacts() stats.RunArtifacts {
	artifacts := stats.RunArtifacts{
		RunID:          r.RunID,
		Config:         r.Config,
		Data:           r.Data,
		Snapshots:      r.Snapshots,
		FitnessHistory: r.FitnessHistory,
		Solution:       r.Solution,
		Pruned:         r.Pruned,
		OmitStatistics: !r.Config.WriteStatistics,
	}
	if r.Config.SaveImages {
		artifacts.FinalImage = r.FinalImage
		artifacts.Overlay = r.Overlay
	}
	return artifacts
}

func (r Result) IndexEntry() stats.RunIndexEntry {
	target, _ := r.Config.TargetLabel()
	final := r.FinalSolution()
	return stats.RunIndexEntry{
		RunID:           r.RunID,
		ExperimentLabel: r.Config.ExperimentLabel,
		Algorithm:       string(r.Config.Algorithm),
		AttackType:      string(r.Config.AttackType()),
		Target:          target,
		Seed:            r.Seed,
		Success:         r.Success(),
		Evaluations:     r.Evaluations,
		ActionCount:     final.Size(),
		FinalFitness:    stats.FiniteFitness(final.Fitness.Value),
		CreatedAtUTC:    r.CreatedAtUTC,
	}
}

// Run performs the baseline prediction, the search, the optional pruning
// pass and assembles the result. Any oracle failure after the baseline
// aborts the run.
func (s *Session) Run(ctx context.Context) (res Result, err error) {
	cfg := s.cfg
	runID := uuid.NewString()
	log := s.logger.With("run_id", runID)
	started := s.deps.Now()

	ctx, span := tracer.Start(ctx, "platform.Session.Run",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.String("algorithm", string(cfg.Algorithm)),
			attribute.String("attack_type", string(cfg.AttackType())),
		),
	)
	defer func() {
		outcome := "failure"
		switch {
		case err != nil:
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case res.Success():
			outcome = "success"
		}
		telemetry.Runs.WithLabelValues(string(cfg.Algorithm), outcome).Inc()
		span.End()
	}()

	baseline, err := Retry(ctx, s.deps.Retry, log, "run_nut", func(ctx context.Context) (oracle.PredictionResponse, error) {
		return s.deps.Oracle.Run(ctx, s.image)
	})
	if err != nil {
		return Result{}, fmt.Errorf("baseline prediction: %w", err)
	}
	scorer := fitness.NewScorer(cfg)
	if err := scorer.Check(baseline.Predictions); err != nil {
		return Result{}, err
	}
	top, _ := baseline.Predictions.Top()
	log.Info("baseline prediction", "label", top.Label, "score", top.Score, "attack_type", scorer.Name())

	stc, err := search.NewTimeController(search.TimeControllerConfig{
		Criterion:      cfg.StoppingCriterion,
		MaxEvaluations: cfg.MaxEvaluations,
		Now:            s.deps.Now,
	})
	if err != nil {
		return Result{}, err
	}
	rnd := search.NewRandomness(cfg.Seed)
	archive := search.NewArchive(s.image, stc, rnd, log)
	archive.SetOriginalPredictions(baseline.Predictions)
	apc := search.NewAPC(stc, cfg)
	evaluator := fitness.NewEvaluator(archive, s.deps.Oracle, stc, scorer, log)
	kit, err := evo.NewToolkit(evo.Deps{Config: cfg, Rand: rnd, Sigmas: apc, Images: archive})
	if err != nil {
		return Result{}, err
	}
	env := &algorithm.Env{
		Config:    cfg,
		Archive:   archive,
		Time:      stc,
		APC:       apc,
		Rand:      rnd,
		Evaluator: evaluator,
		Operators: kit,
		Logger:    log,
	}
	alg, err := algorithm.New(cfg.Algorithm, env)
	if err != nil {
		return Result{}, err
	}

	statistics := monitor.NewStatistics(stc, archive, cfg.SnapshotInterval)
	stc.AddListener(statistics)
	var observer pruning.Observer = pruning.NopObserver{}
	if cfg.ShowProgress && s.deps.Progress != nil {
		status := monitor.NewStatusUpdater(s.deps.Progress, stc, archive)
		stc.AddListener(status)
		observer = status
	}

	sol, err := algorithm.Search(ctx, alg, env)
	if err != nil {
		return Result{}, err
	}

	var pruned *model.Solution
	if cfg.EnablePruning && sol.Fitness.Succeeded() && sol.Size() > 1 {
		pruner, err := pruning.New(cfg.PruningMethod, evaluator, observer, log)
		if err != nil {
			return Result{}, err
		}
		if pruner.Type() != config.PruningNone {
			if err := stc.Phase().Prune(); err != nil {
				return Result{}, err
			}
			minimized, err := pruner.Minimize(ctx, sol)
			if err != nil {
				return Result{}, err
			}
			pruned = &minimized
		}
	}
	stc.Phase().End()
	statistics.Finish()

	res = Result{
		RunID:              runID,
		CreatedAtUTC:       started.UTC().Format(time.RFC3339Nano),
		Config:             cfg,
		Seed:               rnd.Seed(),
		Original:           baseline.Predictions,
		Solution:           sol,
		Pruned:             pruned,
		Evaluations:        stc.Evaluations(),
		PruningEvaluations: stc.PruningEvaluations(),
		Elapsed:            s.deps.Now().Sub(started),
		Snapshots:          statistics.Snapshots(),
		FitnessHistory:     statistics.FitnessHistory(),
	}
	final := res.FinalSolution()
	res.Data = statistics.Data(final, res.PruningEvaluations)
	res.FinalImage = archive.ImageWith(final.Actions)
	res.Overlay = imaging.MatrixOverlay(cfg.ImageWidth, cfg.ImageHeight, final.Actions)

	span.SetAttributes(
		attribute.Int("search.evaluations", res.Evaluations),
		attribute.Int("search.actions", final.Size()),
		attribute.Bool("search.success", res.Success()),
	)
	log.Info("run finished",
		"eval_count", res.Evaluations,
		"pruning_eval_count", res.PruningEvaluations,
		"fitness", final.Fitness.Value,
		"actions", final.Size(),
		"success", res.Success(),
	)
	return res, nil
}
