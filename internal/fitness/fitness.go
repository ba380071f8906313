package fitness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"optiattack/internal/config"
	"optiattack/internal/imaging"
	"optiattack/internal/logging"
	"optiattack/internal/model"
	"optiattack/internal/search"
	"optiattack/internal/telemetry"
)

var tracer = otel.Tracer("optiattack.fitness")

var ErrTargetIsOriginal = errors.New("target label equals the original prediction")

// Oracle classifies a rendered candidate image.
type Oracle interface {
	Evaluate(ctx context.Context, img *imaging.Image) (model.Predictions, error)
}

// Scorer turns the oracle's answer into a lower-is-better value, 0 once the
// top label has moved away from the original one.
type Scorer interface {
	Name() string
	Check(original model.Predictions) error
	Score(original, current model.Predictions) float64
}

// Untargeted scores the margin between the two highest labels.
type Untargeted struct{}

func (Untargeted) Name() string { return string(config.AttackUntargeted) }

func (Untargeted) Check(original model.Predictions) error {
	if _, ok := original.Top(); !ok {
		return fmt.Errorf("original predictions are empty")
	}
	return nil
}

func (Untargeted) Score(original, current model.Predictions) float64 {
	if !sameTop(original, current) {
		return 0
	}
	top, _ := current.Top()
	second, _ := current.Second()
	return top.Score - second.Score
}

// Targeted scores the margin between the top label and the target label.
// Success is the same label flip the untargeted score uses.
type Targeted struct {
	Target string
}

func (t Targeted) Name() string { return string(config.AttackTargeted) }

func (t Targeted) Check(original model.Predictions) error {
	top, ok := original.Top()
	if !ok {
		return fmt.Errorf("original predictions are empty")
	}
	if top.Label == t.Target {
		return fmt.Errorf("%w: %q", ErrTargetIsOriginal, t.Target)
	}
	return nil
}

func (t Targeted) Score(original, current model.Predictions) float64 {
	if !sameTop(original, current) {
		return 0
	}
	top, _ := current.Top()
	return top.Score - current.ScoreOf(t.Target)
}

func sameTop(original, current model.Predictions) bool {
	o, ok := original.Top()
	if !ok {
		return false
	}
	c, ok := current.Top()
	if !ok {
		return false
	}
	return o.Label == c.Label
}

// NewScorer picks the scorer for the config's attack type.
func NewScorer(cfg config.Config) Scorer {
	if label, ok := cfg.TargetLabel(); ok {
		return Targeted{Target: label}
	}
	return Untargeted{}
}

// Evaluator renders candidates over the archive image, queries the oracle and
// scores the answer against the archive's original predictions.
type Evaluator struct {
	archive *search.Archive
	oracle  Oracle
	stc     *search.TimeController
	scorer  Scorer
	logger  *slog.Logger
}

func NewEvaluator(archive *search.Archive, oracle Oracle, stc *search.TimeController, scorer Scorer, logger *slog.Logger) *Evaluator {
	if scorer == nil {
		scorer = Untargeted{}
	}
	return &Evaluator{
		archive: archive,
		oracle:  oracle,
		stc:     stc,
		scorer:  scorer,
		logger:  logging.OrDiscard(logger),
	}
}

func (e *Evaluator) Scorer() Scorer {
	return e.scorer
}

// Evaluate scores ind painted over the archive's current image.
func (e *Evaluator) Evaluate(ctx context.Context, ind *model.Individual) (model.FitnessValue, error) {
	img := e.archive.CurrentImage().Paint(ind.Actions())
	return e.evaluateImage(ctx, img, ind.Size())
}

// EvaluateActions scores actions painted over the untouched base image.
func (e *Evaluator) EvaluateActions(ctx context.Context, actions []model.Action) (model.FitnessValue, error) {
	return e.evaluateImage(ctx, e.archive.ImageWith(actions), len(actions))
}

func (e *Evaluator) evaluateImage(ctx context.Context, img *imaging.Image, size int) (model.FitnessValue, error) {
	ctx, span := tracer.Start(ctx, "fitness.Evaluate",
		trace.WithAttributes(
			attribute.String("fitness.scorer", e.scorer.Name()),
			attribute.Int("fitness.actions", size),
		),
	)
	defer span.End()

	predictions, err := e.oracle.Evaluate(ctx, img)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.FitnessValue{}, fmt.Errorf("evaluate candidate: %w", err)
	}
	phase := e.stc.Phase().Current()
	e.stc.NewIndividualEvaluation()
	telemetry.Evaluations.WithLabelValues(phase.String()).Inc()

	value := e.scorer.Score(e.archive.OriginalPredictions(), predictions)
	span.SetAttributes(attribute.Float64("fitness.value", value))
	return model.FitnessValue{Value: value, Predictions: predictions}, nil
}

// CalculateFitness evaluates ind and stamps the result with its execution time.
func (e *Evaluator) CalculateFitness(ctx context.Context, ind *model.Individual) (*model.EvaluatedIndividual, error) {
	fv, err := e.measure(func() (model.FitnessValue, error) {
		return e.Evaluate(ctx, ind)
	}, ind.Size())
	if err != nil {
		return nil, err
	}
	return model.NewEvaluatedIndividual(ind, fv), nil
}

// CalculateFitnessWithActions is the pruner's entry point: a raw action list
// over the base image.
func (e *Evaluator) CalculateFitnessWithActions(ctx context.Context, actions []model.Action) (model.FitnessValue, error) {
	return e.measure(func() (model.FitnessValue, error) {
		return e.EvaluateActions(ctx, actions)
	}, len(actions))
}

func (e *Evaluator) measure(work func() (model.FitnessValue, error), size int) (model.FitnessValue, error) {
	var elapsed int64
	fv, err := search.MeasureTimeMillis(e.stc, func(ms int64, fv model.FitnessValue, actionSize int) {
		elapsed = ms
		e.logger.Debug("evaluated candidate", "fitness", fv.Value, "elapsed_ms", ms, "actions", actionSize)
	}, work, size)
	if err != nil {
		return model.FitnessValue{}, err
	}
	fv.ExecutionTimeMS = elapsed
	return fv, nil
}
