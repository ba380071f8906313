package algorithm

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"optiattack/internal/config"
	"optiattack/internal/evo"
	"optiattack/internal/logging"
	"optiattack/internal/model"
	"optiattack/internal/search"
)

var tracer = otel.Tracer("optiattack.algorithm")

// SearchAlgorithm is one search strategy over the shared archive, operators
// and fitness function. SearchOnce performs at least one evaluation unless the
// budget is already spent.
type SearchAlgorithm interface {
	Name() string
	SetupBeforeSearch(ctx context.Context) error
	SearchOnce(ctx context.Context) error
	AfterSearch(ctx context.Context) error
}

// Evaluator computes a timestamped fitness for an individual.
type Evaluator interface {
	CalculateFitness(ctx context.Context, ind *model.Individual) (*model.EvaluatedIndividual, error)
}

// Env is the substrate every algorithm runs on.
type Env struct {
	Config    config.Config
	Archive   *search.Archive
	Time      *search.TimeController
	APC       *search.APC
	Rand      *search.Randomness
	Evaluator Evaluator
	Operators evo.Toolkit
	Logger    *slog.Logger
}

func (e *Env) logger() *slog.Logger {
	return logging.OrDiscard(e.Logger)
}

// evaluate scores ind and offers it to the archive with parent.
func (e *Env) evaluate(ctx context.Context, ind *model.Individual, parent *model.EvaluatedIndividual) (*model.EvaluatedIndividual, error) {
	ei, err := e.Evaluator.CalculateFitness(ctx, ind)
	if err != nil {
		return nil, err
	}
	e.Archive.AddIfNeeded(ei, parent)
	return ei, nil
}

// New selects the algorithm for kind.
func New(kind config.Algorithm, env *Env) (SearchAlgorithm, error) {
	switch kind {
	case config.AlgorithmMIO:
		return NewMIO(env), nil
	case config.AlgorithmRandom:
		return NewRandom(env), nil
	case config.AlgorithmGenetic:
		selector, err := evo.NewSelector(env.Config)
		if err != nil {
			return nil, err
		}
		return NewGenetic(env, selector), nil
	case config.AlgorithmABC:
		return NewABC(env), nil
	case config.AlgorithmDE:
		return NewDE(env), nil
	default:
		return nil, fmt.Errorf("unknown algorithm %q", kind)
	}
}

// Search runs alg from NOT_STARTED through the search phase and returns the
// archive's solution. The loop stops on budget exhaustion, success, a
// cancelled ctx or the first evaluation error.
func Search(ctx context.Context, alg SearchAlgorithm, env *Env) (sol model.Solution, err error) {
	ctx, span := tracer.Start(ctx, "algorithm.Search",
		trace.WithAttributes(attribute.String("algorithm", alg.Name())),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := env.logger()
	if err := env.Time.Phase().Start(); err != nil {
		return model.Solution{}, err
	}
	env.Time.StartSearch()
	log.Info("search started", "algorithm", alg.Name(), "criterion", env.Time.Criterion(), "budget", env.Time.MaxEvaluations())

	if err := alg.SetupBeforeSearch(ctx); err != nil {
		return model.Solution{}, fmt.Errorf("%s setup: %w", alg.Name(), err)
	}
	for env.Time.ShouldContinueSearch() {
		if err := ctx.Err(); err != nil {
			return model.Solution{}, err
		}
		if err := alg.SearchOnce(ctx); err != nil {
			return model.Solution{}, fmt.Errorf("%s search: %w", alg.Name(), err)
		}
	}
	if err := alg.AfterSearch(ctx); err != nil {
		return model.Solution{}, fmt.Errorf("%s after search: %w", alg.Name(), err)
	}

	sol = env.Archive.ExtractSolution()
	span.SetAttributes(
		attribute.Int("search.evaluations", env.Time.Evaluations()),
		attribute.Float64("search.fitness", sol.Fitness.Value),
	)
	log.Info("search finished",
		"algorithm", alg.Name(),
		"eval_count", env.Time.Evaluations(),
		"fitness", sol.Fitness.Value,
		"actions", sol.Size(),
		"archive_size", env.Archive.Size(),
	)
	return sol, nil
}
