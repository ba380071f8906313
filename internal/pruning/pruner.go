package pruning

import (
	"context"
	"fmt"
	"log/slog"

	"optiattack/internal/config"
	"optiattack/internal/logging"
	"optiattack/internal/model"
	"optiattack/internal/telemetry"
)

// Evaluator scores a raw action list painted on the base image.
type Evaluator interface {
	CalculateFitnessWithActions(ctx context.Context, actions []model.Action) (model.FitnessValue, error)
}

// Observer receives one call per decision. Positions are 1-based over the
// original number of actions.
type Observer interface {
	StartMinimization(total int)
	RemoveAction(processed, total int, a model.Action)
	KeptAction(processed, total int, a model.Action)
}

type NopObserver struct{}

func (NopObserver) StartMinimization(int)               {}
func (NopObserver) RemoveAction(int, int, model.Action) {}
func (NopObserver) KeptAction(int, int, model.Action)   {}

type Pruner interface {
	Type() config.PruningMethod
	Minimize(ctx context.Context, sol model.Solution) (model.Solution, error)
}

// StandardPruner drops actions one at a time and keeps a removal only when
// the remaining actions still score exactly 0.
type StandardPruner struct {
	evaluator Evaluator
	observer  Observer
	logger    *slog.Logger
}

func NewStandardPruner(evaluator Evaluator, observer Observer, logger *slog.Logger) *StandardPruner {
	if observer == nil {
		observer = NopObserver{}
	}
	return &StandardPruner{evaluator: evaluator, observer: observer, logger: logging.OrDiscard(logger)}
}

func (*StandardPruner) Type() config.PruningMethod {
	return config.PruningStandard
}

func (p *StandardPruner) Minimize(ctx context.Context, sol model.Solution) (model.Solution, error) {
	actions := append([]model.Action(nil), sol.Actions...)
	total := len(actions)
	final := sol.Fitness
	p.observer.StartMinimization(total)
	p.logger.Info("minimizing solution", "actions", total, "fitness", sol.Fitness.Value)

	processed := 0
	for pos := 0; pos < len(actions); {
		if err := ctx.Err(); err != nil {
			return model.Solution{}, err
		}
		processed++
		removed := actions[pos]
		remaining := make([]model.Action, 0, len(actions)-1)
		remaining = append(remaining, actions[:pos]...)
		remaining = append(remaining, actions[pos+1:]...)

		fv, err := p.evaluator.CalculateFitnessWithActions(ctx, remaining)
		if err != nil {
			return model.Solution{}, fmt.Errorf("prune action %d/%d: %w", processed, total, err)
		}
		if fv.Value == 0 {
			actions = remaining
			final = fv
			telemetry.PruningDecisions.WithLabelValues("removed").Inc()
			p.observer.RemoveAction(processed, total, removed)
			continue
		}
		telemetry.PruningDecisions.WithLabelValues("kept").Inc()
		p.observer.KeptAction(processed, total, removed)
		pos++
	}

	p.logger.Info("minimization finished", "before", total, "after", len(actions), "fitness", final.Value)
	return model.Solution{Actions: actions, Fitness: final}, nil
}

// NopPruner returns the solution untouched.
type NopPruner struct{}

func (NopPruner) Type() config.PruningMethod { return config.PruningNone }

func (NopPruner) Minimize(_ context.Context, sol model.Solution) (model.Solution, error) {
	return sol, nil
}

// New picks the pruner for method.
func New(method config.PruningMethod, evaluator Evaluator, observer Observer, logger *slog.Logger) (Pruner, error) {
	switch method {
	case config.PruningStandard:
		return NewStandardPruner(evaluator, observer, logger), nil
	case config.PruningNone, "":
		return NopPruner{}, nil
	default:
		return nil, fmt.Errorf("pruning method %q not supported", method)
	}
}
