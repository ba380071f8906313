package search

import (
	"log/slog"
	"sync"

	"optiattack/internal/imaging"
	"optiattack/internal/logging"
	"optiattack/internal/model"
	"optiattack/internal/telemetry"
)

// Archive keeps the strictly improving individuals of a run together with the
// image they perturb. Admission and fairness sampling are serialized so
// concurrent evaluators cannot interleave the compare-and-append.
type Archive struct {
	mu sync.Mutex

	populations []*model.EvaluatedIndividual
	best        model.FitnessValue
	lastChosen  *model.EvaluatedIndividual

	base     *imaging.Image
	original model.Predictions

	stc    *TimeController
	rnd    *Randomness
	logger *slog.Logger
}

func NewArchive(base *imaging.Image, stc *TimeController, rnd *Randomness, logger *slog.Logger) *Archive {
	return &Archive{
		best:   model.WorstFitness(),
		base:   base,
		stc:    stc,
		rnd:    rnd,
		logger: logging.OrDiscard(logger),
	}
}

// AddIfNeeded admits candidate when it strictly improves on the best fitness
// seen so far. A non-nil parent has its sampling counter reset on admission.
func (a *Archive) AddIfNeeded(candidate, parent *model.EvaluatedIndividual) bool {
	if candidate == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !(candidate.Fitness.Value < a.best.Value) {
		return false
	}
	previous := a.best.Value
	a.best = candidate.Fitness
	a.populations = append(a.populations, candidate)
	if a.stc != nil {
		a.stc.SetCurrentFitnessValue(candidate.Fitness.Value)
		a.stc.NewActionImprovement()
	}
	if parent != nil {
		parent.SamplingCounter = 0
	}
	telemetry.Admissions.Inc()
	telemetry.BestFitness.Set(candidate.Fitness.Value)
	a.logger.Debug("archive admission",
		"fitness", candidate.Fitness.Value,
		"previous", previous,
		"actions", candidate.Individual.Size(),
		"size", len(a.populations),
	)
	return true
}

// SampleIndividual draws uniformly among the individuals with the lowest
// sampling counter and bumps the chosen counter. It returns nil when empty.
func (a *Archive) SampleIndividual() *model.EvaluatedIndividual {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.populations) == 0 {
		return nil
	}
	lowest := a.populations[0].SamplingCounter
	for _, ind := range a.populations[1:] {
		if ind.SamplingCounter < lowest {
			lowest = ind.SamplingCounter
		}
	}
	candidates := make([]*model.EvaluatedIndividual, 0, len(a.populations))
	for _, ind := range a.populations {
		if ind.SamplingCounter == lowest {
			candidates = append(candidates, ind)
		}
	}
	chosen := candidates[a.rnd.Intn(len(candidates))]
	chosen.SamplingCounter++
	a.lastChosen = chosen
	return chosen
}

func (a *Archive) LastChosen() *model.EvaluatedIndividual {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastChosen
}

// ExtractSolution flattens the archived actions in admission order. When two
// actions share a location the later one wins and keeps its later position.
func (a *Archive) ExtractSolution() model.Solution {
	a.mu.Lock()
	defer a.mu.Unlock()
	return model.Solution{Actions: a.flattenLocked(), Fitness: a.best}
}

func (a *Archive) flattenLocked() []model.Action {
	var all []model.Action
	for _, ind := range a.populations {
		all = append(all, ind.Individual.Actions()...)
	}
	return DedupLastWins(all)
}

// DedupLastWins keeps, for every location, only its last action, ordered by
// the position of those last occurrences.
func DedupLastWins(actions []model.Action) []model.Action {
	last := make(map[model.Location]int, len(actions))
	for i, act := range actions {
		last[act.Location] = i
	}
	out := make([]model.Action, 0, len(last))
	for i, act := range actions {
		if last[act.Location] == i {
			out = append(out, act)
		}
	}
	return out
}

// CurrentImage is the base image with every archived action painted on it,
// the baseline new candidates are rendered over.
func (a *Archive) CurrentImage() *imaging.Image {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.base.Paint(a.flattenLocked())
}

// ImageWith paints only the given actions on the base image.
func (a *Archive) ImageWith(actions []model.Action) *imaging.Image {
	return a.base.Paint(actions)
}

func (a *Archive) BaseImage() *imaging.Image {
	return a.base
}

func (a *Archive) SetOriginalPredictions(p model.Predictions) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.original = append(model.Predictions(nil), p...)
}

func (a *Archive) OriginalPredictions() model.Predictions {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append(model.Predictions(nil), a.original...)
}

func (a *Archive) Best() model.FitnessValue {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.best
}

func (a *Archive) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.populations)
}

// Populations returns the archived individuals in admission order. The slice
// is a copy; the individuals are shared.
func (a *Archive) Populations() []*model.EvaluatedIndividual {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*model.EvaluatedIndividual(nil), a.populations...)
}

func (a *Archive) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.populations = nil
	a.lastChosen = nil
	a.best = model.WorstFitness()
}
