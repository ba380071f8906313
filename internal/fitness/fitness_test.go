package fitness

import (
	"context"
	"errors"
	"math"
	"testing"

	"optiattack/internal/config"
	"optiattack/internal/imaging"
	"optiattack/internal/model"
	"optiattack/internal/search"
)

var original = model.Predictions{{Label: "zebra", Score: 0.9}, {Label: "horse", Score: 0.07}, {Label: "cat", Score: 0.03}}

type scriptedOracle struct {
	answers []model.Predictions
	err     error
	images  []*imaging.Image
}

func (o *scriptedOracle) Evaluate(_ context.Context, img *imaging.Image) (model.Predictions, error) {
	o.images = append(o.images, img)
	if o.err != nil {
		return nil, o.err
	}
	next := o.answers[0]
	if len(o.answers) > 1 {
		o.answers = o.answers[1:]
	}
	return next, nil
}

func newFixture(t *testing.T, oracle Oracle, scorer Scorer) (*Evaluator, *search.Archive, *search.TimeController) {
	t.Helper()
	phase := search.NewPhaseController()
	stc, err := search.NewTimeController(search.TimeControllerConfig{
		Criterion:      config.StopIndividualEvaluations,
		MaxEvaluations: 100,
		Phase:          phase,
	})
	if err != nil {
		t.Fatalf("time controller: %v", err)
	}
	_ = phase.Start()
	stc.StartSearch()
	archive := search.NewArchive(imaging.Blank(4, 4, model.Color{}), stc, search.NewRandomness(1), nil)
	archive.SetOriginalPredictions(original)
	return NewEvaluator(archive, oracle, stc, scorer, nil), archive, stc
}

func TestUntargetedScore(t *testing.T) {
	got := Untargeted{}.Score(original, model.Predictions{{Label: "horse", Score: 0.3}, {Label: "zebra", Score: 0.6}})
	if math.Abs(got-0.3) > 1e-9 {
		t.Fatalf("unexpected margin: got=%f want=0.3", got)
	}
	flipped := Untargeted{}.Score(original, model.Predictions{{Label: "horse", Score: 0.6}, {Label: "zebra", Score: 0.4}})
	if flipped != 0 {
		t.Fatalf("expected 0 after label flip, got %f", flipped)
	}
	single := Untargeted{}.Score(original, model.Predictions{{Label: "zebra", Score: 0.8}})
	if math.Abs(single-0.8) > 1e-9 {
		t.Fatalf("expected missing second label to count as 0, got %f", single)
	}
}

func TestTargetedScore(t *testing.T) {
	s := Targeted{Target: "cat"}
	got := s.Score(original, model.Predictions{{Label: "zebra", Score: 0.7}, {Label: "horse", Score: 0.2}, {Label: "cat", Score: 0.1}})
	if math.Abs(got-0.6) > 1e-9 {
		t.Fatalf("unexpected targeted margin: got=%f want=0.6", got)
	}
	absent := s.Score(original, model.Predictions{{Label: "zebra", Score: 0.7}, {Label: "horse", Score: 0.3}})
	if math.Abs(absent-0.7) > 1e-9 {
		t.Fatalf("expected absent target to score 0, got margin %f", absent)
	}
	flipped := s.Score(original, model.Predictions{{Label: "horse", Score: 0.5}, {Label: "zebra", Score: 0.4}})
	if flipped != 0 {
		t.Fatalf("expected label flip to succeed, got %f", flipped)
	}
}

func TestTargetedCheckRejectsOriginalLabel(t *testing.T) {
	if err := (Targeted{Target: "zebra"}).Check(original); !errors.Is(err, ErrTargetIsOriginal) {
		t.Fatalf("expected ErrTargetIsOriginal, got %v", err)
	}
	if err := (Targeted{Target: "cat"}).Check(original); err != nil {
		t.Fatalf("unexpected check error: %v", err)
	}
	if err := (Untargeted{}).Check(nil); err == nil {
		t.Fatal("expected empty original predictions to fail")
	}
}

func TestNewScorerFollowsTarget(t *testing.T) {
	cfg := config.Default()
	if _, ok := NewScorer(cfg).(Untargeted); !ok {
		t.Fatal("expected untargeted scorer by default")
	}
	cfg.Target = config.WithTarget("cat")
	s, ok := NewScorer(cfg).(Targeted)
	if !ok || s.Target != "cat" {
		t.Fatalf("expected targeted scorer for cat, got %#v", NewScorer(cfg))
	}
}

func TestCalculateFitnessRendersOverArchiveImage(t *testing.T) {
	oracle := &scriptedOracle{answers: []model.Predictions{
		{{Label: "zebra", Score: 0.6}, {Label: "horse", Score: 0.4}},
	}}
	ev, archive, stc := newFixture(t, oracle, Untargeted{})
	archived := model.NewAction(0, 0, 255, 0, 0)
	archive.AddIfNeeded(model.NewEvaluatedIndividual(model.NewIndividual(archived), model.FitnessValue{Value: 0.8}), nil)

	candidate := model.NewIndividual(model.NewAction(3, 3, 0, 255, 0))
	ei, err := ev.CalculateFitness(context.Background(), candidate)
	if err != nil {
		t.Fatalf("calculate fitness: %v", err)
	}
	if math.Abs(ei.Fitness.Value-0.2) > 1e-9 {
		t.Fatalf("unexpected fitness: %f", ei.Fitness.Value)
	}
	if ei.Individual != candidate {
		t.Fatal("expected evaluated individual to own the candidate")
	}
	if stc.Evaluations() != 1 {
		t.Fatalf("unexpected evaluation count: %d", stc.Evaluations())
	}
	img := oracle.images[0]
	if img.At(model.Location{X: 0, Y: 0}) != (model.Color{R: 255}) || img.At(model.Location{X: 3, Y: 3}) != (model.Color{G: 255}) {
		t.Fatal("expected archived and candidate actions both painted")
	}
}

func TestCalculateFitnessWithActionsUsesBaseImage(t *testing.T) {
	oracle := &scriptedOracle{answers: []model.Predictions{
		{{Label: "horse", Score: 0.6}, {Label: "zebra", Score: 0.4}},
	}}
	ev, archive, _ := newFixture(t, oracle, Untargeted{})
	archive.AddIfNeeded(model.NewEvaluatedIndividual(model.NewIndividual(model.NewAction(0, 0, 255, 0, 0)), model.FitnessValue{Value: 0.8}), nil)

	fv, err := ev.CalculateFitnessWithActions(context.Background(), []model.Action{model.NewAction(1, 1, 9, 9, 9)})
	if err != nil {
		t.Fatalf("calculate fitness: %v", err)
	}
	if fv.Value != 0 || len(fv.Predictions) != 2 {
		t.Fatalf("unexpected fitness value: %+v", fv)
	}
	img := oracle.images[0]
	if img.At(model.Location{X: 0, Y: 0}) != (model.Color{}) {
		t.Fatal("archived actions must not be painted for raw action lists")
	}
	if img.At(model.Location{X: 1, Y: 1}) != (model.Color{R: 9, G: 9, B: 9}) {
		t.Fatal("expected the given action painted")
	}
}

func TestOracleFailurePropagatesWithoutCounting(t *testing.T) {
	boom := errors.New("connection refused")
	ev, _, stc := newFixture(t, &scriptedOracle{err: boom}, Untargeted{})
	_, err := ev.CalculateFitness(context.Background(), model.NewIndividual(model.NewAction(0, 0, 1, 1, 1)))
	if !errors.Is(err, boom) {
		t.Fatalf("expected oracle error to propagate, got %v", err)
	}
	if stc.Evaluations() != 0 {
		t.Fatalf("failed evaluation must not be counted, got %d", stc.Evaluations())
	}
}

// pixelOracle flips the label only while the watched pixel is pure red.
type pixelOracle struct {
	watch model.Location
}

func (o pixelOracle) Evaluate(_ context.Context, img *imaging.Image) (model.Predictions, error) {
	if img.At(o.watch) == (model.Color{R: 255}) {
		return model.Predictions{{Label: "horse", Score: 0.6}, {Label: "zebra", Score: 0.4}}, nil
	}
	return original, nil
}

func TestRejectedCandidateDoesNotLeakIntoBaseImage(t *testing.T) {
	watch := model.Location{X: 1, Y: 1}
	ev, archive, _ := newFixture(t, pixelOracle{watch: watch}, Untargeted{})
	archive.AddIfNeeded(model.NewEvaluatedIndividual(model.NewIndividual(model.NewAction(3, 3, 0, 0, 255)), model.FitnessValue{Value: 0}), nil)

	candidate, err := ev.CalculateFitness(context.Background(), model.NewIndividual(model.NewAction(1, 1, 255, 0, 0)))
	if err != nil {
		t.Fatalf("calculate fitness: %v", err)
	}
	if candidate.Fitness.Value != 0 {
		t.Fatalf("expected candidate to flip the label, got %f", candidate.Fitness.Value)
	}
	if archive.AddIfNeeded(candidate, nil) {
		t.Fatal("candidate equal to the best must not be admitted")
	}

	if got := archive.BaseImage().At(watch); got != (model.Color{}) {
		t.Fatalf("base image changed by evaluation: %+v", got)
	}
	if got := archive.CurrentImage().At(watch); got != (model.Color{}) {
		t.Fatalf("rejected candidate leaked into the current image: %+v", got)
	}

	clean, err := ev.CalculateFitnessWithActions(context.Background(), nil)
	if err != nil {
		t.Fatalf("calculate fitness over base: %v", err)
	}
	if math.Abs(clean.Value-0.83) > 1e-9 {
		t.Fatalf("expected the original margin over the base image, got %f", clean.Value)
	}
}
