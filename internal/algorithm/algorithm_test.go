package algorithm

import (
	"context"
	"errors"
	"math"
	"testing"

	"optiattack/internal/config"
	"optiattack/internal/evo"
	"optiattack/internal/fitness"
	"optiattack/internal/imaging"
	"optiattack/internal/model"
	"optiattack/internal/search"
)

var gray = model.Color{R: 128, G: 128, B: 128}

var target = model.Location{X: 5, Y: 5}

func reddish(c model.Color) bool {
	return c.R >= 200 && c.G <= 60 && c.B <= 60
}

// zebraOracle says zebra for the gray base and flips to horse once pixel
// (5,5) turns red. Changed pixels closer to that goal lower the zebra margin,
// which gives the search a gradient to follow.
type zebraOracle struct {
	base  *imaging.Image
	calls int
}

func (o *zebraOracle) Evaluate(_ context.Context, img *imaging.Image) (model.Predictions, error) {
	o.calls++
	if reddish(img.At(target)) {
		return model.Predictions{{Label: "horse", Score: 0.95}, {Label: "zebra", Score: 0.05}}, nil
	}
	closeness := 0.0
	for _, loc := range img.Diff(o.base) {
		c := img.At(loc)
		manhattan := math.Abs(float64(loc.X-target.X)) + math.Abs(float64(loc.Y-target.Y))
		colorDist := math.Abs(float64(c.R-255)) + float64(c.G) + float64(c.B)
		closeness = math.Max(closeness, 1-0.5*manhattan/18-0.5*colorDist/765)
	}
	zebra := 0.9 - 0.4*closeness
	return model.Predictions{{Label: "zebra", Score: zebra}, {Label: "horse", Score: 1 - zebra}}, nil
}

type failingOracle struct {
	after int
	calls int
}

var errOracleDown = errors.New("oracle down")

func (o *failingOracle) Evaluate(context.Context, *imaging.Image) (model.Predictions, error) {
	o.calls++
	if o.calls > o.after {
		return nil, errOracleDown
	}
	return model.Predictions{{Label: "zebra", Score: 0.9}, {Label: "horse", Score: 0.1}}, nil
}

func scenarioConfig() config.Config {
	cfg := config.Default()
	cfg.Seed = 42
	cfg.ImageWidth, cfg.ImageHeight = 10, 10
	cfg.MinActionSize, cfg.MaxActionSize = 1, 1
	cfg.APCLocationStart, cfg.APCLocationEnd = 2, 1
	cfg.APCPixelStart, cfg.APCPixelEnd = 60, 30
	cfg.RandomSamplingProbability = 0.3
	cfg.FocusedSearchActivationTime = 0.5
	cfg.MaxEvaluations = 3000
	cfg.PopulationSize = 6
	return cfg
}

func newEnv(t *testing.T, cfg config.Config, oracle fitness.Oracle) *Env {
	t.Helper()
	stc, err := search.NewTimeController(search.TimeControllerConfig{
		Criterion:      cfg.StoppingCriterion,
		MaxEvaluations: cfg.MaxEvaluations,
	})
	if err != nil {
		t.Fatalf("time controller: %v", err)
	}
	rnd := search.NewRandomness(cfg.Seed)
	base := imaging.Blank(cfg.ImageWidth, cfg.ImageHeight, gray)
	archive := search.NewArchive(base, stc, rnd, nil)
	archive.SetOriginalPredictions(model.Predictions{{Label: "zebra", Score: 0.9}, {Label: "horse", Score: 0.1}})
	apc := search.NewAPC(stc, cfg)
	kit, err := evo.NewToolkit(evo.Deps{Config: cfg, Rand: rnd, Sigmas: apc, Images: archive})
	if err != nil {
		t.Fatalf("toolkit: %v", err)
	}
	return &Env{
		Config:    cfg,
		Archive:   archive,
		Time:      stc,
		APC:       apc,
		Rand:      rnd,
		Evaluator: fitness.NewEvaluator(archive, oracle, stc, fitness.Untargeted{}, nil),
		Operators: kit,
	}
}

func runSearch(t *testing.T, kind config.Algorithm, cfg config.Config, oracle fitness.Oracle) (*Env, model.Solution) {
	t.Helper()
	env := newEnv(t, cfg, oracle)
	alg, err := New(kind, env)
	if err != nil {
		t.Fatalf("new algorithm: %v", err)
	}
	sol, err := Search(context.Background(), alg, env)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	return env, sol
}

func TestMIOFlipsLabelWithRedPixel(t *testing.T) {
	cfg := scenarioConfig()
	oracle := &zebraOracle{base: imaging.Blank(10, 10, gray)}
	env, sol := runSearch(t, config.AlgorithmMIO, cfg, oracle)

	if env.Time.CurrentFitnessValue() != 0 || sol.Fitness.Value != 0 {
		t.Fatalf("expected a successful attack, got fitness %f after %d evaluations", sol.Fitness.Value, env.Time.Evaluations())
	}
	if float64(env.Time.Evaluations()) >= cfg.MaxEvaluations {
		t.Fatalf("expected early stop on success, used %d evaluations", env.Time.Evaluations())
	}
	found := false
	for _, a := range sol.Actions {
		if a.Location == target && reddish(a.Color) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a red action at (5,5), got %v", sol.Actions)
	}
}

func TestMIOIsDeterministicForSeed(t *testing.T) {
	cfg := scenarioConfig()
	cfg.MaxEvaluations = 200
	_, first := runSearch(t, config.AlgorithmMIO, cfg, &zebraOracle{base: imaging.Blank(10, 10, gray)})
	_, second := runSearch(t, config.AlgorithmMIO, cfg, &zebraOracle{base: imaging.Blank(10, 10, gray)})
	if first.Fitness.Value != second.Fitness.Value || len(first.Actions) != len(second.Actions) {
		t.Fatalf("runs diverged: %f/%d vs %f/%d", first.Fitness.Value, len(first.Actions), second.Fitness.Value, len(second.Actions))
	}
	for i := range first.Actions {
		if !first.Actions[i].Equal(second.Actions[i]) {
			t.Fatalf("action %d diverged: %v vs %v", i, first.Actions[i], second.Actions[i])
		}
	}
}

func TestAlgorithmsRespectBudget(t *testing.T) {
	for _, kind := range config.Algorithms() {
		t.Run(string(kind), func(t *testing.T) {
			cfg := scenarioConfig()
			cfg.MaxEvaluations = 37
			cfg.MaxActionSize = 3
			oracle := &failingOracle{after: math.MaxInt}
			env, sol := runSearch(t, kind, cfg, oracle)
			if env.Time.Evaluations() != 37 {
				t.Fatalf("expected the full budget to be used exactly, got %d", env.Time.Evaluations())
			}
			if oracle.calls != 37 {
				t.Fatalf("oracle called %d times for a budget of 37", oracle.calls)
			}
			if env.Archive.Size() == 0 || sol.Size() == 0 {
				t.Fatal("expected at least one admitted individual")
			}
		})
	}
}

func TestAlgorithmsImproveOverSampling(t *testing.T) {
	for _, kind := range []config.Algorithm{config.AlgorithmGenetic, config.AlgorithmABC, config.AlgorithmDE, config.AlgorithmRandom} {
		t.Run(string(kind), func(t *testing.T) {
			cfg := scenarioConfig()
			cfg.MaxEvaluations = 300
			_, sol := runSearch(t, kind, cfg, &zebraOracle{base: imaging.Blank(10, 10, gray)})
			if !(sol.Fitness.Value < 0.8) {
				t.Fatalf("expected some progress below the untouched margin, got %f", sol.Fitness.Value)
			}
		})
	}
}

func TestGeneticUsesConfiguredSelection(t *testing.T) {
	cfg := scenarioConfig()
	cfg.MaxEvaluations = 300
	cfg.Selection = config.SelectionTournament
	cfg.TournamentSize = 2
	env := newEnv(t, cfg, &zebraOracle{base: imaging.Blank(10, 10, gray)})
	alg, err := New(config.AlgorithmGenetic, env)
	if err != nil {
		t.Fatalf("new genetic: %v", err)
	}
	if got := alg.(*Genetic).selector.Name(); got != "tournament" {
		t.Fatalf("expected tournament selection, got %s", got)
	}
	sol, err := Search(context.Background(), alg, env)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !(sol.Fitness.Value < 0.8) {
		t.Fatalf("expected progress with tournament selection, got %f", sol.Fitness.Value)
	}

	cfg.Selection = "rank"
	if _, err := New(config.AlgorithmGenetic, newEnv(t, cfg, &failingOracle{after: math.MaxInt})); err == nil {
		t.Fatal("expected unknown selection to fail")
	}
}

func TestSearchPropagatesOracleFailure(t *testing.T) {
	cfg := scenarioConfig()
	env := newEnv(t, cfg, &failingOracle{after: 5})
	_, err := Search(context.Background(), NewMIO(env), env)
	if !errors.Is(err, errOracleDown) {
		t.Fatalf("expected oracle failure to abort the search, got %v", err)
	}
	if env.Time.Evaluations() != 5 {
		t.Fatalf("unexpected evaluation count: %d", env.Time.Evaluations())
	}
}

func TestDEPropagatesOracleFailure(t *testing.T) {
	cfg := scenarioConfig()
	env := newEnv(t, cfg, &failingOracle{after: 3})
	_, err := Search(context.Background(), NewDE(env), env)
	if !errors.Is(err, errOracleDown) {
		t.Fatalf("expected oracle failure from DE objective, got %v", err)
	}
}

func TestSearchHonoursCancelledContext(t *testing.T) {
	cfg := scenarioConfig()
	env := newEnv(t, cfg, &failingOracle{after: math.MaxInt})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Search(ctx, NewRandom(env), env)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSearchRejectsSecondStart(t *testing.T) {
	cfg := scenarioConfig()
	cfg.MaxEvaluations = 3
	env := newEnv(t, cfg, &failingOracle{after: math.MaxInt})
	if _, err := Search(context.Background(), NewRandom(env), env); err != nil {
		t.Fatalf("first search: %v", err)
	}
	if _, err := Search(context.Background(), NewRandom(env), env); !errors.Is(err, search.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on reuse, got %v", err)
	}
}

func TestNewRejectsUnknownAlgorithm(t *testing.T) {
	if _, err := New("hill_climbing", &Env{}); err == nil {
		t.Fatal("expected unknown algorithm error")
	}
}

func TestDEDecodeClampsAndDedups(t *testing.T) {
	cfg := scenarioConfig()
	d := NewDE(&Env{Config: cfg})
	ind := d.Decode([]float64{
		0, 0, 1, 0, 0,
		1.7, -3, 0.5, 0.5, 0.5,
		0, 0, 0, 1, 0,
	})
	if ind.Size() != 2 {
		t.Fatalf("expected collision at (0,0) to collapse, got %v", ind.Actions())
	}
	if ind.Action(0).Color != (model.Color{G: 255}) {
		t.Fatalf("expected later action to win at (0,0), got %v", ind.Action(0))
	}
	if ind.Action(1).Location != (model.Location{X: 9, Y: 0}) {
		t.Fatalf("expected clamped location, got %v", ind.Action(1).Location)
	}
}

func TestOnlookerWeight(t *testing.T) {
	if OnlookerWeight(1.5) != 0 || OnlookerWeight(math.Inf(1)) != 0 {
		t.Fatal("expected non-negative weights with zero for bad sources")
	}
	if math.Abs(OnlookerWeight(0.25)-0.75) > 1e-12 {
		t.Fatalf("unexpected weight: %f", OnlookerWeight(0.25))
	}
}
