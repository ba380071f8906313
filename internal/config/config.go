package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds every tunable of an attack run. Zero values are not defaults;
// start from Default.
type Config struct {
	Seed int64 `yaml:"seed" json:"seed"`

	NUTHost         string  `yaml:"nut_host" json:"nut_host" validate:"required"`
	NUTPort         int     `yaml:"nut_port" json:"nut_port" validate:"gt=0,lte=65535"`
	NUTBasePath     string  `yaml:"nut_base_path" json:"nut_base_path"`
	OracleTimeoutMS int     `yaml:"oracle_timeout_ms" json:"oracle_timeout_ms" validate:"gte=0"`
	OracleRateLimit float64 `yaml:"oracle_rate_limit" json:"oracle_rate_limit" validate:"gte=0"`

	InputImage  string `yaml:"input_image" json:"input_image"`
	ImageWidth  int    `yaml:"image_width" json:"image_width" validate:"gt=0"`
	ImageHeight int    `yaml:"image_height" json:"image_height" validate:"gt=0"`

	MinActionSize int `yaml:"min_action_size" json:"min_action_size" validate:"gt=0"`
	MaxActionSize int `yaml:"max_action_size" json:"max_action_size" validate:"gt=0"`

	APCPixelStart               float64 `yaml:"apc_pixel_start" json:"apc_pixel_start" validate:"gte=0"`
	APCPixelEnd                 float64 `yaml:"apc_pixel_end" json:"apc_pixel_end" validate:"gte=0"`
	APCLocationStart            float64 `yaml:"apc_location_start" json:"apc_location_start" validate:"gte=0"`
	APCLocationEnd              float64 `yaml:"apc_location_end" json:"apc_location_end" validate:"gte=0"`
	APCStartTime                float64 `yaml:"apc_start_time" json:"apc_start_time" validate:"gte=0,lte=1"`
	APCThreshold                float64 `yaml:"apc_threshold" json:"apc_threshold" validate:"gte=0,lte=1"`
	RandomSamplingProbability   float64 `yaml:"random_sampling_probability" json:"random_sampling_probability" validate:"gte=0,lte=1"`
	FocusedSearchActivationTime float64 `yaml:"focused_search_activation_time" json:"focused_search_activation_time" validate:"gte=0,lte=1"`

	StoppingCriterion StoppingCriterion `yaml:"stopping_criterion" json:"stopping_criterion" validate:"required,oneof=individual_evaluations time"`
	MaxEvaluations    float64           `yaml:"max_evaluations" json:"max_evaluations" validate:"gt=0"`

	Algorithm      Algorithm     `yaml:"algorithm" json:"algorithm" validate:"required,oneof=mio random genetic abc de"`
	Sampler        SamplerKind   `yaml:"sampler" json:"sampler" validate:"required,oneof=random gaussian"`
	Mutator        MutatorKind   `yaml:"mutator" json:"mutator" validate:"required,oneof=standard"`
	Crossover      CrossoverKind `yaml:"crossover" json:"crossover" validate:"required,oneof=single_point"`
	Selection      SelectionKind `yaml:"selection" json:"selection" validate:"required,oneof=roulette tournament"`
	TournamentSize int           `yaml:"tournament_size" json:"tournament_size" validate:"gte=0"`
	MutationSigma  float64       `yaml:"mutation_sigma" json:"mutation_sigma" validate:"gte=0"`
	PopulationSize int           `yaml:"population_size" json:"population_size" validate:"gte=2"`
	ABCLimit       int           `yaml:"abc_limit" json:"abc_limit" validate:"gte=0"`

	EnablePruning bool          `yaml:"enable_pruning" json:"enable_pruning"`
	PruningMethod PruningMethod `yaml:"pruning_method" json:"pruning_method" validate:"required,oneof=standard none"`

	// Target is the label a targeted attack pushes toward; nil means untargeted.
	Target *string `yaml:"target,omitempty" json:"target,omitempty"`

	SnapshotInterval float64 `yaml:"snapshot_interval" json:"snapshot_interval"`
	OutputDir        string  `yaml:"output_dir" json:"output_dir"`
	ExperimentLabel  string  `yaml:"experiment_label" json:"experiment_label"`
	ShowProgress     bool    `yaml:"show_progress" json:"show_progress"`
	SaveImages       bool    `yaml:"save_images" json:"save_images"`
	WriteStatistics  bool    `yaml:"write_statistics" json:"write_statistics"`

	Store  string `yaml:"store" json:"store" validate:"omitempty,oneof=memory sqlite badger"`
	DBPath string `yaml:"db_path" json:"db_path"`

	LogLevel    string `yaml:"log_level" json:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat   string `yaml:"log_format" json:"log_format" validate:"omitempty,oneof=text json"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	Tracing     bool   `yaml:"tracing" json:"tracing"`
}

func Default() Config {
	return Config{
		Seed:                        -1,
		NUTHost:                     "localhost",
		NUTPort:                     38000,
		NUTBasePath:                 "/api/v1",
		OracleTimeoutMS:             10000,
		ImageWidth:                  224,
		ImageHeight:                 224,
		MinActionSize:               1,
		MaxActionSize:               10,
		APCPixelStart:               40,
		APCPixelEnd:                 30,
		APCLocationStart:            40,
		APCLocationEnd:              30,
		APCStartTime:                0.4,
		APCThreshold:                0.6,
		RandomSamplingProbability:   0.5,
		FocusedSearchActivationTime: 0.8,
		StoppingCriterion:           StopIndividualEvaluations,
		MaxEvaluations:              1000,
		Algorithm:                   AlgorithmMIO,
		Sampler:                     SamplerRandom,
		Mutator:                     MutatorStandard,
		Crossover:                   CrossoverSinglePoint,
		Selection:                   SelectionRoulette,
		TournamentSize:              3,
		MutationSigma:               20,
		PopulationSize:              10,
		EnablePruning:               true,
		PruningMethod:               PruningStandard,
		SnapshotInterval:            10,
		OutputDir:                   "output",
		ExperimentLabel:             "default",
		SaveImages:                  true,
		WriteStatistics:             true,
		Store:                       "memory",
		DBPath:                      "optiattack.db",
		LogLevel:                    "info",
		LogFormat:                   "text",
	}
}

// Normalize canonicalizes enum spellings and the optional target. It is
// applied by Load and Validate.
func (c *Config) Normalize() {
	if alg, err := ParseAlgorithm(string(c.Algorithm)); err == nil {
		c.Algorithm = alg
	}
	if crit, err := ParseStoppingCriterion(string(c.StoppingCriterion)); err == nil {
		c.StoppingCriterion = crit
	}
	c.Sampler = SamplerKind(strings.ToLower(strings.TrimSpace(string(c.Sampler))))
	c.Mutator = MutatorKind(strings.ToLower(strings.TrimSpace(string(c.Mutator))))
	c.Crossover = CrossoverKind(strings.ToLower(strings.TrimSpace(string(c.Crossover))))
	c.Selection = SelectionKind(strings.ToLower(strings.TrimSpace(string(c.Selection))))
	c.PruningMethod = PruningMethod(strings.ToLower(strings.TrimSpace(string(c.PruningMethod))))
	if c.Target != nil {
		t := strings.TrimSpace(*c.Target)
		if t == "" || t == "None" || strings.EqualFold(t, "null") {
			c.Target = nil
		} else {
			c.Target = &t
		}
	}
}

func (c Config) AttackType() AttackType {
	if c.Target != nil {
		return AttackTargeted
	}
	return AttackUntargeted
}

// TargetLabel returns the target and whether one is set.
func (c Config) TargetLabel() (string, bool) {
	if c.Target == nil {
		return "", false
	}
	return *c.Target, true
}

// EffectiveABCLimit applies the population_size*10 default.
func (c Config) EffectiveABCLimit() int {
	if c.ABCLimit > 0 {
		return c.ABCLimit
	}
	return c.PopulationSize * 10
}

func WithTarget(label string) *string {
	return &label
}

var validate = validator.New()

// Validate checks struct tags and cross-field rules, reporting every problem.
func (c *Config) Validate() error {
	c.Normalize()

	var problems []error
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				problems = append(problems, fmt.Errorf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			problems = append(problems, err)
		}
	}
	if c.MinActionSize > c.MaxActionSize {
		problems = append(problems, fmt.Errorf("min_action_size %d exceeds max_action_size %d", c.MinActionSize, c.MaxActionSize))
	}
	if c.MaxActionSize > c.ImageWidth*c.ImageHeight && c.ImageWidth > 0 && c.ImageHeight > 0 {
		problems = append(problems, fmt.Errorf("max_action_size %d exceeds pixel count %d", c.MaxActionSize, c.ImageWidth*c.ImageHeight))
	}
	if c.APCStartTime > c.APCThreshold {
		problems = append(problems, fmt.Errorf("apc_start_time %.3f exceeds apc_threshold %.3f", c.APCStartTime, c.APCThreshold))
	}
	if c.Algorithm == AlgorithmDE && c.PopulationSize < 4 {
		problems = append(problems, fmt.Errorf("differential evolution needs population_size >= 4, got %d", c.PopulationSize))
	}
	if c.Store != "" && c.Store != "memory" && strings.TrimSpace(c.DBPath) == "" {
		problems = append(problems, fmt.Errorf("db_path is required for store %s", c.Store))
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
}

// Load reads a YAML or JSON file over the defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config format: %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// EncodeYAML renders the config the way `config defaults` prints it.
func (c Config) EncodeYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
