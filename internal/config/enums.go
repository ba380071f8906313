package config

import (
	"fmt"
	"strings"
)

type Algorithm string

const (
	AlgorithmMIO     Algorithm = "mio"
	AlgorithmRandom  Algorithm = "random"
	AlgorithmGenetic Algorithm = "genetic"
	AlgorithmABC     Algorithm = "abc"
	AlgorithmDE      Algorithm = "de"
)

var algorithms = []Algorithm{AlgorithmMIO, AlgorithmRandom, AlgorithmGenetic, AlgorithmABC, AlgorithmDE}

// ParseAlgorithm accepts the canonical names plus a few aliases.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mio":
		return AlgorithmMIO, nil
	case "random", "rs":
		return AlgorithmRandom, nil
	case "genetic", "ga":
		return AlgorithmGenetic, nil
	case "abc", "bee_colony":
		return AlgorithmABC, nil
	case "de", "differential_evolution":
		return AlgorithmDE, nil
	default:
		return "", fmt.Errorf("unsupported algorithm: %s", name)
	}
}

func Algorithms() []Algorithm {
	return append([]Algorithm(nil), algorithms...)
}

type StoppingCriterion string

const (
	StopIndividualEvaluations StoppingCriterion = "individual_evaluations"
	StopTime                  StoppingCriterion = "time"
)

func ParseStoppingCriterion(name string) (StoppingCriterion, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "individual_evaluations", "evaluations":
		return StopIndividualEvaluations, nil
	case "time", "seconds":
		return StopTime, nil
	default:
		return "", fmt.Errorf("unsupported stopping criterion: %s", name)
	}
}

type SamplerKind string

const (
	SamplerRandom   SamplerKind = "random"
	SamplerGaussian SamplerKind = "gaussian"
)

type MutatorKind string

const MutatorStandard MutatorKind = "standard"

type CrossoverKind string

const CrossoverSinglePoint CrossoverKind = "single_point"

type SelectionKind string

const (
	SelectionRoulette   SelectionKind = "roulette"
	SelectionTournament SelectionKind = "tournament"
)

type PruningMethod string

const (
	PruningStandard PruningMethod = "standard"
	PruningNone     PruningMethod = "none"
)

type AttackType string

const (
	AttackUntargeted AttackType = "untargeted"
	AttackTargeted   AttackType = "targeted"
)
