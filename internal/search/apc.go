package search

import "optiattack/internal/config"

// Budget is the part of the time controller the schedule reads.
type Budget interface {
	PercentageUsedBudget() float64
}

// APC derives search parameters from the fraction of budget consumed.
type APC struct {
	budget Budget

	pixelStart, pixelEnd       float64
	locationStart, locationEnd float64
	startTime, threshold       float64
	randomProbability          float64
	focusedActivation          float64
}

func NewAPC(budget Budget, cfg config.Config) *APC {
	return &APC{
		budget:            budget,
		pixelStart:        cfg.APCPixelStart,
		pixelEnd:          cfg.APCPixelEnd,
		locationStart:     cfg.APCLocationStart,
		locationEnd:       cfg.APCLocationEnd,
		startTime:         cfg.APCStartTime,
		threshold:         cfg.APCThreshold,
		randomProbability: cfg.RandomSamplingProbability,
		focusedActivation: cfg.FocusedSearchActivationTime,
	}
}

// Interpolate holds start until startFrac, holds end from thresholdFrac on
// and moves linearly in between.
func (a *APC) Interpolate(start, end, startFrac, thresholdFrac float64) float64 {
	return Interpolate(start, end, startFrac, thresholdFrac, a.budget.PercentageUsedBudget())
}

func Interpolate(start, end, startFrac, thresholdFrac, used float64) float64 {
	if used < startFrac {
		return start
	}
	if used >= thresholdFrac {
		return end
	}
	return start + (end-start)*(used-startFrac)/(thresholdFrac-startFrac)
}

func (a *APC) PixelSigma() float64 {
	return a.Interpolate(a.pixelStart, a.pixelEnd, a.startTime, a.threshold)
}

func (a *APC) LocationSigma() float64 {
	return a.Interpolate(a.locationStart, a.locationEnd, a.startTime, a.threshold)
}

// RandomSamplingProbability decays to zero by the focused search activation
// point.
func (a *APC) RandomSamplingProbability() float64 {
	return a.Interpolate(a.randomProbability, 0, 0, a.focusedActivation)
}
