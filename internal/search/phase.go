package search

import (
	"errors"
	"fmt"
	"sync"
)

type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseSearch
	PhasePruning
	PhaseEnd
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseSearch:
		return "search"
	case PhasePruning:
		return "pruning"
	case PhaseEnd:
		return "end"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

var ErrInvalidTransition = errors.New("invalid phase transition")

// PhaseController is the NOT_STARTED -> SEARCH -> PRUNING -> END state machine.
type PhaseController struct {
	mu    sync.RWMutex
	phase Phase
}

func NewPhaseController() *PhaseController {
	return &PhaseController{phase: PhaseNotStarted}
}

func (c *PhaseController) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseNotStarted {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, c.phase)
	}
	c.phase = PhaseSearch
	return nil
}

func (c *PhaseController) Prune() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseSearch {
		return fmt.Errorf("%w: prune from %s", ErrInvalidTransition, c.phase)
	}
	c.phase = PhasePruning
	return nil
}

// End is terminal and may be entered from any phase.
func (c *PhaseController) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = PhaseEnd
}

func (c *PhaseController) Current() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

func (c *PhaseController) IsPruning() bool {
	return c.Current() == PhasePruning
}

func (c *PhaseController) IsSearch() bool {
	return c.Current() == PhaseSearch
}
