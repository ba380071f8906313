package model

import "encoding/json"

// Individual is a candidate perturbation: an ordered list of actions holding at
// most one action per location.
type Individual struct {
	actions []Action
	Origin  string
}

// NewIndividual builds an individual, replacing earlier actions that share a
// location with later ones.
func NewIndividual(actions ...Action) *Individual {
	ind := &Individual{actions: make([]Action, 0, len(actions))}
	for _, a := range actions {
		ind.AddAction(a, true)
	}
	return ind
}

// AddAction inserts a. When an action already occupies a's location it is
// replaced in place if replace is true; otherwise a is rejected. The return
// value reports whether a was stored.
func (ind *Individual) AddAction(a Action, replace bool) bool {
	if i := ind.indexOf(a.Location); i >= 0 {
		if !replace {
			return false
		}
		ind.actions[i] = a
		return true
	}
	ind.actions = append(ind.actions, a)
	return true
}

// SetAction overwrites the action at position i. Any other action already at
// the new location is dropped so the location invariant holds.
func (ind *Individual) SetAction(i int, a Action) {
	if i < 0 || i >= len(ind.actions) {
		return
	}
	if j := ind.indexOf(a.Location); j >= 0 && j != i {
		ind.actions[i] = a
		ind.actions = append(ind.actions[:j], ind.actions[j+1:]...)
		return
	}
	ind.actions[i] = a
}

func (ind *Individual) Action(i int) Action {
	return ind.actions[i]
}

// Actions returns a copy of the action list.
func (ind *Individual) Actions() []Action {
	return append([]Action(nil), ind.actions...)
}

func (ind *Individual) Size() int {
	if ind == nil {
		return 0
	}
	return len(ind.actions)
}

func (ind *Individual) Contains(loc Location) bool {
	return ind.indexOf(loc) >= 0
}

func (ind *Individual) Copy() *Individual {
	return &Individual{actions: append([]Action(nil), ind.actions...), Origin: ind.Origin}
}

// ReplaceActions swaps the whole action list, deduplicating by location.
func (ind *Individual) ReplaceActions(actions []Action) {
	ind.actions = make([]Action, 0, len(actions))
	for _, a := range actions {
		ind.AddAction(a, true)
	}
}

// Crossover returns the first p1 actions of ind followed by other's actions
// from p2 onwards.
func (ind *Individual) Crossover(other *Individual, p1, p2 int) *Individual {
	p1 = clampIndex(p1, len(ind.actions))
	p2 = clampIndex(p2, len(other.actions))
	child := &Individual{actions: make([]Action, 0, p1+len(other.actions)-p2), Origin: "crossover"}
	for _, a := range ind.actions[:p1] {
		child.AddAction(a, true)
	}
	for _, a := range other.actions[p2:] {
		child.AddAction(a, true)
	}
	return child
}

func (ind *Individual) indexOf(loc Location) int {
	for i := range ind.actions {
		if ind.actions[i].Location == loc {
			return i
		}
	}
	return -1
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

type individualJSON struct {
	Actions []Action `json:"actions"`
	Origin  string   `json:"origin,omitempty"`
}

func (ind *Individual) MarshalJSON() ([]byte, error) {
	return json.Marshal(individualJSON{Actions: ind.Actions(), Origin: ind.Origin})
}

func (ind *Individual) UnmarshalJSON(data []byte) error {
	var in individualJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	ind.Origin = in.Origin
	ind.actions = nil
	ind.ReplaceActions(in.Actions)
	return nil
}
