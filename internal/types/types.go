// Package types defines the multi-agent trajectory data model shared by the
// decoder, the reassembler and the trajectory store. All per-agent fields are
// keyed by agent id; the agent set is fixed per environment.
package types

// Timestep is one simulation step for every agent. Terminals and truncations
// use float32 zero/one flags so they batch directly alongside the other
// fields. Mask distinguishes real data (1) from zero-padding (0).
type Timestep struct {
	Observations map[string]Tensor  `json:"observations"`
	Actions      map[string]Tensor  `json:"actions"`
	Rewards      map[string]float32 `json:"rewards"`
	Terminals    map[string]float32 `json:"terminals"`
	Truncations  map[string]float32 `json:"truncations"`

	// Legals holds per-agent legal-action masks; nil when the environment
	// does not report them.
	Legals map[string]Tensor `json:"legals,omitempty"`

	// State is the global/centralized state; nil when absent.
	State *Tensor `json:"state,omitempty"`

	Mask float32 `json:"mask"`
}

// Episode is an ordered sequence of timesteps ending at the first terminal
// or length-cutoff event. Every step carries Mask == 1.
type Episode struct {
	ID     string     `json:"id"`
	Steps  []Timestep `json:"steps"`
	Return float32    `json:"return"`
}

// Length returns the number of timesteps in the episode.
func (e Episode) Length() int {
	return len(e.Steps)
}

// Window is a fixed-length contiguous slice of a reassembled episode,
// right-zero-padded past the episode's true end. Its per-step Mask marks
// real versus padded timesteps, independent of any recording-time chunking.
type Window struct {
	Steps []Timestep `json:"steps"`
}

// Batch mirrors the timestep schema with every leaf shaped
// (batch, time, ...per-field-dims), ready for a training step.
type Batch struct {
	Observations map[string]Tensor `json:"observations"`
	Actions      map[string]Tensor `json:"actions"`
	Rewards      map[string]Tensor `json:"rewards"`
	Terminals    map[string]Tensor `json:"terminals"`
	Truncations  map[string]Tensor `json:"truncations"`
	Legals       map[string]Tensor `json:"legals,omitempty"`
	State        *Tensor           `json:"state,omitempty"`
	Mask         Tensor            `json:"mask"`
}
