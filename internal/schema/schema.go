// Package schema derives, from an environment description, the canonical set
// of fields every timestep must carry, and validates decoded data against it.
package schema

import (
	"fmt"
	"sort"

	"github.com/cartridge/trajectory/internal/types"
)

// Dtype identifies the recorded element type of a field. All tensors are held
// as float32 in memory; the dtype is validated against what a chunk record
// declares on the wire.
type Dtype string

const (
	Float32 Dtype = "float32"
	Int32   Dtype = "int32"
)

func (d Dtype) valid() bool {
	return d == Float32 || d == Int32
}

// TensorSpec describes the shape and dtype of one per-timestep field.
type TensorSpec struct {
	Shape []int `yaml:"shape"`
	Dtype Dtype `yaml:"dtype"`
}

// EnvSpec is the environment description the registry is built from: the
// fixed agent set plus per-agent observation/action specs, optional
// legal-action masks and optional global state.
type EnvSpec struct {
	Agents       []string
	Observations map[string]TensorSpec
	Actions      map[string]TensorSpec
	Legals       map[string]TensorSpec
	State        *TensorSpec
}

// Registry is the validated, immutable field schema for one environment.
type Registry struct {
	agents []string
	obs    map[string]TensorSpec
	act    map[string]TensorSpec
	legals map[string]TensorSpec
	state  *TensorSpec
}

// New validates an environment description and builds a registry from it.
// Every agent must have an observation and action spec, and no spec may name
// an agent outside the declared set.
func New(spec EnvSpec) (*Registry, error) {
	if len(spec.Agents) == 0 {
		return nil, fmt.Errorf("schema: at least one agent is required")
	}
	agents := make([]string, len(spec.Agents))
	copy(agents, spec.Agents)
	seen := make(map[string]bool, len(agents))
	for _, a := range agents {
		if a == "" {
			return nil, fmt.Errorf("schema: empty agent id")
		}
		if seen[a] {
			return nil, fmt.Errorf("schema: duplicate agent id %q", a)
		}
		seen[a] = true
	}

	checkSet := func(name string, specs map[string]TensorSpec, required bool) error {
		if specs == nil {
			if required {
				return fmt.Errorf("schema: %s specs are required", name)
			}
			return nil
		}
		for agent, ts := range specs {
			if !seen[agent] {
				return fmt.Errorf("schema: %s spec for unknown agent %q", name, agent)
			}
			if !ts.Dtype.valid() {
				return fmt.Errorf("schema: invalid dtype %q for %s of agent %q", ts.Dtype, name, agent)
			}
			for _, d := range ts.Shape {
				if d <= 0 {
					return fmt.Errorf("schema: non-positive dimension in %s shape for agent %q", name, agent)
				}
			}
		}
		for _, agent := range agents {
			if _, ok := specs[agent]; !ok {
				return fmt.Errorf("schema: missing %s spec for agent %q", name, agent)
			}
		}
		return nil
	}

	if err := checkSet("observation", spec.Observations, true); err != nil {
		return nil, err
	}
	if err := checkSet("action", spec.Actions, true); err != nil {
		return nil, err
	}
	if err := checkSet("legal-action", spec.Legals, false); err != nil {
		return nil, err
	}
	if spec.State != nil {
		if !spec.State.Dtype.valid() {
			return nil, fmt.Errorf("schema: invalid dtype %q for state", spec.State.Dtype)
		}
		for _, d := range spec.State.Shape {
			if d <= 0 {
				return nil, fmt.Errorf("schema: non-positive dimension in state shape")
			}
		}
	}

	r := &Registry{
		agents: agents,
		obs:    cloneSpecs(spec.Observations),
		act:    cloneSpecs(spec.Actions),
	}
	if spec.Legals != nil {
		r.legals = cloneSpecs(spec.Legals)
	}
	if spec.State != nil {
		s := *spec.State
		r.state = &s
	}
	return r, nil
}

func cloneSpecs(in map[string]TensorSpec) map[string]TensorSpec {
	out := make(map[string]TensorSpec, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Agents returns the fixed agent set in declaration order.
func (r *Registry) Agents() []string {
	return r.agents
}

// ReferenceAgent is the agent whose terminal flag decides episode boundaries
// during reassembly.
func (r *Registry) ReferenceAgent() string {
	return r.agents[0]
}

// Observation returns the observation spec for an agent.
func (r *Registry) Observation(agent string) TensorSpec {
	return r.obs[agent]
}

// Action returns the action spec for an agent.
func (r *Registry) Action(agent string) TensorSpec {
	return r.act[agent]
}

// HasLegals reports whether the environment records legal-action masks.
func (r *Registry) HasLegals() bool {
	return r.legals != nil
}

// Legal returns the legal-action mask spec for an agent. Only meaningful
// when HasLegals is true.
func (r *Registry) Legal(agent string) TensorSpec {
	return r.legals[agent]
}

// HasState reports whether the environment records a global state.
func (r *Registry) HasState() bool {
	return r.state != nil
}

// State returns the global state spec. Only meaningful when HasState is true.
func (r *Registry) State() TensorSpec {
	return *r.state
}

// FieldNames lists the canonical record field names for this schema, in a
// stable order: "<agent>_<field>" per agent plus the global extras.
func (r *Registry) FieldNames() []string {
	var names []string
	for _, agent := range r.agents {
		names = append(names,
			agent+"_observations",
			agent+"_actions",
			agent+"_rewards",
			agent+"_discounts",
		)
		if r.HasLegals() {
			names = append(names, agent+"_legal_actions")
		}
	}
	names = append(names, "zero_padding_mask", "episode_return")
	if r.HasState() {
		names = append(names, "env_state")
	}
	sort.Strings(names)
	return names
}

// ValidateTimestep checks a timestep's fields against the registry. It
// returns a *MismatchError on the first disagreement.
func (r *Registry) ValidateTimestep(ts types.Timestep) error {
	for _, agent := range r.agents {
		obs, ok := ts.Observations[agent]
		if !ok {
			return newMissing("observations", agent)
		}
		if !types.ShapeEqual(obs.Shape, r.obs[agent].Shape) {
			return newShape("observations", agent, r.obs[agent].Shape, obs.Shape)
		}
		act, ok := ts.Actions[agent]
		if !ok {
			return newMissing("actions", agent)
		}
		if !types.ShapeEqual(act.Shape, r.act[agent].Shape) {
			return newShape("actions", agent, r.act[agent].Shape, act.Shape)
		}
		if _, ok := ts.Rewards[agent]; !ok {
			return newMissing("rewards", agent)
		}
		if _, ok := ts.Terminals[agent]; !ok {
			return newMissing("terminals", agent)
		}
		if _, ok := ts.Truncations[agent]; !ok {
			return newMissing("truncations", agent)
		}
		if r.HasLegals() {
			legal, ok := ts.Legals[agent]
			if !ok {
				return newMissing("legals", agent)
			}
			if !types.ShapeEqual(legal.Shape, r.legals[agent].Shape) {
				return newShape("legals", agent, r.legals[agent].Shape, legal.Shape)
			}
		}
	}
	if r.HasState() {
		if ts.State == nil {
			return newMissing("state", "")
		}
		if !types.ShapeEqual(ts.State.Shape, r.state.Shape) {
			return newShape("state", "", r.state.Shape, ts.State.Shape)
		}
	}
	return nil
}

// ZeroTimestep builds a timestep of zero-valued tensors matching the
// registry, with Mask == 0. Used for window padding.
func (r *Registry) ZeroTimestep() types.Timestep {
	ts := types.Timestep{
		Observations: make(map[string]types.Tensor, len(r.agents)),
		Actions:      make(map[string]types.Tensor, len(r.agents)),
		Rewards:      make(map[string]float32, len(r.agents)),
		Terminals:    make(map[string]float32, len(r.agents)),
		Truncations:  make(map[string]float32, len(r.agents)),
	}
	if r.HasLegals() {
		ts.Legals = make(map[string]types.Tensor, len(r.agents))
	}
	for _, agent := range r.agents {
		ts.Observations[agent] = types.NewTensor(r.obs[agent].Shape...)
		ts.Actions[agent] = types.NewTensor(r.act[agent].Shape...)
		ts.Rewards[agent] = 0
		ts.Terminals[agent] = 0
		ts.Truncations[agent] = 0
		if r.HasLegals() {
			ts.Legals[agent] = types.NewTensor(r.legals[agent].Shape...)
		}
	}
	if r.HasState() {
		st := types.NewTensor(r.state.Shape...)
		ts.State = &st
	}
	return ts
}
