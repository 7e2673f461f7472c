package collector

import (
	"fmt"
	"math/rand"

	"github.com/cartridge/trajectory/internal/schema"
	"github.com/cartridge/trajectory/internal/types"
)

// RandomPolicy selects uniformly random actions. Discrete scalar actions are
// drawn from the legal-action mask when the environment provides one;
// continuous actions are filled uniformly in [-1, 1].
type RandomPolicy struct {
	reg *schema.Registry
	rng *rand.Rand
}

// NewRandom creates a random policy with its own seeded rng.
func NewRandom(reg *schema.Registry, seed int64) *RandomPolicy {
	return &RandomPolicy{
		reg: reg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// SelectActions satisfies Policy.
func (p *RandomPolicy) SelectActions(observations map[string]types.Tensor, legals map[string]types.Tensor) (map[string]types.Tensor, error) {
	actions := make(map[string]types.Tensor, len(p.reg.Agents()))
	for _, agent := range p.reg.Agents() {
		spec := p.reg.Action(agent)
		act := types.NewTensor(spec.Shape...)
		if spec.Dtype == schema.Int32 && act.Len() == 1 {
			legal, ok := legals[agent]
			if !ok {
				return nil, fmt.Errorf("collector: discrete action for %s requires a legal-action mask", agent)
			}
			idx, err := p.sampleLegal(legal)
			if err != nil {
				return nil, fmt.Errorf("collector: agent %s: %w", agent, err)
			}
			act.Data[0] = float32(idx)
		} else {
			for i := range act.Data {
				act.Data[i] = p.rng.Float32()*2 - 1
			}
		}
		actions[agent] = act
	}
	return actions, nil
}

// sampleLegal draws a uniformly random index among the mask's nonzero
// entries.
func (p *RandomPolicy) sampleLegal(mask types.Tensor) (int, error) {
	var legal []int
	for i, v := range mask.Data {
		if v != 0 {
			legal = append(legal, i)
		}
	}
	if len(legal) == 0 {
		return 0, fmt.Errorf("no legal actions")
	}
	return legal[p.rng.Intn(len(legal))], nil
}
