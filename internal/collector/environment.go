// Package collector runs live episodes against an environment and feeds the
// resulting timesteps into the online window accumulator.
package collector

import (
	"context"

	"github.com/cartridge/trajectory/internal/types"
)

// StepResult is what the environment reports after a reset or step. Rewards,
// terminals and truncations are all-zero after a reset.
type StepResult struct {
	Observations map[string]types.Tensor
	Rewards      map[string]float32
	Terminals    map[string]float32
	Truncations  map[string]float32
	Legals       map[string]types.Tensor
	State        *types.Tensor
}

// Done reports whether every agent is terminal or truncated.
func (r *StepResult) Done() bool {
	for agent := range r.Observations {
		if r.Terminals[agent] != 1 && r.Truncations[agent] != 1 {
			return false
		}
	}
	return true
}

// Environment is the capability interface the collector requires from an
// environment adapter. It is the full contract: adapters expose exactly
// these operations rather than forwarding arbitrary attributes of a wrapped
// simulator.
type Environment interface {
	// Reset starts a new episode and returns the initial step result.
	Reset(ctx context.Context) (*StepResult, error)

	// Step applies one per-agent action map and returns the next step result.
	Step(ctx context.Context, actions map[string]types.Tensor) (*StepResult, error)

	// Close releases simulator resources.
	Close() error
}

// Policy chooses per-agent actions given the current observations and,
// when available, the legal-action masks.
type Policy interface {
	SelectActions(observations map[string]types.Tensor, legals map[string]types.Tensor) (map[string]types.Tensor, error)
}
