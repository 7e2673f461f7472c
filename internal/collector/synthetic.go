package collector

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/cartridge/trajectory/internal/schema"
	"github.com/cartridge/trajectory/internal/types"
)

// SyntheticEnv generates schema-conforming random experience, for exercising
// the ingestion pipeline without a live simulator. Episode lengths are drawn
// uniformly in [1, horizon]; every action is legal.
type SyntheticEnv struct {
	reg     *schema.Registry
	rng     *rand.Rand
	horizon int

	episodeLen int
	step       int
}

// NewSynthetic creates a synthetic environment with its own seeded rng.
func NewSynthetic(reg *schema.Registry, horizon int, seed int64) (*SyntheticEnv, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("collector: synthetic horizon must be positive, got %d", horizon)
	}
	return &SyntheticEnv{
		reg:     reg,
		rng:     rand.New(rand.NewSource(seed)),
		horizon: horizon,
	}, nil
}

// Reset satisfies Environment.
func (e *SyntheticEnv) Reset(ctx context.Context) (*StepResult, error) {
	e.episodeLen = 1 + e.rng.Intn(e.horizon)
	e.step = 0
	return e.result(false), nil
}

// Step satisfies Environment.
func (e *SyntheticEnv) Step(ctx context.Context, actions map[string]types.Tensor) (*StepResult, error) {
	e.step++
	return e.result(e.step >= e.episodeLen), nil
}

// Close satisfies Environment.
func (e *SyntheticEnv) Close() error {
	return nil
}

func (e *SyntheticEnv) result(terminal bool) *StepResult {
	r := &StepResult{
		Observations: make(map[string]types.Tensor, len(e.reg.Agents())),
		Rewards:      make(map[string]float32, len(e.reg.Agents())),
		Terminals:    make(map[string]float32, len(e.reg.Agents())),
		Truncations:  make(map[string]float32, len(e.reg.Agents())),
	}
	if e.reg.HasLegals() {
		r.Legals = make(map[string]types.Tensor, len(e.reg.Agents()))
	}
	for _, agent := range e.reg.Agents() {
		obs := types.NewTensor(e.reg.Observation(agent).Shape...)
		for i := range obs.Data {
			obs.Data[i] = e.rng.Float32()
		}
		r.Observations[agent] = obs
		r.Rewards[agent] = e.rng.Float32()*2 - 1
		if terminal {
			r.Terminals[agent] = 1
		}
		if e.reg.HasLegals() {
			legal := types.NewTensor(e.reg.Legal(agent).Shape...)
			for i := range legal.Data {
				legal.Data[i] = 1
			}
			r.Legals[agent] = legal
		}
	}
	if e.reg.HasState() {
		st := types.NewTensor(e.reg.State().Shape...)
		for i := range st.Data {
			st.Data[i] = e.rng.Float32()
		}
		r.State = &st
	}
	return r
}
