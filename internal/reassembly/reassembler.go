// Package reassembly reconstructs variable-length episodes from the
// overlapping fixed-length chunks a recorder produced.
//
// Consecutive chunks of one episode overlap by sequenceLength - period, so
// only the first period timesteps of each chunk advance the episode; the
// tail is redundant with the next chunk's prefix and is discarded. Chunks
// must arrive in recording order: the reassembler does not reorder, and
// out-of-order input stitches episodes incorrectly without raising an
// error. Callers sort chunks by episode and sequence index before pushing.
package reassembly

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cartridge/trajectory/internal/chunk"
	"github.com/cartridge/trajectory/internal/schema"
	"github.com/cartridge/trajectory/internal/types"
)

// Reassembler accumulates chunk prefixes into episodes, ending each episode
// at the reference agent's terminal flag or at the maximum-length cutoff.
type Reassembler struct {
	refAgent         string
	period           int
	maxEpisodeLength int

	steps  []types.Timestep
	length int // count of mask==1 steps accumulated so far
	ret    float32
}

// New builds a reassembler. Period and maxEpisodeLength come from the
// dataset registry, never from inspecting the data.
func New(reg *schema.Registry, period, maxEpisodeLength int) (*Reassembler, error) {
	if period <= 0 {
		return nil, fmt.Errorf("reassembly: period must be positive, got %d", period)
	}
	if maxEpisodeLength <= 0 {
		return nil, fmt.Errorf("reassembly: max episode length must be positive, got %d", maxEpisodeLength)
	}
	return &Reassembler{
		refAgent:         reg.ReferenceAgent(),
		period:           period,
		maxEpisodeLength: maxEpisodeLength,
	}, nil
}

// Push appends the non-overlapping prefix of one chunk to the in-progress
// episode. When the episode ends it is returned with trailing padding
// dropped; otherwise Push returns nil.
func (r *Reassembler) Push(c chunk.Chunk) (*types.Episode, error) {
	if c.Length() < r.period {
		return nil, fmt.Errorf("reassembly: chunk of length %d is shorter than period %d", c.Length(), r.period)
	}

	take := c.Steps[:r.period]
	r.steps = append(r.steps, take...)
	for _, ts := range take {
		if ts.Mask == 1 {
			r.length++
		}
	}
	r.ret = c.Return

	last := take[r.period-1]
	if last.Terminals[r.refAgent] == 1 || r.length >= r.maxEpisodeLength {
		return r.emit(), nil
	}
	return nil, nil
}

// Flush returns the in-progress episode if any valid timesteps remain, for
// recordings whose final chunk never carried a terminal. Returns nil when
// nothing is pending.
func (r *Reassembler) Flush() *types.Episode {
	if r.length == 0 {
		r.reset()
		return nil
	}
	return r.emit()
}

// emit truncates the accumulator to the valid episode length and resets.
// Padding only ever trails the valid steps, so the cut is a prefix.
func (r *Reassembler) emit() *types.Episode {
	ep := &types.Episode{
		ID:     uuid.New().String(),
		Steps:  r.steps[:r.length],
		Return: r.ret,
	}
	r.steps = nil
	r.length = 0
	r.ret = 0
	return ep
}

func (r *Reassembler) reset() {
	r.steps = nil
	r.length = 0
	r.ret = 0
}
