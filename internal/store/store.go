// Package store holds reassembled multi-agent transitions in a fixed-capacity
// circular buffer and serves uniform random fixed-length windows to training.
package store

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/cartridge/trajectory/internal/schema"
	"github.com/cartridge/trajectory/internal/types"
)

// Params are the buffer construction parameters.
type Params struct {
	// SequenceLength is the time length of every sampled window.
	SequenceLength int
	// MaxSize is the buffer capacity in timesteps. Once reached, the oldest
	// timesteps are silently overwritten.
	MaxSize int
	// SamplePeriod restricts window start offsets to multiples of this
	// stride. Typically 1.
	SamplePeriod int
	// Seed drives the store's own sampling randomness, so two stores with
	// the same seed produce identical sampling sequences.
	Seed int64
}

// Validate checks the parameters against their documented ranges.
func (p Params) Validate() error {
	if p.SequenceLength <= 0 {
		return fmt.Errorf("store: sequence length must be positive, got %d", p.SequenceLength)
	}
	if p.MaxSize <= 0 {
		return fmt.Errorf("store: max size must be positive, got %d", p.MaxSize)
	}
	if p.MaxSize < p.SequenceLength {
		return fmt.Errorf("store: max size %d is smaller than sequence length %d", p.MaxSize, p.SequenceLength)
	}
	if p.SamplePeriod < 1 {
		return fmt.Errorf("store: sample period must be at least 1, got %d", p.SamplePeriod)
	}
	return nil
}

// Stats describes the buffer state for diagnostics.
type Stats struct {
	Size           int    `json:"size"`
	Capacity       int    `json:"capacity"`
	SequenceLength int    `json:"sequence_length"`
	SamplePeriod   int    `json:"sample_period"`
	TotalWrites    uint64 `json:"total_writes"`
	Episodes       uint64 `json:"episodes"`
}

// Store is a time-indexed ring buffer of timesteps with one contiguous
// backing array per field per agent. The backing layout is allocated from
// the schema registry at construction; a timestep whose shapes drift from
// that layout is rejected rather than truncated or reshaped.
//
// Single writer, with sampling allowed from another goroutine: the cursor
// advance and the in-place field overwrite happen inside one critical
// section, so a reader never observes a half-written slot. The store owns
// all stored data; writes copy, and sampled batches are fresh allocations.
type Store struct {
	mu  sync.RWMutex
	reg *schema.Registry
	p   Params

	obs         map[string][]float32
	act         map[string][]float32
	legals      map[string][]float32
	rewards     map[string][]float32
	terminals   map[string][]float32
	truncations map[string][]float32
	state       []float32
	mask        []float32

	cursor      int
	full        bool
	totalWrites uint64
	episodes    uint64

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New allocates a store for the given schema and parameters.
func New(reg *schema.Registry, p Params) (*Store, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		reg:         reg,
		p:           p,
		obs:         make(map[string][]float32),
		act:         make(map[string][]float32),
		rewards:     make(map[string][]float32),
		terminals:   make(map[string][]float32),
		truncations: make(map[string][]float32),
		mask:        make([]float32, p.MaxSize),
		rng:         rand.New(rand.NewSource(p.Seed)),
	}
	if reg.HasLegals() {
		s.legals = make(map[string][]float32)
	}
	for _, agent := range reg.Agents() {
		s.obs[agent] = make([]float32, p.MaxSize*types.NumElements(reg.Observation(agent).Shape))
		s.act[agent] = make([]float32, p.MaxSize*types.NumElements(reg.Action(agent).Shape))
		s.rewards[agent] = make([]float32, p.MaxSize)
		s.terminals[agent] = make([]float32, p.MaxSize)
		s.truncations[agent] = make([]float32, p.MaxSize)
		if reg.HasLegals() {
			s.legals[agent] = make([]float32, p.MaxSize*types.NumElements(reg.Legal(agent).Shape))
		}
	}
	if reg.HasState() {
		s.state = make([]float32, p.MaxSize*types.NumElements(reg.State().Shape))
	}
	return s, nil
}

// Params returns the construction parameters.
func (s *Store) Params() Params {
	return s.p
}

// Add writes one timestep at the cursor, overwriting the oldest entry when
// the buffer is full. Shape drift against the allocated layout fails fast.
func (s *Store) Add(ts types.Timestep) error {
	if err := s.reg.ValidateTimestep(ts); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeSlot(s.cursor, ts)
	s.advance()
	return nil
}

// AddWindow writes a pre-built fixed-length window as sequence-length
// consecutive timesteps inside a single critical section.
func (s *Store) AddWindow(w types.Window) error {
	if len(w.Steps) != s.p.SequenceLength {
		return fmt.Errorf("store: window length %d does not match sequence length %d", len(w.Steps), s.p.SequenceLength)
	}
	for _, ts := range w.Steps {
		if err := s.reg.ValidateTimestep(ts); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ts := range w.Steps {
		s.writeSlot(s.cursor, ts)
		s.advance()
	}
	return nil
}

// OnEpisodeEnd records that an episode boundary occurred on the incremental
// ingestion path. Bookkeeping only.
func (s *Store) OnEpisodeEnd() {
	s.mu.Lock()
	s.episodes++
	s.mu.Unlock()
}

// BulkPopulate replaces the store's contents with the timesteps of the given
// episodes, concatenated end-to-end in order. If the concatenation exceeds
// capacity, the earliest timesteps are overwritten ring-buffer style.
func (s *Store) BulkPopulate(episodes []types.Episode) error {
	for _, ep := range episodes {
		for _, ts := range ep.Steps {
			if err := s.reg.ValidateTimestep(ts); err != nil {
				return fmt.Errorf("episode %s: %w", ep.ID, err)
			}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = 0
	s.full = false
	s.totalWrites = 0
	s.episodes = 0
	for _, ep := range episodes {
		for _, ts := range ep.Steps {
			s.writeSlot(s.cursor, ts)
			s.advance()
		}
		s.episodes++
	}
	return nil
}

// advance moves the cursor one slot. Callers hold the write lock.
func (s *Store) advance() {
	s.cursor++
	s.totalWrites++
	if s.cursor == s.p.MaxSize {
		s.cursor = 0
		s.full = true
	}
}

// writeSlot copies one timestep into backing slot i. Callers hold the write
// lock and have validated the timestep.
func (s *Store) writeSlot(i int, ts types.Timestep) {
	for _, agent := range s.reg.Agents() {
		obs := ts.Observations[agent]
		copy(s.obs[agent][i*obs.Len():], obs.Data)
		act := ts.Actions[agent]
		copy(s.act[agent][i*act.Len():], act.Data)
		s.rewards[agent][i] = ts.Rewards[agent]
		s.terminals[agent][i] = ts.Terminals[agent]
		s.truncations[agent][i] = ts.Truncations[agent]
		if s.legals != nil {
			legal := ts.Legals[agent]
			copy(s.legals[agent][i*legal.Len():], legal.Data)
		}
	}
	if s.state != nil {
		copy(s.state[i*ts.State.Len():], ts.State.Data)
	}
	s.mask[i] = ts.Mask
}

// size returns the number of stored timesteps. Callers hold a lock.
func (s *Store) size() int {
	if s.full {
		return s.p.MaxSize
	}
	return s.cursor
}

// physIndex maps a logical time offset (0 = oldest stored timestep) to a
// physical slot. Callers hold a lock.
func (s *Store) physIndex(logical int) int {
	if s.full {
		return (s.cursor + logical) % s.p.MaxSize
	}
	return logical
}

// Size returns the number of stored timesteps.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size()
}

// Stats returns a snapshot of the buffer state.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Size:           s.size(),
		Capacity:       s.p.MaxSize,
		SequenceLength: s.p.SequenceLength,
		SamplePeriod:   s.p.SamplePeriod,
		TotalWrites:    s.totalWrites,
		Episodes:       s.episodes,
	}
}

// Sample draws batchSize independent, uniformly random, fixed-length
// contiguous windows along the logical time axis, with start offsets
// restricted to multiples of the sample period. Every returned leaf is
// shaped (batch, sequence_length, ...). Sampling never mutates stored data.
func (s *Store) Sample(batchSize int) (types.Batch, error) {
	if batchSize <= 0 {
		return types.Batch{}, fmt.Errorf("store: batch size must be positive, got %d", batchSize)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	size := s.size()
	if size < s.p.SequenceLength {
		return types.Batch{}, ErrEmptyBuffer
	}

	numStarts := (size-s.p.SequenceLength)/s.p.SamplePeriod + 1
	starts := make([]int, batchSize)
	s.rngMu.Lock()
	for b := range starts {
		starts[b] = s.rng.Intn(numStarts) * s.p.SamplePeriod
	}
	s.rngMu.Unlock()

	B, T := batchSize, s.p.SequenceLength
	batch := types.Batch{
		Observations: make(map[string]types.Tensor),
		Actions:      make(map[string]types.Tensor),
		Rewards:      make(map[string]types.Tensor),
		Terminals:    make(map[string]types.Tensor),
		Truncations:  make(map[string]types.Tensor),
		Mask:         types.NewTensor(B, T),
	}
	if s.legals != nil {
		batch.Legals = make(map[string]types.Tensor)
	}

	for _, agent := range s.reg.Agents() {
		batch.Observations[agent] = s.gather(starts, s.obs[agent], s.reg.Observation(agent).Shape)
		batch.Actions[agent] = s.gather(starts, s.act[agent], s.reg.Action(agent).Shape)
		batch.Rewards[agent] = s.gather(starts, s.rewards[agent], nil)
		batch.Terminals[agent] = s.gather(starts, s.terminals[agent], nil)
		batch.Truncations[agent] = s.gather(starts, s.truncations[agent], nil)
		if s.legals != nil {
			batch.Legals[agent] = s.gather(starts, s.legals[agent], s.reg.Legal(agent).Shape)
		}
	}
	if s.state != nil {
		st := s.gather(starts, s.state, s.reg.State().Shape)
		batch.State = &st
	}
	batch.Mask = s.gather(starts, s.mask, nil)

	return batch, nil
}

// gather copies the sampled windows of one backing array into a fresh
// (batch, time, ...dims) tensor. Callers hold the read lock.
func (s *Store) gather(starts []int, backing []float32, dims []int) types.Tensor {
	B, T := len(starts), s.p.SequenceLength
	n := types.NumElements(dims)
	shape := make([]int, 0, len(dims)+2)
	shape = append(shape, B, T)
	shape = append(shape, dims...)
	out := types.NewTensor(shape...)
	for b, start := range starts {
		for t := 0; t < T; t++ {
			phys := s.physIndex(start + t)
			copy(out.Data[((b*T)+t)*n:((b*T)+t+1)*n], backing[phys*n:(phys+1)*n])
		}
	}
	return out
}
