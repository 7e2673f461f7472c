package store

import (
	"fmt"

	"github.com/cartridge/trajectory/internal/types"
)

// Accumulator is the online ingestion path: it collects live timesteps into
// a fixed-length window, zero-pads on early episode termination, and pushes
// completed windows into the store.
//
// A window is pushed exactly once per sequence-length additions, or once at
// episode end for a partial window, never both for the same slot range.
type Accumulator struct {
	store  *Store
	window types.Window
	t      int
}

// NewAccumulator builds an accumulator feeding the given store. The window
// buffer is pre-allocated from the store's schema.
func NewAccumulator(s *Store) *Accumulator {
	steps := make([]types.Timestep, s.p.SequenceLength)
	for i := range steps {
		steps[i] = s.reg.ZeroTimestep()
	}
	return &Accumulator{
		store:  s,
		window: types.Window{Steps: steps},
	}
}

// Add writes one live timestep into the next window slot, forcing Mask to 1.
// When the window fills it is pushed to the store and the slot index resets.
func (a *Accumulator) Add(ts types.Timestep) error {
	if err := a.store.reg.ValidateTimestep(ts); err != nil {
		return err
	}
	ts.Mask = 1
	a.window.Steps[a.t] = ts
	a.t++
	if a.t == a.store.p.SequenceLength {
		if err := a.store.AddWindow(a.window); err != nil {
			return fmt.Errorf("store: push full window: %w", err)
		}
		a.reset()
	}
	return nil
}

// EndOfEpisode zero-pads and pushes the in-progress window, if any, and
// signals the episode boundary to the store. Padded slots carry Mask == 0
// and the zero value in every other field.
func (a *Accumulator) EndOfEpisode() error {
	if a.t > 0 {
		for i := a.t; i < a.store.p.SequenceLength; i++ {
			a.window.Steps[i] = a.store.reg.ZeroTimestep()
		}
		if err := a.store.AddWindow(a.window); err != nil {
			return fmt.Errorf("store: push partial window: %w", err)
		}
		a.reset()
	}
	a.store.OnEpisodeEnd()
	return nil
}

// Pending returns how many slots of the in-progress window are filled.
func (a *Accumulator) Pending() int {
	return a.t
}

// reset clears the slot index and re-zeroes the window buffer so a later
// partial push never leaks stale timesteps.
func (a *Accumulator) reset() {
	for i := range a.window.Steps {
		a.window.Steps[i] = a.store.reg.ZeroTimestep()
	}
	a.t = 0
}
