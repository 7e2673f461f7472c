package store

import "errors"

// ErrEmptyBuffer is returned by Sample when the store holds no data, or not
// yet enough contiguous timesteps for a single window.
var ErrEmptyBuffer = errors.New("buffer is empty")
