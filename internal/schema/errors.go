package schema

import (
	"errors"
	"fmt"
)

// ErrSchemaMismatch is the sentinel for any disagreement between decoded data
// and the registry. Use errors.Is(err, ErrSchemaMismatch) for typed
// assertions; errors.As(*MismatchError) exposes the detail.
var ErrSchemaMismatch = errors.New("schema mismatch")

// MismatchError reports which field of which agent disagreed with the
// registry, and how.
type MismatchError struct {
	Field string
	Agent string
	Want  string
	Got   string
}

func (e *MismatchError) Error() string {
	subject := e.Field
	if e.Agent != "" {
		subject = e.Agent + " " + e.Field
	}
	if e.Want == "" && e.Got == "" {
		return fmt.Sprintf("schema mismatch: %s missing", subject)
	}
	return fmt.Sprintf("schema mismatch: %s: want %s, got %s", subject, e.Want, e.Got)
}

// Is makes every MismatchError match the ErrSchemaMismatch sentinel.
func (e *MismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

func newMissing(field, agent string) error {
	return &MismatchError{Field: field, Agent: agent}
}

func newShape(field, agent string, want, got []int) error {
	return &MismatchError{
		Field: field,
		Agent: agent,
		Want:  fmt.Sprintf("shape %v", want),
		Got:   fmt.Sprintf("shape %v", got),
	}
}
