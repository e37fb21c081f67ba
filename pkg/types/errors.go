package types

import (
	"context"
	"errors"
	"fmt"
)

// ErrInterrupted is returned by long-running operations stopped through
// their context. Their in-memory result must not be persisted.
var ErrInterrupted = errors.New("operation interrupted")

// Interrupted returns a non-nil error wrapping ErrInterrupted and the
// context cause once ctx is done.
func Interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return nil
}

// ProgressFunc receives per-item progress of a long-running operation.
type ProgressFunc func(current, total int, name string)

// Report calls f when it is set.
func (f ProgressFunc) Report(current, total int, name string) {
	if f != nil {
		f(current, total, name)
	}
}
