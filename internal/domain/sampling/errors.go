package sampling

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when planning or selection inputs are out of range.
	// No partial plan accompanies it.
	ErrInvalidInput = errors.New("invalid sampling input")

	// ErrNoContent means the selection is still empty after the uniform fallback ran.
	ErrNoContent = errors.New("no extractable content")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// mustHold panics on a broken internal invariant. These are programming errors,
// not operational failures, so they are never returned as values.
func mustHold(cond bool, format string, args ...any) {
	if !cond {
		panic("sampling: invariant violated: " + fmt.Sprintf(format, args...))
	}
}
