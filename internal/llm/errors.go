package llm

import (
	"errors"
	"fmt"
)

// GenerationError is the single error type callers see from this
// package. The distinction between transport, auth and rate-limit
// failures matters for logs, not for control flow; callers fall back
// the same way regardless.
type GenerationError struct {
	Op    string
	Cause error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("llm %s failed: %v", e.Op, e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// IsGenerationError reports whether err wraps a *GenerationError.
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}
