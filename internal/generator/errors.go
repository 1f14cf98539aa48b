package generator

import (
	"errors"
	"fmt"
)

// ErrNoStyleMatch is returned when the style index yields no exemplars
// for the given context.
var ErrNoStyleMatch = errors.New("no style exemplars matched the context")

// CombinedError reports that both the feedback-aware generation path and
// the plain fallback path failed.
type CombinedError struct {
	FeedbackErr error
	FallbackErr error
}

func (e *CombinedError) Error() string {
	return fmt.Sprintf("generation failed on both paths: feedback-aware: %v; fallback: %v", e.FeedbackErr, e.FallbackErr)
}

// Unwrap exposes both underlying errors to errors.Is / errors.As.
func (e *CombinedError) Unwrap() []error {
	return []error{e.FeedbackErr, e.FallbackErr}
}
