package llmclient

import "fmt"

// PermanentError marks an error that retrying will never fix: malformed
// input, an unsupported structured format, a 4xx that isn't a rate limit.
// Policy.Do and Policy.Run both already stop on an aborted context; callers
// that loop over Client methods directly should check errors.As for this
// type before retrying.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// NewPermanentError wraps err as non-retryable, tagged with the operation
// that produced it.
func NewPermanentError(op string, err error) *PermanentError {
	return &PermanentError{Op: op, Err: err}
}
