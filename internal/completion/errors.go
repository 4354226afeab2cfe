package completion

import "fmt"

// #region error
// Error is the single error kind surfaced by the completion boundary.
// Transport failures, timeouts, non-2xx statuses and malformed or empty
// bodies all map here; the cause is preserved for unwrapping.
type Error struct {
	Op    string // "request" | "complete" | "stream"
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("completion failed (%s): %v", e.Op, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// #endregion error
