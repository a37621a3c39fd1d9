package retrieval

import "fmt"

// BackendTimeout is returned when a backend call exceeds its per-call
// timeout.
type BackendTimeout struct {
	SourceKind string
	Cause      error
}

func (e *BackendTimeout) Error() string {
	return fmt.Sprintf("retrieval backend %s timed out: %v", e.SourceKind, e.Cause)
}

func (e *BackendTimeout) Unwrap() error { return e.Cause }

// BackendUnavailable is returned when a backend's circuit breaker is open
// or the backend is otherwise unreachable.
type BackendUnavailable struct {
	SourceKind string
	Cause      error
}

func (e *BackendUnavailable) Error() string {
	return fmt.Sprintf("retrieval backend %s unavailable: %v", e.SourceKind, e.Cause)
}

func (e *BackendUnavailable) Unwrap() error { return e.Cause }

// BackendProtocolError is returned when a backend's response cannot be
// parsed into the expected contract.
type BackendProtocolError struct {
	SourceKind string
	Cause      error
}

func (e *BackendProtocolError) Error() string {
	return fmt.Sprintf("retrieval backend %s protocol error: %v", e.SourceKind, e.Cause)
}

func (e *BackendProtocolError) Unwrap() error { return e.Cause }
