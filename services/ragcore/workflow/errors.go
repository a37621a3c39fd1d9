package workflow

import "fmt"

// WorkflowExhausted is surfaced when retries are exhausted without ever
// producing an acceptable answer and no best-candidate exists — every
// iteration produced an empty or ungradable answer.
type WorkflowExhausted struct {
	QueryID    string
	LastCause  string
}

func (e *WorkflowExhausted) Error() string {
	return fmt.Sprintf("workflow %s exhausted retries with no usable candidate: %s", e.QueryID, e.LastCause)
}

// IsWorkflowExhausted reports whether err is a *WorkflowExhausted.
func IsWorkflowExhausted(err error) bool {
	_, ok := err.(*WorkflowExhausted)
	return ok
}

// WorkflowCancelled is surfaced on cooperative cancellation or wall-clock
// timeout. No FinalResponse is produced.
type WorkflowCancelled struct {
	QueryID string
	Reason  string
}

func (e *WorkflowCancelled) Error() string {
	return fmt.Sprintf("workflow %s cancelled: %s", e.QueryID, e.Reason)
}

// IsWorkflowCancelled reports whether err is a *WorkflowCancelled.
func IsWorkflowCancelled(err error) bool {
	_, ok := err.(*WorkflowCancelled)
	return ok
}

// ConfigurationError is surfaced when required configuration is missing,
// e.g. a knowledge-store URL when that backend is the only one available.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// IsConfigurationError reports whether err is a *ConfigurationError.
func IsConfigurationError(err error) bool {
	_, ok := err.(*ConfigurationError)
	return ok
}
