package retrieval

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/AleutianAI/ragflow/services/ragcore/datatypes"
)

// ToolCallable is a registered external tool: a single string-in,
// string-out contract.
type ToolCallable func(ctx context.Context, query string) (string, error)

// ToolAPIBackend wraps a registered ToolCallable, returning a single
// ContextItem per invocation, source_id = tool name.
type ToolAPIBackend struct {
	name     string
	callable ToolCallable
	timeout  time.Duration
	breaker  *gobreaker.CircuitBreaker
}

func NewToolAPIBackend(name string, callable ToolCallable, timeout time.Duration) *ToolAPIBackend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "tool_api:" + name,
		MaxRequests: 2,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}

	return &ToolAPIBackend{
		name:     name,
		callable: callable,
		timeout:  timeout,
		breaker:  gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *ToolAPIBackend) SourceKind() datatypes.SourceKind {
	return datatypes.SourceToolAPI
}

func (b *ToolAPIBackend) Retrieve(ctx context.Context, queryText string, _ datatypes.RetrievalMode) datatypes.RetrievalResult {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.callable(ctx, queryText)
	})
	if err != nil {
		if ctx.Err() != nil {
			return datatypes.NewEmptyResult(datatypes.SourceToolAPI, (&BackendTimeout{SourceKind: "tool_api", Cause: err}).Error())
		}
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return datatypes.NewEmptyResult(datatypes.SourceToolAPI, (&BackendUnavailable{SourceKind: "tool_api", Cause: err}).Error())
		}
		return datatypes.NewEmptyResult(datatypes.SourceToolAPI, (&BackendProtocolError{SourceKind: "tool_api", Cause: err}).Error())
	}

	text := result.(string)
	return datatypes.RetrievalResult{
		SourceKind: datatypes.SourceToolAPI,
		Items: []datatypes.ContextItem{
			{Text: text, SourceID: b.name, Score: 1.0},
		},
	}
}
