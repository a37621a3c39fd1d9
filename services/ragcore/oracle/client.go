// Package oracle adapts an external LLM into the four typed operations the
// Workflow Engine drives: rewrite, needs-more-information, choose-source,
// answer, plus the grading call wrapped by the grading package.
//
// # Architecture
//
// The package follows the interface-first pattern used throughout this
// repository: Oracle defines the contract, OpenAIOracle and AnthropicOracle
// are interchangeable implementations selected by configuration. Neither
// implementation keeps state across calls.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; oracle clients are
// shared across workflow runs.
package oracle

import (
	"context"

	"github.com/AleutianAI/ragflow/services/ragcore/datatypes"
)

// GenerationParams configures a single oracle call.
//
// # Fields
//
//   - Model: LLM identifier. Empty uses the oracle's configured default.
//   - Temperature: Sampling temperature in [0,1]. Default 0.3 keeps
//     routing decisions (choose_source, needs_more_information) stable.
//   - MaxTokens: Maximum tokens to generate. Zero uses the configured
//     default.
type GenerationParams struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// NeedsMoreInfoResult is the typed reply from NeedsMoreInformation.
type NeedsMoreInfoResult struct {
	NeedsMoreInformation bool
	Reason               string
}

// Oracle exposes the four typed operations the Workflow Engine calls. Every
// call returns a strictly typed structure — implementations must not rely
// on free-text parsing past their own boundary (see SPEC_FULL §9).
//
// # Errors
//
// Every method returns *OracleParseError when the underlying model's reply
// cannot be parsed into the declared structure, and *OracleTransportError
// on network/IO failure after internal retries are exhausted. Parse
// failures are never retried internally; the caller (Workflow Engine)
// decides the conservative default to apply.
type Oracle interface {
	// Rewrite canonicalizes abbreviations, clarifies ambiguity, and
	// optionally incorporates accumulated loopback hints.
	Rewrite(ctx context.Context, queryText string, hints []string, params GenerationParams) (string, error)

	// NeedsMoreInformation decides whether the query requires retrieval
	// before it can be answered.
	NeedsMoreInformation(ctx context.Context, queryText string, params GenerationParams) (NeedsMoreInfoResult, error)

	// ChooseSource selects exactly one retrieval backend for the query.
	ChooseSource(ctx context.Context, queryText string, params GenerationParams) (datatypes.SourceKind, error)

	// Answer generates a response grounded in compiledContext.
	Answer(ctx context.Context, queryText string, compiledContext *datatypes.CompiledContext, params GenerationParams) (string, error)

	// Grade scores answerText against queryText and compiledContext on
	// the five-axis rubric. Callers normally reach this through the
	// grading package rather than directly.
	Grade(ctx context.Context, queryText string, compiledContext *datatypes.CompiledContext, answerText string, params GenerationParams) (datatypes.GradingResult, error)
}
