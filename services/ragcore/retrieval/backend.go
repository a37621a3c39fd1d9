// Package retrieval presents a uniform interface over the three retrieval
// source kinds (knowledge store, web search, tool/API), dispatching by
// source_kind tag rather than polymorphic method resolution on a base
// class, per the re-architecture guidance in SPEC_FULL §9.
package retrieval

import (
	"context"
	"strings"

	"github.com/AleutianAI/ragflow/services/ragcore/datatypes"
)

// Backend retrieves context items for one source kind. Implementations
// must honor the caller's context deadline and must never raise past
// their own boundary: on failure, they return a RetrievalResult with
// empty items and the failure cause recorded in RawMetadata.
type Backend interface {
	SourceKind() datatypes.SourceKind
	Retrieve(ctx context.Context, queryText string, mode datatypes.RetrievalMode) datatypes.RetrievalResult
}

// Facade dispatches retrieve calls to the registered Backend for a given
// source kind.
type Facade struct {
	backends map[datatypes.SourceKind]Backend
}

// NewFacade builds a Facade over the given backends, keyed by their own
// SourceKind().
func NewFacade(backends ...Backend) *Facade {
	f := &Facade{backends: make(map[datatypes.SourceKind]Backend, len(backends))}
	for _, b := range backends {
		f.backends[b.SourceKind()] = b
	}
	return f
}

// Retrieve dispatches to the backend registered for sourceKind. An
// unregistered source kind never raises past this boundary either: it
// yields an empty result with the cause noted in RawMetadata, consistent
// with every other backend failure mode.
func (f *Facade) Retrieve(ctx context.Context, queryText string, sourceKind datatypes.SourceKind, mode datatypes.RetrievalMode) datatypes.RetrievalResult {
	backend, ok := f.backends[sourceKind]
	if !ok {
		return datatypes.NewEmptyResult(sourceKind, "no backend registered for source kind")
	}
	return backend.Retrieve(ctx, queryText, mode)
}

// SelectMode chooses a knowledge-store retrieval mode from simple lexical
// heuristics on the query when the caller has not forced one: comparative
// terms select global, short "what is X" interrogatives select local,
// otherwise hybrid.
func SelectMode(queryText string) datatypes.RetrievalMode {
	lower := strings.ToLower(queryText)

	comparativeTerms := []string{"compare", " vs", " vs.", "versus", "differ"}
	for _, term := range comparativeTerms {
		if strings.Contains(lower, term) {
			return datatypes.ModeGlobal
		}
	}

	trimmed := strings.TrimSpace(lower)
	if strings.HasPrefix(trimmed, "what is ") || strings.HasPrefix(trimmed, "what's ") {
		words := strings.Fields(trimmed)
		if len(words) <= 6 {
			return datatypes.ModeLocal
		}
	}

	return datatypes.ModeHybrid
}
