// Package grading wraps the LLM Oracle's grade operation and enforces the
// rubric contract: bounds validation, derivation of needs_improvement, and
// the recommendation rule.
package grading

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/ragflow/services/ragcore/datatypes"
	"github.com/AleutianAI/ragflow/services/ragcore/oracle"
)

var validate = validator.New()

// Grader produces a validated GradingResult from an Oracle's raw reply.
type Grader struct {
	oracle              oracle.Oracle
	acceptanceThreshold float64
}

func New(o oracle.Oracle, acceptanceThreshold float64) *Grader {
	return &Grader{oracle: o, acceptanceThreshold: acceptanceThreshold}
}

// Grade scores answerText and derives needs_improvement / recommendation.
// An oracle reply that fails [0,1] bounds validation is treated as a
// recoverable failure (spec.md §7): the conservative zero grade is
// returned instead of surfacing an error.
func (g *Grader) Grade(ctx context.Context, queryText string, compiledContext *datatypes.CompiledContext, answerText string, lastRetrievalSource datatypes.SourceKind, params oracle.GenerationParams) datatypes.GradingResult {
	result, err := g.oracle.Grade(ctx, queryText, compiledContext, answerText, params)
	if err != nil {
		return datatypes.ZeroGrade(fmt.Sprintf("oracle grading call failed: %v", err))
	}

	if err := validate.Struct(result); err != nil {
		return datatypes.ZeroGrade(fmt.Sprintf("oracle grading reply out of bounds: %v", err))
	}

	result.Overall = overall(result)
	result.NeedsImprovement = result.Overall < g.acceptanceThreshold
	result.Recommendation = recommend(result, lastRetrievalSource)
	if result.NeedsImprovement {
		result.ImprovementReason = improvementReason(result)
	}

	return result
}

// overall computes the mean of the four axes, clamped so it never exceeds
// min(axes) + 0.1 — the spec's only hard bound on the aggregate.
func overall(r datatypes.GradingResult) float64 {
	axes := []float64{r.Relevancy, r.Faithfulness, r.ContextQuality, r.Coherence}
	min := axes[0]
	sum := 0.0
	for _, a := range axes {
		sum += a
		if a < min {
			min = a
		}
	}
	mean := sum / float64(len(axes))
	ceiling := min + 0.1
	if mean > ceiling {
		return ceiling
	}
	return mean
}

// recommend derives the next-action recommendation from whichever axis
// scored lowest, per the derivation table in spec.md §4.4.
func recommend(r datatypes.GradingResult, lastRetrievalSource datatypes.SourceKind) datatypes.Recommendation {
	if !r.NeedsImprovement {
		return datatypes.RecommendAccept
	}

	lowest, axis := r.ContextQuality, "context_quality"
	if r.Relevancy < lowest {
		lowest, axis = r.Relevancy, "relevancy"
	}
	if r.Faithfulness < lowest {
		lowest, axis = r.Faithfulness, "faithfulness"
	}
	if r.Coherence < lowest {
		lowest, axis = r.Coherence, "coherence"
	}

	switch axis {
	case "context_quality":
		if lastRetrievalSource == datatypes.SourceKnowledgeStore {
			return datatypes.RecommendRetryRetrieval
		}
		return datatypes.RecommendWebSearch
	case "relevancy":
		return datatypes.RecommendClarifyQuery
	case "faithfulness":
		return datatypes.RecommendRetryRetrieval
	case "coherence":
		return datatypes.RecommendRegenerateAnswer
	default:
		return datatypes.RecommendAccept
	}
}

func improvementReason(r datatypes.GradingResult) string {
	switch r.Recommendation {
	case datatypes.RecommendRetryRetrieval:
		return "retrieved context was insufficient or unfaithful to support the answer"
	case datatypes.RecommendWebSearch:
		return "knowledge store context was insufficient; broader web retrieval may help"
	case datatypes.RecommendClarifyQuery:
		return "the answer did not adequately address the rewritten query"
	case datatypes.RecommendRegenerateAnswer:
		return "the answer was incoherent or poorly structured; regenerating from the same context may help"
	default:
		return "answer quality below acceptance threshold"
	}
}
