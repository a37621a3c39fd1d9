package workflow

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/ragflow/services/ragcore/datatypes"
	"github.com/AleutianAI/ragflow/services/ragcore/oracle"
	"github.com/AleutianAI/ragflow/services/ragcore/retrieval"
)

// needNoLoopbackHint is the fixed hint appended when N12 loops back from an
// N4 NO decision — N4 produced no GradingResult to derive a reason from.
const needNoLoopbackHint = "the prior rewrite did not surface a retrieval need; reformulate for concreteness"

// nodeRewriteQuery is N2. On oracle failure the query text is left
// unmodified; the workflow keeps making progress rather than surfacing the
// failure, consistent with the "recovered locally" error posture (spec.md
// §7).
func (e *Engine) nodeRewriteQuery(ctx context.Context, state *datatypes.WorkflowState) error {
	if ctx.Err() != nil {
		return errCancelled
	}
	ctx, span := workflowTracer.Start(ctx, "ragcore.workflow.n2_rewrite_query")
	defer span.End()

	start := time.Now()
	rewritten, err := e.oracle.Rewrite(ctx, state.Query.CurrentText, state.Query.EnhancementHints, e.params())
	e.observeLatency("n2_rewrite_query", start)

	if ctx.Err() != nil {
		return errCancelled
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rewrite failed; keeping prior query text")
		return nil
	}
	state.Query.CurrentText = rewritten
	return nil
}

// nodeDecideNeedInfo is N4. OracleTransportError/OracleParseError apply the
// conservative default YES so the workflow proceeds toward retrieval
// instead of stalling.
func (e *Engine) nodeDecideNeedInfo(ctx context.Context, state *datatypes.WorkflowState) (datatypes.Decision, error) {
	if ctx.Err() != nil {
		return "", errCancelled
	}
	ctx, span := workflowTracer.Start(ctx, "ragcore.workflow.n4_decide_need_info")
	defer span.End()

	start := time.Now()
	result, err := e.oracle.NeedsMoreInformation(ctx, state.Query.CurrentText, e.params())
	e.observeLatency("n4_decide_need_info", start)

	if ctx.Err() != nil {
		return "", errCancelled
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "needs_more_information failed; conservative default YES")
		return datatypes.DecisionYes, nil
	}

	span.SetAttributes(attribute.Bool("needs_more_information", result.NeedsMoreInformation))
	if result.NeedsMoreInformation {
		return datatypes.DecisionYes, nil
	}
	return datatypes.DecisionNo, nil
}

// nodeChooseSource is N5. A failed choose_source call defaults to the
// knowledge store, mirroring the hybrid-defaulting guidance for unparseable
// tagged-union replies (SPEC_FULL §9).
func (e *Engine) nodeChooseSource(ctx context.Context, state *datatypes.WorkflowState) (datatypes.SourceKind, error) {
	if ctx.Err() != nil {
		return "", errCancelled
	}
	ctx, span := workflowTracer.Start(ctx, "ragcore.workflow.n5_choose_source")
	defer span.End()

	start := time.Now()
	source, err := e.oracle.ChooseSource(ctx, state.Query.CurrentText, e.params())
	e.observeLatency("n5_choose_source", start)

	if ctx.Err() != nil {
		return "", errCancelled
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "choose_source failed; defaulting to knowledge_store")
		return datatypes.SourceKnowledgeStore, nil
	}

	span.SetAttributes(attribute.String("source_kind", string(source)))
	return source, nil
}

// nodeRetrieve is N6. Backend failures never propagate past the façade;
// an empty RetrievalResult simply flows into a thin CompiledContext that
// N10 will typically reject.
func (e *Engine) nodeRetrieve(ctx context.Context, state *datatypes.WorkflowState, source datatypes.SourceKind) (datatypes.RetrievalResult, error) {
	if ctx.Err() != nil {
		return datatypes.RetrievalResult{}, errCancelled
	}
	ctx, span := workflowTracer.Start(ctx, "ragcore.workflow.n6_retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("source_kind", string(source)))

	mode := retrieval.SelectMode(state.Query.CurrentText)
	start := time.Now()
	result := e.backends.Retrieve(ctx, state.Query.CurrentText, source, mode)
	e.observeLatency("n6_retrieve", start)

	if ctx.Err() != nil {
		return datatypes.RetrievalResult{}, errCancelled
	}

	state.LastRetrievalSource = source
	span.SetAttributes(attribute.Int("retrieval.item_count", len(result.Items)))
	return result, nil
}

// nodeGenerateAnswer is N9. On oracle failure it returns a degraded empty
// answer rather than surfacing an error; the grader will score it on its
// own merits, typically routing back through N12.
func (e *Engine) nodeGenerateAnswer(ctx context.Context, state *datatypes.WorkflowState, cc *datatypes.CompiledContext) (answer string, degraded bool, cancelled error) {
	if ctx.Err() != nil {
		return "", false, errCancelled
	}
	ctx, span := workflowTracer.Start(ctx, "ragcore.workflow.n9_generate_answer")
	defer span.End()

	start := time.Now()
	text, err := e.oracle.Answer(ctx, state.Query.CurrentText, cc, e.params())
	e.observeLatency("n9_generate_answer", start)

	if ctx.Err() != nil {
		return "", false, errCancelled
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "answer generation failed")
		return "", true, nil
	}
	return text, false, nil
}

// nodeDecideAnswerRelevant is N10. The Quality Grader already applies the
// conservative NO default internally (datatypes.ZeroGrade sets
// NeedsImprovement=true) when the underlying oracle.Grade call fails, so
// no separate failure branch is needed here.
func (e *Engine) nodeDecideAnswerRelevant(ctx context.Context, state *datatypes.WorkflowState, cc *datatypes.CompiledContext, answerText string) (datatypes.GradingResult, datatypes.Decision, error) {
	if ctx.Err() != nil {
		return datatypes.GradingResult{}, "", errCancelled
	}
	ctx, span := workflowTracer.Start(ctx, "ragcore.workflow.n10_decide_answer_relevant")
	defer span.End()

	start := time.Now()
	grade := e.grader.Grade(ctx, state.Query.CurrentText, cc, answerText, state.LastRetrievalSource, e.params())
	e.observeLatency("n10_decide_answer_relevant", start)

	if ctx.Err() != nil {
		return datatypes.GradingResult{}, "", errCancelled
	}

	span.SetAttributes(attribute.Float64("grading.overall", grade.Overall))
	if grade.NeedsImprovement {
		return grade, datatypes.DecisionNo, nil
	}
	return grade, datatypes.DecisionYes, nil
}

func (e *Engine) params() oracle.GenerationParams {
	return oracle.GenerationParams{}
}
