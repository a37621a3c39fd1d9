package workflow

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ragflow/services/ragcore/compiler"
	"github.com/AleutianAI/ragflow/services/ragcore/datatypes"
	"github.com/AleutianAI/ragflow/services/ragcore/grading"
	"github.com/AleutianAI/ragflow/services/ragcore/oracle"
	"github.com/AleutianAI/ragflow/services/ragcore/retrieval"
	"github.com/AleutianAI/ragflow/services/ragcore/session"
)

type stubOracle struct {
	rewrite      func(string, []string) (string, error)
	needsInfo    func(string) (oracle.NeedsMoreInfoResult, error)
	chooseSource func(string) (datatypes.SourceKind, error)
	answer       func(string, *datatypes.CompiledContext) (string, error)
	grade        func(string, *datatypes.CompiledContext, string) (datatypes.GradingResult, error)
}

func (s *stubOracle) Rewrite(ctx context.Context, q string, hints []string, p oracle.GenerationParams) (string, error) {
	if s.rewrite != nil {
		return s.rewrite(q, hints)
	}
	return q, nil
}

func (s *stubOracle) NeedsMoreInformation(ctx context.Context, q string, p oracle.GenerationParams) (oracle.NeedsMoreInfoResult, error) {
	if s.needsInfo != nil {
		return s.needsInfo(q)
	}
	return oracle.NeedsMoreInfoResult{NeedsMoreInformation: true}, nil
}

func (s *stubOracle) ChooseSource(ctx context.Context, q string, p oracle.GenerationParams) (datatypes.SourceKind, error) {
	if s.chooseSource != nil {
		return s.chooseSource(q)
	}
	return datatypes.SourceKnowledgeStore, nil
}

func (s *stubOracle) Answer(ctx context.Context, q string, cc *datatypes.CompiledContext, p oracle.GenerationParams) (string, error) {
	if s.answer != nil {
		return s.answer(q, cc)
	}
	return "an answer", nil
}

func (s *stubOracle) Grade(ctx context.Context, q string, cc *datatypes.CompiledContext, a string, p oracle.GenerationParams) (datatypes.GradingResult, error) {
	if s.grade != nil {
		return s.grade(q, cc, a)
	}
	return datatypes.GradingResult{Relevancy: 0.9, Faithfulness: 0.9, ContextQuality: 0.9, Coherence: 0.9}, nil
}

type stubBackend struct {
	kind     datatypes.SourceKind
	retrieve func(ctx context.Context, queryText string, mode datatypes.RetrievalMode) datatypes.RetrievalResult
}

func (b *stubBackend) SourceKind() datatypes.SourceKind { return b.kind }

func (b *stubBackend) Retrieve(ctx context.Context, queryText string, mode datatypes.RetrievalMode) datatypes.RetrievalResult {
	if b.retrieve != nil {
		return b.retrieve(ctx, queryText, mode)
	}
	return datatypes.NewEmptyResult(b.kind, "stub backend returned nothing")
}

func newTestEngine(t *testing.T, o oracle.Oracle, backends ...retrieval.Backend) *Engine {
	t.Helper()
	facade := retrieval.NewFacade(backends...)
	comp := compiler.New(compiler.DefaultConfig())
	grader := grading.New(o, 0.7)
	store := session.New(nil, 0)
	return NewEngine(o, facade, comp, grader, store, Config{}, prometheus.NewRegistry())
}

func TestEngine_S1_HappyPath(t *testing.T) {
	backend := &stubBackend{
		kind: datatypes.SourceKnowledgeStore,
		retrieve: func(ctx context.Context, queryText string, mode datatypes.RetrievalMode) datatypes.RetrievalResult {
			return datatypes.RetrievalResult{
				SourceKind: datatypes.SourceKnowledgeStore,
				Items: []datatypes.ContextItem{
					{Text: "machine learning is a field of AI", SourceID: "doc-1", Score: 0.95},
				},
			}
		},
	}
	o := &stubOracle{}
	engine := newTestEngine(t, o, backend)

	resp, err := engine.Run(context.Background(), "What is machine learning?")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.GreaterOrEqual(t, resp.Confidence, 0.7)
	assert.NotEmpty(t, resp.Sources)
	assert.Equal(t, 1, resp.Metadata.QueryRewrites)
	assert.Equal(t, int(datatypes.NodeTerminalAccept), resp.Metadata.WorkflowCompletedAtNode)
}

func TestEngine_S2_RefinementLoop_FallsBackWithLowConfidence(t *testing.T) {
	backend := &stubBackend{kind: datatypes.SourceKnowledgeStore}
	o := &stubOracle{
		grade: func(q string, cc *datatypes.CompiledContext, a string) (datatypes.GradingResult, error) {
			return datatypes.GradingResult{Relevancy: 0.5, Faithfulness: 0.5, ContextQuality: 0.1, Coherence: 0.5}, nil
		},
	}
	engine := newTestEngine(t, o, backend)

	resp, err := engine.Run(context.Background(), "xyz nonsense")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Metadata.Degraded)
	assert.Equal(t, int(datatypes.NodeLoopbackOrTerminate), resp.Metadata.WorkflowCompletedAtNode)
	assert.Less(t, resp.Confidence, 0.7)
}

func TestEngine_S2_AllZeroGrades_SurfacesWorkflowExhausted(t *testing.T) {
	backend := &stubBackend{kind: datatypes.SourceKnowledgeStore}
	o := &stubOracle{
		grade: func(q string, cc *datatypes.CompiledContext, a string) (datatypes.GradingResult, error) {
			return datatypes.GradingResult{}, nil
		},
	}
	engine := newTestEngine(t, o, backend)

	resp, err := engine.Run(context.Background(), "xyz nonsense")
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.True(t, IsWorkflowExhausted(err))
}

func TestEngine_S3_SkipRetrieval_NoAnswerGenerated(t *testing.T) {
	o := &stubOracle{
		needsInfo: func(q string) (oracle.NeedsMoreInfoResult, error) {
			return oracle.NeedsMoreInfoResult{NeedsMoreInformation: false}, nil
		},
	}
	engine := newTestEngine(t, o)

	resp, err := engine.Run(context.Background(), "Say hello")
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.True(t, IsWorkflowExhausted(err))
}

func TestEngine_S4_WebFallback(t *testing.T) {
	webBackend := &stubBackend{
		kind: datatypes.SourceWeb,
		retrieve: func(ctx context.Context, queryText string, mode datatypes.RetrievalMode) datatypes.RetrievalResult {
			return datatypes.RetrievalResult{
				SourceKind: datatypes.SourceWeb,
				Items:      []datatypes.ContextItem{{Text: "2024 AI roundup", SourceID: "https://example.com/news", Score: 0.8}},
			}
		},
	}
	o := &stubOracle{
		chooseSource: func(q string) (datatypes.SourceKind, error) { return datatypes.SourceWeb, nil },
	}
	engine := newTestEngine(t, o, webBackend)

	resp, err := engine.Run(context.Background(), "latest AI news in 2024")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, datatypes.SourceWeb, resp.Metadata.RetrievalMethod)
	assert.Equal(t, int(datatypes.NodeTerminalAccept), resp.Metadata.WorkflowCompletedAtNode)
}

func TestEngine_S5_BackendFailure_NeverPropagatesPastN6(t *testing.T) {
	backend := &stubBackend{
		kind: datatypes.SourceKnowledgeStore,
		retrieve: func(ctx context.Context, queryText string, mode datatypes.RetrievalMode) datatypes.RetrievalResult {
			return datatypes.NewEmptyResult(datatypes.SourceKnowledgeStore, "simulated timeout")
		},
	}
	o := &stubOracle{}
	engine := newTestEngine(t, o, backend)

	resp, err := engine.Run(context.Background(), "What is X?")
	// Low context_quality on an empty CompiledContext routes to fallback or
	// exhaustion, but never a raw backend error.
	if err != nil {
		assert.True(t, IsWorkflowExhausted(err))
	} else {
		assert.NotNil(t, resp)
	}
}

func TestEngine_S6_Cancellation_YieldsNoFinalResponse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	backend := &stubBackend{
		kind: datatypes.SourceKnowledgeStore,
		retrieve: func(ctx context.Context, queryText string, mode datatypes.RetrievalMode) datatypes.RetrievalResult {
			cancel()
			return datatypes.RetrievalResult{SourceKind: datatypes.SourceKnowledgeStore, Items: []datatypes.ContextItem{{Text: "x", SourceID: "1", Score: 0.9}}}
		},
	}
	o := &stubOracle{}
	engine := newTestEngine(t, o, backend)

	resp, err := engine.Run(ctx, "What is X?")
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.True(t, IsWorkflowCancelled(err))
}

var legalEdges = map[[2]datatypes.Node]bool{
	{datatypes.NodeStart, datatypes.NodeRewriteQuery}:                       true,
	{datatypes.NodeRewriteQuery, datatypes.NodePublishQueryN3}:              true,
	{datatypes.NodePublishQueryN3, datatypes.NodeDecideNeedInfo}:            true,
	{datatypes.NodeDecideNeedInfo, datatypes.NodeChooseSource}:              true,
	{datatypes.NodeDecideNeedInfo, datatypes.NodeLoopbackOrTerminate}:       true,
	{datatypes.NodeChooseSource, datatypes.NodeRetrieve}:                    true,
	{datatypes.NodeRetrieve, datatypes.NodePublishContext}:                  true,
	{datatypes.NodePublishContext, datatypes.NodePublishQueryN8}:            true,
	{datatypes.NodePublishQueryN8, datatypes.NodeGenerateAnswer}:            true,
	{datatypes.NodeGenerateAnswer, datatypes.NodeDecideAnswerRelevant}:      true,
	{datatypes.NodeDecideAnswerRelevant, datatypes.NodeTerminalAccept}:      true,
	{datatypes.NodeDecideAnswerRelevant, datatypes.NodeLoopbackOrTerminate}: true,
	{datatypes.NodeLoopbackOrTerminate, datatypes.NodeRewriteQuery}:         true,
}

func TestEngine_BoundedWorkNodeLegalityMonotoneRetries_ViaSnapshots(t *testing.T) {
	backend := &stubBackend{kind: datatypes.SourceKnowledgeStore}
	o := &stubOracle{
		grade: func(q string, cc *datatypes.CompiledContext, a string) (datatypes.GradingResult, error) {
			return datatypes.GradingResult{Relevancy: 0.5, Faithfulness: 0.5, ContextQuality: 0.1, Coherence: 0.5}, nil
		},
	}
	facade := retrieval.NewFacade(backend)
	comp := compiler.New(compiler.DefaultConfig())
	grader := grading.New(o, 0.7)
	store := session.New(nil, 0)
	maxRetries := 2
	engine := NewEngine(o, facade, comp, grader, store, Config{MaxRetries: maxRetries}, prometheus.NewRegistry())
	engine.idGen = func() string { return "fixed-query-id" }

	var snapshots []datatypes.WorkflowState
	store.Subscribe("fixed-query-id", func(snapshot datatypes.WorkflowState) {
		snapshots = append(snapshots, snapshot)
	})

	resp, err := engine.Run(context.Background(), "xyz nonsense")
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.NotEmpty(t, snapshots)

	final := snapshots[len(snapshots)-1]

	bound := 9*(maxRetries+1) + 1
	assert.LessOrEqual(t, len(final.History), bound, "bounded work: history must not exceed 9*(max_retries+1)+1")

	prevRetry := -1
	for _, transition := range final.History {
		assert.True(t, legalEdges[[2]datatypes.Node{transition.FromNode, transition.ToNode}],
			"illegal edge %d -> %d", transition.FromNode, transition.ToNode)
	}
	for _, snapshot := range snapshots {
		assert.GreaterOrEqual(t, snapshot.RetryCount, prevRetry, "monotone retries: retry_count must never decrease")
		prevRetry = snapshot.RetryCount
	}
}

func TestEngine_SnapshotTotality_OneSnapshotPerTransition(t *testing.T) {
	backend := &stubBackend{
		kind: datatypes.SourceKnowledgeStore,
		retrieve: func(ctx context.Context, queryText string, mode datatypes.RetrievalMode) datatypes.RetrievalResult {
			return datatypes.RetrievalResult{
				SourceKind: datatypes.SourceKnowledgeStore,
				Items:      []datatypes.ContextItem{{Text: "x", SourceID: "1", Score: 0.9}},
			}
		},
	}
	o := &stubOracle{}
	engine := newTestEngine(t, o, backend)
	engine.idGen = func() string { return "fixed-query-id-2" }

	var snapshotCount int
	engine.store.Subscribe("fixed-query-id-2", func(snapshot datatypes.WorkflowState) {
		snapshotCount++
	})

	resp, err := engine.Run(context.Background(), "What is machine learning?")
	require.NoError(t, err)
	require.NotNil(t, resp)

	// Happy path visits 10 edges (N1->N2 through N10->N11); each transition
	// publishes exactly one snapshot.
	assert.Equal(t, 10, snapshotCount)
}

func TestEngine_BestCandidateFallback_OverallDominatesEveryIterationSeen(t *testing.T) {
	backend := &stubBackend{kind: datatypes.SourceKnowledgeStore}
	grades := []datatypes.GradingResult{
		{Relevancy: 0.3, Faithfulness: 0.3, ContextQuality: 0.3, Coherence: 0.3},
		{Relevancy: 0.6, Faithfulness: 0.6, ContextQuality: 0.6, Coherence: 0.6},
		{Relevancy: 0.45, Faithfulness: 0.45, ContextQuality: 0.45, Coherence: 0.45},
	}
	call := 0
	o := &stubOracle{
		grade: func(q string, cc *datatypes.CompiledContext, a string) (datatypes.GradingResult, error) {
			g := grades[call]
			if call < len(grades)-1 {
				call++
			}
			return g, nil
		},
	}
	engine := newTestEngine(t, o, backend)

	resp, err := engine.Run(context.Background(), "xyz nonsense")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Metadata.Degraded)
	// The highest overall observed (iteration 2, axes all 0.6) should win,
	// not the last iteration (axes all 0.45).
	assert.InDelta(t, 0.6, resp.Confidence, 1e-9)
}
