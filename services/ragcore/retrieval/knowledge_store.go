package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/AleutianAI/ragflow/services/ragcore/datatypes"
)

// KnowledgeStoreBackend retrieves context items from a Weaviate instance.
// The three modes spec.md §4.2 defines map onto native Weaviate search
// types: local -> NearText (concept-vector, narrow), global -> BM25
// (lexical, broad recall), hybrid -> Hybrid (the default, blending both).
type KnowledgeStoreBackend struct {
	client    *weaviate.Client
	className string
	topK      int
	timeout   time.Duration
	breaker   *gobreaker.CircuitBreaker
}

// KnowledgeStoreConfig configures the backend.
type KnowledgeStoreConfig struct {
	ClassName string
	TopK      int
	Timeout   time.Duration
}

func NewKnowledgeStoreBackend(client *weaviate.Client, cfg KnowledgeStoreConfig) *KnowledgeStoreBackend {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "knowledge_store",
		MaxRequests: 2,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}

	return &KnowledgeStoreBackend{
		client:    client,
		className: cfg.ClassName,
		topK:      cfg.TopK,
		timeout:   cfg.Timeout,
		breaker:   gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *KnowledgeStoreBackend) SourceKind() datatypes.SourceKind {
	return datatypes.SourceKnowledgeStore
}

func (b *KnowledgeStoreBackend) Retrieve(ctx context.Context, queryText string, mode datatypes.RetrievalMode) datatypes.RetrievalResult {
	if mode == "" {
		mode = SelectMode(queryText)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.query(ctx, queryText, mode)
	})
	if err != nil {
		if ctx.Err() != nil {
			return datatypes.NewEmptyResult(datatypes.SourceKnowledgeStore, (&BackendTimeout{SourceKind: "knowledge_store", Cause: err}).Error())
		}
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return datatypes.NewEmptyResult(datatypes.SourceKnowledgeStore, (&BackendUnavailable{SourceKind: "knowledge_store", Cause: err}).Error())
		}
		return datatypes.NewEmptyResult(datatypes.SourceKnowledgeStore, (&BackendProtocolError{SourceKind: "knowledge_store", Cause: err}).Error())
	}

	items := result.([]datatypes.ContextItem)
	return datatypes.RetrievalResult{
		SourceKind: datatypes.SourceKnowledgeStore,
		Items:      items,
	}
}

func (b *KnowledgeStoreBackend) query(ctx context.Context, queryText string, mode datatypes.RetrievalMode) ([]datatypes.ContextItem, error) {
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "certainty"},
			{Name: "score"},
		}},
	}

	builder := b.client.GraphQL().Get().
		WithClassName(b.className).
		WithFields(fields...).
		WithLimit(b.topK)

	switch mode {
	case datatypes.ModeLocal:
		nearText := b.client.GraphQL().NearTextArgBuilder().WithConcepts([]string{queryText})
		builder = builder.WithNearText(nearText)
	case datatypes.ModeGlobal:
		bm25 := b.client.GraphQL().Bm25ArgBuilder().WithQuery(queryText)
		builder = builder.WithBM25(bm25)
	default:
		hybrid := b.client.GraphQL().HybridArgumentBuilder().WithQuery(queryText)
		builder = builder.WithHybrid(hybrid)
	}

	resp, err := builder.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate query failed: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate returned GraphQL errors: %v", resp.Errors)
	}

	return parseKnowledgeStoreResponse(resp, b.className, mode)
}
