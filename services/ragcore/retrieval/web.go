package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/AleutianAI/ragflow/services/ragcore/datatypes"
)

const defaultWebTopK = 5

// WebBackend issues a general web search and returns the top-k results as
// ContextItems, source_id = result URL. Gated on an API key being
// configured; an empty key disables the backend entirely, per spec.md §6.
type WebBackend struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	topK       int
	timeout    time.Duration
	breaker    *gobreaker.CircuitBreaker
}

type webSearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

type webSearchResponse struct {
	Results []webSearchResult `json:"results"`
}

func NewWebBackend(endpoint, apiKey string, timeout time.Duration) *WebBackend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "web",
		MaxRequests: 2,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}

	return &WebBackend{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		apiKey:     apiKey,
		topK:       defaultWebTopK,
		timeout:    timeout,
		breaker:    gobreaker.NewCircuitBreaker(settings),
	}
}

// Enabled reports whether the backend is usable, per spec.md §6's rule
// that an absent web_api_key disables the web backend.
func (b *WebBackend) Enabled() bool {
	return b.apiKey != ""
}

func (b *WebBackend) SourceKind() datatypes.SourceKind {
	return datatypes.SourceWeb
}

func (b *WebBackend) Retrieve(ctx context.Context, queryText string, _ datatypes.RetrievalMode) datatypes.RetrievalResult {
	if !b.Enabled() {
		return datatypes.NewEmptyResult(datatypes.SourceWeb, "web backend disabled: no API key configured")
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.search(ctx, queryText)
	})
	if err != nil {
		if ctx.Err() != nil {
			return datatypes.NewEmptyResult(datatypes.SourceWeb, (&BackendTimeout{SourceKind: "web", Cause: err}).Error())
		}
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return datatypes.NewEmptyResult(datatypes.SourceWeb, (&BackendUnavailable{SourceKind: "web", Cause: err}).Error())
		}
		return datatypes.NewEmptyResult(datatypes.SourceWeb, (&BackendProtocolError{SourceKind: "web", Cause: err}).Error())
	}

	items := result.([]datatypes.ContextItem)
	return datatypes.RetrievalResult{SourceKind: datatypes.SourceWeb, Items: items}
}

func (b *WebBackend) search(ctx context.Context, queryText string) ([]datatypes.ContextItem, error) {
	reqURL := fmt.Sprintf("%s?q=%s&key=%s", b.endpoint, url.QueryEscape(queryText), url.QueryEscape(b.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build web search request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed webSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode web search response: %w", err)
	}

	limit := b.topK
	if len(parsed.Results) < limit {
		limit = len(parsed.Results)
	}

	items := make([]datatypes.ContextItem, 0, limit)
	for i := 0; i < limit; i++ {
		r := parsed.Results[i]
		items = append(items, datatypes.ContextItem{
			Text:     r.Snippet,
			SourceID: r.URL,
			Score:    1.0 - float64(i)*0.1,
		})
	}
	return items, nil
}
