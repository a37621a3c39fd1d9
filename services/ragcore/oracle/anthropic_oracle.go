package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AleutianAI/ragflow/services/ragcore/datatypes"
	"github.com/awnumar/memguard"
)

const (
	anthropicAPIVersion = "2023-06-01"
	anthropicBaseURL    = "https://api.anthropic.com/v1/messages"
)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float32            `json:"temperature,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Error   *anthropicError         `json:"error,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicOracle is the alternate Oracle backend for deployments that
// prefer Claude models. Selected when RAGFLOW_ORACLE_PROVIDER is "anthropic".
type AnthropicOracle struct {
	httpClient  *http.Client
	model       string
	temperature float32
	maxTokens   int
	apiKey      *memguard.Enclave
}

// NewAnthropicOracle builds an AnthropicOracle for model, loading the API
// key from secretPath (falling back to ANTHROPIC_API_KEY). A temperature
// of 0 or maxTokens <= 0 takes the documented default.
func NewAnthropicOracle(model, secretPath string, temperature float32, maxTokens int) (*AnthropicOracle, error) {
	enclave, err := loadAPIKey("ANTHROPIC_API_KEY", secretPath)
	if err != nil {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is missing: %w", err)
	}

	if model == "" {
		model = "claude-3-5-haiku-latest"
		slog.Warn("oracle.model not set, defaulting", "model", model)
	}
	if temperature == 0 {
		temperature = defaultOpenAITemperature
	}
	if maxTokens <= 0 {
		maxTokens = defaultOpenAIMaxTokens
	}

	return &AnthropicOracle{
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		apiKey:      enclave,
	}, nil
}

func (o *AnthropicOracle) resolveParams(p GenerationParams) (string, float32, int) {
	model := o.model
	if p.Model != "" {
		model = p.Model
	}
	temp := o.temperature
	if p.Temperature != 0 {
		temp = p.Temperature
	}
	maxTokens := o.maxTokens
	if p.MaxTokens != 0 {
		maxTokens = p.MaxTokens
	}
	return model, temp, maxTokens
}

func (o *AnthropicOracle) call(ctx context.Context, operation, systemPrompt, userContent string, params GenerationParams) (string, error) {
	model, temp, maxTokens := o.resolveParams(params)

	body := anthropicRequest{
		Model:       model,
		System:      systemPrompt,
		MaxTokens:   maxTokens,
		Temperature: temp,
		Messages:    []anthropicMessage{{Role: "user", Content: userContent}},
	}

	backoff := openAIInitialBackoff
	var lastErr error

	for attempt := 1; attempt <= openAIMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := o.doRequest(ctx, body)
		if err == nil {
			return text, nil
		}

		lastErr = err
		slog.Warn("anthropic oracle call failed, retrying", "operation", operation, "attempt", attempt, "error", err)

		if attempt == openAIMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return "", &OracleTransportError{Operation: operation, Attempts: openAIMaxAttempts, Cause: lastErr}
}

func (o *AnthropicOracle) doRequest(ctx context.Context, body anthropicRequest) (string, error) {
	key, buf, err := openKey(o.apiKey)
	if err != nil {
		return "", err
	}
	defer buf.Destroy()

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicBaseURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", key)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read anthropic response: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode anthropic response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("anthropic API error: %s", parsed.Error.Message)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("anthropic returned no content blocks")
	}
	return parsed.Content[0].Text, nil
}

func (o *AnthropicOracle) Rewrite(ctx context.Context, queryText string, hints []string, params GenerationParams) (string, error) {
	user := queryText
	if len(hints) > 0 {
		user = fmt.Sprintf("%s\n\nEnhancement hints:\n- %s", queryText, strings.Join(hints, "\n- "))
	}
	return o.call(ctx, "rewrite", rewriteSystemPrompt, user, params)
}

func (o *AnthropicOracle) NeedsMoreInformation(ctx context.Context, queryText string, params GenerationParams) (NeedsMoreInfoResult, error) {
	raw, err := o.call(ctx, "needs_more_information", needsMoreInfoSystemPrompt, queryText, params)
	if err != nil {
		return NeedsMoreInfoResult{}, err
	}
	var parsed struct {
		NeedsMoreInformation bool   `json:"needs_more_information"`
		Reason               string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return NeedsMoreInfoResult{}, &OracleParseError{Operation: "needs_more_information", RawReply: raw, Cause: err}
	}
	return NeedsMoreInfoResult{NeedsMoreInformation: parsed.NeedsMoreInformation, Reason: parsed.Reason}, nil
}

func (o *AnthropicOracle) ChooseSource(ctx context.Context, queryText string, params GenerationParams) (datatypes.SourceKind, error) {
	raw, err := o.call(ctx, "choose_source", chooseSourceSystemPrompt, queryText, params)
	if err != nil {
		return "", err
	}
	var parsed struct {
		Source string `json:"source"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", &OracleParseError{Operation: "choose_source", RawReply: raw, Cause: err}
	}
	switch datatypes.SourceKind(parsed.Source) {
	case datatypes.SourceKnowledgeStore, datatypes.SourceWeb, datatypes.SourceToolAPI:
		return datatypes.SourceKind(parsed.Source), nil
	default:
		return "", &OracleParseError{Operation: "choose_source", RawReply: raw, Cause: fmt.Errorf("unknown source tag %q", parsed.Source)}
	}
}

func (o *AnthropicOracle) Answer(ctx context.Context, queryText string, compiledContext *datatypes.CompiledContext, params GenerationParams) (string, error) {
	user := fmt.Sprintf("Query: %s\n\nContext:\n%s", queryText, renderContext(compiledContext))
	return o.call(ctx, "answer", answerSystemPrompt, user, params)
}

func (o *AnthropicOracle) Grade(ctx context.Context, queryText string, compiledContext *datatypes.CompiledContext, answerText string, params GenerationParams) (datatypes.GradingResult, error) {
	user := fmt.Sprintf("Query: %s\n\nContext:\n%s\n\nAnswer:\n%s", queryText, renderContext(compiledContext), answerText)
	raw, err := o.call(ctx, "grade", gradeSystemPrompt, user, params)
	if err != nil {
		return datatypes.GradingResult{}, err
	}
	var parsed struct {
		Relevancy      float64 `json:"relevancy"`
		Faithfulness   float64 `json:"faithfulness"`
		ContextQuality float64 `json:"context_quality"`
		Coherence      float64 `json:"coherence"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return datatypes.GradingResult{}, &OracleParseError{Operation: "grade", RawReply: raw, Cause: err}
	}
	return datatypes.GradingResult{
		Relevancy:      parsed.Relevancy,
		Faithfulness:   parsed.Faithfulness,
		ContextQuality: parsed.ContextQuality,
		Coherence:      parsed.Coherence,
	}, nil
}
