package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/ragflow/services/ragcore/datatypes"
)

const (
	defaultOpenAIModel       = "gpt-4o-mini"
	defaultOpenAITemperature = 0.3
	defaultOpenAIMaxTokens   = 500
	openAIMaxAttempts        = 3
	openAIInitialBackoff     = 500 * time.Millisecond
)

// OpenAIOracle is the default Oracle backend, built on go-openai using
// JSON-object response mode for every structured call so the typed
// operations never fall back to free-text parsing.
type OpenAIOracle struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	apiKey      *memguard.Enclave
}

// NewOpenAIOracle builds an OpenAIOracle for model, loading the API key
// from secretPath (falling back to OPENAI_API_KEY). A temperature of 0 or
// maxTokens <= 0 takes the documented default.
func NewOpenAIOracle(model string, secretPath string, temperature float32, maxTokens int) (*OpenAIOracle, error) {
	enclave, err := loadAPIKey("OPENAI_API_KEY", secretPath)
	if err != nil {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set: %w", err)
	}

	key, buf, err := openKey(enclave)
	if err != nil {
		return nil, err
	}
	defer buf.Destroy()

	if model == "" {
		model = defaultOpenAIModel
		slog.Warn("oracle.model not set, defaulting", "model", model)
	}
	if temperature == 0 {
		temperature = defaultOpenAITemperature
	}
	if maxTokens <= 0 {
		maxTokens = defaultOpenAIMaxTokens
	}

	return &OpenAIOracle{
		client:      openai.NewClient(key),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		apiKey:      enclave,
	}, nil
}

// newOpenAIOracleWithClient builds an OpenAIOracle around a caller-supplied
// client, bypassing secret loading. Used by tests to point at a local
// httptest server.
func newOpenAIOracleWithClient(client *openai.Client, model string) *OpenAIOracle {
	return &OpenAIOracle{
		client:      client,
		model:       model,
		temperature: defaultOpenAITemperature,
		maxTokens:   defaultOpenAIMaxTokens,
	}
}

func (o *OpenAIOracle) resolveParams(p GenerationParams) (string, float32, int) {
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

// callJSON issues a chat completion in JSON-object mode and retries
// transport failures with exponential backoff. Parse failures are
// returned immediately as *OracleParseError, never retried.
func (o *OpenAIOracle) callJSON(ctx context.Context, operation, systemPrompt, userContent string, params GenerationParams) (string, error) {
	model, temp, maxTokens := o.resolveParams(params)

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userContent},
		},
		Temperature:         temp,
		MaxCompletionTokens: maxTokens,
		ResponseFormat:      &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	content, err := o.completeWithRetry(ctx, operation, req)
	if err != nil {
		return "", err
	}
	return content, nil
}

// callText issues a chat completion without JSON mode, for operations
// whose reply is plain text (rewrite, answer).
func (o *OpenAIOracle) callText(ctx context.Context, operation, systemPrompt, userContent string, params GenerationParams) (string, error) {
	model, temp, maxTokens := o.resolveParams(params)

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userContent},
		},
		Temperature:         temp,
		MaxCompletionTokens: maxTokens,
	}

	return o.completeWithRetry(ctx, operation, req)
}

func (o *OpenAIOracle) completeWithRetry(ctx context.Context, operation string, req openai.ChatCompletionRequest) (string, error) {
	backoff := openAIInitialBackoff
	var lastErr error

	for attempt := 1; attempt <= openAIMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		resp, err := o.client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", &OracleParseError{Operation: operation, Cause: fmt.Errorf("no choices returned")}
			}
			return resp.Choices[0].Message.Content, nil
		}

		lastErr = err
		slog.Warn("oracle transport call failed, retrying", "operation", operation, "attempt", attempt, "error", err)

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

func (o *OpenAIOracle) Rewrite(ctx context.Context, queryText string, hints []string, params GenerationParams) (string, error) {
	user := queryText
	if len(hints) > 0 {
		user = fmt.Sprintf("%s\n\nEnhancement hints:\n- %s", queryText, strings.Join(hints, "\n- "))
	}
	return o.callText(ctx, "rewrite", rewriteSystemPrompt, user, params)
}

func (o *OpenAIOracle) NeedsMoreInformation(ctx context.Context, queryText string, params GenerationParams) (NeedsMoreInfoResult, error) {
	raw, err := o.callJSON(ctx, "needs_more_information", needsMoreInfoSystemPrompt, queryText, params)
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

func (o *OpenAIOracle) ChooseSource(ctx context.Context, queryText string, params GenerationParams) (datatypes.SourceKind, error) {
	raw, err := o.callJSON(ctx, "choose_source", chooseSourceSystemPrompt, queryText, params)
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

func (o *OpenAIOracle) Answer(ctx context.Context, queryText string, compiledContext *datatypes.CompiledContext, params GenerationParams) (string, error) {
	user := fmt.Sprintf("Query: %s\n\nContext:\n%s", queryText, renderContext(compiledContext))
	return o.callText(ctx, "answer", answerSystemPrompt, user, params)
}

func (o *OpenAIOracle) Grade(ctx context.Context, queryText string, compiledContext *datatypes.CompiledContext, answerText string, params GenerationParams) (datatypes.GradingResult, error) {
	user := fmt.Sprintf("Query: %s\n\nContext:\n%s\n\nAnswer:\n%s", queryText, renderContext(compiledContext), answerText)
	raw, err := o.callJSON(ctx, "grade", gradeSystemPrompt, user, params)
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

func renderContext(cc *datatypes.CompiledContext) string {
	if cc == nil || len(cc.OrderedItems) == 0 {
		return "(no context retrieved)"
	}
	var b strings.Builder
	for i, item := range cc.OrderedItems {
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, item.SourceID, item.Text)
	}
	return b.String()
}
