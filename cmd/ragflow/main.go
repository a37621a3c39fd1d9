// Command ragflow is a single-shot caller of the Workflow Engine: it builds
// the six components from environment configuration, runs one query taken
// from argv, and prints the resulting FinalResponse as JSON. It exists to
// give the ragcore library a working example caller, not as a product
// surface — HTTP bindings, a UI, and interactive REPL behavior are
// explicitly out of scope.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/AleutianAI/ragflow/pkg/logging"
	"github.com/AleutianAI/ragflow/services/ragcore/compiler"
	"github.com/AleutianAI/ragflow/services/ragcore/config"
	"github.com/AleutianAI/ragflow/services/ragcore/grading"
	"github.com/AleutianAI/ragflow/services/ragcore/oracle"
	"github.com/AleutianAI/ragflow/services/ragcore/retrieval"
	"github.com/AleutianAI/ragflow/services/ragcore/session"
	"github.com/AleutianAI/ragflow/services/ragcore/workflow"
)

func main() {
	bootstrap := logging.New(logging.Config{Service: "ragflow", JSON: true})
	slog.SetDefault(bootstrap.Slog())

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: ragflow <query text>")
		os.Exit(2)
	}
	queryText := strings.Join(os.Args[1:], " ")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration failed to load", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogConfig())
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	engine, err := buildEngine(cfg)
	if err != nil {
		slog.Error("failed to wire ragcore components", "error", err)
		os.Exit(1)
	}

	resp, err := engine.Run(context.Background(), queryText)
	if err != nil {
		if workflow.IsWorkflowExhausted(err) {
			slog.Error("workflow exhausted its retries", "error", err)
			os.Exit(1)
		}
		if workflow.IsWorkflowCancelled(err) {
			slog.Error("workflow was cancelled", "error", err)
			os.Exit(1)
		}
		slog.Error("workflow run failed", "error", err)
		os.Exit(1)
	}

	encoded, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		slog.Error("failed to encode response", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(encoded))
}

func buildEngine(cfg *config.Config) (*workflow.Engine, error) {
	o, err := buildOracle(cfg)
	if err != nil {
		return nil, fmt.Errorf("building oracle: %w", err)
	}

	facade, err := buildRetrievalFacade(cfg)
	if err != nil {
		return nil, fmt.Errorf("building retrieval backends: %w", err)
	}

	comp := compiler.New(compiler.DefaultConfig())
	grader := grading.New(o, cfg.AcceptanceThreshold)
	store := session.New(session.SystemClock{}, 0)

	return workflow.NewEngine(o, facade, comp, grader, store, cfg.EngineConfig(), prometheus.DefaultRegisterer), nil
}

func buildOracle(cfg *config.Config) (oracle.Oracle, error) {
	switch cfg.OracleProvider {
	case "anthropic":
		return oracle.NewAnthropicOracle(cfg.OracleModel, cfg.OracleSecretPath, float32(cfg.OracleTemperature), cfg.OracleMaxTokens)
	default:
		return oracle.NewOpenAIOracle(cfg.OracleModel, cfg.OracleSecretPath, float32(cfg.OracleTemperature), cfg.OracleMaxTokens)
	}
}

func buildRetrievalFacade(cfg *config.Config) (*retrieval.Facade, error) {
	parsed, err := url.Parse(cfg.KnowledgeStoreURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid knowledge store URL %q: %w", cfg.KnowledgeStoreURL, err)
	}

	weaviateClient, err := weaviate.NewClient(weaviate.Config{Host: parsed.Host, Scheme: parsed.Scheme})
	if err != nil {
		return nil, fmt.Errorf("creating weaviate client: %w", err)
	}

	backends := []retrieval.Backend{
		retrieval.NewKnowledgeStoreBackend(weaviateClient, retrieval.KnowledgeStoreConfig{
			ClassName: cfg.KnowledgeStoreClassName,
			Timeout:   cfg.BackendTimeout(),
		}),
	}

	if cfg.WebAPIKey != "" {
		backends = append(backends, retrieval.NewWebBackend(cfg.WebSearchEndpoint, cfg.WebAPIKey, cfg.BackendTimeout()))
	} else {
		slog.Info("no web API key configured; running with knowledge-store retrieval only")
	}

	return retrieval.NewFacade(backends...), nil
}
