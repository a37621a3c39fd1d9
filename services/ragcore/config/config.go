// Package config loads the Oracle, Workflow Engine, and retrieval backend
// settings from the environment, the same fail-fast-at-startup posture the
// teacher's orchestrator.Config takes in services/orchestrator/orchestrator.go.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/ragflow/pkg/logging"
	"github.com/AleutianAI/ragflow/services/ragcore/workflow"
)

const (
	defaultOracleModel             = "gpt-4o-mini"
	defaultOracleTemperature       = 0.3
	defaultOracleMaxTokens         = 500
	defaultMaxRetries              = 2
	defaultAcceptanceThreshold     = 0.7
	defaultWallClockTimeoutSeconds = 300
	defaultBackendTimeoutSeconds   = 30
	defaultKnowledgeStoreClassName = "Document"
	defaultLogLevel                = "info"
)

var validate = validator.New()

// Config holds every environment-sourced setting the six components need
// to be constructed. Zero values are never passed to a component
// constructor uninspected — Load applies the documented defaults first.
type Config struct {
	OracleProvider    string `validate:"required,oneof=openai anthropic"`
	OracleModel       string `validate:"required"`
	OracleTemperature float64
	OracleMaxTokens   int `validate:"gt=0"`
	OracleSecretPath  string

	MaxRetries              int     `validate:"gte=0"`
	AcceptanceThreshold     float64 `validate:"gte=0,lte=1"`
	WallClockTimeoutSeconds int     `validate:"gt=0"`

	KnowledgeStoreURL       string `validate:"required,url"`
	KnowledgeStoreClassName string
	WebSearchEndpoint       string
	WebAPIKey               string
	BackendTimeoutSeconds   int `validate:"gt=0"`

	LogLevel string `validate:"oneof=debug info warn error"`
	LogJSON  bool
	LogDir   string
}

// Load reads every setting from its documented environment variable,
// applies defaults for anything unset, and validates bounds before
// returning. A violation surfaces as *workflow.ConfigurationError so
// callers can branch on it the same way they branch on the Workflow
// Engine's own error kinds.
func Load() (*Config, error) {
	cfg := &Config{
		OracleProvider:          getenv("RAGFLOW_ORACLE_PROVIDER", "openai"),
		OracleModel:             getenv("RAGFLOW_ORACLE_MODEL", defaultOracleModel),
		OracleTemperature:       getenvFloat("RAGFLOW_ORACLE_TEMPERATURE", defaultOracleTemperature),
		OracleMaxTokens:         getenvInt("RAGFLOW_ORACLE_MAX_TOKENS", defaultOracleMaxTokens),
		OracleSecretPath:        os.Getenv("RAGFLOW_ORACLE_SECRET_PATH"),
		MaxRetries:              getenvInt("RAGFLOW_WORKFLOW_MAX_RETRIES", defaultMaxRetries),
		AcceptanceThreshold:     getenvFloat("RAGFLOW_WORKFLOW_ACCEPTANCE_THRESHOLD", defaultAcceptanceThreshold),
		WallClockTimeoutSeconds: getenvInt("RAGFLOW_WORKFLOW_WALL_CLOCK_TIMEOUT_SECONDS", defaultWallClockTimeoutSeconds),
		KnowledgeStoreURL:       strings.Trim(os.Getenv("RAGFLOW_KNOWLEDGE_STORE_URL"), "\"' "),
		KnowledgeStoreClassName: getenv("RAGFLOW_KNOWLEDGE_STORE_CLASS_NAME", defaultKnowledgeStoreClassName),
		WebSearchEndpoint:       os.Getenv("RAGFLOW_WEB_SEARCH_ENDPOINT"),
		WebAPIKey:               os.Getenv("RAGFLOW_WEB_API_KEY"),
		BackendTimeoutSeconds:   getenvInt("RAGFLOW_BACKEND_TIMEOUT_SECONDS", defaultBackendTimeoutSeconds),
		LogLevel:                strings.ToLower(getenv("RAGFLOW_LOG_LEVEL", defaultLogLevel)),
		LogJSON:                 getenvBool("RAGFLOW_LOG_JSON", true),
		LogDir:                  os.Getenv("RAGFLOW_LOG_DIR"),
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, &workflow.ConfigurationError{
			Field:   firstInvalidField(err),
			Message: err.Error(),
		}
	}

	if _, err := url.ParseRequestURI(cfg.KnowledgeStoreURL); err != nil {
		return nil, &workflow.ConfigurationError{
			Field:   "RAGFLOW_KNOWLEDGE_STORE_URL",
			Message: fmt.Sprintf("not a valid URL: %v", err),
		}
	}

	if cfg.WebAPIKey == "" {
		slog.Info("RAGFLOW_WEB_API_KEY not set; web retrieval backend will be unavailable")
	} else if cfg.WebSearchEndpoint == "" {
		return nil, &workflow.ConfigurationError{
			Field:   "RAGFLOW_WEB_SEARCH_ENDPOINT",
			Message: "required when RAGFLOW_WEB_API_KEY is set",
		}
	}

	return cfg, nil
}

// EngineConfig projects the subset of Config the Workflow Engine consumes.
func (c *Config) EngineConfig() workflow.Config {
	return workflow.Config{
		MaxRetries:          c.MaxRetries,
		AcceptanceThreshold: c.AcceptanceThreshold,
		WallClockTimeout:    time.Duration(c.WallClockTimeoutSeconds) * time.Second,
	}
}

// BackendTimeout is the configured retrieval backend timeout as a
// time.Duration, for backends whose constructors take one directly.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutSeconds) * time.Second
}

// LogConfig projects the subset of Config pkg/logging's Logger consumes.
func (c *Config) LogConfig() logging.Config {
	level := logging.LevelInfo
	switch c.LogLevel {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	return logging.Config{
		Level:   level,
		LogDir:  c.LogDir,
		Service: "ragflow",
		JSON:    c.LogJSON,
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer environment variable, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid boolean environment variable, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return b
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("invalid float environment variable, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return f
}

func firstInvalidField(err error) string {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		return verrs[0].Field()
	}
	return "unknown"
}
