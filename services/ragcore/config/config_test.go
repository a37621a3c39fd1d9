package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ragflow/pkg/logging"
	"github.com/AleutianAI/ragflow/services/ragcore/workflow"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RAGFLOW_ORACLE_PROVIDER", "openai")
	t.Setenv("RAGFLOW_KNOWLEDGE_STORE_URL", "http://localhost:8080")
}

func TestLoad_AppliesDocumentedDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultOracleModel, cfg.OracleModel)
	assert.Equal(t, defaultOracleTemperature, cfg.OracleTemperature)
	assert.Equal(t, defaultOracleMaxTokens, cfg.OracleMaxTokens)
	assert.Equal(t, defaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, defaultAcceptanceThreshold, cfg.AcceptanceThreshold)
	assert.Equal(t, defaultWallClockTimeoutSeconds, cfg.WallClockTimeoutSeconds)
	assert.Equal(t, defaultKnowledgeStoreClassName, cfg.KnowledgeStoreClassName)
	assert.Equal(t, defaultBackendTimeoutSeconds, cfg.BackendTimeoutSeconds)
	assert.Equal(t, defaultLogLevel, cfg.LogLevel)
	assert.True(t, cfg.LogJSON)
}

func TestLoad_InvalidLogLevelSurfacesConfigurationError(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RAGFLOW_LOG_LEVEL", "trace")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, workflow.IsConfigurationError(err))
}

func TestLogConfig_MapsLevelAndService(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RAGFLOW_LOG_LEVEL", "debug")
	t.Setenv("RAGFLOW_LOG_JSON", "false")

	cfg, err := Load()
	require.NoError(t, err)

	logCfg := cfg.LogConfig()
	assert.Equal(t, logging.LevelDebug, logCfg.Level)
	assert.Equal(t, "ragflow", logCfg.Service)
	assert.False(t, logCfg.JSON)
}

func TestLoad_MissingKnowledgeStoreURLSurfacesConfigurationError(t *testing.T) {
	t.Setenv("RAGFLOW_ORACLE_PROVIDER", "openai")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, workflow.IsConfigurationError(err))
}

func TestLoad_AcceptanceThresholdOutOfBoundsSurfacesConfigurationError(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RAGFLOW_WORKFLOW_ACCEPTANCE_THRESHOLD", "1.5")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, workflow.IsConfigurationError(err))
}

func TestLoad_NegativeMaxRetriesSurfacesConfigurationError(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RAGFLOW_WORKFLOW_MAX_RETRIES", "-1")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, workflow.IsConfigurationError(err))
}

func TestLoad_WebAPIKeyWithoutEndpointSurfacesConfigurationError(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RAGFLOW_WEB_API_KEY", "secret")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, workflow.IsConfigurationError(err))
}

func TestLoad_UnknownOracleProviderSurfacesConfigurationError(t *testing.T) {
	t.Setenv("RAGFLOW_ORACLE_PROVIDER", "cohere")
	t.Setenv("RAGFLOW_KNOWLEDGE_STORE_URL", "http://localhost:8080")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, workflow.IsConfigurationError(err))
}

func TestLoad_InvalidIntegerEnvVarFallsBackToDefault(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RAGFLOW_WORKFLOW_MAX_RETRIES", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaultMaxRetries, cfg.MaxRetries)
}
