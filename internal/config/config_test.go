package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"APP_URL", "LLM_PROVIDER", "LLM_MODEL", "LLM_API_KEY", "LLM_BASE_URL", "LLM_TEMPERATURE",
	"HEALER_MAX_RETRIES", "LOG_LEVEL", "LOGS", "TESTS_PATH", "SCENARIOS_PATH", "STAGING_DIR",
	"AGENT_LOGS_PATH", "PROMPTS_PATH", "RUNNER_BIN", "RUNNER_TIMEOUT", "APP_WAIT_RETRIES",
	"APP_WAIT_INTERVAL", "BROWSER_BIN", "BROWSER_DEBUGGER_URL", "RESULTS_PATH",
}

// clearEnv unsets every recognized variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "http://localhost:3000", cfg.AppURL)
	assert.Equal(t, 3, cfg.Healer.MaxRetries)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, "tests", cfg.Paths.Tests)
	assert.Equal(t, filepath.Join("src", "prompts", "scenarios"), cfg.Paths.Scenarios)
	assert.Equal(t, 5*time.Minute, cfg.GetRunnerTimeout())
	assert.Equal(t, 2*time.Second, cfg.GetWaitInterval())
	assert.Equal(t, "3", cfg.Logging.Level)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().AppURL, cfg.AppURL)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "selfheal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_url: http://sut-app:3000
llm:
  provider: Gemini
  api_key: yaml-key
healer:
  max_retries: 5
paths:
  tests: e2e
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://sut-app:3000", cfg.AppURL)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 5, cfg.Healer.MaxRetries)
	assert.Equal(t, "e2e", cfg.Paths.Tests)
	assert.Equal(t, "npx", cfg.Runner.Bin, "unset keys keep defaults")
	require.NoError(t, cfg.Validate())
}

func TestLoadBadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "selfheal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unterminated"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_URL", "http://env:4000")
	t.Setenv("LLM_PROVIDER", "OpenAI")
	t.Setenv("LLM_API_KEY", "env-key")
	t.Setenv("LLM_TEMPERATURE", "0.7")
	t.Setenv("HEALER_MAX_RETRIES", "4")
	t.Setenv("RUNNER_TIMEOUT", "90s")
	t.Setenv("APP_WAIT_RETRIES", "2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://env:4000", cfg.AppURL)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "env-key", cfg.LLM.APIKey)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, 4, cfg.Healer.MaxRetries)
	assert.Equal(t, 90*time.Second, cfg.GetRunnerTimeout())
	assert.Equal(t, 2, cfg.Wait.Retries)
	assert.Empty(t, cfg.Warnings)
}

func TestResultsPath(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "test-results", cfg.Paths.Results)

	t.Setenv("RESULTS_PATH", "out/results")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "out/results", cfg.Paths.Results)
}

func TestEnvOverridesInvalidValuesWarn(t *testing.T) {
	clearEnv(t)
	t.Setenv("HEALER_MAX_RETRIES", "lots")
	t.Setenv("LLM_TEMPERATURE", "warm")
	t.Setenv("APP_WAIT_INTERVAL", "soon")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Healer.MaxRetries)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, "2s", cfg.Wait.Interval)
	assert.Len(t, cfg.Warnings, 3)
	assert.Contains(t, cfg.Warnings[0], "LLM_TEMPERATURE")
}

func TestLogLevelLegacyAlias(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOGS", "4")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "4", cfg.Logging.Level)

	t.Setenv("LOG_LEVEL", "1")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "1", cfg.Logging.Level, "LOG_LEVEL wins over LOGS")
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("LLM_PROVIDER=gemini\nLLM_API_KEY=dotenv-key\n"), 0o644))
	t.Chdir(dir)
	t.Setenv("LLM_API_KEY", "shell-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "shell-key", cfg.LLM.APIKey)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.ErrorContains(t, cfg.Validate(), "invalid LLM provider")

	cfg.LLM.Provider = "claude"
	assert.ErrorContains(t, cfg.Validate(), "invalid LLM provider")

	cfg.LLM.Provider = "openai"
	assert.ErrorContains(t, cfg.Validate(), "API key")

	cfg.LLM.APIKey = "k"
	cfg.Healer.MaxRetries = 0
	assert.ErrorContains(t, cfg.Validate(), "max retries")

	cfg.Healer.MaxRetries = 3
	assert.NoError(t, cfg.Validate())
}

func TestLLMBackendConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM = LLMConfig{Provider: "gemini", Model: "m", APIKey: "k", Temperature: 0.5, BaseURL: "http://x"}
	got := cfg.LLMBackendConfig()
	assert.Equal(t, "gemini", got.Provider)
	assert.Equal(t, "m", got.Model)
	assert.Equal(t, "k", got.APIKey)
	assert.Equal(t, "http://x", got.BaseURL)
}
