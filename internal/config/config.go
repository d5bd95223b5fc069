package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"selfheal/internal/llm"
)

// DefaultFile is the configuration file looked up when no path is given.
const DefaultFile = "selfheal.yaml"

// DotEnvFile is loaded from the working directory before env overrides.
var DotEnvFile = ".env"

// Config holds all selfheal configuration.
type Config struct {
	// AppURL is the target application the tests run against.
	AppURL string `yaml:"app_url"`

	LLM     LLMConfig     `yaml:"llm"`
	Healer  HealerConfig  `yaml:"healer"`
	Paths   PathsConfig   `yaml:"paths"`
	Runner  RunnerConfig  `yaml:"runner"`
	Wait    WaitConfig    `yaml:"wait"`
	Browser BrowserConfig `yaml:"browser"`
	Logging LoggingConfig `yaml:"logging"`

	// Warnings collects ignored settings. The CLI logs them once the logger
	// exists.
	Warnings []string `yaml:"-"`
}

// LLMConfig configures the generative backend.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai, gemini
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Temperature float32 `yaml:"temperature"`
	BaseURL     string  `yaml:"base_url"`
}

// HealerConfig configures the repair loop.
type HealerConfig struct {
	MaxRetries int `yaml:"max_retries"`
}

// PathsConfig locates the scenario tree, artifacts and scratch space.
type PathsConfig struct {
	Tests     string `yaml:"tests"`
	Scenarios string `yaml:"scenarios"`
	Staging   string `yaml:"staging"`
	AgentLogs string `yaml:"agent_logs"`
	// Results is the runner's per-test output directory (screenshots, videos).
	Results string `yaml:"results"`
	// Prompts optionally overrides the embedded prompt templates.
	Prompts string `yaml:"prompts"`
}

// RunnerConfig configures the external test runner.
type RunnerConfig struct {
	Bin     string `yaml:"bin"`
	Timeout string `yaml:"timeout"`
}

// WaitConfig configures the target readiness wait.
type WaitConfig struct {
	Retries  int    `yaml:"retries"`
	Interval string `yaml:"interval"`
}

// BrowserConfig configures snapshot capture.
type BrowserConfig struct {
	Bin         string `yaml:"bin"`
	DebuggerURL string `yaml:"debugger_url"`
	Headless    bool   `yaml:"headless"`
}

// LoggingConfig holds the raw verbosity level, 0 (none) to 5 (verbose).
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		AppURL: "http://localhost:3000",

		LLM: LLMConfig{
			Temperature: llm.DefaultTemperature,
		},

		Healer: HealerConfig{
			MaxRetries: 3,
		},

		Paths: PathsConfig{
			Tests:     "tests",
			Scenarios: filepath.Join("src", "prompts", "scenarios"),
			Staging:   ".playwright-staging",
			AgentLogs: "agent-logs",
			Results:   "test-results",
		},

		Runner: RunnerConfig{
			Bin:     "npx",
			Timeout: "5m",
		},

		Wait: WaitConfig{
			Retries:  10,
			Interval: "2s",
		},

		Browser: BrowserConfig{
			Headless: true,
		},

		Logging: LoggingConfig{
			Level: "3",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (a
// missing file is not an error), the .env file and the environment, in that
// order of increasing precedence.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// godotenv.Load never replaces variables that are already set.
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", DotEnvFile, err)
	}

	cfg.applyEnvOverrides()
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. Values that do not
// parse are skipped and recorded in Warnings.
func (c *Config) applyEnvOverrides() {
	setString(&c.AppURL, "APP_URL")

	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	if raw := os.Getenv("LLM_TEMPERATURE"); raw != "" {
		v, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			c.warn("LLM_TEMPERATURE", raw)
		} else {
			c.LLM.Temperature = float32(v)
		}
	}

	c.setInt(&c.Healer.MaxRetries, "HEALER_MAX_RETRIES")

	// LOGS is the legacy name.
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		c.Logging.Level = raw
	} else if raw := os.Getenv("LOGS"); raw != "" {
		c.Logging.Level = raw
	}

	setString(&c.Paths.Tests, "TESTS_PATH")
	setString(&c.Paths.Scenarios, "SCENARIOS_PATH")
	setString(&c.Paths.Staging, "STAGING_DIR")
	setString(&c.Paths.AgentLogs, "AGENT_LOGS_PATH")
	setString(&c.Paths.Prompts, "PROMPTS_PATH")
	setString(&c.Paths.Results, "RESULTS_PATH")

	setString(&c.Runner.Bin, "RUNNER_BIN")
	c.setDuration(&c.Runner.Timeout, "RUNNER_TIMEOUT")

	c.setInt(&c.Wait.Retries, "APP_WAIT_RETRIES")
	c.setDuration(&c.Wait.Interval, "APP_WAIT_INTERVAL")

	setString(&c.Browser.Bin, "BROWSER_BIN")
	setString(&c.Browser.DebuggerURL, "BROWSER_DEBUGGER_URL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) setInt(dst *int, key string) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < 0 {
		c.warn(key, raw)
		return
	}
	*dst = v
}

func (c *Config) setDuration(dst *string, key string) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	if _, err := time.ParseDuration(raw); err != nil {
		c.warn(key, raw)
		return
	}
	*dst = raw
}

func (c *Config) warn(key, raw string) {
	c.Warnings = append(c.Warnings, fmt.Sprintf("ignoring invalid %s=%q", key, raw))
}

// GetRunnerTimeout returns the runner timeout as a duration.
func (c *Config) GetRunnerTimeout() time.Duration {
	d, err := time.ParseDuration(c.Runner.Timeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// GetWaitInterval returns the readiness poll interval as a duration.
func (c *Config) GetWaitInterval() time.Duration {
	d, err := time.ParseDuration(c.Wait.Interval)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// LLMBackendConfig converts the LLM section for llm.New.
func (c *Config) LLMBackendConfig() llm.Config {
	return llm.Config{
		Provider:    c.LLM.Provider,
		Model:       c.LLM.Model,
		APIKey:      c.LLM.APIKey,
		Temperature: c.LLM.Temperature,
		BaseURL:     c.LLM.BaseURL,
	}
}

// Validate checks the settings needed to generate tests.
func (c *Config) Validate() error {
	providers := llm.Providers()
	if !slices.Contains(providers, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider %q (set LLM_PROVIDER to one of %v)", c.LLM.Provider, providers)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set LLM_API_KEY)")
	}
	if c.Healer.MaxRetries < 1 {
		return fmt.Errorf("healer max retries must be at least 1, got %d", c.Healer.MaxRetries)
	}
	if c.AppURL == "" {
		return fmt.Errorf("app url not configured (set APP_URL)")
	}
	return nil
}
