// Package llm provides the generative backends that turn prompts into test
// code. Backends register a factory under their provider name; New picks one
// by configuration so adding a provider never touches the callers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownBackend is returned by New for an unregistered provider.
var ErrUnknownBackend = errors.New("unknown llm backend")

// DefaultSystemPrompt is sent when a request carries no system prompt.
const DefaultSystemPrompt = "You are an expert QA Automation Engineer."

// DefaultTemperature is used when Config.Temperature is zero.
const DefaultTemperature float32 = 0.2

// Request is one generation call.
type Request struct {
	Prompt       string
	SystemPrompt string
}

// Backend generates text from a prompt.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// Config selects and configures a backend.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	Temperature float32
	// BaseURL overrides the provider endpoint (proxies, tests).
	BaseURL string
}

// Factory builds a backend from configuration.
type Factory func(cfg Config) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a provider available to New. It panics on duplicates.
func Register(provider string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	key := strings.ToLower(provider)
	if _, dup := registry[key]; dup {
		panic("llm: Register called twice for provider " + provider)
	}
	registry[key] = f
}

// Providers returns the registered provider names, sorted.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the backend named by cfg.Provider.
func New(cfg Config) (Backend, error) {
	registryMu.RLock()
	f, ok := registry[strings.ToLower(strings.TrimSpace(cfg.Provider))]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownBackend, cfg.Provider, strings.Join(Providers(), ", "))
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	return f(cfg)
}

func systemPrompt(req Request) string {
	if req.SystemPrompt != "" {
		return req.SystemPrompt
	}
	return DefaultSystemPrompt
}
