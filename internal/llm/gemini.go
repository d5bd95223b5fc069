package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-1.5-pro"

func init() {
	Register("gemini", NewGemini)
}

// GeminiBackend calls the Gemini API through the genai SDK.
type GeminiBackend struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGemini creates a Gemini backend.
func NewGemini(cfg Config) (Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(context.Background(), clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiBackend{client: client, model: model, temperature: cfg.Temperature}, nil
}

// Name implements Backend.
func (g *GeminiBackend) Name() string { return "gemini" }

// Generate implements Backend.
func (g *GeminiBackend) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(g.temperature),
		SystemInstruction: genai.NewContentFromText(systemPrompt(req), genai.RoleUser),
	})
	if err != nil {
		return "", fmt.Errorf("gemini: generate content failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: response has no text")
	}
	return text, nil
}
