package ai

import (
	"context"
	"errors"

	"github.com/kozaktomas/face-registry/internal/config"
)

// ErrNoProvider is returned by NewProvider when no LLM is configured.
var ErrNoProvider = errors.New("no AI provider configured")

// Provider answers free-form questions about the registry.
type Provider interface {
	Name() string
	// Answer replies to question using registrySummary as the only source
	// of facts.
	Answer(ctx context.Context, question, registrySummary string) (string, error)

	// Usage tracking.
	GetUsage() *Usage
	ResetUsage()
}

// Usage tracks token usage.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// NewProvider returns the first configured provider: OpenAI, then Gemini,
// then Ollama when a model is set.
func NewProvider(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch {
	case cfg.OpenAI.Token != "":
		return NewOpenAIProvider(cfg.OpenAI.Token, cfg.OpenAI.Model), nil
	case cfg.Gemini.APIKey != "":
		return NewGeminiProvider(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	case cfg.Ollama.Model != "" && cfg.Ollama.URL != "":
		return NewOllamaProvider(cfg.Ollama.URL, cfg.Ollama.Model), nil
	default:
		return nil, ErrNoProvider
	}
}
