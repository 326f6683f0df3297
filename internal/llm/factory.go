package llm

import (
	"fmt"
	"strings"

	"github.com/Napageneral/journai/internal/config"
	"github.com/Napageneral/journai/internal/logger"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultLlamaCppURL = "http://localhost:8080"
)

// New builds the generator selected by cfg.Provider.
func New(cfg config.LLMConfig, log *logger.Logger) (Generator, error) {
	log = logger.OrNop(log)
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))

	switch provider {
	case "", "none", "disabled":
		log.Info("text generation disabled")
		return Disabled{}, nil

	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL), nil

	case "ollama", "llamacpp", "llama.cpp":
		// Both speak the OpenAI chat API under /v1; the key is ignored.
		base := cfg.BaseURL
		if base == "" {
			base = defaultOllamaURL
			if provider != "ollama" {
				base = defaultLlamaCppURL
			}
		}
		if !strings.HasSuffix(base, "/v1") {
			base = strings.TrimRight(base, "/") + "/v1"
		}
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = provider
		}
		log.Info("using OpenAI-compatible endpoint", "provider", provider, "base_url", base, "model", cfg.Model)
		return NewOpenAIClient(apiKey, cfg.Model, base), nil

	case "claude", "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("llm provider %s requires an api key", provider)
		}
		return NewClaudeClient(cfg.APIKey, cfg.Model, cfg.BaseURL), nil

	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("llm provider gemini requires an api key")
		}
		return NewGeminiClient(cfg.APIKey, cfg.Model, cfg.BaseURL), nil

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}
