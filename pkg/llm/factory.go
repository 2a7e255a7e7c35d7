package llm

import (
	"fmt"
	"log/slog"

	"github.com/soypete/pedropost/pkg/config"
)

const (
	openAIBaseURL = "https://api.openai.com"
	ollamaBaseURL = "http://localhost:11434"
)

// NewBackend creates a client for the configured provider. The returned
// client serves both text and image generation.
func NewBackend(cfg *config.Config, logger *slog.Logger) (*ServerClient, error) {
	p := cfg.Provider

	baseURL := p.BaseURL
	switch p.Type {
	case "openai":
		if baseURL == "" {
			baseURL = openAIBaseURL
		}
	case "ollama":
		if baseURL == "" {
			baseURL = ollamaBaseURL
		}
	case "compatible":
		if baseURL == "" {
			return nil, fmt.Errorf("base_url is required for compatible provider")
		}
	default:
		return nil, fmt.Errorf("unknown provider type: %s (supported: openai, ollama, compatible)", p.Type)
	}

	return NewServerClient(ServerClientConfig{
		BaseURL:    baseURL,
		APIKey:     p.APIKey,
		ModelName:  p.ChatModel,
		ImageModel: p.ImageModel,
		Timeout:    cfg.ProviderTimeout(),
		MaxRetries: p.MaxRetries,
		Logger:     logger,
	}), nil
}

// NewTextBackend returns the backend used for post text. It is the shared
// server client unless text generation is moved to Anthropic.
func NewTextBackend(cfg *config.Config, server *ServerClient) (Backend, error) {
	p := cfg.Provider

	switch p.TextProvider {
	case "":
		return server, nil
	case "anthropic":
		if p.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic_api_key is required for the anthropic text provider")
		}
		return NewAnthropicClient(AnthropicClientConfig{
			APIKey:     p.AnthropicAPIKey,
			BaseURL:    p.AnthropicBaseURL,
			ModelName:  p.ChatModel,
			Timeout:    cfg.ProviderTimeout(),
			MaxRetries: p.MaxRetries,
		}), nil
	default:
		return nil, fmt.Errorf("unknown text provider: %s (supported: anthropic)", p.TextProvider)
	}
}
