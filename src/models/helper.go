package models

import (
	"context"
	"fmt"
	"strings"
)

// ProviderConfig selects and configures a chat backend.
type ProviderConfig struct {
	Provider string
	Model    string
	APIKey   string
	// BaseURL overrides the API endpoint (OpenAI, Anthropic) or the Ollama host.
	BaseURL string
}

// NewChatModel returns the ChatModel for cfg.Provider.
func NewChatModel(ctx context.Context, cfg ProviderConfig) (ChatModel, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		return NewOpenAIModel(cfg.Model, cfg.APIKey, cfg.BaseURL), nil
	case "anthropic", "claude":
		return NewAnthropicModel(cfg.Model, cfg.APIKey, cfg.BaseURL), nil
	case "gemini", "google":
		return NewGeminiModel(ctx, cfg.Model, cfg.APIKey)
	case "ollama":
		return NewOllamaModel(cfg.Model, cfg.BaseURL)
	case "dummy":
		return NewDummyModel(""), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
