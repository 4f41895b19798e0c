package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/alma/internal/model"
)

// NewProvider creates a new LLM provider based on configuration.
// An empty provider name disables extraction and returns nil.
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)
	case "anthropic", "claude":
		return NewAnthropicProvider(config)
	case "ollama":
		return NewOllamaProvider(config)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// ConfigFromModel builds an llm.Config from application config.
// Proxy settings are shared with the page fetcher.
func ConfigFromModel(cfg model.Config) Config {
	return Config{
		Provider:   cfg.LLM.Provider,
		Model:      cfg.LLM.Model,
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Timeout:    cfg.LLM.Timeout,
		MaxTokens:  cfg.LLM.MaxTokens,
		HTTPProxy:  cfg.Fetch.HTTPProxy,
		HTTPSProxy: cfg.Fetch.HTTPSProxy,
		NoProxy:    cfg.Fetch.NoProxy,
	}
}

func (c Config) timeoutOr(seconds int) int {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return seconds
}

func (c Config) maxTokensFor(req ExtractRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 1500
}

func promptFor(req ExtractRequest) string {
	if req.Prompt != "" {
		return req.Prompt
	}
	return BuildPrompt(req)
}
