// Package llm talks to the optional extraction service used as the
// high-fidelity classification path.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Extract asks the model for a structured record describing the page
	Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// ExtractRequest contains the page to extract from
type ExtractRequest struct {
	URL     string
	Title   string
	Content string

	// AllowedTypes is the closed list of intervention types the model may return
	AllowedTypes []string

	// Prompt overrides the default prompt when set
	Prompt string

	Model     string
	MaxTokens int
}

// ExtractResponse is the raw model output
type ExtractResponse struct {
	Raw        string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	Model   string
	APIKey  string
	BaseURL string

	// Timeout for API requests in seconds
	Timeout int

	MaxTokens int

	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Timeout:   30,
		MaxTokens: 1500,
	}
}

// maxPromptContent bounds the page text sent to the model
const maxPromptContent = 12000

// SystemPrompt frames every extraction call
const SystemPrompt = "You extract structured records about youth justice programs from web pages. " +
	"Never invent facts that are not present in the source text. Prefer omission over guessing. " +
	"Respond with a single JSON object and nothing else."

// BuildPrompt constructs the default extraction prompt
func BuildPrompt(req ExtractRequest) string {
	content := req.Content
	if runes := []rune(content); len(runes) > maxPromptContent {
		content = string(runes[:maxPromptContent])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Source URL: %s\n", req.URL)
	if req.Title != "" {
		fmt.Fprintf(&b, "Page title: %s\n", req.Title)
	}
	b.WriteString(`
RULES:
1. Only use information stated in the page text below.
2. Leave a field out when the text does not state it.
3. "type" must be exactly one of:
`)
	for _, t := range req.AllowedTypes {
		fmt.Fprintf(&b, "   - %s\n", t)
	}
	b.WriteString(`4. "consent_level" is "Community Controlled" only when the page is published by or for an
   Aboriginal or Torres Strait Islander community organisation; then "cultural_authority"
   names that organisation. Otherwise use "Public Knowledge Commons".
5. "geography" lists Australian state codes (NSW, VIC, QLD, WA, SA, TAS, NT, ACT) or "National".

Return JSON with these keys:
{"name": "", "description": "", "type": "", "target_cohort": [], "geography": [],
 "consent_level": "", "cultural_authority": "", "operating_organization": "",
 "website": "", "contact_phone": "", "contact_email": "", "evidence_level": ""}

Page text:
`)
	b.WriteString(content)
	return b.String()
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
