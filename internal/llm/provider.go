// Package llm adapts hosted vision-capable language models for caption
// generation. Providers speak their REST APIs over net/http.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// Provider completes a prompt, optionally grounded on an image.
type Provider interface {
	Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error)
	// Name returns "<provider>/<model>", e.g. "openrouter/openai/gpt-4o-mini".
	Name() string
}

// Image is inline image input.
type Image struct {
	Data     []byte
	MIMEType string // sniffed from Data when empty
}

func (i *Image) mimeType() string {
	if i.MIMEType != "" {
		return i.MIMEType
	}
	return http.DetectContentType(i.Data)
}

// CompletionOpts configures a single completion request.
type CompletionOpts struct {
	MaxTokens   int     // 0 = provider default
	Temperature float64 // 0.0-2.0
	System      string
	Image       *Image
}

// Config holds provider configuration.
type Config struct {
	Provider string // "google", "openrouter"
	Model    string
	APIKey   string // empty = read from env
	BaseURL  string
}

const (
	defaultOpenRouterModel = "openai/gpt-4o-mini"
	defaultGoogleModel     = "gemini-2.5-flash"
)

// NewProvider creates a provider from cfg.
func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openrouter":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENROUTER_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("openrouter provider requires OPENROUTER_API_KEY")
		}
		model := cfg.Model
		if model == "" {
			model = defaultOpenRouterModel
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://openrouter.ai/api/v1"
		}
		return &openrouterProvider{apiKey: key, model: model, baseURL: baseURL}, nil

	case "google":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("GEMINI_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("google provider requires GEMINI_API_KEY")
		}
		model := cfg.Model
		if model == "" {
			model = defaultGoogleModel
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://generativelanguage.googleapis.com/v1beta"
		}
		return &googleProvider{apiKey: key, model: model, baseURL: baseURL}, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: openrouter, google)", cfg.Provider)
	}
}

// ParseProviderFlag parses "provider/model", e.g. "openrouter/openai/gpt-4o-mini"
// or "google/gemini-2.5-flash". A bare provider name selects its default model.
func ParseProviderFlag(flag string) (Config, error) {
	provider, model, _ := strings.Cut(strings.TrimSpace(flag), "/")
	provider = strings.ToLower(provider)

	switch provider {
	case "openrouter":
		if model == "" {
			model = defaultOpenRouterModel
		}
	case "google":
		if model == "" {
			model = defaultGoogleModel
		}
	case "":
		return Config{}, fmt.Errorf("empty provider: expected provider/model (e.g., openrouter/openai/gpt-4o-mini)")
	default:
		return Config{}, fmt.Errorf("unknown provider %q (supported: openrouter, google)", provider)
	}
	return Config{Provider: provider, Model: model}, nil
}
