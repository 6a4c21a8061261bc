// Package caption generates captions for uploaded images. Two generators
// exist: the meme-api endpoint, which ignores the image, and a vision model
// reached through internal/llm.
package caption

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hurttlocker/memeverse/internal/llm"
	"github.com/hurttlocker/memeverse/internal/meme"
)

const (
	// DefaultEndpoint is the meme-api caption endpoint.
	DefaultEndpoint = "https://meme-api.com/generate"
	// Fallback is returned when the service answers without text.
	Fallback = "Generated Caption 🤖"

	providerMemeAPI = "meme-api"
)

// Generator produces a caption for an image.
type Generator interface {
	Generate(ctx context.Context, image []byte) (string, error)
	Name() string
}

// Config selects and configures a generator.
type Config struct {
	// Provider is "meme-api" (default) or an llm provider flag such as
	// "openrouter/openai/gpt-4o-mini".
	Provider string
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// New builds the generator named by cfg.Provider.
func New(cfg Config) (Generator, error) {
	p := strings.TrimSpace(cfg.Provider)
	if p == "" || strings.EqualFold(p, providerMemeAPI) {
		return NewMemeAPI(cfg.Endpoint, cfg.Timeout), nil
	}

	llmCfg, err := llm.ParseProviderFlag(p)
	if err != nil {
		return nil, fmt.Errorf("caption provider: %w", err)
	}
	llmCfg.APIKey = cfg.APIKey
	provider, err := llm.NewProvider(llmCfg)
	if err != nil {
		return nil, fmt.Errorf("caption provider: %w", err)
	}
	return NewLLM(provider), nil
}

// MemeAPI asks the meme-api service for a caption.
type MemeAPI struct {
	endpoint string
	client   *http.Client
}

// NewMemeAPI creates a meme-api generator. Empty endpoint selects DefaultEndpoint.
func NewMemeAPI(endpoint string, timeout time.Duration) *MemeAPI {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &MemeAPI{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

func (m *MemeAPI) Name() string { return providerMemeAPI }

// Generate returns the service's caption, or Fallback when it sends none.
func (m *MemeAPI) Generate(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", meme.Invalid("image", "upload an image first")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", m.endpoint, nil)
	if err != nil {
		return "", &meme.NetworkError{Op: "generate caption", Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", &meme.NetworkError{Op: "generate caption", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &meme.NetworkError{
			Op:  "generate caption",
			Err: fmt.Errorf("caption service returned %d: %s", resp.StatusCode, string(body)),
		}
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &meme.NetworkError{Op: "generate caption", Err: fmt.Errorf("decoding response: %w", err)}
	}
	if strings.TrimSpace(out.Text) == "" {
		return Fallback, nil
	}
	return out.Text, nil
}

const (
	captionSystem = "You write short, funny meme captions. Reply with the caption only, one line, no quotes."
	captionPrompt = "Write a meme caption for this image."
)

// LLM captions images with a vision-capable model.
type LLM struct {
	provider llm.Provider
}

// NewLLM wraps an llm provider.
func NewLLM(p llm.Provider) *LLM {
	return &LLM{provider: p}
}

func (l *LLM) Name() string { return l.provider.Name() }

// Generate asks the model for a one-line caption.
func (l *LLM) Generate(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", meme.Invalid("image", "upload an image first")
	}

	text, err := l.provider.Complete(ctx, captionPrompt, llm.CompletionOpts{
		System:      captionSystem,
		MaxTokens:   60,
		Temperature: 0.9,
		Image:       &llm.Image{Data: image},
	})
	if err != nil {
		return "", &meme.NetworkError{Op: "generate caption", Err: err}
	}

	text, _, _ = strings.Cut(text, "\n")
	text = strings.Trim(strings.TrimSpace(text), `"`)
	if text == "" {
		return Fallback, nil
	}
	return text, nil
}
