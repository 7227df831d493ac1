package gemini

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/freshloop/freshloop/internal/domain"
	"github.com/freshloop/freshloop/internal/llm"
)

const DefaultModel = "gemini-2.5-flash"

// Option adjusts the genai client configuration.
type Option func(*genai.ClientConfig)

// WithBaseURL points the client at a different API host.
func WithBaseURL(url string) Option {
	return func(c *genai.ClientConfig) { c.HTTPOptions.BaseURL = url }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *genai.ClientConfig) { c.HTTPClient = client }
}

// GeminiGenerator generates text with the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator returns a ConfigurationError when apiKey is empty. An empty
// model selects DefaultModel.
func NewGeminiGenerator(ctx context.Context, apiKey, model string, opts ...Option) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, &domain.ConfigurationError{Setting: "GEMINI_API_KEY", Reason: "not set"}
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Name() string { return "gemini" }

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", llm.UpstreamFailure(ctx, g.Name(), err)
	}
	return llm.CheckReply(g.Name(), resp.Text())
}
