package claude

import (
	"context"
	"net/http"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/freshloop/freshloop/internal/domain"
	"github.com/freshloop/freshloop/internal/llm"
)

const DefaultModel = "claude-sonnet-4-5"

// maxTokens comfortably covers a batch reply of a few dozen match objects.
const maxTokens = 4096

// ClaudeGenerator generates text with the Anthropic Messages API.
type ClaudeGenerator struct {
	client *anthropic.Client
	model  string
}

// Option adjusts the Anthropic client.
type Option = anthropic.ClientOption

func WithBaseURL(url string) Option { return anthropic.WithBaseURL(url) }

func WithHTTPClient(client *http.Client) Option { return anthropic.WithHTTPClient(client) }

// NewClaudeGenerator returns a ConfigurationError when apiKey is empty.
func NewClaudeGenerator(apiKey, model string, opts ...Option) (*ClaudeGenerator, error) {
	if apiKey == "" {
		return nil, &domain.ConfigurationError{Setting: "CLAUDE_API_KEY", Reason: "not set"}
	}
	if model == "" {
		model = DefaultModel
	}
	return &ClaudeGenerator{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
	}, nil
}

func (g *ClaudeGenerator) Name() string { return "claude" }

func (g *ClaudeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(g.model),
		Messages:  []anthropic.Message{anthropic.NewUserTextMessage(prompt)},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", llm.UpstreamFailure(ctx, g.Name(), err)
	}

	var sb strings.Builder
	for _, c := range resp.Content {
		if c.Type == anthropic.MessagesContentTypeText {
			sb.WriteString(c.GetText())
		}
	}
	return llm.CheckReply(g.Name(), sb.String())
}
