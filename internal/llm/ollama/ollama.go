package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/freshloop/freshloop/internal/domain"
	"github.com/freshloop/freshloop/internal/llm"
)

// OllamaGenerator generates text with a local Ollama server.
type OllamaGenerator struct {
	host   string
	model  string
	client *http.Client
}

// NewOllamaGenerator talks to the Ollama server at host. Both host and model are required.
func NewOllamaGenerator(host, model string) (*OllamaGenerator, error) {
	if host == "" {
		return nil, &domain.ConfigurationError{Setting: "OLLAMA_HOST", Reason: "not set"}
	}
	if model == "" {
		return nil, &domain.ConfigurationError{Setting: "OLLAMA_MODEL", Reason: "not set"}
	}
	return &OllamaGenerator{
		host:   strings.TrimRight(host, "/"),
		model:  model,
		client: &http.Client{},
	}, nil
}

func (g *OllamaGenerator) Name() string { return "ollama" }

func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model":  g.model,
		"prompt": prompt,
		"stream": false,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.host+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", llm.UpstreamFailure(ctx, g.Name(), err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("failed to close ollama response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", llm.UpstreamFailure(ctx, g.Name(),
			fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, bytes.TrimSpace(errBody)))
	}

	var respBody struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return "", llm.UpstreamFailure(ctx, g.Name(), fmt.Errorf("failed to decode response: %w", err))
	}

	return llm.CheckReply(g.Name(), respBody.Response)
}
