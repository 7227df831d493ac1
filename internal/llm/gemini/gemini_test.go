package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshloop/freshloop/internal/domain"
)

func TestGeminiGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-2.5-flash:generateContent"), r.URL.Path)

		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "match these", req.Contents[0].Parts[0].Text)

		resp := map[string]interface{}{
			"candidates": []map[string]interface{}{{
				"content": map[string]interface{}{
					"role":  "model",
					"parts": []map[string]string{{"text": "```json\n{\"matches\":[]}\n```"}},
				},
				"finishReason": "STOP",
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	gen, err := NewGeminiGenerator(context.Background(), "test-key", "", WithBaseURL(server.URL))
	require.NoError(t, err)
	assert.Equal(t, "gemini", gen.Name())

	reply, err := gen.Generate(context.Background(), "match these")
	require.NoError(t, err)
	assert.Equal(t, "```json\n{\"matches\":[]}\n```", reply)
}

func TestNewGeminiGeneratorMissingKey(t *testing.T) {
	_, err := NewGeminiGenerator(context.Background(), "", DefaultModel)
	assert.True(t, domain.IsConfiguration(err))
}

func TestGeminiGenerateAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
	}))
	defer server.Close()

	gen, err := NewGeminiGenerator(context.Background(), "test-key", DefaultModel, WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "hi")
	ue, ok := domain.AsUpstream(err)
	require.True(t, ok)
	assert.Equal(t, "gemini", ue.Service)
	assert.False(t, ue.Timeout)
}
