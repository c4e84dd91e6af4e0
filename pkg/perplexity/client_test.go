package perplexity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCompletion_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer pk", r.Header.Get("Authorization"))

		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sonar", req.Model)
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_schema", req.ResponseFormat.Type)
		assert.Equal(t, "object", req.ResponseFormat.JSONSchema.Schema["type"])

		_ = json.NewEncoder(w).Encode(ChatCompletionResponse{
			ID:        "r1",
			Choices:   []Choice{{Message: Message{Role: "assistant", Content: `{"competitors":[]}`}}},
			Citations: []string{"https://example.com"},
			Usage:     Usage{PromptTokens: 12, CompletionTokens: 4},
		})
	}))
	defer srv.Close()

	c := NewClient("pk", WithBaseURL(srv.URL), WithModel("sonar"))
	resp, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages:       []Message{{Role: "user", Content: "find competitors"}},
		ResponseFormat: JSONSchemaFormat(map[string]any{"type": "object"}),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"competitors":[]}`, resp.Text())
	assert.Equal(t, 12, resp.Usage.PromptTokens)
}

func TestChatCompletion_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"quota"}`))
	}))
	defer srv.Close()

	_, err := NewClient("pk", WithBaseURL(srv.URL)).ChatCompletion(context.Background(), ChatCompletionRequest{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
}

func TestChatCompletion_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("nope"))
	}))
	defer srv.Close()

	_, err := NewClient("pk", WithBaseURL(srv.URL)).ChatCompletion(context.Background(), ChatCompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestTextEmpty(t *testing.T) {
	var r *ChatCompletionResponse
	assert.Equal(t, "", r.Text())
	assert.Equal(t, "", (&ChatCompletionResponse{}).Text())
}
