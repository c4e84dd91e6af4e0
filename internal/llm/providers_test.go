package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/cluvo-ai/cluvo/pkg/anthropic"
	"github.com/cluvo-ai/cluvo/pkg/perplexity"
)

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text, stop string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: stop,
		Usage:      anthropic.TokenUsage{InputTokens: 200, OutputTokens: 30, CacheReadInputTokens: 150},
	}
}

func TestAnthropicCompleter_Success(t *testing.T) {
	client := &mockAnthropic{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			len(req.System) == 1 && req.System[0].CacheControl != nil &&
			req.Temperature != nil && *req.Temperature == 0.3
	})).Return(textResponse("```json\n{\"competitors\":[{\"name\":\"Gusto\"}]}\n```", "end_turn"), nil)

	c := NewAnthropicCompleter(client, "claude-haiku-4-5-20251001", 1024, 0.3, time.Second)
	meter := NewMeter()
	raw, err := c.Complete(WithMeter(context.Background(), meter),
		Prompt{Stage: "discovery", System: "You are an analyst.", User: "Find competitors"}, testSchema)

	require.NoError(t, err)
	assert.JSONEq(t, `{"competitors":[{"name":"Gusto"}]}`, string(raw))
	usage := meter.ByStage()["discovery"]
	assert.Equal(t, 200, usage.InputTokens)
	assert.Equal(t, 150, usage.CacheReadTokens)
	assert.Equal(t, 1, usage.Calls)
	client.AssertExpectations(t)
}

func TestAnthropicCompleter_ErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		resp *anthropic.MessageResponse
		err  error
		want Kind
	}{
		{"quota", nil, &anthropic.StatusError{StatusCode: 429, Err: errors.New("rate limited")}, KindQuota},
		{"overloaded", nil, &anthropic.StatusError{StatusCode: 529, Err: errors.New("overloaded")}, KindUnavailable},
		{"timeout", nil, context.DeadlineExceeded, KindTimeout},
		{"schema mismatch", textResponse(`{"competitors":[{}]}`, "end_turn"), nil, KindMalformed},
		{"truncated", textResponse(`{"competitors":[`, "max_tokens"), nil, KindMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockAnthropic{}
			if tt.resp != nil {
				client.On("CreateMessage", mock.Anything, mock.Anything).Return(tt.resp, nil)
			} else {
				client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, tt.err)
			}
			c := NewAnthropicCompleter(client, "m", 64, 0, 0)
			_, err := c.Complete(context.Background(), Prompt{User: "x"}, testSchema)
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err))
		})
	}
}

type fakeGenerator struct {
	resp   *genai.GenerateContentResponse
	err    error
	config *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, _ string, _ []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.config = config
	return f.resp, f.err
}

func TestGeminiCompleter(t *testing.T) {
	gen := &fakeGenerator{resp: &genai.GenerateContentResponse{
		Candidates:    []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: `{"competitors":[{"name":"Rippling"}]}`}}}}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 80, CandidatesTokenCount: 20},
	}}
	c := &GeminiCompleter{models: gen, model: "gemini-2.5-flash"}
	meter := NewMeter()

	raw, err := c.Complete(WithMeter(context.Background(), meter), Prompt{Stage: "swot", System: "sys", User: "u"}, testSchema)
	require.NoError(t, err)
	assert.JSONEq(t, `{"competitors":[{"name":"Rippling"}]}`, string(raw))
	assert.Equal(t, "application/json", gen.config.ResponseMIMEType)
	require.NotNil(t, gen.config.SystemInstruction)
	assert.Equal(t, 80, meter.ByModel()["gemini-2.5-flash"].InputTokens)
}

func TestGeminiCompleter_Errors(t *testing.T) {
	c := &GeminiCompleter{models: &fakeGenerator{err: errors.New("Error 429, Status: RESOURCE_EXHAUSTED")}, model: "g"}
	_, err := c.Complete(context.Background(), Prompt{}, nil)
	assert.Equal(t, KindQuota, KindOf(err))

	c = &GeminiCompleter{models: &fakeGenerator{resp: &genai.GenerateContentResponse{}}, model: "g"}
	_, err = c.Complete(context.Background(), Prompt{}, nil)
	assert.Equal(t, KindMalformed, KindOf(err))
}

func TestPerplexityCompleter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req perplexity.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_schema", req.ResponseFormat.Type)
		assert.Equal(t, "system", req.Messages[0].Role)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": `{"competitors":[{"name":"Deel"}]}`}}},
			"usage":   map[string]any{"prompt_tokens": 12, "completion_tokens": 8},
		})
	}))
	defer srv.Close()

	c := NewPerplexityCompleter(perplexity.NewClient("k", perplexity.WithBaseURL(srv.URL)), "sonar-pro")
	meter := NewMeter()
	raw, err := c.Complete(WithMeter(context.Background(), meter), Prompt{System: "s", User: "u", Stage: "discovery"}, testSchema)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Deel")
	assert.Equal(t, 8, meter.Total().OutputTokens)
}

func TestPerplexityCompleter_Quota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewPerplexityCompleter(perplexity.NewClient("k", perplexity.WithBaseURL(srv.URL)), "sonar-pro")
	_, err := c.Complete(context.Background(), Prompt{User: "u"}, testSchema)
	assert.Equal(t, KindQuota, KindOf(err))
}

func TestCachedCompleter(t *testing.T) {
	calls := 0
	next := CompleterFunc(func(ctx context.Context, p Prompt, s *Schema) (json.RawMessage, error) {
		calls++
		if p.User == "fail" {
			return nil, &Error{Kind: KindUnavailable, Err: errors.New("down")}
		}
		return json.RawMessage(`{"competitors":[]}`), nil
	})
	c := NewCachedCompleter(next, 8, time.Minute)
	ctx := context.Background()

	_, err := c.Complete(ctx, Prompt{User: "a"}, testSchema)
	require.NoError(t, err)
	_, err = c.Complete(ctx, Prompt{User: "a"}, testSchema)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	temp := 0.9
	_, _ = c.Complete(ctx, Prompt{User: "a", Temperature: &temp}, testSchema)
	assert.Equal(t, 2, calls)

	_, err = c.Complete(ctx, Prompt{User: "fail"}, testSchema)
	assert.Error(t, err)
	_, _ = c.Complete(ctx, Prompt{User: "fail"}, testSchema)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 2, c.Len())
}

func TestFallbackCompleter(t *testing.T) {
	secondaryCalls := 0
	secondary := CompleterFunc(func(ctx context.Context, p Prompt, s *Schema) (json.RawMessage, error) {
		secondaryCalls++
		return json.RawMessage(`{"ok":true}`), nil
	})

	quota := CompleterFunc(func(ctx context.Context, p Prompt, s *Schema) (json.RawMessage, error) {
		return nil, &Error{Kind: KindQuota, Err: errors.New("429")}
	})
	raw, err := NewFallbackCompleter(quota, secondary).Complete(context.Background(), Prompt{}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
	assert.Equal(t, 1, secondaryCalls)

	malformed := CompleterFunc(func(ctx context.Context, p Prompt, s *Schema) (json.RawMessage, error) {
		return nil, Malformed("p", errors.New("bad"))
	})
	_, err = NewFallbackCompleter(malformed, secondary).Complete(context.Background(), Prompt{}, nil)
	assert.True(t, IsKind(err, KindMalformed))
	assert.Equal(t, 1, secondaryCalls)
}
