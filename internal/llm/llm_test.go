package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cluvo-ai/cluvo/internal/model"
)

var testSchema = MustSchema("competitors", `{
	"type": "object",
	"required": ["competitors"],
	"properties": {
		"competitors": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name"],
				"properties": {"name": {"type": "string"}, "domain": {"type": "string"}}
			}
		}
	}
}`)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose", `Here you go: {"a":{"b":2}} hope it helps`, `{"a":{"b":2}}`},
		{"array", `result: [1,2,3].`, `[1,2,3]`},
		{"none", `no json here`, `no json here`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.in))
		})
	}
}

func TestSchemaValidate(t *testing.T) {
	assert.NoError(t, testSchema.Validate([]byte(`{"competitors":[{"name":"Gusto"}]}`)))
	assert.Error(t, testSchema.Validate([]byte(`{"competitors":[{"domain":"gusto.com"}]}`)))
	assert.Error(t, testSchema.Validate([]byte(`{"competitors":`)))

	var nilSchema *Schema
	assert.NoError(t, nilSchema.Validate([]byte(`[1]`)))
	assert.Error(t, nilSchema.Validate([]byte(`nope`)))
}

func TestNewSchema_Invalid(t *testing.T) {
	_, err := NewSchema("bad", `{"type":`)
	assert.Error(t, err)
}

func TestSchemaParse_Malformed(t *testing.T) {
	_, err := testSchema.parse("anthropic", `{"competitors":"none"}`)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindMalformed))
	assert.Equal(t, KindMalformed, KindOf(err))
}

func TestCompleteInto_RetriesMalformedOnce(t *testing.T) {
	calls := 0
	c := CompleterFunc(func(ctx context.Context, p Prompt, s *Schema) (json.RawMessage, error) {
		calls++
		if calls == 1 {
			return nil, Malformed("fake", errors.New("bad json"))
		}
		return json.RawMessage(`{"competitors":[{"name":"Gusto"}]}`), nil
	})

	type out struct {
		Competitors []struct{ Name string } `json:"competitors"`
	}
	got, err := CompleteInto[out](context.Background(), c, Prompt{}, testSchema)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, got.Competitors, 1)
	assert.Equal(t, "Gusto", got.Competitors[0].Name)
}

func TestCompleteInto_GivesUpAfterSecondMalformed(t *testing.T) {
	calls := 0
	c := CompleterFunc(func(ctx context.Context, p Prompt, s *Schema) (json.RawMessage, error) {
		calls++
		return nil, Malformed("fake", errors.New("bad json"))
	})
	_, err := CompleteInto[map[string]any](context.Background(), c, Prompt{}, nil)
	assert.True(t, IsKind(err, KindMalformed))
	assert.Equal(t, 2, calls)
}

func TestCompleteInto_RetriesLLMErrorOnce(t *testing.T) {
	for _, kind := range []Kind{KindQuota, KindTimeout, KindUnavailable} {
		t.Run(string(kind), func(t *testing.T) {
			calls := 0
			c := CompleterFunc(func(ctx context.Context, p Prompt, s *Schema) (json.RawMessage, error) {
				calls++
				if calls == 1 {
					return nil, &Error{Kind: kind, Provider: "fake", Err: errors.New("first")}
				}
				return json.RawMessage(`{"ok":true}`), nil
			})
			got, err := CompleteInto[map[string]any](context.Background(), c, Prompt{}, nil)
			require.NoError(t, err)
			assert.Equal(t, true, got["ok"])
			assert.Equal(t, 2, calls)
		})
	}
}

func TestCompleteInto_GivesUpAfterSecondQuota(t *testing.T) {
	calls := 0
	c := CompleterFunc(func(ctx context.Context, p Prompt, s *Schema) (json.RawMessage, error) {
		calls++
		return nil, &Error{Kind: KindQuota, Provider: "fake", Err: errors.New("429")}
	})
	_, err := CompleteInto[map[string]any](context.Background(), c, Prompt{}, nil)
	assert.True(t, IsKind(err, KindQuota))
	assert.Equal(t, 2, calls)
}

func TestCompleteInto_NoRetryWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	c := CompleterFunc(func(ctx context.Context, p Prompt, s *Schema) (json.RawMessage, error) {
		calls++
		cancel()
		return nil, &Error{Kind: KindTimeout, Provider: "fake", Err: context.Canceled}
	})
	_, err := CompleteInto[map[string]any](ctx, c, Prompt{}, nil)
	assert.True(t, IsKind(err, KindTimeout))
	assert.Equal(t, 1, calls)
}

func TestCompleteInto_UnclassifiedErrorNotRetried(t *testing.T) {
	calls := 0
	c := CompleterFunc(func(ctx context.Context, p Prompt, s *Schema) (json.RawMessage, error) {
		calls++
		return nil, errors.New("bug")
	})
	_, err := CompleteInto[map[string]any](context.Background(), c, Prompt{}, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCompleteInto_RetrySkipsCachedResponse(t *testing.T) {
	calls := 0
	next := CompleterFunc(func(ctx context.Context, p Prompt, s *Schema) (json.RawMessage, error) {
		calls++
		if calls == 1 {
			return json.RawMessage(`{"count":"three"}`), nil
		}
		return json.RawMessage(`{"count":3}`), nil
	})
	cached := NewCachedCompleter(next, 8, time.Minute)

	type out struct {
		Count int `json:"count"`
	}
	got, err := CompleteInto[out](context.Background(), cached, Prompt{User: "how many"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Count)
	assert.Equal(t, 2, calls)

	got, err = CompleteInto[out](context.Background(), cached, Prompt{User: "how many"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Count)
	assert.Equal(t, 2, calls)
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, KindQuota, classify(ctx, "x", 429, errors.New("too many")).Kind)
	assert.Equal(t, KindTimeout, classify(ctx, "x", 504, errors.New("gateway")).Kind)
	assert.Equal(t, KindUnavailable, classify(ctx, "x", 500, errors.New("boom")).Kind)
	assert.Equal(t, KindQuota, classify(ctx, "x", 0, errors.New("Error 429, RESOURCE_EXHAUSTED")).Kind)
	assert.Equal(t, KindTimeout, classify(ctx, "x", 0, context.DeadlineExceeded).Kind)

	inner := &Error{Kind: KindMalformed, Provider: "y", Err: errors.New("x")}
	assert.Same(t, inner, classify(ctx, "x", 0, inner))
}

func TestMeter(t *testing.T) {
	m := NewMeter()
	ctx := WithMeter(context.Background(), m)
	MeterFrom(ctx).Record("discovery", "haiku", model.TokenUsage{InputTokens: 100, OutputTokens: 10, Calls: 1})
	MeterFrom(ctx).Record("swot", "haiku", model.TokenUsage{InputTokens: 50, OutputTokens: 5, Calls: 1})
	MeterFrom(ctx).Record("swot", "sonar-pro", model.TokenUsage{InputTokens: 7, Calls: 1})

	assert.Equal(t, model.TokenUsage{InputTokens: 157, OutputTokens: 15, Calls: 3}, m.Total())
	assert.Equal(t, 150, m.ByModel()["haiku"].InputTokens)
	assert.Equal(t, 2, m.ByStage()["swot"].Calls)

	// A missing meter is a no-op.
	assert.Nil(t, MeterFrom(context.Background()))
	MeterFrom(context.Background()).Record("x", "y", model.TokenUsage{})
}

func TestProviderOf(t *testing.T) {
	assert.Equal(t, "unknown", ProviderOf(CompleterFunc(nil)))
	assert.Equal(t, "anthropic", ProviderOf(&AnthropicCompleter{}))
}
