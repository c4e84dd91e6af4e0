// Package llm is the structured-completion capability used by every stage
// that asks a language model for data. A Completer returns raw JSON that
// has already been checked against the caller's Schema; anything else is
// reported as an *Error with a Kind the stages can branch on.
package llm

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/cluvo-ai/cluvo/internal/model"
)

// Prompt is one structured request.
type Prompt struct {
	// Stage labels the request for usage attribution ("discovery", "swot", ...).
	Stage  string
	System string
	User   string
	// Temperature overrides the completer default when non-nil.
	Temperature *float64
}

// Completer produces JSON that satisfies schema.
type Completer interface {
	Complete(ctx context.Context, p Prompt, schema *Schema) (json.RawMessage, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, p Prompt, schema *Schema) (json.RawMessage, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, p Prompt, schema *Schema) (json.RawMessage, error) {
	return f(ctx, p, schema)
}

// Named is implemented by completers that can report their provider.
type Named interface {
	Provider() string
}

// ProviderOf returns the provider name of c, or "unknown".
func ProviderOf(c Completer) string {
	if n, ok := c.(Named); ok {
		return n.Provider()
	}
	return "unknown"
}

// CompleteInto runs c and decodes the result into T. Any classified LLM
// failure is retried once, bypassing the response cache, unless ctx is
// already done.
func CompleteInto[T any](ctx context.Context, c Completer, p Prompt, schema *Schema) (T, error) {
	var out T
	var err error
	callCtx := ctx
	for attempt := 0; attempt < 2; attempt++ {
		var raw json.RawMessage
		raw, err = c.Complete(callCtx, p, schema)
		if err == nil {
			if uerr := json.Unmarshal(raw, &out); uerr != nil {
				err = Malformed(ProviderOf(c), uerr)
			} else {
				return out, nil
			}
		}
		if KindOf(err) == "" || ctx.Err() != nil {
			break
		}
		callCtx = WithoutCache(ctx)
	}
	return out, err
}

// extractJSON trims prose and code fences around the first JSON value in s.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

// Meter accumulates token usage per model. A Meter travels in the context
// so every completer call made on behalf of one run is attributed to it.
type Meter struct {
	mu      sync.Mutex
	byModel map[string]model.TokenUsage
	byStage map[string]model.TokenUsage
}

// NewMeter creates an empty Meter.
func NewMeter() *Meter {
	return &Meter{byModel: map[string]model.TokenUsage{}, byStage: map[string]model.TokenUsage{}}
}

// Record adds one call's usage.
func (m *Meter) Record(stage, modelID string, u model.TokenUsage) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mu := m.byModel[modelID]
	mu.Add(u)
	m.byModel[modelID] = mu
	su := m.byStage[stage]
	su.Add(u)
	m.byStage[stage] = su
}

// ByModel returns a copy of the per-model usage.
func (m *Meter) ByModel() map[string]model.TokenUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.TokenUsage, len(m.byModel))
	for k, v := range m.byModel {
		out[k] = v
	}
	return out
}

// ByStage returns a copy of the per-stage usage.
func (m *Meter) ByStage() map[string]model.TokenUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.TokenUsage, len(m.byStage))
	for k, v := range m.byStage {
		out[k] = v
	}
	return out
}

// Total sums usage across models.
func (m *Meter) Total() model.TokenUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var t model.TokenUsage
	for _, v := range m.byModel {
		t.Add(v)
	}
	return t
}

type meterKey struct{}

// WithMeter attaches m to ctx.
func WithMeter(ctx context.Context, m *Meter) context.Context {
	return context.WithValue(ctx, meterKey{}, m)
}

// MeterFrom returns the Meter attached to ctx, or nil.
func MeterFrom(ctx context.Context) *Meter {
	m, _ := ctx.Value(meterKey{}).(*Meter)
	return m
}
