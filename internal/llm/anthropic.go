package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/cluvo-ai/cluvo/internal/model"
	"github.com/cluvo-ai/cluvo/pkg/anthropic"
)

// AnthropicCompleter completes prompts with Claude. System prompts are sent
// as cached blocks since every stage reuses its instructions across
// competitors.
type AnthropicCompleter struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	timeout     time.Duration
}

// NewAnthropicCompleter creates a completer for the given model.
func NewAnthropicCompleter(client anthropic.Client, modelID string, maxTokens int64, temperature float64, timeout time.Duration) *AnthropicCompleter {
	return &AnthropicCompleter{
		client:      client,
		model:       modelID,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
	}
}

// Provider implements Named.
func (a *AnthropicCompleter) Provider() string { return "anthropic" }

// Complete implements Completer.
func (a *AnthropicCompleter) Complete(ctx context.Context, p Prompt, schema *Schema) (json.RawMessage, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	temp := a.temperature
	if p.Temperature != nil {
		temp = *p.Temperature
	}
	req := anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: p.User + "\n\n" + schema.Instructions()}},
		Temperature: &temp,
	}
	if p.System != "" {
		req.System = anthropic.BuildCachedSystemBlocks(p.System, "5m")
	}

	resp, err := a.client.CreateMessage(ctx, req)
	if err != nil {
		status := 0
		var se *anthropic.StatusError
		if errors.As(err, &se) {
			status = se.StatusCode
		}
		return nil, classify(ctx, a.Provider(), status, err)
	}

	MeterFrom(ctx).Record(p.Stage, a.model, model.TokenUsage{
		InputTokens:         int(resp.Usage.InputTokens),
		OutputTokens:        int(resp.Usage.OutputTokens),
		CacheCreationTokens: int(resp.Usage.CacheCreationInputTokens),
		CacheReadTokens:     int(resp.Usage.CacheReadInputTokens),
		Calls:               1,
	})

	if resp.StopReason == "max_tokens" {
		return nil, Malformed(a.Provider(), eris.New("llm: response truncated at max_tokens"))
	}
	return schema.parse(a.Provider(), resp.Text())
}
