package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/cluvo-ai/cluvo/internal/model"
	"github.com/cluvo-ai/cluvo/pkg/perplexity"
)

// PerplexityCompleter completes prompts with a search-grounded model. It
// is used where fresh web knowledge matters, such as finding alternatives
// the primary model missed.
type PerplexityCompleter struct {
	client perplexity.Client
	model  string
}

// NewPerplexityCompleter wraps client. model is only used for attribution.
func NewPerplexityCompleter(client perplexity.Client, modelID string) *PerplexityCompleter {
	return &PerplexityCompleter{client: client, model: modelID}
}

// Provider implements Named.
func (c *PerplexityCompleter) Provider() string { return "perplexity" }

// Complete implements Completer.
func (c *PerplexityCompleter) Complete(ctx context.Context, p Prompt, schema *Schema) (json.RawMessage, error) {
	var msgs []perplexity.Message
	if p.System != "" {
		msgs = append(msgs, perplexity.Message{Role: "system", Content: p.System})
	}
	msgs = append(msgs, perplexity.Message{Role: "user", Content: p.User + "\n\n" + schema.Instructions()})

	req := perplexity.ChatCompletionRequest{Messages: msgs}
	if schema != nil {
		req.ResponseFormat = perplexity.JSONSchemaFormat(schema.Map())
	}

	resp, err := c.client.ChatCompletion(ctx, req)
	if err != nil {
		status := 0
		var se *perplexity.StatusError
		if errors.As(err, &se) {
			status = se.StatusCode
		}
		return nil, classify(ctx, c.Provider(), status, err)
	}

	MeterFrom(ctx).Record(p.Stage, c.model, model.TokenUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Calls:        1,
	})
	return schema.parse(c.Provider(), resp.Text())
}
