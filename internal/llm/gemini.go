package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/cluvo-ai/cluvo/internal/model"
)

// contentGenerator is the slice of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiCompleter completes prompts with Gemini in JSON response mode.
type GeminiCompleter struct {
	models      contentGenerator
	model       string
	temperature float32
	timeout     time.Duration
}

// NewGeminiCompleter creates a Gemini API client for modelID.
func NewGeminiCompleter(ctx context.Context, apiKey, modelID string, temperature float64, timeout time.Duration) (*GeminiCompleter, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, eris.Wrap(err, "llm: create gemini client")
	}
	return &GeminiCompleter{models: cli.Models, model: modelID, temperature: float32(temperature), timeout: timeout}, nil
}

// Provider implements Named.
func (g *GeminiCompleter) Provider() string { return "gemini" }

// Complete implements Completer.
func (g *GeminiCompleter) Complete(ctx context.Context, p Prompt, schema *Schema) (json.RawMessage, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	temp := g.temperature
	if p.Temperature != nil {
		temp = float32(*p.Temperature)
	}
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(temp),
	}
	if p.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: p.System}}}
	}

	resp, err := g.models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: p.User + "\n\n" + schema.Instructions()}}}},
		cfg,
	)
	if err != nil {
		return nil, classify(ctx, g.Provider(), 0, err)
	}

	if resp.UsageMetadata != nil {
		MeterFrom(ctx).Record(p.Stage, g.model, model.TokenUsage{
			InputTokens:     int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens:    int(resp.UsageMetadata.CandidatesTokenCount),
			CacheReadTokens: int(resp.UsageMetadata.CachedContentTokenCount),
			Calls:           1,
		})
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, Malformed(g.Provider(), eris.New("llm: gemini returned no candidates"))
	}
	return schema.parse(g.Provider(), resp.Candidates[0].Content.Parts[0].Text)
}
