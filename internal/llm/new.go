package llm

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/cluvo-ai/cluvo/internal/config"
	"github.com/cluvo-ai/cluvo/pkg/anthropic"
	"github.com/cluvo-ai/cluvo/pkg/perplexity"
)

// Completers is the set of completers built from configuration.
type Completers struct {
	// Default serves every stage.
	Default Completer
	// Search is a search-grounded completer, nil unless Perplexity is configured.
	Search Completer
}

// New builds completers from cfg. The configured provider is primary; the
// other provider, when it has a key, becomes the fallback.
func New(ctx context.Context, cfg *config.Config) (*Completers, error) {
	timeout := time.Duration(cfg.LLM.TimeoutSecs) * time.Second

	var claude, gemini Completer
	if cfg.Anthropic.Key != "" {
		claude = NewAnthropicCompleter(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model,
			cfg.LLM.MaxTokens, cfg.LLM.Temperature, timeout)
	}
	if cfg.Gemini.Key != "" {
		g, err := NewGeminiCompleter(ctx, cfg.Gemini.Key, cfg.Gemini.Model, cfg.LLM.Temperature, timeout)
		if err != nil {
			return nil, err
		}
		gemini = g
	}

	primary, secondary := claude, gemini
	if cfg.LLM.Provider == "gemini" {
		primary, secondary = gemini, claude
	}
	if primary == nil {
		return nil, eris.Errorf("llm: provider %q has no api key", cfg.LLM.Provider)
	}

	out := &Completers{Default: primary}
	if secondary != nil {
		out.Default = NewFallbackCompleter(primary, secondary)
	}
	if cfg.Perplexity.Key != "" {
		pc := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		)
		out.Search = NewPerplexityCompleter(pc, cfg.Perplexity.Model)
	}

	if cfg.LLM.CacheEnabled {
		ttl := time.Duration(cfg.LLM.CacheTTLSecs) * time.Second
		out.Default = NewCachedCompleter(out.Default, cfg.LLM.CacheSize, ttl)
		if out.Search != nil {
			out.Search = NewCachedCompleter(out.Search, cfg.LLM.CacheSize, ttl)
		}
	}
	return out, nil
}
