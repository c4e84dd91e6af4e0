package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

type noCacheKey struct{}

// WithoutCache marks ctx so CachedCompleter skips its lookup. A fresh
// result still replaces the cached one.
func WithoutCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, noCacheKey{}, true)
}

func cacheBypassed(ctx context.Context) bool {
	v, _ := ctx.Value(noCacheKey{}).(bool)
	return v
}

// CachedCompleter memoizes successful completions by prompt. Failures are
// never cached.
type CachedCompleter struct {
	next  Completer
	cache *expirable.LRU[string, json.RawMessage]
}

// NewCachedCompleter wraps next with an LRU of size entries that expire
// after ttl.
func NewCachedCompleter(next Completer, size int, ttl time.Duration) *CachedCompleter {
	if size <= 0 {
		size = 256
	}
	return &CachedCompleter{next: next, cache: expirable.NewLRU[string, json.RawMessage](size, nil, ttl)}
}

// Provider implements Named.
func (c *CachedCompleter) Provider() string { return ProviderOf(c.next) }

// Complete implements Completer.
func (c *CachedCompleter) Complete(ctx context.Context, p Prompt, schema *Schema) (json.RawMessage, error) {
	key := cacheKey(c.Provider(), p, schema)
	if raw, ok := c.cache.Get(key); ok && !cacheBypassed(ctx) {
		zap.L().Debug("llm: cache hit", zap.String("stage", p.Stage))
		return raw, nil
	}
	raw, err := c.next.Complete(ctx, p, schema)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, raw)
	return raw, nil
}

// Len returns the number of cached entries.
func (c *CachedCompleter) Len() int { return c.cache.Len() }

func cacheKey(provider string, p Prompt, schema *Schema) string {
	name := ""
	if schema != nil {
		name = schema.Name
	}
	temp := "default"
	if p.Temperature != nil {
		temp = fmt.Sprintf("%.3f", *p.Temperature)
	}
	h := sha256.New()
	for _, part := range []string{provider, name, temp, p.System, p.User} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FallbackCompleter tries primary, then secondary when the primary fails
// for reasons another provider may not share (quota, outage, timeout).
// Malformed output is returned as-is so CompleteInto can retry it.
type FallbackCompleter struct {
	primary   Completer
	secondary Completer
}

// NewFallbackCompleter chains two completers.
func NewFallbackCompleter(primary, secondary Completer) *FallbackCompleter {
	return &FallbackCompleter{primary: primary, secondary: secondary}
}

// Provider implements Named.
func (f *FallbackCompleter) Provider() string { return ProviderOf(f.primary) }

// Complete implements Completer.
func (f *FallbackCompleter) Complete(ctx context.Context, p Prompt, schema *Schema) (json.RawMessage, error) {
	raw, err := f.primary.Complete(ctx, p, schema)
	if err == nil || IsKind(err, KindMalformed) || ctx.Err() != nil {
		return raw, err
	}
	zap.L().Warn("llm: primary provider failed, using fallback",
		zap.String("primary", ProviderOf(f.primary)),
		zap.String("fallback", ProviderOf(f.secondary)),
		zap.Error(err),
	)
	return f.secondary.Complete(ctx, p, schema)
}
