package fetcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"

	"github.com/cluvo-ai/cluvo/internal/resilience"
)

// AdaptiveLimiter is a per-host rate limiter that backs off on 429s.
// On success it raises the rate by 20% (up to 2x initial); on 429 it halves
// it (down to initial/4).
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	initial rate.Limit
	current rate.Limit
}

// NewAdaptiveLimiter creates a limiter starting at r events per second.
func NewAdaptiveLimiter(r rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{limiter: rate.NewLimiter(r, burst), initial: r, current: r}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set(min(a.current*1.2, a.initial*2))
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set(max(a.current*0.5, a.initial/4))
	zap.L().Warn("fetcher: reducing host rate after 429", zap.Float64("rate", float64(a.current)))
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *AdaptiveLimiter) set(r rate.Limit) {
	a.current = r
	a.limiter.SetLimit(r)
}

// Fetcher issues rate-limited GET requests. A Fetcher is safe for
// concurrent use; its semaphore and start limiter are shared by every call.
type Fetcher struct {
	client *http.Client
	opts   Options
	sem    *semaphore.Weighted
	starts *rate.Limiter

	mu    sync.Mutex
	hosts map[string]*AdaptiveLimiter
}

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	opts = opts.withDefaults()

	starts := rate.NewLimiter(rate.Inf, 1)
	if opts.Delay > 0 {
		starts = rate.NewLimiter(rate.Every(opts.Delay), 1)
	}

	return &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: opts.MaxConcurrency,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(opts.MaxConcurrency)),
		starts: starts,
		hosts:  make(map[string]*AdaptiveLimiter),
	}
}

// Options returns the effective options.
func (f *Fetcher) Options() Options { return f.opts }

// Get fetches a single URL.
func (f *Fetcher) Get(ctx context.Context, rawURL string) Result {
	return f.Fetch(ctx, Request{URL: rawURL})
}

// FetchMany fetches every request concurrently within the concurrency
// budget. Results are in request order.
func (f *Fetcher) FetchMany(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = f.Fetch(ctx, req)
		}()
	}
	wg.Wait()
	return results
}

// Fetch runs one request, retrying transient outcomes up to MaxAttempts.
func (f *Fetcher) Fetch(ctx context.Context, req Request) Result {
	start := time.Now()
	var last Result
	attempts := 0

	policy := resilience.RetryPolicy{
		MaxAttempts: f.opts.MaxAttempts,
		Backoff:     f.opts.Backoff,
		OnRetry:     resilience.LogRetry("fetcher", req.URL),
	}
	_ = resilience.Retry(ctx, policy, func(ctx context.Context) error {
		attempts++
		last = f.attempt(ctx, req)
		if last.Transient() {
			return resilience.NewTransientError(resultError(last), last.StatusCode)
		}
		return nil
	})

	last.Attempts = attempts
	last.Duration = time.Since(start)
	return last
}

func resultError(r Result) error {
	if r.Err != nil {
		return r.Err
	}
	return eris.Errorf("fetcher: %s status %d", r.URL, r.StatusCode)
}

func (f *Fetcher) attempt(ctx context.Context, req Request) Result {
	res := Result{URL: req.URL}

	if err := f.sem.Acquire(ctx, 1); err != nil {
		return classifyErr(ctx, res, err)
	}
	defer f.sem.Release(1)

	if err := f.starts.Wait(ctx); err != nil {
		return limiterErr(ctx, res, err)
	}
	host := f.hostLimiter(req.URL)
	if host != nil {
		if err := host.Wait(ctx); err != nil {
			return limiterErr(ctx, res, err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		res.Outcome = OutcomeNetworkError
		res.Err = eris.Wrap(err, "fetcher: build request")
		return res
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", f.opts.UserAgent)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return classifyErr(reqCtx, res, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	res.StatusCode = resp.StatusCode
	res.ContentType = resp.Header.Get("Content-Type")

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		if resp.StatusCode == http.StatusTooManyRequests && host != nil {
			host.OnRateLimit()
		}
		res.Outcome = OutcomeHTTPError
		res.Err = eris.Errorf("fetcher: %s returned %d", req.URL, resp.StatusCode)
		return res
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return classifyErr(reqCtx, res, err)
	}
	if host != nil {
		host.OnSuccess()
	}

	res.Outcome = OutcomeOK
	res.Body = decodeBody(raw, res.ContentType)
	return res
}

func (f *Fetcher) hostLimiter(rawURL string) *AdaptiveLimiter {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.hosts[u.Host]
	if !ok {
		burst := int(f.opts.HostRate)
		if burst < 1 {
			burst = 1
		}
		lim = NewAdaptiveLimiter(rate.Limit(f.opts.HostRate), burst)
		f.hosts[u.Host] = lim
	}
	return lim
}

func classifyErr(ctx context.Context, res Result, err error) Result {
	res.Err = err
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Outcome = OutcomeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		res.Outcome = OutcomeTimeout
	default:
		res.Outcome = OutcomeNetworkError
	}
	return res
}

// limiterErr classifies a failed limiter wait. rate.Limiter fails early when
// the wait would overrun the context deadline, before ctx.Err is set.
func limiterErr(ctx context.Context, res Result, err error) Result {
	res.Err = err
	if errors.Is(ctx.Err(), context.Canceled) {
		res.Outcome = OutcomeNetworkError
	} else {
		res.Outcome = OutcomeTimeout
	}
	return res
}

// decodeBody converts a non-UTF-8 body to UTF-8 using the charset from the
// Content-Type header. Unknown charsets are returned unchanged.
func decodeBody(raw []byte, contentType string) []byte {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return raw
	}
	cs := strings.ToLower(strings.TrimSpace(params["charset"]))
	if cs == "" || cs == "utf-8" || cs == "utf8" {
		return raw
	}
	enc, err := htmlindex.Get(cs)
	if err != nil {
		return raw
	}
	decoded, err := io.ReadAll(enc.NewDecoder().Reader(bytes.NewReader(raw)))
	if err != nil {
		return raw
	}
	return decoded
}
