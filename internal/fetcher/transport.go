package fetcher

import (
	"io"
	"net/http"
	"sync"

	"github.com/rotisserie/eris"
)

// HTTPClient returns an http.Client whose requests are admitted through
// the Fetcher's budget. API clients built on it share the semaphore, start
// delay and host limiters with page fetches.
func (f *Fetcher) HTTPClient() *http.Client {
	return &http.Client{Timeout: f.opts.Timeout, Transport: f.Transport(nil)}
}

// Transport wraps next so every round trip waits for a semaphore slot, the
// start delay and the host limiter. The slot is held until the response
// body is closed. A nil next uses the Fetcher's own transport.
func (f *Fetcher) Transport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = f.client.Transport
	}
	return &budgetTransport{f: f, next: next}
}

type budgetTransport struct {
	f    *Fetcher
	next http.RoundTripper
}

func (t *budgetTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if err := t.f.sem.Acquire(ctx, 1); err != nil {
		return nil, eris.Wrap(err, "fetcher: acquire slot")
	}
	release := sync.OnceFunc(func() { t.f.sem.Release(1) })

	if err := t.f.starts.Wait(ctx); err != nil {
		release()
		return nil, eris.Wrap(err, "fetcher: start delay")
	}
	host := t.f.hostLimiter(req.URL.String())
	if host != nil {
		if err := host.Wait(ctx); err != nil {
			release()
			return nil, eris.Wrap(err, "fetcher: host limit")
		}
	}

	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(ctx)
		req.Header.Set("User-Agent", t.f.opts.UserAgent)
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		release()
		return nil, err
	}
	if host != nil {
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			host.OnRateLimit()
		case resp.StatusCode < 400:
			host.OnSuccess()
		}
	}
	resp.Body = &releasingBody{ReadCloser: resp.Body, release: release}
	return resp, nil
}

type releasingBody struct {
	io.ReadCloser
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.release()
	return err
}

