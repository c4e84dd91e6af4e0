package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func peakServer(t *testing.T, peak *atomic.Int32) *httptest.Server {
	t.Helper()
	var inflight atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inflight.Add(-1)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClient_SharesBudgetWithFetch(t *testing.T) {
	var peak atomic.Int32
	srv := peakServer(t, &peak)

	opts := testOptions()
	opts.MaxConcurrency = 1
	f := New(opts)
	hc := f.HTTPClient()

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			resp, err := hc.Get(srv.URL + "/api")
			if !assert.NoError(t, err) {
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()
		go func() {
			defer wg.Done()
			assert.True(t, f.Get(context.Background(), srv.URL+"/page").OK())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
}

func TestTransport_ReleasesSlotOnBodyClose(t *testing.T) {
	var peak atomic.Int32
	srv := peakServer(t, &peak)

	opts := testOptions()
	opts.MaxConcurrency = 1
	f := New(opts)
	hc := f.HTTPClient()

	resp, err := hc.Get(srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	blocked := f.Get(ctx, srv.URL)
	assert.Equal(t, OutcomeTimeout, blocked.Outcome)

	require.NoError(t, resp.Body.Close())
	assert.True(t, f.Get(context.Background(), srv.URL).OK())
}

func TestTransport_SetsUserAgent(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.UserAgent())
	}))
	defer srv.Close()

	opts := testOptions()
	opts.UserAgent = "cluvo-test"
	resp, err := New(opts).HTTPClient().Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "cluvo-test", got.Load())
}

func TestTransport_CancelledWhileWaiting(t *testing.T) {
	opts := testOptions()
	opts.MaxConcurrency = 1
	f := New(opts)
	require.NoError(t, f.sem.Acquire(context.Background(), 1))
	defer f.sem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://127.0.0.1:1", nil)
	require.NoError(t, err)

	_, err = f.HTTPClient().Do(req)
	assert.ErrorIs(t, err, context.Canceled)
}
