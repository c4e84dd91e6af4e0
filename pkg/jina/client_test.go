package jina

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "markdown", r.Header.Get("X-Return-Format"))
		assert.Equal(t, "/https://acme.com/pricing", r.URL.Path)
		_ = json.NewEncoder(w).Encode(ReadResponse{Code: 200, Data: ReadData{
			Title: "Pricing", Content: "Starter $29/month", Usage: Usage{Tokens: 120},
		}})
	}))
	defer srv.Close()

	got, err := NewClient("test-key", WithBaseURL(srv.URL)).Read(context.Background(), "https://acme.com/pricing")
	require.NoError(t, err)
	assert.Equal(t, "Pricing", got.Data.Title)
	assert.Equal(t, "Starter $29/month", got.Data.Content)
	assert.Equal(t, 120, got.Data.Usage.Tokens)
}

func TestRead_PermanentErrorNotRetried(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL), WithBackoff(time.Millisecond)).Read(context.Background(), "https://acme.com")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRead_RetriesTemporaryStatus(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(ReadResponse{Code: 200, Data: ReadData{Content: "ok"}})
	}))
	defer srv.Close()

	got, err := NewClient("k", WithBaseURL(srv.URL), WithBackoff(time.Millisecond)).Read(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Data.Content)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRead_RetryExhausted(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL), WithBackoff(time.Millisecond), WithMaxAttempts(2))
	_, err := c.Read(context.Background(), "https://acme.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(2), calls.Load())
}

func TestRead_MalformedJSON(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).Read(context.Background(), "https://acme.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestSearch_Success(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/acme reviews", r.URL.Path)
		assert.Equal(t, "reddit.com", r.URL.Query().Get("site"))
		assert.Equal(t, "2", r.URL.Query().Get("num"))
		_ = json.NewEncoder(w).Encode(SearchResponse{Code: 200, Data: []SearchResult{
			{Title: "a", URL: "https://reddit.com/r/1"},
			{Title: "b", URL: "https://reddit.com/r/2"},
			{Title: "c", URL: "https://reddit.com/r/3"},
		}})
	}))
	defer srv.Close()

	got, err := NewClient("k", WithSearchBaseURL(srv.URL)).Search(context.Background(), "acme reviews",
		WithSiteFilter("reddit.com"), WithNumResults(2))
	require.NoError(t, err)
	require.Len(t, got.Data, 2)
	assert.Equal(t, "a", got.Data[0].Title)
}

func TestSearch_NoResults(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	got, err := NewClient("k", WithSearchBaseURL(srv.URL)).Search(context.Background(), "zzz")
	require.NoError(t, err)
	assert.Empty(t, got.Data)
	assert.Equal(t, http.StatusUnprocessableEntity, got.Code)
}

func TestRead_ContextCancelled(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient("k", WithBaseURL(srv.URL)).Read(ctx, "https://acme.com")
	require.Error(t, err)
}

func TestStatusErrorTemporary(t *testing.T) {
	assert.True(t, (&StatusError{StatusCode: 429}).Temporary())
	assert.True(t, (&StatusError{StatusCode: 503}).Temporary())
	assert.False(t, (&StatusError{StatusCode: 401}).Temporary())
	assert.Contains(t, (&StatusError{StatusCode: 404, Body: "nope"}).Error(), "404")
}
