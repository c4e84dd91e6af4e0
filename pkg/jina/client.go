// Package jina is a small client for the Jina AI Reader (r.jina.ai) and
// Search (s.jina.ai) endpoints.
package jina

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// Client reads pages and searches the web through Jina.
type Client interface {
	// Read renders a URL and returns its content as markdown.
	Read(ctx context.Context, targetURL string) (*ReadResponse, error)
	// Search runs a web search.
	Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error)
}

// ReadResponse is the Reader payload.
type ReadResponse struct {
	Code int      `json:"code"`
	Data ReadData `json:"data"`
}

// ReadData is a rendered page.
type ReadData struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage reports tokens billed for a call.
type Usage struct {
	Tokens int `json:"tokens"`
}

// SearchResponse is the Search payload.
type SearchResponse struct {
	Code int            `json:"code"`
	Data []SearchResult `json:"data"`
}

// SearchResult is one hit.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// StatusError is a non-2xx API response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jina: status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed if repeated.
func (e *StatusError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// SearchOption configures a search.
type SearchOption func(*searchOpts)

type searchOpts struct {
	site  string
	count int
}

// WithSiteFilter restricts results to a domain.
func WithSiteFilter(domain string) SearchOption {
	return func(o *searchOpts) { o.site = domain }
}

// WithNumResults caps the number of results.
func WithNumResults(n int) SearchOption {
	return func(o *searchOpts) { o.count = n }
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the Reader base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithSearchBaseURL overrides the Search base URL.
func WithSearchBaseURL(u string) Option {
	return func(c *httpClient) { c.searchBaseURL = u }
}

// WithHTTPClient overrides the http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithMaxAttempts sets how many times a temporary failure is tried.
func WithMaxAttempts(n int) Option {
	return func(c *httpClient) { c.maxAttempts = n }
}

// WithBackoff sets the first retry delay; later delays double.
func WithBackoff(d time.Duration) Option {
	return func(c *httpClient) { c.backoff = d }
}

type httpClient struct {
	apiKey        string
	baseURL       string
	searchBaseURL string
	http          *http.Client
	maxAttempts   int
	backoff       time.Duration
}

// NewClient creates a Jina client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:        apiKey,
		baseURL:       "https://r.jina.ai",
		searchBaseURL: "https://s.jina.ai",
		http:          &http.Client{Timeout: 30 * time.Second},
		maxAttempts:   3,
		backoff:       time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	return c
}

func (c *httpClient) Read(ctx context.Context, targetURL string) (*ReadResponse, error) {
	var out ReadResponse
	headers := map[string]string{"X-Return-Format": "markdown"}
	if err := c.get(ctx, c.baseURL+"/"+targetURL, headers, &out); err != nil {
		return nil, eris.Wrapf(err, "jina: read %s", targetURL)
	}
	return &out, nil
}

func (c *httpClient) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	so := searchOpts{}
	for _, opt := range opts {
		opt(&so)
	}

	q := url.Values{}
	if so.site != "" {
		q.Set("site", so.site)
	}
	if so.count > 0 {
		q.Set("num", strconv.Itoa(so.count))
	}
	reqURL := c.searchBaseURL + "/" + url.PathEscape(query)
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}

	var out SearchResponse
	err := c.get(ctx, reqURL, nil, &out)
	var se *StatusError
	// 422 means the query had no results.
	if errors.As(err, &se) && se.StatusCode == http.StatusUnprocessableEntity {
		return &SearchResponse{Code: se.StatusCode}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "jina: search")
	}
	if so.count > 0 && len(out.Data) > so.count {
		out.Data = out.Data[:so.count]
	}
	return &out, nil
}

func (c *httpClient) get(ctx context.Context, reqURL string, headers map[string]string, out any) error {
	delay := c.backoff
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err = c.do(ctx, reqURL, headers, out)
		var se *StatusError
		temporary := err != nil && (!errors.As(err, &se) || se.Temporary())
		if !temporary || attempt == c.maxAttempts || ctx.Err() != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func (c *httpClient) do(ctx context.Context, reqURL string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "jina: create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "jina: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "jina: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "jina: decode response")
	}
	return nil
}
