// Package crunchbase is a client for the Crunchbase company lookup served
// through RapidAPI.
package crunchbase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when no company matches the lookup.
var ErrNotFound = eris.New("crunchbase: company not found")

// Client looks up companies.
type Client interface {
	// Lookup finds a company by domain, then by name slug.
	Lookup(ctx context.Context, domain, name string) (*Company, error)
}

// Company is the subset of the Crunchbase profile we use.
type Company struct {
	Name        string   `json:"name"`
	Domain      string   `json:"domain"`
	Funding     string   `json:"funding"`
	LastRound   string   `json:"last_funding_type"`
	Size        string   `json:"size"`
	FoundedYear any      `json:"founded_year"`
	Location    string   `json:"location"`
	Industries  []string `json:"industries"`
}

// EmployeeEstimate maps the size band to a midpoint head count.
func (c *Company) EmployeeEstimate() (int, bool) {
	n, ok := sizeBands[strings.TrimSpace(c.Size)]
	return n, ok
}

var sizeBands = map[string]int{
	"1-10":       5,
	"11-50":      30,
	"51-100":     75,
	"101-250":    175,
	"251-500":    375,
	"501-1000":   750,
	"1001-5000":  3000,
	"5001-10000": 7500,
	"10000+":     15000,
	"10001+":     15000,
}

// Founded parses the founding year from "2015", "2015-04-01" or 2015.
func (c *Company) Founded() (int, bool) {
	var s string
	switch v := c.FoundedYear.(type) {
	case string:
		s = v
	case float64:
		s = strconv.Itoa(int(v))
	default:
		return 0, false
	}
	year, err := strconv.Atoi(strings.SplitN(strings.TrimSpace(s), "-", 2)[0])
	if err != nil || year < 1800 {
		return 0, false
	}
	return year, true
}

// StatusError is a non-200 response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("crunchbase: status %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHost overrides the X-RapidAPI-Host header.
func WithHost(h string) Option {
	return func(c *httpClient) { c.host = h }
}

// WithHTTPClient overrides the http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	apiKey  string
	baseURL string
	host    string
	http    *http.Client
}

// NewClient creates a client authenticated with a RapidAPI key.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://crunchbase4.p.rapidapi.com",
		host:    "crunchbase4.p.rapidapi.com",
		http:    &http.Client{Timeout: 20 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Slug turns a company name into a Crunchbase permalink guess.
func Slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

func (c *httpClient) Lookup(ctx context.Context, domain, name string) (*Company, error) {
	var payloads []map[string]string
	if domain != "" {
		payloads = append(payloads, map[string]string{"company_domain": domain})
	}
	if name != "" {
		payloads = append(payloads, map[string]string{"company_name": Slug(name)})
	}

	for _, p := range payloads {
		company, err := c.post(ctx, p)
		if err != nil {
			return nil, err
		}
		if company != nil {
			return company, nil
		}
	}
	return nil, ErrNotFound
}

func (c *httpClient) post(ctx context.Context, payload map[string]string) (*Company, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "crunchbase: marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/company", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "crunchbase: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-RapidAPI-Key", c.apiKey)
	req.Header.Set("X-RapidAPI-Host", c.host)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "crunchbase: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "crunchbase: read response")
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out struct {
		Company *Company `json:"company"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, eris.Wrap(err, "crunchbase: unmarshal response")
	}
	return out.Company, nil
}
