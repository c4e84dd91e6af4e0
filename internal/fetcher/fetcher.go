// Package fetcher is the rate-limited page fetcher shared by the source
// adapters. It bounds in-flight requests with a counting semaphore, spaces
// request starts by a fixed delay, applies a per-request timeout, and
// reports every request as a typed Result instead of an error so that one
// failure never affects its siblings.
package fetcher

import (
	"net/http"
	"time"

	"github.com/cluvo-ai/cluvo/internal/resilience"
)

// Outcome classifies a fetch.
type Outcome int

const (
	// OutcomeOK is a 2xx response.
	OutcomeOK Outcome = iota
	// OutcomeTimeout is a request that hit its deadline.
	OutcomeTimeout
	// OutcomeHTTPError is a response with status >= 400.
	OutcomeHTTPError
	// OutcomeNetworkError is any other transport failure.
	OutcomeNetworkError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeHTTPError:
		return "http_error"
	case OutcomeNetworkError:
		return "network_error"
	}
	return "unknown"
}

// Request is a GET to fetch.
type Request struct {
	URL    string
	Header http.Header
}

// Result is the outcome of one Request. Body is set only for OutcomeOK and
// is decoded to UTF-8.
type Result struct {
	URL         string
	Outcome     Outcome
	StatusCode  int
	Body        []byte
	ContentType string
	Err         error
	Attempts    int
	Duration    time.Duration
}

// OK reports whether the fetch succeeded.
func (r Result) OK() bool { return r.Outcome == OutcomeOK }

// Transient reports whether another attempt may succeed.
func (r Result) Transient() bool {
	switch r.Outcome {
	case OutcomeTimeout, OutcomeNetworkError:
		return true
	case OutcomeHTTPError:
		return resilience.IsTransientStatus(r.StatusCode)
	}
	return false
}

// Options configures a Fetcher.
type Options struct {
	// MaxConcurrency bounds in-flight requests. Default 5.
	MaxConcurrency int
	// Timeout applies to each attempt. Default 15s.
	Timeout time.Duration
	// Delay is the minimum gap between two request starts on this Fetcher.
	Delay time.Duration
	// MaxAttempts per request, counting the first. Default 1.
	MaxAttempts int
	// HostRate is the initial per-host request rate (req/s). Default 5.
	HostRate float64
	// MaxBodyBytes truncates large bodies. Default 2 MiB.
	MaxBodyBytes int64
	UserAgent    string
	// Backoff between attempts of the same request.
	Backoff resilience.Backoff
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = 5
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 1
	}
	if o.HostRate <= 0 {
		o.HostRate = 5
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 2 << 20
	}
	if o.UserAgent == "" {
		o.UserAgent = "Mozilla/5.0 (compatible; cluvo/1.0)"
	}
	if o.Backoff.Initial <= 0 {
		o.Backoff = resilience.Backoff{Initial: 500 * time.Millisecond, Max: 5 * time.Second, Multiplier: 2, Jitter: 0.25}
	}
	return o
}

// StageDeadline is the time budget for fetching n requests:
// ceil(n / MaxConcurrency) * (Timeout + Delay) per attempt.
func StageDeadline(n int, o Options) time.Duration {
	o = o.withDefaults()
	if n <= 0 {
		return 0
	}
	waves := (n + o.MaxConcurrency - 1) / o.MaxConcurrency
	perWave := o.Timeout + o.Delay
	return time.Duration(waves*o.MaxAttempts) * perWave
}
