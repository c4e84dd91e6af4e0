package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a completion failure.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindQuota       Kind = "quota"
	KindMalformed   Kind = "malformed"
	KindUnavailable Kind = "unavailable"
)

// Error is a classified completion failure.
type Error struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm: %s %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Malformed wraps a response that failed to parse or validate.
func Malformed(provider string, err error) *Error {
	return &Error{Kind: KindMalformed, Provider: provider, Err: err}
}

// classify maps a transport or API failure to a Kind. status is the HTTP
// status when known.
func classify(ctx context.Context, provider string, status int, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	kind := KindUnavailable
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		kind = KindTimeout
	case status == 429:
		kind = KindQuota
	case status == 408 || status == 504:
		kind = KindTimeout
	case status == 0:
		msg := err.Error()
		if strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(strings.ToLower(msg), "quota") {
			kind = KindQuota
		}
	}
	return &Error{Kind: kind, Provider: provider, Err: err}
}
