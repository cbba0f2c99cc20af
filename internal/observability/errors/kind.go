package errors

import (
	"context"
	goerrors "errors"
	"strings"
)

// Kind is the failure taxonomy that drives retry versus terminal decisions.
type Kind string

const (
	// KindAPITimeout is a timed out external call. Retryable.
	KindAPITimeout Kind = "api_timeout"
	// KindRateLimit is an external rate limit or quota rejection. Retryable.
	KindRateLimit Kind = "rate_limit"
	// KindInvalidResponse is an external response that could not be decoded. Terminal.
	KindInvalidResponse Kind = "invalid_response"
	// KindValidationError is a decoded value that failed validation. Terminal.
	KindValidationError Kind = "validation_error"
	// KindOther is anything else. Retryable once.
	KindOther Kind = "other"
)

// Retryable reports whether a single failure of this kind may be retried.
func (k Kind) Retryable() bool {
	return k == KindAPITimeout || k == KindRateLimit || k == KindOther
}

// ParseKind returns the Kind named by s, or KindOther.
func ParseKind(s string) Kind {
	switch k := Kind(s); k {
	case KindAPITimeout, KindRateLimit, KindInvalidResponse, KindValidationError:
		return k
	default:
		return KindOther
	}
}

// Rules are evaluated in order; the first match wins.
var kindRules = []struct {
	kind    Kind
	needles []string
}{
	{KindAPITimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{KindRateLimit, []string{"429", "too many requests", "rate limit", "quota exceeded"}},
	{KindInvalidResponse, []string{"parse", "unexpected token", "unexpected end of json", "invalid character", "schema mismatch"}},
	{KindValidationError, []string{"validation", "invalid value", "out of range", "required", "schema"}},
}

// Kinded is implemented by errors that know their own Kind. Its ErrorKind returns a Kind name,
// or "" to defer to message matching.
type Kinded interface {
	error
	ErrorKind() string
}

// ClassifyKind maps a failure to its Kind. The outermost error in the chain with a non-empty
// ErrorKind decides; otherwise the message is matched case-insensitively against the ordered rules.
// Values that are not errors, nil included, classify as KindOther.
func ClassifyKind(v any) Kind {
	err, ok := v.(error)
	if !ok || err == nil {
		return KindOther
	}
	for e := err; e != nil; e = goerrors.Unwrap(e) {
		if k, ok := e.(Kinded); ok && k.ErrorKind() != "" {
			return ParseKind(k.ErrorKind())
		}
	}
	if goerrors.Is(err, context.DeadlineExceeded) {
		return KindAPITimeout
	}
	msg := strings.ToLower(err.Error())
	for _, r := range kindRules {
		for _, n := range r.needles {
			if strings.Contains(msg, n) {
				return r.kind
			}
		}
	}
	return KindOther
}

// Classify returns the metric tag for err: its Kind name, or "" for nil.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	return string(ClassifyKind(err))
}
