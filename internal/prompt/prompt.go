package prompt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Prompt is the model input for one call: instructions plus the subject text they apply to.
type Prompt struct {
	Version      string `json:"version"`
	Schema       string `json:"schema"`
	Instructions string `json:"instructions"`
	Subject      string `json:"subject"`
}

// ErrEmptyResponse is returned when the model produced no content.
var ErrEmptyResponse error = &DecodeError{Msg: "unexpected end of JSON input: empty model response"}

// DecodeError is a model response that could not be decoded into the expected object.
type DecodeError struct {
	Msg   string
	Cause error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// ErrorKind reports the failure kind used by the workflow retry policy.
func (e *DecodeError) ErrorKind() string { return "invalid_response" }

// decodeStrict decodes a single JSON object. Syntax errors keep the decoder's message;
// type errors are reported as schema mismatches.
func decodeStrict(raw []byte, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ErrEmptyResponse
	}
	if raw[0] != '{' {
		return &DecodeError{Msg: "unexpected token at start of model response, want a JSON object"}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &DecodeError{Msg: fmt.Sprintf("schema mismatch: field %q has %s, want %s", typeErr.Field, typeErr.Value, typeErr.Type)}
		}
		return &DecodeError{Msg: "decode model response", Cause: err}
	}
	return nil
}

// violations accumulates response validation failures.
type violations []string

func (v *violations) addf(format string, args ...any) {
	*v = append(*v, fmt.Sprintf(format, args...))
}

func (v violations) err() error {
	if len(v) == 0 {
		return nil
	}
	return &ValidationError{Violations: v}
}

// ValidationError lists every way a decoded response broke the expected shape.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "response validation failed: " + strings.Join(e.Violations, "; ")
}

// ErrorKind reports the failure kind used by the workflow retry policy. The violations embed
// model-supplied values, so the message alone must not decide it.
func (e *ValidationError) ErrorKind() string { return "validation_error" }

func isHalfStep(x float64) bool {
	return x*2 == float64(int(x*2))
}

func inBandRange(x float64) bool {
	return x >= 0 && x <= 9 && isHalfStep(x)
}
