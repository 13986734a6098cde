package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrToolParse marks a backend failure caused by malformed tool-call JSON in
// the model output. Recoverable: the caller retries the round in raw mode or
// with tools disabled.
var ErrToolParse = errors.New("backend failed to parse model tool call")

// ErrRawUnsupported is returned by backends without a raw completion mode.
var ErrRawUnsupported = errors.New("raw completion mode not supported")

// BackendError is a non-2xx response from a generation backend.
type BackendError struct {
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Body)
}

// classifyBackendError wraps tool-call template failures as ErrToolParse so
// the orchestrator can recover; everything else surfaces as a BackendError.
func classifyBackendError(status int, body string) error {
	lower := strings.ToLower(body)
	if strings.Contains(lower, "tool call") || strings.Contains(lower, "tool_call") {
		if strings.Contains(lower, "parse") || strings.Contains(lower, "malformed") || strings.Contains(lower, "invalid") {
			return fmt.Errorf("%w: %s", ErrToolParse, body)
		}
	}
	return &BackendError{Status: status, Body: body}
}

// IsToolParse reports whether err is a recoverable tool-call parse failure.
func IsToolParse(err error) bool {
	return errors.Is(err, ErrToolParse)
}

// IsEncoding reports whether err indicates invalid non-text bytes in the
// stream, which usually means the endpoint or model settings are wrong.
func IsEncoding(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "invalid utf-8") ||
		strings.Contains(msg, "invalid character") && strings.Contains(msg, "\\x") ||
		strings.Contains(msg, "non-text bytes") ||
		strings.Contains(msg, "gzip") && strings.Contains(msg, "invalid")
}
