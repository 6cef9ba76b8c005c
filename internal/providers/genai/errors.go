package genai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"letssora/internal/domain"
)

// UpstreamError reports a non-success response or transport failure from the
// generation API. Message carries the upstream's own error text verbatim when
// one was provided. StatusCode is zero for transport failures.
type UpstreamError struct {
	StatusCode int
	Message    string
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.StatusCode != 0:
		return fmt.Sprintf("upstream status %d", e.StatusCode)
	default:
		return "upstream request failed"
	}
}

// Unwrap exposes domain.ErrNotFound for 404 responses and the transport error
// otherwise.
func (e *UpstreamError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return e.Err
}

type apiErrorEnvelope struct {
	Error json.RawMessage `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Code    any    `json:"code,omitempty"`
}

func newUpstreamError(status int, body []byte) *UpstreamError {
	text := strings.TrimSpace(string(body))
	return &UpstreamError{StatusCode: status, Message: extractMessage(body, text), Body: text}
}

// extractMessage prefers error.message, then a string error, then the raw
// body text.
func extractMessage(body []byte, fallback string) string {
	var env apiErrorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Error) > 0 {
		var obj apiError
		if err := json.Unmarshal(env.Error, &obj); err == nil && strings.TrimSpace(obj.Message) != "" {
			return obj.Message
		}
		var s string
		if err := json.Unmarshal(env.Error, &s); err == nil && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return fallback
}

// AsUpstream unwraps err into an *UpstreamError when possible.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
