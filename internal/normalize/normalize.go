// Package normalize collapses the loosely structured payloads returned by the
// generation API into one canonical result.
//
// Resolution is a prioritized table of rules tried in order; the first rule
// that matches decides the result:
//
//  1. status/state equal to a failure token      -> Failed
//  2. any URL locator                             -> Succeeded (URL)
//  3. any inline payload locator                  -> Succeeded (inline bytes)
//  4. status/state equal to a success token       -> Succeeded (no locator)
//  5. numeric progress                            -> InProgress with fraction
//
// Anything else is InProgress with an unknown fraction. Absence of terminal
// markers is never read as failure.
package normalize

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"letssora/internal/domain"
)

// State is the canonical lifecycle state of a remote response.
type State string

const (
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateInProgress State = "in_progress"
)

// Terminal reports whether no further transitions are expected.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

var (
	failureTokens = []string{"failed", "failure", "error", "cancelled", "canceled", "expired"}
	successTokens = []string{"completed", "succeeded", "success"}
)

// Document is a decoded JSON object as returned by the upstream API.
type Document map[string]any

// Decode parses raw JSON into a Document. Numbers keep full precision.
func Decode(raw []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("normalize: decode document: %w", err)
	}
	return doc, nil
}

// String returns the trimmed string at key, or "".
func (d Document) String(key string) string {
	s, _ := lookupString(d, key)
	return s
}

// ID returns the job identifier carried by the document.
func (d Document) ID() string {
	return d.String("id")
}

// Status returns the raw status/state token, lowercased.
func (d Document) Status() string {
	if s := d.String("status"); s != "" {
		return strings.ToLower(s)
	}
	return strings.ToLower(d.String("state"))
}

// Merge returns a copy of d overlaid with other.
func (d Document) Merge(other Document) Document {
	out := make(Document, len(d)+len(other))
	for k, v := range d {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Result is the canonical shape of any upstream response.
type Result struct {
	State              State
	MediaURL           string
	MediaInlinePayload []byte
	Progress           *float64
	ErrorMessage       string
	RevisedPrompt      string
	RawStatus          string
	Rule               string
}

// HasMedia reports whether a media locator was resolved.
func (r Result) HasMedia() bool {
	return r.MediaURL != "" || len(r.MediaInlinePayload) > 0
}

type rule struct {
	name  string
	apply func(doc Document, mode domain.Mode) (Result, bool)
}

// rules is the resolution table. Order is significant.
var rules = []rule{
	{name: "failure_token", apply: matchFailure},
	{name: "url_locator", apply: matchURL},
	{name: "inline_locator", apply: matchInline},
	{name: "success_token", apply: matchSuccessToken},
	{name: "progress", apply: matchProgress},
}

// Normalize resolves doc into a Result for the given mode.
func Normalize(doc Document, mode domain.Mode) Result {
	status := doc.Status()
	for _, r := range rules {
		res, ok := r.apply(doc, mode)
		if !ok {
			continue
		}
		res.Rule = r.name
		res.RawStatus = status
		if res.State == StateSucceeded && res.RevisedPrompt == "" {
			res.RevisedPrompt = revisedPrompt(doc)
		}
		return res
	}
	return Result{State: StateInProgress, RawStatus: status, Rule: "default"}
}

func matchFailure(doc Document, mode domain.Mode) (Result, bool) {
	if !containsToken(failureTokens, doc.Status()) {
		return Result{}, false
	}
	return Result{State: StateFailed, ErrorMessage: failureMessage(doc, mode)}, true
}

func matchURL(doc Document, _ domain.Mode) (Result, bool) {
	for _, p := range urlLocators {
		if v, ok := lookupString(doc, p...); ok {
			return Result{State: StateSucceeded, MediaURL: v}, true
		}
	}
	return Result{}, false
}

func matchInline(doc Document, _ domain.Mode) (Result, bool) {
	for _, p := range inlineLocators {
		v, ok := lookupString(doc, p...)
		if !ok {
			continue
		}
		data, err := DecodeInline(v)
		if err != nil || len(data) == 0 {
			continue
		}
		return Result{State: StateSucceeded, MediaInlinePayload: data}, true
	}
	return Result{}, false
}

func matchSuccessToken(doc Document, _ domain.Mode) (Result, bool) {
	if !containsToken(successTokens, doc.Status()) {
		return Result{}, false
	}
	return Result{State: StateSucceeded}, true
}

func matchProgress(doc Document, _ domain.Mode) (Result, bool) {
	fraction, ok := progressFraction(doc["progress"])
	if !ok {
		return Result{}, false
	}
	return Result{State: StateInProgress, Progress: &fraction}, true
}

// progressFraction converts a progress value to a fraction. Integers are
// percentages in [0,100], so 1 means 1%. Non-integral numbers are fractions in
// [0,1], or percentages when they fall in (1,100].
func progressFraction(v any) (float64, bool) {
	var (
		f       float64
		percent bool
	)
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f, percent = float64(n), true
	case int64:
		f, percent = float64(n), true
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
		percent = !strings.ContainsAny(string(n), ".eE")
	default:
		return 0, false
	}
	switch {
	case f < 0 || f > 100:
		return 0, false
	case percent || f > 1:
		return f / 100, true
	default:
		return f, true
	}
}

func failureMessage(doc Document, mode domain.Mode) string {
	if msg, ok := lookupString(doc, "error", "message"); ok {
		return msg
	}
	if msg, ok := lookupString(doc, "error"); ok {
		return msg
	}
	if msg, ok := lookupString(doc, "failure_reason"); ok {
		return msg
	}
	if msg, ok := lookupString(doc, "message"); ok {
		return msg
	}
	if mode == domain.ModeImage {
		return "Image generation failed"
	}
	return "Video generation failed"
}

func revisedPrompt(doc Document) string {
	if v, ok := lookupString(doc, "revised_prompt"); ok {
		return v
	}
	if v, ok := lookupString(doc, "data", 0, "revised_prompt"); ok {
		return v
	}
	return ""
}

func containsToken(tokens []string, status string) bool {
	if status == "" {
		return false
	}
	for _, t := range tokens {
		if t == status {
			return true
		}
	}
	return false
}

// DecodeInline decodes a base64 payload, tolerating data-URI prefixes and
// unpadded or URL-safe alphabets.
func DecodeInline(v string) ([]byte, error) {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "data:") {
		if idx := strings.Index(v, ","); idx >= 0 {
			v = v[idx+1:]
		}
	}
	if v == "" {
		return nil, fmt.Errorf("normalize: empty payload")
	}
	var lastErr error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		data, err := enc.DecodeString(v)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("normalize: decode payload: %w", lastErr)
}
