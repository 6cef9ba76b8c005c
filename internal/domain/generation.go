package domain

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Mode enumerates the kinds of media a generation produces.
type Mode string

const (
	ModeImage Mode = "image"
	ModeVideo Mode = "video"
)

// DefaultOwnerID partitions history when no identity is supplied.
const DefaultOwnerID = "default"

// ParseMode sanitizes free-form input into a supported mode.
func ParseMode(raw string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeImage):
		return ModeImage, true
	case string(ModeVideo):
		return ModeVideo, true
	default:
		return "", false
	}
}

// ContentType returns the default MIME type for the mode's media.
func (m Mode) ContentType() string {
	if m == ModeVideo {
		return "video/mp4"
	}
	return "image/png"
}

// GenerationRequest is the immutable input of a single submission.
type GenerationRequest struct {
	Mode            Mode
	Prompt          string
	Size            string
	Quality         string
	DurationSeconds int
	ReferenceImages [][]byte
}

// Validate normalizes the prompt and rejects requests that must never reach
// the network.
func (r *GenerationRequest) Validate() error {
	if r == nil {
		return &ValidationError{Message: "request is required"}
	}
	if r.Mode != ModeImage && r.Mode != ModeVideo {
		return &ValidationError{Field: "mode", Message: "must be image or video"}
	}
	r.Prompt = norm.NFC.String(strings.TrimSpace(r.Prompt))
	if r.Prompt == "" {
		return &ValidationError{Field: "prompt", Message: "Prompt is required"}
	}
	r.Size = strings.TrimSpace(r.Size)
	switch r.Mode {
	case ModeImage:
		if r.DurationSeconds != 0 {
			return &ValidationError{Field: "durationSeconds", Message: "only valid for video"}
		}
	case ModeVideo:
		if len(r.ReferenceImages) > 0 {
			return &ValidationError{Field: "referenceImages", Message: "only valid for image"}
		}
		if r.DurationSeconds < 0 {
			return &ValidationError{Field: "durationSeconds", Message: "must be positive"}
		}
	}
	return nil
}

// Settings captures the request knobs stored alongside a record.
func (r GenerationRequest) Settings() map[string]any {
	settings := map[string]any{}
	if r.Size != "" {
		settings["size"] = r.Size
	}
	if r.Quality != "" {
		settings["quality"] = r.Quality
	}
	if r.Mode == ModeVideo && r.DurationSeconds > 0 {
		settings["seconds"] = r.DurationSeconds
	}
	return settings
}

// GenerationResult is the canonical media reference of a finished generation.
// Exactly one of MediaURL or MediaInlinePayload is expected to be set.
type GenerationResult struct {
	MediaURL           string `json:"mediaUrl,omitempty"`
	MediaInlinePayload []byte `json:"mediaInlinePayload,omitempty"`
	ContentType        string `json:"contentType,omitempty"`
	RevisedPrompt      string `json:"revisedPrompt,omitempty"`
}

// HasMedia reports whether the result references any media.
func (r GenerationResult) HasMedia() bool {
	return r.MediaURL != "" || len(r.MediaInlinePayload) > 0
}

// GenerationRecord is a persisted, immutable history entry.
type GenerationRecord struct {
	ID                  string           `json:"id"`
	OwnerID             string           `json:"userId"`
	Mode                Mode             `json:"type"`
	Prompt              string           `json:"prompt"`
	Settings            map[string]any   `json:"settings"`
	Result              GenerationResult `json:"result"`
	ReferenceImageCount int              `json:"groundingImageCount"`
	CreatedAt           time.Time        `json:"createdAt"`
}

// Page is one slice of an owner's history, newest first.
type Page struct {
	Records    []GenerationRecord
	NextCursor string
}
