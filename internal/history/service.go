// Package history persists finished generations and their media.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"letssora/internal/domain"
	"letssora/internal/infra"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Persistence stages reported by PersistError.
const (
	StageMedia   = "media"
	StageHistory = "history"
)

// PersistError reports which write failed while saving a record.
type PersistError struct {
	Stage string
	Err   error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("history: %s write failed: %v", e.Stage, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Options configures a Service.
type Options struct {
	DefaultOwnerID string
	Logger         *infra.Logger
	Now            func() time.Time
}

// Service owns the history lifecycle: media upload, record writes, listing,
// and deletion with best-effort media cleanup. Media may be nil, in which case
// inline payloads stay on the record.
type Service struct {
	store        domain.HistoryStore
	media        domain.MediaStore
	defaultOwner string
	logger       *infra.Logger
	now          func() time.Time
}

func NewService(store domain.HistoryStore, media domain.MediaStore, opts Options) *Service {
	owner := strings.TrimSpace(opts.DefaultOwnerID)
	if owner == "" {
		owner = domain.DefaultOwnerID
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, media: media, defaultOwner: owner, logger: logger, now: now}
}

// HasMediaStore reports whether inline payloads are uploaded on save.
func (s *Service) HasMediaStore() bool { return s.media != nil }

// Owner resolves an empty owner to the default partition.
func (s *Service) Owner(ownerID string) string {
	if ownerID = strings.TrimSpace(ownerID); ownerID != "" {
		return ownerID
	}
	return s.defaultOwner
}

// Save stores a copy of record. Inline media is uploaded first when a media
// store is configured, so the stored record carries only the URL.
func (s *Service) Save(ctx context.Context, record *domain.GenerationRecord) (*domain.GenerationRecord, error) {
	if record == nil {
		return nil, &domain.ValidationError{Message: "record is required"}
	}
	rec := *record
	rec.Prompt = strings.TrimSpace(rec.Prompt)
	if rec.Prompt == "" {
		return nil, &domain.ValidationError{Field: "prompt", Message: "Prompt is required"}
	}
	if _, ok := domain.ParseMode(string(rec.Mode)); !ok {
		return nil, &domain.ValidationError{Field: "type", Message: "must be image or video"}
	}
	if !rec.Result.HasMedia() {
		return nil, &domain.ValidationError{Field: "result", Message: "media is required"}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.OwnerID = s.Owner(rec.OwnerID)
	if rec.Settings == nil {
		rec.Settings = map[string]any{}
	}
	rec.CreatedAt = s.now().UTC()

	if len(rec.Result.MediaInlinePayload) > 0 && s.media != nil {
		contentType := rec.Result.ContentType
		if contentType == "" {
			contentType = rec.Mode.ContentType()
		}
		mediaURL, err := s.media.Upload(ctx, rec.Result.MediaInlinePayload, ExtensionFor(contentType, rec.Mode), contentType)
		if err != nil {
			return nil, &PersistError{Stage: StageMedia, Err: err}
		}
		rec.Result.MediaURL = mediaURL
		rec.Result.MediaInlinePayload = nil
		rec.Result.ContentType = contentType
	}

	if err := s.store.Save(ctx, &rec); err != nil {
		if rec.Result.MediaURL != "" && len(record.Result.MediaInlinePayload) > 0 && s.media != nil {
			s.deleteMedia(ctx, rec.Result.MediaURL)
		}
		return nil, &PersistError{Stage: StageHistory, Err: err}
	}
	s.logger.Info().
		Str("id", rec.ID).
		Str("owner", rec.OwnerID).
		Str("mode", string(rec.Mode)).
		Msg("history: generation saved")
	return &rec, nil
}

// List returns the owner's records newest first.
func (s *Service) List(ctx context.Context, ownerID string, limit int, cursor string) (*domain.Page, error) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return s.store.List(ctx, s.Owner(ownerID), limit, strings.TrimSpace(cursor))
}

func (s *Service) Get(ctx context.Context, id, ownerID string) (*domain.GenerationRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrNotFound
	}
	return s.store.Get(ctx, id, s.Owner(ownerID))
}

// Delete removes the record, then its media. Media deletion failures are
// logged and do not fail the call.
func (s *Service) Delete(ctx context.Context, id, ownerID string) error {
	rec, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, rec.ID, rec.OwnerID); err != nil {
		return err
	}
	if rec.Result.MediaURL != "" && s.media != nil {
		s.deleteMedia(ctx, rec.Result.MediaURL)
	}
	return nil
}

// ReadURL resolves the URL clients should use for a record's media.
func (s *Service) ReadURL(ctx context.Context, rec *domain.GenerationRecord) (string, error) {
	if rec.Result.MediaURL == "" || s.media == nil {
		return rec.Result.MediaURL, nil
	}
	return s.media.ReadURL(ctx, rec.Result.MediaURL)
}

func (s *Service) deleteMedia(ctx context.Context, mediaURL string) {
	if err := s.media.Delete(ctx, mediaURL); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn().Err(err).Str("url", mediaURL).Msg("history: media delete failed")
	}
}

// ExtensionFor maps a content type to a blob file extension.
func ExtensionFor(contentType string, mode domain.Mode) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	switch ct {
	case "video/mp4":
		return "mp4"
	case "video/webm":
		return "webm"
	case "video/quicktime":
		return "mov"
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	}
	if mode == domain.ModeVideo {
		return "mp4"
	}
	return "png"
}
