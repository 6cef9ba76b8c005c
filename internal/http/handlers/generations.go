package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"

	"letssora/internal/domain"
	"letssora/internal/normalize"
	"letssora/internal/observability"
)

type listGenerationsResponse struct {
	Generations []domain.GenerationRecord `json:"generations"`
	NextCursor  string                    `json:"nextCursor,omitempty"`
}

type saveGenerationRequest struct {
	Type                string         `json:"type"`
	Prompt              string         `json:"prompt"`
	Settings            map[string]any `json:"settings"`
	GroundingImageCount int            `json:"groundingImageCount"`
	Result              struct {
		MediaURL           string `json:"mediaUrl"`
		MediaInlinePayload string `json:"mediaInlinePayload"`
		ContentType        string `json:"contentType"`
		RevisedPrompt      string `json:"revisedPrompt"`
	} `json:"result"`
}

func (a *App) ListGenerations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			a.error(w, http.StatusBadRequest, "limit must be a non-negative integer", "limit")
			return
		}
		limit = n
	}
	timing := observability.StartTiming(r.Context(), "history", "history list")
	page, err := a.History.List(r.Context(), a.owner(r), limit, r.URL.Query().Get("cursor"))
	timing.Stop()
	if err != nil {
		a.fail(w, r, err, "Failed to fetch generations")
		return
	}
	records := make([]domain.GenerationRecord, 0, len(page.Records))
	for i := range page.Records {
		records = append(records, a.withReadURL(r, page.Records[i]))
	}
	a.json(w, http.StatusOK, listGenerationsResponse{Generations: records, NextCursor: page.NextCursor})
}

// GetGeneration returns one record with an ETag derived from its body.
func (a *App) GetGeneration(w http.ResponseWriter, r *http.Request) {
	rec, err := a.History.Get(r.Context(), chi.URLParam(r, "id"), a.owner(r))
	if err != nil {
		a.fail(w, r, err, "Failed to fetch generation")
		return
	}
	body, err := json.Marshal(a.withReadURL(r, *rec))
	if err != nil {
		a.fail(w, r, err, "Failed to fetch generation")
		return
	}
	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}

// SaveGeneration persists a finished generation. Inline payloads may be plain
// base64 or data URIs.
func (a *App) SaveGeneration(w http.ResponseWriter, r *http.Request) {
	var body saveGenerationRequest
	if err := decode(w, r, &body); err != nil {
		a.fail(w, r, err, "Failed to save generation")
		return
	}
	mode, ok := domain.ParseMode(body.Type)
	if !ok {
		a.error(w, http.StatusBadRequest, "type must be image or video", "type")
		return
	}
	rec := &domain.GenerationRecord{
		OwnerID:             a.owner(r),
		Mode:                mode,
		Prompt:              body.Prompt,
		Settings:            body.Settings,
		ReferenceImageCount: body.GroundingImageCount,
		Result: domain.GenerationResult{
			MediaURL:      strings.TrimSpace(body.Result.MediaURL),
			ContentType:   body.Result.ContentType,
			RevisedPrompt: body.Result.RevisedPrompt,
		},
	}
	if rec.Result.MediaURL == "" && body.Result.MediaInlinePayload != "" {
		data, err := normalize.DecodeInline(body.Result.MediaInlinePayload)
		if err != nil {
			a.error(w, http.StatusBadRequest, "mediaInlinePayload must be base64 encoded", "result.mediaInlinePayload")
			return
		}
		rec.Result.MediaInlinePayload = data
	}
	saved, err := a.History.Save(r.Context(), rec)
	if err != nil {
		a.fail(w, r, err, "Failed to save generation")
		return
	}
	a.json(w, http.StatusCreated, saved)
}

func (a *App) DeleteGeneration(w http.ResponseWriter, r *http.Request) {
	if err := a.History.Delete(r.Context(), chi.URLParam(r, "id"), a.owner(r)); err != nil {
		a.fail(w, r, err, "Failed to delete generation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) withReadURL(r *http.Request, rec domain.GenerationRecord) domain.GenerationRecord {
	url, err := a.History.ReadURL(r.Context(), &rec)
	if err != nil {
		a.log().Warn().Err(err).Str("id", rec.ID).Msg("history: resolve media url failed")
		return rec
	}
	rec.Result.MediaURL = url
	return rec
}
