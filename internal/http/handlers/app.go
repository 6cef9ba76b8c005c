package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"letssora/internal/domain"
	"letssora/internal/history"
	"letssora/internal/infra"
	"letssora/internal/lifecycle"
	"letssora/internal/middleware"
	"letssora/internal/normalize"
	"letssora/internal/providers/genai"
	"letssora/internal/providers/video"
)

// maxBodyBytes bounds JSON bodies, which may carry base64 reference images.
const maxBodyBytes = 50 << 20

// VideoJobs is the video surface used by the HTTP API.
type VideoJobs interface {
	Submit(ctx context.Context, req video.Request) (*video.Job, error)
	Status(ctx context.Context, id string) (normalize.Document, error)
	Content(ctx context.Context, id string) (*genai.Content, error)
}

// Downloader fetches remote media on behalf of the browser.
type Downloader interface {
	Download(ctx context.Context, url string) (*genai.Content, error)
}

// Info is reported by the health endpoint.
type Info struct {
	ImageModel string
	VideoModel string
	Endpoint   string
}

// App bundles the collaborators of every handler.
type App struct {
	Images     lifecycle.ImageSubmitter
	Videos     VideoJobs
	Downloader Downloader
	History    *history.Service
	Sessions   *lifecycle.Sessions
	Info       Info
	Logger     *infra.Logger
	Now        func() time.Time
}

func (a *App) log() *infra.Logger {
	if a.Logger == nil {
		return infra.NopLogger()
	}
	return a.Logger
}

func (a *App) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

func (a *App) owner(r *http.Request) string {
	return middleware.OwnerFromContext(r.Context())
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, message, details string) {
	a.json(w, code, errorBody{Error: message, Details: details})
}

// fail maps err onto an HTTP status. summary names the failed operation and
// is used when err carries no user-facing text of its own.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error, summary string) {
	var (
		ve *domain.ValidationError
		pe *history.PersistError
	)
	if ue, ok := genai.AsUpstream(err); ok {
		status := ue.StatusCode
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		a.log().Warn().Err(err).Int("upstream_status", ue.StatusCode).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg(summary)
		a.error(w, status, summary, ue.Error())
		return
	}
	switch {
	case errors.As(err, &ve):
		a.error(w, http.StatusBadRequest, ve.Message, ve.Field)
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "Not found", "")
	case errors.Is(err, domain.ErrBusy):
		a.error(w, http.StatusConflict, "A generation is already in progress", "")
	case errors.Is(err, domain.ErrTooManySessions):
		a.error(w, http.StatusTooManyRequests, "Too many active sessions", "")
	case errors.As(err, &pe):
		a.log().Error().Err(err).Str("stage", pe.Stage).Msg(summary)
		a.error(w, http.StatusInternalServerError, summary, pe.Err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		a.log().Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg(summary)
		a.error(w, http.StatusServiceUnavailable, summary, "history store unavailable")
	default:
		a.log().Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg(summary)
		a.error(w, http.StatusInternalServerError, summary, err.Error())
	}
}

// decode reads a JSON body, reporting malformed input as a validation error.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &domain.ValidationError{Field: "body", Message: "Invalid JSON payload"}
	}
	return nil
}

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": a.now().UTC().Format(time.RFC3339),
		"models": map[string]string{
			"image": a.Info.ImageModel,
			"video": a.Info.VideoModel,
		},
		"endpoint": a.Info.Endpoint,
	})
}
