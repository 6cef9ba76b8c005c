package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"letssora/internal/domain"
)

type submitSessionRequest struct {
	Mode            string   `json:"mode"`
	Prompt          string   `json:"prompt"`
	Size            string   `json:"size"`
	Quality         string   `json:"quality"`
	DurationSeconds int      `json:"durationSeconds"`
	ReferenceImages []string `json:"referenceImages"`
	// Replace abandons an in-flight job instead of answering 409.
	Replace bool `json:"replace"`
}

type busyResponse struct {
	errorBody
	Snapshot any `json:"snapshot"`
}

// SubmitSession starts a generation on the session's controller. Video jobs
// keep polling after the response; clients follow them with GetSession.
func (a *App) SubmitSession(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		a.error(w, http.StatusBadRequest, "Session id is required", "sessionID")
		return
	}
	var body submitSessionRequest
	if err := decode(w, r, &body); err != nil {
		a.fail(w, r, err, "Failed to submit generation")
		return
	}
	mode, ok := domain.ParseMode(body.Mode)
	if !ok {
		a.error(w, http.StatusBadRequest, "mode must be image or video", "mode")
		return
	}
	refs, err := decodeReferences(body.ReferenceImages)
	if err != nil {
		a.fail(w, r, err, "Failed to submit generation")
		return
	}

	ctrl, err := a.Sessions.GetOrCreate(a.owner(r), sessionID)
	if err != nil {
		a.fail(w, r, err, "Failed to submit generation")
		return
	}
	if body.Replace {
		ctrl.Reset()
	}
	snap, err := ctrl.Submit(r.Context(), domain.GenerationRequest{
		Mode:            mode,
		Prompt:          body.Prompt,
		Size:            body.Size,
		Quality:         body.Quality,
		DurationSeconds: body.DurationSeconds,
		ReferenceImages: refs,
	})
	if errors.Is(err, domain.ErrBusy) {
		a.json(w, http.StatusConflict, busyResponse{
			errorBody: errorBody{Error: "A generation is already in progress", Details: string(snap.State)},
			Snapshot:  snap,
		})
		return
	}
	if err != nil {
		a.fail(w, r, err, "Failed to submit generation")
		return
	}
	a.json(w, http.StatusAccepted, snap)
}

func (a *App) GetSession(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := a.Sessions.Get(a.owner(r), chi.URLParam(r, "sessionID"))
	if !ok {
		a.error(w, http.StatusNotFound, "Session not found", "")
		return
	}
	a.json(w, http.StatusOK, ctrl.Snapshot())
}

// DeleteSession abandons any in-flight job and forgets the session.
func (a *App) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if !a.Sessions.Remove(a.owner(r), chi.URLParam(r, "sessionID")) {
		a.error(w, http.StatusNotFound, "Session not found", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
