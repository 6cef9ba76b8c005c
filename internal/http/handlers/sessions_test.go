package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"letssora/internal/lifecycle"
	"letssora/internal/normalize"
	"letssora/internal/providers/video"
)

func TestSubmitSessionImageCompletes(t *testing.T) {
	app, _, _ := newTestApp(t)
	rr := httptest.NewRecorder()
	req := withParam(jsonRequest(t, http.MethodPost, "/api/sessions/s1/submit", map[string]any{
		"mode": "image", "prompt": "a lighthouse",
	}), "sessionID", "s1")
	app.SubmitSession(rr, req)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Equal(t, "completed", body["state"])
	require.NotNil(t, body["record"])

	rr = httptest.NewRecorder()
	app.GetSession(rr, withParam(jsonRequest(t, http.MethodGet, "/api/sessions/s1", nil), "sessionID", "s1"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "completed", decodeBody(t, rr)["state"])

	rr = httptest.NewRecorder()
	app.ListGenerations(rr, jsonRequest(t, http.MethodGet, "/api/generations", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody(t, rr)["generations"], 1)
}

func TestSubmitSessionBusyAndReplace(t *testing.T) {
	app, _, videos := newTestApp(t)
	videos.job = &video.Job{ID: "video_1", Document: normalize.Document{"id": "video_1", "status": "queued"}}

	submit := func(body map[string]any) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		app.SubmitSession(rr, withParam(jsonRequest(t, http.MethodPost, "/api/sessions/s1/submit", body), "sessionID", "s1"))
		return rr
	}

	rr := submit(map[string]any{"mode": "video", "prompt": "waves"})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.Equal(t, "polling", decodeBody(t, rr)["state"])

	rr = submit(map[string]any{"mode": "image", "prompt": "cat"})
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "polling", decodeBody(t, rr)["details"])

	rr = submit(map[string]any{"mode": "image", "prompt": "cat", "replace": true})
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "completed", decodeBody(t, rr)["state"])
}

func TestSubmitSessionValidation(t *testing.T) {
	app, images, _ := newTestApp(t)
	rr := httptest.NewRecorder()
	app.SubmitSession(rr, withParam(jsonRequest(t, http.MethodPost, "/api/sessions/s1/submit", map[string]any{
		"mode": "image", "prompt": "",
	}), "sessionID", "s1"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, images.calls)

	rr = httptest.NewRecorder()
	app.SubmitSession(rr, withParam(jsonRequest(t, http.MethodPost, "/api/sessions/s1/submit", map[string]any{
		"mode": "audio", "prompt": "x",
	}), "sessionID", "s1"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteSession(t *testing.T) {
	app, _, _ := newTestApp(t)
	rr := httptest.NewRecorder()
	app.DeleteSession(rr, withParam(jsonRequest(t, http.MethodDelete, "/api/sessions/nope", nil), "sessionID", "nope"))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	_, err := app.Sessions.GetOrCreate("alice", "s2")
	require.NoError(t, err)
	rr = httptest.NewRecorder()
	app.DeleteSession(rr, withParam(jsonRequest(t, http.MethodDelete, "/api/sessions/s2", nil), "sessionID", "s2"))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 0, app.Sessions.Len())
}

func TestSubmitSessionOwnerAtCap(t *testing.T) {
	app, images, videos := newTestApp(t)
	videos.job = &video.Job{ID: "video_1", Document: normalize.Document{"id": "video_1", "status": "queued"}}
	app.Sessions = lifecycle.NewSessions(
		lifecycle.Deps{Images: images, Videos: videos, Persister: app.History},
		lifecycle.Options{
			After:            func(time.Duration) <-chan time.Time { return make(chan time.Time) },
			MaxOwnerSessions: 1,
		},
	)
	defer app.Sessions.ResetAll()

	submit := func(sessionID string, body map[string]any) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		app.SubmitSession(rr, withParam(jsonRequest(t, http.MethodPost, "/api/sessions/"+sessionID+"/submit", body), "sessionID", sessionID))
		return rr
	}

	rr := submit("s1", map[string]any{"mode": "video", "prompt": "waves"})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	rr = submit("s2", map[string]any{"mode": "image", "prompt": "cat"})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code, rr.Body.String())
	assert.Equal(t, 1, app.Sessions.Len())
}
