package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"letssora/internal/domain"
	"letssora/internal/history"
)

func saveGeneration(t *testing.T, app *App, prompt string) map[string]any {
	t.Helper()
	rr := httptest.NewRecorder()
	app.SaveGeneration(rr, jsonRequest(t, http.MethodPost, "/api/generations", map[string]any{
		"type":   "image",
		"prompt": prompt,
		"settings": map[string]any{
			"size": "1024x1024",
		},
		"result": map[string]any{
			"mediaInlinePayload": base64.StdEncoding.EncodeToString([]byte(prompt)),
		},
	}))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeBody(t, rr)
}

func TestGenerationsCRUD(t *testing.T) {
	app, _, _ := newTestApp(t)
	first := saveGeneration(t, app, "first")
	second := saveGeneration(t, app, "second")
	assert.Equal(t, "alice", first["userId"])
	assert.NotEmpty(t, first["id"])

	rr := httptest.NewRecorder()
	app.ListGenerations(rr, jsonRequest(t, http.MethodGet, "/api/generations?limit=1", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var page struct {
		Generations []map[string]any `json:"generations"`
		NextCursor  string           `json:"nextCursor"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page.Generations, 1)
	assert.Equal(t, second["id"], page.Generations[0]["id"], "newest first")
	require.NotEmpty(t, page.NextCursor)

	rr = httptest.NewRecorder()
	app.ListGenerations(rr, jsonRequest(t, http.MethodGet, "/api/generations?limit=1&cursor="+page.NextCursor, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page.Generations, 1)
	assert.Equal(t, first["id"], page.Generations[0]["id"])

	id := first["id"].(string)
	rr = httptest.NewRecorder()
	app.DeleteGeneration(rr, withParam(jsonRequest(t, http.MethodDelete, "/api/generations/"+id, nil), "id", id))
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	app.GetGeneration(rr, withParam(jsonRequest(t, http.MethodGet, "/api/generations/"+id, nil), "id", id))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetGenerationETag(t *testing.T) {
	app, _, _ := newTestApp(t)
	saved := saveGeneration(t, app, "etag me")
	id := saved["id"].(string)

	rr := httptest.NewRecorder()
	app.GetGeneration(rr, withParam(jsonRequest(t, http.MethodGet, "/api/generations/"+id, nil), "id", id))
	require.Equal(t, http.StatusOK, rr.Code)
	etag := rr.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := withParam(jsonRequest(t, http.MethodGet, "/api/generations/"+id, nil), "id", id)
	req.Header.Set("If-None-Match", etag)
	rr = httptest.NewRecorder()
	app.GetGeneration(rr, req)
	assert.Equal(t, http.StatusNotModified, rr.Code)
	assert.Empty(t, rr.Body.String())
}

func TestGenerationsOwnerScoped(t *testing.T) {
	app, _, _ := newTestApp(t)
	saved := saveGeneration(t, app, "private")
	id := saved["id"].(string)

	req := withParam(httptest.NewRequest(http.MethodGet, "/api/generations/"+id, nil), "id", id)
	rr := httptest.NewRecorder()
	app.GetGeneration(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSaveGenerationValidation(t *testing.T) {
	app, _, _ := newTestApp(t)
	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "bad type", body: map[string]any{"type": "gif", "prompt": "p", "result": map[string]any{"mediaUrl": "https://x/y.png"}}},
		{name: "empty prompt", body: map[string]any{"type": "image", "prompt": " ", "result": map[string]any{"mediaUrl": "https://x/y.png"}}},
		{name: "no media", body: map[string]any{"type": "video", "prompt": "p"}},
		{name: "bad payload", body: map[string]any{"type": "image", "prompt": "p", "result": map[string]any{"mediaInlinePayload": "%%%"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			app.SaveGeneration(rr, jsonRequest(t, http.MethodPost, "/api/generations", tc.body))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestListGenerationsRejectsBadLimit(t *testing.T) {
	app, _, _ := newTestApp(t)
	rr := httptest.NewRecorder()
	app.ListGenerations(rr, jsonRequest(t, http.MethodGet, "/api/generations?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	app.ListGenerations(rr, jsonRequest(t, http.MethodGet, "/api/generations?cursor=not-a-cursor", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

type downStore struct {
	domain.HistoryStore
}

func (downStore) List(ctx context.Context, ownerID string, limit int, token string) (*domain.Page, error) {
	return nil, fmt.Errorf("repo: list generations: %w: connection refused", domain.ErrStoreUnavailable)
}

func TestListGenerationsStoreUnavailable(t *testing.T) {
	app, _, _ := newTestApp(t)
	app.History = history.NewService(downStore{}, nil, history.Options{})

	rr := httptest.NewRecorder()
	app.ListGenerations(rr, jsonRequest(t, http.MethodGet, "/api/generations", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code, rr.Body.String())
}
