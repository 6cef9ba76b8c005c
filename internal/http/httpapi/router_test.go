package httpapi

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"letssora/internal/adapter/repo"
	"letssora/internal/history"
	"letssora/internal/http/handlers"
	"letssora/internal/lifecycle"
)

func newTestRouter(t *testing.T, opts Options) http.Handler {
	t.Helper()
	hist := history.NewService(repo.NewMemoryGenerationRepository(), nil, history.Options{})
	app := &handlers.App{
		History:  hist,
		Sessions: lifecycle.NewSessions(lifecycle.Deps{Persister: hist}, lifecycle.Options{}),
		Info:     handlers.Info{ImageModel: "gpt-image-1", VideoModel: "sora-2"},
		Now:      func() time.Time { return time.Unix(0, 0) },
	}
	return NewRouter(app, opts)
}

func TestRouterHealthAndHeaders(t *testing.T) {
	router := newTestRouter(t, Options{CORSOrigins: []string{"http://localhost:5173"}, DefaultOwner: "default"})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterGenerationsScopedByHeaderOwner(t *testing.T) {
	router := newTestRouter(t, Options{DefaultOwner: "default"})
	req := httptest.NewRequest(http.MethodGet, "/api/generations", nil)
	req.Header.Set("X-User-ID", "bob")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"generations":[]}`, rr.Body.String())
}

func TestRouterRateLimitsGeneration(t *testing.T) {
	router := newTestRouter(t, Options{DefaultOwner: "default", RateLimitPerMin: 1})
	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/generate-image", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr.Code
	}
	assert.Equal(t, http.StatusBadRequest, post())
	assert.Equal(t, http.StatusTooManyRequests, post())
}

func TestRouterServesMediaAndSPA(t *testing.T) {
	media := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(media, "a.png"), []byte("png"), 0o644))
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<html>app</html>"), 0o644))

	router := newTestRouter(t, Options{MediaDir: media, MediaPath: "/media", StaticDir: static})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/media/a.png", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "png", rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/history/123", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "app")
}
