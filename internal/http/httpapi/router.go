package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	servertiming "github.com/mitchellh/go-server-timing"

	"letssora/internal/http/handlers"
	"letssora/internal/infra"
	"letssora/internal/middleware"
)

// Options configures the router's ambient middleware and static mounts.
type Options struct {
	Logger          *infra.Logger
	CORSOrigins     []string
	JWTSecret       string
	DefaultOwner    string
	RateLimitPerMin int
	// MediaDir, when set, is served under MediaPath for the filesystem store.
	MediaDir  string
	MediaPath string
	// StaticDir, when set, serves the built UI with index.html fallback.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		func(next http.Handler) http.Handler { return servertiming.Middleware(next, nil) },
		middleware.CORS(opts.CORSOrigins),
		middleware.Owner(middleware.OwnerOptions{JWTSecret: opts.JWTSecret, DefaultOwner: opts.DefaultOwner}),
		middleware.Logger(opts.Logger),
	)

	limited := middleware.RateLimit(opts.RateLimitPerMin, time.Minute)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", app.Health)

		r.With(limited).Post("/generate-image", app.GenerateImage)
		r.With(limited).Post("/refine-image", app.RefineImage)
		r.With(limited).Post("/generate-video", app.GenerateVideo)
		r.Get("/video-status/{id}", app.VideoStatus)
		r.Get("/video-content/{id}", app.VideoContent)
		r.Post("/save-video", app.SaveVideo)
		r.Get("/download-video", app.DownloadVideo)

		r.Route("/generations", func(r chi.Router) {
			r.Get("/", app.ListGenerations)
			r.Post("/", app.SaveGeneration)
			r.Get("/{id}", app.GetGeneration)
			r.Delete("/{id}", app.DeleteGeneration)
		})

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", app.GetSession)
			r.Delete("/", app.DeleteSession)
			r.With(limited).Post("/submit", app.SubmitSession)
		})
	})

	if dir := strings.TrimSpace(opts.MediaDir); dir != "" {
		prefix := "/" + strings.Trim(opts.MediaPath, "/")
		if prefix == "/" {
			prefix = "/media"
		}
		r.Handle(prefix+"/*", http.StripPrefix(prefix+"/", http.FileServer(http.Dir(dir))))
	}
	if dir := strings.TrimSpace(opts.StaticDir); dir != "" {
		r.Handle("/*", spaHandler(dir))
	}

	return r
}
