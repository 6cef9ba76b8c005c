// Package bootstrap assembles the service graph shared by the binaries.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"letssora/internal/adapter/repo"
	"letssora/internal/domain"
	"letssora/internal/history"
	"letssora/internal/infra"
	"letssora/internal/infra/credentials"
	"letssora/internal/lifecycle"
	"letssora/internal/observability"
	"letssora/internal/providers/genai"
	"letssora/internal/providers/image"
	"letssora/internal/providers/video"
	"letssora/internal/storage"
)

// Services is the wired application. Close releases the database pool.
type Services struct {
	Config  *infra.Config
	Client  *genai.Client
	Images  *image.Generator
	Videos  *video.Jobs
	History *history.Service
	Media   domain.MediaStore
	Metrics *observability.Metrics

	pool *pgxpool.Pool
}

// Build connects the stores and constructs every component from cfg. Without
// DATABASE_URL history lives in memory.
func Build(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (*Services, error) {
	if logger == nil {
		logger = infra.NopLogger()
	}
	s := &Services{Config: cfg, Metrics: observability.NewMetrics(nil)}

	var (
		historyStore domain.HistoryStore
		tokens       credentials.TokenSource = credentials.StaticToken(cfg.GenAIAPIKey)
	)
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		s.pool = pool
		runner := infra.NewSQLRunner(pool, *logger)

		pg := repo.NewGenerationRepository(runner)
		if err := pg.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("bootstrap: generations schema: %w", err)
		}
		historyStore = pg

		if cfg.GenAITokenProvider == "store" {
			store := credentials.NewStore(runner)
			if err := store.EnsureSchema(ctx); err != nil {
				s.Close()
				return nil, fmt.Errorf("bootstrap: credentials schema: %w", err)
			}
			tokens = store
		}
	} else {
		logger.Warn().Msg("bootstrap: DATABASE_URL not set; history is kept in memory")
		historyStore = repo.NewMemoryGenerationRepository()
	}

	media, err := storage.New(ctx, cfg, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	s.Media = media

	client, err := genai.NewClient(genai.Options{
		BaseURL:    cfg.GenAIBaseURL,
		ImageModel: cfg.ImageModel,
		VideoModel: cfg.VideoModel,
		Tokens:     tokens,
		HTTPClient: &http.Client{Timeout: cfg.UpstreamTimeout},
		Logger:     logger,

		TrustedHosts: cfg.DownloadAuthHosts,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	s.Client = client
	s.Images = image.NewGenerator(client, image.Options{DefaultSize: cfg.DefaultImageSize, Logger: logger})
	s.Videos = video.NewJobs(client, video.Options{
		DefaultSize:    cfg.DefaultVideoSize,
		DefaultSeconds: cfg.DefaultVideoSecs,
		Logger:         logger,
	})
	s.History = history.NewService(historyStore, media, history.Options{
		DefaultOwnerID: cfg.DefaultOwnerID,
		Logger:         logger,
	})
	return s, nil
}

// LifecycleDeps returns the collaborators of a lifecycle controller.
func (s *Services) LifecycleDeps() lifecycle.Deps {
	return lifecycle.Deps{Images: s.Images, Videos: s.Videos, Persister: s.History}
}

// LifecycleOptions returns controller options derived from the config.
func (s *Services) LifecycleOptions(owner string, logger *infra.Logger) lifecycle.Options {
	return lifecycle.Options{
		PollInterval:    s.Config.PollInterval,
		MaxPollDuration: s.Config.PollTimeout,
		OwnerID:         owner,
		Logger:          logger,
		Metrics:         s.Metrics,

		SessionTTL:       s.Config.SessionTTL,
		MaxOwnerSessions: s.Config.MaxOwnerSessions,
	}
}

func (s *Services) Close() {
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}
