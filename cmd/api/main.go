package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"letssora/internal/bootstrap"
	"letssora/internal/http/handlers"
	httpapi "letssora/internal/http/httpapi"
	"letssora/internal/infra"
	"letssora/internal/lifecycle"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := bootstrap.Build(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise services")
	}
	defer services.Close()

	sessions := lifecycle.NewSessions(services.LifecycleDeps(), services.LifecycleOptions(cfg.DefaultOwnerID, &logger))
	app := &handlers.App{
		Images:     services.Images,
		Videos:     services.Videos,
		Downloader: services.Client,
		History:    services.History,
		Sessions:   sessions,
		Info: handlers.Info{
			ImageModel: cfg.ImageModel,
			VideoModel: cfg.VideoModel,
			Endpoint:   cfg.GenAIBaseURL,
		},
		Logger: &logger,
	}

	routerOpts := httpapi.Options{
		Logger:          &logger,
		CORSOrigins:     cfg.CORSAllowedOrigins,
		JWTSecret:       cfg.JWTSecret,
		DefaultOwner:    cfg.DefaultOwnerID,
		RateLimitPerMin: cfg.RateLimitPerMin,
		StaticDir:       cfg.StaticDir,
	}
	if cfg.MediaBackend == infra.MediaBackendFilesystem {
		routerOpts.MediaDir = cfg.StoragePath
		routerOpts.MediaPath = "/media"
	}
	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, routerOpts))

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("image_model", cfg.ImageModel).
			Str("video_model", cfg.VideoModel).
			Str("media_backend", cfg.MediaBackend).
			Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	sessions.ResetAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
