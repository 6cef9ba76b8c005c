// Package storage implements the media stores behind domain.MediaStore.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"letssora/internal/domain"
	"letssora/internal/infra"
)

// New selects the media store configured by cfg.MediaBackend. The "none"
// backend returns a nil store; callers then keep inline payloads on records.
func New(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (domain.MediaStore, error) {
	if logger == nil {
		logger = infra.NopLogger()
	}
	switch cfg.MediaBackend {
	case infra.MediaBackendNone, "":
		logger.Warn().Msg("storage: no media backend configured; inline media will be stored on history records")
		return nil, nil
	case infra.MediaBackendFilesystem:
		store, err := NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", store.BasePath()).Msg("storage: using filesystem media store")
		return store, nil
	case infra.MediaBackendMinio:
		store, err := NewMinioStore(ctx, MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, err
		}
		logger.Info().Str("endpoint", cfg.MinioEndpoint).Str("bucket", cfg.MinioBucket).Msg("storage: using minio media store")
		return store, nil
	case infra.MediaBackendSupabase:
		store, err := NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("bucket", cfg.SupabaseBucket).Msg("storage: using supabase media store")
		return store, nil
	default:
		return nil, fmt.Errorf("storage: unsupported media backend %q", cfg.MediaBackend)
	}
}

// objectKey derives the object name from the last path segment of mediaURL.
func objectKey(mediaURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(mediaURL))
	if err != nil {
		return "", fmt.Errorf("storage: parse media url: %w", err)
	}
	key := path.Base(u.Path)
	if key == "." || key == "/" || key == ".." || key == "" {
		return "", errors.New("storage: media url has no object key")
	}
	return key, nil
}
