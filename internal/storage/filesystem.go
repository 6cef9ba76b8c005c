package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"letssora/internal/domain"
)

// FileStore persists media onto the local filesystem and serves it under a
// public base URL. It is intended for development and single-node
// deployments where an object storage service is not available.
type FileStore struct {
	basePath string
	baseURL  string
}

// NewFileStore initializes a FileStore rooted at basePath whose objects are
// reachable at baseURL/<key>.
func NewFileStore(basePath, baseURL string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("storage: base URL is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath, baseURL: baseURL}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Upload writes data under a fresh <uuid>.<ext> key and returns its URL.
func (s *FileStore) Upload(ctx context.Context, data []byte, extension, contentType string) (string, error) {
	key, err := s.Write(ctx, newObjectKey(extension), data)
	if err != nil {
		return "", err
	}
	return s.baseURL + "/" + key, nil
}

// Write persists the provided bytes at the given relative key and returns the
// canonicalized storage key. Keys are cleaned to prevent directory traversal.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return cleanKey, nil
}

// Delete removes the object behind mediaURL. URLs outside this store are
// ignored.
func (s *FileStore) Delete(ctx context.Context, mediaURL string) error {
	if !strings.HasPrefix(mediaURL, s.baseURL+"/") {
		return nil
	}
	key, err := objectKey(mediaURL)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.basePath, key)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("storage: delete file: %w", err)
	}
	return nil
}

// ReadURL returns mediaURL unchanged; files are served publicly.
func (s *FileStore) ReadURL(ctx context.Context, mediaURL string) (string, error) {
	return mediaURL, nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

func newObjectKey(extension string) string {
	ext := strings.TrimLeft(strings.ToLower(strings.TrimSpace(extension)), ".")
	if ext == "" {
		ext = "bin"
	}
	return uuid.NewString() + "." + ext
}

var _ domain.MediaStore = (*FileStore)(nil)
