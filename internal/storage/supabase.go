package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	supa "github.com/supabase-community/storage-go"

	"letssora/internal/domain"
)

// SupabaseStore keeps media in a public Supabase Storage bucket.
type SupabaseStore struct {
	client    *supa.Client
	bucket    string
	publicURL string
}

func NewSupabaseStore(supabaseURL, serviceKey, bucket string) (*SupabaseStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(supabaseURL), "/")
	if baseURL == "" || strings.TrimSpace(serviceKey) == "" {
		return nil, errors.New("storage: supabase url and service key are required")
	}
	if bucket = strings.TrimSpace(bucket); bucket == "" {
		bucket = "media"
	}
	return &SupabaseStore{
		client:    supa.NewClient(baseURL+"/storage/v1", serviceKey, nil),
		bucket:    bucket,
		publicURL: fmt.Sprintf("%s/storage/v1/object/public/%s", baseURL, bucket),
	}, nil
}

func (s *SupabaseStore) Upload(ctx context.Context, data []byte, extension, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := newObjectKey(extension)
	upsert := false
	_, err := s.client.UploadFile(s.bucket, key, bytes.NewReader(data), supa.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("storage: upload to supabase: %w", err)
	}
	return s.publicURL + "/" + key, nil
}

// Delete removes the object behind mediaURL. URLs outside the bucket are
// ignored.
func (s *SupabaseStore) Delete(ctx context.Context, mediaURL string) error {
	if !strings.HasPrefix(mediaURL, s.publicURL+"/") {
		return nil
	}
	key, err := objectKey(mediaURL)
	if err != nil {
		return err
	}
	if _, err := s.client.RemoveFile(s.bucket, []string{key}); err != nil {
		return fmt.Errorf("storage: delete from supabase: %w", err)
	}
	return nil
}

// ReadURL returns mediaURL unchanged; the bucket is public.
func (s *SupabaseStore) ReadURL(ctx context.Context, mediaURL string) (string, error) {
	return mediaURL, nil
}

var _ domain.MediaStore = (*SupabaseStore)(nil)
