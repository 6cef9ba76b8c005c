package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel/attribute"

	"letssora/internal/domain"
	"letssora/internal/observability"
)

// MinioOptions configures an S3-compatible media store.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore keeps media in an S3-compatible bucket with public-read URLs of
// the form <scheme>://<endpoint>/<bucket>/<key>.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewMinioStore connects and creates the bucket when missing.
func NewMinioStore(ctx context.Context, opts MinioOptions) (*MinioStore, error) {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, errors.New("storage: minio endpoint is required")
	}
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		bucket = "media"
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create minio client: %w", err)
	}
	scheme := "http"
	if opts.UseSSL {
		scheme = "https"
	}
	s := &MinioStore{
		client:  client,
		bucket:  bucket,
		baseURL: fmt.Sprintf("%s://%s/%s", scheme, strings.TrimRight(opts.Endpoint, "/"), bucket),
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context) error {
	ctx, span := observability.StartSpan(ctx, "minio_ensure_bucket", attribute.String("minio.bucket", s.bucket))
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err == nil && !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	}
	observability.EndSpan(span, err)
	if err != nil {
		return fmt.Errorf("storage: ensure bucket: %w", err)
	}
	return nil
}

func (s *MinioStore) Upload(ctx context.Context, data []byte, extension, contentType string) (string, error) {
	key := newObjectKey(extension)
	ctx, span := observability.StartSpan(ctx, "minio_upload",
		attribute.String("minio.bucket", s.bucket),
		attribute.String(observability.AttrObjectKey, key),
		attribute.Int("minio.size", len(data)),
	)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	observability.EndSpan(span, err)
	if err != nil {
		return "", fmt.Errorf("storage: upload to minio: %w", err)
	}
	return s.baseURL + "/" + key, nil
}

// Delete removes the object behind mediaURL. URLs outside the bucket are
// ignored.
func (s *MinioStore) Delete(ctx context.Context, mediaURL string) error {
	if !strings.HasPrefix(mediaURL, s.baseURL+"/") {
		return nil
	}
	key, err := objectKey(mediaURL)
	if err != nil {
		return err
	}
	ctx, span := observability.StartSpan(ctx, "minio_delete",
		attribute.String("minio.bucket", s.bucket),
		attribute.String(observability.AttrObjectKey, key),
	)
	err = s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	observability.EndSpan(span, err)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return domain.ErrNotFound
		}
		return fmt.Errorf("storage: delete from minio: %w", err)
	}
	return nil
}

// ReadURL returns mediaURL unchanged.
func (s *MinioStore) ReadURL(ctx context.Context, mediaURL string) (string, error) {
	return mediaURL, nil
}

var _ domain.MediaStore = (*MinioStore)(nil)
