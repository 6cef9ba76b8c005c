package domain

import "context"

// HistoryStore persists generation records partitioned by owner.
type HistoryStore interface {
	Save(ctx context.Context, record *GenerationRecord) error
	Get(ctx context.Context, id, ownerID string) (*GenerationRecord, error)
	List(ctx context.Context, ownerID string, limit int, cursor string) (*Page, error)
	Delete(ctx context.Context, id, ownerID string) error
}

// MediaStore persists binary media and hands back a retrievable URL.
type MediaStore interface {
	Upload(ctx context.Context, data []byte, extension, contentType string) (string, error)
	Delete(ctx context.Context, mediaURL string) error
	ReadURL(ctx context.Context, mediaURL string) (string, error)
}
