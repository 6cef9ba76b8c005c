package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"letssora/internal/domain"
)

// MemoryGenerationRepository keeps history in process memory. It mirrors the
// PostgreSQL repository's ordering and cursor semantics.
type MemoryGenerationRepository struct {
	mu      sync.RWMutex
	records map[string][]domain.GenerationRecord
}

func NewMemoryGenerationRepository() *MemoryGenerationRepository {
	return &MemoryGenerationRepository{records: map[string][]domain.GenerationRecord{}}
}

// Save inserts record. CreatedAt is raised to one microsecond past the owner's
// newest timestamp when it would otherwise not sort first.
func (r *MemoryGenerationRepository) Save(ctx context.Context, record *domain.GenerationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	owned := r.records[record.OwnerID]
	for _, existing := range owned {
		if existing.ID == record.ID {
			return &domain.ValidationError{Field: "id", Message: "already exists"}
		}
	}
	if len(owned) > 0 && !record.CreatedAt.After(owned[0].CreatedAt) {
		record.CreatedAt = owned[0].CreatedAt.Add(time.Microsecond)
	}
	owned = append(owned, cloneRecord(*record))
	sort.SliceStable(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID > owned[j].ID
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})
	r.records[record.OwnerID] = owned
	return nil
}

func (r *MemoryGenerationRepository) Get(ctx context.Context, id, ownerID string) (*domain.GenerationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records[ownerID] {
		if rec.ID == id {
			out := cloneRecord(rec)
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MemoryGenerationRepository) List(ctx context.Context, ownerID string, limit int, token string) (*domain.Page, error) {
	after, err := decodeCursor(token)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	page := &domain.Page{Records: []domain.GenerationRecord{}}
	for _, rec := range r.records[ownerID] {
		if after != nil && !after.before(rec) {
			continue
		}
		if len(page.Records) == limit {
			page.NextCursor = encodeCursor(page.Records[len(page.Records)-1])
			break
		}
		page.Records = append(page.Records, cloneRecord(rec))
	}
	return page, nil
}

func (r *MemoryGenerationRepository) Delete(ctx context.Context, id, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	owned := r.records[ownerID]
	for i, rec := range owned {
		if rec.ID == id {
			r.records[ownerID] = append(owned[:i:i], owned[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func cloneRecord(rec domain.GenerationRecord) domain.GenerationRecord {
	if rec.Settings != nil {
		settings := make(map[string]any, len(rec.Settings))
		for k, v := range rec.Settings {
			settings[k] = v
		}
		rec.Settings = settings
	}
	if rec.Result.MediaInlinePayload != nil {
		rec.Result.MediaInlinePayload = append([]byte(nil), rec.Result.MediaInlinePayload...)
	}
	return rec
}

var _ domain.HistoryStore = (*MemoryGenerationRepository)(nil)
