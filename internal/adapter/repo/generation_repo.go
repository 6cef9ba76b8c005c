package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"letssora/internal/domain"
	"letssora/internal/infra"
	"letssora/internal/sqlinline"
)

// GenerationRepositoryPG implements domain.HistoryStore on PostgreSQL.
type GenerationRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewGenerationRepository creates a repository backed by audited SQL.
func NewGenerationRepository(sql infra.SQLExecutor) *GenerationRepositoryPG {
	return &GenerationRepositoryPG{sql: sql}
}

// EnsureSchema creates the generations table and index when missing.
func (r *GenerationRepositoryPG) EnsureSchema(ctx context.Context) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QCreateGenerationsTable); err != nil {
		return fmt.Errorf("repo: create generations table: %w", err)
	}
	if _, err := r.sql.Exec(ctx, sqlinline.QCreateGenerationsOwnerIndex); err != nil {
		return fmt.Errorf("repo: create generations index: %w", err)
	}
	return nil
}

// Save inserts record and writes back the stored created_at.
func (r *GenerationRepositoryPG) Save(ctx context.Context, record *domain.GenerationRecord) error {
	settings, err := json.Marshal(record.Settings)
	if err != nil {
		return fmt.Errorf("repo: marshal settings: %w", err)
	}
	result, err := json.Marshal(record.Result)
	if err != nil {
		return fmt.Errorf("repo: marshal result: %w", err)
	}
	var createdAt time.Time
	err = r.sql.QueryRow(ctx, sqlinline.QInsertGeneration,
		record.ID,
		record.OwnerID,
		string(record.Mode),
		record.Prompt,
		settings,
		result,
		record.ReferenceImageCount,
		record.CreatedAt,
	).Scan(&createdAt)
	if err != nil {
		return unavailable("insert generation", err)
	}
	record.CreatedAt = createdAt.UTC()
	return nil
}

func (r *GenerationRepositoryPG) Get(ctx context.Context, id, ownerID string) (*domain.GenerationRecord, error) {
	rec, err := scanGeneration(r.sql.QueryRow(ctx, sqlinline.QSelectGeneration, id, ownerID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, unavailable("get generation", err)
	}
	return rec, nil
}

// List pages newest first using a keyset on (created_at, id).
func (r *GenerationRepositoryPG) List(ctx context.Context, ownerID string, limit int, token string) (*domain.Page, error) {
	after, err := decodeCursor(token)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	var (
		afterTime *time.Time
		afterID   string
	)
	if after != nil {
		afterTime = &after.CreatedAt
		afterID = after.ID
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListGenerations, ownerID, afterTime, afterID, limit+1)
	if err != nil {
		return nil, unavailable("list generations", err)
	}
	defer rows.Close()

	page := &domain.Page{Records: []domain.GenerationRecord{}}
	for rows.Next() {
		rec, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("repo: scan generation: %w", err)
		}
		page.Records = append(page.Records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list generations", err)
	}
	if len(page.Records) > limit {
		page.Records = page.Records[:limit]
		page.NextCursor = encodeCursor(page.Records[limit-1])
	}
	return page, nil
}

func (r *GenerationRepositoryPG) Delete(ctx context.Context, id, ownerID string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteGeneration, id, ownerID)
	if err != nil {
		return unavailable("delete generation", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// unavailable marks a driver failure so callers can tell an unreachable
// database apart from a bad request.
func unavailable(action string, err error) error {
	return fmt.Errorf("repo: %s: %w: %w", action, domain.ErrStoreUnavailable, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGeneration(row rowScanner) (*domain.GenerationRecord, error) {
	var (
		rec      domain.GenerationRecord
		mode     string
		settings []byte
		result   []byte
	)
	if err := row.Scan(
		&rec.ID,
		&rec.OwnerID,
		&mode,
		&rec.Prompt,
		&settings,
		&result,
		&rec.ReferenceImageCount,
		&rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	rec.Mode = domain.Mode(mode)
	rec.CreatedAt = rec.CreatedAt.UTC()
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &rec.Settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &rec.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	return &rec, nil
}

var _ domain.HistoryStore = (*GenerationRepositoryPG)(nil)
