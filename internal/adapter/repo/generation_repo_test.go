package repo

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"letssora/internal/domain"
	"letssora/internal/sqlinline"
)

type stubExecutor struct {
	queries  []string
	args     [][]any
	row      pgx.Row
	rows     *stubRows
	affected int64
	err      error
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.queries = append(s.queries, query)
	s.args = append(s.args, args)
	if s.err != nil {
		return pgconn.CommandTag{}, s.err
	}
	return pgconn.NewCommandTag("DELETE " + strconv.FormatInt(s.affected, 10)), nil
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.queries = append(s.queries, query)
	s.args = append(s.args, args)
	return s.row
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	s.queries = append(s.queries, query)
	s.args = append(s.args, args)
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}

type rowFunc func(dest ...any) error

func (f rowFunc) Scan(dest ...any) error { return f(dest...) }

// generationValues fills Scan destinations in select column order.
func generationValues(rec domain.GenerationRecord) rowFunc {
	return func(dest ...any) error {
		settings, _ := json.Marshal(rec.Settings)
		result, _ := json.Marshal(rec.Result)
		*dest[0].(*string) = rec.ID
		*dest[1].(*string) = rec.OwnerID
		*dest[2].(*string) = string(rec.Mode)
		*dest[3].(*string) = rec.Prompt
		*dest[4].(*[]byte) = settings
		*dest[5].(*[]byte) = result
		*dest[6].(*int) = rec.ReferenceImageCount
		*dest[7].(*time.Time) = rec.CreatedAt
		return nil
	}
}

type stubRows struct {
	pgx.Rows
	records []domain.GenerationRecord
	idx     int
}

func (r *stubRows) Next() bool {
	if r.idx >= len(r.records) {
		return false
	}
	r.idx++
	return true
}

func (r *stubRows) Scan(dest ...any) error { return generationValues(r.records[r.idx-1])(dest...) }
func (r *stubRows) Err() error             { return nil }
func (r *stubRows) Close()                 {}

func TestPGSaveWritesBackCreatedAt(t *testing.T) {
	stored := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	exec := &stubExecutor{row: rowFunc(func(dest ...any) error {
		*dest[0].(*time.Time) = stored
		return nil
	})}
	repo := NewGenerationRepository(exec)
	rec := newRecord("r1", "alice", stored.Add(-time.Hour))
	rec.Settings = map[string]any{"size": "1024x1024"}

	if err := repo.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !rec.CreatedAt.Equal(stored) {
		t.Fatalf("created_at = %v, want %v", rec.CreatedAt, stored)
	}
	if exec.queries[0] != sqlinline.QInsertGeneration {
		t.Fatalf("unexpected query")
	}
	if !strings.Contains(exec.queries[0], "+ interval '1 microsecond'") {
		t.Fatalf("insert must place created_at strictly after the newest record")
	}
	if got := exec.args[0][4].([]byte); string(got) != `{"size":"1024x1024"}` {
		t.Fatalf("settings arg = %s", got)
	}
}

func TestPGGetNotFound(t *testing.T) {
	exec := &stubExecutor{row: rowFunc(func(dest ...any) error { return pgx.ErrNoRows })}
	_, err := NewGenerationRepository(exec).Get(context.Background(), "missing", "alice")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGGetDecodesRecord(t *testing.T) {
	want := *newRecord("r1", "alice", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	want.ReferenceImageCount = 2
	exec := &stubExecutor{row: generationValues(want)}
	got, err := NewGenerationRepository(exec).Get(context.Background(), "r1", "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Prompt != want.Prompt || got.Result.MediaURL != want.Result.MediaURL || got.ReferenceImageCount != 2 {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestPGListFetchesOneExtraForCursor(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	exec := &stubExecutor{rows: &stubRows{records: []domain.GenerationRecord{
		*newRecord("r3", "alice", base.Add(3*time.Minute)),
		*newRecord("r2", "alice", base.Add(2*time.Minute)),
		*newRecord("r1", "alice", base.Add(time.Minute)),
	}}}
	page, err := NewGenerationRepository(exec).List(context.Background(), "alice", 2, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Records) != 2 || page.NextCursor == "" {
		t.Fatalf("unexpected page: %d records, cursor %q", len(page.Records), page.NextCursor)
	}
	if got := exec.args[0][3]; got != 3 {
		t.Fatalf("limit arg = %v, want 3", got)
	}
	c, err := decodeCursor(page.NextCursor)
	if err != nil || c.ID != "r2" {
		t.Fatalf("cursor = %+v, %v", c, err)
	}
}

func TestPGDeleteNotFound(t *testing.T) {
	exec := &stubExecutor{affected: 0}
	if err := NewGenerationRepository(exec).Delete(context.Background(), "r1", "alice"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	exec.affected = 1
	if err := NewGenerationRepository(exec).Delete(context.Background(), "r1", "alice"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestPGDriverFailuresReportStoreUnavailable(t *testing.T) {
	down := errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	exec := &stubExecutor{
		err: down,
		row: rowFunc(func(dest ...any) error { return down }),
	}
	repo := NewGenerationRepository(exec)
	ctx := context.Background()

	checks := map[string]error{
		"save":   repo.Save(ctx, newRecord("r1", "alice", time.Now())),
		"delete": repo.Delete(ctx, "r1", "alice"),
	}
	_, checks["get"] = repo.Get(ctx, "r1", "alice")
	_, checks["list"] = repo.List(ctx, "alice", 10, "")
	for name, err := range checks {
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			t.Fatalf("%s: expected ErrStoreUnavailable, got %v", name, err)
		}
		if !errors.Is(err, down) {
			t.Fatalf("%s: driver error lost: %v", name, err)
		}
	}
}
