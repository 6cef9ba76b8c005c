package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"letssora/internal/sqlinline"
)

type stubExecutor struct {
	token   string
	err     error
	reads   int
	lastArg any
	exec    struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.reads++
	if len(args) > 0 {
		s.lastArg = args[0]
	}
	return stubRow{token: s.token, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	token string
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) == 0 {
		return errors.New("no dest")
	}
	ptr, ok := dest[0].(*string)
	if !ok {
		return errors.New("invalid dest")
	}
	*ptr = r.token
	return nil
}

func TestStoreTokenTrimsAndReadsEveryCall(t *testing.T) {
	exec := &stubExecutor{token: " abc123 "}
	store := NewStore(exec)
	for i := 0; i < 2; i++ {
		token, err := store.Token(context.Background())
		if err != nil {
			t.Fatalf("Token error: %v", err)
		}
		if token != "abc123" {
			t.Fatalf("expected abc123, got %q", token)
		}
	}
	if exec.reads != 2 {
		t.Fatalf("expected a lookup per call, got %d", exec.reads)
	}
	if exec.lastArg != ProviderGenAI {
		t.Fatalf("provider arg = %v, want %q", exec.lastArg, ProviderGenAI)
	}
}

func TestStoreTokenNoRows(t *testing.T) {
	store := NewStore(&stubExecutor{err: pgx.ErrNoRows})
	if _, err := store.Token(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestSetToken(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	if err := store.SetToken(context.Background(), "", " secret ", map[string]any{"rotated_by": "cli"}); err != nil {
		t.Fatalf("SetToken error: %v", err)
	}
	if !strings.Contains(exec.exec.query, "insert into integration_tokens") {
		t.Fatalf("unexpected query: %s", exec.exec.query)
	}
	if exec.exec.query != sqlinline.QUpsertIntegrationToken {
		t.Fatalf("expected upsert query")
	}
	if got := exec.exec.args[0]; got != ProviderGenAI {
		t.Fatalf("provider = %v, want %q", got, ProviderGenAI)
	}
	if got := exec.exec.args[1]; got != "secret" {
		t.Fatalf("token = %v, want secret", got)
	}
	var props map[string]any
	if err := json.Unmarshal(exec.exec.args[2].([]byte), &props); err != nil {
		t.Fatalf("decode props: %v", err)
	}
	if props["rotated_by"] != "cli" {
		t.Fatalf("props mismatch: %#v", props)
	}
}

func TestSetTokenRequiresValue(t *testing.T) {
	store := NewStore(&stubExecutor{})
	if err := store.SetToken(context.Background(), ProviderGenAI, "  ", nil); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestStaticToken(t *testing.T) {
	if _, err := StaticToken(" ").Token(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
	token, err := StaticToken("key").Token(context.Background())
	if err != nil || token != "key" {
		t.Fatalf("Token() = %q, %v", token, err)
	}
}
