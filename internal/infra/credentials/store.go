package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"letssora/internal/infra"
	"letssora/internal/sqlinline"
)

// ProviderGenAI names the upstream generation API credential.
const ProviderGenAI = "genai"

// ErrNoToken is returned when no credential is configured.
var ErrNoToken = errors.New("credentials: no token configured")

// TokenSource yields a bearer token for the upstream API. Implementations are
// invoked before every upstream request; callers must not cache the result.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken serves a fixed API key.
type StaticToken string

func (s StaticToken) Token(ctx context.Context) (string, error) {
	token := strings.TrimSpace(string(s))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// Store keeps provider tokens in the integration_tokens table so they can be
// rotated without restarting the service.
type Store struct {
	sql      infra.SQLExecutor
	provider string
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql, provider: ProviderGenAI}
}

// Token reads the current token on every call.
func (s *Store) Token(ctx context.Context) (string, error) {
	token, err := s.Lookup(ctx, s.provider)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// Lookup returns the stored token for provider, or "" when none exists.
func (s *Store) Lookup(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// EnsureSchema creates the backing table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.sql.Exec(ctx, sqlinline.QCreateIntegrationTokensTable)
	return err
}

// SetToken stores or rotates the token for provider.
func (s *Store) SetToken(ctx context.Context, provider, token string, props map[string]any) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("credentials: token is required")
	}
	provider = strings.TrimSpace(provider)
	if provider == "" {
		provider = ProviderGenAI
	}
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}

var (
	_ TokenSource = StaticToken("")
	_ TokenSource = (*Store)(nil)
)
