package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// OwnerOptions controls how the history owner is resolved.
type OwnerOptions struct {
	// JWTSecret enables HS256 bearer tokens whose subject names the owner.
	JWTSecret string
	// DefaultOwner is used when the request carries no identity.
	DefaultOwner string
}

var errMissingSubject = errors.New("token has no subject")

// Owner resolves the owner of the request: a verified bearer token's sub
// claim, then the X-User-ID header, then the default owner. A bearer token
// that fails verification is rejected with 401.
func Owner(opts OwnerOptions) func(http.Handler) http.Handler {
	secret := []byte(opts.JWTSecret)
	fallback := strings.TrimSpace(opts.DefaultOwner)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner := ""
			if token, ok := bearerToken(r); ok && len(secret) > 0 {
				sub, err := verifySubject(token, secret)
				if err != nil {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					_ = json.NewEncoder(w).Encode(map[string]string{"error": "Invalid token", "details": err.Error()})
					return
				}
				owner = sub
			}
			if owner == "" {
				owner = strings.TrimSpace(r.Header.Get("X-User-ID"))
			}
			if owner == "" {
				owner = fallback
			}
			next.ServeHTTP(w, r.WithContext(ContextWithOwner(r.Context(), owner)))
		})
	}
}

// SignOwnerToken issues an HS256 token for owner. Used by tooling and tests.
func SignOwnerToken(secret, owner string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = owner
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func verifySubject(raw string, secret []byte) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", errMissingSubject
	}
	return sub, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func OwnerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ownerIDKey).(string); ok {
		return v
	}
	return ""
}

func ContextWithOwner(ctx context.Context, owner string) context.Context {
	if strings.TrimSpace(owner) == "" {
		return ctx
	}
	return context.WithValue(ctx, ownerIDKey, owner)
}
