package repo

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"letssora/internal/domain"
)

const defaultListLimit = 50

// cursor is the keyset position after the last returned record.
type cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        string    `json:"id"`
}

func encodeCursor(rec domain.GenerationRecord) string {
	raw, _ := json.Marshal(cursor{CreatedAt: rec.CreatedAt.UTC(), ID: rec.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(token string) (*cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, &domain.ValidationError{Field: "cursor", Message: "invalid continuation token"}
	}
	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil || c.ID == "" || c.CreatedAt.IsZero() {
		return nil, &domain.ValidationError{Field: "cursor", Message: "invalid continuation token"}
	}
	return &c, nil
}

// before reports whether rec sorts after c in newest-first order.
func (c *cursor) before(rec domain.GenerationRecord) bool {
	if rec.CreatedAt.Equal(c.CreatedAt) {
		return rec.ID < c.ID
	}
	return rec.CreatedAt.Before(c.CreatedAt)
}
