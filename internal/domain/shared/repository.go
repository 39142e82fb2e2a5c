package shared

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Cursor is a keyset position (sortValue, id) used for stable pagination
// under concurrent inserts
type Cursor struct {
	SortValue time.Time
	ID        uuid.UUID
}

var ErrInvalidCursor = NewValidationError("INVALID_CURSOR", "Cursor is malformed")

// Encode returns the opaque cursor token
func (c Cursor) Encode() string {
	raw := c.SortValue.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses an opaque token produced by Cursor.Encode.
// An empty token yields nil.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor.WithCause(err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return nil, ErrInvalidCursor
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, ErrInvalidCursor.WithCause(err)
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return nil, ErrInvalidCursor.WithCause(err)
	}
	return &Cursor{SortValue: ts, ID: id}, nil
}

// NormalizeLimit clamps a requested page size into [1, MaxPageLimit]
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageLimit
	case limit > MaxPageLimit:
		return MaxPageLimit
	default:
		return limit
	}
}

// Page is one slice of a keyset-paginated listing
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// NewPage trims a limit+1 probe result down to limit and derives the next cursor
func NewPage[T any](items []T, limit int, cursorOf func(T) Cursor) Page[T] {
	p := Page[T]{Items: items}
	if len(items) > limit {
		p.Items = items[:limit]
		p.HasMore = true
	}
	if p.HasMore && len(p.Items) > 0 {
		p.NextCursor = cursorOf(p.Items[len(p.Items)-1]).Encode()
	}
	if p.Items == nil {
		p.Items = []T{}
	}
	return p
}

func (c Cursor) String() string {
	return fmt.Sprintf("%s|%s", c.SortValue.UTC().Format(time.RFC3339Nano), c.ID)
}
