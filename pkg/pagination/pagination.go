// Package pagination implements newest-first keyset paging over (created_at, id).
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Params is what a list endpoint accepts: a page size and the opaque cursor
// returned as next_cursor by the previous page.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the position of the last row on a page.
type Cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        uuid.UUID `json:"id"`
}

// String encodes the cursor as URL-safe base64 JSON.
func (c Cursor) String() string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// ParseCursor returns nil for an empty value. Every other failure wraps ErrInvalidCursor.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if c.ID == uuid.Nil || c.CreatedAt.IsZero() {
		return nil, fmt.Errorf("%w: incomplete position", ErrInvalidCursor)
	}
	return &c, nil
}

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Keyset returns a gorm scope that orders table newest first, skips rows up to
// the cursor and fetches one row past the page size so BuildPage can tell
// whether another page exists.
func Keyset(table string, params Params) (func(*gorm.DB) *gorm.DB, error) {
	after, err := ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	createdAt, id := table+".created_at", table+".id"
	return func(q *gorm.DB) *gorm.DB {
		if after != nil {
			q = q.Where(
				fmt.Sprintf("(%[1]s < ?) OR (%[1]s = ? AND %[2]s < ?)", createdAt, id),
				after.CreatedAt, after.CreatedAt, after.ID,
			)
		}
		return q.Order(createdAt + " DESC").Order(id + " DESC").Limit(NormalizeLimit(params.Limit) + 1)
	}, nil
}

// Page is one slice of a listing.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// BuildPage trims rows fetched through Keyset down to limit.
func BuildPage[T any](rows []T, limit int, position func(T) Cursor) Page[T] {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		if rows == nil {
			rows = []T{}
		}
		return Page[T]{Items: rows}
	}
	items := rows[:limit]
	return Page[T]{Items: items, NextCursor: position(items[limit-1]).String()}
}
