// Package pagination provides cursor-based pagination utilities.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCursor is returned by Decode for malformed cursors.
var ErrInvalidCursor = errors.New("invalid cursor")

// Page size bounds for list endpoints.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Cursor is a position in a result set ordered by (last_seen DESC, hash DESC).
type Cursor struct {
	LastSeen time.Time
	Hash     string
}

// Encode returns an opaque cursor string from a timestamp and key.
func Encode(lastSeen time.Time, hash string) string {
	raw := fmt.Sprintf("%d|%s", lastSeen.UnixNano(), hash)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// Decode parses an opaque cursor string. Returns nil for empty input.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{
		LastSeen: time.Unix(0, nanos).UTC(),
		Hash:     parts[1],
	}, nil
}

// ClampLimit applies DefaultLimit to non-positive values and caps at MaxLimit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

// ComputePage takes a slice of items (fetched with limit+1), the requested limit,
// and a function to extract (lastSeen, hash) from the last item.
// Returns the trimmed items, next cursor, and has_more flag.
func ComputePage[T any](items []T, limit int, extractKey func(T) (time.Time, string)) ([]T, string, bool) {
	if len(items) <= limit {
		return items, "", false
	}
	items = items[:limit]
	last := items[len(items)-1]
	lastSeen, hash := extractKey(last)
	return items, Encode(lastSeen, hash), true
}
