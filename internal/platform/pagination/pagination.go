// Package pagination parses page parameters for list endpoints and encodes the keyset
// cursor handed back to clients as an opaque page token.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// Params are the page inputs of a list request.
type Params struct {
	PageSize  int
	PageToken string
}

// Parse reads pageSize and pageToken. Sizes above MaxPageSize are clamped.
func Parse(values url.Values) (Params, error) {
	params := Params{PageSize: DefaultPageSize, PageToken: strings.TrimSpace(values.Get("pageToken"))}
	if raw := strings.TrimSpace(values.Get("pageSize")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return Params{}, fmt.Errorf("%w: %q", ErrInvalidPageSize, raw)
		}
		params.PageSize = min(size, MaxPageSize)
	}
	if params.PageToken != "" {
		if _, err := DecodeToken(params.PageToken); err != nil {
			return Params{}, err
		}
	}
	return params, nil
}

// Cursor is the last (sort time, document id) pair of a page. Lists are ordered by time
// descending with the id as tie-breaker.
type Cursor struct {
	Time time.Time `json:"t"`
	ID   string    `json:"id"`
}

// IsZero reports whether the cursor marks the first page.
func (c Cursor) IsZero() bool { return c.ID == "" && c.Time.IsZero() }

// EncodeToken serialises the cursor into a URL-safe token. A zero cursor encodes to "".
func EncodeToken(cursor Cursor) string {
	if cursor.IsZero() {
		return ""
	}
	data, _ := json.Marshal(cursor)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeToken reverses EncodeToken. An empty token yields the zero cursor.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(data, &cursor); err != nil || cursor.ID == "" {
		return Cursor{}, fmt.Errorf("%w: malformed cursor", ErrInvalidPageToken)
	}
	return cursor, nil
}
