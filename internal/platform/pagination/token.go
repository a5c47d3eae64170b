package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPageToken is returned when a pageToken cannot be decoded. Tokens
// are produced by EncodeToken only; anything else a client sends is rejected.
var ErrInvalidPageToken = errors.New("pagination: invalid pageToken")

// Cursor is the decoded form of a page token. StartAfter holds the sort-key
// values of the last document on the previous page, in query order.
type Cursor struct {
	StartAfter []any `json:"startAfter,omitempty"`
}

// EncodeToken turns a cursor into the opaque token handed to clients. An
// empty cursor encodes to the empty string, meaning no further pages.
func EncodeToken(cursor Cursor) (string, error) {
	if len(cursor.StartAfter) == 0 {
		return "", nil
	}
	payload, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("pagination: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// DecodeToken reverses EncodeToken. An empty token yields an empty cursor,
// which queries treat as the first page.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	payload, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(payload, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return cursor, nil
}
