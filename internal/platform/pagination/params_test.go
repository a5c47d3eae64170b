package pagination

import (
	"errors"
	"net/http/httptest"
	"testing"
)

func TestFromRequestDefaultsAndClamps(t *testing.T) {
	opts := Options{DefaultPageSize: 20, MaxPageSize: 100}

	cases := []struct {
		name  string
		query string
		want  int
	}{
		{"omitted", "", 20},
		{"explicit", "?pageSize=5", 5},
		{"clamped", "?pageSize=500", 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/orders"+tc.query, nil)
			params, err := FromRequest(req, opts)
			if err != nil {
				t.Fatalf("FromRequest returned error: %v", err)
			}
			if params.PageSize != tc.want {
				t.Fatalf("PageSize = %d, want %d", params.PageSize, tc.want)
			}
		})
	}
}

func TestFromRequestRejectsBadPageSize(t *testing.T) {
	for _, query := range []string{"?pageSize=abc", "?pageSize=0", "?pageSize=-3"} {
		req := httptest.NewRequest("GET", "/orders"+query, nil)
		_, err := FromRequest(req, Options{DefaultPageSize: 20, MaxPageSize: 100})
		if !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("query %q: expected ErrInvalidPageSize, got %v", query, err)
		}
	}
}

func TestFromRequestValidatesPageToken(t *testing.T) {
	token, err := EncodeToken(Cursor{StartAfter: []any{"2026-03-04T09:00:00Z", "order-9"}})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}

	req := httptest.NewRequest("GET", "/orders?pageToken="+token, nil)
	params, err := FromRequest(req, Options{DefaultPageSize: 20})
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if params.PageToken != token {
		t.Fatalf("PageToken = %q, want the raw token back", params.PageToken)
	}

	req = httptest.NewRequest("GET", "/orders?pageToken=%21%21not-base64", nil)
	if _, err := FromRequest(req, Options{DefaultPageSize: 20}); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cursor := Cursor{StartAfter: []any{"2026-03-04T09:00:00Z", "order-9"}}

	token, err := EncodeToken(cursor)
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	decoded, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken returned error: %v", err)
	}
	if len(decoded.StartAfter) != 2 {
		t.Fatalf("StartAfter has %d values, want 2", len(decoded.StartAfter))
	}
	if decoded.StartAfter[1] != "order-9" {
		t.Fatalf("StartAfter[1] = %v, want order-9", decoded.StartAfter[1])
	}
}

func TestEncodeTokenEmptyCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token != "" {
		t.Fatalf("empty cursor encoded to %q, want empty string", token)
	}
}

func TestDecodeTokenEmpty(t *testing.T) {
	cursor, err := DecodeToken("  ")
	if err != nil {
		t.Fatalf("DecodeToken returned error: %v", err)
	}
	if len(cursor.StartAfter) != 0 {
		t.Fatalf("expected empty cursor, got %+v", cursor)
	}
}

func TestDecodeTokenGarbageJSON(t *testing.T) {
	// Valid base64 wrapping something that is not a cursor payload.
	if _, err := DecodeToken("bm90LWpzb24"); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}
