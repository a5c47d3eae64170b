package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Hard ceiling applied when a handler does not set its own MaxPageSize.
const absoluteMaxPageSize = 100

// ErrInvalidPageSize is returned for a pageSize that is not a positive integer.
var ErrInvalidPageSize = errors.New("pagination: invalid pageSize")

// Params carries the paging inputs an order listing accepts: a page size and
// an opaque cursor token produced by a previous page.
type Params struct {
	PageSize  int
	PageToken string
}

// Options set the per-endpoint paging bounds.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

// FromRequest reads pageSize and pageToken from the request query. An omitted
// pageSize falls back to the endpoint default, an oversized one is clamped,
// and a malformed pageToken is rejected here rather than deep in the query
// layer.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	query := r.URL.Query()

	size, err := parsePageSize(query.Get("pageSize"), opts)
	if err != nil {
		return Params{}, err
	}

	token := strings.TrimSpace(query.Get("pageToken"))
	if token != "" {
		if _, err := DecodeToken(token); err != nil {
			return Params{}, err
		}
	}

	return Params{PageSize: size, PageToken: token}, nil
}

func parsePageSize(raw string, opts Options) (int, error) {
	limit := opts.MaxPageSize
	if limit <= 0 {
		limit = absoluteMaxPageSize
	}
	fallback := opts.DefaultPageSize
	if fallback <= 0 || fallback > limit {
		fallback = limit
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
	}
	if size <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
	}
	if size > limit {
		size = limit
	}
	return size, nil
}
