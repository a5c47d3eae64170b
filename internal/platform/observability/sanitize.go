package observability

import (
	"strings"
	"unicode"
)

// Caps applied before request metadata reaches a log entry. Attacker
// controlled values (path, user agent, identifiers) must not be able to
// inject newlines or blow up entry size.
const (
	maxRouteLen  = 180
	maxMethodLen = 10
	maxUserIDLen = 64
	maxFieldLen  = 256
)

// SanitizeRoute strips control characters from a route pattern and caps its
// length. Empty routes collapse to "/".
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return clean(route, maxRouteLen)
}

// SanitizeMethod strips control characters from an HTTP method.
func SanitizeMethod(method string) string {
	return clean(method, maxMethodLen)
}

// SanitizeUserID caps user identifiers so a hostile token cannot pad log
// entries with arbitrary data.
func SanitizeUserID(uid string) string {
	return clean(uid, maxUserIDLen)
}

func clean(value string, limit int) string {
	if limit <= 0 {
		limit = maxFieldLen
	}
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, value)
	runes := []rune(stripped)
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return stripped
}
