package textutil

import "strings"

// NormalizeStringMap returns a copy of values with keys and values trimmed of
// surrounding whitespace. Entries whose key trims to empty are dropped, and a
// map with nothing left collapses to nil so callers can treat "no metadata"
// uniformly. Event metadata passes through here before it is attached to a
// published message.
func NormalizeStringMap(values map[string]string) map[string]string {
	var result map[string]string
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if result == nil {
			result = make(map[string]string, len(values))
		}
		result[key] = strings.TrimSpace(value)
	}
	return result
}
