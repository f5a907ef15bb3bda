package session

import "strings"

// Normalize canonicalizes a submitted word for comparison: lowercased,
// stripped of everything outside a-z and 0-9. Display always keeps the raw
// word; normalization is comparison-only.
func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
