package utils

import "github.com/microcosm-cc/bluemonday"

var sanitizer = newSanitizer()

// newSanitizer keeps the UGC policy and also allows data-* attributes, which carry the
// hosted image identifiers the editor embeds (data-public-id).
func newSanitizer() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowDataAttributes()
	return p
}

// Sanitize cleans HTML content to prevent XSS attacks.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}
