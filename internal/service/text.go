package service

import (
	"strings"
	"unicode/utf8"
)

// requiredText trims surrounding whitespace from value and checks it is
// non-blank and at most limit runes. The trimmed text is stored as given.
func requiredText(field, value string, limit int) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", invalid(field, "is required")
	}
	if utf8.RuneCountInString(trimmed) > limit {
		return "", invalid(field, "is too long")
	}
	return trimmed, nil
}
