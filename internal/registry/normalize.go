package registry

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// vinLength is the fixed length of a Vehicle Identification Number.
const vinLength = 17

// Plate input arrives in whatever casing and alphabet the owner typed,
// including Cyrillic, so upper-casing must be Unicode-aware rather than
// ASCII-only.
var identifierCaser = cases.Upper(language.Und)

// NormalizeIdentifier trims and upper-cases a plate or VIN so stored values
// and lookups compare equal regardless of input casing and whitespace.
func NormalizeIdentifier(raw string) string {
	return identifierCaser.String(strings.TrimSpace(raw))
}

// IsVINLength reports whether the normalized identifier has VIN shape.
func IsVINLength(ident string) bool {
	return utf8.RuneCountInString(ident) == vinLength
}

// optionalString trims the value and returns nil when nothing remains.
func optionalString(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// optionalIdentifier normalizes a plate or VIN, returning nil when absent.
func optionalIdentifier(raw string) *string {
	normalized := NormalizeIdentifier(raw)
	if normalized == "" {
		return nil
	}
	return &normalized
}

// optionalInt parses an integer form value. Absent or unparseable input is
// treated as nil, never an error.
func optionalInt(raw string) *int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil
	}
	return &parsed
}
