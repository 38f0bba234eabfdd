// Package sanitize cleans untrusted raw inputs before they reach the rest
// of the pipeline. Every function is pure and stateless: natural language
// and numbers are best-effort cleaned, identifiers fail fast.
package sanitize

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/queryguard-io/queryguard-engine/pkg/apperrors"
)

const (
	// MaxNaturalLanguageLength bounds cleaned request text.
	MaxNaturalLanguageLength = 500
	// MaxIdentifierLength bounds cleaned identifiers.
	MaxIdentifierLength = 64
	// MaxStringValueLength bounds cleaned string values.
	MaxStringValueLength = 1000
	// MaxLimit is the hard ceiling a row limit is clamped to.
	MaxLimit = 10000
	// MaxOffset is the largest accepted row offset.
	MaxOffset = 1000000
)

var (
	nlDisallowed    = regexp.MustCompile(`[^a-zA-Z0-9\s\-_.,!?'"()%$#@]`)
	whitespaceRuns  = regexp.MustCompile(`\s+`)
	identDisallowed = regexp.MustCompile(`[^A-Za-z0-9_]`)
	identLeadOK     = regexp.MustCompile(`^[A-Za-z_]`)
)

// NaturalLanguage cleans free-form request text: strips characters outside
// the allow-set, truncates, collapses whitespace runs and escapes markup.
// Never fails; the worst case is an empty string.
func NaturalLanguage(text string) string {
	cleaned := nlDisallowed.ReplaceAllString(text, " ")
	if len(cleaned) > MaxNaturalLanguageLength {
		cleaned = cleaned[:MaxNaturalLanguageLength]
	}
	cleaned = whitespaceRuns.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)
	return html.EscapeString(cleaned)
}

// Identifier cleans a table or column name: characters outside
// [A-Za-z0-9_] are stripped, a leading digit is prefixed with an
// underscore, and the result is truncated to MaxIdentifierLength.
// Fails if nothing remains.
func Identifier(raw string) (string, error) {
	cleaned := identDisallowed.ReplaceAllString(raw, "")
	if cleaned == "" {
		return "", apperrors.Validationf("identifier %q is empty after sanitization", raw)
	}
	if !identLeadOK.MatchString(cleaned) {
		cleaned = "_" + cleaned
	}
	if len(cleaned) > MaxIdentifierLength {
		cleaned = cleaned[:MaxIdentifierLength]
	}
	return cleaned, nil
}

// StringValue cleans a literal string value: truncated, NUL bytes
// stripped, and pattern wildcards escaped unless the caller explicitly
// allows them.
func StringValue(value string, allowWildcards bool) string {
	cleaned := value
	if len(cleaned) > MaxStringValueLength {
		cleaned = cleaned[:MaxStringValueLength]
	}
	cleaned = strings.ReplaceAll(cleaned, "\x00", "")
	if !allowWildcards {
		cleaned = strings.ReplaceAll(cleaned, "%", `\%`)
		cleaned = strings.ReplaceAll(cleaned, "_", `\_`)
	}
	return cleaned
}

// Number passes native numbers through and parses numeric strings,
// preferring integers. The second return is false when the value cannot
// be understood as a number; callers treat that as a sentinel, not an
// error.
func Number(value any) (any, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		trimmed := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f, true
		}
		return nil, false
	default:
		return nil, false
	}
}

// Slice cleans each element of a collection value. Strings are cleaned as
// values, numbers pass through, nested collections recurse. Elements that
// cannot be cleaned are dropped silently.
func Slice(values []any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		if cleaned, ok := cleanElement(v); ok {
			out = append(out, cleaned)
		}
	}
	return out
}

// Map cleans a string-keyed mapping: keys are identifier-cleaned, values
// cleaned as elements. Entries that cannot be cleaned are dropped
// silently.
func Map(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		key, err := Identifier(k)
		if err != nil {
			continue
		}
		if cleaned, ok := cleanElement(v); ok {
			out[key] = cleaned
		}
	}
	return out
}

func cleanElement(v any) (any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, true
	case bool:
		return val, true
	case string:
		return StringValue(val, false), true
	case []any:
		return Slice(val), true
	case map[string]any:
		return Map(val), true
	default:
		if n, ok := Number(v); ok {
			return n, true
		}
		return nil, false
	}
}

// EscapeLikePattern escapes LIKE wildcards in a caller-supplied pattern so
// it matches literally.
func EscapeLikePattern(pattern string) string {
	escaped := strings.ReplaceAll(pattern, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, "%", `\%`)
	escaped = strings.ReplaceAll(escaped, "_", `\_`)
	return escaped
}

// Limit validates a row limit: must be positive, clamped to MaxLimit.
func Limit(n int) (int, error) {
	if n < 1 {
		return 0, apperrors.Validationf("limit must be positive, got %d", n)
	}
	if n > MaxLimit {
		return MaxLimit, nil
	}
	return n, nil
}

// Offset validates a row offset: non-negative and within MaxOffset.
func Offset(n int) (int, error) {
	if n < 0 {
		return 0, apperrors.Validationf("offset must not be negative, got %d", n)
	}
	if n > MaxOffset {
		return 0, apperrors.Validationf("offset %d exceeds maximum %d", n, MaxOffset)
	}
	return n, nil
}
