package validate

import (
	"regexp"
	"strings"
)

// Categorical rejection reasons returned to callers. Deliberately vague:
// the matched fragment goes to the server log, never back to the caller.
const (
	ReasonTypeNotAllowed     = "Query type not permitted"
	ReasonInvalidIdentifier  = "Invalid identifier"
	ReasonTooComplex         = "Query too complex"
	ReasonTooLong            = "Query exceeds maximum length"
	ReasonForbiddenKeyword   = "Forbidden keyword detected"
	ReasonSuspiciousPattern  = "Suspicious pattern detected"
	ReasonSubqueryNotAllowed = "Subqueries not allowed"
	ReasonUnionNotAllowed    = "Union queries not allowed"
	ReasonUnsafeValue        = "Unsafe value detected"
)

// DefaultMaxComplexity is the structural complexity ceiling applied when
// the configuration does not set one.
const DefaultMaxComplexity = 10

// DefaultMaxQueryLength bounds native query text before any parsing.
const DefaultMaxQueryLength = 10000

// DefaultAllowedTypes is the read-only query family permitted by default.
var DefaultAllowedTypes = []string{"SELECT", "AGGREGATE", "COUNT", "DISTINCT"}

// forbiddenKeywords are mutating or administrative verbs that must never
// appear anywhere in a native query or inside a bound string value.
var forbiddenKeywords = []string{
	"DROP", "DELETE", "TRUNCATE", "UPDATE", "INSERT", "ALTER", "CREATE",
	"REPLACE", "RENAME", "GRANT", "REVOKE", "EXECUTE", "EXEC", "CALL",
	"MERGE", "LOCK", "UNLOCK",
}

var forbiddenKeywordPattern = regexp.MustCompile(
	`(?i)\b(` + strings.Join(forbiddenKeywords, "|") + `)\b`)

// injectionSignatures are fixed patterns for well-known attack shapes.
// The name identifies the signature class in logs without echoing the
// payload.
var injectionSignatures = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"statement termination with comment", regexp.MustCompile(`;\s*--`)},
	{"statement termination with block comment", regexp.MustCompile(`;\s*/\*`)},
	{"union select", regexp.MustCompile(`(?i)\bUNION\b[\s\S]*\bSELECT\b`)},
	{"numeric tautology", regexp.MustCompile(`(?i)\bOR\s+\d+\s*=\s*\d+`)},
	{"string tautology", regexp.MustCompile(`(?i)\bOR\s*'[^']*'\s*=\s*'[^']*'`)},
	{"time delay", regexp.MustCompile(`(?i)\bWAITFOR\s+DELAY\b`)},
	{"benchmark call", regexp.MustCompile(`(?i)\bBENCHMARK\s*\(`)},
	{"sleep call", regexp.MustCompile(`(?i)\bPG_SLEEP\s*\(`)},
	{"file read", regexp.MustCompile(`(?i)\bLOAD_FILE\s*\(`)},
	{"file write", regexp.MustCompile(`(?i)\bINTO\s+(OUT|DUMP)FILE\b`)},
	{"shell invocation", regexp.MustCompile(`(?i)\bXP_CMDSHELL\b`)},
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
