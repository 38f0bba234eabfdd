package sqlparse

import "strings"

// Structural rejection reasons. These are stable, user-facing strings;
// anything more specific stays in logs.
const (
	ReasonEmptyQuery         = "Empty or invalid query"
	ReasonMultipleStatements = "Multiple statements not allowed"
	ReasonUnknownQueryType   = "Unknown query type"
)

// statementVerbs are the leading keywords accepted at the structural
// layer. Whether a verb is actually permitted is a policy decision made
// later; everything else is rejected outright.
var statementVerbs = map[string]struct{}{
	"SELECT": {},
	"INSERT": {},
	"UPDATE": {},
	"DELETE": {},
}

// Normalize trims surrounding whitespace and at most one trailing
// semicolon. A second trailing semicolon is left in place so the
// multi-statement check can see it.
func Normalize(query string) string {
	normalized := strings.TrimSpace(query)
	normalized = strings.TrimSuffix(normalized, ";")
	return strings.TrimSpace(normalized)
}

// ValidateStructure checks that query is one statement of a known type.
// It returns the empty string when the statement is structurally
// acceptable and a rejection reason otherwise.
func ValidateStructure(query string) string {
	normalized := Normalize(query)
	if normalized == "" {
		return ReasonEmptyQuery
	}
	if hasSemicolonOutsideStrings(normalized) {
		return ReasonMultipleStatements
	}

	verb := normalized
	if i := strings.IndexFunc(verb, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' }); i >= 0 {
		verb = verb[:i]
	}
	if _, ok := statementVerbs[strings.ToUpper(verb)]; !ok {
		return ReasonUnknownQueryType
	}
	return ""
}

const (
	stateNormal = iota
	stateSingleQuote
	stateDoubleQuote
)

// hasSemicolonOutsideStrings reports whether query contains a semicolon
// that is not inside a quoted literal. Backslash-escaped quotes do not
// close their literal.
func hasSemicolonOutsideStrings(query string) bool {
	state := stateNormal
	var prev rune
	for _, ch := range query {
		switch state {
		case stateNormal:
			switch ch {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			if ch == '\'' && prev != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if ch == '"' && prev != '\\' {
				state = stateNormal
			}
		}
		prev = ch
	}
	return false
}
