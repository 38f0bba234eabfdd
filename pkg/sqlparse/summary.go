package sqlparse

import (
	"regexp"
	"strings"
)

// StructureSummary describes what a single statement references and which
// clauses it carries. It is the input to policy checks, never an execution
// plan.
type StructureSummary struct {
	Type        string   `json:"query_type"`
	Tables      []string `json:"tables"`
	Columns     []string `json:"columns,omitempty"`
	HasSubquery bool     `json:"has_subquery"`
	HasUnion    bool     `json:"has_union"`
	HasJoin     bool     `json:"has_join"`
	HasWhere    bool     `json:"has_where"`
	HasGroupBy  bool     `json:"has_group_by"`
	HasHaving   bool     `json:"has_having"`
	HasOrderBy  bool     `json:"has_order_by"`
	Complexity  int      `json:"complexity"`
}

var unionPattern = regexp.MustCompile(`\bUNION\b`)

// analyze builds a summary in a single token pass. Subquery and union
// detection intentionally run over the raw text, quoted literals included:
// over-flagging is acceptable there, under-flagging is not.
func analyze(query string) StructureSummary {
	var s StructureSummary
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return s
	}

	upper := strings.ToUpper(trimmed)
	s.HasSubquery = strings.Count(upper, "SELECT") > 1
	s.HasUnion = unionPattern.MatchString(upper)

	toks := lexAll(trimmed)
	if len(toks) > 0 && toks[0].typ == tokenWord {
		s.Type = strings.ToUpper(toks[0].text)
	}

	for i, t := range toks {
		if t.typ != tokenWord {
			continue
		}
		switch strings.ToUpper(t.text) {
		case "JOIN":
			s.HasJoin = true
		case "WHERE":
			s.HasWhere = true
		case "GROUP":
			if nextWordIs(toks, i+1, "BY") {
				s.HasGroupBy = true
			}
		case "HAVING":
			s.HasHaving = true
		case "ORDER":
			if nextWordIs(toks, i+1, "BY") {
				s.HasOrderBy = true
			}
		}
	}

	s.Tables = extractTables(toks)
	if s.Type == "SELECT" {
		s.Columns = extractColumns(trimmed, toks)
	}

	score := 1
	if s.HasSubquery {
		score += 3
	}
	if s.HasUnion {
		score += 2
	}
	if s.HasJoin {
		score += 2
	}
	if s.HasWhere {
		score++
	}
	if s.HasGroupBy {
		score += 2
	}
	if s.HasHaving {
		score += 2
	}
	if s.HasOrderBy {
		score++
	}
	if n := len(s.Tables); n > 1 {
		score += n - 1
	}
	s.Complexity = score

	return s
}

func nextWordIs(toks []token, i int, word string) bool {
	return i < len(toks) && toks[i].typ == tokenWord && strings.EqualFold(toks[i].text, word)
}

// fromStopWords end the comma-separated table list after FROM.
var fromStopWords = map[string]struct{}{
	"WHERE": {}, "GROUP": {}, "ORDER": {}, "HAVING": {}, "LIMIT": {},
	"OFFSET": {}, "JOIN": {}, "INNER": {}, "LEFT": {}, "RIGHT": {},
	"FULL": {}, "CROSS": {}, "UNION": {}, "INTERSECT": {}, "EXCEPT": {},
	"ON": {}, "SET": {}, "RETURNING": {}, "VALUES": {},
}

// extractTables collects table names after FROM, JOIN, INTO and UPDATE.
// Subquery FROMs contribute too: every referenced table matters for
// access checks, nested or not. Names are deduplicated case-insensitively
// in first-seen order.
func extractTables(toks []token) []string {
	var tables []string
	seen := make(map[string]struct{})
	add := func(name string) {
		if name == "" {
			return
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		tables = append(tables, name)
	}

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.typ != tokenWord {
			continue
		}
		switch strings.ToUpper(t.text) {
		case "FROM":
			i = collectFromList(toks, i+1, add)
		case "JOIN", "INTO", "UPDATE":
			if i+1 < len(toks) && toks[i+1].typ == tokenWord {
				add(toks[i+1].text)
				i++
			}
		}
	}
	return tables
}

// collectFromList reads the table list after FROM: the first word of each
// comma-separated element is the table, later words are aliases. Returns
// the index of the last token it consumed.
func collectFromList(toks []token, i int, add func(string)) int {
	expectTable := true
	for ; i < len(toks); i++ {
		t := toks[i]
		switch t.typ {
		case tokenComma:
			expectTable = true
		case tokenWord:
			if _, stop := fromStopWords[strings.ToUpper(t.text)]; stop {
				return i - 1
			}
			if expectTable {
				add(t.text)
				expectTable = false
			}
		default:
			return i - 1
		}
	}
	return i - 1
}

var (
	asAliasPattern = regexp.MustCompile(`(?i)\s+as\s+("?\w+"?)\s*$`)
	funcPattern    = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
)

// extractColumns cuts the select list between the leading SELECT and the
// first FROM outside parentheses, then splits it on top-level commas.
func extractColumns(input string, toks []token) []string {
	if len(toks) == 0 {
		return nil
	}
	start := toks[0].pos + len(toks[0].text)
	end := len(input)
	depth := 0
	for _, t := range toks[1:] {
		switch t.typ {
		case tokenLParen:
			depth++
		case tokenRParen:
			depth--
		case tokenWord:
			if depth == 0 && strings.EqualFold(t.text, "FROM") {
				end = t.pos
			}
		}
		if end < len(input) {
			break
		}
	}
	if start >= end {
		return nil
	}

	region := strings.TrimSpace(input[start:end])
	if rest, ok := cutLeadingWord(region, "DISTINCT"); ok {
		region = rest
	}
	if region == "" {
		return nil
	}

	var cols []string
	for _, part := range splitColumns(region) {
		if name := parseColumnExpr(part); name != "" {
			cols = append(cols, name)
		}
	}
	return cols
}

func cutLeadingWord(s, word string) (string, bool) {
	if len(s) <= len(word) || !strings.EqualFold(s[:len(word)], word) {
		return s, false
	}
	if !isSpace(s[len(word)]) {
		return s, false
	}
	return strings.TrimSpace(s[len(word):]), true
}

// splitColumns splits a select list on commas outside parentheses.
func splitColumns(region string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(region); i++ {
		switch region[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, region[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, region[start:])
}

// parseColumnExpr reduces one select-list expression to a column name:
// the AS alias when present, the function name for calls, the bare name
// with any table qualifier stripped otherwise.
func parseColumnExpr(expr string) string {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return ""
	}
	if m := asAliasPattern.FindStringSubmatch(expr); m != nil {
		return strings.Trim(m[1], `"`)
	}
	if m := funcPattern.FindStringSubmatch(expr); m != nil {
		return strings.ToLower(m[1])
	}
	if i := strings.LastIndex(expr, "."); i >= 0 && !strings.ContainsAny(expr, " (") {
		return expr[i+1:]
	}
	return expr
}
