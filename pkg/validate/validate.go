// Package validate is the security gate between candidate queries and
// anything that might execute them. Each gate independently rejects and
// short-circuits; a rejection is terminal for that candidate. Policy
// rejections are results, not errors: callers own the messaging.
package validate

import (
	"reflect"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
	"go.uber.org/zap"

	"github.com/queryguard-io/queryguard-engine/pkg/intent"
	"github.com/queryguard-io/queryguard-engine/pkg/logging"
	"github.com/queryguard-io/queryguard-engine/pkg/sanitize"
	"github.com/queryguard-io/queryguard-engine/pkg/sqlparse"
)

// Result is the outcome of one validation pass. Reason is a categorical
// string from this package (or the structural layer) when OK is false.
type Result struct {
	OK     bool
	Reason string
}

func accept() Result { return Result{OK: true} }

// Config tunes the gates. Zero values fall back to the restrictive
// defaults.
type Config struct {
	AllowedTypes   []string `yaml:"allowed_types" env:"VALIDATOR_ALLOWED_TYPES"`
	MaxComplexity  int      `yaml:"max_complexity" env:"VALIDATOR_MAX_COMPLEXITY" env-default:"10"`
	MaxQueryLength int      `yaml:"max_query_length" env:"VALIDATOR_MAX_QUERY_LENGTH" env-default:"10000"`
	AllowSubquery  bool     `yaml:"allow_subquery" env:"VALIDATOR_ALLOW_SUBQUERY" env-default:"false"`
	AllowUnion     bool     `yaml:"allow_union" env:"VALIDATOR_ALLOW_UNION" env-default:"false"`
}

// Validator applies the layered gates to structured intents and native
// query strings. Safe for concurrent use.
type Validator struct {
	logger         *zap.Logger
	parser         *sqlparse.Parser
	allowedTypes   map[string]struct{}
	maxComplexity  int
	maxQueryLength int
	allowSubquery  bool
	allowUnion     bool
}

var _ Checker = (*Validator)(nil)

// Checker is the validation capability consumed by the pipeline.
type Checker interface {
	ValidateIntent(qi *intent.QueryIntent) Result
	ValidateNative(query string) Result
}

func New(cfg Config, parser *sqlparse.Parser, logger *zap.Logger) *Validator {
	types := cfg.AllowedTypes
	if len(types) == 0 {
		types = DefaultAllowedTypes
	}
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[strings.ToUpper(strings.TrimSpace(t))] = struct{}{}
	}

	maxComplexity := cfg.MaxComplexity
	if maxComplexity <= 0 {
		maxComplexity = DefaultMaxComplexity
	}
	maxQueryLength := cfg.MaxQueryLength
	if maxQueryLength <= 0 {
		maxQueryLength = DefaultMaxQueryLength
	}
	if parser == nil {
		parser = sqlparse.NewParser()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Validator{
		logger:         logger,
		parser:         parser,
		allowedTypes:   allowed,
		maxComplexity:  maxComplexity,
		maxQueryLength: maxQueryLength,
		allowSubquery:  cfg.AllowSubquery,
		allowUnion:     cfg.AllowUnion,
	}
}

// ValidateIntent runs the structured-intent gates: invariants, type,
// identifiers, complexity, then bound values.
func (v *Validator) ValidateIntent(qi *intent.QueryIntent) Result {
	if qi == nil {
		return v.reject(sqlparse.ReasonEmptyQuery)
	}
	if err := qi.Validate(); err != nil {
		return v.reject(sqlparse.ReasonEmptyQuery, zap.Error(err))
	}

	if _, ok := v.allowedTypes[strings.ToUpper(string(qi.Type))]; !ok {
		return v.reject(ReasonTypeNotAllowed, zap.String("query_type", string(qi.Type)))
	}

	if res := v.checkIntentIdentifiers(qi); !res.OK {
		return res
	}

	if score := IntentComplexity(qi); score > v.maxComplexity {
		return v.reject(ReasonTooComplex,
			zap.Int("complexity", score),
			zap.Int("ceiling", v.maxComplexity))
	}

	return v.checkIntentValues(qi)
}

// ValidateNative runs the native-string gates: length, structure, type,
// complexity, keyword denylist, injection signatures, then the
// subquery/union policy.
func (v *Validator) ValidateNative(query string) Result {
	if len(query) > v.maxQueryLength {
		return v.reject(ReasonTooLong,
			zap.Int("length", len(query)),
			zap.Int("ceiling", v.maxQueryLength))
	}
	if reason := sqlparse.ValidateStructure(query); reason != "" {
		return v.reject(reason, zap.String("fragment", logging.BoundFragment(query)))
	}

	normalized := sqlparse.Normalize(query)
	summary := v.parser.Parse(normalized)

	if _, ok := v.allowedTypes[summary.Type]; !ok {
		return v.reject(ReasonTypeNotAllowed, zap.String("query_type", summary.Type))
	}

	if summary.Complexity > v.maxComplexity {
		return v.reject(ReasonTooComplex,
			zap.Int("complexity", summary.Complexity),
			zap.Int("ceiling", v.maxComplexity))
	}

	if m := forbiddenKeywordPattern.FindString(normalized); m != "" {
		return v.reject(ReasonForbiddenKeyword,
			zap.String("keyword", strings.ToUpper(m)),
			zap.String("fragment", logging.BoundFragment(normalized)))
	}

	for _, sig := range injectionSignatures {
		if sig.pattern.MatchString(normalized) {
			return v.reject(ReasonSuspiciousPattern,
				zap.String("signature", sig.name),
				zap.String("fragment", logging.BoundFragment(normalized)))
		}
	}

	if summary.HasSubquery && !v.allowSubquery {
		return v.reject(ReasonSubqueryNotAllowed,
			zap.String("fragment", logging.BoundFragment(normalized)))
	}
	if summary.HasUnion && !v.allowUnion {
		return v.reject(ReasonUnionNotAllowed,
			zap.String("fragment", logging.BoundFragment(normalized)))
	}

	return accept()
}

// IntentComplexity scores an intent the way the structural parser scores
// a native query: the more structure referenced, the higher the score.
func IntentComplexity(qi *intent.QueryIntent) int {
	score := len(qi.Tables)
	score += 2 * len(qi.Joins)
	score += len(qi.Conditions.Leaves())
	score += len(qi.Aggregations)
	if len(qi.GroupBy) > 0 {
		score++
	}
	if qi.Having != nil {
		score += 2
	}
	return score
}

func (v *Validator) checkIntentIdentifiers(qi *intent.QueryIntent) Result {
	for _, t := range qi.Tables {
		if !validIdentifier(t) {
			return v.rejectIdentifier(t)
		}
	}
	for _, j := range qi.Joins {
		for _, name := range []string{j.LeftTable, j.RightTable, j.LeftColumn, j.RightColumn} {
			if !validIdentifier(name) {
				return v.rejectIdentifier(name)
			}
		}
		for _, leaf := range j.Extra.Leaves() {
			if !leaf.Column.IsStar() && !validIdentifier(leaf.Column.Name) {
				return v.rejectIdentifier(leaf.Column.Name)
			}
		}
	}
	for _, col := range qi.AllColumns() {
		if !col.IsStar() && !validIdentifier(col.Name) {
			return v.rejectIdentifier(col.Name)
		}
		if col.Table != "" && !validIdentifier(col.Table) {
			return v.rejectIdentifier(col.Table)
		}
		if col.Alias != "" && !validIdentifier(col.Alias) {
			return v.rejectIdentifier(col.Alias)
		}
	}
	for _, a := range qi.Aggregations {
		if a.Alias != "" && !validIdentifier(a.Alias) {
			return v.rejectIdentifier(a.Alias)
		}
	}
	return accept()
}

// checkIntentValues scans every string literal bound to a condition for
// denylisted keywords and injection shapes. Catches verbs smuggled
// through otherwise-parameterized values.
func (v *Validator) checkIntentValues(qi *intent.QueryIntent) Result {
	leaves := qi.Conditions.Leaves()
	leaves = append(leaves, qi.Having.Leaves()...)
	for _, j := range qi.Joins {
		leaves = append(leaves, j.Extra.Leaves()...)
	}

	for _, leaf := range leaves {
		for _, s := range stringValues(leaf.Value) {
			if m := forbiddenKeywordPattern.FindString(s); m != "" {
				return v.reject(ReasonUnsafeValue,
					zap.String("keyword", strings.ToUpper(m)),
					zap.String("column", leaf.Column.Name))
			}
			if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
				return v.reject(ReasonUnsafeValue,
					zap.String("fingerprint", string(fingerprint)),
					zap.String("column", leaf.Column.Name))
			}
		}
	}
	return accept()
}

// stringValues flattens a condition value into the strings it carries.
// Numbers, booleans and other scalars cannot smuggle keywords and are
// skipped.
func stringValues(value any) []string {
	switch val := value.(type) {
	case nil:
		return nil
	case string:
		return []string{val}
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	var out []string
	for i := 0; i < rv.Len(); i++ {
		if s, ok := rv.Index(i).Interface().(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func validIdentifier(name string) bool {
	return len(name) <= sanitize.MaxIdentifierLength && identifierPattern.MatchString(name)
}

func (v *Validator) reject(reason string, fields ...zap.Field) Result {
	v.logger.Warn("query rejected",
		append([]zap.Field{zap.String("reason", reason)}, fields...)...)
	return Result{Reason: reason}
}

func (v *Validator) rejectIdentifier(name string) Result {
	return v.reject(ReasonInvalidIdentifier,
		zap.String("identifier", logging.BoundFragment(name)))
}
