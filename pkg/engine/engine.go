// Package engine wires the guarded query pipeline. A natural-language
// question becomes a candidate intent, the intent passes the validation
// and access gates, and only then is it translated and executed against
// the datasource. A rejection at any gate is terminal for that
// candidate; the engine never retries a rejected query.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/queryguard-io/queryguard-engine/pkg/access"
	"github.com/queryguard-io/queryguard-engine/pkg/adapters/datasource"
	"github.com/queryguard-io/queryguard-engine/pkg/apperrors"
	"github.com/queryguard-io/queryguard-engine/pkg/audit"
	"github.com/queryguard-io/queryguard-engine/pkg/intent"
	"github.com/queryguard-io/queryguard-engine/pkg/llm"
	"github.com/queryguard-io/queryguard-engine/pkg/sanitize"
	"github.com/queryguard-io/queryguard-engine/pkg/schema"
	"github.com/queryguard-io/queryguard-engine/pkg/translate"
	"github.com/queryguard-io/queryguard-engine/pkg/validate"
)

// Config carries the capabilities the engine composes. Every field
// except Logger is required; New rejects an incomplete configuration.
type Config struct {
	Producer   llm.Provider
	Translator translate.Translator
	Executor   datasource.QueryExecutor
	Schema     schema.Provider
	Guard      access.Guard
	Validator  validate.Checker
	Auditor    audit.Recorder
	Logger     *zap.Logger
}

// Engine runs questions and raw queries through the pipeline. Safe for
// concurrent use when its capabilities are.
type Engine struct {
	producer   llm.Provider
	translator translate.Translator
	executor   datasource.QueryExecutor
	schema     schema.Provider
	guard      access.Guard
	validator  validate.Checker
	auditor    audit.Recorder
	logger     *zap.Logger
}

// New validates the configuration and builds an engine.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Producer == nil:
		return nil, apperrors.Configurationf("engine requires an intent producer")
	case cfg.Translator == nil:
		return nil, apperrors.Configurationf("engine requires a translator")
	case cfg.Executor == nil:
		return nil, apperrors.Configurationf("engine requires a query executor")
	case cfg.Schema == nil:
		return nil, apperrors.Configurationf("engine requires a schema provider")
	case cfg.Guard == nil:
		return nil, apperrors.Configurationf("engine requires an access guard")
	case cfg.Validator == nil:
		return nil, apperrors.Configurationf("engine requires a validator")
	case cfg.Auditor == nil:
		return nil, apperrors.Configurationf("engine requires an audit recorder")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		producer:   cfg.Producer,
		translator: cfg.Translator,
		executor:   cfg.Executor,
		schema:     cfg.Schema,
		guard:      cfg.Guard,
		validator:  cfg.Validator,
		auditor:    cfg.Auditor,
		logger:     logger.Named("engine"),
	}, nil
}

// Ask answers a natural-language question for the principal: the
// question is sanitized, the producer proposes an intent over the
// current schema, and the intent runs through Process.
func (e *Engine) Ask(ctx context.Context, principalID, question string) (*datasource.QueryResult, error) {
	cleaned := sanitize.NaturalLanguage(question)
	if cleaned == "" {
		return nil, apperrors.Validationf("question is empty")
	}

	tables, err := e.schema.Schema(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	qi, err := e.producer.ProposeIntent(ctx, cleaned, tables)
	if err != nil {
		return nil, err
	}
	if qi == nil {
		return nil, apperrors.Validationf("producer returned no intent")
	}
	e.logger.Debug("intent proposed",
		zap.String("principal_id", principalID),
		zap.String("model", e.producer.Model()),
		zap.String("type", string(qi.Type)),
		zap.Strings("tables", qi.Tables))

	return e.Process(ctx, principalID, qi)
}

// Process runs one candidate intent through the gates and, if every
// gate passes, executes the translated query under the principal's
// resource limits. Rejections come back as security errors carrying
// only the categorical reason; the audit trail gets the rest.
func (e *Engine) Process(ctx context.Context, principalID string, qi *intent.QueryIntent) (*datasource.QueryResult, error) {
	if qi == nil {
		return nil, apperrors.Validationf("intent is nil")
	}

	if res := e.validator.ValidateIntent(qi); !res.OK {
		RecordDecision(e.auditor, principalID, res, qi.Provenance.SourceText)
		return nil, apperrors.NewSecurityError(res.Reason, qi.Provenance.SourceText)
	}

	tables := queryTables(qi)
	if err := e.checkAccess(principalID, qi, tables); err != nil {
		e.auditor.AccessDenied(principalID, err.Error(), apperrors.SecurityDetail(err))
		return nil, err
	}

	limits := e.guard.ResourceLimits(principalID)
	opts := translate.Options{RowFilters: e.rowFilters(principalID, tables)}

	sqlText, args, err := e.translator.Translate(qi, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to translate intent: %w", err)
	}
	e.logger.Debug("query accepted",
		zap.String("principal_id", principalID),
		zap.String("type", string(qi.Type)),
		zap.Strings("tables", qi.Tables),
		zap.Int("max_rows", limits.MaxRows))

	if limits.MaxExecTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limits.MaxExecTime)
		defer cancel()
	}
	result, err := e.executor.QueryWithParams(ctx, sqlText, args, limits.MaxRows)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	e.auditor.QueryValidated(principalID, sqlText)
	return result, nil
}

// CheckNative runs a raw query string through the native gates and
// records the decision. Nothing is executed.
func (e *Engine) CheckNative(_ context.Context, principalID, query string) validate.Result {
	res := e.validator.ValidateNative(query)
	RecordDecision(e.auditor, principalID, res, query)
	if res.OK {
		e.logger.Debug("native query accepted", zap.String("principal_id", principalID))
	}
	return res
}

// checkAccess applies the table, column and operation gates in order,
// over every table the intent touches including joined ones. Every
// intent type is a read, so the operation gate always asks for select
// permission.
func (e *Engine) checkAccess(principalID string, qi *intent.QueryIntent, tables []string) error {
	if err := e.guard.CheckTableAccess(principalID, tables); err != nil {
		return err
	}

	byTable := columnChecks(qi, tables)
	checked := make([]string, 0, len(byTable))
	for t := range byTable {
		checked = append(checked, t)
	}
	sort.Strings(checked)
	for _, t := range checked {
		if err := e.guard.CheckColumnAccess(principalID, t, byTable[t]); err != nil {
			return err
		}
	}

	return e.guard.CheckOperation(principalID, access.OpSelect, tables)
}

// rowFilters collects the principal's row predicates for the queried
// tables, keyed the way the translator looks them up.
func (e *Engine) rowFilters(principalID string, tables []string) map[string]string {
	var filters map[string]string
	for _, t := range tables {
		f := e.guard.RowFilter(principalID, t)
		if f == "" {
			continue
		}
		if filters == nil {
			filters = make(map[string]string)
		}
		filters[strings.ToLower(t)] = f
	}
	return filters
}

// RecordDecision routes one validation outcome to the audit trail:
// acceptances are recorded as validated queries, injection-class
// rejections as attempts, everything else as ordinary rejections.
func RecordDecision(rec audit.Recorder, principalID string, res validate.Result, fragment string) {
	switch {
	case res.OK:
		rec.QueryValidated(principalID, fragment)
	case res.Reason == validate.ReasonSuspiciousPattern || res.Reason == validate.ReasonUnsafeValue:
		rec.InjectionAttempt(principalID, res.Reason, fragment)
	default:
		rec.QueryRejected(principalID, res.Reason, fragment)
	}
}

// queryTables returns every table the intent touches: the FROM list
// plus both sides of each join, deduplicated case-insensitively.
func queryTables(qi *intent.QueryIntent) []string {
	out := make([]string, 0, len(qi.Tables)+len(qi.Joins))
	seen := make(map[string]struct{}, cap(out))
	add := func(t string) {
		if t == "" {
			return
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	for _, t := range qi.Tables {
		add(t)
	}
	for _, j := range qi.Joins {
		add(j.LeftTable)
		add(j.RightTable)
	}
	return out
}

// columnChecks groups every stored column the intent touches under the
// tables it must be checked against. Qualified columns go to their
// named table; unqualified ones go to the single queried table, or to
// every queried table when the query spans more than one. Order-by and
// having terms naming a declared output alias refer to computed values,
// not stored columns, and are skipped.
func columnChecks(qi *intent.QueryIntent, tables []string) map[string][]string {
	aliases := make(map[string]struct{})
	for _, c := range qi.Columns {
		if c.Alias != "" {
			aliases[strings.ToLower(c.Alias)] = struct{}{}
		}
	}
	for _, a := range qi.Aggregations {
		if a.Alias != "" {
			aliases[strings.ToLower(a.Alias)] = struct{}{}
		}
	}

	byTable := make(map[string][]string)
	seen := make(map[string]struct{})
	add := func(table, column string) {
		if table == "" || column == "" {
			return
		}
		key := strings.ToLower(table) + "." + strings.ToLower(column)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		byTable[table] = append(byTable[table], column)
	}
	attribute := func(col intent.Column, aliasable bool) {
		if col.Table == "" {
			if _, ok := aliases[strings.ToLower(col.Name)]; aliasable && ok {
				return
			}
			for _, t := range tables {
				add(t, col.Name)
			}
			return
		}
		add(col.Table, col.Name)
	}

	for _, c := range qi.Columns {
		attribute(c, false)
	}
	for _, a := range qi.Aggregations {
		attribute(a.Column, false)
	}
	for _, c := range qi.GroupBy {
		attribute(c, false)
	}
	for _, ob := range qi.OrderBy {
		attribute(ob.Column, true)
	}
	for _, c := range qi.Conditions.Leaves() {
		attribute(c.Column, false)
	}
	for _, c := range qi.Having.Leaves() {
		attribute(c.Column, true)
	}
	for _, j := range qi.Joins {
		add(j.LeftTable, j.LeftColumn)
		add(j.RightTable, j.RightColumn)
	}
	return byTable
}
