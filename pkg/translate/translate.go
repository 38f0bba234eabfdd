// Package translate compiles validated query intents into executable
// SQL. Every literal value becomes a bound argument; the emitted text
// contains identifiers, keywords and placeholders only. Dialects differ
// in placeholder format and pagination syntax.
package translate

import (
	"fmt"
	"reflect"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/queryguard-io/queryguard-engine/pkg/apperrors"
	"github.com/queryguard-io/queryguard-engine/pkg/intent"
)

// Dialect selects the SQL flavor to emit.
type Dialect string

const (
	DialectPostgres  Dialect = "postgres"
	DialectSQLServer Dialect = "sqlserver"
)

// Options carries per-request translation inputs.
type Options struct {
	// RowFilters maps table names to raw predicates the access
	// controller requires. Each is AND'd into the WHERE clause. Filters
	// come from vetted policy, not user input.
	RowFilters map[string]string
}

// Translator compiles an intent into SQL text and bound arguments.
type Translator interface {
	Translate(qi *intent.QueryIntent, opts Options) (string, []any, error)
}

type sqlTranslator struct {
	dialect Dialect
	builder sq.StatementBuilderType
}

var _ Translator = (*sqlTranslator)(nil)

// NewTranslator creates a Translator for the given dialect.
func NewTranslator(dialect Dialect) (Translator, error) {
	t := &sqlTranslator{dialect: dialect}
	switch dialect {
	case DialectPostgres:
		t.builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	case DialectSQLServer:
		t.builder = sq.StatementBuilder.PlaceholderFormat(sq.AtP)
	default:
		return nil, apperrors.Configurationf("unknown sql dialect %q", string(dialect))
	}
	return t, nil
}

func (t *sqlTranslator) Translate(qi *intent.QueryIntent, opts Options) (string, []any, error) {
	if err := qi.Validate(); err != nil {
		return "", nil, err
	}

	qb := t.builder.Select(projection(qi)...)
	qb = qb.From(strings.Join(qi.Tables, ", "))

	if qi.Distinct || qi.Type == intent.TypeDistinct {
		qb = qb.Distinct()
	}

	for _, j := range qi.Joins {
		clause, args, err := joinClause(j)
		if err != nil {
			return "", nil, err
		}
		qb = qb.JoinClause(clause, args...)
	}

	where, err := groupSqlizer(qi.Conditions)
	if err != nil {
		return "", nil, err
	}
	if where != nil {
		qb = qb.Where(where)
	}

	for _, filter := range rowFilters(qi, opts.RowFilters) {
		qb = qb.Where(sq.Expr("(" + filter + ")"))
	}

	if len(qi.GroupBy) > 0 {
		refs := make([]string, 0, len(qi.GroupBy))
		for _, col := range qi.GroupBy {
			refs = append(refs, col.Qualified())
		}
		qb = qb.GroupBy(refs...)
	}

	having, err := groupSqlizer(qi.Having)
	if err != nil {
		return "", nil, err
	}
	if having != nil {
		qb = qb.Having(having)
	}

	ordered := len(qi.OrderBy) > 0
	for _, ob := range qi.OrderBy {
		dir := " ASC"
		if !ob.Ascending {
			dir = " DESC"
		}
		qb = qb.OrderBy(ob.Column.Qualified() + dir)
	}

	qb, err = t.paginate(qb, qi, ordered)
	if err != nil {
		return "", nil, err
	}

	return qb.ToSql()
}

// projection renders the select list for the intent's type. Aggregate
// intents project group-by columns alongside the aggregations; explicit
// columns always come first.
func projection(qi *intent.QueryIntent) []string {
	if qi.Type == intent.TypeCount && len(qi.Aggregations) == 0 {
		return []string{"COUNT(*)"}
	}

	var parts []string
	seen := make(map[string]struct{})

	for _, col := range qi.Columns {
		parts = append(parts, columnExpr(col))
		seen[col.Key()] = struct{}{}
	}
	for _, col := range qi.GroupBy {
		if _, ok := seen[col.Key()]; ok {
			continue
		}
		parts = append(parts, columnExpr(col))
		seen[col.Key()] = struct{}{}
	}
	for _, agg := range qi.Aggregations {
		parts = append(parts, aggregateExpr(agg))
	}

	if len(parts) == 0 {
		return []string{"*"}
	}
	return parts
}

func columnExpr(c intent.Column) string {
	expr := c.Qualified()
	if c.Alias != "" {
		expr += " AS " + c.Alias
	}
	return expr
}

// aggregateExpr renders one aggregation. GROUP_CONCAT maps to
// STRING_AGG, which both supported backends accept.
func aggregateExpr(a intent.Aggregation) string {
	ref := a.Column.Qualified()
	var expr string
	if a.Func == intent.AggGroupConcat {
		expr = fmt.Sprintf("STRING_AGG(%s, ',')", ref)
	} else {
		expr = fmt.Sprintf("%s(%s)", a.Func, ref)
	}
	if a.Alias != "" {
		expr += " AS " + a.Alias
	}
	return expr
}

// joinClause renders one join with its ON predicate. Extra predicates
// keep their values as bound arguments.
func joinClause(j intent.JoinCondition) (string, []any, error) {
	clause := fmt.Sprintf("%s %s ON %s.%s = %s.%s",
		j.Type.SQL(), j.RightTable,
		j.LeftTable, j.LeftColumn,
		j.RightTable, j.RightColumn)

	var args []any
	if j.Extra != nil {
		extra, err := groupSqlizer(j.Extra)
		if err != nil {
			return "", nil, err
		}
		if extra != nil {
			extraSQL, extraArgs, err := extra.ToSql()
			if err != nil {
				return "", nil, err
			}
			clause += " AND " + extraSQL
			args = extraArgs
		}
	}
	return clause, args, nil
}

// groupSqlizer converts a condition tree into a squirrel conjunction,
// recursing into nested groups. Empty trees yield nil.
func groupSqlizer(g *intent.ConditionGroup) (sq.Sqlizer, error) {
	if g == nil || len(g.Nodes) == 0 {
		return nil, nil
	}

	parts := make([]sq.Sqlizer, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		switch v := n.(type) {
		case intent.Condition:
			s, err := conditionSqlizer(v)
			if err != nil {
				return nil, err
			}
			parts = append(parts, s)
		case *intent.ConditionGroup:
			s, err := groupSqlizer(v)
			if err != nil {
				return nil, err
			}
			if s != nil {
				parts = append(parts, s)
			}
		default:
			return nil, apperrors.Validationf("unknown condition node type")
		}
	}

	if len(parts) == 0 {
		return nil, nil
	}
	if g.Combinator == intent.CombineOr {
		return sq.Or(parts), nil
	}
	return sq.And(parts), nil
}

func conditionSqlizer(c intent.Condition) (sq.Sqlizer, error) {
	ref := c.Column.Qualified()

	switch c.Operator {
	case intent.OpEq, intent.OpIn:
		return sq.Eq{ref: c.Value}, nil
	case intent.OpNe, intent.OpNotIn:
		return sq.NotEq{ref: c.Value}, nil
	case intent.OpGt:
		return sq.Gt{ref: c.Value}, nil
	case intent.OpGte:
		return sq.GtOrEq{ref: c.Value}, nil
	case intent.OpLt:
		return sq.Lt{ref: c.Value}, nil
	case intent.OpLte:
		return sq.LtOrEq{ref: c.Value}, nil
	case intent.OpLike:
		return sq.Like{ref: c.Value}, nil
	case intent.OpNotLike:
		return sq.NotLike{ref: c.Value}, nil
	case intent.OpIsNull:
		return sq.Eq{ref: nil}, nil
	case intent.OpIsNotNull:
		return sq.NotEq{ref: nil}, nil
	case intent.OpBetween:
		lo, hi, err := rangeValues(c.Value)
		if err != nil {
			return nil, err
		}
		return sq.Expr(ref+" BETWEEN ? AND ?", lo, hi), nil
	}
	return nil, apperrors.Validationf("unknown operator %q", string(c.Operator))
}

// rangeValues unpacks the two endpoints of a BETWEEN collection.
func rangeValues(v any) (any, any, error) {
	if v == nil {
		return nil, nil, apperrors.Validationf("range operator requires exactly two values")
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Len() != 2 {
			return nil, nil, apperrors.Validationf("range operator requires exactly two values")
		}
		return rv.Index(0).Interface(), rv.Index(1).Interface(), nil
	}
	return nil, nil, apperrors.Validationf("range operator requires exactly two values")
}

// rowFilters returns the predicates to conjoin for every table the
// intent touches, in table order.
func rowFilters(qi *intent.QueryIntent, filters map[string]string) []string {
	if len(filters) == 0 {
		return nil
	}

	var out []string
	seen := make(map[string]struct{})
	add := func(table string) {
		key := strings.ToLower(table)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		if f := filters[key]; f != "" {
			out = append(out, f)
		}
	}

	for _, table := range qi.Tables {
		add(table)
	}
	for _, j := range qi.Joins {
		add(j.RightTable)
	}
	return out
}

// paginate applies LIMIT/OFFSET in the dialect's syntax. SQL Server
// pagination requires an ORDER BY, so a constant ordering is added when
// the intent has none.
func (t *sqlTranslator) paginate(qb sq.SelectBuilder, qi *intent.QueryIntent, ordered bool) (sq.SelectBuilder, error) {
	if qi.Limit == nil && qi.Offset == nil {
		return qb, nil
	}

	switch t.dialect {
	case DialectPostgres:
		if qi.Limit != nil {
			qb = qb.Limit(uint64(*qi.Limit))
		}
		if qi.Offset != nil {
			qb = qb.Offset(uint64(*qi.Offset))
		}
	case DialectSQLServer:
		if !ordered {
			qb = qb.OrderBy("(SELECT NULL)")
		}
		offset := 0
		if qi.Offset != nil {
			offset = *qi.Offset
		}
		qb = qb.Suffix(fmt.Sprintf("OFFSET %d ROWS", offset))
		if qi.Limit != nil {
			qb = qb.Suffix(fmt.Sprintf("FETCH NEXT %d ROWS ONLY", *qi.Limit))
		}
	default:
		return qb, apperrors.Configurationf("unknown sql dialect %q", string(t.dialect))
	}
	return qb, nil
}
