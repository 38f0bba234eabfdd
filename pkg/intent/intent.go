package intent

import (
	"reflect"
	"time"

	"github.com/queryguard-io/queryguard-engine/pkg/apperrors"
)

// MaxConditionDepth bounds condition-group nesting. Top-down construction
// cannot create cycles, but producer-decoded trees are re-walked and must
// not recurse past this depth.
const MaxConditionDepth = 32

// Star is the select-everything column name.
const Star = "*"

// Column identifies a referenced column. Identity is the (table, name)
// pair; the alias only affects output naming.
type Column struct {
	Name  string `json:"name"`
	Table string `json:"table,omitempty"`
	Alias string `json:"alias,omitempty"`
}

// Col builds an unqualified column reference.
func Col(name string) Column { return Column{Name: name} }

// TableCol builds a table-qualified column reference.
func TableCol(table, name string) Column { return Column{Name: name, Table: table} }

// Qualified returns the rendered reference, "table.name" when qualified.
func (c Column) Qualified() string {
	if c.Table != "" {
		return c.Table + "." + c.Name
	}
	return c.Name
}

// Key returns the identity of the column for set membership checks.
func (c Column) Key() string { return c.Table + "\x00" + c.Name }

// IsStar reports whether the column selects everything.
func (c Column) IsStar() bool { return c.Name == Star }

// Condition is a single (column, operator, value) predicate leaf.
type Condition struct {
	Column   Column
	Operator Operator
	Value    any
}

// NewCondition builds a predicate leaf, enforcing operator arity:
// range operators take exactly two values, membership operators take a
// collection, null checks take no value.
func NewCondition(col Column, op Operator, value any) (Condition, error) {
	switch {
	case op.IsNullCheck():
		value = nil
	case op.IsRange():
		if !isCollection(value) || collectionLen(value) != 2 {
			return Condition{}, apperrors.Validationf("operator %s requires exactly two values", op)
		}
	case op.IsMembership():
		if !isCollection(value) {
			return Condition{}, apperrors.Validationf("operator %s requires a collection of values", op)
		}
	}
	return Condition{Column: col, Operator: op, Value: value}, nil
}

func (Condition) node() {}

// validate re-checks arity for conditions that were decoded rather than
// built through NewCondition.
func (c Condition) validate() error {
	_, err := NewCondition(c.Column, c.Operator, c.Value)
	return err
}

func isCollection(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return true
	}
	return false
}

func collectionLen(v any) int { return reflect.ValueOf(v).Len() }

// Node is one member of a ConditionGroup: a Condition leaf or a nested
// *ConditionGroup.
type Node interface {
	node()
}

// ConditionGroup combines an ordered list of nodes with one logical
// combinator. Groups nest recursively and are built top-down.
type ConditionGroup struct {
	Combinator Combinator
	Nodes      []Node
}

func (*ConditionGroup) node() {}

// NewGroup builds a condition group. The zero combinator defaults to AND.
func NewGroup(comb Combinator, nodes ...Node) *ConditionGroup {
	if comb == "" {
		comb = CombineAnd
	}
	return &ConditionGroup{Combinator: comb, Nodes: nodes}
}

// Add appends a node and returns the group for chaining.
func (g *ConditionGroup) Add(n Node) *ConditionGroup {
	g.Nodes = append(g.Nodes, n)
	return g
}

// Leaves returns every Condition in the tree, depth-first.
func (g *ConditionGroup) Leaves() []Condition {
	if g == nil {
		return nil
	}
	var out []Condition
	for _, n := range g.Nodes {
		switch v := n.(type) {
		case Condition:
			out = append(out, v)
		case *ConditionGroup:
			out = append(out, v.Leaves()...)
		}
	}
	return out
}

// Depth returns the nesting depth of the tree; a flat group is depth 1.
func (g *ConditionGroup) Depth() int {
	if g == nil {
		return 0
	}
	max := 1
	for _, n := range g.Nodes {
		if sub, ok := n.(*ConditionGroup); ok {
			if d := sub.Depth() + 1; d > max {
				max = d
			}
		}
	}
	return max
}

func (g *ConditionGroup) validate(depth int) error {
	if g == nil {
		return nil
	}
	if depth > MaxConditionDepth {
		return apperrors.Validationf("condition nesting exceeds depth %d", MaxConditionDepth)
	}
	if g.Combinator != CombineAnd && g.Combinator != CombineOr {
		return apperrors.Validationf("unknown combinator %q", string(g.Combinator))
	}
	for _, n := range g.Nodes {
		switch v := n.(type) {
		case Condition:
			if err := v.validate(); err != nil {
				return err
			}
		case *ConditionGroup:
			if err := v.validate(depth + 1); err != nil {
				return err
			}
		default:
			return apperrors.Validationf("unknown condition node type")
		}
	}
	return nil
}

// JoinCondition links two tables on one column pair, with optional extra
// predicates for the ON clause.
type JoinCondition struct {
	Type        JoinType
	LeftTable   string
	RightTable  string
	LeftColumn  string
	RightColumn string
	Extra       *ConditionGroup
}

func (j JoinCondition) validate() error {
	if j.LeftTable == "" || j.RightTable == "" || j.LeftColumn == "" || j.RightColumn == "" {
		return apperrors.Validationf("join must name both tables and both columns")
	}
	switch j.Type {
	case JoinInner, JoinLeft, JoinRight, JoinFull:
	default:
		return apperrors.Validationf("unknown join type %q", string(j.Type))
	}
	return j.Extra.validate(1)
}

// Aggregation applies a function to one column, optionally aliased.
type Aggregation struct {
	Func   AggregateFunc
	Column Column
	Alias  string
}

// OrderBy orders results by one column. Ascending unless stated otherwise.
type OrderBy struct {
	Column    Column
	Ascending bool
}

// Asc builds an ascending ordering term.
func Asc(col Column) OrderBy { return OrderBy{Column: col, Ascending: true} }

// Desc builds a descending ordering term.
func Desc(col Column) OrderBy { return OrderBy{Column: col, Ascending: false} }

// Provenance records where an intent came from, for caching and audit.
type Provenance struct {
	SourceText    string
	EstimatedCost float64
	CacheTTL      time.Duration
}

// QueryIntent is the aggregate root: one complete backend-agnostic query
// description. Build it with New and the Add/Set helpers, which re-check
// the relevant invariant on every mutation; call Validate after decoding
// one from an untrusted producer.
type QueryIntent struct {
	Type         QueryType
	Tables       []string
	Columns      []Column
	Conditions   *ConditionGroup
	Joins        []JoinCondition
	Aggregations []Aggregation
	GroupBy      []Column
	Having       *ConditionGroup
	OrderBy      []OrderBy
	Limit        *int
	Offset       *int
	Distinct     bool
	Provenance   Provenance

	// starDefaulted marks that Columns holds only the implicit "*" added
	// for a bare SELECT; the first explicit column or aggregation
	// replaces it.
	starDefaulted bool
}

// New builds an intent over at least one table.
func New(qt QueryType, tables ...string) (*QueryIntent, error) {
	switch qt {
	case TypeSelect, TypeAggregate, TypeCount, TypeDistinct:
	default:
		return nil, apperrors.Validationf("unknown query type %q", string(qt))
	}
	if len(tables) == 0 {
		return nil, apperrors.Validationf("query must reference at least one table")
	}
	for _, t := range tables {
		if t == "" {
			return nil, apperrors.Validationf("table name must not be empty")
		}
	}
	qi := &QueryIntent{Type: qt, Tables: tables}
	if qt == TypeSelect {
		qi.Columns = []Column{Col(Star)}
		qi.starDefaulted = true
	}
	return qi, nil
}

// AddColumn selects a column, replacing the implicit "*" if present.
func (qi *QueryIntent) AddColumn(col Column) error {
	if col.Name == "" {
		return apperrors.Validationf("column name must not be empty")
	}
	if qi.starDefaulted {
		qi.Columns = qi.Columns[:0]
		qi.starDefaulted = false
	}
	qi.Columns = append(qi.Columns, col)
	if err := qi.checkAggregationCoverage(); err != nil {
		qi.Columns = qi.Columns[:len(qi.Columns)-1]
		return err
	}
	return nil
}

// AddCondition appends a predicate leaf to the root condition group,
// creating an AND group when none exists.
func (qi *QueryIntent) AddCondition(cond Condition) error {
	if err := cond.validate(); err != nil {
		return err
	}
	if qi.Conditions == nil {
		qi.Conditions = NewGroup(CombineAnd)
	}
	qi.Conditions.Add(cond)
	return nil
}

// SetConditions replaces the whole condition tree.
func (qi *QueryIntent) SetConditions(g *ConditionGroup) error {
	if err := g.validate(1); err != nil {
		return err
	}
	qi.Conditions = g
	return nil
}

// AddJoin appends a join.
func (qi *QueryIntent) AddJoin(j JoinCondition) error {
	if err := j.validate(); err != nil {
		return err
	}
	qi.Joins = append(qi.Joins, j)
	return nil
}

// AddAggregation appends an aggregation and promotes the intent to the
// AGGREGATE type. The implicit "*" projection is dropped: aggregation
// output becomes the projection unless columns were selected explicitly.
func (qi *QueryIntent) AddAggregation(a Aggregation) error {
	if a.Column.Name == "" {
		return apperrors.Validationf("aggregation column must not be empty")
	}
	switch a.Func {
	case AggSum, AggAvg, AggCount, AggMin, AggMax, AggGroupConcat:
	default:
		return apperrors.Validationf("unknown aggregate function %q", string(a.Func))
	}
	if qi.starDefaulted {
		qi.Columns = qi.Columns[:0]
		qi.starDefaulted = false
	}
	qi.Aggregations = append(qi.Aggregations, a)
	if err := qi.checkAggregationCoverage(); err != nil {
		qi.Aggregations = qi.Aggregations[:len(qi.Aggregations)-1]
		return err
	}
	qi.Type = TypeAggregate
	return nil
}

// SetGroupBy replaces the group-by column list.
func (qi *QueryIntent) SetGroupBy(cols ...Column) error {
	if len(cols) == 0 && qi.Having != nil {
		return apperrors.Validationf("cannot clear GROUP BY while HAVING is set")
	}
	prev := qi.GroupBy
	qi.GroupBy = cols
	if err := qi.checkAggregationCoverage(); err != nil {
		qi.GroupBy = prev
		return err
	}
	return nil
}

// SetHaving attaches a HAVING predicate tree. Requires a GROUP BY.
func (qi *QueryIntent) SetHaving(g *ConditionGroup) error {
	if len(qi.GroupBy) == 0 {
		return apperrors.Validationf("HAVING requires a GROUP BY")
	}
	if err := g.validate(1); err != nil {
		return err
	}
	qi.Having = g
	return nil
}

// AddOrderBy appends an ordering term.
func (qi *QueryIntent) AddOrderBy(ob OrderBy) error {
	if ob.Column.Name == "" {
		return apperrors.Validationf("order-by column must not be empty")
	}
	qi.OrderBy = append(qi.OrderBy, ob)
	return nil
}

// SetLimit sets the row limit. Must be positive.
func (qi *QueryIntent) SetLimit(n int) error {
	if n < 1 {
		return apperrors.Validationf("limit must be positive, got %d", n)
	}
	qi.Limit = &n
	return nil
}

// SetOffset sets the row offset. Must be non-negative.
func (qi *QueryIntent) SetOffset(n int) error {
	if n < 0 {
		return apperrors.Validationf("offset must not be negative, got %d", n)
	}
	qi.Offset = &n
	return nil
}

// checkAggregationCoverage enforces that, once any aggregation exists,
// every selected column is either aggregated or grouped.
func (qi *QueryIntent) checkAggregationCoverage() error {
	if len(qi.Aggregations) == 0 {
		return nil
	}
	for _, col := range qi.Columns {
		if qi.columnAggregated(col) || qi.columnGrouped(col) {
			continue
		}
		return apperrors.Validationf("column %s must be aggregated or listed in GROUP BY", col.Qualified())
	}
	return nil
}

func (qi *QueryIntent) columnAggregated(col Column) bool {
	for _, a := range qi.Aggregations {
		if a.Column.Key() == col.Key() || a.Column.IsStar() {
			return true
		}
	}
	return false
}

func (qi *QueryIntent) columnGrouped(col Column) bool {
	for _, g := range qi.GroupBy {
		if g.Key() == col.Key() {
			return true
		}
	}
	return false
}

// Validate re-checks every construction invariant. Use it on intents
// decoded from an untrusted producer, where fields were filled directly.
func (qi *QueryIntent) Validate() error {
	if qi == nil {
		return apperrors.Validationf("intent is nil")
	}
	switch qi.Type {
	case TypeSelect, TypeAggregate, TypeCount, TypeDistinct:
	default:
		return apperrors.Validationf("unknown query type %q", string(qi.Type))
	}
	if len(qi.Tables) == 0 {
		return apperrors.Validationf("query must reference at least one table")
	}
	for _, t := range qi.Tables {
		if t == "" {
			return apperrors.Validationf("table name must not be empty")
		}
	}
	if err := qi.Conditions.validate(1); err != nil {
		return err
	}
	for _, j := range qi.Joins {
		if err := j.validate(); err != nil {
			return err
		}
	}
	if qi.Having != nil && len(qi.GroupBy) == 0 {
		return apperrors.Validationf("HAVING requires a GROUP BY")
	}
	if err := qi.Having.validate(1); err != nil {
		return err
	}
	if err := qi.checkAggregationCoverage(); err != nil {
		return err
	}
	if qi.Limit != nil && *qi.Limit < 1 {
		return apperrors.Validationf("limit must be positive, got %d", *qi.Limit)
	}
	if qi.Offset != nil && *qi.Offset < 0 {
		return apperrors.Validationf("offset must not be negative, got %d", *qi.Offset)
	}
	return nil
}

// AllColumns returns every column the intent references: selections,
// aggregation targets, group-by, order-by and condition columns. Used for
// identifier validation and column-level access checks.
func (qi *QueryIntent) AllColumns() []Column {
	var out []Column
	out = append(out, qi.Columns...)
	for _, a := range qi.Aggregations {
		out = append(out, a.Column)
	}
	out = append(out, qi.GroupBy...)
	for _, ob := range qi.OrderBy {
		out = append(out, ob.Column)
	}
	for _, c := range qi.Conditions.Leaves() {
		out = append(out, c.Column)
	}
	for _, c := range qi.Having.Leaves() {
		out = append(out, c.Column)
	}
	return out
}
