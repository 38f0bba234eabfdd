// Package intent defines the backend-agnostic query description model:
// tables, columns, conditions, joins, aggregations, ordering and limits,
// with invariants enforced at construction. Intents carry no I/O and are
// immutable once handed to the validation pipeline.
package intent

import (
	"fmt"
	"strings"
)

// QueryType is the verb family of an intent.
type QueryType string

const (
	TypeSelect    QueryType = "SELECT"
	TypeAggregate QueryType = "AGGREGATE"
	TypeCount     QueryType = "COUNT"
	TypeDistinct  QueryType = "DISTINCT"
)

// ParseQueryType maps a producer-supplied spelling to a QueryType.
func ParseQueryType(s string) (QueryType, error) {
	switch QueryType(strings.ToUpper(strings.TrimSpace(s))) {
	case TypeSelect:
		return TypeSelect, nil
	case TypeAggregate:
		return TypeAggregate, nil
	case TypeCount:
		return TypeCount, nil
	case TypeDistinct:
		return TypeDistinct, nil
	}
	return "", fmt.Errorf("unknown query type %q", s)
}

// Operator is a comparison operator in a Condition. Values are the SQL
// spellings so they can be rendered directly.
type Operator string

const (
	OpEq        Operator = "="
	OpNe        Operator = "!="
	OpGt        Operator = ">"
	OpGte       Operator = ">="
	OpLt        Operator = "<"
	OpLte       Operator = "<="
	OpIn        Operator = "IN"
	OpNotIn     Operator = "NOT IN"
	OpLike      Operator = "LIKE"
	OpNotLike   Operator = "NOT LIKE"
	OpIsNull    Operator = "IS NULL"
	OpIsNotNull Operator = "IS NOT NULL"
	OpBetween   Operator = "BETWEEN"
)

// operatorAliases maps the word spellings producers tend to emit onto
// canonical operators.
var operatorAliases = map[string]Operator{
	"EQ": OpEq, "=": OpEq, "==": OpEq,
	"NE": OpNe, "!=": OpNe, "<>": OpNe,
	"GT": OpGt, ">": OpGt,
	"GTE": OpGte, ">=": OpGte,
	"LT": OpLt, "<": OpLt,
	"LTE": OpLte, "<=": OpLte,
	"IN":       OpIn,
	"NOT_IN":   OpNotIn,
	"NOT IN":   OpNotIn,
	"LIKE":     OpLike,
	"NOT_LIKE": OpNotLike,
	"NOT LIKE": OpNotLike,
	"IS_NULL":  OpIsNull, "IS NULL": OpIsNull,
	"IS_NOT_NULL": OpIsNotNull, "IS NOT NULL": OpIsNotNull,
	"BETWEEN": OpBetween,
}

// ParseOperator maps a producer-supplied spelling (symbol or word form,
// any case) to an Operator.
func ParseOperator(s string) (Operator, error) {
	op, ok := operatorAliases[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown operator %q", s)
	}
	return op, nil
}

// IsRange reports whether the operator takes exactly two values.
func (o Operator) IsRange() bool { return o == OpBetween }

// IsMembership reports whether the operator takes a collection value.
func (o Operator) IsMembership() bool { return o == OpIn || o == OpNotIn }

// IsNullCheck reports whether the operator takes no value at all.
func (o Operator) IsNullCheck() bool { return o == OpIsNull || o == OpIsNotNull }

// Combinator joins the members of a ConditionGroup.
type Combinator string

const (
	CombineAnd Combinator = "AND"
	CombineOr  Combinator = "OR"
)

// ParseCombinator maps a producer-supplied spelling to a Combinator.
func ParseCombinator(s string) (Combinator, error) {
	switch Combinator(strings.ToUpper(strings.TrimSpace(s))) {
	case CombineAnd:
		return CombineAnd, nil
	case CombineOr:
		return CombineOr, nil
	}
	return "", fmt.Errorf("unknown combinator %q", s)
}

// AggregateFunc is an aggregation function tag.
type AggregateFunc string

const (
	AggSum         AggregateFunc = "SUM"
	AggAvg         AggregateFunc = "AVG"
	AggCount       AggregateFunc = "COUNT"
	AggMin         AggregateFunc = "MIN"
	AggMax         AggregateFunc = "MAX"
	AggGroupConcat AggregateFunc = "GROUP_CONCAT"
)

// ParseAggregateFunc maps a producer-supplied spelling to an AggregateFunc.
func ParseAggregateFunc(s string) (AggregateFunc, error) {
	switch AggregateFunc(strings.ToUpper(strings.TrimSpace(s))) {
	case AggSum:
		return AggSum, nil
	case AggAvg:
		return AggAvg, nil
	case AggCount:
		return AggCount, nil
	case AggMin:
		return AggMin, nil
	case AggMax:
		return AggMax, nil
	case AggGroupConcat:
		return AggGroupConcat, nil
	}
	return "", fmt.Errorf("unknown aggregate function %q", s)
}

// JoinType is the kind of a JoinCondition.
type JoinType string

const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinRight JoinType = "RIGHT"
	JoinFull  JoinType = "FULL"
)

// ParseJoinType maps a producer-supplied spelling to a JoinType. The
// trailing JOIN word is tolerated.
func ParseJoinType(s string) (JoinType, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.TrimSuffix(norm, " JOIN")
	norm = strings.TrimSuffix(norm, " OUTER")
	switch JoinType(norm) {
	case JoinInner:
		return JoinInner, nil
	case JoinLeft:
		return JoinLeft, nil
	case JoinRight:
		return JoinRight, nil
	case JoinFull:
		return JoinFull, nil
	}
	return "", fmt.Errorf("unknown join type %q", s)
}

// SQL returns the join keyword as rendered in a query.
func (j JoinType) SQL() string { return string(j) + " JOIN" }
