package intent

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/queryguard-io/queryguard-engine/pkg/apperrors"
)

func TestNewRequiresTable(t *testing.T) {
	_, err := New(TypeSelect)
	if err == nil {
		t.Fatal("New() with no tables should fail")
	}
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}

	_, err = New(TypeSelect, "")
	if err == nil {
		t.Fatal("New() with an empty table name should fail")
	}
}

func TestNewSelectDefaultsToStar(t *testing.T) {
	qi, err := New(TypeSelect, "users")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if len(qi.Columns) != 1 || !qi.Columns[0].IsStar() {
		t.Errorf("Columns = %v, want implicit star", qi.Columns)
	}

	if err := qi.AddColumn(Col("id")); err != nil {
		t.Fatalf("AddColumn() error = %v", err)
	}
	if len(qi.Columns) != 1 || qi.Columns[0].Name != "id" {
		t.Errorf("Columns = %v, want explicit id replacing star", qi.Columns)
	}
}

func TestNewConditionArity(t *testing.T) {
	tests := []struct {
		name    string
		op      Operator
		value   any
		wantErr bool
	}{
		{name: "between with two values", op: OpBetween, value: []any{1, 10}},
		{name: "between with one value", op: OpBetween, value: []any{1}, wantErr: true},
		{name: "between with three values", op: OpBetween, value: []any{1, 2, 3}, wantErr: true},
		{name: "between with scalar", op: OpBetween, value: 5, wantErr: true},
		{name: "between with nil", op: OpBetween, value: nil, wantErr: true},
		{name: "in with slice", op: OpIn, value: []any{"a", "b"}},
		{name: "in with empty slice", op: OpIn, value: []any{}},
		{name: "in with typed slice", op: OpIn, value: []int{1, 2, 3}},
		{name: "in with scalar", op: OpIn, value: "a", wantErr: true},
		{name: "not in with scalar", op: OpNotIn, value: 7, wantErr: true},
		{name: "eq with scalar", op: OpEq, value: "x"},
		{name: "like with string", op: OpLike, value: "%x%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCondition(Col("c"), tt.op, tt.value)
			if tt.wantErr && err == nil {
				t.Fatalf("NewCondition(%s, %v) should fail", tt.op, tt.value)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("NewCondition(%s, %v) error = %v", tt.op, tt.value, err)
			}
		})
	}
}

func TestNewConditionNullCheckDropsValue(t *testing.T) {
	cond, err := NewCondition(Col("deleted_at"), OpIsNull, "ignored")
	if err != nil {
		t.Fatalf("NewCondition() error = %v", err)
	}
	if cond.Value != nil {
		t.Errorf("Value = %v, want nil for null check", cond.Value)
	}
}

func TestAddAggregationPromotesType(t *testing.T) {
	qi, err := New(TypeSelect, "orders")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := qi.AddAggregation(Aggregation{Func: AggCount, Column: Col(Star)}); err != nil {
		t.Fatalf("AddAggregation() error = %v", err)
	}
	if qi.Type != TypeAggregate {
		t.Errorf("Type = %s, want AGGREGATE", qi.Type)
	}
	if len(qi.Columns) != 0 {
		t.Errorf("Columns = %v, want implicit star dropped", qi.Columns)
	}
}

func TestAggregationCoverage(t *testing.T) {
	qi, err := New(TypeSelect, "orders")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := qi.AddColumn(Col("status")); err != nil {
		t.Fatalf("AddColumn() error = %v", err)
	}

	// status is neither aggregated nor grouped
	err = qi.AddAggregation(Aggregation{Func: AggSum, Column: Col("total")})
	if err == nil {
		t.Fatal("AddAggregation() should fail while status is ungrouped")
	}
	if len(qi.Aggregations) != 0 {
		t.Errorf("failed AddAggregation must not leave a partial aggregation, got %v", qi.Aggregations)
	}

	if err := qi.SetGroupBy(Col("status")); err != nil {
		t.Fatalf("SetGroupBy() error = %v", err)
	}
	if err := qi.AddAggregation(Aggregation{Func: AggSum, Column: Col("total"), Alias: "revenue"}); err != nil {
		t.Fatalf("AddAggregation() after grouping error = %v", err)
	}
}

func TestSetHavingRequiresGroupBy(t *testing.T) {
	qi, err := New(TypeSelect, "orders")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	cond, _ := NewCondition(Col("total"), OpGt, 100)
	if err := qi.SetHaving(NewGroup(CombineAnd, cond)); err == nil {
		t.Fatal("SetHaving() without GROUP BY should fail")
	}

	if err := qi.SetGroupBy(Col("status")); err != nil {
		t.Fatalf("SetGroupBy() error = %v", err)
	}
	if err := qi.SetHaving(NewGroup(CombineAnd, cond)); err != nil {
		t.Fatalf("SetHaving() error = %v", err)
	}

	if err := qi.SetGroupBy(); err == nil {
		t.Fatal("SetGroupBy() clearing groups under HAVING should fail")
	}
}

func TestLimitOffsetBounds(t *testing.T) {
	qi, err := New(TypeSelect, "users")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := qi.SetLimit(0); err == nil {
		t.Error("SetLimit(0) should fail")
	}
	if err := qi.SetLimit(10); err != nil {
		t.Errorf("SetLimit(10) error = %v", err)
	}
	if err := qi.SetOffset(-1); err == nil {
		t.Error("SetOffset(-1) should fail")
	}
	if err := qi.SetOffset(0); err != nil {
		t.Errorf("SetOffset(0) error = %v", err)
	}
}

func TestValidateDecodedIntent(t *testing.T) {
	// Fields filled directly, as a producer decoder would
	qi := &QueryIntent{
		Type:   TypeSelect,
		Tables: []string{"users"},
		Conditions: NewGroup(CombineAnd, Condition{
			Column:   Col("age"),
			Operator: OpBetween,
			Value:    []any{18}, // wrong arity smuggled past NewCondition
		}),
	}
	if err := qi.Validate(); err == nil {
		t.Fatal("Validate() should reject a BETWEEN with one value")
	}

	qi = &QueryIntent{Type: "EXPLAIN", Tables: []string{"users"}}
	if err := qi.Validate(); err == nil {
		t.Fatal("Validate() should reject an unknown query type")
	}

	qi = &QueryIntent{Type: TypeSelect}
	if err := qi.Validate(); err == nil {
		t.Fatal("Validate() should reject an empty table list")
	}
}

func TestValidateBoundsConditionDepth(t *testing.T) {
	leaf, _ := NewCondition(Col("x"), OpEq, 1)
	g := NewGroup(CombineAnd, leaf)
	for i := 0; i < MaxConditionDepth+1; i++ {
		g = NewGroup(CombineAnd, g)
	}
	qi := &QueryIntent{Type: TypeSelect, Tables: []string{"t"}, Conditions: g}
	if err := qi.Validate(); err == nil {
		t.Fatal("Validate() should reject nesting beyond MaxConditionDepth")
	}
}

func TestCanonicalIsStable(t *testing.T) {
	build := func() *QueryIntent {
		qi, err := New(TypeSelect, "orders", "customers")
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if err := qi.AddColumn(TableCol("orders", "id")); err != nil {
			t.Fatal(err)
		}
		cond, _ := NewCondition(TableCol("orders", "total"), OpGt, 100)
		if err := qi.AddCondition(cond); err != nil {
			t.Fatal(err)
		}
		if err := qi.AddJoin(JoinCondition{
			Type: JoinInner, LeftTable: "orders", RightTable: "customers",
			LeftColumn: "customer_id", RightColumn: "id",
		}); err != nil {
			t.Fatal(err)
		}
		if err := qi.SetLimit(50); err != nil {
			t.Fatal(err)
		}
		return qi
	}

	a, err := build().Canonical()
	if err != nil {
		t.Fatalf("Canonical() error = %v", err)
	}
	b, err := build().Canonical()
	if err != nil {
		t.Fatalf("Canonical() error = %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("Canonical() not stable:\n%s\n%s", a, b)
	}
	for _, want := range []string{`"query_type":"SELECT"`, `"tables":["orders","customers"]`, `"limit":50`} {
		if !strings.Contains(string(a), want) {
			t.Errorf("Canonical() = %s, missing %s", a, want)
		}
	}
}

func TestParseOperatorAliases(t *testing.T) {
	tests := []struct {
		in   string
		want Operator
	}{
		{"eq", OpEq},
		{"=", OpEq},
		{"not_in", OpNotIn},
		{"NOT IN", OpNotIn},
		{"is null", OpIsNull},
		{">=", OpGte},
		{"between", OpBetween},
	}
	for _, tt := range tests {
		got, err := ParseOperator(tt.in)
		if err != nil {
			t.Errorf("ParseOperator(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseOperator(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	if _, err := ParseOperator("matches"); err == nil {
		t.Error("ParseOperator(\"matches\") should fail")
	}
}

func TestParseJoinType(t *testing.T) {
	for in, want := range map[string]JoinType{
		"inner":           JoinInner,
		"LEFT JOIN":       JoinLeft,
		"full outer join": JoinFull,
		"RIGHT":           JoinRight,
	} {
		got, err := ParseJoinType(in)
		if err != nil {
			t.Errorf("ParseJoinType(%q) error = %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseJoinType(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestAllColumnsGathersEverySection(t *testing.T) {
	qi, err := New(TypeSelect, "orders")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := qi.AddColumn(Col("status")); err != nil {
		t.Fatal(err)
	}
	cond, _ := NewCondition(Col("region"), OpEq, "EU")
	if err := qi.AddCondition(cond); err != nil {
		t.Fatal(err)
	}
	if err := qi.SetGroupBy(Col("status")); err != nil {
		t.Fatal(err)
	}
	hv, _ := NewCondition(Col("total"), OpGt, 10)
	if err := qi.SetHaving(NewGroup(CombineAnd, hv)); err != nil {
		t.Fatal(err)
	}
	if err := qi.AddOrderBy(Desc(Col("created_at"))); err != nil {
		t.Fatal(err)
	}

	names := map[string]bool{}
	for _, c := range qi.AllColumns() {
		names[c.Name] = true
	}
	for _, want := range []string{"status", "region", "total", "created_at"} {
		if !names[want] {
			t.Errorf("AllColumns() missing %s, got %v", want, names)
		}
	}
}
