package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/queryguard-io/queryguard-engine/pkg/access"
	"github.com/queryguard-io/queryguard-engine/pkg/adapters/datasource"
	"github.com/queryguard-io/queryguard-engine/pkg/apperrors"
	"github.com/queryguard-io/queryguard-engine/pkg/audit"
	"github.com/queryguard-io/queryguard-engine/pkg/intent"
	"github.com/queryguard-io/queryguard-engine/pkg/llm"
	"github.com/queryguard-io/queryguard-engine/pkg/schema"
	"github.com/queryguard-io/queryguard-engine/pkg/sqlparse"
	"github.com/queryguard-io/queryguard-engine/pkg/translate"
	"github.com/queryguard-io/queryguard-engine/pkg/validate"
)

type stubExecutor struct {
	result      *datasource.QueryResult
	err         error
	calls       int
	lastSQL     string
	lastArgs    []any
	lastLimit   int
	hadDeadline bool
}

func (s *stubExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryResult, error) {
	return s.QueryWithParams(ctx, sqlQuery, nil, limit)
}

func (s *stubExecutor) QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*datasource.QueryResult, error) {
	s.calls++
	s.lastSQL = sqlQuery
	s.lastArgs = params
	s.lastLimit = limit
	_, s.hadDeadline = ctx.Deadline()
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &datasource.QueryResult{Rows: []map[string]any{}}, nil
}

func (s *stubExecutor) QuoteIdentifier(name string) string { return `"` + name + `"` }

func (s *stubExecutor) Close() error { return nil }

type stubSchema struct {
	tables []schema.Table
	err    error
}

func (s *stubSchema) Schema(ctx context.Context) ([]schema.Table, error) {
	return s.tables, s.err
}

type engineFixture struct {
	engine   *Engine
	producer *llm.MockProvider
	executor *stubExecutor
	auditor  audit.Recorder
}

// newFixture wires an engine over a real validator, controller, recorder
// and translator, with the producer and executor stubbed out. The
// analyst principal sees orders (column allow-list plus a row filter)
// and products; loader may only insert into inventory; root is admin.
func newFixture(t *testing.T) *engineFixture {
	t.Helper()

	guard := access.New(zap.NewNop())
	require.NoError(t, guard.SetPrincipal(access.PrincipalPermissions{
		PrincipalID: "analyst",
		Tables: map[string]access.TablePermissions{
			"orders": {
				Table:      "orders",
				Operations: access.NewOperationSet(access.OpSelect),
				Columns:    []string{"id", "total", "tenant_id"},
				RowFilter:  "tenant_id = 7",
			},
			"products": {
				Table:      "products",
				Operations: access.NewOperationSet(access.OpSelect),
			},
		},
		MaxRows:     500,
		MaxExecTime: 5 * time.Second,
	}))
	require.NoError(t, guard.SetPrincipal(access.PrincipalPermissions{
		PrincipalID: "root",
		Admin:       true,
	}))
	require.NoError(t, guard.SetPrincipal(access.PrincipalPermissions{
		PrincipalID: "loader",
		Tables: map[string]access.TablePermissions{
			"inventory": {
				Table:      "inventory",
				Operations: access.NewOperationSet(access.OpInsert),
			},
		},
	}))

	translator, err := translate.NewTranslator(translate.DialectPostgres)
	require.NoError(t, err)

	producer := llm.NewMockProvider()
	executor := &stubExecutor{}
	auditor := audit.NewRecorder(zap.NewNop())

	eng, err := New(Config{
		Producer:   producer,
		Translator: translator,
		Executor:   executor,
		Schema: &stubSchema{tables: []schema.Table{
			{Name: "orders", Columns: []schema.Column{{Name: "id", DataType: "bigint"}, {Name: "total", DataType: "numeric"}, {Name: "tenant_id", DataType: "bigint"}}},
			{Name: "products", Columns: []schema.Column{{Name: "id", DataType: "bigint"}, {Name: "name", DataType: "text"}}},
		}},
		Guard:     guard,
		Validator: validate.New(validate.Config{}, nil, zap.NewNop()),
		Auditor:   auditor,
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)

	return &engineFixture{engine: eng, producer: producer, executor: executor, auditor: auditor}
}

func selectIntent(t *testing.T, table string, cols ...string) *intent.QueryIntent {
	t.Helper()
	qi, err := intent.New(intent.TypeSelect, table)
	require.NoError(t, err)
	for _, c := range cols {
		require.NoError(t, qi.AddColumn(intent.Col(c)))
	}
	return qi
}

func TestNew_RequiresEveryCapability(t *testing.T) {
	fx := newFixture(t)
	base := Config{
		Producer:   fx.producer,
		Translator: mustTranslator(t),
		Executor:   fx.executor,
		Schema:     &stubSchema{},
		Guard:      access.New(zap.NewNop()),
		Validator:  validate.New(validate.Config{}, nil, zap.NewNop()),
		Auditor:    audit.NewRecorder(zap.NewNop()),
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"producer", func(c *Config) { c.Producer = nil }},
		{"translator", func(c *Config) { c.Translator = nil }},
		{"executor", func(c *Config) { c.Executor = nil }},
		{"schema", func(c *Config) { c.Schema = nil }},
		{"guard", func(c *Config) { c.Guard = nil }},
		{"validator", func(c *Config) { c.Validator = nil }},
		{"auditor", func(c *Config) { c.Auditor = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := New(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrConfiguration)
		})
	}

	t.Run("nil logger is fine", func(t *testing.T) {
		eng, err := New(base)
		require.NoError(t, err)
		assert.NotNil(t, eng)
	})
}

func mustTranslator(t *testing.T) translate.Translator {
	t.Helper()
	tr, err := translate.NewTranslator(translate.DialectPostgres)
	require.NoError(t, err)
	return tr
}

func TestAsk_ExecutesUnderPrincipalLimits(t *testing.T) {
	fx := newFixture(t)
	fx.producer.ProposeIntentFunc = func(ctx context.Context, question string, tables []schema.Table) (*intent.QueryIntent, error) {
		return selectIntent(t, "orders", "id", "total"), nil
	}
	fx.executor.result = &datasource.QueryResult{
		Columns:  []datasource.ColumnInfo{{Name: "id", Type: "bigint"}, {Name: "total", Type: "numeric"}},
		Rows:     []map[string]any{{"id": int64(1), "total": 9.5}},
		RowCount: 1,
	}

	out, err := fx.engine.Ask(context.Background(), "analyst", "total per order")
	require.NoError(t, err)
	assert.Equal(t, 1, out.RowCount)

	assert.Equal(t, 1, fx.executor.calls)
	assert.Equal(t, 500, fx.executor.lastLimit)
	assert.True(t, fx.executor.hadDeadline, "execution should run under a deadline")
	assert.Contains(t, fx.executor.lastSQL, "tenant_id = 7", "row filter must be conjoined")

	events := fx.auditor.Recent(10)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventQueryValidated, events[0].Type)
	assert.Equal(t, "analyst", events[0].PrincipalID)
}

func TestAsk_EmptyQuestion(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.engine.Ask(context.Background(), "analyst", "   ")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, 0, fx.producer.ProposeIntentCalls)
	assert.Equal(t, 0, fx.executor.calls)
}

func TestAsk_ProducerError(t *testing.T) {
	fx := newFixture(t)
	fx.producer.ProposeIntentFunc = func(ctx context.Context, question string, tables []schema.Table) (*intent.QueryIntent, error) {
		return nil, apperrors.Validationf("model reply is not an intent")
	}

	_, err := fx.engine.Ask(context.Background(), "analyst", "whatever")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, 0, fx.executor.calls)
}

func TestAsk_RejectedCandidateIsNotRetried(t *testing.T) {
	fx := newFixture(t)
	fx.producer.ProposeIntentFunc = func(ctx context.Context, question string, tables []schema.Table) (*intent.QueryIntent, error) {
		return selectIntent(t, "salaries", "amount"), nil
	}

	_, err := fx.engine.Ask(context.Background(), "analyst", "show all salaries")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSecurity)
	assert.Equal(t, 1, fx.producer.ProposeIntentCalls)
	assert.Equal(t, 0, fx.executor.calls)
}

func TestProcess_UnsafeConditionValue(t *testing.T) {
	fx := newFixture(t)
	qi := selectIntent(t, "orders", "id")
	cond, err := intent.NewCondition(intent.Col("total"), intent.OpEq, "x' OR '1'='1")
	require.NoError(t, err)
	require.NoError(t, qi.AddCondition(cond))

	_, err = fx.engine.Process(context.Background(), "analyst", qi)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSecurity)
	assert.Equal(t, validate.ReasonUnsafeValue, err.Error())
	assert.Equal(t, 0, fx.executor.calls)

	events := fx.auditor.Recent(5)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventInjectionAttempt, events[0].Type)
}

func TestProcess_TypeNotAllowed(t *testing.T) {
	fx := newFixture(t)
	qi := selectIntent(t, "orders", "id")
	qi.Type = intent.TypeDistinct

	restricted, err := New(Config{
		Producer:   fx.producer,
		Translator: mustTranslator(t),
		Executor:   fx.executor,
		Schema:     &stubSchema{},
		Guard:      access.New(zap.NewNop()),
		Validator:  validate.New(validate.Config{AllowedTypes: []string{"SELECT"}}, nil, zap.NewNop()),
		Auditor:    fx.auditor,
	})
	require.NoError(t, err)

	_, err = restricted.Process(context.Background(), "analyst", qi)
	require.Error(t, err)
	assert.Equal(t, validate.ReasonTypeNotAllowed, err.Error())

	events := fx.auditor.Recent(5)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventQueryRejected, events[0].Type)
}

func TestProcess_TableDenied(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.engine.Process(context.Background(), "analyst", selectIntent(t, "salaries", "amount"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSecurity)
	assert.Equal(t, access.ReasonTableDenied, err.Error())
	assert.Equal(t, 0, fx.executor.calls)

	events := fx.auditor.Recent(5)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventAccessDenied, events[0].Type)
	assert.Contains(t, events[0].Fragment, "salaries")
}

func TestProcess_ColumnDenied(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.engine.Process(context.Background(), "analyst", selectIntent(t, "orders", "id", "email"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSecurity)
	assert.Equal(t, access.ReasonColumnDenied, err.Error())
	assert.Equal(t, 0, fx.executor.calls)
}

func TestProcess_StarDeniedUnderAllowList(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.engine.Process(context.Background(), "analyst", selectIntent(t, "orders", "*"))
	require.Error(t, err)
	assert.Equal(t, access.ReasonColumnDenied, err.Error())
}

func joinedIntent(t *testing.T) *intent.QueryIntent {
	t.Helper()
	qi, err := intent.New(intent.TypeSelect, "orders")
	require.NoError(t, err)
	require.NoError(t, qi.AddJoin(intent.JoinCondition{
		Type:        intent.JoinInner,
		LeftTable:   "orders",
		RightTable:  "products",
		LeftColumn:  "id",
		RightColumn: "id",
	}))
	return qi
}

func TestProcess_UnqualifiedColumnCheckedAgainstEveryTable(t *testing.T) {
	fx := newFixture(t)

	// "name" exists only on products, but unqualified columns are held
	// against every queried table and orders' allow-list excludes it.
	qi := joinedIntent(t)
	require.NoError(t, qi.AddColumn(intent.Col("name")))

	_, err := fx.engine.Process(context.Background(), "analyst", qi)
	require.Error(t, err)
	assert.Equal(t, access.ReasonColumnDenied, err.Error())

	// Qualifying the column resolves the ambiguity.
	qi2 := joinedIntent(t)
	require.NoError(t, qi2.AddColumn(intent.TableCol("products", "name")))

	_, err = fx.engine.Process(context.Background(), "analyst", qi2)
	require.NoError(t, err)
	assert.Equal(t, 1, fx.executor.calls)
}

func TestProcess_JoinedTableDenied(t *testing.T) {
	fx := newFixture(t)

	qi, err := intent.New(intent.TypeSelect, "orders")
	require.NoError(t, err)
	require.NoError(t, qi.AddJoin(intent.JoinCondition{
		Type:        intent.JoinInner,
		LeftTable:   "orders",
		RightTable:  "salaries",
		LeftColumn:  "id",
		RightColumn: "order_id",
	}))
	require.NoError(t, qi.AddColumn(intent.TableCol("orders", "id")))

	_, err = fx.engine.Process(context.Background(), "analyst", qi)
	require.Error(t, err)
	assert.Equal(t, access.ReasonTableDenied, err.Error())
	assert.Equal(t, 0, fx.executor.calls)
}

func TestProcess_OperationDenied(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.engine.Process(context.Background(), "loader", selectIntent(t, "inventory", "sku"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSecurity)
	assert.Equal(t, access.ReasonOperationDenied, err.Error())
}

func TestProcess_UnknownPrincipalFallsBack(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.engine.Process(context.Background(), "stranger", selectIntent(t, "orders", "id"))
	require.Error(t, err)
	assert.Equal(t, access.ReasonTableDenied, err.Error())
}

func TestProcess_AdminBypass(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.engine.Process(context.Background(), "root", selectIntent(t, "salaries", "amount"))
	require.NoError(t, err)
	assert.Equal(t, 1, fx.executor.calls)
	assert.Equal(t, access.DefaultMaxRows, fx.executor.lastLimit)
	assert.NotContains(t, fx.executor.lastSQL, "tenant_id")
}

func TestProcess_ExecutorError(t *testing.T) {
	fx := newFixture(t)
	fx.executor.err = errors.New("connection reset")

	_, err := fx.engine.Process(context.Background(), "analyst", selectIntent(t, "orders", "id"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	// The decision was never recorded as validated: no rows were released.
	assert.Empty(t, fx.auditor.Recent(5))
}

func TestProcess_NilIntent(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.engine.Process(context.Background(), "analyst", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCheckNative_Accepted(t *testing.T) {
	fx := newFixture(t)

	res := fx.engine.CheckNative(context.Background(), "analyst", "SELECT id, total FROM orders WHERE tenant_id = 7")
	assert.True(t, res.OK)

	events := fx.auditor.Recent(5)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventQueryValidated, events[0].Type)
}

func TestCheckNative_ForbiddenType(t *testing.T) {
	fx := newFixture(t)

	res := fx.engine.CheckNative(context.Background(), "analyst", "DELETE FROM orders WHERE id = 1")
	assert.False(t, res.OK)
	assert.Equal(t, validate.ReasonTypeNotAllowed, res.Reason)

	events := fx.auditor.Recent(5)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventQueryRejected, events[0].Type)
}

func TestCheckNative_UnknownVerb(t *testing.T) {
	fx := newFixture(t)

	res := fx.engine.CheckNative(context.Background(), "analyst", "DROP TABLE orders")
	assert.False(t, res.OK)
	assert.Equal(t, sqlparse.ReasonUnknownQueryType, res.Reason)

	events := fx.auditor.Recent(5)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventQueryRejected, events[0].Type)
}

func TestCheckNative_InjectionSignature(t *testing.T) {
	fx := newFixture(t)

	res := fx.engine.CheckNative(context.Background(), "analyst", "SELECT * FROM users WHERE id = 1 OR 1=1")
	assert.False(t, res.OK)
	assert.Equal(t, validate.ReasonSuspiciousPattern, res.Reason)

	events := fx.auditor.Recent(5)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventInjectionAttempt, events[0].Type)
}

func TestColumnChecks_Attribution(t *testing.T) {
	qi, err := intent.New(intent.TypeAggregate, "orders")
	require.NoError(t, err)
	require.NoError(t, qi.AddAggregation(intent.Aggregation{
		Func: intent.AggSum, Column: intent.Col("total"), Alias: "revenue",
	}))
	require.NoError(t, qi.SetGroupBy(intent.Col("tenant_id")))
	require.NoError(t, qi.AddOrderBy(intent.Desc(intent.Col("revenue"))))

	byTable := columnChecks(qi, queryTables(qi))
	require.Contains(t, byTable, "orders")
	assert.ElementsMatch(t, []string{"total", "tenant_id"}, byTable["orders"],
		"the order-by alias is computed output, not a stored column")
}
