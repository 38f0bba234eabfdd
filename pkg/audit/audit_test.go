package audit

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecorder_QueryRejected(t *testing.T) {
	rec := NewRecorder(zap.NewNop())

	rec.QueryRejected("analyst", "Forbidden keyword detected", "DROP TABLE users")

	events := rec.Recent(1)
	require.Len(t, events, 1)
	event := events[0]
	assert.Equal(t, EventQueryRejected, event.Type)
	assert.Equal(t, SeverityWarning, event.Severity)
	assert.Equal(t, "analyst", event.PrincipalID)
	assert.Equal(t, "Forbidden keyword detected", event.Reason)
	assert.Contains(t, event.Fragment, "DROP TABLE")
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestRecorder_InjectionAttemptIsCritical(t *testing.T) {
	rec := NewRecorder(zap.NewNop())

	rec.InjectionAttempt("analyst", "union select", "1 UNION SELECT password FROM users")

	events := rec.Recent(1)
	require.Len(t, events, 1)
	assert.Equal(t, EventInjectionAttempt, events[0].Type)
	assert.Equal(t, SeverityCritical, events[0].Severity)
	assert.Equal(t, "union select", events[0].Reason)
}

func TestRecorder_FragmentIsBounded(t *testing.T) {
	rec := NewRecorder(zap.NewNop())

	long := strings.Repeat("a", 4096)
	rec.QueryRejected("analyst", "Query too complex", long)

	events := rec.Recent(1)
	require.Len(t, events, 1)
	assert.Less(t, len(events[0].Fragment), len(long))
}

func TestRecorder_RecentOrdering(t *testing.T) {
	rec := NewRecorder(zap.NewNop())

	rec.QueryValidated("a", "SELECT 1")
	rec.AccessDenied("b", "Access to table denied", "secrets")
	rec.PolicyReloaded(3)

	events := rec.Recent(2)
	require.Len(t, events, 2)
	assert.Equal(t, EventPolicyReloaded, events[0].Type)
	assert.Equal(t, EventAccessDenied, events[1].Type)

	// Asking for more than recorded returns everything.
	all := rec.Recent(10)
	assert.Len(t, all, 3)
	assert.Equal(t, EventQueryValidated, all[2].Type)
}

func TestRecorder_HistoryWraps(t *testing.T) {
	rec := &recorder{
		logger:  zap.NewNop(),
		history: make([]Event, 0, 2),
		size:    2,
	}

	rec.QueryValidated("a", "SELECT 1")
	rec.QueryValidated("b", "SELECT 2")
	rec.QueryValidated("c", "SELECT 3")

	events := rec.Recent(5)
	require.Len(t, events, 2)
	assert.Equal(t, "c", events[0].PrincipalID)
	assert.Equal(t, "b", events[1].PrincipalID)
}

func TestNewRecorder_NilLogger(t *testing.T) {
	rec := NewRecorder(nil)
	rec.QueryValidated("a", "SELECT 1")
	assert.Len(t, rec.Recent(1), 1)
}
