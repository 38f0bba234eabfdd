// Package audit records security-relevant events: queries accepted and
// rejected, injection attempts, access denials, policy reloads. Events
// go to a named zap logger and a bounded in-memory ring so recent
// history can be inspected without a log pipeline. This is the one
// place offending query fragments may appear, and only server-side.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/queryguard-io/queryguard-engine/pkg/logging"
)

// EventType classifies a security event.
type EventType string

const (
	EventQueryValidated   EventType = "query_validated"
	EventQueryRejected    EventType = "query_rejected"
	EventInjectionAttempt EventType = "injection_attempt"
	EventAccessDenied     EventType = "access_denied"
	EventPolicyReloaded   EventType = "policy_reloaded"
)

// Severity grades an event for alerting.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one recorded security event. Fragment holds the offending
// part of the input, already bounded and redacted.
type Event struct {
	ID          uuid.UUID
	Type        EventType
	Severity    Severity
	PrincipalID string
	Reason      string
	Fragment    string
	Timestamp   time.Time
}

// Recorder is the audit sink the engine reports security events to.
type Recorder interface {
	// QueryValidated records an accepted query.
	QueryValidated(principalID string, query string)

	// QueryRejected records a query turned away by the validator with
	// its categorical reason.
	QueryRejected(principalID string, reason string, fragment string)

	// InjectionAttempt records a query that matched an injection
	// signature. These are graded critical.
	InjectionAttempt(principalID string, signature string, fragment string)

	// AccessDenied records a permission denial for a resource.
	AccessDenied(principalID string, reason string, resource string)

	// PolicyReloaded records a permission policy swap.
	PolicyReloaded(principals int)

	// Recent returns up to n most recent events, newest first.
	Recent(n int) []Event
}

// DefaultHistorySize is how many events the in-memory ring retains.
const DefaultHistorySize = 256

type recorder struct {
	logger *zap.Logger

	mu      sync.Mutex
	history []Event
	next    int
	size    int
}

var _ Recorder = (*recorder)(nil)

// NewRecorder creates a Recorder writing to logger under the
// "security_audit" name.
func NewRecorder(logger *zap.Logger) Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &recorder{
		logger:  logger.Named("security_audit"),
		history: make([]Event, 0, DefaultHistorySize),
		size:    DefaultHistorySize,
	}
}

func (r *recorder) QueryValidated(principalID string, query string) {
	event := r.record(Event{
		Type:        EventQueryValidated,
		Severity:    SeverityInfo,
		PrincipalID: principalID,
		Fragment:    logging.BoundFragment(query),
	})
	r.logger.Debug("query validated",
		zap.String("event_id", event.ID.String()),
		zap.String("principal_id", principalID))
}

func (r *recorder) QueryRejected(principalID string, reason string, fragment string) {
	event := r.record(Event{
		Type:        EventQueryRejected,
		Severity:    SeverityWarning,
		PrincipalID: principalID,
		Reason:      reason,
		Fragment:    logging.BoundFragment(fragment),
	})
	r.logger.Warn("query rejected",
		zap.String("event_id", event.ID.String()),
		zap.String("principal_id", principalID),
		zap.String("reason", reason),
		zap.String("fragment", event.Fragment))
}

func (r *recorder) InjectionAttempt(principalID string, signature string, fragment string) {
	event := r.record(Event{
		Type:        EventInjectionAttempt,
		Severity:    SeverityCritical,
		PrincipalID: principalID,
		Reason:      signature,
		Fragment:    logging.BoundFragment(fragment),
	})
	r.logger.Error("injection attempt",
		zap.String("event_id", event.ID.String()),
		zap.String("principal_id", principalID),
		zap.String("signature", signature),
		zap.String("fragment", event.Fragment))
}

func (r *recorder) AccessDenied(principalID string, reason string, resource string) {
	event := r.record(Event{
		Type:        EventAccessDenied,
		Severity:    SeverityWarning,
		PrincipalID: principalID,
		Reason:      reason,
		Fragment:    resource,
	})
	r.logger.Warn("access denied",
		zap.String("event_id", event.ID.String()),
		zap.String("principal_id", principalID),
		zap.String("reason", reason),
		zap.String("resource", resource))
}

func (r *recorder) PolicyReloaded(principals int) {
	event := r.record(Event{
		Type:     EventPolicyReloaded,
		Severity: SeverityInfo,
	})
	r.logger.Info("policy reloaded",
		zap.String("event_id", event.ID.String()),
		zap.Int("principals", principals))
}

// record stamps and stores an event in the ring, returning the stored
// copy.
func (r *recorder) record(event Event) Event {
	event.ID = uuid.New()
	event.Timestamp = time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) < r.size {
		r.history = append(r.history, event)
	} else {
		r.history[r.next] = event
	}
	r.next = (r.next + 1) % r.size
	return event
}

func (r *recorder) Recent(n int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > len(r.history) {
		n = len(r.history)
	}

	out := make([]Event, 0, n)
	// Walk backwards from the most recently written slot.
	idx := r.next - 1
	for i := 0; i < n; i++ {
		if idx < 0 {
			idx = len(r.history) - 1
		}
		out = append(out, r.history[idx])
		idx--
	}
	return out
}
