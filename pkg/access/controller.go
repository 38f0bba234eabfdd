package access

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/queryguard-io/queryguard-engine/pkg/apperrors"
)

// Denial reasons surfaced to callers. Specifics go to the server log.
const (
	ReasonTableDenied     = "Access to table denied"
	ReasonColumnDenied    = "Access to column denied"
	ReasonOperationDenied = "Operation not permitted"
)

// Guard is the authorization capability the pipeline consumes.
type Guard interface {
	CheckTableAccess(principalID string, tables []string) error
	CheckColumnAccess(principalID, table string, columns []string) error
	CheckOperation(principalID string, op Operation, tables []string) error
	RowFilter(principalID, table string) string
	ResourceLimits(principalID string) Limits
}

// Controller resolves principals to permission records and answers
// authorization questions. Reads take a shared lock; updates publish a
// fresh record under the write lock, so a reader holding a resolved
// record always sees a complete, consistent one.
type Controller struct {
	logger *zap.Logger

	mu         sync.RWMutex
	principals map[string]*PrincipalPermissions
	fallback   *PrincipalPermissions
}

var _ Guard = (*Controller)(nil)

func New(logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		logger:     logger,
		principals: make(map[string]*PrincipalPermissions),
		fallback:   DefaultProfile(),
	}
}

// SetPrincipal validates and publishes a permission record. The input is
// deep-copied before publication: later mutation of the argument cannot
// leak into concurrent readers.
func (c *Controller) SetPrincipal(p PrincipalPermissions) error {
	rec := p.clone()
	if err := rec.normalize(); err != nil {
		return err
	}

	c.mu.Lock()
	c.principals[rec.PrincipalID] = rec
	c.mu.Unlock()

	c.logger.Info("principal permissions updated",
		zap.String("principal_id", rec.PrincipalID),
		zap.Bool("admin", rec.Admin),
		zap.Int("tables", len(rec.Tables)))
	return nil
}

// RemovePrincipal drops a record; the principal falls back to the
// default profile afterwards.
func (c *Controller) RemovePrincipal(principalID string) {
	c.mu.Lock()
	delete(c.principals, principalID)
	c.mu.Unlock()

	c.logger.Info("principal permissions removed", zap.String("principal_id", principalID))
}

// SetFallback replaces the profile applied to unknown principals.
func (c *Controller) SetFallback(p PrincipalPermissions) error {
	rec := p.clone()
	if rec.PrincipalID == "" {
		rec.PrincipalID = "default"
	}
	if err := rec.normalize(); err != nil {
		return err
	}
	if rec.Admin {
		return apperrors.Configurationf("fallback profile must not be admin")
	}

	c.mu.Lock()
	c.fallback = rec
	c.mu.Unlock()
	return nil
}

func (c *Controller) resolve(principalID string) *PrincipalPermissions {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.principals[principalID]; ok {
		return p
	}
	return c.fallback
}

// CheckTableAccess fails unless the principal may see every listed
// table. Admins bypass the table map.
func (c *Controller) CheckTableAccess(principalID string, tables []string) error {
	p := c.resolve(principalID)
	if p.Admin {
		return nil
	}
	for _, table := range tables {
		if _, ok := p.Tables[strings.ToLower(table)]; !ok {
			c.logger.Warn("table access denied",
				zap.String("principal_id", principalID),
				zap.String("table", table))
			return apperrors.NewSecurityError(ReasonTableDenied,
				fmt.Sprintf("principal %s has no grant on table %s", principalID, table))
		}
	}
	return nil
}

// CheckColumnAccess fails when the table carries a column allow-list
// that excludes any requested column. A star selection is refused
// outright under an allow-list: it would expand to columns the list
// never granted.
func (c *Controller) CheckColumnAccess(principalID, table string, columns []string) error {
	p := c.resolve(principalID)
	if p.Admin {
		return nil
	}
	tp, ok := p.Tables[strings.ToLower(table)]
	if !ok {
		return apperrors.NewSecurityError(ReasonTableDenied,
			fmt.Sprintf("principal %s has no grant on table %s", principalID, table))
	}
	if tp.Columns == nil {
		return nil
	}
	for _, col := range columns {
		if col == "*" {
			c.logger.Warn("star selection denied under column allow-list",
				zap.String("principal_id", principalID),
				zap.String("table", table))
			return apperrors.NewSecurityError(ReasonColumnDenied,
				fmt.Sprintf("principal %s may not expand * on table %s", principalID, table))
		}
		if !tp.allowsColumn(col) {
			c.logger.Warn("column access denied",
				zap.String("principal_id", principalID),
				zap.String("table", table),
				zap.String("column", col))
			return apperrors.NewSecurityError(ReasonColumnDenied,
				fmt.Sprintf("principal %s has no grant on column %s.%s", principalID, table, col))
		}
	}
	return nil
}

// CheckOperation fails unless the operation is granted globally or by
// every listed table.
func (c *Controller) CheckOperation(principalID string, op Operation, tables []string) error {
	p := c.resolve(principalID)
	if p.Admin {
		return nil
	}
	if p.GlobalOps.Has(op) {
		return nil
	}
	if len(tables) == 0 {
		return apperrors.NewSecurityError(ReasonOperationDenied,
			fmt.Sprintf("principal %s has no global grant for %s", principalID, op))
	}
	for _, table := range tables {
		tp, ok := p.Tables[strings.ToLower(table)]
		if !ok || !tp.Operations.Has(op) {
			c.logger.Warn("operation denied",
				zap.String("principal_id", principalID),
				zap.String("operation", string(op)),
				zap.String("table", table))
			return apperrors.NewSecurityError(ReasonOperationDenied,
				fmt.Sprintf("principal %s may not %s on table %s", principalID, op, table))
		}
	}
	return nil
}

// RowFilter returns the predicate to conjoin into queries against the
// table, or the empty string. Admins are never filtered.
func (c *Controller) RowFilter(principalID, table string) string {
	p := c.resolve(principalID)
	if p.Admin {
		return ""
	}
	if tp, ok := p.Tables[strings.ToLower(table)]; ok {
		return tp.RowFilter
	}
	return ""
}

// ResourceLimits returns the principal's numeric ceilings.
func (c *Controller) ResourceLimits(principalID string) Limits {
	p := c.resolve(principalID)
	return Limits{MaxRows: p.MaxRows, MaxExecTime: p.MaxExecTime}
}
