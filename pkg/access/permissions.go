// Package access decides which tables, columns and operations a
// principal may touch, and what resource ceilings apply to them. It is
// pure decision logic: nothing here executes queries, and published
// permission records are never edited in place, only replaced.
package access

import (
	"strings"
	"time"

	"github.com/queryguard-io/queryguard-engine/pkg/apperrors"
)

// Operation is one of the statement verbs permissions are granted for.
type Operation string

const (
	OpSelect Operation = "SELECT"
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

func ParseOperation(raw string) (Operation, error) {
	switch op := Operation(strings.ToUpper(strings.TrimSpace(raw))); op {
	case OpSelect, OpInsert, OpUpdate, OpDelete:
		return op, nil
	default:
		return "", apperrors.Validationf("unknown operation %q", raw)
	}
}

type OperationSet map[Operation]struct{}

func NewOperationSet(ops ...Operation) OperationSet {
	s := make(OperationSet, len(ops))
	for _, op := range ops {
		s[op] = struct{}{}
	}
	return s
}

func (s OperationSet) Has(op Operation) bool {
	_, ok := s[op]
	return ok
}

func (s OperationSet) clone() OperationSet {
	if s == nil {
		return nil
	}
	out := make(OperationSet, len(s))
	for op := range s {
		out[op] = struct{}{}
	}
	return out
}

// TablePermissions grants operations on one table. A nil Columns slice
// means every column; an empty or populated slice is an allow-list.
// RowFilter, when set, is a predicate the caller must conjoin into any
// query against the table.
type TablePermissions struct {
	Table      string
	Operations OperationSet
	Columns    []string
	RowFilter  string
}

func (tp TablePermissions) allowsColumn(name string) bool {
	if tp.Columns == nil {
		return true
	}
	for _, c := range tp.Columns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// PrincipalPermissions is the full permission record for one principal.
// Records are long-lived and read-only during request handling; updates
// go through the Controller, which publishes a fresh copy.
type PrincipalPermissions struct {
	PrincipalID string
	Admin       bool
	Tables      map[string]TablePermissions
	GlobalOps   OperationSet
	MaxRows     int
	MaxExecTime time.Duration
	Schemas     []string
}

// Limits are the numeric resource ceilings for a principal.
type Limits struct {
	MaxRows     int
	MaxExecTime time.Duration
}

const (
	DefaultMaxRows     = 1000
	DefaultMaxExecTime = 10 * time.Second

	ReadOnlyMaxRows     = 5000
	ReadOnlyMaxExecTime = 20 * time.Second
)

// DefaultProfile is the restrictive fallback applied to principals with
// no configured record: a global SELECT grant but no table entries, so
// every table access is denied until an administrator grants one.
func DefaultProfile() *PrincipalPermissions {
	return &PrincipalPermissions{
		PrincipalID: "default",
		GlobalOps:   NewOperationSet(OpSelect),
		MaxRows:     DefaultMaxRows,
		MaxExecTime: DefaultMaxExecTime,
	}
}

// ReadOnlyProfile grants SELECT on the named tables with the wider
// read-only ceilings.
func ReadOnlyProfile(principalID string, tables ...string) *PrincipalPermissions {
	perms := make(map[string]TablePermissions, len(tables))
	for _, t := range tables {
		perms[strings.ToLower(t)] = TablePermissions{
			Table:      t,
			Operations: NewOperationSet(OpSelect),
		}
	}
	return &PrincipalPermissions{
		PrincipalID: principalID,
		Tables:      perms,
		GlobalOps:   NewOperationSet(OpSelect),
		MaxRows:     ReadOnlyMaxRows,
		MaxExecTime: ReadOnlyMaxExecTime,
	}
}

func (p PrincipalPermissions) clone() *PrincipalPermissions {
	cp := p
	cp.GlobalOps = p.GlobalOps.clone()
	cp.Schemas = append([]string(nil), p.Schemas...)
	if p.Tables != nil {
		cp.Tables = make(map[string]TablePermissions, len(p.Tables))
		for key, tp := range p.Tables {
			tp.Operations = tp.Operations.clone()
			tp.Columns = append([]string(nil), tp.Columns...)
			cp.Tables[key] = tp
		}
	}
	return &cp
}

// normalize validates a record and fills ceiling defaults. Table map
// keys are lowercased so lookups are case-insensitive.
func (p *PrincipalPermissions) normalize() error {
	if strings.TrimSpace(p.PrincipalID) == "" {
		return apperrors.Configurationf("principal id must not be empty")
	}
	if p.MaxRows <= 0 {
		p.MaxRows = DefaultMaxRows
	}
	if p.MaxExecTime <= 0 {
		p.MaxExecTime = DefaultMaxExecTime
	}

	globalOps, err := normalizeSet(p.GlobalOps)
	if err != nil {
		return apperrors.Configurationf("principal %q: %v", p.PrincipalID, err)
	}
	p.GlobalOps = globalOps

	normalized := make(map[string]TablePermissions, len(p.Tables))
	for key, tp := range p.Tables {
		if tp.Table == "" {
			tp.Table = key
		}
		if strings.TrimSpace(tp.Table) == "" {
			return apperrors.Configurationf("principal %q: table name must not be empty", p.PrincipalID)
		}
		if len(tp.Operations) == 0 {
			return apperrors.Configurationf("principal %q: table %q grants no operations", p.PrincipalID, tp.Table)
		}
		ops, err := normalizeSet(tp.Operations)
		if err != nil {
			return apperrors.Configurationf("principal %q: table %q: %v", p.PrincipalID, tp.Table, err)
		}
		tp.Operations = ops
		normalized[strings.ToLower(tp.Table)] = tp
	}
	p.Tables = normalized
	return nil
}

func normalizeSet(s OperationSet) (OperationSet, error) {
	if s == nil {
		return NewOperationSet(), nil
	}
	out := make(OperationSet, len(s))
	for op := range s {
		parsed, err := ParseOperation(string(op))
		if err != nil {
			return nil, err
		}
		out[parsed] = struct{}{}
	}
	return out, nil
}
