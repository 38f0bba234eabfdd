package access

import (
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/queryguard-io/queryguard-engine/pkg/apperrors"
)

// Document is the on-disk permission policy. Applying one replaces the
// whole principal map; the file is the source of truth, not a patch.
type Document struct {
	Principals []PrincipalDoc `yaml:"principals"`
	Default    *ProfileDoc    `yaml:"default,omitempty"`
}

type PrincipalDoc struct {
	ID             string     `yaml:"id"`
	Admin          bool       `yaml:"admin,omitempty"`
	MaxRows        int        `yaml:"max_rows,omitempty"`
	MaxExecSeconds int        `yaml:"max_execution_seconds,omitempty"`
	GlobalOps      []string   `yaml:"global_operations,omitempty"`
	Schemas        []string   `yaml:"schemas,omitempty"`
	Tables         []TableDoc `yaml:"tables,omitempty"`
}

type TableDoc struct {
	Table      string   `yaml:"table"`
	Operations []string `yaml:"operations"`
	Columns    []string `yaml:"columns,omitempty"`
	RowFilter  string   `yaml:"row_filter,omitempty"`
}

// ProfileDoc overrides the profile applied to unknown principals.
type ProfileDoc struct {
	MaxRows        int      `yaml:"max_rows,omitempty"`
	MaxExecSeconds int      `yaml:"max_execution_seconds,omitempty"`
	GlobalOps      []string `yaml:"global_operations,omitempty"`
}

func ParsePolicy(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.Configurationf("parse policy: %v", err)
	}
	return &doc, nil
}

func LoadPolicy(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Configurationf("read policy file: %v", err)
	}
	return ParsePolicy(data)
}

// ApplyPolicy converts and validates every record before anything is
// published, then swaps the complete principal map in one step. A bad
// policy leaves the previous one fully in force.
func (c *Controller) ApplyPolicy(doc *Document) error {
	if doc == nil {
		return apperrors.Configurationf("policy document is nil")
	}

	next := make(map[string]*PrincipalPermissions, len(doc.Principals))
	for _, pd := range doc.Principals {
		rec, err := pd.toPermissions()
		if err != nil {
			return err
		}
		if err := rec.normalize(); err != nil {
			return err
		}
		next[rec.PrincipalID] = rec
	}

	var fallback *PrincipalPermissions
	if doc.Default != nil {
		fallback = DefaultProfile()
		if doc.Default.MaxRows > 0 {
			fallback.MaxRows = doc.Default.MaxRows
		}
		if doc.Default.MaxExecSeconds > 0 {
			fallback.MaxExecTime = time.Duration(doc.Default.MaxExecSeconds) * time.Second
		}
		if len(doc.Default.GlobalOps) > 0 {
			ops, err := parseOperations(doc.Default.GlobalOps)
			if err != nil {
				return apperrors.Configurationf("default profile: %v", err)
			}
			fallback.GlobalOps = ops
		}
		if err := fallback.normalize(); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.principals = next
	if fallback != nil {
		c.fallback = fallback
	}
	c.mu.Unlock()

	c.logger.Info("permission policy applied",
		zap.Int("principals", len(next)),
		zap.Bool("default_overridden", fallback != nil))
	return nil
}

// LoadPolicyFile reads, validates and applies a policy file.
func (c *Controller) LoadPolicyFile(path string) error {
	doc, err := LoadPolicy(path)
	if err != nil {
		return err
	}
	return c.ApplyPolicy(doc)
}

func (pd PrincipalDoc) toPermissions() (*PrincipalPermissions, error) {
	globalOps, err := parseOperations(pd.GlobalOps)
	if err != nil {
		return nil, apperrors.Configurationf("principal %q: %v", pd.ID, err)
	}

	tables := make(map[string]TablePermissions, len(pd.Tables))
	for _, td := range pd.Tables {
		ops, err := parseOperations(td.Operations)
		if err != nil {
			return nil, apperrors.Configurationf("principal %q: table %q: %v", pd.ID, td.Table, err)
		}
		tables[td.Table] = TablePermissions{
			Table:      td.Table,
			Operations: ops,
			Columns:    td.Columns,
			RowFilter:  td.RowFilter,
		}
	}

	return &PrincipalPermissions{
		PrincipalID: pd.ID,
		Admin:       pd.Admin,
		Tables:      tables,
		GlobalOps:   globalOps,
		MaxRows:     pd.MaxRows,
		MaxExecTime: time.Duration(pd.MaxExecSeconds) * time.Second,
		Schemas:     pd.Schemas,
	}, nil
}

func parseOperations(raw []string) (OperationSet, error) {
	ops := make(OperationSet, len(raw))
	for _, r := range raw {
		op, err := ParseOperation(r)
		if err != nil {
			return nil, err
		}
		ops[op] = struct{}{}
	}
	return ops, nil
}
