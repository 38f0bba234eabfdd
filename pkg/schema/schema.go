// Package schema describes the tables and columns of a datasource and
// caches that metadata between requests. The language model producers
// consume it as a prompt block; the access controller consumes the
// table names.
package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"
)

// Column is one column of a table.
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

// Table is one table with its columns, in database order.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Provider supplies the current schema of a datasource.
type Provider interface {
	// Schema returns all visible tables with their columns.
	Schema(ctx context.Context) ([]Table, error)
}

// EntityName converts a table name to a singular entity name.
// Examples: "public.users" -> "User", "orders" -> "Order",
// "categories" -> "Category".
func EntityName(tableName string) string {
	name := tableName
	if idx := strings.LastIndex(tableName, "."); idx >= 0 {
		name = tableName[idx+1:]
	}

	name = inflection.Singular(name)

	if len(name) > 0 {
		name = strings.ToUpper(name[:1]) + name[1:]
	}

	return name
}

// DefaultPromptTableLimit caps how many tables a prompt block lists.
const DefaultPromptTableLimit = 50

// FormatForPrompt renders tables as the schema context block handed to
// language model producers. Tables beyond the limit are summarized by
// count so an oversized schema cannot blow the prompt budget.
func FormatForPrompt(tables []Table, maxTables int) string {
	if maxTables <= 0 {
		maxTables = DefaultPromptTableLimit
	}

	var b strings.Builder
	shown := len(tables)
	if shown > maxTables {
		shown = maxTables
	}

	for _, table := range tables[:shown] {
		fmt.Fprintf(&b, "Table %s (%s):\n", table.Name, EntityName(table.Name))
		for _, col := range table.Columns {
			b.WriteString("  - ")
			b.WriteString(col.Name)
			if col.DataType != "" {
				b.WriteString(" ")
				b.WriteString(col.DataType)
			}
			if !col.Nullable {
				b.WriteString(" not null")
			}
			b.WriteString("\n")
		}
	}

	if len(tables) > shown {
		fmt.Fprintf(&b, "(%d more tables omitted)\n", len(tables)-shown)
	}

	return b.String()
}

// TableNames returns the names of all tables, in order.
func TableNames(tables []Table) []string {
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, t.Name)
	}
	return names
}
