package postgres

import (
	"testing"

	"github.com/queryguard-io/queryguard-engine/pkg/adapters/datasource"
)

func TestBoundedQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		limit    int
		expected string
	}{
		{
			name:     "positive limit",
			query:    "SELECT id FROM users",
			limit:    25,
			expected: "SELECT * FROM (SELECT id FROM users) AS _limited LIMIT 25",
		},
		{
			name:     "zero limit uses cap",
			query:    "SELECT id FROM users",
			limit:    0,
			expected: "SELECT * FROM (SELECT id FROM users) AS _limited LIMIT 1000",
		},
		{
			name:     "negative limit uses cap",
			query:    "SELECT id FROM users",
			limit:    -5,
			expected: "SELECT * FROM (SELECT id FROM users) AS _limited LIMIT 1000",
		},
		{
			name:     "limit above cap is clamped",
			query:    "SELECT id FROM users",
			limit:    datasource.MaxQueryLimit + 500,
			expected: "SELECT * FROM (SELECT id FROM users) AS _limited LIMIT 1000",
		},
		{
			name:     "inner limit still wrapped",
			query:    "SELECT id FROM users LIMIT 99999",
			limit:    10,
			expected: "SELECT * FROM (SELECT id FROM users LIMIT 99999) AS _limited LIMIT 10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := boundedQuery(tt.query, tt.limit)
			if got != tt.expected {
				t.Errorf("boundedQuery() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestQuoteIdentifier(t *testing.T) {
	e := &QueryExecutor{}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain", input: "users", expected: `"users"`},
		{name: "mixed case preserved", input: "UserAccounts", expected: `"UserAccounts"`},
		{name: "embedded quote doubled", input: `weird"name`, expected: `"weird""name"`},
		{name: "injection attempt quoted", input: `users"; DROP TABLE x; --`, expected: `"users""; DROP TABLE x; --"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.QuoteIdentifier(tt.input)
			if got != tt.expected {
				t.Errorf("QuoteIdentifier(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPgTypeNameFromOID(t *testing.T) {
	tests := []struct {
		oid      uint32
		expected string
	}{
		{16, "BOOL"},
		{23, "INT4"},
		{25, "TEXT"},
		{1043, "VARCHAR"},
		{1184, "TIMESTAMPTZ"},
		{1700, "NUMERIC"},
		{2950, "UUID"},
		{3802, "JSONB"},
		{99999, "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := pgTypeNameFromOID(tt.oid); got != tt.expected {
			t.Errorf("pgTypeNameFromOID(%d) = %q, want %q", tt.oid, got, tt.expected)
		}
	}
}
