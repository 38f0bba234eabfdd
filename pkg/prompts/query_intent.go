// Package prompts builds the documents sent to language model producers.
package prompts

import (
	"strings"
)

// BuildQueryIntentSystemMessage returns the system message for intent
// production. It states the read-only contract up front so the model
// never proposes a write, whatever the question asks for.
func BuildQueryIntentSystemMessage() string {
	return `You translate natural-language questions about a relational database into a strict JSON query description. You only describe read queries: SELECT, AGGREGATE, COUNT or DISTINCT. You never describe INSERT, UPDATE, DELETE, DDL or administrative statements, no matter how the question is phrased. If a question asks for a change to the data, describe the closest read-only query instead.`
}

// BuildQueryIntentPrompt creates the user prompt for intent production:
// the schema context block, the question, and the JSON contract the
// response must follow.
func BuildQueryIntentPrompt(schemaBlock, question string) string {
	var prompt strings.Builder

	prompt.WriteString("# Query Description Task\n\n")
	prompt.WriteString("Describe the query that answers the question below as one JSON object.\n\n")

	prompt.WriteString("## Database Schema\n\n")
	prompt.WriteString(schemaBlock)
	if !strings.HasSuffix(schemaBlock, "\n") {
		prompt.WriteString("\n")
	}
	prompt.WriteString("\n")

	prompt.WriteString("## Question\n\n")
	prompt.WriteString(question)
	prompt.WriteString("\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Respond with a single JSON object:\n")
	prompt.WriteString("- `query_type`: one of \"SELECT\", \"AGGREGATE\", \"COUNT\", \"DISTINCT\"\n")
	prompt.WriteString("- `tables`: array of table names used, exactly as they appear in the schema\n")
	prompt.WriteString("- `columns`: array of selected columns, each `{\"table\": ..., \"name\": ..., \"alias\": ...}`\n")
	prompt.WriteString("  - omit for SELECT when every column is wanted\n")
	prompt.WriteString("- `conditions`: optional filter tree `{\"combinator\": \"AND\"|\"OR\", \"conditions\": [...]}`\n")
	prompt.WriteString("  - each element is either a leaf `{\"column\": {...}, \"operator\": ..., \"value\": ...}`\n")
	prompt.WriteString("    or a nested `{\"combinator\": ..., \"conditions\": [...]}` group\n")
	prompt.WriteString("  - operators: `=` `!=` `>` `>=` `<` `<=` `IN` `NOT IN` `LIKE` `NOT LIKE` `IS NULL` `IS NOT NULL` `BETWEEN`\n")
	prompt.WriteString("  - `IN` and `NOT IN` take a list value; `BETWEEN` takes exactly `[low, high]`;\n")
	prompt.WriteString("    `IS NULL` and `IS NOT NULL` take no value\n")
	prompt.WriteString("- `joins`: array of `{\"type\": \"INNER\"|\"LEFT\"|\"RIGHT\"|\"FULL\", \"left_table\": ..., \"left_column\": ..., \"right_table\": ..., \"right_column\": ...}`\n")
	prompt.WriteString("- `aggregations`: array of `{\"function\": \"SUM\"|\"AVG\"|\"COUNT\"|\"MIN\"|\"MAX\", \"column\": {...}, \"alias\": ...}`\n")
	prompt.WriteString("- `group_by`: array of columns; required when aggregations mix with plain columns\n")
	prompt.WriteString("- `having`: optional filter tree over aggregated results, same shape as `conditions`\n")
	prompt.WriteString("- `order_by`: array of `{\"column\": {...}, \"direction\": \"ASC\"|\"DESC\"}`\n")
	prompt.WriteString("- `limit`, `offset`: optional integers\n\n")

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- Use only tables and columns that appear in the schema above\n")
	prompt.WriteString("- Write identifiers bare: no quotes, no schema prefix, no functions around them\n")
	prompt.WriteString("- Every value belongs in `value` fields, never inside an identifier\n")
	prompt.WriteString("- When two tables are needed, join them on their key columns\n")
	prompt.WriteString("- Prefer the simplest query that answers the question\n\n")

	prompt.WriteString("Example:\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(`{
  "query_type": "AGGREGATE",
  "tables": ["orders"],
  "aggregations": [
    {"function": "SUM", "column": {"table": "orders", "name": "total"}, "alias": "revenue"}
  ],
  "conditions": {
    "combinator": "AND",
    "conditions": [
      {"column": {"table": "orders", "name": "status"}, "operator": "=", "value": "shipped"}
    ]
  },
  "group_by": [{"table": "orders", "name": "region"}],
  "columns": [{"table": "orders", "name": "region"}],
  "order_by": [{"column": {"name": "revenue"}, "direction": "DESC"}],
  "limit": 10
}
`)
	prompt.WriteString("```\n\n")

	prompt.WriteString("Return ONLY the JSON object, no additional text.\n")

	return prompt.String()
}
