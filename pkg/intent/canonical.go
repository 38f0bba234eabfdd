package intent

import (
	"encoding/json"
)

// Canonical serialization: a fixed field order and stable nesting so that
// equal intents serialize to equal bytes. Used for cache keys and audit
// logs, never decoded.

type columnJSON struct {
	Name  string `json:"name"`
	Table string `json:"table,omitempty"`
	Alias string `json:"alias,omitempty"`
}

type conditionJSON struct {
	Column   columnJSON `json:"column"`
	Operator string     `json:"operator"`
	Value    any        `json:"value,omitempty"`
}

type groupJSON struct {
	Combinator string `json:"combinator"`
	Conditions []any  `json:"conditions"`
}

type joinJSON struct {
	Type        string     `json:"type"`
	LeftTable   string     `json:"left_table"`
	RightTable  string     `json:"right_table"`
	LeftColumn  string     `json:"left_column"`
	RightColumn string     `json:"right_column"`
	Extra       *groupJSON `json:"extra,omitempty"`
}

type aggregationJSON struct {
	Func   string     `json:"func"`
	Column columnJSON `json:"column"`
	Alias  string     `json:"alias,omitempty"`
}

type orderByJSON struct {
	Column    columnJSON `json:"column"`
	Ascending bool       `json:"ascending"`
}

type intentJSON struct {
	QueryType    string            `json:"query_type"`
	Tables       []string          `json:"tables"`
	Columns      []columnJSON      `json:"columns,omitempty"`
	Conditions   *groupJSON        `json:"conditions,omitempty"`
	Joins        []joinJSON        `json:"joins,omitempty"`
	Aggregations []aggregationJSON `json:"aggregations,omitempty"`
	GroupBy      []columnJSON      `json:"group_by,omitempty"`
	Having       *groupJSON        `json:"having,omitempty"`
	OrderBy      []orderByJSON     `json:"order_by,omitempty"`
	Limit        *int              `json:"limit,omitempty"`
	Offset       *int              `json:"offset,omitempty"`
	Distinct     bool              `json:"distinct,omitempty"`
}

func columnToJSON(c Column) columnJSON {
	return columnJSON{Name: c.Name, Table: c.Table, Alias: c.Alias}
}

func groupToJSON(g *ConditionGroup) *groupJSON {
	if g == nil {
		return nil
	}
	out := &groupJSON{Combinator: string(g.Combinator), Conditions: make([]any, 0, len(g.Nodes))}
	for _, n := range g.Nodes {
		switch v := n.(type) {
		case Condition:
			out.Conditions = append(out.Conditions, conditionJSON{
				Column:   columnToJSON(v.Column),
				Operator: string(v.Operator),
				Value:    v.Value,
			})
		case *ConditionGroup:
			out.Conditions = append(out.Conditions, groupToJSON(v))
		}
	}
	return out
}

// Canonical returns the order-stable serialization of the intent.
func (qi *QueryIntent) Canonical() ([]byte, error) {
	doc := intentJSON{
		QueryType: string(qi.Type),
		Tables:    qi.Tables,
		Limit:     qi.Limit,
		Offset:    qi.Offset,
		Distinct:  qi.Distinct,
	}
	for _, c := range qi.Columns {
		doc.Columns = append(doc.Columns, columnToJSON(c))
	}
	doc.Conditions = groupToJSON(qi.Conditions)
	for _, j := range qi.Joins {
		doc.Joins = append(doc.Joins, joinJSON{
			Type:        string(j.Type),
			LeftTable:   j.LeftTable,
			RightTable:  j.RightTable,
			LeftColumn:  j.LeftColumn,
			RightColumn: j.RightColumn,
			Extra:       groupToJSON(j.Extra),
		})
	}
	for _, a := range qi.Aggregations {
		doc.Aggregations = append(doc.Aggregations, aggregationJSON{
			Func:   string(a.Func),
			Column: columnToJSON(a.Column),
			Alias:  a.Alias,
		})
	}
	for _, g := range qi.GroupBy {
		doc.GroupBy = append(doc.GroupBy, columnToJSON(g))
	}
	for _, ob := range qi.OrderBy {
		doc.OrderBy = append(doc.OrderBy, orderByJSON{Column: columnToJSON(ob.Column), Ascending: ob.Ascending})
	}
	return json.Marshal(doc)
}
