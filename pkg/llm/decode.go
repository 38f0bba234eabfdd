package llm

import (
	"encoding/json"
	"strings"

	"github.com/queryguard-io/queryguard-engine/pkg/apperrors"
	"github.com/queryguard-io/queryguard-engine/pkg/intent"
	"github.com/queryguard-io/queryguard-engine/pkg/jsonutil"
)

// intentDoc mirrors the JSON contract stated in the prompt. Scalar
// fields stay raw so decoding tolerates the type drift models produce.
type intentDoc struct {
	QueryType    json.RawMessage  `json:"query_type"`
	Tables       []string         `json:"tables"`
	Columns      []columnDoc      `json:"columns"`
	Conditions   *groupDoc        `json:"conditions"`
	Joins        []joinDoc        `json:"joins"`
	Aggregations []aggregationDoc `json:"aggregations"`
	GroupBy      []columnDoc      `json:"group_by"`
	Having       *groupDoc        `json:"having"`
	OrderBy      []orderByDoc     `json:"order_by"`
	Limit        json.RawMessage  `json:"limit"`
	Offset       json.RawMessage  `json:"offset"`
	Distinct     bool             `json:"distinct"`
}

type columnDoc struct {
	Table string
	Name  string
	Alias string
}

// UnmarshalJSON accepts the object form and the bare-string shorthand
// models often emit. A "table.column" string splits on the first dot so
// qualification survives as structure, never as a dotted identifier.
func (c *columnDoc) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if table, name, ok := strings.Cut(s, "."); ok && table != "" && name != "" {
			c.Table, c.Name = table, name
		} else {
			c.Name = s
		}
		return nil
	}

	var obj struct {
		Table  json.RawMessage `json:"table"`
		Name   json.RawMessage `json:"name"`
		Column json.RawMessage `json:"column"`
		Alias  json.RawMessage `json:"alias"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	c.Table = jsonutil.FlexibleStringValue(obj.Table)
	c.Name = jsonutil.FlexibleStringValue(obj.Name)
	if c.Name == "" {
		// Some models write {"column": "x"} instead of {"name": "x"}.
		c.Name = jsonutil.FlexibleStringValue(obj.Column)
	}
	if table, name, ok := strings.Cut(c.Name, "."); ok && c.Table == "" && table != "" && name != "" {
		c.Table, c.Name = table, name
	}
	c.Alias = jsonutil.FlexibleStringValue(obj.Alias)
	return nil
}

type groupDoc struct {
	Combinator json.RawMessage   `json:"combinator"`
	Conditions []json.RawMessage `json:"conditions"`
}

type conditionDoc struct {
	Column   columnDoc       `json:"column"`
	Operator json.RawMessage `json:"operator"`
	Value    json.RawMessage `json:"value"`
}

type joinDoc struct {
	Type        json.RawMessage `json:"type"`
	LeftTable   json.RawMessage `json:"left_table"`
	LeftColumn  json.RawMessage `json:"left_column"`
	RightTable  json.RawMessage `json:"right_table"`
	RightColumn json.RawMessage `json:"right_column"`
}

type aggregationDoc struct {
	Function json.RawMessage `json:"function"`
	Column   columnDoc       `json:"column"`
	Alias    json.RawMessage `json:"alias"`
}

type orderByDoc struct {
	Column    columnDoc       `json:"column"`
	Direction json.RawMessage `json:"direction"`
}

// DecodeIntent extracts the JSON document from a raw model response and
// builds a validated intent from it. Every field goes through the
// intent constructors, so construction invariants hold no matter what
// the model wrote.
func DecodeIntent(raw string) (*intent.QueryIntent, error) {
	doc, err := ParseJSONResponse[intentDoc](raw)
	if err != nil {
		return nil, apperrors.Validationf("candidate response: %v", err)
	}
	return buildIntent(&doc)
}

func buildIntent(doc *intentDoc) (*intent.QueryIntent, error) {
	qtName := jsonutil.FlexibleStringValue(doc.QueryType)
	if qtName == "" {
		qtName = string(intent.TypeSelect)
	}
	qt, err := intent.ParseQueryType(qtName)
	if err != nil {
		return nil, apperrors.Validationf("candidate query type: %v", err)
	}

	qi, err := intent.New(qt, doc.Tables...)
	if err != nil {
		return nil, err
	}

	for _, c := range doc.Columns {
		col, err := decodeColumn(c)
		if err != nil {
			return nil, err
		}
		if err := qi.AddColumn(col); err != nil {
			return nil, err
		}
	}

	if doc.Conditions != nil {
		group, err := decodeGroup(doc.Conditions, 1)
		if err != nil {
			return nil, err
		}
		if err := qi.SetConditions(group); err != nil {
			return nil, err
		}
	}

	for _, j := range doc.Joins {
		join, err := decodeJoin(j)
		if err != nil {
			return nil, err
		}
		if err := qi.AddJoin(join); err != nil {
			return nil, err
		}
	}

	// Group-by lands before aggregations so coverage checks see the
	// grouped columns.
	if len(doc.GroupBy) > 0 {
		cols := make([]intent.Column, 0, len(doc.GroupBy))
		for _, c := range doc.GroupBy {
			col, err := decodeColumn(c)
			if err != nil {
				return nil, err
			}
			cols = append(cols, col)
		}
		if err := qi.SetGroupBy(cols...); err != nil {
			return nil, err
		}
	}

	for _, a := range doc.Aggregations {
		agg, err := decodeAggregation(a)
		if err != nil {
			return nil, err
		}
		if err := qi.AddAggregation(agg); err != nil {
			return nil, err
		}
	}

	if doc.Having != nil {
		group, err := decodeGroup(doc.Having, 1)
		if err != nil {
			return nil, err
		}
		if err := qi.SetHaving(group); err != nil {
			return nil, err
		}
	}

	for _, ob := range doc.OrderBy {
		col, err := decodeColumn(ob.Column)
		if err != nil {
			return nil, err
		}
		term := intent.Asc(col)
		if isDescending(jsonutil.FlexibleStringValue(ob.Direction)) {
			term = intent.Desc(col)
		}
		if err := qi.AddOrderBy(term); err != nil {
			return nil, err
		}
	}

	if n, ok := jsonutil.FlexibleIntValue(doc.Limit); ok && n != 0 {
		if err := qi.SetLimit(n); err != nil {
			return nil, err
		}
	}
	if n, ok := jsonutil.FlexibleIntValue(doc.Offset); ok && n != 0 {
		if err := qi.SetOffset(n); err != nil {
			return nil, err
		}
	}

	if doc.Distinct {
		qi.Distinct = true
	}

	if err := qi.Validate(); err != nil {
		return nil, err
	}
	return qi, nil
}

func decodeColumn(doc columnDoc) (intent.Column, error) {
	if doc.Name == "" {
		return intent.Column{}, apperrors.Validationf("candidate column has no name")
	}
	return intent.Column{Name: doc.Name, Table: doc.Table, Alias: doc.Alias}, nil
}

// decodeGroup walks a condition tree, telling nested groups from leaves
// by the presence of a "conditions" key. Depth is bounded here as well:
// a decoded tree must never recurse past what validation would allow.
func decodeGroup(doc *groupDoc, depth int) (*intent.ConditionGroup, error) {
	if depth > intent.MaxConditionDepth {
		return nil, apperrors.Validationf("condition nesting exceeds depth %d", intent.MaxConditionDepth)
	}

	comb := intent.CombineAnd
	if s := jsonutil.FlexibleStringValue(doc.Combinator); s != "" {
		var err error
		comb, err = intent.ParseCombinator(s)
		if err != nil {
			return nil, apperrors.Validationf("candidate combinator: %v", err)
		}
	}

	group := intent.NewGroup(comb)
	for _, rawNode := range doc.Conditions {
		var probe struct {
			Conditions json.RawMessage `json:"conditions"`
		}
		if err := json.Unmarshal(rawNode, &probe); err != nil {
			return nil, apperrors.Validationf("candidate condition node: %v", err)
		}

		if probe.Conditions != nil {
			var sub groupDoc
			if err := json.Unmarshal(rawNode, &sub); err != nil {
				return nil, apperrors.Validationf("candidate condition group: %v", err)
			}
			subGroup, err := decodeGroup(&sub, depth+1)
			if err != nil {
				return nil, err
			}
			group.Add(subGroup)
			continue
		}

		var leaf conditionDoc
		if err := json.Unmarshal(rawNode, &leaf); err != nil {
			return nil, apperrors.Validationf("candidate condition: %v", err)
		}
		cond, err := decodeCondition(leaf)
		if err != nil {
			return nil, err
		}
		group.Add(cond)
	}
	return group, nil
}

func decodeCondition(doc conditionDoc) (intent.Condition, error) {
	col, err := decodeColumn(doc.Column)
	if err != nil {
		return intent.Condition{}, err
	}

	op, err := intent.ParseOperator(jsonutil.FlexibleStringValue(doc.Operator))
	if err != nil {
		return intent.Condition{}, apperrors.Validationf("candidate condition: %v", err)
	}

	value, err := jsonutil.FlexibleValue(doc.Value)
	if err != nil {
		return intent.Condition{}, apperrors.Validationf("candidate condition value: %v", err)
	}

	return intent.NewCondition(col, op, value)
}

func decodeJoin(doc joinDoc) (intent.JoinCondition, error) {
	jt := intent.JoinInner
	if s := jsonutil.FlexibleStringValue(doc.Type); s != "" {
		var err error
		jt, err = intent.ParseJoinType(s)
		if err != nil {
			return intent.JoinCondition{}, apperrors.Validationf("candidate join: %v", err)
		}
	}
	return intent.JoinCondition{
		Type:        jt,
		LeftTable:   jsonutil.FlexibleStringValue(doc.LeftTable),
		LeftColumn:  jsonutil.FlexibleStringValue(doc.LeftColumn),
		RightTable:  jsonutil.FlexibleStringValue(doc.RightTable),
		RightColumn: jsonutil.FlexibleStringValue(doc.RightColumn),
	}, nil
}

func decodeAggregation(doc aggregationDoc) (intent.Aggregation, error) {
	fn, err := intent.ParseAggregateFunc(jsonutil.FlexibleStringValue(doc.Function))
	if err != nil {
		return intent.Aggregation{}, apperrors.Validationf("candidate aggregation: %v", err)
	}
	col, err := decodeColumn(doc.Column)
	if err != nil {
		return intent.Aggregation{}, err
	}
	return intent.Aggregation{
		Func:   fn,
		Column: col,
		Alias:  jsonutil.FlexibleStringValue(doc.Alias),
	}, nil
}

func isDescending(direction string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(direction)), "DESC")
}
