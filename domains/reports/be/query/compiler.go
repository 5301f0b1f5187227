package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/persistence"
)

// joinKeywords maps the accepted join types to SQL.
var joinKeywords = map[string]string{
	"inner": "INNER JOIN",
	"left":  "LEFT JOIN",
	"right": "RIGHT JOIN",
	"full":  "FULL JOIN",
}

var aggregateKeywords = map[string]string{
	AggregateSum:   "SUM",
	AggregateAvg:   "AVG",
	AggregateCount: "COUNT",
	AggregateMin:   "MIN",
	AggregateMax:   "MAX",
}

// filterOperators is the accepted WHERE grammar. The operator itself is
// interpolated into SQL text, so anything outside this set is rejected.
var filterOperators = map[string]struct{}{
	"=": {}, "!=": {}, "<>": {}, "<": {}, "<=": {}, ">": {}, ">=": {},
	"LIKE": {}, "ILIKE": {}, "IN": {}, "NOT IN": {}, "BETWEEN": {},
}

// Compile translates a declarative report spec into one SQL string scoped to
// the given tenant schema. It is deterministic and side-effect free: the same
// spec always yields byte-identical SQL, and execution is left entirely to
// the caller.
//
// Every schema, table, and column name referenced anywhere in the spec is
// individually validated before it reaches the output. Two inputs are
// deliberately outside that net: join predicates (TrustedSQL, admin-authored)
// and filter values, which are rendered as escaped literals with embedded
// single quotes doubled.
func Compile(tenantSchema string, spec Spec) (string, error) {
	if err := persistence.AssertValidIdentifier(tenantSchema); err != nil {
		return "", err
	}
	if len(spec.DataSources) == 0 {
		return "", &MissingDataSourceError{}
	}
	if len(spec.SelectedColumns) == 0 {
		return "", ErrNoSelectedColumns
	}
	for _, source := range spec.DataSources {
		if err := persistence.AssertValidIdentifier(source); err != nil {
			return "", err
		}
	}

	firstSource := spec.DataSources[0]

	// Projection list. Bare (non-aggregated) columns are collected for the
	// implicit GROUP BY below.
	selectParts := make([]string, 0, len(spec.SelectedColumns))
	bareColumns := make([]string, 0, len(spec.SelectedColumns))
	hasAggregate := false
	for _, col := range spec.SelectedColumns {
		qualified, err := qualifyColumn(tenantSchema, col.Table, col.Column)
		if err != nil {
			return "", err
		}

		alias := col.Alias
		if alias == "" {
			alias = col.Column
		}
		if err := persistence.AssertValidIdentifier(alias); err != nil {
			return "", err
		}

		if col.Aggregate != "" {
			keyword, ok := aggregateKeywords[strings.ToLower(col.Aggregate)]
			if !ok {
				return "", &UnsupportedOperatorError{Kind: "aggregate", Value: col.Aggregate}
			}
			hasAggregate = true
			selectParts = append(selectParts, fmt.Sprintf("%s(%s) AS %s", keyword, qualified, alias))
			continue
		}

		bareColumns = append(bareColumns, qualified)
		selectParts = append(selectParts, fmt.Sprintf("%s AS %s", qualified, alias))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selectParts, ", "))
	sb.WriteString(fmt.Sprintf(" FROM %s.%s", tenantSchema, firstSource))

	for _, join := range spec.Joins {
		keyword, ok := joinKeywords[strings.ToLower(join.Type)]
		if !ok {
			return "", &UnsupportedOperatorError{Kind: "join type", Value: join.Type}
		}
		if err := persistence.AssertValidIdentifier(join.Table); err != nil {
			return "", err
		}
		if strings.TrimSpace(string(join.On)) == "" {
			return "", fmt.Errorf("join on %s.%s requires a predicate", tenantSchema, join.Table)
		}
		sb.WriteString(fmt.Sprintf(" %s %s.%s ON %s", keyword, tenantSchema, join.Table, join.On))
	}

	if len(spec.Filters) > 0 {
		conditions := make([]string, 0, len(spec.Filters))
		for _, filter := range spec.Filters {
			condition, err := renderFilter(tenantSchema, firstSource, spec.SelectedColumns, filter)
			if err != nil {
				return "", err
			}
			conditions = append(conditions, condition)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}

	groupBy, err := buildGroupBy(tenantSchema, firstSource, spec, hasAggregate, bareColumns)
	if err != nil {
		return "", err
	}
	if len(groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(groupBy, ", "))
	}

	if len(spec.OrderBy) > 0 {
		orderParts := make([]string, 0, len(spec.OrderBy))
		for _, ob := range spec.OrderBy {
			qualified, err := resolveColumn(tenantSchema, firstSource, spec.SelectedColumns, ob.Column)
			if err != nil {
				return "", err
			}
			direction := strings.ToUpper(ob.Direction)
			if direction == "" {
				direction = "ASC"
			}
			if direction != "ASC" && direction != "DESC" {
				return "", &UnsupportedOperatorError{Kind: "sort direction", Value: ob.Direction}
			}
			orderParts = append(orderParts, qualified+" "+direction)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(orderParts, ", "))
	}

	return sb.String(), nil
}

func buildGroupBy(schema, firstSource string, spec Spec, hasAggregate bool, bareColumns []string) ([]string, error) {
	resolveAll := func(columns []string) ([]string, error) {
		out := make([]string, 0, len(columns))
		for _, col := range columns {
			qualified, err := resolveColumn(schema, firstSource, spec.SelectedColumns, col)
			if err != nil {
				return nil, err
			}
			out = append(out, qualified)
		}
		return out, nil
	}

	if hasAggregate {
		if len(spec.GroupBy) > 0 {
			return resolveAll(spec.GroupBy)
		}
		// Aggregates present without an explicit grouping: every bare column
		// must be grouped or the statement is invalid SQL.
		return bareColumns, nil
	}

	if len(spec.GroupBy) > 0 {
		return resolveAll(spec.GroupBy)
	}
	return nil, nil
}

// qualifyColumn validates and joins schema.table.column.
func qualifyColumn(schema, table, column string) (string, error) {
	if err := persistence.AssertValidIdentifier(table); err != nil {
		return "", err
	}
	if err := persistence.AssertValidIdentifier(column); err != nil {
		return "", err
	}
	return schema + "." + table + "." + column, nil
}

// resolveColumn maps a bare column name to its fully-qualified form by
// matching against the selected columns. Unmatched names fall back to the
// first data source; in multi-join reports this can qualify against the
// wrong table, but the behavior is kept for compatibility with existing
// stored reports.
func resolveColumn(schema, firstSource string, selected []SelectedColumn, column string) (string, error) {
	if err := persistence.AssertValidIdentifier(column); err != nil {
		return "", err
	}
	for _, sc := range selected {
		if sc.Column == column {
			return qualifyColumn(schema, sc.Table, sc.Column)
		}
	}
	return qualifyColumn(schema, firstSource, column)
}

func renderFilter(schema, firstSource string, selected []SelectedColumn, filter Filter) (string, error) {
	qualified, err := resolveColumn(schema, firstSource, selected, filter.Column)
	if err != nil {
		return "", err
	}

	operator := strings.ToUpper(strings.TrimSpace(filter.Operator))
	if _, ok := filterOperators[operator]; !ok {
		return "", &UnsupportedOperatorError{Kind: "filter operator", Value: filter.Operator}
	}

	switch operator {
	case "IN", "NOT IN":
		values, ok := toSlice(filter.Value)
		if !ok || len(values) == 0 {
			return "", fmt.Errorf("filter on %s: %s requires a non-empty list", filter.Column, operator)
		}
		quoted := make([]string, 0, len(values))
		for _, v := range values {
			quoted = append(quoted, quoteLiteral(stringify(v)))
		}
		return fmt.Sprintf("%s %s (%s)", qualified, operator, strings.Join(quoted, ", ")), nil

	case "BETWEEN":
		values, ok := toSlice(filter.Value)
		if !ok || len(values) != 2 {
			return "", fmt.Errorf("filter on %s: BETWEEN requires exactly two values", filter.Column)
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s",
			qualified, quoteLiteral(stringify(values[0])), quoteLiteral(stringify(values[1]))), nil

	case "LIKE", "ILIKE":
		return fmt.Sprintf("%s %s %s", qualified, operator, quoteLiteral(stringify(filter.Value))), nil

	default:
		return fmt.Sprintf("%s %s %s", qualified, operator, renderLiteral(filter.Value)), nil
	}
}

// renderLiteral emits a quoted, escaped string literal unless the value is a
// finite number, which is emitted unquoted.
func renderLiteral(value any) string {
	switch v := value.(type) {
	case float64:
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	case float32:
		return renderLiteral(float64(v))
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return quoteLiteral(stringify(value))
}

// quoteLiteral single-quotes a string, doubling embedded single quotes.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(v))
		for i, f := range v {
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}
