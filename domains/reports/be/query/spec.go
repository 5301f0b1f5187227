package query

import (
	"errors"
	"fmt"
)

// TrustedSQL marks a raw SQL fragment authored by a trusted administrator or
// developer, such as a join predicate or a report query template. It is the
// only string type the compiler will interpolate verbatim; end-user input
// must never be converted into it. Keeping the type distinct makes an
// accidental widening of that trust boundary a compile error.
type TrustedSQL string

// Aggregates the compiler accepts on a selected column.
const (
	AggregateSum   = "sum"
	AggregateAvg   = "avg"
	AggregateCount = "count"
	AggregateMin   = "min"
	AggregateMax   = "max"
)

// SelectedColumn is one projected column, optionally aggregated.
type SelectedColumn struct {
	Table     string `json:"table"`
	Column    string `json:"column"`
	Alias     string `json:"alias,omitempty"`
	Aggregate string `json:"aggregate,omitempty"`
}

// Join appends one JOIN clause. The On predicate is admin-authored raw SQL
// and is interpolated verbatim; it is deliberately outside the identifier
// validation net.
type Join struct {
	Type  string     `json:"type"`
	Table string     `json:"table"`
	On    TrustedSQL `json:"on"`
}

// Filter is one WHERE condition. Value is rendered as an escaped literal,
// not a bound parameter; see the compiler for the escaping rules.
type Filter struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// OrderBy is one ORDER BY entry.
type OrderBy struct {
	Column    string `json:"column"`
	Direction string `json:"direction,omitempty"`
}

// Spec is the declarative report description authored by end users and
// compiled on demand. It is also the persisted JSON wire shape.
type Spec struct {
	DataSources     []string         `json:"dataSources"`
	Joins           []Join           `json:"joins,omitempty"`
	SelectedColumns []SelectedColumn `json:"selectedColumns"`
	Filters         []Filter         `json:"filters,omitempty"`
	GroupBy         []string         `json:"groupBy,omitempty"`
	OrderBy         []OrderBy        `json:"orderBy,omitempty"`
}

// MissingDataSourceError reports a spec with no data sources; nothing can be
// compiled from it.
type MissingDataSourceError struct{}

func (e *MissingDataSourceError) Error() string {
	return "report spec requires at least one data source"
}

// ErrNoSelectedColumns reports a spec projecting nothing.
var ErrNoSelectedColumns = errors.New("report spec requires at least one selected column")

// UnsupportedOperatorError reports a filter operator, join type, aggregate,
// or sort direction outside the supported grammar.
type UnsupportedOperatorError struct {
	Kind  string
	Value string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("unsupported %s %q", e.Kind, e.Value)
}
