package storage

import (
	"errors"
	"strconv"
	"time"
)

// ErrInvalidFilter is returned when a filter or update references an
// unsupported field or carries a value of the wrong shape.
var ErrInvalidFilter = errors.New("invalid storage filter")

// PredicateOperator is the comparison applied by one filter option.
type PredicateOperator int

const (
	PredicateEquals PredicateOperator = iota
	PredicateNotEquals
	PredicateIsNull
	PredicateIsNotNull
	PredicateIn
	PredicateNotIn
	PredicateGreaterOrEqual
	PredicateLessOrEqual
)

// ComparisonOperator joins an option to the ones before it.
type ComparisonOperator int

const (
	ComparisonAnd ComparisonOperator = iota
	ComparisonOr
)

// FilterOption is one predicate of an AdvancedSearchFilter. Values are
// strings; timestamps use RFC 3339 with nanoseconds.
type FilterOption struct {
	SearchField       string             `json:"search_field"`
	SearchValue       []string           `json:"search_value"`
	PredicateOperator PredicateOperator  `json:"predicate_operator"`
	Comparison        ComparisonOperator `json:"comparison_operator"`
}

// AdvancedSearchFilter is a chain of predicates built with the Search* and
// And* helpers.
type AdvancedSearchFilter struct {
	Filters        []FilterOption `json:"filters"`
	PageNumber     int32          `json:"page_number"`
	ResultsPerPage int32          `json:"results_per_page"`
}

// FormatTime renders t the way filters expect timestamps.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// FormatStatuses renders flight statuses as filter values.
func FormatStatuses(statuses ...FlightStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, strconv.Itoa(int(s)))
	}
	return out
}

func newFilter(opt FilterOption) *AdvancedSearchFilter {
	return &AdvancedSearchFilter{Filters: []FilterOption{opt}}
}

func (f *AdvancedSearchFilter) and(opt FilterOption) *AdvancedSearchFilter {
	opt.Comparison = ComparisonAnd
	f.Filters = append(f.Filters, opt)
	return f
}

// SearchIsNull starts a filter matching rows where field is null.
func SearchIsNull(field string) *AdvancedSearchFilter {
	return newFilter(FilterOption{SearchField: field, PredicateOperator: PredicateIsNull})
}

// SearchEquals starts a filter matching rows where field equals value.
func SearchEquals(field, value string) *AdvancedSearchFilter {
	return newFilter(FilterOption{SearchField: field, SearchValue: []string{value}, PredicateOperator: PredicateEquals})
}

func (f *AdvancedSearchFilter) AndIsNull(field string) *AdvancedSearchFilter {
	return f.and(FilterOption{SearchField: field, PredicateOperator: PredicateIsNull})
}

func (f *AdvancedSearchFilter) AndIsNotNull(field string) *AdvancedSearchFilter {
	return f.and(FilterOption{SearchField: field, PredicateOperator: PredicateIsNotNull})
}

func (f *AdvancedSearchFilter) AndEquals(field, value string) *AdvancedSearchFilter {
	return f.and(FilterOption{SearchField: field, SearchValue: []string{value}, PredicateOperator: PredicateEquals})
}

func (f *AdvancedSearchFilter) AndLessOrEqual(field, value string) *AdvancedSearchFilter {
	return f.and(FilterOption{SearchField: field, SearchValue: []string{value}, PredicateOperator: PredicateLessOrEqual})
}

func (f *AdvancedSearchFilter) AndGreaterOrEqual(field, value string) *AdvancedSearchFilter {
	return f.and(FilterOption{SearchField: field, SearchValue: []string{value}, PredicateOperator: PredicateGreaterOrEqual})
}

func (f *AdvancedSearchFilter) AndIn(field string, values []string) *AdvancedSearchFilter {
	return f.and(FilterOption{SearchField: field, SearchValue: values, PredicateOperator: PredicateIn})
}

func (f *AdvancedSearchFilter) AndNotIn(field string, values []string) *AdvancedSearchFilter {
	return f.and(FilterOption{SearchField: field, SearchValue: values, PredicateOperator: PredicateNotIn})
}

// PendingDecisionFilter selects flight plans awaiting a decision in field
// whose departure lies in [now, now+lookahead] and which are neither
// finished nor cancelled.
func PendingDecisionFilter(field string, now time.Time, lookahead time.Duration) *AdvancedSearchFilter {
	return SearchIsNull(field).
		AndLessOrEqual(FieldScheduledDeparture, FormatTime(now.Add(lookahead))).
		AndGreaterOrEqual(FieldScheduledDeparture, FormatTime(now)).
		AndNotIn(FieldFlightStatus, FormatStatuses(FlightStatusFinished, FlightStatusCancelled))
}
