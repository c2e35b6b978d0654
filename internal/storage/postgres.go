package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type columnKind int

const (
	columnText columnKind = iota
	columnTime
	columnInt
)

// flightPlanColumns whitelists the filterable and updatable columns.
var flightPlanColumns = map[string]columnKind{
	FieldFlightPlanID:          columnText,
	FieldScheduledDeparture:    columnTime,
	FieldFlightStatus:          columnInt,
	FieldFlightPlanApproval:    columnTime,
	FieldFlightReleaseApproval: columnTime,
}

const selectFlightPlans = `
SELECT flight_plan_id, scheduled_departure, flight_status, flight_plan_approval, flight_release_approval
FROM flight_plan`

// PostgresStore is a record store backed by a flight_plan table.
type PostgresStore struct {
	DB *sql.DB
}

// OpenPostgres opens and verifies a connection pool for databaseURL using
// the pgx driver.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("verify postgres connection: %w", err)
	}
	return &PostgresStore{DB: db}, nil
}

func (s *PostgresStore) Search(ctx context.Context, filter *AdvancedSearchFilter) ([]FlightPlanObject, error) {
	if s.DB == nil {
		return nil, errors.New("postgres store: db is nil")
	}
	where, args, err := buildWhere(filter)
	if err != nil {
		return nil, err
	}
	q := selectFlightPlans + where + buildPaging(filter)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search flight plans: %w", err)
	}
	defer rows.Close()

	var out []FlightPlanObject
	for rows.Next() {
		var (
			id                       string
			departure, plan, release sql.NullTime
			status                   int32
		)
		if err := rows.Scan(&id, &departure, &status, &plan, &release); err != nil {
			return nil, fmt.Errorf("search flight plans: scan row: %w", err)
		}
		out = append(out, FlightPlanObject{
			ID: id,
			Data: &FlightPlanData{
				ScheduledDeparture:    nullTime(departure),
				FlightStatus:          FlightStatus(status),
				FlightPlanApproval:    nullTime(plan),
				FlightReleaseApproval: nullTime(release),
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search flight plans: row iteration: %w", err)
	}
	return out, nil
}

// Update applies obj. A missing row is reported as a failed validation, not
// an error.
func (s *PostgresStore) Update(ctx context.Context, obj UpdateObject) (*UpdateResponse, error) {
	if s.DB == nil {
		return nil, errors.New("postgres store: db is nil")
	}
	q, args, err := buildUpdate(obj)
	if err != nil {
		return nil, err
	}

	res, err := s.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("update flight plan %s: %w", obj.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update flight plan %s: rows affected: %w", obj.ID, err)
	}
	if n == 0 {
		return &UpdateResponse{ValidationResult: &ValidationResult{
			Success: false,
			Errors:  []ValidationError{{Field: FieldFlightPlanID, Message: "no such flight plan"}},
		}}, nil
	}
	return &UpdateResponse{ValidationResult: &ValidationResult{Success: true}}, nil
}

func (s *PostgresStore) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// buildWhere renders filter as a WHERE clause with positional arguments.
func buildWhere(filter *AdvancedSearchFilter) (string, []any, error) {
	if filter == nil || len(filter.Filters) == 0 {
		return "", nil, nil
	}

	var (
		b    strings.Builder
		args []any
	)
	b.WriteString(" WHERE ")
	for i, opt := range filter.Filters {
		kind, ok := flightPlanColumns[opt.SearchField]
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown field %q", ErrInvalidFilter, opt.SearchField)
		}
		if i > 0 {
			if opt.Comparison == ComparisonOr {
				b.WriteString(" OR ")
			} else {
				b.WriteString(" AND ")
			}
		}

		values := make([]any, 0, len(opt.SearchValue))
		for _, raw := range opt.SearchValue {
			v, err := convertValue(kind, raw)
			if err != nil {
				return "", nil, fmt.Errorf("%w: field %q: %v", ErrInvalidFilter, opt.SearchField, err)
			}
			values = append(values, v)
		}

		col := opt.SearchField
		switch opt.PredicateOperator {
		case PredicateIsNull:
			b.WriteString(col + " IS NULL")
		case PredicateIsNotNull:
			b.WriteString(col + " IS NOT NULL")
		case PredicateEquals, PredicateNotEquals, PredicateLessOrEqual, PredicateGreaterOrEqual:
			if len(values) != 1 {
				return "", nil, fmt.Errorf("%w: field %q expects one value, got %d", ErrInvalidFilter, col, len(values))
			}
			args = append(args, values[0])
			fmt.Fprintf(&b, "%s %s $%d", col, comparisonSQL(opt.PredicateOperator), len(args))
		case PredicateIn, PredicateNotIn:
			if len(values) == 0 {
				return "", nil, fmt.Errorf("%w: field %q expects at least one value", ErrInvalidFilter, col)
			}
			placeholders := make([]string, len(values))
			for j, v := range values {
				args = append(args, v)
				placeholders[j] = "$" + strconv.Itoa(len(args))
			}
			op := "IN"
			if opt.PredicateOperator == PredicateNotIn {
				op = "NOT IN"
			}
			fmt.Fprintf(&b, "%s %s (%s)", col, op, strings.Join(placeholders, ", "))
		default:
			return "", nil, fmt.Errorf("%w: unsupported predicate %d", ErrInvalidFilter, opt.PredicateOperator)
		}
	}
	return b.String(), args, nil
}

func comparisonSQL(op PredicateOperator) string {
	switch op {
	case PredicateNotEquals:
		return "<>"
	case PredicateLessOrEqual:
		return "<="
	case PredicateGreaterOrEqual:
		return ">="
	default:
		return "="
	}
}

func buildPaging(filter *AdvancedSearchFilter) string {
	if filter == nil || filter.ResultsPerPage <= 0 {
		return " ORDER BY scheduled_departure"
	}
	page := filter.PageNumber
	if page < 1 {
		page = 1
	}
	offset := int64(page-1) * int64(filter.ResultsPerPage)
	return fmt.Sprintf(" ORDER BY scheduled_departure LIMIT %d OFFSET %d", filter.ResultsPerPage, offset)
}

func convertValue(kind columnKind, raw string) (any, error) {
	switch kind {
	case columnTime:
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	case columnInt:
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, err
		}
		return int32(n), nil
	default:
		return raw, nil
	}
}

// buildUpdate renders obj as an UPDATE touching only the masked columns.
func buildUpdate(obj UpdateObject) (string, []any, error) {
	if obj.ID == "" {
		return "", nil, fmt.Errorf("%w: update without id", ErrInvalidFilter)
	}
	if len(obj.Mask.Paths) == 0 {
		return "", nil, fmt.Errorf("%w: update without field mask", ErrInvalidFilter)
	}

	sets := make([]string, 0, len(obj.Mask.Paths))
	args := make([]any, 0, len(obj.Mask.Paths)+1)
	for _, path := range obj.Mask.Paths {
		var v any
		switch path {
		case FieldScheduledDeparture:
			v = timeArg(obj.Data.ScheduledDeparture)
		case FieldFlightStatus:
			v = int32(obj.Data.FlightStatus)
		case FieldFlightPlanApproval:
			v = timeArg(obj.Data.FlightPlanApproval)
		case FieldFlightReleaseApproval:
			v = timeArg(obj.Data.FlightReleaseApproval)
		default:
			return "", nil, fmt.Errorf("%w: field %q cannot be updated", ErrInvalidFilter, path)
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", path, len(args)))
	}
	args = append(args, obj.ID)
	q := fmt.Sprintf("UPDATE flight_plan SET %s WHERE flight_plan_id = $%d", strings.Join(sets, ", "), len(args))
	return q, args, nil
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
