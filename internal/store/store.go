// Package store is the data access layer over the read-only climate database.
//
// Callers describe a query declaratively (entity, projection, filters,
// ordering, aggregates) and get back typed rows. Every call checks out its own
// connection from the pool and returns it before the call ends, whatever the
// outcome, so concurrent requests never share cursor state.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/scheaton/sqlalchemy-challenge/internal/metrics"
	"github.com/scheaton/sqlalchemy-challenge/internal/schema"
)

var (
	// ErrStorageUnavailable means the store could not be reached or rejected
	// the statement (missing table or column, I/O failure, cancelled context).
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrQueryExecution means the query itself is malformed: unknown entity or
	// field, unsupported comparator or aggregate.
	ErrQueryExecution = errors.New("query execution error")
)

type Comparator string

const (
	GT  Comparator = ">"
	GTE Comparator = ">="
	LT  Comparator = "<"
	LTE Comparator = "<="
	EQ  Comparator = "="
)

type Filter struct {
	Field string
	Op    Comparator
	Value any
}

// Order sorts ascending by Field.
type Order struct {
	Field string
}

type AggFunc string

const (
	Min AggFunc = "min"
	Max AggFunc = "max"
	Avg AggFunc = "avg"
)

type Aggregate struct {
	Func  AggFunc
	Field string
}

// Query selects either Fields (one row per match) or Aggregates (exactly one
// row), never both. An empty Fields with no Aggregates selects every field of
// the entity.
type Query struct {
	Entity     schema.Table
	Fields     []string
	Filters    []Filter
	OrderBy    *Order
	Aggregates []Aggregate
}

// Row holds one result tuple in projection order. Values are string, float64
// or nil.
type Row []any

type Store struct {
	db      *sqlx.DB
	builder sq.StatementBuilderType
}

func New(db *sqlx.DB) *Store {
	return &Store{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// Query runs q on a connection scoped to this call.
func (s *Store) Query(ctx context.Context, q Query) (rows []Row, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveQuery(q.Entity.Name, queryOutcome(err), time.Since(start))
	}()

	sqlStr, args, kinds, err := s.build(q)
	if err != nil {
		return nil, err
	}

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire connection: %w", ErrStorageUnavailable, err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			slog.Error("release connection", "error", closeErr)
		}
	}()

	res, err := conn.QueryxContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %w", ErrStorageUnavailable, q.Entity.Name, err)
	}
	defer func() {
		if closeErr := res.Close(); closeErr != nil {
			slog.Error("close rows", "entity", q.Entity.Name, "error", closeErr)
		}
	}()

	for res.Next() {
		vals, err := res.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("%w: scan %s: %w", ErrStorageUnavailable, q.Entity.Name, err)
		}
		row := make(Row, len(vals))
		for i, v := range vals {
			row[i] = normalize(kinds[i], v)
		}
		rows = append(rows, row)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate %s: %w", ErrStorageUnavailable, q.Entity.Name, err)
	}
	return rows, nil
}

// Ping round-trips a trivial statement on a scoped connection.
func (s *Store) Ping(ctx context.Context) error {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("%w: acquire connection: %w", ErrStorageUnavailable, err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			slog.Error("release connection", "error", closeErr)
		}
	}()
	var ok int
	if err := conn.GetContext(ctx, &ok, `SELECT 1`); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrStorageUnavailable, err)
	}
	return nil
}

// Verify checks the opened database against the schema definition.
func (s *Store) Verify(ctx context.Context) error {
	if err := schema.Verify(ctx, s.db); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) build(q Query) (string, []any, []schema.Kind, error) {
	entity, ok := schema.Lookup(q.Entity.Name)
	if !ok {
		return "", nil, nil, fmt.Errorf("%w: unknown entity %q", ErrQueryExecution, q.Entity.Name)
	}
	if len(q.Aggregates) > 0 && len(q.Fields) > 0 {
		return "", nil, nil, fmt.Errorf("%w: aggregates cannot be combined with a projection", ErrQueryExecution)
	}

	var (
		columns []string
		kinds   []schema.Kind
	)
	if len(q.Aggregates) > 0 {
		for _, a := range q.Aggregates {
			f, ok := entity.Field(a.Field)
			if !ok {
				return "", nil, nil, unknownField(entity, a.Field)
			}
			switch a.Func {
			case Min, Max:
				kinds = append(kinds, f.Kind)
			case Avg:
				kinds = append(kinds, schema.KindReal)
			default:
				return "", nil, nil, fmt.Errorf("%w: unsupported aggregate %q", ErrQueryExecution, a.Func)
			}
			columns = append(columns, fmt.Sprintf("%s(%s)", a.Func, f.Name))
		}
	} else {
		fields := q.Fields
		if len(fields) == 0 {
			fields = entity.FieldNames()
		}
		for _, name := range fields {
			f, ok := entity.Field(name)
			if !ok {
				return "", nil, nil, unknownField(entity, name)
			}
			columns = append(columns, f.Name)
			kinds = append(kinds, f.Kind)
		}
	}

	b := s.builder.Select(columns...).From(entity.Name)
	for _, flt := range q.Filters {
		f, ok := entity.Field(flt.Field)
		if !ok {
			return "", nil, nil, unknownField(entity, flt.Field)
		}
		pred, err := predicate(f.Name, flt.Op, flt.Value)
		if err != nil {
			return "", nil, nil, err
		}
		b = b.Where(pred)
	}
	if q.OrderBy != nil {
		f, ok := entity.Field(q.OrderBy.Field)
		if !ok {
			return "", nil, nil, unknownField(entity, q.OrderBy.Field)
		}
		b = b.OrderBy(f.Name + " ASC")
	}

	sqlStr, args, err := b.ToSql()
	if err != nil {
		return "", nil, nil, fmt.Errorf("%w: build sql: %w", ErrQueryExecution, err)
	}
	return sqlStr, args, kinds, nil
}

func predicate(column string, op Comparator, value any) (sq.Sqlizer, error) {
	switch op {
	case GT:
		return sq.Gt{column: value}, nil
	case GTE:
		return sq.GtOrEq{column: value}, nil
	case LT:
		return sq.Lt{column: value}, nil
	case LTE:
		return sq.LtOrEq{column: value}, nil
	case EQ:
		return sq.Eq{column: value}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported comparator %q", ErrQueryExecution, op)
	}
}

func unknownField(t schema.Table, field string) error {
	return fmt.Errorf("%w: unknown field %s.%s", ErrQueryExecution, t.Name, field)
}

// normalize maps driver values onto the Row contract. Values that do not fit
// the declared kind pass through as strings rather than being coerced.
func normalize(kind schema.Kind, v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		return normalize(kind, string(t))
	case string:
		return t
	case float64:
		if kind == schema.KindText {
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
		return t
	case int64:
		if kind == schema.KindText {
			return strconv.FormatInt(t, 10)
		}
		return float64(t)
	case time.Time:
		// mattn/go-sqlite3 parses columns declared DATE/DATETIME into time.Time.
		return t.Format(time.DateOnly)
	default:
		return fmt.Sprint(t)
	}
}

func queryOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrQueryExecution):
		return "invalid"
	default:
		return "unavailable"
	}
}
