package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/scheaton/sqlalchemy-challenge/internal/modules/climate/types"
	"github.com/scheaton/sqlalchemy-challenge/internal/schema"
	"github.com/scheaton/sqlalchemy-challenge/internal/store"
)

// FallbackCutoff is the series cutoff used when none is configured and the
// dataset cannot supply one. It is one year before the last date of the
// published Hawaii dataset.
const FallbackCutoff = "2016-08-23"

// NoValue is how an absent aggregate is rendered in a summary.
const NoValue = "None"

// Querier is the slice of the data access layer the engine needs.
type Querier interface {
	Query(ctx context.Context, q store.Query) ([]store.Row, error)
}

type ClimateRepository interface {
	Precipitation(ctx context.Context) ([]types.PrecipitationRecord, error)
	Stations(ctx context.Context) ([]types.Station, error)
	Tobs(ctx context.Context) ([]types.TobsRecord, error)
	SummarySince(ctx context.Context, start string) (types.TemperatureSummary, error)
	SummaryRange(ctx context.Context, start, end string) (types.TemperatureSummary, error)
	Bounds(ctx context.Context) (types.Bounds, error)
}

type repositoryImpl struct {
	store  Querier
	cutoff string
}

// NewRepository returns the engine. Series operations keep rows dated strictly
// after cutoff; an empty cutoff means FallbackCutoff.
func NewRepository(q Querier, cutoff string) ClimateRepository {
	if cutoff == "" {
		cutoff = FallbackCutoff
	}
	return &repositoryImpl{store: q, cutoff: cutoff}
}

func (r *repositoryImpl) Precipitation(ctx context.Context) ([]types.PrecipitationRecord, error) {
	rows, err := r.store.Query(ctx, r.seriesQuery("prcp"))
	if err != nil {
		return nil, fmt.Errorf("precipitation series: %w", err)
	}
	out := make([]types.PrecipitationRecord, 0, len(rows))
	for _, row := range rows {
		date := text(row[0])
		out = append(out, types.PrecipitationRecord{Date: date, Prcp: measurementValue(ctx, "prcp", date, row[1])})
	}
	return out, nil
}

func (r *repositoryImpl) Stations(ctx context.Context) ([]types.Station, error) {
	rows, err := r.store.Query(ctx, store.Query{
		Entity: schema.Station,
		Fields: []string{"station", "name", "latitude", "longitude", "elevation"},
	})
	if err != nil {
		return nil, fmt.Errorf("station catalog: %w", err)
	}
	out := make([]types.Station, 0, len(rows))
	for _, row := range rows {
		code := textPtr(row[0])
		out = append(out, types.Station{
			Station:   code,
			Name:      textPtr(row[1]),
			Latitude:  stationValue(ctx, "latitude", code, row[2]),
			Longitude: stationValue(ctx, "longitude", code, row[3]),
			Elevation: stationValue(ctx, "elevation", code, row[4]),
		})
	}
	return out, nil
}

func (r *repositoryImpl) Tobs(ctx context.Context) ([]types.TobsRecord, error) {
	rows, err := r.store.Query(ctx, r.seriesQuery("tobs"))
	if err != nil {
		return nil, fmt.Errorf("tobs series: %w", err)
	}
	out := make([]types.TobsRecord, 0, len(rows))
	for _, row := range rows {
		date := text(row[0])
		out = append(out, types.TobsRecord{Date: date, Tobs: measurementValue(ctx, "tobs", date, row[1])})
	}
	return out, nil
}

// SummarySince aggregates tobs over date >= start.
func (r *repositoryImpl) SummarySince(ctx context.Context, start string) (types.TemperatureSummary, error) {
	return r.summary(ctx, store.Filter{Field: "date", Op: store.GTE, Value: start})
}

// SummaryRange aggregates tobs over start <= date <= end. start after end
// matches nothing.
func (r *repositoryImpl) SummaryRange(ctx context.Context, start, end string) (types.TemperatureSummary, error) {
	return r.summary(ctx,
		store.Filter{Field: "date", Op: store.GTE, Value: start},
		store.Filter{Field: "date", Op: store.LTE, Value: end},
	)
}

func (r *repositoryImpl) Bounds(ctx context.Context) (types.Bounds, error) {
	return bounds(ctx, r.store)
}

func (r *repositoryImpl) seriesQuery(field string) store.Query {
	return store.Query{
		Entity:  schema.Measurement,
		Fields:  []string{"date", field},
		Filters: []store.Filter{{Field: "date", Op: store.GT, Value: r.cutoff}},
		OrderBy: &store.Order{Field: "date"},
	}
}

func (r *repositoryImpl) summary(ctx context.Context, filters ...store.Filter) (types.TemperatureSummary, error) {
	rows, err := r.store.Query(ctx, store.Query{
		Entity:  schema.Measurement,
		Filters: filters,
		Aggregates: []store.Aggregate{
			{Func: store.Min, Field: "tobs"},
			{Func: store.Avg, Field: "tobs"},
			{Func: store.Max, Field: "tobs"},
		},
	})
	if err != nil {
		return types.TemperatureSummary{}, fmt.Errorf("temperature summary: %w", err)
	}
	if len(rows) == 0 {
		return types.TemperatureSummary{TMIN: NoValue, TAVG: NoValue, TMAX: NoValue}, nil
	}
	row := rows[0]
	return types.TemperatureSummary{
		TMIN: stat(row[0]),
		TAVG: stat(row[1]),
		TMAX: stat(row[2]),
	}, nil
}

// ResolveCutoff picks the series cutoff: override when set, else one year
// before the last measurement date, else FallbackCutoff.
func ResolveCutoff(ctx context.Context, q Querier, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	b, err := bounds(ctx, q)
	if err != nil {
		return "", fmt.Errorf("resolve cutoff: %w", err)
	}
	last, err := time.Parse(time.DateOnly, b.Last)
	if err != nil {
		return FallbackCutoff, nil
	}
	return yearBefore(last).Format(time.DateOnly), nil
}

// yearBefore is the same month and day one year earlier, clamped to the end
// of the month: Feb 29 maps to Feb 28.
func yearBefore(t time.Time) time.Time {
	y, m, d := t.Date()
	if last := time.Date(y-1, m+1, 0, 0, 0, 0, 0, time.UTC).Day(); d > last {
		d = last
	}
	return time.Date(y-1, m, d, 0, 0, 0, 0, time.UTC)
}

func bounds(ctx context.Context, q Querier) (types.Bounds, error) {
	rows, err := q.Query(ctx, store.Query{
		Entity: schema.Measurement,
		Aggregates: []store.Aggregate{
			{Func: store.Min, Field: "date"},
			{Func: store.Max, Field: "date"},
		},
	})
	if err != nil {
		return types.Bounds{}, fmt.Errorf("dataset bounds: %w", err)
	}
	if len(rows) == 0 {
		return types.Bounds{}, nil
	}
	return types.Bounds{First: text(rows[0][0]), Last: text(rows[0][1])}, nil
}

func stat(v any) string {
	switch t := v.(type) {
	case nil:
		return NoValue
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func textPtr(v any) *string {
	if v == nil {
		return nil
	}
	s := text(v)
	return &s
}

// measurementValue converts a stored prcp or tobs value. A value that is not
// numeric is logged and rendered as null so one bad row does not fail the
// whole series.
func measurementValue(ctx context.Context, field, date string, v any) *float64 {
	f, err := floatPtr(v)
	if err != nil {
		slog.WarnContext(ctx, "non-numeric measurement value", "field", field, "date", date, "error", err)
		return nil
	}
	return f
}

func stationValue(ctx context.Context, field string, code *string, v any) *float64 {
	f, err := floatPtr(v)
	if err != nil {
		station := ""
		if code != nil {
			station = *code
		}
		slog.WarnContext(ctx, "non-numeric station value", "field", field, "station", station, "error", err)
		return nil
	}
	return f
}

func floatPtr(v any) (*float64, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return &t, nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not numeric", t)
		}
		return &f, nil
	default:
		return nil, fmt.Errorf("unexpected value type %T", v)
	}
}
