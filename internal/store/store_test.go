package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scheaton/sqlalchemy-challenge/internal/schema"
	"github.com/scheaton/sqlalchemy-challenge/internal/store/storetest"
)

func seeded(t *testing.T) (*Store, *sqlx.DB) {
	t.Helper()
	db := storetest.New(t)
	storetest.SeedStations(t, db,
		storetest.Station{Code: "USC00519397", Name: "WAIKIKI 717.2, HI US", Latitude: 21.2716, Longitude: -157.8168, Elevation: 3},
		storetest.Station{Code: "USC00513117", Name: "KANEOHE 838.1, HI US", Latitude: 21.4234, Longitude: -157.8015, Elevation: 14.6},
	)
	storetest.SeedMeasurements(t, db,
		storetest.Measurement{Station: "USC00519397", Date: "2016-08-25", Prcp: nil, Tobs: storetest.F(62)},
		storetest.Measurement{Station: "USC00519397", Date: "2016-08-23", Prcp: storetest.F(0), Tobs: storetest.F(81)},
		storetest.Measurement{Station: "USC00513117", Date: "2016-08-24", Prcp: storetest.F(0.01), Tobs: storetest.F(58)},
		storetest.Measurement{Station: "USC00513117", Date: "2016-08-25", Prcp: storetest.F(0.2), Tobs: nil},
	)
	return New(db), db
}

func TestQuery_ProjectionFilterOrder(t *testing.T) {
	s, _ := seeded(t)

	rows, err := s.Query(context.Background(), Query{
		Entity:  schema.Measurement,
		Fields:  []string{"date", "prcp"},
		Filters: []Filter{{Field: "date", Op: GT, Value: "2016-08-23"}},
		OrderBy: &Order{Field: "date"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, Row{"2016-08-24", 0.01}, rows[0])
	assert.Equal(t, "2016-08-25", rows[1][0])
	assert.Equal(t, "2016-08-25", rows[2][0])
	assert.ElementsMatch(t, []any{nil, 0.2}, []any{rows[1][1], rows[2][1]})
}

func TestQuery_Comparators(t *testing.T) {
	s, _ := seeded(t)

	tests := []struct {
		op   Comparator
		want int
	}{
		{op: GT, want: 2},
		{op: GTE, want: 3},
		{op: LT, want: 1},
		{op: LTE, want: 2},
		{op: EQ, want: 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			rows, err := s.Query(context.Background(), Query{
				Entity:  schema.Measurement,
				Fields:  []string{"date"},
				Filters: []Filter{{Field: "date", Op: tt.op, Value: "2016-08-24"}},
			})
			require.NoError(t, err)
			assert.Len(t, rows, tt.want)
		})
	}
}

func TestQuery_AllFieldsInStorageOrder(t *testing.T) {
	s, _ := seeded(t)

	rows, err := s.Query(context.Background(), Query{Entity: schema.Station})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{"USC00519397", "WAIKIKI 717.2, HI US", 21.2716, -157.8168, 3.0}, rows[0])
	assert.Equal(t, "USC00513117", rows[1][0])
}

func TestQuery_AggregatesSkipNulls(t *testing.T) {
	s, _ := seeded(t)

	rows, err := s.Query(context.Background(), Query{
		Entity:  schema.Measurement,
		Filters: []Filter{{Field: "date", Op: GTE, Value: "2016-08-24"}},
		Aggregates: []Aggregate{
			{Func: Min, Field: "tobs"},
			{Func: Avg, Field: "tobs"},
			{Func: Max, Field: "tobs"},
			{Func: Max, Field: "date"},
		},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 58.0, rows[0][0])
	assert.Equal(t, 60.0, rows[0][1])
	assert.Equal(t, 62.0, rows[0][2])
	assert.Equal(t, "2016-08-25", rows[0][3])
}

func TestQuery_AggregateOverEmptySetIsNull(t *testing.T) {
	s, _ := seeded(t)

	rows, err := s.Query(context.Background(), Query{
		Entity:     schema.Measurement,
		Filters:    []Filter{{Field: "date", Op: GTE, Value: "2099-01-01"}},
		Aggregates: []Aggregate{{Func: Min, Field: "tobs"}, {Func: Avg, Field: "tobs"}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Row{nil, nil}, rows[0])
}

func TestQuery_Malformed(t *testing.T) {
	s, _ := seeded(t)

	tests := []struct {
		name string
		q    Query
	}{
		{name: "unknown entity", q: Query{Entity: schema.Table{Name: "users"}}},
		{name: "zero entity", q: Query{}},
		{name: "unknown field", q: Query{Entity: schema.Measurement, Fields: []string{"humidity"}}},
		{name: "field from other entity", q: Query{Entity: schema.Station, Fields: []string{"tobs"}}},
		{name: "unknown filter field", q: Query{Entity: schema.Measurement, Filters: []Filter{{Field: "x", Op: GT, Value: 1}}}},
		{name: "bad comparator", q: Query{Entity: schema.Measurement, Filters: []Filter{{Field: "date", Op: "LIKE", Value: "2016%"}}}},
		{name: "unknown order field", q: Query{Entity: schema.Measurement, OrderBy: &Order{Field: "id; DROP TABLE station"}}},
		{name: "bad aggregate", q: Query{Entity: schema.Measurement, Aggregates: []Aggregate{{Func: "sum", Field: "tobs"}}}},
		{name: "aggregate and projection", q: Query{Entity: schema.Measurement, Fields: []string{"date"}, Aggregates: []Aggregate{{Func: Min, Field: "tobs"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Query(context.Background(), tt.q)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrQueryExecution), "err = %v", err)
		})
	}
}

func TestQuery_ReleasesConnectionOnEveryPath(t *testing.T) {
	s, db := seeded(t)
	ctx := context.Background()

	_, err := s.Query(ctx, Query{Entity: schema.Measurement, Fields: []string{"date"}})
	require.NoError(t, err)
	assert.Zero(t, db.Stats().InUse, "after success")

	_, err = db.Exec(`ALTER TABLE station RENAME TO station_old`)
	require.NoError(t, err)
	_, err = s.Query(ctx, Query{Entity: schema.Station})
	require.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Zero(t, db.Stats().InUse, "after failure")
}

func TestQuery_ConcurrentCallsUseOwnConnections(t *testing.T) {
	s, db := seeded(t)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := s.Query(context.Background(), Query{
				Entity:  schema.Measurement,
				Fields:  []string{"date", "tobs"},
				OrderBy: &Order{Field: "date"},
			})
			if err == nil && len(rows) != 4 {
				err = errors.New("unexpected row count")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Zero(t, db.Stats().InUse)
}

func TestQuery_CancelledContext(t *testing.T) {
	s, _ := seeded(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Query(ctx, Query{Entity: schema.Measurement})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQuery_SQLMock(t *testing.T) {
	t.Run("builds bound sql", func(t *testing.T) {
		mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		require.NoError(t, err)
		defer mockDB.Close()

		mock.ExpectQuery("SELECT min(tobs), avg(tobs), max(tobs) FROM measurement WHERE date >= ? AND date <= ?").
			WithArgs("2017-01-01", "2017-01-31").
			WillReturnRows(sqlmock.NewRows([]string{"min", "avg", "max"}).AddRow(int64(60), 70.5, []byte("80")))

		s := New(sqlx.NewDb(mockDB, "sqlmock"))
		rows, err := s.Query(context.Background(), Query{
			Entity: schema.Measurement,
			Filters: []Filter{
				{Field: "date", Op: GTE, Value: "2017-01-01"},
				{Field: "date", Op: LTE, Value: "2017-01-31"},
			},
			Aggregates: []Aggregate{{Func: Min, Field: "tobs"}, {Func: Avg, Field: "tobs"}, {Func: Max, Field: "tobs"}},
		})
		require.NoError(t, err)
		// int64 widens to float64; bytes in a real column pass through as text.
		assert.Equal(t, []Row{{60.0, 70.5, "80"}}, rows)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure is storage unavailable", func(t *testing.T) {
		mockDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer mockDB.Close()

		mock.ExpectQuery("SELECT").WillReturnError(errors.New("disk I/O error"))

		s := New(sqlx.NewDb(mockDB, "sqlmock"))
		_, err = s.Query(context.Background(), Query{Entity: schema.Station})
		require.ErrorIs(t, err, ErrStorageUnavailable)
		assert.Contains(t, err.Error(), "disk I/O error")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("row error is storage unavailable", func(t *testing.T) {
		mockDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer mockDB.Close()

		mock.ExpectQuery("SELECT").WillReturnRows(
			sqlmock.NewRows([]string{"date"}).AddRow("2017-01-01").RowError(0, errors.New("corrupt page")),
		)

		s := New(sqlx.NewDb(mockDB, "sqlmock"))
		_, err = s.Query(context.Background(), Query{Entity: schema.Measurement, Fields: []string{"date"}})
		require.ErrorIs(t, err, ErrStorageUnavailable)
	})

	t.Run("ping failure is storage unavailable", func(t *testing.T) {
		mockDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer mockDB.Close()

		mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("gone"))

		s := New(sqlx.NewDb(mockDB, "sqlmock"))
		require.ErrorIs(t, s.Ping(context.Background()), ErrStorageUnavailable)
	})
}

func TestPingAndVerify(t *testing.T) {
	s, db := seeded(t)
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Verify(ctx))

	_, err := db.Exec(`DROP TABLE measurement`)
	require.NoError(t, err)
	err = s.Verify(ctx)
	require.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, schema.ErrMismatch)
}

func Test_normalize(t *testing.T) {
	tests := []struct {
		name string
		kind schema.Kind
		in   any
		want any
	}{
		{name: "nil", kind: schema.KindReal, in: nil, want: nil},
		{name: "real float", kind: schema.KindReal, in: 1.5, want: 1.5},
		{name: "real int widens", kind: schema.KindReal, in: int64(70), want: 70.0},
		{name: "text bytes", kind: schema.KindText, in: []byte("USC00519397"), want: "USC00519397"},
		{name: "text int", kind: schema.KindText, in: int64(2017), want: "2017"},
		{name: "text float", kind: schema.KindText, in: 3.25, want: "3.25"},
		{name: "real holding text passes through", kind: schema.KindReal, in: "T", want: "T"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalize(tt.kind, tt.in))
		})
	}
}
