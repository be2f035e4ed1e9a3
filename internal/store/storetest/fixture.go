// Package storetest builds throwaway in-memory climate databases for tests.
package storetest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/scheaton/sqlalchemy-challenge/internal/schema"
)

var seq atomic.Int64

type Station struct {
	Code      string
	Name      string
	Latitude  float64
	Longitude float64
	Elevation float64
}

type Measurement struct {
	Station string
	Date    string
	Prcp    *float64
	Tobs    *float64
}

// F returns a pointer to v, for nullable measurement fields.
func F(v float64) *float64 { return &v }

// New opens a named shared-cache in-memory database with the climate schema
// applied. Every connection in the pool sees the same data, so the store's
// connection-per-call behaviour is exercised for real.
func New(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:climate_%d?mode=memory&cache=shared", seq.Add(1))
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Keep one idle connection so the shared in-memory database outlives
	// every borrowed connection.
	db.SetMaxIdleConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})
	if err := schema.Apply(context.Background(), db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

func SeedStations(t *testing.T, db *sqlx.DB, stations ...Station) {
	t.Helper()
	for _, s := range stations {
		_, err := db.Exec(
			`INSERT INTO station (station, name, latitude, longitude, elevation) VALUES (?, ?, ?, ?, ?)`,
			s.Code, s.Name, s.Latitude, s.Longitude, s.Elevation,
		)
		if err != nil {
			t.Fatalf("insert station %s: %v", s.Code, err)
		}
	}
}

func SeedMeasurements(t *testing.T, db *sqlx.DB, measurements ...Measurement) {
	t.Helper()
	for _, m := range measurements {
		_, err := db.Exec(
			`INSERT INTO measurement (station, date, prcp, tobs) VALUES (?, ?, ?, ?)`,
			m.Station, m.Date, m.Prcp, m.Tobs,
		)
		if err != nil {
			t.Fatalf("insert measurement %s/%s: %v", m.Station, m.Date, err)
		}
	}
}
