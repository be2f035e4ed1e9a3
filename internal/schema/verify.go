package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrMismatch reports that the opened database lacks a table or column the
// service reads.
var ErrMismatch = errors.New("schema mismatch")

// Verify checks that every table in Tables exists with all of its fields.
func Verify(ctx context.Context, db DB) error {
	for _, t := range Tables {
		cols, err := columns(ctx, db, t.Name)
		if err != nil {
			return fmt.Errorf("inspect table %s: %w", t.Name, err)
		}
		if len(cols) == 0 {
			return fmt.Errorf("%w: table %s not found", ErrMismatch, t.Name)
		}
		var missing []string
		for _, f := range t.Fields {
			if !cols[f.Name] {
				missing = append(missing, f.Name)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: table %s missing columns %s", ErrMismatch, t.Name, strings.Join(missing, ", "))
		}
	}
	return nil
}

func columns(ctx context.Context, db DB, table string) (map[string]bool, error) {
	// Table names come from the static Tables list, never from input.
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close table_info rows", "table", table, "error", err)
		}
	}()

	out := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		out[strings.ToLower(name)] = true
	}
	return out, rows.Err()
}
