// Package archive keeps completed hourly and daily rain totals in SQLite so
// the history survives beyond the single day the persistent record holds.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const (
	hourLayout = "2006-01-02 15:00"
	dayLayout  = "2006-01-02"
)

// Hour is a completed hourly bucket.
type Hour struct {
	Start time.Time
	MM    float64
}

// Day is a completed day total.
type Day struct {
	Date time.Time
	MM   float64
}

// Archive wraps the database connection
type Archive struct {
	conn *sql.DB
}

// Open opens (or creates) the archive at path and initializes the schema.
func Open(path string) (*Archive, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	// One writer; avoids SQLITE_BUSY between the run loop and HTTP readers.
	conn.SetMaxOpenConns(1)

	a := &Archive{conn: conn}
	if err := a.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return a, nil
}

// Close closes the database connection
func (a *Archive) Close() error {
	return a.conn.Close()
}

func (a *Archive) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rain_hourly (
		hour_start TEXT PRIMARY KEY,
		mm REAL NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS rain_daily (
		date TEXT PRIMARY KEY,
		mm REAL NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := a.conn.Exec(schema)
	return err
}

// RecordHour stores the total for the hour starting at start. A second
// record for the same hour replaces the first.
func (a *Archive) RecordHour(ctx context.Context, start time.Time, mm float64) error {
	query := `
	INSERT INTO rain_hourly (hour_start, mm, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(hour_start) DO UPDATE SET mm = excluded.mm, updated_at = excluded.updated_at
	`
	_, err := a.conn.ExecContext(ctx, query, start.Format(hourLayout), mm, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording hour: %w", err)
	}
	return nil
}

// RecordDay stores the total for date's calendar day.
func (a *Archive) RecordDay(ctx context.Context, date time.Time, mm float64) error {
	query := `
	INSERT INTO rain_daily (date, mm, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(date) DO UPDATE SET mm = excluded.mm, updated_at = excluded.updated_at
	`
	_, err := a.conn.ExecContext(ctx, query, date.Format(dayLayout), mm, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording day: %w", err)
	}
	return nil
}

// RecentHours returns up to n hours, newest first.
func (a *Archive) RecentHours(ctx context.Context, n int) ([]Hour, error) {
	rows, err := a.conn.QueryContext(ctx, `SELECT hour_start, mm FROM rain_hourly ORDER BY hour_start DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying hours: %w", err)
	}
	defer rows.Close()

	var results []Hour
	for rows.Next() {
		var s string
		var h Hour
		if err := rows.Scan(&s, &h.MM); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		h.Start, err = time.Parse(hourLayout, s)
		if err != nil {
			return nil, fmt.Errorf("parsing hour_start: %w", err)
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// RecentDays returns up to n days, newest first.
func (a *Archive) RecentDays(ctx context.Context, n int) ([]Day, error) {
	rows, err := a.conn.QueryContext(ctx, `SELECT date, mm FROM rain_daily ORDER BY date DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying days: %w", err)
	}
	defer rows.Close()

	var results []Day
	for rows.Next() {
		var s string
		var d Day
		if err := rows.Scan(&s, &d.MM); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		d.Date, err = time.Parse(dayLayout, s)
		if err != nil {
			return nil, fmt.Errorf("parsing date: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}
