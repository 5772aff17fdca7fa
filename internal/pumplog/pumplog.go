// Package pumplog stores recorded pump activations in SQLite and answers
// the dashboard's history queries.
package pumplog

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MLPerPump is the volume delivered by one pump activation.
const MLPerPump = 2.6

// timestamps are stored as fixed-width UTC text so string order is time order.
const timeLayout = "2006-01-02T15:04:05.000Z"

// VolumeML converts an activation count to millilitres.
func VolumeML(pumps int64) float64 {
	return float64(pumps) * MLPerPump
}

// Entry is one recorded activation.
type Entry struct {
	ID        int64
	EventID   string
	Timestamp time.Time
	PumpID    string
}

// DayCount is the number of activations on one local calendar day.
type DayCount struct {
	Date  time.Time // local midnight
	Pumps int64
}

// Day returns the date as YYYY-MM-DD.
func (d DayCount) Day() string { return d.Date.Format("2006-01-02") }

// VolumeML returns the water delivered that day.
func (d DayCount) VolumeML() float64 { return VolumeML(d.Pumps) }

// HourCount is the number of activations in one local clock hour.
type HourCount struct {
	Hour  int // 0..23
	Pumps int64
}

// Label returns the hour as HH:00.
func (h HourCount) Label() string { return fmt.Sprintf("%02d:00", h.Hour) }

// VolumeML returns the water delivered in that hour.
func (h HourCount) VolumeML() float64 { return VolumeML(h.Pumps) }

// Point is the running activation total just after one activation.
type Point struct {
	Timestamp time.Time
	Pumps     int64
}

// VolumeML returns the cumulative water delivered up to the point.
func (p Point) VolumeML() float64 { return VolumeML(p.Pumps) }

// Log is the pump history database.
type Log struct {
	conn *sql.DB
	loc  *time.Location
}

// Open opens (or creates) the database and applies pending migrations.
func Open(ctx context.Context, path string) (*Log, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	// Single writer after migration; goose holds its own connection while it runs.
	conn.SetMaxOpenConns(1)

	return &Log{conn: conn, loc: time.Local}, nil
}

func migrate(ctx context.Context, conn *sql.DB) error {
	fsys, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// SetLocation sets the time zone used to split days. Defaults to time.Local.
func (l *Log) SetLocation(loc *time.Location) {
	l.loc = loc
}

// Close closes the database connection.
func (l *Log) Close() error {
	return l.conn.Close()
}

// Record stores one activation at the given time.
func (l *Log) Record(ctx context.Context, pumpID string, at time.Time) (Entry, error) {
	e := Entry{
		EventID:   uuid.NewString(),
		Timestamp: at.UTC().Truncate(time.Millisecond),
		PumpID:    pumpID,
	}
	res, err := l.conn.ExecContext(ctx,
		`INSERT INTO pumplog (event_id, timestamp, pump_id) VALUES (?, ?, ?)`,
		e.EventID, e.Timestamp.Format(timeLayout), e.PumpID)
	if err != nil {
		return Entry{}, fmt.Errorf("insert pumplog: %w", err)
	}
	e.ID, err = res.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("insert pumplog id: %w", err)
	}
	return e, nil
}

// Total returns the number of recorded activations.
func (l *Log) Total(ctx context.Context) (int64, error) {
	var n int64
	if err := l.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM pumplog`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pumplog: %w", err)
	}
	return n, nil
}

// CountSince returns the number of activations at or after t.
func (l *Log) CountSince(ctx context.Context, t time.Time) (int64, error) {
	var n int64
	err := l.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pumplog WHERE timestamp >= ?`,
		t.UTC().Format(timeLayout)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pumplog since: %w", err)
	}
	return n, nil
}

// StartOfDay returns local midnight of the day containing t.
func (l *Log) StartOfDay(t time.Time) time.Time {
	t = t.In(l.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, l.loc)
}

// Daily returns per-day counts for the last days days ending with the day
// containing now, oldest first. Days without activations are included.
func (l *Log) Daily(ctx context.Context, days int, now time.Time) ([]DayCount, error) {
	if days < 1 {
		return nil, nil
	}
	today := l.StartOfDay(now)
	first := today.AddDate(0, 0, -(days - 1))

	out := make([]DayCount, days)
	index := make(map[string]int, days)
	for i := range out {
		out[i].Date = first.AddDate(0, 0, i)
		index[out[i].Day()] = i
	}

	rows, err := l.conn.QueryContext(ctx,
		`SELECT timestamp FROM pumplog WHERE timestamp >= ? ORDER BY timestamp`,
		first.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("query daily: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTimestamp(rows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[t.In(l.loc).Format("2006-01-02")]; ok {
			out[i].Pumps++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily: %w", err)
	}
	return out, nil
}

// Hourly returns 24 per-hour counts for the local day containing now.
func (l *Log) Hourly(ctx context.Context, now time.Time) ([]HourCount, error) {
	start := l.StartOfDay(now)
	end := start.AddDate(0, 0, 1)

	out := make([]HourCount, 24)
	for i := range out {
		out[i].Hour = i
	}

	rows, err := l.conn.QueryContext(ctx,
		`SELECT timestamp FROM pumplog WHERE timestamp >= ? AND timestamp < ?`,
		start.UTC().Format(timeLayout), end.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("query hourly: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTimestamp(rows)
		if err != nil {
			return nil, err
		}
		out[t.In(l.loc).Hour()].Pumps++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hourly: %w", err)
	}
	return out, nil
}

// Cumulative returns one point per activation at or after since, oldest
// first. Totals include activations recorded before since.
func (l *Log) Cumulative(ctx context.Context, since time.Time) ([]Point, error) {
	from := since.UTC().Format(timeLayout)

	var base int64
	if err := l.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pumplog WHERE timestamp < ?`, from).Scan(&base); err != nil {
		return nil, fmt.Errorf("count before %s: %w", from, err)
	}

	rows, err := l.conn.QueryContext(ctx,
		`SELECT timestamp FROM pumplog WHERE timestamp >= ? ORDER BY timestamp, id`, from)
	if err != nil {
		return nil, fmt.Errorf("query cumulative: %w", err)
	}
	defer rows.Close()

	var out []Point
	for rows.Next() {
		t, err := scanTimestamp(rows)
		if err != nil {
			return nil, err
		}
		base++
		out = append(out, Point{Timestamp: t, Pumps: base})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cumulative: %w", err)
	}
	return out, nil
}

func scanTimestamp(rows *sql.Rows) (time.Time, error) {
	var ts string
	if err := rows.Scan(&ts); err != nil {
		return time.Time{}, fmt.Errorf("scan timestamp: %w", err)
	}
	t, err := time.Parse(timeLayout, ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	return t, nil
}

// Recent returns the latest n activations, newest first.
func (l *Log) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := l.conn.QueryContext(ctx,
		`SELECT id, event_id, timestamp, pump_id FROM pumplog ORDER BY timestamp DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &e.EventID, &ts, &e.PumpID); err != nil {
			return nil, fmt.Errorf("scan recent: %w", err)
		}
		e.Timestamp, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent: %w", err)
	}
	return out, nil
}
