package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when an update or lookup matches no row.
var ErrNotFound = errors.New("not found")

// timestamps are stored as fixed-width UTC text so ORDER BY is chronological.
const timeLayout = "2006-01-02 15:04:05.000000000"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS stocks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL UNIQUE,
		company_name TEXT,
		created_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS targets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		stock_id INTEGER NOT NULL REFERENCES stocks(id) ON DELETE CASCADE,
		target_type TEXT NOT NULL,
		target_price TEXT NOT NULL,
		trim_percentage TEXT,
		alert_note TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		is_recurring INTEGER NOT NULL DEFAULT 0,
		is_triggered INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_targets_stock_id ON targets(stock_id);`,
	`CREATE INDEX IF NOT EXISTS idx_targets_active ON targets(is_active);`,
	`CREATE TABLE IF NOT EXISTS alert_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		stock_id INTEGER NOT NULL REFERENCES stocks(id) ON DELETE CASCADE,
		target_id INTEGER NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
		cycle_id TEXT NOT NULL,
		current_price TEXT NOT NULL,
		target_price TEXT NOT NULL,
		target_type TEXT NOT NULL,
		trim_percentage TEXT,
		alert_note TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		triggered_at TEXT NOT NULL,
		UNIQUE (target_id, triggered_at)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_alert_history_stock_id ON alert_history(stock_id);`,
	`CREATE INDEX IF NOT EXISTS idx_alert_history_triggered_at ON alert_history(triggered_at);`,
	`CREATE TABLE IF NOT EXISTS alert_deliveries (
		alert_id INTEGER NOT NULL REFERENCES alert_history(id) ON DELETE CASCADE,
		channel TEXT NOT NULL,
		delivered INTEGER NOT NULL,
		error TEXT,
		attempted_at TEXT NOT NULL,
		PRIMARY KEY (alert_id, channel)
	);`,
	`CREATE TABLE IF NOT EXISTS metrics (
		metric_name TEXT NOT NULL,
		label_key TEXT NOT NULL DEFAULT '',
		label_value TEXT NOT NULL DEFAULT '',
		metric_value REAL NOT NULL,
		PRIMARY KEY (metric_name, label_key, label_value)
	);`,
}

// Store is the watch list, alert history and metrics persistence.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New wraps an already opened connection. The schema is not touched.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// InitDB opens the sqlite file at dbPath and creates the schema.
func InitDB(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	// sqlite serialises writers anyway; one connection avoids SQLITE_BUSY between cycles and readers.
	db.SetMaxOpenConns(1)

	s := New(db)
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	log.WithField("path", dbPath).Info("Database initialized successfully.")
	return s, nil
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to create schema")
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "bad timestamp %q", s)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func mustAffect(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "%s %d", what, id)
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "%s %d", what, id)
	}
	return nil
}
