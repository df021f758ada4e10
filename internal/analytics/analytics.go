// Package analytics records chat interactions in a local SQLite database and
// aggregates them for the admin dashboard.
//
// Only the sender identifier and a timestamp are stored; message bodies never
// touch disk.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
	// DefaultDSN is the analytics database path used when none is configured.
	DefaultDSN = "data/analytics.db"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Opts holds configuration options for the analytics store.
type Opts struct {
	DSN string
}

// Option defines a configuration option for the analytics store.
type Option func(*Opts)

// WithDSN sets the SQLite database file path.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// Store is an SQLite-backed interaction log.
type Store struct {
	db *sql.DB
}

// DailyCount is one day of the usage trend.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// HourCount is one hour bucket of the peak-hours histogram.
type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// UserCount is one row of the most-active-users list.
type UserCount struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// Summary aggregates the interaction log for the admin dashboard.
type Summary struct {
	TotalInteractions int          `json:"total_interactions"`
	UniqueUsers       int          `json:"unique_users"`
	InteractionsToday int          `json:"interactions_today"`
	DailyTrend        []DailyCount `json:"daily_trend"`
	PeakHours         []HourCount  `json:"peak_hours"`
	TopUsers          []UserCount  `json:"top_users"`
}

// NewStore opens (and creates if needed) the analytics database at the given
// DSN and applies migrations.
func NewStore(opts ...Option) (*Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	dsn := cfg.DSN
	if dsn == "" {
		dsn = DefaultDSN
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create analytics database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create analytics database directory: %w", err)
	}

	slog.Debug("Opening analytics database connection", "dsn", dsn)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open analytics connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("Analytics ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run analytics migrations", "error", err)
		return nil, fmt.Errorf("failed to run analytics migrations: %w", err)
	}
	slog.Debug("Analytics migrations applied successfully")

	return &Store{db: db}, nil
}

// Close closes the analytics database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// LogInteraction records that a user sent a message. Callers treat failures
// as non-fatal; conversation flow never depends on the log.
func (s *Store) LogInteraction(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_logs (user_id, timestamp) VALUES (?, ?)`,
		userID, time.Now().UTC())
	if err != nil {
		slog.Error("Analytics LogInteraction failed", "error", err, "user", userID)
		return fmt.Errorf("failed to log interaction for %s: %w", userID, err)
	}
	return nil
}

// Summarize builds the dashboard aggregate: totals, a 7-day trend, an hourly
// histogram, and the five most active users.
func (s *Store) Summarize(ctx context.Context) (*Summary, error) {
	var sum Summary

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT user_id) FROM chat_logs`).
		Scan(&sum.TotalInteractions, &sum.UniqueUsers); err != nil {
		slog.Error("Analytics totals query failed", "error", err)
		return nil, fmt.Errorf("failed to query analytics totals: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_logs WHERE date(timestamp) = date('now')`).
		Scan(&sum.InteractionsToday); err != nil {
		slog.Error("Analytics today query failed", "error", err)
		return nil, fmt.Errorf("failed to query today's interactions: %w", err)
	}

	trend, err := s.queryDailyTrend(ctx)
	if err != nil {
		return nil, err
	}
	sum.DailyTrend = trend

	hours, err := s.queryPeakHours(ctx)
	if err != nil {
		return nil, err
	}
	sum.PeakHours = hours

	users, err := s.queryTopUsers(ctx)
	if err != nil {
		return nil, err
	}
	sum.TopUsers = users

	slog.Debug("Analytics summary built",
		"total", sum.TotalInteractions, "unique", sum.UniqueUsers, "today", sum.InteractionsToday)
	return &sum, nil
}

func (s *Store) queryDailyTrend(ctx context.Context) ([]DailyCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date(timestamp) AS day, COUNT(*)
		FROM chat_logs
		WHERE timestamp >= datetime('now', '-7 days')
		GROUP BY day
		ORDER BY day ASC`)
	if err != nil {
		slog.Error("Analytics trend query failed", "error", err)
		return nil, fmt.Errorf("failed to query daily trend: %w", err)
	}
	defer rows.Close()

	var trend []DailyCount
	for rows.Next() {
		var d DailyCount
		if err := rows.Scan(&d.Date, &d.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily trend row: %w", err)
		}
		trend = append(trend, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily trend rows: %w", err)
	}
	return trend, nil
}

func (s *Store) queryPeakHours(ctx context.Context) ([]HourCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT CAST(strftime('%H', timestamp) AS INTEGER) AS hour, COUNT(*)
		FROM chat_logs
		GROUP BY hour
		ORDER BY hour ASC`)
	if err != nil {
		slog.Error("Analytics peak hours query failed", "error", err)
		return nil, fmt.Errorf("failed to query peak hours: %w", err)
	}
	defer rows.Close()

	var hours []HourCount
	for rows.Next() {
		var h HourCount
		if err := rows.Scan(&h.Hour, &h.Count); err != nil {
			return nil, fmt.Errorf("failed to scan peak hour row: %w", err)
		}
		hours = append(hours, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate peak hour rows: %w", err)
	}
	return hours, nil
}

func (s *Store) queryTopUsers(ctx context.Context) ([]UserCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, COUNT(*) AS n
		FROM chat_logs
		GROUP BY user_id
		ORDER BY n DESC
		LIMIT 5`)
	if err != nil {
		slog.Error("Analytics top users query failed", "error", err)
		return nil, fmt.Errorf("failed to query top users: %w", err)
	}
	defer rows.Close()

	var users []UserCount
	for rows.Next() {
		var u UserCount
		if err := rows.Scan(&u.UserID, &u.Count); err != nil {
			return nil, fmt.Errorf("failed to scan top user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate top user rows: %w", err)
	}
	return users, nil
}
