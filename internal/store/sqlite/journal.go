// Package sqlite keeps a journal of raised alerts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"marketdash/internal/model"
)

// Config configures the journal.
type Config struct {
	DBPath string // e.g. "data/alerts.db"; ":memory:" for tests
}

// Journal is an append-only alert log deduplicated by alert key. It
// implements model.AlertJournal.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the journal database in WAL mode.
func Open(cfg Config) (*Journal, error) {
	dsn := cfg.DBPath + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	if cfg.DBPath == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("[sqlite] opened alert journal", "path", cfg.DBPath)
	return &Journal{db: db, now: time.Now}, nil
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS alerts (
			key        TEXT    PRIMARY KEY,
			id         TEXT    NOT NULL,
			symbol     TEXT    NOT NULL,
			type       TEXT    NOT NULL,
			severity   TEXT    NOT NULL,
			timeframe  TEXT    NOT NULL DEFAULT '',
			message    TEXT    NOT NULL,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_symbol_created
			ON alerts (symbol, created_at DESC);
	`)
	return err
}

// Record inserts alerts whose key is not yet journaled and returns how many
// were new. The whole batch is one transaction.
func (j *Journal) Record(ctx context.Context, alerts []model.Alert) (int, error) {
	if len(alerts) == 0 {
		return 0, nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO alerts (key, id, symbol, type, severity, timeframe, message, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	created := j.now().UnixMilli()
	inserted := 0
	for i := range alerts {
		a := &alerts[i]
		res, err := stmt.ExecContext(ctx, a.Key(), a.ID, strings.ToUpper(a.Symbol), string(a.Type),
			string(a.Severity), string(a.Timeframe), a.Message, string(a.JSON()), created)
		if err != nil {
			return 0, fmt.Errorf("sqlite insert alert %s: %w", a.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite commit: %w", err)
	}
	return inserted, nil
}

// Recent returns up to limit journaled alerts for symbol, newest first.
// An empty symbol matches every symbol.
func (j *Journal) Recent(ctx context.Context, symbol string, limit int) ([]model.Alert, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT data FROM alerts`
	args := []any{}
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, strings.ToUpper(symbol))
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []model.Alert{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite scan alert: %w", err)
		}
		var a model.Alert
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, fmt.Errorf("sqlite decode alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Prune deletes entries older than the cutoff and returns how many were
// removed.
func (j *Journal) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := j.now().Add(-olderThan).UnixMilli()
	res, err := j.db.ExecContext(ctx, `DELETE FROM alerts WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite prune: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
