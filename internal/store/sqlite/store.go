package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite series store.
type Config struct {
	DBPath   string // path to SQLite database file, e.g. "data/observations.db"
	MaxConns int    // pool size; WAL allows concurrent readers with one writer
}

// Store keeps every observation as a row; the autoincrement id is the append
// order. database/sql owns the connection pool and each method holds a
// connection only for the duration of its statement or transaction.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("sqlite opened", "path", cfg.DBPath, "max_conns", maxConns)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS observations (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT    NOT NULL,
			value  REAL    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_observations_symbol_id
			ON observations (symbol, id);
	`)
	return err
}

// Append inserts one observation.
func (s *Store) Append(ctx context.Context, symbol string, value float64) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO observations (symbol, value) VALUES (?, ?)`, symbol, value); err != nil {
		return fmt.Errorf("sqlite insert %s: %w", symbol, err)
	}
	return nil
}

// AppendBatch inserts values in order inside one transaction.
func (s *Store) AppendBatch(ctx context.Context, symbol string, values []float64) error {
	if len(values) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO observations (symbol, value) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, v := range values {
		if _, err := stmt.ExecContext(ctx, symbol, v); err != nil {
			return fmt.Errorf("sqlite insert %s: %w", symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}

// RangeFromTail returns the newest count values in ascending append order.
func (s *Store) RangeFromTail(ctx context.Context, symbol string, count int) ([]float64, error) {
	if count <= 0 {
		return []float64{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT value FROM (
			SELECT id, value FROM observations
			WHERE symbol = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`, symbol, count)
	if err != nil {
		return nil, fmt.Errorf("sqlite query %s: %w", symbol, err)
	}
	defer rows.Close()

	values := make([]float64, 0)
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("sqlite scan %s: %w", symbol, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
