package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"bp-hedge-bot/internal/state"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS cycles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pair TEXT NOT NULL,
			short_outcome TEXT NOT NULL,
			long_outcome TEXT NOT NULL,
			monitor_outcome TEXT NOT NULL,
			target_size REAL NOT NULL,
			filled_size REAL NOT NULL,
			entry_price REAL NOT NULL,
			take_profits INTEGER NOT NULL,
			swept INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			started_at_ms INTEGER NOT NULL,
			finished_at_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_pair ON cycles (pair, started_at_ms)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// InsertCycle appends one finished cycle to the history table.
func (s *Store) InsertCycle(ctx context.Context, snapshot state.CycleSnapshot) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO cycles (
		pair, short_outcome, long_outcome, monitor_outcome,
		target_size, filled_size, entry_price, take_profits, swept,
		failed, error, started_at_ms, finished_at_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snapshot.Pair,
		snapshot.ShortOutcome,
		snapshot.LongOutcome,
		snapshot.MonitorOutcome,
		snapshot.TargetSize,
		snapshot.FilledSize,
		snapshot.EntryPrice,
		snapshot.TakeProfits,
		snapshot.Swept,
		boolToInt(snapshot.Failed),
		snapshot.Error,
		snapshot.StartedAtMS,
		snapshot.FinishedAtMS,
	)
	return err
}

// RecentCycles returns up to limit cycles for a pair, newest first.
func (s *Store) RecentCycles(ctx context.Context, pair string, limit int) ([]state.CycleSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		pair, short_outcome, long_outcome, monitor_outcome,
		target_size, filled_size, entry_price, take_profits, swept,
		failed, error, started_at_ms, finished_at_ms
	FROM cycles WHERE pair = ? ORDER BY started_at_ms DESC LIMIT ?`, pair, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []state.CycleSnapshot
	for rows.Next() {
		var c state.CycleSnapshot
		var failed int
		if err := rows.Scan(
			&c.Pair, &c.ShortOutcome, &c.LongOutcome, &c.MonitorOutcome,
			&c.TargetSize, &c.FilledSize, &c.EntryPrice, &c.TakeProfits, &c.Swept,
			&failed, &c.Error, &c.StartedAtMS, &c.FinishedAtMS,
		); err != nil {
			return nil, err
		}
		c.Failed = failed != 0
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
