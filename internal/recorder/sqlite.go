package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists refresh history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

var _ Recorder = (*SQLiteRecorder)(nil)

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so external readers don't block inserts.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS refresh_cycles (
			id           TEXT PRIMARY KEY,
			trigger_kind TEXT NOT NULL,
			started_at   INTEGER NOT NULL,
			duration_ms  INTEGER NOT NULL,
			attempted    INTEGER NOT NULL,
			succeeded    INTEGER NOT NULL,
			failed       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_started ON refresh_cycles(started_at)`,

		`CREATE TABLE IF NOT EXISTS cycle_quotes (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id TEXT NOT NULL REFERENCES refresh_cycles(id),
			symbol   TEXT NOT NULL,
			price    REAL,
			error    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quotes_cycle ON cycle_quotes(cycle_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordCycle inserts one cycle row plus one row per fetched quote,
// atomically.
func (r *SQLiteRecorder) RecordCycle(rec *CycleRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO refresh_cycles
		(id, trigger_kind, started_at, duration_ms, attempted, succeeded, failed)
		VALUES (?,?,?,?,?,?,?)`,
		rec.ID.String(), rec.Trigger, rec.StartedAt.Unix(),
		rec.Duration.Milliseconds(), rec.Attempted, rec.Succeeded, rec.Failed,
	)
	if err != nil {
		return err
	}

	for _, q := range rec.Quotes {
		if _, err := tx.Exec(`INSERT INTO cycle_quotes
			(cycle_id, symbol, price, error)
			VALUES (?,?,?,?)`,
			rec.ID.String(), q.Symbol, q.Price, q.Error,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}
