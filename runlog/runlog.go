// Package runlog records training runs in a SQLite database.
package runlog

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/brensch/fvi/vfa"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS train_runs (
	run_id      TEXT PRIMARY KEY,
	label       TEXT,
	started_at  TEXT NOT NULL,
	duration_ms REAL NOT NULL,
	instances   INTEGER NOT NULL,
	attributes  INTEGER NOT NULL,
	model       TEXT,
	error       TEXT
);

CREATE INDEX IF NOT EXISTS train_runs_started ON train_runs(started_at);
`

// Run is a stored training report.
type Run struct {
	ID         string
	Label      string
	StartedAt  time.Time
	Duration   time.Duration
	Instances  int
	Attributes int
	Model      string
	// Error is empty for successful runs.
	Error string
}

// Store manages the run ledger.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the ledger at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a report under a new run ID and returns the ID.
func (s *Store) Record(label string, r vfa.TrainReport) (string, error) {
	id := uuid.New().String()
	started := r.Started
	if started.IsZero() {
		started = time.Now()
	}
	var errText any
	if r.Err != nil {
		errText = r.Err.Error()
	}

	_, err := s.db.Exec(
		`INSERT INTO train_runs (run_id, label, started_at, duration_ms, instances, attributes, model, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, nullIfEmpty(label), started.UTC().Format(time.RFC3339Nano),
		float64(r.Duration)/float64(time.Millisecond), r.Instances, r.Attributes,
		nullIfEmpty(r.Model), errText,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// Get returns a single run by ID.
func (s *Store) Get(id string) (Run, error) {
	row := s.db.QueryRow(
		`SELECT run_id, label, started_at, duration_ms, instances, attributes, model, error
		 FROM train_runs WHERE run_id = ?`, id)
	r, err := scanRun(row)
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return r, nil
}

// Recent returns up to n runs, newest first.
func (s *Store) Recent(n int) ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT run_id, label, started_at, duration_ms, instances, attributes, model, error
		 FROM train_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Observer returns a vfa.Observer that records every report under label.
// Write failures are logged, not returned, since Train has already finished.
func (s *Store) Observer(label string, logger *slog.Logger) vfa.Observer {
	return vfa.ObserverFunc(func(r vfa.TrainReport) {
		id, err := s.Record(label, r)
		if err != nil {
			if logger != nil {
				logger.Error("record training run", "error", err)
			}
			return
		}
		if logger != nil {
			logger.Debug("recorded training run", "run_id", id)
		}
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var r Run
	var label, model, errText sql.NullString
	var started string
	var durationMs float64
	if err := sc.Scan(&r.ID, &label, &started, &durationMs, &r.Instances, &r.Attributes, &model, &errText); err != nil {
		return Run{}, err
	}
	r.Label = label.String
	r.Model = model.String
	r.Error = errText.String
	r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	r.Duration = time.Duration(durationMs * float64(time.Millisecond))
	return r, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
