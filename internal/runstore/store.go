// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package runstore persists run checkpoints in a SQLite database. Every
// committed ResearchContext is written through here, so a crashed process can
// reload the last consistent state and resume the loop where it stopped.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/research-orchestrator/pkg/types"
)

const dbFile = "runs.db"

// ErrRunNotFound is returned when no checkpoint exists for the requested run.
var ErrRunNotFound = errors.New("run not found")

// Store manages the runs SQLite database.
type Store struct {
	db *sql.DB
}

// RunInfo is the lightweight listing row for a stored run.
type RunInfo struct {
	RunID         string                  `json:"run_id" yaml:"run_id"`
	CorrelationID string                  `json:"correlation_id,omitempty" yaml:"correlation_id,omitempty"`
	Query         string                  `json:"query" yaml:"query"`
	Status        types.RunStatus         `json:"status" yaml:"status"`
	Reason        types.TerminationReason `json:"reason,omitempty" yaml:"reason,omitempty"`
	Iteration     int                     `json:"iteration" yaml:"iteration"`
	Papers        int                     `json:"papers" yaml:"papers"`
	StartedAt     time.Time               `json:"started_at" yaml:"started_at"`
	UpdatedAt     time.Time               `json:"updated_at" yaml:"updated_at"`
}

// Open opens or creates the runs database at dir/runs.db, creating the
// schema if needed.
func Open(cfg types.StoreConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	dbPath := filepath.Join(cfg.Dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			correlation_id TEXT,
			user_id TEXT,
			query TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT,
			iteration INTEGER NOT NULL DEFAULT 0,
			papers INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			context TEXT NOT NULL
		)`,
		// One run per correlation id makes duplicate submissions idempotent.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_runs_correlation
			ON runs(correlation_id) WHERE correlation_id != ''`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Save upserts one committed context. The full context is stored as JSON
// alongside the indexed listing columns.
func (s *Store) Save(ctx context.Context, c types.ResearchContext) error {
	blob, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding context for run %s: %w", c.RunID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, correlation_id, user_id, query, status, reason, iteration, papers, started_at, updated_at, context)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
			status=excluded.status, reason=excluded.reason,
			iteration=excluded.iteration, papers=excluded.papers,
			updated_at=excluded.updated_at, context=excluded.context`,
		c.RunID, c.CorrelationID, c.UserID, c.Query,
		string(c.Status), string(c.Reason), c.Iteration, len(c.Papers),
		c.StartedAt.UTC().Format(time.RFC3339Nano),
		c.LastUpdatedAt.UTC().Format(time.RFC3339Nano),
		string(blob),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", c.RunID, err)
	}
	return nil
}

// Load returns the stored context for runID, or ErrRunNotFound.
func (s *Store) Load(ctx context.Context, runID string) (types.ResearchContext, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT context FROM runs WHERE run_id = ?`, runID,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ResearchContext{}, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return types.ResearchContext{}, fmt.Errorf("loading run %s: %w", runID, err)
	}

	var c types.ResearchContext
	if err := json.Unmarshal([]byte(blob), &c); err != nil {
		return types.ResearchContext{}, fmt.Errorf("decoding run %s: %w", runID, err)
	}
	return c, nil
}

// FindByCorrelation returns the run id stored for a correlation id, or
// ErrRunNotFound when no run carries it.
func (s *Store) FindByCorrelation(ctx context.Context, correlationID string) (string, error) {
	if correlationID == "" {
		return "", fmt.Errorf("empty correlation id: %w", ErrRunNotFound)
	}
	var runID string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id FROM runs WHERE correlation_id = ?`, correlationID,
	).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("correlation %s: %w", correlationID, ErrRunNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("looking up correlation %s: %w", correlationID, err)
	}
	return runID, nil
}

// List returns listing rows for all stored runs, most recently updated first.
func (s *Store) List(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, correlation_id, query, status, reason, iteration, papers, started_at, updated_at
		 FROM runs ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var infos []RunInfo
	for rows.Next() {
		var info RunInfo
		var status, reason, started, updated string
		if err := rows.Scan(&info.RunID, &info.CorrelationID, &info.Query,
			&status, &reason, &info.Iteration, &info.Papers, &started, &updated); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		info.Status = types.RunStatus(status)
		info.Reason = types.TerminationReason(reason)
		info.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Resumable returns listing rows for runs whose last committed status is not
// terminal. These are the candidates for crash recovery.
func (s *Store) Resumable(ctx context.Context) ([]RunInfo, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var open []RunInfo
	for _, info := range all {
		if !info.Status.Terminal() {
			open = append(open, info)
		}
	}
	return open, nil
}

// Delete removes a stored run. Deleting an unknown run is not an error.
func (s *Store) Delete(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("deleting run %s: %w", runID, err)
	}
	return nil
}
