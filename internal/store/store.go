// Package store persists a delivery audit trail in SQLite.
//
// Every relay attempt is recorded so operators can answer "did the
// attribution for execution X ever reach n8n, and what came back".
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/attribot/attribot/internal/logging"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// Delivery is one audited relay attempt.
type Delivery struct {
	ID              string            `json:"id"`
	CreatedAt       time.Time         `json:"created_at"`
	Command         string            `json:"command"`
	ExecutionID     string            `json:"execution_id"`
	TranscriptionID string            `json:"transcription_id"`
	Speakers        map[string]string `json:"speakers"`
	Outcome         string            `json:"outcome"`
	HTTPStatus      int               `json:"http_status"`
	Error           string            `json:"error,omitempty"`
	DiscordUser     string            `json:"discord_user"`
}

// Store is a SQLite-backed delivery audit log. It implements
// lifecycle.Component; the database opens on Start and closes on Stop.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	logger *logging.Logger
}

// New creates a store writing to the SQLite database at path.
func New(path string) *Store {
	return &Store{
		path:   path,
		logger: logging.GetLogger("store"),
	}
}

// Start opens the database and applies the schema.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open delivery store %q: %w", s.path, err)
	}

	// WAL mode must be set via PRAGMA for modernc.org/sqlite; DSN params
	// may be ignored.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	schema := `
CREATE TABLE IF NOT EXISTS deliveries (
	id               TEXT PRIMARY KEY,
	created_at       INTEGER NOT NULL,
	command          TEXT NOT NULL,
	execution_id     TEXT NOT NULL,
	transcription_id TEXT NOT NULL,
	speakers         TEXT NOT NULL,
	outcome          TEXT NOT NULL,
	http_status      INTEGER NOT NULL DEFAULT 0,
	error            TEXT NOT NULL DEFAULT '',
	discord_user     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_deliveries_created_at ON deliveries(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_deliveries_execution ON deliveries(execution_id);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("apply delivery schema: %w", err)
	}

	s.db = db
	s.logger.Info("Delivery store opened at %s", s.path)
	return nil
}

// Stop closes the database.
func (s *Store) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Name implements lifecycle.Component.
func (s *Store) Name() string { return "store" }

// Record persists one delivery attempt.
func (s *Store) Record(ctx context.Context, d Delivery) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return fmt.Errorf("delivery store is not open")
	}

	speakers, err := json.Marshal(d.Speakers)
	if err != nil {
		return fmt.Errorf("marshal speakers: %w", err)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO deliveries
	(id, created_at, command, execution_id, transcription_id, speakers, outcome, http_status, error, discord_user)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.CreatedAt.UnixMilli(), d.Command, d.ExecutionID, d.TranscriptionID,
		string(speakers), d.Outcome, d.HTTPStatus, d.Error, d.DiscordUser,
	)
	if err != nil {
		return fmt.Errorf("insert delivery %s: %w", d.ID, err)
	}
	return nil
}

// Recent returns the newest deliveries, at most limit (default 50, max 500).
func (s *Store) Recent(ctx context.Context, limit int) ([]Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("delivery store is not open")
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, created_at, command, execution_id, transcription_id, speakers, outcome, http_status, error, discord_user
FROM deliveries ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []Delivery
	for rows.Next() {
		var d Delivery
		var createdMilli int64
		var speakers string
		if err := rows.Scan(&d.ID, &createdMilli, &d.Command, &d.ExecutionID, &d.TranscriptionID,
			&speakers, &d.Outcome, &d.HTTPStatus, &d.Error, &d.DiscordUser); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		d.CreatedAt = time.UnixMilli(createdMilli)
		if err := json.Unmarshal([]byte(speakers), &d.Speakers); err != nil {
			s.logger.Warn("Corrupt speakers JSON for delivery %s: %v", d.ID, err)
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// CountByOutcome returns delivery counts grouped by outcome.
func (s *Store) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("delivery store is not open")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM deliveries GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("count deliveries: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[outcome] = count
	}
	return counts, rows.Err()
}
