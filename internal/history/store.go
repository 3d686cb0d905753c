// Package history persists one append-only record per interaction in a local
// SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS interactions (
	id                       TEXT PRIMARY KEY,
	started_at               TEXT NOT NULL,
	finished_at              TEXT NOT NULL,
	audio_device             TEXT,
	audio_duration_s         REAL,
	transcription_text       TEXT,
	transcription_model      TEXT,
	transcription_duration_s REAL,
	correction_text          TEXT,
	correction_changed       INTEGER,
	correction_duration_s    REAL,
	correction_error         TEXT,
	intent                   TEXT,
	profile                  TEXT,
	trigger_token            TEXT,
	route_source             TEXT,
	routed_text              TEXT,
	response                 TEXT,
	execution_duration_s     REAL,
	output_delivered         INTEGER,
	total_duration_s         REAL NOT NULL,
	completed                INTEGER NOT NULL,
	error_summary            TEXT
);
CREATE INDEX IF NOT EXISTS idx_interactions_started_at ON interactions(started_at);
`

// Store owns the interactions database. All writes go through Commit so each
// session produces exactly one row.
type Store struct {
	db               *sql.DB
	maxResponseChars int
}

// Open creates the database file (and parent directories) and applies the
// schema. WAL keeps the daemon's single writer from blocking CLI readers.
func Open(path string, maxResponseChars int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("history: create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: apply pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}

	return &Store{db: db, maxResponseChars: maxResponseChars}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Commit writes the finished interaction. The response field is truncated to
// the configured bound so a runaway executor cannot bloat the database.
func (s *Store) Commit(ctx context.Context, rec *Interaction) error {
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}

	response := rec.Response
	if response != nil {
		truncated := truncateRunes(*response, s.maxResponseChars)
		response = &truncated
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO interactions (
	id, started_at, finished_at,
	audio_device, audio_duration_s,
	transcription_text, transcription_model, transcription_duration_s,
	correction_text, correction_changed, correction_duration_s, correction_error,
	intent, profile, trigger_token, route_source, routed_text,
	response, execution_duration_s, output_delivered,
	total_duration_s, completed, error_summary
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
		rec.AudioDevice,
		rec.AudioDurationS,
		rec.TranscriptionText,
		rec.TranscriptionModel,
		rec.TranscriptionDurationS,
		rec.CorrectionText,
		rec.CorrectionChanged,
		rec.CorrectionDurationS,
		rec.CorrectionError,
		rec.Intent,
		rec.Profile,
		rec.Trigger,
		rec.RouteSource,
		rec.RoutedText,
		response,
		rec.ExecutionDurationS,
		rec.OutputDelivered,
		rec.FinishedAt.Sub(rec.StartedAt).Seconds(),
		rec.Completed,
		rec.ErrorSummary,
	)
	if err != nil {
		return fmt.Errorf("history: insert interaction: %w", err)
	}
	return nil
}

// Latest returns the most recently started interaction, or nil when the
// database is empty.
func (s *Store) Latest(ctx context.Context) (*Interaction, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT
	id, started_at, finished_at,
	audio_device, audio_duration_s,
	transcription_text, transcription_model, transcription_duration_s,
	correction_text, correction_changed, correction_duration_s, correction_error,
	intent, profile, trigger_token, route_source, routed_text,
	response, execution_duration_s, output_delivered,
	completed, error_summary
FROM interactions
ORDER BY started_at DESC
LIMIT 1`)

	var (
		rec        Interaction
		startedAt  string
		finishedAt string
	)
	err := row.Scan(
		&rec.ID, &startedAt, &finishedAt,
		&rec.AudioDevice, &rec.AudioDurationS,
		&rec.TranscriptionText, &rec.TranscriptionModel, &rec.TranscriptionDurationS,
		&rec.CorrectionText, &rec.CorrectionChanged, &rec.CorrectionDurationS, &rec.CorrectionError,
		&rec.Intent, &rec.Profile, &rec.Trigger, &rec.RouteSource, &rec.RoutedText,
		&rec.Response, &rec.ExecutionDurationS, &rec.OutputDelivered,
		&rec.Completed, &rec.ErrorSummary,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: read latest interaction: %w", err)
	}

	if rec.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("history: parse started_at: %w", err)
	}
	if rec.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
		return nil, fmt.Errorf("history: parse finished_at: %w", err)
	}
	return &rec, nil
}

// Count returns the number of stored interactions.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM interactions").Scan(&n); err != nil {
		return 0, fmt.Errorf("history: count interactions: %w", err)
	}
	return n, nil
}

// truncateRunes bounds text at limit runes without splitting a codepoint.
func truncateRunes(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
