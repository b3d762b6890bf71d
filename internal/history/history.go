// Package history keeps an append-only SQLite log of training runs.
package history

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/YuminosukeSato/exoplanet-classifier/internal/pipeline"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS training_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    model_type VARCHAR(32) NOT NULL,
    accuracy REAL,
    precision REAL,
    recall REAL,
    f1_score REAL,
    n_samples INTEGER,
    n_features INTEGER,
    test_size REAL,
    duration_ms INTEGER,
    trained_at DATETIME NOT NULL,
    UNIQUE(run_id)
);
CREATE INDEX IF NOT EXISTS idx_training_log_trained_at ON training_log(trained_at);
`

// DefaultLimit is used by Recent when limit is not positive.
const DefaultLimit = 20

// Entry is one row of the training log.
type Entry struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	ModelType  string    `json:"model_type"`
	Accuracy   float64   `json:"accuracy"`
	Precision  float64   `json:"precision"`
	Recall     float64   `json:"recall"`
	F1Score    float64   `json:"f1_score"`
	NSamples   int       `json:"n_samples"`
	NFeatures  int       `json:"n_features"`
	TestSize   float64   `json:"test_size"`
	DurationMs int64     `json:"duration_ms"`
	TrainedAt  time.Time `json:"trained_at"`
}

// FromMetrics builds the log entry of a training run.
func FromMetrics(m *pipeline.Metrics) Entry {
	return Entry{
		RunID:      m.RunID,
		ModelType:  string(m.ModelType),
		Accuracy:   m.Accuracy,
		Precision:  m.Precision,
		Recall:     m.Recall,
		F1Score:    m.F1Score,
		NSamples:   m.NSamples,
		NFeatures:  m.NFeatures,
		TestSize:   m.TestSize,
		DurationMs: m.TrainingDurationMs,
		TrainedAt:  m.TrainedAt,
	}
}

// Log is the training log. It is safe for concurrent use.
type Log struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at path. ":memory:" is accepted.
func Open(path string) (*Log, error) {
	dsn := "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
	if path == ":memory:" {
		dsn = path
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open history database %s", path)
	}
	// sqlite allows one writer, and :memory: lives on a single connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create training_log")
	}
	return &Log{db: db}, nil
}

// Close closes the database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Append records e and returns its row id.
func (l *Log) Append(ctx context.Context, e Entry) (int64, error) {
	res, err := l.db.ExecContext(ctx, `
        INSERT INTO training_log
            (run_id, model_type, accuracy, precision, recall, f1_score,
             n_samples, n_features, test_size, duration_ms, trained_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.ModelType, e.Accuracy, e.Precision, e.Recall, e.F1Score,
		e.NSamples, e.NFeatures, e.TestSize, e.DurationMs, e.TrainedAt.UTC(),
	)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to append training run %s", e.RunID)
	}
	return res.LastInsertId()
}

// Recent returns up to limit entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := l.db.QueryContext(ctx, `
        SELECT id, run_id, model_type, accuracy, precision, recall, f1_score,
               n_samples, n_features, test_size, duration_ms, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query training_log")
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RunID, &e.ModelType, &e.Accuracy, &e.Precision, &e.Recall, &e.F1Score,
			&e.NSamples, &e.NFeatures, &e.TestSize, &e.DurationMs, &e.TrainedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan training_log")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
