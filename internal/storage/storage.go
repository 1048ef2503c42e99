// Package storage persists computed metric sets in a local SQLite database and
// writes output documents atomically.
//
// Each metric set is stored as its full JSON document alongside the columns
// needed to list and rotate sets per subject. Stored documents are immutable
// inputs for later evaluations; saving a set with an existing ID replaces it.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rewired-gh/glucoracle/internal/models"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned when a metric set does not exist.
var ErrNotFound = errors.New("metric set not found")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS metric_sets (
	metric_set_id  TEXT PRIMARY KEY,
	subject_id     TEXT NOT NULL,
	series_id      TEXT NOT NULL,
	time_zone      TEXT NOT NULL,
	generated_at   TEXT NOT NULL,
	metrics_digest TEXT NOT NULL,
	metric_count   INTEGER NOT NULL,
	warning_count  INTEGER NOT NULL,
	document       BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metric_sets_subject ON metric_sets (subject_id, generated_at);
`

// Storage is a SQLite-backed metric set store.
type Storage struct {
	sqlDB *sql.DB
	path  string
}

// MetricSetSummary is the listing view of a stored metric set.
type MetricSetSummary struct {
	MetricSetID   string    `json:"metric_set_id"`
	SubjectID     string    `json:"subject_id"`
	SeriesID      string    `json:"series_id"`
	TimeZone      string    `json:"time_zone"`
	GeneratedAt   time.Time `json:"generated_at"`
	MetricsDigest string    `json:"metrics_digest"`
	MetricCount   int       `json:"metric_count"`
	WarningCount  int       `json:"warning_count"`
}

// New opens the store at path, creating the database and its directory if needed.
// An empty path uses the OS temp directory.
func New(path string, dirPermissions os.FileMode) (*Storage, error) {
	if strings.TrimSpace(path) == "" {
		path = filepath.Join(os.TempDir(), "glucoracle", "metrics.db")
	}

	dsn := path
	if path != MemoryPath {
		path = filepath.Clean(path)
		if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == MemoryPath {
		// every connection would otherwise get its own empty database
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Storage{sqlDB: sqlDB, path: path}, nil
}

// Path returns the database location.
func (s *Storage) Path() string {
	return s.path
}

// Close closes the underlying database.
func (s *Storage) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveMetricSet stores a metrics collection, replacing any set with the same ID.
func (s *Storage) SaveMetricSet(ctx context.Context, c *models.MetricsCollection) error {
	if strings.TrimSpace(c.MetricSetID) == "" {
		return errors.New("invalid metric set: metric set ID must not be empty")
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid metric set: %w", err)
	}

	document, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal metric set: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO metric_sets (
	metric_set_id, subject_id, series_id, time_zone, generated_at,
	metrics_digest, metric_count, warning_count, document
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (metric_set_id) DO UPDATE SET
	subject_id = excluded.subject_id,
	series_id = excluded.series_id,
	time_zone = excluded.time_zone,
	generated_at = excluded.generated_at,
	metrics_digest = excluded.metrics_digest,
	metric_count = excluded.metric_count,
	warning_count = excluded.warning_count,
	document = excluded.document`,
		c.MetricSetID, c.SubjectID, c.SeriesID, c.TimeZone, c.GeneratedAt.UTC().Format(timeFormat),
		c.MetricsDigest, len(c.Metrics), len(c.Warnings), document)
	if err != nil {
		return fmt.Errorf("failed to save metric set %s: %w", c.MetricSetID, err)
	}
	return nil
}

// GetMetricSet loads a stored metrics collection by ID.
func (s *Storage) GetMetricSet(ctx context.Context, id string) (*models.MetricsCollection, error) {
	var document []byte
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT document FROM metric_sets WHERE metric_set_id = ?`, id).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load metric set %s: %w", id, err)
	}

	var c models.MetricsCollection
	if err := json.Unmarshal(document, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metric set %s: %w", id, err)
	}
	return &c, nil
}

// ListMetricSets returns stored sets, newest first. An empty subjectID lists all subjects.
func (s *Storage) ListMetricSets(ctx context.Context, subjectID string) ([]MetricSetSummary, error) {
	query := `
SELECT metric_set_id, subject_id, series_id, time_zone, generated_at,
	metrics_digest, metric_count, warning_count
FROM metric_sets`
	var args []any
	if subjectID != "" {
		query += ` WHERE subject_id = ?`
		args = append(args, subjectID)
	}
	query += ` ORDER BY generated_at DESC, metric_set_id`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list metric sets: %w", err)
	}
	defer rows.Close()

	summaries := make([]MetricSetSummary, 0)
	for rows.Next() {
		var summary MetricSetSummary
		var generatedAt string
		if err := rows.Scan(&summary.MetricSetID, &summary.SubjectID, &summary.SeriesID, &summary.TimeZone,
			&generatedAt, &summary.MetricsDigest, &summary.MetricCount, &summary.WarningCount); err != nil {
			return nil, fmt.Errorf("failed to scan metric set: %w", err)
		}
		summary.GeneratedAt, err = time.Parse(timeFormat, generatedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid generated_at for metric set %s: %w", summary.MetricSetID, err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list metric sets: %w", err)
	}
	return summaries, nil
}

// RotateMetricSets keeps the newest keep sets per subject and deletes the rest.
// keep <= 0 disables rotation. It returns the number of deleted sets.
func (s *Storage) RotateMetricSets(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM metric_sets WHERE metric_set_id IN (
	SELECT metric_set_id FROM (
		SELECT metric_set_id, ROW_NUMBER() OVER (
			PARTITION BY subject_id ORDER BY generated_at DESC, metric_set_id
		) AS position
		FROM metric_sets
	) WHERE position > ?
)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to rotate metric sets: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to rotate metric sets: %w", err)
	}
	return int(deleted), nil
}
