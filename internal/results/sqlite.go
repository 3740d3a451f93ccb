package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite result store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteResult(s scanner) (*domain.ResultRecord, error) {
	r := &domain.ResultRecord{}
	var category, risk, scores, sources string

	err := s.Scan(
		&r.ID, &r.SOPInstanceUID, &r.SeriesInstanceUID, &r.StudyInstanceUID, &r.PatientID,
		&r.Accession, &category, &risk, &r.Findings, &r.Summary,
		&r.GeneratedReport, &scores, &sources, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.DiagnosticCategory = domain.DiagnosticCategory(category)
	r.FractureRisk = domain.FractureRisk(risk)
	if err := json.Unmarshal([]byte(scores), &r.Scores); err != nil {
		return nil, fmt.Errorf("decoding scores of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(sources), &r.SourceSOPInstanceUIDs); err != nil {
		return nil, fmt.Errorf("decoding sources of %s: %w", r.ID, err)
	}
	return r, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS results (
		id TEXT PRIMARY KEY,
		sop_instance_uid TEXT NOT NULL,
		series_instance_uid TEXT NOT NULL,
		study_instance_uid TEXT NOT NULL,
		patient_id TEXT DEFAULT '',
		accession TEXT NOT NULL,
		diagnostic_category TEXT NOT NULL,
		fracture_risk TEXT NOT NULL,
		findings TEXT DEFAULT '',
		summary TEXT DEFAULT '',
		generated_report TEXT DEFAULT '',
		scores TEXT NOT NULL DEFAULT '[]',
		source_sop_instance_uids TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_results_accession ON results(accession);
	CREATE INDEX IF NOT EXISTS idx_results_created_at ON results(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

const sqliteSelectColumns = `
	SELECT id, sop_instance_uid, series_instance_uid, study_instance_uid, patient_id,
		accession, diagnostic_category, fracture_risk, findings, summary,
		generated_report, scores, source_sop_instance_uids, created_at
	FROM results`

// SaveResult stores a result record. A record without ID gets a new UUID.
func (s *SQLiteStore) SaveResult(ctx context.Context, r *domain.ResultRecord) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	scores := r.Scores
	if scores == nil {
		scores = []float64{}
	}
	encoded, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("encoding scores: %w", err)
	}
	sources := r.SourceSOPInstanceUIDs
	if sources == nil {
		sources = []string{}
	}
	encodedSources, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("encoding sources: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (
			id, sop_instance_uid, series_instance_uid, study_instance_uid, patient_id,
			accession, diagnostic_category, fracture_risk, findings, summary,
			generated_report, scores, source_sop_instance_uids, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.SOPInstanceUID,
		r.SeriesInstanceUID,
		r.StudyInstanceUID,
		r.PatientID,
		r.Accession,
		string(r.DiagnosticCategory),
		string(r.FractureRisk),
		r.Findings,
		r.Summary,
		r.GeneratedReport,
		string(encoded),
		string(encodedSources),
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...interface{}) ([]*domain.ResultRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var out []*domain.ResultRecord
	for rows.Next() {
		r, err := scanSQLiteResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetResultsByAccession returns every result of a study, newest first.
func (s *SQLiteStore) GetResultsByAccession(ctx context.Context, accession string) ([]*domain.ResultRecord, error) {
	return s.query(ctx, sqliteSelectColumns+` WHERE accession = ? ORDER BY created_at DESC`, accession)
}

// ListResults returns the most recent results.
func (s *SQLiteStore) ListResults(ctx context.Context, limit int) ([]*domain.ResultRecord, error) {
	return s.query(ctx, sqliteSelectColumns+` ORDER BY created_at DESC LIMIT ?`, limit)
}

// Count returns the total number of stored results.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM results").Scan(&count)
	return count, err
}

func (s *SQLiteStore) exists(ctx context.Context, id string) (bool, error) {
	var found string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM results WHERE id = ?", id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check existing: %w", err)
	}
	return true, nil
}

// ExportJSON exports all results to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.ListResults(ctx, maxExportLimit)
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}
	return writeExport(writer, all)
}

// ImportJSON imports results from a JSON reader.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	imported, skipped, err = importExport(ctx, reader, s.exists, s.SaveResult)
	if err != nil {
		return imported, skipped, fmt.Errorf("failed to import results: %w", err)
	}
	return imported, skipped, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
