package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL result store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL result store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

const pgSelectColumns = `
	SELECT id, sop_instance_uid, series_instance_uid, study_instance_uid, patient_id,
		accession, diagnostic_category, fracture_risk, findings, summary,
		generated_report, scores, source_sop_instance_uids, created_at
	FROM results`

// SaveResult stores a result record. A record without ID gets a new UUID.
func (s *PostgresStore) SaveResult(ctx context.Context, r *domain.ResultRecord) error {
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
	sources := r.SourceSOPInstanceUIDs
	if sources == nil {
		sources = []string{}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO results (
			id, sop_instance_uid, series_instance_uid, study_instance_uid, patient_id,
			accession, diagnostic_category, fracture_risk, findings, summary,
			generated_report, scores, source_sop_instance_uids, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
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
		pq.Array(scores),
		pq.Array(sources),
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

func scanPgResult(s scanner) (*domain.ResultRecord, error) {
	r := &domain.ResultRecord{}
	var category, risk string
	var scores pq.Float64Array
	var sources pq.StringArray

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
	r.Scores = []float64(scores)
	r.SourceSOPInstanceUIDs = []string(sources)
	return r, nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...interface{}) ([]*domain.ResultRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []*domain.ResultRecord
	for rows.Next() {
		r, err := scanPgResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetResultsByAccession returns every result of a study, newest first.
func (s *PostgresStore) GetResultsByAccession(ctx context.Context, accession string) ([]*domain.ResultRecord, error) {
	return s.query(ctx, pgSelectColumns+` WHERE accession = $1 ORDER BY created_at DESC`, accession)
}

// ListResults returns the most recent results.
func (s *PostgresStore) ListResults(ctx context.Context, limit int) ([]*domain.ResultRecord, error) {
	return s.query(ctx, pgSelectColumns+` ORDER BY created_at DESC LIMIT $1`, limit)
}

// Count returns the total number of stored results.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM results").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) exists(ctx context.Context, id string) (bool, error) {
	var found string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM results WHERE id = $1", id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check existing: %w", err)
	}
	return true, nil
}

// ExportJSON exports all results to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.ListResults(ctx, maxExportLimit)
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}
	return writeExport(writer, all)
}

// ImportJSON imports results from a JSON reader.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	imported, skipped, err = importExport(ctx, reader, s.exists, s.SaveResult)
	if err != nil {
		return imported, skipped, fmt.Errorf("failed to import results: %w", err)
	}
	return imported, skipped, nil
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
