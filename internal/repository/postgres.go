package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

// PostgresRepository persists patients, studies, reports and their BMD tables
type PostgresRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPostgresRepository creates a new measurement repository
func NewPostgresRepository(db *pgxpool.Pool, logger *logrus.Logger) *PostgresRepository {
	return &PostgresRepository{
		db:  db,
		log: logger,
	}
}

const studyColumns = `
	s.id, s.patient_id, s.study_instance_uid, s.accession, s.date_time, s.description, s.age,
	s.size, s.weight, s.ethnicity, s.modality, s.institution_name, s.station_name,
	s.manufacturer, s.manufacturer_model_name, s.software_versions, s.created_at`

func scanStudy(row pgx.Row, extra ...any) (*domain.Study, error) {
	var s domain.Study
	dest := []any{
		&s.ID, &s.PatientID, &s.StudyInstanceUID, &s.Accession, &s.DateTime, &s.Description, &s.Age,
		&s.Size, &s.Weight, &s.Ethnicity, &s.Modality, &s.InstitutionName, &s.StationName,
		&s.Manufacturer, &s.ManufacturerModelName, &s.SoftwareVersions, &s.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	// timestamptz comes back in the server's zone; exam times are UTC wall clock
	s.DateTime = s.DateTime.UTC()
	return &s, nil
}

// ReportExists reports whether a structured report instance was saved before
func (r *PostgresRepository) ReportExists(ctx context.Context, sopInstanceUID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reports WHERE sop_instance_uid = $1)`, sopInstanceUID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking report: %w", err)
	}
	return exists, nil
}

// SaveReport stores a bundle in one transaction. Patients are matched by MRN
// and studies by accession; measurement rows of the same region (and date)
// are replaced.
func (r *PostgresRepository) SaveReport(ctx context.Context, bundle *domain.IngestBundle) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.saveReport(ctx, tx, bundle); err != nil {
		r.log.WithFields(logrus.Fields{
			"sop_instance_uid": bundle.Report.SOPInstanceUID,
			"accession":        bundle.Study.Accession,
			"error":            err,
		}).Error("Failed to save report")
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing report: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"study_id":         bundle.Study.ID,
		"sop_instance_uid": bundle.Report.SOPInstanceUID,
		"points":           len(bundle.Points),
		"trends":           len(bundle.Trends),
	}).Info("Report saved successfully")
	return nil
}

func (r *PostgresRepository) saveReport(ctx context.Context, tx pgx.Tx, bundle *domain.IngestBundle) error {
	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reports WHERE sop_instance_uid = $1)`, bundle.Report.SOPInstanceUID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("checking report: %w", err)
	}
	if exists {
		return fmt.Errorf("report %s: %w", bundle.Report.SOPInstanceUID, domain.ErrAlreadyProcessed)
	}

	p := &bundle.Patient
	err := tx.QueryRow(ctx, `
		INSERT INTO patients (mrn, sex, birth_date)
		VALUES ($1, $2, $3)
		ON CONFLICT (mrn) DO UPDATE SET mrn = EXCLUDED.mrn
		RETURNING id, sex, birth_date, created_at`,
		p.MRN, p.Sex, p.BirthDate,
	).Scan(&p.ID, &p.Sex, &p.BirthDate, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting patient: %w", err)
	}

	s := bundle.Study
	_, err = tx.Exec(ctx, `
		INSERT INTO studies (
			patient_id, study_instance_uid, accession, date_time, description, age,
			size, weight, ethnicity, modality, institution_name, station_name,
			manufacturer, manufacturer_model_name, software_versions
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
		ON CONFLICT (accession) DO NOTHING`,
		p.ID, s.StudyInstanceUID, s.Accession, s.DateTime, s.Description, s.Age,
		s.Size, s.Weight, s.Ethnicity, s.Modality, s.InstitutionName, s.StationName,
		s.Manufacturer, s.ManufacturerModelName, s.SoftwareVersions,
	)
	if err != nil {
		return fmt.Errorf("inserting study: %w", err)
	}
	study, err := scanStudy(tx.QueryRow(ctx, `SELECT`+studyColumns+` FROM studies s WHERE s.accession = $1`, s.Accession))
	if err != nil {
		return fmt.Errorf("loading study: %w", err)
	}
	bundle.Study = *study

	bundle.Report.StudyID = study.ID
	if err := tx.QueryRow(ctx,
		`INSERT INTO reports (study_id, sop_instance_uid) VALUES ($1, $2) RETURNING id`,
		study.ID, bundle.Report.SOPInstanceUID,
	).Scan(&bundle.Report.ID); err != nil {
		return fmt.Errorf("inserting report: %w", err)
	}

	batch := &pgx.Batch{}
	for _, m := range bundle.Points {
		batch.Queue(`
			INSERT INTO bmd_values (study_id, body_part, region, bmd, t_score, z_score)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (study_id, body_part, region) DO UPDATE SET
				bmd = EXCLUDED.bmd, t_score = EXCLUDED.t_score, z_score = EXCLUDED.z_score`,
			study.ID, string(m.BodyPart), m.Region, m.BMD, m.TScore, m.ZScore)
	}
	for _, m := range bundle.Trends {
		batch.Queue(`
			INSERT INTO bmd_trend_values (
				study_id, body_part, region, date, age, bmd,
				change_vs_previous, pchange_vs_previous, change_vs_baseline
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (study_id, body_part, region, date) DO UPDATE SET
				age = EXCLUDED.age, bmd = EXCLUDED.bmd,
				change_vs_previous = EXCLUDED.change_vs_previous,
				pchange_vs_previous = EXCLUDED.pchange_vs_previous,
				change_vs_baseline = EXCLUDED.change_vs_baseline`,
			study.ID, string(m.BodyPart), m.Region, m.Date, m.Age, m.BMD,
			m.ChangeVsPrevious, m.PChangeVsPrevious, m.ChangeVsBaseline)
	}
	if batch.Len() == 0 {
		return nil
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("inserting measurement %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("closing measurement batch: %w", err)
	}
	return nil
}

// StudyByAccession returns a study and its patient
func (r *PostgresRepository) StudyByAccession(ctx context.Context, accession string) (*domain.Study, *domain.Patient, error) {
	var p domain.Patient
	study, err := scanStudy(r.db.QueryRow(ctx, `
		SELECT`+studyColumns+`, p.id, p.mrn, p.sex, p.birth_date, p.created_at
		FROM studies s
		JOIN patients p ON p.id = s.patient_id
		WHERE s.accession = $1`, accession),
		&p.ID, &p.MRN, &p.Sex, &p.BirthDate, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("study %s not found: %w", accession, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"accession": accession,
			"error":     err,
		}).Error("Failed to get study by accession")
		return nil, nil, fmt.Errorf("getting study by accession: %w", err)
	}
	return study, &p, nil
}

// PointMeasurements returns the point rows of a study
func (r *PostgresRepository) PointMeasurements(ctx context.Context, studyID int64) ([]domain.PointMeasurement, error) {
	rows, err := r.db.Query(ctx, `
		SELECT body_part, region, bmd, t_score, z_score
		FROM bmd_values
		WHERE study_id = $1`, studyID)
	if err != nil {
		return nil, fmt.Errorf("getting point measurements: %w", err)
	}
	defer rows.Close()

	var out []domain.PointMeasurement
	for rows.Next() {
		var m domain.PointMeasurement
		var part string
		if err := rows.Scan(&part, &m.Region, &m.BMD, &m.TScore, &m.ZScore); err != nil {
			return nil, fmt.Errorf("scanning point measurement: %w", err)
		}
		m.BodyPart = domain.BodyPart(part)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating point measurements: %w", err)
	}

	sortPoints(out)
	return out, nil
}

// TrendMeasurements returns the trend rows of a study, oldest first
func (r *PostgresRepository) TrendMeasurements(ctx context.Context, studyID int64) ([]domain.TrendMeasurement, error) {
	rows, err := r.db.Query(ctx, `
		SELECT body_part, region, date, age, bmd,
			   change_vs_previous, pchange_vs_previous, change_vs_baseline
		FROM bmd_trend_values
		WHERE study_id = $1`, studyID)
	if err != nil {
		return nil, fmt.Errorf("getting trend measurements: %w", err)
	}
	defer rows.Close()

	var out []domain.TrendMeasurement
	for rows.Next() {
		var m domain.TrendMeasurement
		var part string
		if err := rows.Scan(&part, &m.Region, &m.Date, &m.Age, &m.BMD,
			&m.ChangeVsPrevious, &m.PChangeVsPrevious, &m.ChangeVsBaseline); err != nil {
			return nil, fmt.Errorf("scanning trend measurement: %w", err)
		}
		m.BodyPart = domain.BodyPart(part)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trend measurements: %w", err)
	}

	sortTrendRows(out)
	return out, nil
}
