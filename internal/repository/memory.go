package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

type trendKey struct {
	bodyPart domain.BodyPart
	region   string
	date     time.Time
}

type pointKey struct {
	bodyPart domain.BodyPart
	region   string
}

// MemoryRepository keeps studies and measurements in process memory. It backs
// the lite MCP server and the CLI.
type MemoryRepository struct {
	mu       sync.RWMutex
	nextID   int64
	patients map[string]*domain.Patient
	studies  map[string]*domain.Study
	reports  map[string]*domain.Report
	points   map[int64]map[pointKey]domain.PointMeasurement
	trends   map[int64]map[trendKey]domain.TrendMeasurement
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients: make(map[string]*domain.Patient),
		studies:  make(map[string]*domain.Study),
		reports:  make(map[string]*domain.Report),
		points:   make(map[int64]map[pointKey]domain.PointMeasurement),
		trends:   make(map[int64]map[trendKey]domain.TrendMeasurement),
	}
}

func (r *MemoryRepository) id() int64 {
	r.nextID++
	return r.nextID
}

// ReportExists reports whether a structured report instance was saved before
func (r *MemoryRepository) ReportExists(ctx context.Context, sopInstanceUID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.reports[sopInstanceUID]
	return ok, nil
}

// SaveReport stores the patient, study, report and measurements of a bundle.
// Patients are matched by MRN and studies by accession; measurements of the
// same region replace earlier ones.
func (r *MemoryRepository) SaveReport(ctx context.Context, bundle *domain.IngestBundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reports[bundle.Report.SOPInstanceUID]; ok {
		return fmt.Errorf("report %s: %w", bundle.Report.SOPInstanceUID, domain.ErrAlreadyProcessed)
	}

	patient, ok := r.patients[bundle.Patient.MRN]
	if !ok {
		p := bundle.Patient
		p.ID = r.id()
		p.CreatedAt = time.Now().UTC()
		patient = &p
		r.patients[p.MRN] = patient
	}
	bundle.Patient = *patient

	study, ok := r.studies[bundle.Study.Accession]
	if !ok {
		s := bundle.Study
		s.ID = r.id()
		s.PatientID = patient.ID
		s.CreatedAt = time.Now().UTC()
		study = &s
		r.studies[s.Accession] = study
	}
	bundle.Study = *study

	report := bundle.Report
	report.ID = r.id()
	report.StudyID = study.ID
	r.reports[report.SOPInstanceUID] = &report
	bundle.Report = report

	if r.points[study.ID] == nil {
		r.points[study.ID] = make(map[pointKey]domain.PointMeasurement)
	}
	for _, p := range bundle.Points {
		r.points[study.ID][pointKey{p.BodyPart, p.Region}] = p
	}
	if r.trends[study.ID] == nil {
		r.trends[study.ID] = make(map[trendKey]domain.TrendMeasurement)
	}
	for _, t := range bundle.Trends {
		r.trends[study.ID][trendKey{t.BodyPart, t.Region, t.Date}] = t
	}
	return nil
}

// StudyByAccession returns a study and its patient
func (r *MemoryRepository) StudyByAccession(ctx context.Context, accession string) (*domain.Study, *domain.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	study, ok := r.studies[accession]
	if !ok {
		return nil, nil, fmt.Errorf("study %s: %w", accession, domain.ErrNotFound)
	}
	for _, p := range r.patients {
		if p.ID == study.PatientID {
			s, pt := *study, *p
			return &s, &pt, nil
		}
	}
	return nil, nil, fmt.Errorf("patient of study %s: %w", accession, domain.ErrNotFound)
}

// PointMeasurements returns the point measurements of a study in body part and region order
func (r *MemoryRepository) PointMeasurements(ctx context.Context, studyID int64) ([]domain.PointMeasurement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.PointMeasurement, 0, len(r.points[studyID]))
	for _, p := range r.points[studyID] {
		out = append(out, p)
	}
	sortPoints(out)
	return out, nil
}

// TrendMeasurements returns the trend rows of a study ordered by date
func (r *MemoryRepository) TrendMeasurements(ctx context.Context, studyID int64) ([]domain.TrendMeasurement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.TrendMeasurement, 0, len(r.trends[studyID]))
	for _, t := range r.trends[studyID] {
		out = append(out, t)
	}
	sortTrendRows(out)
	return out, nil
}
