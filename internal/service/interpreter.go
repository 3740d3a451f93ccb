package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

// EngineOptions switches optional engine behaviour.
type EngineOptions struct {
	// RecordZeroHipChange records a total femur delta of exactly zero as not significant.
	RecordZeroHipChange bool
}

// InterpretRequest identifies a stored study and the caller-supplied clinical context.
type InterpretRequest struct {
	StudyID int64
	Context domain.StudyContext
	History domain.FragilityHistory
}

// Interpretation is the outcome of one interpretation run.
type Interpretation struct {
	Findings              string                    `json:"findings"`
	Summary               string                    `json:"summary"`
	ReferenceExaminations string                    `json:"reference_examinations"`
	Technique             string                    `json:"technique"`
	Report                string                    `json:"report"`
	DiagnosticCategory    domain.DiagnosticCategory `json:"diagnostic_category"`
	FractureRisk          domain.FractureRisk       `json:"fracture_risk"`
	Scores                []float64                 `json:"scores"`
	Changes               []domain.ChangeResult     `json:"changes"`
	Selection             VertebraSelection         `json:"vertebra_selection"`
	ExamDates             ExamDates                 `json:"exam_dates"`
	Warnings              []string                  `json:"warnings,omitempty"`
}

// BoneDensityInterpreter runs the interpretation rules over the measurement
// tables of a study. It holds no mutable state and is safe for concurrent use.
type BoneDensityInterpreter struct {
	logger *logrus.Logger
	repo   domain.MeasurementRepository
	tables *ReferenceTables
	opts   EngineOptions
}

// NewBoneDensityInterpreter creates a new interpreter
func NewBoneDensityInterpreter(
	logger *logrus.Logger,
	repo domain.MeasurementRepository,
	tables *ReferenceTables,
	opts EngineOptions,
) *BoneDensityInterpreter {
	return &BoneDensityInterpreter{
		logger: logger,
		repo:   repo,
		tables: tables,
		opts:   opts,
	}
}

// Tables returns the reference tables in use.
func (b *BoneDensityInterpreter) Tables() *ReferenceTables {
	return b.tables
}

// Interpret loads the tables of a stored study and interprets them.
func (b *BoneDensityInterpreter) Interpret(ctx context.Context, req InterpretRequest) (*Interpretation, error) {
	if b.repo == nil {
		return nil, fmt.Errorf("interpreter has no measurement repository")
	}

	points, err := b.repo.PointMeasurements(ctx, req.StudyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load point measurements of study %d: %w", req.StudyID, err)
	}
	trends, err := b.repo.TrendMeasurements(ctx, req.StudyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trend measurements of study %d: %w", req.StudyID, err)
	}

	result, err := b.InterpretTables(req.Context, req.History, points, trends)
	if err != nil {
		return nil, fmt.Errorf("study %d: %w", req.StudyID, err)
	}
	return result, nil
}

// InterpretTables interprets already materialized measurement tables.
func (b *BoneDensityInterpreter) InterpretTables(
	study domain.StudyContext,
	history domain.FragilityHistory,
	points []domain.PointMeasurement,
	trends []domain.TrendMeasurement,
) (*Interpretation, error) {
	startTime := time.Now()

	if len(points) == 0 {
		return nil, domain.ErrNoBMDValues
	}

	sorted := append([]domain.TrendMeasurement(nil), trends...)
	sortTrends(sorted)
	dates := FindExamDates(study.ExamDate, sorted)

	composer := &findingsComposer{
		study:  study,
		points: points,
		trends: sorted,
		dates:  dates,
		tables: b.tables,
		opts:   b.opts,
	}

	lumbar, selection, lumbarScore := composer.lumbar()
	body := lumbar.
		with(composer.femur(domain.LeftFemur, "Left")).
		with(composer.femur(domain.RightFemur, "Right")).
		with(composer.forearm(domain.LeftForearm, "Left")).
		with(composer.forearm(domain.RightForearm, "Right"))

	if len(body.scores) == 0 {
		return nil, domain.ErrNoScores
	}
	category, err := ClassifyDiagnosis(study.Age, body.scores)
	if err != nil {
		return nil, err
	}

	var fullSpineT *float64
	if p, ok := composer.point(domain.APSpine, "L1-L4"); ok {
		fullSpineT = p.TScore
	}
	risk := b.tables.ClassifyFractureRisk(FractureRiskInput{
		FemoralNeckT:     femoralNeckTScore(points),
		LumbarScore:      lumbarScore,
		FullSpineLumbarT: fullSpineT,
		Age:              study.Age,
		Sex:              study.Sex,
		History:          history,
		L4Excluded:       study.Age >= 50 && selection.ExcludesL4(),
	})

	findings := joinParagraphs(append(append([]string(nil), body.fragments...), closingLines(category, risk)...))
	summary := joinParagraphs(composeSummary(summaryInput{
		category:    category,
		risk:        risk,
		changes:     body.changes,
		history:     history,
		suppressed:  study.ComparisonSuppressed,
		institution: study.InstitutionName,
		tables:      b.tables,
	}))

	text := ReportText{
		ReferenceExaminations: ReferenceExaminations(dates, study.ComparisonSuppressed),
		Technique:             Technique(study.Age, study.Sex, dates.PreviousCount()),
		Findings:              findings,
		Summary:               summary,
	}

	for _, w := range body.warnings {
		b.logger.WithFields(logrus.Fields{
			"institution": study.InstitutionName,
		}).Warn(w)
	}
	b.logger.WithFields(logrus.Fields{
		"diagnostic_category": category,
		"fracture_risk":       risk,
		"vertebrae":           selection.String(),
		"changes":             len(body.changes),
		"processing_time_ms":  time.Since(startTime).Milliseconds(),
	}).Info("Completed bone density interpretation")

	return &Interpretation{
		Findings:              findings,
		Summary:               summary,
		ReferenceExaminations: text.ReferenceExaminations,
		Technique:             text.Technique,
		Report:                RenderReport(text),
		DiagnosticCategory:    category,
		FractureRisk:          risk,
		Scores:                body.scores,
		Changes:               body.changes,
		Selection:             selection,
		ExamDates:             dates,
		Warnings:              body.warnings,
	}, nil
}
