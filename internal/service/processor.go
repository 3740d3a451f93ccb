package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
	"github.com/ibh-daai/bone-mineral-density/pkg/sr"
)

// ErrNoArchive is returned by ProcessStudy when no archive is wired in.
var ErrNoArchive = errors.New("no archive configured")

// ProcessOptions carries the clinical flags of a processing run.
type ProcessOptions struct {
	History              domain.FragilityHistory
	ComparisonSuppressed bool
	// SkipSend leaves the generated report in the result without uploading it.
	SkipSend bool
}

// ProcessResult describes what happened to one report or study.
type ProcessResult struct {
	SOPInstanceUID string               `json:"sop_instance_uid,omitempty"`
	Accession      string               `json:"accession,omitempty"`
	Skipped        bool                 `json:"skipped"`
	Reason         string               `json:"reason,omitempty"`
	Interpretation *Interpretation      `json:"interpretation,omitempty"`
	Record         *domain.ResultRecord `json:"record,omitempty"`
	Issues         []ExtractionIssue    `json:"issues,omitempty"`
	Report         *sr.BuiltReport      `json:"-"`
	Document       *sr.Document         `json:"-"`
	Bundle         *domain.IngestBundle `json:"-"`
}

// ProcessorDependencies wires the collaborators of a StudyProcessor. Archive,
// Sender, Results and Tracker are optional.
type ProcessorDependencies struct {
	Repository  domain.StudyRepository
	Interpreter *BoneDensityInterpreter
	Extractor   *MeasurementExtractor
	Results     domain.ResultStore
	Tracker     domain.ProcessedTracker
	Archive     domain.Archive
	Sender      domain.ReportSender
}

// StudyProcessor ingests structured reports, interprets their study and
// delivers the generated report.
type StudyProcessor struct {
	logger *logrus.Logger
	deps   ProcessorDependencies
}

// NewStudyProcessor creates a new study processor
func NewStudyProcessor(logger *logrus.Logger, deps ProcessorDependencies) *StudyProcessor {
	if deps.Extractor == nil {
		deps.Extractor = NewMeasurementExtractor(logger)
	}
	return &StudyProcessor{logger: logger, deps: deps}
}

// ProcessDocument ingests one structured report and interprets its study.
func (p *StudyProcessor) ProcessDocument(ctx context.Context, root sr.Item, opts ProcessOptions) (*ProcessResult, error) {
	ingested, err := p.Ingest(ctx, root)
	if err != nil || ingested.Skipped {
		return ingested, err
	}
	return p.finalize(ctx, ingested, []string{ingested.SOPInstanceUID}, opts)
}

// Ingest parses a structured report and persists its measurements. Reports
// this service generated, non-SR instances and instances that already led to a
// result are skipped without error. A report whose measurements were stored by
// an earlier, unfinished run is not stored again; its study is reloaded so the
// run can be finished.
func (p *StudyProcessor) Ingest(ctx context.Context, root sr.Item) (*ProcessResult, error) {
	header := sr.ReadHeader(root)
	result := &ProcessResult{SOPInstanceUID: header.SOPInstanceUID, Accession: header.AccessionNumber}

	if reason := skipReason(header); reason != "" {
		return skipped(result, reason), nil
	}
	if done, err := p.processed(ctx, header.SOPInstanceUID, header.AccessionNumber); err != nil {
		return nil, err
	} else if done {
		return skipped(result, "already processed"), nil
	}

	doc, err := sr.ParseDocument(root)
	if err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", header.SOPInstanceUID, err)
	}
	for _, s := range doc.Skipped {
		p.logger.WithFields(logrus.Fields{
			"sop_instance_uid": header.SOPInstanceUID,
			"container":        s.Container,
			"index":            s.Index,
			"value_type":       s.ValueType,
		}).WithError(s.Err).Debug("Skipped content item")
	}

	bundle, err := newIngestBundle(doc.Header)
	if err != nil {
		return nil, err
	}
	extraction := p.deps.Extractor.Extract(doc.Content)
	bundle.Points = extraction.Points
	bundle.Trends = extraction.Trends

	stored, err := p.deps.Repository.ReportExists(ctx, header.SOPInstanceUID)
	if err != nil {
		return nil, fmt.Errorf("failed to check report %s: %w", header.SOPInstanceUID, err)
	}
	if !stored {
		err = p.deps.Repository.SaveReport(ctx, bundle)
		if errors.Is(err, domain.ErrAlreadyProcessed) {
			stored = true
		} else if err != nil {
			return nil, fmt.Errorf("failed to save report %s: %w", header.SOPInstanceUID, err)
		}
	}
	if stored {
		if err := p.reloadStudy(ctx, bundle); err != nil {
			return nil, err
		}
	}

	p.logger.WithFields(logrus.Fields{
		"sop_instance_uid": header.SOPInstanceUID,
		"accession":        header.AccessionNumber,
		"points":           len(bundle.Points),
		"trends":           len(bundle.Trends),
		"skipped_regions":  len(extraction.Skipped),
		"resumed":          stored,
	}).Info("Ingested structured report")

	result.Document = doc
	result.Bundle = bundle
	result.Issues = extraction.Skipped
	return result, nil
}

// ProcessStudy pulls every instance of an archive study, ingests its
// structured reports and interprets the study once.
func (p *StudyProcessor) ProcessStudy(ctx context.Context, studyID string, opts ProcessOptions) (*ProcessResult, error) {
	if p.deps.Archive == nil {
		return nil, ErrNoArchive
	}
	instances, err := p.deps.Archive.StudyInstances(ctx, studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances of study %s: %w", studyID, err)
	}
	if len(instances) == 0 {
		return skipped(&ProcessResult{}, "study has no instances"), nil
	}

	roots := make([]sr.Item, 0, len(instances))
	for _, id := range instances {
		data, err := p.deps.Archive.FetchInstance(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch instance %s: %w", id, err)
		}
		root, err := sr.ParseReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			p.logger.WithError(err).WithField("instance", id).Warn("Skipping unreadable instance")
			continue
		}
		if sr.IsGeneratedSeries(sr.ReadHeader(root).SeriesInstanceUID) {
			p.logger.WithField("study", studyID).Info("Study already has a generated report")
			return skipped(&ProcessResult{}, "study already processed"), nil
		}
		roots = append(roots, root)
	}

	var last *ProcessResult
	var sopUIDs []string
	for _, root := range roots {
		ingested, err := p.Ingest(ctx, root)
		if err != nil {
			return nil, err
		}
		if ingested.Skipped {
			continue
		}
		last = ingested
		sopUIDs = append(sopUIDs, ingested.SOPInstanceUID)
	}
	if last == nil {
		return skipped(&ProcessResult{}, "no new structured reports"), nil
	}
	return p.finalize(ctx, last, sopUIDs, opts)
}

// finalize interprets the study of an ingested report, sends the generated
// report and records the result.
func (p *StudyProcessor) finalize(ctx context.Context, ingested *ProcessResult, sopUIDs []string, opts ProcessOptions) (*ProcessResult, error) {
	bundle := ingested.Bundle
	sex, err := domain.ParseSex(bundle.Patient.Sex)
	if err != nil {
		return nil, err
	}

	interp, err := p.deps.Interpreter.Interpret(ctx, InterpretRequest{
		StudyID: bundle.Study.ID,
		Context: domain.StudyContext{
			Age:                  bundle.Study.Age,
			Sex:                  sex,
			InstitutionName:      bundle.Study.InstitutionName,
			ExamDate:             bundle.Study.DateTime,
			ComparisonSuppressed: opts.ComparisonSuppressed,
		},
		History: opts.History,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to interpret study %s: %w", bundle.Study.Accession, err)
	}

	built, err := sr.BuildReport(sr.ReportContent{
		Source:   ingested.Document.Header,
		Sections: ReportSections(interp),
	})
	if err != nil {
		return nil, err
	}

	if !opts.SkipSend && p.deps.Sender != nil {
		data, err := sr.Encode(built.Dataset)
		if err != nil {
			return nil, err
		}
		if err := p.deps.Sender.SendReport(ctx, data); err != nil {
			return nil, fmt.Errorf("failed to send report for %s: %w", bundle.Study.Accession, err)
		}
	}

	record := &domain.ResultRecord{
		ID:                    uuid.New().String(),
		SOPInstanceUID:        built.SOPInstanceUID,
		SeriesInstanceUID:     built.SeriesInstanceUID,
		StudyInstanceUID:      bundle.Study.StudyInstanceUID,
		PatientID:             bundle.Patient.MRN,
		Accession:             bundle.Study.Accession,
		DiagnosticCategory:    interp.DiagnosticCategory,
		FractureRisk:          interp.FractureRisk,
		Findings:              interp.Findings,
		Summary:               interp.Summary,
		GeneratedReport:       interp.Report,
		Scores:                interp.Scores,
		SourceSOPInstanceUIDs: append([]string(nil), sopUIDs...),
		CreatedAt:             time.Now().UTC(),
	}
	if p.deps.Results != nil {
		if err := p.deps.Results.SaveResult(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to save result for %s: %w", bundle.Study.Accession, err)
		}
	}

	if p.deps.Tracker != nil {
		for _, uid := range sopUIDs {
			if err := p.deps.Tracker.MarkProcessed(ctx, uid); err != nil {
				p.logger.WithError(err).WithField("sop_instance_uid", uid).Warn("Failed to mark report processed")
			}
		}
	}

	p.logger.WithFields(logrus.Fields{
		"accession":           bundle.Study.Accession,
		"diagnostic_category": interp.DiagnosticCategory,
		"fracture_risk":       interp.FractureRisk,
	}).Info("Study processed")

	ingested.Interpretation = interp
	ingested.Record = record
	ingested.Report = built
	return ingested, nil
}

// processed reports whether a structured report already led to a stored
// result. The tracker answers first; the result store is the fallback.
// Stored measurements alone do not count: the run may have failed after them.
func (p *StudyProcessor) processed(ctx context.Context, sopUID, accession string) (bool, error) {
	if p.deps.Tracker != nil {
		seen, err := p.deps.Tracker.Seen(ctx, sopUID)
		if err != nil {
			p.logger.WithError(err).Warn("Processed tracker unavailable, falling back to result store")
		} else if seen {
			return true, nil
		}
	}
	if p.deps.Results == nil {
		return false, nil
	}
	records, err := p.deps.Results.GetResultsByAccession(ctx, accession)
	if err != nil {
		return false, fmt.Errorf("failed to check results of %s: %w", accession, err)
	}
	for _, r := range records {
		if r.HasSource(sopUID) {
			return true, nil
		}
	}
	return false, nil
}

// reloadStudy replaces the bundle's patient and study with the stored rows.
func (p *StudyProcessor) reloadStudy(ctx context.Context, bundle *domain.IngestBundle) error {
	study, patient, err := p.deps.Repository.StudyByAccession(ctx, bundle.Study.Accession)
	if err != nil {
		return fmt.Errorf("failed to load study %s: %w", bundle.Study.Accession, err)
	}
	bundle.Study = *study
	bundle.Patient = *patient
	bundle.Report.StudyID = study.ID
	return nil
}

func skipReason(h sr.Header) string {
	switch {
	case sr.IsGeneratedSeries(h.SeriesInstanceUID):
		return "generated report"
	case !h.IsStructuredReport():
		return "not a structured report"
	case h.SOPInstanceUID == "":
		return "missing SOP instance UID"
	default:
		return ""
	}
}

func skipped(r *ProcessResult, reason string) *ProcessResult {
	r.Skipped = true
	r.Reason = reason
	return r
}

// newIngestBundle maps header fields onto the persisted patient, study and report.
func newIngestBundle(h sr.Header) (*domain.IngestBundle, error) {
	if h.AccessionNumber == "" {
		return nil, domain.NewValidationError("AccessionNumber", "accession number is required", "")
	}
	if h.PatientAge == nil {
		return nil, domain.NewValidationError("PatientAge", "patient age in years is required", "")
	}
	if _, err := domain.ParseSex(h.PatientSex); err != nil {
		return nil, domain.NewValidationError("PatientSex", err.Error(), h.PatientSex)
	}
	examDate, err := h.StudyDateTime()
	if err != nil {
		return nil, domain.NewValidationError("StudyDate", err.Error(), h.StudyDate)
	}

	return &domain.IngestBundle{
		Patient: domain.Patient{
			MRN:       h.PatientID,
			Sex:       h.PatientSex,
			BirthDate: h.PatientBirthDate,
		},
		Study: domain.Study{
			StudyInstanceUID:      h.StudyInstanceUID,
			Accession:             h.AccessionNumber,
			DateTime:              examDate,
			Description:           h.StudyDescription,
			Age:                   *h.PatientAge,
			Size:                  h.PatientSize,
			Weight:                h.PatientWeight,
			Ethnicity:             h.EthnicGroup,
			Modality:              h.Modality,
			InstitutionName:       h.InstitutionName,
			StationName:           h.StationName,
			Manufacturer:          h.Manufacturer,
			ManufacturerModelName: h.ManufacturerModelName,
			SoftwareVersions:      h.SoftwareVersions,
		},
		Report: domain.Report{SOPInstanceUID: h.SOPInstanceUID},
	}, nil
}

// ReportSections lists the TEXT items of the generated structured report.
func ReportSections(i *Interpretation) []sr.ReportSection {
	return []sr.ReportSection{
		{Title: "REFERENCE EXAMINATIONS", Text: i.ReferenceExaminations},
		{Title: "TECHNIQUE", Text: i.Technique},
		{Title: "FINDINGS", Text: i.Findings},
		{Title: "SUMMARY", Text: i.Summary},
		{Title: "DIAGNOSTIC CATEGORY", Text: string(i.DiagnosticCategory)},
		{Title: "FRACTURE RISK", Text: string(i.FractureRisk)},
	}
}
