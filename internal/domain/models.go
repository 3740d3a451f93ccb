package domain

import (
	"strings"
	"time"
)

// Measurement Models

// trendMarker prefixes the region name of longitudinal trend entries.
const trendMarker = "Trend"

// TrendRegion returns the trend region name that pairs with a point region ("L1-L4" -> "Trend L1-L4").
func TrendRegion(region string) string {
	return trendMarker + " " + region
}

// IsTrendRegion reports whether a region key of a body part section holds trend rows.
func IsTrendRegion(region string) bool {
	return strings.Contains(region, trendMarker)
}

// PointMeasurement is one region's BMD result from the current exam.
type PointMeasurement struct {
	BodyPart BodyPart `json:"body_part"`
	Region   string   `json:"region"`
	BMD      float64  `json:"bmd"`
	TScore   *float64 `json:"t_score,omitempty"`
	ZScore   *float64 `json:"z_score,omitempty"`
}

// Score returns the T-score for patients 50 and over and the Z-score below 50.
func (p PointMeasurement) Score(age int) *float64 {
	if age >= 50 {
		return p.TScore
	}
	return p.ZScore
}

// TrendMeasurement is a historical dated BMD row of a region, as tabulated by the scanner.
type TrendMeasurement struct {
	BodyPart          BodyPart  `json:"body_part"`
	Region            string    `json:"region"`
	Date              time.Time `json:"date"`
	Age               *float64  `json:"age,omitempty"`
	BMD               float64   `json:"bmd"`
	ChangeVsPrevious  *float64  `json:"change_vs_previous,omitempty"`
	PChangeVsPrevious *float64  `json:"pchange_vs_previous,omitempty"`
	ChangeVsBaseline  *float64  `json:"change_vs_baseline,omitempty"`
}

// StudyContext carries the per-study facts the interpretation engine needs.
type StudyContext struct {
	Age                  int       `json:"age"`
	Sex                  Sex       `json:"sex"`
	InstitutionName      string    `json:"institution_name"`
	ExamDate             time.Time `json:"exam_date"`
	ComparisonSuppressed bool      `json:"comparison_suppressed"`
}

// FragilityHistory holds the clinical risk factors that modify fracture risk.
type FragilityHistory struct {
	FractureHistory        bool `json:"fracture_history"`
	GlucocorticoidHistory  bool `json:"glucocorticoid_history"`
	PriorHipFracture       bool `json:"prior_hip_fracture"`
	PriorVertebralFracture bool `json:"prior_vertebral_fracture"`
	TwoOrMoreFractures     bool `json:"two_or_more_fractures"`
}

// Overrides reports whether any history factor forces high fracture risk on its own.
func (h FragilityHistory) Overrides() bool {
	return (h.FractureHistory && h.GlucocorticoidHistory) ||
		h.PriorHipFracture || h.PriorVertebralFracture || h.TwoOrMoreFractures
}

// Escalates reports whether fracture or glucocorticoid history raises a CAROC band by one tier.
func (h FragilityHistory) Escalates() bool {
	return h.FractureHistory || h.GlucocorticoidHistory
}

// Persistence Models

// Patient is identified by medical record number.
type Patient struct {
	ID        int64     `json:"id"`
	MRN       string    `json:"mrn"`
	Sex       string    `json:"sex"`
	BirthDate string    `json:"birth_date"`
	CreatedAt time.Time `json:"created_at"`
}

// Study is one DXA exam, keyed by accession number.
type Study struct {
	ID                    int64     `json:"id"`
	PatientID             int64     `json:"patient_id"`
	StudyInstanceUID      string    `json:"study_instance_uid"`
	Accession             string    `json:"accession"`
	DateTime              time.Time `json:"date_time"`
	Description           string    `json:"description"`
	Age                   int       `json:"age"`
	Size                  *float64  `json:"size,omitempty"`
	Weight                *float64  `json:"weight,omitempty"`
	Ethnicity             string    `json:"ethnicity,omitempty"`
	Modality              string    `json:"modality,omitempty"`
	InstitutionName       string    `json:"institution_name,omitempty"`
	StationName           string    `json:"station_name,omitempty"`
	Manufacturer          string    `json:"manufacturer,omitempty"`
	ManufacturerModelName string    `json:"manufacturer_model_name,omitempty"`
	SoftwareVersions      string    `json:"software_versions,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// Report is a structured report instance that contributed measurements to a study.
type Report struct {
	ID             int64  `json:"id"`
	StudyID        int64  `json:"study_id"`
	SOPInstanceUID string `json:"sop_instance_uid"`
}

// IngestBundle is everything persisted from one parsed structured report.
type IngestBundle struct {
	Patient Patient            `json:"patient"`
	Study   Study              `json:"study"`
	Report  Report             `json:"report"`
	Points  []PointMeasurement `json:"points"`
	Trends  []TrendMeasurement `json:"trends"`
}

// ResultRecord is the stored outcome of one interpretation run.
type ResultRecord struct {
	ID                    string             `json:"id"`
	SOPInstanceUID        string             `json:"sop_instance_uid"`
	SeriesInstanceUID     string             `json:"series_instance_uid"`
	StudyInstanceUID      string             `json:"study_instance_uid"`
	PatientID             string             `json:"patient_id"`
	Accession             string             `json:"accession"`
	DiagnosticCategory    DiagnosticCategory `json:"diagnostic_category"`
	FractureRisk          FractureRisk       `json:"fracture_risk"`
	Findings              string             `json:"findings"`
	Summary               string             `json:"summary"`
	GeneratedReport       string             `json:"generated_report"`
	Scores                []float64          `json:"scores"`
	// SourceSOPInstanceUIDs lists the structured reports the result was generated from.
	SourceSOPInstanceUIDs []string           `json:"source_sop_instance_uids"`
	CreatedAt             time.Time          `json:"created_at"`
}

// HasSource reports whether the result was generated from the given structured report
func (r *ResultRecord) HasSource(sopInstanceUID string) bool {
	for _, uid := range r.SourceSOPInstanceUIDs {
		if uid == sopInstanceUID {
			return true
		}
	}
	return false
}
