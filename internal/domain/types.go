// Package domain contains core entities and types for interpreting dual-energy
// X-ray absorptiometry (DXA) bone mineral density reports.
//
// Reference: Papaioannou et al. (2010) Clinical practice guidelines for the diagnosis
// and management of osteoporosis in Canada. CMAJ 182(17):1864-73.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// BodyPart names a scanned section of a DXA report as it appears in the report tree.
type BodyPart string

const (
	LeftFemur    BodyPart = "Left Femur"
	APSpine      BodyPart = "AP Spine"
	RightFemur   BodyPart = "Right Femur"
	LeftForearm  BodyPart = "Left Forearm"
	RightForearm BodyPart = "Right Forearm"
	DualFemur    BodyPart = "DualFemur"
)

// KnownBodyParts lists the recognized report sections in extraction order.
var KnownBodyParts = []BodyPart{LeftFemur, APSpine, RightFemur, LeftForearm, RightForearm, DualFemur}

// IsValid reports whether the body part is one of the recognized report sections.
func (b BodyPart) IsValid() bool {
	for _, known := range KnownBodyParts {
		if b == known {
			return true
		}
	}
	return false
}

// Sex of the patient, used to select CAROC reference tables.
type Sex string

const (
	Male   Sex = "male"
	Female Sex = "female"
)

// ParseSex maps DICOM PatientSex codes ("M", "F") and plain words onto Sex.
func ParseSex(s string) (Sex, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "male":
		return Male, nil
	case "f", "female":
		return Female, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSex, s)
	}
}

// DiagnosticCategory is the bone density status derived from the lowest T- or Z-score.
type DiagnosticCategory string

const (
	Osteoporosis   DiagnosticCategory = "Osteoporosis"
	LowBoneMass    DiagnosticCategory = "Low bone mass"
	NormalBoneMass DiagnosticCategory = "Normal bone mass"
	BelowExpected  DiagnosticCategory = "Below expected range for age"
	WithinExpected DiagnosticCategory = "Within expected range for age"
)

// IsValid reports whether the category is one of the five fixed categories.
func (d DiagnosticCategory) IsValid() bool {
	switch d {
	case Osteoporosis, LowBoneMass, NormalBoneMass, BelowExpected, WithinExpected:
		return true
	default:
		return false
	}
}

// Tier returns the short form used by summary follow-up rules ("Within", "Below")
// for the under-50 categories and an empty string otherwise.
func (d DiagnosticCategory) Tier() string {
	switch d {
	case WithinExpected:
		return "Within"
	case BelowExpected:
		return "Below"
	default:
		return ""
	}
}

// FractureRisk is the 10 year absolute fracture risk statement.
type FractureRisk string

const (
	LowRisk           FractureRisk = "Low, less than 10%"
	ModerateRisk      FractureRisk = "Moderate, 10-20%"
	HighRisk          FractureRisk = "High, greater than 20%"
	RiskNotCalculable FractureRisk = "Cannot be calculated"
	RiskNotApplicable FractureRisk = "Fracture risk cannot be stated in patients less than 50 years of age."
)

// Tier strips the risk statement down to "Low", "Moderate" or "High".
// Statements without a tier return an empty string.
func (r FractureRisk) Tier() string {
	switch r {
	case LowRisk:
		return "Low"
	case ModerateRisk:
		return "Moderate"
	case HighRisk:
		return "High"
	default:
		return ""
	}
}

// IsCalculated reports whether the classifier produced a reportable statement.
func (r FractureRisk) IsCalculated() bool {
	return r != RiskNotCalculable && r != ""
}

// ComparisonRegion is a region whose longitudinal change is classified against an LSC.
type ComparisonRegion string

const (
	LumbarSpineRegion ComparisonRegion = "lumbar spine"
	HipRegion         ComparisonRegion = "hip"
)

// ChangeKind is the outcome of comparing a BMD delta against the least significant change.
type ChangeKind string

const (
	SignificantIncrease ChangeKind = "significant_increase"
	SignificantDecrease ChangeKind = "significant_decrease"
	NotSignificant      ChangeKind = "not_significant"
)

// ChangeResult records the classified change of one comparable region.
type ChangeResult struct {
	Region ComparisonRegion `json:"region"`
	Kind   ChangeKind       `json:"kind"`
	Delta  float64          `json:"delta"`
}

// Significant reports whether the change exceeded the least significant change.
func (c ChangeResult) Significant() bool {
	return c.Kind == SignificantIncrease || c.Kind == SignificantDecrease
}

// Direction returns "increase", "decrease" or "" for a change that is not significant.
func (c ChangeResult) Direction() string {
	switch c.Kind {
	case SignificantIncrease:
		return "increase"
	case SignificantDecrease:
		return "decrease"
	default:
		return ""
	}
}

// Validation and lookup errors shared across layers.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidSex         = errors.New("invalid patient sex")
	ErrInvalidBodyPart    = errors.New("invalid body part")
	ErrNoBMDValues        = errors.New("no BMD values")
	ErrNoScores           = errors.New("no T/Z scores found")
	ErrUnknownInstitution = errors.New("no LSC table known for institution")
	ErrAlreadyProcessed   = errors.New("report already processed")
)
