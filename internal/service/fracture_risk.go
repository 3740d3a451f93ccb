package service

import (
	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

// osteoporosisThreshold is the T-score at or below which a lumbar score raises risk.
const osteoporosisThreshold = -2.5

// FractureRiskInput gathers everything the 10 year fracture risk depends on.
type FractureRiskInput struct {
	// FemoralNeckT is the femoral neck T-score, left femur preferred.
	FemoralNeckT *float64
	// LumbarScore is the score of the selected lumbar combination.
	LumbarScore *float64
	// FullSpineLumbarT is the L1-L4 T-score used when no femoral neck was scanned.
	FullSpineLumbarT *float64
	Age              int
	Sex              domain.Sex
	History          domain.FragilityHistory
	L4Excluded       bool
}

// ClassifyFractureRisk applies the CAROC 2010 rules. It never fails: inputs
// without a usable score yield RiskNotCalculable.
func (t *ReferenceTables) ClassifyFractureRisk(in FractureRiskInput) domain.FractureRisk {
	if in.Age < 50 {
		return domain.RiskNotApplicable
	}

	if in.History.Overrides() {
		return domain.HighRisk
	}

	if in.FemoralNeckT == nil {
		if !in.L4Excluded && in.FullSpineLumbarT != nil && *in.FullSpineLumbarT <= osteoporosisThreshold {
			return domain.ModerateRisk
		}
		return domain.RiskNotCalculable
	}

	score := *in.FemoralNeckT
	moderate, high := t.CAROCThresholds(in.Sex, in.Age)
	switch {
	case score > moderate:
		if in.History.Escalates() || (in.LumbarScore != nil && *in.LumbarScore <= osteoporosisThreshold) {
			return domain.ModerateRisk
		}
		return domain.LowRisk
	case score > high:
		if in.History.Escalates() {
			return domain.HighRisk
		}
		return domain.ModerateRisk
	default:
		return domain.HighRisk
	}
}

// femoralNeckTScore returns the first femoral neck T-score found on the left
// femur, then the right.
func femoralNeckTScore(points []domain.PointMeasurement) *float64 {
	for _, side := range []domain.BodyPart{domain.LeftFemur, domain.RightFemur} {
		for _, p := range points {
			if p.BodyPart == side && p.Region == "Neck" && p.TScore != nil {
				return p.TScore
			}
		}
	}
	return nil
}
