package service

import (
	"gonum.org/v1/gonum/floats"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

// ClassifyDiagnosis maps the lowest score of a study to its diagnostic category.
// T-score boundaries apply from age 50, Z-score boundaries below.
func ClassifyDiagnosis(age int, scores []float64) (domain.DiagnosticCategory, error) {
	if len(scores) == 0 {
		return "", domain.ErrNoScores
	}
	m := floats.Min(scores)

	if age >= 50 {
		switch {
		case m <= -2.5:
			return domain.Osteoporosis, nil
		case m < -1.0:
			return domain.LowBoneMass, nil
		default:
			return domain.NormalBoneMass, nil
		}
	}
	if m <= -2.0 {
		return domain.BelowExpected, nil
	}
	return domain.WithinExpected, nil
}
