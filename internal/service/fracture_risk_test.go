package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

func TestClassifyFractureRisk(t *testing.T) {
	tables := testTables(t)

	tests := []struct {
		name string
		in   FractureRiskInput
		want domain.FractureRisk
	}{
		{
			name: "moderate band",
			in:   FractureRiskInput{FemoralNeckT: f(-2.0), Age: 65, Sex: domain.Female},
			want: domain.ModerateRisk,
		},
		{
			name: "low band",
			in:   FractureRiskInput{FemoralNeckT: f(-1.0), Age: 65, Sex: domain.Female},
			want: domain.LowRisk,
		},
		{
			name: "high band",
			in:   FractureRiskInput{FemoralNeckT: f(-3.6), Age: 65, Sex: domain.Female},
			want: domain.HighRisk,
		},
		{
			name: "score equal to the moderate threshold is moderate",
			in:   FractureRiskInput{FemoralNeckT: f(-1.9), Age: 65, Sex: domain.Female},
			want: domain.ModerateRisk,
		},
		{
			name: "male table",
			in:   FractureRiskInput{FemoralNeckT: f(-2.0), Age: 80, Sex: domain.Male},
			want: domain.LowRisk,
		},
		{
			name: "low band raised by osteoporotic lumbar score",
			in:   FractureRiskInput{FemoralNeckT: f(-1.0), LumbarScore: f(-2.5), Age: 65, Sex: domain.Female},
			want: domain.ModerateRisk,
		},
		{
			name: "low band raised by fracture history",
			in: FractureRiskInput{FemoralNeckT: f(-1.0), Age: 65, Sex: domain.Female,
				History: domain.FragilityHistory{FractureHistory: true}},
			want: domain.ModerateRisk,
		},
		{
			name: "moderate band raised by glucocorticoid history",
			in: FractureRiskInput{FemoralNeckT: f(-2.0), Age: 65, Sex: domain.Female,
				History: domain.FragilityHistory{GlucocorticoidHistory: true}},
			want: domain.HighRisk,
		},
		{
			name: "fracture and glucocorticoid history override",
			in: FractureRiskInput{FemoralNeckT: f(1.0), Age: 65, Sex: domain.Female,
				History: domain.FragilityHistory{FractureHistory: true, GlucocorticoidHistory: true}},
			want: domain.HighRisk,
		},
		{
			name: "prior hip fracture overrides without a femoral neck",
			in: FractureRiskInput{Age: 70, Sex: domain.Male,
				History: domain.FragilityHistory{PriorHipFracture: true}},
			want: domain.HighRisk,
		},
		{
			name: "two or more fractures override",
			in: FractureRiskInput{FemoralNeckT: f(-0.5), Age: 58, Sex: domain.Female,
				History: domain.FragilityHistory{TwoOrMoreFractures: true}},
			want: domain.HighRisk,
		},
		{
			name: "no femoral neck falls back to L1-L4",
			in:   FractureRiskInput{FullSpineLumbarT: f(-2.7), Age: 65, Sex: domain.Female},
			want: domain.ModerateRisk,
		},
		{
			name: "no femoral neck and L4 excluded",
			in:   FractureRiskInput{FullSpineLumbarT: f(-2.7), Age: 65, Sex: domain.Female, L4Excluded: true},
			want: domain.RiskNotCalculable,
		},
		{
			name: "no femoral neck and lumbar above threshold",
			in:   FractureRiskInput{FullSpineLumbarT: f(-2.0), Age: 65, Sex: domain.Female},
			want: domain.RiskNotCalculable,
		},
		{
			name: "no scores at all",
			in:   FractureRiskInput{Age: 65, Sex: domain.Female},
			want: domain.RiskNotCalculable,
		},
		{
			name: "under 50 is never stated",
			in: FractureRiskInput{FemoralNeckT: f(-3.0), Age: 49, Sex: domain.Female,
				History: domain.FragilityHistory{PriorHipFracture: true}},
			want: domain.RiskNotApplicable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tables.ClassifyFractureRisk(tt.in))
		})
	}
}

func TestClassifyFractureRisk_MonotoneInNeckScore(t *testing.T) {
	tables := testTables(t)
	rank := map[domain.FractureRisk]int{domain.LowRisk: 0, domain.ModerateRisk: 1, domain.HighRisk: 2}

	for _, sex := range []domain.Sex{domain.Female, domain.Male} {
		for age := 50; age <= 95; age += 5 {
			prev := -1
			for score := 1.0; score >= -5.0; score -= 0.25 {
				got := tables.ClassifyFractureRisk(FractureRiskInput{FemoralNeckT: f(score), Age: age, Sex: sex})
				assert.GreaterOrEqual(t, rank[got], prev, "sex=%s age=%d score=%.2f", sex, age, score)
				prev = rank[got]
			}
		}
	}
}

func TestFemoralNeckTScore(t *testing.T) {
	points := []domain.PointMeasurement{
		point(domain.RightFemur, "Neck", 0.7, f(-1.5), nil),
		point(domain.LeftFemur, "Total", 0.8, f(-1.0), nil),
	}
	assert.Equal(t, -1.5, *femoralNeckTScore(points))

	points = append(points, point(domain.LeftFemur, "Neck", 0.65, f(-2.2), nil))
	assert.Equal(t, -2.2, *femoralNeckTScore(points))

	assert.Nil(t, femoralNeckTScore([]domain.PointMeasurement{point(domain.LeftFemur, "Neck", 0.65, nil, f(-1.0))}))
}
