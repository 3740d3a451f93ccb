package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

func TestReferenceExaminations(t *testing.T) {
	baseline := day(2016, 4, 2)
	prior := day(2022, 3, 10)

	tests := []struct {
		name  string
		dates ExamDates
		want  string
	}{
		{"none", ExamDates{}, "None."},
		{
			"one",
			ExamDates{Prior: &prior, Baseline: &prior, Previous: []time.Time{prior}},
			"Previous examination on March 10, 2022.",
		},
		{
			"two",
			ExamDates{Prior: &prior, Baseline: &baseline, Previous: []time.Time{baseline, prior}},
			"Baseline on 2016 and the previous on March 10, 2022.",
		},
		{
			"multiple",
			ExamDates{Prior: &prior, Baseline: &baseline, Previous: []time.Time{baseline, day(2019, 1, 1), prior}},
			"Multiple previous examinations, including a baseline on 2016 and the most recent on March 10, 2022.",
		},
		{
			"no covering baseline",
			ExamDates{Prior: &prior, Previous: []time.Time{day(2018, 8, 9), prior}},
			"Baseline on 2018 and the previous on March 10, 2022.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReferenceExaminations(tt.dates, false))
		})
	}

	t.Run("device replaced", func(t *testing.T) {
		got := ReferenceExaminations(ExamDates{}, true)
		assert.True(t, strings.HasPrefix(got, "None.\n\nThe BMD machine has been replaced"))
	})

	t.Run("single digit day is zero padded", func(t *testing.T) {
		d := day(2021, 7, 4)
		got := ReferenceExaminations(ExamDates{Prior: &d, Previous: []time.Time{d}}, false)
		assert.Equal(t, "Previous examination on July 04, 2021.", got)
	})
}

func TestTechnique(t *testing.T) {
	assert.Equal(t, "A baseline bone density study was obtained on this 52 year old male", Technique(52, domain.Male, 0))
	assert.Equal(t, "A repeat bone density study was obtained on this 71 year old female", Technique(71, domain.Female, 3))
}

func TestRenderReport(t *testing.T) {
	report := RenderReport(ReportText{
		ReferenceExaminations: "None.",
		Technique:             "A baseline bone density study was obtained on this 52 year old male",
		Findings:              "BONE MINERAL DENSITY: Normal bone mass",
		Summary:               "This patient has NORMAL BONE MASS with LOW FRACTURE RISK.",
	})

	assert.True(t, strings.HasPrefix(report, "\nEXAM: \n[<Examination Description>] \n\nCLINICAL INDICATION: \n"))
	assert.Contains(t, report, "REFERENCE EXAMINATIONS: \nNone.\n\n")
	assert.Contains(t, report, "TECHNIQUE: \nA baseline bone density study was obtained on this 52 year old male\n\n")
	assert.Contains(t, report, "FINDINGS:\nBONE MINERAL DENSITY: Normal bone mass \n\n")
	assert.Contains(t, report, "SUMMARY: \nThis patient has NORMAL BONE MASS with LOW FRACTURE RISK.\n\nCAROC recommendations (2010)")
	assert.True(t, strings.HasSuffix(report, "Bisphosphonate therapy may lower fracture risk. \n"))
}

func TestComposeSummary_Paragraphs(t *testing.T) {
	tables := testTables(t)

	t.Run("no changes", func(t *testing.T) {
		got := composeSummary(summaryInput{
			category:    domain.NormalBoneMass,
			risk:        domain.LowRisk,
			institution: "Mississauga Hospital",
			tables:      tables,
		})
		assert.Equal(t, []string{
			"This patient has NORMAL BONE MASS with LOW FRACTURE RISK.",
			"Follow-up suggested in 3 years.",
		}, got)
	})

	t.Run("significant increase keeps management", func(t *testing.T) {
		got := composeSummary(summaryInput{
			category:    domain.Osteoporosis,
			risk:        domain.HighRisk,
			changes:     []domain.ChangeResult{{Region: domain.HipRegion, Kind: domain.SignificantIncrease, Delta: 0.03}},
			history:     domain.FragilityHistory{FractureHistory: true, GlucocorticoidHistory: true},
			institution: "Queensway Hospital",
			tables:      tables,
		})
		assert.Equal(t, []string{
			"This patient has OSTEOPOROSIS with HIGH FRACTURE RISK.",
			"There has been a statistically SIGNIFICANT INCREASE in BMD in the hip. Current management remains appropriate.",
			"Fracture risk has been modified by the history of prior fragility fracture and glucocorticoid history.",
			"LSC (least significant change) at QH:\nLumbar spine - 0.039 gm/cm2\nTotal femur - 0.024 gm/cm2",
			"Follow-up suggested in 1 year, and bone active medication could be considered.",
		}, got)
	})

	t.Run("not calculable has no follow-up", func(t *testing.T) {
		got := composeSummary(summaryInput{
			category: domain.LowBoneMass,
			risk:     domain.RiskNotCalculable,
			tables:   tables,
		})
		assert.Equal(t, []string{"This patient has LOW BONE MASS."}, got)
	})

	t.Run("below expected under 50", func(t *testing.T) {
		got := composeSummary(summaryInput{
			category: domain.BelowExpected,
			risk:     domain.RiskNotApplicable,
			tables:   tables,
		})
		assert.Equal(t, []string{
			"This patient has BELOW EXPECTED RANGE FOR AGE.",
			"Follow-up suggested in 1 year.",
			string(domain.RiskNotApplicable),
		}, got)
	})
}
