package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

const sampleFindings = "LUMBAR SPINE (L1-L3) = 1.023 g/cm2. T-score = -1.2 This value has decreased by 0.047 g/cm2 (4.4%) compared to the previous.\n\n" +
	"L4 has been excluded from these calculations because it is significantly different than all the other vertebral bodies.\n\n" +
	"LEFT FEMORAL NECK = 0.7 g/cm2. T-score = -2.0 This value has decreased by 0.01 g/cm2 (1.4%) compared to the previous.\n\n" +
	"TOTAL PROXIMAL LEFT FEMUR = 0.82 g/cm2. T-score = -1.3 This value has decreased by 0.005 g/cm2 (0.6%) compared to the previous.\n\n" +
	"BONE MINERAL DENSITY: Low bone mass\n\n" +
	"10 YEAR ABSOLUTE FRACTURE RISK: Moderate, 10-20%"

const sampleSummary = "This patient has LOW BONE MASS with MODERATE FRACTURE RISK.\n\n" +
	"In patients with moderate fracture risk, it would be appropriate to consider a lateral x-ray of the thoracic and lumbar spine from T4-L4 to assess for possible compression fractures.\n\n" +
	"The presence of a compression fracture of more than 25% would place the patient into the HIGH RISK category for future fractures and could change management strategies.\n\n" +
	"There has been a statistically SIGNIFICANT DECREASE in BMD in the lumbar spine. There has been NO statistically significant change in BMD in the hip from the prior examination. Current management could be reassessed.\n\n" +
	"LSC (least significant change) at MH:\nLumbar spine - 0.033 gm/cm2\nTotal femur - 0.017 gm/cm2\n\n" +
	"Follow-up suggested in 1-3 years, and bone active medication could be considered."

func newTestInterpreter(t *testing.T, repo domain.MeasurementRepository) *BoneDensityInterpreter {
	t.Helper()
	return NewBoneDensityInterpreter(quietLogger(), repo, testTables(t), EngineOptions{})
}

func TestInterpretTables_Sample(t *testing.T) {
	ex := sampleExtraction(t)
	interp := newTestInterpreter(t, nil)

	result, err := interp.InterpretTables(sampleContext(), domain.FragilityHistory{}, ex.Points, ex.Trends)
	require.NoError(t, err)

	assert.Equal(t, sampleFindings, result.Findings)
	assert.Equal(t, sampleSummary, result.Summary)
	assert.Equal(t, "Baseline on 2020 and the previous on March 10, 2022.", result.ReferenceExaminations)
	assert.Equal(t, "A repeat bone density study was obtained on this 65 year old female", result.Technique)
	assert.Equal(t, domain.LowBoneMass, result.DiagnosticCategory)
	assert.Equal(t, domain.ModerateRisk, result.FractureRisk)
	assert.Equal(t, []float64{-1.2, -2.0, -1.3}, result.Scores)
	assert.Equal(t, []string{"L1", "L2", "L3"}, result.Selection.Combination)
	assert.Empty(t, result.Warnings)

	require.Len(t, result.Changes, 2)
	assert.Equal(t, domain.ChangeResult{Region: domain.LumbarSpineRegion, Kind: domain.SignificantDecrease, Delta: -0.047}, result.Changes[0])
	assert.Equal(t, domain.ChangeResult{Region: domain.HipRegion, Kind: domain.NotSignificant, Delta: -0.005}, result.Changes[1])

	assert.Contains(t, result.Report, "FINDINGS:\n"+sampleFindings+" \n\n")
	assert.Contains(t, result.Report, "SUMMARY: \n"+sampleSummary+"\n\n")
}

func TestInterpretTables_Deterministic(t *testing.T) {
	ex := sampleExtraction(t)
	interp := newTestInterpreter(t, nil)

	first, err := interp.InterpretTables(sampleContext(), domain.FragilityHistory{}, ex.Points, ex.Trends)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*Interpretation, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = interp.InterpretTables(sampleContext(), domain.FragilityHistory{}, ex.Points, ex.Trends)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, first.Report, r.Report)
	}
}

func TestInterpretTables_Errors(t *testing.T) {
	interp := newTestInterpreter(t, nil)

	_, err := interp.InterpretTables(sampleContext(), domain.FragilityHistory{}, nil, nil)
	assert.ErrorIs(t, err, domain.ErrNoBMDValues)

	points := []domain.PointMeasurement{point(domain.LeftFemur, "Neck", 0.7, nil, nil)}
	_, err = interp.InterpretTables(sampleContext(), domain.FragilityHistory{}, points, nil)
	assert.ErrorIs(t, err, domain.ErrNoScores)
}

func TestInterpretTables_ComparisonSuppressed(t *testing.T) {
	ex := sampleExtraction(t)
	study := sampleContext()
	study.ComparisonSuppressed = true

	result, err := newTestInterpreter(t, nil).InterpretTables(study, domain.FragilityHistory{}, ex.Points, ex.Trends)
	require.NoError(t, err)

	assert.NotContains(t, result.Findings, "compared to the previous")
	assert.Empty(t, result.Changes)
	assert.Contains(t, result.Summary, cannotCompareStatement)
	assert.NotContains(t, result.Summary, "LSC (least significant change)")
	assert.True(t, strings.HasSuffix(result.ReferenceExaminations, deviceReplacedNotice))
}

func TestInterpretTables_Male(t *testing.T) {
	ex := sampleExtraction(t)
	study := sampleContext()
	study.Sex = domain.Male

	result, err := newTestInterpreter(t, nil).InterpretTables(study, domain.FragilityHistory{}, ex.Points, ex.Trends)
	require.NoError(t, err)

	assert.Contains(t, result.Findings, "LEFT FEMORAL NECK (FEMALE REFERENCE) = 0.7 g/cm2. T-score = -2.0\n\n")
	assert.Contains(t, result.Technique, "65 year old male")
	// male 65 moderate threshold is -2.4
	assert.Equal(t, domain.LowRisk, result.FractureRisk)
	assert.True(t, strings.HasPrefix(result.Summary, "This patient has LOW BONE MASS with LOW FRACTURE RISK."))
}

func TestInterpretTables_UnderFifty(t *testing.T) {
	ex := sampleExtraction(t)
	study := sampleContext()
	study.Age = 45

	result, err := newTestInterpreter(t, nil).InterpretTables(study, domain.FragilityHistory{PriorHipFracture: true}, ex.Points, ex.Trends)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.Findings, "LUMBAR SPINE (L1-L4) = 0.985 g/cm2. Z-score = -0.4"))
	assert.NotContains(t, result.Findings, "has been excluded")
	assert.Equal(t, domain.WithinExpected, result.DiagnosticCategory)
	assert.Equal(t, domain.RiskNotApplicable, result.FractureRisk)
	assert.True(t, strings.HasPrefix(result.Summary, "This patient has WITHIN EXPECTED RANGE FOR AGE.\n\n"))
	assert.True(t, strings.HasSuffix(result.Summary, "Follow-up suggested in 3 years.\n\n"+string(domain.RiskNotApplicable)))
}

func TestInterpretTables_History(t *testing.T) {
	ex := sampleExtraction(t)
	history := domain.FragilityHistory{GlucocorticoidHistory: true}

	result, err := newTestInterpreter(t, nil).InterpretTables(sampleContext(), history, ex.Points, ex.Trends)
	require.NoError(t, err)

	assert.Equal(t, domain.HighRisk, result.FractureRisk)
	assert.Contains(t, result.Summary, "Fracture risk has been modified by glucocorticoid history.")
	assert.True(t, strings.HasSuffix(result.Summary, "Follow-up suggested in 1 year, and bone active medication could be considered."))
}

func TestInterpretTables_UnknownInstitution(t *testing.T) {
	ex := sampleExtraction(t)
	study := sampleContext()
	study.InstitutionName = "Elsewhere Clinic"

	result, err := newTestInterpreter(t, nil).InterpretTables(study, domain.FragilityHistory{}, ex.Points, ex.Trends)
	require.NoError(t, err)

	assert.Empty(t, result.Changes)
	assert.Len(t, result.Warnings, 2)
	assert.NotContains(t, result.Summary, "statistically")
	// the findings still report the raw deltas
	assert.Equal(t, sampleFindings, result.Findings)
}

func TestInterpretTables_NoSpineScan(t *testing.T) {
	points := []domain.PointMeasurement{
		point(domain.LeftFemur, "Neck", 0.7, f(-2.0), nil),
		point(domain.LeftForearm, "Radius 33%", 0.6, f(-1.1), nil),
	}

	result, err := newTestInterpreter(t, nil).InterpretTables(sampleContext(), domain.FragilityHistory{}, points, nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.Findings, "Lumbar spine: No valid scans available.\n\n"))
	assert.Contains(t, result.Findings, "1/3 LEFT RADIUS = 0.6 g/cm2. T-score = -1.1")
	assert.Equal(t, "None.", result.ReferenceExaminations)
	assert.Contains(t, result.Technique, "A baseline bone density study")
	assert.NotContains(t, result.Summary, "statistically")
}

func TestInterpret_LoadsTablesFromRepository(t *testing.T) {
	ex := sampleExtraction(t)
	repo := new(MockMeasurementRepository)
	repo.On("PointMeasurements", mock.Anything, int64(7)).Return(ex.Points, nil)
	repo.On("TrendMeasurements", mock.Anything, int64(7)).Return(ex.Trends, nil)

	result, err := newTestInterpreter(t, repo).Interpret(context.Background(), InterpretRequest{StudyID: 7, Context: sampleContext()})
	require.NoError(t, err)
	assert.Equal(t, sampleFindings, result.Findings)
	repo.AssertExpectations(t)
}

func TestInterpret_RepositoryError(t *testing.T) {
	repo := new(MockMeasurementRepository)
	repo.On("PointMeasurements", mock.Anything, int64(7)).Return(nil, errors.New("connection refused"))

	_, err := newTestInterpreter(t, repo).Interpret(context.Background(), InterpretRequest{StudyID: 7, Context: sampleContext()})
	assert.ErrorContains(t, err, "connection refused")
	repo.AssertNotCalled(t, "TrendMeasurements", mock.Anything, mock.Anything)
}

func TestInterpret_NoPoints(t *testing.T) {
	repo := new(MockMeasurementRepository)
	repo.On("PointMeasurements", mock.Anything, int64(9)).Return([]domain.PointMeasurement{}, nil)
	repo.On("TrendMeasurements", mock.Anything, int64(9)).Return(nil, nil)

	_, err := newTestInterpreter(t, repo).Interpret(context.Background(), InterpretRequest{StudyID: 9, Context: sampleContext()})
	assert.ErrorIs(t, err, domain.ErrNoBMDValues)
}

// unchangedTables describes a study whose lumbar spine and total femur BMD
// equal the prior exam exactly.
func unchangedTables() ([]domain.PointMeasurement, []domain.TrendMeasurement) {
	points := []domain.PointMeasurement{
		point(domain.APSpine, "L1", 0.95, f(-1.1), nil),
		point(domain.APSpine, "L2", 1.0, f(-1.0), nil),
		point(domain.APSpine, "L3", 1.02, f(-0.9), nil),
		point(domain.APSpine, "L4", 1.03, f(-0.8), nil),
		point(domain.APSpine, "L1-L4", 1.0, f(-1.0), nil),
		point(domain.LeftFemur, "Neck", 0.8, f(-1.2), nil),
		point(domain.LeftFemur, "Total", 0.9, f(-0.8), nil),
	}
	trends := []domain.TrendMeasurement{
		{BodyPart: domain.APSpine, Region: "Trend L1-L4", Date: day(2022, 3, 10), BMD: 1.0},
		{BodyPart: domain.LeftFemur, Region: "Trend Total", Date: day(2022, 3, 10), BMD: 0.9},
	}
	return points, trends
}

func TestInterpretTables_ZeroDeltas(t *testing.T) {
	points, trends := unchangedTables()

	t.Run("hip zero is not recorded by default", func(t *testing.T) {
		result, err := newTestInterpreter(t, nil).InterpretTables(sampleContext(), domain.FragilityHistory{}, points, trends)
		require.NoError(t, err)

		require.Len(t, result.Changes, 1)
		assert.Equal(t, domain.LumbarSpineRegion, result.Changes[0].Region)
		assert.Equal(t, domain.NotSignificant, result.Changes[0].Kind)
		assert.Zero(t, result.Changes[0].Delta)
	})

	t.Run("hip zero recorded when enabled", func(t *testing.T) {
		interp := NewBoneDensityInterpreter(quietLogger(), nil, testTables(t), EngineOptions{RecordZeroHipChange: true})
		result, err := interp.InterpretTables(sampleContext(), domain.FragilityHistory{}, points, trends)
		require.NoError(t, err)

		require.Len(t, result.Changes, 2)
		assert.Equal(t, domain.LumbarSpineRegion, result.Changes[0].Region)
		assert.Equal(t, domain.HipRegion, result.Changes[1].Region)
		assert.Equal(t, domain.NotSignificant, result.Changes[1].Kind)
		assert.Zero(t, result.Changes[1].Delta)
	})
}
