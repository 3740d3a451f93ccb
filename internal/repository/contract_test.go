package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

func f(v float64) *float64 { return &v }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testBundle(sop string) *domain.IngestBundle {
	return &domain.IngestBundle{
		Patient: domain.Patient{MRN: "MRN0001", Sex: "F", BirthDate: "19590412"},
		Study: domain.Study{
			StudyInstanceUID: "1.2.3.4.5.6",
			Accession:        "ACC0001",
			DateTime:         time.Date(2024, 3, 15, 10, 15, 0, 0, time.UTC),
			Description:      "BONE DENSITY",
			Age:              65,
			Weight:           f(61.5),
			InstitutionName:  "Mississauga Hospital",
			Manufacturer:     "GE Healthcare",
		},
		Report: domain.Report{SOPInstanceUID: sop},
		Points: []domain.PointMeasurement{
			{BodyPart: domain.APSpine, Region: "L1-L4", BMD: 0.985, TScore: f(-1.6), ZScore: f(-0.4)},
			{BodyPart: domain.LeftFemur, Region: "Total", BMD: 0.82, TScore: f(-1.3)},
			{BodyPart: domain.LeftFemur, Region: "Neck", BMD: 0.7, TScore: f(-2.0), ZScore: f(-0.8)},
		},
		Trends: []domain.TrendMeasurement{
			{BodyPart: domain.APSpine, Region: "Trend L1-L4", Date: day(2022, 3, 10), Age: f(63), BMD: 1.03},
			{BodyPart: domain.APSpine, Region: "Trend L1-L4", Date: day(2020, 3, 5), Age: f(61), BMD: 1.04},
			{BodyPart: domain.LeftFemur, Region: "Trend Neck", Date: day(2022, 3, 10), BMD: 0.71, ChangeVsPrevious: f(-0.01)},
		},
	}
}

// studyRepository is the surface both implementations share.
type studyRepository interface {
	domain.StudyRepository
}

// exerciseRepository runs the behaviour every StudyRepository must have.
func exerciseRepository(t *testing.T, repo studyRepository) {
	ctx := context.Background()

	exists, err := repo.ReportExists(ctx, "1.2.3.1")
	require.NoError(t, err)
	assert.False(t, exists)

	bundle := testBundle("1.2.3.1")
	require.NoError(t, repo.SaveReport(ctx, bundle))
	assert.NotZero(t, bundle.Patient.ID)
	assert.NotZero(t, bundle.Study.ID)
	assert.Equal(t, bundle.Patient.ID, bundle.Study.PatientID)
	assert.Equal(t, bundle.Study.ID, bundle.Report.StudyID)

	exists, err = repo.ReportExists(ctx, "1.2.3.1")
	require.NoError(t, err)
	assert.True(t, exists)

	err = repo.SaveReport(ctx, testBundle("1.2.3.1"))
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)

	points, err := repo.PointMeasurements(ctx, bundle.Study.ID)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, domain.LeftFemur, points[0].BodyPart)
	assert.Equal(t, "Neck", points[0].Region)
	assert.Equal(t, "Total", points[1].Region)
	assert.Nil(t, points[1].ZScore)
	assert.Equal(t, domain.APSpine, points[2].BodyPart)

	trends, err := repo.TrendMeasurements(ctx, bundle.Study.ID)
	require.NoError(t, err)
	require.Len(t, trends, 3)
	assert.Equal(t, day(2020, 3, 5), trends[0].Date.UTC())
	assert.Equal(t, domain.LeftFemur, trends[1].BodyPart)
	require.NotNil(t, trends[1].ChangeVsPrevious)
	assert.Equal(t, -0.01, *trends[1].ChangeVsPrevious)

	// a second report of the same study joins it and replaces matching rows
	second := testBundle("1.2.3.2")
	second.Points = []domain.PointMeasurement{{BodyPart: domain.LeftFemur, Region: "Neck", BMD: 0.69, TScore: f(-2.1)}}
	second.Trends = nil
	require.NoError(t, repo.SaveReport(ctx, second))
	assert.Equal(t, bundle.Study.ID, second.Study.ID)
	assert.Equal(t, bundle.Patient.ID, second.Patient.ID)

	points, err = repo.PointMeasurements(ctx, bundle.Study.ID)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, 0.69, points[0].BMD)

	study, patient, err := repo.StudyByAccession(ctx, "ACC0001")
	require.NoError(t, err)
	assert.Equal(t, bundle.Study.ID, study.ID)
	assert.Equal(t, 65, study.Age)
	assert.Equal(t, "Mississauga Hospital", study.InstitutionName)
	require.NotNil(t, study.Weight)
	assert.Equal(t, 61.5, *study.Weight)
	assert.Nil(t, study.Size)
	assert.True(t, study.DateTime.Equal(time.Date(2024, 3, 15, 10, 15, 0, 0, time.UTC)))
	assert.Equal(t, time.UTC, study.DateTime.Location())
	assert.Equal(t, "MRN0001", patient.MRN)

	_, _, err = repo.StudyByAccession(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	points, err = repo.PointMeasurements(ctx, 9999)
	require.NoError(t, err)
	assert.Empty(t, points)
}
