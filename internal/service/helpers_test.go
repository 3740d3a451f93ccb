package service

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
	"github.com/ibh-daai/bone-mineral-density/pkg/sr"
	"github.com/ibh-daai/bone-mineral-density/pkg/sr/srtest"
)

// MockMeasurementRepository is a mock implementation of domain.MeasurementRepository
type MockMeasurementRepository struct {
	mock.Mock
}

func (m *MockMeasurementRepository) PointMeasurements(ctx context.Context, studyID int64) ([]domain.PointMeasurement, error) {
	args := m.Called(ctx, studyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PointMeasurement), args.Error(1)
}

func (m *MockMeasurementRepository) TrendMeasurements(ctx context.Context, studyID int64) ([]domain.TrendMeasurement, error) {
	args := m.Called(ctx, studyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TrendMeasurement), args.Error(1)
}

func f(v float64) *float64 { return &v }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress logs during testing
	return logger
}

func testTables(t *testing.T) *ReferenceTables {
	t.Helper()
	tables, err := DefaultReferenceTables()
	require.NoError(t, err)
	return tables
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sampleExtraction extracts the canned sample report.
func sampleExtraction(t *testing.T) Extraction {
	t.Helper()
	root, err := sr.FromJSON(srtest.SampleContent().JSON())
	require.NoError(t, err)
	content, err := sr.Parse(root)
	require.NoError(t, err)
	return NewMeasurementExtractor(quietLogger()).Extract(content)
}

// sampleContext is the study context of the sample report.
func sampleContext() domain.StudyContext {
	return domain.StudyContext{
		Age:             65,
		Sex:             domain.Female,
		InstitutionName: "Mississauga Hospital",
		ExamDate:        time.Date(2024, 3, 15, 10, 15, 0, 0, time.UTC),
	}
}

func point(part domain.BodyPart, region string, bmd float64, t, z *float64) domain.PointMeasurement {
	return domain.PointMeasurement{BodyPart: part, Region: region, BMD: bmd, TScore: t, ZScore: z}
}

func trend(part domain.BodyPart, region string, date time.Time, bmd float64) domain.TrendMeasurement {
	return domain.TrendMeasurement{BodyPart: part, Region: domain.TrendRegion(region), Date: date, BMD: bmd}
}
