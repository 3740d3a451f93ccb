package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

func TestFindExamDates(t *testing.T) {
	study := time.Date(2024, 3, 15, 10, 15, 0, 0, time.UTC)

	t.Run("no trend rows", func(t *testing.T) {
		dates := FindExamDates(study, nil)
		assert.Nil(t, dates.Prior)
		assert.Nil(t, dates.Baseline)
		assert.Equal(t, 0, dates.PreviousCount())
	})

	t.Run("prior and baseline", func(t *testing.T) {
		trends := []domain.TrendMeasurement{
			trend(domain.APSpine, "L1-L4", day(2018, 5, 1), 1.1),
			trend(domain.APSpine, "L1-L4", day(2020, 6, 1), 1.09),
			trend(domain.LeftFemur, "Neck", day(2020, 6, 1), 0.72),
			trend(domain.APSpine, "L1-L4", day(2022, 3, 10), 1.07),
			trend(domain.LeftFemur, "Neck", day(2022, 3, 10), 0.71),
			// the current exam appears in its own trend table
			trend(domain.APSpine, "L1-L4", day(2024, 3, 15), 1.02),
		}

		dates := FindExamDates(study, trends)
		require.NotNil(t, dates.Prior)
		require.NotNil(t, dates.Baseline)
		assert.Equal(t, day(2022, 3, 10), *dates.Prior)
		assert.Equal(t, day(2020, 6, 1), *dates.Baseline)
		assert.Equal(t, []time.Time{day(2018, 5, 1), day(2020, 6, 1), day(2022, 3, 10)}, dates.Previous)
		assert.Equal(t, 3, dates.PreviousCount())
	})

	t.Run("no date covers every body part", func(t *testing.T) {
		trends := []domain.TrendMeasurement{
			trend(domain.APSpine, "L1-L4", day(2020, 6, 1), 1.09),
			trend(domain.LeftFemur, "Neck", day(2022, 3, 10), 0.71),
		}
		dates := FindExamDates(study, trends)
		require.NotNil(t, dates.Prior)
		assert.Equal(t, day(2022, 3, 10), *dates.Prior)
		assert.Nil(t, dates.Baseline)
	})

	t.Run("only the current exam", func(t *testing.T) {
		trends := []domain.TrendMeasurement{
			trend(domain.APSpine, "L1-L4", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), 1.02),
		}
		dates := FindExamDates(study, trends)
		assert.Nil(t, dates.Prior)
		assert.Empty(t, dates.Previous)
	})
}

func TestFindExamDates_ReadsDayInUTC(t *testing.T) {
	// 02:00 UTC is still the previous evening in Ontario
	eastern := time.FixedZone("EST", -5*60*60)
	study := time.Date(2024, 3, 15, 2, 0, 0, 0, time.UTC).In(eastern)
	trends := []domain.TrendMeasurement{
		{BodyPart: domain.APSpine, Region: "Trend L1-L4", Date: day(2024, 3, 14), BMD: 1.0},
		{BodyPart: domain.APSpine, Region: "Trend L1-L4", Date: day(2024, 3, 15), BMD: 1.0},
	}

	got := FindExamDates(study, trends)
	require.NotNil(t, got.Prior)
	assert.Equal(t, day(2024, 3, 14), *got.Prior)
	assert.Equal(t, 1, got.PreviousCount())
}

func TestReferenceFor(t *testing.T) {
	prior := day(2022, 3, 10)
	trends := []domain.TrendMeasurement{
		trend(domain.APSpine, "L1-L4", day(2020, 6, 1), 1.09),
		trend(domain.APSpine, "L1-L4", prior, 1.07),
		trend(domain.APSpine, "L1-L3", prior, 1.06),
		trend(domain.LeftFemur, "Neck", prior, 0.71),
	}

	ref, ok := ReferenceFor(trends, &prior, domain.APSpine, "L1-L3")
	require.True(t, ok)
	assert.Equal(t, 1.06, ref.BMD)

	ref, ok = ReferenceFor(trends, &prior, domain.LeftFemur, "Neck")
	require.True(t, ok)
	assert.Equal(t, 0.71, ref.BMD)

	_, ok = ReferenceFor(trends, &prior, domain.RightFemur, "Neck")
	assert.False(t, ok)

	_, ok = ReferenceFor(trends, nil, domain.APSpine, "L1-L4")
	assert.False(t, ok)
}

func TestCompare(t *testing.T) {
	d := Compare(1.023, 1.070)
	assert.Equal(t, -0.047, d.Change)
	assert.Equal(t, -4.4, d.Percent)
	assert.False(t, d.Increased())

	d = Compare(0.9, 0.85)
	assert.Equal(t, 0.05, d.Change)
	assert.Equal(t, 5.9, d.Percent)
	assert.True(t, d.Increased())

	d = Compare(0.8, 0)
	assert.Equal(t, 0.8, d.Change)
	assert.Equal(t, 0.0, d.Percent)
}

func TestClassifyChange(t *testing.T) {
	tables := testTables(t)

	tests := []struct {
		name   string
		delta  float64
		region domain.ComparisonRegion
		want   domain.ChangeKind
	}{
		{"lumbar decrease beyond LSC", -0.05, domain.LumbarSpineRegion, domain.SignificantDecrease},
		{"lumbar increase beyond LSC", 0.04, domain.LumbarSpineRegion, domain.SignificantIncrease},
		{"lumbar at LSC", -0.033, domain.LumbarSpineRegion, domain.NotSignificant},
		{"hip within LSC", -0.01, domain.HipRegion, domain.NotSignificant},
		{"hip beyond LSC", -0.018, domain.HipRegion, domain.SignificantDecrease},
		{"zero", 0, domain.HipRegion, domain.NotSignificant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tables.ClassifyChange(tt.delta, tt.region, "Mississauga Hospital")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, tt.region, got.Region)
			assert.Equal(t, tt.delta, got.Delta)
		})
	}

	t.Run("institution names are matched case-insensitively", func(t *testing.T) {
		got, err := tables.ClassifyChange(-0.05, domain.LumbarSpineRegion, "  mississauga hospital ")
		require.NoError(t, err)
		assert.Equal(t, domain.SignificantDecrease, got.Kind)
	})

	t.Run("unknown institution", func(t *testing.T) {
		_, err := tables.ClassifyChange(-0.05, domain.LumbarSpineRegion, "Unknown Clinic")
		assert.ErrorIs(t, err, domain.ErrUnknownInstitution)
	})
}
