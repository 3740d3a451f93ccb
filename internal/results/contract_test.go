package results

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

func testRecord(accession, sop string, at time.Time) *domain.ResultRecord {
	return &domain.ResultRecord{
		SOPInstanceUID:        sop,
		SeriesInstanceUID:     sop + ".1",
		StudyInstanceUID:      "1.2.3.4.5.6",
		PatientID:             "MRN0001",
		Accession:             accession,
		DiagnosticCategory:    domain.Osteoporosis,
		FractureRisk:          domain.HighRisk,
		Findings:              "BONE MINERAL DENSITY: Osteoporosis",
		Summary:               "This patient has OSTEOPOROSIS with HIGH FRACTURE RISK.",
		GeneratedReport:       "\nEXAM: \n",
		Scores:                []float64{-2.6, -1.9},
		SourceSOPInstanceUIDs: []string{"1.2.3.4.5.6.7.1"},
		CreatedAt:             at,
	}
}

// exerciseStore runs the behaviour every Store must have against an empty store.
func exerciseStore(t *testing.T, store Store) {
	ctx := context.Background()
	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	first := testRecord("ACC0001", "1.2.3.1", base)
	require.NoError(t, store.SaveResult(ctx, first))
	assert.NotEmpty(t, first.ID, "ID should be assigned")

	second := testRecord("ACC0001", "1.2.3.2", base.Add(time.Hour))
	second.FractureRisk = domain.ModerateRisk
	second.Scores = nil
	second.SourceSOPInstanceUIDs = nil
	require.NoError(t, store.SaveResult(ctx, second))

	other := testRecord("ACC0002", "1.2.3.3", base.Add(2*time.Hour))
	require.NoError(t, store.SaveResult(ctx, other))

	got, err := store.GetResultsByAccession(ctx, "ACC0001")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID, "newest first")
	assert.Equal(t, domain.ModerateRisk, got[0].FractureRisk)
	assert.Empty(t, got[0].Scores)
	assert.Empty(t, got[0].SourceSOPInstanceUIDs)
	assert.Equal(t, first.ID, got[1].ID)
	assert.Equal(t, []float64{-2.6, -1.9}, got[1].Scores)
	assert.Equal(t, []string{"1.2.3.4.5.6.7.1"}, got[1].SourceSOPInstanceUIDs)
	assert.Equal(t, domain.Osteoporosis, got[1].DiagnosticCategory)
	assert.True(t, got[1].CreatedAt.Equal(base))

	none, err := store.GetResultsByAccession(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)

	recent, err := store.ListResults(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, other.ID, recent[0].ID)

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(ctx, &buf))
	assert.Contains(t, buf.String(), `"version": "1.0"`)
	assert.Contains(t, buf.String(), `"count": 3`)

	// importing the store's own export skips everything
	imported, skipped, err := store.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
	assert.Equal(t, 3, skipped)
}
