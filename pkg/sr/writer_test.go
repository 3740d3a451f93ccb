package sr

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func sampleContent() ReportContent {
	return ReportContent{
		Source: Header{
			PatientID:        "MRN0001",
			PatientName:      "DOE^JANE",
			PatientSex:       "F",
			AccessionNumber:  "ACC0001",
			SOPInstanceUID:   "1.2.3.4.5.6.7.1",
			SOPClassUID:      "1.2.840.10008.5.1.4.1.1.88.22",
			StudyInstanceUID: "1.2.3.4.5.6",
			StudyDate:        "20240315",
			StudyTime:        "101500",
			InstitutionName:  "Mississauga Hospital",
		},
		Sections: []ReportSection{
			{Title: "Findings", Text: "LEFT FEMORAL NECK = 0.7 g/cm2. T-score = -2.0"},
			{Title: "Summary", Text: "This patient has LOW BONE MASS with MODERATE FRACTURE RISK."},
		},
		Created: time.Date(2024, 3, 16, 8, 30, 0, 0, time.UTC),
	}
}

func TestBuildReport_ContentRoundTrip(t *testing.T) {
	built, err := BuildReport(sampleContent())
	require.NoError(t, err)

	assert.True(t, IsGeneratedSeries(built.SeriesInstanceUID))
	assert.NotEqual(t, built.SOPInstanceUID, built.SeriesInstanceUID)

	doc, err := ParseDocument(FromDataset(built.Dataset))
	require.NoError(t, err)

	assert.Equal(t, "BMD INTERPRETATION", doc.Content.Name)
	assert.Equal(t, Text("LEFT FEMORAL NECK = 0.7 g/cm2. T-score = -2.0"), doc.Content.Children["Findings"])
	assert.Equal(t, Text("This patient has LOW BONE MASS with MODERATE FRACTURE RISK."), doc.Content.Children["Summary"])
	assert.Empty(t, doc.Skipped)

	assert.Equal(t, "ACC0001", doc.Header.AccessionNumber)
	assert.Equal(t, "MRN0001", doc.Header.PatientID)
	assert.Equal(t, ComprehensiveSRStorage, doc.Header.SOPClassUID)
	assert.Equal(t, built.SOPInstanceUID, doc.Header.SOPInstanceUID)
	assert.Equal(t, "1.2.3.4.5.6", doc.Header.StudyInstanceUID)

	ref, ok := first(FromDataset(built.Dataset), tag.ReferencedStudySequence)
	require.True(t, ok)
	refUID, _ := ref.String(tag.ReferencedSOPInstanceUID)
	assert.Equal(t, "1.2.3.4.5.6.7.1", refUID)
}

func TestBuildReport_NoSourceReference(t *testing.T) {
	rc := sampleContent()
	rc.Source.SOPInstanceUID = ""

	built, err := BuildReport(rc)
	require.NoError(t, err)

	_, ok := FromDataset(built.Dataset).Sequence(tag.ReferencedStudySequence)
	assert.False(t, ok)
}

func TestEncode_Part10(t *testing.T) {
	built, err := BuildReport(sampleContent())
	require.NoError(t, err)

	data, err := Encode(built.Dataset)
	require.NoError(t, err)
	require.Greater(t, len(data), 132)
	assert.Equal(t, "DICM", string(data[128:132]))

	root, err := ParseReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	c, err := Parse(root)
	require.NoError(t, err)
	assert.Len(t, c.Children, 2)
}

func TestNewUID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		uid := NewUID(reportSeriesPrefix)
		assert.True(t, strings.HasPrefix(uid, reportSeriesPrefix))
		assert.LessOrEqual(t, len(uid), maxUIDLength)
		assert.NotContains(t, uid, "..")
		assert.False(t, seen[uid], "duplicate uid %s", uid)
		seen[uid] = true
	}
}

func TestIsGeneratedSeries(t *testing.T) {
	assert.True(t, IsGeneratedSeries(UIDRoot+"2.3.12345"))
	assert.False(t, IsGeneratedSeries("1.2.840.113619.2.110.1"))
}
