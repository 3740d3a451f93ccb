package sr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom"

	"github.com/ibh-daai/bone-mineral-density/pkg/sr/srtest"
)

func mustJSON(t *testing.T, item srtest.Item) Item {
	t.Helper()
	root, err := FromJSON(item.JSON())
	require.NoError(t, err)
	return root
}

func TestParse_ScalarValueTypes(t *testing.T) {
	root := mustJSON(t, srtest.Container("Report",
		srtest.Text("Comment", "looks fine"),
		srtest.Code("Finding", "Normal"),
		srtest.PName("Operator", "SMITH^ANN"),
		srtest.Date("Scan Date", "20240315"),
		srtest.UIDRef("Source", "1.2.3"),
		srtest.Num("BMD", 1.012, "g/cm2"),
		srtest.Num("BMD_TSCORE", -1.2, ""),
	))

	c, err := Parse(root)
	require.NoError(t, err)

	assert.Equal(t, "Report", c.Name)
	assert.Equal(t, Text("looks fine"), c.Children["Comment"])
	assert.Equal(t, Code("Normal"), c.Children["Finding"])
	assert.Equal(t, PersonName("SMITH^ANN"), c.Children["Operator"])
	assert.Equal(t, Date("20240315"), c.Children["Scan Date"])
	assert.Equal(t, UIDRef("1.2.3"), c.Children["Source"])
	assert.Equal(t, Numeric{Value: 1.012, Unit: "g/cm2", HasUnit: true}, c.Children["BMD"])
	assert.Equal(t, Numeric{Value: -1.2}, c.Children["BMD_TSCORE"])
}

func TestParse_NumericWithoutValueIsOmitted(t *testing.T) {
	root := mustJSON(t, srtest.Container("Report",
		srtest.EmptyNum("BMD"),
		srtest.Num("AREA", 12.5, "cm2"),
	))

	c, err := Parse(root)
	require.NoError(t, err)

	_, ok := c.Get("BMD")
	assert.False(t, ok, "NUM without measured value must not be inserted")
	assert.Len(t, c.Children, 1)
}

func TestParse_NestedContainers(t *testing.T) {
	root := mustJSON(t, srtest.SampleContent())

	c, err := Parse(root)
	require.NoError(t, err)
	assert.Equal(t, "DXA Report", c.Name)

	bmd, ok := c.NumberAt("AP Spine", "L1-L3", "BMD")
	require.True(t, ok)
	assert.Equal(t, 1.023, bmd)

	trendBMD, ok := c.NumberAt("Left Femur", "Trend Total", "20220310", "BMD")
	require.True(t, ok)
	assert.Equal(t, 0.825, trendBMD)

	spine, ok := c.Child("AP Spine")
	require.True(t, ok)
	assert.Equal(t, []string{"L1", "L1-L3", "L1-L4", "L2", "L2-L4", "L3", "L4", "Trend L1-L3", "Trend L1-L4"}, spine.Keys())
}

func TestParse_EmptyContainer(t *testing.T) {
	item := srtest.Container("Report", srtest.Container("Left Forearm"))
	delete(item, "0040A730")

	c, err := Parse(mustJSON(t, item))
	require.NoError(t, err)
	assert.Empty(t, c.Children)
}

func TestParse_FailingItemDoesNotAbortSiblings(t *testing.T) {
	broken := srtest.Text("Comment", "x")
	delete(broken, "0040A160")

	doc, err := ParseDocument(mustJSON(t, srtest.Container("Report",
		srtest.Num("BMD", 0.9, "g/cm2"),
		broken,
		srtest.Unnamed("TEXT"),
		srtest.Unnamed("CONTAINER"),
		srtest.Unnamed("IMAGE"),
		srtest.Num("BMD_ZSCORE", 0.4, ""),
	)))
	require.NoError(t, err)

	assert.Len(t, doc.Content.Children, 2)
	require.Len(t, doc.Skipped, 3)
	for _, s := range doc.Skipped {
		assert.True(t, errors.Is(s.Err, ErrMissingAttribute), s.Err)
	}
	assert.Equal(t, 1, doc.Skipped[0].Index)
}

func TestParse_LastWriteWins(t *testing.T) {
	c, err := Parse(mustJSON(t, srtest.Container("Report",
		srtest.Num("BMD", 0.9, ""),
		srtest.Num("BMD", 1.1, ""),
	)))
	require.NoError(t, err)
	assert.Equal(t, Numeric{Value: 1.1}, c.Children["BMD"])
}

func TestParse_RootMustBeContainer(t *testing.T) {
	_, err := Parse(mustJSON(t, srtest.Text("Comment", "x")))
	assert.ErrorIs(t, err, ErrNotContainer)

	_, err = Parse(mustJSON(t, srtest.Unnamed("CONTAINER")))
	assert.ErrorIs(t, err, ErrMissingAttribute)
}

func TestParse_UnparsableNumericIsSkipped(t *testing.T) {
	bad := srtest.Num("BMD", 1, "")
	bad["0040A300"] = srtest.Attr{VR: "SQ", Value: []interface{}{
		srtest.Item{"0040A30A": {VR: "DS", Value: []interface{}{"n/a"}}},
	}}

	doc, err := ParseDocument(mustJSON(t, srtest.Container("Report", bad)))
	require.NoError(t, err)
	assert.Empty(t, doc.Content.Children)
	assert.Len(t, doc.Skipped, 1)
}

func TestParse_DICOMDataset(t *testing.T) {
	num := &elementBuilder{}
	num.add(tagValueType, []string{"NUM"})
	num.addCode(tagConceptNameCodeSequence, "1", "BMD")
	measured := &elementBuilder{}
	measured.add(tagNumericValue, []string{"0.812"})
	measured.addCode(tagMeasurementUnitsCodeSequence, "g/cm2", "g/cm2")
	num.addSequence(tagMeasuredValueSequence, measured)

	region := &elementBuilder{}
	region.add(tagValueType, []string{"CONTAINER"})
	region.addCode(tagConceptNameCodeSequence, "2", "Neck")
	region.addSequence(tagContentSequence, num)

	root := &elementBuilder{}
	root.add(tagValueType, []string{"CONTAINER"})
	root.addCode(tagConceptNameCodeSequence, "3", "DXA Report")
	root.addSequence(tagContentSequence, region)
	require.NoError(t, root.err)

	c, err := Parse(FromDataset(dicom.Dataset{Elements: root.sorted()}))
	require.NoError(t, err)

	n, ok := c.Path("Neck", "BMD")
	require.True(t, ok)
	assert.Equal(t, Numeric{Value: 0.812, Unit: "g/cm2", HasUnit: true}, n)
}

func TestAsNumber(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want float64
		ok   bool
	}{
		{"numeric", NewNumeric(-2.1), -2.1, true},
		{"numeric text", Text(" -1.5 "), -1.5, true},
		{"non numeric text", Text("n/a"), 0, false},
		{"code", Code("x"), 0, false},
		{"container", NewContainer("x"), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AsNumber(tt.node)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromJSON_Array(t *testing.T) {
	data := []byte(`[` + string(srtest.Container("Report").JSON()) + `]`)
	root, err := FromJSON(data)
	require.NoError(t, err)

	c, err := Parse(root)
	require.NoError(t, err)
	assert.Equal(t, "Report", c.Name)

	_, err = FromJSON([]byte(`[]`))
	assert.Error(t, err)
	_, err = FromJSON([]byte(`"nope"`))
	assert.Error(t, err)
}
