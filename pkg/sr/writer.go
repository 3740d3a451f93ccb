package sr

import (
	"bytes"
	"fmt"
	"io"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

const (
	// UIDRoot is the organisation root of every UID this package generates.
	UIDRoot = "1.2.826.0.1.3680043.10.1082."
	// ReportSeriesNumber is the series number of generated interpretation reports.
	ReportSeriesNumber = 3

	ComprehensiveSRStorage = "1.2.840.10008.5.1.4.1.1.88.33"
	ExplicitVRLittleEndian = "1.2.840.10008.1.2.1"

	codingScheme = "AIDE"
	maxUIDLength = 64
)

// reportSeriesPrefix roots the SOP and series UIDs of generated reports.
var reportSeriesPrefix = fmt.Sprintf("%s2.%d.", UIDRoot, ReportSeriesNumber)

// NewUID returns a unique UID below prefix, its suffix derived from a random UUID.
func NewUID(prefix string) string {
	id := uuid.New()
	digits := new(big.Int).SetBytes(id[:]).String()
	if room := maxUIDLength - len(prefix); len(digits) > room {
		digits = digits[:room]
	}
	return prefix + digits
}

// IsGeneratedSeries reports whether a series UID belongs to a report this package wrote.
func IsGeneratedSeries(seriesInstanceUID string) bool {
	return strings.Contains(seriesInstanceUID, UIDRoot)
}

// ReportSection is one titled TEXT content item of a generated report.
type ReportSection struct {
	Title string
	Text  string
}

// ReportContent is the input of BuildReport.
type ReportContent struct {
	Source   Header
	Sections []ReportSection
	Created  time.Time
}

// BuiltReport is a generated report dataset and its identifiers.
type BuiltReport struct {
	Dataset           dicom.Dataset
	SOPInstanceUID    string
	SeriesInstanceUID string
}

// BuildReport assembles a Comprehensive SR that references the source report
// and carries each section as a TEXT content item.
func BuildReport(rc ReportContent) (*BuiltReport, error) {
	created := rc.Created
	if created.IsZero() {
		created = time.Now()
	}
	sopUID := NewUID(reportSeriesPrefix)
	seriesUID := NewUID(reportSeriesPrefix)
	date := created.Format("20060102")
	clock := created.Format("150405")
	src := rc.Source

	b := &elementBuilder{}
	b.add(tag.FileMetaInformationVersion, []byte{0x00, 0x01})
	b.add(tag.MediaStorageSOPClassUID, []string{ComprehensiveSRStorage})
	b.add(tag.MediaStorageSOPInstanceUID, []string{sopUID})
	b.add(tag.TransferSyntaxUID, []string{ExplicitVRLittleEndian})
	b.add(tag.ImplementationClassUID, []string{UIDRoot + "1"})

	b.add(tag.InstanceCreationDate, []string{date})
	b.add(tag.InstanceCreationTime, []string{clock})
	b.add(tag.SOPClassUID, []string{ComprehensiveSRStorage})
	b.add(tag.SOPInstanceUID, []string{sopUID})
	b.add(tag.StudyDate, []string{src.StudyDate})
	b.add(tag.ContentDate, []string{date})
	b.add(tag.StudyTime, []string{src.StudyTime})
	b.add(tag.ContentTime, []string{clock})
	b.add(tag.AccessionNumber, []string{src.AccessionNumber})
	b.add(tag.Modality, []string{"SR"})
	b.add(tag.InstitutionName, []string{src.InstitutionName})

	if src.SOPClassUID != "" && src.SOPInstanceUID != "" {
		ref := &elementBuilder{}
		ref.add(tag.ReferencedSOPClassUID, []string{src.SOPClassUID})
		ref.add(tag.ReferencedSOPInstanceUID, []string{src.SOPInstanceUID})
		b.addSequence(tag.ReferencedStudySequence, ref)
	}

	b.add(tag.PatientName, []string{src.PatientName})
	b.add(tag.PatientID, []string{src.PatientID})
	b.add(tag.PatientBirthDate, []string{src.PatientBirthDate})
	b.add(tag.PatientSex, []string{src.PatientSex})
	b.add(tag.StudyInstanceUID, []string{src.StudyInstanceUID})
	b.add(tag.SeriesInstanceUID, []string{seriesUID})
	b.add(tag.SeriesNumber, []string{fmt.Sprint(ReportSeriesNumber)})
	b.add(tag.InstanceNumber, []string{"1"})

	b.add(tagValueType, []string{valueTypeContainer})
	b.addCode(tagConceptNameCodeSequence, "0-0-0", "BMD INTERPRETATION")
	b.add(tagContinuityOfContent, []string{"SEPARATE"})
	b.add(tag.CompletionFlag, []string{"COMPLETE"})
	b.add(tag.VerificationFlag, []string{"UNVERIFIED"})

	items := make([]*elementBuilder, 0, len(rc.Sections))
	for i, section := range rc.Sections {
		item := &elementBuilder{}
		item.add(tagRelationshipType, []string{"CONTAINS"})
		item.add(tagValueType, []string{"TEXT"})
		item.addCode(tagConceptNameCodeSequence, fmt.Sprintf("0-0-%d", i+1), section.Title)
		item.add(tagTextValue, []string{section.Text})
		items = append(items, item)
	}
	b.addSequence(tagContentSequence, items...)

	if b.err != nil {
		return nil, fmt.Errorf("building report dataset: %w", b.err)
	}
	return &BuiltReport{
		Dataset:           dicom.Dataset{Elements: b.sorted()},
		SOPInstanceUID:    sopUID,
		SeriesInstanceUID: seriesUID,
	}, nil
}

// Write encodes the dataset as a DICOM Part 10 file.
func Write(w io.Writer, ds dicom.Dataset) error {
	if err := dicom.Write(w, ds, dicom.SkipVRVerification()); err != nil {
		return fmt.Errorf("writing DICOM: %w", err)
	}
	return nil
}

// Encode writes the dataset to memory.
func Encode(ds dicom.Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, ds); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// elementBuilder collects elements and keeps the first construction error.
type elementBuilder struct {
	elements []*dicom.Element
	err      error
}

func (b *elementBuilder) add(t tag.Tag, data interface{}) {
	if b.err != nil {
		return
	}
	elem, err := dicom.NewElement(t, data)
	if err != nil {
		b.err = fmt.Errorf("element %s: %w", jsonKey(t), err)
		return
	}
	b.elements = append(b.elements, elem)
}

// addSequence adds a sequence whose items are the given builders.
func (b *elementBuilder) addSequence(t tag.Tag, items ...*elementBuilder) {
	values := make([][]*dicom.Element, 0, len(items))
	for _, item := range items {
		if item.err != nil && b.err == nil {
			b.err = item.err
		}
		values = append(values, item.sorted())
	}
	b.add(t, values)
}

// addCode adds a single-item code sequence.
func (b *elementBuilder) addCode(t tag.Tag, value, meaning string) {
	code := &elementBuilder{}
	code.add(tagCodeValue, []string{value})
	code.add(tagCodingSchemeDesignator, []string{codingScheme})
	code.add(tagCodeMeaning, []string{meaning})
	b.addSequence(t, code)
}

func (b *elementBuilder) sorted() []*dicom.Element {
	sort.SliceStable(b.elements, func(i, j int) bool {
		a, c := b.elements[i].Tag, b.elements[j].Tag
		if a.Group != c.Group {
			return a.Group < c.Group
		}
		return a.Element < c.Element
	})
	return b.elements
}
