// Package sr decodes DICOM Structured Report content trees into a typed map of
// concept name to value and writes the Comprehensive SR that carries an interpretation.
package sr

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// SR content item attributes
var (
	tagValueType                    = tag.Tag{Group: 0x0040, Element: 0xA040}
	tagConceptNameCodeSequence      = tag.Tag{Group: 0x0040, Element: 0xA043}
	tagCodeValue                    = tag.Tag{Group: 0x0008, Element: 0x0100}
	tagCodingSchemeDesignator       = tag.Tag{Group: 0x0008, Element: 0x0102}
	tagCodeMeaning                  = tag.Tag{Group: 0x0008, Element: 0x0104}
	tagContentSequence              = tag.Tag{Group: 0x0040, Element: 0xA730}
	tagRelationshipType             = tag.Tag{Group: 0x0040, Element: 0xA010}
	tagContinuityOfContent          = tag.Tag{Group: 0x0040, Element: 0xA050}
	tagTextValue                    = tag.Tag{Group: 0x0040, Element: 0xA160}
	tagConceptCodeSequence          = tag.Tag{Group: 0x0040, Element: 0xA168}
	tagPersonName                   = tag.Tag{Group: 0x0040, Element: 0xA123}
	tagMeasuredValueSequence        = tag.Tag{Group: 0x0040, Element: 0xA300}
	tagNumericValue                 = tag.Tag{Group: 0x0040, Element: 0xA30A}
	tagMeasurementUnitsCodeSequence = tag.Tag{Group: 0x0040, Element: 0x08EA}
	tagDateTime                     = tag.Tag{Group: 0x0040, Element: 0xA120}
	tagDate                         = tag.Tag{Group: 0x0040, Element: 0xA121}
	tagTime                         = tag.Tag{Group: 0x0040, Element: 0xA122}
	tagUID                          = tag.Tag{Group: 0x0040, Element: 0xA124}
)

// Item is one node of a generic tagged content tree: a dataset or a sequence item.
type Item interface {
	// String returns the first string value of the attribute.
	String(t tag.Tag) (string, bool)
	// Sequence returns the items of a sequence attribute.
	Sequence(t tag.Tag) ([]Item, bool)
}

// datasetItem adapts the elements of a parsed DICOM dataset or sequence item.
type datasetItem struct {
	elements []*dicom.Element
}

// FromDataset wraps a parsed DICOM dataset as the root content item.
func FromDataset(ds dicom.Dataset) Item {
	return datasetItem{elements: ds.Elements}
}

// ParseFile reads a DICOM file, skipping pixel data.
func ParseFile(path string) (Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return ParseReader(f, info.Size())
}

// ParseReader parses size bytes of a DICOM stream.
func ParseReader(r io.Reader, size int64) (Item, error) {
	ds, err := dicom.Parse(r, size, nil, dicom.SkipPixelData())
	if err != nil {
		return nil, fmt.Errorf("parsing DICOM: %w", err)
	}
	return FromDataset(ds), nil
}

func (d datasetItem) find(t tag.Tag) *dicom.Element {
	for _, elem := range d.elements {
		if elem.Tag == t {
			return elem
		}
	}
	return nil
}

func (d datasetItem) String(t tag.Tag) (string, bool) {
	elem := d.find(t)
	if elem == nil || elem.Value == nil {
		return "", false
	}
	switch v := elem.Value.GetValue().(type) {
	case []string:
		if len(v) == 0 {
			return "", false
		}
		return strings.TrimRight(v[0], " \x00"), true
	case []int:
		if len(v) == 0 {
			return "", false
		}
		return fmt.Sprint(v[0]), true
	case []float64:
		if len(v) == 0 {
			return "", false
		}
		return fmt.Sprint(v[0]), true
	default:
		return "", false
	}
}

func (d datasetItem) Sequence(t tag.Tag) ([]Item, bool) {
	elem := d.find(t)
	if elem == nil || elem.Value == nil || elem.Value.ValueType() != dicom.Sequences {
		return nil, false
	}
	seq, ok := elem.Value.GetValue().([]*dicom.SequenceItemValue)
	if !ok {
		return nil, false
	}
	items := make([]Item, 0, len(seq))
	for _, s := range seq {
		elems, ok := s.GetValue().([]*dicom.Element)
		if !ok {
			continue
		}
		items = append(items, datasetItem{elements: elems})
	}
	return items, true
}

// first returns the first item of a sequence attribute.
func first(item Item, t tag.Tag) (Item, bool) {
	seq, ok := item.Sequence(t)
	if !ok || len(seq) == 0 {
		return nil, false
	}
	return seq[0], true
}

// conceptName reads ConceptNameCodeSequence[0].CodeMeaning.
func conceptName(item Item) (string, bool) {
	code, ok := first(item, tagConceptNameCodeSequence)
	if !ok {
		return "", false
	}
	return code.String(tagCodeMeaning)
}
