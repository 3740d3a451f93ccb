package sr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"
)

var (
	// ErrNotContainer is returned when the document root is not a CONTAINER content item.
	ErrNotContainer = errors.New("root content item is not a CONTAINER")
	// ErrMissingAttribute is returned when a content item lacks a required attribute.
	ErrMissingAttribute = errors.New("missing attribute")
)

const valueTypeContainer = "CONTAINER"

// SkippedItem describes a content item that could not be decoded.
type SkippedItem struct {
	Container string
	Index     int
	ValueType string
	Err       error
}

// decoder extracts the value of a scalar content item. A nil Node with a nil
// error means the item carries no value and its key is omitted.
type decoder func(item Item) (Node, error)

var decoders = map[string]decoder{
	"TEXT":     stringValue(tagTextValue, func(s string) Node { return Text(s) }),
	"PNAME":    stringValue(tagPersonName, func(s string) Node { return PersonName(s) }),
	"DATETIME": stringValue(tagDateTime, func(s string) Node { return DateTime(s) }),
	"DATE":     stringValue(tagDate, func(s string) Node { return Date(s) }),
	"TIME":     stringValue(tagTime, func(s string) Node { return Time(s) }),
	"UIDREF":   stringValue(tagUID, func(s string) Node { return UIDRef(s) }),
	"CODE":     decodeCode,
	"NUM":      decodeNumeric,
}

func missing(t tag.Tag) error {
	return fmt.Errorf("%w %s", ErrMissingAttribute, jsonKey(t))
}

func stringValue(t tag.Tag, wrap func(string) Node) decoder {
	return func(item Item) (Node, error) {
		s, ok := item.String(t)
		if !ok {
			return nil, missing(t)
		}
		return wrap(s), nil
	}
}

func decodeCode(item Item) (Node, error) {
	code, ok := first(item, tagConceptCodeSequence)
	if !ok {
		return nil, missing(tagConceptCodeSequence)
	}
	meaning, ok := code.String(tagCodeMeaning)
	if !ok {
		return nil, missing(tagCodeMeaning)
	}
	return Code(meaning), nil
}

func decodeNumeric(item Item) (Node, error) {
	measured, ok := first(item, tagMeasuredValueSequence)
	if !ok {
		return nil, nil
	}
	raw, ok := measured.String(tagNumericValue)
	if !ok {
		return nil, nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil, fmt.Errorf("numeric value %q: %w", raw, err)
	}

	num := Numeric{Value: value}
	if units, ok := first(measured, tagMeasurementUnitsCodeSequence); ok {
		num.Unit, num.HasUnit = units.String(tagCodeMeaning)
	}
	return num, nil
}

// Parse decodes the content tree below root. The root must itself be a CONTAINER
// content item; the returned container carries its concept name.
func Parse(root Item) (*Container, error) {
	c, _, err := parseRoot(root)
	return c, err
}

func parseRoot(root Item) (*Container, []SkippedItem, error) {
	vt, _ := root.String(tagValueType)
	if vt != valueTypeContainer {
		return nil, nil, fmt.Errorf("%w: value type %q", ErrNotContainer, vt)
	}
	name, ok := conceptName(root)
	if !ok {
		return nil, nil, fmt.Errorf("root container: %w", missing(tagConceptNameCodeSequence))
	}

	var skipped []SkippedItem
	c := parseContainer(name, root, &skipped)
	return c, skipped, nil
}

func parseContainer(name string, item Item, skipped *[]SkippedItem) *Container {
	c := NewContainer(name)

	children, ok := item.Sequence(tagContentSequence)
	if !ok {
		return c
	}

	for i, child := range children {
		vt, _ := child.String(tagValueType)
		if err := decodeChild(c, vt, child, skipped); err != nil {
			*skipped = append(*skipped, SkippedItem{Container: name, Index: i, ValueType: vt, Err: err})
		}
	}
	return c
}

// decodeChild decodes one content item into parent.
func decodeChild(parent *Container, vt string, item Item, skipped *[]SkippedItem) error {
	if vt == valueTypeContainer {
		key, ok := conceptName(item)
		if !ok {
			return missing(tagConceptNameCodeSequence)
		}
		parent.Put(key, parseContainer(key, item, skipped))
		return nil
	}

	dec, ok := decoders[vt]
	if !ok {
		// IMAGE, COMPOSITE, SCOORD and other references carry no measurement
		return nil
	}

	key, ok := conceptName(item)
	if !ok {
		return missing(tagConceptNameCodeSequence)
	}
	node, err := dec(item)
	if err != nil {
		return fmt.Errorf("%s %q: %w", vt, key, err)
	}
	if node != nil {
		parent.Put(key, node)
	}
	return nil
}

// Document is a parsed structured report: header fields and content tree.
type Document struct {
	Header  Header
	Content *Container
	Skipped []SkippedItem
}

// ParseDocument reads the header and decodes the content tree of root.
func ParseDocument(root Item) (*Document, error) {
	content, skipped, err := parseRoot(root)
	if err != nil {
		return nil, err
	}
	return &Document{
		Header:  ReadHeader(root),
		Content: content,
		Skipped: skipped,
	}, nil
}
