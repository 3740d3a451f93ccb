package sr

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// jsonAttribute is one attribute of the DICOM JSON model (PS3.18 F.2).
type jsonAttribute struct {
	VR    string            `json:"vr"`
	Value []json.RawMessage `json:"Value,omitempty"`
}

// jsonItem adapts a DICOM JSON object keyed by "GGGGEEEE".
type jsonItem map[string]jsonAttribute

// FromJSON decodes a DICOM JSON dataset, or the first dataset of a JSON array,
// as returned by DICOMweb metadata endpoints.
func FromJSON(data []byte) (Item, error) {
	var obj jsonItem
	if err := json.Unmarshal(data, &obj); err == nil {
		return obj, nil
	}

	var arr []jsonItem
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("decoding DICOM JSON: %w", err)
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("decoding DICOM JSON: empty dataset array")
	}
	return arr[0], nil
}

func jsonKey(t tag.Tag) string {
	return fmt.Sprintf("%04X%04X", t.Group, t.Element)
}

func (j jsonItem) String(t tag.Tag) (string, bool) {
	attr, ok := j[jsonKey(t)]
	if !ok || len(attr.Value) == 0 {
		return "", false
	}
	raw := attr.Value[0]

	if attr.VR == "PN" {
		var pn struct {
			Alphabetic string `json:"Alphabetic"`
		}
		if err := json.Unmarshal(raw, &pn); err == nil {
			return pn.Alphabetic, true
		}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	// DS, IS, FL and FD may be sent as JSON numbers
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

func (j jsonItem) Sequence(t tag.Tag) ([]Item, bool) {
	attr, ok := j[jsonKey(t)]
	if !ok || attr.VR != "SQ" {
		return nil, false
	}
	items := make([]Item, 0, len(attr.Value))
	for _, raw := range attr.Value {
		var child jsonItem
		if err := json.Unmarshal(raw, &child); err != nil {
			continue
		}
		items = append(items, child)
	}
	return items, true
}
