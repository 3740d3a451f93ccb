// Package srtest builds DICOM JSON structured reports for tests.
package srtest

import (
	"encoding/json"
	"strconv"
)

// Attr is one DICOM JSON attribute.
type Attr struct {
	VR    string        `json:"vr"`
	Value []interface{} `json:"Value,omitempty"`
}

// Item is a DICOM JSON dataset or sequence item keyed by "GGGGEEEE".
type Item map[string]Attr

func str(vr, v string) Attr { return Attr{VR: vr, Value: []interface{}{v}} }

func seq(items ...Item) Attr {
	values := make([]interface{}, len(items))
	for i, it := range items {
		values[i] = it
	}
	return Attr{VR: "SQ", Value: values}
}

func code(meaning string) Item {
	return Item{
		"00080100": str("SH", "0"),
		"00080102": str("SH", "TEST"),
		"00080104": str("LO", meaning),
	}
}

func content(valueType, name string) Item {
	item := Item{
		"0040A010": str("CS", "CONTAINS"),
		"0040A040": str("CS", valueType),
	}
	if name != "" {
		item["0040A043"] = seq(code(name))
	}
	return item
}

// Container returns a CONTAINER content item holding children.
func Container(name string, children ...Item) Item {
	item := content("CONTAINER", name)
	item["0040A050"] = str("CS", "SEPARATE")
	item["0040A730"] = seq(children...)
	return item
}

// Num returns a NUM content item. An empty unit omits the units code sequence.
func Num(name string, value float64, unit string) Item {
	measured := Item{"0040A30A": str("DS", strconv.FormatFloat(value, 'f', -1, 64))}
	if unit != "" {
		measured["004008EA"] = seq(code(unit))
	}
	item := content("NUM", name)
	item["0040A300"] = seq(measured)
	return item
}

// EmptyNum returns a NUM content item without a measured value.
func EmptyNum(name string) Item {
	return content("NUM", name)
}

// Text returns a TEXT content item.
func Text(name, value string) Item {
	item := content("TEXT", name)
	item["0040A160"] = str("UT", value)
	return item
}

// Code returns a CODE content item.
func Code(name, meaning string) Item {
	item := content("CODE", name)
	item["0040A168"] = seq(code(meaning))
	return item
}

// PName returns a PNAME content item.
func PName(name, value string) Item {
	item := content("PNAME", name)
	item["0040A123"] = Attr{VR: "PN", Value: []interface{}{map[string]string{"Alphabetic": value}}}
	return item
}

// Date returns a DATE content item.
func Date(name, value string) Item {
	item := content("DATE", name)
	item["0040A121"] = str("DA", value)
	return item
}

// UIDRef returns a UIDREF content item.
func UIDRef(name, value string) Item {
	item := content("UIDREF", name)
	item["0040A124"] = str("UI", value)
	return item
}

// Unnamed returns a content item of the given value type without a concept name.
func Unnamed(valueType string) Item {
	return content(valueType, "")
}

// Header holds the header attributes of a test report.
type Header struct {
	PatientID        string
	PatientName      string
	PatientBirthDate string
	PatientSex       string
	PatientAge       string
	AccessionNumber  string
	SOPInstanceUID   string
	SOPClassUID      string
	SeriesUID        string
	StudyUID         string
	StudyDate        string
	StudyTime        string
	Description      string
	Institution      string
	Manufacturer     string
}

// DefaultHeader returns a plausible header for a 65 year old woman scanned at Mississauga Hospital.
func DefaultHeader() Header {
	return Header{
		PatientID:        "MRN0001",
		PatientName:      "DOE^JANE",
		PatientBirthDate: "19590412",
		PatientSex:       "F",
		PatientAge:       "065Y",
		AccessionNumber:  "ACC0001",
		SOPInstanceUID:   "1.2.3.4.5.6.7.1",
		SOPClassUID:      "1.2.840.10008.5.1.4.1.1.88.22",
		SeriesUID:        "1.2.3.4.5.6.7",
		StudyUID:         "1.2.3.4.5.6",
		StudyDate:        "20240315",
		StudyTime:        "101500",
		Description:      "BONE DENSITY",
		Institution:      "Mississauga Hospital",
		Manufacturer:     "GE Healthcare",
	}
}

// Report returns a root dataset with the header and a root container.
func Report(h Header, root Item) Item {
	ds := Item{}
	for k, v := range root {
		if k == "0040A010" {
			continue
		}
		ds[k] = v
	}
	set := func(key, vr, v string) {
		if v != "" {
			ds[key] = str(vr, v)
		}
	}
	set("00080016", "UI", h.SOPClassUID)
	set("00080018", "UI", h.SOPInstanceUID)
	set("00080020", "DA", h.StudyDate)
	set("00080030", "TM", h.StudyTime)
	set("00080050", "SH", h.AccessionNumber)
	set("00080060", "CS", "SR")
	set("00080070", "LO", h.Manufacturer)
	set("00080080", "LO", h.Institution)
	set("00081030", "LO", h.Description)
	set("00100020", "LO", h.PatientID)
	set("00100030", "DA", h.PatientBirthDate)
	set("00100040", "CS", h.PatientSex)
	set("00101010", "AS", h.PatientAge)
	set("0020000D", "UI", h.StudyUID)
	set("0020000E", "UI", h.SeriesUID)
	if h.PatientName != "" {
		ds["00100010"] = Attr{VR: "PN", Value: []interface{}{map[string]string{"Alphabetic": h.PatientName}}}
	}
	return ds
}

// JSON encodes the item.
func (i Item) JSON() []byte {
	data, err := json.Marshal(i)
	if err != nil {
		panic(err)
	}
	return data
}
