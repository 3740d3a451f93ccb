package sr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// Header holds the top-level attributes of a structured report. String fields
// are empty and pointer fields nil when the attribute is absent.
type Header struct {
	PatientID             string
	PatientName           string
	PatientBirthDate      string
	AccessionNumber       string
	SOPInstanceUID        string
	SOPClassUID           string
	SeriesInstanceUID     string
	PatientSex            string
	PatientAge            *int
	PatientSize           *float64
	PatientWeight         *float64
	EthnicGroup           string
	StudyDate             string
	StudyTime             string
	StudyDescription      string
	StudyInstanceUID      string
	Modality              string
	InstitutionName       string
	StationName           string
	Manufacturer          string
	ManufacturerModelName string
	SoftwareVersions      string
}

// ReadHeader reads the header attributes directly from the root dataset.
func ReadHeader(root Item) Header {
	get := func(t tag.Tag) string {
		s, _ := root.String(t)
		return strings.TrimSpace(s)
	}

	return Header{
		PatientID:             get(tag.PatientID),
		PatientName:           get(tag.PatientName),
		PatientBirthDate:      get(tag.PatientBirthDate),
		AccessionNumber:       get(tag.AccessionNumber),
		SOPInstanceUID:        get(tag.SOPInstanceUID),
		SOPClassUID:           get(tag.SOPClassUID),
		SeriesInstanceUID:     get(tag.SeriesInstanceUID),
		PatientSex:            get(tag.PatientSex),
		PatientAge:            ParseAge(get(tag.PatientAge)),
		PatientSize:           parseDecimal(get(tag.PatientSize)),
		PatientWeight:         parseDecimal(get(tag.PatientWeight)),
		EthnicGroup:           get(tag.EthnicGroup),
		StudyDate:             get(tag.StudyDate),
		StudyTime:             get(tag.StudyTime),
		StudyDescription:      get(tag.StudyDescription),
		StudyInstanceUID:      get(tag.StudyInstanceUID),
		Modality:              get(tag.Modality),
		InstitutionName:       get(tag.InstitutionName),
		StationName:           get(tag.StationName),
		Manufacturer:          get(tag.Manufacturer),
		ManufacturerModelName: get(tag.ManufacturerModelName),
		SoftwareVersions:      get(tag.SoftwareVersions),
	}
}

// ParseAge converts an age string of the form "<N>Y" to years. Other units
// (days, weeks, months) and malformed values yield nil.
func ParseAge(s string) *int {
	if !strings.HasSuffix(s, "Y") {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSuffix(s, "Y"))
	if err != nil {
		return nil
	}
	return &n
}

func parseDecimal(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// StudyDateTime combines StudyDate (YYYYMMDD) and StudyTime (HHMMSS[.ffffff]).
// A missing time yields midnight.
func (h Header) StudyDateTime() (time.Time, error) {
	date, err := time.Parse("20060102", h.StudyDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("study date %q: %w", h.StudyDate, err)
	}
	if h.StudyTime == "" {
		return date, nil
	}

	clock := h.StudyTime
	if i := strings.IndexByte(clock, '.'); i >= 0 {
		clock = clock[:i]
	}
	for len(clock) < 6 {
		clock += "0"
	}
	t, err := time.Parse("150405", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("study time %q: %w", h.StudyTime, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
}

// IsStructuredReport reports whether the SOP class is one of the SR storage classes.
func (h Header) IsStructuredReport() bool {
	return strings.HasPrefix(h.SOPClassUID, "1.2.840.10008.5.1.4.1.1.88.")
}
