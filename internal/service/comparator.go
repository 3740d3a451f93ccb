package service

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

// ExamDates locates the earlier exams of a study in its trend table.
type ExamDates struct {
	// Prior is the most recent trend date before the study date.
	Prior *time.Time `json:"prior,omitempty"`
	// Baseline is the earliest trend date that covers every body part scanned before the study.
	Baseline *time.Time `json:"baseline,omitempty"`
	// Previous lists the distinct trend dates before the study date, ascending.
	Previous []time.Time `json:"previous,omitempty"`
}

// PreviousCount is the number of earlier exams.
func (d ExamDates) PreviousCount() int {
	return len(d.Previous)
}

// FindExamDates finds the prior and baseline exam dates for a study taken on studyDate.
// Only trend rows dated strictly before the study's calendar date are considered.
func FindExamDates(studyDate time.Time, trends []domain.TrendMeasurement) ExamDates {
	cutoff := calendarDate(studyDate)

	partsByDate := make(map[time.Time]map[domain.BodyPart]bool)
	required := make(map[domain.BodyPart]bool)
	for _, t := range trends {
		d := calendarDate(t.Date)
		if !d.Before(cutoff) {
			continue
		}
		if partsByDate[d] == nil {
			partsByDate[d] = make(map[domain.BodyPart]bool)
		}
		partsByDate[d][t.BodyPart] = true
		required[t.BodyPart] = true
	}

	var out ExamDates
	if len(partsByDate) == 0 {
		return out
	}

	for d := range partsByDate {
		out.Previous = append(out.Previous, d)
	}
	sort.Slice(out.Previous, func(i, j int) bool { return out.Previous[i].Before(out.Previous[j]) })

	prior := out.Previous[len(out.Previous)-1]
	out.Prior = &prior

	for _, d := range out.Previous {
		if coversAll(partsByDate[d], required) {
			baseline := d
			out.Baseline = &baseline
			break
		}
	}
	return out
}

func coversAll(have, want map[domain.BodyPart]bool) bool {
	for part := range want {
		if !have[part] {
			return false
		}
	}
	return true
}

// calendarDate drops the clock of t, keeping its calendar day. Exam times
// are stored as UTC wall clock, so the day is read in UTC whatever location
// the value carries.
func calendarDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ReferenceFor returns the trend row of a point region at the prior exam date.
func ReferenceFor(trends []domain.TrendMeasurement, prior *time.Time, part domain.BodyPart, region string) (domain.TrendMeasurement, bool) {
	if prior == nil {
		return domain.TrendMeasurement{}, false
	}
	name := domain.TrendRegion(region)
	for _, t := range trends {
		if t.BodyPart == part && t.Region == name && calendarDate(t.Date).Equal(*prior) {
			return t, true
		}
	}
	return domain.TrendMeasurement{}, false
}

// Delta is the change of a region's BMD against its prior exam.
type Delta struct {
	// Raw is current minus reference, unrounded.
	Raw float64 `json:"raw"`
	// Change is Raw rounded to 3 decimal places.
	Change float64 `json:"change"`
	// Percent is Raw relative to the reference, rounded to 1 decimal place.
	Percent float64 `json:"percent"`
}

// Increased reports the direction shown in findings text.
func (d Delta) Increased() bool {
	return d.Raw > 0
}

// Compare computes the delta of current against reference BMD.
func Compare(current, reference float64) Delta {
	raw := current - reference
	d := Delta{Raw: raw, Change: roundTo(raw, 3)}
	if reference != 0 {
		d.Percent = roundTo(raw/reference*100, 1)
	}
	return d
}

// ClassifyChange classifies a rounded delta against the institution's least
// significant change. Institutions without an LSC row yield ErrUnknownInstitution.
func (t *ReferenceTables) ClassifyChange(delta float64, region domain.ComparisonRegion, institution string) (domain.ChangeResult, error) {
	inst, ok := t.LSC(institution)
	if !ok {
		return domain.ChangeResult{}, fmt.Errorf("%w: %q", domain.ErrUnknownInstitution, institution)
	}

	var lsc float64
	switch region {
	case domain.LumbarSpineRegion:
		lsc = inst.SpineLSC
	case domain.HipRegion:
		lsc = inst.HipLSC
	default:
		return domain.ChangeResult{}, fmt.Errorf("unknown comparison region %q", region)
	}

	result := domain.ChangeResult{Region: region, Kind: domain.NotSignificant, Delta: delta}
	if math.Abs(delta) > lsc {
		if delta > 0 {
			result.Kind = domain.SignificantIncrease
		} else {
			result.Kind = domain.SignificantDecrease
		}
	}
	return result, nil
}

func sortTrends(rows []domain.TrendMeasurement) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
}
