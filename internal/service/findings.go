package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

const (
	neckRegion   = "Neck"
	totalRegion  = "Total"
	radiusRegion = "Radius 33%"

	paragraphSep = "\n\n"
)

// section is the immutable output of one findings section.
type section struct {
	fragments []string
	scores    []float64
	changes   []domain.ChangeResult
	warnings  []string
}

func (s section) with(other section) section {
	return section{
		fragments: append(append([]string(nil), s.fragments...), other.fragments...),
		scores:    append(append([]float64(nil), s.scores...), other.scores...),
		changes:   append(append([]domain.ChangeResult(nil), s.changes...), other.changes...),
		warnings:  append(append([]string(nil), s.warnings...), other.warnings...),
	}
}

// findingsComposer renders findings sections from the tables of one study.
// All fields are read-only.
type findingsComposer struct {
	study  domain.StudyContext
	points []domain.PointMeasurement
	trends []domain.TrendMeasurement
	dates  ExamDates
	tables *ReferenceTables
	opts   EngineOptions
}

func (f *findingsComposer) point(part domain.BodyPart, region string) (domain.PointMeasurement, bool) {
	for _, p := range f.points {
		if p.BodyPart == part && p.Region == region {
			return p, true
		}
	}
	return domain.PointMeasurement{}, false
}

func (f *findingsComposer) hasBodyPart(part domain.BodyPart) bool {
	for _, p := range f.points {
		if p.BodyPart == part {
			return true
		}
	}
	return false
}

// reference returns the prior trend row of a region, unless comparison is suppressed.
func (f *findingsComposer) reference(part domain.BodyPart, region string) (domain.TrendMeasurement, bool) {
	if f.study.ComparisonSuppressed {
		return domain.TrendMeasurement{}, false
	}
	return ReferenceFor(f.trends, f.dates.Prior, part, region)
}

func (f *findingsComposer) scoreName() string {
	if f.study.Age >= 50 {
		return "T-score"
	}
	return "Z-score"
}

// measurementLine renders "<LABEL> = <bmd> g/cm2. T-score = <score>" and, when
// a reference row is given, the change against it.
func (f *findingsComposer) measurementLine(label string, p domain.PointMeasurement, ref *domain.TrendMeasurement) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s = %s g/cm2.", label, formatNumber(p.BMD))
	if score := p.Score(f.study.Age); score != nil {
		fmt.Fprintf(&b, " %s = %s", f.scoreName(), formatScore(*score))
	}
	if ref != nil {
		d := Compare(p.BMD, ref.BMD)
		direction := "decreased"
		if d.Increased() {
			direction = "increased"
		}
		fmt.Fprintf(&b, " This value has %s by %s g/cm2 (%s%%) compared to the previous.",
			direction, formatNumber(math.Abs(d.Change)), formatNumber(math.Abs(d.Percent)))
	}
	return b.String()
}

// classify adds the change of a compared region to s. An unknown institution
// leaves a warning instead of a change record.
func (f *findingsComposer) classify(s *section, region domain.ComparisonRegion, delta float64) {
	result, err := f.tables.ClassifyChange(delta, region, f.study.InstitutionName)
	if err != nil {
		s.warnings = append(s.warnings, fmt.Sprintf("%s change not classified: %v", region, err))
		return
	}
	s.changes = append(s.changes, result)
}

func (f *findingsComposer) addScore(s *section, p domain.PointMeasurement) *float64 {
	score := p.Score(f.study.Age)
	if score != nil {
		s.scores = append(s.scores, *score)
	}
	return score
}

func vertebraScores(points []domain.PointMeasurement) VertebraScores {
	scores := make(VertebraScores, len(lumbarVertebrae))
	for _, p := range points {
		if p.BodyPart != domain.APSpine {
			continue
		}
		for _, v := range lumbarVertebrae {
			if p.Region == v {
				scores[v] = p.TScore
			}
		}
	}
	return scores
}

// lumbar renders the lumbar spine section and reports the vertebra selection
// and the score of the selected combination.
func (f *findingsComposer) lumbar() (section, VertebraSelection, *float64) {
	var s section
	selection := SelectVertebrae(f.study.Age, vertebraScores(f.points))

	if !f.hasBodyPart(domain.APSpine) {
		s.fragments = []string{"Lumbar spine: No valid scans available."}
		return s, selection, nil
	}

	region := selection.RegionName()
	if region == "" {
		if len(selection.Excluded) == 2 {
			s.fragments = []string{"LUMBAR SPINE: L1 and L4 have both been excluded from these calculations because they are significantly different than all the other vertebral bodies. No valid scores to report."}
		} else {
			s.fragments = []string{"LUMBAR SPINE: No valid vertebral combination to report."}
		}
		return s, selection, nil
	}

	p, ok := f.point(domain.APSpine, region)
	if !ok {
		return s, selection, nil
	}

	var refPtr *domain.TrendMeasurement
	if ref, ok := f.reference(domain.APSpine, region); ok {
		refPtr = &ref
	}
	s.fragments = append(s.fragments, f.measurementLine(fmt.Sprintf("LUMBAR SPINE (%s)", region), p, refPtr))

	if !selection.FullSpine() {
		excluded := "L4"
		if selection.Combination[0] == "L2" {
			excluded = "L1"
		}
		s.fragments = append(s.fragments,
			excluded+" has been excluded from these calculations because it is significantly different than all the other vertebral bodies.")
	}

	if refPtr != nil {
		f.classify(&s, domain.LumbarSpineRegion, Compare(p.BMD, refPtr.BMD).Change)
	}
	return s, selection, f.addScore(&s, p)
}

// femur renders the femoral neck and total proximal femur of one side.
func (f *findingsComposer) femur(part domain.BodyPart, side string) section {
	var s section
	upper := strings.ToUpper(side)

	if neck, ok := f.point(part, neckRegion); ok {
		var refPtr *domain.TrendMeasurement
		if ref, ok := f.reference(part, neckRegion); ok {
			refPtr = &ref
		}
		s.fragments = append(s.fragments, f.measurementLine(upper+" FEMORAL NECK", neck, refPtr))
		f.addScore(&s, neck)
		if f.study.Sex == domain.Male {
			s.fragments = append(s.fragments, f.measurementLine(upper+" FEMORAL NECK (FEMALE REFERENCE)", neck, nil))
		}
	}

	if total, ok := f.point(part, totalRegion); ok {
		var refPtr *domain.TrendMeasurement
		if ref, ok := f.reference(part, totalRegion); ok {
			refPtr = &ref
		}
		s.fragments = append(s.fragments, f.measurementLine("TOTAL PROXIMAL "+upper+" FEMUR", total, refPtr))
		if refPtr != nil {
			// a hip delta of exactly zero has never produced a change record
			if delta := Compare(total.BMD, refPtr.BMD).Change; delta != 0 || f.opts.RecordZeroHipChange {
				f.classify(&s, domain.HipRegion, delta)
			}
		}
		f.addScore(&s, total)
	}
	return s
}

// forearm renders the one-third radius of one side.
func (f *findingsComposer) forearm(part domain.BodyPart, side string) section {
	var s section
	radius, ok := f.point(part, radiusRegion)
	if !ok {
		return s
	}
	var refPtr *domain.TrendMeasurement
	if ref, ok := f.reference(part, radiusRegion); ok {
		refPtr = &ref
	}
	s.fragments = []string{f.measurementLine("1/3 "+strings.ToUpper(side)+" RADIUS", radius, refPtr)}
	f.addScore(&s, radius)
	return s
}

// closingLines renders the overall category and the fracture risk line.
func closingLines(category domain.DiagnosticCategory, risk domain.FractureRisk) []string {
	lines := []string{"BONE MINERAL DENSITY: " + string(category)}
	if risk.IsCalculated() {
		lines = append(lines, "10 YEAR ABSOLUTE FRACTURE RISK: "+string(risk))
	}
	return lines
}

func joinParagraphs(fragments []string) string {
	return strings.Join(fragments, paragraphSep)
}
