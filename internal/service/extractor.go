package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
	"github.com/ibh-daai/bone-mineral-density/pkg/sr"
)

// Layouts accepted for the date keys of trend tables.
var trendDateLayouts = []string{
	"20060102",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
	"2006/01/02",
}

var errMissingBMD = errors.New("missing BMD value")

// ExtractionIssue records a region or trend date that could not be extracted.
type ExtractionIssue struct {
	BodyPart domain.BodyPart `json:"body_part"`
	Region   string          `json:"region"`
	Date     string          `json:"date,omitempty"`
	Err      error           `json:"-"`
}

func (i ExtractionIssue) Error() string {
	if i.Date != "" {
		return fmt.Sprintf("%s/%s/%s: %v", i.BodyPart, i.Region, i.Date, i.Err)
	}
	return fmt.Sprintf("%s/%s: %v", i.BodyPart, i.Region, i.Err)
}

// Extraction is the typed content of one report.
type Extraction struct {
	Points  []domain.PointMeasurement
	Trends  []domain.TrendMeasurement
	Skipped []ExtractionIssue
}

// MeasurementExtractor turns a parsed report tree into point and trend tables
type MeasurementExtractor struct {
	logger *logrus.Logger
}

// NewMeasurementExtractor creates a new extractor
func NewMeasurementExtractor(logger *logrus.Logger) *MeasurementExtractor {
	return &MeasurementExtractor{logger: logger}
}

// Extract reads every known body part section of content. A region that fails
// is logged and skipped; its siblings are still extracted.
func (e *MeasurementExtractor) Extract(content *sr.Container) Extraction {
	var out Extraction

	for _, part := range domain.KnownBodyParts {
		section, ok := content.Child(string(part))
		if !ok {
			continue
		}
		for _, region := range section.Keys() {
			regionNode, ok := section.Child(region)
			if !ok {
				e.skip(&out, ExtractionIssue{BodyPart: part, Region: region, Err: errors.New("region is not a container")})
				continue
			}

			if domain.IsTrendRegion(region) {
				e.extractTrend(&out, part, region, regionNode)
				continue
			}

			point, ok := extractPoint(part, region, regionNode)
			if ok {
				out.Points = append(out.Points, point)
			}
		}
	}
	return out
}

func extractPoint(part domain.BodyPart, region string, c *sr.Container) (domain.PointMeasurement, bool) {
	bmd, ok := c.NumberAt("BMD")
	if !ok {
		return domain.PointMeasurement{}, false
	}
	return domain.PointMeasurement{
		BodyPart: part,
		Region:   region,
		BMD:      bmd,
		TScore:   numberPtr(c, "BMD_TSCORE"),
		ZScore:   numberPtr(c, "BMD_ZSCORE"),
	}, true
}

func (e *MeasurementExtractor) extractTrend(out *Extraction, part domain.BodyPart, region string, c *sr.Container) {
	rows := make([]domain.TrendMeasurement, 0, len(c.Children))
	for _, key := range c.Keys() {
		issue := ExtractionIssue{BodyPart: part, Region: region, Date: key}

		date, err := ParseTrendDate(key)
		if err != nil {
			issue.Err = err
			e.skip(out, issue)
			continue
		}
		row, ok := c.Child(key)
		if !ok {
			issue.Err = errors.New("trend entry is not a container")
			e.skip(out, issue)
			continue
		}
		bmd, ok := row.NumberAt("BMD")
		if !ok {
			issue.Err = errMissingBMD
			e.skip(out, issue)
			continue
		}

		rows = append(rows, domain.TrendMeasurement{
			BodyPart:          part,
			Region:            region,
			Date:              date,
			Age:               numberPtr(row, "AGE"),
			BMD:               bmd,
			ChangeVsPrevious:  numberPtr(row, "CHANGE_VS_PREVIOUS", "BMD"),
			PChangeVsPrevious: numberPtr(row, "PCHANGE_VS_PREVIOUS", "BMD"),
			ChangeVsBaseline:  numberPtr(row, "CHANGE_VS_BASELINE", "BMD"),
		})
	}

	sortTrends(rows)
	out.Trends = append(out.Trends, rows...)
}

func (e *MeasurementExtractor) skip(out *Extraction, issue ExtractionIssue) {
	out.Skipped = append(out.Skipped, issue)
	if e.logger == nil {
		return
	}
	e.logger.WithFields(logrus.Fields{
		"body_part": issue.BodyPart,
		"region":    issue.Region,
		"date":      issue.Date,
	}).WithError(issue.Err).Warn("Skipping measurement region")
}

// ParseTrendDate parses the date key of a trend entry as a UTC calendar date.
func ParseTrendDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range trendDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized trend date %q", s)
}

func numberPtr(c *sr.Container, keys ...string) *float64 {
	v, ok := c.NumberAt(keys...)
	if !ok {
		return nil
	}
	return &v
}
