package service

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"
	"gonum.org/v1/gonum/interp"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

//go:embed reference_tables.yaml
var referenceTablesYAML []byte

// CAROCRow is one age breakpoint of a CAROC table.
type CAROCRow struct {
	Age      float64 `yaml:"age"`
	Moderate float64 `yaml:"moderate"`
	High     float64 `yaml:"high"`
}

type referenceTablesFile struct {
	Institutions []domain.InstitutionConfig `yaml:"institutions"`
	CAROC        map[string][]CAROCRow      `yaml:"caroc"`
}

// carocCurve interpolates the moderate and high boundaries of one sex.
type carocCurve struct {
	rows     []CAROCRow
	moderate interp.PiecewiseLinear
	high     interp.PiecewiseLinear
}

func newCAROCCurve(rows []CAROCRow) (*carocCurve, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("CAROC table needs at least two rows, got %d", len(rows))
	}
	ages := make([]float64, len(rows))
	moderate := make([]float64, len(rows))
	high := make([]float64, len(rows))
	for i, r := range rows {
		ages[i], moderate[i], high[i] = r.Age, r.Moderate, r.High
	}

	c := &carocCurve{rows: rows}
	if err := c.moderate.Fit(ages, moderate); err != nil {
		return nil, fmt.Errorf("fitting moderate boundary: %w", err)
	}
	if err := c.high.Fit(ages, high); err != nil {
		return nil, fmt.Errorf("fitting high boundary: %w", err)
	}
	return c, nil
}

// thresholds returns the boundaries at age. Ages past the last row extend
// the last segment instead of clamping.
func (c *carocCurve) thresholds(age float64) (moderate, high float64) {
	n := len(c.rows)
	if last := c.rows[n-1]; age > last.Age {
		prev := c.rows[n-2]
		return extend(age, prev.Age, last.Age, prev.Moderate, last.Moderate),
			extend(age, prev.Age, last.Age, prev.High, last.High)
	}
	return c.moderate.Predict(age), c.high.Predict(age)
}

func extend(x, x1, x2, y1, y2 float64) float64 {
	return y1 + (x-x1)*(y2-y1)/(x2-x1)
}

// ReferenceTables holds the institution LSC rows and the CAROC curves. It is
// read-only after construction and safe for concurrent use.
type ReferenceTables struct {
	institutions map[string]domain.InstitutionConfig
	caroc        map[domain.Sex]*carocCurve
}

// LoadReferenceTables parses reference tables from YAML.
func LoadReferenceTables(data []byte) (*ReferenceTables, error) {
	var file referenceTablesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing reference tables: %w", err)
	}

	t := &ReferenceTables{
		institutions: make(map[string]domain.InstitutionConfig),
		caroc:        make(map[domain.Sex]*carocCurve),
	}
	for _, inst := range file.Institutions {
		t.institutions[institutionKey(inst.Name)] = inst
	}
	for name, rows := range file.CAROC {
		sex, err := domain.ParseSex(name)
		if err != nil {
			return nil, fmt.Errorf("CAROC table %q: %w", name, err)
		}
		curve, err := newCAROCCurve(rows)
		if err != nil {
			return nil, fmt.Errorf("CAROC table %q: %w", name, err)
		}
		t.caroc[sex] = curve
	}
	for _, sex := range []domain.Sex{domain.Female, domain.Male} {
		if t.caroc[sex] == nil {
			return nil, fmt.Errorf("missing CAROC table for %s", sex)
		}
	}
	return t, nil
}

// DefaultReferenceTables returns the built-in tables.
func DefaultReferenceTables() (*ReferenceTables, error) {
	return LoadReferenceTables(referenceTablesYAML)
}

// WithInstitutions returns a copy of t with rows added or replaced by name.
func (t *ReferenceTables) WithInstitutions(extra []domain.InstitutionConfig) *ReferenceTables {
	merged := make(map[string]domain.InstitutionConfig, len(t.institutions)+len(extra))
	for k, v := range t.institutions {
		merged[k] = v
	}
	for _, inst := range extra {
		merged[institutionKey(inst.Name)] = inst
	}
	return &ReferenceTables{institutions: merged, caroc: t.caroc}
}

// LSC returns the least significant change row of an institution.
func (t *ReferenceTables) LSC(institution string) (domain.InstitutionConfig, bool) {
	inst, ok := t.institutions[institutionKey(institution)]
	return inst, ok
}

// LSCDisclosure renders the LSC block appended to summaries with change statements.
func (t *ReferenceTables) LSCDisclosure(institution string) (string, bool) {
	inst, ok := t.LSC(institution)
	if !ok {
		return "", false
	}
	label := inst.Abbreviation
	if label == "" {
		label = inst.Name
	}
	return fmt.Sprintf("LSC (least significant change) at %s:\nLumbar spine - %s gm/cm2\nTotal femur - %s gm/cm2",
		label, formatNumber(inst.SpineLSC), formatNumber(inst.HipLSC)), true
}

// CAROCThresholds returns the interpolated moderate and high T-score boundaries.
func (t *ReferenceTables) CAROCThresholds(sex domain.Sex, age int) (moderate, high float64) {
	curve, ok := t.caroc[sex]
	if !ok {
		curve = t.caroc[domain.Male]
	}
	return curve.thresholds(float64(age))
}

func institutionKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
