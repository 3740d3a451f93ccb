package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
	"github.com/ibh-daai/bone-mineral-density/internal/results"
	"github.com/ibh-daai/bone-mineral-density/internal/service"
	"github.com/ibh-daai/bone-mineral-density/pkg/sr"
)

// DocumentProcessor ingests and interprets one structured report
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, root sr.Item, opts service.ProcessOptions) (*service.ProcessResult, error)
}

// Tools holds the handlers of every MCP tool
type Tools struct {
	logger    *logrus.Logger
	processor DocumentProcessor
	tables    *service.ReferenceTables
	results   results.Store
	exportDir string
}

// NewTools creates the tool handlers. results may be nil, in which case the
// result tools are not registered.
func NewTools(logger *logrus.Logger, processor DocumentProcessor, tables *service.ReferenceTables, store results.Store, exportDir string) *Tools {
	return &Tools{
		logger:    logger,
		processor: processor,
		tables:    tables,
		results:   store,
		exportDir: exportDir,
	}
}

// Register adds the tools to an MCP server
func (t *Tools) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "interpret_bmd_report",
		Description: "Interpret a DXA bone mineral density structured report (DICOM file path or DICOM JSON) and return findings, summary, diagnostic category and 10 year fracture risk.",
	}, t.InterpretReport)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "classify_bone_density",
		Description: "Classify bone density from T-scores (age 50 and over) or Z-scores (under 50) into a diagnostic category.",
	}, t.ClassifyBoneDensity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "estimate_fracture_risk",
		Description: "Estimate the CAROC 2010 10 year fracture risk from the femoral neck T-score, age, sex and fragility history.",
	}, t.EstimateFractureRisk)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "select_vertebrae",
		Description: "Decide which lumbar vertebrae (L1-L4) are valid for reporting given their T-scores.",
	}, t.SelectVertebrae)

	if t.results == nil {
		return
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_results",
		Description: "List stored interpretation results, optionally for one accession number.",
	}, t.ListResults)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "export_results",
		Description: "Export all stored interpretation results to a JSON file for backup.",
	}, t.ExportResults)
}

// History carries the fragility history flags of a request
type History struct {
	FractureHistory        bool `json:"fracture_history,omitempty" jsonschema:"prior fragility fracture"`
	GlucocorticoidHistory  bool `json:"glucocorticoid_history,omitempty" jsonschema:"prolonged glucocorticoid use"`
	PriorHipFracture       bool `json:"prior_hip_fracture,omitempty" jsonschema:"prior hip fragility fracture"`
	PriorVertebralFracture bool `json:"prior_vertebral_fracture,omitempty" jsonschema:"prior vertebral fragility fracture"`
	TwoOrMoreFractures     bool `json:"two_or_more_fractures,omitempty" jsonschema:"two or more fragility fractures"`
}

func (h History) domain() domain.FragilityHistory {
	return domain.FragilityHistory{
		FractureHistory:        h.FractureHistory,
		GlucocorticoidHistory:  h.GlucocorticoidHistory,
		PriorHipFracture:       h.PriorHipFracture,
		PriorVertebralFracture: h.PriorVertebralFracture,
		TwoOrMoreFractures:     h.TwoOrMoreFractures,
	}
}

// InterpretReportParams defines parameters for interpret_bmd_report
type InterpretReportParams struct {
	Path                 string `json:"path,omitempty" jsonschema:"path of a DICOM (.dcm) or DICOM JSON (.json) structured report"`
	DicomJSON            string `json:"dicom_json,omitempty" jsonschema:"the structured report as DICOM JSON"`
	ComparisonSuppressed bool   `json:"comparison_suppressed,omitempty" jsonschema:"skip comparison with previous examinations"`
	History
}

// InterpretReportResult defines the result of interpret_bmd_report
type InterpretReportResult struct {
	SOPInstanceUID     string   `json:"sop_instance_uid,omitempty"`
	Accession          string   `json:"accession,omitempty"`
	Skipped            bool     `json:"skipped"`
	Reason             string   `json:"reason,omitempty"`
	DiagnosticCategory string   `json:"diagnostic_category,omitempty"`
	FractureRisk       string   `json:"fracture_risk,omitempty"`
	Findings           string   `json:"findings,omitempty"`
	Summary            string   `json:"summary,omitempty"`
	Report             string   `json:"report,omitempty"`
	Warnings           []string `json:"warnings,omitempty"`
	Issues             []string `json:"issues,omitempty"`
	ProcessingTime     string   `json:"processing_time"`
}

// InterpretReport implements the interpret_bmd_report tool
func (t *Tools) InterpretReport(ctx context.Context, req *mcp.CallToolRequest, params InterpretReportParams) (*mcp.CallToolResult, InterpretReportResult, error) {
	startTime := time.Now()
	t.logger.WithField("tool", "interpret_bmd_report").Info("Processing interpretation request")

	root, err := loadDocument(params)
	if err != nil {
		return nil, InterpretReportResult{}, err
	}

	res, err := t.processor.ProcessDocument(ctx, root, service.ProcessOptions{
		History:              params.History.domain(),
		ComparisonSuppressed: params.ComparisonSuppressed,
		SkipSend:             true,
	})
	if err != nil {
		return nil, InterpretReportResult{}, fmt.Errorf("interpretation failed: %w", err)
	}

	out := InterpretReportResult{
		SOPInstanceUID: res.SOPInstanceUID,
		Accession:      res.Accession,
		Skipped:        res.Skipped,
		Reason:         res.Reason,
	}
	for _, issue := range res.Issues {
		out.Issues = append(out.Issues, issue.Error())
	}
	if i := res.Interpretation; i != nil {
		out.DiagnosticCategory = string(i.DiagnosticCategory)
		out.FractureRisk = string(i.FractureRisk)
		out.Findings = i.Findings
		out.Summary = i.Summary
		out.Report = i.Report
		out.Warnings = i.Warnings
	}
	out.ProcessingTime = time.Since(startTime).String()

	t.logger.WithFields(logrus.Fields{
		"accession":           out.Accession,
		"skipped":             out.Skipped,
		"diagnostic_category": out.DiagnosticCategory,
		"fracture_risk":       out.FractureRisk,
		"processing_time":     out.ProcessingTime,
	}).Info("Interpretation completed")

	return nil, out, nil
}

func loadDocument(params InterpretReportParams) (sr.Item, error) {
	switch {
	case params.DicomJSON != "" && params.Path != "":
		return nil, errors.New("give either path or dicom_json, not both")
	case params.DicomJSON != "":
		return sr.FromJSON([]byte(params.DicomJSON))
	case params.Path == "":
		return nil, errors.New("path or dicom_json is required")
	case strings.EqualFold(filepath.Ext(params.Path), ".json"):
		data, err := os.ReadFile(params.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", params.Path, err)
		}
		return sr.FromJSON(data)
	default:
		return sr.ParseFile(params.Path)
	}
}

// ClassifyParams defines parameters for classify_bone_density
type ClassifyParams struct {
	Age    int       `json:"age" jsonschema:"patient age in years"`
	Scores []float64 `json:"scores" jsonschema:"T-scores (age 50 and over) or Z-scores (under 50) of the reported regions"`
}

// ClassifyResult defines the result of classify_bone_density
type ClassifyResult struct {
	DiagnosticCategory string  `json:"diagnostic_category"`
	LowestScore        float64 `json:"lowest_score"`
	ScoreType          string  `json:"score_type"`
}

// ClassifyBoneDensity implements the classify_bone_density tool
func (t *Tools) ClassifyBoneDensity(ctx context.Context, req *mcp.CallToolRequest, params ClassifyParams) (*mcp.CallToolResult, ClassifyResult, error) {
	category, err := service.ClassifyDiagnosis(params.Age, params.Scores)
	if err != nil {
		return nil, ClassifyResult{}, err
	}

	lowest := params.Scores[0]
	for _, s := range params.Scores[1:] {
		if s < lowest {
			lowest = s
		}
	}
	scoreType := "T-score"
	if params.Age < 50 {
		scoreType = "Z-score"
	}
	return nil, ClassifyResult{
		DiagnosticCategory: string(category),
		LowestScore:        lowest,
		ScoreType:          scoreType,
	}, nil
}

// FractureRiskParams defines parameters for estimate_fracture_risk
type FractureRiskParams struct {
	Age                   int      `json:"age" jsonschema:"patient age in years"`
	Sex                   string   `json:"sex" jsonschema:"M or F"`
	FemoralNeckTScore     *float64 `json:"femoral_neck_t_score,omitempty" jsonschema:"femoral neck T-score"`
	LumbarScore           *float64 `json:"lumbar_score,omitempty" jsonschema:"score of the reported lumbar combination"`
	FullSpineLumbarTScore *float64 `json:"full_spine_lumbar_t_score,omitempty" jsonschema:"L1-L4 T-score, used without a femoral neck"`
	L4Excluded            bool     `json:"l4_excluded,omitempty" jsonschema:"the reported lumbar combination leaves out a vertebra"`
	History
}

// FractureRiskResult defines the result of estimate_fracture_risk
type FractureRiskResult struct {
	FractureRisk      string   `json:"fracture_risk"`
	ModerateThreshold *float64 `json:"moderate_threshold,omitempty"`
	HighThreshold     *float64 `json:"high_threshold,omitempty"`
}

// EstimateFractureRisk implements the estimate_fracture_risk tool
func (t *Tools) EstimateFractureRisk(ctx context.Context, req *mcp.CallToolRequest, params FractureRiskParams) (*mcp.CallToolResult, FractureRiskResult, error) {
	sex, err := domain.ParseSex(params.Sex)
	if err != nil {
		return nil, FractureRiskResult{}, err
	}

	risk := t.tables.ClassifyFractureRisk(service.FractureRiskInput{
		FemoralNeckT:     params.FemoralNeckTScore,
		LumbarScore:      params.LumbarScore,
		FullSpineLumbarT: params.FullSpineLumbarTScore,
		Age:              params.Age,
		Sex:              sex,
		History:          params.History.domain(),
		L4Excluded:       params.L4Excluded,
	})

	out := FractureRiskResult{FractureRisk: string(risk)}
	if params.Age >= 50 {
		moderate, high := t.tables.CAROCThresholds(sex, params.Age)
		out.ModerateThreshold = &moderate
		out.HighThreshold = &high
	}
	return nil, out, nil
}

// SelectVertebraeParams defines parameters for select_vertebrae
type SelectVertebraeParams struct {
	Age     int                `json:"age" jsonschema:"patient age in years"`
	TScores map[string]float64 `json:"t_scores" jsonschema:"T-scores keyed by vertebra (L1, L2, L3, L4); leave out vertebrae that were not measured"`
}

// SelectVertebraeResult defines the result of select_vertebrae
type SelectVertebraeResult struct {
	Combination []string `json:"combination"`
	Excluded    []string `json:"excluded,omitempty"`
	Region      string   `json:"region,omitempty"`
}

// SelectVertebrae implements the select_vertebrae tool
func (t *Tools) SelectVertebrae(ctx context.Context, req *mcp.CallToolRequest, params SelectVertebraeParams) (*mcp.CallToolResult, SelectVertebraeResult, error) {
	scores := make(service.VertebraScores, len(params.TScores))
	for name, score := range params.TScores {
		score := score
		scores[strings.ToUpper(strings.TrimSpace(name))] = &score
	}

	selection := service.SelectVertebrae(params.Age, scores)
	return nil, SelectVertebraeResult{
		Combination: selection.Combination,
		Excluded:    selection.Excluded,
		Region:      selection.RegionName(),
	}, nil
}

// ListResultsParams defines parameters for list_results
type ListResultsParams struct {
	Accession string `json:"accession,omitempty" jsonschema:"only results of this accession number"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 20"`
}

// ListResultsResult defines the result of list_results
type ListResultsResult struct {
	Count   int                    `json:"count"`
	Results []*domain.ResultRecord `json:"results"`
}

// ListResults implements the list_results tool
func (t *Tools) ListResults(ctx context.Context, req *mcp.CallToolRequest, params ListResultsParams) (*mcp.CallToolResult, ListResultsResult, error) {
	var (
		records []*domain.ResultRecord
		err     error
	)
	if params.Accession != "" {
		records, err = t.results.GetResultsByAccession(ctx, params.Accession)
	} else {
		limit := params.Limit
		if limit <= 0 {
			limit = 20
		}
		records, err = t.results.ListResults(ctx, limit)
	}
	if err != nil {
		return nil, ListResultsResult{}, fmt.Errorf("failed to list results: %w", err)
	}
	if records == nil {
		records = []*domain.ResultRecord{}
	}
	return nil, ListResultsResult{Count: len(records), Results: records}, nil
}

// ExportResultsParams defines parameters for export_results
type ExportResultsParams struct{}

// ExportResultsResult defines the result of export_results
type ExportResultsResult struct {
	Success  bool   `json:"success"`
	FilePath string `json:"file_path"`
	Count    int64  `json:"count"`
	Message  string `json:"message"`
}

// ExportResults implements the export_results tool
func (t *Tools) ExportResults(ctx context.Context, req *mcp.CallToolRequest, params ExportResultsParams) (*mcp.CallToolResult, ExportResultsResult, error) {
	if err := os.MkdirAll(t.exportDir, 0755); err != nil {
		return nil, ExportResultsResult{}, fmt.Errorf("failed to create export directory: %w", err)
	}

	filename := fmt.Sprintf("results_export_%s.json", time.Now().Format("20060102_150405"))
	filePath := filepath.Join(t.exportDir, filename)

	file, err := os.Create(filePath)
	if err != nil {
		return nil, ExportResultsResult{}, fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	if err := t.results.ExportJSON(ctx, file); err != nil {
		t.logger.WithError(err).Error("Failed to export results")
		return nil, ExportResultsResult{}, fmt.Errorf("failed to export results: %w", err)
	}

	count, _ := t.results.Count(ctx)
	return nil, ExportResultsResult{
		Success:  true,
		FilePath: filePath,
		Count:    count,
		Message:  fmt.Sprintf("Exported %d results to %s", count, filePath),
	}, nil
}
