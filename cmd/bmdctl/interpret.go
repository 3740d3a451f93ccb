package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
	"github.com/ibh-daai/bone-mineral-density/internal/repository"
	"github.com/ibh-daai/bone-mineral-density/internal/service"
	"github.com/ibh-daai/bone-mineral-density/pkg/sr"
)

type interpretOptions struct {
	history    domain.FragilityHistory
	suppressed bool
	format     string
	dicomOut   string
}

func newInterpretCmd(global *globalOptions) *cobra.Command {
	opts := &interpretOptions{}

	cmd := &cobra.Command{
		Use:   "interpret <file>",
		Short: "Interpret one structured report without touching the database",
		Long: `Interprets a DXA structured report (DICOM Part 10 or DICOM JSON) and
prints the generated report. Only the trend values carried by the report
itself are available for comparison.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInterpret(cmd.Context(), cmd.OutOrStdout(), global, opts, args[0])
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.history.FractureHistory, "fracture-history", false, "prior fragility fracture")
	flags.BoolVar(&opts.history.GlucocorticoidHistory, "glucocorticoid-history", false, "prolonged glucocorticoid use")
	flags.BoolVar(&opts.history.PriorHipFracture, "hip-fracture", false, "prior hip fragility fracture")
	flags.BoolVar(&opts.history.PriorVertebralFracture, "vertebral-fracture", false, "prior vertebral fragility fracture")
	flags.BoolVar(&opts.history.TwoOrMoreFractures, "two-or-more-fractures", false, "two or more fragility fractures")
	flags.BoolVar(&opts.suppressed, "suppress-comparison", false, "don't compare with previous examinations")
	flags.StringVarP(&opts.format, "output", "o", "text", "output format: text or json")
	flags.StringVar(&opts.dicomOut, "dicom-out", "", "also write the generated report as a DICOM file")
	return cmd
}

func runInterpret(ctx context.Context, out io.Writer, global *globalOptions, opts *interpretOptions, path string) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown output format %q", opts.format)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)

	tables, err := service.DefaultReferenceTables()
	if err != nil {
		return err
	}
	var engine service.EngineOptions
	if global.configFile != "" {
		cm, l, err := global.load()
		if err != nil {
			return err
		}
		logger = l
		tables = tables.WithInstitutions(cm.GetConfig().Institutions)
		engine.RecordZeroHipChange = cm.GetConfig().Engine.RecordZeroHipChange
	}

	root, err := readDocument(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	repo := repository.NewMemoryRepository()
	processor := service.NewStudyProcessor(logger, service.ProcessorDependencies{
		Repository:  repo,
		Interpreter: service.NewBoneDensityInterpreter(logger, repo, tables, engine),
	})

	result, err := processor.ProcessDocument(ctx, root, service.ProcessOptions{
		History:              opts.history,
		ComparisonSuppressed: opts.suppressed,
		SkipSend:             true,
	})
	if err != nil {
		return err
	}
	if result.Skipped {
		return fmt.Errorf("%s was skipped: %s", path, result.Reason)
	}

	if opts.dicomOut != "" && result.Report != nil {
		f, err := os.Create(opts.dicomOut)
		if err != nil {
			return err
		}
		if err := sr.Write(f, result.Report.Dataset); err != nil {
			f.Close()
			return fmt.Errorf("writing %s: %w", opts.dicomOut, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}

	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	_, err = fmt.Fprintln(out, result.Interpretation.Report)
	for _, w := range result.Interpretation.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	return err
}
