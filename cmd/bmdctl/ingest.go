package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/ibh-daai/bone-mineral-density/internal/app"
	"github.com/ibh-daai/bone-mineral-density/internal/service"
)

type ingestOptions struct {
	concurrency int
	noSend      bool
}

type ingestOutcome struct {
	file    string
	skipped string
	err     error
}

type ingestSummary struct {
	processed int
	skipped   int
	failed    []ingestOutcome
}

func newIngestCmd(global *globalOptions) *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest <directory>",
		Short: "Ingest and interpret every structured report below a directory",
		Long: `Walks a directory for .dcm and .json structured reports, stores their
measurements and interprets each study. Generated reports are sent to the
archive unless --no-send is given. Reports processed before are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := collectDocuments(args[0])
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no .dcm or .json files found in %s", args[0])
			}

			cm, logger, err := global.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			services, err := app.New(ctx, cm, logger)
			if err != nil {
				return err
			}
			defer services.Close()

			process := func(ctx context.Context, file string) ingestOutcome {
				root, err := readDocument(file)
				if err != nil {
					return ingestOutcome{file: file, err: err}
				}
				res, err := services.Processor.ProcessDocument(ctx, root, service.ProcessOptions{SkipSend: opts.noSend})
				if err != nil {
					return ingestOutcome{file: file, err: err}
				}
				if res.Skipped {
					return ingestOutcome{file: file, skipped: res.Reason}
				}
				return ingestOutcome{file: file}
			}

			var progress io.Writer = cmd.ErrOrStderr()
			if global.noProgress {
				progress = io.Discard
			}
			summary := ingestFiles(ctx, files, opts.concurrency, progress, process)
			return printSummary(cmd.OutOrStdout(), len(files), summary)
		},
	}

	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 2, "number of reports processed in parallel")
	cmd.Flags().BoolVar(&opts.noSend, "no-send", false, "keep generated reports instead of sending them to the archive")
	return cmd
}

// ingestFiles runs process over files with bounded concurrency and a progress bar.
func ingestFiles(ctx context.Context, files []string, concurrency int, progressOut io.Writer, process func(context.Context, string) ingestOutcome) ingestSummary {
	if concurrency < 1 {
		concurrency = 1
	}

	progress := mpb.NewWithContext(ctx, mpb.WithOutput(progressOut))
	bar := progress.AddBar(int64(len(files)),
		mpb.BarRemoveOnComplete(),
		mpb.PrependDecorators(
			decor.Name("ingest", decor.WC{W: 7, C: decor.DindentRight}),
			decor.CountersNoUnit("%d / %d", decor.WC{W: 12}),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)

	outcomes := make(chan ingestOutcome)
	done := make(chan ingestSummary)
	go func() {
		var s ingestSummary
		for o := range outcomes {
			switch {
			case o.err != nil:
				s.failed = append(s.failed, o)
			case o.skipped != "":
				s.skipped++
			default:
				s.processed++
			}
		}
		done <- s
	}()

	sem := make(chan struct{}, concurrency)
	for _, file := range files {
		sem <- struct{}{}
		go func(file string) {
			defer func() { <-sem }()
			outcomes <- process(ctx, file)
			bar.Increment()
		}(file)
	}
	for i := 0; i < cap(sem); i++ {
		sem <- struct{}{}
	}
	close(outcomes)
	if !bar.Completed() {
		bar.Abort(false)
	}
	progress.Wait()

	return <-done
}

func printSummary(out io.Writer, total int, s ingestSummary) error {
	fmt.Fprintf(out, "Reports          [total, processed, skipped, failed]  %d, %d, %d, %d\n",
		total, s.processed, s.skipped, len(s.failed))
	for _, f := range s.failed {
		fmt.Fprintf(out, "  %s: %v\n", f.file, f.err)
	}
	if len(s.failed) > 0 {
		return fmt.Errorf("%d of %d reports failed", len(s.failed), total)
	}
	return nil
}
