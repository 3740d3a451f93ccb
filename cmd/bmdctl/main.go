// Package main provides bmdctl, the command line tool of the BMD
// interpretation service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ibh-daai/bone-mineral-density/internal/config"
)

var version = "1.0.0"

type globalOptions struct {
	configFile string
	noProgress bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "bmdctl",
		Short: "Interpret DXA bone mineral density reports from the command line",
		Long: `bmdctl interprets DXA structured reports, ingests directories of
reports into the service database, runs schema migrations and manages
stored interpretation results.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "configuration file (default ./config.yaml)")
	root.PersistentFlags().BoolVar(&opts.noProgress, "no-progress", false, "don't show progress bar")

	root.AddCommand(
		newInterpretCmd(opts),
		newIngestCmd(opts),
		newMigrateCmd(opts),
		newResultsCmd(opts),
		newSetupCmd(),
	)
	return root
}

// load reads the configuration and builds the logger it describes.
func (o *globalOptions) load() (*config.Manager, *logrus.Logger, error) {
	var (
		cm  *config.Manager
		err error
	)
	if o.configFile != "" {
		cm, err = config.NewManagerFromFile(o.configFile)
	} else {
		cm, err = config.NewManager()
	}
	if err != nil {
		return nil, nil, err
	}

	logging := cm.GetConfig().Logging
	if logging.Output == "" || logging.Output == "stdout" {
		// stdout is for command output
		logging.Output = "stderr"
	}
	logger, err := config.NewLogger(logging)
	if err != nil {
		return nil, nil, err
	}
	return cm, logger, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
