package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ibh-daai/bone-mineral-density/internal/database"
	"github.com/ibh-daai/bone-mineral-density/internal/results"
)

func newResultsCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Export and import stored interpretation results",
	}

	open := func() (*results.PostgresStore, error) {
		cm, _, err := global.load()
		if err != nil {
			return nil, err
		}
		return results.NewPostgresStoreFromURL(database.ConfigFrom(*cm.GetDatabaseConfig()).URL())
	}

	var outFile string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write every stored result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			var out io.Writer = cmd.OutOrStdout()
			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return store.ExportJSON(cmd.Context(), out)
		},
	}
	export.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load results from a JSON export, skipping known ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			imported, skipped, err := store.ImportJSON(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d\n", imported, skipped)
			return nil
		},
	}

	cmd.AddCommand(export, importCmd)
	return cmd
}
