package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ibh-daai/bone-mineral-density/internal/setup"
)

func newSetupCmd() *cobra.Command {
	opts := setup.Options{}

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the standalone MCP server with a desktop MCP client",
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "client-config", "", "client configuration file (default: the desktop client's)")

	register := &cobra.Command{
		Use:   "mcp-client",
		Short: "Add or update the bmd-mcp entry of the client configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := setup.Configure(opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s registered in %s\n", setup.ServerName, path)
			return nil
		},
	}
	register.Flags().StringVar(&opts.BinaryPath, "binary", "", "path of the bmd-mcp binary (searched when empty)")
	register.Flags().StringVar(&opts.DataDir, "data-dir", "", "data directory of the MCP server")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether the MCP server is registered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := setup.GetStatus(opts)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}

	cmd.AddCommand(register, status)
	return cmd
}
