package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coreman2200/arcaluminis-show/internal/config"
)

func newConfigCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration to --config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteSample(opts.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", opts.configPath)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate --config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.load()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d players, %d clips, %d outputs)\n",
				opts.configPath, len(c.Players), len(c.Clips), len(c.Outputs))
			return nil
		},
	})
	return cmd
}
