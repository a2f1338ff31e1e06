package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coreman2200/arcaluminis-show/internal/effect"
	"github.com/coreman2200/arcaluminis-show/internal/effect/fx"
)

func newPluginsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List built-in effect plugins and their parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := effect.NewRegistry()
			if err := fx.RegisterAll(reg); err != nil {
				return err
			}
			var rows [][]string
			for _, d := range reg.List() {
				rows = append(rows, []string{d.ID, d.Name, describeSchema(d.Schema)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "NAME", "PARAMETERS"}, rows))
			return nil
		},
	}
}

func describeSchema(s effect.Schema) string {
	parts := make([]string, 0, len(s))
	for _, p := range s {
		switch {
		case len(p.Options) > 0:
			parts = append(parts, fmt.Sprintf("%s=%v {%s}", p.Name, p.Default, strings.Join(p.Options, "|")))
		case p.Min < p.Max:
			parts = append(parts, fmt.Sprintf("%s=%v [%g,%g]", p.Name, p.Default, p.Min, p.Max))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", p.Name, p.Default))
		}
	}
	return strings.Join(parts, " ")
}
