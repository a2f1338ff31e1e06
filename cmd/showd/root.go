package main

import (
	"github.com/spf13/cobra"

	"github.com/coreman2200/arcaluminis-show/internal/config"
)

type options struct {
	configPath string
	logLevel   string
}

func (o *options) load() (*config.Config, error) {
	c, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		c.Log.Level = o.logLevel
	}
	return c, nil
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "showd",
		Short:         "Layered LED show playback daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "show.yaml", "Configuration file (.yaml or .toml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log.level")

	root.AddCommand(newRunCommand(opts))
	root.AddCommand(newConfigCommand(opts))
	root.AddCommand(newClipsCommand(opts))
	root.AddCommand(newPluginsCommand())
	root.AddCommand(newStatusCommand(opts))
	root.AddCommand(newSimulateCommand(opts))
	return root
}
