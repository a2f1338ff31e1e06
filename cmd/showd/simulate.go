package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coreman2200/arcaluminis-show/internal/sequencer"
)

func newSimulateCommand(opts *options) *cobra.Command {
	var (
		fps     int
		maxS    float64
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Step the configured slot program offline and print its transitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return simulate(cmd.Context(), cmd.OutOrStdout(), cfg.Sync.Sequencer.Program(), fps, maxS, verbose)
		},
	}
	cmd.Flags().IntVar(&fps, "fps", 50, "Simulation ticks per second")
	cmd.Flags().Float64Var(&maxS, "max", 300, "Stop after this many simulated seconds")
	cmd.Flags().BoolVarP(&verbose, "params", "p", false, "Print every envelope value")
	return cmd
}

// simulate runs prog on a timeline whose hooks print instead of touching
// players. A looped program stops at maxS.
func simulate(ctx context.Context, w io.Writer, prog sequencer.Program, fps int, maxS float64, verbose bool) error {
	if fps <= 0 {
		fps = 50
	}
	var now float64
	tl := sequencer.NewTimeline(sequencer.Hooks{
		Engage: func(on bool) {
			fmt.Fprintf(w, "t=%8.3f engage=%v\n", now, on)
		},
		AdvanceToSlot: func(_ context.Context, slot int) error {
			name := ""
			if slot < len(prog.Slots) {
				name = prog.Slots[slot].Name
			}
			fmt.Fprintf(w, "t=%8.3f slot %d %s\n", now, slot, name)
			return nil
		},
		SetParam: func(plugin, name string, v float64) {
			if verbose {
				fmt.Fprintf(w, "t=%8.3f %s.%s=%.3f\n", now, plugin, name, v)
			}
		},
	}, zerolog.Nop())
	if err := tl.Load(prog); err != nil {
		return err
	}
	if err := tl.Start(ctx); err != nil {
		return err
	}
	dt := 1 / float64(fps)
	for tl.Status().State != sequencer.Idle {
		if err := ctx.Err(); err != nil {
			return err
		}
		if now >= maxS {
			fmt.Fprintf(w, "t=%8.3f stopped at --max\n", now)
			tl.Stop()
			return nil
		}
		now += dt
		tl.Tick(ctx, dt)
	}
	fmt.Fprintf(w, "t=%8.3f done\n", now)
	return nil
}
