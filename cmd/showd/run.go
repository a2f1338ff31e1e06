package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/coreman2200/arcaluminis-show/internal/app"
	"github.com/coreman2200/arcaluminis-show/internal/logging"
)

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the show until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			log, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
			if err != nil {
				return err
			}

			lock := flock.New(cfg.LockFile)
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return fmt.Errorf("another showd holds %s", cfg.LockFile)
			}
			defer lock.Unlock()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			runErr := a.Run(ctx)
			closeErr := a.Close()
			if errors.Is(runErr, context.Canceled) {
				log.Info().Msg("shutdown complete")
				runErr = nil
			}
			return errors.Join(runErr, closeErr)
		},
	}
}
