package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jward/cderive/internal/logger"
	"github.com/jward/cderive/internal/watch"
)

func newWatchCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <file> [compiler args...]",
		Short: "Regenerate whenever the file or a header it includes changes",
		Long:  "Runs gen once, then again each time a file the last run read is saved. Failed runs are logged and watching continues. Stop with Ctrl-C.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, f, args)
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func runWatch(cmd *cobra.Command, f *flags, args []string) error {
	a, err := newApp(cmd, f)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	file, cmdline := args[0], args[1:]
	w := watch.New(watch.WithLogger(a.log.Named(logger.NameWatch)))
	return w.Run(ctx, func(ctx context.Context) ([]string, error) {
		res, err := a.generate(ctx, cmd, f, file, cmdline)
		if res != nil {
			return res.Files, err
		}
		// A unit that failed to parse still depends on its main file.
		return []string{file}, err
	})
}
