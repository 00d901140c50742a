package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/cderive"
	"github.com/jward/cderive/internal/logger"
)

func newGenCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gen <file> [compiler args...]",
		Short: "Generate code for one translation unit",
		Long:  "Runs every DERIVE annotation in the translation unit through its generator and prints the result after an #include of the file. This is also what cderive does when given a file directly.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGen(cmd, f, args)
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func runGen(cmd *cobra.Command, f *flags, args []string) error {
	a, err := newApp(cmd, f)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	_, err = a.generate(ctx, cmd, f, args[0], args[1:])
	return err
}

// generate runs the pipeline once and writes the result. A partial result
// from a keep-going run is written before its error is returned.
func (a *app) generate(ctx context.Context, cmd *cobra.Command, f *flags, file string, cmdline []string) (*cderive.Result, error) {
	start := time.Now()
	res, err := a.deriver.Run(ctx, file, a.args(cmdline))
	if res != nil {
		if werr := writeResult(cmd, f, res); werr != nil {
			return res, werr
		}
		a.log.Infow("Generated",
			logger.FieldFile, file,
			logger.FieldCount, len(res.Targets),
			logger.FieldCached, res.Cached,
			logger.FieldDurationMS, time.Since(start).Milliseconds())
	}
	return res, err
}

// filterArgs drops -W arguments; warnings mean nothing to the front end and
// build systems pass plenty of them.
func filterArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if strings.HasPrefix(arg, "-W") {
			continue
		}
		out = append(out, arg)
	}
	return out
}

// writeResult writes res in the selected format to --output or stdout.
func writeResult(cmd *cobra.Command, f *flags, res *cderive.Result) error {
	if f.output == "" {
		return formatResult(cmd.OutOrStdout(), f.format, res)
	}
	var b strings.Builder
	if err := formatResult(&b, f.format, res); err != nil {
		return err
	}
	if err := os.WriteFile(f.output, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", f.output, err)
	}
	return nil
}
