package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// printError writes err and any hints attached to it.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %s\n", err)
	if hint := errors.FlattenHints(err); hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
}

// flags holds the values of the persistent flags shared by every command.
type flags struct {
	config    string
	format    string
	output    string
	logLevel  string
	logJSON   bool
	strict    bool
	keepGoing bool
	noCache   bool
	timeout   string
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "cderive [flags] <file> [compiler args...]",
		Short: "Generate C++ boilerplate from DERIVE annotations",
		Long: "cderive parses a C or C++ translation unit with tree-sitter, finds classes annotated with\n" +
			"DERIVE(Class, Name) and writes the code each named generator produces for them.\n\n" +
			"Arguments after the file are compiler arguments; -I, -iquote and -isystem are honored,\n" +
			"-W arguments are dropped and everything else is ignored.",
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return validateFormat(f.format)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runGen(cmd, f, args)
		},
	}
	// Compiler arguments follow the file and must not be parsed as flags.
	root.Flags().SetInterspersed(false)

	pf := root.PersistentFlags()
	pf.StringVar(&f.config, "config", "", "config file (default: .cderive.toml found from the working directory up)")
	pf.StringVar(&f.format, "format", "text", "output format: text|json|yaml")
	pf.StringVarP(&f.output, "output", "o", "", "write output to this file instead of stdout")
	pf.StringVar(&f.logLevel, "log-level", "", "log level: debug|info|warn|error")
	pf.BoolVar(&f.logJSON, "log-json", false, "log as JSON")
	pf.BoolVar(&f.strict, "strict", false, "fail on syntax errors instead of skipping them")
	pf.BoolVar(&f.keepGoing, "keep-going", false, "report every generator failure instead of stopping at the first")
	pf.BoolVar(&f.noCache, "no-cache", false, "neither read nor record cached runs")
	pf.StringVar(&f.timeout, "timeout", "", "deadline for the whole run, e.g. 30s")

	root.AddCommand(newGenCmd(f))
	root.AddCommand(newWatchCmd(f))
	root.AddCommand(newExplainCmd(f))
	root.AddCommand(newGeneratorsCmd(f))
	root.AddCommand(newHistoryCmd(f))
	return root
}
