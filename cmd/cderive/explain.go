package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/jward/cderive"
	"github.com/jward/cderive/internal/cc"
)

func newExplainCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain <file> <class> [compiler args...]",
		Short: "Show the cycle collection decision for every field of a class",
		Long:  "Parses the translation unit, finds the definition of class (optionally qualified, e.g. mozilla::dom::Foo) and reports, per field, whether the CycleCollection generator traverses it and why.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd, f, args)
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}

// explainReport is the json/yaml form of explain.
type explainReport struct {
	cc.Participant `yaml:",inline"`
	Location       cderive.Location `json:"location" yaml:"location"`
	Output         string           `json:"output" yaml:"output"`
}

func runExplain(cmd *cobra.Command, f *flags, args []string) error {
	a, err := newApp(cmd, f)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	file, name := args[0], args[1]
	tu, err := a.frontend.Parse(ctx, file, a.args(args[2:]))
	if err != nil {
		return &cderive.ParseError{File: file, Err: err}
	}
	class, ok := findClass(tu.Root(), name)
	if !ok {
		return errors.WithHint(
			fmt.Errorf("no definition of class %s in %s", name, file),
			"pass the compiler arguments (-I ...) needed to reach the header that defines it")
	}

	p, err := a.analyzer.Analyze(class)
	if err != nil {
		return err
	}
	rendered := cc.Render(p)
	if f.format == "text" {
		formatParticipantText(cmd.OutOrStdout(), p, rendered)
		return nil
	}
	return encode(cmd.OutOrStdout(), f.format, explainReport{
		Participant: *p,
		Location:    class.Location(),
		Output:      rendered,
	})
}

// findClass returns the first class definition, in source order, whose
// enclosing namespace and class names end with the components of name.
func findClass(root cderive.Entity, name string) (cderive.Entity, bool) {
	want := strings.Split(strings.TrimPrefix(name, "::"), "::")
	var found cderive.Entity
	var walk func(e cderive.Entity, path []string)
	walk = func(e cderive.Entity, path []string) {
		e.VisitChildren(func(child cderive.Entity) cderive.VisitResult {
			if found != nil {
				return cderive.VisitBreak
			}
			switch child.Kind() {
			case cderive.KindNamespace, cderive.KindClass:
			default:
				return cderive.VisitContinue
			}
			childPath := path
			if n, ok := child.DisplayName(); ok && n != "" {
				childPath = append(append([]string{}, path...), n)
			}
			if child.Kind() == cderive.KindClass && hasSuffix(childPath, want) {
				if def, ok := child.Definition(); ok && def == child {
					found = child
					return cderive.VisitBreak
				}
			}
			walk(child, childPath)
			return cderive.VisitContinue
		})
	}
	walk(root, nil)
	return found, found != nil
}

func hasSuffix(path, suffix []string) bool {
	if len(suffix) > len(path) {
		return false
	}
	off := len(path) - len(suffix)
	for i, s := range suffix {
		if path[off+i] != s {
			return false
		}
	}
	return true
}
