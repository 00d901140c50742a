package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/jward/cderive"
	"github.com/jward/cderive/internal/cc"
)

// validFormats lists accepted values for --format.
var validFormats = []string{"text", "json", "yaml"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, ", "))
}

// encode writes v as JSON or YAML.
func encode(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// formatResult writes the generated code for text, or the run report.
func formatResult(w io.Writer, format string, res *cderive.Result) error {
	if format == "text" {
		_, err := io.WriteString(w, res.Output)
		return err
	}
	return encode(w, format, res)
}

// formatParticipantText renders an explain report as aligned columns.
func formatParticipantText(w io.Writer, p *cc.Participant, rendered string) {
	fmt.Fprintf(w, "Class: %s\n", p.Class)
	if p.Base != "" {
		fmt.Fprintf(w, "Cycle collection base: %s\n", p.Base)
	} else {
		fmt.Fprintln(w, "Cycle collection base: (none)")
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tTYPE\tTRAVERSE\tREASON")
	for _, f := range p.Fields {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", f.Name, f.Type, f.Traverse, f.Reason)
	}
	tw.Flush()

	fmt.Fprintln(w)
	fmt.Fprint(w, rendered)
}

// formatRunsText renders run history as aligned columns.
func formatRunsText(w io.Writer, runs []historyEntry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tFILE\tARGS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.CreatedAt, r.File, strings.Join(r.Args, " "))
	}
	tw.Flush()
}

// formatGeneratorsText renders the generator registry as aligned columns.
func formatGeneratorsText(w io.Writer, gens []generatorEntry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSOURCE")
	for _, g := range gens {
		fmt.Fprintf(tw, "%s\t%s\n", g.Name, g.Source)
	}
	tw.Flush()
}
