package main

import (
	"time"

	"github.com/spf13/cobra"
)

// generatorEntry is one registered generator.
type generatorEntry struct {
	Name   string `json:"name" yaml:"name"`
	Source string `json:"source" yaml:"source"`
}

func newGeneratorsCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "generators",
		Short: "List the generators DERIVE annotations can name",
		Long:  "Lists the built-in CycleCollection generator, the embedded script generators and those in scripts.dir. A script in scripts.dir replaces a generator of the same name.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, f)
			if err != nil {
				return err
			}
			defer a.Close()

			var gens []generatorEntry
			for _, name := range a.deriver.Generators() {
				gens = append(gens, generatorEntry{Name: name, Source: a.sources[name]})
			}
			if f.format == "text" {
				formatGeneratorsText(cmd.OutOrStdout(), gens)
				return nil
			}
			return encode(cmd.OutOrStdout(), f.format, gens)
		},
	}
}

// historyEntry is one recorded run.
type historyEntry struct {
	ID        string   `json:"id" yaml:"id"`
	CreatedAt string   `json:"created_at" yaml:"created_at"`
	File      string   `json:"file" yaml:"file"`
	Args      []string `json:"args" yaml:"args"`
}

func newHistoryCmd(f *flags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent cached runs",
		Long:  "Lists the runs recorded in the generation cache, newest first. Nothing is listed when the cache is disabled.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, f)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.deriver.History(limit)
			if err != nil {
				return err
			}
			entries := make([]historyEntry, 0, len(runs))
			for _, r := range runs {
				entries = append(entries, historyEntry{
					ID:        r.ID,
					CreatedAt: r.CreatedAt.Local().Format(time.DateTime),
					File:      r.File,
					Args:      r.Args,
				})
			}
			if f.format == "text" {
				formatRunsText(cmd.OutOrStdout(), entries)
				return nil
			}
			return encode(cmd.OutOrStdout(), f.format, entries)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list")
	return cmd
}
