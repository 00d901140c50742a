package cderive

import (
	"github.com/jward/cderive/internal/logger"
	"github.com/jward/cderive/internal/store"
)

func (d *Deriver) cacheKey(file string, args []string) string {
	return store.ComputeCacheKey(file, args, d.generatorNames(), d.fingerprint)
}

// cachedRun returns the last recorded result for key if every file that run
// read still has the content hash it had then.
func (d *Deriver) cachedRun(key string) (*Result, bool) {
	run, err := d.store.LatestRun(key)
	if err != nil {
		d.logger.Warnw("Cache lookup failed", logger.FieldCacheKey, key, logger.FieldError, err)
		return nil, false
	}
	if run == nil || len(run.Files) == 0 {
		return nil, false
	}
	for _, f := range run.Files {
		hash, err := store.FileHash(f.Path)
		if err != nil || hash != f.Hash {
			d.logger.Debugw("Cache stale", logger.FieldFile, f.Path)
			return nil, false
		}
	}

	res := &Result{
		RunID:  run.ID,
		File:   run.File,
		Output: run.Output,
		Cached: true,
	}
	for _, f := range run.Files {
		res.Files = append(res.Files, f.Path)
	}
	for _, t := range run.Targets {
		res.Targets = append(res.Targets, TargetResult{
			Class:     t.Class,
			Generator: t.Generator,
			Location:  Location{File: t.File, Line: t.Line, Column: t.Col},
			Text:      t.Text,
		})
	}
	for _, rd := range run.Diagnostics {
		diag := Diagnostic{
			Generator: rd.Generator,
			Target:    rd.Target,
			Location:  Location{File: rd.File, Line: rd.Line, Column: rd.Col},
			Message:   rd.Message,
		}
		d.logger.Warnw("Use of unregistered derive",
			logger.FieldGenerator, diag.Generator,
			logger.FieldTarget, diag.Target,
			logger.FieldLocation, diag.Location.String(),
			logger.FieldCached, true)
		res.Diagnostics = append(res.Diagnostics, diag)
	}
	d.logger.Debugw("Cache hit", logger.FieldFile, run.File, logger.FieldRunID, run.ID)
	return res, true
}

// recordRun stores res under key and prunes old history. Store failures are
// logged and never fail the run.
func (d *Deriver) recordRun(key string, args []string, res *Result) {
	run := &store.Run{
		CacheKey: key,
		File:     res.File,
		Args:     args,
		Output:   res.Output,
	}
	for _, path := range res.Files {
		hash, err := store.FileHash(path)
		if err != nil {
			d.logger.Warnw("Not caching run", logger.FieldFile, path, logger.FieldError, err)
			return
		}
		run.Files = append(run.Files, store.RunFile{Path: path, Hash: hash})
	}
	for i, t := range res.Targets {
		run.Targets = append(run.Targets, store.RunTarget{
			Ordinal:   i,
			Class:     t.Class,
			Generator: t.Generator,
			File:      t.Location.File,
			Line:      t.Location.Line,
			Col:       t.Location.Column,
			Text:      t.Text,
		})
	}
	for _, diag := range res.Diagnostics {
		run.Diagnostics = append(run.Diagnostics, store.RunDiagnostic{
			Generator: diag.Generator,
			Target:    diag.Target,
			File:      diag.Location.File,
			Line:      diag.Location.Line,
			Col:       diag.Location.Column,
			Message:   diag.Message,
		})
	}

	id, err := d.store.SaveRun(run)
	if err != nil {
		d.logger.Warnw("Recording run failed", logger.FieldFile, res.File, logger.FieldError, err)
		return
	}
	res.RunID = id

	if d.keepRuns > 0 {
		if n, err := d.store.PruneRuns(d.keepRuns); err != nil {
			d.logger.Warnw("Pruning run history failed", logger.FieldError, err)
		} else if n > 0 {
			d.logger.Debugw("Pruned run history", "removed", n)
		}
	}
}

// History returns up to limit recorded runs, newest first. It returns nil
// when the Deriver has no store.
func (d *Deriver) History(limit int) ([]*Run, error) {
	if d.store == nil {
		return nil, nil
	}
	return d.store.RecentRuns(limit)
}
