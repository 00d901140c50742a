package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SaveRun inserts a run with its files, targets and diagnostics in a single
// transaction. A missing ID is assigned a new UUID, a zero CreatedAt is set
// to now. Returns the run ID.
func (s *Store) SaveRun(r *Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("save run: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO runs (id, cache_key, file, args, output, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		r.ID, r.CacheKey, r.File, marshalArgs(r.Args), r.Output, r.CreatedAt,
	); err != nil {
		return "", fmt.Errorf("save run: insert run: %w", err)
	}

	for _, f := range r.Files {
		if _, err := tx.Exec(
			"INSERT INTO run_files (run_id, path, hash) VALUES (?, ?, ?)",
			r.ID, f.Path, f.Hash,
		); err != nil {
			return "", fmt.Errorf("save run: file %q: %w", f.Path, err)
		}
	}

	for _, t := range r.Targets {
		if _, err := tx.Exec(
			`INSERT INTO run_targets (run_id, ordinal, class, generator, file, line, col, text)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, t.Ordinal, t.Class, t.Generator, t.File, t.Line, t.Col, t.Text,
		); err != nil {
			return "", fmt.Errorf("save run: target %q: %w", t.Class, err)
		}
	}

	for _, d := range r.Diagnostics {
		if _, err := tx.Exec(
			`INSERT INTO run_diagnostics (run_id, generator, target, file, line, col, message)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, d.Generator, d.Target, d.File, d.Line, d.Col, d.Message,
		); err != nil {
			return "", fmt.Errorf("save run: diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("save run: commit: %w", err)
	}
	return r.ID, nil
}

// LatestRun returns the most recent run recorded under cacheKey with its
// files, targets and diagnostics loaded. Returns nil, nil when there is none.
func (s *Store) LatestRun(cacheKey string) (*Run, error) {
	r := &Run{}
	var args sql.NullString
	err := s.db.QueryRow(
		`SELECT id, cache_key, file, args, output, created_at FROM runs
		 WHERE cache_key = ? ORDER BY created_at DESC LIMIT 1`, cacheKey,
	).Scan(&r.ID, &r.CacheKey, &r.File, &args, &r.Output, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	r.Args = unmarshalArgs(args.String)

	if r.Files, err = s.RunFiles(r.ID); err != nil {
		return nil, err
	}
	if r.Targets, err = s.RunTargets(r.ID); err != nil {
		return nil, err
	}
	if r.Diagnostics, err = s.RunDiagnostics(r.ID); err != nil {
		return nil, err
	}
	return r, nil
}

// RecentRuns lists up to limit runs, newest first, without child rows.
func (s *Store) RecentRuns(limit int) ([]*Run, error) {
	rows, err := s.db.Query(
		`SELECT id, cache_key, file, args, output, created_at FROM runs
		 ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		r := &Run{}
		var args sql.NullString
		if err := rows.Scan(&r.ID, &r.CacheKey, &r.File, &args, &r.Output, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Args = unmarshalArgs(args.String)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunFiles returns the files recorded for a run.
func (s *Store) RunFiles(runID string) ([]RunFile, error) {
	rows, err := s.db.Query("SELECT path, hash FROM run_files WHERE run_id = ? ORDER BY id", runID)
	if err != nil {
		return nil, fmt.Errorf("run files: %w", err)
	}
	defer rows.Close()
	var files []RunFile
	for rows.Next() {
		var f RunFile
		if err := rows.Scan(&f.Path, &f.Hash); err != nil {
			return nil, fmt.Errorf("scan run file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// RunTargets returns the targets recorded for a run in output order.
func (s *Store) RunTargets(runID string) ([]RunTarget, error) {
	rows, err := s.db.Query(
		`SELECT ordinal, class, generator, file, line, col, text FROM run_targets
		 WHERE run_id = ? ORDER BY ordinal`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("run targets: %w", err)
	}
	defer rows.Close()
	var targets []RunTarget
	for rows.Next() {
		var t RunTarget
		var file sql.NullString
		var line, col sql.NullInt64
		if err := rows.Scan(&t.Ordinal, &t.Class, &t.Generator, &file, &line, &col, &t.Text); err != nil {
			return nil, fmt.Errorf("scan run target: %w", err)
		}
		t.File, t.Line, t.Col = file.String, int(line.Int64), int(col.Int64)
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// RunDiagnostics returns the diagnostics recorded for a run.
func (s *Store) RunDiagnostics(runID string) ([]RunDiagnostic, error) {
	rows, err := s.db.Query(
		`SELECT generator, target, file, line, col, message FROM run_diagnostics
		 WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("run diagnostics: %w", err)
	}
	defer rows.Close()
	var diags []RunDiagnostic
	for rows.Next() {
		var d RunDiagnostic
		var target, file sql.NullString
		var line, col sql.NullInt64
		if err := rows.Scan(&d.Generator, &target, &file, &line, &col, &d.Message); err != nil {
			return nil, fmt.Errorf("scan run diagnostic: %w", err)
		}
		d.Target, d.File, d.Line, d.Col = target.String, file.String, int(line.Int64), int(col.Int64)
		diags = append(diags, d)
	}
	return diags, rows.Err()
}

// PruneRuns deletes all but the keep most recent runs and returns how many
// runs were removed.
func (s *Store) PruneRuns(keep int) (int, error) {
	rows, err := s.db.Query(
		"SELECT id FROM runs ORDER BY created_at DESC LIMIT -1 OFFSET ?", keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("prune runs: scan: %w", err)
		}
		stale = append(stale, id)
	}
	rows.Close()
	if len(stale) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("prune runs: begin: %w", err)
	}
	defer tx.Rollback()

	placeholders := placeholderList(len(stale))
	args := stringsToArgs(stale)
	// Children first so the delete does not depend on ON DELETE CASCADE.
	for _, q := range []string{
		"DELETE FROM run_diagnostics WHERE run_id IN (" + placeholders + ")",
		"DELETE FROM run_targets WHERE run_id IN (" + placeholders + ")",
		"DELETE FROM run_files WHERE run_id IN (" + placeholders + ")",
		"DELETE FROM runs WHERE id IN (" + placeholders + ")",
	} {
		if _, err := tx.Exec(q, args...); err != nil {
			return 0, fmt.Errorf("prune runs: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("prune runs: commit: %w", err)
	}
	return len(stale), nil
}
