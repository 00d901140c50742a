package store

import "time"

// Run is one recorded generation run.
type Run struct {
	ID        string
	CacheKey  string
	File      string
	Args      []string
	Output    string
	CreatedAt time.Time

	// Loaded by LatestRun; empty in RecentRuns listings.
	Files       []RunFile
	Targets     []RunTarget
	Diagnostics []RunDiagnostic
}

// RunFile is a file read by a run and its content hash at that time.
type RunFile struct {
	Path string
	Hash string
}

// RunTarget is one generator output recorded for a run.
type RunTarget struct {
	Ordinal   int
	Class     string
	Generator string
	File      string
	Line      int
	Col       int
	Text      string
}

// RunDiagnostic is a non-fatal diagnostic recorded for a run.
type RunDiagnostic struct {
	Generator string
	Target    string
	File      string
	Line      int
	Col       int
	Message   string
}
