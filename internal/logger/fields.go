package logger

// Standard field names for structured logging across cderive.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Pipeline
	FieldGenerator = "generator"
	FieldTarget    = "target"
	FieldLocation  = "location"
	FieldUnit      = "unit"
	FieldScript    = "script"

	// Cache
	FieldCached   = "cached"
	FieldRunID    = "run_id"
	FieldCacheKey = "cache_key"

	// Files and paths
	FieldFile  = "file"
	FieldFiles = "files"
	FieldPath  = "path"

	// Counts and timing
	FieldCount      = "count"
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"
)

// Component logger names, as passed to zap's Named.
const (
	NameDeriver  = "deriver"
	NameFrontend = "frontend"
	NameCC       = "cc"
	NameRuntime  = "runtime"
	NameWatch    = "watch"
)
