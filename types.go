package cderive

import "github.com/jward/cderive/internal/store"

// Public type aliases for the run history records returned by
// Deriver.History. These are Go type aliases (=), identical to the internal
// types at compile time.

type Run = store.Run
type RunFile = store.RunFile
type RunTarget = store.RunTarget
type RunDiagnostic = store.RunDiagnostic
