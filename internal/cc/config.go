// Package cc decides which fields of a class take part in cycle collection
// and renders the unlink/traverse participant macros for it.
package cc

// GeneratorName is the DERIVE name the cycle-collection generator is
// registered under.
const GeneratorName = "CycleCollection"

// Config names the Gecko conventions the analysis keys on. The zero value is
// not useful; start from DefaultConfig.
type Config struct {
	// SmartPointers are single-argument templates holding a strong reference
	// to their argument.
	SmartPointers []string
	// Containers are single-argument templates holding a collection of their
	// argument.
	Containers []string
	// RefCntType is the type of a cycle-collecting reference count.
	RefCntType string
	// RefCntField is the name of the reference count data member.
	RefCntField string
	// ParticipantClass is the nested class a participating base declares.
	ParticipantClass string
	// SupportsBase is the root interface of refcounted XPCOM objects.
	SupportsBase string
	// MaxBaseDepth bounds inheritance searches.
	MaxBaseDepth int
}

// DefaultConfig returns the conventions used by Gecko.
func DefaultConfig() Config {
	return Config{
		SmartPointers:    []string{"RefPtr", "nsCOMPtr"},
		Containers:       []string{"nsTArray"},
		RefCntType:       "nsCycleCollectingAutoRefCnt",
		RefCntField:      "mRefCnt",
		ParticipantClass: "cycleCollection",
		SupportsBase:     "nsISupports",
		MaxBaseDepth:     64,
	}
}
