package frontend

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
)

// extToLanguage maps file extensions to canonical language names. Headers
// are ambiguous; they are parsed with the unit's language.
var extToLanguage = map[string]string{
	".c":   "c",
	".h":   "c",
	".cpp": "cpp",
	".cc":  "cpp",
	".cxx": "cpp",
	".c++": "cpp",
	".hpp": "cpp",
	".hh":  "cpp",
	".hxx": "cpp",
	".mm":  "cpp",
}

// langToGrammar maps language names to tree-sitter Language objects.
// Lazily initialized on first call via sync.Once.
var (
	langToGrammar map[string]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[string]*sitter.Language{
			"c":   c.GetLanguage(),
			"cpp": cpp.GetLanguage(),
		}
	})
}

// LanguageForFile returns the canonical language name for a file path based
// on its extension. Returns ("", false) if the extension is not recognized.
func LanguageForFile(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := extToLanguage[ext]
	return lang, ok
}

// ParserForLanguage returns the tree-sitter Language for a canonical language
// name. Returns (nil, false) if the language is not supported.
func ParserForLanguage(lang string) (*sitter.Language, bool) {
	initGrammars()
	l, ok := langToGrammar[lang]
	return l, ok
}

// unitLanguage picks the grammar for a whole translation unit: an explicit
// -x wins, then the main file's extension. Anything not plainly C is C++.
func unitLanguage(file string, explicit string) string {
	switch explicit {
	case "c", "c-header":
		return "c"
	case "":
	default:
		return "cpp"
	}
	// A bare .h main file is taken to be a C++ header.
	if lang, _ := LanguageForFile(file); lang == "c" && strings.ToLower(filepath.Ext(file)) != ".h" {
		return "c"
	}
	return "cpp"
}
