package frontend

import "regexp"

// deriveMacro matches a use of the derive.h convenience macro on its own
// line:
//
//	DERIVE(Foo, CycleCollection);
//
// The name is everything between the first comma and the closing
// parenthesis, as the macro's #__VA_ARGS__ stringizes it.
var deriveMacro = regexp.MustCompile(`(?m)^([ \t]*)DERIVE\([ \t]*([A-Za-z_][A-Za-z0-9_]*)[ \t]*,[ \t]*([^)\n]*?)[ \t]*\)[ \t]*;?`)

var markerTemplates = map[string][]byte{
	"cpp": []byte(`${1}using __${2}_derive_marker [[clang::annotate("DERIVE=${3}")]] = ${2};`),
	"c":   []byte(`${1}typedef ${2} __${2}_derive_marker __attribute__((annotate("DERIVE=${3}")));`),
}

// expandDerive rewrites DERIVE(Class, Name) into the marker alias the macro
// produces under a real preprocessor. For C++:
//
//	using __Foo_derive_marker [[clang::annotate("DERIVE=CycleCollection")]] = Foo;
//
// Each use stays on its line so locations are unchanged.
func expandDerive(src []byte, lang string) []byte {
	tmpl, ok := markerTemplates[lang]
	if !ok {
		tmpl = markerTemplates["cpp"]
	}
	return deriveMacro.ReplaceAll(src, tmpl)
}
