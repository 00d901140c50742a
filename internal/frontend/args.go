package frontend

import (
	"strings"
)

// compileArgs is the part of a compiler command line the front end
// understands. Everything else is accepted and ignored.
type compileArgs struct {
	quote    []string // -iquote: "x" includes only
	angle    []string // -I: both forms
	system   []string // -isystem: both forms, after -I
	language string   // -x
}

// parseArgs reads include search paths and the language from clang-style
// arguments. Both joined (-Idir) and separate (-I dir) forms are accepted.
func parseArgs(args []string) compileArgs {
	var ca compileArgs
	for i := 0; i < len(args); i++ {
		arg := args[i]
		next := func() (string, bool) {
			if i+1 >= len(args) {
				return "", false
			}
			i++
			return args[i], true
		}

		if ca.searchPath(arg, next) {
			continue
		}
		switch {
		case arg == "-x":
			if v, ok := next(); ok {
				ca.language = v
			}
		case strings.HasPrefix(arg, "-x"):
			ca.language = strings.TrimPrefix(arg, "-x")
		}
	}
	return ca
}

// searchPath consumes an include path option. The longer flags are tried
// first so -isystem is not read as -I with value "system".
func (ca *compileArgs) searchPath(arg string, next func() (string, bool)) bool {
	for _, opt := range []struct {
		flag string
		dst  *[]string
	}{
		{"-iquote", &ca.quote},
		{"-isystem", &ca.system},
		{"-I", &ca.angle},
	} {
		if arg == opt.flag {
			if v, ok := next(); ok {
				*opt.dst = append(*opt.dst, v)
			}
			return true
		}
		if v, ok := strings.CutPrefix(arg, opt.flag); ok {
			*opt.dst = append(*opt.dst, strings.TrimPrefix(v, "="))
			return true
		}
	}
	return false
}

// quoteDirs is the search order for #include "x" after the including
// file's own directory.
func (ca compileArgs) quoteDirs() []string {
	dirs := make([]string, 0, len(ca.quote)+len(ca.angle)+len(ca.system))
	dirs = append(dirs, ca.quote...)
	return append(dirs, ca.angleDirs()...)
}

// angleDirs is the search order for #include <x>.
func (ca compileArgs) angleDirs() []string {
	dirs := make([]string, 0, len(ca.angle)+len(ca.system))
	dirs = append(dirs, ca.angle...)
	return append(dirs, ca.system...)
}
