package cc

import (
	"github.com/cockroachdb/errors"

	"github.com/jward/cderive"
)

// baseMatching evaluates pred on start, then on each base specifier's
// definition in declaration order, recursing depth-first. The first match
// wins; bases without a reachable definition are skipped.
//
// Exceeding maxDepth levels of inheritance ends the search with
// ErrDepthExceeded and no match.
func baseMatching[T any](start cderive.Entity, maxDepth int, pred func(cderive.Entity) (T, bool)) (T, bool, error) {
	return walkBases(start, maxDepth, 0, pred)
}

func walkBases[T any](e cderive.Entity, maxDepth, depth int, pred func(cderive.Entity) (T, bool)) (T, bool, error) {
	if r, ok := pred(e); ok {
		return r, true, nil
	}

	var (
		zero   T
		result T
		found  bool
		err    error
	)
	e.VisitChildren(func(child cderive.Entity) cderive.VisitResult {
		if child.Kind() != cderive.KindBaseSpecifier {
			return cderive.VisitContinue
		}
		ty, ok := child.Type()
		if !ok {
			return cderive.VisitContinue
		}
		base, ok := cderive.DefinitionOf(ty)
		if !ok {
			return cderive.VisitContinue
		}
		if depth+1 > maxDepth {
			err = errors.Wrapf(cderive.ErrDepthExceeded, "searching bases of %s", cderive.Describe(e))
			return cderive.VisitBreak
		}
		result, found, err = walkBases(base, maxDepth, depth+1, pred)
		if found || err != nil {
			return cderive.VisitBreak
		}
		return cderive.VisitContinue
	})
	if err != nil {
		return zero, false, err
	}
	return result, found, nil
}

// hasNestedClass reports whether e directly declares a class named name.
func hasNestedClass(e cderive.Entity, name string) bool {
	hit := false
	e.VisitChildren(func(child cderive.Entity) cderive.VisitResult {
		if child.Kind() != cderive.KindClass {
			return cderive.VisitContinue
		}
		if n, ok := child.DisplayName(); ok && n == name {
			hit = true
			return cderive.VisitBreak
		}
		return cderive.VisitContinue
	})
	return hit
}

// fieldNamed returns the first data member of e called name.
func fieldNamed(e cderive.Entity, name string) (cderive.Entity, bool) {
	for _, f := range cderive.Fields(e) {
		if n, ok := f.DisplayName(); ok && n == name {
			return f, true
		}
	}
	return nil, false
}
