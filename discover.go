package cderive

import "strings"

// AnnotationPrefix is the literal token before '=' in a derive annotation.
const AnnotationPrefix = "DERIVE"

// Target is one discovered (class definition, generator name) pair.
type Target struct {
	Entity     Entity
	Generator  string
	Annotation Location
}

// DeriveName parses a derive annotation's display text. It returns the
// generator name and true for "DERIVE=<name>"; everything after the first
// '=' is the name, verbatim.
func DeriveName(annotation string) (string, bool) {
	before, after, found := strings.Cut(annotation, "=")
	if !found || before != AnnotationPrefix {
		return "", false
	}
	return after, true
}

// Discover walks every descendant of root and calls fn for each derive
// annotation, in depth-first source order. The first error returned by fn,
// or the first ResolutionError, stops the walk and is returned.
func Discover(root Entity, fn func(Target) error) error {
	return discover(root, fn)
}

func discover(parent Entity, fn func(Target) error) error {
	var err error
	parent.VisitChildren(func(child Entity) VisitResult {
		if name, ok := derive(child); ok {
			var target Entity
			target, err = resolveTarget(parent, name, child.Location())
			if err != nil {
				return VisitBreak
			}
			if err = fn(Target{Entity: target, Generator: name, Annotation: child.Location()}); err != nil {
				return VisitBreak
			}
		}
		if err = discover(child, fn); err != nil {
			return VisitBreak
		}
		return VisitContinue
	})
	return err
}

func derive(e Entity) (string, bool) {
	if e.Kind() != KindAnnotation {
		return "", false
	}
	text, ok := e.DisplayName()
	if !ok {
		return "", false
	}
	return DeriveName(text)
}

// resolveTarget maps the entity an annotation decorates (the marker alias)
// to the definition of the class it names.
func resolveTarget(alias Entity, generator string, at Location) (Entity, error) {
	ty, ok := alias.UnderlyingType()
	if !ok {
		return nil, newResolutionError(generator, alias, at, "annotated entity is not a type alias")
	}
	decl, ok := ty.Declaration()
	if !ok {
		return nil, newResolutionError(generator, alias, at,
			"type "+ty.DisplayName()+" has no declaration")
	}
	def, ok := decl.Definition()
	if !ok {
		return nil, newResolutionError(generator, alias, at,
			"type "+ty.DisplayName()+" has no definition")
	}
	return def, nil
}
