// Package asttest builds small in-memory entity trees for tests of code that
// consumes the cderive AST interfaces.
package asttest

import (
	"context"
	"strings"

	"github.com/jward/cderive"
)

// Node is a fake cderive.Entity. Builders return *Node so tests can wire
// definitions and locations after construction.
type Node struct {
	kind       cderive.Kind
	name       string
	named      bool
	loc        cderive.Location
	def        *Node
	isDef      bool
	tmpl       *Node
	typ        cderive.Type
	underlying cderive.Type
	children   []*Node
}

var _ cderive.Entity = (*Node)(nil)

func (n *Node) Kind() cderive.Kind { return n.kind }

func (n *Node) DisplayName() (string, bool) { return n.name, n.named }

func (n *Node) Location() cderive.Location { return n.loc }

func (n *Node) Definition() (cderive.Entity, bool) {
	if n.isDef {
		return n, true
	}
	if n.def != nil {
		return n.def, true
	}
	return nil, false
}

func (n *Node) Template() (cderive.Entity, bool) {
	if n.tmpl == nil {
		return nil, false
	}
	return n.tmpl, true
}

func (n *Node) Type() (cderive.Type, bool) { return n.typ, n.typ != nil }

func (n *Node) UnderlyingType() (cderive.Type, bool) { return n.underlying, n.underlying != nil }

func (n *Node) VisitChildren(fn func(child cderive.Entity) cderive.VisitResult) {
	for _, c := range n.children {
		if fn(c) == cderive.VisitBreak {
			return
		}
	}
}

// At sets the node's location and returns it.
func (n *Node) At(file string, line, col int) *Node {
	n.loc = cderive.Location{File: file, Line: line, Column: col}
	return n
}

// Add appends children and returns the node.
func (n *Node) Add(children ...*Node) *Node {
	n.children = append(n.children, children...)
	return n
}

// DefinedBy makes a forward declaration resolve to def.
func (n *Node) DefinedBy(def *Node) *Node {
	n.def = def
	return n
}

// Class is a class definition.
func Class(name string, children ...*Node) *Node {
	return &Node{kind: cderive.KindClass, name: name, named: true, isDef: true, children: children}
}

// Anonymous is a class definition without a name.
func Anonymous(children ...*Node) *Node {
	return &Node{kind: cderive.KindClass, isDef: true, children: children}
}

// Forward is a class declaration with no definition.
func Forward(name string) *Node {
	return &Node{kind: cderive.KindClass, name: name, named: true}
}

// ClassTemplate is a class template declaration.
func ClassTemplate(name string) *Node {
	return &Node{kind: cderive.KindClass, name: name, named: true, isDef: true}
}

// Namespace groups children under a named scope.
func Namespace(name string, children ...*Node) *Node {
	return &Node{kind: cderive.KindNamespace, name: name, named: true, children: children}
}

// Field is a data member. A nil ty gives a field without a type.
func Field(name string, ty cderive.Type) *Node {
	return &Node{kind: cderive.KindField, name: name, named: name != "", typ: ty}
}

// Base is a base specifier of type ty.
func Base(ty cderive.Type) *Node {
	name := ""
	if ty != nil {
		name = ty.DisplayName()
	}
	return &Node{kind: cderive.KindBaseSpecifier, name: name, named: name != "", typ: ty}
}

// Annotation is an annotate attribute with the given text.
func Annotation(text string) *Node {
	return &Node{kind: cderive.KindAnnotation, name: text, named: true}
}

// Alias is a typedef or using-alias of ty, decorated with children.
func Alias(name string, ty cderive.Type, children ...*Node) *Node {
	return &Node{kind: cderive.KindTypeAlias, name: name, named: true, underlying: ty, children: children}
}

// Marker is the alias the DERIVE macro expands to inside class: a typedef of
// the class annotated with DERIVE=generator.
func Marker(class *Node, generator string) *Node {
	return Alias("__"+class.name+"_derive_marker", Named(class.name, class), Annotation("DERIVE="+generator))
}

// T is a fake cderive.Type.
type T struct {
	name string
	decl cderive.Entity
	args []cderive.Type
	tmpl bool
}

var _ cderive.Type = (*T)(nil)

func (t *T) DisplayName() string { return t.name }

func (t *T) Declaration() (cderive.Entity, bool) { return t.decl, t.decl != nil }

func (t *T) TemplateArguments() ([]cderive.Type, bool) {
	if !t.tmpl {
		return nil, false
	}
	return t.args, true
}

// Named is a type declared by decl.
func Named(name string, decl *Node) *T {
	if decl == nil {
		return &T{name: name}
	}
	return &T{name: name, decl: decl}
}

// Primitive is a type with no declaration, such as int.
func Primitive(name string) *T {
	return &T{name: name}
}

// Spec is a specialization of tmpl with args. Its declaration is a
// synthesized class whose template identity is tmpl.
func Spec(tmpl *Node, args ...cderive.Type) *T {
	names := make([]string, len(args))
	for i, a := range args {
		if a == nil {
			names[i] = "N"
			continue
		}
		names[i] = a.DisplayName()
	}
	display := tmpl.name + "<" + strings.Join(names, ", ") + ">"
	decl := &Node{kind: cderive.KindClass, name: display, named: true, isDef: true, tmpl: tmpl}
	return &T{name: display, decl: decl, args: args, tmpl: true}
}

// Unit is a fake cderive.TranslationUnit.
type Unit struct {
	root  *Node
	files []string
}

var _ cderive.TranslationUnit = (*Unit)(nil)

// TU builds a translation unit whose main file is main.cpp.
func TU(children ...*Node) *Unit {
	return &Unit{
		root:  &Node{kind: cderive.KindTranslationUnit, name: "main.cpp", named: true, children: children},
		files: []string{"main.cpp"},
	}
}

// WithFiles overrides the files the unit reports.
func (u *Unit) WithFiles(files ...string) *Unit {
	u.files = files
	return u
}

func (u *Unit) Root() cderive.Entity { return u.root }

func (u *Unit) Files() []string { return u.files }

// Frontend returns a front end that yields u for any file and records the
// arguments of each call in calls, when non-nil.
func (u *Unit) Frontend(calls *[][]string) cderive.Frontend {
	return cderive.FrontendFunc(func(_ context.Context, _ string, args []string) (cderive.TranslationUnit, error) {
		if calls != nil {
			*calls = append(*calls, args)
		}
		return u, nil
	})
}

// Failing is a front end that always returns err.
func Failing(err error) cderive.Frontend {
	return cderive.FrontendFunc(func(context.Context, string, []string) (cderive.TranslationUnit, error) {
		return nil, err
	})
}
