package cderive

import (
	"context"
	"fmt"
)

// Kind classifies an Entity.
type Kind int

const (
	KindOther Kind = iota
	KindTranslationUnit
	KindNamespace
	KindClass
	KindField
	KindBaseSpecifier
	KindAnnotation
	KindTypeAlias
)

var kindNames = map[Kind]string{
	KindOther:           "other",
	KindTranslationUnit: "translation_unit",
	KindNamespace:       "namespace",
	KindClass:           "class",
	KindField:           "field",
	KindBaseSpecifier:   "base",
	KindAnnotation:      "annotation",
	KindTypeAlias:       "type_alias",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// VisitResult tells VisitChildren whether to keep going.
type VisitResult int

const (
	VisitContinue VisitResult = iota
	VisitBreak
)

// Location is a 1-based source position.
type Location struct {
	File   string `json:"file" yaml:"file"`
	Line   int    `json:"line" yaml:"line"`
	Column int    `json:"column" yaml:"column"`
}

func (l Location) String() string {
	if l.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Entity is a read-only view of one declaration in a parsed translation unit.
// Implementations are supplied by a Frontend; the generators in this module
// only ever talk to these methods.
//
// Methods returning (value, bool) report false when the value does not exist
// for this entity (an anonymous class has no display name, a forward
// declaration with no body anywhere in the unit has no definition).
type Entity interface {
	Kind() Kind
	DisplayName() (string, bool)
	Location() Location

	// Definition resolves this declaration to the declaration carrying its
	// body. A definition resolves to itself.
	Definition() (Entity, bool)

	// Template returns the class template this entity is a specialization of.
	// The template's display name is its bare name ("RefPtr").
	Template() (Entity, bool)

	// Type is the declared type of a field or base specifier.
	Type() (Type, bool)

	// UnderlyingType is the aliased type of a typedef or using-declaration.
	UnderlyingType() (Type, bool)

	// VisitChildren calls fn for each direct child in source order until fn
	// returns VisitBreak.
	VisitChildren(fn func(child Entity) VisitResult)
}

// Type is a read-only view of a type as written in the source.
type Type interface {
	DisplayName() string
	Declaration() (Entity, bool)

	// TemplateArguments returns the argument types of a template
	// specialization in order. Non-type arguments are nil entries.
	TemplateArguments() ([]Type, bool)
}

// TranslationUnit is the result of parsing one source file.
type TranslationUnit interface {
	Root() Entity

	// Files lists every file read to build the unit, main file first.
	Files() []string
}

// Frontend turns a source file plus compiler-style arguments into a
// TranslationUnit.
type Frontend interface {
	Parse(ctx context.Context, file string, args []string) (TranslationUnit, error)
}

// FrontendFunc adapts a function to the Frontend interface.
type FrontendFunc func(ctx context.Context, file string, args []string) (TranslationUnit, error)

func (f FrontendFunc) Parse(ctx context.Context, file string, args []string) (TranslationUnit, error) {
	return f(ctx, file, args)
}

// Children collects the direct children of e.
func Children(e Entity) []Entity {
	var out []Entity
	e.VisitChildren(func(child Entity) VisitResult {
		out = append(out, child)
		return VisitContinue
	})
	return out
}

// ChildrenOfKind collects the direct children of e with kind k.
func ChildrenOfKind(e Entity, k Kind) []Entity {
	var out []Entity
	e.VisitChildren(func(child Entity) VisitResult {
		if child.Kind() == k {
			out = append(out, child)
		}
		return VisitContinue
	})
	return out
}

// Fields returns the data members declared directly in e, in order.
func Fields(e Entity) []Entity {
	return ChildrenOfKind(e, KindField)
}

// DefinitionOf resolves a type to the definition of its declaration.
func DefinitionOf(t Type) (Entity, bool) {
	if t == nil {
		return nil, false
	}
	decl, ok := t.Declaration()
	if !ok {
		return nil, false
	}
	return decl.Definition()
}

// Describe renders an entity for error messages: "class Foo (a.cpp:3:7)".
func Describe(e Entity) string {
	if e == nil {
		return "<nil>"
	}
	name, ok := e.DisplayName()
	if !ok {
		name = "<anonymous>"
	}
	return fmt.Sprintf("%s %s (%s)", e.Kind(), name, e.Location())
}
