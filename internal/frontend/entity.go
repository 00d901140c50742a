package frontend

import (
	"strings"
	"sync"

	"github.com/jward/cderive"
)

// entity is one declaration of a parsed unit. The tree is complete when
// Parse returns; only type resolution is computed lazily.
type entity struct {
	kind      cderive.Kind
	name      string
	named     bool
	loc       cderive.Location
	parent    *entity
	children  []*entity
	qualified string
	unit      *unit

	// Classes.
	isDef    bool
	template *entity
	spec     bool

	// Fields and base specifiers.
	typ *typeRef

	// Type aliases.
	underlying *typeRef
}

var _ cderive.Entity = (*entity)(nil)

func (e *entity) Kind() cderive.Kind { return e.kind }

func (e *entity) DisplayName() (string, bool) { return e.name, e.named }

func (e *entity) Location() cderive.Location { return e.loc }

func (e *entity) Definition() (cderive.Entity, bool) {
	if e.kind != cderive.KindClass {
		return nil, false
	}
	if e.isDef {
		return e, true
	}
	if e.spec {
		return e.template.Definition()
	}
	if def := e.unit.definition(e.qualified); def != nil {
		return def, true
	}
	return nil, false
}

func (e *entity) Template() (cderive.Entity, bool) {
	if e.template == nil {
		return nil, false
	}
	return e.template, true
}

func (e *entity) Type() (cderive.Type, bool) {
	if e.typ == nil {
		return nil, false
	}
	return e.typ, true
}

func (e *entity) UnderlyingType() (cderive.Type, bool) {
	if e.underlying == nil {
		return nil, false
	}
	return e.underlying, true
}

func (e *entity) VisitChildren(fn func(child cderive.Entity) cderive.VisitResult) {
	for _, c := range e.children {
		if fn(c) == cderive.VisitBreak {
			return
		}
	}
}

func (e *entity) add(children ...*entity) {
	for _, c := range children {
		c.parent = e
		e.children = append(e.children, c)
	}
}

// typeRef is a type as written at one place in the source.
type typeRef struct {
	unit    *unit
	scope   *entity
	display string

	// lookup is the name to resolve; empty for primitive and compound types.
	lookup   string
	args     []*typeRef
	template bool
	decl     *entity

	once     sync.Once
	resolved *entity
}

var _ cderive.Type = (*typeRef)(nil)

func (t *typeRef) DisplayName() string { return t.display }

func (t *typeRef) Declaration() (cderive.Entity, bool) {
	t.once.Do(func() {
		switch {
		case t.decl != nil:
			t.resolved = t.decl
		case t.lookup == "":
		case t.template:
			t.resolved = t.unit.specialization(t)
		default:
			t.resolved = t.unit.resolve(t.lookup, t.scope)
		}
	})
	if t.resolved == nil {
		return nil, false
	}
	return t.resolved, true
}

func (t *typeRef) TemplateArguments() ([]cderive.Type, bool) {
	if !t.template {
		return nil, false
	}
	out := make([]cderive.Type, len(t.args))
	for i, a := range t.args {
		// Non-type arguments stay nil interfaces, not typed nils.
		if a != nil {
			out[i] = a
		}
	}
	return out, true
}

// unit is a parsed translation unit and its name index.
type unit struct {
	root  *entity
	files []string

	// index maps qualified names to class and alias declarations in
	// source order.
	index map[string][]*entity

	mu        sync.Mutex
	templates map[string]*entity
}

var _ cderive.TranslationUnit = (*unit)(nil)

func newUnit(file string) *unit {
	u := &unit{
		index:     make(map[string][]*entity),
		templates: make(map[string]*entity),
	}
	u.root = &entity{kind: cderive.KindTranslationUnit, name: file, named: true, unit: u,
		loc: cderive.Location{File: file, Line: 1, Column: 1}}
	return u
}

func (u *unit) Root() cderive.Entity { return u.root }

func (u *unit) Files() []string { return u.files }

func (u *unit) declare(e *entity) {
	if e.qualified == "" {
		return
	}
	u.index[e.qualified] = append(u.index[e.qualified], e)
}

// definition returns the first class definition declared under qn.
func (u *unit) definition(qn string) *entity {
	for _, e := range u.index[qn] {
		if e.kind == cderive.KindClass && e.isDef {
			return e
		}
	}
	return nil
}

// maxAliasHops bounds alias chains such as `typedef A B; typedef B A;`.
const maxAliasHops = 16

// resolve looks name up from scope outward, as unqualified lookup would.
// Class declarations win over aliases; aliases are followed to the
// declaration they name.
func (u *unit) resolve(name string, scope *entity) *entity {
	return u.resolveHops(name, scope, 0)
}

func (u *unit) resolveHops(name string, scope *entity, hops int) *entity {
	global := strings.HasPrefix(name, "::")
	name = strings.TrimPrefix(name, "::")
	for s := scope; s != nil; s = s.parent {
		if global && s.kind != cderive.KindTranslationUnit {
			continue
		}
		if e := u.lookupQualified(qualify(s.qualified, name), hops); e != nil {
			return e
		}
	}
	return nil
}

func (u *unit) lookupQualified(qn string, hops int) *entity {
	entries := u.index[qn]
	for _, e := range entries {
		if e.kind == cderive.KindClass {
			return e
		}
	}
	if hops >= maxAliasHops {
		return nil
	}
	for _, e := range entries {
		if e.kind != cderive.KindTypeAlias || e.underlying == nil {
			continue
		}
		t := e.underlying
		switch {
		case t.decl != nil:
			return t.decl
		case t.template:
			return u.specialization(t)
		case t.lookup != "":
			if r := u.resolveHops(t.lookup, t.scope, hops+1); r != nil {
				return r
			}
		}
	}
	return nil
}

// specialization returns a declaration for a template type whose template
// identity is the written template, declared in the unit or not.
func (u *unit) specialization(t *typeRef) *entity {
	tmpl := u.resolve(t.lookup, t.scope)
	if tmpl == nil || tmpl.kind != cderive.KindClass {
		tmpl = u.undeclaredTemplate(t.lookup)
	}
	if tmpl.spec {
		// An alias to a specialization: use its template.
		tmpl = tmpl.template
	}
	return &entity{
		kind:      cderive.KindClass,
		name:      t.display,
		named:     true,
		loc:       tmpl.loc,
		parent:    tmpl.parent,
		qualified: tmpl.qualified,
		unit:      u,
		template:  tmpl,
		spec:      true,
	}
}

// undeclaredTemplate stands in for a template only ever named in the unit,
// e.g. RefPtr when its header was not found.
func (u *unit) undeclaredTemplate(name string) *entity {
	u.mu.Lock()
	defer u.mu.Unlock()
	if e, ok := u.templates[name]; ok {
		return e
	}
	bare := strings.TrimPrefix(name, "::")
	if i := strings.LastIndex(bare, "::"); i >= 0 {
		bare = bare[i+2:]
	}
	e := &entity{kind: cderive.KindClass, name: bare, named: true, unit: u, qualified: "::undeclared::" + name}
	u.templates[name] = e
	return e
}

func qualify(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "::" + name
}
