package frontend

import (
	"context"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/jward/cderive"
	"github.com/jward/cderive/internal/logger"
)

// builder turns tree-sitter syntax trees into the entity tree of one unit.
type builder struct {
	ctx      context.Context
	frontend *Frontend
	args     compileArgs
	langName string
	lang     *sitter.Language
	unit     *unit
	visited  map[string]bool
	logger   *zap.SugaredLogger
}

type itemFunc func(n *sitter.Node, fc *source, scope *entity) error

// items adds the declarations among n's children to scope.
func (b *builder) items(n *sitter.Node, fc *source, scope *entity) error {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if err := b.item(n.NamedChild(i), fc, scope); err != nil {
			return err
		}
	}
	return nil
}

// item handles one namespace-scope declaration.
func (b *builder) item(n *sitter.Node, fc *source, scope *entity) error {
	switch n.Type() {
	case "preproc_include":
		return b.include(n, fc, scope)
	case "namespace_definition":
		return b.namespace(n, fc, scope)
	case "class_specifier", "struct_specifier", "union_specifier":
		_, err := b.class(n, fc, scope)
		return err
	case "declaration":
		return b.declaration(n, fc, scope)
	case "template_declaration":
		return b.template(n, fc, scope)
	case "type_definition":
		return b.typedef(n, fc, scope)
	case "alias_declaration":
		b.alias(n, fc, scope)
	case "linkage_specification":
		if body := n.ChildByFieldName("body"); body != nil {
			if body.Type() == "declaration_list" {
				return b.items(body, fc, scope)
			}
			return b.item(body, fc, scope)
		}
	case "preproc_if", "preproc_ifdef":
		return b.firstBranch(n, fc, scope, b.item)
	case "ERROR", "declaration_list":
		return b.items(n, fc, scope)
	}
	return nil
}

// member handles one declaration inside a class body.
func (b *builder) member(n *sitter.Node, fc *source, class *entity) error {
	switch n.Type() {
	case "field_declaration":
		return b.field(n, fc, class)
	case "class_specifier", "struct_specifier", "union_specifier":
		_, err := b.class(n, fc, class)
		return err
	case "declaration":
		return b.declaration(n, fc, class)
	case "template_declaration":
		return b.template(n, fc, class)
	case "type_definition":
		return b.typedef(n, fc, class)
	case "alias_declaration":
		b.alias(n, fc, class)
	case "preproc_include":
		return b.include(n, fc, class)
	case "preproc_if", "preproc_ifdef":
		return b.firstBranch(n, fc, class, b.member)
	case "ERROR":
		return b.members(n, fc, class)
	}
	return nil
}

func (b *builder) members(n *sitter.Node, fc *source, class *entity) error {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if err := b.member(n.NamedChild(i), fc, class); err != nil {
			return err
		}
	}
	return nil
}

// firstBranch keeps the body of a conditional block and drops its #else and
// #elif branches.
func (b *builder) firstBranch(n *sitter.Node, fc *source, scope *entity, fn itemFunc) error {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if !c.IsNamed() {
			continue
		}
		switch n.FieldNameForChild(i) {
		case "name", "condition", "alternative":
			continue
		}
		if err := fn(c, fc, scope); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) namespace(n *sitter.Node, fc *source, scope *entity) error {
	nameNode := n.ChildByFieldName("name")
	parts := []string{""}
	loc := fc.loc(n)
	if nameNode != nil {
		// namespace a::b { }
		parts = strings.Split(compact(fc.text(nameNode)), "::")
		loc = fc.loc(nameNode)
	}

	cur := scope
	for _, p := range parts {
		ns := &entity{
			kind:      cderive.KindNamespace,
			name:      p,
			named:     p != "",
			loc:       loc,
			unit:      b.unit,
			qualified: cur.qualified,
		}
		if p != "" {
			ns.qualified = qualify(cur.qualified, p)
		}
		cur.add(ns)
		cur = ns
	}
	if body := n.ChildByFieldName("body"); body != nil {
		return b.items(body, fc, cur)
	}
	return nil
}

// declaration handles `class Foo { ... } foo;` and `struct Foo;`; only the
// class is kept. A typedef written after a leading attribute also lands
// here, see leadingTypedef.
func (b *builder) declaration(n *sitter.Node, fc *source, scope *entity) error {
	if t := n.ChildByFieldName("type"); t != nil && isClassSpecifier(t) {
		_, err := b.class(t, fc, scope)
		return err
	}
	if b.leadingTypedef(n, fc, scope) {
		return nil
	}
	b.warnDetached(n, fc)
	return nil
}

// leadingTypedef recovers
//
//	__attribute__((annotate("text"))) typedef Foo Bar;
//
// which the grammars parse as a declaration with the typedef keyword inside
// an ERROR node. The alias is the last identifier and its type the outermost
// node between the keyword and that identifier.
func (b *builder) leadingTypedef(n *sitter.Node, fc *source, scope *entity) bool {
	var kw, nameNode *sitter.Node
	var leaves func(c *sitter.Node)
	leaves = func(c *sitter.Node) {
		if c.ChildCount() == 0 {
			switch {
			case kw == nil && fc.text(c) == "typedef":
				kw = c
			case kw != nil && (c.Type() == "identifier" || c.Type() == "type_identifier"):
				nameNode = c
			}
			return
		}
		switch c.Type() {
		case "attribute_specifier", "attribute_declaration":
			return
		}
		for i := 0; i < int(c.ChildCount()); i++ {
			leaves(c.Child(i))
		}
	}
	leaves(n)
	if kw == nil || nameNode == nil {
		return false
	}

	var typeNode *sitter.Node
	walk(n, func(c *sitter.Node) bool {
		if typeNode != nil {
			return false
		}
		if c.StartByte() >= kw.EndByte() && c.EndByte() <= nameNode.StartByte() && c.Type() != "ERROR" {
			typeNode = c
			return false
		}
		return true
	})
	if typeNode == nil {
		return false
	}

	name := fc.text(nameNode)
	alias := &entity{
		kind:      cderive.KindTypeAlias,
		name:      name,
		named:     true,
		loc:       fc.loc(nameNode),
		unit:      b.unit,
		qualified: qualify(scope.qualified, name),
	}
	alias.underlying = b.typeRef(typeNode, fc, scope, nil)
	scope.add(alias)
	b.unit.declare(alias)
	alias.add(b.attributes(n, fc)...)
	return true
}

// warnDetached logs derive annotations on a declaration that yielded no
// alias; discovery would never see them.
func (b *builder) warnDetached(n *sitter.Node, fc *source) {
	for _, a := range b.attributes(n, fc) {
		if _, ok := cderive.DeriveName(a.name); ok {
			b.logger.Warnw("Derive annotation not attached to a type alias",
				logger.FieldLocation, a.loc.String(),
				"annotation", a.name)
		}
	}
}

func (b *builder) template(n *sitter.Node, fc *source, scope *entity) error {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if !c.IsNamed() || n.FieldNameForChild(i) == "parameters" {
			continue
		}
		var err error
		switch c.Type() {
		case "class_specifier", "struct_specifier", "union_specifier":
			_, err = b.class(c, fc, scope)
		case "declaration", "field_declaration":
			err = b.declaration(c, fc, scope)
		case "alias_declaration":
			b.alias(c, fc, scope)
		case "template_declaration":
			err = b.template(c, fc, scope)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func isClassSpecifier(n *sitter.Node) bool {
	switch n.Type() {
	case "class_specifier", "struct_specifier", "union_specifier":
		return true
	}
	return false
}

// class adds a class, struct or union declaration to scope. Members are
// built only for definitions.
func (b *builder) class(n *sitter.Node, fc *source, scope *entity) (*entity, error) {
	e := &entity{kind: cderive.KindClass, loc: fc.loc(n), unit: b.unit}
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		written := compact(fc.text(nameNode))
		e.loc = fc.loc(nameNode)
		e.named = true
		e.name = written
		e.qualified = qualify(scope.qualified, written)
		switch nameNode.Type() {
		case "qualified_identifier":
			// Out-of-line definition of a nested class: class Outer::Inner {}.
			if i := strings.LastIndex(written, "::"); i >= 0 {
				e.name = written[i+2:]
			}
		case "template_type":
			// Explicit specialization: template <> class Foo<int> {}.
			if tn := nameNode.ChildByFieldName("name"); tn != nil {
				if tmpl := b.unit.resolve(compact(fc.text(tn)), scope); tmpl != nil && tmpl.kind == cderive.KindClass {
					e.template = tmpl
				}
			}
		}
	}
	body := n.ChildByFieldName("body")
	e.isDef = body != nil

	scope.add(e)
	b.unit.declare(e)

	e.add(b.attributes(n, fc)...)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "base_class_clause" {
			b.bases(c, fc, e)
		}
	}
	if body != nil {
		if err := b.members(body, fc, e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// bases adds a base specifier per named base in a base_class_clause. Access
// and virtual keywords are skipped.
func (b *builder) bases(clause *sitter.Node, fc *source, class *entity) {
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		c := clause.NamedChild(i)
		switch c.Type() {
		case "type_identifier", "qualified_identifier", "qualified_type_identifier", "template_type":
		default:
			continue
		}
		t := b.typeRef(c, fc, class.parent, nil)
		class.add(&entity{
			kind:  cderive.KindBaseSpecifier,
			name:  t.display,
			named: true,
			loc:   fc.loc(c),
			unit:  b.unit,
			typ:   t,
		})
	}
}

// field adds the data members of a field declaration. Static members,
// methods and friend declarations are not fields.
func (b *builder) field(n *sitter.Node, fc *source, class *entity) error {
	typeNode := n.ChildByFieldName("type")
	var nested *entity
	if typeNode != nil && isClassSpecifier(typeNode) &&
		(typeNode.ChildByFieldName("body") != nil || typeNode.ChildByFieldName("name") == nil) {
		var err error
		if nested, err = b.class(typeNode, fc, class); err != nil {
			return err
		}
	}

	var quals []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "storage_class_specifier":
			if fc.text(c) == "static" {
				return nil
			}
		case "type_qualifier":
			quals = append(quals, fc.text(c))
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) != "declarator" {
			continue
		}
		nameNode, suffix, ok := b.declarator(n.Child(i), fc)
		if !ok {
			continue
		}
		f := &entity{
			kind:  cderive.KindField,
			name:  fc.text(nameNode),
			named: true,
			loc:   fc.loc(nameNode),
			unit:  b.unit,
		}
		if typeNode != nil {
			f.typ = b.typeOf(typeNode, nested, quals, suffix, fc, class)
		}
		class.add(f)
		// Attributes before the type apply to every declarator.
		f.add(b.directAttributes(n, fc)...)
		f.add(b.attributes(n.Child(i), fc)...)
	}
	return nil
}

// declarator unwraps a member declarator to its name and the compound type
// suffix it adds ("*", "&", "[4]"). Methods report ok=false; pointers to
// functions are fields.
func (b *builder) declarator(d *sitter.Node, fc *source) (name *sitter.Node, suffix string, ok bool) {
	for d != nil {
		switch d.Type() {
		case "field_identifier", "identifier", "type_identifier":
			return d, suffix, true
		case "pointer_declarator":
			suffix += "*"
			d = d.ChildByFieldName("declarator")
		case "reference_declarator":
			if d.ChildCount() > 0 {
				suffix += fc.text(d.Child(0))
			}
			d = d.NamedChild(int(d.NamedChildCount()) - 1)
		case "array_declarator":
			size := ""
			if s := d.ChildByFieldName("size"); s != nil {
				size = compact(fc.text(s))
			}
			suffix += "[" + size + "]"
			d = d.ChildByFieldName("declarator")
		case "parenthesized_declarator", "attributed_declarator":
			d = d.NamedChild(0)
		case "bitfield_clause":
			return nil, "", false
		case "function_declarator":
			inner := d.ChildByFieldName("declarator")
			if inner == nil || inner.Type() != "parenthesized_declarator" {
				return nil, "", false
			}
			params := ""
			if p := d.ChildByFieldName("parameters"); p != nil {
				params = compact(fc.text(p))
			}
			name, innerSuffix, ok := b.declarator(inner, fc)
			return name, suffix + "(" + innerSuffix + ")" + params, ok
		default:
			// Operators, destructors and qualified names are not data.
			return nil, "", false
		}
	}
	return nil, "", false
}

// typedef adds a typedef name per declarator. A class defined inline is
// added to scope first.
func (b *builder) typedef(n *sitter.Node, fc *source, scope *entity) error {
	typeNode := n.ChildByFieldName("type")
	var preset *entity
	if typeNode != nil && isClassSpecifier(typeNode) &&
		(typeNode.ChildByFieldName("body") != nil || typeNode.ChildByFieldName("name") == nil) {
		var err error
		if preset, err = b.class(typeNode, fc, scope); err != nil {
			return err
		}
	}

	var quals []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "type_qualifier" {
			quals = append(quals, fc.text(c))
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) != "declarator" {
			continue
		}
		nameNode, suffix, ok := b.declarator(n.Child(i), fc)
		if !ok {
			continue
		}
		name := fc.text(nameNode)
		alias := &entity{
			kind:      cderive.KindTypeAlias,
			name:      name,
			named:     true,
			loc:       fc.loc(nameNode),
			unit:      b.unit,
			qualified: qualify(scope.qualified, name),
		}
		if typeNode != nil {
			alias.underlying = b.typeOf(typeNode, preset, quals, suffix, fc, scope)
		}
		scope.add(alias)
		b.unit.declare(alias)
		alias.add(b.attributes(n, fc)...)
	}
	return nil
}

// alias adds a using-declaration alias.
func (b *builder) alias(n *sitter.Node, fc *source, scope *entity) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := fc.text(nameNode)
	alias := &entity{
		kind:      cderive.KindTypeAlias,
		name:      name,
		named:     true,
		loc:       fc.loc(nameNode),
		unit:      b.unit,
		qualified: qualify(scope.qualified, name),
	}
	if t := n.ChildByFieldName("type"); t != nil {
		alias.underlying = b.descriptor(t, fc, scope)
	}
	scope.add(alias)
	b.unit.declare(alias)
	alias.add(b.attributes(n, fc)...)
}

// typeOf is the type of one declarator of a declaration.
func (b *builder) typeOf(typeNode *sitter.Node, preset *entity, quals []string, suffix string, fc *source, scope *entity) *typeRef {
	t := b.typeRef(typeNode, fc, scope, preset)
	if len(quals) > 0 {
		t = t.withDisplay(strings.Join(quals, " ") + " " + t.display)
	}
	if suffix != "" {
		// Pointers, references and arrays have no declaration.
		return &typeRef{unit: b.unit, scope: scope, display: t.display + " " + suffix}
	}
	return t
}

// descriptor is the type of a type_descriptor, as in template arguments and
// using aliases.
func (b *builder) descriptor(n *sitter.Node, fc *source, scope *entity) *typeRef {
	if n.Type() != "type_descriptor" {
		return b.typeRef(n, fc, scope, nil)
	}
	var quals []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "type_qualifier" {
			quals = append(quals, fc.text(c))
		}
	}
	suffix := ""
	if d := n.ChildByFieldName("declarator"); d != nil {
		suffix = strings.ReplaceAll(compact(fc.text(d)), " ", "")
	}
	return b.typeOf(n.ChildByFieldName("type"), nil, quals, suffix, fc, scope)
}

// typeRef is a type specifier as written, resolved later from scope.
func (b *builder) typeRef(n *sitter.Node, fc *source, scope *entity, preset *entity) *typeRef {
	t := &typeRef{unit: b.unit, scope: scope}
	if n == nil {
		return t
	}
	switch n.Type() {
	case "type_identifier", "identifier":
		t.display = fc.text(n)
		t.lookup = t.display
	case "qualified_identifier", "qualified_type_identifier":
		written := compact(fc.text(n))
		if name := lastName(n); name != nil && name.Type() == "template_type" {
			prefix := compact(string(fc.src[n.StartByte():name.StartByte()]))
			t = b.templateType(name, fc, scope, strings.ReplaceAll(prefix, " ", ""))
			t.display = strings.ReplaceAll(prefix, " ", "") + t.display
			return t
		}
		t.display = strings.ReplaceAll(written, " ", "")
		t.lookup = t.display
	case "template_type":
		return b.templateType(n, fc, scope, "")
	case "class_specifier", "struct_specifier", "union_specifier", "enum_specifier":
		if preset != nil {
			t.decl = preset
			t.display = preset.name
			if !preset.named {
				t.display = "(anonymous)"
			}
			return t
		}
		if name := n.ChildByFieldName("name"); name != nil {
			t.display = strings.ReplaceAll(compact(fc.text(name)), " ", "")
			t.lookup = t.display
		}
	default:
		// Builtin types, auto, decltype and dependent types are never
		// declarations.
		t.display = compact(fc.text(n))
	}
	return t
}

// lastName follows the name field of nested qualified identifiers.
func lastName(n *sitter.Node) *sitter.Node {
	for {
		name := n.ChildByFieldName("name")
		if name == nil {
			return nil
		}
		switch name.Type() {
		case "qualified_identifier", "qualified_type_identifier":
			n = name
		default:
			return name
		}
	}
}

func (b *builder) templateType(n *sitter.Node, fc *source, scope *entity, prefix string) *typeRef {
	nameNode := n.ChildByFieldName("name")
	base := ""
	if nameNode != nil {
		base = compact(fc.text(nameNode))
	}
	t := &typeRef{unit: b.unit, scope: scope, lookup: prefix + base, template: true}

	var shown []string
	if list := n.ChildByFieldName("arguments"); list != nil {
		for i := 0; i < int(list.NamedChildCount()); i++ {
			a := list.NamedChild(i)
			switch a.Type() {
			case "type_descriptor":
				arg := b.descriptor(a, fc, scope)
				t.args = append(t.args, arg)
				shown = append(shown, arg.display)
			case "comment":
			default:
				// Non-type arguments.
				t.args = append(t.args, nil)
				shown = append(shown, compact(fc.text(a)))
			}
		}
	}
	t.display = base + "<" + strings.Join(shown, ", ") + ">"
	return t
}

func (t *typeRef) withDisplay(display string) *typeRef {
	return &typeRef{
		unit:     t.unit,
		scope:    t.scope,
		display:  display,
		lookup:   t.lookup,
		args:     t.args,
		template: t.template,
		decl:     t.decl,
	}
}

// attributes returns an annotation entity per annotate attribute attached
// to n, looking through declarators but not into class bodies.
func (b *builder) attributes(n *sitter.Node, fc *source) []*entity {
	var out []*entity
	walk(n, func(c *sitter.Node) bool {
		switch c.Type() {
		case "attribute_specifier", "attribute_declaration":
			out = append(out, b.annotations(c, fc)...)
			return false
		case "field_declaration_list", "declaration_list", "compound_statement",
			"class_specifier", "struct_specifier", "union_specifier", "enum_specifier":
			return c == n
		}
		return true
	})
	return out
}

// directAttributes returns the annotations among n's own children.
func (b *builder) directAttributes(n *sitter.Node, fc *source) []*entity {
	var out []*entity
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) == "declarator" {
			continue
		}
		switch c := n.Child(i); c.Type() {
		case "attribute_specifier", "attribute_declaration":
			out = append(out, b.annotations(c, fc)...)
		}
	}
	return out
}

// annotations reads annotate attributes in both spellings:
//
//	__attribute__((annotate("text")))
//	[[clang::annotate("text")]]
func (b *builder) annotations(n *sitter.Node, fc *source) []*entity {
	var out []*entity
	add := func(at *sitter.Node, args *sitter.Node) {
		if text, ok := firstString(args, fc); ok {
			out = append(out, &entity{
				kind:  cderive.KindAnnotation,
				name:  text,
				named: true,
				loc:   fc.loc(at),
				unit:  b.unit,
			})
		}
	}

	switch n.Type() {
	case "attribute_specifier":
		walk(n, func(c *sitter.Node) bool {
			if c.Type() != "call_expression" {
				return true
			}
			if fn := c.ChildByFieldName("function"); fn != nil && fc.text(fn) == "annotate" {
				add(c, c.ChildByFieldName("arguments"))
			}
			return false
		})
	case "attribute_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			attr := n.NamedChild(i)
			if attr.Type() != "attribute" {
				continue
			}
			name := attr.ChildByFieldName("name")
			if name == nil || fc.text(name) != "annotate" {
				continue
			}
			if prefix := attr.ChildByFieldName("prefix"); prefix != nil && fc.text(prefix) != "clang" {
				continue
			}
			add(attr, argumentList(attr))
		}
	}
	return out
}

// argumentList returns the argument list of an attribute. The grammar gives
// it no field name.
func argumentList(attr *sitter.Node) *sitter.Node {
	for i := 0; i < int(attr.NamedChildCount()); i++ {
		if c := attr.NamedChild(i); c.Type() == "argument_list" {
			return c
		}
	}
	return nil
}

// firstString returns the first argument of an argument list if it is a
// string literal. Adjacent literals are joined.
func firstString(args *sitter.Node, fc *source) (string, bool) {
	if args == nil || args.NamedChildCount() == 0 {
		return "", false
	}
	arg := args.NamedChild(0)
	switch arg.Type() {
	case "string_literal":
		return unquote(fc.text(arg)), true
	case "concatenated_string":
		var sb strings.Builder
		for i := 0; i < int(arg.NamedChildCount()); i++ {
			if c := arg.NamedChild(i); c.Type() == "string_literal" {
				sb.WriteString(unquote(fc.text(c)))
			}
		}
		return sb.String(), true
	case "raw_string_literal":
		s := fc.text(arg)
		open, close := strings.Index(s, "("), strings.LastIndex(s, ")")
		if open < 0 || close < open {
			return "", false
		}
		return s[open+1 : close], true
	}
	return "", false
}

// unquote decodes a C string literal, dropping any encoding prefix.
func unquote(lit string) string {
	lit = strings.TrimLeft(lit, "LuU8")
	if s, err := strconv.Unquote(lit); err == nil {
		return s
	}
	return trimDelims(lit, `"`, `"`)
}

func trimDelims(s, open, close string) string {
	return strings.TrimSuffix(strings.TrimPrefix(s, open), close)
}

// compact collapses runs of whitespace, including newlines and comments
// between tokens of a type, to single spaces.
func compact(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// walk visits n and its named descendants in order. fn returns whether to
// descend into a node's children.
func walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if !fn(n) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), fn)
	}
}
