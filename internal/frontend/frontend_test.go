package frontend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jward/cderive"
	"github.com/jward/cderive/internal/cc"
	"github.com/jward/cderive/internal/logger"
)

// writeTree writes files relative to a temp dir and returns the dir.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func parse(t *testing.T, src string, opts ...Option) cderive.TranslationUnit {
	t.Helper()
	dir := writeTree(t, map[string]string{"main.cpp": src})
	tu, err := New(opts...).Parse(context.Background(), filepath.Join(dir, "main.cpp"), nil)
	require.NoError(t, err)
	return tu
}

// child returns the first child of e with the given kind and name.
func child(t *testing.T, e cderive.Entity, kind cderive.Kind, name string) cderive.Entity {
	t.Helper()
	for _, c := range cderive.ChildrenOfKind(e, kind) {
		if n, _ := c.DisplayName(); n == name {
			return c
		}
	}
	require.Failf(t, "missing child", "%s %q in %s", kind, name, cderive.Describe(e))
	return nil
}

func fieldType(t *testing.T, class cderive.Entity, name string) cderive.Type {
	t.Helper()
	ty, ok := child(t, class, cderive.KindField, name).Type()
	require.True(t, ok)
	return ty
}

func TestParse_ClassesAndFields(t *testing.T) {
	t.Parallel()
	tu := parse(t, `
class A;
struct B {
  int mCount;
  A* mRaw, &mRef;
  A mArr[4];
  static int sCount;
  void Method();
  void (*mCallback)(int);
  const A mConst;
};
`)
	b := child(t, tu.Root(), cderive.KindClass, "B")
	var names []string
	for _, f := range cderive.Fields(b) {
		n, _ := f.DisplayName()
		names = append(names, n)
	}
	assert.Equal(t, []string{"mCount", "mRaw", "mRef", "mArr", "mCallback", "mConst"}, names)

	assert.Equal(t, "int", fieldType(t, b, "mCount").DisplayName())
	assert.Equal(t, "A *", fieldType(t, b, "mRaw").DisplayName())
	assert.Equal(t, "A &", fieldType(t, b, "mRef").DisplayName())
	assert.Equal(t, "A [4]", fieldType(t, b, "mArr").DisplayName())
	assert.Equal(t, "const A", fieldType(t, b, "mConst").DisplayName())

	_, ok := fieldType(t, b, "mCount").Declaration()
	assert.False(t, ok, "builtin types have no declaration")
	_, ok = fieldType(t, b, "mRaw").Declaration()
	assert.False(t, ok, "pointers have no declaration")

	loc := child(t, b, cderive.KindField, "mCount").Location()
	assert.Equal(t, 4, loc.Line)
	assert.Equal(t, 7, loc.Column)
}

func TestParse_ForwardDeclarationResolvesToDefinition(t *testing.T) {
	t.Parallel()
	tu := parse(t, `
class A;
class B { A mA; };
class A { int x; };
`)
	classes := cderive.ChildrenOfKind(tu.Root(), cderive.KindClass)
	require.Len(t, classes, 3)

	fwd := classes[0]
	def, ok := fwd.Definition()
	require.True(t, ok)
	assert.Same(t, classes[2], def)

	decl, ok := fieldType(t, classes[1], "mA").Declaration()
	require.True(t, ok)
	def, ok = decl.Definition()
	require.True(t, ok)
	assert.Len(t, cderive.Fields(def), 1)
}

func TestParse_NamespacesAndNestedClasses(t *testing.T) {
	t.Parallel()
	tu := parse(t, `
namespace mozilla {
namespace dom {
class Element {
  class Inner { int y; };
  Inner mInner;
};
}  // namespace dom
class Holder { dom::Element mElement; };
}
namespace a::b { struct Deep {}; }
`)
	moz := child(t, tu.Root(), cderive.KindNamespace, "mozilla")
	dom := child(t, moz, cderive.KindNamespace, "dom")
	element := child(t, dom, cderive.KindClass, "Element")
	inner := child(t, element, cderive.KindClass, "Inner")

	decl, ok := fieldType(t, element, "mInner").Declaration()
	require.True(t, ok)
	assert.Same(t, inner, decl)

	holder := child(t, moz, cderive.KindClass, "Holder")
	decl, ok = fieldType(t, holder, "mElement").Declaration()
	require.True(t, ok)
	assert.Same(t, element, decl)

	deep := child(t, child(t, child(t, tu.Root(), cderive.KindNamespace, "a"), cderive.KindNamespace, "b"),
		cderive.KindClass, "Deep")
	_, ok = deep.Definition()
	assert.True(t, ok)
}

func TestParse_TemplateSpecializations(t *testing.T) {
	t.Parallel()
	tu := parse(t, `
template <class T> class RefPtr { T* mRawPtr; };
class A {};
class B {
  RefPtr<A> mA;
  nsCOMPtr<A> mUndeclared;
  RefPtr<int> mInt;
  Array<A, 4> mMixed;
};
`)
	refPtr := child(t, tu.Root(), cderive.KindClass, "RefPtr")
	a := child(t, tu.Root(), cderive.KindClass, "A")
	b := child(t, tu.Root(), cderive.KindClass, "B")

	ty := fieldType(t, b, "mA")
	assert.Equal(t, "RefPtr<A>", ty.DisplayName())
	args, ok := ty.TemplateArguments()
	require.True(t, ok)
	require.Len(t, args, 1)
	argDecl, ok := args[0].Declaration()
	require.True(t, ok)
	assert.Same(t, a, argDecl)

	decl, ok := ty.Declaration()
	require.True(t, ok)
	tmpl, ok := decl.Template()
	require.True(t, ok)
	assert.Same(t, refPtr, tmpl)
	def, ok := decl.Definition()
	require.True(t, ok)
	assert.Same(t, refPtr, def)

	decl, ok = fieldType(t, b, "mUndeclared").Declaration()
	require.True(t, ok, "undeclared templates still have a template identity")
	tmpl, ok = decl.Template()
	require.True(t, ok)
	name, _ := tmpl.DisplayName()
	assert.Equal(t, "nsCOMPtr", name)
	_, ok = decl.Definition()
	assert.False(t, ok)

	args, ok = fieldType(t, b, "mInt").TemplateArguments()
	require.True(t, ok)
	require.Len(t, args, 1)
	assert.Equal(t, "int", args[0].DisplayName())

	mixed := fieldType(t, b, "mMixed")
	args, ok = mixed.TemplateArguments()
	require.True(t, ok)
	require.Len(t, args, 2)
	assert.NotNil(t, args[0])
	assert.Nil(t, args[1], "non-type arguments are nil")
	assert.Equal(t, "Array<A, 4>", mixed.DisplayName())
}

func TestParse_BasesAndAliases(t *testing.T) {
	t.Parallel()
	tu := parse(t, `
class nsISupports {};
typedef nsISupports Supports;
using Alias = Supports;
class Derived : public virtual Alias, private nsISupports {};
`)
	supports := child(t, tu.Root(), cderive.KindClass, "nsISupports")
	derived := child(t, tu.Root(), cderive.KindClass, "Derived")

	bases := cderive.ChildrenOfKind(derived, cderive.KindBaseSpecifier)
	require.Len(t, bases, 2)
	for _, base := range bases {
		ty, ok := base.Type()
		require.True(t, ok)
		decl, ok := ty.Declaration()
		require.True(t, ok, ty.DisplayName())
		assert.Same(t, supports, decl)
	}
}

func TestParse_Annotations(t *testing.T) {
	t.Parallel()
	tu := parse(t, `
class Foo {};
using __Foo_derive_marker [[clang::annotate("DERIVE=CycleCollection")]] = Foo;
typedef Foo __Foo_other __attribute__((annotate("DERIVE=" "ListFields")));
class [[clang::annotate("class-level")]] Bar {
  int mX [[clang::annotate("field-level")]];
};
`)
	marker := child(t, tu.Root(), cderive.KindTypeAlias, "__Foo_derive_marker")
	ann := child(t, marker, cderive.KindAnnotation, "DERIVE=CycleCollection")
	assert.Equal(t, 3, ann.Location().Line)

	other := child(t, tu.Root(), cderive.KindTypeAlias, "__Foo_other")
	child(t, other, cderive.KindAnnotation, "DERIVE=ListFields")

	bar := child(t, tu.Root(), cderive.KindClass, "Bar")
	child(t, bar, cderive.KindAnnotation, "class-level")
	child(t, child(t, bar, cderive.KindField, "mX"), cderive.KindAnnotation, "field-level")
}

func TestParse_DeriveMacro(t *testing.T) {
	t.Parallel()
	tu := parse(t, `#include "derive.h"
class Foo { int mA; };
DERIVE(Foo, CycleCollection)
`)
	var targets []cderive.Target
	require.NoError(t, cderive.Discover(tu.Root(), func(tg cderive.Target) error {
		targets = append(targets, tg)
		return nil
	}))
	require.Len(t, targets, 1)
	assert.Equal(t, "CycleCollection", targets[0].Generator)
	n, _ := targets[0].Entity.DisplayName()
	assert.Equal(t, "Foo", n)
	assert.Equal(t, 3, targets[0].Annotation.Line)
}

func TestParse_DeriveMacroDisabled(t *testing.T) {
	t.Parallel()
	tu := parse(t, "class Foo {};\nDERIVE(Foo, CycleCollection);\n", WithMacroExpansion(false))
	assert.Empty(t, cderive.ChildrenOfKind(tu.Root(), cderive.KindTypeAlias))
}

func TestParse_StandardAttributeArguments(t *testing.T) {
	t.Parallel()
	tu := parse(t, `
class Foo {};
using A [[nodiscard, clang::annotate("DERIVE=One")]] = Foo;
using B [[gnu::annotate("ignored")]] = Foo;
using C [[clang::annotate(R"(DERIVE=Two)")]] = Foo;
`)
	a := child(t, tu.Root(), cderive.KindTypeAlias, "A")
	require.Len(t, cderive.ChildrenOfKind(a, cderive.KindAnnotation), 1)
	child(t, a, cderive.KindAnnotation, "DERIVE=One")

	b := child(t, tu.Root(), cderive.KindTypeAlias, "B")
	assert.Empty(t, cderive.ChildrenOfKind(b, cderive.KindAnnotation))

	c := child(t, tu.Root(), cderive.KindTypeAlias, "C")
	child(t, c, cderive.KindAnnotation, "DERIVE=Two")
}

func TestParse_LeadingAttributeTypedef(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.WarnLevel)
	tu := parse(t, `
class B { int mX; };
__attribute__((annotate("DERIVE=CycleCollection"))) typedef B __B_derive_marker;
`, WithLogger(zap.New(core).Sugar()))

	marker := child(t, tu.Root(), cderive.KindTypeAlias, "__B_derive_marker")
	ann := child(t, marker, cderive.KindAnnotation, "DERIVE=CycleCollection")
	assert.Equal(t, 3, ann.Location().Line)

	var targets []cderive.Target
	require.NoError(t, cderive.Discover(tu.Root(), func(tg cderive.Target) error {
		targets = append(targets, tg)
		return nil
	}))
	require.Len(t, targets, 1)
	n, _ := targets[0].Entity.DisplayName()
	assert.Equal(t, "B", n)
	assert.Zero(t, logs.Len())
}

func TestParse_DetachedDeriveAnnotationWarns(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.WarnLevel)
	tu := parse(t, `__attribute__((annotate("DERIVE=CycleCollection"))) int gCount;
`, WithLogger(zap.New(core).Sugar()))

	assert.Empty(t, cderive.ChildrenOfKind(tu.Root(), cderive.KindTypeAlias))
	entries := logs.FilterMessage("Derive annotation not attached to a type alias").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "DERIVE=CycleCollection", entries[0].ContextMap()["annotation"])
	assert.Contains(t, entries[0].ContextMap()[logger.FieldLocation], "main.cpp:1")
}

func TestParse_Includes(t *testing.T) {
	t.Parallel()
	dir := writeTree(t, map[string]string{
		"src/main.cpp":           "#include \"local.h\"\n#include <sys/refptr.h>\n#include \"missing.h\"\nclass B { RefPtr<A> mA; };\n",
		"src/local.h":            "#pragma once\n#include <sys/refptr.h>\nclass A {};\n",
		"include/sys/refptr.h":   "#ifndef REFPTR_H\n#define REFPTR_H\ntemplate <class T> class RefPtr {};\n#else\nclass Dropped {};\n#endif\n",
		"include/sys/unused.hpp": "class Unused {};\n",
	})
	main := filepath.Join(dir, "src", "main.cpp")

	tu, err := New().Parse(context.Background(), main, []string{"-I", filepath.Join(dir, "include"), "-DDEBUG"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		main,
		filepath.Join(dir, "src", "local.h"),
		filepath.Join(dir, "include", "sys", "refptr.h"),
	}, tu.Files(), "each file read once, in include order")

	var names []string
	for _, c := range cderive.ChildrenOfKind(tu.Root(), cderive.KindClass) {
		n, _ := c.DisplayName()
		names = append(names, n)
	}
	assert.Equal(t, []string{"RefPtr", "A", "B"}, names)
}

func TestParse_IncludeDirsOption(t *testing.T) {
	t.Parallel()
	dir := writeTree(t, map[string]string{
		"main.cpp":     "#include <dep.h>\n",
		"extra/dep.h":  "class Dep {};\n",
		"shadow/dep.h": "class Shadow {};\n",
	})
	f := New(WithIncludeDirs(filepath.Join(dir, "extra")))

	tu, err := f.Parse(context.Background(), filepath.Join(dir, "main.cpp"), nil)
	require.NoError(t, err)
	child(t, tu.Root(), cderive.KindClass, "Dep")

	tu, err = f.Parse(context.Background(), filepath.Join(dir, "main.cpp"), []string{"-I" + filepath.Join(dir, "shadow")})
	require.NoError(t, err)
	child(t, tu.Root(), cderive.KindClass, "Shadow")
}

func TestParse_SyntaxErrors(t *testing.T) {
	t.Parallel()
	src := "class Good { int x; };\nclass Bad { int x };\n"

	tu := parse(t, src)
	child(t, tu.Root(), cderive.KindClass, "Good")

	dir := writeTree(t, map[string]string{"main.cpp": src})
	_, err := New(WithStrict(true)).Parse(context.Background(), filepath.Join(dir, "main.cpp"), nil)
	require.ErrorIs(t, err, ErrSyntax)
	assert.Contains(t, err.Error(), "main.cpp:2:")
}

func TestParse_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := New().Parse(context.Background(), filepath.Join(t.TempDir(), "absent.cpp"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse_CanceledContext(t *testing.T) {
	t.Parallel()
	dir := writeTree(t, map[string]string{"main.cpp": "class A {};\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Parse(ctx, filepath.Join(dir, "main.cpp"), nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestParse_CLanguage(t *testing.T) {
	t.Parallel()
	dir := writeTree(t, map[string]string{
		"main.c": "struct Node { struct Node* next; int value; };\nDERIVE(Node, ListFields);\n",
	})
	tu, err := New().Parse(context.Background(), filepath.Join(dir, "main.c"), nil)
	require.NoError(t, err)

	var targets []cderive.Target
	require.NoError(t, cderive.Discover(tu.Root(), func(tg cderive.Target) error {
		targets = append(targets, tg)
		return nil
	}))
	require.Len(t, targets, 1)
	assert.Equal(t, "ListFields", targets[0].Generator)
	assert.Len(t, cderive.Fields(targets[0].Entity), 2)
}

func TestUnitLanguage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		file, explicit, want string
	}{
		{"a.cpp", "", "cpp"},
		{"a.c", "", "c"},
		{"a.h", "", "cpp"},
		{"a.h", "c-header", "c"},
		{"a.c", "c++", "cpp"},
		{"a.txt", "", "cpp"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, unitLanguage(tt.file, tt.explicit), "%s -x %q", tt.file, tt.explicit)
	}
}

func TestParseArgs(t *testing.T) {
	t.Parallel()
	ca := parseArgs([]string{
		"-Iinc", "-I", "inc2", "-iquote", "q", "-iquotequ2", "-isystem", "sys", "-isystem=sys2",
		"-DX=1", "-xc", "-W", "-std=c++17",
	})
	assert.Equal(t, []string{"inc", "inc2"}, ca.angle)
	assert.Equal(t, []string{"q", "qu2"}, ca.quote)
	assert.Equal(t, []string{"sys", "sys2"}, ca.system)
	assert.Equal(t, "c", ca.language)
	assert.Equal(t, []string{"q", "qu2", "inc", "inc2", "sys", "sys2"}, ca.quoteDirs())
	assert.Equal(t, []string{"inc", "inc2", "sys", "sys2"}, ca.angleDirs())
}

func TestExpandDerive(t *testing.T) {
	t.Parallel()
	src := "  DERIVE(Foo, CycleCollection);\nDERIVE( Bar ,ListFields )\nint DERIVE(x, y);\n"
	got := string(expandDerive([]byte(src), "cpp"))
	assert.Equal(t,
		"  using __Foo_derive_marker [[clang::annotate(\"DERIVE=CycleCollection\")]] = Foo;\n"+
			"using __Bar_derive_marker [[clang::annotate(\"DERIVE=ListFields\")]] = Bar;\n"+
			"int DERIVE(x, y);\n", got)

	got = string(expandDerive([]byte("DERIVE(Node, ListFields);"), "c"))
	assert.Equal(t, "typedef Node __Node_derive_marker __attribute__((annotate(\"DERIVE=ListFields\")));", got)
}

func TestEndToEnd_CycleCollection(t *testing.T) {
	t.Parallel()
	dir := writeTree(t, map[string]string{
		"derive.h": "#define DERIVE(ty, ...) using __##ty##_derive_marker [[clang::annotate(\"DERIVE=\" #__VA_ARGS__)]] = ty\n",
		"gecko.h": `
template <class T> class RefPtr { T* mRawPtr; };
class nsCycleCollectingAutoRefCnt { unsigned long mValue; };
`,
		"main.cpp": `#include "derive.h"
#include "gecko.h"

class A {
  nsCycleCollectingAutoRefCnt mRefCnt;
};

class B {
  RefPtr<A> mA;
};
DERIVE(B, CycleCollection);

class C {
  RefPtr<int> mI;
};
DERIVE(C, CycleCollection)
`,
	})
	main := filepath.Join(dir, "main.cpp")

	d := cderive.New(New())
	require.NoError(t, d.Register(cc.GeneratorName, cc.NewGenerator(cc.NewAnalyzer(cc.DefaultConfig(), nil))))

	res, err := d.Run(context.Background(), main, []string{"-W", "-std=c++17"})
	require.NoError(t, err)

	want := "#include \"" + main + "\"\n\n" +
		"NS_IMPL_CYCLE_COLLECTION_UNLINK_BEGIN(B)\n" +
		"  NS_IMPL_CYCLE_COLLECTION_UNLINK(mA)\n" +
		"NS_IMPL_CYCLE_COLLECTION_UNLINK_END\n" +
		"\n" +
		"NS_IMPL_CYCLE_COLLECTION_TRAVERSE_BEGIN(B)\n" +
		"  NS_IMPL_CYCLE_COLLECTION_TRAVERSE(mA)\n" +
		"NS_IMPL_CYCLE_COLLECTION_TRAVERSE_END\n" +
		"NS_IMPL_CYCLE_COLLECTION_UNLINK_BEGIN(C)\n" +
		"NS_IMPL_CYCLE_COLLECTION_UNLINK_END\n" +
		"\n" +
		"NS_IMPL_CYCLE_COLLECTION_TRAVERSE_BEGIN(C)\n" +
		"NS_IMPL_CYCLE_COLLECTION_TRAVERSE_END\n"
	assert.Equal(t, want, res.Output)
	assert.Len(t, res.Files, 3)
}
