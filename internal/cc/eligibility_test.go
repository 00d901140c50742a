package cc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jward/cderive"
	"github.com/jward/cderive/internal/asttest"
)

// gecko holds the well-known declarations a Gecko header would provide.
type gecko struct {
	refPtr    *asttest.Node
	comPtr    *asttest.Node
	tArray    *asttest.Node
	supports  *asttest.Node
	ccRefCnt  cderive.Type
	rawRefCnt cderive.Type
}

func newGecko() *gecko {
	return &gecko{
		refPtr:    asttest.ClassTemplate("RefPtr"),
		comPtr:    asttest.ClassTemplate("nsCOMPtr"),
		tArray:    asttest.ClassTemplate("nsTArray"),
		supports:  asttest.Class("nsISupports"),
		ccRefCnt:  asttest.Named("nsCycleCollectingAutoRefCnt", asttest.Class("nsCycleCollectingAutoRefCnt")),
		rawRefCnt: asttest.Named("nsAutoRefCnt", asttest.Class("nsAutoRefCnt")),
	}
}

func (g *gecko) RefPtr(arg cderive.Type) cderive.Type { return asttest.Spec(g.refPtr, arg) }
func (g *gecko) COMPtr(arg cderive.Type) cderive.Type { return asttest.Spec(g.comPtr, arg) }
func (g *gecko) TArray(arg cderive.Type) cderive.Type { return asttest.Spec(g.tArray, arg) }

func (g *gecko) ISupports() *asttest.Node {
	return asttest.Base(asttest.Named("nsISupports", g.supports))
}

func (g *gecko) CCRefCnt() *asttest.Node  { return asttest.Field("mRefCnt", g.ccRefCnt) }
func (g *gecko) RawRefCnt() *asttest.Node { return asttest.Field("mRefCnt", g.rawRefCnt) }

func typeOf(n *asttest.Node) cderive.Type { return asttest.Named(name(n), n) }

func newTestAnalyzer() *Analyzer { return NewAnalyzer(DefaultConfig(), nil) }

func observed(level zapcore.Level) (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core).Sugar(), logs
}

func TestSmartPointerTarget(t *testing.T) {
	t.Parallel()
	g := newGecko()
	a := newTestAnalyzer()
	target := typeOf(asttest.Class("A"))
	pair := asttest.ClassTemplate("RefPtr")
	undeclaredTemplate := &asttest.T{}

	tests := []struct {
		name string
		ty   cderive.Type
		want bool
	}{
		{"RefPtr", g.RefPtr(target), true},
		{"nsCOMPtr", g.COMPtr(target), true},
		{"container is not a smart pointer", g.TArray(target), false},
		{"two arguments", asttest.Spec(pair, target, target), false},
		{"no arguments", asttest.Spec(pair), false},
		{"non-type argument", asttest.Spec(pair, nil), false},
		{"plain class", target, false},
		{"primitive", asttest.Primitive("int"), false},
		{"no declaration", undeclaredTemplate, false},
		{"unlisted template", asttest.Spec(asttest.ClassTemplate("UniquePtr"), target), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := a.SmartPointerTarget(tt.ty)
			assert.Equal(t, tt.want, ok)
			if tt.want {
				assert.Equal(t, "A", got.DisplayName())
			}
		})
	}
}

func TestContainerElement(t *testing.T) {
	t.Parallel()
	g := newGecko()
	a := newTestAnalyzer()
	elem := g.RefPtr(typeOf(asttest.Class("A")))

	got, ok := a.ContainerElement(g.TArray(elem))
	require.True(t, ok)
	assert.Equal(t, "RefPtr<A>", got.DisplayName())

	_, ok = a.ContainerElement(elem)
	assert.False(t, ok)
}

func TestContainerElement_Configurable(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Containers = append(cfg.Containers, "AutoTArray")
	a := NewAnalyzer(cfg, nil)

	_, ok := a.ContainerElement(asttest.Spec(asttest.ClassTemplate("AutoTArray"), asttest.Primitive("int")))
	assert.True(t, ok)
}

func TestIsDescendantOf(t *testing.T) {
	t.Parallel()
	g := newGecko()
	a := newTestAnalyzer()

	direct := asttest.Class("Direct", g.ISupports())
	indirect := derives(asttest.Class("Indirect"), direct)
	unrelated := asttest.Class("Unrelated")

	assert.True(t, a.IsDescendantOf(direct, "nsISupports"))
	assert.True(t, a.IsDescendantOf(indirect, "nsISupports"))
	assert.True(t, a.IsDescendantOf(g.supports, "nsISupports"), "a class is its own descendant")
	assert.False(t, a.IsDescendantOf(unrelated, "nsISupports"))
}

func TestRefCountField_ShortCircuit(t *testing.T) {
	t.Parallel()
	g := newGecko()
	a := newTestAnalyzer()

	t.Run("inherited from grandparent", func(t *testing.T) {
		grandField := g.CCRefCnt()
		grand := asttest.Class("Grandparent", grandField)
		parent := derives(asttest.Class("Parent"), grand)
		child := derives(asttest.Class("Child"), parent)

		f, ok := a.RefCountField(child)
		require.True(t, ok)
		assert.Same(t, grandField, f)
	})

	t.Run("parent shadows grandparent", func(t *testing.T) {
		grand := asttest.Class("Grandparent", g.CCRefCnt())
		parentField := g.RawRefCnt()
		parent := derives(asttest.Class("Parent", parentField), grand)
		child := derives(asttest.Class("Child"), parent)

		f, ok := a.RefCountField(child)
		require.True(t, ok)
		assert.Same(t, parentField, f)
	})

	t.Run("none", func(t *testing.T) {
		_, ok := a.RefCountField(asttest.Class("Bare", asttest.Field("mOther", g.ccRefCnt)))
		assert.False(t, ok)
	})
}

func TestCycleCollectionBase(t *testing.T) {
	t.Parallel()
	g := newGecko()
	a := newTestAnalyzer()
	participant := func() *asttest.Node { return asttest.Class("cycleCollection") }

	base := asttest.Class("Base", g.ISupports(), participant())
	middle := derives(asttest.Class("Middle"), base)
	derived := derives(asttest.Class("Derived", participant()), middle)

	got, ok := a.CycleCollectionBase(derived)
	require.True(t, ok)
	assert.Equal(t, "Base", name(got))

	_, ok = a.CycleCollectionBase(base)
	assert.False(t, ok, "the class itself is never its own cycle collection base")

	_, ok = a.CycleCollectionBase(asttest.Class("Lone", participant()))
	assert.False(t, ok)

	// A field named like the participant class does not count.
	decoy := asttest.Class("Decoy", asttest.Field("cycleCollection", asttest.Primitive("int")))
	_, ok = a.CycleCollectionBase(derives(asttest.Class("D"), decoy))
	assert.False(t, ok)
}

// These cases pin the exact refcount policy: a typed mRefCnt of the
// cycle-collecting type always qualifies; any other typed mRefCnt
// disqualifies even nsISupports descendants; a typeless mRefCnt counts as
// absent.
func TestIsCollectable(t *testing.T) {
	t.Parallel()
	g := newGecko()

	ccGrand := asttest.Class("CCGrand", g.CCRefCnt())

	tests := []struct {
		name  string
		class *asttest.Node
		want  bool
	}{
		{"nsISupports with cycle collecting refcount", asttest.Class("A", g.ISupports(), g.CCRefCnt()), true},
		{"inherited cycle collecting refcount", derives(asttest.Class("A"), derives(asttest.Class("P"), ccGrand)), true},
		{"cycle collecting refcount without nsISupports", asttest.Class("A", g.CCRefCnt()), true},
		{"nsISupports without refcount", asttest.Class("A", g.ISupports()), true},
		{"nsISupports itself", g.supports, true},
		{"nsISupports with plain refcount", asttest.Class("A", g.ISupports(), g.RawRefCnt()), false},
		{"nsISupports with inherited plain refcount", derives(asttest.Class("A", g.ISupports()), asttest.Class("P", g.RawRefCnt())), false},
		{"nsISupports with typeless refcount", asttest.Class("A", g.ISupports(), asttest.Field("mRefCnt", nil)), true},
		{"plain refcount shadows inherited cycle collecting one", derives(asttest.Class("A", g.RawRefCnt()), ccGrand), false},
		{"plain refcount", asttest.Class("A", g.RawRefCnt()), false},
		{"plain class", asttest.Class("A", asttest.Field("x", asttest.Primitive("int"))), false},
		{"refcount with another name", asttest.Class("A", asttest.Field("mRefCount", g.ccRefCnt)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAnalyzer()
			assert.Equal(t, tt.want, a.IsCollectable(typeOf(tt.class)))
		})
	}
}

func TestIsCollectable_NoDefinition(t *testing.T) {
	t.Parallel()
	a := newTestAnalyzer()

	assert.False(t, a.IsCollectable(asttest.Named("Fwd", asttest.Forward("Fwd"))))
	assert.False(t, a.IsCollectable(asttest.Primitive("int")))
	assert.False(t, a.IsCollectable(nil))

	// A forward declaration whose body appears later resolves normally.
	g := newGecko()
	def := asttest.Class("Later", g.CCRefCnt())
	assert.True(t, a.IsCollectable(asttest.Named("Later", asttest.Forward("Later").DefinedBy(def))))
}

func TestIsCollectable_DepthLimitIsNoMatch(t *testing.T) {
	t.Parallel()
	logger, logs := observed(zap.WarnLevel)
	cfg := DefaultConfig()
	cfg.MaxBaseDepth = 4
	a := NewAnalyzer(cfg, logger)

	loop := asttest.Class("Loop")
	loop.Add(asttest.Base(asttest.Named("Loop", loop)))

	assert.False(t, a.IsCollectable(typeOf(loop)))
	require.NotZero(t, logs.FilterMessage("Base search abandoned").Len())
}

func TestShouldTraverseUnlink(t *testing.T) {
	t.Parallel()
	g := newGecko()
	a := newTestAnalyzer()

	cc := typeOf(asttest.Class("CC", g.CCRefCnt()))
	plain := typeOf(asttest.Class("Plain", g.RawRefCnt()))
	xpcom := typeOf(asttest.Class("XPCOM", g.ISupports()))
	fwd := asttest.Named("Fwd", asttest.Forward("Fwd"))

	tests := []struct {
		name string
		ty   cderive.Type
		want bool
	}{
		{"RefPtr to collectable", g.RefPtr(cc), true},
		{"nsCOMPtr to nsISupports", g.COMPtr(xpcom), true},
		{"RefPtr to plain refcount", g.RefPtr(plain), false},
		{"RefPtr to int", g.RefPtr(asttest.Primitive("int")), false},
		{"RefPtr to undefined", g.RefPtr(fwd), false},
		{"array of RefPtr to collectable", g.TArray(g.RefPtr(cc)), true},
		{"nested arrays", g.TArray(g.TArray(g.RefPtr(cc))), true},
		{"array of RefPtr to plain", g.TArray(g.RefPtr(plain)), false},
		{"array of raw collectable", g.TArray(cc), false},
		{"array of int", g.TArray(asttest.Primitive("int")), false},
		{"raw collectable", cc, false},
		{"RefPtr of array", g.RefPtr(g.TArray(g.RefPtr(cc))), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.ShouldTraverseUnlink(tt.ty))
		})
	}
}

func TestAnalyze(t *testing.T) {
	t.Parallel()
	g := newGecko()
	a := newTestAnalyzer()

	cc := typeOf(asttest.Class("CC", g.CCRefCnt()))
	class := asttest.Class("Holder",
		asttest.Field("mFirst", g.RefPtr(cc)),
		asttest.Field("mCount", asttest.Primitive("int")),
		asttest.Field("", g.RefPtr(cc)),
		asttest.Field("mUntyped", nil),
		asttest.Field("mList", g.TArray(g.RefPtr(cc))),
	)

	p, err := a.Analyze(class)
	require.NoError(t, err)
	assert.Equal(t, "Holder", p.Class)
	assert.Empty(t, p.Base)
	require.Len(t, p.Fields, 4)
	assert.Equal(t, "mFirst", p.Fields[0].Name)
	assert.Equal(t, "RefPtr<CC>", p.Fields[0].Type)
	assert.True(t, p.Fields[0].Traverse)
	assert.Contains(t, p.Fields[0].Reason, "nsCycleCollectingAutoRefCnt")
	assert.False(t, p.Fields[1].Traverse)
	assert.Equal(t, "mUntyped", p.Fields[2].Name)
	assert.Equal(t, "no type", p.Fields[2].Reason)
	assert.Equal(t, []string{"mFirst", "mList"}, p.Traversed())
}

func TestAnalyze_Anonymous(t *testing.T) {
	t.Parallel()
	_, err := newTestAnalyzer().Analyze(asttest.Anonymous())
	require.ErrorIs(t, err, ErrAnonymousClass)
}
