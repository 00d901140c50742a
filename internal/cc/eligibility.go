package cc

import (
	"go.uber.org/zap"

	"github.com/jward/cderive"
	"github.com/jward/cderive/internal/logger"
)

// Analyzer answers the eligibility questions for one set of conventions.
// It holds no per-run state and is safe for concurrent use.
type Analyzer struct {
	cfg           Config
	smartPointers map[string]bool
	containers    map[string]bool
	logger        *zap.SugaredLogger
}

// NewAnalyzer returns an Analyzer for cfg. A nil logger discards output.
func NewAnalyzer(cfg Config, l *zap.SugaredLogger) *Analyzer {
	if l == nil {
		l = logger.Nop()
	}
	if cfg.MaxBaseDepth <= 0 {
		cfg.MaxBaseDepth = DefaultConfig().MaxBaseDepth
	}
	return &Analyzer{
		cfg:           cfg,
		smartPointers: set(cfg.SmartPointers),
		containers:    set(cfg.Containers),
		logger:        l,
	}
}

func set(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Config returns the conventions the Analyzer was built with.
func (a *Analyzer) Config() Config { return a.cfg }

// SmartPointerTarget returns T for a field type RefPtr<T> or nsCOMPtr<T>.
func (a *Analyzer) SmartPointerTarget(t cderive.Type) (cderive.Type, bool) {
	return singleTemplateArgument(t, a.smartPointers)
}

// ContainerElement returns T for a field type nsTArray<T>.
func (a *Analyzer) ContainerElement(t cderive.Type) (cderive.Type, bool) {
	return singleTemplateArgument(t, a.containers)
}

// singleTemplateArgument returns the only template argument of t when t's
// declaration is a specialization of a template named in allow.
func singleTemplateArgument(t cderive.Type, allow map[string]bool) (cderive.Type, bool) {
	if t == nil {
		return nil, false
	}
	decl, ok := t.Declaration()
	if !ok {
		return nil, false
	}
	tmpl, ok := decl.Template()
	if !ok {
		return nil, false
	}
	name, ok := tmpl.DisplayName()
	if !ok || !allow[name] {
		return nil, false
	}
	args, ok := t.TemplateArguments()
	if !ok || len(args) != 1 || args[0] == nil {
		return nil, false
	}
	return args[0], true
}

// IsDescendantOf reports whether class is, or transitively derives from, a
// class whose display name is name.
func (a *Analyzer) IsDescendantOf(class cderive.Entity, name string) bool {
	_, ok := search(a, class, func(e cderive.Entity) (struct{}, bool) {
		n, ok := e.DisplayName()
		return struct{}{}, ok && n == name
	})
	return ok
}

// CycleCollectionBase returns the nearest proper ancestor of class that
// declares the participant nested class.
func (a *Analyzer) CycleCollectionBase(class cderive.Entity) (cderive.Entity, bool) {
	return search(a, class, func(e cderive.Entity) (cderive.Entity, bool) {
		if e == class {
			return nil, false
		}
		if hasNestedClass(e, a.cfg.ParticipantClass) {
			return e, true
		}
		return nil, false
	})
}

// RefCountField returns the nearest reference count data member of class or
// its ancestors.
func (a *Analyzer) RefCountField(class cderive.Entity) (cderive.Entity, bool) {
	return search(a, class, func(e cderive.Entity) (cderive.Entity, bool) {
		return fieldNamed(e, a.cfg.RefCntField)
	})
}

func search[T any](a *Analyzer, start cderive.Entity, pred func(cderive.Entity) (T, bool)) (T, bool) {
	r, ok, err := baseMatching(start, a.cfg.MaxBaseDepth, pred)
	if err != nil {
		a.logger.Warnw("Base search abandoned", "class", cderive.Describe(start), "limit", a.cfg.MaxBaseDepth, logger.FieldError, err)
		return r, false
	}
	return r, ok
}

// IsCollectable reports whether a smart pointer to t must be traced.
//
// t is collectable if its reference count field has the cycle-collecting
// type. Otherwise it is collectable only when it derives from the supports
// base and no typed reference count field exists anywhere in its hierarchy.
// A reference count of any other type therefore disqualifies it.
func (a *Analyzer) IsCollectable(t cderive.Type) bool {
	v, _ := a.collectability(t)
	return v
}

func (a *Analyzer) collectability(t cderive.Type) (bool, string) {
	def, ok := cderive.DefinitionOf(t)
	if !ok {
		return false, "no definition"
	}

	var refCntType string
	hasRefCnt := false
	if f, ok := a.RefCountField(def); ok {
		if ft, ok := f.Type(); ok {
			refCntType = ft.DisplayName()
			hasRefCnt = true
		}
	}
	if hasRefCnt && refCntType == a.cfg.RefCntType {
		return true, a.cfg.RefCntField + " is " + a.cfg.RefCntType
	}

	if !a.IsDescendantOf(def, a.cfg.SupportsBase) {
		if hasRefCnt {
			return false, a.cfg.RefCntField + " is " + refCntType
		}
		return false, "not a " + a.cfg.SupportsBase
	}
	if hasRefCnt {
		return false, a.cfg.SupportsBase + " with " + a.cfg.RefCntField + " of type " + refCntType
	}
	return true, a.cfg.SupportsBase + " without " + a.cfg.RefCntField
}

// ShouldTraverseUnlink reports whether a field of type t belongs in the
// unlink and traverse blocks.
func (a *Analyzer) ShouldTraverseUnlink(t cderive.Type) bool {
	v, _ := a.decide(t)
	return v
}

func (a *Analyzer) decide(t cderive.Type) (bool, string) {
	if target, ok := a.SmartPointerTarget(t); ok {
		v, why := a.collectability(target)
		return v, "smart pointer to " + target.DisplayName() + ": " + why
	}
	if elem, ok := a.ContainerElement(t); ok {
		v, why := a.decide(elem)
		return v, "container of " + elem.DisplayName() + "; " + why
	}
	return false, "not a smart pointer or container"
}

// FieldDecision is the verdict for one data member.
type FieldDecision struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Traverse bool   `json:"traverse" yaml:"traverse"`
	Reason   string `json:"reason" yaml:"reason"`
}

// Participant is the analysis of one class.
type Participant struct {
	Class  string          `json:"class" yaml:"class"`
	Base   string          `json:"base,omitempty" yaml:"base,omitempty"`
	Fields []FieldDecision `json:"fields" yaml:"fields"`
}

// Traversed returns the names of the fields that take part, in declaration
// order.
func (p *Participant) Traversed() []string {
	var out []string
	for _, f := range p.Fields {
		if f.Traverse {
			out = append(out, f.Name)
		}
	}
	return out
}

// Analyze decides every field of class. Fields with no name or no type are
// reported as skipped and never traversed.
func (a *Analyzer) Analyze(class cderive.Entity) (*Participant, error) {
	name, ok := class.DisplayName()
	if !ok || name == "" {
		return nil, errAnonymous(class)
	}
	p := &Participant{Class: name}
	if base, ok := a.CycleCollectionBase(class); ok {
		// An anonymous base cannot be named in a macro; treat it as absent.
		if bn, ok := base.DisplayName(); ok {
			p.Base = bn
		}
	}

	for _, f := range cderive.Fields(class) {
		fname, ok := f.DisplayName()
		if !ok || fname == "" {
			a.logger.Debugw("Skipping unnamed field", "class", name, logger.FieldLocation, f.Location().String())
			continue
		}
		ft, ok := f.Type()
		if !ok {
			p.Fields = append(p.Fields, FieldDecision{Name: fname, Reason: "no type"})
			continue
		}
		v, why := a.decide(ft)
		p.Fields = append(p.Fields, FieldDecision{
			Name:     fname,
			Type:     ft.DisplayName(),
			Traverse: v,
			Reason:   why,
		})
	}
	return p, nil
}
