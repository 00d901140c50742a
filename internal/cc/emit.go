package cc

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/jward/cderive"
)

// ErrAnonymousClass is returned for a target without a display name; the
// macros cannot name it.
var ErrAnonymousClass = errors.New("cycle collection target has no name")

func errAnonymous(class cderive.Entity) error {
	return errors.Wrapf(ErrAnonymousClass, "at %s", class.Location())
}

// Generator is the CycleCollection derive: it emits the unlink and traverse
// participant blocks for a class.
type Generator struct {
	analyzer *Analyzer
}

var _ cderive.Generator = (*Generator)(nil)

// NewGenerator returns a Generator rendering the decisions of a.
func NewGenerator(a *Analyzer) *Generator {
	return &Generator{analyzer: a}
}

// Derive implements cderive.Generator.
func (g *Generator) Derive(ctx context.Context, target cderive.Entity) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := g.analyzer.Analyze(target)
	if err != nil {
		return "", err
	}
	return Render(p), nil
}

// Render writes the UNLINK block, a blank line, then the TRAVERSE block.
// Inherited forms are used when p has a cycle collection base.
func Render(p *Participant) string {
	fields := p.Traversed()

	var b strings.Builder
	b.WriteString("NS_IMPL_CYCLE_COLLECTION_UNLINK_BEGIN(" + p.Class + ")\n")
	for _, f := range fields {
		b.WriteString("  NS_IMPL_CYCLE_COLLECTION_UNLINK(" + f + ")\n")
	}
	if p.Base != "" {
		b.WriteString("NS_IMPL_CYCLE_COLLECTION_UNLINK_END_INHERITED(" + p.Base + ")\n")
	} else {
		b.WriteString("NS_IMPL_CYCLE_COLLECTION_UNLINK_END\n")
	}

	b.WriteString("\n")

	if p.Base != "" {
		b.WriteString("NS_IMPL_CYCLE_COLLECTION_TRAVERSE_BEGIN_INHERITED(" + p.Class + ", " + p.Base + ")\n")
	} else {
		b.WriteString("NS_IMPL_CYCLE_COLLECTION_TRAVERSE_BEGIN(" + p.Class + ")\n")
	}
	for _, f := range fields {
		b.WriteString("  NS_IMPL_CYCLE_COLLECTION_TRAVERSE(" + f + ")\n")
	}
	b.WriteString("NS_IMPL_CYCLE_COLLECTION_TRAVERSE_END\n")
	return b.String()
}
