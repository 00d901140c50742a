package runtime

import (
	"context"
	"strings"

	"github.com/jward/cderive"
)

// ScriptGenerator is a derive generator backed by a Risor script. Each
// Derive call runs the script in a fresh VM.
type ScriptGenerator struct {
	name   string
	script string
	rt     *Runtime
}

var _ cderive.Generator = (*ScriptGenerator)(nil)

// Name is the generator name annotations refer to.
func (g *ScriptGenerator) Name() string { return g.name }

// Script is the script path within the runtime's script source.
func (g *ScriptGenerator) Script() string { return g.script }

// Derive implements cderive.Generator.
func (g *ScriptGenerator) Derive(ctx context.Context, target cderive.Entity) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var out strings.Builder
	err := g.rt.RunScript(ctx, g.script, map[string]any{
		"target": targetObject(target),
		"emit":   makeEmitFn(&out),
	})
	if err != nil {
		return "", err
	}
	return out.String(), nil
}
