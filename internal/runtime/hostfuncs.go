package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/risor-io/risor/object"
	"go.uber.org/zap"

	"github.com/jward/cderive"
)

// makeEmitFn creates the "emit" host function, appending to out.
//
// emit(text, ...)
func makeEmitFn(out *strings.Builder) *object.Builtin {
	return object.NewBuiltin("emit", func(ctx context.Context, args ...object.Object) object.Object {
		for _, arg := range args {
			s, err := toString(arg)
			if err != nil {
				return object.Errorf("emit: %v", err)
			}
			out.WriteString(s)
		}
		return object.Nil
	})
}

// targetObject converts a class definition to the Risor map scripts see as
// target:
//
//	{"name", "kind", "file", "line", "column",
//	 "fields": [{"name", "type", "line"}], "bases": [name],
//	 "annotations": [text]}
//
// A field without a type has type "".
func targetObject(class cderive.Entity) *object.Map {
	name, _ := class.DisplayName()
	loc := class.Location()

	fields := []object.Object{}
	for _, f := range cderive.Fields(class) {
		fname, ok := f.DisplayName()
		if !ok {
			continue
		}
		ty := ""
		if t, ok := f.Type(); ok {
			ty = t.DisplayName()
		}
		fields = append(fields, object.NewMap(map[string]object.Object{
			"name": object.NewString(fname),
			"type": object.NewString(ty),
			"line": object.NewInt(int64(f.Location().Line)),
		}))
	}

	bases := []object.Object{}
	for _, b := range cderive.ChildrenOfKind(class, cderive.KindBaseSpecifier) {
		if t, ok := b.Type(); ok {
			bases = append(bases, object.NewString(t.DisplayName()))
		}
	}

	annotations := []object.Object{}
	for _, a := range cderive.ChildrenOfKind(class, cderive.KindAnnotation) {
		if text, ok := a.DisplayName(); ok {
			annotations = append(annotations, object.NewString(text))
		}
	}

	return object.NewMap(map[string]object.Object{
		"name":        object.NewString(name),
		"kind":        object.NewString(class.Kind().String()),
		"file":        object.NewString(loc.File),
		"line":        object.NewInt(int64(loc.Line)),
		"column":      object.NewInt(int64(loc.Column)),
		"fields":      object.NewList(fields),
		"bases":       object.NewList(bases),
		"annotations": object.NewList(annotations),
	})
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}

// logObject provides log.Info/Warn/Error methods for Risor scripts.
type logObject struct {
	logger *zap.SugaredLogger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg)
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg)
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg)
}
