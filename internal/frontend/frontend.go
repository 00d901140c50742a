// Package frontend builds cderive translation units from C and C++ sources
// with tree-sitter.
//
// Tree-sitter has no preprocessor, so the front end does the small part of
// one that derive annotations need: it expands the DERIVE(Class, Name)
// convenience macro, splices in #include'd files found on the -I/-iquote/
// -isystem search path (each file once), and keeps only the first branch of
// conditional blocks. Everything else about the command line is ignored.
package frontend

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/jward/cderive"
	"github.com/jward/cderive/internal/logger"
)

// ErrSyntax is returned in strict mode for a source with syntax errors.
var ErrSyntax = errors.New("syntax error")

// Frontend parses C and C++ translation units.
type Frontend struct {
	logger       *zap.SugaredLogger
	strict       bool
	expandMacros bool
	includeDirs  []string
}

var _ cderive.Frontend = (*Frontend)(nil)

// Option configures a Frontend.
type Option func(*Frontend)

// WithLogger sets the logger for include and syntax diagnostics.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(f *Frontend) {
		f.logger = l
	}
}

// WithStrict makes syntax errors fail the parse instead of being skipped.
func WithStrict(strict bool) Option {
	return func(f *Frontend) {
		f.strict = strict
	}
}

// WithMacroExpansion toggles DERIVE(Class, Name) expansion. On by default.
func WithMacroExpansion(expand bool) Option {
	return func(f *Frontend) {
		f.expandMacros = expand
	}
}

// WithIncludeDirs adds include directories searched after any given on the
// command line.
func WithIncludeDirs(dirs ...string) Option {
	return func(f *Frontend) {
		f.includeDirs = append(f.includeDirs, dirs...)
	}
}

// New creates a Frontend.
func New(opts ...Option) *Frontend {
	f := &Frontend{
		logger:       zap.NewNop().Sugar(),
		expandMacros: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Parse reads file and every header it includes into a translation unit.
func (f *Frontend) Parse(ctx context.Context, file string, args []string) (cderive.TranslationUnit, error) {
	ca := parseArgs(args)
	ca.angle = append(ca.angle, f.includeDirs...)

	langName := unitLanguage(file, ca.language)
	lang, ok := ParserForLanguage(langName)
	if !ok {
		return nil, errors.Newf("frontend: unsupported language %q", langName)
	}

	b := &builder{
		ctx:      ctx,
		frontend: f,
		args:     ca,
		langName: langName,
		lang:     lang,
		unit:     newUnit(file),
		visited:  make(map[string]bool),
		logger:   f.logger.With(logger.FieldUnit, file),
	}
	if err := b.file(file, b.unit.root); err != nil {
		return nil, err
	}
	b.logger.Debugw("Parsed translation unit", logger.FieldFiles, len(b.unit.files), "language", langName)
	return b.unit, nil
}

// source is one file being built.
type source struct {
	path string
	dir  string
	src  []byte
}

func (s *source) text(n *sitter.Node) string {
	return n.Content(s.src)
}

func (s *source) loc(n *sitter.Node) cderive.Location {
	p := n.StartPoint()
	return cderive.Location{File: s.path, Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

// file parses path and adds its declarations to scope. A file already read
// into this unit is skipped.
func (b *builder) file(path string, scope *entity) error {
	if err := b.ctx.Err(); err != nil {
		return err
	}
	key := path
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}
	if b.visited[key] {
		return nil
	}
	b.visited[key] = true

	src, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "frontend: reading %s", path)
	}
	b.unit.files = append(b.unit.files, path)
	if b.frontend.expandMacros {
		src = expandDerive(src, b.langName)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(b.lang)

	tree, err := parser.ParseCtx(b.ctx, nil, src)
	if err != nil {
		return errors.Wrapf(err, "frontend: tree-sitter parse of %s failed", path)
	}
	defer tree.Close()

	fc := &source{path: path, dir: filepath.Dir(path), src: src}
	root := tree.RootNode()
	if root.HasError() {
		at := firstError(root, fc)
		if b.frontend.strict {
			return errors.WithHint(
				errors.Wrapf(ErrSyntax, "frontend: %s", at),
				"run without --strict to skip declarations tree-sitter cannot parse")
		}
		b.logger.Debugw("Skipping syntax errors", logger.FieldLocation, at.String())
	}
	return b.items(root, fc, scope)
}

// firstError returns the location of the first error or missing node.
func firstError(root *sitter.Node, fc *source) cderive.Location {
	var found *sitter.Node
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if found != nil {
			return
		}
		if n.IsError() || n.IsMissing() {
			found = n
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	visit(root)
	if found == nil {
		return fc.loc(root)
	}
	return fc.loc(found)
}

// include resolves and splices an #include into scope.
func (b *builder) include(n *sitter.Node, fc *source, scope *entity) error {
	pathNode := n.ChildByFieldName("path")
	if pathNode == nil {
		return nil
	}
	var name string
	var dirs []string
	switch pathNode.Type() {
	case "string_literal":
		name = unquote(fc.text(pathNode))
		dirs = append([]string{fc.dir}, b.args.quoteDirs()...)
	case "system_lib_string":
		name = trimDelims(fc.text(pathNode), "<", ">")
		dirs = b.args.angleDirs()
	default:
		// Computed includes need a real preprocessor.
		return nil
	}
	if filepath.IsAbs(name) {
		dirs = []string{""}
	}

	for _, dir := range dirs {
		p := filepath.Join(dir, name)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return b.file(p, scope)
		}
	}
	b.logger.Debugw("Include not found", "include", name, "from", fc.loc(n).String())
	return nil
}
