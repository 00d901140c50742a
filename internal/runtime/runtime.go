// Package runtime runs derive generators written in Risor.
//
// A generator script sees the annotated class as the global map target and
// appends its output with emit(text):
//
//	for _, f := range target["fields"] {
//		emit(f["name"] + "\n")
//	}
//
// Scripts are loaded from a directory or an fs.FS. A script whose base name
// starts with an upper-case letter is a generator named after the file
// (ListFields.risor is ListFields); the others are modules generators may
// import.
package runtime

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"
	"go.uber.org/zap"

	"github.com/jward/cderive/internal/logger"
)

// ScriptExt is the extension of generator and module scripts.
const ScriptExt = ".risor"

// Runtime embeds a Risor VM and provides the host functions generator
// scripts use.
type Runtime struct {
	scriptsDir string
	fsys       fs.FS
	logger     *zap.SugaredLogger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS configures the Runtime to load scripts from an fs.FS
// instead of from disk. Also configures the Risor importer to use
// FSImporter for import statement resolution.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithRuntimeLogger sets the logger behind the scripts' log global.
func WithRuntimeLogger(l *zap.SugaredLogger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = l
	}
}

// NewRuntime creates a Runtime loading scripts from scriptsDir.
func NewRuntime(scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		scriptsDir: scriptsDir,
		logger:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunScript loads and executes a Risor script with all standard globals
// plus any extra globals provided by the caller.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) error {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	return r.eval(ctx, src, scriptPath, extraGlobals)
}

// RunSource executes Risor source code directly with all standard globals
// plus any extra globals. Useful for testing without script files.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) error {
	return r.eval(ctx, source, "<inline>", extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extraGlobals map[string]any) error {
	globals := r.buildGlobals(label, extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}

	// Wire importer so Risor import statements resolve correctly.
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	_, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return nil
}

// buildImporter returns a Risor importer configured for the Runtime's script source.
// Returns nil if neither fs.FS nor scriptsDir is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{ScriptExt},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{ScriptExt},
		})
	}
	return nil
}

// LoadScript reads a .risor file and returns its source code.
// When an fs.FS is configured, uses fs.ReadFile on the embedded filesystem.
// Otherwise, uses os.ReadFile with scriptsDir as the base directory.
func (r *Runtime) LoadScript(p string) (string, error) {
	if r.fsys != nil {
		// fs.FS paths are slash-separated and relative.
		fsPath := strings.TrimPrefix(filepath.ToSlash(p), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := p
	if !filepath.IsAbs(p) {
		fullPath = filepath.Join(r.scriptsDir, p)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// scripts lists the script files at the top level of the script source,
// sorted by name.
func (r *Runtime) scripts() ([]string, error) {
	var names []string
	if r.fsys != nil {
		entries, err := fs.ReadDir(r.fsys, ".")
		if err != nil {
			return nil, fmt.Errorf("runtime: listing scripts: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() && path.Ext(e.Name()) == ScriptExt {
				names = append(names, e.Name())
			}
		}
	} else if r.scriptsDir != "" {
		entries, err := os.ReadDir(r.scriptsDir)
		if err != nil {
			return nil, fmt.Errorf("runtime: listing scripts in %s: %w", r.scriptsDir, err)
		}
		for _, e := range entries {
			if !e.IsDir() && filepath.Ext(e.Name()) == ScriptExt {
				names = append(names, e.Name())
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Generators returns a generator per generator script, sorted by name.
func (r *Runtime) Generators() ([]*ScriptGenerator, error) {
	files, err := r.scripts()
	if err != nil {
		return nil, err
	}
	var gens []*ScriptGenerator
	for _, file := range files {
		name := strings.TrimSuffix(file, ScriptExt)
		if !isGeneratorName(name) {
			continue
		}
		gens = append(gens, &ScriptGenerator{name: name, script: file, rt: r})
	}
	return gens, nil
}

func isGeneratorName(name string) bool {
	for _, c := range name {
		return unicode.IsUpper(c)
	}
	return false
}

// Fingerprint hashes every script's name and content. It changes whenever
// a script is added, removed or edited.
func (r *Runtime) Fingerprint() (string, error) {
	files, err := r.scripts()
	if err != nil {
		return "", err
	}
	h := sha256.New()
	for _, file := range files {
		src, err := r.LoadScript(file)
		if err != nil {
			return "", err
		}
		h.Write([]byte(file))
		h.Write([]byte{0})
		h.Write([]byte(src))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// buildGlobals constructs the full set of globals exposed to Risor scripts.
func (r *Runtime) buildGlobals(label string, extra map[string]any) map[string]any {
	globals := map[string]any{
		"log": mustProxy(&logObject{logger: r.logger.With(logger.FieldScript, label)}),
	}
	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
