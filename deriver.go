package cderive

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/jward/cderive/internal/logger"
	"github.com/jward/cderive/internal/store"
)

// Generator produces source text for one discovered class definition.
type Generator interface {
	Derive(ctx context.Context, target Entity) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, target Entity) (string, error)

func (f GeneratorFunc) Derive(ctx context.Context, target Entity) (string, error) {
	return f(ctx, target)
}

// Diagnostic is a non-fatal problem reported during a run.
type Diagnostic struct {
	Generator string   `json:"generator" yaml:"generator"`
	Target    string   `json:"target" yaml:"target"`
	Location  Location `json:"location" yaml:"location"`
	Message   string   `json:"message" yaml:"message"`
}

// TargetResult is the text one generator produced for one class.
type TargetResult struct {
	Class     string   `json:"class" yaml:"class"`
	Generator string   `json:"generator" yaml:"generator"`
	Location  Location `json:"location" yaml:"location"`
	Text      string   `json:"text" yaml:"text"`
}

// Result is the outcome of a Run.
type Result struct {
	RunID       string         `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	File        string         `json:"file" yaml:"file"`
	Output      string         `json:"output" yaml:"output"`
	Targets     []TargetResult `json:"targets" yaml:"targets"`
	Diagnostics []Diagnostic   `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	Files       []string       `json:"files" yaml:"files"`
	Cached      bool           `json:"cached" yaml:"cached"`
}

// KeepGoingError collects the generator failures of a WithKeepGoing run.
type KeepGoingError struct {
	Failures []error
}

func (e *KeepGoingError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("cderive: %d generator failure(s):\n  %s", len(e.Failures), strings.Join(msgs, "\n  "))
}

func (e *KeepGoingError) Unwrap() []error { return e.Failures }

// Deriver owns a generator registry and drives the discover/dispatch
// pipeline over translation units produced by its Frontend.
type Deriver struct {
	// mu makes Register and Run mutually exclusive.
	mu         sync.Mutex
	frontend   Frontend
	generators map[string]Generator
	logger     *zap.SugaredLogger
	timeout    time.Duration
	keepGoing  bool

	store       *store.Store
	fingerprint string
	keepRuns    int
}

// Option configures a Deriver.
type Option func(*Deriver)

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(d *Deriver) {
		d.logger = l
	}
}

// WithTimeout bounds a whole Run. Zero means no deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Deriver) {
		d.timeout = timeout
	}
}

// WithKeepGoing makes generator failures per-target: a failing target's text
// is omitted, the remaining targets still run, and Run returns the partial
// Result together with a *KeepGoingError.
func WithKeepGoing(keepGoing bool) Option {
	return func(d *Deriver) {
		d.keepGoing = keepGoing
	}
}

// WithStore enables the generation cache and run history. fingerprint
// should change whenever generator configuration changes.
func WithStore(s *store.Store, fingerprint string) Option {
	return func(d *Deriver) {
		d.store = s
		d.fingerprint = fingerprint
	}
}

// WithRunHistory sets how many recorded runs the store keeps.
func WithRunHistory(keep int) Option {
	return func(d *Deriver) {
		d.keepRuns = keep
	}
}

// New creates a Deriver reading translation units through fe.
func New(fe Frontend, opts ...Option) *Deriver {
	d := &Deriver{
		frontend:   fe,
		generators: make(map[string]Generator),
		logger:     zap.NewNop().Sugar(),
		keepRuns:   100,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register binds a generator to a name. A name that is already bound is
// not overwritten: Register returns ErrDuplicateGenerator so two generators
// cannot silently claim the same DERIVE name. Replace is the overwriting
// form, used by the CLI to let scripts.dir shadow embedded scripts.
func (d *Deriver) Register(name string, g Generator) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.generators[name]; exists {
		return errors.Wrapf(ErrDuplicateGenerator, "register %q", name)
	}
	d.generators[name] = g
	return nil
}

// MustRegister is Register that panics on a duplicate name.
func (d *Deriver) MustRegister(name string, g Generator) {
	if err := d.Register(name, g); err != nil {
		panic(err)
	}
}

// Replace binds a generator to a name, overwriting any prior binding.
func (d *Deriver) Replace(name string, g Generator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generators[name] = g
}

// Generators returns the registered names, sorted.
func (d *Deriver) Generators() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.generatorNames()
}

func (d *Deriver) generatorNames() []string {
	names := make([]string, 0, len(d.generators))
	for name := range d.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preamble is the text every Run output starts with.
func Preamble(file string) string {
	return fmt.Sprintf("#include \"%s\"\n\n", file)
}

// Run parses file with args, discovers derive annotations, and concatenates
// the output of each bound generator in discovery order after the Preamble.
//
// Unregistered generator names are reported as diagnostics and skipped. A
// ResolutionError, a ParseError or (unless WithKeepGoing) a GenerateError
// aborts the run and no Result is returned.
func (d *Deriver) Run(ctx context.Context, file string, args []string) (*Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	var key string
	if d.store != nil {
		key = d.cacheKey(file, args)
		if res, ok := d.cachedRun(key); ok {
			return res, nil
		}
	}

	tu, err := d.frontend.Parse(ctx, file, args)
	if err != nil {
		return nil, &ParseError{File: file, Err: err}
	}

	res := &Result{File: file, Files: tu.Files()}
	var out strings.Builder
	out.WriteString(Preamble(file))

	var failures []error
	err = Discover(tu.Root(), func(t Target) error {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "cderive: run of %s aborted", file)
		}
		class := displayName(t.Entity)

		g, ok := d.generators[t.Generator]
		if !ok {
			d.logger.Warnw("Use of unregistered derive",
				logger.FieldGenerator, t.Generator,
				logger.FieldTarget, class,
				logger.FieldLocation, t.Annotation.String())
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Generator: t.Generator,
				Target:    class,
				Location:  t.Annotation,
				Message:   fmt.Sprintf("use of unregistered derive %s", t.Generator),
			})
			return nil
		}

		text, err := g.Derive(ctx, t.Entity)
		if err != nil {
			gerr := &GenerateError{Generator: t.Generator, Target: t.Entity, Err: err}
			if !d.keepGoing {
				return gerr
			}
			d.logger.Errorw("Derive failed", logger.FieldGenerator, t.Generator, logger.FieldTarget, class, logger.FieldError, err)
			failures = append(failures, gerr)
			return nil
		}

		d.logger.Debugw("Derived", logger.FieldGenerator, t.Generator, logger.FieldTarget, class, "bytes", len(text))
		out.WriteString(text)
		res.Targets = append(res.Targets, TargetResult{
			Class:     class,
			Generator: t.Generator,
			Location:  t.Entity.Location(),
			Text:      text,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Output = out.String()

	if len(failures) > 0 {
		return res, &KeepGoingError{Failures: failures}
	}

	if d.store != nil {
		d.recordRun(key, args, res)
	}
	return res, nil
}

func displayName(e Entity) string {
	if name, ok := e.DisplayName(); ok {
		return name
	}
	return "<anonymous>"
}
