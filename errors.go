package cderive

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Sentinel errors. Match with errors.Is; the typed errors below wrap them.
var (
	ErrUnresolvedTarget   = errors.New("derive target unresolved")
	ErrGeneratorFailed    = errors.New("generator failed")
	ErrDuplicateGenerator = errors.New("generator already registered")
	ErrParse              = errors.New("translation unit failed to build")
	ErrDepthExceeded      = errors.New("inheritance depth limit exceeded")
)

// ResolutionError reports a DERIVE annotation whose marker alias could not be
// traced to a class definition. It is fatal for the run.
type ResolutionError struct {
	Generator  string
	Alias      Entity
	Annotation Location
	Reason     string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cderive: DERIVE=%s at %s: cannot resolve target of %s: %s",
		e.Generator, e.Annotation, Describe(e.Alias), e.Reason)
}

func (e *ResolutionError) Unwrap() error { return ErrUnresolvedTarget }

func newResolutionError(generator string, alias Entity, at Location, reason string) error {
	err := &ResolutionError{Generator: generator, Alias: alias, Annotation: at, Reason: reason}
	return errors.WithHint(err,
		"attach DERIVE to a typedef or using-alias of a fully defined class, e.g. DERIVE(Foo, CycleCollection)")
}

// GenerateError reports a generator that failed on a target.
type GenerateError struct {
	Generator string
	Target    Entity
	Err       error
}

func (e *GenerateError) Error() string {
	return fmt.Sprintf("cderive: derive %s failed on %s: %v", e.Generator, Describe(e.Target), e.Err)
}

func (e *GenerateError) Unwrap() []error { return []error{ErrGeneratorFailed, e.Err} }

// ParseError reports a front end failure before discovery begins.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cderive: parse %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrParse, e.Err} }
