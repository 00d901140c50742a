// Package cderive discovers DERIVE annotations in parsed C++ translation
// units and dispatches each annotated class to a named generator, collecting
// the generated source text.
//
// # Pipeline
//
// A run has three phases:
//
//  1. Parse: the [Frontend] turns a source file and compiler-style arguments
//     into a [TranslationUnit], a read-only tree of [Entity] values.
//
//  2. Discover: every annotation whose text is DERIVE=<name> names a
//     generator. The annotation decorates a marker typedef of the class to
//     generate for; the target is that class's definition.
//
//  3. Dispatch: each target is handed to the [Generator] registered under
//     <name>. Outputs are concatenated in discovery order after an
//     #include of the source file.
//
// # Usage
//
//	d := cderive.New(frontend.New(logger), cderive.WithLogger(logger))
//	d.MustRegister(cc.GeneratorName, cc.NewGenerator(cc.NewAnalyzer(cc.DefaultConfig(), logger)))
//
//	res, err := d.Run(ctx, "dom/Element.cpp", []string{"-Idom", "-Ixpcom"})
//	if err != nil { ... }
//	fmt.Print(res.Output)
//
// # Annotations
//
// The derive.h convenience macro
//
//	#define DERIVE(clazz, ...) \
//	  __attribute__((annotate("DERIVE=" #__VA_ARGS__))) \
//	  typedef clazz __ ## clazz ## _derive_marker;
//
// produces the marker shape Discover expects. A name with no registered
// generator is reported as a [Diagnostic] and skipped. A marker that does not
// resolve to a class definition fails the run with a [ResolutionError].
//
// # Caching
//
// With [WithStore], a run whose source file, arguments, generators and
// configuration fingerprint match a recorded run, and whose files are all
// unchanged on disk, returns the recorded output without parsing.
package cderive
