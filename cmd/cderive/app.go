package main

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jward/cderive"
	"github.com/jward/cderive/internal/cc"
	"github.com/jward/cderive/internal/config"
	"github.com/jward/cderive/internal/frontend"
	"github.com/jward/cderive/internal/logger"
	"github.com/jward/cderive/internal/runtime"
	"github.com/jward/cderive/internal/store"
	"github.com/jward/cderive/scripts"
)

// Generator sources shown by `cderive generators`.
const (
	sourceBuiltin  = "builtin"
	sourceEmbedded = "embedded"
)

// fingerprintKey is the store metadata key holding the fingerprint of the
// last configuration that used the cache.
const fingerprintKey = "fingerprint"

// app is everything one command invocation needs, built from config and
// flags.
type app struct {
	cfg      *config.Config
	log      *zap.SugaredLogger
	frontend *frontend.Frontend
	analyzer *cc.Analyzer
	deriver  *cderive.Deriver
	store    *store.Store

	// sources maps generator names to where they came from.
	sources map[string]string
	// frontendArgs come from frontend.args and precede command line args.
	frontendArgs []string
}

type namedGenerator struct {
	name   string
	gen    cderive.Generator
	source string
}

// loadConfig reads the config file, environment and flags, flags winning.
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	v := config.NewViper()
	for key, name := range map[string]string{
		"frontend.strict": "strict",
		"run.keep_going":  "keep-going",
		"log.level":       "log-level",
		"log.json":        "log-json",
	} {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return nil, fmt.Errorf("binding --%s: %w", name, err)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	cfg, err := config.LoadViper(v, f.config, cwd)
	if err != nil {
		return nil, err
	}

	if f.timeout != "" {
		d, err := time.ParseDuration(f.timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid --timeout %q: %w", f.timeout, err)
		}
		cfg.Run.TimeoutSeconds = int((d + time.Second - 1) / time.Second)
	}
	if f.noCache {
		cfg.Cache.Enabled = false
	}
	return cfg, nil
}

// newApp wires the front end, the generators and the cache.
func newApp(cmd *cobra.Command, f *flags) (*app, error) {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, Output: cmd.ErrOrStderr()})
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	if cfg.Source != "" {
		log.Debugw("Loaded config", logger.FieldPath, cfg.Source)
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		sources: make(map[string]string),
	}
	if a.frontendArgs, err = cfg.FrontendArgs(); err != nil {
		return nil, err
	}

	a.frontend = frontend.New(
		frontend.WithLogger(log.Named(logger.NameFrontend)),
		frontend.WithStrict(cfg.Frontend.Strict),
		frontend.WithMacroExpansion(cfg.Frontend.ExpandMacros),
		frontend.WithIncludeDirs(cfg.Frontend.IncludeDirs...),
	)
	a.analyzer = cc.NewAnalyzer(cfg.Conventions(), log.Named(logger.NameCC))

	gens, fingerprint, err := a.generators()
	if err != nil {
		return nil, err
	}

	opts := []cderive.Option{
		cderive.WithLogger(log.Named(logger.NameDeriver)),
		cderive.WithTimeout(cfg.Timeout()),
		cderive.WithKeepGoing(cfg.Run.KeepGoing),
	}
	if cfg.Cache.Enabled {
		if s := a.openStore(fingerprint); s != nil {
			a.store = s
			opts = append(opts,
				cderive.WithStore(s, fingerprint),
				cderive.WithRunHistory(cfg.Cache.KeepRuns))
		}
	}

	a.deriver = cderive.New(a.frontend, opts...)
	for _, g := range gens {
		if prev, ok := a.sources[g.name]; ok {
			a.log.Infow("Generator overridden", logger.FieldGenerator, g.name, "previous", prev, "source", g.source)
		}
		// Later sources deliberately rebind earlier names.
		a.deriver.Replace(g.name, g.gen)
		a.sources[g.name] = g.source
	}
	return a, nil
}

// generators collects the built-in cycle collection generator, the embedded
// scripts and the scripts in scripts.dir, in that order. The fingerprint
// covers the configuration and every script, so editing either invalidates
// cached runs.
func (a *app) generators() ([]namedGenerator, string, error) {
	gens := []namedGenerator{{cc.GeneratorName, cc.NewGenerator(a.analyzer), sourceBuiltin}}

	h := sha256.New()
	cfgPrint, err := a.cfg.Fingerprint()
	if err != nil {
		return nil, "", err
	}
	h.Write([]byte(cfgPrint))

	rlog := a.log.Named(logger.NameRuntime)
	embedded, err := fs.Sub(scripts.FS, "generators")
	if err != nil {
		return nil, "", fmt.Errorf("opening embedded scripts: %w", err)
	}
	runtimes := map[string]*runtime.Runtime{
		sourceEmbedded: runtime.NewRuntime("", runtime.WithRuntimeFS(embedded), runtime.WithRuntimeLogger(rlog)),
	}
	order := []string{sourceEmbedded}
	if dir := a.cfg.Scripts.Dir; dir != "" {
		runtimes[dir] = runtime.NewRuntime(dir, runtime.WithRuntimeLogger(rlog))
		order = append(order, dir)
	}

	for _, source := range order {
		rt := runtimes[source]
		scriptGens, err := rt.Generators()
		if err != nil {
			return nil, "", err
		}
		for _, g := range scriptGens {
			gens = append(gens, namedGenerator{g.Name(), g, source})
		}
		fp, err := rt.Fingerprint()
		if err != nil {
			return nil, "", err
		}
		h.Write([]byte(fp))
	}
	return gens, fmt.Sprintf("%x", h.Sum(nil)), nil
}

// openStore opens the generation cache. A cache that cannot be opened is
// logged and skipped; it never fails a run.
func (a *app) openStore(fingerprint string) *store.Store {
	path, err := a.cfg.CachePath()
	if err == nil {
		err = os.MkdirAll(filepath.Dir(path), 0o755)
	}
	var s *store.Store
	if err == nil {
		s, err = store.NewStore(path)
	}
	if err == nil {
		if err = s.Migrate(); err != nil {
			s.Close()
		}
	}
	if err != nil {
		a.log.Warnw("Cache disabled", logger.FieldPath, path, logger.FieldError, err)
		return nil
	}

	prev, err := s.GetMetadata(fingerprintKey)
	if err != nil {
		a.log.Warnw("Reading cache metadata failed", logger.FieldError, err)
	} else if prev != fingerprint {
		if prev != "" {
			a.log.Infow("Generator configuration changed, cached runs will not be reused", logger.FieldPath, path)
		}
		if err := s.SetMetadata(fingerprintKey, fingerprint); err != nil {
			a.log.Warnw("Recording fingerprint failed", logger.FieldError, err)
		}
	}
	return s
}

// Close releases the cache.
func (a *app) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// args joins configured and command line compiler arguments, dropping
// warning flags.
func (a *app) args(cmdline []string) []string {
	return filterArgs(append(append([]string{}, a.frontendArgs...), cmdline...))
}
