// Package config loads cderive settings from .cderive.toml, CDERIVE_*
// environment variables and defaults, in rising precedence below flags.
package config

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jward/cderive/internal/cc"
)

// FileName is the project config file searched for from the working
// directory upward.
const FileName = ".cderive.toml"

// EnvPrefix prefixes environment overrides: CDERIVE_RUN_KEEP_GOING=true.
const EnvPrefix = "CDERIVE"

// Config is the full cderive configuration.
type Config struct {
	CycleCollection CycleCollectionConfig `mapstructure:"cycle_collection" yaml:"cycle_collection"`
	Frontend        FrontendConfig        `mapstructure:"frontend" yaml:"frontend"`
	Scripts         ScriptsConfig         `mapstructure:"scripts" yaml:"scripts"`
	Cache           CacheConfig           `mapstructure:"cache" yaml:"cache"`
	Run             RunConfig             `mapstructure:"run" yaml:"run"`
	Log             LogConfig             `mapstructure:"log" yaml:"log"`

	// Source is the config file read, empty when none was found.
	Source string `mapstructure:"-" yaml:"-"`
}

// CycleCollectionConfig mirrors cc.Config.
type CycleCollectionConfig struct {
	SmartPointers    []string `mapstructure:"smart_pointers" yaml:"smart_pointers"`
	Containers       []string `mapstructure:"containers" yaml:"containers"`
	RefCntType       string   `mapstructure:"refcnt_type" yaml:"refcnt_type"`
	RefCntField      string   `mapstructure:"refcnt_field" yaml:"refcnt_field"`
	ParticipantClass string   `mapstructure:"participant_class" yaml:"participant_class"`
	SupportsBase     string   `mapstructure:"supports_base" yaml:"supports_base"`
	MaxBaseDepth     int      `mapstructure:"max_base_depth" yaml:"max_base_depth"`
}

// FrontendConfig configures the tree-sitter front end.
type FrontendConfig struct {
	// Args is a shell-quoted string of compiler arguments placed before
	// those given on the command line.
	Args         string   `mapstructure:"args" yaml:"args"`
	IncludeDirs  []string `mapstructure:"include_dirs" yaml:"include_dirs"`
	Strict       bool     `mapstructure:"strict" yaml:"strict"`
	ExpandMacros bool     `mapstructure:"expand_macros" yaml:"expand_macros"`
}

// ScriptsConfig locates user Risor generators.
type ScriptsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// CacheConfig configures the sqlite generation cache.
type CacheConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Path     string `mapstructure:"path" yaml:"path"`
	KeepRuns int    `mapstructure:"keep_runs" yaml:"keep_runs"`
}

// RunConfig holds run controls.
type RunConfig struct {
	TimeoutSeconds int  `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	KeepGoing      bool `mapstructure:"keep_going" yaml:"keep_going"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// Load reads configuration. An explicit path must exist; otherwise
// .cderive.toml is searched for from startDir upward and is optional.
func Load(path, startDir string) (*Config, error) {
	return LoadViper(NewViper(), path, startDir)
}

// LoadViper is Load on a caller's Viper, so command line flags bound to it
// take precedence over the file and the environment.
func LoadViper(v *viper.Viper, path, startDir string) (*Config, error) {
	if path == "" {
		path = FindProjectConfig(startDir)
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}
	cfg.Source = path
	return cfg, nil
}

// NewViper returns a Viper with defaults and environment binding but no
// config file.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// FindProjectConfig walks up from dir looking for .cderive.toml. It returns
// "" when there is none.
func FindProjectConfig(dir string) string {
	if dir == "" {
		var err error
		if dir, err = os.Getwd(); err != nil {
			return ""
		}
	}
	for {
		p := filepath.Join(dir, FileName)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// FrontendArgs splits frontend.args the way a shell would.
func (c *Config) FrontendArgs() ([]string, error) {
	args, err := shellquote.Split(c.Frontend.Args)
	if err != nil {
		return nil, fmt.Errorf("config: frontend.args %q: %w", c.Frontend.Args, err)
	}
	return args, nil
}

// Conventions returns the cycle collection analysis configuration.
func (c *Config) Conventions() cc.Config {
	return cc.Config{
		SmartPointers:    c.CycleCollection.SmartPointers,
		Containers:       c.CycleCollection.Containers,
		RefCntType:       c.CycleCollection.RefCntType,
		RefCntField:      c.CycleCollection.RefCntField,
		ParticipantClass: c.CycleCollection.ParticipantClass,
		SupportsBase:     c.CycleCollection.SupportsBase,
		MaxBaseDepth:     c.CycleCollection.MaxBaseDepth,
	}
}

// Timeout is the run deadline; zero means none.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Run.TimeoutSeconds) * time.Second
}

// CachePath is cache.path, defaulting to cderive/cache.db under the user
// cache directory.
func (c *Config) CachePath() (string, error) {
	if c.Cache.Path != "" {
		return c.Cache.Path, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("config: locating user cache dir: %w", err)
	}
	return filepath.Join(dir, "cderive", "cache.db"), nil
}

// Fingerprint hashes every setting that changes generated output, so cached
// runs are not reused across configurations.
func (c *Config) Fingerprint() (string, error) {
	data, err := yaml.Marshal(struct {
		CycleCollection CycleCollectionConfig `yaml:"cycle_collection"`
		Frontend        FrontendConfig        `yaml:"frontend"`
		Scripts         ScriptsConfig         `yaml:"scripts"`
	}{c.CycleCollection, c.Frontend, c.Scripts})
	if err != nil {
		return "", fmt.Errorf("config: fingerprint: %w", err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)), nil
}
