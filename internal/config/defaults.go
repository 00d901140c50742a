package config

import (
	"github.com/spf13/viper"

	"github.com/jward/cderive/internal/cc"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	conventions := cc.DefaultConfig()
	v.SetDefault("cycle_collection.smart_pointers", conventions.SmartPointers)
	v.SetDefault("cycle_collection.containers", conventions.Containers)
	v.SetDefault("cycle_collection.refcnt_type", conventions.RefCntType)
	v.SetDefault("cycle_collection.refcnt_field", conventions.RefCntField)
	v.SetDefault("cycle_collection.participant_class", conventions.ParticipantClass)
	v.SetDefault("cycle_collection.supports_base", conventions.SupportsBase)
	v.SetDefault("cycle_collection.max_base_depth", conventions.MaxBaseDepth)

	v.SetDefault("frontend.args", "")
	v.SetDefault("frontend.include_dirs", []string{})
	v.SetDefault("frontend.strict", false)
	v.SetDefault("frontend.expand_macros", true)

	v.SetDefault("scripts.dir", "") // embedded generators only

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", "") // <user cache dir>/cderive/cache.db
	v.SetDefault("cache.keep_runs", 100)

	v.SetDefault("run.timeout_seconds", 0) // no deadline
	v.SetDefault("run.keep_going", false)

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.json", false)
}
