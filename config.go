package sqlkit

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the builder's tunables. Zero values fall back to the defaults
// below, so a partially filled Config is always usable.
type Config struct {
	// DisableValidation turns off the ceiling checks below. The zero value
	// keeps them on, so a partial Config never loses validation by
	// accident. Compilation errors (a missing FROM and the like) are
	// raised regardless.
	DisableValidation bool `mapstructure:"disable_validation"`

	MaxQueryCache      int `mapstructure:"max_query_cache"`
	MaxWhereConditions int `mapstructure:"max_where_conditions"`
	MaxJoins           int `mapstructure:"max_joins"`
	MaxSelectFields    int `mapstructure:"max_select_fields"`
	MaxGroupByFields   int `mapstructure:"max_group_by_fields"`
	MaxOrderByFields   int `mapstructure:"max_order_by_fields"`

	QueryTimeout time.Duration `mapstructure:"query_timeout"`

	// Schema is the default schema for unqualified table names. Postgres
	// only; the MySQL family ignores it.
	Schema string `mapstructure:"schema"`
}

// DefaultConfig returns a Config with every knob at its documented default.
func DefaultConfig() *Config {
	return &Config{
		MaxQueryCache:      50,
		MaxWhereConditions: 50,
		MaxJoins:           20,
		MaxSelectFields:    100,
		MaxGroupByFields:   20,
		MaxOrderByFields:   10,
		QueryTimeout:       30 * time.Second,
		Schema:             "public",
	}
}

// withDefaults fills unset fields in from the defaults. A nil receiver yields
// the full default set.
func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.MaxQueryCache == 0 {
		out.MaxQueryCache = def.MaxQueryCache
	}
	if out.MaxWhereConditions == 0 {
		out.MaxWhereConditions = def.MaxWhereConditions
	}
	if out.MaxJoins == 0 {
		out.MaxJoins = def.MaxJoins
	}
	if out.MaxSelectFields == 0 {
		out.MaxSelectFields = def.MaxSelectFields
	}
	if out.MaxGroupByFields == 0 {
		out.MaxGroupByFields = def.MaxGroupByFields
	}
	if out.MaxOrderByFields == 0 {
		out.MaxOrderByFields = def.MaxOrderByFields
	}
	if out.QueryTimeout == 0 {
		out.QueryTimeout = def.QueryTimeout
	}
	if out.Schema == "" {
		out.Schema = def.Schema
	}
	return &out
}

// LoadConfig reads a Config from a YAML, JSON or TOML file. Keys missing from
// the file keep their defaults; unknown keys are ignored.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	def := DefaultConfig()
	v.SetDefault("disable_validation", def.DisableValidation)
	v.SetDefault("max_query_cache", def.MaxQueryCache)
	v.SetDefault("max_where_conditions", def.MaxWhereConditions)
	v.SetDefault("max_joins", def.MaxJoins)
	v.SetDefault("max_select_fields", def.MaxSelectFields)
	v.SetDefault("max_group_by_fields", def.MaxGroupByFields)
	v.SetDefault("max_order_by_fields", def.MaxOrderByFields)
	v.SetDefault("query_timeout", def.QueryTimeout)
	v.SetDefault("schema", def.Schema)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg.withDefaults(), nil
}
