package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. WITHJOIN_DATABASE_DSN.
const EnvPrefix = "WITHJOIN"

// Load loads configuration with the following precedence:
// 1. Environment variables
// 2. Config file (path, or with-join.yaml in the working directory)
// 3. Default values
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("with-join")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return unmarshal(v)
}

// FromViper decodes configuration from an existing viper instance after
// applying defaults and environment variables.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	// Canonical keys: dot + snake_case
	// Env vars: WITHJOIN_SCHEMA_CACHE_TTL
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// Map-valued keys have no flattened default, so bind them explicitly.
	_ = v.BindEnv("naming.plural_overrides")
	_ = v.BindEnv("naming.singular_overrides")

	return decode(v)
}

// Default returns the built-in defaults without reading a file or the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToStringMapHookFunc(",", "="),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.schema", "")
	v.SetDefault("database.instrument", false)
	v.SetDefault("database.pool.max_open", 0)
	v.SetDefault("database.pool.max_idle", 0)
	v.SetDefault("database.pool.max_lifetime", time.Duration(0))

	v.SetDefault("schema_cache.ttl", 24*time.Hour)
	v.SetDefault("schema_cache.size", 1024)

	v.SetDefault("joins.strict", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("observability.metrics_enabled", true)

	v.SetDefault("naming.primary_key", "id")
	v.SetDefault("naming.plural_overrides", map[string]string{})
	v.SetDefault("naming.singular_overrides", map[string]string{})
}

// stringToStringMapHookFunc decodes "person=people,status=statuses" from env vars.
func stringToStringMapHookFunc(pairSep, kvSep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(map[string]string{}) {
			return data, nil
		}

		out := map[string]string{}
		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return out, nil
		}
		for _, pair := range strings.Split(raw, pairSep) {
			key, value, ok := strings.Cut(pair, kvSep)
			if !ok {
				return nil, fmt.Errorf("invalid map entry %q, expected key%svalue", pair, kvSep)
			}
			out[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
		return out, nil
	}
}
