package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/conduit-lang/nestwrite/internal/nested"
	"github.com/conduit-lang/nestwrite/internal/nested/relation"
	"github.com/conduit-lang/nestwrite/internal/nested/rules"
	"github.com/conduit-lang/nestwrite/internal/orm/schema"
	"github.com/conduit-lang/nestwrite/internal/orm/transaction"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. NESTWRITE_DATABASE_URL
const EnvPrefix = "NESTWRITE"

// Config represents the nestwrite configuration. It is loaded once and never
// modified afterwards.
type Config struct {
	Database  DatabaseConfig   `mapstructure:"database"`
	Server    ServerConfig     `mapstructure:"server"`
	Nested    NestedConfig     `mapstructure:"nested"`
	Resources []ResourceConfig `mapstructure:"resources"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	// Driver is a database/sql driver name: sqlite3, postgres or pgx
	Driver    string `mapstructure:"driver"`
	URL       string `mapstructure:"url"`
	Isolation string `mapstructure:"isolation"`
	// Setup is an optional SQL file executed after connecting
	Setup        string `mapstructure:"setup"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// NestedConfig tunes the nested traversals
type NestedConfig struct {
	TemporaryIDAttribute string `mapstructure:"temporary_id_attribute"`
	TolerateMissingRules bool   `mapstructure:"tolerate_missing_rules"`
	ValidateBeforeWrite  bool   `mapstructure:"validate_before_write"`
}

// ResourceConfig declares a resource, which of its attributes accept nested data,
// and the rules of its direct attributes per mode
type ResourceConfig struct {
	schema.ResourceDecl `mapstructure:",squash"`

	// Nested maps an attribute to true or a map of relation options
	Nested map[string]interface{} `mapstructure:"nested"`
	// Rules maps a mode (create, update) to attribute paths and their rules
	Rules map[string]map[string]interface{} `mapstructure:"rules"`
}

var drivers = map[string]bool{
	"sqlite3":  true,
	"postgres": true,
	"pgx":      true,
}

// Load loads the configuration from path, or from nestwrite.yaml in the working
// directory when path is empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.url", ":memory:")
	v.SetDefault("database.isolation", "")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("nested.temporary_id_attribute", nested.DefaultTempIDAttribute)
	v.SetDefault("nested.tolerate_missing_rules", false)
	v.SetDefault("nested.validate_before_write", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("nestwrite")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	// setup files are relative to the config file
	if used := v.ConfigFileUsed(); used != "" && config.Database.Setup != "" && !filepath.IsAbs(config.Database.Setup) {
		config.Database.Setup = filepath.Join(filepath.Dir(used), config.Database.Setup)
	}

	return &config, nil
}

// Address returns the host:port the server listens on
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// NestedOptions returns the options shared by both traversals
func (c *Config) NestedOptions() nested.Options {
	return nested.Options{
		TempIDAttribute:      c.Nested.TemporaryIDAttribute,
		TolerateMissingRules: c.Nested.TolerateMissingRules,
	}.WithDefaults()
}

// IsolationLevel returns the configured isolation level, or false for the driver
// default
func (c *Config) IsolationLevel() (transaction.IsolationLevel, bool) {
	if c.Database.Isolation == "" {
		return transaction.ReadCommitted, false
	}
	level, _ := transaction.ParseIsolationLevel(c.Database.Isolation)
	return level, true
}

// Schemas builds and validates the resource registry
func (c *Config) Schemas() (*schema.Registry, error) {
	decls := make([]schema.ResourceDecl, len(c.Resources))
	for i, res := range c.Resources {
		decls[i] = res.ResourceDecl
	}

	registry := schema.NewRegistry()
	if err := registry.Load(decls); err != nil {
		return nil, fmt.Errorf("invalid resources: %w", err)
	}
	return registry, nil
}

// Relations builds the nested relation configuration
func (c *Config) Relations() (relation.MapConfig, error) {
	out := relation.MapConfig{}
	for _, res := range c.Resources {
		for attr, raw := range res.Nested {
			opts, ok, err := relation.ParseOptions(raw)
			if err != nil {
				return nil, fmt.Errorf("resources.%s.nested.%s: %w", res.Name, attr, err)
			}
			if ok {
				out.Set(res.Name, attr, opts)
			}
		}
	}
	return out, nil
}

// Providers builds the rules providers. Every resource declaring rules gets a
// provider under its own name.
func (c *Config) Providers() (*rules.Providers, error) {
	providers := rules.NewProviders()
	for _, res := range c.Resources {
		if res.Rules == nil {
			continue
		}
		modes := make(map[rules.Mode]rules.RuleMap, len(res.Rules))
		for mode, raw := range res.Rules {
			m := rules.Mode(mode)
			if m != rules.ModeCreate && m != rules.ModeUpdate {
				return nil, fmt.Errorf("resources.%s.rules: unknown mode %q", res.Name, mode)
			}
			ruleMap, err := rules.ParseRuleMap(raw)
			if err != nil {
				return nil, fmt.Errorf("resources.%s.rules.%s: %w", res.Name, mode, err)
			}
			modes[m] = ruleMap
		}
		providers.RegisterModes(res.Name, modes)
	}
	return providers, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if !drivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be one of sqlite3, postgres, pgx, got: %s", cfg.Database.Driver)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if _, err := transaction.ParseIsolationLevel(cfg.Database.Isolation); err != nil {
		return fmt.Errorf("database.isolation: %w", err)
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got: %d", cfg.Server.Port)
	}
	if cfg.Nested.TemporaryIDAttribute == "" {
		return fmt.Errorf("nested.temporary_id_attribute must not be empty")
	}

	seen := make(map[string]bool)
	for i, res := range cfg.Resources {
		if res.Name == "" {
			return fmt.Errorf("resources[%d] is missing a name", i)
		}
		if seen[res.Name] {
			return fmt.Errorf("resource %s is declared twice", res.Name)
		}
		seen[res.Name] = true
	}
	return nil
}
