package relation

import (
	"fmt"
	"sort"

	"github.com/go-viper/mapstructure/v2"
)

// Options is the per-attribute nested relation configuration. A relation declared as
// plain `true` gets the zero value.
type Options struct {
	LinkOnly       bool   `mapstructure:"link-only"`
	UpdateOnly     bool   `mapstructure:"update-only"`
	Updater        string `mapstructure:"updater"`
	Method         string `mapstructure:"method"`
	Detach         *bool  `mapstructure:"detach"`
	DeleteDetached bool   `mapstructure:"delete-detached"`
	Validator      string `mapstructure:"validator"`
	Rules          string `mapstructure:"rules"`
	RulesMethod    string `mapstructure:"rules-method"`
}

// ParseOptions decodes a raw configuration value: true means a relation with
// defaults, false or nil means no relation, and a map is decoded into Options.
func ParseOptions(raw interface{}) (*Options, bool, error) {
	switch v := raw.(type) {
	case nil:
		return nil, false, nil
	case bool:
		if !v {
			return nil, false, nil
		}
		return &Options{}, true, nil
	case map[string]interface{}, map[interface{}]interface{}:
		opts := &Options{}
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           opts,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		})
		if err != nil {
			return nil, false, err
		}
		if err := decoder.Decode(v); err != nil {
			return nil, false, fmt.Errorf("invalid nested relation options: %w", err)
		}
		return opts, true, nil
	default:
		return nil, false, fmt.Errorf("nested relation options must be true or a map, got %T", raw)
	}
}

// Config provides the nested relation configuration of every resource
type Config interface {
	// Lookup returns the options for an attribute of a resource, or false if the
	// attribute is not a nested relation
	Lookup(resource, key string) (*Options, bool)
	// Keys returns the configured attributes of a resource in sorted order
	Keys(resource string) []string
}

// MapConfig is a Config held in memory, keyed by resource then attribute
type MapConfig map[string]map[string]*Options

// Set declares an attribute of a resource as a nested relation
func (c MapConfig) Set(resource, key string, opts *Options) {
	if opts == nil {
		opts = &Options{}
	}
	if c[resource] == nil {
		c[resource] = make(map[string]*Options)
	}
	c[resource][key] = opts
}

// Lookup implements Config
func (c MapConfig) Lookup(resource, key string) (*Options, bool) {
	opts, ok := c[resource][key]
	return opts, ok
}

// Keys implements Config
func (c MapConfig) Keys(resource string) []string {
	keys := make([]string, 0, len(c[resource]))
	for key := range c[resource] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
