package config

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/rtm"
)

// DefaultEnvPrefix prefixes environment overrides, e.g. RTM_NATS_URLS
const DefaultEnvPrefix = "RTM"

// keyDelimiter separates nested viper keys. Property keys inside component
// configuration contain dots, so the default "." cannot be used.
const keyDelimiter = "::"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPrefix: DefaultEnvPrefix,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// SetEnvPrefix changes the environment override prefix
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = prefix
}

// EnableValidation makes Load validate the merged configuration
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads a single file over the defaults
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges the defaults, every layer in order and the environment
func (l *Loader) Load() (*Config, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	setDefaults(v)

	for _, path := range l.layers {
		data, err := readConfigFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "read "+path)
		}
		ct := configType(path)
		if ct == "json" {
			if err := checkJSON(data); err != nil {
				return nil, errors.WrapInvalid(err, "Loader", "Load", "JSON structure of "+path)
			}
		}
		v.SetConfigType(ct)
		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "merge "+path)
		}
	}

	v.SetEnvPrefix(l.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		rawJSONHook(),
	))); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "decode")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	key := func(parts ...string) string { return strings.Join(parts, keyDelimiter) }

	v.SetDefault(key("platform", "instance"), rtm.DefaultInstance)

	v.SetDefault(key("nats", "urls"), []string{})
	v.SetDefault(key("nats", "max_reconnects"), -1)
	v.SetDefault(key("nats", "reconnect_wait"), "2s")
	v.SetDefault(key("nats", "ping_interval"), "0s")
	v.SetDefault(key("nats", "request_timeout"), "0s")
	v.SetDefault(key("nats", "drain_timeout"), "0s")
	v.SetDefault(key("nats", "username"), "")
	v.SetDefault(key("nats", "password"), "")
	v.SetDefault(key("nats", "token"), "")
	v.SetDefault(key("nats", "tls", "enabled"), false)

	v.SetDefault(key("runtime", "pool_size"), rtm.DefaultPoolSize)
	v.SetDefault(key("runtime", "tick_interval"), rtm.DefaultTickInterval.String())
	v.SetDefault(key("runtime", "rpc_prefix"), rtm.DefaultRPCPrefix)
	v.SetDefault(key("runtime", "websocket_endpoint"), "")
	v.SetDefault(key("runtime", "profile_bucket"), "")
	v.SetDefault(key("runtime", "pubsub_workers"), 4)

	v.SetDefault(key("metrics", "enabled"), true)
	v.SetDefault(key("metrics", "port"), 9090)
	v.SetDefault(key("metrics", "path"), "/metrics")

	v.SetDefault(key("health", "enabled"), true)
	v.SetDefault(key("health", "port"), 8080)
	v.SetDefault(key("health", "tls", "enabled"), false)
}

// rawJSONHook re-encodes decoded configuration trees into json.RawMessage
// fields so component factories receive their own JSON document
func rawJSONHook() mapstructure.DecodeHookFuncType {
	raw := reflect.TypeOf(json.RawMessage{})
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != raw || data == nil {
			return data, nil
		}
		if s, ok := data.(string); ok {
			return json.RawMessage(s), nil
		}
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(b), nil
	}
}

// SaveToFile writes the configuration as JSON or YAML depending on the extension
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.WrapInvalid(err, "Config", "SaveToFile", "marshal")
	}

	if configType(path) == "yaml" {
		var tree map[string]any
		if err := json.Unmarshal(data, &tree); err != nil {
			return errors.WrapInvalid(err, "Config", "SaveToFile", "convert")
		}
		if data, err = yaml.Marshal(tree); err != nil {
			return errors.WrapInvalid(err, "Config", "SaveToFile", "marshal yaml")
		}
	}

	if err := writeConfigFile(filepath.Clean(path), data); err != nil {
		return errors.WrapTransient(err, "Config", "SaveToFile", "write")
	}
	return nil
}
