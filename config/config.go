package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/tlsutil"
)

var validate = validator.New()

// ComponentConfigs holds component instance configurations keyed by instance name
type ComponentConfigs map[string]ComponentConfig

// Config represents the complete host configuration
type Config struct {
	Version           string                   `json:"version"            mapstructure:"version"`
	Platform          PlatformConfig           `json:"platform"           mapstructure:"platform"`
	NATS              NATSConfig               `json:"nats"               mapstructure:"nats"`
	Runtime           RuntimeConfig            `json:"runtime"            mapstructure:"runtime"`
	Metrics           MetricsConfig            `json:"metrics"            mapstructure:"metrics"`
	Health            HealthConfig             `json:"health"             mapstructure:"health"`
	Components        ComponentConfigs         `json:"components"         mapstructure:"components"         validate:"dive"`
	ExecutionContexts []ExecutionContextConfig `json:"execution_contexts" mapstructure:"execution_contexts" validate:"dive"`
	Connections       []ConnectionConfig       `json:"connections"        mapstructure:"connections"        validate:"dive"`
}

// PlatformConfig identifies the host
type PlatformConfig struct {
	Instance    string `json:"instance"              mapstructure:"instance"              validate:"required"`
	Environment string `json:"environment,omitempty" mapstructure:"environment"`
}

// NATSConfig defines NATS connection settings. No URLs means no NATS.
type NATSConfig struct {
	URLs          []string      `json:"urls,omitempty"     mapstructure:"urls"`
	MaxReconnects int           `json:"max_reconnects"     mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `json:"reconnect_wait"     mapstructure:"reconnect_wait"     validate:"gte=0"`
	// Zero keeps the client defaults (30s ping, 5s request, 30s drain)
	PingInterval   time.Duration `json:"ping_interval,omitempty"   mapstructure:"ping_interval"   validate:"gte=0"`
	RequestTimeout time.Duration `json:"request_timeout,omitempty" mapstructure:"request_timeout" validate:"gte=0"`
	DrainTimeout   time.Duration `json:"drain_timeout,omitempty"   mapstructure:"drain_timeout"   validate:"gte=0"`
	Username      string        `json:"username,omitempty" mapstructure:"username"`
	Password      string        `json:"password,omitempty" mapstructure:"password"`
	Token         string        `json:"token,omitempty"    mapstructure:"token"`

	TLS tlsutil.ClientConfig `json:"tls" mapstructure:"tls"`
}

// Enabled reports whether a NATS server is configured
func (n NATSConfig) Enabled() bool { return len(n.URLs) > 0 }

// RuntimeConfig tunes the port runtime
type RuntimeConfig struct {
	PoolSize          int           `json:"pool_size"                    mapstructure:"pool_size"                    validate:"gte=1"`
	TickInterval      time.Duration `json:"tick_interval"                mapstructure:"tick_interval"                validate:"gt=0"`
	RPCPrefix         string        `json:"rpc_prefix"                   mapstructure:"rpc_prefix"                   validate:"required"`
	WebsocketEndpoint string        `json:"websocket_endpoint,omitempty" mapstructure:"websocket_endpoint"`
	ProfileBucket     string        `json:"profile_bucket,omitempty"     mapstructure:"profile_bucket"`
	PubSubWorkers     int           `json:"pubsub_workers"               mapstructure:"pubsub_workers"               validate:"gte=1"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Port    int    `json:"port"    mapstructure:"port"    validate:"gte=0,lte=65535"`
	Path    string `json:"path"    mapstructure:"path"`
}

// HealthConfig controls the liveness and readiness endpoints
type HealthConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	Port    int  `json:"port"    mapstructure:"port"    validate:"gte=0,lte=65535"`

	TLS tlsutil.ServerConfig `json:"tls" mapstructure:"tls"`
}

// ComponentConfig describes one component instance
type ComponentConfig struct {
	Type    string          `json:"type"             mapstructure:"type"             validate:"required"`
	Enabled bool            `json:"enabled"          mapstructure:"enabled"`
	Config  json.RawMessage `json:"config,omitempty" mapstructure:"config"`
}

// ExecutionContextConfig describes one periodic execution context and the
// components it drives, in execution order
type ExecutionContextConfig struct {
	Rate       float64  `json:"rate"       mapstructure:"rate"       validate:"gt=0"`
	Components []string `json:"components" mapstructure:"components" validate:"dive,required"`
}

// ConnectionConfig connects an out-port to an in-port. Ports are named
// "<component>.<port>".
type ConnectionConfig struct {
	Name       string            `json:"name"                 mapstructure:"name"                 validate:"required"`
	From       string            `json:"from"                 mapstructure:"from"                 validate:"required"`
	To         string            `json:"to"                   mapstructure:"to"                   validate:"required"`
	Properties map[string]string `json:"properties,omitempty" mapstructure:"properties"`
}

// Endpoints splits From and To into component and port names
func (c ConnectionConfig) Endpoints() (fromComp, fromPort, toComp, toPort string, err error) {
	var ok bool
	if fromComp, fromPort, ok = splitPortRef(c.From); !ok {
		return "", "", "", "", fmt.Errorf("connection %s: from %q is not <component>.<port>", c.Name, c.From)
	}
	if toComp, toPort, ok = splitPortRef(c.To); !ok {
		return "", "", "", "", fmt.Errorf("connection %s: to %q is not <component>.<port>", c.Name, c.To)
	}
	return fromComp, fromPort, toComp, toPort, nil
}

// splitPortRef splits at the last dot so component names may contain dots
func splitPortRef(ref string) (string, string, bool) {
	i := strings.LastIndexByte(ref, '.')
	if i <= 0 || i == len(ref)-1 {
		return "", "", false
	}
	return ref[:i], ref[i+1:], true
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{
		config: cfg,
	}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically updates the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "nil config")
	}

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "SafeConfig", "Update", "config validation")
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	// JSON round trip for a deep copy
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}

	return &clone
}

// Validate checks field constraints and that connections and execution
// contexts only name enabled components
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "struct validation")
	}

	if !isValidNATSSubjectPart(c.Platform.Instance) {
		return errors.WrapInvalid(
			fmt.Errorf("platform.instance %q is not valid for NATS subjects", c.Platform.Instance),
			"Config", "Validate", "instance check")
	}

	enabled := func(name string) error {
		cc, ok := c.Components[name]
		if !ok {
			return fmt.Errorf("unknown component %q", name)
		}
		if !cc.Enabled {
			return fmt.Errorf("component %q is disabled", name)
		}
		return nil
	}

	if c.Metrics.Enabled && c.Metrics.Port == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "metrics.port")
	}
	if c.Health.Enabled && c.Health.Port == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "health.port")
	}
	if err := c.NATS.TLS.Validate(); err != nil {
		return errors.Wrap(err, "Config", "Validate", "nats.tls")
	}
	if err := c.Health.TLS.Validate(); err != nil {
		return errors.Wrap(err, "Config", "Validate", "health.tls")
	}

	for name := range c.Components {
		if name == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "empty component name")
		}
	}

	seen := make(map[string]int)
	for i, ec := range c.ExecutionContexts {
		for _, name := range ec.Components {
			if err := enabled(name); err != nil {
				return errors.WrapInvalid(err, "Config", "Validate", fmt.Sprintf("execution_contexts[%d]", i))
			}
			if prev, dup := seen[name]; dup {
				return errors.WrapInvalid(
					fmt.Errorf("component %q is already in execution_contexts[%d]", name, prev),
					"Config", "Validate", fmt.Sprintf("execution_contexts[%d]", i))
			}
			seen[name] = i
		}
	}

	names := make(map[string]bool)
	for _, conn := range c.Connections {
		if names[conn.Name] {
			return errors.WrapInvalid(errors.ErrDuplicateName, "Config", "Validate",
				fmt.Sprintf("connection %s", conn.Name))
		}
		names[conn.Name] = true

		fromComp, _, toComp, _, err := conn.Endpoints()
		if err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", "connection endpoints")
		}
		for _, name := range []string{fromComp, toComp} {
			if err := enabled(name); err != nil {
				return errors.WrapInvalid(err, "Config", "Validate", fmt.Sprintf("connection %s", conn.Name))
			}
		}
	}
	return nil
}

// isValidNATSSubjectPart checks if a string is valid for use in NATS subjects.
// Valid characters are alphanumeric, dashes, and underscores.
func isValidNATSSubjectPart(s string) bool {
	if len(s) == 0 {
		return false
	}

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// String renders the configuration as indented JSON
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// CompareVersions compares two semantic versions, returning -1, 0 or 1
func CompareVersions(v1, v2 string) (int, error) {
	a, err := parseSemVer(v1)
	if err != nil {
		return 0, fmt.Errorf("invalid version '%s': %w", v1, err)
	}
	b, err := parseSemVer(v2)
	if err != nil {
		return 0, fmt.Errorf("invalid version '%s': %w", v2, err)
	}

	for i := range a {
		switch {
		case a[i] > b[i]:
			return 1, nil
		case a[i] < b[i]:
			return -1, nil
		}
	}
	return 0, nil
}

func parseSemVer(version string) ([3]int, error) {
	var out [3]int
	if version == "" {
		return out, fmt.Errorf("version cannot be empty")
	}

	parts := strings.Split(strings.TrimPrefix(version, "v"), ".")
	if len(parts) != 3 {
		return out, fmt.Errorf("version must be in format 'major.minor.patch', got '%s'", version)
	}

	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return out, fmt.Errorf("invalid version part '%s': %w", p, err)
		}
		out[i] = n
	}
	return out, nil
}
