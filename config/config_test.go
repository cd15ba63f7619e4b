package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
)

func validConfig() *Config {
	cfg := &Config{
		Version:  "1.0.0",
		Platform: PlatformConfig{Instance: "host1"},
		Runtime: RuntimeConfig{
			PoolSize:      4,
			TickInterval:  time.Millisecond,
			RPCPrefix:     "rtm.obj",
			PubSubWorkers: 1,
		},
		Metrics: MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"},
		Health:  HealthConfig{Enabled: true, Port: 8080},
	}
	cfg.ApplyDemo(10, "corba_cdr", "")
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing instance", func(c *Config) { c.Platform.Instance = "" }},
		{"instance with dots", func(c *Config) { c.Platform.Instance = "a.b" }},
		{"zero pool", func(c *Config) { c.Runtime.PoolSize = 0 }},
		{"zero tick", func(c *Config) { c.Runtime.TickInterval = 0 }},
		{"metrics without port", func(c *Config) { c.Metrics.Port = 0 }},
		{"port out of range", func(c *Config) { c.Health.Port = 70000 }},
		{"component without type", func(c *Config) {
			c.Components["x"] = ComponentConfig{Enabled: true}
		}},
		{"zero rate", func(c *Config) { c.ExecutionContexts[0].Rate = 0 }},
		{"unknown ec component", func(c *Config) {
			c.ExecutionContexts[0].Components = append(c.ExecutionContexts[0].Components, "ghost")
		}},
		{"component in two contexts", func(c *Config) {
			c.ExecutionContexts = append(c.ExecutionContexts, ExecutionContextConfig{Rate: 1, Components: []string{DemoSink}})
		}},
		{"disabled endpoint", func(c *Config) {
			cc := c.Components[DemoSink]
			cc.Enabled = false
			c.Components[DemoSink] = cc
		}},
		{"bad endpoint", func(c *Config) { c.Connections[0].From = "noport" }},
		{"duplicate connection", func(c *Config) { c.Connections[1].Name = c.Connections[0].Name }},
		{"nats tls cert without key", func(c *Config) {
			c.NATS.TLS.Enabled = true
			c.NATS.TLS.CertFile = "client.pem"
		}},
		{"health tls without certificate", func(c *Config) { c.Health.TLS.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.True(t, errors.IsInvalid(cfg.Validate()))
		})
	}
}

func TestConnectionConfig_Endpoints(t *testing.T) {
	c := ConnectionConfig{Name: "c", From: "robot.arm.out", To: "sink.in"}
	fc, fp, tc, tp, err := c.Endpoints()
	require.NoError(t, err)
	assert.Equal(t, []string{"robot.arm", "out", "sink", "in"}, []string{fc, fp, tc, tp})

	for _, bad := range []string{"", "out", ".out", "sink."} {
		c.To = bad
		_, _, _, _, err := c.Endpoints()
		assert.Error(t, err, bad)
	}
}

func TestApplyDemo(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDemo(20, "direct", "/tmp/out")

	assert.Len(t, cfg.Components, 3)
	require.Len(t, cfg.ExecutionContexts, 1)
	assert.Equal(t, 20.0, cfg.ExecutionContexts[0].Rate)
	assert.Equal(t, "direct", cfg.Connections[0].Properties["dataport.interface_type"])

	var sink map[string]any
	require.NoError(t, json.Unmarshal(cfg.Components[DemoSink].Config, &sink))
	assert.Equal(t, "/tmp/out", sink["directory"])

	cfg.Components = ComponentConfigs{"mine": {Type: "gain", Enabled: true}}
	cfg.ApplyDemo(20, "direct", "")
	assert.Len(t, cfg.Components, 1, "existing pipelines are kept")
}

func TestSafeConfig(t *testing.T) {
	sc := NewSafeConfig(validConfig())

	got := sc.Get()
	got.Platform.Instance = "changed"
	assert.Equal(t, "host1", sc.Get().Platform.Instance, "Get returns a copy")

	assert.True(t, errors.IsInvalid(sc.Update(nil)))
	bad := validConfig()
	bad.Runtime.PoolSize = 0
	assert.Error(t, sc.Update(bad))

	next := validConfig()
	next.Version = "1.1.0"
	require.NoError(t, sc.Update(next))
	assert.Equal(t, "1.1.0", sc.Get().Version)
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"v1.2.0", "1.1.9", 1},
		{"1.0.0", "2.0.0", -1},
		{"1.0.10", "1.0.9", 1},
	}
	for _, tt := range tests {
		got, err := CompareVersions(tt.a, tt.b)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s vs %s", tt.a, tt.b)
	}

	_, err := CompareVersions("1.0", "1.0.0")
	assert.Error(t, err)
	_, err = CompareVersions("", "1.0.0")
	assert.Error(t, err)
}
