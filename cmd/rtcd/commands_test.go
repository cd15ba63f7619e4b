package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/config"
)

func validOptions() *cliOptions {
	return &cliOptions{
		LogLevel:        "info",
		LogFormat:       "json",
		ShutdownTimeout: time.Second,
		DemoRate:        10,
		DemoInterface:   "direct",
	}
}

func TestCLIOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*cliOptions)
		wantErr bool
	}{
		{"defaults", func(*cliOptions) {}, false},
		{"upper case level", func(o *cliOptions) { o.LogLevel = "DEBUG" }, false},
		{"bad level", func(o *cliOptions) { o.LogLevel = "trace" }, true},
		{"bad format", func(o *cliOptions) { o.LogFormat = "xml" }, true},
		{"zero timeout", func(o *cliOptions) { o.ShutdownTimeout = 0 }, true},
		{"negative rate", func(o *cliOptions) { o.DemoRate = -1 }, true},
		{"missing config", func(o *cliOptions) { o.ConfigPaths = []string{"/nonexistent/rtcd.json"} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validOptions()
			tt.mutate(o)
			err := o.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("unknown"))
}

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	setupLogger(&buf, "info", "json").Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, appName, line["service"])
	assert.Equal(t, Version, line["version"])
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("RTCD_TEST_LIST", "a.json,b.yaml")
	t.Setenv("RTCD_TEST_FLOAT", "2.5")
	t.Setenv("RTCD_TEST_BAD_FLOAT", "x")
	t.Setenv("RTCD_TEST_DURATION", "3s")

	assert.Equal(t, []string{"a.json", "b.yaml"}, getEnvList("RTCD_TEST_LIST", nil))
	assert.Equal(t, 2.5, getEnvFloat("RTCD_TEST_FLOAT", 1))
	assert.Equal(t, 1.0, getEnvFloat("RTCD_TEST_BAD_FLOAT", 1))
	assert.Equal(t, 3*time.Second, getEnvDuration("RTCD_TEST_DURATION", time.Second))
	assert.Equal(t, "fallback", getEnv("RTCD_TEST_UNSET", "fallback"))
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), appName+" version "+Version)
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rtcd.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"platform": {"instance": "bench"},
		"nats": {"token": "secret"}
	}`), 0o600))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"validate", "--config", path, "--demo-dir", dir, "--log-format", "text"})
	require.NoError(t, cmd.Execute())

	var cfg config.Config
	require.NoError(t, json.Unmarshal(out.Bytes(), &cfg))
	assert.Equal(t, "bench", cfg.Platform.Instance)
	assert.Equal(t, "***", cfg.NATS.Token)
	assert.Contains(t, cfg.Components, config.DemoSource)
}

func TestValidateCommand_RejectsBadFlags(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", "--log-level", "loud"})
	assert.Error(t, cmd.Execute())
}
