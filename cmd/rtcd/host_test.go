package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/component"
	"github.com/OpenRTM/RTM-Tutorial-sub001/config"
	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/output/file"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func demoConfig(t *testing.T, iface string) (*config.Config, string) {
	t.Helper()
	cfg, err := config.NewLoader().Load()
	require.NoError(t, err)
	cfg.Metrics.Enabled = false
	cfg.Health.Enabled = false

	dir := t.TempDir()
	cfg.ApplyDemo(100, iface, dir)
	require.NoError(t, cfg.Validate())
	return cfg, dir
}

func readRecords(t *testing.T, path string) []int32 {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []int32
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r file.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		got = append(got, r.Data)
	}
	require.NoError(t, scanner.Err())
	return got
}

func TestHost_DemoPipeline(t *testing.T) {
	for _, iface := range []string{dataport.InterfaceDirect, dataport.InterfaceCorbaCDR} {
		t.Run(iface, func(t *testing.T) {
			cfg, dir := demoConfig(t, iface)

			h, err := newHost(context.Background(), cfg, testLogger())
			require.NoError(t, err)

			comps := h.rt.Components().Components()
			require.Len(t, comps, 3)
			for name, c := range comps {
				assert.Equal(t, component.StateActive, c.State(), name)
			}
			require.Len(t, h.ecs, 1)

			for range 3 {
				h.rt.Timer().Tick(10 * time.Millisecond)
			}

			require.NoError(t, h.shutdown(context.Background()))
			assert.Equal(t, []int32{0, 2, 4}, readRecords(t, filepath.Join(dir, "samples.jsonl")))
		})
	}
}

func TestHost_DisabledComponentIsSkipped(t *testing.T) {
	cfg, _ := demoConfig(t, dataport.InterfaceDirect)
	cfg.ExecutionContexts = nil
	cfg.Connections = nil
	sink := cfg.Components[config.DemoSink]
	sink.Enabled = false
	cfg.Components[config.DemoSink] = sink

	h, err := newHost(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer func() { require.NoError(t, h.shutdown(context.Background())) }()

	_, ok := h.rt.Components().Component(config.DemoSink)
	assert.False(t, ok)
	assert.Len(t, h.rt.Components().Components(), 2)
}

func TestHost_ConnectionErrors(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
	}{
		{"unknown component", "missing.out", config.DemoProcessor + ".in"},
		{"unknown port", config.DemoSource + ".nope", config.DemoProcessor + ".in"},
		{"reversed direction", config.DemoProcessor + ".in", config.DemoSource + ".out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, _ := demoConfig(t, dataport.InterfaceDirect)
			cfg.ExecutionContexts = nil
			cfg.Connections = nil

			h, err := newHost(context.Background(), cfg, testLogger())
			require.NoError(t, err)
			defer func() { _ = h.shutdown(context.Background()) }()

			err = h.connect(config.ConnectionConfig{Name: "bad", From: tt.from, To: tt.to})
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestHost_ApplyRates(t *testing.T) {
	cfg, _ := demoConfig(t, dataport.InterfaceDirect)
	h, err := newHost(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer func() { require.NoError(t, h.shutdown(context.Background())) }()

	h.applyRates([]config.ExecutionContextConfig{{Rate: 50, Components: cfg.ExecutionContexts[0].Components}})
	assert.Equal(t, 50.0, h.ecs[0].Rate())

	h.applyRates([]config.ExecutionContextConfig{{Rate: -1}})
	assert.Equal(t, 50.0, h.ecs[0].Rate(), "invalid rates are rejected")
}

func TestRunHost_StopsWithContext(t *testing.T) {
	cfg, dir := demoConfig(t, dataport.InterfaceDirect)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- runHost(ctx, cfg, testLogger(), 5*time.Second) }()

	path := filepath.Join(dir, "samples.jsonl")
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runHost did not return")
	}
	assert.NotEmpty(t, readRecords(t, path))
}
