package file

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/component"
	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/datatype"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/port"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
	"github.com/OpenRTM/RTM-Tutorial-sub001/rtm"
)

func TestFileSink_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "in", config.Port)
	assert.Equal(t, "jsonl", config.Format)
	assert.True(t, config.Append)
	assert.NoError(t, config.Validate())
}

func TestFileSink_ConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no port", func(c *Config) { c.Port = "" }},
		{"no directory", func(c *Config) { c.Directory = "" }},
		{"raw format", func(c *Config) { c.Format = "raw" }},
		{"negative buffer", func(c *Config) { c.BufferSize = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.True(t, errors.IsInvalid(cfg.Validate()))
		})
	}
}

func TestFileSink_RecordsSamples(t *testing.T) {
	rt, err := rtm.New(rtm.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), rtm.WithPoolSize(2))
	require.NoError(t, err)
	defer rt.Shutdown(context.Background())
	require.NoError(t, Register(rt.Components()))

	dir := t.TempDir()
	raw, err := json.Marshal(Config{Port: "in", Directory: dir, FilePrefix: "test", Format: "jsonl", BufferSize: 2})
	require.NoError(t, err)

	c, err := rt.CreateComponent(TypeName, "sink0", raw)
	require.NoError(t, err)
	assert.Equal(t, component.StateInactive, c.State())

	p, ok := c.Port("in")
	require.True(t, ok)
	in := p.(*port.InPort[datatype.TimedLong])
	out := port.NewOutPort[datatype.TimedLong]("out", rt.PortDeps())
	info, err := port.Connect("to-sink", out, in, properties.FromMap(map[string]string{
		dataport.KeyInterfaceType: dataport.InterfaceDirect,
	}))
	require.NoError(t, err)
	defer port.Disconnect(info.ID, out, in)

	require.NoError(t, c.Activate())
	for _, v := range []int32{1, 2, 3} {
		require.Equal(t, dataport.PortOK, out.Write(datatype.TimedLong{Tm: datatype.Now(), Data: v}))
	}
	require.NoError(t, c.Execute())
	require.NoError(t, c.Deactivate())

	f, err := os.Open(dir + "/test.jsonl")
	require.NoError(t, err)
	defer f.Close()

	var got []int32
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		got = append(got, r.Data)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []int32{1, 2, 3}, got)
}
