package component

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSubject(t *testing.T) {
	assert.Equal(t, "rtc.logs.host1.sensor", LogSubject("host1", "sensor"))
}

func TestNewLogger_WithoutNATS(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("sensor", "host1", nil, slog.New(slog.NewTextHandler(&buf, nil)))
	assert.Nil(t, l.nc)

	l.Info("ready", StateInactive)
	l.Error("failed", StateError, errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "msg=ready")
	assert.Contains(t, out, "state=INACTIVATE")
	assert.Contains(t, out, "error=boom")
	assert.Contains(t, out, "component=sensor")
}

func TestNewLogger_DefaultsLogger(t *testing.T) {
	l := NewLogger("sensor", "", nil, nil)
	require.NotNil(t, l.logger)
	l.Debug("quiet", StateCreated)
}
