package health

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/component"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want Level
	}{
		{"empty", nil, LevelHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, LevelHealthy},
		{"degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, LevelDegraded},
		{"unhealthy wins", []Status{NewDegraded("b", ""), NewUnhealthy("a", "")}, LevelUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("sys", tt.subs)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.want == LevelHealthy, got.Healthy)
			require.Len(t, got.SubStatuses, len(tt.subs))
			if len(tt.subs) == 2 {
				assert.Equal(t, "a", got.SubStatuses[0].Component, "sorted by name")
			}
		})
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"", ""},
		{"failed to open /etc/rtm/config.json", "failed to open [PATH]"},
		{"dial nats://10.0.0.1:4222 refused", "dial [URL] refused"},
		{"connect to 192.168.1.10 failed", "connect to [IP] failed"},
		{"auth failed password=hunter2", "auth failed [REDACTED]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeErrorMessage(tt.input), tt.input)
	}
}

func TestFromError(t *testing.T) {
	assert.True(t, FromError("x", nil).IsHealthy())
	s := FromError("x", errors.New("open /var/lib/rtm/samples.jsonl: permission denied"))
	assert.True(t, s.IsUnhealthy())
	assert.Equal(t, "open [PATH]: permission denied", s.Message)
}

type failingActivate struct{ component.NopLogic }

func (failingActivate) OnActivated(component.ECID) error { return errors.New("no device") }

func newComponent(t *testing.T, name string, logic component.Logic) *component.Component {
	t.Helper()
	c, err := component.New(name, logic, component.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	return c
}

func TestFromComponent(t *testing.T) {
	c := newComponent(t, "c", component.NopLogic{})
	assert.True(t, FromComponent(c).IsDegraded())

	require.NoError(t, c.Initialize())
	assert.True(t, FromComponent(c).IsHealthy())

	bad := newComponent(t, "bad", failingActivate{})
	require.NoError(t, bad.Initialize())
	require.Error(t, bad.Activate())
	s := FromComponent(bad)
	assert.True(t, s.IsUnhealthy())
	assert.Equal(t, "bad", s.Component)
}

func TestMonitor_ObserveComponents(t *testing.T) {
	m := NewMonitor()
	m.Update("nats", NewHealthy("", "connected"))

	a := newComponent(t, "a", component.NopLogic{})
	b := newComponent(t, "b", component.NopLogic{})
	known := m.ObserveComponents(map[string]*component.Component{"a": a, "b": b}, nil)
	assert.ElementsMatch(t, []string{"a", "b"}, known)

	known = m.ObserveComponents(map[string]*component.Component{"a": a}, known)
	assert.Equal(t, []string{"a"}, known)

	_, ok := m.Get("b")
	assert.False(t, ok, "removed components are dropped")
	s, ok := m.Get("nats")
	require.True(t, ok, "other statuses are kept")
	assert.Equal(t, "nats", s.Component)
	assert.Len(t, m.GetAll(), 2)
}
