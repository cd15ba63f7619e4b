package component

import (
	"log/slog"

	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
	"github.com/OpenRTM/RTM-Tutorial-sub001/natsclient"
	"github.com/OpenRTM/RTM-Tutorial-sub001/port"
	"github.com/OpenRTM/RTM-Tutorial-sub001/timer"
)

// Dependencies is what the runtime hands every Factory. Only Ports is
// required; the rest may be zero.
type Dependencies struct {
	Ports           port.Deps
	Timer           *timer.Timer
	NATSClient      *natsclient.Client // publishes lifecycle logs when set
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
	Instance        string // runtime instance name
}

// Log returns Logger, falling back to slog.Default
func (d *Dependencies) Log() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// ComponentLogger tags Log with the component instance name
func (d *Dependencies) ComponentLogger(instance string) *slog.Logger {
	return d.Log().With("component", instance)
}
