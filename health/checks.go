package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/OpenRTM/RTM-Tutorial-sub001/component"
	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
	"github.com/OpenRTM/RTM-Tutorial-sub001/natsclient"
)

// Endpoint paths served by Checker
const (
	LivePath   = "/live"
	ReadyPath  = "/ready"
	StatusPath = "/status"
)

const checkTimeout = 2 * time.Second

type checkerOptions struct {
	registry      *metric.MetricsRegistry
	nats          *natsclient.Client
	diskPath      string
	minFreeBytes  uint64
	maxGoroutines int
	components    func() map[string]*component.Component
	system        string
}

// CheckerOption configures a Checker
type CheckerOption func(*checkerOptions)

// WithMetricsRegistry exports check results as Prometheus gauges
func WithMetricsRegistry(registry *metric.MetricsRegistry) CheckerOption {
	return func(o *checkerOptions) { o.registry = registry }
}

// WithNATS makes readiness depend on the NATS connection
func WithNATS(client *natsclient.Client) CheckerOption {
	return func(o *checkerOptions) { o.nats = client }
}

// WithDiskSpace makes readiness require minFree bytes free on the filesystem holding path
func WithDiskSpace(path string, minFree uint64) CheckerOption {
	return func(o *checkerOptions) {
		o.diskPath = path
		o.minFreeBytes = minFree
	}
}

// WithMaxGoroutines fails liveness above n goroutines
func WithMaxGoroutines(n int) CheckerOption {
	return func(o *checkerOptions) { o.maxGoroutines = n }
}

// WithComponents makes readiness fail while any listed component is in ERROR
func WithComponents(list func() map[string]*component.Component) CheckerOption {
	return func(o *checkerOptions) { o.components = list }
}

// WithSystemName names the aggregate status
func WithSystemName(name string) CheckerOption {
	return func(o *checkerOptions) { o.system = name }
}

// Checker serves liveness, readiness and an aggregate JSON status
type Checker struct {
	handler healthcheck.Handler
	monitor *Monitor
	opts    checkerOptions

	mu    sync.Mutex
	known []string
}

// NewChecker builds the checks selected by opts. Statuses recorded in
// monitor contribute to the readiness and status endpoints.
func NewChecker(monitor *Monitor, opts ...CheckerOption) *Checker {
	o := checkerOptions{maxGoroutines: 10000, system: "rtm"}
	for _, opt := range opts {
		opt(&o)
	}
	if monitor == nil {
		monitor = NewMonitor()
	}

	h := healthcheck.NewHandler()
	if o.registry != nil {
		h = healthcheck.NewMetricsHandler(o.registry.PrometheusRegistry(), "rtm")
	}
	c := &Checker{handler: h, monitor: monitor, opts: o}

	h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(o.maxGoroutines))
	if o.nats != nil {
		h.AddReadinessCheck("nats", NATSCheck(o.nats))
	}
	if o.diskPath != "" {
		h.AddReadinessCheck("disk", healthcheck.Timeout(DiskSpaceCheck(o.diskPath, o.minFreeBytes), checkTimeout))
	}
	h.AddReadinessCheck("components", c.componentsCheck)
	return c
}

// Monitor returns the status store
func (c *Checker) Monitor() *Monitor { return c.monitor }

// Handler serves the live, ready and status endpoints
func (c *Checker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(LivePath, c.handler.LiveEndpoint)
	mux.HandleFunc(ReadyPath, c.handler.ReadyEndpoint)
	mux.HandleFunc(StatusPath, c.statusEndpoint)
	return mux
}

// Status refreshes component statuses and aggregates everything monitored
func (c *Checker) Status() Status {
	c.refresh()
	return c.monitor.AggregateHealth(c.opts.system)
}

func (c *Checker) refresh() {
	if c.opts.components == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.known = c.monitor.ObserveComponents(c.opts.components(), c.known)
}

func (c *Checker) componentsCheck() error {
	agg := c.Status()
	if !agg.IsUnhealthy() {
		return nil
	}
	var bad []string
	for _, sub := range agg.SubStatuses {
		if sub.IsUnhealthy() {
			bad = append(bad, sub.Component)
		}
	}
	sort.Strings(bad)
	return fmt.Errorf("unhealthy: %s", strings.Join(bad, ", "))
}

func (c *Checker) statusEndpoint(w http.ResponseWriter, r *http.Request) {
	status := c.Status()
	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if r.Method == http.MethodHead {
		return
	}
	_ = json.NewEncoder(w).Encode(status)
}

// NATSCheck fails unless client is connected
func NATSCheck(client *natsclient.Client) healthcheck.Check {
	return func() error {
		if st := client.Status(); st != natsclient.StatusConnected {
			return fmt.Errorf("nats %s", st)
		}
		return nil
	}
}

// DiskSpaceCheck fails when the filesystem holding path has less than minFree bytes free
func DiskSpaceCheck(path string, minFree uint64) healthcheck.Check {
	return func() error {
		usage, err := disk.Usage(path)
		if err != nil {
			return fmt.Errorf("disk usage of %s: %w", path, err)
		}
		if usage.Free < minFree {
			return fmt.Errorf("%d bytes free on %s, need %d", usage.Free, path, minFree)
		}
		return nil
	}
}
