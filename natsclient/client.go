// Package natsclient manages the NATS connection used by remote transports.
package natsclient

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
)

// ConnectionStatus is the lifecycle state of a Client
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

var statusNames = [...]string{"disconnected", "connecting", "connected", "reconnecting", "circuit_open"}

func (s ConnectionStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

var (
	// ErrNotConnected is returned by operations that need a live connection
	ErrNotConnected = stderrors.New("not connected to NATS")
	// ErrCircuitOpen is returned while repeated failures hold the breaker open
	ErrCircuitOpen = stderrors.New("circuit breaker is open")
)

// Client manages a NATS connection with a circuit breaker
type Client struct {
	url     string
	status  atomic.Int32
	breaker *breaker
	logger  *slog.Logger
	metrics *metric.Metrics

	conn *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription

	consumers   map[string]jetstream.ConsumeContext
	consumersMu sync.Mutex

	maxReconnects  int
	reconnectWait  time.Duration
	pingInterval   time.Duration
	timeout        time.Duration
	drainTimeout   time.Duration
	requestTimeout time.Duration

	username string
	password string
	token    string
	tls      *tls.Config

	clientName string

	onHealthChange func(bool)

	healthInterval time.Duration
	healthDone     chan struct{}

	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates an unconnected client
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:            url,
		breaker:        newBreaker(),
		logger:         slog.Default(),
		maxReconnects:  -1,
		reconnectWait:  2 * time.Second,
		pingInterval:   30 * time.Second,
		healthInterval: 10 * time.Second,
		timeout:        5 * time.Second,
		drainTimeout:   30 * time.Second,
		requestTimeout: 5 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	c.logger = c.logger.With("component", "natsclient", "url", url)

	return c, nil
}

func (m *Client) URL() string {
	return m.url
}

// Status returns the current connection status
func (m *Client) Status() ConnectionStatus {
	return ConnectionStatus(m.status.Load())
}

// Conn returns the underlying connection, nil before Connect
func (m *Client) Conn() *nats.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

func (m *Client) setStatus(status ConnectionStatus) {
	m.status.Store(int32(status))
	m.metrics.RecordNATSStatus(status == StatusConnected)
	m.metrics.RecordCircuitBreakerState(circuitGauge(status))
}

func circuitGauge(s ConnectionStatus) int {
	if s == StatusCircuitOpen {
		return 1
	}
	return 0
}

// IsHealthy reports whether the connection is up
func (m *Client) IsHealthy() bool {
	return m.Status() == StatusConnected
}

// Failures returns the failure count since the last successful connect
func (m *Client) Failures() int32 {
	n, _, _ := m.breaker.snapshot()
	return n
}

// Backoff returns how long the circuit will stay open the next time it trips
func (m *Client) Backoff() time.Duration {
	_, b, _ := m.breaker.snapshot()
	return b
}

// RequestTimeout returns the default request/reply timeout
func (m *Client) RequestTimeout() time.Duration {
	return m.requestTimeout
}

func (m *Client) recordFailure() {
	tripped, wait := m.breaker.fail()
	if !tripped {
		return
	}
	if m.Status() == StatusCircuitOpen {
		m.logger.Warn("Circuit breaker still open", "backoff", m.Backoff())
		return
	}
	m.setStatus(StatusCircuitOpen)
	m.logger.Warn("Circuit breaker opened", "retry_in", wait)
	time.AfterFunc(wait, m.testCircuit)
}

func (m *Client) resetCircuit() {
	m.breaker.reset()
	if m.Status() == StatusCircuitOpen {
		m.setStatus(StatusDisconnected)
	}
}

// testCircuit half-opens the breaker so the next Connect may try again
func (m *Client) testCircuit() {
	if m.Status() == StatusCircuitOpen {
		m.logger.Debug("Circuit breaker half-open")
		m.setStatus(StatusDisconnected)
	}
}

// WaitForConnection blocks until the client is connected or ctx ends
func (m *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if m.IsHealthy() {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.WrapTransient(ctx.Err(), "Client", "WaitForConnection", "wait for connection")
		case <-ticker.C:
		}
	}
}

func (m *Client) natsOptions() []nats.Option {
	opts := []nats.Option{
		nats.Name(m.clientName),
		nats.Timeout(m.timeout),
		nats.MaxReconnects(m.maxReconnects),
		nats.ReconnectWait(m.reconnectWait),
		nats.PingInterval(m.pingInterval),
		nats.DrainTimeout(m.drainTimeout),
		nats.DisconnectErrHandler(m.handleDisconnect),
		nats.ReconnectHandler(m.handleReconnect),
		nats.ClosedHandler(m.handleClosed),
		nats.ErrorHandler(m.handleError),
	}
	switch {
	case m.token != "":
		opts = append(opts, nats.Token(m.token))
	case m.username != "":
		opts = append(opts, nats.UserInfo(m.username, m.password))
	}
	if m.tls != nil {
		opts = append(opts, nats.Secure(m.tls))
	}
	return opts
}

// Connect establishes the connection. It fails fast while the circuit is open.
func (m *Client) Connect(ctx context.Context) error {
	if m.Status() == StatusCircuitOpen {
		return ErrCircuitOpen
	}

	m.setStatus(StatusConnecting)
	m.logger.Info("Connecting to NATS")

	opts := m.natsOptions()
	done := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(m.url, opts...)
		if err != nil {
			done <- err
			return
		}
		js, jsErr := jetstream.New(conn)

		m.mu.Lock()
		m.conn = conn
		if jsErr == nil {
			m.js = js
		}
		m.mu.Unlock()
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			return m.connectFailed(err)
		}
	case <-ctx.Done():
		return m.connectFailed(ctx.Err())
	}

	m.setStatus(StatusConnected)
	m.resetCircuit()
	m.logger.Info("Connected to NATS")

	if m.healthInterval > 0 {
		m.startHealthMonitoring()
	}
	if m.onHealthChange != nil {
		m.onHealthChange(true)
	}
	return nil
}

func (m *Client) connectFailed(err error) error {
	m.recordFailure()
	if m.Status() == StatusCircuitOpen {
		return ErrCircuitOpen
	}
	m.setStatus(StatusDisconnected)
	return errors.WrapTransient(err, "Client", "Connect", "establish connection")
}

// Close stops consumers and subscriptions, then drains the connection
// within the drain timeout or ctx, whichever ends first. Credentials are
// cleared. Calling Close again is a no-op.
func (m *Client) Close(ctx context.Context) error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	if m.closed.Swap(true) {
		return nil
	}

	m.stopHealthMonitoring()
	m.stopConsumers()

	m.mu.Lock()
	defer m.mu.Unlock()

	errs := m.unsubscribeAll()
	if m.conn != nil {
		if err := m.drain(ctx); err != nil {
			errs = append(errs, err)
		}
		m.conn.Close()
		m.conn, m.js = nil, nil
	}
	m.username, m.password, m.token = "", "", ""

	m.setStatus(StatusDisconnected)
	return stderrors.Join(errs...)
}

func (m *Client) stopConsumers() {
	m.consumersMu.Lock()
	defer m.consumersMu.Unlock()
	for _, cc := range m.consumers {
		cc.Stop()
	}
	m.consumers = nil
}

// unsubscribeAll requires m.mu
func (m *Client) unsubscribeAll() []error {
	var errs []error
	for _, sub := range m.subs {
		if err := sub.Unsubscribe(); err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe "+sub.Subject))
		}
	}
	m.subs = nil
	return errs
}

// drain requires m.mu and a non-nil m.conn
func (m *Client) drain(ctx context.Context) error {
	limit := m.drainTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left > 0 {
			limit = min(limit, left)
		}
	}
	timer := time.NewTimer(limit)
	defer timer.Stop()

	conn := m.conn
	result := make(chan error, 1)
	go func() { result <- conn.Drain() }()

	select {
	case err := <-result:
		return errors.Wrap(err, "Client", "Close", "drain connection")
	case <-timer.C:
		return errors.WrapTransient(fmt.Errorf("drain timeout after %v", limit), "Client", "Close", "drain connection")
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "Client", "Close", "drain connection")
	}
}

// RTT returns the round-trip time to the server and records it
func (m *Client) RTT() (time.Duration, error) {
	conn, err := m.connected()
	if err != nil {
		return 0, err
	}
	rtt, err := conn.RTT()
	if err == nil {
		m.metrics.RecordNATSRTT(rtt)
	}
	return rtt, err
}

func (m *Client) connected() (*nats.Conn, error) {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil || !conn.IsConnected() {
		return nil, ErrNotConnected
	}
	return conn, nil
}
