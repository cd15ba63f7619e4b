package natsclient

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
)

// ClientOption configures a Client in NewClient. An option returning an
// error makes NewClient fail with an invalid error.
type ClientOption func(*Client) error

func positive(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %v", name, d)
	}
	return nil
}

// Connection

// WithName sets the client name reported to the server
func WithName(name string) ClientOption {
	return func(c *Client) error { c.clientName = name; return nil }
}

// WithTimeout bounds the initial dial
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error { c.timeout = d; return positive("timeout", d) }
}

// WithMaxReconnects caps reconnect attempts; -1 retries forever
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) error { c.maxReconnects = n; return nil }
}

// WithReconnectWait sets the pause between reconnect attempts. Zero keeps
// the default.
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d > 0 {
			c.reconnectWait = d
		}
		return nil
	}
}

// WithPingInterval sets the server ping interval. Zero keeps the default.
func WithPingInterval(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d > 0 {
			c.pingInterval = d
		}
		return nil
	}
}

// WithRequestTimeout sets the timeout Request applies when ctx has no
// deadline. Zero keeps the default.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d > 0 {
			c.requestTimeout = d
		}
		return nil
	}
}

// WithDrainTimeout bounds the drain in Close. Zero keeps the default.
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d > 0 {
			c.drainTimeout = d
		}
		return nil
	}
}

// Authentication

// WithCredentials authenticates with user and password
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		if username == "" {
			return fmt.Errorf("credentials need a username")
		}
		c.username, c.password = username, password
		return nil
	}
}

// WithToken authenticates with a token
func WithToken(token string) ClientOption {
	return func(c *Client) error { c.token = token; return nil }
}

// WithTLSConfig secures the connection; nil leaves it unchanged
func WithTLSConfig(cfg *tls.Config) ClientOption {
	return func(c *Client) error {
		if cfg != nil {
			c.tls = cfg
		}
		return nil
	}
}

// Resilience

// WithCircuitBreakerThreshold sets the consecutive failures that open the
// circuit
func WithCircuitBreakerThreshold(n int32) ClientOption {
	return func(c *Client) error {
		if n < 1 {
			return fmt.Errorf("circuit breaker threshold must be at least 1, got %d", n)
		}
		c.breaker.threshold = n
		return nil
	}
}

// WithMaxBackoff caps how long an open circuit waits before the next try
func WithMaxBackoff(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < time.Second {
			return fmt.Errorf("max backoff must be at least 1s, got %v", d)
		}
		c.breaker.max = d
		return nil
	}
}

// Observability

// WithLogger sets the client logger; nil keeps slog.Default()
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithMetrics records connection status, RTT and reconnects
func WithMetrics(m *metric.Metrics) ClientOption {
	return func(c *Client) error { c.metrics = m; return nil }
}

// WithHealthInterval sets how often the connection is probed; zero disables
// probing
func WithHealthInterval(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("health interval cannot be negative")
		}
		c.healthInterval = d
		return nil
	}
}

// WithHealthChangeCallback is called whenever the connection becomes
// healthy or unhealthy. Disconnect, reconnect and close call it
// asynchronously.
func WithHealthChangeCallback(fn func(healthy bool)) ClientOption {
	return func(c *Client) error { c.onHealthChange = fn; return nil }
}
