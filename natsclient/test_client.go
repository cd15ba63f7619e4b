package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const defaultNATSImage = "nats:2.11.7-alpine"

// TestClient is a connected Client backed by a throwaway NATS container.
// Integration tests get one from NewTestClient.
type TestClient struct {
	Client *Client
	URL    string

	container testcontainers.Container
}

type testConfig struct {
	image        string
	jetstream    bool
	dialTimeout  time.Duration
	startTimeout time.Duration
}

// TestOption configures NewTestClient
type TestOption func(*testConfig)

// WithJetStream starts the server with -js
func WithJetStream() TestOption {
	return func(cfg *testConfig) { cfg.jetstream = true }
}

// WithNATSVersion selects the nats image tag
func WithNATSVersion(version string) TestOption {
	return func(cfg *testConfig) { cfg.image = "nats:" + version }
}

// WithFastStartup shortens the dial and container start timeouts
func WithFastStartup() TestOption {
	return func(cfg *testConfig) {
		cfg.dialTimeout = 2 * time.Second
		cfg.startTimeout = 10 * time.Second
	}
}

// NewTestClient starts a NATS container, connects a client to it and
// registers cleanup of both with t. The test fails if Docker is not
// available.
func NewTestClient(t testing.TB, opts ...TestOption) *TestClient {
	t.Helper()

	cfg := testConfig{image: defaultNATSImage, dialTimeout: 5 * time.Second, startTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()
	container, url, err := startNATS(ctx, cfg)
	if err != nil {
		t.Fatalf("start NATS container: %v", err)
	}
	tc := &TestClient{URL: url, container: container}
	t.Cleanup(tc.terminate)

	tc.Client = tc.connect(t, cfg.dialTimeout, WithTimeout(cfg.dialTimeout))
	return tc
}

func startNATS(ctx context.Context, cfg testConfig) (testcontainers.Container, string, error) {
	cmd := []string{"--port", "4222", "--http_port", "8222"}
	if cfg.jetstream {
		cmd = append(cmd, "-js")
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        cfg.image,
			ExposedPorts: []string{"4222/tcp", "8222/tcp"},
			Cmd:          cmd,
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("4222/tcp"),
				wait.ForHTTP("/healthz").WithPort("8222/tcp"),
			).WithDeadline(cfg.startTimeout),
		},
		Started: true,
	})
	if err != nil {
		return nil, "", err
	}

	endpoint, err := container.PortEndpoint(ctx, "4222/tcp", "nats")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", fmt.Errorf("resolve endpoint: %w", err)
	}
	return container, endpoint, nil
}

// connect dials the container with reconnects and health probing off
func (tc *TestClient) connect(t testing.TB, timeout time.Duration, opts ...ClientOption) *Client {
	t.Helper()

	opts = append([]ClientOption{WithMaxReconnects(0), WithHealthInterval(0)}, opts...)
	c, err := NewClient(tc.URL, opts...)
	if err != nil {
		t.Fatalf("NATS client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("NATS connect %s: %v", tc.URL, err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

// NewPeer connects a second client to the same server
func (tc *TestClient) NewPeer(t testing.TB, opts ...ClientOption) *Client {
	t.Helper()
	return tc.connect(t, 5*time.Second, opts...)
}

func (tc *TestClient) terminate() {
	if tc.container != nil {
		_ = tc.container.Terminate(context.Background())
	}
}
