package rpc

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
	"github.com/OpenRTM/RTM-Tutorial-sub001/natsclient"
)

// Servant is an object reachable through the broker
type Servant interface {
	Invoke(ctx context.Context, op string, args []byte) ([]byte, error)
}

// Operation handles one named operation
type Operation func(ctx context.Context, args []byte) ([]byte, error)

// Operations is a Servant built from a table of named operations
type Operations map[string]Operation

// Invoke runs the operation named op
func (o Operations) Invoke(ctx context.Context, op string, args []byte) ([]byte, error) {
	fn, ok := o[op]
	if !ok {
		return nil, errors.WrapInvalid(ErrBadOperation, "Operations", "Invoke", "lookup "+op)
	}
	return fn(ctx, args)
}

// Broker activates servants and routes invocations to them, either in process
// or over a NATS or websocket carrier.
type Broker struct {
	id      string
	objects cmap.ConcurrentMap[string, Servant]
	logger  *slog.Logger
	metrics *metric.Metrics
	timeout time.Duration

	natsMu     sync.RWMutex
	nats       *natsclient.Client
	natsPrefix string
	natsSub    *nats.Subscription

	wsEndpoint string
	upgrader   websocket.Upgrader
	dialer     *websocket.Dialer
	wsMu       sync.Mutex
	wsClients  map[string]*wsClient
	wsConns    map[*websocket.Conn]struct{}
	wsWG       sync.WaitGroup

	closed atomic.Bool
}

// Option configures a Broker
type Option func(*Broker)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		b.logger = logger
	}
}

// WithMetrics records every invocation as a transport call
func WithMetrics(m *metric.Metrics) Option {
	return func(b *Broker) {
		b.metrics = m
	}
}

// WithCallTimeout bounds remote invocations without a context deadline
func WithCallTimeout(d time.Duration) Option {
	return func(b *Broker) {
		b.timeout = d
	}
}

// WithWebsocketEndpoint advertises endpoint (the URL Handler is mounted on)
// in references when no NATS carrier is serving.
func WithWebsocketEndpoint(endpoint string) Option {
	return func(b *Broker) {
		b.wsEndpoint = endpoint
	}
}

// NewBroker creates a broker that serves local references until a carrier
// is started.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		id:        uuid.NewString(),
		objects:   cmap.New[Servant](),
		logger:    slog.Default(),
		timeout:   5 * time.Second,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		wsClients: make(map[string]*wsClient),
		wsConns:   make(map[*websocket.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "rpc-broker", "broker", b.id)
	b.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin: func(_ *http.Request) bool {
			return true
		},
	}
	return b
}

// ID returns the broker id
func (b *Broker) ID() string { return b.id }

// Activate registers s and returns its reference. The reference uses the
// NATS carrier when it is serving, then the websocket endpoint, then local.
func (b *Broker) Activate(s Servant) Reference {
	id := uuid.NewString()
	b.objects.Set(id, s)
	return b.referenceFor(id)
}

func (b *Broker) referenceFor(id string) Reference {
	b.natsMu.RLock()
	serving := b.natsSub != nil
	b.natsMu.RUnlock()

	switch {
	case serving:
		return NATSReference(b.natsPrefix+"."+b.id, id)
	case b.wsEndpoint != "":
		return WebsocketReference(b.wsEndpoint, id)
	default:
		return LocalReference(id)
	}
}

// Deactivate removes the servant behind ref. It reports whether the servant
// was active on this broker.
func (b *Broker) Deactivate(ref Reference) bool {
	id := ref.ObjectID()
	if id == "" {
		return false
	}
	_, ok := b.objects.Pop(id)
	return ok
}

// Active returns the number of active servants
func (b *Broker) Active() int {
	return b.objects.Count()
}

// Resolve returns the servant behind ref when it lives in this process
func (b *Broker) Resolve(ref Reference) (Servant, bool) {
	id := ref.ObjectID()
	if id == "" {
		return nil, false
	}
	return b.objects.Get(id)
}

// Invoke calls op on the servant behind ref. Servants hosted by this broker
// are called directly whatever carrier the reference names.
func (b *Broker) Invoke(ctx context.Context, ref Reference, op string, args []byte) ([]byte, error) {
	if b.closed.Load() {
		return nil, errors.WrapTransient(errors.ErrShuttingDown, "Broker", "Invoke", "invoke "+op)
	}
	if !ref.Valid() {
		return nil, errors.WrapInvalid(errors.ErrObjectNotFound, "Broker", "Invoke", "parse reference "+ref.String())
	}

	start := time.Now()
	carrier := ref.Scheme()
	var (
		result []byte
		err    error
	)
	if b.objects.Has(ref.ObjectID()) {
		carrier = SchemeLocal
		result, err = b.dispatch(ctx, ref.ObjectID(), op, args)
	} else {
		switch carrier {
		case SchemeLocal:
			err = errors.Wrap(errors.ErrObjectNotFound, "Broker", "Invoke", "lookup "+ref.String())
		case SchemeNATS:
			result, err = b.invokeNATS(ctx, ref, op, args)
		default:
			result, err = b.invokeWebsocket(ctx, ref, op, args)
		}
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	b.metrics.RecordTransport("rpc_"+carrier, op, status, time.Since(start))
	return result, err
}

// dispatch calls a hosted servant, converting a panic into a fatal error
func (b *Broker) dispatch(ctx context.Context, id, op string, args []byte) (result []byte, err error) {
	s, ok := b.objects.Get(id)
	if !ok {
		return nil, errors.Wrap(errors.ErrObjectNotFound, "Broker", "dispatch", "lookup "+id)
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.FromPanic(r, "Broker", "dispatch")
			b.logger.Error("Servant panicked", "object", id, "op", op, "error", err)
			b.metrics.RecordError("rpc-broker", "servant_panic")
		}
	}()
	return s.Invoke(ctx, op, args)
}

func (b *Broker) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

// Close stops the carriers and drops every servant
func (b *Broker) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	b.natsMu.Lock()
	if b.natsSub != nil {
		if err := b.nats.Unsubscribe(b.natsSub); err != nil {
			errs = append(errs, err)
		}
		b.natsSub = nil
	}
	b.natsMu.Unlock()

	b.wsMu.Lock()
	for endpoint, c := range b.wsClients {
		c.close()
		delete(b.wsClients, endpoint)
	}
	for conn := range b.wsConns {
		_ = conn.Close()
	}
	b.wsMu.Unlock()
	b.wsWG.Wait()

	b.objects.Clear()
	if len(errs) > 0 {
		return errors.Wrap(errs[0], "Broker", "Close", "carrier shutdown")
	}
	return nil
}
