package pubsub

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/listener"
	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
	"github.com/OpenRTM/RTM-Tutorial-sub001/natsclient"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/worker"
)

// Message headers carried by every publication
const (
	HeaderType       = "Rtm-Type"
	HeaderMD5Sum     = "Rtm-Md5sum"
	HeaderNode       = "Rtm-Node"
	HeaderMarshaling = "Rtm-Marshaling"
)

// inbound is one message queued for a subscriber
type inbound struct {
	sub  *Subscriber
	data []byte
}

// topic fans one NATS subscription out to every local subscriber of a subject
type topic struct {
	subject  string
	reliable bool
	sub      *nats.Subscription
	stop     func()
	members  cmap.ConcurrentMap[string, *Subscriber]
}

// TopicManager shares NATS subscriptions between the subscribers of a process
// and owns the worker pool that hands inbound messages to connectors. Each
// subscriber is pinned to one worker lane so its connector receives messages
// in arrival order. Without a NATS client, publications are delivered to
// local subscribers only.
type TopicManager struct {
	client  *natsclient.Client
	logger  *slog.Logger
	pool    *worker.Pool[inbound]
	timeout time.Duration

	mu      sync.Mutex
	topics  cmap.ConcurrentMap[string, *topic]
	streams map[string]bool
}

// Option configures a TopicManager
type Option func(*managerOptions)

type managerOptions struct {
	logger    *slog.Logger
	registry  *metric.MetricsRegistry
	workers   int
	queueSize int
	timeout   time.Duration
}

// WithLogger sets the manager logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *managerOptions) { o.logger = logger }
}

// WithMetricsRegistry exports the inbound pool metrics
func WithMetricsRegistry(r *metric.MetricsRegistry) Option {
	return func(o *managerOptions) { o.registry = r }
}

// WithWorkers sizes the inbound worker pool
func WithWorkers(workers, queueSize int) Option {
	return func(o *managerOptions) {
		o.workers = workers
		o.queueSize = queueSize
	}
}

// WithPublishTimeout bounds JetStream publications
func WithPublishTimeout(d time.Duration) Option {
	return func(o *managerOptions) { o.timeout = d }
}

// NewTopicManager creates a manager publishing through client, which may be nil
func NewTopicManager(client *natsclient.Client, opts ...Option) *TopicManager {
	o := managerOptions{logger: slog.Default(), timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("component", "topic-manager")

	m := &TopicManager{
		client:  client,
		logger:  logger,
		timeout: o.timeout,
		topics:  cmap.New[*topic](),
		streams: make(map[string]bool),
	}
	poolOpts := []worker.Option[inbound]{worker.WithLogger[inbound](logger)}
	if o.registry != nil {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[inbound](o.registry, "rtm_pubsub_inbound"))
	}
	m.pool = worker.NewPool(o.workers, o.queueSize, m.deliver, poolOpts...)
	return m
}

// Start launches the inbound workers
func (m *TopicManager) Start(ctx context.Context) error {
	return m.pool.Start(ctx)
}

// Close drops every subscription and drains the inbound queue
func (m *TopicManager) Close() error {
	m.mu.Lock()
	for _, t := range m.topics.Items() {
		m.release(t)
	}
	m.topics.Clear()
	m.mu.Unlock()
	return m.pool.Stop(5 * time.Second)
}

// Topics returns the subscribed subjects, sorted
func (m *TopicManager) Topics() []string {
	subjects := m.topics.Keys()
	sort.Strings(subjects)
	return subjects
}

// Stats returns the inbound pool counters
func (m *TopicManager) Stats() worker.PoolStats { return m.pool.Stats() }

func (m *TopicManager) deliver(_ context.Context, in inbound) error {
	st := in.sub.receive(in.data)
	if !st.OK() {
		return errors.WrapTransient(errors.ErrResourceExhausted, "TopicManager", "deliver", st.String())
	}
	return nil
}

func (m *TopicManager) subscribe(s *Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.topics.Get(s.subject); ok {
		if t.reliable != s.reliable {
			m.logger.Warn("Topic already subscribed with a different reliability",
				"subject", s.subject, "reliable", t.reliable)
		}
		t.members.Set(s.id, s)
		return nil
	}

	t := &topic{subject: s.subject, reliable: s.reliable, members: cmap.New[*Subscriber]()}
	t.members.Set(s.id, s)
	if err := m.attach(t, s.flavor); err != nil {
		return err
	}
	m.topics.Set(s.subject, t)
	m.logger.Debug("Topic subscribed", "subject", s.subject, "reliable", s.reliable)
	return nil
}

// attach opens the NATS side of a topic
func (m *TopicManager) attach(t *topic, f Flavor) error {
	if m.client == nil {
		return nil
	}
	if t.reliable {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		if err := m.ensureStream(ctx, f); err != nil {
			return err
		}
		stop, err := m.client.ConsumeStream(context.Background(), f.Stream, t.subject, func(msg jetstream.Msg) {
			m.dispatch(t, msg.Data(), msg.Headers())
		})
		if err != nil {
			return errors.WrapTransient(err, "TopicManager", "subscribe", "consume "+t.subject)
		}
		t.stop = stop
		return nil
	}

	sub, err := m.client.Subscribe(t.subject, func(msg *nats.Msg) {
		m.dispatch(t, msg.Data, msg.Header)
	})
	if err != nil {
		return errors.WrapTransient(err, "TopicManager", "subscribe", "subscribe "+t.subject)
	}
	t.sub = sub
	return nil
}

func (m *TopicManager) ensureStream(ctx context.Context, f Flavor) error {
	if m.streams[f.Stream] {
		return nil
	}
	_, err := m.client.EnsureStream(ctx, jetstream.StreamConfig{
		Name:     f.Stream,
		Subjects: []string{SubjectPrefix + "." + f.Name + ".>"},
		MaxAge:   time.Hour,
	})
	if err != nil {
		return err
	}
	m.streams[f.Stream] = true
	return nil
}

func (m *TopicManager) unsubscribe(s *Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.topics.Get(s.subject)
	if !ok {
		return
	}
	t.members.Remove(s.id)
	if t.members.Count() > 0 {
		return
	}
	m.release(t)
	m.topics.Remove(s.subject)
	m.logger.Debug("Topic released", "subject", s.subject)
}

func (m *TopicManager) release(t *topic) {
	if t.stop != nil {
		t.stop()
	}
	if t.sub != nil {
		if err := m.client.Unsubscribe(t.sub); err != nil {
			m.logger.Warn("Topic unsubscribe failed", "subject", t.subject, "error", err)
		}
	}
}

// dispatch validates a message against every member and queues it on the
// member's lane
func (m *TopicManager) dispatch(t *topic, data []byte, header nats.Header) {
	for _, s := range t.members.Items() {
		if !s.accepts(header) {
			m.logger.Warn("Message type mismatch",
				"subject", t.subject,
				"type", header.Get(HeaderType),
				"node", header.Get(HeaderNode))
			s.Data(listener.OnReceiverError, data)
			continue
		}
		if err := m.pool.SubmitKeyed(s.id, inbound{sub: s, data: data}); err != nil {
			m.logger.Debug("Inbound message dropped", "subject", t.subject, "error", err)
			s.Data(listener.OnReceiverFull, data)
		}
	}
}

// publish sends msg on NATS, or straight to local subscribers without a client
func (m *TopicManager) publish(msg *nats.Msg, f Flavor, reliable bool) error {
	if m.client == nil {
		if t, ok := m.topics.Get(msg.Subject); ok {
			m.dispatch(t, msg.Data, msg.Header)
		}
		return nil
	}
	if reliable {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		m.mu.Lock()
		err := m.ensureStream(ctx, f)
		m.mu.Unlock()
		if err != nil {
			return err
		}
		return m.client.PublishToStream(ctx, msg)
	}
	return m.client.PublishMsg(context.Background(), msg)
}
