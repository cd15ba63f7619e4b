// Package pubsub implements the topic based transports (ros, ros2 and
// opensplice) over NATS subjects.
//
// An out-port's connector publishes through a Publisher (an InPortConsumer);
// in-ports receive through a Subscriber (an InPortProvider) attached to a
// shared TopicManager. Each message carries its wire type, checksum and node
// name in headers, and subscribers drop messages whose type does not match
// the message info registered for their marshaling type. ros2 topics with a
// reliable QoS go through a JetStream stream.
package pubsub

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/buffer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
	"github.com/OpenRTM/RTM-Tutorial-sub001/serializer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport"
)

// Register adds the ros, ros2 and opensplice push transports backed by m
func Register(r *transport.Registry, m *TopicManager) error {
	if m == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "pubsub", "Register", "topic manager")
	}
	for _, f := range []Flavor{ROS, ROS2, OpenSplice} {
		flavor := f
		if err := r.AddInPortProvider(flavor.Name, func(d transport.Deps) (transport.InPortProvider, error) {
			return NewSubscriber(flavor, m, d.Serializers, d.Logger), nil
		}); err != nil {
			return err
		}
		if err := r.AddInPortConsumer(flavor.Name, func(d transport.Deps) (transport.InPortConsumer, error) {
			return NewPublisher(flavor, m, d.Serializers, d.Logger), nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// endpoint holds the topic binding shared by publishers and subscribers
type endpoint struct {
	flavor      Flavor
	manager     *TopicManager
	serializers *serializer.Registry
	logger      *slog.Logger

	subject    string
	marshaling string
	info       serializer.MessageInfo
	infoName   string
	node       string
	reliable   bool
}

func newEndpoint(f Flavor, m *TopicManager, serializers *serializer.Registry, logger *slog.Logger, name string) endpoint {
	if logger == nil {
		logger = slog.Default()
	}
	return endpoint{
		flavor:      f,
		manager:     m,
		serializers: serializers,
		logger:      logger.With("component", f.Name+"-"+name),
	}
}

func (e *endpoint) configure(props properties.Properties, role string) error {
	if e.manager == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, e.flavor.Name, "Init", "topic manager")
	}
	if e.serializers == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, e.flavor.Name, "Init", "serializer registry")
	}
	e.marshaling = e.flavor.marshalingType(props)
	e.infoName = e.flavor.infoName(props)
	info, ok := e.flavor.info(e.serializers).Get(e.infoName)
	if !ok {
		e.logger.Error("No message info for marshaling type", "marshaling_type", e.marshaling, "info", e.infoName)
		return errors.WrapInvalid(errors.ErrSerializerNotFound, e.flavor.Name, "Init", "message info "+e.infoName)
	}
	e.info = info
	e.subject = e.flavor.subjectFor(props)
	e.node = e.flavor.nodeName(props)
	e.reliable = e.flavor.reliable(props, role)
	e.logger.Debug("Topic configured",
		"subject", e.subject,
		"message_type", info.DataType,
		"node", e.node,
		"reliable", e.reliable)
	return nil
}

// Subscriber receives a topic and writes every accepted message to the connector
type Subscriber struct {
	transport.Notifier
	endpoint
	id string

	mu         sync.Mutex
	conn       transport.InPortConnector
	subscribed bool
}

// NewSubscriber creates a subscriber of flavor f
func NewSubscriber(f Flavor, m *TopicManager, serializers *serializer.Registry, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		endpoint: newEndpoint(f, m, serializers, logger, "subscriber"),
		id:       uuid.NewString(),
	}
}

// Init binds the subscriber to its topic
func (s *Subscriber) Init(props properties.Properties) error {
	_ = s.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.configure(props, "subscriber"); err != nil {
		return err
	}
	if err := s.manager.subscribe(s); err != nil {
		return err
	}
	s.subscribed = true
	return nil
}

// Subject returns the subscribed NATS subject
func (s *Subscriber) Subject() string { return s.subject }

// SetBuffer implements transport.InPortProvider; writes go through the connector
func (s *Subscriber) SetBuffer(buffer.Buffer[[]byte]) {}

// SetConnector implements transport.InPortProvider
func (s *Subscriber) SetConnector(c transport.InPortConnector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = c
}

// PublishInterface implements transport.InPortProvider; topics need no reference
func (s *Subscriber) PublishInterface(properties.Properties) error { return nil }

// Close leaves the topic
func (s *Subscriber) Close() error {
	s.mu.Lock()
	subscribed := s.subscribed
	s.subscribed = false
	s.mu.Unlock()
	if subscribed {
		s.manager.unsubscribe(s)
	}
	return nil
}

// accepts reports whether the advertised type matches this subscriber's
// message info. Messages without a type header are accepted.
func (s *Subscriber) accepts(h nats.Header) bool {
	if h == nil || h.Get(HeaderType) == "" {
		return true
	}
	return s.flavor.info(s.serializers).Matches(s.infoName, h.Get(HeaderType), h.Get(HeaderMD5Sum))
}

func (s *Subscriber) receive(data []byte) dataport.Status {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	return s.Deliver(conn, data)
}

// Publisher publishes every put on its topic
type Publisher struct {
	transport.Notifier
	endpoint

	mu     sync.RWMutex
	active bool
}

// NewPublisher creates a publisher of flavor f
func NewPublisher(f Flavor, m *TopicManager, serializers *serializer.Registry, logger *slog.Logger) *Publisher {
	return &Publisher{endpoint: newEndpoint(f, m, serializers, logger, "publisher")}
}

// Init binds the publisher to its topic
func (p *Publisher) Init(props properties.Properties) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.configure(props, "publisher"); err != nil {
		p.active = false
		return err
	}
	p.active = true
	return nil
}

// Subject returns the published NATS subject
func (p *Publisher) Subject() string { return p.subject }

// Put publishes data; any failure to publish is CONNECTION_LOST
func (p *Publisher) Put(data []byte) dataport.Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.active {
		return dataport.ConnectionLost
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set(HeaderType, p.info.DataType)
	if p.info.MD5Sum != "" {
		msg.Header.Set(HeaderMD5Sum, p.info.MD5Sum)
	}
	msg.Header.Set(HeaderNode, p.node)
	msg.Header.Set(HeaderMarshaling, p.marshaling)

	if err := p.manager.publish(msg, p.flavor, p.reliable); err != nil {
		p.logger.Warn("Publish failed", "subject", p.subject, "error", err)
		return dataport.ConnectionLost
	}
	return dataport.PortOK
}

// IsWritable reports whether the publisher is bound to a topic
func (p *Publisher) IsWritable(bool) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// SubscribeInterface implements transport.InPortConsumer; topics need no reference
func (p *Publisher) SubscribeInterface(properties.Properties) error { return nil }

// UnsubscribeInterface implements transport.InPortConsumer
func (p *Publisher) UnsubscribeInterface(properties.Properties) {}

// Close stops publishing
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = false
	return nil
}
