package natsclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
)

// JetStream returns the JetStream context of the current connection
func (m *Client) JetStream() (jetstream.JetStream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.js == nil {
		return nil, errors.WrapTransient(ErrNotConnected, "Client", "JetStream", "get JetStream context")
	}
	return m.js, nil
}

// withJetStream runs op against JetStream and feeds the outcome to the
// circuit breaker. op errors come back transient.
func (m *Client) withJetStream(method, action string, op func(jetstream.JetStream) error) error {
	switch m.Status() {
	case StatusCircuitOpen:
		return ErrCircuitOpen
	case StatusConnected:
	default:
		return ErrNotConnected
	}
	js, err := m.JetStream()
	if err != nil {
		return err
	}
	if err := op(js); err != nil {
		m.recordFailure()
		return errors.WrapTransient(err, "Client", method, action)
	}
	m.resetCircuit()
	return nil
}

// getOrCreate looks a resource up and creates it when missing. A create
// that loses a race to another client falls back to the lookup.
func getOrCreate[R any](get func() (R, error), create func() (R, error)) (R, error) {
	if r, err := get(); err == nil {
		return r, nil
	}
	r, err := create()
	if err != nil && isAlreadyExistsError(err) {
		return get()
	}
	return r, err
}

// EnsureStream returns the named stream, creating it when missing
func (m *Client) EnsureStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	var stream jetstream.Stream
	err := m.withJetStream("EnsureStream", "ensure stream "+cfg.Name, func(js jetstream.JetStream) (err error) {
		stream, err = getOrCreate(
			func() (jetstream.Stream, error) { return js.Stream(ctx, cfg.Name) },
			func() (jetstream.Stream, error) { return js.CreateStream(ctx, cfg) },
		)
		return err
	})
	return stream, err
}

// CreateKeyValueBucket returns the bucket, creating it when missing
func (m *Client) CreateKeyValueBucket(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	var bucket jetstream.KeyValue
	err := m.withJetStream("CreateKeyValueBucket", "ensure bucket "+cfg.Bucket, func(js jetstream.JetStream) (err error) {
		bucket, err = getOrCreate(
			func() (jetstream.KeyValue, error) { return js.KeyValue(ctx, cfg.Bucket) },
			func() (jetstream.KeyValue, error) { return js.CreateKeyValue(ctx, cfg) },
		)
		return err
	})
	return bucket, err
}

// PublishToStream publishes msg and waits for the stream's ack
func (m *Client) PublishToStream(ctx context.Context, msg *nats.Msg) error {
	return m.withJetStream("PublishToStream", "publish "+msg.Subject, func(js jetstream.JetStream) error {
		_, err := js.PublishMsg(ctx, msg)
		return err
	})
}

// ConsumeStream delivers new messages on subject from streamName to
// handler and acks each one after handler returns. A second consumer for
// the same stream and subject replaces the first. The returned function
// stops the consumer; Close stops all of them.
func (m *Client) ConsumeStream(ctx context.Context, streamName, subject string, handler func(jetstream.Msg)) (func(), error) {
	if m.closed.Load() {
		return nil, errors.WrapInvalid(fmt.Errorf("client is closed"), "Client", "ConsumeStream", "check client state")
	}

	var cc jetstream.ConsumeContext
	err := m.withJetStream("ConsumeStream", "consume "+streamName+"/"+subject, func(js jetstream.JetStream) error {
		consumer, err := js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
			FilterSubject: subject,
			DeliverPolicy: jetstream.DeliverNewPolicy,
			AckPolicy:     jetstream.AckExplicitPolicy,
		})
		if err != nil {
			return err
		}
		cc, err = consumer.Consume(func(msg jetstream.Msg) {
			handler(msg)
			_ = msg.Ack()
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	key := streamName + ":" + subject
	m.consumersMu.Lock()
	defer m.consumersMu.Unlock()
	if m.closed.Load() {
		cc.Stop()
		return nil, errors.WrapInvalid(fmt.Errorf("client is closing"), "Client", "ConsumeStream", "register consumer")
	}
	if m.consumers == nil {
		m.consumers = make(map[string]jetstream.ConsumeContext)
	}
	if previous, ok := m.consumers[key]; ok {
		previous.Stop()
	}
	m.consumers[key] = cc

	return func() {
		m.consumersMu.Lock()
		defer m.consumersMu.Unlock()
		if m.consumers[key] == cc {
			delete(m.consumers, key)
		}
		cc.Stop()
	}, nil
}

func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "already in use") || strings.Contains(msg, "already exists")
}
