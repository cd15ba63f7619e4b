package natsclient

import (
	"context"
	stderrors "errors"

	"github.com/nats-io/nats.go"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
)

// Subscribe delivers every message on subject to handler. The client owns
// the subscription and removes it on Close; Unsubscribe ends it earlier.
func (m *Client) Subscribe(subject string, handler func(*nats.Msg)) (*nats.Subscription, error) {
	return m.subscribe("Subscribe", subject, func(conn *nats.Conn) (*nats.Subscription, error) {
		return conn.Subscribe(subject, handler)
	})
}

// QueueSubscribe is Subscribe within a queue group
func (m *Client) QueueSubscribe(subject, queue string, handler func(*nats.Msg)) (*nats.Subscription, error) {
	return m.subscribe("QueueSubscribe", subject, func(conn *nats.Conn) (*nats.Subscription, error) {
		return conn.QueueSubscribe(subject, queue, handler)
	})
}

func (m *Client) subscribe(method, subject string, open func(*nats.Conn) (*nats.Subscription, error)) (*nats.Subscription, error) {
	conn, err := m.connected()
	if err != nil {
		return nil, err
	}
	sub, err := open(conn)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", method, "subscribe "+subject)
	}

	m.mu.Lock()
	m.subs = append(m.subs, sub)
	m.mu.Unlock()
	return sub, nil
}

// Unsubscribe ends a subscription created by this client. nil and already
// closed subscriptions are ignored.
func (m *Client) Unsubscribe(sub *nats.Subscription) error {
	if sub == nil {
		return nil
	}

	m.mu.Lock()
	kept := m.subs[:0]
	for _, s := range m.subs {
		if s != sub {
			kept = append(kept, s)
		}
	}
	m.subs = kept
	m.mu.Unlock()

	err := sub.Unsubscribe()
	if err == nil || stderrors.Is(err, nats.ErrConnectionClosed) || stderrors.Is(err, nats.ErrBadSubscription) {
		return nil
	}
	return errors.Wrap(err, "Client", "Unsubscribe", "unsubscribe "+sub.Subject)
}

// Publish publishes data on subject
func (m *Client) Publish(_ context.Context, subject string, data []byte) error {
	conn, err := m.connected()
	if err != nil {
		return err
	}
	return conn.Publish(subject, data)
}

// PublishMsg publishes msg with its headers
func (m *Client) PublishMsg(_ context.Context, msg *nats.Msg) error {
	conn, err := m.connected()
	if err != nil {
		return err
	}
	return conn.PublishMsg(msg)
}

// Request sends data and waits for one reply. Without a ctx deadline the
// request timeout applies. No responders maps to ErrObjectNotFound; other
// failures count against the circuit breaker.
func (m *Client) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	if m.Status() == StatusCircuitOpen {
		return nil, ErrCircuitOpen
	}
	conn, err := m.connected()
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.requestTimeout)
		defer cancel()
	}

	reply, err := conn.RequestWithContext(ctx, subject, data)
	switch {
	case err == nil:
		return reply.Data, nil
	case stderrors.Is(err, nats.ErrNoResponders):
		return nil, errors.Wrap(errors.ErrObjectNotFound, "Client", "Request", "request "+subject)
	default:
		m.recordFailure()
		return nil, errors.WrapTransient(err, "Client", "Request", "request "+subject)
	}
}
