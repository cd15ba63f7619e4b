package rpc

import (
	"context"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/natsclient"
)

// DefaultSubjectPrefix is the subject root for servant requests
const DefaultSubjectPrefix = "rtm.obj"

// ServeNATS starts answering requests for hosted servants on
// <prefix>.<broker id>.<object id>. Servants activated afterwards get nats
// references. A broker without a served client can still call remote nats
// references once UseNATS is set.
func (b *Broker) ServeNATS(client *natsclient.Client, prefix string) error {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	b.natsMu.Lock()
	defer b.natsMu.Unlock()
	if b.natsSub != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Broker", "ServeNATS", "subscribe")
	}

	subject := prefix + "." + b.id + ".*"
	sub, err := client.Subscribe(subject, func(msg *nats.Msg) {
		go b.serveNATSMsg(msg)
	})
	if err != nil {
		return errors.WrapTransient(err, "Broker", "ServeNATS", "subscribe "+subject)
	}
	b.nats = client
	b.natsPrefix = prefix
	b.natsSub = sub
	b.logger.Info("Serving objects over NATS", "subject", subject)
	return nil
}

// UseNATS sets the client used to call nats references without serving
func (b *Broker) UseNATS(client *natsclient.Client) {
	b.natsMu.Lock()
	defer b.natsMu.Unlock()
	b.nats = client
}

func (b *Broker) serveNATSMsg(msg *nats.Msg) {
	id := msg.Subject[strings.LastIndexByte(msg.Subject, '.')+1:]
	req, err := decodeRequest(msg.Data)
	if err != nil {
		b.logger.Warn("Dropping malformed request", "subject", msg.Subject, "error", err)
		b.metrics.RecordError("rpc-broker", "malformed_request")
		return
	}

	ctx, cancel := b.withTimeout(context.Background())
	defer cancel()
	result, err := b.dispatch(ctx, id, req.op, req.args)
	if err := msg.Respond(encodeReply(replyFor(req.seq, result, err))); err != nil {
		b.logger.Debug("Reply not delivered", "subject", msg.Subject, "error", err)
	}
}

func (b *Broker) invokeNATS(ctx context.Context, ref Reference, op string, args []byte) ([]byte, error) {
	b.natsMu.RLock()
	client := b.nats
	b.natsMu.RUnlock()
	if client == nil {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "Broker", "invokeNATS", "call "+ref.String())
	}

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	data, err := client.Request(ctx, ref.Subject(), encodeRequest(request{object: ref.ObjectID(), op: op, args: args}))
	if err != nil {
		return nil, err
	}
	rep, err := decodeReply(data)
	if err != nil {
		return nil, err
	}
	return rep.outcome("invokeNATS")
}
