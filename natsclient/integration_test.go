//go:build integration

package natsclient

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
)

func TestIntegration_Connect(t *testing.T) {
	tc := NewTestClient(t, WithFastStartup())

	assert.True(t, tc.Client.IsHealthy())
	rtt, err := tc.Client.RTT()
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))
}

func TestIntegration_PublishSubscribeWithHeaders(t *testing.T) {
	tc := NewTestClient(t, WithFastStartup())
	ctx := context.Background()

	received := make(chan *nats.Msg, 1)
	sub, err := tc.Client.Subscribe("rtm.topic.chatter", func(msg *nats.Msg) {
		received <- msg
	})
	require.NoError(t, err)

	msg := nats.NewMsg("rtm.topic.chatter")
	msg.Header.Set("Rtm-Type", "std_msgs/Int32")
	msg.Data = []byte{1, 2, 3}
	require.NoError(t, tc.Client.PublishMsg(ctx, msg))

	select {
	case got := <-received:
		assert.Equal(t, []byte{1, 2, 3}, got.Data)
		assert.Equal(t, "std_msgs/Int32", got.Header.Get("Rtm-Type"))
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}

	require.NoError(t, tc.Client.Unsubscribe(sub))
}

func TestIntegration_RequestReply(t *testing.T) {
	tc := NewTestClient(t, WithFastStartup())
	peer := tc.NewPeer(t)
	ctx := context.Background()

	_, err := tc.Client.Subscribe("rtm.obj.echo", func(msg *nats.Msg) {
		_ = msg.Respond(append([]byte("re:"), msg.Data...))
	})
	require.NoError(t, err)

	reply, err := peer.Request(ctx, "rtm.obj.echo", []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, "re:ping", string(reply))

	_, err = peer.Request(ctx, "rtm.obj.missing", nil)
	assert.ErrorIs(t, err, errors.ErrObjectNotFound)
}

func TestIntegration_JetStream(t *testing.T) {
	tc := NewTestClient(t, WithFastStartup(), WithJetStream())
	ctx := context.Background()

	_, err := tc.Client.EnsureStream(ctx, streamConfig("RTM"))
	require.NoError(t, err)
	_, err = tc.Client.EnsureStream(ctx, streamConfig("RTM"))
	require.NoError(t, err, "ensure is idempotent")

	var count atomic.Int32
	stop, err := tc.Client.ConsumeStream(ctx, "RTM", "RTM.chatter", func(jetstream.Msg) {
		count.Add(1)
	})
	require.NoError(t, err)
	defer stop()

	for i := 0; i < 3; i++ {
		msg := nats.NewMsg("RTM.chatter")
		msg.Data = []byte{byte(i)}
		require.NoError(t, tc.Client.PublishToStream(ctx, msg))
	}
	assert.Eventually(t, func() bool { return count.Load() == 3 }, 5*time.Second, 10*time.Millisecond)
}

func TestIntegration_KVStore(t *testing.T) {
	tc := NewTestClient(t, WithFastStartup(), WithJetStream())
	ctx := context.Background()

	bucket, err := tc.Client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "rtm_naming"})
	require.NoError(t, err)
	kv := NewKVStore(bucket)

	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = kv.Put(ctx, "sink0.in", []byte("nats:rtm.obj.1"))
	require.NoError(t, err)
	_, err = kv.Create(ctx, "sink0.in", []byte("other"))
	assert.ErrorIs(t, err, ErrKVKeyExists)

	entry, err := kv.Get(ctx, "sink0.in")
	require.NoError(t, err)
	assert.Equal(t, "nats:rtm.obj.1", string(entry.Value))

	require.NoError(t, kv.Delete(ctx, "sink0.in"))
	_, err = kv.Get(ctx, "sink0.in")
	assert.ErrorIs(t, err, ErrKVKeyNotFound)
}
