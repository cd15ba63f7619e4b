package corbacdr

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
	"github.com/OpenRTM/RTM-Tutorial-sub001/rpc"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport/transporttest"
)

// websocketPair returns a serving broker and a separate calling broker
func websocketPair(t *testing.T) (server, client *rpc.Broker) {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rpc"
	server = rpc.NewBroker(rpc.WithWebsocketEndpoint(endpoint))
	mux.Handle("/rpc", server.Handler())
	client = rpc.NewBroker()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return server, client
}

func TestPush_OverWebsocket(t *testing.T) {
	server, client := websocketPair(t)
	ls, rec := transporttest.Listeners()

	buf := transporttest.Buffer(t, 2)
	provider := NewInPortProvider(server)
	provider.SetConnector(&transporttest.Connector{Buf: buf})
	provider.SetListener(dataport.NewConnectorInfo("in", "", nil, properties.New()), ls)
	props := properties.New()
	require.NoError(t, provider.PublishInterface(props))
	assert.True(t, strings.HasPrefix(props.Get(dataport.KeyInPortRef), "ws://"))

	consumer := NewInPortConsumer(client, nil)
	require.NoError(t, consumer.Init(properties.FromMap(map[string]string{KeyCallTimeout: "2s"})))
	require.NoError(t, consumer.SubscribeInterface(props))

	assert.True(t, consumer.IsWritable(false))
	assert.Equal(t, dataport.PortOK, consumer.Put([]byte("a")))
	assert.Equal(t, dataport.PortOK, consumer.Put([]byte("b")))
	assert.False(t, consumer.IsWritable(false))
	assert.Equal(t, dataport.SendFull, consumer.Put([]byte("c")))
	assert.Equal(t, 1, rec.Count("ON_RECEIVER_FULL"))

	data, _ := buf.Read(0)
	assert.Equal(t, []byte("a"), data)

	require.NoError(t, provider.Close())
	assert.Equal(t, dataport.ConnectionLost, consumer.Put([]byte("d")))
}

func TestPull_Local(t *testing.T) {
	broker := rpc.NewBroker()
	defer broker.Close()
	ls, rec := transporttest.Listeners()

	src := transporttest.Buffer(t, 4)
	provider := NewOutPortProvider(broker)
	provider.SetConnector(&transporttest.Connector{Buf: src})
	props := properties.New()
	require.NoError(t, provider.PublishInterface(props))

	consumer := NewOutPortConsumer(broker, nil)
	consumer.SetListener(dataport.NewConnectorInfo("out", "", nil, properties.New()), ls)
	consumer.SetBuffer(transporttest.Buffer(t, 1))

	st, _ := consumer.Get()
	assert.Equal(t, dataport.ConnectionLost, st)

	require.NoError(t, consumer.SubscribeInterface(props))
	assert.False(t, consumer.IsReadable(false))
	st, _ = consumer.Get()
	assert.Equal(t, dataport.BufferEmpty, st)
	assert.Equal(t, 1, rec.Count("ON_SENDER_EMPTY"))

	src.Write([]byte{7}, 0)
	st, data := consumer.Get()
	assert.Equal(t, dataport.PortOK, st)
	assert.Equal(t, []byte{7}, data)

	consumer.UnsubscribeInterface(props)
	st, _ = consumer.Get()
	assert.Equal(t, dataport.ConnectionLost, st)
}

func TestSubscribe_InvalidReference(t *testing.T) {
	c := NewInPortConsumer(rpc.NewBroker(), nil)
	err := c.SubscribeInterface(properties.FromMap(map[string]string{dataport.KeyInPortRef: "IOR:00"}))
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	r := transport.NewRegistry(transport.Deps{Broker: rpc.NewBroker()})
	require.NoError(t, Register(r))
	assert.True(t, r.HasPush(dataport.InterfaceCorbaCDR))
	assert.True(t, r.HasPull(dataport.InterfaceCorbaCDR))
}
