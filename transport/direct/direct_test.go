package direct

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
	"github.com/OpenRTM/RTM-Tutorial-sub001/rpc"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport/transporttest"
)

func TestPush(t *testing.T) {
	broker := rpc.NewBroker()
	defer broker.Close()
	info := dataport.NewConnectorInfo("push", "", nil, properties.New())
	ls, rec := transporttest.Listeners()

	buf := transporttest.Buffer(t, 8)
	provider := NewInPortProvider(broker)
	provider.SetConnector(&transporttest.Connector{Buf: buf})
	provider.SetListener(info, ls)

	props := properties.New()
	require.NoError(t, provider.PublishInterface(props))
	assert.True(t, props.Has(dataport.KeyInPortRef))

	consumer := NewInPortConsumer(broker)
	assert.Equal(t, dataport.ConnectionLost, consumer.Put([]byte{0}))
	require.NoError(t, consumer.SubscribeInterface(props))
	assert.True(t, consumer.IsWritable(false))

	for i := byte(1); i <= 3; i++ {
		assert.Equal(t, dataport.PortOK, consumer.Put([]byte{i}))
	}
	for i := byte(1); i <= 3; i++ {
		data, st := buf.Read(0)
		require.Equal(t, "BUFFER_OK", st.String())
		assert.Equal(t, []byte{i}, data)
	}
	_, st := buf.Read(0)
	assert.Equal(t, "BUFFER_EMPTY", st.String())
	assert.Equal(t, 3, rec.Count("ON_RECEIVED"))

	var got any
	_, ok := consumer.WriteDirect(42)
	assert.False(t, ok)
	provider.SetDirectSink(func(v any) dataport.Status {
		got = v
		return dataport.PortOK
	})
	st2, ok := consumer.WriteDirect(42)
	assert.True(t, ok)
	assert.Equal(t, dataport.PortOK, st2)
	assert.Equal(t, 42, got)

	require.NoError(t, provider.Close())
	assert.Equal(t, 0, broker.Active())

	err := NewInPortConsumer(broker).SubscribeInterface(props)
	assert.ErrorIs(t, err, errors.ErrObjectNotFound)
}

func TestPush_FullMapsToSendFull(t *testing.T) {
	broker := rpc.NewBroker()
	defer broker.Close()

	provider := NewInPortProvider(broker)
	provider.SetConnector(&transporttest.Connector{Buf: transporttest.Buffer(t, 1)})
	props := properties.New()
	require.NoError(t, provider.PublishInterface(props))

	consumer := NewInPortConsumer(broker)
	require.NoError(t, consumer.SubscribeInterface(props))
	assert.Equal(t, dataport.PortOK, consumer.Put([]byte{1}))
	assert.Equal(t, dataport.SendFull, consumer.Put([]byte{2}))
	assert.False(t, consumer.IsWritable(false))
}

func TestPull(t *testing.T) {
	broker := rpc.NewBroker()
	defer broker.Close()
	ls, rec := transporttest.Listeners()
	info := dataport.NewConnectorInfo("pull", "", nil, properties.New())

	src := transporttest.Buffer(t, 4)
	provider := NewOutPortProvider(broker)
	provider.SetConnector(&transporttest.Connector{Buf: src})
	props := properties.New()
	require.NoError(t, provider.PublishInterface(props))

	consumer := NewOutPortConsumer(broker)
	consumer.SetListener(info, ls)
	consumer.SetBuffer(transporttest.Buffer(t, 1))
	require.NoError(t, consumer.SubscribeInterface(props))

	st, _ := consumer.Get()
	assert.Equal(t, dataport.BufferEmpty, st)
	assert.Equal(t, 1, rec.Count("ON_SENDER_EMPTY"))

	src.Write([]byte("v"), 0)
	assert.True(t, consumer.IsReadable(false))
	st, data := consumer.Get()
	assert.Equal(t, dataport.PortOK, st)
	assert.Equal(t, []byte("v"), data)
	assert.Equal(t, 1, rec.Count("ON_RECEIVED"))

	consumer.UnsubscribeInterface(props)
	st, _ = consumer.Get()
	assert.Equal(t, dataport.ConnectionLost, st)
}

func TestRegister(t *testing.T) {
	r := transport.NewRegistry(transport.Deps{Broker: rpc.NewBroker()})
	require.NoError(t, Register(r))
	assert.True(t, r.HasPush(dataport.InterfaceDirect))
	assert.True(t, r.HasPull(dataport.InterfaceDirect))
	assert.Error(t, Register(r))
}
