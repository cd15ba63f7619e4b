package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/listener"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/buffer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
	"github.com/OpenRTM/RTM-Tutorial-sub001/rpc"
	"github.com/OpenRTM/RTM-Tutorial-sub001/serializer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport/transporttest"
)

func serializers() *serializer.Registry {
	r := serializer.NewRegistry(nil)
	serializer.RegisterBuiltins(r)
	return r
}

func localManager(t *testing.T) *TopicManager {
	t.Helper()
	m := NewTopicManager(nil, WithWorkers(1, 16))
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestFlavor_Subject(t *testing.T) {
	assert.Equal(t, "rtm.ros.chatter", ROS.Subject("/chatter"))
	assert.Equal(t, "rtm.ros2.sensor.imu", ROS2.Subject("sensor/imu"))
	assert.Equal(t, "rtm.opensplice.chatter", OpenSplice.Subject(""))
	assert.Equal(t, "rtm.ros.a_b", ROS.Subject("a*b"))
}

func TestFlavor_Properties(t *testing.T) {
	props := properties.FromMap(map[string]string{
		"ros2.subscriber.qos.reliability": "RELIABLE",
		"ros.subscriber.qos.reliability":  "reliable",
		"ros.node.name":                   "talker",
	})
	assert.True(t, ROS2.reliable(props, "subscriber"))
	assert.False(t, ROS2.reliable(props, "publisher"))
	assert.False(t, ROS.reliable(props, "subscriber"))
	assert.Equal(t, "/talker", ROS.nodeName(props))
	assert.Equal(t, "/rtcomp", ROS2.nodeName(props))
	assert.Equal(t, "ros2:std_msgs/Float32", ROS2.marshalingType(properties.New()))
}

func TestLoopback_Delivery(t *testing.T) {
	m := localManager(t)
	reg := serializers()
	props := properties.FromMap(map[string]string{
		dataport.KeyMarshalingType: "ros:std_msgs/Int32",
		"ros.topic":                "numbers",
	})

	buf := transporttest.Buffer(t, 4)
	ls, rec := transporttest.Listeners()
	sub := NewSubscriber(ROS, m, reg, nil)
	sub.SetConnector(&transporttest.Connector{Buf: buf})
	sub.SetListener(dataport.NewConnectorInfo("ros", "", nil, props), ls)
	require.NoError(t, sub.Init(props))
	assert.Equal(t, []string{"rtm.ros.numbers"}, m.Topics())

	pub := NewPublisher(ROS, m, reg, nil)
	assert.Equal(t, dataport.ConnectionLost, pub.Put([]byte{1}))
	require.NoError(t, pub.Init(props))
	assert.True(t, pub.IsWritable(false))
	assert.Equal(t, sub.Subject(), pub.Subject())

	assert.Equal(t, dataport.PortOK, pub.Put([]byte{1, 2, 3}))
	assert.Eventually(t, func() bool { return !buf.Empty() }, time.Second, 5*time.Millisecond)
	got, st := buf.Read(0)
	assert.Equal(t, buffer.StatusOK, st)
	assert.Equal(t, []byte{1, 2, 3}, got)
	assert.Eventually(t, func() bool { return rec.Count("ON_BUFFER_WRITE") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, pub.Close())
	assert.Equal(t, dataport.ConnectionLost, pub.Put([]byte{4}))
	require.NoError(t, sub.Close())
	assert.Empty(t, m.Topics())
}

func TestLoopback_PreservesOrder(t *testing.T) {
	m := NewTopicManager(nil)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Close() })
	reg := serializers()
	props := properties.FromMap(map[string]string{
		dataport.KeyMarshalingType: "ros:std_msgs/Int32",
		"ros.topic":                "order",
	})

	const n = 200
	buf := transporttest.Buffer(t, n)
	ls := listener.NewConnectorListeners()
	ls.AddDataListener(listener.OnReceived, listener.DataListenerFunc(
		func(_ dataport.ConnectorInfo, data []byte) (listener.ReturnCode, []byte) {
			time.Sleep(time.Duration(data[0]%3) * 100 * time.Microsecond)
			return listener.NoChange, data
		}))
	sub := NewSubscriber(ROS, m, reg, nil)
	sub.SetConnector(&transporttest.Connector{Buf: buf})
	sub.SetListener(dataport.NewConnectorInfo("ros", "", nil, props), ls)
	require.NoError(t, sub.Init(props))

	pub := NewPublisher(ROS, m, reg, nil)
	require.NoError(t, pub.Init(props))
	for i := 0; i < n; i++ {
		require.Equal(t, dataport.PortOK, pub.Put([]byte{byte(i)}))
	}
	assert.Eventually(t, func() bool { return m.Stats().Processed == n }, 5*time.Second, 5*time.Millisecond)

	for i := 0; i < n; i++ {
		got, st := buf.Read(0)
		require.Equal(t, buffer.StatusOK, st)
		require.Equal(t, []byte{byte(i)}, got, "delivery %d out of order", i)
	}
}

func TestDispatch_TypeMismatch(t *testing.T) {
	m := localManager(t)
	reg := serializers()
	props := properties.FromMap(map[string]string{
		dataport.KeyMarshalingType: "ros:std_msgs/Int32",
	})

	buf := transporttest.Buffer(t, 4)
	ls, rec := transporttest.Listeners()
	sub := NewSubscriber(ROS, m, reg, nil)
	sub.SetConnector(&transporttest.Connector{Buf: buf})
	sub.SetListener(dataport.NewConnectorInfo("ros", "", nil, props), ls)
	require.NoError(t, sub.Init(props))

	msg := nats.NewMsg(sub.Subject())
	msg.Data = []byte{9}
	msg.Header.Set(HeaderType, "std_msgs/String")
	require.NoError(t, m.publish(msg, ROS, false))
	assert.Equal(t, 1, rec.Count("ON_RECEIVER_ERROR"))

	msg.Header.Set(HeaderType, "std_msgs/Int32")
	msg.Header.Set(HeaderMD5Sum, "0000")
	require.NoError(t, m.publish(msg, ROS, false))
	assert.Equal(t, 2, rec.Count("ON_RECEIVER_ERROR"))

	msg.Header.Set(HeaderMD5Sum, "*")
	require.NoError(t, m.publish(msg, ROS, false))
	assert.Eventually(t, func() bool { return !buf.Empty() }, time.Second, 5*time.Millisecond)
}

func TestSharedTopic(t *testing.T) {
	m := localManager(t)
	reg := serializers()
	props := properties.FromMap(map[string]string{
		dataport.KeyMarshalingType: "ros2:std_msgs/String",
		"ros2.topic":               "shared",
	})

	a, b := transporttest.Buffer(t, 2), transporttest.Buffer(t, 2)
	subA := NewSubscriber(ROS2, m, reg, nil)
	subA.SetConnector(&transporttest.Connector{Buf: a})
	require.NoError(t, subA.Init(props))
	subB := NewSubscriber(ROS2, m, reg, nil)
	subB.SetConnector(&transporttest.Connector{Buf: b})
	require.NoError(t, subB.Init(props))
	assert.Len(t, m.Topics(), 1)

	pub := NewPublisher(ROS2, m, reg, nil)
	require.NoError(t, pub.Init(props))
	assert.Equal(t, dataport.PortOK, pub.Put([]byte("hi")))
	assert.Eventually(t, func() bool { return !a.Empty() && !b.Empty() }, time.Second, 5*time.Millisecond)

	require.NoError(t, subA.Close())
	assert.Len(t, m.Topics(), 1)
	require.NoError(t, subB.Close())
	assert.Empty(t, m.Topics())
}

func TestInit_UnknownType(t *testing.T) {
	m := localManager(t)
	reg := serializers()

	sub := NewSubscriber(ROS, m, reg, nil)
	err := sub.Init(properties.FromMap(map[string]string{dataport.KeyMarshalingType: "ros:nope/Nothing"}))
	assert.ErrorIs(t, err, errors.ErrSerializerNotFound)

	pub := NewPublisher(OpenSplice, m, reg, nil)
	err = pub.Init(properties.FromMap(map[string]string{dataport.KeyDataType: "IDL:Unknown:1.0"}))
	assert.ErrorIs(t, err, errors.ErrSerializerNotFound)
	require.NoError(t, pub.Init(properties.FromMap(map[string]string{dataport.KeyDataType: "IDL:RTC/TimedLong:1.0"})))
	assert.Equal(t, "rtm.opensplice.chatter", pub.Subject())

	orphan := NewPublisher(ROS, nil, reg, nil)
	assert.ErrorIs(t, orphan.Init(properties.New()), errors.ErrMissingConfig)
}

func TestRegister(t *testing.T) {
	r := transport.NewRegistry(transport.Deps{Broker: rpc.NewBroker(), Serializers: serializers()})
	require.Error(t, Register(r, nil))
	require.NoError(t, Register(r, localManager(t)))
	for _, name := range []string{dataport.InterfaceROS, dataport.InterfaceROS2, dataport.InterfaceOpenSplice} {
		assert.True(t, r.HasPush(name), name)
		assert.False(t, r.HasPull(name), name)
	}
	p, err := r.CreateInPortProvider(dataport.InterfaceROS2)
	require.NoError(t, err)
	assert.IsType(t, &Subscriber{}, p)
}
