package port

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/connector"
	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/datatype"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/buffer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
	"github.com/OpenRTM/RTM-Tutorial-sub001/rpc"
	"github.com/OpenRTM/RTM-Tutorial-sub001/serializer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/timer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport/corbacdr"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport/direct"
)

func testDeps(t *testing.T) Deps {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sers := serializer.NewRegistry(logger)
	serializer.RegisterBuiltins(sers)

	bufs := buffer.NewRegistry[[]byte]()
	require.NoError(t, bufs.Add(buffer.RingBufferName, buffer.RingBufferFactory[[]byte](nil)))

	pubs := connector.NewPublishers(connector.PublisherDeps{Timer: timer.New(), Logger: logger})
	require.NoError(t, connector.RegisterPublishers(pubs))

	transports := transport.NewRegistry(transport.Deps{Broker: rpc.NewBroker(), Serializers: sers, Logger: logger})
	require.NoError(t, corbacdr.Register(transports))
	require.NoError(t, direct.Register(transports))

	return Deps{
		Transports:  transports,
		Buffers:     bufs,
		Serializers: sers,
		Publishers:  pubs,
		Logger:      logger,
	}
}

func ports(t *testing.T) (*OutPort[datatype.TimedLong], *InPort[datatype.TimedLong]) {
	deps := testDeps(t)
	return NewOutPort[datatype.TimedLong]("out", deps), NewInPort[datatype.TimedLong]("in", deps)
}

func TestConnect_Interfaces(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]string
	}{
		{name: "corba_cdr push", props: map[string]string{}},
		{name: "direct push", props: map[string]string{dataport.KeyInterfaceType: "direct"}},
		{name: "corba_cdr pull", props: map[string]string{dataport.KeyDataflowType: "pull"}},
		{name: "corba_cdr push new", props: map[string]string{dataport.KeySubscriptionType: "new", "publisher.push_policy": "all"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, in := ports(t)
			info, err := Connect("c0", out, in, properties.FromMap(tt.props))
			require.NoError(t, err)
			defer Disconnect(info.ID, out, in)

			require.Len(t, out.Connectors(), 1)
			require.Len(t, in.Connectors(), 1)
			assert.Equal(t, "IDL:RTC/TimedLong:1.0", info.Properties.Get(dataport.KeyDataType))
			assert.Equal(t, []string{"out", "in"}, info.Ports)

			require.Equal(t, dataport.PortOK, out.Write(datatype.TimedLong{Data: 42}))
			assert.Eventually(t, in.IsNew, time.Second, 5*time.Millisecond)

			v, st := in.Read()
			require.Equal(t, dataport.PortOK, st)
			assert.Equal(t, int32(42), v.Data)
			assert.Equal(t, int32(42), in.Value().Data)
		})
	}
}

func TestConnect_Defaults(t *testing.T) {
	out, in := ports(t)
	info, err := Connect("c0", out, in, nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultInterfaceType, info.Properties.Get(dataport.KeyInterfaceType))
	assert.Equal(t, DefaultDataflowType, info.Properties.Get(dataport.KeyDataflowType))
	assert.NotEmpty(t, info.Properties.Get(dataport.KeyInPortRef))

	prof := in.Profile()
	assert.Equal(t, DirectionInput, prof.Direction)
	require.Len(t, prof.Connectors, 1)
	assert.Equal(t, info.ID, prof.Connectors[0].ID)
}

func TestConnect_PortDefaultsLayered(t *testing.T) {
	deps := testDeps(t)
	out := NewOutPort[datatype.TimedLong]("out", deps,
		WithProperties(properties.FromMap(map[string]string{dataport.KeyInterfaceType: "direct", "buffer.length": "4"})))
	in := NewInPort[datatype.TimedLong]("in", deps,
		WithProperties(properties.FromMap(map[string]string{"buffer.length": "2"})))

	info, err := Connect("c0", out, in, properties.FromMap(map[string]string{"buffer.length": "3"}))
	require.NoError(t, err)
	assert.Equal(t, "direct", info.Properties.Get(dataport.KeyInterfaceType))
	assert.Equal(t, "3", info.Properties.Get("buffer.length"))
	assert.Equal(t, 3, in.Connectors()[0].Buffer().Length())
}

func TestConnect_Failures(t *testing.T) {
	out, in := ports(t)

	_, err := Connect("c0", out, in, properties.FromMap(map[string]string{dataport.KeyInterfaceType: "carrier_pigeon"}))
	assert.ErrorIs(t, err, errors.ErrUnknownTransport)

	_, err = Connect("c0", out, in, properties.FromMap(map[string]string{dataport.KeyDataflowType: "duplex"}))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	_, err = Connect("c0", out, in, properties.FromMap(map[string]string{"serializer.cdr.endian": ""}))
	assert.ErrorIs(t, err, errors.ErrEndianNotSet)

	_, err = Connect[datatype.TimedLong]("c0", nil, in, nil)
	assert.ErrorIs(t, err, errors.ErrPortNotFound)

	assert.Empty(t, out.Connectors())
	assert.Empty(t, in.Connectors())
}

func TestDisconnect(t *testing.T) {
	out, in := ports(t)
	info, err := Connect("c0", out, in, nil)
	require.NoError(t, err)

	assert.Equal(t, dataport.PortOK, Disconnect(info.ID, out, in))
	assert.Empty(t, out.Connectors())
	assert.Empty(t, in.Connectors())
	assert.Equal(t, dataport.PreconditionNotMet, Disconnect(info.ID, out, in))
	assert.Equal(t, dataport.PreconditionNotMet, out.Write(datatype.TimedLong{}))
}

func TestOutPortWrite_RemovesLostConnectors(t *testing.T) {
	out, in := ports(t)
	_, err := Connect("c0", out, in, nil)
	require.NoError(t, err)

	in.DisconnectAll()
	assert.Equal(t, dataport.ConnectionLost, out.Write(datatype.TimedLong{Data: 1}))
	assert.Empty(t, out.Connectors())
}

func TestInPortRead_Fallbacks(t *testing.T) {
	out, in := ports(t)
	_, st := in.Read()
	assert.Equal(t, dataport.PreconditionNotMet, st)

	info, err := Connect("c0", out, in, nil)
	require.NoError(t, err)
	require.Equal(t, dataport.PortOK, out.Write(datatype.TimedLong{Data: 7}))

	v, st := in.Read()
	require.Equal(t, dataport.PortOK, st)
	assert.Equal(t, int32(7), v.Data)

	v, st = in.Read()
	assert.Equal(t, dataport.BufferEmpty, st)
	assert.Equal(t, int32(7), v.Data)

	_, st = in.ReadFrom("missing")
	assert.Equal(t, dataport.PreconditionNotMet, st)
	require.Equal(t, dataport.PortOK, out.Write(datatype.TimedLong{Data: 8}))
	v, st = in.ReadFrom(info.Name)
	require.Equal(t, dataport.PortOK, st)
	assert.Equal(t, int32(8), v.Data)
}

func TestCallbacks(t *testing.T) {
	out, in := ports(t)
	_, err := Connect("c0", out, in, properties.FromMap(map[string]string{dataport.KeyInterfaceType: "direct"}))
	require.NoError(t, err)

	var written []int32
	out.SetOnWrite(func(v datatype.TimedLong) { written = append(written, v.Data) })
	out.SetOnWriteConvert(func(v datatype.TimedLong) datatype.TimedLong { v.Data *= 10; return v })
	reads := 0
	in.SetOnRead(func() { reads++ })
	in.SetOnReadConvert(func(v datatype.TimedLong) datatype.TimedLong { v.Data++; return v })

	require.Equal(t, dataport.PortOK, out.Write(datatype.TimedLong{Data: 2}))
	assert.Equal(t, []int32{2}, written)
	assert.Equal(t, int32(20), out.Value().Data)

	v, st := in.Read()
	require.Equal(t, dataport.PortOK, st)
	assert.Equal(t, int32(21), v.Data)
	assert.Equal(t, 1, reads)
}

func TestOnConnectedHook(t *testing.T) {
	deps := testDeps(t)
	var seen []string
	out := NewOutPort[datatype.TimedLong]("out", deps)
	in := NewInPort[datatype.TimedLong]("in", deps, OnConnected(func(c connector.Connector) {
		seen = append(seen, c.ID())
	}))
	info, err := Connect("c0", out, in, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{info.ID}, seen)
}
