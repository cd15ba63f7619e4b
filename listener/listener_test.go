package listener

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/datatype"
	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/cdr"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
	"github.com/OpenRTM/RTM-Tutorial-sub001/serializer"
)

func testInfo() dataport.ConnectorInfo {
	return dataport.NewConnectorInfo("conn0", "id0", []string{"out", "in"}, properties.New())
}

func TestTypeNames(t *testing.T) {
	assert.Equal(t, "ON_BUFFER_WRITE", OnBufferWrite.String())
	assert.Equal(t, "ON_RECEIVER_ERROR", OnReceiverError.String())
	assert.Equal(t, "", DataListenerNum.String())
	assert.Equal(t, "ON_BUFFER_EMPTY", OnBufferEmpty.String())
	assert.Equal(t, "ON_DISCONNECT", OnDisconnect.String())
	assert.Equal(t, "", ListenerType(-1).String())
	assert.Equal(t, "BOTH_CHANGED", BothChanged.String())
}

func TestNotifyData_OrderAndThreading(t *testing.T) {
	ls := NewConnectorListeners()
	info := testInfo()

	var calls []string
	var seen [][]byte

	_, ok := ls.AddDataListener(OnBufferWrite, DataListenerFunc(func(_ dataport.ConnectorInfo, data []byte) (ReturnCode, []byte) {
		calls = append(calls, "first")
		seen = append(seen, data)
		return DataChanged, append(append([]byte(nil), data...), 'a')
	}))
	require.True(t, ok)
	_, ok = ls.AddDataListener(OnBufferWrite, DataListenerFunc(func(_ dataport.ConnectorInfo, data []byte) (ReturnCode, []byte) {
		calls = append(calls, "second")
		seen = append(seen, data)
		return DataChanged, append(append([]byte(nil), data...), 'b')
	}))
	require.True(t, ok)

	code, out := ls.NotifyData(OnBufferWrite, info, []byte("x"))

	assert.Equal(t, []string{"first", "second"}, calls)
	assert.Equal(t, [][]byte{[]byte("x"), []byte("xa")}, seen)
	assert.Equal(t, []byte("xab"), out)
	assert.Equal(t, DataChanged, code)
}

func TestNotifyData_NoChangeKeepsPayload(t *testing.T) {
	ls := NewConnectorListeners()
	ls.AddDataListener(OnReceived, DataListenerFunc(func(_ dataport.ConnectorInfo, _ []byte) (ReturnCode, []byte) {
		return InfoChanged, []byte("ignored")
	}))

	code, out := ls.NotifyData(OnReceived, testInfo(), []byte("keep"))
	assert.Equal(t, InfoChanged, code)
	assert.Equal(t, []byte("keep"), out)
}

func TestNotify_NoListenersIsNoop(t *testing.T) {
	ls := NewConnectorListeners()

	code, out := ls.NotifyData(OnBufferFull, testInfo(), []byte{1})
	assert.Equal(t, NoChange, code)
	assert.Equal(t, []byte{1}, out)
	assert.Equal(t, NoChange, ls.Notify(OnConnect, testInfo()))

	var nilListeners *ConnectorListeners
	code, out = nilListeners.NotifyData(OnBufferWrite, testInfo(), []byte{2})
	assert.Equal(t, NoChange, code)
	assert.Equal(t, []byte{2}, out)
	assert.Equal(t, NoChange, nilListeners.Notify(OnDisconnect, testInfo()))
}

func TestNotify_CombinesCodes(t *testing.T) {
	ls := NewConnectorListeners()
	count := 0
	ls.AddListener(OnConnect, ListenerFunc(func(dataport.ConnectorInfo) ReturnCode {
		count++
		return InfoChanged
	}))
	ls.AddListener(OnConnect, ListenerFunc(func(dataport.ConnectorInfo) ReturnCode {
		count++
		return NoChange
	}))

	assert.Equal(t, InfoChanged, ls.Notify(OnConnect, testInfo()))
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, ls.ListenerCount(OnConnect))
}

func TestRemoveByID(t *testing.T) {
	ls := NewConnectorListeners()
	var calls []int

	id1, _ := ls.AddListener(OnDisconnect, ListenerFunc(func(dataport.ConnectorInfo) ReturnCode {
		calls = append(calls, 1)
		return NoChange
	}))
	ls.AddListener(OnDisconnect, ListenerFunc(func(dataport.ConnectorInfo) ReturnCode {
		calls = append(calls, 2)
		return NoChange
	}))

	assert.True(t, ls.RemoveListener(OnDisconnect, id1))
	assert.False(t, ls.RemoveListener(OnDisconnect, id1))
	ls.Notify(OnDisconnect, testInfo())
	assert.Equal(t, []int{2}, calls)

	did, _ := ls.AddDataListener(OnSend, DataListenerFunc(func(_ dataport.ConnectorInfo, d []byte) (ReturnCode, []byte) {
		return NoChange, d
	}))
	assert.Equal(t, 1, ls.DataListenerCount(OnSend))
	assert.True(t, ls.RemoveDataListener(OnSend, did))
	assert.Equal(t, 0, ls.DataListenerCount(OnSend))
}

func TestRemove_SameListenerTwice(t *testing.T) {
	ls := NewConnectorListeners()
	calls := 0
	l := ListenerFunc(func(dataport.ConnectorInfo) ReturnCode {
		calls++
		return NoChange
	})

	first, ok := ls.AddListener(OnConnect, l)
	require.True(t, ok)
	second, ok := ls.AddListener(OnConnect, l)
	require.True(t, ok)
	assert.NotEqual(t, first, second)

	ls.Notify(OnConnect, testInfo())
	assert.Equal(t, 2, calls)

	assert.True(t, ls.RemoveListener(OnConnect, second))
	assert.False(t, ls.RemoveListener(OnDisconnect, first))
	ls.Notify(OnConnect, testInfo())
	assert.Equal(t, 3, calls)

	assert.True(t, ls.RemoveListener(OnConnect, first))
	assert.Equal(t, 0, ls.ListenerCount(OnConnect))
}

func TestAddUnknownType(t *testing.T) {
	ls := NewConnectorListeners()
	_, ok := ls.AddDataListener(DataListenerNum, DataListenerFunc(func(_ dataport.ConnectorInfo, d []byte) (ReturnCode, []byte) {
		return NoChange, d
	}))
	assert.False(t, ok)
	_, ok = ls.AddListener(ListenerNum, ListenerFunc(func(dataport.ConnectorInfo) ReturnCode { return NoChange }))
	assert.False(t, ok)
	assert.False(t, ls.RemoveListener(ListenerNum, 1))
}

func TestListenerMayRegisterDuringNotify(t *testing.T) {
	ls := NewConnectorListeners()
	added := 0
	ls.AddListener(OnConnect, ListenerFunc(func(dataport.ConnectorInfo) ReturnCode {
		added++
		ls.AddListener(OnConnect, ListenerFunc(func(dataport.ConnectorInfo) ReturnCode { return NoChange }))
		return NoChange
	}))

	ls.Notify(OnConnect, testInfo())
	assert.Equal(t, 1, added)
	assert.Equal(t, 2, ls.ListenerCount(OnConnect))
}

func TestPanickingListenerIsSkipped(t *testing.T) {
	ls := NewConnectorListeners()
	ls.AddDataListener(OnBufferRead, DataListenerFunc(func(dataport.ConnectorInfo, []byte) (ReturnCode, []byte) {
		panic("listener bug")
	}))
	ls.AddDataListener(OnBufferRead, DataListenerFunc(func(_ dataport.ConnectorInfo, d []byte) (ReturnCode, []byte) {
		return DataChanged, append(d, 9)
	}))

	assert.NotPanics(t, func() {
		code, out := ls.NotifyData(OnBufferRead, testInfo(), []byte{1})
		assert.Equal(t, DataChanged, code)
		assert.Equal(t, []byte{1, 9}, out)
	})
}

func TestMetricsCounted(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	core := registry.CoreMetrics()
	ls := NewConnectorListeners(WithMetrics(core))

	ls.NotifyData(OnBufferWrite, testInfo(), nil)
	assert.Equal(t, 0.0, testutil.ToFloat64(core.ListenerCalls.WithLabelValues("ON_BUFFER_WRITE")))

	ls.AddDataListener(OnBufferWrite, DataListenerFunc(func(_ dataport.ConnectorInfo, d []byte) (ReturnCode, []byte) {
		return NoChange, d
	}))
	ls.NotifyData(OnBufferWrite, testInfo(), nil)
	ls.NotifyData(OnBufferWrite, testInfo(), nil)
	assert.Equal(t, 2.0, testutil.ToFloat64(core.ListenerCalls.WithLabelValues("ON_BUFFER_WRITE")))
}

func TestTypedListener(t *testing.T) {
	reg := serializer.NewRegistry(nil)
	serializer.RegisterBuiltins(reg)

	payload, err := cdr.Marshal(datatype.TimedLong{Data: 10}, cdr.LittleEndian)
	require.NoError(t, err)

	var got int32
	typed := NewTyped(reg, OutPortType, func(_ dataport.ConnectorInfo, v datatype.TimedLong) (ReturnCode, datatype.TimedLong) {
		got = v.Data
		v.Data *= 2
		return DataChanged, v
	})

	ls := NewConnectorListeners()
	ls.AddDataListener(OnSend, typed)

	code, out := ls.NotifyData(OnSend, testInfo(), payload)
	assert.Equal(t, int32(10), got)
	assert.Equal(t, DataChanged, code)

	var decoded datatype.TimedLong
	require.NoError(t, cdr.Unmarshal(out, cdr.LittleEndian, &decoded))
	assert.Equal(t, int32(20), decoded.Data)
}

func TestTypedListener_BigEndianAndUndecodable(t *testing.T) {
	reg := serializer.NewRegistry(nil)
	serializer.RegisterBuiltins(reg)

	props := properties.New()
	props.Set("serializer.cdr.endian", "big")
	info := dataport.NewConnectorInfo("c", "", nil, props)

	payload, err := cdr.Marshal(datatype.TimedLong{Data: 3}, cdr.BigEndian)
	require.NoError(t, err)

	called := false
	typed := NewTyped(reg, InPortType, func(_ dataport.ConnectorInfo, v datatype.TimedLong) (ReturnCode, datatype.TimedLong) {
		called = true
		assert.Equal(t, int32(3), v.Data)
		return NoChange, v
	})

	code, out := typed.OnData(info, payload)
	assert.True(t, called)
	assert.Equal(t, NoChange, code)
	assert.Equal(t, payload, out)

	called = false
	code, out = typed.OnData(info, []byte{1})
	assert.False(t, called)
	assert.Equal(t, NoChange, code)
	assert.Equal(t, []byte{1}, out)
}

func TestTypedListener_MarshalingOverride(t *testing.T) {
	reg := serializer.NewRegistry(nil)
	serializer.RegisterBuiltins(reg)

	props := properties.New()
	props.Set("inport.marshaling_type", "ros:std_msgs/Int32")
	info := dataport.NewConnectorInfo("c", "", nil, props)

	called := false
	typed := NewTyped(reg, InPortType, func(_ dataport.ConnectorInfo, v datatype.TimedLong) (ReturnCode, datatype.TimedLong) {
		called = true
		assert.Equal(t, int32(7), v.Data)
		return NoChange, v
	})

	typed.OnData(info, []byte{4, 0, 0, 0, 7, 0, 0, 0})
	assert.True(t, called)
}
