package rtm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/component"
	"github.com/OpenRTM/RTM-Tutorial-sub001/connector"
	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/datatype"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/buffer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/port"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	rt, err := New(append([]Option{WithLogger(testLogger()), WithPoolSize(4)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })
	return rt
}

func TestNew_FactoryInit(t *testing.T) {
	rt := newRuntime(t, WithMetricsRegistry(metric.NewMetricsRegistry()))

	assert.Equal(t, []string{buffer.RingBufferName}, rt.Buffers().Names())

	for _, name := range []string{connector.PublisherFlush, connector.PublisherNew, connector.PublisherPeriodic} {
		assert.True(t, rt.Publishers().Has(name), name)
	}

	for _, iface := range []string{
		dataport.InterfaceCorbaCDR, dataport.InterfaceDirect, dataport.InterfaceSharedMemory,
		dataport.InterfaceCSPChannel, dataport.InterfaceROS, dataport.InterfaceOpenSplice,
	} {
		assert.True(t, rt.Transports().HasPush(iface), iface)
	}
	assert.True(t, rt.Transports().HasPull(dataport.InterfaceCorbaCDR))
	assert.False(t, rt.Transports().HasPull(dataport.InterfaceROS), "pub/sub is push only")

	for _, name := range []string{"cdr", "ros:std_msgs/Int32", "ros2:std_msgs/Int32"} {
		assert.True(t, rt.Serializers().Has(name, datatype.TimedLong{}), name)
	}
}

func TestNew_InvalidInstance(t *testing.T) {
	_, err := New(WithInstance("no spaces"), WithLogger(testLogger()))
	assert.True(t, errors.IsInvalid(err))
}

func TestRuntime_ConnectsPorts(t *testing.T) {
	rt := newRuntime(t)
	require.NoError(t, rt.Start(context.Background()))
	assert.ErrorIs(t, rt.Start(context.Background()), errors.ErrAlreadyStarted)

	for _, iface := range []string{dataport.InterfaceCorbaCDR, dataport.InterfaceDirect} {
		t.Run(iface, func(t *testing.T) {
			deps := rt.PortDeps()
			out := port.NewOutPort[datatype.TimedLong]("out", deps)
			in := port.NewInPort[datatype.TimedLong]("in", deps)
			info, err := port.Connect("c-"+iface, out, in,
				properties.FromMap(map[string]string{dataport.KeyInterfaceType: iface}))
			require.NoError(t, err)
			defer port.Disconnect(info.ID, out, in)

			require.Equal(t, dataport.PortOK, out.Write(datatype.TimedLong{Data: 8}))
			v, st := in.Read()
			require.Equal(t, dataport.PortOK, st)
			assert.Equal(t, int32(8), v.Data)
		})
	}
}

type countingLogic struct {
	component.NopLogic
	executed int
}

func (l *countingLogic) OnExecute(component.ECID) error {
	l.executed++
	return nil
}

func TestRuntime_ComponentsAndExecutionContexts(t *testing.T) {
	rt := newRuntime(t, WithMetricsRegistry(metric.NewMetricsRegistry()))
	logic := &countingLogic{}
	require.NoError(t, rt.Components().RegisterFactory(component.Registration{
		Name: "counter",
		Factory: func(instance string, _ json.RawMessage, deps component.Dependencies) (*component.Component, error) {
			return component.New(instance, logic, component.WithLogger(deps.Log()))
		},
	}))

	c, err := rt.CreateComponent("counter", "counter0", nil)
	require.NoError(t, err)
	assert.Equal(t, component.StateInactive, c.State(), "created components are initialised")

	ec0, err := rt.NewExecutionContext(100)
	require.NoError(t, err)
	ec1, err := rt.NewExecutionContext(50)
	require.NoError(t, err)
	assert.Equal(t, component.ECID(0), ec0.ID())
	assert.Equal(t, component.ECID(1), ec1.ID())
	assert.Len(t, rt.ExecutionContexts(), 2)

	require.NoError(t, ec0.AddComponent(c))
	require.NoError(t, ec0.Start())
	require.NoError(t, ec0.ActivateComponent(c))

	rt.Timer().Tick(10 * time.Millisecond)
	rt.Timer().Tick(10 * time.Millisecond)
	assert.Equal(t, 2, logic.executed)

	require.NoError(t, rt.Shutdown(context.Background()))
	assert.False(t, ec0.IsRunning())
	assert.Empty(t, rt.Components().Components())
	assert.Equal(t, component.StateInactive, c.State(), "deactivated before finalize")

	_, err = rt.NewExecutionContext(10)
	assert.ErrorIs(t, err, errors.ErrShuttingDown)
	require.NoError(t, rt.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestRuntime_CreateComponentFailsInitialize(t *testing.T) {
	rt := newRuntime(t)
	require.NoError(t, rt.Components().RegisterFactory(component.Registration{
		Name: "broken",
		Factory: func(instance string, _ json.RawMessage, _ component.Dependencies) (*component.Component, error) {
			return component.New(instance, &failingInit{}, component.WithLogger(testLogger()))
		},
	}))

	_, err := rt.CreateComponent("broken", "b0", nil)
	require.Error(t, err)
	_, ok := rt.Components().Component("b0")
	assert.False(t, ok)
}

type failingInit struct{ component.NopLogic }

func (failingInit) OnInitialize() error { return errors.ErrInvalidConfig }

func TestRuntime_RunStopsWithContext(t *testing.T) {
	rt := newRuntime(t, WithTickInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	fired := make(chan struct{}, 1)
	rt.Timer().Delay(func() { fired <- struct{}{} }, 5*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not advance")
	}
	cancel()
	assert.NoError(t, <-done)
}

func TestRecordProfiles_NoBucket(t *testing.T) {
	rt := newRuntime(t)
	assert.NoError(t, rt.RecordProfiles(context.Background()))
}
