package component

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/timer"
)

func newEC(t *testing.T, rate float64) (*ExecutionContext, *timer.Timer) {
	t.Helper()
	tm := timer.New(timer.WithLogger(testLogger()))
	ec, err := NewExecutionContext(7, tm, rate, testLogger())
	require.NoError(t, err)
	return ec, tm
}

func TestNewExecutionContext_Validation(t *testing.T) {
	tm := timer.New()
	for _, rate := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := NewExecutionContext(1, tm, rate, nil)
		assert.True(t, errors.IsInvalid(err), "rate %v", rate)
	}
	_, err := NewExecutionContext(1, nil, 10, nil)
	assert.Error(t, err)
}

func TestExecutionContext_DrivesActiveComponents(t *testing.T) {
	ec, tm := newEC(t, 10)

	logic := &recordingLogic{}
	c := newComponent(t, logic)
	require.NoError(t, c.Initialize())
	require.NoError(t, ec.AddComponent(c))
	assert.Equal(t, ECID(7), c.ExecutionContextID())

	require.NoError(t, ec.Start())
	assert.True(t, ec.IsRunning())
	assert.ErrorIs(t, ec.Start(), errors.ErrAlreadyStarted)
	assert.Equal(t, 1, logic.count("startup"))

	tm.Tick(100 * time.Millisecond)
	assert.Zero(t, logic.count("execute"), "inactive")

	require.NoError(t, ec.ActivateComponent(c))
	tm.Tick(100 * time.Millisecond)
	tm.Tick(50 * time.Millisecond)
	assert.Equal(t, 1, logic.count("execute"))
	tm.Tick(50 * time.Millisecond)
	assert.Equal(t, 2, logic.count("execute"))
	assert.Equal(t, 2, logic.count("state_update"))

	require.NoError(t, ec.DeactivateComponent(c))
	require.NoError(t, ec.Stop())
	assert.False(t, ec.IsRunning())
	assert.Equal(t, 1, logic.count("shutdown"))
	assert.ErrorIs(t, ec.Stop(), errors.ErrNotStarted)

	tm.Tick(time.Second)
	assert.Zero(t, tm.Len(), "the stopped task is dropped")
}

func TestExecutionContext_ErrorThenReset(t *testing.T) {
	ec, tm := newEC(t, 100)
	logic := &recordingLogic{fail: map[string]error{"execute": errBoom}}
	c := newComponent(t, logic)
	require.NoError(t, c.Initialize())
	require.NoError(t, ec.AddComponent(c))
	require.NoError(t, ec.Start())
	require.NoError(t, ec.ActivateComponent(c))

	tm.Tick(10 * time.Millisecond)
	assert.Equal(t, StateError, c.State())

	tm.Tick(10 * time.Millisecond)
	assert.Equal(t, 1, logic.count("error"))

	require.NoError(t, ec.ResetComponent(c))
	assert.Equal(t, StateInactive, c.State())
}

func TestExecutionContext_SetRate(t *testing.T) {
	ec, tm := newEC(t, 10)
	logic := &recordingLogic{}
	c := newComponent(t, logic)
	require.NoError(t, c.Initialize())
	require.NoError(t, ec.AddComponent(c))
	require.NoError(t, ec.Start())
	require.NoError(t, c.Activate())

	require.NoError(t, ec.SetRate(100))
	assert.Equal(t, 100.0, ec.Rate())
	assert.Equal(t, 1, logic.count("rate_changed"))

	tm.Tick(10 * time.Millisecond)
	assert.Equal(t, 1, logic.count("execute"))

	assert.True(t, errors.IsInvalid(ec.SetRate(0)))
	assert.Equal(t, 100.0, ec.Rate())
}

func TestExecutionContext_Membership(t *testing.T) {
	ec, _ := newEC(t, 10)
	c := newComponent(t, &NopLogic{})
	require.NoError(t, c.Initialize())

	assert.Error(t, ec.ActivateComponent(c), "not attached")
	assert.Error(t, ec.RemoveComponent(c))

	require.NoError(t, ec.AddComponent(c))
	assert.ErrorIs(t, ec.AddComponent(c), errors.ErrDuplicateName)

	require.NoError(t, ec.ActivateComponent(c))
	assert.ErrorIs(t, ec.RemoveComponent(c), errors.ErrInvalidState)

	require.NoError(t, ec.DeactivateComponent(c))
	require.NoError(t, ec.RemoveComponent(c))
	assert.Empty(t, ec.Components())
}

func TestExecutionContext_AddWhileRunningStartsComponent(t *testing.T) {
	ec, _ := newEC(t, 10)
	require.NoError(t, ec.Start())

	logic := &recordingLogic{}
	c := newComponent(t, logic)
	require.NoError(t, ec.AddComponent(c))
	assert.Equal(t, 1, logic.count("startup"))

	require.NoError(t, ec.RemoveComponent(c))
	assert.Equal(t, 1, logic.count("shutdown"))
}
