package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(999).String())
	assert.Equal(t, "unknown", ErrorClass(-1).String())
}

func TestClassification(t *testing.T) {
	cases := []struct {
		name                       string
		err                        error
		transient, fatal, invalid bool
	}{
		{"nil", nil, false, false, false},
		{"connection timeout", ErrConnectionTimeout, true, false, false},
		{"connection lost", ErrConnectionLost, true, false, false},
		{"no connection", ErrNoConnection, true, false, false},
		{"circuit open", ErrCircuitOpen, true, false, false},
		{"deadline", context.DeadlineExceeded, true, false, false},
		{"canceled", context.Canceled, true, false, false},
		{"timeout in message", fmt.Errorf("remote call timeout"), true, false, false},
		{"invalid config", ErrInvalidConfig, false, true, false},
		{"data corrupted", ErrDataCorrupted, false, true, false},
		{"resource exhausted", ErrResourceExhausted, false, true, false},
		{"panic in message", fmt.Errorf("codec panic"), false, true, false},
		{"invalid data", ErrInvalidData, false, false, true},
		{"endian not set", ErrEndianNotSet, false, false, true},
		{"unknown transport", ErrUnknownTransport, false, false, true},
		{"serializer not found", ErrSerializerNotFound, false, false, true},
		{"invalid size", ErrInvalidSize, false, false, true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: ErrInvalidData}, true, false, false},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: ErrConnectionLost}, false, true, false},
		{"wrapped sentinel", fmt.Errorf("put: %w", ErrEndianNotSet), false, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.transient, IsTransient(tc.err), "transient")
			assert.Equal(t, tc.fatal, IsFatal(tc.err), "fatal")
			assert.Equal(t, tc.invalid, IsInvalid(tc.err), "invalid")
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(nil))
	assert.Equal(t, ErrorTransient, Classify(ErrConnectionLost))
	assert.Equal(t, ErrorFatal, Classify(ErrInvalidConfig))
	assert.Equal(t, ErrorInvalid, Classify(ErrUnknownTransport))
	assert.Equal(t, ErrorTransient, Classify(errors.New("something odd")))
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, "Connector", "Write", "serialize"))

	err := Wrap(ErrEndianNotSet, "OutPortPushConnector", "Init", "endian parse")
	assert.EqualError(t, err, "OutPortPushConnector.Init: endian parse failed: serializer endian not set")
	assert.ErrorIs(t, err, ErrEndianNotSet)
}

func TestWrapClassified(t *testing.T) {
	cases := map[ErrorClass]func(error, string, string, string) error{
		ErrorTransient: WrapTransient,
		ErrorInvalid:   WrapInvalid,
		ErrorFatal:     WrapFatal,
	}
	for class, wrap := range cases {
		t.Run(class.String(), func(t *testing.T) {
			assert.NoError(t, wrap(nil, "c", "m", "a"))

			err := wrap(ErrConnectionLost, "Broker", "Invoke", "remote put")
			var ce *ClassifiedError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, class, ce.Class)
			assert.Equal(t, "Broker", ce.Component)
			assert.Equal(t, "Invoke", ce.Operation)
			assert.ErrorIs(t, err, ErrConnectionLost)
			assert.Contains(t, err.Error(), "remote put failed")
			assert.Equal(t, class, Classify(err))
		})
	}
}

func TestFromPanic(t *testing.T) {
	assert.NoError(t, FromPanic(nil, "c", "m"))

	err := FromPanic("index out of range", "CDRSerializer", "Serialize")
	assert.True(t, IsFatal(err))
	assert.Contains(t, err.Error(), "index out of range")

	err = FromPanic(ErrDataCorrupted, "CDRSerializer", "Deserialize")
	assert.ErrorIs(t, err, ErrDataCorrupted)
}
