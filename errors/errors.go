package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass tells a caller whether to retry, reject or give up
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

var classNames = [...]string{ErrorTransient: "transient", ErrorInvalid: "invalid", ErrorFatal: "fatal"}

func (ec ErrorClass) String() string {
	if ec < 0 || int(ec) >= len(classNames) {
		return "unknown"
	}
	return classNames[ec]
}

// Standard error variables for common conditions
var (
	// Lifecycle
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")
	ErrShuttingDown   = errors.New("shutting down")
	ErrInvalidState   = errors.New("invalid state transition")

	// Connectivity
	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrObjectNotFound    = errors.New("object reference not found")
	ErrCircuitOpen       = errors.New("circuit breaker open")

	// Connector and transport wiring
	ErrConnectorClosed      = errors.New("connector closed")
	ErrUnknownTransport     = errors.New("unknown interface type")
	ErrUnknownBuffer        = errors.New("unknown buffer type")
	ErrUnknownPublisher     = errors.New("unknown publisher type")
	ErrSerializerNotFound   = errors.New("serializer not found")
	ErrEndianNotSet         = errors.New("serializer endian not set")
	ErrPortNotFound         = errors.New("port not found")
	ErrIncompatibleDataType = errors.New("incompatible data type")
	ErrDuplicateName        = errors.New("duplicate name")

	// Shared memory
	ErrSegmentClosed   = errors.New("shared memory segment closed")
	ErrSegmentTooSmall = errors.New("shared memory segment too small")
	ErrInvalidSize     = errors.New("invalid memory size")

	// Data
	ErrInvalidData   = errors.New("invalid data format")
	ErrDataCorrupted = errors.New("data corrupted")
	ErrParsingFailed = errors.New("parsing failed")

	// Configuration
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Resources
	ErrResourceExhausted  = errors.New("resource exhausted")
	ErrRateLimited        = errors.New("rate limited")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

// ClassifiedError carries an ErrorClass and the place it was raised
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// rule recognises an unclassified error by sentinel or message fragment
type rule struct {
	sentinels []error
	fragments []string
}

func (r rule) match(err error) bool {
	for _, s := range r.sentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	if len(r.fragments) == 0 {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, f := range r.fragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}

var rules = map[ErrorClass]rule{
	ErrorTransient: {
		sentinels: []error{ErrConnectionTimeout, ErrConnectionLost, ErrNoConnection, ErrRateLimited,
			ErrCircuitOpen, context.DeadlineExceeded, context.Canceled},
		fragments: []string{"timeout", "connection", "network", "temporary", "unavailable", "busy"},
	},
	ErrorFatal: {
		sentinels: []error{ErrInvalidConfig, ErrMissingConfig, ErrDataCorrupted, ErrResourceExhausted},
		fragments: []string{"fatal", "panic", "corrupted", "out of memory"},
	},
	ErrorInvalid: {
		sentinels: []error{ErrInvalidData, ErrParsingFailed, ErrEndianNotSet, ErrUnknownTransport,
			ErrUnknownBuffer, ErrSerializerNotFound, ErrInvalidSize},
	},
}

// is reports whether err belongs to class. A ClassifiedError anywhere in
// the chain decides; otherwise the class rule is consulted.
func is(err error, class ErrorClass) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == class
	}
	return rules[class].match(err)
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool { return is(err, ErrorTransient) }

// IsFatal reports whether err should stop use of the resource
func IsFatal(err error) bool { return is(err, ErrorFatal) }

// IsInvalid reports whether err was caused by bad input or configuration
func IsInvalid(err error) bool { return is(err, ErrorInvalid) }

// Classify returns the class of err. Unrecognised errors, and nil, are
// treated as transient.
func Classify(err error) ErrorClass {
	for _, class := range []ErrorClass{ErrorTransient, ErrorFatal, ErrorInvalid} {
		if is(err, class) {
			return class
		}
	}
	return ErrorTransient
}

// Wrap adds context in the form "component.method: action failed: err"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapAs(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}

// WrapTransient wraps err with context and marks it transient
func WrapTransient(err error, component, method, action string) error {
	return wrapAs(ErrorTransient, err, component, method, action)
}

// WrapFatal wraps err with context and marks it fatal
func WrapFatal(err error, component, method, action string) error {
	return wrapAs(ErrorFatal, err, component, method, action)
}

// WrapInvalid wraps err with context and marks it invalid
func WrapInvalid(err error, component, method, action string) error {
	return wrapAs(ErrorInvalid, err, component, method, action)
}

// FromPanic turns a recovered panic value into a fatal error. Transport
// boundaries use it before mapping the fault to a status.
func FromPanic(r any, component, method string) error {
	if r == nil {
		return nil
	}
	err, ok := r.(error)
	if !ok {
		err = fmt.Errorf("%v", r)
	}
	return WrapFatal(err, component, method, "recovered panic")
}
