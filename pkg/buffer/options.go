package buffer

import (
	"log/slog"
	"time"

	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
)

// Defaults used until Init or an Option says otherwise
const (
	DefaultLength       = 8
	DefaultWriteTimeout = time.Second
	DefaultReadTimeout  = time.Second
)

// Option adjusts a RingBuffer at construction
type Option[T any] func(*bufferOptions[T])

type bufferOptions[T any] struct {
	length          int
	overflowPolicy  OverflowPolicy
	underflowPolicy UnderflowPolicy
	writeTimeout    time.Duration
	readTimeout     time.Duration
	dropCallback    DropCallback[T]
	logger          *slog.Logger

	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
}

// WithLength sets the capacity; non-positive values are ignored
func WithLength[T any](n int) Option[T] {
	return func(o *bufferOptions[T]) {
		if n > 0 {
			o.length = n
		}
	}
}

// WithOverflowPolicy picks what Write does on a full buffer (DropOldest)
func WithOverflowPolicy[T any](p OverflowPolicy) Option[T] {
	return func(o *bufferOptions[T]) { o.overflowPolicy = p }
}

// WithUnderflowPolicy picks what Read does on an empty buffer (ReturnEmpty)
func WithUnderflowPolicy[T any](p UnderflowPolicy) Option[T] {
	return func(o *bufferOptions[T]) { o.underflowPolicy = p }
}

// WithTimeouts bounds blocking Write and Read; zero waits forever
func WithTimeouts[T any](write, read time.Duration) Option[T] {
	return func(o *bufferOptions[T]) { o.writeTimeout, o.readTimeout = write, read }
}

// WithMetrics exports statistics to registry under prefix. Either being
// empty disables export.
func WithMetrics[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(o *bufferOptions[T]) {
		if registry == nil || prefix == "" {
			return
		}
		o.metricsReg, o.metricsPrefix = registry, prefix
	}
}

// WithDropCallback receives every item DropOldest discards
func WithDropCallback[T any](fn DropCallback[T]) Option[T] {
	return func(o *bufferOptions[T]) { o.dropCallback = fn }
}

// WithLogger replaces slog.Default for property warnings
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(o *bufferOptions[T]) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func applyOptions[T any](options ...Option[T]) *bufferOptions[T] {
	o := &bufferOptions[T]{
		length:          DefaultLength,
		overflowPolicy:  DropOldest,
		underflowPolicy: ReturnEmpty,
		writeTimeout:    DefaultWriteTimeout,
		readTimeout:     DefaultReadTimeout,
		logger:          slog.Default(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(o)
		}
	}
	return o
}
