package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NonRetryableError marks a failure Do must not retry
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string { return "non-retryable: " + e.Err.Error() }

func (e *NonRetryableError) Unwrap() error { return e.Err }

// NonRetryable wraps err so Do returns it at once; nil stays nil
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err carries a NonRetryable mark
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Config bounds a retry loop. Zero delays and multiplier take the
// DefaultConfig values; MaxAttempts below one runs the operation once.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	AddJitter    bool // randomize each delay by up to 25%
}

const maxMultiplier = 1000

// DefaultConfig is three attempts between 100ms and 5s
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2, AddJitter: true}
}

// Quick is ten attempts between 50ms and 1s
func Quick() Config {
	return Config{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 1.5, AddJitter: true}
}

// Persistent is thirty attempts between 200ms and 10s
func Persistent() Config {
	return Config{MaxAttempts: 30, InitialDelay: 200 * time.Millisecond, MaxDelay: 10 * time.Second, Multiplier: 2, AddJitter: true}
}

func (cfg Config) normalize() (Config, error) {
	if cfg.InitialDelay < 0 || cfg.MaxDelay < 0 || cfg.Multiplier < 0 {
		return cfg, fmt.Errorf("retry: negative delay or multiplier in %+v", cfg)
	}
	def := DefaultConfig()
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = def.Multiplier
	}
	cfg.Multiplier = min(cfg.Multiplier, maxMultiplier)
	cfg.MaxAttempts = max(cfg.MaxAttempts, 1)
	if cfg.MaxDelay < cfg.InitialDelay {
		return cfg, fmt.Errorf("retry: MaxDelay %v below InitialDelay %v", cfg.MaxDelay, cfg.InitialDelay)
	}
	return cfg, nil
}

// BackOff builds the delay schedule for cfg. It yields MaxAttempts-1
// delays and stops early once ctx is done.
func (cfg Config) BackOff(ctx context.Context) (backoff.BackOff, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	eb := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(cfg.InitialDelay),
		backoff.WithMaxInterval(cfg.MaxDelay),
		backoff.WithMultiplier(cfg.Multiplier),
		backoff.WithMaxElapsedTime(0),
		backoff.WithRandomizationFactor(0),
	)
	if cfg.AddJitter {
		eb.RandomizationFactor = 0.25
	}
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(cfg.MaxAttempts-1)), ctx), nil
}

// Do calls fn until it succeeds, returns a NonRetryable error, runs out of
// attempts or ctx ends.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	b, err := cfg.BackOff(ctx)
	if err != nil {
		return err
	}

	attempts := 0
	var last error
	var stopped error
	err = backoff.Retry(func() error {
		attempts++
		if last = fn(); last == nil {
			return nil
		}
		if IsNonRetryable(last) {
			return backoff.Permanent(last)
		}
		if ctx.Err() != nil {
			stopped = fmt.Errorf("retry cancelled after attempt %d: %w", attempts, ctx.Err())
			return backoff.Permanent(stopped)
		}
		return last
	}, b)

	switch {
	case err == nil || IsNonRetryable(err):
		return err
	case stopped != nil:
		return stopped
	case ctx.Err() != nil:
		return fmt.Errorf("retry cancelled during backoff after attempt %d: %w", attempts, ctx.Err())
	default:
		return fmt.Errorf("retry failed after %d attempts: %w", attempts, last)
	}
}

// DoWithResult is Do for operations that produce a value
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}
