package objectstore

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
)

var validate = validator.New()

// Config holds configuration for the archive sink
type Config struct {
	Port      string `json:"port"        validate:"required"`
	Bucket    string `json:"bucket"      validate:"required,excludesall=.*>"`
	KeyPrefix string `json:"key_prefix"`
	BatchSize int    `json:"batch_size"  validate:"gte=1"`
	// MaxPending bounds the samples held while the store is unreachable;
	// the oldest are dropped beyond it.
	MaxPending int `json:"max_pending" validate:"gtefield=BatchSize"`
	CacheSize  int `json:"cache_size"  validate:"gte=0"`
	TimeoutMS  int `json:"timeout_ms"  validate:"gte=1"`
	// Subject serves get/list requests over NATS when set
	Subject string            `json:"subject"`
	Props   map[string]string `json:"properties"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "struct validation")
	}
	return nil
}

// Timeout returns the per-operation store timeout
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// DefaultConfig returns default configuration for the archive sink
func DefaultConfig() Config {
	return Config{
		Port:       "in",
		Bucket:     "RTM_SAMPLES",
		BatchSize:  100,
		MaxPending: 10000,
		CacheSize:  128,
		TimeoutMS:  5000,
	}
}
