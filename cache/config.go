package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config holds the TTLCache settings.
type Config struct {
	// DefaultTTL applies to Set calls made with a non-positive ttl.
	DefaultTTL time.Duration `mapstructure:"default_ttl"`

	// OperationTimeout bounds every round trip to the backend so that a slow
	// or unreachable store can never hang a request.
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`

	// Codec names the value serialization: "json" or "msgpack".
	Codec string `mapstructure:"codec"`

	// DegradeOnError turns backend failures into cache misses on reads and
	// into logged, skipped operations on writes and invalidations. Entries
	// that could not be invalidated then live until their TTL expires.
	DegradeOnError bool `mapstructure:"degrade_on_error"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:       300 * time.Second,
		OperationTimeout: 2 * time.Second,
		Codec:            "json",
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.DefaultTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.OperationTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.Codec, validation.In("json", "msgpack")),
	)
}
