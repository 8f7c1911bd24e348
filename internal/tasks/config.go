package tasks

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func (c AsynqConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Queue, validation.Required),
		validation.Field(&c.Retention, validation.Min(time.Duration(0))),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxRetry, validation.Min(0)),
	)
}

func (c LocalConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Workers, validation.Required, validation.Min(1)),
		validation.Field(&c.QueueSize, validation.Required, validation.Min(1)),
		validation.Field(&c.Retention, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.StatusCapacity, validation.Required),
	)
}

func (c WorkerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1)),
		validation.Field(&c.Queues, validation.Required),
		validation.Field(&c.ShutdownTimeout, validation.Min(time.Duration(0))),
	)
}
