// Package config aggregates the settings of every component and loads them
// from an optional config.yaml and SURVEY_* environment variables.
package config

import (
	"reflect"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"

	"github.com/goliatone/go-survey-service/cache"
	"github.com/goliatone/go-survey-service/internal/auth"
	"github.com/goliatone/go-survey-service/internal/cacheinfra"
	"github.com/goliatone/go-survey-service/internal/export"
	"github.com/goliatone/go-survey-service/internal/logging"
	"github.com/goliatone/go-survey-service/internal/notify"
	"github.com/goliatone/go-survey-service/internal/store"
	"github.com/goliatone/go-survey-service/internal/tasks"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SURVEY"

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"

	ModeAsynq = "asynq"
	ModeLocal = "local"

	SinkS3     = "s3"
	SinkMemory = "memory"

	MailSMTP = "smtp"
	MailLog  = "log"
)

// Config aggregates configuration for the application.
// Each section is owned by its respective package.
type Config struct {
	HTTP     HTTPConfig             `mapstructure:"http"`
	Database store.Config           `mapstructure:"database"`
	Redis    cacheinfra.RedisConfig `mapstructure:"redis"`
	Cache    CacheConfig            `mapstructure:"cache"`
	Tasks    TasksConfig            `mapstructure:"tasks"`
	Auth     auth.Config            `mapstructure:"auth"`
	Export   ExportConfig           `mapstructure:"export"`
	Mail     MailConfig             `mapstructure:"mail"`
	Log      logging.Config         `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CacheConfig selects the shared cache backend and tunes the layers on top
// of it.
type CacheConfig struct {
	Backend string `mapstructure:"backend"`
	// Namespace prefixes every Redis key.
	Namespace string `mapstructure:"namespace"`
	// MemoryCapacity bounds the memory backend. Zero means unbounded.
	MemoryCapacity uint64 `mapstructure:"memory_capacity"`
	// ScopeResultsByUser adds the principal to survey_results keys.
	ScopeResultsByUser bool                  `mapstructure:"scope_results_by_user"`
	TTL                cache.Config          `mapstructure:"ttl"`
	Memo               cacheinfra.MemoConfig `mapstructure:"memo"`
}

// TasksConfig selects the dispatcher. The asynq mode talks to a broker
// that by default lives on its own Redis database.
type TasksConfig struct {
	Mode   string                 `mapstructure:"mode"`
	Broker cacheinfra.RedisConfig `mapstructure:"broker"`
	Asynq  tasks.AsynqConfig      `mapstructure:"asynq"`
	Local  tasks.LocalConfig      `mapstructure:"local"`
	Worker tasks.WorkerConfig     `mapstructure:"worker"`
}

type ExportConfig struct {
	Sink string          `mapstructure:"sink"`
	S3   export.S3Config `mapstructure:"s3"`
}

type MailConfig struct {
	Transport string            `mapstructure:"transport"`
	SMTP      notify.SMTPConfig `mapstructure:"smtp"`
}

// Default returns the configuration of a local deployment: Redis on
// localhost with the broker on db 1, SQLite storage, and mail and exports
// kept in process.
func Default() *Config {
	broker := cacheinfra.DefaultRedisConfig()
	broker.DB = 1

	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: store.DefaultConfig(),
		Redis:    cacheinfra.DefaultRedisConfig(),
		Cache: CacheConfig{
			Backend: BackendRedis,
			TTL:     cache.DefaultConfig(),
			Memo:    cacheinfra.DefaultMemoConfig(),
		},
		Tasks: TasksConfig{
			Mode:   ModeAsynq,
			Broker: broker,
			Asynq:  tasks.DefaultAsynqConfig(),
			Local:  tasks.DefaultLocalConfig(),
			Worker: tasks.DefaultWorkerConfig(),
		},
		Auth: auth.DefaultConfig(),
		Export: ExportConfig{
			Sink: SinkMemory,
			S3:   export.DefaultS3Config(),
		},
		Mail: MailConfig{
			Transport: MailLog,
			SMTP:      notify.DefaultSMTPConfig(),
		},
		Log: logging.DefaultConfig(),
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "SURVEY" and the dot character in
// keys is replaced by an underscore. For example, "redis.addr" becomes
// "SURVEY_REDIS_ADDR".
func Load(paths ...string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string{}, parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}

// Validate checks every section. Sections for a disabled backend are
// skipped.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.HTTP),
		validation.Field(&c.Database),
		validation.Field(&c.Redis, validation.Skip.When(c.Cache.Backend != BackendRedis)),
		validation.Field(&c.Cache),
		validation.Field(&c.Tasks),
		validation.Field(&c.Auth),
		validation.Field(&c.Export),
		validation.Field(&c.Mail),
		validation.Field(&c.Log),
	)
}

func (c HTTPConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.ShutdownTimeout, validation.Min(time.Duration(0))),
	)
}

func (c CacheConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendRedis, BackendMemory)),
		validation.Field(&c.TTL),
		validation.Field(&c.Memo),
	)
}

func (c TasksConfig) Validate() error {
	asynqMode := c.Mode == ModeAsynq
	return validation.ValidateStruct(&c,
		validation.Field(&c.Mode, validation.Required, validation.In(ModeAsynq, ModeLocal)),
		validation.Field(&c.Broker, validation.Skip.When(!asynqMode)),
		validation.Field(&c.Asynq, validation.Skip.When(!asynqMode)),
		validation.Field(&c.Worker, validation.Skip.When(!asynqMode)),
		validation.Field(&c.Local, validation.Skip.When(asynqMode)),
	)
}

func (c ExportConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Sink, validation.Required, validation.In(SinkS3, SinkMemory)),
		validation.Field(&c.S3, validation.Skip.When(c.Sink != SinkS3)),
	)
}

func (c MailConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Transport, validation.Required, validation.In(MailSMTP, MailLog)),
		validation.Field(&c.SMTP, validation.Skip.When(c.Transport != MailSMTP)),
	)
}
