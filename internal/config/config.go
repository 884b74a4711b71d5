package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	PostgresConnection string `mapstructure:"postgres_connection"`
	Instance           string `mapstructure:"instance"`
	MigrationsDir      string `mapstructure:"migrations_dir"`
	// ContextKey is the base64-encoded 32-byte key sealing user-context
	// blobs. Required.
	ContextKey string `mapstructure:"context_key"`

	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Poller    PollerConfig    `mapstructure:"poller"`
	Retention RetentionConfig `mapstructure:"retention"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

type UpstreamConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type QueueConfig struct {
	IntervalSeconds       int `mapstructure:"interval_seconds"`
	WorkerCount           int `mapstructure:"worker_count"`
	BatchSize             int `mapstructure:"batch_size"`
	RetryBaseDelaySeconds int `mapstructure:"retry_base_delay_seconds"`
	MaxAttempts           int `mapstructure:"max_attempts"`
}

type BrokerConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	Exchange   string `mapstructure:"exchange"`
	Queue      string `mapstructure:"queue"`
	RoutingKey string `mapstructure:"routing_key"`
}

type PollerConfig struct {
	// Schedule is a standard five-field cron expression.
	Schedule  string `mapstructure:"schedule"`
	BatchSize int    `mapstructure:"batch_size"`
}

type RetentionConfig struct {
	Schedule   string `mapstructure:"schedule"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type NotifyConfig struct {
	SendFailureEmail  bool   `mapstructure:"send_failure_email"`
	FailureTemplateID string `mapstructure:"failure_template_id"`
}

// Load reads formrelay.yaml from the working directory or /etc/formrelay,
// with FORMRELAY_* environment variables overriding file values.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("formrelay")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/formrelay")
	v.SetEnvPrefix("formrelay")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		// Running on env vars and defaults alone is fine.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("instance", "formrelay-1")
	v.SetDefault("migrations_dir", "./migrations")
	v.SetDefault("upstream.timeout_seconds", 30)
	v.SetDefault("queue.interval_seconds", 5)
	v.SetDefault("queue.worker_count", 10)
	v.SetDefault("queue.batch_size", 100)
	v.SetDefault("queue.retry_base_delay_seconds", 30)
	v.SetDefault("queue.max_attempts", 16)
	v.SetDefault("broker.exchange", "formrelay")
	v.SetDefault("broker.queue", "formrelay.jobs")
	v.SetDefault("broker.routing_key", "jobs")
	v.SetDefault("poller.schedule", "*/10 * * * *")
	v.SetDefault("poller.batch_size", 500)
	v.SetDefault("retention.schedule", "0 3 * * *")
	v.SetDefault("retention.max_age_days", 60)
}

func (c *Config) validate() error {
	if c.PostgresConnection == "" {
		return errors.New("config: postgres_connection is required")
	}
	if c.ContextKey == "" {
		return errors.New("config: context_key is required")
	}
	if c.Upstream.BaseURL == "" {
		return errors.New("config: upstream.base_url is required")
	}
	if c.Broker.Enabled && c.Broker.URL == "" {
		return errors.New("config: broker.url is required when the broker is enabled")
	}
	return nil
}
