package config

import (
	"bytes"
	_ "embed"
	"time"

	"github.com/spf13/viper"

	"github.com/remindly/followup-gateway/internal/errs"
	"github.com/remindly/followup-gateway/internal/schedule"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log          LogConfig       `mapstructure:"log"`
	HTTP         HTTPConfig      `mapstructure:"http"`
	MySQL        DatabaseConfig  `mapstructure:"mysql"`
	ClickHouse   DatabaseConfig  `mapstructure:"clickhouse"`
	Redis        RedisConfig     `mapstructure:"redis"`
	Kafka        KafkaConfig     `mapstructure:"kafka"`
	Provider     ProviderConfig  `mapstructure:"provider"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
	WorkingHours schedule.Config `mapstructure:"working_hours"`
	Followups    FollowupConfig  `mapstructure:"followups"`
	Workers      WorkersConfig   `mapstructure:"workers"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

// ProviderConfig describes the notification provider: lease API, send API
// and the webhook handshake secret.
type ProviderConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	NotificationURL  string        `mapstructure:"notification_url"` // public webhook address handed to the provider
	ClientState      string        `mapstructure:"client_state"`     // shared secret echoed back in notifications
	TimeoutMs        int           `mapstructure:"timeout_ms"`
	Breaker          BreakerConfig `mapstructure:"breaker"`
	LeaseMaxHours    int           `mapstructure:"lease_max_hours"`   // provider maximum, e.g. 72
	RenewalThreshold time.Duration `mapstructure:"renewal_threshold"` // renew when expiry is this close
}

type RateLimitConfig struct {
	RPS int `mapstructure:"rps"`
}

// FollowupConfig is the FollowupSettings surface.
type FollowupConfig struct {
	MaxFollowups      int    `mapstructure:"max_followups"`
	IntervalHours     int    `mapstructure:"interval_hours"`
	StopAfterDays     int    `mapstructure:"stop_after_days"`
	StopOnBounce      bool   `mapstructure:"stop_on_bounce"`
	DefaultTemplateID string `mapstructure:"default_template_id"`
}

type WorkersConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	WorkerCount  int           `mapstructure:"worker_count"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies
// env overrides (FUPGW_*). The working-hours section is validated here so
// scheduling never sees a malformed config.
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (FUPGW_*)
	v.SetEnvPrefix("FUPGW")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	if _, err := schedule.Parse(cfg.WorkingHours); err != nil {
		return Config{}, err
	}
	if cfg.Followups.MaxFollowups <= 0 {
		return Config{}, errs.Validationf("followups.max_followups", "must be positive")
	}
	if cfg.Followups.IntervalHours <= 0 {
		return Config{}, errs.Validationf("followups.interval_hours", "must be positive")
	}

	return cfg, nil
}
