package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Fanout       FanoutConfig       `mapstructure:"fanout"`
	Replicator   ReplicatorConfig   `mapstructure:"replicator"`
	Reconciler   ReconcilerConfig   `mapstructure:"reconciler"`
	Notification NotificationConfig `mapstructure:"notification"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Blob         BlobConfig         `mapstructure:"blob"`
	Sentry       SentryConfig       `mapstructure:"sentry"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Log          LogConfig          `mapstructure:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	StatsTTL time.Duration `mapstructure:"stats_ttl"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// FanoutConfig 扇出配置。sync 模式下发帖请求内直接完成粉丝扇出；async 由 outbox worker 完成。
type FanoutConfig struct {
	Mode         string        `mapstructure:"mode"`
	Workers      int           `mapstructure:"workers"`
	BatchSize    int           `mapstructure:"batch_size"`
	ClaimLimit   int           `mapstructure:"claim_limit"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	Concurrency  int           `mapstructure:"concurrency"`
}

type ReplicatorConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	Workers   int  `mapstructure:"workers"`
	QueueSize int  `mapstructure:"queue_size"`
}

type ReconcilerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type NotificationConfig struct {
	// SelfComment 为 true 时作者评论自己的帖子也会收到通知
	SelfComment bool `mapstructure:"self_comment"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type BlobConfig struct {
	Driver      string `mapstructure:"driver"` // local, supabase
	Dir         string `mapstructure:"dir"`
	BaseURL     string `mapstructure:"base_url"`
	SupabaseURL string `mapstructure:"supabase_url"`
	SupabaseKey string `mapstructure:"supabase_key"`
	Bucket      string `mapstructure:"bucket"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

// Load 从配置文件与环境变量加载配置。配置文件路径可由 CONFIG_FILE 指定，缺失时仅使用默认值与环境变量。
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PHOTOFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "photofeed.db")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stats_ttl", 10*time.Minute)

	v.SetDefault("jwt.secret", "change-me")
	v.SetDefault("jwt.issuer", "photo-feed")
	v.SetDefault("jwt.ttl", 24*time.Hour)

	v.SetDefault("fanout.mode", "async")
	v.SetDefault("fanout.workers", 4)
	v.SetDefault("fanout.batch_size", 500)
	v.SetDefault("fanout.claim_limit", 64)
	v.SetDefault("fanout.poll_interval", 50*time.Millisecond)
	v.SetDefault("fanout.max_attempts", 5)
	v.SetDefault("fanout.concurrency", 4)

	v.SetDefault("replicator.enabled", true)
	v.SetDefault("replicator.workers", 4)
	v.SetDefault("replicator.queue_size", 10000)

	v.SetDefault("reconciler.interval", 10*time.Minute)

	v.SetDefault("notification.self_comment", false)

	v.SetDefault("rate_limit.rps", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("blob.driver", "local")
	v.SetDefault("blob.dir", "./data/blobs")
	v.SetDefault("blob.base_url", "http://localhost:8080/blobs")
	v.SetDefault("blob.bucket", "post_images")

	v.SetDefault("tracing.service_name", "photo-feed")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Fanout.Mode {
	case "sync", "async":
	default:
		return fmt.Errorf("unsupported fanout mode %q", c.Fanout.Mode)
	}
	switch c.Blob.Driver {
	case "local":
	case "supabase":
		if c.Blob.SupabaseURL == "" || c.Blob.SupabaseKey == "" {
			return errors.New("blob.supabase_url and blob.supabase_key are required for the supabase driver")
		}
	default:
		return fmt.Errorf("unsupported blob driver %q", c.Blob.Driver)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret must not be empty")
	}
	return nil
}

// FanoutSync 是否在请求内同步完成扇出
func (c *Config) FanoutSync() bool { return c.Fanout.Mode == "sync" }
