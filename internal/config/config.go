package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Redis     RedisConfig     `yaml:"redis"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

type AppConfig struct {
	Port       string `yaml:"port"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"` // console | json
	LogFile    string `yaml:"log_file"`
	LogMaxSize int    `yaml:"log_max_size_mb"`
}

type PostgresConfig struct {
	Host             string        `yaml:"host"`
	Port             string        `yaml:"port"`
	User             string        `yaml:"user"`
	Password         string        `yaml:"password"`
	DBName           string        `yaml:"dbname"`
	SSLMode          string        `yaml:"sslmode"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// RefreshConfig controls the snapshot refresh cadence. LockTTL must outlive Timeout,
// otherwise a second replica can start refreshing while the first is still running.
type RefreshConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
	OnStart  bool          `yaml:"on_start"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RabbitMQConfig struct {
	URL           string `yaml:"url"`
	RefreshQueue  string `yaml:"refresh_queue"`
	PrefetchCount int    `yaml:"prefetch_count"`
}

type AnalyticsConfig struct {
	MaxRangeDays int `yaml:"max_range_days"`
}

// DSN returns a key/value connection string understood by pgx.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

func defaults() *Config {
	return &Config{
		App: AppConfig{
			Port:       "8080",
			LogLevel:   "info",
			LogFormat:  "console",
			LogMaxSize: 100,
		},
		Postgres: PostgresConfig{
			Port:             "5432",
			SSLMode:          "disable",
			MaxConns:         10,
			MinConns:         2,
			MaxConnLifetime:  30 * time.Minute,
			StatementTimeout: 60 * time.Second,
		},
		Refresh: RefreshConfig{
			Interval: 15 * time.Minute,
			Timeout:  5 * time.Minute,
			LockTTL:  6 * time.Minute,
			OnStart:  true,
		},
		RabbitMQ: RabbitMQConfig{
			RefreshQueue:  "analytics.refresh",
			PrefetchCount: 10,
		},
		Analytics: AnalyticsConfig{
			MaxRangeDays: 3660,
		},
	}
}

// NewConfig builds the configuration from defaults, an optional YAML file
// (CONFIG_FILE) and the environment, in that order of precedence.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.App.Port, "APP_PORT")
	setString(&cfg.App.LogLevel, "LOG_LEVEL")
	setString(&cfg.App.LogFormat, "LOG_FORMAT")
	setString(&cfg.App.LogFile, "LOG_FILE")

	setString(&cfg.Postgres.Host, "DB_HOST")
	setString(&cfg.Postgres.Port, "DB_PORT")
	setString(&cfg.Postgres.User, "DB_USER")
	setString(&cfg.Postgres.Password, "DB_PASSWORD")
	setString(&cfg.Postgres.DBName, "DB_NAME")
	setString(&cfg.Postgres.SSLMode, "DB_SSLMODE")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")

	setString(&cfg.RabbitMQ.URL, "RABBITMQ_URL")
	setString(&cfg.RabbitMQ.RefreshQueue, "RABBITMQ_REFRESH_QUEUE")

	ints := []struct {
		key string
		dst *int
	}{
		{"LOG_MAX_SIZE_MB", &cfg.App.LogMaxSize},
		{"REDIS_DB", &cfg.Redis.DB},
		{"RABBITMQ_PREFETCH_COUNT", &cfg.RabbitMQ.PrefetchCount},
		{"ANALYTICS_MAX_RANGE_DAYS", &cfg.Analytics.MaxRangeDays},
	}
	for _, i := range ints {
		if err := setInt(i.dst, i.key); err != nil {
			return err
		}
	}

	if err := setInt32(&cfg.Postgres.MaxConns, "DB_MAX_CONNS"); err != nil {
		return err
	}
	if err := setInt32(&cfg.Postgres.MinConns, "DB_MIN_CONNS"); err != nil {
		return err
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"DB_MAX_CONN_LIFETIME", &cfg.Postgres.MaxConnLifetime},
		{"DB_STATEMENT_TIMEOUT", &cfg.Postgres.StatementTimeout},
		{"REFRESH_INTERVAL", &cfg.Refresh.Interval},
		{"REFRESH_TIMEOUT", &cfg.Refresh.Timeout},
		{"REFRESH_LOCK_TTL", &cfg.Refresh.LockTTL},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.key); err != nil {
			return err
		}
	}

	if v := os.Getenv("REFRESH_ON_START"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("REFRESH_ON_START: %w", err)
		}
		cfg.Refresh.OnStart = b
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Postgres.Host == "" {
		return errors.New("DB_HOST is required")
	}
	if c.Postgres.User == "" {
		return errors.New("DB_USER is required")
	}
	if c.Postgres.DBName == "" {
		return errors.New("DB_NAME is required")
	}
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive, got %s", c.Refresh.Interval)
	}
	if c.Refresh.Timeout <= 0 {
		return fmt.Errorf("REFRESH_TIMEOUT must be positive, got %s", c.Refresh.Timeout)
	}
	if c.Refresh.LockTTL <= c.Refresh.Timeout {
		return fmt.Errorf("REFRESH_LOCK_TTL (%s) must be greater than REFRESH_TIMEOUT (%s)", c.Refresh.LockTTL, c.Refresh.Timeout)
	}
	if c.Analytics.MaxRangeDays <= 0 {
		return fmt.Errorf("ANALYTICS_MAX_RANGE_DAYS must be positive, got %d", c.Analytics.MaxRangeDays)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setInt32(dst *int32, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = int32(n)
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
