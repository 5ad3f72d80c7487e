package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides (PARTSDB_DATABASE_HOST, ...).
const EnvPrefix = "PARTSDB"

// DefaultArchiveURL points at the main branch tarball of the buildcores open-db dataset.
const DefaultArchiveURL = "https://codeload.github.com/buildcores/buildcores-open-db/tar.gz/refs/heads/main"

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Log       LogConfig
	OpenDB    OpenDBConfig
	Lock      LockConfig
	Redis     RedisConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
	Mappings  MappingsConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	Path            string // sqlite database file
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string // silent, error, warn, info
	SlowThreshold   time.Duration
	AutoMigrate     bool // sqlite only; postgres schemas come from migrations
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// OpenDBConfig describes where catalog records are fetched from.
type OpenDBConfig struct {
	Source         string // archive or dir
	ArchiveURL     string
	LocalPath      string
	Token          string
	Timeout        time.Duration // per fetch attempt
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	MaxIssues      int // skipped-record details kept per run
}

// LockConfig selects the mutual-exclusion backend for imports.
type LockConfig struct {
	Backend string // memory or redis
	TTL     time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	MetricsInterval   time.Duration
}

// MappingsConfig points at extra category mapping files.
type MappingsConfig struct {
	Dir string
}

// Load loads configuration from a config file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with PARTSDB_ prefix (a .env file is loaded first if present)
// 2. The config file (explicit path, or config.{toml,yaml} in the working directory)
// 3. Built-in defaults
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	// zero is a meaningful value for these, so they cannot use applyDefaults
	v.SetDefault("opendb.max_retries", 3)
	v.SetDefault("opendb.max_issues", 100)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/partsdb")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			Path:            v.GetString("database.path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			LogLevel:        v.GetString("database.log_level"),
			SlowThreshold:   v.GetDuration("database.slow_threshold"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		OpenDB: OpenDBConfig{
			Source:         v.GetString("opendb.source"),
			ArchiveURL:     v.GetString("opendb.archive_url"),
			LocalPath:      v.GetString("opendb.local_path"),
			Token:          v.GetString("opendb.token"),
			Timeout:        v.GetDuration("opendb.timeout"),
			MaxRetries:     v.GetInt("opendb.max_retries"),
			RetryBaseDelay: v.GetDuration("opendb.retry_base_delay"),
			RetryMaxDelay:  v.GetDuration("opendb.retry_max_delay"),
			MaxIssues:      v.GetInt("opendb.max_issues"),
		},
		Lock: LockConfig{
			Backend: v.GetString("lock.backend"),
			TTL:     v.GetDuration("lock.ttl"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		HTTP: HTTPConfig{
			Port:         v.GetString("http.port"),
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
			IdleTimeout:  v.GetDuration("http.idle_timeout"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
		},
		Mappings: MappingsConfig{
			Dir: v.GetString("mappings.dir"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "partsdb"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "partsdb"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "partsdb.sqlite"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = time.Hour
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.Database.SlowThreshold == 0 {
		cfg.Database.SlowThreshold = 200 * time.Millisecond
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.OpenDB.Source == "" {
		cfg.OpenDB.Source = "archive"
	}
	if cfg.OpenDB.ArchiveURL == "" {
		cfg.OpenDB.ArchiveURL = DefaultArchiveURL
	}
	if cfg.OpenDB.LocalPath == "" {
		cfg.OpenDB.LocalPath = "./buildcores-open-db"
	}
	if cfg.OpenDB.Timeout == 0 {
		cfg.OpenDB.Timeout = 60 * time.Second
	}
	if cfg.OpenDB.RetryBaseDelay == 0 {
		cfg.OpenDB.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.OpenDB.RetryMaxDelay == 0 {
		cfg.OpenDB.RetryMaxDelay = 10 * time.Second
	}
	if cfg.Lock.Backend == "" {
		cfg.Lock.Backend = "memory"
	}
	if cfg.Lock.TTL == 0 {
		cfg.Lock.TTL = 30 * time.Minute
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.HTTP.Port == "" {
		cfg.HTTP.Port = "8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// imports triggered over HTTP run synchronously
		cfg.HTTP.WriteTimeout = 10 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q (want postgres or sqlite)", c.Database.Driver)
	}

	switch c.OpenDB.Source {
	case "archive":
		u, err := url.Parse(c.OpenDB.ArchiveURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("invalid opendb archive url %q", c.OpenDB.ArchiveURL)
		}
	case "dir":
	default:
		return fmt.Errorf("unsupported opendb source %q (want archive or dir)", c.OpenDB.Source)
	}

	if c.OpenDB.MaxRetries < 0 {
		return fmt.Errorf("opendb max_retries must not be negative")
	}
	if c.OpenDB.MaxIssues < 0 {
		return fmt.Errorf("opendb max_issues must not be negative")
	}

	switch c.Lock.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported lock backend %q (want memory or redis)", c.Lock.Backend)
	}

	if c.Telemetry.Enabled && c.Telemetry.CollectorEndpoint == "" {
		return fmt.Errorf("telemetry collector endpoint is required when telemetry is enabled")
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// URL returns the PostgreSQL connection URL used by the migration tool.
func (d DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

// Addr returns host:port for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
