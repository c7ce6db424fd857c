package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	ChatDB   ChatDBConfig   `yaml:"chatdb"`
	Sender   SenderConfig   `yaml:"sender"`
	Storage  StorageConfig  `yaml:"storage"`
	Batches  BatchConfig    `yaml:"batches"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Events   EventsConfig   `yaml:"events"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                int      `yaml:"port"`
	Host                string   `yaml:"host"`
	ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
	AllowedOrigins      []string `yaml:"allowed_origins"`
	OneOffPerMinute     int      `yaml:"one_off_per_minute"`
	MaxUploadMB         int      `yaml:"max_upload_mb"`
}

// GetHost returns the server host, with environment override
func (c ServerConfig) GetHost() string {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// ReadTimeout returns the read timeout as a duration
func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the write timeout as a duration
func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// DispatchConfig controls the send/throttle/poll pipeline
type DispatchConfig struct {
	DefaultCountryCode  string  `yaml:"default_country_code"`
	DelayMinSeconds     float64 `yaml:"delay_min_seconds"`
	DelayMaxSeconds     float64 `yaml:"delay_max_seconds"`
	MaxWaitSeconds      float64 `yaml:"max_wait_seconds"`
	PollIntervalSeconds float64 `yaml:"poll_interval_seconds"`
	DryRun              bool    `yaml:"dry_run"`
	LockKey             string  `yaml:"lock_key"`
	LockTTLSeconds      int     `yaml:"lock_ttl_seconds"`
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// DelayMin returns the lower throttle bound
func (c DispatchConfig) DelayMin() time.Duration { return seconds(c.DelayMinSeconds) }

// DelayMax returns the upper throttle bound
func (c DispatchConfig) DelayMax() time.Duration { return seconds(c.DelayMaxSeconds) }

// MaxWait returns the delivery poll timeout
func (c DispatchConfig) MaxWait() time.Duration { return seconds(c.MaxWaitSeconds) }

// PollInterval returns the delay between delivery polls
func (c DispatchConfig) PollInterval() time.Duration { return seconds(c.PollIntervalSeconds) }

// LockTTL returns the dispatch lock lease
func (c DispatchConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// ChatDBConfig locates the Messages history database
type ChatDBConfig struct {
	Path string `yaml:"path"` // empty uses ~/Library/Messages/chat.db
}

// SenderConfig selects the message transmission mechanism
type SenderConfig struct {
	Type           string `yaml:"type"` // "osascript" or "none"
	Binary         string `yaml:"binary"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-send timeout as a duration
func (c SenderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StorageConfig holds audit log storage configuration
type StorageConfig struct {
	Type       string `yaml:"type"` // "local" or "aws"
	LocalPath  string `yaml:"local_path"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Prefix   string `yaml:"s3_prefix"`
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"` // Empty string uses default credential chain
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	return c.AWSProfile
}

// BatchConfig controls where uploaded batches live and when they expire
type BatchConfig struct {
	Store           string `yaml:"store"` // "memory" or "redis"
	TTLMinutes      int    `yaml:"ttl_minutes"`
	MaxEntries      int    `yaml:"max_entries"`
	JanitorSchedule string `yaml:"janitor_schedule"`
}

// TTL returns the batch expiry as a duration
func (c BatchConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// DatabaseConfig holds the optional Postgres connection
type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxOpenConns   int    `yaml:"max_open_conns"`
	ArchiveResults bool   `yaml:"archive_results"`
}

// RedisConfig holds the optional Redis connection
type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// EventsConfig holds result event publishing configuration
type EventsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	AMQPURL    string `yaml:"amqp_url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level            string `yaml:"level"`
	Console          bool   `yaml:"console"`
	DisableRedaction bool   `yaml:"disable_redaction"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied, for running
// without a config file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 30
	}
	// Batch sends run in the background; the write timeout only covers
	// the synchronous one-off endpoint, which can poll for a full minute.
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 120
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:*"}
	}
	if cfg.Server.OneOffPerMinute == 0 {
		cfg.Server.OneOffPerMinute = 10
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 10
	}

	if cfg.Dispatch.DefaultCountryCode == "" {
		cfg.Dispatch.DefaultCountryCode = "+1"
	}
	if cfg.Dispatch.DelayMinSeconds == 0 && cfg.Dispatch.DelayMaxSeconds == 0 {
		cfg.Dispatch.DelayMinSeconds = 1.0
		cfg.Dispatch.DelayMaxSeconds = 2.5
	}
	if cfg.Dispatch.DelayMaxSeconds < cfg.Dispatch.DelayMinSeconds {
		cfg.Dispatch.DelayMaxSeconds = cfg.Dispatch.DelayMinSeconds
	}
	if cfg.Dispatch.MaxWaitSeconds == 0 {
		cfg.Dispatch.MaxWaitSeconds = 60
	}
	if cfg.Dispatch.PollIntervalSeconds == 0 {
		cfg.Dispatch.PollIntervalSeconds = 2
	}
	if cfg.Dispatch.LockKey == "" {
		cfg.Dispatch.LockKey = "textdispatch:dispatch"
	}
	if cfg.Dispatch.LockTTLSeconds == 0 {
		cfg.Dispatch.LockTTLSeconds = 120
	}

	if cfg.Sender.Type == "" {
		cfg.Sender.Type = "osascript"
	}
	if cfg.Sender.Binary == "" {
		cfg.Sender.Binary = "osascript"
	}
	if cfg.Sender.TimeoutSeconds == 0 {
		cfg.Sender.TimeoutSeconds = 30
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./send_logs"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-west-2"
	}
	if cfg.Storage.S3Prefix == "" {
		cfg.Storage.S3Prefix = "send-logs/"
	}

	if cfg.Batches.Store == "" {
		cfg.Batches.Store = "memory"
	}
	if cfg.Batches.TTLMinutes == 0 {
		cfg.Batches.TTLMinutes = 24 * 60
	}
	if cfg.Batches.MaxEntries == 0 {
		cfg.Batches.MaxEntries = 200
	}
	if cfg.Batches.JanitorSchedule == "" {
		cfg.Batches.JanitorSchedule = "@every 5m"
	}

	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 5
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "textdispatch:"
	}

	if cfg.Events.Exchange == "" {
		cfg.Events.Exchange = "textdispatch.events"
	}
	if cfg.Events.RoutingKey == "" {
		cfg.Events.RoutingKey = "delivery.result"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars.
// An empty path skips the YAML file and starts from defaults.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if v := os.Getenv("CHATDB_PATH"); v != "" {
		cfg.ChatDB.Path = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.Events.AMQPURL = v
		cfg.Events.Enabled = true
	}
	if v := os.Getenv("AUDIT_S3_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = v
		cfg.Storage.Type = "aws"
	}
	if v := os.Getenv("AUDIT_AWS_ACCESS_KEY"); v != "" {
		cfg.Storage.AccessKey = v
	}
	if v := os.Getenv("AUDIT_AWS_SECRET_KEY"); v != "" {
		cfg.Storage.SecretKey = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		if dry, err := strconv.ParseBool(v); err == nil {
			cfg.Dispatch.DryRun = dry
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}
