package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	// MaxMessageBytes caps a single inbound websocket frame.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	// WSRateLimit is the number of inbound frames accepted per connection per minute (0 disables).
	WSRateLimit      int `mapstructure:"ws_rate_limit" yaml:"ws_rate_limit"`
	MaxMessageLength int `mapstructure:"max_message_length" yaml:"max_message_length"`

	DispatchWorkers int `mapstructure:"dispatch_workers" yaml:"dispatch_workers"`
	DispatchQueue   int `mapstructure:"dispatch_queue" yaml:"dispatch_queue"`
	SessionBuffer   int `mapstructure:"session_buffer" yaml:"session_buffer"`

	TypingTTL                 time.Duration `mapstructure:"typing_ttl" yaml:"typing_ttl"`
	DedupWindow               time.Duration `mapstructure:"dedup_window" yaml:"dedup_window"`
	NotificationRetentionDays int           `mapstructure:"notification_retention_days" yaml:"notification_retention_days"`
	CleanupInterval           time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
	StatsInterval             time.Duration `mapstructure:"stats_interval" yaml:"stats_interval"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                      ":8080",
		ReadHeaderTimeout:         5 * time.Second,
		ShutdownTimeout:           5 * time.Second,
		LogLevel:                  "info",
		DatabasePath:              "agora.db",
		JWTSecret:                 "change-me",
		JWTIssuer:                 "agora",
		JWTAudience:               "agora-clients",
		JWTTTL:                    24 * time.Hour,
		MaxMessageBytes:           1 << 16,
		WSRateLimit:               120,
		MaxMessageLength:          5000,
		DispatchWorkers:           4,
		DispatchQueue:             1024,
		SessionBuffer:             32,
		TypingTTL:                 3 * time.Second,
		DedupWindow:               5 * time.Minute,
		NotificationRetentionDays: 90,
		CleanupInterval:           24 * time.Hour,
		StatsInterval:             30 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.DispatchWorkers != 0 {
		c.DispatchWorkers = other.DispatchWorkers
	}
}
