package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"` // console or json

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	// Live layer.
	WSAuthRequired       bool          `mapstructure:"ws_auth_required" yaml:"ws_auth_required"`
	VerifyChatMembership bool          `mapstructure:"verify_chat_membership" yaml:"verify_chat_membership"`
	TypingTimeout        time.Duration `mapstructure:"typing_timeout" yaml:"typing_timeout"`
	MaxMessageBytes      int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	WSRateLimit          int           `mapstructure:"ws_rate_limit" yaml:"ws_rate_limit"` // inbound events per minute, 0 disables
	ClientBuffer         int           `mapstructure:"client_buffer" yaml:"client_buffer"`

	// Send-message rate limit, enabled when RedisAddr is set.
	RedisAddr         string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	MessageRateLimit  int           `mapstructure:"message_rate_limit" yaml:"message_rate_limit"`
	MessageRateWindow time.Duration `mapstructure:"message_rate_window" yaml:"message_rate_window"`

	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	MetricsEnabled bool     `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "pulsechat.db",
		LogLevel:          "info",
		LogFormat:         "console",
		JWTSecret:         "change-me-in-production",
		JWTIssuer:         "pulsechat",
		JWTAudience:       "pulsechat-clients",
		JWTTTL:            30 * 24 * time.Hour,
		MaxMessageBytes:   64 << 10,
		WSRateLimit:       600,
		ClientBuffer:      32,
		MessageRateLimit:  30,
		MessageRateWindow: time.Minute,
		AllowedOrigins:    []string{"*"},
		MetricsEnabled:    true,
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
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.TypingTimeout != 0 {
		c.TypingTimeout = other.TypingTimeout
	}
	if other.RedisAddr != "" {
		c.RedisAddr = other.RedisAddr
	}
	// Flags can only switch these on.
	if other.WSAuthRequired {
		c.WSAuthRequired = true
	}
	if other.VerifyChatMembership {
		c.VerifyChatMembership = true
	}
}
