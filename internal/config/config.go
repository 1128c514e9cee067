package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CLASSHUB_"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Hub       HubConfig       `yaml:"hub"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
}

type HTTPConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port for the listener.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// FUNCTIONAL DISCOVERY: WebSocket configuration optimized for classroom scenarios
type WebSocketConfig struct {
	PingInterval   time.Duration `yaml:"ping_interval"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	BufferSize     int           `yaml:"buffer_size"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// HubConfig is the only section that can change while the server runs.
type HubConfig struct {
	QueueSize           int           `yaml:"queue_size"`
	ReapInterval        time.Duration `yaml:"reap_interval"`
	InactivityThreshold time.Duration `yaml:"inactivity_threshold"`
}

type DatabaseConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	QueueSize int    `yaml:"queue_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the settings used when neither file nor environment
// says otherwise.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		WebSocket: WebSocketConfig{
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			BufferSize:     100,
			MaxMessageSize: 64 * 1024,
		},
		Hub: HubConfig{
			QueueSize:           1000,
			ReapInterval:        5 * time.Minute,
			InactivityThreshold: 30 * time.Minute,
		},
		Database: DatabaseConfig{
			Enabled:   true,
			Path:      "./data/classhub.db",
			QueueSize: 1000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	// Port 0 binds an ephemeral port.
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 || c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}

	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("WebSocket max message size must be positive")
	}

	if err := c.Hub.Validate(); err != nil {
		return err
	}

	if c.Database.Enabled {
		if c.Database.Path == "" {
			return fmt.Errorf("database path cannot be empty")
		}
		if c.Database.QueueSize <= 0 {
			return fmt.Errorf("database queue size must be positive")
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Validate checks the hot-reloadable hub settings on their own.
func (h HubConfig) Validate() error {
	if h.QueueSize <= 0 {
		return fmt.Errorf("hub queue size must be positive")
	}
	if h.ReapInterval <= 0 {
		return fmt.Errorf("hub reap interval must be positive")
	}
	if h.InactivityThreshold <= 0 {
		return fmt.Errorf("hub inactivity threshold must be positive")
	}
	return nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables already set win over the file.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides config with CLASSHUB_* variables. Unparseable values
// are ignored and the previous value stays.
func ApplyEnv(config *Config) {
	setString("HTTP_HOST", &config.HTTP.Host)
	setInt("HTTP_PORT", &config.HTTP.Port)
	setDuration("HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	setDuration("HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)
	setDuration("HTTP_SHUTDOWN_TIMEOUT", &config.HTTP.ShutdownTimeout)

	setDuration("WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	setDuration("WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	setDuration("WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	setInt("WEBSOCKET_BUFFER_SIZE", &config.WebSocket.BufferSize)
	if v, ok := lookup("WEBSOCKET_ALLOWED_ORIGINS"); ok {
		config.WebSocket.AllowedOrigins = splitList(v)
	}

	setInt("HUB_QUEUE_SIZE", &config.Hub.QueueSize)
	setDuration("HUB_REAP_INTERVAL", &config.Hub.ReapInterval)
	setDuration("HUB_INACTIVITY_THRESHOLD", &config.Hub.InactivityThreshold)

	if v, ok := lookup("DATABASE_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Database.Enabled = b
		}
	}
	setString("DATABASE_PATH", &config.Database.Path)
	setInt("DATABASE_QUEUE_SIZE", &config.Database.QueueSize)

	setString("LOG_LEVEL", &config.Log.Level)
	setString("LOG_FORMAT", &config.Log.Format)
}

// LoadFromEnv returns defaults overridden by the environment.
func LoadFromEnv() *Config {
	config := DefaultConfig()
	ApplyEnv(config)
	return config
}

// LoadFromFile reads a YAML file over base. Keys absent from the file keep
// base's values.
func LoadFromFile(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := *base
	config.WebSocket.AllowedOrigins = append([]string(nil), base.WebSocket.AllowedOrigins...)
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return &config, nil
}

// Load applies the precedence file > environment > defaults and validates
// the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	config := LoadFromEnv()
	if path != "" {
		return LoadFromFile(path, config)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func setString(key string, dst *string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(key string, dst *time.Duration) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
