package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Arena     ArenaConfig     `yaml:"arena"`
	Events    EventsConfig    `yaml:"events"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr" env:"ARENA_LISTEN_ADDR"`
	HTTPPort        int           `yaml:"http_port" env:"ARENA_HTTP_PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"ARENA_SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path" env:"ARENA_DB_PATH"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret" env:"ARENA_JWT_SECRET"`
	TokenDuration time.Duration `yaml:"token_duration" env:"ARENA_TOKEN_DURATION"`
}

// ArenaConfig tunes battle sessions
type ArenaConfig struct {
	TickRate       int           `yaml:"tick_rate" env:"ARENA_TICK_RATE"`
	NumMobs        int           `yaml:"num_mobs" env:"ARENA_NUM_MOBS"`
	ObserverBuffer int           `yaml:"observer_buffer" env:"ARENA_OBSERVER_BUFFER"`
	Retention      time.Duration `yaml:"retention" env:"ARENA_RETENTION"`
	ReapInterval   time.Duration `yaml:"reap_interval" env:"ARENA_REAP_INTERVAL"`
	// Inbound websocket messages per second and burst, per connection
	CommandRate  float64 `yaml:"command_rate" env:"ARENA_COMMAND_RATE"`
	CommandBurst int     `yaml:"command_burst" env:"ARENA_COMMAND_BURST"`
}

// EventsConfig holds event bus settings. An empty NATSURL with Embedded unset
// disables publishing.
type EventsConfig struct {
	NATSURL       string `yaml:"nats_url" env:"ARENA_NATS_URL"`
	Embedded      bool   `yaml:"embedded" env:"ARENA_NATS_EMBEDDED"`
	EmbeddedPort  int    `yaml:"embedded_port" env:"ARENA_NATS_PORT"`
	SubjectPrefix string `yaml:"subject_prefix" env:"ARENA_NATS_PREFIX"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level" env:"ARENA_LOG_LEVEL"`
	Format string `yaml:"format" env:"ARENA_LOG_FORMAT"`
}

// TelemetryConfig holds tracing settings. Tracing is off without an endpoint.
type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"ARENA_OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"ARENA_SERVICE_NAME"`
	SampleRatio  float64 `yaml:"sample_ratio" env:"ARENA_TRACE_SAMPLE_RATIO"`
	Insecure     bool    `yaml:"insecure" env:"ARENA_OTLP_INSECURE"`
}

// Load reads configuration from an optional .env file, a YAML file and
// ARENA_* environment variables, in that order. An empty path skips the YAML
// file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env file: %w", err)
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = "127.0.0.1"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "arena.db"
	}

	if cfg.Auth.TokenDuration == 0 {
		cfg.Auth.TokenDuration = 24 * time.Hour
	}

	if cfg.Arena.TickRate == 0 {
		cfg.Arena.TickRate = 20
	}
	if cfg.Arena.NumMobs == 0 {
		cfg.Arena.NumMobs = 10
	}
	if cfg.Arena.ObserverBuffer == 0 {
		cfg.Arena.ObserverBuffer = 16
	}
	if cfg.Arena.Retention == 0 {
		cfg.Arena.Retention = 10 * time.Minute
	}
	if cfg.Arena.ReapInterval == 0 {
		cfg.Arena.ReapInterval = time.Minute
	}
	if cfg.Arena.CommandRate == 0 {
		cfg.Arena.CommandRate = 40
	}
	if cfg.Arena.CommandBurst == 0 {
		cfg.Arena.CommandBurst = 10
	}

	if cfg.Events.EmbeddedPort == 0 {
		cfg.Events.EmbeddedPort = 4222
	}
	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "arena"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "arenad"
	}
	if cfg.Telemetry.SampleRatio == 0 {
		cfg.Telemetry.SampleRatio = 1
	}
}

// Addr is the HTTP listen address
func (cfg *Config) Addr() string {
	return fmt.Sprintf("%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
}
