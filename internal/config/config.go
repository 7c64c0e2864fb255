package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v10"
)

// Storage and event bus backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendRemote   = "remote"
)

// Config holds all configuration for the editor service
type Config struct {
	// Server configuration
	HTTPPort int    `env:"DAGO_EDITOR_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"DAGO_EDITOR_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Remote workflow service
	Backend BackendConfig

	// Run pacing and timeouts
	Run RunConfig

	// Saved workflow persistence
	Workflows WorkflowConfig

	// Draft persistence
	Drafts DraftConfig

	// Event bus
	Events EventsConfig

	// Redis configuration
	Redis RedisConfig

	// Postgres configuration
	Postgres PostgresConfig

	// Session lifecycle
	Sessions SessionConfig

	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// BackendConfig holds the workflow service connection settings
type BackendConfig struct {
	URL            string        `env:"BACKEND_URL" envDefault:"http://localhost:8000"`
	Token          string        `env:"BACKEND_TOKEN"`
	RequestTimeout time.Duration `env:"BACKEND_REQUEST_TIMEOUT" envDefault:"120s"`
}

// RunConfig holds orchestrator settings
type RunConfig struct {
	Timeout        time.Duration `env:"RUN_TIMEOUT" envDefault:"60s"`
	MinStepDelay   time.Duration `env:"MIN_STEP_DELAY" envDefault:"50ms"`
	MaxStepDelay   time.Duration `env:"MAX_STEP_DELAY" envDefault:"300ms"`
	PlaybackBudget time.Duration `env:"PLAYBACK_BUDGET" envDefault:"1s"`
}

// WorkflowConfig selects where saved workflows live. Runs execute on the
// remote service, so only the remote store can back a runnable workflow.
type WorkflowConfig struct {
	Store string `env:"WORKFLOW_STORE" envDefault:"remote"`
}

// DraftConfig selects where unsaved editor state is kept
type DraftConfig struct {
	Store         string        `env:"DRAFT_STORE" envDefault:"memory"`
	TTL           time.Duration `env:"DRAFT_TTL" envDefault:"168h"`
	AutosaveDelay time.Duration `env:"DRAFT_AUTOSAVE_DELAY" envDefault:"2s"`
}

// EventsConfig selects the event bus
type EventsConfig struct {
	Bus           string `env:"EVENT_BUS" envDefault:"memory"`
	ConsumerGroup string `env:"EVENT_CONSUMER_GROUP"`
	ConsumerName  string `env:"EVENT_CONSUMER_NAME" envDefault:"dago-editor"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// PostgresConfig holds the draft database settings
type PostgresConfig struct {
	DSN      string `env:"POSTGRES_DSN"`
	MaxConns int32  `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
}

// SessionConfig controls idle session disposal
type SessionConfig struct {
	IdleTTL      time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`
	ReapInterval time.Duration `env:"SESSION_REAP_INTERVAL" envDefault:"1m"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	u, err := url.Parse(c.Backend.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend URL: %q", c.Backend.URL)
	}

	if c.Run.Timeout <= 0 {
		return fmt.Errorf("run timeout must be positive")
	}
	if c.Run.MinStepDelay < 0 || c.Run.MaxStepDelay < c.Run.MinStepDelay {
		return fmt.Errorf("invalid step delay bounds: min %s, max %s", c.Run.MinStepDelay, c.Run.MaxStepDelay)
	}

	switch c.Workflows.Store {
	case BackendRemote, BackendMemory:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres DSN is required for the postgres workflow store")
		}
	default:
		return fmt.Errorf("unsupported workflow store: %s (must be remote, memory, or postgres)", c.Workflows.Store)
	}

	switch c.Drafts.Store {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres DSN is required for the postgres draft store")
		}
	default:
		return fmt.Errorf("unsupported draft store: %s (must be memory, redis, or postgres)", c.Drafts.Store)
	}

	switch c.Events.Bus {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unsupported event bus: %s (must be memory or redis)", c.Events.Bus)
	}

	if c.UsesRedis() && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Sessions.IdleTTL <= 0 || c.Sessions.ReapInterval <= 0 {
		return fmt.Errorf("session idle TTL and reap interval must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// UsesPostgres reports whether any component needs a Postgres pool
func (c *Config) UsesPostgres() bool {
	return c.Drafts.Store == BackendPostgres || c.Workflows.Store == BackendPostgres
}

// UsesRedis reports whether any component needs a Redis connection
func (c *Config) UsesRedis() bool {
	return c.Drafts.Store == BackendRedis || c.Events.Bus == BackendRedis
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
