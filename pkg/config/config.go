package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Bridge struct {
		// Mode selects the bridge implementation: "ws" for a remote
		// bridge, "local" for the in-process emulator.
		Mode         string        `yaml:"mode"`
		URL          string        `yaml:"url"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		AckTimeout   time.Duration `yaml:"ack_timeout"`
		PingInterval time.Duration `yaml:"ping_interval"`
		PongTimeout  time.Duration `yaml:"pong_timeout"`
		SendRate     float64       `yaml:"send_rate"`
		SendBurst    int           `yaml:"send_burst"`
	} `yaml:"bridge"`

	Retry struct {
		Enabled      bool          `yaml:"enabled"`
		MaxAttempts  int           `yaml:"max_attempts"`
		InitialDelay time.Duration `yaml:"initial_delay"`
		MaxDelay     time.Duration `yaml:"max_delay"`
		Multiplier   float64       `yaml:"multiplier"`
	} `yaml:"retry"`

	Emulator struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"emulator"`

	// Daemon configures roomlink-bridged, which serves the emulator
	// to remote clients over WebSocket plus a token-minting API.
	Daemon struct {
		Address   string        `yaml:"address"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
		RateLimit struct {
			Enabled           bool    `yaml:"enabled"`
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"`
		} `yaml:"rate_limit"`
	} `yaml:"daemon"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Monitoring struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	switch c.Bridge.Mode {
	case "ws":
		if c.Bridge.URL == "" {
			return fmt.Errorf("bridge.url must not be empty when bridge.mode=ws")
		}
	case "local":
	default:
		return fmt.Errorf("bridge.mode must be \"ws\" or \"local\", got %q", c.Bridge.Mode)
	}
	if c.Bridge.WriteTimeout <= 0 {
		return fmt.Errorf("bridge.write_timeout must be > 0")
	}
	if c.Bridge.AckTimeout <= 0 {
		return fmt.Errorf("bridge.ack_timeout must be > 0")
	}
	if c.Bridge.PingInterval <= 0 {
		return fmt.Errorf("bridge.ping_interval must be > 0")
	}
	if c.Bridge.PongTimeout <= c.Bridge.PingInterval {
		return fmt.Errorf("bridge.pong_timeout must be > bridge.ping_interval")
	}
	if c.Bridge.SendRate < 0 {
		return fmt.Errorf("bridge.send_rate must be >= 0")
	}

	if c.Retry.Enabled {
		if c.Retry.MaxAttempts <= 0 {
			return fmt.Errorf("retry.max_attempts must be > 0 when retry.enabled=true")
		}
		if c.Retry.InitialDelay <= 0 {
			return fmt.Errorf("retry.initial_delay must be > 0 when retry.enabled=true")
		}
		if c.Retry.MaxDelay < c.Retry.InitialDelay {
			return fmt.Errorf("retry.max_delay must be >= retry.initial_delay")
		}
		if c.Retry.Multiplier < 1 {
			return fmt.Errorf("retry.multiplier must be >= 1")
		}
	}

	if c.Daemon.Address == "" {
		return fmt.Errorf("daemon.address must not be empty")
	}
	if c.Daemon.TokenTTL <= 0 {
		return fmt.Errorf("daemon.token_ttl must be > 0")
	}
	if c.Daemon.RateLimit.Enabled {
		if c.Daemon.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("daemon.rate_limit.requests_per_second must be > 0 when enabled")
		}
		if c.Daemon.RateLimit.Burst <= 0 {
			return fmt.Errorf("daemon.rate_limit.burst must be > 0 when enabled")
		}
	}

	if c.Bridge.Mode == "local" && c.Emulator.JWTSecret == "" {
		return fmt.Errorf("emulator.jwt_secret must not be empty when bridge.mode=local")
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	if c.Monitoring.Enabled && c.Monitoring.Address == "" {
		return fmt.Errorf("monitoring.address must not be empty when monitoring.enabled=true")
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in [0, 1]")
		}
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Bridge.Mode = "local"
	cfg.Bridge.URL = "ws://localhost:8787/bridge"
	cfg.Bridge.WriteTimeout = 10 * time.Second
	cfg.Bridge.AckTimeout = 15 * time.Second
	cfg.Bridge.PingInterval = 30 * time.Second
	cfg.Bridge.PongTimeout = 60 * time.Second
	cfg.Bridge.SendRate = 100
	cfg.Bridge.SendBurst = 20

	cfg.Retry.Enabled = true
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.InitialDelay = 100 * time.Millisecond
	cfg.Retry.MaxDelay = 5 * time.Second
	cfg.Retry.Multiplier = 2.0

	cfg.Emulator.JWTSecret = "change-me-in-production"

	cfg.Daemon.Address = ":8787"
	cfg.Daemon.TokenTTL = 24 * time.Hour
	cfg.Daemon.RateLimit.Enabled = true
	cfg.Daemon.RateLimit.RequestsPerSecond = 50
	cfg.Daemon.RateLimit.Burst = 100
	cfg.Daemon.RateLimit.MaxConcurrent = 256

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Monitoring.Enabled = true
	cfg.Monitoring.Address = ":9091"

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if mode := os.Getenv("ROOMLINK_BRIDGE_MODE"); mode != "" {
		c.Bridge.Mode = mode
	}
	if url := os.Getenv("ROOMLINK_BRIDGE_URL"); url != "" {
		c.Bridge.URL = url
	}
	if level := os.Getenv("ROOMLINK_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if addr := os.Getenv("ROOMLINK_DAEMON_ADDRESS"); addr != "" {
		c.Daemon.Address = addr
	}
	if addr := os.Getenv("ROOMLINK_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
	if secret := os.Getenv("ROOMLINK_JWT_SECRET"); secret != "" {
		c.Emulator.JWTSecret = secret
	}
}
