package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultJWTSecretEnv is consulted when RPC.JWTSecretEnv is unset.
const DefaultJWTSecretEnv = "PHX_RPC_JWT_SECRET"

type Config struct {
	RPCAddress  string    `toml:"RPCAddress"`
	DataDir     string    `toml:"DataDir"`
	AuditDBPath string    `toml:"AuditDBPath"`
	Environment string    `toml:"Environment"`
	Logging     Logging   `toml:"logging"`
	RPC         RPC       `toml:"rpc"`
	Telemetry   Telemetry `toml:"telemetry"`
	Genesis     Genesis   `toml:"genesis"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists. PHX_* environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err = createDefault(path)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s: unknown field %s", path, undecoded[0].String())
		}
	}
	cfg.applyDefaults()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written on first start.
func Default() *Config {
	cfg := &Config{
		RPCAddress:  "127.0.0.1:8645",
		DataDir:     "./phx-data",
		Environment: "local",
		Logging:     Logging{Level: "info"},
		Genesis:     Genesis{FeeBps: 250, Denom: "PHX", MinKYCLevel: 1},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if c.AuditDBPath == "" && c.DataDir != "" {
		c.AuditDBPath = filepath.Join(c.DataDir, "audit.db")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.RPC.JWTSecretEnv == "" {
		c.RPC.JWTSecretEnv = DefaultJWTSecretEnv
	}
	if c.RPC.RateLimitPerSecond == 0 {
		c.RPC.RateLimitPerSecond = 20
	}
	if c.RPC.RateLimitBurst == 0 {
		c.RPC.RateLimitBurst = 40
	}
	if c.RPC.MaxBodyBytes == 0 {
		c.RPC.MaxBodyBytes = 1 << 20
	}
	if c.RPC.ReadHeaderTimeout == 0 {
		c.RPC.ReadHeaderTimeout = 5
	}
	if c.RPC.ReadTimeout == 0 {
		c.RPC.ReadTimeout = 15
	}
	if c.RPC.WriteTimeout == 0 {
		c.RPC.WriteTimeout = 15
	}
	if c.RPC.IdleTimeout == 0 {
		c.RPC.IdleTimeout = 60
	}
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "localhost:4318"
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PHX_RPC_ADDRESS"); ok && v != "" {
		c.RPCAddress = v
	}
	if v, ok := lookup("PHX_DATA_DIR"); ok && v != "" {
		c.DataDir = v
	}
	if v, ok := lookup("PHX_AUDIT_DB"); ok && v != "" {
		c.AuditDBPath = v
	}
	if v, ok := lookup("PHX_ENV"); ok && v != "" {
		c.Environment = v
	}
	if v, ok := lookup("PHX_LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup("PHX_OTEL_ENDPOINT"); ok && v != "" {
		c.Telemetry.Endpoint = v
	}
	if v, ok := lookup("PHX_OTEL_HEADERS"); ok && v != "" {
		c.Telemetry.Headers = v
	}
	if v, ok := lookup("PHX_RPC_RATE_LIMIT"); ok && v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PHX_RPC_RATE_LIMIT: %w", err)
		}
		c.RPC.RateLimitPerSecond = rate
	}
	return nil
}

// JWTSecret resolves the RPC signing secret from the environment.
func (c *Config) JWTSecret() ([]byte, error) {
	name := c.RPC.JWTSecretEnv
	if name == "" {
		name = DefaultJWTSecretEnv
	}
	secret := strings.TrimSpace(os.Getenv(name))
	if secret == "" {
		return nil, fmt.Errorf("rpc: %s must be set", name)
	}
	return []byte(secret), nil
}

// Seconds converts a config value in seconds to a duration.
func Seconds(v int) time.Duration { return time.Duration(v) * time.Second }

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
