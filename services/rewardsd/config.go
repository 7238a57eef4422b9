package rewardsd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"rewardvault/crypto"
	"rewardvault/native/rewards"
)

// Duration wraps time.Duration to support YAML and TOML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// UnmarshalText is used by the TOML decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for rewardsd.
type Config struct {
	ListenAddress string          `yaml:"listen" toml:"listen"`
	DataDir       string          `yaml:"data_dir" toml:"data_dir"`
	ProgramID     string          `yaml:"program_id" toml:"program_id"`
	PauseOnStart  bool            `yaml:"pause" toml:"pause"`
	MinClaim      uint64          `yaml:"min_claim" toml:"min_claim"`
	RequestTTL    Duration        `yaml:"request_ttl" toml:"request_ttl"`
	Admin         AdminConfig     `yaml:"admin" toml:"admin"`
	RateLimit     RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Logging       LoggingConfig   `yaml:"logging" toml:"logging"`
	Telemetry     TelemetryConfig `yaml:"telemetry" toml:"telemetry"`

	program solana.PublicKey
}

// AdminConfig secures the operator API with HMAC signed JWTs.
type AdminConfig struct {
	HMACSecret     string `yaml:"hmac_secret" toml:"hmac_secret"`
	HMACSecretFile string `yaml:"hmac_secret_file" toml:"hmac_secret_file"`
	HMACSecretEnv  string `yaml:"hmac_secret_env" toml:"hmac_secret_env"`
	Issuer         string `yaml:"issuer" toml:"issuer"`
	Audience       string `yaml:"audience" toml:"audience"`
}

type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute" toml:"requests_per_minute"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

type LoggingConfig struct {
	Format     string `yaml:"format" toml:"format"`
	Level      string `yaml:"level" toml:"level"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
}

type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	Insecure bool   `yaml:"insecure" toml:"insecure"`
	Traces   bool   `yaml:"traces" toml:"traces"`
	Metrics  bool   `yaml:"metrics" toml:"metrics"`
}

// Program returns the parsed program id used to derive pool authorities.
func (c Config) Program() solana.PublicKey {
	if c.program.IsZero() {
		return rewards.DefaultProgramID
	}
	return c.program
}

// LoadConfig reads configuration from the supplied path. Files ending in
// .toml are decoded as TOML, everything else as YAML. A .env file next to the
// working directory is loaded first so secrets can be referenced through
// hmac_secret_env.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(raw), &cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}
	applyDefaults(&cfg)
	if err := cfg.Admin.normalise(); err != nil {
		return cfg, fmt.Errorf("admin security: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data/rewardsd"
	}
	if cfg.RequestTTL.Duration == 0 {
		cfg.RequestTTL.Duration = 5 * time.Minute
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 50
	}
	if cfg.Admin.Issuer == "" {
		cfg.Admin.Issuer = "rewardvault"
	}
	if cfg.Admin.Audience == "" {
		cfg.Admin.Audience = "rewardsd"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.Admin.HMACSecret) == "" {
		return fmt.Errorf("admin hmac_secret must be configured")
	}
	if len(cfg.Admin.HMACSecret) < 16 {
		return fmt.Errorf("admin hmac_secret must be at least 16 bytes")
	}
	if cfg.RequestTTL.Duration < time.Second {
		return fmt.Errorf("request_ttl must be at least 1s")
	}
	if cfg.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must not be negative")
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text", "console":
	default:
		return fmt.Errorf("logging.format must be json or text")
	}
	if id := strings.TrimSpace(cfg.ProgramID); id != "" {
		program, err := crypto.ParsePublicKey(id)
		if err != nil {
			return fmt.Errorf("program_id: %w", err)
		}
		cfg.program = program
	}
	return nil
}

func (a *AdminConfig) normalise() error {
	if a == nil {
		return fmt.Errorf("admin configuration missing")
	}
	a.HMACSecret = strings.TrimSpace(a.HMACSecret)
	a.HMACSecretEnv = strings.TrimSpace(a.HMACSecretEnv)
	a.HMACSecretFile = strings.TrimSpace(a.HMACSecretFile)
	if a.HMACSecret != "" {
		return nil
	}
	switch {
	case a.HMACSecretEnv != "":
		value := strings.TrimSpace(os.Getenv(a.HMACSecretEnv))
		if value == "" {
			return fmt.Errorf("hmac_secret_env %s is empty", a.HMACSecretEnv)
		}
		a.HMACSecret = value
	case a.HMACSecretFile != "":
		contents, err := os.ReadFile(a.HMACSecretFile)
		if err != nil {
			return fmt.Errorf("read hmac_secret_file: %w", err)
		}
		a.HMACSecret = strings.TrimSpace(string(contents))
	}
	return nil
}
