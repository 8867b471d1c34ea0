// Package config loads front desk settings from defaults, an optional YAML
// file and FRONTDESK_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"frontdesk/knowledge"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL string `yaml:"database_url" validate:"required"`
	HTTPAddr    string `yaml:"http_addr" validate:"required"`
	JWTSecret   string `yaml:"jwt_secret" validate:"required,min=16"`
	LogLevel    string `yaml:"log_level" validate:"oneof=debug info warn error"`
	// TokenTTL is how long a supervisor login token stays valid.
	TokenTTL time.Duration `yaml:"token_ttl" validate:"gt=0"`

	// RequestTTL is how long a help request waits for a supervisor before the
	// sweeper may mark it unresolved.
	RequestTTL    time.Duration `yaml:"request_ttl" validate:"gt=0"`
	SweepInterval time.Duration `yaml:"sweep_interval" validate:"gt=0"`

	Outbox   OutboxConfig           `yaml:"outbox"`
	Business knowledge.BusinessInfo `yaml:"business"`
}

type OutboxConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
	BatchSize    int           `yaml:"batch_size" validate:"gt=0"`
	MaxAttempts  int           `yaml:"max_attempts" validate:"gt=0"`
}

// Default returns a config that only lacks a database URL and a JWT secret.
func Default() Config {
	return Config{
		HTTPAddr:      ":8080",
		LogLevel:      "info",
		TokenTTL:      24 * time.Hour,
		RequestTTL:    5 * time.Minute,
		SweepInterval: 10 * time.Second,
		Outbox: OutboxConfig{
			PollInterval: 2 * time.Second,
			BatchSize:    10,
			MaxAttempts:  5,
		},
		Business: knowledge.DefaultBusinessInfo(),
	}
}

var validate = validator.New()

// Load builds the config. An empty path or a missing file leaves the defaults
// in place; environment variables always win over the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	if err := loadEnv(&cfg, os.Getenv); err != nil {
		return Config{}, fmt.Errorf("config: environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func loadEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := getenv("FRONTDESK_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := getenv("FRONTDESK_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := getenv("FRONTDESK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"FRONTDESK_REQUEST_TTL", &cfg.RequestTTL},
		{"FRONTDESK_SWEEP_INTERVAL", &cfg.SweepInterval},
		{"FRONTDESK_OUTBOX_INTERVAL", &cfg.Outbox.PollInterval},
		{"FRONTDESK_TOKEN_TTL", &cfg.TokenTTL},
	}
	for _, d := range durations {
		v := getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if v := getenv("FRONTDESK_OUTBOX_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FRONTDESK_OUTBOX_BATCH_SIZE: %w", err)
		}
		cfg.Outbox.BatchSize = n
	}
	return nil
}
