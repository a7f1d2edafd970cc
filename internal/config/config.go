package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	BackendDynamoDB = "dynamodb"
	BackendBolt     = "bolt"
)

// Config holds the environment driven configuration shared by the Lambda
// function and the standalone server.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"chat-agent"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	// Storage
	StoreBackend string `env:"STORE_BACKEND" envDefault:"dynamodb"` // "dynamodb" or "bolt"
	StateTable   string `env:"STATE_TABLE"`
	BoltPath     string `env:"BOLT_PATH" envDefault:"data/chat.bolt"`

	// Completion provider. OPENAI_API_KEY wins over the SSM parameter.
	ParamPrefix       string        `env:"PARAM_PREFIX"`
	OpenAIAPIKey      string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string        `env:"OPENAI_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	OpenAIModel       string        `env:"OPENAI_MODEL" envDefault:"openai/gpt-3.5-turbo"`
	CompletionTimeout time.Duration `env:"COMPLETION_TIMEOUT" envDefault:"30s"`

	HistoryWindow    int `env:"HISTORY_WINDOW" envDefault:"1"`
	MaxMessageLength int `env:"MAX_MESSAGE_LENGTH" envDefault:"4000"`

	HTTPPort int `env:"HTTP_PORT" envDefault:"5000"`
}

// Load parses environment variables into Config and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.StateTable = strings.TrimSpace(cfg.StateTable)
	cfg.ParamPrefix = strings.TrimRight(strings.TrimSpace(cfg.ParamPrefix), "/")
	cfg.OpenAIAPIKey = strings.TrimSpace(cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = strings.TrimSpace(cfg.OpenAIBaseURL)
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 1
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendDynamoDB:
		if c.StateTable == "" {
			return errors.New("config: STATE_TABLE is required for the dynamodb backend")
		}
	case BackendBolt:
		if strings.TrimSpace(c.BoltPath) == "" {
			return errors.New("config: BOLT_PATH is required for the bolt backend")
		}
	default:
		return fmt.Errorf("config: unsupported STORE_BACKEND %q", c.StoreBackend)
	}
	if c.OpenAIAPIKey == "" && c.ParamPrefix == "" {
		return errors.New("config: one of OPENAI_API_KEY or PARAM_PREFIX must be set")
	}
	if c.CompletionTimeout <= 0 {
		return errors.New("config: COMPLETION_TIMEOUT must be positive")
	}
	return nil
}

// Addr returns the listen address of the standalone server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
