package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Config struct {
	APIKey       string        `env:"DRAGONEYE_API_KEY,required,notEmpty"`
	BaseURL      string        `env:"DRAGONEYE_BASE_URL" envDefault:"https://api.dragoneye.ai"`
	PollInterval time.Duration `env:"DRAGONEYE_POLL_INTERVAL" envDefault:"1s"`
	HTTPTimeout  time.Duration `env:"DRAGONEYE_HTTP_TIMEOUT" envDefault:"0s"`
	DataDir      string        `env:"DRAGONEYE_DATA_DIR" envDefault:"./data"`
	LogLevel     string        `env:"DRAGONEYE_LOG_LEVEL" envDefault:"info"`
	UserAgent    string        `env:"DRAGONEYE_USER_AGENT" envDefault:"dragoneye-go"`
}

// LoadConfig reads the configuration from the environment after loading the
// given .env files. With no files, a .env in the working directory is used
// when present.
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && len(envFiles) > 0 {
		return nil, fmt.Errorf("error loading env file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("api key is required")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.HTTPTimeout < 0 {
		return errors.New("http timeout must not be negative")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base url %q", c.BaseURL)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
