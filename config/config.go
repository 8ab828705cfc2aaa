// Package config provides the librarian application configuration.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/librarian/pkg/llmfactory"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
	"github.com/go-playground/validator/v10"
)

// EnvPrefix is the prefix of the environment variables overriding the config.
const EnvPrefix = "LIBRARIAN_"

// Config of the librarian application.
type Config struct {
	// HTTPAddr is the listen address of the HTTP server
	HTTPAddr string `json:"http_addr" yaml:"http_addr" validate:"required"`
	// LogLevel is one of TRACE|DEBUG|INFO|NOTICE|WARNING|ERROR|CRITICAL
	LogLevel string `json:"log_level" yaml:"log_level" validate:"oneof=TRACE DEBUG INFO NOTICE WARNING ERROR CRITICAL"`
	// LoanDays is the default loan period
	LoanDays int `json:"loan_days" yaml:"loan_days" validate:"gte=1"`
	// SeedSample adds the demo books and patrons on start
	SeedSample bool `json:"seed_sample" yaml:"seed_sample"`
	// FakeBooks is the number of random books added on start
	FakeBooks int `json:"fake_books" yaml:"fake_books" validate:"gte=0"`

	Chat  Chat  `json:"chat" yaml:"chat"`
	Redis Redis `json:"redis" yaml:"redis"`

	// LLMConfig is the path of the LLM providers config,
	// relative to the config file
	LLMConfig string `json:"llm_config,omitempty" yaml:"llm_config,omitempty"`
	// LLM is the inline LLM providers config, used when LLMConfig is empty
	LLM *llmfactory.Config `json:"llm,omitempty" yaml:"llm,omitempty"`
}

// Chat configures the assistant.
type Chat struct {
	// Provider is the LLM provider name, the default provider is used if empty
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	// Model overrides the provider default model
	Model        string  `json:"model,omitempty" yaml:"model,omitempty"`
	MaxToolCalls int     `json:"max_tool_calls" yaml:"max_tool_calls" validate:"gte=1"`
	MaxMessages  int     `json:"max_messages" yaml:"max_messages" validate:"gte=2"`
	Temperature  float64 `json:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
}

// Redis configures the chat history store,
// the history is kept in memory when URL is empty.
type Redis struct {
	URL          string `json:"url,omitempty" yaml:"url,omitempty"`
	Prefix       string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	HistoryLimit int    `json:"history_limit" yaml:"history_limit" validate:"gte=0"`
	// TTL is the expiration of an inactive chat, such as 24h
	TTL string `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// TTLDuration returns the parsed TTL, zero when not set.
func (r *Redis) TTLDuration() (time.Duration, error) {
	if r.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(r.TTL)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid redis TTL %q", r.TTL)
	}
	return d, nil
}

// Default returns the config with defaults.
func Default() *Config {
	return &Config{
		HTTPAddr:   ":8080",
		LogLevel:   "INFO",
		LoanDays:   14,
		SeedSample: true,
		Chat: Chat{
			MaxToolCalls: 8,
			MaxMessages:  50,
		},
		Redis: Redis{
			Prefix:       "librarian",
			HistoryLimit: 50,
		},
	}
}

// Load returns the config from file, or the defaults if file is empty.
// Environment variables in values are expanded,
// then LIBRARIAN_* variables override the values.
func Load(file string) (*Config, error) {
	cfg := Default()
	if file != "" {
		if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
			return nil, errors.WithMessagef(err, "failed to load config %q", file)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides the values from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	if v, ok := get("HTTP_ADDR"); ok {
		c.HTTPAddr = v
	} else if v, ok := lookup("PORT"); ok && v != "" {
		c.HTTPAddr = ":" + strings.TrimPrefix(v, ":")
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := get("LOAN_DAYS"); ok {
		days, err := strconv.Atoi(v)
		if err != nil {
			return errors.Errorf("invalid %sLOAN_DAYS: %q", EnvPrefix, v)
		}
		c.LoanDays = days
	}
	if v, ok := get("SEED_SAMPLE"); ok {
		seed, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Errorf("invalid %sSEED_SAMPLE: %q", EnvPrefix, v)
		}
		c.SeedSample = seed
	}
	if v, ok := get("FAKE_BOOKS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Errorf("invalid %sFAKE_BOOKS: %q", EnvPrefix, v)
		}
		c.FakeBooks = n
	}
	if v, ok := get("REDIS_URL"); ok {
		c.Redis.URL = v
	}
	if v, ok := get("LLM_PROVIDER"); ok {
		c.Chat.Provider = v
	}
	if v, ok := get("LLM_MODEL"); ok {
		c.Chat.Model = v
	}
	c.LogLevel = strings.ToUpper(values.StringsCoalesce(c.LogLevel, "INFO"))
	return nil
}

var validate = validator.New()

// Validate returns an error if the config is invalid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if _, err := c.Redis.TTLDuration(); err != nil {
		return err
	}
	return nil
}

// LoadLLM returns the LLM providers config,
// nil if neither LLMConfig nor LLM is set.
// The relative LLMConfig path is resolved against dir.
func (c *Config) LoadLLM(dir string) (*llmfactory.Config, error) {
	if c.LLMConfig == "" {
		return c.LLM, nil
	}
	file := c.LLMConfig
	if dir != "" && !filepath.IsAbs(file) {
		file = filepath.Join(dir, file)
	}
	return llmfactory.LoadConfig(file)
}
