// Package config loads promptline settings from a YAML file, a .env file
// and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/KamdynS/promptline/agent"
	"github.com/KamdynS/promptline/llm/anthropic"
	"github.com/KamdynS/promptline/llm/openai"
	"github.com/KamdynS/promptline/logging"
	"github.com/KamdynS/promptline/server"
	"github.com/KamdynS/promptline/state"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PROMPTLINE_SERVER_PORT.
const EnvPrefix = "PROMPTLINE"

// Config is the full application configuration.
type Config struct {
	Logging logging.Config `mapstructure:"logging"`
	Server  server.Config  `mapstructure:"server"`
	// Provider selects the default completion service.
	Provider  string           `mapstructure:"provider" validate:"oneof=openai anthropic"`
	OpenAI    openai.Config    `mapstructure:"openai"`
	Anthropic anthropic.Config `mapstructure:"anthropic"`
	// Store selects where session transcripts live.
	Store      string            `mapstructure:"store" validate:"oneof=memory redis"`
	Redis      state.RedisConfig `mapstructure:"redis" validate:"-"`
	Agent      agent.AgentConfig `mapstructure:"agent"`
	Embeddings EmbeddingsConfig  `mapstructure:"embeddings"`
}

// EmbeddingsConfig controls the redis embedding cache. The cache reuses the
// redis connection settings and needs Store to be redis.
type EmbeddingsConfig struct {
	Cache     bool          `mapstructure:"cache"`
	Namespace string        `mapstructure:"namespace"`
	TTL       time.Duration `mapstructure:"ttl"`
	BatchSize int           `mapstructure:"batch_size" validate:"gte=0"`
}

var defaults = map[string]any{
	"logging.level":                 "info",
	"logging.format":                "console",
	"logging.output":                "stdout",
	"logging.timestamp":             true,
	"logging.no_color":              false,
	"logging.caller":                false,
	"server.host":                   "",
	"server.port":                   8080,
	"server.read_timeout":           "15s",
	"server.write_timeout":          "0s",
	"server.idle_timeout":           "60s",
	"server.request_timeout":        "60s",
	"server.max_request_body_bytes": 1 << 20,
	"provider":                      "openai",
	"openai.api_key":                "",
	"openai.model":                  "gpt-4o",
	"openai.embedding_model":        "text-embedding-3-small",
	"openai.base_url":               "",
	"openai.organization":           "",
	"openai.max_tokens":             0,
	"openai.timeout":                "30s",
	"anthropic.api_key":             "",
	"anthropic.model":               "claude-3-5-haiku-latest",
	"anthropic.base_url":            "",
	"anthropic.max_tokens":          1024,
	"anthropic.timeout":             "30s",
	"store":                         "memory",
	"redis.addr":                    "",
	"redis.username":                "",
	"redis.password":                "",
	"redis.db":                      0,
	"redis.namespace":               "promptline",
	"redis.max_messages":            0,
	"redis.ttl":                     "0s",
	"agent.max_iterations":          5,
	"agent.system_prompt":           "",
	"agent.model":                   "",
	"agent.history_limit":           0,
	"agent.token_limit":             0,
	"embeddings.cache":              false,
	"embeddings.namespace":          "promptline",
	"embeddings.ttl":                "24h",
	"embeddings.batch_size":         0,
}

// Conventional variables read when the prefixed form is unset.
var envAliases = map[string]string{
	"openai.api_key":    "OPENAI_API_KEY",
	"openai.base_url":   "OPENAI_BASE_URL",
	"anthropic.api_key": "ANTHROPIC_API_KEY",
	"redis.addr":        "REDIS_ADDR",
}

type loaderConfig struct {
	configFile string
	envFile    string
}

// Option customizes Load.
type Option func(*loaderConfig)

// WithConfigFile sets an explicit YAML config path.
func WithConfigFile(path string) Option { return func(l *loaderConfig) { l.configFile = path } }

// WithEnvFile sets an explicit .env path.
func WithEnvFile(path string) Option { return func(l *loaderConfig) { l.envFile = path } }

// Load reads and validates configuration. Without options it looks for
// ./config.yml and ./.env and skips the ones that do not exist.
func Load(opts ...Option) (*Config, error) {
	lc := loaderConfig{configFile: "config.yml", envFile: ".env"}
	for _, o := range opts {
		o(&lc)
	}

	if exists(lc.envFile) {
		if err := godotenv.Load(lc.envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", lc.envFile, err)
		}
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	if exists(lc.configFile) {
		v.SetConfigFile(lc.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", lc.configFile, err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Store == "redis" {
		if err := v.Struct(c.Redis); err != nil {
			return fmt.Errorf("invalid redis config: %w", err)
		}
	}
	if c.Embeddings.Cache && c.Store != "redis" {
		return errors.New("invalid config: embeddings.cache requires store=redis")
	}
	return nil
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
