// Package config loads agentdesk settings from file, environment, and
// defaults, in that order of increasing precedence for the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	// Provider selects the client: "anthropic" uses the native messages
	// API; anything else goes through the text-only gollm adapter.
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	// APIKey overrides the provider's conventional environment variable.
	APIKey string `mapstructure:"api_key"`

	System        string `mapstructure:"system"`
	MaxTokens     int    `mapstructure:"max_tokens"`
	MaxToolRounds int    `mapstructure:"max_tool_rounds"`
	// ThinkingBudget enables extended thinking when positive.
	ThinkingBudget int `mapstructure:"thinking_budget"`

	LogDir        string `mapstructure:"log_dir"`
	LogLevel      string `mapstructure:"log_level"`
	TranscriptDir string `mapstructure:"transcript_dir"`

	Display            string `mapstructure:"display"`
	PythonStartupCode  string `mapstructure:"python_startup_code"`
	CommandTimeoutS    int    `mapstructure:"command_timeout_s"`
	MaxCommandTimeoutS int    `mapstructure:"max_command_timeout_s"`
}

// CommandTimeout returns the default tool timeout as a duration.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutS) * time.Second
}

// MaxCommandTimeout returns the tool timeout ceiling as a duration.
func (c *Config) MaxCommandTimeout() time.Duration {
	return time.Duration(c.MaxCommandTimeoutS) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "anthropic")
	v.SetDefault("model", "claude-sonnet-4-20250514")
	v.SetDefault("max_tokens", 8192)
	v.SetDefault("max_tool_rounds", 50)
	v.SetDefault("thinking_budget", 0)
	v.SetDefault("log_dir", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("transcript_dir", "")
	v.SetDefault("display", "")
	v.SetDefault("python_startup_code", "")
	v.SetDefault("command_timeout_s", 30)
	v.SetDefault("max_command_timeout_s", 600)
	v.SetDefault("system", "")
	v.SetDefault("api_key", "")
}

// Load reads configuration. When path is non-empty that exact file is used
// and must exist; otherwise agentdesk.yaml is searched for in the working
// directory and ~/.config/agentdesk, and absence is fine. AGENTDESK_*
// environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("agentdesk")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("agentdesk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/agentdesk")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.CommandTimeoutS <= 0 || c.MaxCommandTimeoutS < c.CommandTimeoutS {
		return fmt.Errorf("command timeouts invalid: default %ds, max %ds", c.CommandTimeoutS, c.MaxCommandTimeoutS)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}
	return nil
}
