package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the router
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Local    LocalConfig    `mapstructure:"local"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Search   SearchConfig   `mapstructure:"search"`
	Health   HealthConfig   `mapstructure:"health"`
	Chat     ChatConfig     `mapstructure:"chat"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
}

// APIConfig holds management API authentication configuration
type APIConfig struct {
	Key string `mapstructure:"key"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LocalConfig holds the local inference backend configuration
type LocalConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	DefaultModel string `mapstructure:"default_model"`
}

// RemoteConfig holds the remote OpenAI-compatible backend
// configuration. All remote traffic goes through the proxy hop.
type RemoteConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	ProxyURL string `mapstructure:"proxy_url"`
}

// SearchConfig holds the web-search provider configuration
type SearchConfig struct {
	APIURL      string  `mapstructure:"api_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// HealthConfig holds the health monitor configuration
type HealthConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// ChatConfig holds generation defaults applied to every chat call
type ChatConfig struct {
	SystemPrompt string  `mapstructure:"system_prompt"`
	Temperature  float64 `mapstructure:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("LLMROUTER")
	v.AutomaticEnv()

	// Read config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")

	v.SetDefault("api.key", "")

	v.SetDefault("database.path", "./data/llmrouter.db")

	v.SetDefault("local.base_url", "http://localhost:11434")
	v.SetDefault("local.default_model", "qwen2.5:7b")

	v.SetDefault("remote.endpoint", "")
	v.SetDefault("remote.api_key", "")
	v.SetDefault("remote.model", "gpt-4o-mini")
	v.SetDefault("remote.proxy_url", "http://localhost:8080")

	v.SetDefault("search.api_url", "")
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.model", "sonar")
	v.SetDefault("search.temperature", 0.2)
	v.SetDefault("search.max_tokens", 800)

	v.SetDefault("health.interval", 5*time.Second)
	v.SetDefault("health.probe_timeout", 3*time.Second)

	v.SetDefault("chat.system_prompt", "You are a helpful customer-intelligence assistant.")
	v.SetDefault("chat.temperature", 0.7)
	v.SetDefault("chat.max_tokens", 2048)
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
