package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level daemon configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Providers ProvidersConfig `yaml:"providers"`
	Memory    MemoryConfig    `yaml:"memory"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Evolution EvolutionConfig `yaml:"evolution"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	AdminKey string `yaml:"admin_key"`
}

// RedisConfig holds the persistence backend settings. When disabled the
// core runs on the in-memory backend and nothing survives a restart.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ProviderConfig holds credentials for one generation backend
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// ProvidersConfig holds all provider credentials
type ProvidersConfig struct {
	OpenAI    ProviderConfig `yaml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	Gemini    ProviderConfig `yaml:"gemini"`
}

// MemoryConfig holds memory subsystem settings
type MemoryConfig struct {
	LoadLimit    int      `yaml:"load_limit"`
	ContextLimit int      `yaml:"context_limit"`
	Users        []string `yaml:"users"`
}

// SchedulerConfig holds maintenance job settings
type SchedulerConfig struct {
	DecaySpec string `yaml:"decay_spec"`
}

// EvolutionConfig holds evolution controller settings
type EvolutionConfig struct {
	MinRuns int `yaml:"min_runs"`
}

// Load reads and parses the config file. Environment variables in the
// file (e.g. ${OPENAI_API_KEY}) are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 18900
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Memory.LoadLimit == 0 {
		c.Memory.LoadLimit = 60
	}
	if c.Memory.ContextLimit == 0 {
		c.Memory.ContextLimit = 15
	}
	if c.Scheduler.DecaySpec == "" {
		c.Scheduler.DecaySpec = "0 * * * *"
	}
	if c.Evolution.MinRuns == 0 {
		c.Evolution.MinRuns = 12
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Memory.LoadLimit < 1 {
		return fmt.Errorf("memory load_limit must be positive")
	}
	if c.Memory.ContextLimit < 1 {
		return fmt.Errorf("memory context_limit must be positive")
	}
	if c.Evolution.MinRuns < 1 {
		return fmt.Errorf("evolution min_runs must be positive")
	}
	return nil
}
