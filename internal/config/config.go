package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Sessions SessionsConfig `yaml:"sessions"`
	Executor ExecutorConfig `yaml:"executor"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
	// AllowedOrigins is the CORS and WebSocket origin allow-list. Empty means
	// localhost only; "*" allows any origin.
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type SessionsConfig struct {
	// IdleEviction is how long a finished session nobody is reading stays
	// reachable.
	IdleEviction  time.Duration `yaml:"idle_eviction"`
	MaxEventBytes int           `yaml:"max_event_bytes"`
}

type ExecutorConfig struct {
	// Kind selects the executor: scripted, openai or anthropic.
	Kind          string          `yaml:"kind"`
	Timeout       time.Duration   `yaml:"timeout"`
	MaxIterations int             `yaml:"max_iterations"`
	SystemPrompt  string          `yaml:"system_prompt"`
	Scripted      ScriptedConfig  `yaml:"scripted"`
	OpenAI        OpenAIConfig    `yaml:"openai"`
	Anthropic     AnthropicConfig `yaml:"anthropic"`
}

type ScriptedConfig struct {
	// Pattern is steady, error or stall.
	Pattern string        `yaml:"pattern"`
	Step    time.Duration `yaml:"step"`
}

type OpenAIConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
}

type AnthropicConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	// Format is json or console.
	Format string `yaml:"format"`
}

var (
	executorKinds   = []string{"scripted", "openai", "anthropic"}
	scriptPatterns  = []string{"steady", "error", "stall"}
	logLevels       = []string{"debug", "info", "warn", "error"}
	logFormats      = []string{"json", "console"}
	envVarReference = regexp.MustCompile(`\$\{([^}]+)\}`)
)

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
		},
		Sessions: SessionsConfig{
			IdleEviction:  5 * time.Minute,
			MaxEventBytes: 16 * 1024,
		},
		Executor: ExecutorConfig{
			Kind:          "scripted",
			Timeout:       10 * time.Minute,
			MaxIterations: 7,
			SystemPrompt:  "You are a helpful AI assistant.",
			Scripted: ScriptedConfig{
				Pattern: "steady",
				Step:    500 * time.Millisecond,
			},
			OpenAI: OpenAIConfig{
				BaseURL:     "https://openrouter.ai/api/v1",
				APIKey:      "${OPENROUTER_API_KEY}",
				Model:       "meta-llama/llama-3.3-70b-instruct:free",
				Temperature: 0.5,
				MaxTokens:   2000,
			},
			Anthropic: AnthropicConfig{
				APIKey:      "${ANTHROPIC_API_KEY}",
				Model:       "claude-3-5-sonnet-20241022",
				Temperature: 0.5,
				MaxTokens:   2000,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Default returns the built-in configuration with environment references
// resolved.
func Default() *Config {
	cfg := defaultConfig()
	cfg.expandSecrets()
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.expandSecrets()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or with an
// empty string when it is unset.
func expandEnvVars(s string) string {
	return envVarReference.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarReference.FindStringSubmatch(match)[1])
	})
}

// expandSecrets resolves references left in defaults that the file did not
// override.
func (c *Config) expandSecrets() {
	c.Executor.OpenAI.APIKey = expandEnvVars(c.Executor.OpenAI.APIKey)
	c.Executor.Anthropic.APIKey = expandEnvVars(c.Executor.Anthropic.APIKey)
}

// Validate returns the first invalid setting found.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Sessions.IdleEviction < 0 {
		return fmt.Errorf("sessions.idle_eviction must not be negative")
	}
	if c.Sessions.MaxEventBytes < 0 {
		return fmt.Errorf("sessions.max_event_bytes must not be negative")
	}
	if !slices.Contains(executorKinds, c.Executor.Kind) {
		return fmt.Errorf("executor.kind %q must be one of %v", c.Executor.Kind, executorKinds)
	}
	if c.Executor.Timeout <= 0 {
		return fmt.Errorf("executor.timeout must be positive")
	}
	if c.Executor.MaxIterations <= 0 {
		return fmt.Errorf("executor.max_iterations must be positive")
	}
	if c.Executor.Kind == "scripted" && !slices.Contains(scriptPatterns, c.Executor.Scripted.Pattern) {
		return fmt.Errorf("executor.scripted.pattern %q must be one of %v", c.Executor.Scripted.Pattern, scriptPatterns)
	}
	if !slices.Contains(logLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level %q must be one of %v", c.Logging.Level, logLevels)
	}
	if !slices.Contains(logFormats, c.Logging.Format) {
		return fmt.Errorf("logging.format %q must be one of %v", c.Logging.Format, logFormats)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
