package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Backend      BackendConfig             `json:"backend" yaml:"backend"`
	LLMProviders map[string]ProviderConfig `json:"llm_providers" yaml:"llm_providers"`
	Analysis     AnalysisConfig            `json:"analysis" yaml:"analysis"`
	Data         DataConfig                `json:"data" yaml:"data"`
	Log          LogConfig                 `json:"log" yaml:"log"`
	UI           UIConfig                  `json:"ui" yaml:"ui"`
}

// BackendConfig configures the primary backend and the direct fallback order
type BackendConfig struct {
	URL                   string   `json:"url" yaml:"url"`
	ProbeTimeoutSeconds   int      `json:"probe_timeout_seconds" yaml:"probe_timeout_seconds"`
	RequestTimeoutSeconds int      `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	Fallbacks             []string `json:"fallbacks" yaml:"fallbacks"` // provider keys, tried in order
}

// ProviderConfig represents a direct LLM provider
type ProviderConfig struct {
	DisplayName  string  `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Kind         string  `json:"kind" yaml:"kind"` // gemini or openai
	APIKey       string  `json:"api_key" yaml:"api_key"`
	BaseURL      string  `json:"base_url" yaml:"base_url"`
	DefaultModel string  `json:"default_model" yaml:"default_model"`
	AudioModel   string  `json:"audio_model,omitempty" yaml:"audio_model,omitempty"`
	Enabled      bool    `json:"enabled" yaml:"enabled"`
	MaxTokens    int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// AnalysisConfig holds request lifecycle limits
type AnalysisConfig struct {
	CooldownSeconds        int   `json:"cooldown_seconds" yaml:"cooldown_seconds"`
	ChatCooldownSeconds    int   `json:"chat_cooldown_seconds" yaml:"chat_cooldown_seconds"`
	LeaseSeconds           int   `json:"lease_seconds" yaml:"lease_seconds"`
	MaxMediaBytes          int64 `json:"max_media_bytes" yaml:"max_media_bytes"`
	ProgressTickMillis     int   `json:"progress_tick_millis" yaml:"progress_tick_millis"`
	ThumbnailTimeoutMillis int   `json:"thumbnail_timeout_millis" yaml:"thumbnail_timeout_millis"`
	ThumbnailMaxPixels     uint  `json:"thumbnail_max_pixels" yaml:"thumbnail_max_pixels"`
}

// DataConfig represents data storage configuration
type DataConfig struct {
	DBPath        string `json:"db_path" yaml:"db_path"`
	RedisAddr     string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty" yaml:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty" yaml:"redis_db,omitempty"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	Path  string `json:"path,omitempty" yaml:"path,omitempty"` // empty means GetLogPath()
}

// UIConfig represents terminal rendering configuration
type UIConfig struct {
	Style string `json:"style" yaml:"style"` // glamour style: dark, light, notty, auto
	Width int    `json:"width" yaml:"width"`

	// Desktop window
	Theme        string `json:"theme" yaml:"theme"` // Light or Dark
	FontSize     int    `json:"font_size" yaml:"font_size"`
	WindowWidth  int    `json:"window_width" yaml:"window_width"`
	WindowHeight int    `json:"window_height" yaml:"window_height"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:                   "http://localhost:5000/api",
			ProbeTimeoutSeconds:   3,
			RequestTimeoutSeconds: 120,
			Fallbacks:             []string{"gemini", "groq", "openai"},
		},
		LLMProviders: map[string]ProviderConfig{
			"gemini": {
				DisplayName:  "Gemini",
				Kind:         "gemini",
				BaseURL:      "https://generativelanguage.googleapis.com/v1beta",
				DefaultModel: "gemini-2.0-flash",
				MaxTokens:    8192,
				Temperature:  0.4,
				Enabled:      true,
			},
			"groq": {
				DisplayName:  "Groq",
				Kind:         "openai",
				BaseURL:      "https://api.groq.com/openai/v1",
				DefaultModel: "llama-3.3-70b-versatile",
				AudioModel:   "whisper-large-v3",
				MaxTokens:    1024,
				Temperature:  1,
				Enabled:      true,
			},
			"openai": {
				DisplayName:  "OpenAI",
				Kind:         "openai",
				BaseURL:      "https://api.openai.com/v1",
				DefaultModel: "gpt-4o-mini",
				Enabled:      false,
			},
		},
		Analysis: AnalysisConfig{
			CooldownSeconds:        10,
			ChatCooldownSeconds:    2,
			LeaseSeconds:           300,
			MaxMediaBytes:          20 * 1024 * 1024,
			ProgressTickMillis:     1500,
			ThumbnailTimeoutMillis: 2000,
			ThumbnailMaxPixels:     160,
		},
		Data: DataConfig{
			DBPath: "./data/veritas.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		UI: UIConfig{
			Style:        "auto",
			Width:        100,
			Theme:        "Dark",
			FontSize:     14,
			WindowWidth:  1100,
			WindowHeight: 760,
		},
	}
}

// LoadConfig loads configuration from file. Files ending in .yaml or .yml are
// parsed as YAML, anything else as JSON. Missing fields keep their defaults.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if isYAML(configPath) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Expand paths
	if config.Data.DBPath != "" {
		config.Data.DBPath = expandPath(config.Data.DBPath)
	}
	if config.Log.Path != "" {
		config.Log.Path = expandPath(config.Log.Path)
	}

	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(configPath string, config *Config) error {
	var data []byte
	var err error
	if isYAML(configPath) {
		data, err = yaml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv loads a .env file from the working directory when present and then
// overrides credentials and endpoints from the environment.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	setKey := func(provider, env string) {
		v := os.Getenv(env)
		if v == "" {
			return
		}
		p, ok := c.LLMProviders[provider]
		if !ok {
			return
		}
		p.APIKey = v
		c.LLMProviders[provider] = p
	}
	setKey("gemini", "GEMINI_API_KEY")
	setKey("openai", "OPENAI_API_KEY")
	setKey("groq", "GROQ_API_KEY")

	if v := os.Getenv("VERITAS_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("VERITAS_REDIS_ADDR"); v != "" {
		c.Data.RedisAddr = v
	}
	if v := os.Getenv("VERITAS_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate reports the first configuration problem found
func (c *Config) Validate() error {
	if c.Backend.URL == "" && len(c.EnabledFallbacks()) == 0 {
		return errors.New("config: backend.url or at least one enabled provider with an api_key is required")
	}
	if c.Backend.ProbeTimeoutSeconds <= 0 {
		return errors.New("config: backend.probe_timeout_seconds must be positive")
	}
	if c.Analysis.CooldownSeconds < 0 || c.Analysis.ChatCooldownSeconds < 0 {
		return errors.New("config: cooldowns must not be negative")
	}
	if c.Analysis.LeaseSeconds < 0 {
		return errors.New("config: analysis.lease_seconds must not be negative")
	}
	if c.Analysis.MaxMediaBytes <= 0 {
		return errors.New("config: analysis.max_media_bytes must be positive")
	}
	if c.Analysis.ProgressTickMillis <= 0 {
		return errors.New("config: analysis.progress_tick_millis must be positive")
	}
	for _, name := range c.Backend.Fallbacks {
		p, ok := c.LLMProviders[name]
		if !ok {
			return fmt.Errorf("config: fallback %q has no llm_providers entry", name)
		}
		if p.Kind != "gemini" && p.Kind != "openai" {
			return fmt.Errorf("config: provider %q has unknown kind %q", name, p.Kind)
		}
	}
	if c.Data.DBPath == "" && c.Data.RedisAddr == "" {
		return errors.New("config: data.db_path or data.redis_addr is required")
	}
	return nil
}

// EnabledFallbacks returns the fallback provider keys that are enabled and have a key, in order
func (c *Config) EnabledFallbacks() []string {
	var names []string
	for _, name := range c.Backend.Fallbacks {
		p, ok := c.LLMProviders[name]
		if ok && p.Enabled && p.APIKey != "" {
			names = append(names, name)
		}
	}
	return names
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// expandPath expands ~ and relative paths
func expandPath(path string) string {
	if len(path) == 0 {
		return path
	}

	// Expand ~
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	// Make absolute
	absPath, err := filepath.Abs(path)
	if err == nil {
		return absPath
	}

	return path
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		// Fallback to current directory
		return "./config/default.json"
	}

	return filepath.Join(configDir, "veritas-client", "config.json")
}

// EnsureDefaultConfig creates a default config file at configPath (or the
// default path when empty) if it doesn't exist, and returns the path used.
func EnsureDefaultConfig(configPath string) (string, error) {
	if configPath == "" {
		configPath = GetConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	}

	if err := SaveConfig(configPath, DefaultConfig()); err != nil {
		return "", err
	}

	return configPath, nil
}
