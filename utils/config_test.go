package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigJSONKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"backend": {"url": "http://example.test/api", "probe_timeout_seconds": 5}, "analysis": {"cooldown_seconds": 30}}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Backend.URL != "http://example.test/api" {
		t.Errorf("Backend.URL = %q", cfg.Backend.URL)
	}
	if cfg.Analysis.CooldownSeconds != 30 {
		t.Errorf("CooldownSeconds = %d, want 30", cfg.Analysis.CooldownSeconds)
	}
	if cfg.Analysis.ChatCooldownSeconds != 2 {
		t.Errorf("ChatCooldownSeconds = %d, want default 2", cfg.Analysis.ChatCooldownSeconds)
	}
	if cfg.Analysis.MaxMediaBytes != 20*1024*1024 {
		t.Errorf("MaxMediaBytes = %d, want 20MB", cfg.Analysis.MaxMediaBytes)
	}
	if !filepath.IsAbs(cfg.Data.DBPath) {
		t.Errorf("DBPath %q was not expanded", cfg.Data.DBPath)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
backend:
  url: http://yaml.test/api
  probe_timeout_seconds: 1
  fallbacks: [gemini]
data:
  redis_addr: localhost:6379
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Backend.URL != "http://yaml.test/api" {
		t.Errorf("Backend.URL = %q", cfg.Backend.URL)
	}
	if len(cfg.Backend.Fallbacks) != 1 || cfg.Backend.Fallbacks[0] != "gemini" {
		t.Errorf("Fallbacks = %v", cfg.Backend.Fallbacks)
	}
	if cfg.Data.RedisAddr != "localhost:6379" || cfg.Log.Level != "debug" {
		t.Errorf("unexpected data/log config: %+v %+v", cfg.Data, cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yml"} {
		path := filepath.Join(t.TempDir(), name)
		want := DefaultConfig()
		want.Backend.URL = "http://roundtrip.test"

		if err := SaveConfig(path, want); err != nil {
			t.Fatalf("SaveConfig(%s) error = %v", name, err)
		}
		got, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig(%s) error = %v", name, err)
		}
		if got.Backend.URL != want.Backend.URL {
			t.Errorf("%s: Backend.URL = %q, want %q", name, got.Backend.URL, want.Backend.URL)
		}
		if got.LLMProviders["groq"].AudioModel != "whisper-large-v3" {
			t.Errorf("%s: groq audio model lost", name)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GEMINI_API_KEY", "env-gemini")
	t.Setenv("GROQ_API_KEY", "env-groq")
	t.Setenv("VERITAS_BACKEND_URL", "http://env.test/api")
	t.Setenv("VERITAS_REDIS_ADDR", "redis:6379")
	t.Setenv("VERITAS_LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	if cfg.LLMProviders["gemini"].APIKey != "env-gemini" {
		t.Errorf("gemini key = %q", cfg.LLMProviders["gemini"].APIKey)
	}
	if cfg.LLMProviders["groq"].APIKey != "env-groq" {
		t.Errorf("groq key = %q", cfg.LLMProviders["groq"].APIKey)
	}
	if cfg.Backend.URL != "http://env.test/api" || cfg.Data.RedisAddr != "redis:6379" || cfg.Log.Level != "warn" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}

	fallbacks := cfg.EnabledFallbacks()
	if len(fallbacks) != 2 || fallbacks[0] != "gemini" || fallbacks[1] != "groq" {
		t.Errorf("EnabledFallbacks() = %v", fallbacks)
	}
}

func TestApplyEnvReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("OPENAI_API_KEY")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENAI_API_KEY=dotenv-key\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.ApplyEnv()
	if cfg.LLMProviders["openai"].APIKey != "dotenv-key" {
		t.Errorf("openai key = %q, want dotenv-key", cfg.LLMProviders["openai"].APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"no backend no providers", func(c *Config) { c.Backend.URL = "" }, true},
		{"bad probe timeout", func(c *Config) { c.Backend.ProbeTimeoutSeconds = 0 }, true},
		{"negative cooldown", func(c *Config) { c.Analysis.CooldownSeconds = -1 }, true},
		{"unknown fallback", func(c *Config) { c.Backend.Fallbacks = []string{"claude"} }, true},
		{"no storage", func(c *Config) { c.Data.DBPath = "" }, true},
		{"redis only", func(c *Config) { c.Data.DBPath = ""; c.Data.RedisAddr = "localhost:6379" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsureDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	got, err := EnsureDefaultConfig(path)
	if err != nil {
		t.Fatalf("EnsureDefaultConfig() error = %v", err)
	}
	if got != path {
		t.Errorf("path = %q, want %q", got, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config not written: %v", err)
	}
}
