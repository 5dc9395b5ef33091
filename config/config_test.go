package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(WithConfigFile(filepath.Join(dir, "missing.yml")), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "openai" || cfg.Store != "memory" || cfg.Server.Port != 8080 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Server.RequestTimeout != time.Minute || cfg.Agent.MaxIterations != 5 {
		t.Fatalf("unexpected durations or agent defaults %+v", cfg)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "config.yml", `
provider: anthropic
server:
  port: 9090
agent:
  system_prompt: be brief
  temperature: 0.2
store: redis
redis:
  addr: localhost:6379
  ttl: 1h
`)
	t.Setenv("PROMPTLINE_SERVER_PORT", "7070")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := Load(WithConfigFile(file), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "anthropic" || cfg.Agent.SystemPrompt != "be brief" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("env should override file, got port %d", cfg.Server.Port)
	}
	if cfg.Anthropic.APIKey != "sk-test" {
		t.Fatalf("expected api key from ANTHROPIC_API_KEY, got %q", cfg.Anthropic.APIKey)
	}
	if cfg.Agent.Temperature == nil || *cfg.Agent.Temperature != 0.2 {
		t.Fatalf("expected temperature 0.2, got %v", cfg.Agent.Temperature)
	}
	if cfg.Redis.TTL != time.Hour || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected redis config %+v", cfg.Redis)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	env := writeFile(t, dir, ".env", "PROMPTLINE_OPENAI_MODEL=gpt-4o-mini\n")
	t.Cleanup(func() { os.Unsetenv("PROMPTLINE_OPENAI_MODEL") })

	cfg, err := Load(WithConfigFile(""), WithEnvFile(env))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Fatalf("expected model from .env, got %q", cfg.OpenAI.Model)
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"provider":  "provider: gemini\n",
		"store":     "store: disk\n",
		"redis":     "store: redis\n",
		"log level": "logging:\n  level: loud\n",
		"cache":     "embeddings:\n  cache: true\n",
	}
	for name, body := range cases {
		file := writeFile(t, dir, name+".yml", body)
		if _, err := Load(WithConfigFile(file), WithEnvFile("")); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
