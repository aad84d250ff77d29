package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BACKEND_URL", "TRANSCRIPTION_URL", "AUDIO_CACHE_DIR",
		"DRAFTS_DB_PATH", "ANSWER_SECONDS", "API_TIMEOUT",
		"GROUP_POLL_INTERVAL", "MIC_SAMPLE_RATE", "API_TOKEN",
	} {
		t.Setenv(EnvPrefix+key, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.BackendURL != "http://localhost:8080/api/v1" {
		t.Fatalf("expected default backend_url, got %q", cfg.BackendURL)
	}
	if cfg.AnswerSeconds != 120 {
		t.Fatalf("expected default answer_seconds 120, got %d", cfg.AnswerSeconds)
	}
	if cfg.ParsedAPITimeout() != 20*time.Second {
		t.Fatalf("expected default api timeout 20s, got %s", cfg.ParsedAPITimeout())
	}
	if cfg.ParsedGroupPollInterval() != time.Second {
		t.Fatalf("expected default poll interval 1s, got %s", cfg.ParsedGroupPollInterval())
	}
}

func TestYAMLLoading(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yamlContent := `
backend_url: https://api.example.com/v1
transcription_url: wss://api.example.com/ws
answer_seconds: 90
api_timeout: 30s
mic_sample_rate: 48000
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, warnings, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.BackendURL != "https://api.example.com/v1" {
		t.Fatalf("expected yaml backend_url, got %q", cfg.BackendURL)
	}
	if cfg.AnswerSeconds != 90 {
		t.Fatalf("expected answer_seconds 90, got %d", cfg.AnswerSeconds)
	}
	if cfg.MicSampleRate != 48000 {
		t.Fatalf("expected mic_sample_rate 48000, got %d", cfg.MicSampleRate)
	}
	for _, w := range warnings {
		if strings.Contains(w, "backend_url") {
			t.Fatalf("unexpected warning: %s", w)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"BACKEND_URL", "https://staging.example.com")
	t.Setenv(EnvPrefix+"ANSWER_SECONDS", "60")
	t.Setenv(EnvPrefix+"API_TOKEN", "secret-token")

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.BackendURL != "https://staging.example.com" {
		t.Fatalf("expected env backend_url, got %q", cfg.BackendURL)
	}
	if cfg.AnswerSeconds != 60 {
		t.Fatalf("expected answer_seconds 60, got %d", cfg.AnswerSeconds)
	}
	if cfg.APIToken != "secret-token" {
		t.Fatalf("expected api token from env, got %q", cfg.APIToken)
	}
}

func TestValidationWarnings(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"BACKEND_URL", "ftp://wrong")
	t.Setenv(EnvPrefix+"TRANSCRIPTION_URL", "http://not-a-ws")
	t.Setenv(EnvPrefix+"API_TIMEOUT", "never")

	_, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	expectWarning(t, warnings, "backend_url")
	expectWarning(t, warnings, "transcription_url")
	expectWarning(t, warnings, "api_timeout")
	expectWarning(t, warnings, "API_TOKEN")
}

func TestInvalidAnswerSecondsFallsBack(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("answer_seconds: -5\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, warnings, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AnswerSeconds != 120 {
		t.Fatalf("expected fallback answer_seconds 120, got %d", cfg.AnswerSeconds)
	}
	expectWarning(t, warnings, "answer_seconds")
}

func expectWarning(t *testing.T, warnings []string, fragment string) {
	t.Helper()
	for _, w := range warnings {
		if strings.Contains(w, fragment) {
			return
		}
	}
	t.Fatalf("expected a warning mentioning %q, got %v", fragment, warnings)
}
