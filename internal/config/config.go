package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all Mockmate environment variables.
const EnvPrefix = "MOCKMATE_"

// Config holds all client configuration. The API token is loaded exclusively
// from the environment and never appears in the config file.
type Config struct {
	BackendURL        string `yaml:"backend_url"`
	TranscriptionURL  string `yaml:"transcription_url"`
	AudioCacheDir     string `yaml:"audio_cache_dir"`
	DraftsDBPath      string `yaml:"drafts_db_path"`
	AnswerSeconds     int    `yaml:"answer_seconds"`
	APITimeout        string `yaml:"api_timeout"`
	GroupPollInterval string `yaml:"group_poll_interval"`
	MicSampleRate     int    `yaml:"mic_sample_rate"`

	// Secret — env var only, never serialized to YAML.
	APIToken string `yaml:"-"`
}

func defaults() Config {
	return Config{
		BackendURL:        "http://localhost:8080/api/v1",
		TranscriptionURL:  "ws://localhost:8080/ws/transcription",
		AudioCacheDir:     "data/audio-cache",
		DraftsDBPath:      "data/drafts.db",
		AnswerSeconds:     120,
		APITimeout:        "20s",
		GroupPollInterval: "1s",
		MicSampleRate:     16000,
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads the API token, and validates the
// result. It returns the config, any validation warnings, and an error if
// the file exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	cfg.APIToken = os.Getenv(EnvPrefix + "API_TOKEN")

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedAPITimeout returns APITimeout as a time.Duration, falling back to
// 20s if the value is invalid.
func (c *Config) ParsedAPITimeout() time.Duration {
	d, err := time.ParseDuration(c.APITimeout)
	if err != nil || d <= 0 {
		return 20 * time.Second
	}
	return d
}

// ParsedGroupPollInterval returns GroupPollInterval as a time.Duration,
// falling back to 1s if the value is invalid.
func (c *Config) ParsedGroupPollInterval() time.Duration {
	d, err := time.ParseDuration(c.GroupPollInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIPTION_URL"); v != "" {
		cfg.TranscriptionURL = v
	}
	if v := os.Getenv(EnvPrefix + "AUDIO_CACHE_DIR"); v != "" {
		cfg.AudioCacheDir = v
	}
	if v := os.Getenv(EnvPrefix + "DRAFTS_DB_PATH"); v != "" {
		cfg.DraftsDBPath = v
	}
	if v := os.Getenv(EnvPrefix + "ANSWER_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && seconds > 0 {
			cfg.AnswerSeconds = seconds
		}
	}
	if v := os.Getenv(EnvPrefix + "API_TIMEOUT"); v != "" {
		cfg.APITimeout = v
	}
	if v := os.Getenv(EnvPrefix + "GROUP_POLL_INTERVAL"); v != "" {
		cfg.GroupPollInterval = v
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.MicSampleRate = rate
		}
	}
}

func validate(cfg *Config) []string {
	var warnings []string

	if !strings.HasPrefix(cfg.BackendURL, "http://") && !strings.HasPrefix(cfg.BackendURL, "https://") {
		warnings = append(warnings, fmt.Sprintf("backend_url %q does not look like an HTTP URL", cfg.BackendURL))
	}
	if cfg.TranscriptionURL != "" && !strings.HasPrefix(cfg.TranscriptionURL, "ws://") && !strings.HasPrefix(cfg.TranscriptionURL, "wss://") {
		warnings = append(warnings, fmt.Sprintf("transcription_url %q does not look like a WebSocket URL", cfg.TranscriptionURL))
	}
	if _, err := time.ParseDuration(cfg.APITimeout); err != nil {
		warnings = append(warnings, fmt.Sprintf("api_timeout %q is not a valid duration, using 20s", cfg.APITimeout))
	}
	if _, err := time.ParseDuration(cfg.GroupPollInterval); err != nil {
		warnings = append(warnings, fmt.Sprintf("group_poll_interval %q is not a valid duration, using 1s", cfg.GroupPollInterval))
	}
	if cfg.AnswerSeconds <= 0 {
		warnings = append(warnings, "answer_seconds must be positive, using 120")
		cfg.AnswerSeconds = 120
	}
	if cfg.APIToken == "" {
		warnings = append(warnings, EnvPrefix+"API_TOKEN is not set; backend calls will be unauthenticated")
	}

	return warnings
}
