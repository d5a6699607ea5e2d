package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// isolate points HOME at an empty directory and blanks every environment
// variable Load reads.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, env := range envNames {
		t.Setenv(env, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	s, err := Load(viper.New(), "")
	if err != nil {
		t.Fatal(err)
	}
	if s.Model != DefaultModel {
		t.Errorf("Model = %q, want %q", s.Model, DefaultModel)
	}
	if s.ChunkSize != 50 || s.MaxConcurrent != 2 || s.RetryThreshold != 10 {
		t.Errorf("unexpected sizes: %+v", s)
	}
	if s.Temperature != 0.3 {
		t.Errorf("Temperature = %g, want 0.3", s.Temperature)
	}
	if s.RateLimitDelay != time.Second {
		t.Errorf("RateLimitDelay = %s, want 1s", s.RateLimitDelay)
	}
	if s.RequestTimeout != 120*time.Second || s.JobTimeout != 0 {
		t.Errorf("timeouts = %s, %s", s.RequestTimeout, s.JobTimeout)
	}
	if s.PlaceholderPolicy != "warn" || s.BreakerFailures != 5 {
		t.Errorf("unexpected policy settings: %+v", s)
	}
	if err := s.RequireAPIKey(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("RequireAPIKey() = %v, want ErrMissingAPIKey", err)
	}
}

func TestLoad_Environment(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", " sk-env ")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("OPENAI_BASE_URL", "https://openrouter.ai/api/v1")
	t.Setenv("TRANSLATION_CHUNK_SIZE", "25")
	t.Setenv("TRANSLATION_MAX_CONCURRENT_CHUNKS", "4")
	t.Setenv("TRANSLATION_RATE_LIMIT_DELAY", "0.5")
	t.Setenv("TRANSLATION_REQUEST_TIMEOUT", "90s")
	t.Setenv("TRANSLATION_PLACEHOLDER_POLICY", "STRICT")

	s, err := Load(viper.New(), "")
	if err != nil {
		t.Fatal(err)
	}
	if s.APIKey != "sk-env" || s.Model != "gpt-4o-mini" || s.BaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("unexpected backend settings: %+v", s)
	}
	if s.ChunkSize != 25 || s.MaxConcurrent != 4 {
		t.Errorf("unexpected sizes: %+v", s)
	}
	if s.RateLimitDelay != 500*time.Millisecond {
		t.Errorf("RateLimitDelay = %s", s.RateLimitDelay)
	}
	if s.RequestTimeout != 90*time.Second {
		t.Errorf("RequestTimeout = %s", s.RequestTimeout)
	}
	if s.PlaceholderPolicy != "strict" {
		t.Errorf("PlaceholderPolicy = %q", s.PlaceholderPolicy)
	}
	if err := s.RequireAPIKey(); err != nil {
		t.Errorf("RequireAPIKey() = %v", err)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "xcloc.yaml")
	content := "openai:\n  api_key: sk-file\n  model: file-model\ntranslation:\n  chunk_size: 10\n  job_timeout: 5m\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENAI_MODEL", "env-model")

	s, err := Load(viper.New(), path)
	if err != nil {
		t.Fatal(err)
	}
	if s.APIKey != "sk-file" || s.ChunkSize != 10 || s.JobTimeout != 5*time.Minute {
		t.Errorf("config file not applied: %+v", s)
	}
	if s.Model != "env-model" {
		t.Errorf("Model = %q, environment should win over the file", s.Model)
	}
	if s.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", s.ConfigFile, path)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	for env, value := range map[string]string{
		"TRANSLATION_CHUNK_SIZE":            "0",
		"TRANSLATION_MAX_CONCURRENT_CHUNKS": "0",
		"TRANSLATION_TEMPERATURE":           "3",
		"TRANSLATION_RATE_LIMIT_DELAY":      "soon",
		"TRANSLATION_PLACEHOLDER_POLICY":    "ignore",
		"TRANSLATION_REQUEST_TIMEOUT":       "0",
		"TRANSLATION_BREAKER_FAILURES":      "0",
		"TRANSLATION_RETRY_THRESHOLD":       "-1",
	} {
		t.Run(env, func(t *testing.T) {
			isolate(t)
			t.Setenv(env, value)
			if _, err := Load(viper.New(), ""); err == nil {
				t.Errorf("%s=%s accepted", env, value)
			}
		})
	}
}

func TestLoad_ZeroDisables(t *testing.T) {
	isolate(t)
	t.Setenv("TRANSLATION_RETRY_THRESHOLD", "0")
	t.Setenv("TRANSLATION_RATE_LIMIT_DELAY", "0")
	t.Setenv("TRANSLATION_REQUESTS_PER_MINUTE", "0")

	s, err := Load(viper.New(), "")
	if err != nil {
		t.Fatal(err)
	}
	if s.RetryThreshold != 0 || s.RateLimitDelay != 0 || s.RequestsPerMinute != 0 {
		t.Errorf("zero values not kept: %+v", s)
	}
}

func TestSeconds(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"0", 0},
		{"1.0", time.Second},
		{"2.5", 2500 * time.Millisecond},
		{"1m30s", 90 * time.Second},
	}
	for _, tt := range tests {
		got, err := seconds(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("seconds(%q) = %s, %v; want %s", tt.in, got, err, tt.want)
		}
	}
	if _, err := seconds("later"); err == nil {
		t.Error("seconds(later) should fail")
	}
}
