// Package config loads xcloc settings with viper.
//
// Precedence, highest first: command-line flags bound by the caller,
// environment variables, the YAML config file, built-in defaults.
//
// The config file is --config when given, else ".xcloc.yaml" in the home
// directory or the working directory:
//
//	openai:
//	  api_key: sk-...
//	  model: gpt-4.1-2025-04-14
//	  base_url: https://openrouter.ai/api/v1
//	translation:
//	  chunk_size: 50
//	  temperature: 0.3
//	  max_concurrent_chunks: 2
//	  rate_limit_delay: 1.0
//	  placeholder_policy: warn
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Viper keys.
const (
	KeyAPIKey            = "openai.api_key"
	KeyModel             = "openai.model"
	KeyBaseURL           = "openai.base_url"
	KeyChunkSize         = "translation.chunk_size"
	KeyTemperature       = "translation.temperature"
	KeyMaxConcurrent     = "translation.max_concurrent_chunks"
	KeyRateLimitDelay    = "translation.rate_limit_delay"
	KeyRetryThreshold    = "translation.retry_threshold"
	KeyRequestTimeout    = "translation.request_timeout"
	KeyJobTimeout        = "translation.job_timeout"
	KeyPlaceholderPolicy = "translation.placeholder_policy"
	KeyRequestsPerMinute = "translation.requests_per_minute"
	KeyBreakerFailures   = "translation.breaker_failures"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "gpt-4.1-2025-04-14"

// ErrMissingAPIKey is returned by RequireAPIKey when no key is configured.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set")

// envNames maps viper keys to the environment variables that feed them.
var envNames = map[string]string{
	KeyAPIKey:            "OPENAI_API_KEY",
	KeyModel:             "OPENAI_MODEL",
	KeyBaseURL:           "OPENAI_BASE_URL",
	KeyChunkSize:         "TRANSLATION_CHUNK_SIZE",
	KeyTemperature:       "TRANSLATION_TEMPERATURE",
	KeyMaxConcurrent:     "TRANSLATION_MAX_CONCURRENT_CHUNKS",
	KeyRateLimitDelay:    "TRANSLATION_RATE_LIMIT_DELAY",
	KeyRetryThreshold:    "TRANSLATION_RETRY_THRESHOLD",
	KeyRequestTimeout:    "TRANSLATION_REQUEST_TIMEOUT",
	KeyJobTimeout:        "TRANSLATION_JOB_TIMEOUT",
	KeyPlaceholderPolicy: "TRANSLATION_PLACEHOLDER_POLICY",
	KeyRequestsPerMinute: "TRANSLATION_REQUESTS_PER_MINUTE",
	KeyBreakerFailures:   "TRANSLATION_BREAKER_FAILURES",
}

// Settings is the resolved configuration.
type Settings struct {
	APIKey  string
	Model   string
	BaseURL string

	ChunkSize         int
	Temperature       float64
	MaxConcurrent     int
	RateLimitDelay    time.Duration
	RetryThreshold    int
	RequestTimeout    time.Duration
	JobTimeout        time.Duration
	PlaceholderPolicy string
	RequestsPerMinute int
	BreakerFailures   int

	// ConfigFile is the config file that was read, if any.
	ConfigFile string
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyModel, DefaultModel)
	v.SetDefault(KeyBaseURL, "")
	v.SetDefault(KeyChunkSize, 50)
	v.SetDefault(KeyTemperature, 0.3)
	v.SetDefault(KeyMaxConcurrent, 2)
	v.SetDefault(KeyRateLimitDelay, "1.0")
	v.SetDefault(KeyRetryThreshold, 10)
	v.SetDefault(KeyRequestTimeout, "120")
	v.SetDefault(KeyJobTimeout, "0")
	v.SetDefault(KeyPlaceholderPolicy, "warn")
	v.SetDefault(KeyRequestsPerMinute, 0)
	v.SetDefault(KeyBreakerFailures, 5)
}

// Load reads cfgFile (or the default search path when empty) into v and
// resolves Settings. A missing default config file is not an error; a
// missing explicit one is.
func Load(v *viper.Viper, cfgFile string) (Settings, error) {
	SetDefaults(v)
	for key, env := range envNames {
		if err := v.BindEnv(key, env); err != nil {
			return Settings{}, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".xcloc")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("reading config: %w", err)
		}
	}

	s, err := resolve(v)
	if err != nil {
		return Settings{}, err
	}
	s.ConfigFile = v.ConfigFileUsed()
	return s, s.Validate()
}

func resolve(v *viper.Viper) (Settings, error) {
	s := Settings{
		APIKey:            strings.TrimSpace(v.GetString(KeyAPIKey)),
		Model:             v.GetString(KeyModel),
		BaseURL:           v.GetString(KeyBaseURL),
		ChunkSize:         v.GetInt(KeyChunkSize),
		Temperature:       v.GetFloat64(KeyTemperature),
		MaxConcurrent:     v.GetInt(KeyMaxConcurrent),
		RetryThreshold:    v.GetInt(KeyRetryThreshold),
		PlaceholderPolicy: strings.ToLower(v.GetString(KeyPlaceholderPolicy)),
		RequestsPerMinute: v.GetInt(KeyRequestsPerMinute),
		BreakerFailures:   v.GetInt(KeyBreakerFailures),
	}
	var err error
	if s.RateLimitDelay, err = seconds(v.GetString(KeyRateLimitDelay)); err != nil {
		return s, fmt.Errorf("%s: %w", KeyRateLimitDelay, err)
	}
	if s.RequestTimeout, err = seconds(v.GetString(KeyRequestTimeout)); err != nil {
		return s, fmt.Errorf("%s: %w", KeyRequestTimeout, err)
	}
	if s.JobTimeout, err = seconds(v.GetString(KeyJobTimeout)); err != nil {
		return s, fmt.Errorf("%s: %w", KeyJobTimeout, err)
	}
	return s, nil
}

// seconds parses a plain number of seconds ("1.5") or a Go duration ("90s").
func seconds(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(raw)
}

// Validate checks value ranges.
func (s Settings) Validate() error {
	switch {
	case s.Model == "":
		return errors.New("model must not be empty")
	case s.ChunkSize < 1:
		return fmt.Errorf("chunk size must be at least 1, got %d", s.ChunkSize)
	case s.MaxConcurrent < 1:
		return fmt.Errorf("max concurrent chunks must be at least 1, got %d", s.MaxConcurrent)
	case s.Temperature <= 0 || s.Temperature > 2:
		return fmt.Errorf("temperature must be above 0 and at most 2, got %g", s.Temperature)
	case s.RateLimitDelay < 0:
		return fmt.Errorf("rate limit delay must not be negative, got %s", s.RateLimitDelay)
	case s.RetryThreshold < 0:
		return fmt.Errorf("retry threshold must not be negative, got %d", s.RetryThreshold)
	case s.RequestTimeout <= 0:
		return fmt.Errorf("request timeout must be positive, got %s", s.RequestTimeout)
	case s.JobTimeout < 0:
		return fmt.Errorf("job timeout must not be negative, got %s", s.JobTimeout)
	case s.RequestsPerMinute < 0:
		return fmt.Errorf("requests per minute must not be negative, got %d", s.RequestsPerMinute)
	case s.BreakerFailures < 1:
		return fmt.Errorf("breaker failures must be at least 1, got %d", s.BreakerFailures)
	}
	if s.PlaceholderPolicy != "warn" && s.PlaceholderPolicy != "strict" {
		return fmt.Errorf("placeholder policy must be warn or strict, got %q", s.PlaceholderPolicy)
	}
	return nil
}

// RequireAPIKey returns ErrMissingAPIKey when no API key is configured.
func (s Settings) RequireAPIKey() error {
	if s.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}
