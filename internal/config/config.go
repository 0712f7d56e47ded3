// Package config provides configuration loading and validation for the
// feedrank services. It uses koanf to merge environment variables with
// optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/studysync/feedrank/internal/recommend"
	"github.com/studysync/feedrank/internal/score"
)

// Config holds all configuration values for the API server and consumer.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Backing services
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`
	NATSURL     string `koanf:"nats_url"`

	// JWT Authentication. JWTSecretPrevious is only set during a secret
	// rotation window; tokens signed with either key validate.
	JWTSecret         string `koanf:"jwt_secret"`
	JWTSecretPrevious string `koanf:"jwt_secret_previous"`

	// AdminToken guards the ranking rebuild endpoint. Optional; empty
	// leaves the endpoint open (local development).
	AdminToken string `koanf:"admin_token"`

	// Hydration (content backend lookups). Optional; empty disables it.
	HydrationURL            string `koanf:"hydration_url"`
	HydrationTimeoutSeconds int    `koanf:"hydration_timeout_seconds"`

	// Pipeline
	Partitions          int `koanf:"partitions"`
	Workers             int `koanf:"workers"`
	MaxAttempts         int `koanf:"max_attempts"`
	RetryBackoffSeconds int `koanf:"retry_backoff_seconds"`

	// Score weights
	WeightLike    float64 `koanf:"weight_like"`
	WeightComment float64 `koanf:"weight_comment"`
	WeightShare   float64 `koanf:"weight_share"`
	WeightView    float64 `koanf:"weight_view"`

	// Recommendations
	DecayFactor              float64 `koanf:"decay_factor"`
	MaxRecommendations       int     `koanf:"max_recommendations"`
	RecommendationTTLSeconds int     `koanf:"recommendation_ttl_seconds"`

	// Idempotency guard retention
	DedupRetentionHours int `koanf:"dedup_retention_hours"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrMissingRedisURL    = errors.New("REDIS_URL is required")
	ErrMissingNATSURL     = errors.New("NATS_URL is required")
	ErrMissingJWTSecret   = errors.New("JWT_SECRET is required")
	ErrInvalidPort        = errors.New("PORT must be a valid integer")
	ErrInvalidDecayFactor = errors.New("DECAY_FACTOR must be in (0, 1]")
)

// Default values for non-secret configuration.
const (
	DefaultPort                    = 8080
	DefaultEnv                     = "development"
	DefaultHydrationTimeoutSeconds = 5
	DefaultPartitions              = 3
	DefaultWorkers                 = 3
	DefaultMaxAttempts             = 3
	DefaultRetryBackoffSeconds     = 1
	DefaultDecayFactor             = 0.95
	DefaultMaxRecommendations      = 10
	DefaultRecommendationTTL       = 60
	DefaultDedupRetentionHours     = 24
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, portErr := getEnvIntOrDefaultMulti([]string{"FEEDRANK_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	hydrationTimeout, err := getEnvIntOrDefault("HYDRATION_TIMEOUT_SECONDS", k.Int("hydration_timeout_seconds"), DefaultHydrationTimeoutSeconds)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	partitions, err := getEnvIntOrDefault("PARTITIONS", k.Int("partitions"), DefaultPartitions)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	workers, err := getEnvIntOrDefault("WORKERS", k.Int("workers"), DefaultWorkers)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	maxAttempts, err := getEnvIntOrDefault("MAX_ATTEMPTS", k.Int("max_attempts"), DefaultMaxAttempts)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	retryBackoff, err := getEnvIntOrDefault("RETRY_BACKOFF_SECONDS", k.Int("retry_backoff_seconds"), DefaultRetryBackoffSeconds)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	maxRecs, err := getEnvIntOrDefault("MAX_RECOMMENDATIONS", k.Int("max_recommendations"), DefaultMaxRecommendations)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	recTTL, err := getEnvIntOrDefault("RECOMMENDATION_TTL_SECONDS", k.Int("recommendation_ttl_seconds"), DefaultRecommendationTTL)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	dedupHours, err := getEnvIntOrDefault("DEDUP_RETENTION_HOURS", k.Int("dedup_retention_hours"), DefaultDedupRetentionHours)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	defaults := score.DefaultWeights()
	weightLike, err := getEnvFloatOrDefault("WEIGHT_LIKE", k.Float64("weight_like"), defaults.Like)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	weightComment, err := getEnvFloatOrDefault("WEIGHT_COMMENT", k.Float64("weight_comment"), defaults.Comment)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	weightShare, err := getEnvFloatOrDefault("WEIGHT_SHARE", k.Float64("weight_share"), defaults.Share)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	weightView, err := getEnvFloatOrDefault("WEIGHT_VIEW", k.Float64("weight_view"), defaults.View)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	decay, err := getEnvFloatOrDefault("DECAY_FACTOR", k.Float64("decay_factor"), DefaultDecayFactor)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                     port,
		Env:                      getEnvOrDefaultMulti([]string{"FEEDRANK_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:              getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:                 getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		NATSURL:                  getEnvOrKoanf("NATS_URL", k, "nats_url"),
		JWTSecret:                getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTSecretPrevious:        getEnvOrKoanf("JWT_SECRET_PREVIOUS", k, "jwt_secret_previous"),
		AdminToken:               getEnvOrKoanf("ADMIN_TOKEN", k, "admin_token"),
		HydrationURL:             getEnvOrKoanf("HYDRATION_URL", k, "hydration_url"),
		HydrationTimeoutSeconds:  hydrationTimeout,
		Partitions:               partitions,
		Workers:                  workers,
		MaxAttempts:              maxAttempts,
		RetryBackoffSeconds:      retryBackoff,
		WeightLike:               weightLike,
		WeightComment:            weightComment,
		WeightShare:              weightShare,
		WeightView:               weightView,
		DecayFactor:              decay,
		MaxRecommendations:       maxRecs,
		RecommendationTTLSeconds: recTTL,
		DedupRetentionHours:      dedupHours,
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, err)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as a float.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.RedisURL == "" {
		errs = append(errs, ErrMissingRedisURL)
	}
	if c.NATSURL == "" {
		errs = append(errs, ErrMissingNATSURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.DecayFactor <= 0 || c.DecayFactor > 1 {
		errs = append(errs, ErrInvalidDecayFactor)
	}

	return errs
}

// GetJWTSecrets returns the current and previous JWT secrets. The previous
// secret is empty outside a rotation window.
func (c *Config) GetJWTSecrets() (current, previous string) {
	return c.JWTSecret, c.JWTSecretPrevious
}

// Weights returns the score weights this configuration selects.
func (c *Config) Weights() score.Weights {
	return score.Weights{
		Like:    c.WeightLike,
		Comment: c.WeightComment,
		Share:   c.WeightShare,
		View:    c.WeightView,
	}
}

// RecommendConfig returns the recommendation scorer settings.
func (c *Config) RecommendConfig() recommend.Config {
	return recommend.Config{
		MaxRecommendations: c.MaxRecommendations,
		DecayFactor:        c.DecayFactor,
		CacheTTL:           time.Duration(c.RecommendationTTLSeconds) * time.Second,
	}
}

// HydrationTimeout returns the bound on one hydration lookup.
func (c *Config) HydrationTimeout() time.Duration {
	return time.Duration(c.HydrationTimeoutSeconds) * time.Second
}

// RetryBackoff returns the delay before a failed delivery is redelivered.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffSeconds) * time.Second
}

// DedupRetention returns how long processed event markers are kept.
func (c *Config) DedupRetention() time.Duration {
	return time.Duration(c.DedupRetentionHours) * time.Hour
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                       fmt.Sprintf("%d", c.Port),
		"env":                        c.Env,
		"database_url":               maskURL(c.DatabaseURL),
		"redis_url":                  maskURL(c.RedisURL),
		"nats_url":                   maskURL(c.NATSURL),
		"jwt_secret":                 maskSecret(c.JWTSecret),
		"jwt_secret_previous":        maskSecret(c.JWTSecretPrevious),
		"admin_token":                maskSecret(c.AdminToken),
		"hydration_url":              c.HydrationURL,
		"partitions":                 fmt.Sprintf("%d", c.Partitions),
		"workers":                    fmt.Sprintf("%d", c.Workers),
		"max_attempts":               fmt.Sprintf("%d", c.MaxAttempts),
		"retry_backoff_seconds":      fmt.Sprintf("%d", c.RetryBackoffSeconds),
		"weight_like":                fmt.Sprintf("%g", c.WeightLike),
		"weight_comment":             fmt.Sprintf("%g", c.WeightComment),
		"weight_share":               fmt.Sprintf("%g", c.WeightShare),
		"weight_view":                fmt.Sprintf("%g", c.WeightView),
		"decay_factor":               fmt.Sprintf("%g", c.DecayFactor),
		"max_recommendations":        fmt.Sprintf("%d", c.MaxRecommendations),
		"recommendation_ttl_seconds": fmt.Sprintf("%d", c.RecommendationTTLSeconds),
		"dedup_retention_hours":      fmt.Sprintf("%d", c.DedupRetentionHours),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskURL masks the password in a connection URL.
func maskURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
