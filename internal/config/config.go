// Package config provides configuration loading and validation for the feed server.
// It uses koanf to merge environment variables with optional file overrides.
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
)

// Config holds all configuration values for the feed server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Storage
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"` // optional; enables the participant cache and shared rate limits

	// JWT Authentication
	JWTSecret         string `koanf:"jwt_secret"`
	JWTSecretPrevious string `koanf:"jwt_secret_previous"`
	JWTIssuer         string `koanf:"jwt_issuer"`

	// Ranking
	CalibrationPath     string        `koanf:"ranking_calibration_path"`
	ParticipantCacheTTL time.Duration `koanf:"participant_cache_ttl"`

	// Tracing
	TracingEnabled    bool    `koanf:"tracing_enabled"`
	TracingExporter   string  `koanf:"tracing_exporter"`
	OTLPEndpoint      string  `koanf:"otlp_endpoint"`
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`
	TracingInsecure   bool    `koanf:"tracing_insecure"`

	// Rate limiting
	RateLimitFeedPerMinute int `koanf:"rate_limit_feed_per_minute"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL    = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret      = errors.New("JWT_SECRET is required")
	ErrInvalidPort           = errors.New("PORT must be a valid integer between 1 and 65535")
	ErrInvalidInteger        = errors.New("must be a valid integer")
	ErrInvalidFloat          = errors.New("must be a valid number")
	ErrInvalidDuration       = errors.New("must be a valid duration")
	ErrInvalidSampleRate     = errors.New("TRACING_SAMPLE_RATE must be between 0 and 1")
	ErrInvalidRateLimit      = errors.New("RATE_LIMIT_FEED_PER_MINUTE must be positive")
	ErrInvalidCacheTTL       = errors.New("PARTICIPANT_CACHE_TTL must be positive")
	ErrMissingTracingTarget  = errors.New("OTEL_EXPORTER_OTLP_ENDPOINT is required when tracing is enabled")
	ErrUnsupportedExporter   = errors.New("TRACING_EXPORTER must be otlp-http or otlp-grpc")
	ErrSameJWTSecretRotation = errors.New("JWT_SECRET_PREVIOUS must differ from JWT_SECRET")
)

// Default values for non-secret configuration.
const (
	DefaultPort                   = 8080
	DefaultEnv                    = "development"
	DefaultJWTIssuer              = "sparkfeed"
	DefaultParticipantCacheTTL    = 30 * time.Second
	DefaultTracingExporter        = "otlp-http"
	DefaultTracingSampleRate      = 0.1
	DefaultRateLimitFeedPerMinute = 60
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// SPARKFEED_PORT wins over the conventional PORT.
	port, err := getEnvIntOrDefaultMulti([]string{"SPARKFEED_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if err != nil {
		loadErrs = append(loadErrs, fmt.Errorf("%w: %w", ErrInvalidPort, err))
		port = DefaultPort
	}

	rateLimit, err := getEnvIntOrDefaultMulti([]string{"RATE_LIMIT_FEED_PER_MINUTE"}, k.Int("rate_limit_feed_per_minute"), DefaultRateLimitFeedPerMinute)
	if err != nil {
		loadErrs = append(loadErrs, err)
		rateLimit = DefaultRateLimitFeedPerMinute
	}

	sampleRate, err := getEnvFloatOrDefault("TRACING_SAMPLE_RATE", k, "tracing_sample_rate", DefaultTracingSampleRate)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	cacheTTL, err := getEnvDurationOrDefault("PARTICIPANT_CACHE_TTL", k, "participant_cache_ttl", DefaultParticipantCacheTTL)
	if err != nil {
		loadErrs = append(loadErrs, err)
		cacheTTL = DefaultParticipantCacheTTL
	}

	cfg := &Config{
		Port:                   port,
		Env:                    getEnvOrDefaultMulti([]string{"SPARKFEED_ENV", "ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:            getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:               getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:              getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTSecretPrevious:      getEnvOrKoanf("JWT_SECRET_PREVIOUS", k, "jwt_secret_previous"),
		JWTIssuer:              getEnvOrDefaultMulti([]string{"JWT_ISSUER"}, k.String("jwt_issuer"), DefaultJWTIssuer),
		CalibrationPath:        getEnvOrKoanf("RANKING_CALIBRATION_PATH", k, "ranking_calibration_path"),
		ParticipantCacheTTL:    cacheTTL,
		TracingEnabled:         getEnvBool("TRACING_ENABLED", k, "tracing_enabled"),
		TracingExporter:        getEnvOrDefaultMulti([]string{"TRACING_EXPORTER"}, k.String("tracing_exporter"), DefaultTracingExporter),
		OTLPEndpoint:           getEnvOrKoanf("OTEL_EXPORTER_OTLP_ENDPOINT", k, "otlp_endpoint"),
		TracingSampleRate:      sampleRate,
		TracingInsecure:        getEnvBool("TRACING_INSECURE", k, "tracing_insecure"),
		RateLimitFeedPerMinute: rateLimit,
	}

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

// getEnvOrDefaultMulti returns the first non-empty environment variable in
// envKeys, otherwise the koanf value, or the default.
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

// getEnvIntOrDefaultMulti is getEnvOrDefaultMulti for integers. A set but
// unparseable variable is an error.
// A zero value from a YAML file falls back to the default.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s %w", key, ErrInvalidInteger)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

func getEnvFloatOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s %w", envKey, ErrInvalidFloat)
		}
		return f, nil
	}
	// An explicit 0 in the file is honored (sampling disabled).
	if k.Exists(koanfKey) {
		return k.Float64(koanfKey), nil
	}
	return defaultVal, nil
}

// getEnvDurationOrDefault accepts Go duration strings ("45s", "2m") from
// either source.
func getEnvDurationOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal time.Duration) (time.Duration, error) {
	raw := os.Getenv(envKey)
	source := envKey
	if raw == "" {
		raw = k.String(koanfKey)
		source = koanfKey
	}
	if raw == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s %w", source, ErrInvalidDuration)
	}
	return d, nil
}

// getEnvBool reads a boolean flag. The environment wins over the file;
// unrecognized values leave the file value in place.
func getEnvBool(envKey string, k *koanf.Koanf, koanfKey string) bool {
	enabled := k.Bool(koanfKey)
	if val, ok := ParseBool(os.Getenv(envKey)); ok {
		enabled = val
	}
	return enabled
}

// ParseBool recognizes true/1/yes/on and false/0/no/off, case-insensitively.
// ok is false for anything else, including "".
func ParseBool(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	}
	return false, false
}

// Validate checks that all required configuration values are present and in range.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.JWTSecretPrevious != "" && c.JWTSecretPrevious == c.JWTSecret {
		errs = append(errs, ErrSameJWTSecretRotation)
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	if c.RateLimitFeedPerMinute <= 0 {
		errs = append(errs, ErrInvalidRateLimit)
	}
	if c.ParticipantCacheTTL <= 0 {
		errs = append(errs, ErrInvalidCacheTTL)
	}

	if c.TracingEnabled {
		if c.OTLPEndpoint == "" {
			errs = append(errs, ErrMissingTracingTarget)
		}
		if c.TracingExporter != "otlp-http" && c.TracingExporter != "otlp-grpc" {
			errs = append(errs, ErrUnsupportedExporter)
		}
		if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
			errs = append(errs, ErrInvalidSampleRate)
		}
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                       strconv.Itoa(c.Port),
		"env":                        c.Env,
		"database_url":               maskURLPassword(c.DatabaseURL),
		"redis_url":                  maskURLPassword(c.RedisURL),
		"jwt_secret":                 maskSecret(c.JWTSecret),
		"jwt_secret_previous":        maskSecret(c.JWTSecretPrevious),
		"jwt_issuer":                 c.JWTIssuer,
		"ranking_calibration_path":   c.CalibrationPath,
		"participant_cache_ttl":      c.ParticipantCacheTTL.String(),
		"tracing_enabled":            strconv.FormatBool(c.TracingEnabled),
		"tracing_exporter":           c.TracingExporter,
		"otlp_endpoint":              c.OTLPEndpoint,
		"tracing_sample_rate":        strconv.FormatFloat(c.TracingSampleRate, 'f', -1, 64),
		"rate_limit_feed_per_minute": strconv.Itoa(c.RateLimitFeedPerMinute),
	}
}

// maskSecret shows the first 4 characters followed by ****.
// Secrets shorter than 8 characters are fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskURLPassword masks the password in a user:password@host URL
// (postgres://, redis://, rediss://).
func maskURLPassword(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.LastIndex(rest, "@")
	if atIndex == -1 {
		return s
	}

	userinfo := rest[:atIndex]
	user, _, hasPassword := strings.Cut(userinfo, ":")
	if !hasPassword {
		return s
	}

	return s[:schemeEnd+3] + user + ":****" + rest[atIndex:]
}
