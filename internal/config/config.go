// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Tracing modes.
const (
	TracingNone = "none"
	TracingOTel = "otel"
	TracingXRay = "xray"
)

// JWKS key selections, matching the values auth.KeySelection accepts.
const (
	selectionKid = "kid"
	selectionFst = "first"
)

const envDevelopment = "development"

// Config holds the settings shared by every binary. Each binary checks the parts it needs
// with the Require methods.
type Config struct {
	ServiceName   string
	Environment   string
	ServerAddress string
	LogLevel      string
	Tracing       string

	// AWS
	Region           string
	TableName        string
	DynamoDBEndpoint string

	// Identity provider
	UserPoolID       string
	JWKSURL          string
	JWKSCacheTTL     time.Duration
	JWKSKeySelection string

	AdminAPIKey    string
	AllowedOrigins []string

	// Change stream
	FailureQueueURL     string
	FailureQueueName    string
	StreamBatchSize     int
	StreamRetryAttempts int
}

// Load reads the environment. defaultService names the binary when it does not run under
// Copilot.
func Load(defaultService string) (*Config, error) {
	region := getEnv("REGION", getEnv("AWS_REGION", ""))

	cfg := &Config{
		ServiceName:   serviceName(defaultService),
		Environment:   getEnv("ENVIRONMENT", "production"),
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Tracing:       getEnv("TRACING", TracingNone),

		Region:           region,
		TableName:        getEnv("TABLE_NAME", getEnv("MOVIES_NAME", "")),
		DynamoDBEndpoint: getEnv("DYNAMODB_ENDPOINT", ""),

		UserPoolID:       getEnv("USER_POOL_ID", ""),
		JWKSURL:          getEnv("JWKS_URL", ""),
		JWKSCacheTTL:     getEnvDuration("JWKS_CACHE_TTL", 10*time.Minute),
		JWKSKeySelection: getEnv("JWKS_KEY_SELECTION", selectionKid),

		AdminAPIKey:    getEnv("ADMIN_API_KEY", ""),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),

		FailureQueueURL:     getEnv("FAILURE_QUEUE_URL", ""),
		FailureQueueName:    getEnv("FAILURE_QUEUE_NAME", "movies-stream-failures"),
		StreamBatchSize:     getEnvInt("STREAM_BATCH_SIZE", 25),
		StreamRetryAttempts: getEnvInt("STREAM_RETRY_ATTEMPTS", 2),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that are wrong for every binary.
func (c *Config) Validate() error {
	switch c.Tracing {
	case TracingNone, TracingOTel, TracingXRay:
	default:
		return fmt.Errorf("TRACING must be one of %q, %q or %q, got %q", TracingNone, TracingOTel, TracingXRay, c.Tracing)
	}
	switch c.JWKSKeySelection {
	case selectionKid, selectionFst:
	default:
		return fmt.Errorf("JWKS_KEY_SELECTION must be %q or %q, got %q", selectionKid, selectionFst, c.JWKSKeySelection)
	}
	if c.JWKSCacheTTL < 0 {
		return errors.New("JWKS_CACHE_TTL must not be negative")
	}
	if c.StreamBatchSize < 1 {
		return errors.New("STREAM_BATCH_SIZE must be positive")
	}
	if c.StreamRetryAttempts < 0 {
		return errors.New("STREAM_RETRY_ATTEMPTS must not be negative")
	}
	return nil
}

func (c *Config) RequireTable() error {
	if c.TableName == "" {
		return errors.New("TABLE_NAME is not set")
	}
	return nil
}

// RequireIdentityProvider checks that the signing key set can be located.
func (c *Config) RequireIdentityProvider() error {
	if c.JWKSURL != "" {
		return nil
	}
	if c.Region == "" || c.UserPoolID == "" {
		return errors.New("REGION and USER_POOL_ID, or JWKS_URL, must be set")
	}
	return nil
}

func (c *Config) RequireFailureQueue() error {
	if c.FailureQueueURL == "" {
		return errors.New("FAILURE_QUEUE_URL is not set")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == envDevelopment
}

// serviceName is app-env-svc when running under Copilot.
func serviceName(defaultName string) string {
	app, ok := os.LookupEnv("COPILOT_APPLICATION_NAME")
	if !ok {
		return defaultName
	}

	env, ok := os.LookupEnv("COPILOT_ENVIRONMENT_NAME")
	if !ok {
		return defaultName
	}

	svc, ok := os.LookupEnv("COPILOT_SERVICE_NAME")
	if !ok {
		return defaultName
	}

	return fmt.Sprintf("%s-%s-%s", app, env, svc)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blank entries.
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts a Go duration or a whole number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
