package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultJWTSecret = "supersecretkey"

// Config holds process configuration for the gateway. Provider credentials
// are not part of it; the provider registry reads those itself.
type Config struct {
	HTTPPort       string
	JWTSecret      []byte
	TokenTTL       time.Duration
	MetricsEnabled bool
	ClientAuth     ClientAuthConfig
	Redis          RedisConfig
	Provider       ProviderConfig
	RequestLogger  RequestLoggerConfig
	LoggingSink    LoggingSinkConfig
}

// ClientAuthConfig lists the keys gateway clients may present. With no keys
// at all the gateway is open.
type ClientAuthConfig struct {
	APIKeys      []string // plaintext keys
	APIKeyHashes []string // argon2id encoded hashes
}

// Enabled reports whether any client key is configured.
func (c ClientAuthConfig) Enabled() bool {
	return len(c.APIKeys) > 0 || len(c.APIKeyHashes) > 0
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// ProviderConfig holds provider-related settings
type ProviderConfig struct {
	RequestTimeout time.Duration // HTTP timeout for upstream completion calls
}

type RequestLoggerConfig struct {
	Enabled          bool
	FilePathTemplate string
	MaxSize          int64
	MaxFiles         int
	BufferSize       int
	FlushInterval    time.Duration
}

// LoggingSinkConfig holds configuration for the dispatch record sink
type LoggingSinkConfig struct {
	Enabled       bool          // Whether to ship dispatch records to S3
	UseRedis      bool          // Buffer records in Redis instead of memory
	BufferSize    int           // In-memory queue size
	FlushSize     int           // Flush after this many records
	FlushInterval time.Duration // Flush after this duration
	MaxRetries    int           // Upload attempts before dead-lettering a batch
	S3Bucket      string        // S3 bucket name
	S3Region      string        // AWS region
	S3Prefix      string        // Prefix for S3 keys (e.g., "logs/")
	PodName       string        // Pod identifier for multi-pod deployments
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return b
}

// getEnvList splits a comma separated variable, dropping blank entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:       getEnvString("HTTP_PORT", "8080"),
		JWTSecret:      []byte(getEnvString("JWT_SECRET", defaultJWTSecret)),
		TokenTTL:       getEnvDuration("JWT_TOKEN_TTL", 15*time.Minute),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		ClientAuth: ClientAuthConfig{
			APIKeys:      getEnvList("GATEWAY_API_KEYS"),
			APIKeyHashes: getEnvList("GATEWAY_API_KEY_HASHES"),
		},
		Redis: RedisConfig{
			Address:  getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Provider: ProviderConfig{
			RequestTimeout: getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 60*time.Second),
		},
		RequestLogger: RequestLoggerConfig{
			Enabled:          getEnvBool("REQUEST_LOGGER_ENABLED", false),
			FilePathTemplate: getEnvString("REQUEST_LOGGER_FILE_PATH_TEMPLATE", "/var/log/unified-gateway/requests-%s.jsonl"),
			MaxSize:          getEnvInt64("REQUEST_LOGGER_MAX_SIZE", 10_485_760),              // default 10 MB
			MaxFiles:         getEnvInt("REQUEST_LOGGER_MAX_FILES", 5),                        // default 5
			BufferSize:       getEnvInt("REQUEST_LOGGER_BUFFER_SIZE", 100),                    // default 100
			FlushInterval:    getEnvDuration("REQUEST_LOGGER_FLUSH_INTERVAL", 60*time.Second), // default 60 seconds
		},
		LoggingSink: LoggingSinkConfig{
			Enabled:       getEnvBool("LOGGING_SINK_ENABLED", false),
			UseRedis:      getEnvBool("LOGGING_SINK_USE_REDIS", false),
			BufferSize:    getEnvInt("LOGGING_SINK_BUFFER_SIZE", 10000),
			FlushSize:     getEnvInt("LOGGING_SINK_FLUSH_SIZE", 1000),
			FlushInterval: getEnvDuration("LOGGING_SINK_FLUSH_INTERVAL", 5*time.Minute),
			MaxRetries:    getEnvInt("LOGGING_SINK_MAX_RETRIES", 3),
			S3Bucket:      getEnvString("LOGGING_SINK_S3_BUCKET", ""),
			S3Region:      getEnvString("LOGGING_SINK_S3_REGION", "us-east-1"),
			S3Prefix:      getEnvString("LOGGING_SINK_S3_PREFIX", "logs/"),
			PodName:       getEnvString("POD_NAME", "gateway-0"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := strconv.Atoi(c.HTTPPort); err != nil {
		return fmt.Errorf("HTTP_PORT must be numeric, got %q", c.HTTPPort)
	}
	if c.LoggingSink.Enabled && c.LoggingSink.S3Bucket == "" {
		return fmt.Errorf("LOGGING_SINK_S3_BUCKET is required when LOGGING_SINK_ENABLED is set")
	}
	if c.ClientAuth.Enabled() && string(c.JWTSecret) == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set when gateway API keys are configured")
	}
	return nil
}
