package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	LogLevel     string
	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	InvoiceNumberTemplate string
	SnowflakeNode         int64

	GL        GLConfig
	RateLimit RateLimitConfig
}

// GLConfig selects and configures the external general-ledger adapter.
type GLConfig struct {
	Adapter  string
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// RateLimitConfig enables the redis-backed per-tenant API limiter. The same
// redis also coordinates the orphan sweep across instances.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TenantRate    float64
	TenantBurst   int
}

const (
	GLAdapterHTTP = "http"
	GLAdapterStub = "stub"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "taxledger"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		LogLevel:          strings.ToLower(getenv("LOG_LEVEL", "info")),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "taxledger"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),

		InvoiceNumberTemplate: getenv("INVOICE_NUMBER_TEMPLATE", "INV-{YYYY}-{SEQ6}"),
		SnowflakeNode:         int64(getenvInt("SNOWFLAKE_NODE", 1)),

		GL: GLConfig{
			Adapter:  normalizeGLAdapter(getenv("GL_ADAPTER", GLAdapterStub)),
			Endpoint: strings.TrimSpace(getenv("GL_ENDPOINT", "")),
			APIKey:   strings.TrimSpace(getenv("GL_API_KEY", "")),
			Timeout:  getenvDuration("GL_TIMEOUT", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("REDIS_DB", 0),
			TenantRate:    getenvFloat("RATE_LIMIT_TENANT_RATE", 50),
			TenantBurst:   getenvInt("RATE_LIMIT_TENANT_BURST", 100),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func normalizeGLAdapter(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case GLAdapterHTTP:
		return GLAdapterHTTP
	default:
		return GLAdapterStub
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
