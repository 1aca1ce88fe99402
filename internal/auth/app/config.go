package app

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
	"github.com/aussiebroadwan/trackr/pkg/httpx"
	"github.com/aussiebroadwan/trackr/pkg/jwtx"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Issuer    string        // Issuer claim for session tokens (default: self)
	JWTSecret string        // Base64 HMAC secret, at least 32 decoded bytes. Required outside dev.
	TokenTTL  time.Duration // Session lifetime (default: 3h)

	DatabaseDriver string // sqlite or postgres (default: sqlite)
	DatabaseFile   string // SQLite database file (default: auth.db)
	DatabaseURL    string // Postgres connection string
	PepperFile     string // File holding the password pepper, created on first start (default: pepper)

	VerificationTTL time.Duration // Verification link lifetime (default: 24h)
	ResetTTL        time.Duration // Password reset link lifetime (default: 30m)
	FrontendURL     string        // Base URL the emailed links point at

	SuperuserEmail     string // Seeded on first start when set
	SuperuserPassword  string
	SuperuserFirstName string
	SuperuserLastName  string

	RedisURL string // Optional: shared throttle for emailed links

	SMTPHost     string // Required outside dev. Without it emails are only logged
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	LogFile              string        // Optional rotated log file prefix
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)

	RateLimits httpx.RateLimits
}

func LoadConfig() Config {
	return Config{
		Issuer:    getEnvOrDefault("AUTH_ISSUER", jwtx.DefaultIssuer),
		JWTSecret: os.Getenv("AUTH_JWT_SECRET"),
		TokenTTL:  getEnvDurationOrDefault("AUTH_TOKEN_TTL", jwtx.DefaultSessionTTL),

		DatabaseDriver: getEnvOrDefault("AUTH_DATABASE_DRIVER", DriverSQLite),
		DatabaseFile:   getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		DatabaseURL:    os.Getenv("AUTH_DATABASE_URL"),
		PepperFile:     getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),

		VerificationTTL: getEnvDurationOrDefault("AUTH_VERIFICATION_TTL", 24*time.Hour),
		ResetTTL:        getEnvDurationOrDefault("AUTH_RESET_TTL", 30*time.Minute),
		FrontendURL:     getEnvOrDefault("AUTH_FRONTEND_URL", "http://localhost:3000"),

		SuperuserEmail:     os.Getenv("AUTH_SUPERUSER_EMAIL"),
		SuperuserPassword:  os.Getenv("AUTH_SUPERUSER_PASSWORD"),
		SuperuserFirstName: getEnvOrDefault("AUTH_SUPERUSER_FIRSTNAME", "Super"),
		SuperuserLastName:  getEnvOrDefault("AUTH_SUPERUSER_LASTNAME", "Admin"),

		RedisURL: os.Getenv("REDIS_URL"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getEnvIntOrDefault("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     getEnvOrDefault("SMTP_FROM", "no-reply@localhost"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		LogFile:              os.Getenv("LOG_FILE"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),

		RateLimits: httpx.RateLimitsFromEnv(),
	}
}

// Validate rejects combinations that cannot start.
func (c Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("AUTH_DATABASE_URL is required for the %s driver", DriverPostgres)
		}
	default:
		return fmt.Errorf("unknown AUTH_DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	if c.JWTSecret == "" && c.Env != "dev" {
		return fmt.Errorf("AUTH_JWT_SECRET is required when ENV=%s", c.Env)
	}
	// The log sender prints live tokens, so only dev may run without a relay.
	if c.SMTPHost == "" && c.Env != "dev" {
		return fmt.Errorf("SMTP_HOST is required when ENV=%s", c.Env)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive")
	}
	// Housekeeping purges accounts whose verification token is older than
	// the stale window, so a longer TTL would delete redeemable accounts.
	if c.VerificationTTL > domain.StaleVerificationWindow {
		return fmt.Errorf("AUTH_VERIFICATION_TTL must not exceed %s", domain.StaleVerificationWindow)
	}
	if (c.SuperuserEmail == "") != (c.SuperuserPassword == "") {
		return fmt.Errorf("AUTH_SUPERUSER_EMAIL and AUTH_SUPERUSER_PASSWORD must be set together")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Integer minutes are accepted too
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
