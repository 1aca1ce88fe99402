package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"AUTH_ISSUER", "AUTH_TOKEN_TTL", "AUTH_DATABASE_DRIVER", "AUTH_RESET_TTL", "ENV", "PORT", "SMTP_PORT"} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()
	require.Equal(t, "self", cfg.Issuer)
	require.Equal(t, 3*time.Hour, cfg.TokenTTL)
	require.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	require.Equal(t, 24*time.Hour, cfg.VerificationTTL)
	require.Equal(t, 30*time.Minute, cfg.ResetTTL)
	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 587, cfg.SMTPPort)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("AUTH_TOKEN_TTL", "45m")
	t.Setenv("AUTH_RESET_TTL", "15")
	t.Setenv("HOUSEKEEPING_INTERVAL", "not-a-duration")
	t.Setenv("PORT", "9090")
	t.Setenv("AUTH_DATABASE_DRIVER", "postgres")
	t.Setenv("AUTH_DATABASE_URL", "postgres://auth@localhost/auth?sslmode=disable")

	cfg := LoadConfig()
	require.Equal(t, 45*time.Minute, cfg.TokenTTL)
	require.Equal(t, 15*time.Minute, cfg.ResetTTL)
	require.Equal(t, time.Hour, cfg.HousekeepingInterval)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, DriverPostgres, cfg.DatabaseDriver)
}

func TestConfigValidate(t *testing.T) {
	valid := Config{DatabaseDriver: DriverSQLite, Env: "dev", TokenTTL: time.Hour}
	require.NoError(t, valid.Validate())

	t.Run("unknown driver", func(t *testing.T) {
		c := valid
		c.DatabaseDriver = "mysql"
		require.ErrorContains(t, c.Validate(), "AUTH_DATABASE_DRIVER")
	})

	t.Run("postgres needs a url", func(t *testing.T) {
		c := valid
		c.DatabaseDriver = DriverPostgres
		require.ErrorContains(t, c.Validate(), "AUTH_DATABASE_URL")
	})

	t.Run("secret required outside dev", func(t *testing.T) {
		c := valid
		c.Env = "prod"
		c.SMTPHost = "mail.example.com"
		require.ErrorContains(t, c.Validate(), "AUTH_JWT_SECRET")
		c.JWTSecret = "c2VjcmV0"
		require.NoError(t, c.Validate())
	})

	t.Run("mail relay required outside dev", func(t *testing.T) {
		c := valid
		c.Env = "prod"
		c.JWTSecret = "c2VjcmV0"
		require.ErrorContains(t, c.Validate(), "SMTP_HOST")
		c.SMTPHost = "mail.example.com"
		require.NoError(t, c.Validate())
	})

	t.Run("verification ttl within stale window", func(t *testing.T) {
		c := valid
		c.VerificationTTL = 24 * time.Hour
		require.NoError(t, c.Validate())
		c.VerificationTTL = 25 * time.Hour
		require.ErrorContains(t, c.Validate(), "AUTH_VERIFICATION_TTL")
	})

	t.Run("superuser pair", func(t *testing.T) {
		c := valid
		c.SuperuserEmail = "root@example.com"
		require.ErrorContains(t, c.Validate(), "AUTH_SUPERUSER_PASSWORD")
	})
}
