package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"potatoauth/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test_jwt_secret")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppPort)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, 20*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 365*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 10*time.Minute, cfg.ResetTokenTTL)
	assert.Equal(t, config.MailTransportSMTP, cfg.MailTransport)
	assert.Equal(t, "email_queue", cfg.EmailQueue)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.True(t, cfg.SMTPTLS)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("JWT_SECRET", "test_jwt_secret")
	t.Setenv("APP_PORT", ":9090")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("MAIL_TRANSPORT", "queue")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SMTP_TLS", "false")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.AppPort)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, config.MailTransportQueue, cfg.MailTransport)
	assert.Equal(t, 2525, cfg.SMTPPort)
	assert.False(t, cfg.SMTPTLS)
}

func TestLoad_EnvFile(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("BASE_URL", "http://env.example")
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET=from_file\nBASE_URL=http://file.example\n"), 0o600))
	// godotenv does not override variables that are already set, even to empty.
	require.NoError(t, os.Unsetenv("JWT_SECRET"))
	t.Cleanup(func() { os.Unsetenv("JWT_SECRET") })

	cfg, err := config.Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "from_file", cfg.JWTSecret)
	assert.Equal(t, "http://env.example", cfg.BaseURL)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := config.Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "test_jwt_secret")
	t.Setenv("DATABASE_DRIVER", "mysql")
	_, err = config.Load()
	assert.Error(t, err)

	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("MAIL_TRANSPORT", "pigeon")
	_, err = config.Load()
	assert.Error(t, err)
}
