package db

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
version: "1.0.0"
mode: release
listen_addr: ":9090"
database:
  host: db.internal
  port: 3307
  user: app
  password: secret
  dbname: sala
auth:
  jwt_secret: topsecret
  token_ttl_hours: 12
loans:
  lock_wait_seconds: 5
  loan_days: 14
  renew_days: 10
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 3307, cfg.DB.Port)
	assert.Equal(t, "topsecret", cfg.Auth.JWTSecret)
	assert.Equal(t, 12, cfg.Auth.TokenTTLHours)
	assert.Equal(t, 14, cfg.Loans.LoanDays)
	assert.Equal(t, 10, cfg.Loans.RenewDays)
	assert.Equal(t, 5*time.Second, cfg.LockWait())
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
mode: dev
database:
  host: 127.0.0.1
  port: 3306
  user: root
  password: root
  dbname: sala
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 24, cfg.Auth.TokenTTLHours)
	assert.Equal(t, 3*time.Second, cfg.LockWait())
	assert.Equal(t, 7, cfg.Loans.LoanDays)
	assert.Equal(t, 7, cfg.Loans.RenewDays)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := writeConfig(t, "mode: [unclosed")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}
