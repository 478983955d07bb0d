package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithEnv(t *testing.T) {
	t.Setenv("IREC_CONFIG", "")
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("WORKER_BATCH_SIZE", "20")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, 20, cfg.Worker.BatchSize)
	assert.Equal(t, 5, cfg.Worker.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Issuer.Timeout)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "irec.yaml")
	data := []byte(`
http_addr: ":9090"
jwt_secret: from-file
issuer:
  base_url: http://issuer.local:3030
  timeout: 3s
worker:
  interval: 250ms
  max_attempts: 2
log:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ISSUER_TOKEN", "tok")
	t.Setenv("HTTP_ADDR", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, "http://issuer.local:3030", cfg.Issuer.BaseURL)
	assert.Equal(t, "tok", cfg.Issuer.Token)
	assert.Equal(t, 3*time.Second, cfg.Issuer.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Worker.Interval)
	assert.Equal(t, 2, cfg.Worker.MaxAttempts)
	assert.Equal(t, 50, cfg.Worker.BatchSize)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")

	cfg.JWTSecret = "x"
	cfg.Issuer.BaseURL = "not a url"
	cfg.Worker.BatchSize = 0
	cfg.Log.Level = "loud"
	cfg.Notify.WebhookURL = "hooks"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issuer.base_url")
	assert.Contains(t, err.Error(), "batch_size")
	assert.Contains(t, err.Error(), "log.level")
	assert.Contains(t, err.Error(), "notify.webhook_url")

	cfg = Default()
	cfg.JWTSecret = "x"
	assert.NoError(t, cfg.Validate())
}
