// ABOUTME: Tests for configuration loading
// ABOUTME: Covers env expansion, duration parsing, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Full(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "0.0.0.0:9090"
database:
  path: "/tmp/bosar.db"
auth:
  jwt_secret: "secret"
  token_ttl: "12h"
openai:
  api_key: "sk-test"
  timeout: "30s"
  max_concurrent: 4
chat:
  heartbeat_interval: "10s"
  history_limit: 10
  retrieval_limit: 3
  retrieval_threshold: 0.8
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.HTTPAddr)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 30*time.Second, cfg.OpenAI.Timeout)
	assert.Equal(t, int64(4), cfg.OpenAI.MaxConcurrent)
	assert.Equal(t, 10*time.Second, cfg.Chat.HeartbeatInterval)
	assert.Equal(t, 3, cfg.Chat.RetrievalLimit)
	assert.Equal(t, 0.8, cfg.Chat.RetrievalThreshold)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/bosar.db"
auth:
  jwt_secret: "secret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", cfg.Server.HTTPAddr)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "https://api.openai.com", cfg.OpenAI.BaseURL)
	assert.Equal(t, "text-embedding-ada-002", cfg.OpenAI.EmbedModel)
	assert.Equal(t, 30*time.Second, cfg.Chat.HeartbeatInterval)
	assert.Equal(t, 5, cfg.Chat.RetrievalLimit)
	assert.Equal(t, 0.7, cfg.Chat.RetrievalThreshold)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_JWT_SECRET", "from-env")

	path := writeConfig(t, `
database:
  path: "/tmp/bosar.db"
auth:
  jwt_secret: "${TEST_JWT_SECRET}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoad_MissingRequired(t *testing.T) {
	path := writeConfig(t, `
database:
  path: ""
auth:
  jwt_secret: "secret"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.path")

	path = writeConfig(t, `
database:
  path: "/tmp/bosar.db"
`)
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/bosar.db"
auth:
  jwt_secret: "secret"
chat:
  heartbeat_interval: "not-a-duration"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heartbeat_interval")
}
