// ABOUTME: Lifecycle tests for the server orchestrator
// ABOUTME: Covers construction, run/cancel shutdown and config validation

package server

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosar/bosar-gateway/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "test.db")},
		Auth: config.AuthConfig{
			JWTSecret: "test-secret",
			TokenTTL:  time.Hour,
		},
		OpenAI: config.OpenAIConfig{
			BaseURL:       "https://api.openai.com",
			EmbedModel:    "text-embedding-ada-002",
			MaxConcurrent: 2,
			Timeout:       time.Second,
		},
		Chat: config.ChatConfig{
			HistoryLimit:       10,
			RetrievalLimit:     5,
			RetrievalThreshold: 0.7,
			HeartbeatInterval:  time.Minute,
		},
	}
}

func TestServer_NewWiresComponents(t *testing.T) {
	srv, err := New(testConfig(t), slog.Default())
	require.NoError(t, err)
	require.NotNil(t, srv)

	require.NoError(t, srv.store.Close())
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	srv, err := New(testConfig(t), slog.Default())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	// let the listener come up, then cancel
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down after cancel")
	}
}

func TestServer_BadDatabasePath(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Path = filepath.Join(t.TempDir(), "missing-dir", "nested", "test.db")

	_, err := New(cfg, slog.Default())
	assert.Error(t, err)
}
