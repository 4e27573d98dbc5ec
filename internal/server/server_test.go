// ABOUTME: Integration-style tests for the server orchestrator.
// ABOUTME: Boots the full wiring on an ephemeral port with an in-memory store.

package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/handoff-bridge/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{HTTPAddr: freeAddr(t)},
		Auth: config.AuthConfig{
			APIToken:       "test-token",
			PairingSecret:  "test-pairing-secret",
			DeviceTokenTTL: time.Hour,
		},
		Broker: config.BrokerConfig{
			DefaultTimeout:   time.Second,
			LivenessInterval: time.Hour,
			GracePeriod:      time.Hour,
		},
		Database: config.DatabaseConfig{Path: ":memory:"},
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func waitForHealth(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(fmt.Sprintf("http://%s/health", addr))
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("server never became healthy")
}

func TestServerStartsAndShutsDown(t *testing.T) {
	cfg := testConfig(t)
	srv, err := New(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	waitForHealth(t, cfg.Server.HTTPAddr)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServerRejectsUnauthenticatedAPI(t *testing.T) {
	cfg := testConfig(t)
	srv, err := New(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	waitForHealth(t, cfg.Server.HTTPAddr)

	resp, err := http.Get(fmt.Sprintf("http://%s/api/status", cfg.Server.HTTPAddr))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServerStatusWithToken(t *testing.T) {
	cfg := testConfig(t)
	srv, err := New(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	waitForHealth(t, cfg.Server.HTTPAddr)

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("http://%s/api/status", cfg.Server.HTTPAddr), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer test-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "live_count")
}

func TestServerPairingTokensUsable(t *testing.T) {
	cfg := testConfig(t)
	srv, err := New(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	token, err := srv.Tokens().Issue("dev-1", "Test Phone")
	require.NoError(t, err)

	claims, err := srv.Tokens().Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", claims.DeviceID)
}
