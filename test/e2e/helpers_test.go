//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/iardlabs/slitherd/internal/chains"
	"github.com/iardlabs/slitherd/internal/config"
	"github.com/iardlabs/slitherd/internal/server"
	"github.com/iardlabs/slitherd/internal/storage"
	"github.com/iardlabs/slitherd/pkg/client"
)

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	ToolDir           string
	TestServer        *httptest.Server
	Store             storage.Store
}

// fakeSlitherReport is what the fake slither binary emits for every run.
const fakeSlitherReport = `{
  "success": true,
  "error": null,
  "results": {
    "detectors": [
      {
        "check": "solc-version",
        "impact": "Informational",
        "confidence": "High",
        "description": "Pragma allows old compiler versions"
      }
    ]
  }
}`

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("slitherd"),
		postgres.WithUsername("slitherd"),
		postgres.WithPassword("slitherd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// writeFakeToolsE writes stand-in slither and solc-select executables so the
// pipeline runs end to end without a Python toolchain installed.
func writeFakeToolsE() (string, error) {
	dir, err := os.MkdirTemp("", "slitherd-tools-")
	if err != nil {
		return "", err
	}

	slitherScript := "#!/bin/sh\ncat <<'EOF'\n" + fakeSlitherReport + "\nEOF\n"
	if err := os.WriteFile(filepath.Join(dir, "slither"), []byte(slitherScript), 0755); err != nil {
		os.RemoveAll(dir)
		return "", err
	}

	solcSelectScript := "#!/bin/sh\nexit 0\n"
	if err := os.WriteFile(filepath.Join(dir, "solc-select"), []byte(solcSelectScript), 0755); err != nil {
		os.RemoveAll(dir)
		return "", err
	}

	return dir, nil
}

// startServerE starts the slitherd server in-process backed by the postgres
// source cache and the fake analyzer toolchain
func startServerE(connString, toolDir string) (*httptest.Server, storage.Store, error) {
	workspaceDir, err := os.MkdirTemp("", "slitherd-contracts-")
	if err != nil {
		return nil, nil, err
	}

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Explorer: config.ExplorerConfig{
			TimeoutSeconds: 5,
			RequestsPerSec: 100,
			Burst:          10,
		},
		Analyzer: config.AnalyzerConfig{
			SlitherBin:      filepath.Join(toolDir, "slither"),
			SolcSelectBin:   filepath.Join(toolDir, "solc-select"),
			SolcArtifactDir: filepath.Join(toolDir, "artifacts"),
			WorkspaceDir:    workspaceDir,
			TimeoutSeconds:  30,
			MaxConcurrent:   2,
		},
		Storage: config.StorageConfig{
			Type: "postgres",
			Postgres: config.PostgresConfig{
				URL: connString,
			},
		},
		Cache:    config.CacheConfig{Enabled: true, TTLSeconds: 3600},
		Logging:  config.LoggingConfig{Level: "debug", Format: "text"},
		Security: config.SecurityConfig{FilterEnabled: false, MaxBodySizeMB: 50},
		Proxy:    config.ProxyConfig{TrustProxy: false},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	registry := chains.NewRegistry()

	srv := server.New(cfg, store, registry, logger)
	testServer := httptest.NewServer(srv.Handler())

	return testServer, store, nil
}

// newClient creates a new API client for the test server
func newClient(testServer *httptest.Server) *client.Client {
	return client.New(testServer.URL)
}
