package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/iardlabs/slitherd/internal/chains"
	"github.com/iardlabs/slitherd/internal/config"
	"github.com/iardlabs/slitherd/internal/observability/metrics"
	"github.com/iardlabs/slitherd/internal/server"
	"github.com/iardlabs/slitherd/internal/storage"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "slitherd-server",
		Short:   "slitherd server - smart contract analysis API",
		Version: version,
	}

	// Default behavior (no subcommand) is to serve
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe()
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCacheCmd())
	rootCmd.AddCommand(newChainsCmd())

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the contract source cache",
	}

	var maxAgeHours int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete cached sources older than the given age",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCachePrune(maxAgeHours)
		},
	}
	prune.Flags().IntVar(&maxAgeHours, "max-age", 24, "maximum entry age in hours")

	cmd.AddCommand(prune)
	return cmd
}

func newChainsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chains",
		Short: "Inspect the supported-chain registry",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChainsList()
		},
	})
	return cmd
}

func runCachePrune(maxAgeHours int) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := storage.New(cfg.Storage, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	removed, err := store.PruneSources(context.Background(), time.Duration(maxAgeHours)*time.Hour)
	if err != nil {
		return fmt.Errorf("pruning cache: %w", err)
	}

	fmt.Printf("Pruned %d cached source(s)\n", removed)
	return nil
}

func runChainsList() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	names := registry.Names()
	if len(names) == 0 {
		fmt.Println("No chains configured")
		fmt.Println()
		fmt.Println("Configure chains via a CHAINS_FILE TOML registry or")
		fmt.Println("per-chain env vars like ETHEREUM=\"api.etherscan.io,<key>\"")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHAIN\tEXPLORER HOST\tKEY")
	for _, name := range names {
		chain, err := registry.Resolve(name)
		if err != nil {
			continue
		}
		key := "(none)"
		if chain.APIKey != "" {
			key = "set"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", chain.Name, chain.Host, key)
	}
	w.Flush()

	return nil
}

// Server command

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg)
	logger.Info("starting slitherd-server", "version", version)

	metrics.Init(true)

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	// The source cache is optional; the pipeline runs without it.
	var store storage.Store
	if cfg.Cache.Enabled {
		store, err = storage.New(cfg.Storage, logger)
		if err != nil {
			return fmt.Errorf("initializing storage: %w", err)
		}
		defer store.Close()

		if err := store.Migrate(context.Background()); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	srv := server.New(cfg, store, registry, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var metricsServer *http.Server
	if cfg.Server.MetricsPort > 0 {
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
			Handler: srv.MetricsHandler(),
		}
		go func() {
			logger.Info("metrics listening", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig)
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(ctx)
	}

	logger.Info("server stopped")
	return nil
}

func buildRegistry(cfg *config.Config) (*chains.Registry, error) {
	registry := chains.NewRegistry()
	if cfg.Chains.File != "" {
		if err := registry.LoadFile(cfg.Chains.File); err != nil {
			return nil, fmt.Errorf("loading chains file: %w", err)
		}
	}

	// Keys saved by `slitherd config set-key` fill the gaps for chains that
	// have a host but no key configured.
	credsPath := cfg.Chains.CredentialsFile
	if credsPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			credsPath = filepath.Join(home, ".slitherd", "credentials")
		}
	}
	if credsPath != "" {
		if err := registry.LoadCredentialsFile(credsPath); err != nil {
			return nil, fmt.Errorf("loading credentials file: %w", err)
		}
	}
	return registry, nil
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
