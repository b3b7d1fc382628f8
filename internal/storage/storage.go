// Package storage implements the contract source cache. Verified source on
// a block explorer is immutable, so fetched records are kept for a TTL and
// reused instead of hitting the rate-limited explorer APIs again. Analysis
// results are never stored.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iardlabs/slitherd/internal/config"
)

// ContractSource is one cached explorer record.
type ContractSource struct {
	ID              string
	Blockchain      string
	Address         string
	ContractName    string
	CompilerVersion string
	SourceCode      string
	FetchedAt       time.Time
}

// SourceStore handles cached contract sources.
type SourceStore interface {
	// GetSource returns the cached record for (blockchain, address) if one
	// exists and is younger than maxAge; otherwise ErrNotFound.
	GetSource(ctx context.Context, blockchain, address string, maxAge time.Duration) (*ContractSource, error)
	// PutSource inserts or refreshes the cached record.
	PutSource(ctx context.Context, src *ContractSource) error
	// PruneSources deletes records older than maxAge and returns how many
	// were removed.
	PruneSources(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Store combines the storage interfaces with lifecycle methods.
type Store interface {
	SourceStore

	Close() error
	Migrate(ctx context.Context) error
}

// New creates a store based on configuration.
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "postgres":
		if cfg.Postgres.URL == "" {
			return nil, fmt.Errorf("postgres storage requires DATABASE_URL")
		}
		return NewPostgresStore(cfg.Postgres.URL, logger)
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
