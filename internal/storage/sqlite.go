package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Cached explorer source records
	CREATE TABLE IF NOT EXISTS contract_sources (
		id TEXT PRIMARY KEY,
		blockchain TEXT NOT NULL,
		address TEXT NOT NULL,
		contract_name TEXT NOT NULL,
		compiler_version TEXT,
		source_code TEXT NOT NULL,
		fetched_at TEXT NOT NULL,
		UNIQUE(blockchain, address)
	);

	CREATE INDEX IF NOT EXISTS idx_contract_sources_fetched_at
		ON contract_sources(fetched_at);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// GetSource returns a cached source record no older than maxAge.
func (s *SQLiteStore) GetSource(ctx context.Context, blockchain, address string, maxAge time.Duration) (*ContractSource, error) {
	bc, addr := cacheKey(blockchain, address)

	var src ContractSource
	var fetchedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, blockchain, address, contract_name, compiler_version, source_code, fetched_at
		FROM contract_sources
		WHERE blockchain = ? AND address = ?`,
		bc, addr,
	).Scan(&src.ID, &src.Blockchain, &src.Address, &src.ContractName, &src.CompilerVersion, &src.SourceCode, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying source cache: %w", err)
	}

	src.FetchedAt, err = time.Parse(time.RFC3339, fetchedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing fetched_at: %w", err)
	}
	if time.Since(src.FetchedAt) > maxAge {
		return nil, ErrNotFound
	}
	return &src, nil
}

// PutSource inserts or refreshes a cached source record.
func (s *SQLiteStore) PutSource(ctx context.Context, src *ContractSource) error {
	bc, addr := cacheKey(src.Blockchain, src.Address)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contract_sources (id, blockchain, address, contract_name, compiler_version, source_code, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(blockchain, address) DO UPDATE SET
			contract_name = excluded.contract_name,
			compiler_version = excluded.compiler_version,
			source_code = excluded.source_code,
			fetched_at = excluded.fetched_at`,
		generateID(), bc, addr, src.ContractName, src.CompilerVersion, src.SourceCode,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("storing source cache entry: %w", err)
	}
	return nil
}

// PruneSources deletes cache entries older than maxAge.
func (s *SQLiteStore) PruneSources(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM contract_sources WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning source cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Debug("pruned source cache", "removed", n)
	}
	return n, nil
}
