package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	-- Cached explorer source records
	CREATE TABLE IF NOT EXISTS contract_sources (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		blockchain TEXT NOT NULL,
		address TEXT NOT NULL,
		contract_name TEXT NOT NULL,
		compiler_version TEXT,
		source_code TEXT NOT NULL,
		fetched_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
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
func (s *PostgresStore) GetSource(ctx context.Context, blockchain, address string, maxAge time.Duration) (*ContractSource, error) {
	bc, addr := cacheKey(blockchain, address)

	var src ContractSource
	err := s.db.QueryRowContext(ctx, `
		SELECT id, blockchain, address, contract_name, compiler_version, source_code, fetched_at
		FROM contract_sources
		WHERE blockchain = $1 AND address = $2 AND fetched_at > NOW() - $3::interval`,
		bc, addr, fmt.Sprintf("%d seconds", int(maxAge.Seconds())),
	).Scan(&src.ID, &src.Blockchain, &src.Address, &src.ContractName, &src.CompilerVersion, &src.SourceCode, &src.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying source cache: %w", err)
	}
	return &src, nil
}

// PutSource inserts or refreshes a cached source record.
func (s *PostgresStore) PutSource(ctx context.Context, src *ContractSource) error {
	bc, addr := cacheKey(src.Blockchain, src.Address)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contract_sources (blockchain, address, contract_name, compiler_version, source_code, fetched_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (blockchain, address) DO UPDATE SET
			contract_name = EXCLUDED.contract_name,
			compiler_version = EXCLUDED.compiler_version,
			source_code = EXCLUDED.source_code,
			fetched_at = EXCLUDED.fetched_at`,
		bc, addr, src.ContractName, src.CompilerVersion, src.SourceCode,
	)
	if err != nil {
		return fmt.Errorf("storing source cache entry: %w", err)
	}
	return nil
}

// PruneSources deletes cache entries older than maxAge.
func (s *PostgresStore) PruneSources(ctx context.Context, maxAge time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM contract_sources WHERE fetched_at < NOW() - $1::interval`,
		fmt.Sprintf("%d seconds", int(maxAge.Seconds())),
	)
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
