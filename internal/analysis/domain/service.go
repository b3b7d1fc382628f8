package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iardlabs/slitherd/internal/explorer"
	"github.com/iardlabs/slitherd/internal/observability/metrics"
	"github.com/iardlabs/slitherd/internal/slither"
	"github.com/iardlabs/slitherd/internal/storage"
	"github.com/iardlabs/slitherd/internal/validation"
	"github.com/iardlabs/slitherd/internal/workspace"
)

// Common errors returned by the analysis service.
var (
	ErrMissingIdentifiers = errors.New("missing blockchain or contract address")
	ErrSourceUnavailable  = errors.New("unable to retrieve contract code")
	ErrInvalidAddress     = errors.New("invalid contract address")
	ErrInvalidBlockchain  = errors.New("invalid blockchain name")
)

// Fetcher retrieves raw contract source records from a block explorer.
type Fetcher interface {
	FetchRaw(ctx context.Context, blockchain, address string) (*explorer.RawSource, error)
}

// Stager materializes source trees into per-request workspaces.
type Stager interface {
	Stage(key workspace.Key, files map[string]string) (*workspace.Workspace, error)
	Teardown(ws *workspace.Workspace)
}

// CompilerResolver installs a compiler version and returns its binary path.
type CompilerResolver interface {
	Ensure(ctx context.Context, version string) (string, error)
}

// Runner executes the static analyzer against a staged entry file.
type Runner interface {
	Run(ctx context.Context, in slither.Input) ([][]slither.Detection, error)
}

// PragmaVersion extracts a compiler version from raw source text.
type PragmaVersion func(source string) string

// SourceCache stores fetched explorer records so repeated requests for the
// same contract skip the upstream call. Analysis results are never cached.
type SourceCache interface {
	GetSource(ctx context.Context, blockchain, address string, maxAge time.Duration) (*storage.ContractSource, error)
	PutSource(ctx context.Context, src *storage.ContractSource) error
}

// Options carries service tuning knobs.
type Options struct {
	// MaxConcurrent caps in-flight analyzer subprocesses. Zero or negative
	// means no cap.
	MaxConcurrent int
	// CacheTTL bounds the age of usable source cache entries. Zero disables
	// the cache even when one is configured.
	CacheTTL time.Duration
}

type service struct {
	fetcher   Fetcher
	stager    Stager
	compilers CompilerResolver
	runner    Runner
	pragma    PragmaVersion
	cache     SourceCache
	cacheTTL  time.Duration
	sem       chan struct{}
	logger    *slog.Logger
}

// NewService creates a new analysis service.
func NewService(fetcher Fetcher, stager Stager, compilers CompilerResolver, runner Runner, pragma PragmaVersion, cache SourceCache, opts Options, logger *slog.Logger) *service {
	s := &service{
		fetcher:   fetcher,
		stager:    stager,
		compilers: compilers,
		runner:    runner,
		pragma:    pragma,
		cache:     cache,
		cacheTTL:  opts.CacheTTL,
		logger:    logger,
	}
	if opts.MaxConcurrent > 0 {
		s.sem = make(chan struct{}, opts.MaxConcurrent)
	}
	return s
}

// Analyze runs the full pipeline for one request: resolve inputs, fetch and
// stage sources, pin the compiler, locate the entry file, run the analyzer
// and normalize its findings. The workspace is torn down before returning,
// whatever the outcome.
func (s *service) Analyze(ctx context.Context, req Request) ([]Finding, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	switch {
	case req.Blockchain != "" && req.Address != "":
		return s.analyzeDeployed(ctx, req.Blockchain, req.Address)
	case req.Code != "":
		return s.analyzeRaw(ctx, req.Code)
	default:
		return nil, ErrMissingIdentifiers
	}
}

func (s *service) analyzeDeployed(ctx context.Context, blockchain, address string) ([]Finding, error) {
	// Normalized before validation: chain lookups are case-insensitive, and
	// the lowercased name doubles as the workspace and cache key.
	blockchain = strings.ToLower(blockchain)
	if err := validation.ValidateBlockchain(blockchain); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBlockchain, err)
	}
	if err := validation.ValidateAddress(address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	raw, err := s.fetchSource(ctx, blockchain, address)
	if err != nil {
		metrics.ExplorerFetch(blockchain, "error")
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	metrics.ExplorerFetch(blockchain, "ok")

	src, err := explorer.ParseSource(raw.SourceCode, raw.CompilerVersion, raw.ContractName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	ws, err := s.stager.Stage(workspace.Key{Blockchain: blockchain, Address: address}, src.Files)
	if err != nil {
		return nil, fmt.Errorf("staging sources: %w", err)
	}
	defer s.stager.Teardown(ws)

	entry, err := src.EntryFile()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	return s.run(ctx, ws, entry, src.CompilerVersion)
}

func (s *service) analyzeRaw(ctx context.Context, code string) ([]Finding, error) {
	files := map[string]string{"contract.sol": code}

	ws, err := s.stager.Stage(workspace.SentinelKey, files)
	if err != nil {
		return nil, fmt.Errorf("staging sources: %w", err)
	}
	defer s.stager.Teardown(ws)

	return s.run(ctx, ws, "contract.sol", s.pragma(code))
}

// run pins the compiler, invokes the analyzer inside the workspace and
// normalizes its report.
func (s *service) run(ctx context.Context, ws *workspace.Workspace, entry, version string) ([]Finding, error) {
	solcPath, err := s.compilers.Ensure(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("preparing compiler %s: %w", version, err)
	}

	start := time.Now()
	groups, err := s.runner.Run(ctx, slither.Input{
		Dir:      ws.Root,
		Target:   entry,
		SolcPath: solcPath,
	})
	metrics.SlitherDuration(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	return Normalize(groups), nil
}

// fetchSource consults the source cache before calling the explorer, and
// stores fresh records back on a miss. Cache failures degrade to a direct
// fetch; they never fail the request.
func (s *service) fetchSource(ctx context.Context, blockchain, address string) (*explorer.RawSource, error) {
	if s.cache != nil && s.cacheTTL > 0 {
		cached, err := s.cache.GetSource(ctx, blockchain, address, s.cacheTTL)
		switch {
		case err == nil:
			metrics.SourceCache("hit")
			return &explorer.RawSource{
				SourceCode:      cached.SourceCode,
				CompilerVersion: cached.CompilerVersion,
				ContractName:    cached.ContractName,
			}, nil
		case !errors.Is(err, storage.ErrNotFound):
			s.logger.Warn("source cache lookup failed", "blockchain", blockchain, "address", address, "error", err)
		}
		metrics.SourceCache("miss")
	}

	raw, err := s.fetcher.FetchRaw(ctx, blockchain, address)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.cacheTTL > 0 {
		err := s.cache.PutSource(ctx, &storage.ContractSource{
			Blockchain:      blockchain,
			Address:         address,
			ContractName:    raw.ContractName,
			CompilerVersion: raw.CompilerVersion,
			SourceCode:      raw.SourceCode,
		})
		if err != nil {
			s.logger.Warn("source cache store failed", "blockchain", blockchain, "address", address, "error", err)
		}
	}
	return raw, nil
}

// Normalize filters empty detector groups and projects each raw detection to
// the four-field shape returned to callers.
func Normalize(groups [][]slither.Detection) []Finding {
	findings := make([]Finding, 0)
	for _, group := range groups {
		if len(group) == 0 {
			continue
		}
		for _, d := range group {
			findings = append(findings, Finding{
				Check:       d.Check,
				Description: d.Description,
				Impact:      Impact(d.Impact),
				Confidence:  Confidence(d.Confidence),
			})
		}
	}
	return findings
}

func (s *service) acquire(ctx context.Context) error {
	if s.sem == nil {
		return nil
	}
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *service) release() {
	if s.sem != nil {
		<-s.sem
	}
}
