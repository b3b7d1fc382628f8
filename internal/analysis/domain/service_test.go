package domain

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iardlabs/slitherd/internal/explorer"
	"github.com/iardlabs/slitherd/internal/slither"
	"github.com/iardlabs/slitherd/internal/storage"
	"github.com/iardlabs/slitherd/internal/workspace"
)

type mockFetcher struct {
	raw   *explorer.RawSource
	err   error
	calls int
}

func (m *mockFetcher) FetchRaw(ctx context.Context, blockchain, address string) (*explorer.RawSource, error) {
	m.calls++
	return m.raw, m.err
}

type mockStager struct {
	stagedKey   workspace.Key
	stagedFiles map[string]string
	stageErr    error
	tornDown    bool
}

func (m *mockStager) Stage(key workspace.Key, files map[string]string) (*workspace.Workspace, error) {
	if m.stageErr != nil {
		return nil, m.stageErr
	}
	m.stagedKey = key
	m.stagedFiles = files
	return &workspace.Workspace{Root: "/staging/" + key.Blockchain + "/" + key.Address}, nil
}

func (m *mockStager) Teardown(ws *workspace.Workspace) {
	m.tornDown = true
}

type mockResolver struct {
	ensured string
	path    string
	err     error
}

func (m *mockResolver) Ensure(ctx context.Context, version string) (string, error) {
	m.ensured = version
	if m.err != nil {
		return "", m.err
	}
	return m.path, nil
}

type mockRunner struct {
	input  slither.Input
	groups [][]slither.Detection
	err    error
}

func (m *mockRunner) Run(ctx context.Context, in slither.Input) ([][]slither.Detection, error) {
	m.input = in
	return m.groups, m.err
}

type mockCache struct {
	entries map[string]*storage.ContractSource
	getErr  error
	puts    int
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]*storage.ContractSource)}
}

func (m *mockCache) GetSource(ctx context.Context, blockchain, address string, maxAge time.Duration) (*storage.ContractSource, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if src, ok := m.entries[blockchain+"/"+address]; ok {
		return src, nil
	}
	return nil, storage.ErrNotFound
}

func (m *mockCache) PutSource(ctx context.Context, src *storage.ContractSource) error {
	m.puts++
	m.entries[src.Blockchain+"/"+src.Address] = src
	return nil
}

type fixture struct {
	fetcher *mockFetcher
	stager  *mockStager
	solc    *mockResolver
	runner  *mockRunner
	cache   *mockCache
}

func newFixture() *fixture {
	return &fixture{
		fetcher: &mockFetcher{},
		stager:  &mockStager{},
		solc:    &mockResolver{},
		runner:  &mockRunner{},
		cache:   newMockCache(),
	}
}

func (f *fixture) service(opts Options) *service {
	return NewService(f.fetcher, f.stager, f.solc, f.runner, stubPragma, f.cache, opts, slog.Default())
}

// stubPragma mimics pragma extraction without importing the solc package.
func stubPragma(source string) string {
	if source == "" {
		return ""
	}
	return "0.8.19"
}

const testAddress = "0x1234567890abcdef1234567890abcdef12345678"

func TestService_Analyze_Deployed(t *testing.T) {
	f := newFixture()
	f.fetcher.raw = &explorer.RawSource{
		SourceCode:      "pragma solidity 0.8.19;\ncontract Token {}",
		CompilerVersion: "v0.8.19+commit.7dd6d404",
		ContractName:    "Token",
	}
	f.solc.path = "/opt/solc/solc-0.8.19"
	f.runner.groups = [][]slither.Detection{
		{{Check: "reentrancy-eth", Impact: "High", Confidence: "Medium", Description: "Reentrancy in withdraw()"}},
		{}, // some detectors report empty groups
	}

	svc := f.service(Options{})
	findings, err := svc.Analyze(context.Background(), Request{Blockchain: "ethereum", Address: testAddress})
	require.NoError(t, err)

	require.Len(t, findings, 1)
	assert.Equal(t, "reentrancy-eth", findings[0].Check)
	assert.Equal(t, ImpactHigh, findings[0].Impact)
	assert.Equal(t, ConfidenceMedium, findings[0].Confidence)

	assert.Equal(t, workspace.Key{Blockchain: "ethereum", Address: testAddress}, f.stager.stagedKey)
	assert.Contains(t, f.stager.stagedFiles, "Token.sol")
	assert.True(t, f.stager.tornDown, "workspace reclaimed after the run")

	assert.Equal(t, "0.8.19", f.solc.ensured)
	assert.Equal(t, "Token.sol", f.runner.input.Target)
	assert.Equal(t, "/opt/solc/solc-0.8.19", f.runner.input.SolcPath)
}

func TestService_Analyze_DeployedMultiFile(t *testing.T) {
	f := newFixture()
	f.fetcher.raw = &explorer.RawSource{
		SourceCode: `{{"language":"Solidity","sources":{` +
			`"lib/Math.sol":{"content":"library Math {}"},` +
			`"contracts/Vault.sol":{"content":"pragma solidity 0.8.19;\ncontract Vault {}"}}}}`,
		CompilerVersion: "v0.8.19+commit.7dd6d404",
		ContractName:    "Vault",
	}

	svc := f.service(Options{})
	_, err := svc.Analyze(context.Background(), Request{Blockchain: "ethereum", Address: testAddress})
	require.NoError(t, err)

	assert.Contains(t, f.stager.stagedFiles, "contracts/Vault.sol")
	assert.Contains(t, f.stager.stagedFiles, "lib/Math.sol")
	assert.Equal(t, "contracts/Vault.sol", f.runner.input.Target,
		"entry file is the one declaring the contract, not the first in the mapping")
	assert.True(t, f.stager.tornDown)
}

func TestService_Analyze_RawCode(t *testing.T) {
	f := newFixture()
	f.runner.groups = nil

	svc := f.service(Options{})
	findings, err := svc.Analyze(context.Background(), Request{Code: "pragma solidity ^0.8.19;\ncontract A {}"})
	require.NoError(t, err)

	assert.NotNil(t, findings)
	assert.Empty(t, findings)

	assert.Equal(t, workspace.SentinelKey, f.stager.stagedKey)
	assert.Contains(t, f.stager.stagedFiles, "contract.sol")
	assert.Equal(t, "contract.sol", f.runner.input.Target)
	assert.Equal(t, "0.8.19", f.solc.ensured, "version comes from the pragma")
	assert.Zero(t, f.fetcher.calls, "raw code never hits the explorer")
	assert.True(t, f.stager.tornDown)
}

func TestService_Analyze_MissingIdentifiers(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{name: "empty request", req: Request{}},
		{name: "blockchain without address", req: Request{Blockchain: "ethereum"}},
		{name: "address without blockchain", req: Request{Address: testAddress}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFixture().service(Options{})
			_, err := svc.Analyze(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingIdentifiers)
		})
	}
}

func TestService_Analyze_InvalidAddress(t *testing.T) {
	f := newFixture()
	svc := f.service(Options{})

	_, err := svc.Analyze(context.Background(), Request{Blockchain: "ethereum", Address: "not-an-address"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Zero(t, f.fetcher.calls)
}

func TestService_Analyze_InvalidBlockchain(t *testing.T) {
	f := newFixture()
	svc := f.service(Options{})

	for _, blockchain := range []string{"..", "../../etc", "eth/mainnet", "x"} {
		t.Run(blockchain, func(t *testing.T) {
			_, err := svc.Analyze(context.Background(), Request{Blockchain: blockchain, Address: testAddress})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidBlockchain)
		})
	}

	// Rejected before any fetch or staging.
	assert.Zero(t, f.fetcher.calls)
	assert.Nil(t, f.stager.stagedFiles)
}

func TestService_Analyze_CaseInsensitiveBlockchain(t *testing.T) {
	f := newFixture()
	f.fetcher.raw = &explorer.RawSource{
		SourceCode:      "contract Token {}",
		CompilerVersion: "v0.8.19+commit.7dd6d404",
		ContractName:    "Token",
	}

	svc := f.service(Options{})
	_, err := svc.Analyze(context.Background(), Request{Blockchain: "Ethereum", Address: testAddress})
	require.NoError(t, err)
	assert.Equal(t, "ethereum", f.stager.stagedKey.Blockchain)
}

func TestService_Analyze_FetchFails(t *testing.T) {
	f := newFixture()
	f.fetcher.err = errors.New("upstream down")

	svc := f.service(Options{})
	_, err := svc.Analyze(context.Background(), Request{Blockchain: "ethereum", Address: testAddress})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestService_Analyze_RunnerFails(t *testing.T) {
	f := newFixture()
	f.runner.err = slither.ErrAnalysis

	svc := f.service(Options{})
	_, err := svc.Analyze(context.Background(), Request{Code: "contract Broken {"})
	require.Error(t, err)
	assert.ErrorIs(t, err, slither.ErrAnalysis)
	assert.True(t, f.stager.tornDown, "workspace reclaimed even on failure")
}

func TestService_Analyze_SourceCache(t *testing.T) {
	f := newFixture()
	f.fetcher.raw = &explorer.RawSource{
		SourceCode:      "contract Token {}",
		CompilerVersion: "v0.8.19+commit.7dd6d404",
		ContractName:    "Token",
	}

	svc := f.service(Options{CacheTTL: time.Hour})

	_, err := svc.Analyze(context.Background(), Request{Blockchain: "ethereum", Address: testAddress})
	require.NoError(t, err)
	assert.Equal(t, 1, f.fetcher.calls)
	assert.Equal(t, 1, f.cache.puts)

	// Second request for the same contract is served from the cache.
	_, err = svc.Analyze(context.Background(), Request{Blockchain: "ethereum", Address: testAddress})
	require.NoError(t, err)
	assert.Equal(t, 1, f.fetcher.calls)
}

func TestService_Analyze_CacheFailureDegradesToFetch(t *testing.T) {
	f := newFixture()
	f.cache.getErr = errors.New("database gone")
	f.fetcher.raw = &explorer.RawSource{
		SourceCode:      "contract Token {}",
		CompilerVersion: "v0.8.19+commit.7dd6d404",
		ContractName:    "Token",
	}

	svc := f.service(Options{CacheTTL: time.Hour})

	_, err := svc.Analyze(context.Background(), Request{Blockchain: "ethereum", Address: testAddress})
	require.NoError(t, err)
	assert.Equal(t, 1, f.fetcher.calls)
}

func TestService_Analyze_CacheDisabledWithoutTTL(t *testing.T) {
	f := newFixture()
	f.cache.entries["ethereum/"+testAddress] = &storage.ContractSource{
		SourceCode:   "contract Stale {}",
		ContractName: "Stale",
	}
	f.fetcher.raw = &explorer.RawSource{
		SourceCode:   "contract Token {}",
		ContractName: "Token",
	}

	svc := f.service(Options{})

	_, err := svc.Analyze(context.Background(), Request{Blockchain: "ethereum", Address: testAddress})
	require.NoError(t, err)
	assert.Equal(t, 1, f.fetcher.calls, "zero TTL bypasses the cache entirely")
	assert.Zero(t, f.cache.puts)
}

func TestService_Analyze_ConcurrencyCap(t *testing.T) {
	f := newFixture()
	svc := f.service(Options{MaxConcurrent: 1})

	// Fill the only slot, then watch a second request give up on a canceled
	// context instead of queueing forever.
	svc.sem <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Analyze(ctx, Request{Code: "contract A {}"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	<-svc.sem
}

func TestNormalize(t *testing.T) {
	t.Run("filters empty groups", func(t *testing.T) {
		groups := [][]slither.Detection{
			{},
			{{Check: "pragma", Impact: "Informational", Confidence: "High", Description: "d"}},
			{},
		}
		findings := Normalize(groups)
		require.Len(t, findings, 1)
		assert.Equal(t, "pragma", findings[0].Check)
	})

	t.Run("nil input yields empty non-nil slice", func(t *testing.T) {
		findings := Normalize(nil)
		assert.NotNil(t, findings)
		assert.Empty(t, findings)
	})
}
