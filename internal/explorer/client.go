// Package explorer fetches verified contract source code from
// etherscan-family block explorer APIs.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"golang.org/x/time/rate"

	"github.com/iardlabs/slitherd/internal/chains"
	"github.com/iardlabs/slitherd/internal/config"
)

// ErrUpstream is returned when the explorer API is unreachable, replies with
// a non-2xx status, or returns an unusable body.
var ErrUpstream = errors.New("explorer unavailable")

// compilerVersionRegex extracts the semantic version from explorer-reported
// compiler tags such as "v0.8.19+commit.7dd6d404".
var compilerVersionRegex = regexp.MustCompile(`v(\d+\.\d+\.\d+)`)

// VersionFromCompiler extracts a normalized major.minor.patch version from an
// explorer CompilerVersion tag. No match yields an empty string.
func VersionFromCompiler(compilerVersion string) string {
	m := compilerVersionRegex.FindStringSubmatch(compilerVersion)
	if m == nil {
		return ""
	}
	return m[1]
}

// sourceRecord is one entry of the explorer getsourcecode result array.
type sourceRecord struct {
	SourceCode      string `json:"SourceCode"`
	CompilerVersion string `json:"CompilerVersion"`
	ContractName    string `json:"ContractName"`
}

type sourceResponse struct {
	Result []sourceRecord `json:"result"`
}

// Client calls explorer APIs to retrieve verified contract sources. Outbound
// calls are throttled with a shared limiter since etherscan-family APIs
// enforce per-key request rates.
type Client struct {
	http     *http.Client
	registry *chains.Registry
	limiter  *rate.Limiter
	logger   *slog.Logger
	scheme   string // overridden in tests; explorer APIs are https
}

// New creates a new explorer client.
func New(registry *chains.Registry, cfg config.ExplorerConfig, logger *slog.Logger) *Client {
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 4
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		http:     &http.Client{Timeout: timeout},
		registry: registry,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		logger:   logger,
		scheme:   "https",
	}
}

// RawSource is the unparsed explorer record for one contract. It is what the
// source cache persists, so cached entries replay through the same parser as
// fresh fetches.
type RawSource struct {
	SourceCode      string
	CompilerVersion string
	ContractName    string
}

// FetchRaw retrieves the verified source record without parsing it.
func (c *Client) FetchRaw(ctx context.Context, blockchain, address string) (*RawSource, error) {
	chain, err := c.registry.Resolve(blockchain)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for explorer rate limit: %w", err)
	}

	u := fmt.Sprintf("%s://%s/api?module=contract&action=getsourcecode&address=%s&apikey=%s",
		c.scheme, chain.Host, url.QueryEscape(address), url.QueryEscape(chain.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building explorer request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("explorer returned non-2xx",
			"blockchain", chain.Name,
			"address", address,
			"status", resp.StatusCode,
		)
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrUpstream, err)
	}

	var parsed sourceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(parsed.Result) == 0 {
		return nil, fmt.Errorf("%w: empty result", ErrUpstream)
	}

	rec := parsed.Result[0]
	return &RawSource{
		SourceCode:      rec.SourceCode,
		CompilerVersion: rec.CompilerVersion,
		ContractName:    rec.ContractName,
	}, nil
}
