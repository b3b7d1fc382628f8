package explorer

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iardlabs/slitherd/internal/chains"
	"github.com/iardlabs/slitherd/internal/config"
)

func newTestClient(t *testing.T, upstream *httptest.Server) *Client {
	t.Helper()

	host := strings.TrimPrefix(upstream.URL, "http://")
	registry := chains.NewRegistry()
	registry.Register(chains.Chain{Name: "testchain", Host: host, APIKey: "test-key"})

	c := New(registry, config.ExplorerConfig{TimeoutSeconds: 5, RequestsPerSec: 100, Burst: 10}, slog.Default())
	c.scheme = "http"
	return c
}

func TestClient_FetchRaw(t *testing.T) {
	var gotQuery url.Values
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"status":"1","result":[{` +
			`"SourceCode":"contract Token {}",` +
			`"CompilerVersion":"v0.8.19+commit.7dd6d404",` +
			`"ContractName":"Token"}]}`))
	}))
	defer upstream.Close()

	c := newTestClient(t, upstream)

	raw, err := c.FetchRaw(context.Background(), "testchain", "0x1234567890abcdef1234567890abcdef12345678")
	require.NoError(t, err)

	assert.Equal(t, "contract Token {}", raw.SourceCode)
	assert.Equal(t, "v0.8.19+commit.7dd6d404", raw.CompilerVersion)
	assert.Equal(t, "Token", raw.ContractName)

	assert.Equal(t, "contract", gotQuery.Get("module"))
	assert.Equal(t, "getsourcecode", gotQuery.Get("action"))
	assert.Equal(t, "0x1234567890abcdef1234567890abcdef12345678", gotQuery.Get("address"))
	assert.Equal(t, "test-key", gotQuery.Get("apikey"))
}

func TestClient_FetchRaw_Upstream5xx(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	c := newTestClient(t, upstream)

	_, err := c.FetchRaw(context.Background(), "testchain", "0x1234567890abcdef1234567890abcdef12345678")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestClient_FetchRaw_BadBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "<html>maintenance</html>"},
		{name: "empty result", body: `{"status":"0","result":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer upstream.Close()

			c := newTestClient(t, upstream)

			_, err := c.FetchRaw(context.Background(), "testchain", "0x1234567890abcdef1234567890abcdef12345678")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUpstream)
		})
	}
}

func TestClient_FetchRaw_UnknownChain(t *testing.T) {
	c := New(chains.NewRegistry(), config.ExplorerConfig{}, slog.Default())

	_, err := c.FetchRaw(context.Background(), "nosuchchain", "0x1234567890abcdef1234567890abcdef12345678")
	require.Error(t, err)
	assert.ErrorIs(t, err, chains.ErrUnknownChain)
}

func TestClient_FetchRaw_RecordParsesToSource(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":[{` +
			`"SourceCode":"pragma solidity 0.8.19;\ncontract Token {}",` +
			`"CompilerVersion":"v0.8.19+commit.7dd6d404",` +
			`"ContractName":"Token"}]}`))
	}))
	defer upstream.Close()

	c := newTestClient(t, upstream)

	raw, err := c.FetchRaw(context.Background(), "testchain", "0x1234567890abcdef1234567890abcdef12345678")
	require.NoError(t, err)

	src, err := ParseSource(raw.SourceCode, raw.CompilerVersion, raw.ContractName)
	require.NoError(t, err)

	assert.False(t, src.Multi())
	assert.Equal(t, "0.8.19", src.CompilerVersion)
	entry, err := src.EntryFile()
	require.NoError(t, err)
	assert.Equal(t, "Token.sol", entry)
}
