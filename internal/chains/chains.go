// Package chains maintains the registry of supported blockchains and the
// explorer API credentials for each of them.
package chains

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Common errors returned by the registry.
var (
	ErrUnknownChain   = errors.New("chain not supported")
	ErrNoCredentials  = errors.New("no explorer credentials configured")
	ErrBadCredentials = errors.New("malformed explorer credentials")
)

// Chain describes one supported blockchain and its explorer endpoint.
type Chain struct {
	Name   string // lowercase identifier, e.g. "ethereum"
	Host   string // explorer API host, e.g. "api.etherscan.io"
	APIKey string
}

// registryFile is the TOML shape of an optional chains file:
//
//	[chains.ethereum]
//	host = "api.etherscan.io"
//	api_key_env = "ETHERSCAN_KEY"
type registryFile struct {
	Chains map[string]chainEntry `toml:"chains"`
}

type chainEntry struct {
	Host      string `toml:"host"`
	APIKey    string `toml:"api_key"`
	APIKeyEnv string `toml:"api_key_env"`
}

// Registry resolves blockchain names to explorer credentials. Entries come
// from an optional TOML file; a `NAME="host,key"` environment variable for
// the uppercased chain name always takes precedence, matching how the
// service has historically been deployed.
type Registry struct {
	chains map[string]Chain
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{chains: make(map[string]Chain)}
}

// LoadFile merges chain definitions from a TOML registry file.
func (r *Registry) LoadFile(path string) error {
	var file registryFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return fmt.Errorf("decoding chains file: %w", err)
	}

	for name, entry := range file.Chains {
		name = strings.ToLower(name)
		key := entry.APIKey
		if entry.APIKeyEnv != "" {
			if v := os.Getenv(entry.APIKeyEnv); v != "" {
				key = v
			}
		}
		r.chains[name] = Chain{Name: name, Host: entry.Host, APIKey: key}
	}
	return nil
}

// credentialsFile is the YAML shape written by `slitherd config set-key`:
//
//	explorers:
//	  ethereum: SOMEKEY
type credentialsFile struct {
	Explorers map[string]string `yaml:"explorers"`
}

// LoadCredentialsFile fills in API keys from a set-key credentials file for
// registered chains that have none. Keys already present (from the registry
// file or Register) are kept. A missing file is not an error, so the default
// path can be probed unconditionally at startup.
func (r *Registry) LoadCredentialsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading credentials file: %w", err)
	}

	var file credentialsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("decoding credentials file: %w", err)
	}

	for name, key := range file.Explorers {
		name = strings.ToLower(name)
		c, ok := r.chains[name]
		if !ok || c.APIKey != "" || key == "" {
			continue
		}
		c.APIKey = key
		r.chains[name] = c
	}
	return nil
}

// Register adds or replaces a chain entry.
func (r *Registry) Register(c Chain) {
	r.chains[strings.ToLower(c.Name)] = c
}

// Resolve returns the explorer credentials for a blockchain name. The
// `BLOCKCHAIN="host,key"` environment variable overrides any file entry.
func (r *Registry) Resolve(blockchain string) (Chain, error) {
	name := strings.ToLower(strings.TrimSpace(blockchain))
	if name == "" {
		return Chain{}, ErrUnknownChain
	}

	if v := os.Getenv(strings.ToUpper(name)); v != "" {
		host, key, ok := strings.Cut(v, ",")
		if !ok || host == "" {
			return Chain{}, fmt.Errorf("%w: %s", ErrBadCredentials, strings.ToUpper(name))
		}
		return Chain{Name: name, Host: strings.TrimSpace(host), APIKey: strings.TrimSpace(key)}, nil
	}

	c, ok := r.chains[name]
	if !ok {
		return Chain{}, fmt.Errorf("%w: %s", ErrUnknownChain, name)
	}
	if c.Host == "" {
		return Chain{}, fmt.Errorf("%w: %s", ErrNoCredentials, name)
	}
	return c, nil
}

// Names returns the registered chain names sorted alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.chains))
	for name := range r.chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
