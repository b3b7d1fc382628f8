package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all configuration for the server
type Config struct {
	Server   ServerConfig
	Explorer ExplorerConfig
	Analyzer AnalyzerConfig
	Storage  StorageConfig
	Cache    CacheConfig
	Chains   ChainsConfig
	Logging  LoggingConfig
	Security SecurityConfig
	Proxy    ProxyConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	Host         string
	MetricsPort  int // 0 disables the separate metrics listener
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
}

// ExplorerConfig holds upstream explorer API settings
type ExplorerConfig struct {
	TimeoutSeconds int
	RequestsPerSec float64 // outbound throttle toward explorer APIs
	Burst          int
}

// AnalyzerConfig holds slither/solc invocation settings
type AnalyzerConfig struct {
	SlitherBin      string
	SolcSelectBin   string
	SolcArtifactDir string // where solc-select keeps installed compilers
	WorkspaceDir    string // staging root for contract source trees
	TimeoutSeconds  int    // per slither run
	MaxConcurrent   int    // in-flight slither processes
}

// StorageConfig holds source cache storage configuration
type StorageConfig struct {
	Type     string // "sqlite" or "postgres"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// CacheConfig controls caching of fetched contract sources
type CacheConfig struct {
	Enabled    bool
	TTLSeconds int
}

// ChainsConfig holds the supported-chain registry settings
type ChainsConfig struct {
	File            string // optional TOML registry; env vars override
	CredentialsFile string // optional set-key credentials file; empty probes ~/.slitherd/credentials
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// SecurityConfig holds security filter settings
type SecurityConfig struct {
	FilterEnabled bool
	MaxBodySizeMB int
}

// ProxyConfig holds trusted proxy settings for X-Forwarded-For handling
type ProxyConfig struct {
	TrustProxy     bool
	TrustedProxies []string // CIDR notation
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvInt("PORT", 8080),
			Host:         getEnv("HOST", "0.0.0.0"),
			MetricsPort:  getEnvInt("METRICS_PORT", 0),
			ReadTimeout:  getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout: getEnvInt("SERVER_WRITE_TIMEOUT", 300),
			IdleTimeout:  getEnvInt("SERVER_IDLE_TIMEOUT", 120),
		},
		Explorer: ExplorerConfig{
			TimeoutSeconds: getEnvInt("EXPLORER_TIMEOUT", 30),
			RequestsPerSec: getEnvFloat("EXPLORER_RPS", 4),
			Burst:          getEnvInt("EXPLORER_BURST", 2),
		},
		Analyzer: AnalyzerConfig{
			SlitherBin:      getEnv("SLITHER_BIN", "slither"),
			SolcSelectBin:   getEnv("SOLC_SELECT_BIN", "solc-select"),
			SolcArtifactDir: getEnv("SOLC_ARTIFACT_DIR", defaultSolcArtifactDir()),
			WorkspaceDir:    getEnv("WORKSPACE_DIR", "./contracts"),
			TimeoutSeconds:  getEnvInt("ANALYZER_TIMEOUT", 240),
			MaxConcurrent:   getEnvInt("ANALYZER_MAX_CONCURRENT", 4),
		},
		Storage: StorageConfig{
			Type: getEnv("STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./data/slitherd.db"),
			},
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			TTLSeconds: getEnvInt("CACHE_TTL_SECONDS", 86400),
		},
		Chains: ChainsConfig{
			File:            getEnv("CHAINS_FILE", ""),
			CredentialsFile: getEnv("CREDENTIALS_FILE", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Security: SecurityConfig{
			FilterEnabled: getEnvBool("SECURITY_FILTER_ENABLED", true),
			MaxBodySizeMB: getEnvInt("SECURITY_MAX_BODY_SIZE_MB", 10),
		},
		Proxy: ProxyConfig{
			TrustProxy:     getEnvBool("TRUST_PROXY", false),
			TrustedProxies: getEnvStringSlice("TRUSTED_PROXIES", []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	return cfg, nil
}

func defaultSolcArtifactDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".solc-select/artifacts"
	}
	return filepath.Join(home, ".solc-select", "artifacts")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
