package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// projectConfigFiles is the search order for project config files
var projectConfigFiles = []string{"slitherd.toml", "sd.toml"}

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	Server     string `toml:"server"`
	Blockchain string `toml:"blockchain,omitempty"`
	Contract   string `toml:"contract,omitempty"`
}

// GlobalConfig is the global configuration (stored in ~/.slitherd/config.yaml)
type GlobalConfig struct {
	Server string `yaml:"server"`
}

// Credentials stores explorer API keys per blockchain
type Credentials struct {
	Explorers map[string]string `yaml:"explorers"`
}

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())
	cmd.AddCommand(createConfigSetKeyCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var serverURL string
	var blockchain string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create a slitherd.toml configuration file in the current directory.

This file stores project-specific settings like the server URL and the
default blockchain and contract address to analyze.

EXAMPLES:
  # Create config with default server
  slitherd config init

  # Create config for a specific server
  slitherd config init --server https://slitherd.example.com

  # Overwrite existing config
  slitherd config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(serverURL, blockchain, force)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "server URL")
	cmd.Flags().StringVar(&blockchain, "blockchain", "", "default blockchain")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		Long: `Display the current configuration.

Shows both the local project config (slitherd.toml) and the global config
from ~/.slitherd/config.yaml.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}
}

func createConfigSetKeyCmd() *cobra.Command {
	var blockchain string
	var apiKeyFlag string

	cmd := &cobra.Command{
		Use:   "set-key",
		Short: "Save an explorer API key",
		Long: `Save an explorer API key for a blockchain.

Keys are stored in ~/.slitherd/credentials with secure file permissions, one
entry per blockchain. slitherd-server reads this file at startup (or the path
in CREDENTIALS_FILE) to fill in keys for chains that have none configured via
environment or the chains registry file. Use 'config show' to see which
blockchains have a key.

EXAMPLES:
  # Interactive (prompts for the key without echo)
  slitherd config set-key --blockchain ethereum

  # Non-interactive (for CI)
  slitherd config set-key --blockchain ethereum --api-key $ETHERSCAN_KEY
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSetKey(blockchain, apiKeyFlag)
		},
	}

	cmd.Flags().StringVar(&blockchain, "blockchain", "", "blockchain the key belongs to (required)")
	cmd.Flags().StringVar(&apiKeyFlag, "api-key", "", "API key (prompts if not provided)")
	cmd.MarkFlagRequired("blockchain")

	return cmd
}

func runConfigSetKey(blockchain, apiKeyInput string) error {
	blockchain = strings.ToLower(strings.TrimSpace(blockchain))
	if blockchain == "" {
		return fmt.Errorf("blockchain cannot be empty")
	}

	apiKey := apiKeyInput
	if apiKey == "" {
		fmt.Printf("Enter explorer API key for %s: ", blockchain)

		stdinFd := int(os.Stdin.Fd())
		if term.IsTerminal(stdinFd) {
			byteKey, err := term.ReadPassword(stdinFd)
			fmt.Println() // New line after password input
			if err != nil {
				return fmt.Errorf("failed to read API key: %w", err)
			}
			apiKey = string(byteKey)
		} else {
			reader := bufio.NewReader(os.Stdin)
			key, err := reader.ReadString('\n')
			if err != nil && err != io.EOF {
				return fmt.Errorf("failed to read API key: %w", err)
			}
			apiKey = strings.TrimSpace(key)
		}
	}

	if apiKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	creds, path, err := loadCredentials()
	if err != nil {
		return err
	}
	if creds.Explorers == nil {
		creds.Explorers = make(map[string]string)
	}
	creds.Explorers[blockchain] = apiKey

	if err := saveCredentials(creds, path); err != nil {
		return err
	}

	fmt.Printf("Saved API key for %s\n", blockchain)
	return nil
}

// loadCredentials reads ~/.slitherd/credentials, returning an empty set when
// the file does not exist yet.
func loadCredentials() (*Credentials, string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("resolving home directory: %w", err)
	}
	path := filepath.Join(home, ".slitherd", "credentials")

	var creds Credentials
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &creds, path, nil
		}
		return nil, "", fmt.Errorf("reading credentials: %w", err)
	}
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, "", fmt.Errorf("parsing credentials: %w", err)
	}
	return &creds, path, nil
}

func saveCredentials(creds *Credentials, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

func runConfigInit(serverURL, blockchain string, force bool) error {
	configPath := "slitherd.toml"

	for _, cfgFile := range projectConfigFiles {
		if _, err := os.Stat(cfgFile); err == nil && !force {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", cfgFile)
		}
	}

	cfg := ProjectConfig{
		Server:     serverURL,
		Blockchain: blockchain,
	}

	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Created %s\n", configPath)
	return nil
}

func runConfigShow() error {
	project, projectPath := loadProjectConfig()
	if project != nil {
		fmt.Printf("Project config (%s):\n", projectPath)
		fmt.Printf("  server:     %s\n", project.Server)
		if project.Blockchain != "" {
			fmt.Printf("  blockchain: %s\n", project.Blockchain)
		}
		if project.Contract != "" {
			fmt.Printf("  contract:   %s\n", project.Contract)
		}
	} else {
		fmt.Println("No project config found")
	}

	global, globalPath := loadGlobalConfig()
	if global != nil {
		fmt.Printf("Global config (%s):\n", globalPath)
		fmt.Printf("  server: %s\n", global.Server)
	} else {
		fmt.Println("No global config found")
	}

	if creds, _, err := loadCredentials(); err == nil && len(creds.Explorers) > 0 {
		fmt.Println("Explorer API keys:")
		for blockchain, key := range creds.Explorers {
			fmt.Printf("  %s: %s\n", blockchain, maskKey(key))
		}
	}

	return nil
}

// maskKey hides all but the last four characters of an API key.
func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

// loadProjectConfig reads the first project config file found.
func loadProjectConfig() (*ProjectConfig, string) {
	for _, path := range projectConfigFiles {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		var cfg ProjectConfig
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			continue
		}
		return &cfg, path
	}
	return nil, ""
}

// loadGlobalConfig reads ~/.slitherd/config.yaml.
func loadGlobalConfig() (*GlobalConfig, string) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, ""
	}
	path := filepath.Join(home, ".slitherd", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ""
	}
	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, ""
	}
	return &cfg, path
}

// resolveServer picks the server URL: flag > project config > global config.
func resolveServer(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if project, _ := loadProjectConfig(); project != nil && project.Server != "" {
		return project.Server
	}
	if global, _ := loadGlobalConfig(); global != nil && global.Server != "" {
		return global.Server
	}
	return "http://localhost:8080"
}
