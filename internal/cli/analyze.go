package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/iardlabs/slitherd/pkg/client"
)

func createAnalyzeCmd() *cobra.Command {
	var serverURL string
	var blockchain string
	var contract string
	var file string
	var jsonOut bool
	var timeoutMinutes int

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a smart contract",
		Long: `Analyze a deployed contract by blockchain and address, or a local
Solidity file.

EXAMPLES:
  # Analyze a deployed contract
  slitherd analyze --blockchain ethereum --contract 0x6B175474E89094C44Da98b954EedeAC495271d0F

  # Analyze a local file
  slitherd analyze --file ./Token.sol

  # Machine-readable output
  slitherd analyze --file ./Token.sol --json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(serverURL, blockchain, contract, file, jsonOut, timeoutMinutes)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "server URL (defaults to config)")
	cmd.Flags().StringVar(&blockchain, "blockchain", "", "blockchain name")
	cmd.Flags().StringVar(&contract, "contract", "", "contract address")
	cmd.Flags().StringVar(&file, "file", "", "local Solidity file to analyze")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print findings as JSON")
	cmd.Flags().IntVar(&timeoutMinutes, "timeout", 5, "request timeout in minutes")

	return cmd
}

func runAnalyze(serverURL, blockchain, contract, file string, jsonOut bool, timeoutMinutes int) error {
	if file == "" && (blockchain == "" || contract == "") {
		// Fall back to project config defaults
		if project, _ := loadProjectConfig(); project != nil {
			if blockchain == "" {
				blockchain = project.Blockchain
			}
			if contract == "" {
				contract = project.Contract
			}
		}
	}
	if file == "" && (blockchain == "" || contract == "") {
		return fmt.Errorf("either --file or both --blockchain and --contract are required")
	}

	c := client.New(resolveServer(serverURL))

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutMinutes)*time.Minute)
	defer cancel()

	var findings []client.Finding
	var err error
	if file != "" {
		code, readErr := os.ReadFile(file)
		if readErr != nil {
			return fmt.Errorf("reading %s: %w", file, readErr)
		}
		findings, err = c.AnalyzeSource(ctx, string(code))
	} else {
		findings, err = c.Analyze(ctx, blockchain, contract)
	}
	if err != nil {
		return fmt.Errorf("analyzing contract: %w", err)
	}

	// Pretty table on a terminal, JSON when piped or requested
	if jsonOut || !term.IsTerminal(int(os.Stdout.Fd())) {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(findings)
	}

	if len(findings) == 0 {
		fmt.Println("No findings")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tIMPACT\tCONFIDENCE\tDESCRIPTION")
	for _, f := range findings {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.Check, f.Impact, f.Confidence, truncate(f.Description, 100))
	}
	w.Flush()

	fmt.Printf("\n%d finding(s)\n", len(findings))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
