// Package solc resolves and installs Solidity compiler versions through
// solc-select, without touching its process-global active version.
package solc

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"

	"github.com/iardlabs/slitherd/internal/validation"
)

var pragmaVersionRegex = regexp.MustCompile(`\d+\.\d+\.\d+`)

// FromPragma extracts a compiler version from the first `pragma solidity`
// line of a source file. Absence of a pragma, or a pragma without a full
// major.minor.patch version, yields an empty string.
func FromPragma(source string) string {
	for _, line := range strings.Split(source, "\n") {
		if !strings.Contains(line, "pragma solidity") {
			continue
		}
		return pragmaVersionRegex.FindString(line)
	}
	return ""
}

// Resolver installs compiler versions via solc-select and maps them to the
// installed binary path. The binary path is handed directly to the analyzer
// invocation, so no global compiler switch ever happens and concurrent
// requests can pin different versions.
type Resolver struct {
	solcSelectBin string
	artifactDir   string
	logger        *slog.Logger
}

// NewResolver creates a resolver using the given solc-select binary and
// artifact directory (where solc-select unpacks compilers).
func NewResolver(solcSelectBin, artifactDir string, logger *slog.Logger) *Resolver {
	return &Resolver{
		solcSelectBin: solcSelectBin,
		artifactDir:   artifactDir,
		logger:        logger,
	}
}

// Ensure installs the requested compiler version if needed and returns the
// path of its binary. An empty version is a no-op returning an empty path:
// the analysis then runs against whatever compiler is on PATH, and the skip
// is logged rather than silently inheriting a stale pinned version.
func (r *Resolver) Ensure(ctx context.Context, version string) (string, error) {
	if version == "" {
		r.logger.Warn("no compiler version resolved, running with default solc")
		return "", nil
	}
	if err := validation.ValidateCompilerVersion(version); err != nil {
		return "", fmt.Errorf("compiler version %q: %w", version, err)
	}

	// `solc-select install` is idempotent for already-installed versions.
	cmd := exec.CommandContext(ctx, r.solcSelectBin, "install", version)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("installing solc %s: %w: %s", version, err, strings.TrimSpace(string(out)))
	}

	return r.BinaryPath(version), nil
}

// BinaryPath returns the path where solc-select keeps the binary for a
// version, e.g. {artifactDir}/solc-0.8.19/solc-0.8.19.
func (r *Resolver) BinaryPath(version string) string {
	name := "solc-" + version
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(r.artifactDir, "/"), name, name)
}
