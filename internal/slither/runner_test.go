package slither

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSlither writes an executable that prints stdout, prints stderr, and
// exits with code. It also records its arguments and working directory.
func fakeSlither(t *testing.T, stdout, stderr string, exitCode int) (bin, traceFile string) {
	t.Helper()
	dir := t.TempDir()
	bin = filepath.Join(dir, "slither")
	traceFile = filepath.Join(dir, "trace")
	stdoutFile := filepath.Join(dir, "stdout")

	require.NoError(t, os.WriteFile(stdoutFile, []byte(stdout), 0644))

	script := fmt.Sprintf(`#!/bin/sh
echo "$PWD $@" > %s
cat %s
echo %q >&2
exit %d
`, traceFile, stdoutFile, stderr, exitCode)
	require.NoError(t, os.WriteFile(bin, []byte(script), 0755))
	return bin, traceFile
}

const reportWithFindings = `{
	"success": true,
	"error": null,
	"results": {
		"detectors": [
			{"check": "reentrancy-eth", "impact": "High", "confidence": "Medium", "description": "Reentrancy in withdraw()"},
			{"check": "pragma", "impact": "Informational", "confidence": "High", "description": "Different pragma versions"},
			{"check": "reentrancy-eth", "impact": "High", "confidence": "Medium", "description": "Reentrancy in claim()"}
		]
	}
}`

func TestRunner_Run(t *testing.T) {
	// Exit code 255 mirrors slither signalling findings; it must not be
	// treated as a failure.
	bin, traceFile := fakeSlither(t, reportWithFindings, "", 255)
	r := NewRunner(bin, time.Minute, slog.Default())

	dir := t.TempDir()
	groups, err := r.Run(context.Background(), Input{
		Dir:      dir,
		Target:   "contract.sol",
		SolcPath: "/opt/solc/solc-0.8.19",
	})
	require.NoError(t, err)

	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2)
	assert.Equal(t, "reentrancy-eth", groups[0][0].Check)
	assert.Equal(t, "Reentrancy in withdraw()", groups[0][0].Description)
	assert.Equal(t, "pragma", groups[1][0].Check)

	trace, err := os.ReadFile(traceFile)
	require.NoError(t, err)
	assert.Contains(t, string(trace), dir, "runs inside the workspace")
	assert.Contains(t, string(trace), "contract.sol --json -")
	assert.Contains(t, string(trace), "--solc /opt/solc/solc-0.8.19")
}

func TestRunner_Run_NoSolcPath(t *testing.T) {
	bin, traceFile := fakeSlither(t, `{"success":true,"error":null,"results":{"detectors":[]}}`, "", 0)
	r := NewRunner(bin, time.Minute, slog.Default())

	groups, err := r.Run(context.Background(), Input{Dir: t.TempDir(), Target: "contract.sol"})
	require.NoError(t, err)
	assert.Empty(t, groups)

	trace, err := os.ReadFile(traceFile)
	require.NoError(t, err)
	assert.NotContains(t, string(trace), "--solc")
}

func TestRunner_Run_ReportedFailure(t *testing.T) {
	bin, _ := fakeSlither(t, `{"success":false,"error":"contract.sol parsing failed","results":{"detectors":[]}}`, "", 1)
	r := NewRunner(bin, time.Minute, slog.Default())

	_, err := r.Run(context.Background(), Input{Dir: t.TempDir(), Target: "contract.sol"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnalysis)
	assert.Contains(t, err.Error(), "parsing failed")
}

func TestRunner_Run_GarbageOutput(t *testing.T) {
	bin, _ := fakeSlither(t, "Traceback (most recent call last):", "crash detail", 1)
	r := NewRunner(bin, time.Minute, slog.Default())

	_, err := r.Run(context.Background(), Input{Dir: t.TempDir(), Target: "contract.sol"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnalysis)
	assert.Contains(t, err.Error(), "crash detail")
}

func TestGroupByCheck(t *testing.T) {
	detections := []Detection{
		{Check: "b", Description: "b1"},
		{Check: "a", Description: "a1"},
		{Check: "b", Description: "b2"},
	}

	groups := groupByCheck(detections)
	require.Len(t, groups, 2)
	assert.Equal(t, []Detection{{Check: "b", Description: "b1"}, {Check: "b", Description: "b2"}}, groups[0])
	assert.Equal(t, []Detection{{Check: "a", Description: "a1"}}, groups[1])
}

func TestGroupByCheck_Empty(t *testing.T) {
	assert.Empty(t, groupByCheck(nil))
}
